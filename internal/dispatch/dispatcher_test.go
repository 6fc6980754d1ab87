package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []string
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, descriptor domain.ActionDescriptor, message string) error {
	if err, ok := f.fail[descriptor.NodeID]; ok {
		return err
	}
	f.sent = append(f.sent, descriptor.NodeID+":"+message)
	return nil
}

func newTestDispatcher(discord, slack, notion *fakeSender) *Dispatcher {
	return NewDispatcher(DispatcherDependencies{
		DiscordSender: discord,
		SlackSender:   slack,
		NotionSender:  notion,
	})
}

func TestDispatcher_Dispatch_FailureDoesNotBlockSiblings(t *testing.T) {
	discord := &fakeSender{fail: map[string]error{
		"discord-bad": errors.New("boom"),
	}}
	slack := &fakeSender{}
	notion := &fakeSender{}

	d := newTestDispatcher(discord, slack, notion)

	descriptors := []domain.ActionDescriptor{
		{NodeType: domain.NodeType_Discord, NodeID: "discord-bad"},
		{NodeType: domain.NodeType_Slack, NodeID: "slack-ok"},
		{NodeType: domain.NodeType_Notion, NodeID: "notion-ok"},
	}

	summary := d.Dispatch(context.Background(), descriptors, "")

	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"slack-ok:" + DefaultMessage}, slack.sent)
	assert.Equal(t, []string{"notion-ok:" + DefaultMessage}, notion.sent)
}

func TestDispatcher_Dispatch_MessageBuilding(t *testing.T) {
	tests := []struct {
		name     string
		action   domain.NodeAction
		fragment string
		expected string
	}{
		{
			name:     "default mode uses the default message",
			action:   domain.NodeAction{Mode: domain.MessageMode_Default, Message: "ignored"},
			expected: DefaultMessage,
		},
		{
			name:     "custom mode uses the node's message",
			action:   domain.NodeAction{Mode: domain.MessageMode_Custom, Message: "hello"},
			expected: "hello",
		},
		{
			name:     "custom mode with empty message falls back",
			action:   domain.NodeAction{Mode: domain.MessageMode_Custom},
			expected: DefaultMessage,
		},
		{
			name:     "fragment is appended on its own line",
			action:   domain.NodeAction{Mode: domain.MessageMode_Custom, Message: "hello"},
			fragment: "report.pdf was updated",
			expected: "hello\nreport.pdf was updated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discord := &fakeSender{}
			d := newTestDispatcher(discord, &fakeSender{}, &fakeSender{})

			d.Dispatch(context.Background(), []domain.ActionDescriptor{
				{NodeType: domain.NodeType_Discord, NodeID: "node", Action: tt.action},
			}, tt.fragment)

			require.Len(t, discord.sent, 1)
			assert.Equal(t, "node:"+tt.expected, discord.sent[0])
		})
	}
}

func TestDispatcher_DispatchOne_UnregisteredType(t *testing.T) {
	d := &Dispatcher{senders: map[domain.NodeType]Sender{}}

	err := d.DispatchOne(context.Background(), domain.ActionDescriptor{
		NodeType: domain.NodeType_Discord,
		NodeID:   "node",
	}, "message")

	assert.True(t, domain.IsConfigurationError(err))
}
