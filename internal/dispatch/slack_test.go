package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlackAPI struct {
	openedUsers   []string
	postedChannel string
	openErr       error
	postErr       error
}

func (f *fakeSlackAPI) OpenConversationContext(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	if f.openErr != nil {
		return nil, false, false, f.openErr
	}
	f.openedUsers = params.Users
	channel := &slack.Channel{}
	channel.ID = "dm-chan"
	return channel, false, false, nil
}

func (f *fakeSlackAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.postedChannel = channelID
	return channelID, "ts", nil
}

func newTestSlackSender(api *fakeSlackAPI, poster webhookPoster) *SlackSender {
	return &SlackSender{
		newClient:   func(string) slackAPI { return api },
		postWebhook: poster,
	}
}

func TestSlackSender_SendDM(t *testing.T) {
	api := &fakeSlackAPI{}
	sender := newTestSlackSender(api, nil)

	descriptor := domain.ActionDescriptor{
		NodeID:      "node-1",
		AccessToken: "xoxp-token",
		Action: domain.NodeAction{
			Delivery:   domain.DeliveryMode_DM,
			TargetUser: "U123",
		},
	}

	require.NoError(t, sender.Send(context.Background(), descriptor, "hi"))

	assert.Equal(t, []string{"U123"}, api.openedUsers)
	assert.Equal(t, "dm-chan", api.postedChannel)
}

func TestSlackSender_SendDM_MissingCredentials(t *testing.T) {
	sender := newTestSlackSender(&fakeSlackAPI{}, nil)

	tests := []struct {
		name       string
		descriptor domain.ActionDescriptor
	}{
		{
			name: "no access token",
			descriptor: domain.ActionDescriptor{
				NodeID: "node-1",
				Action: domain.NodeAction{Delivery: domain.DeliveryMode_DM, TargetUser: "U123"},
			},
		},
		{
			name: "no target user",
			descriptor: domain.ActionDescriptor{
				NodeID:      "node-1",
				AccessToken: "xoxp-token",
				Action:      domain.NodeAction{Delivery: domain.DeliveryMode_DM},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sender.Send(context.Background(), tt.descriptor, "hi")
			assert.True(t, domain.IsConfigurationError(err))
		})
	}
}

func TestSlackSender_SendWebhook(t *testing.T) {
	var postedURL, postedText string
	poster := func(_ context.Context, url string, msg *slack.WebhookMessage) error {
		postedURL = url
		postedText = msg.Text
		return nil
	}

	sender := newTestSlackSender(&fakeSlackAPI{}, poster)

	descriptor := domain.ActionDescriptor{
		NodeID:     "node-1",
		WebhookURL: "https://hooks.slack.com/services/T/B/x",
		Action:     domain.NodeAction{Delivery: domain.DeliveryMode_Channel},
	}

	require.NoError(t, sender.Send(context.Background(), descriptor, "channel post"))

	assert.Equal(t, "https://hooks.slack.com/services/T/B/x", postedURL)
	assert.Equal(t, "channel post", postedText)
}

func TestSlackSender_SendWebhook_Failure(t *testing.T) {
	poster := func(_ context.Context, _ string, _ *slack.WebhookMessage) error {
		return errors.New("channel_not_found")
	}

	sender := newTestSlackSender(&fakeSlackAPI{}, poster)

	err := sender.Send(context.Background(), domain.ActionDescriptor{
		NodeID:     "node-1",
		WebhookURL: "https://hooks.slack.com/services/T/B/x",
	}, "hi")

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, domain.NodeType_Slack, transportErr.NodeType)
}

func TestSlackSender_SendWebhook_MissingURL(t *testing.T) {
	sender := newTestSlackSender(&fakeSlackAPI{}, nil)

	err := sender.Send(context.Background(), domain.ActionDescriptor{NodeID: "node-1"}, "hi")
	assert.True(t, domain.IsConfigurationError(err))
}
