package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscordAPI struct {
	dmChannelID    string
	dmRecipient    string
	sentMessages   map[string]string
	webhookID      string
	webhookToken   string
	webhookContent string
	userChannelErr error
	channelSendErr error
	webhookExecErr error
}

func newFakeDiscordAPI() *fakeDiscordAPI {
	return &fakeDiscordAPI{dmChannelID: "dm-chan", sentMessages: map[string]string{}}
}

func (f *fakeDiscordAPI) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.userChannelErr != nil {
		return nil, f.userChannelErr
	}
	f.dmRecipient = recipientID
	return &discordgo.Channel{ID: f.dmChannelID}, nil
}

func (f *fakeDiscordAPI) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.channelSendErr != nil {
		return nil, f.channelSendErr
	}
	f.sentMessages[channelID] = content
	return &discordgo.Message{}, nil
}

func (f *fakeDiscordAPI) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.webhookExecErr != nil {
		return nil, f.webhookExecErr
	}
	f.webhookID = webhookID
	f.webhookToken = token
	f.webhookContent = data.Content
	return &discordgo.Message{}, nil
}

func TestDiscordSender_SendDM(t *testing.T) {
	api := newFakeDiscordAPI()
	sender := &DiscordSender{session: api}

	descriptor := domain.ActionDescriptor{
		NodeType: domain.NodeType_Discord,
		NodeID:   "node-1",
		Action: domain.NodeAction{
			Delivery:   domain.DeliveryMode_DM,
			TargetUser: "user-42",
		},
	}

	require.NoError(t, sender.Send(context.Background(), descriptor, "hi there"))

	assert.Equal(t, "user-42", api.dmRecipient)
	assert.Equal(t, "hi there", api.sentMessages["dm-chan"])
}

func TestDiscordSender_SendDM_MissingTargetUser(t *testing.T) {
	sender := &DiscordSender{session: newFakeDiscordAPI()}

	err := sender.Send(context.Background(), domain.ActionDescriptor{
		NodeID: "node-1",
		Action: domain.NodeAction{Delivery: domain.DeliveryMode_DM},
	}, "hi")

	assert.True(t, domain.IsConfigurationError(err))
}

func TestDiscordSender_SendDM_TransportFailure(t *testing.T) {
	api := newFakeDiscordAPI()
	api.userChannelErr = errors.New("rate limited")
	sender := &DiscordSender{session: api}

	err := sender.Send(context.Background(), domain.ActionDescriptor{
		NodeID: "node-1",
		Action: domain.NodeAction{Delivery: domain.DeliveryMode_DM, TargetUser: "user-42"},
	}, "hi")

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, domain.NodeType_Discord, transportErr.NodeType)
}

func TestDiscordSender_SendWebhook(t *testing.T) {
	api := newFakeDiscordAPI()
	sender := &DiscordSender{session: api}

	descriptor := domain.ActionDescriptor{
		NodeID:     "node-1",
		WebhookURL: "https://discord.com/api/webhooks/123456/secret-token",
		Action:     domain.NodeAction{Delivery: domain.DeliveryMode_Channel},
	}

	require.NoError(t, sender.Send(context.Background(), descriptor, "channel post"))

	assert.Equal(t, "123456", api.webhookID)
	assert.Equal(t, "secret-token", api.webhookToken)
	assert.Equal(t, "channel post", api.webhookContent)
}

func TestDiscordSender_SendWebhook_MissingURL(t *testing.T) {
	sender := &DiscordSender{session: newFakeDiscordAPI()}

	err := sender.Send(context.Background(), domain.ActionDescriptor{
		NodeID: "node-1",
		Action: domain.NodeAction{Delivery: domain.DeliveryMode_Channel},
	}, "hi")

	assert.True(t, domain.IsConfigurationError(err))
}

func TestParseDiscordWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		id      string
		token   string
		wantErr bool
	}{
		{
			name:  "standard webhook URL",
			url:   "https://discord.com/api/webhooks/123/abc",
			id:    "123",
			token: "abc",
		},
		{
			name:  "trailing slash",
			url:   "https://discord.com/api/webhooks/123/abc/",
			id:    "123",
			token: "abc",
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "no path segments",
			url:     "nonsense",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, token, err := parseDiscordWebhookURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.token, token)
		})
	}
}
