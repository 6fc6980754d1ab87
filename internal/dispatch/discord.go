package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/bwmarrin/discordgo"
)

type discordAPI interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender delivers to Discord destinations: DMs through the live bot
// session, channel posts through the node's stored webhook.
type DiscordSender struct {
	session discordAPI
}

type DiscordSenderDependencies struct {
	BotToken string
}

func NewDiscordSender(deps DiscordSenderDependencies) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + deps.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	return &DiscordSender{session: session}, nil
}

func (s *DiscordSender) Send(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	if descriptor.Action.Delivery == domain.DeliveryMode_DM {
		return s.sendDM(descriptor, message)
	}

	return s.sendWebhook(descriptor, message)
}

func (s *DiscordSender) sendDM(descriptor domain.ActionDescriptor, message string) error {
	if descriptor.Action.TargetUser == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "DM delivery requires a target user",
		}
	}

	channel, err := s.session.UserChannelCreate(descriptor.Action.TargetUser)
	if err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Discord, NodeID: descriptor.NodeID, Err: err}
	}

	if _, err := s.session.ChannelMessageSend(channel.ID, message); err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Discord, NodeID: descriptor.NodeID, Err: err}
	}

	return nil
}

func (s *DiscordSender) sendWebhook(descriptor domain.ActionDescriptor, message string) error {
	webhookID, token, err := parseDiscordWebhookURL(descriptor.WebhookURL)
	if err != nil {
		return &domain.ConfigurationError{NodeID: descriptor.NodeID, Reason: err.Error()}
	}

	_, err = s.session.WebhookExecute(webhookID, token, true, &discordgo.WebhookParams{
		Content: message,
	})
	if err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Discord, NodeID: descriptor.NodeID, Err: err}
	}

	return nil
}

// parseDiscordWebhookURL extracts the id/token pair from a stored webhook
// URL of the form .../api/webhooks/{id}/{token}.
func parseDiscordWebhookURL(webhookURL string) (string, string, error) {
	if webhookURL == "" {
		return "", "", fmt.Errorf("missing webhook URL")
	}

	parts := strings.Split(strings.TrimRight(webhookURL, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed webhook URL")
	}

	id := parts[len(parts)-2]
	token := parts[len(parts)-1]
	if id == "" || token == "" {
		return "", "", fmt.Errorf("malformed webhook URL")
	}

	return id, token, nil
}
