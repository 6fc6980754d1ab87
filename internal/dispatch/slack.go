package dispatch

import (
	"context"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/slack-go/slack"
)

type slackClientFactory func(accessToken string) slackAPI

type slackAPI interface {
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type webhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// SlackSender delivers to Slack destinations: DMs through the account's
// OAuth token, channel posts through the node's incoming webhook.
type SlackSender struct {
	newClient   slackClientFactory
	postWebhook webhookPoster
}

func NewSlackSender() *SlackSender {
	return &SlackSender{
		newClient: func(accessToken string) slackAPI {
			return slack.New(accessToken)
		},
		postWebhook: slack.PostWebhookContext,
	}
}

func (s *SlackSender) Send(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	if descriptor.Action.Delivery == domain.DeliveryMode_DM {
		return s.sendDM(ctx, descriptor, message)
	}

	return s.sendWebhook(ctx, descriptor, message)
}

func (s *SlackSender) sendDM(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	if descriptor.AccessToken == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "DM delivery requires an access token",
		}
	}
	if descriptor.Action.TargetUser == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "DM delivery requires a target user",
		}
	}

	client := s.newClient(descriptor.AccessToken)

	channel, _, _, err := client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{descriptor.Action.TargetUser},
	})
	if err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Slack, NodeID: descriptor.NodeID, Err: err}
	}

	if _, _, err := client.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(message, false)); err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Slack, NodeID: descriptor.NodeID, Err: err}
	}

	return nil
}

func (s *SlackSender) sendWebhook(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	if descriptor.WebhookURL == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing webhook URL",
		}
	}

	err := s.postWebhook(ctx, descriptor.WebhookURL, &slack.WebhookMessage{
		Text: message,
	})
	if err != nil {
		return &domain.TransportError{NodeType: domain.NodeType_Slack, NodeID: descriptor.NodeID, Err: err}
	}

	return nil
}
