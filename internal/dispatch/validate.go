package dispatch

import (
	"github.com/kiteflow/kiteflow/internal/domain"
)

// ValidateDescriptor runs the static configuration checks a delivery would
// fail on, without sending anything. Publish uses it so a node with a broken
// stored configuration is caught before the workflow goes live.
func ValidateDescriptor(descriptor domain.ActionDescriptor) error {
	switch descriptor.NodeType {
	case domain.NodeType_Discord:
		return validateDiscord(descriptor)
	case domain.NodeType_Slack:
		return validateSlack(descriptor)
	case domain.NodeType_Notion:
		return validateNotion(descriptor)
	default:
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "no sender registered for node type " + string(descriptor.NodeType),
		}
	}
}

func validateDiscord(descriptor domain.ActionDescriptor) error {
	if descriptor.Action.Delivery == domain.DeliveryMode_DM {
		if descriptor.Action.TargetUser == "" {
			return &domain.ConfigurationError{
				NodeID: descriptor.NodeID,
				Reason: "DM delivery requires a target user",
			}
		}
		return nil
	}

	if _, _, err := parseDiscordWebhookURL(descriptor.WebhookURL); err != nil {
		return &domain.ConfigurationError{NodeID: descriptor.NodeID, Reason: err.Error()}
	}

	return nil
}

func validateSlack(descriptor domain.ActionDescriptor) error {
	if descriptor.Action.Delivery == domain.DeliveryMode_DM {
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
		return nil
	}

	if descriptor.WebhookURL == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing webhook URL",
		}
	}

	return nil
}

func validateNotion(descriptor domain.ActionDescriptor) error {
	if descriptor.AccessToken == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing workspace access token",
		}
	}
	if descriptor.TargetRef == "" {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "missing page or database target",
		}
	}

	return nil
}
