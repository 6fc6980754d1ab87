package dispatch

import (
	"context"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/rs/zerolog/log"
)

// DefaultMessage is posted when a node's action uses the default mode
// instead of a custom message.
const DefaultMessage = "New activity was detected by your workflow."

// Sender performs exactly one externally visible side effect for one
// destination type. Adding a destination type is one new Sender variant.
type Sender interface {
	Send(ctx context.Context, descriptor domain.ActionDescriptor, message string) error
}

// Dispatcher fans one trigger event out to every action descriptor. An
// individual destination's failure is logged and contained so one bad edge
// never blocks its siblings.
type Dispatcher struct {
	senders map[domain.NodeType]Sender
}

type DispatcherDependencies struct {
	DiscordSender Sender
	SlackSender   Sender
	NotionSender  Sender
}

func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	return &Dispatcher{
		senders: map[domain.NodeType]Sender{
			domain.NodeType_Discord: deps.DiscordSender,
			domain.NodeType_Slack:   deps.SlackSender,
			domain.NodeType_Notion:  deps.NotionSender,
		},
	}
}

// Summary reports the fan-out outcome. Failures are already logged per
// destination by the time the caller sees it.
type Summary struct {
	Delivered int
	Failed    int
}

// Dispatch delivers to every descriptor, appending fragment to each action's
// message. Descriptor failures never abort the loop.
func (d *Dispatcher) Dispatch(ctx context.Context, descriptors []domain.ActionDescriptor, fragment string) Summary {
	summary := Summary{}

	for _, descriptor := range descriptors {
		message := buildMessage(descriptor.Action, fragment)

		if err := d.DispatchOne(ctx, descriptor, message); err != nil {
			summary.Failed++
			log.Error().
				Err(err).
				Str("nodeID", descriptor.NodeID).
				Str("nodeType", string(descriptor.NodeType)).
				Msg("Failed to dispatch action")
			continue
		}

		summary.Delivered++
	}

	return summary
}

// DispatchOne performs a single delivery and returns the typed failure.
func (d *Dispatcher) DispatchOne(ctx context.Context, descriptor domain.ActionDescriptor, message string) error {
	sender, ok := d.senders[descriptor.NodeType]
	if !ok {
		return &domain.ConfigurationError{
			NodeID: descriptor.NodeID,
			Reason: "no sender registered for node type " + string(descriptor.NodeType),
		}
	}

	return sender.Send(ctx, descriptor, message)
}

func buildMessage(action domain.NodeAction, fragment string) string {
	message := DefaultMessage
	if action.Mode == domain.MessageMode_Custom && action.Message != "" {
		message = action.Message
	}

	if fragment != "" {
		message = message + "\n" + fragment
	}

	return message
}
