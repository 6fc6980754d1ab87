package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/credits"
	"github.com/kiteflow/kiteflow/internal/dispatch"
	"github.com/kiteflow/kiteflow/internal/domain"
	"github.com/kiteflow/kiteflow/internal/resolver"

	"github.com/rs/zerolog/log"
)

// ChatEvent is one inbound chat event from a provider's event webhook. The
// payload shape is provider-defined; every field we need to resolve the
// owning account travels with the event, so no per-process state is kept.
type ChatEvent struct {
	ChannelID   string `json:"channelId"`
	ChannelType string `json:"channelType"`
	EventType   string `json:"eventType"`
	TeamID      string `json:"teamId,omitempty"`
}

// ChatProcessor fans an inbound chat event out to the published workflow
// whose trigger listens on that channel. Lookup goes through the fan-out
// cache first and falls back to a stateless store resolution.
type ChatProcessor struct {
	nodes      domain.NodeStore
	workflows  domain.WorkflowStore
	cache      domain.FanOutCache
	resolver   *resolver.Resolver
	gate       *credits.Gate
	dispatcher *dispatch.Dispatcher
}

type ChatProcessorDependencies struct {
	NodeStore     domain.NodeStore
	WorkflowStore domain.WorkflowStore
	FanOutCache   domain.FanOutCache
	Resolver      *resolver.Resolver
	Gate          *credits.Gate
	Dispatcher    *dispatch.Dispatcher
}

func NewChatProcessor(deps ChatProcessorDependencies) *ChatProcessor {
	return &ChatProcessor{
		nodes:      deps.NodeStore,
		workflows:  deps.WorkflowStore,
		cache:      deps.FanOutCache,
		resolver:   deps.Resolver,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
	}
}

func (p *ChatProcessor) Process(ctx context.Context, event ChatEvent) error {
	nodeType, err := chatNodeType(event.ChannelType)
	if err != nil {
		return err
	}

	key := domain.ChatEventKey{
		NodeType:  nodeType,
		EventType: event.EventType,
		ChannelID: event.ChannelID,
		TeamID:    event.TeamID,
	}

	fanOut, err := p.lookupFanOut(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			log.Debug().
				Str("channelID", event.ChannelID).
				Str("eventType", event.EventType).
				Msg("No published trigger for chat event")
			return nil
		}
		return err
	}

	if len(fanOut.Descriptors) == 0 {
		return nil
	}

	ledger, err := p.gate.Check(ctx, fanOut.UserID)
	if err != nil {
		if domain.IsQuotaExhausted(err) {
			p.gate.OnCreditExhausted(ctx, fanOut.UserID, fanOut.WorkflowID, "")
			return nil
		}
		return err
	}

	summary := p.dispatcher.Dispatch(ctx, fanOut.Descriptors, "")

	log.Info().
		Str("workflowID", fanOut.WorkflowID).
		Str("channelID", event.ChannelID).
		Str("eventType", event.EventType).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Msg("Chat event fanned out")

	return p.gate.Meter(ctx, ledger)
}

func (p *ChatProcessor) lookupFanOut(ctx context.Context, key domain.ChatEventKey) (domain.FanOut, error) {
	if fanOut, ok, err := p.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("Fan-out cache lookup failed, falling back to store")
	} else if ok {
		return fanOut, nil
	}

	record, err := p.nodes.FindTriggerRecord(ctx, key.NodeType, key.EventType, key.ChannelID, key.TeamID)
	if err != nil {
		return domain.FanOut{}, err
	}

	workflow, err := p.workflows.GetWorkflow(ctx, record.WorkflowID)
	if err != nil {
		return domain.FanOut{}, fmt.Errorf("failed to load workflow %s: %w", record.WorkflowID, err)
	}
	if !workflow.Published {
		return domain.FanOut{}, domain.ErrNodeNotFound
	}

	resolution, err := p.resolver.Resolve(ctx, record.Type, record.NodeID)
	if err != nil {
		return domain.FanOut{}, err
	}

	fanOut := domain.FanOut{
		UserID:      record.UserID,
		WorkflowID:  workflow.ID,
		Descriptors: resolution.Descriptors,
	}

	if err := p.cache.Set(ctx, key, fanOut); err != nil {
		log.Warn().Err(err).Msg("Failed to populate fan-out cache")
	}

	return fanOut, nil
}

func chatNodeType(channelType string) (domain.NodeType, error) {
	switch channelType {
	case string(domain.NodeType_Discord):
		return domain.NodeType_Discord, nil
	case string(domain.NodeType_Slack):
		return domain.NodeType_Slack, nil
	default:
		return "", fmt.Errorf("unsupported channel type: %s", channelType)
	}
}
