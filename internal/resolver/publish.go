package resolver

import (
	"context"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/dispatch"
	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/rs/zerolog/log"
)

// SubscriptionStarter opens the change-feed watch channel for a trigger node.
// Publish uses it so a change-feed workflow starts listening the moment it
// goes live.
type SubscriptionStarter interface {
	EnsureListening(ctx context.Context, nodeID string) error
}

// PublishService owns the publish/unpublish side of the engine: it validates
// the trigger chain, computes the fan-out list, persists it as flow metadata
// and keeps the chat fan-out cache in step with the published state.
type PublishService struct {
	workflows     domain.WorkflowStore
	nodes         domain.NodeStore
	resolver      *Resolver
	cache         domain.FanOutCache
	subscriptions SubscriptionStarter
}

type PublishServiceDependencies struct {
	WorkflowStore       domain.WorkflowStore
	NodeStore           domain.NodeStore
	Resolver            *Resolver
	FanOutCache         domain.FanOutCache
	SubscriptionStarter SubscriptionStarter
}

func NewPublishService(deps PublishServiceDependencies) *PublishService {
	return &PublishService{
		workflows:     deps.WorkflowStore,
		nodes:         deps.NodeStore,
		resolver:      deps.Resolver,
		cache:         deps.FanOutCache,
		subscriptions: deps.SubscriptionStarter,
	}
}

// ComputeFanOut resolves a workflow's trigger into its dispatch list. Chat
// triggers are resolved from their own record; a change-feed trigger supplies
// its stored edge sets directly.
func (s *PublishService) ComputeFanOut(ctx context.Context, workflowID string) (Resolution, error) {
	workflow, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	return s.computeFanOut(ctx, workflow)
}

func (s *PublishService) computeFanOut(ctx context.Context, workflow domain.Workflow) (Resolution, error) {
	if !workflow.HasTrigger() {
		return Resolution{}, &domain.ConfigurationError{
			NodeID: workflow.ID,
			Reason: "workflow has no trigger",
		}
	}

	switch workflow.ParentTrigger {
	case domain.TriggerType_Discord:
		return s.resolver.Resolve(ctx, domain.NodeType_Discord, workflow.ParentID)
	case domain.TriggerType_Slack:
		return s.resolver.Resolve(ctx, domain.NodeType_Slack, workflow.ParentID)
	case domain.TriggerType_Drive:
		conns, err := s.nodes.GetDriveTriggerConnections(ctx, workflow.ParentID)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to load drive trigger connections %s: %w", workflow.ParentID, err)
		}
		return s.resolver.ResolveConnections(ctx, conns)
	default:
		return Resolution{}, fmt.Errorf("unsupported trigger type: %s", workflow.ParentTrigger)
	}
}

// Publish validates the trigger chain and persists the fan-out list. A
// reachable node whose action was never saved, or whose stored configuration
// could not deliver, fails the publish and names the offending node. A
// change-feed workflow also gets its watch channel started.
func (s *PublishService) Publish(ctx context.Context, workflowID string) ([]domain.ActionDescriptor, error) {
	workflow, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	resolution, err := s.computeFanOut(ctx, workflow)
	if err != nil {
		return nil, err
	}

	if len(resolution.UnsavedNodeIDs) > 0 {
		return nil, &domain.ConfigurationError{
			NodeID: resolution.UnsavedNodeIDs[0],
			Reason: "node action is not saved",
		}
	}

	for _, descriptor := range resolution.Descriptors {
		if err := dispatch.ValidateDescriptor(descriptor); err != nil {
			return nil, err
		}
	}

	if err := s.workflows.SaveFlowMetadata(ctx, workflowID, resolution.Descriptors); err != nil {
		return nil, fmt.Errorf("failed to save flow metadata: %w", err)
	}

	if workflow.ParentTrigger == domain.TriggerType_Drive && s.subscriptions != nil {
		if err := s.subscriptions.EnsureListening(ctx, workflow.ParentID); err != nil {
			return nil, fmt.Errorf("failed to start change-feed subscription: %w", err)
		}
	}

	if err := s.workflows.SetPublished(ctx, workflowID, true); err != nil {
		return nil, fmt.Errorf("failed to mark workflow published: %w", err)
	}

	if err := s.warmCache(ctx, workflow, resolution.Descriptors); err != nil {
		log.Warn().Err(err).Str("workflowID", workflowID).Msg("Failed to warm fan-out cache")
	}

	log.Info().
		Str("workflowID", workflowID).
		Int("descriptors", len(resolution.Descriptors)).
		Msg("Workflow published")

	return resolution.Descriptors, nil
}

// Unpublish clears the published flag and drops the cached fan-out list. The
// renewal job for a change-feed trigger is cancelled lazily: its next run
// observes the unpublished workflow and stops the channel.
func (s *PublishService) Unpublish(ctx context.Context, workflowID string) error {
	workflow, err := s.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if err := s.workflows.SetPublished(ctx, workflowID, false); err != nil {
		return fmt.Errorf("failed to mark workflow unpublished: %w", err)
	}

	if key, ok, err := s.triggerKey(ctx, workflow); err != nil {
		log.Warn().Err(err).Str("workflowID", workflowID).Msg("Failed to resolve trigger key for cache invalidation")
	} else if ok {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			log.Warn().Err(err).Str("workflowID", workflowID).Msg("Failed to invalidate fan-out cache")
		}
	}

	log.Info().Str("workflowID", workflowID).Msg("Workflow unpublished")

	return nil
}

func (s *PublishService) warmCache(ctx context.Context, workflow domain.Workflow, descriptors []domain.ActionDescriptor) error {
	key, ok, err := s.triggerKey(ctx, workflow)
	if err != nil || !ok {
		return err
	}

	return s.cache.Set(ctx, key, domain.FanOut{
		UserID:      workflow.UserID,
		WorkflowID:  workflow.ID,
		Descriptors: descriptors,
	})
}

// triggerKey builds the chat-event lookup key for a workflow's trigger.
// Change-feed triggers have no chat key; their fan-out lives in flow metadata.
func (s *PublishService) triggerKey(ctx context.Context, workflow domain.Workflow) (domain.ChatEventKey, bool, error) {
	var t domain.NodeType

	switch workflow.ParentTrigger {
	case domain.TriggerType_Discord:
		t = domain.NodeType_Discord
	case domain.TriggerType_Slack:
		t = domain.NodeType_Slack
	default:
		return domain.ChatEventKey{}, false, nil
	}

	record, err := s.nodes.GetChatRecord(ctx, t, workflow.ParentID)
	if err != nil {
		return domain.ChatEventKey{}, false, err
	}

	return domain.ChatEventKey{
		NodeType:  record.Type,
		EventType: record.Trigger,
		ChannelID: record.ChannelID,
		TeamID:    record.TeamID,
	}, true, nil
}
