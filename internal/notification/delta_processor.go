package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiteflow/kiteflow/internal/credits"
	"github.com/kiteflow/kiteflow/internal/dispatch"
	"github.com/kiteflow/kiteflow/internal/domain"
	"github.com/kiteflow/kiteflow/internal/subscription"

	"github.com/rs/zerolog/log"
)

// DriveNotification is one inbound push notification from the change feed.
type DriveNotification struct {
	NodeID     string
	UserID     string
	WorkflowID string
	ChannelID  string
	ResourceID string
}

// DeltaProcessor handles an inbound Drive push notification: it pages the
// change feed exactly one page from the persisted cursor, fans the change
// out, then advances the cursor and meters usage. Because the cursor only
// advances after a successful page fetch, delivery is at-least-once and
// dispatch must tolerate repeats.
type DeltaProcessor struct {
	subscriptions domain.SubscriptionStore
	workflows     domain.WorkflowStore
	manager       *subscription.Manager
	drive         subscription.DriveAPI
	gate          *credits.Gate
	dispatcher    *dispatch.Dispatcher
}

type DeltaProcessorDependencies struct {
	SubscriptionStore domain.SubscriptionStore
	WorkflowStore     domain.WorkflowStore
	Manager           *subscription.Manager
	DriveAPI          subscription.DriveAPI
	Gate              *credits.Gate
	Dispatcher        *dispatch.Dispatcher
}

func NewDeltaProcessor(deps DeltaProcessorDependencies) *DeltaProcessor {
	return &DeltaProcessor{
		subscriptions: deps.SubscriptionStore,
		workflows:     deps.WorkflowStore,
		manager:       deps.Manager,
		drive:         deps.DriveAPI,
		gate:          deps.Gate,
		dispatcher:    deps.Dispatcher,
	}
}

func (p *DeltaProcessor) Process(ctx context.Context, n DriveNotification) error {
	sub, err := p.subscriptions.Get(ctx, n.NodeID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %s: %w", n.NodeID, err)
	}

	if !sub.IsListening {
		log.Debug().Str("nodeID", n.NodeID).Msg("Notification for stopped subscription, ignoring")
		return nil
	}

	if n.ChannelID != "" && n.ChannelID != sub.ChannelID {
		// A notification from a channel we already replaced during renewal.
		log.Debug().
			Str("nodeID", n.NodeID).
			Str("notifiedChannel", n.ChannelID).
			Str("currentChannel", sub.ChannelID).
			Msg("Stale channel notification, ignoring")
		return nil
	}

	if sub.Broken() {
		log.Warn().Str("nodeID", n.NodeID).Msg("Subscription listening without a page token, stopping")
		return p.manager.Stop(ctx, n.NodeID)
	}

	ledger, err := p.gate.Check(ctx, sub.UserID)
	if err != nil {
		if domain.IsQuotaExhausted(err) {
			if stopErr := p.manager.Stop(ctx, n.NodeID); stopErr != nil {
				log.Error().Err(stopErr).Str("nodeID", n.NodeID).Msg("Failed to stop subscription after credit exhaustion")
			}
			p.gate.OnCreditExhausted(ctx, sub.UserID, sub.WorkflowID, n.NodeID)
			return nil
		}
		return err
	}

	cred, err := p.manager.RefreshCredential(ctx, &sub)
	if err != nil {
		if domain.IsReauthRequired(err) {
			return p.manager.DisableForReauth(ctx, n.NodeID, err)
		}
		return err
	}

	page, err := p.drive.ListChanges(ctx, cred, sub.PageToken, sub.Filter)
	if err != nil {
		return fmt.Errorf("failed to page change feed for node %s: %w", n.NodeID, err)
	}

	workflow, err := p.workflows.GetWorkflow(ctx, sub.WorkflowID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			log.Info().Str("nodeID", n.NodeID).Str("workflowID", sub.WorkflowID).Msg("Workflow deleted, stopping channel")
			return p.manager.Stop(ctx, n.NodeID)
		}
		return fmt.Errorf("failed to load workflow %s: %w", sub.WorkflowID, err)
	}
	if !workflow.TriggersNode(n.NodeID) {
		log.Info().Str("nodeID", n.NodeID).Str("workflowID", sub.WorkflowID).Msg("Workflow no longer triggers this node, stopping channel")
		return p.manager.Stop(ctx, n.NodeID)
	}

	metered := false
	if len(page.Changes) > 0 {
		fragment := describeChanges(page.Changes)
		summary := p.dispatcher.Dispatch(ctx, workflow.FlowMetadata, fragment)

		log.Info().
			Str("nodeID", n.NodeID).
			Str("workflowID", workflow.ID).
			Int("delivered", summary.Delivered).
			Int("failed", summary.Failed).
			Msg("Change notification fanned out")

		metered = true
	}

	if token := page.NextToken(); token != "" && token != sub.PageToken {
		if err := p.subscriptions.AdvancePageToken(ctx, n.NodeID, token); err != nil {
			return fmt.Errorf("failed to advance page token: %w", err)
		}
	}

	if metered {
		if err := p.gate.Meter(ctx, ledger); err != nil {
			return err
		}
	}

	return nil
}

func describeChanges(changes []domain.DriveChange) string {
	fragments := make([]string, 0, len(changes))
	for _, change := range changes {
		fragments = append(fragments, change.Describe())
	}

	return strings.Join(fragments, "\n")
}
