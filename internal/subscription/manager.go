package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// DefaultRenewalLead is how long before the provider-declared expiry the
// renewal job fires.
const DefaultRenewalLead = 10 * time.Minute

// Manager owns the full lifecycle of one Drive watch channel:
// Idle -> Listening -> (Renewing -> Listening | Stopped) ; Listening -> Stopped.
type Manager struct {
	subscriptions domain.SubscriptionStore
	workflows     domain.WorkflowStore
	refresher     *TokenRefresher
	drive         DriveAPI
	jobs          domain.RenewalJobStore
	audit         domain.AuditStore

	notificationAddress string
	renewalLead         time.Duration
	now                 func() time.Time
}

type ManagerDependencies struct {
	SubscriptionStore   domain.SubscriptionStore
	WorkflowStore       domain.WorkflowStore
	TokenRefresher      *TokenRefresher
	DriveAPI            DriveAPI
	RenewalJobStore     domain.RenewalJobStore
	AuditStore          domain.AuditStore
	NotificationAddress string
	RenewalLead         time.Duration
}

func NewManager(deps ManagerDependencies) *Manager {
	lead := deps.RenewalLead
	if lead == 0 {
		lead = DefaultRenewalLead
	}

	return &Manager{
		subscriptions:       deps.SubscriptionStore,
		workflows:           deps.WorkflowStore,
		refresher:           deps.TokenRefresher,
		drive:               deps.DriveAPI,
		jobs:                deps.RenewalJobStore,
		audit:               deps.AuditStore,
		notificationAddress: deps.NotificationAddress,
		renewalLead:         lead,
		now:                 time.Now,
	}
}

// ConfigureParams are the user-submitted filter settings that create the
// subscription row. The row starts idle; Start opens the channel.
type ConfigureParams struct {
	NodeID     string
	UserID     string
	WorkflowID string
	Credential domain.OAuthCredential
	Filter     domain.WatchFilter
}

func (m *Manager) Configure(ctx context.Context, p ConfigureParams) error {
	sub := domain.DriveSubscription{
		NodeID:     p.NodeID,
		UserID:     p.UserID,
		WorkflowID: p.WorkflowID,
		Credential: p.Credential,
		Filter:     p.Filter,
	}

	existing, err := m.subscriptions.Get(ctx, p.NodeID)
	switch {
	case err == nil:
		// Re-submitting filter settings keeps the live channel identity.
		sub.ChannelID = existing.ChannelID
		sub.ResourceID = existing.ResourceID
		sub.PageToken = existing.PageToken
		sub.IsListening = existing.IsListening
		sub.ExpiresAt = existing.ExpiresAt
	case !errors.Is(err, domain.ErrSubscriptionNotFound):
		// A failed read must not masquerade as a first-time configure and
		// wipe the live channel snapshot.
		return fmt.Errorf("failed to load subscription %s: %w", p.NodeID, err)
	}

	if err := m.subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	return nil
}

// Start validates token freshness, obtains a feed cursor on first start,
// opens a new channel under a fresh channelId and schedules renewal strictly
// before the provider-declared expiry.
func (m *Manager) Start(ctx context.Context, nodeID string) error {
	sub, err := m.subscriptions.Get(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %s: %w", nodeID, err)
	}

	cred, err := m.RefreshCredential(ctx, &sub)
	if err != nil {
		return err
	}

	pageToken := sub.PageToken
	if pageToken == "" {
		pageToken, err = m.drive.GetStartPageToken(ctx, cred)
		if err != nil {
			return fmt.Errorf("failed to obtain feed cursor: %w", err)
		}
	}

	channelID := uuid.NewString()

	result, err := m.drive.Watch(ctx, cred, sub.Filter, channelID, m.notificationAddress, pageToken)
	if err != nil {
		return fmt.Errorf("failed to start watch channel for node %s: %w", nodeID, err)
	}

	if err := m.subscriptions.ActivateChannel(ctx, nodeID, channelID, result.ResourceID, result.Expiration, pageToken); err != nil {
		return fmt.Errorf("failed to persist watch channel: %w", err)
	}

	if !result.Expiration.IsZero() {
		runAt := result.Expiration.Add(-m.renewalLead)
		if !runAt.After(m.now()) {
			// The channel expires inside the lead window. Make the job due
			// immediately so the next scan renews strictly before expiry.
			runAt = m.now()
		}

		if err := m.jobs.Schedule(ctx, nodeID, runAt); err != nil {
			return fmt.Errorf("failed to schedule renewal: %w", err)
		}
	}

	log.Info().
		Str("nodeID", nodeID).
		Str("channelID", channelID).
		Time("expiresAt", result.Expiration).
		Msg("Watch channel started")

	return nil
}

// EnsureListening opens the watch channel unless a healthy one is already
// live. Publish goes through this so re-publishing a workflow never orphans
// the channel the configure step opened.
func (m *Manager) EnsureListening(ctx context.Context, nodeID string) error {
	sub, err := m.subscriptions.Get(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %s: %w", nodeID, err)
	}

	if sub.IsListening && !sub.Broken() {
		return nil
	}

	return m.Start(ctx, nodeID)
}

// Renew is the renewal job body. It re-reads current state: a workflow that
// is still published and still triggered by this node gets a fresh channel,
// anything else stops the subscription. That makes renewal self-terminating
// after unpublish or retarget without synchronous timer cancellation.
func (m *Manager) Renew(ctx context.Context, nodeID string) error {
	sub, err := m.subscriptions.Get(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load subscription %s: %w", nodeID, err)
	}

	if sub.Broken() {
		log.Warn().Str("nodeID", nodeID).Msg("Subscription has no page token while listening, stopping")
		return m.Stop(ctx, nodeID)
	}

	workflow, err := m.workflows.GetWorkflow(ctx, sub.WorkflowID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			log.Info().Str("nodeID", nodeID).Str("workflowID", sub.WorkflowID).Msg("Workflow deleted, stopping channel")
			return m.Stop(ctx, nodeID)
		}
		// A transient read failure must not tear down a healthy channel; the
		// claimed job becomes runnable again after the claim TTL.
		return fmt.Errorf("failed to load workflow %s: %w", sub.WorkflowID, err)
	}
	if !workflow.TriggersNode(nodeID) {
		log.Info().Str("nodeID", nodeID).Str("workflowID", sub.WorkflowID).Msg("Workflow no longer triggers this node, stopping channel")
		return m.Stop(ctx, nodeID)
	}

	if err := m.Start(ctx, nodeID); err != nil {
		if domain.IsReauthRequired(err) {
			return m.disableForReauth(ctx, sub, err)
		}
		return err
	}

	return nil
}

// Stop is a best-effort teardown and is idempotent: stopping a stopped or
// missing subscription is not an error. It may race an in-flight renewal.
func (m *Manager) Stop(ctx context.Context, nodeID string) error {
	sub, err := m.subscriptions.Get(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load subscription %s: %w", nodeID, err)
	}

	if sub.ChannelID != "" && sub.ResourceID != "" {
		if err := m.drive.Stop(ctx, sub.Credential, sub.ChannelID, sub.ResourceID); err != nil {
			log.Warn().Err(err).Str("nodeID", nodeID).Str("channelID", sub.ChannelID).Msg("Best-effort channel stop failed")
		}
	}

	if err := m.subscriptions.MarkStopped(ctx, nodeID); err != nil {
		return fmt.Errorf("failed to mark subscription stopped: %w", err)
	}

	if err := m.jobs.Delete(ctx, nodeID); err != nil {
		log.Warn().Err(err).Str("nodeID", nodeID).Msg("Failed to delete renewal job")
	}

	log.Info().Str("nodeID", nodeID).Msg("Watch channel stopped")

	return nil
}

// RefreshCredential runs the at-most-once token refresh and folds the result
// back into the subscription's credential snapshot.
func (m *Manager) RefreshCredential(ctx context.Context, sub *domain.DriveSubscription) (domain.OAuthCredential, error) {
	cred, err := m.refresher.EnsureFresh(ctx, sub.NodeID, sub.Credential)
	if err != nil {
		return domain.OAuthCredential{}, err
	}

	if cred != sub.Credential {
		sub.Credential = cred
		if err := m.subscriptions.SetCredential(ctx, sub.NodeID, cred); err != nil {
			return domain.OAuthCredential{}, fmt.Errorf("failed to persist credential snapshot: %w", err)
		}
	}

	return cred, nil
}

// DisableForReauth tears the subscription down after a rejected refresh
// token and records why, so the UI can tell the user to reconnect the
// account instead of showing a generic failure.
func (m *Manager) DisableForReauth(ctx context.Context, nodeID string, cause error) error {
	sub, err := m.subscriptions.Get(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}

	return m.disableForReauth(ctx, sub, cause)
}

func (m *Manager) disableForReauth(ctx context.Context, sub domain.DriveSubscription, cause error) error {
	if err := m.Stop(ctx, sub.NodeID); err != nil {
		return err
	}

	entry := domain.AuditEntry{
		ID:         xid.New().String(),
		UserID:     sub.UserID,
		WorkflowID: sub.WorkflowID,
		NodeID:     sub.NodeID,
		EventType:  domain.AuditEvent_ReauthRequired,
		Detail:     cause.Error(),
		CreatedAt:  m.now().UTC(),
	}

	if err := m.audit.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("nodeID", sub.NodeID).Msg("Failed to append reauth audit entry")
	}

	return cause
}
