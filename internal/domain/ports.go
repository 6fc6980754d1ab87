package domain

import (
	"context"
	"time"
)

// WorkflowStore is the workflow side of the graph store. Editor CRUD lives
// outside this engine; we only read workflows and write publish artifacts.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (Workflow, error)
	SetPublished(ctx context.Context, id string, published bool) error
	SaveFlowMetadata(ctx context.Context, id string, descriptors []ActionDescriptor) error
}

// NodeStore reads destination node records and resolves inbound chat events
// to the trigger record that owns them.
type NodeStore interface {
	GetChatRecord(ctx context.Context, t NodeType, nodeID string) (ChatRecord, error)
	GetNotionNode(ctx context.Context, nodeID string) (NotionNode, error)
	FindTriggerRecord(ctx context.Context, t NodeType, eventType, channelID, teamID string) (ChatRecord, error)
	GetDriveTriggerConnections(ctx context.Context, nodeID string) (Connections, error)
}

// SubscriptionStore persists watch-channel rows. AdvancePageToken must be
// atomic in the store, not read-then-write in application code; the channel
// and credential writes are field-targeted for the same reason, so they can
// never clobber a cursor a concurrent notification advanced.
type SubscriptionStore interface {
	Get(ctx context.Context, nodeID string) (DriveSubscription, error)
	Save(ctx context.Context, sub DriveSubscription) error
	// ActivateChannel records a freshly opened channel's identity and expiry.
	// initialPageToken is written only when the row has no cursor yet; an
	// existing cursor always wins.
	ActivateChannel(ctx context.Context, nodeID, channelID, resourceID string, expiresAt time.Time, initialPageToken string) error
	SetCredential(ctx context.Context, nodeID string, cred OAuthCredential) error
	AdvancePageToken(ctx context.Context, nodeID, pageToken string) error
	MarkStopped(ctx context.Context, nodeID string) error
}

// CredentialStore holds per-node OAuth token snapshots.
type CredentialStore interface {
	GetToken(ctx context.Context, nodeID string) (OAuthCredential, error)
	SetToken(ctx context.Context, nodeID, accessToken string, expiry time.Time) error
}

// CreditStore meters usage. Decrement is atomic and returns
// *QuotaExhaustedError once the balance reaches zero; unlimited tiers are
// never decremented.
type CreditStore interface {
	GetLedger(ctx context.Context, userID string) (CreditLedger, error)
	Decrement(ctx context.Context, userID string) error
}

type AuditStore interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// RenewalJob is the durable replacement for an in-memory renewal timer. The
// row survives restarts; a scanner claims due rows and runs the renewal body.
type RenewalJob struct {
	NodeID    string    `bson:"_id"`
	RunAt     time.Time `bson:"run_at"`
	ClaimedAt time.Time `bson:"claimed_at,omitempty"`
}

type RenewalJobStore interface {
	Schedule(ctx context.Context, nodeID string, runAt time.Time) error
	ClaimDue(ctx context.Context, now time.Time) ([]RenewalJob, error)
	Delete(ctx context.Context, nodeID string) error
}

// ChatEventKey identifies one inbound chat event class for fan-out lookup.
type ChatEventKey struct {
	NodeType  NodeType
	EventType string
	ChannelID string
	TeamID    string
}

// FanOut is one resolved dispatch list together with the account and
// workflow that own it.
type FanOut struct {
	UserID      string             `json:"user_id"`
	WorkflowID  string             `json:"workflow_id"`
	Descriptors []ActionDescriptor `json:"descriptors"`
}

// FanOutCache caches published fan-out lists so the chat-event webhook does
// not re-walk the graph per event. A miss falls back to the resolver.
type FanOutCache interface {
	Get(ctx context.Context, key ChatEventKey) (FanOut, bool, error)
	Set(ctx context.Context, key ChatEventKey, fanOut FanOut) error
	Invalidate(ctx context.Context, key ChatEventKey) error
}
