package domain

import (
	"errors"
	"strconv"
	"time"
)

type Tier string

const (
	Tier_Free    Tier = "Free"
	Tier_Pro     Tier = "Pro"
	Tier_Premium Tier = "Premium"
)

// CreditsUnlimited is the ledger value carried by Premium accounts.
const CreditsUnlimited = "Unlimited"

var ErrLedgerNotFound = errors.New("credit ledger not found")

// CreditLedger is the per-account metering record. Credits is a numeric
// string, or the literal "Unlimited" for Premium accounts.
type CreditLedger struct {
	UserID  string `bson:"_id"`
	Tier    Tier   `bson:"tier"`
	Credits string `bson:"credits"`
}

func (l CreditLedger) Unlimited() bool {
	return l.Tier == Tier_Premium || l.Credits == CreditsUnlimited
}

// Remaining parses the credit balance. Unlimited ledgers report ok with a
// negative count so callers branch on Unlimited first.
func (l CreditLedger) Remaining() (int, bool) {
	if l.Unlimited() {
		return -1, true
	}

	n, err := strconv.Atoi(l.Credits)
	if err != nil {
		return 0, false
	}

	return n, true
}

type AuditEventType string

const (
	AuditEvent_CreditExhausted AuditEventType = "credit_exhausted"
	AuditEvent_ReauthRequired  AuditEventType = "reauth_required"
)

// AuditEntry records teardown-worthy events so the billing collaborator and
// the UI can explain why a subscription silently stopped.
type AuditEntry struct {
	ID         string         `bson:"_id"`
	UserID     string         `bson:"user_id"`
	WorkflowID string         `bson:"workflow_id"`
	NodeID     string         `bson:"node_id"`
	EventType  AuditEventType `bson:"event_type"`
	Detail     string         `bson:"detail"`
	CreatedAt  time.Time      `bson:"created_at"`
}
