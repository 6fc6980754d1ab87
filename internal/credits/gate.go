package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// ExhaustedCallback notifies the billing collaborator that an account ran out
// of credits and its subscription is being torn down.
type ExhaustedCallback func(userID, workflowID string)

// Gate is the cross-cutting credit check invoked immediately before metered
// dispatch. Denial triggers teardown and an audit entry, never a silent drop.
type Gate struct {
	ledgers     domain.CreditStore
	audit       domain.AuditStore
	onExhausted ExhaustedCallback
}

type GateDependencies struct {
	CreditStore domain.CreditStore
	AuditStore  domain.AuditStore
	OnExhausted ExhaustedCallback
}

func NewGate(deps GateDependencies) *Gate {
	return &Gate{
		ledgers:     deps.CreditStore,
		audit:       deps.AuditStore,
		onExhausted: deps.OnExhausted,
	}
}

// Allowed is the pure gate predicate: unlimited tier, or a positive balance.
func Allowed(ledger domain.CreditLedger) bool {
	remaining, ok := ledger.Remaining()
	if !ok {
		return false
	}

	return ledger.Unlimited() || remaining > 0
}

// Check loads the account's ledger and applies the predicate. A denied check
// returns *QuotaExhaustedError so callers can branch on teardown.
func (g *Gate) Check(ctx context.Context, userID string) (domain.CreditLedger, error) {
	ledger, err := g.ledgers.GetLedger(ctx, userID)
	if err != nil {
		return domain.CreditLedger{}, fmt.Errorf("failed to load credit ledger for %s: %w", userID, err)
	}

	if !Allowed(ledger) {
		return ledger, &domain.QuotaExhaustedError{UserID: userID}
	}

	return ledger, nil
}

// Meter decrements the balance by exactly one for non-unlimited tiers. The
// decrement is atomic in the store.
func (g *Gate) Meter(ctx context.Context, ledger domain.CreditLedger) error {
	if ledger.Unlimited() {
		return nil
	}

	if err := g.ledgers.Decrement(ctx, ledger.UserID); err != nil {
		return fmt.Errorf("failed to decrement credits for %s: %w", ledger.UserID, err)
	}

	return nil
}

// OnCreditExhausted records the denial and notifies the billing collaborator.
func (g *Gate) OnCreditExhausted(ctx context.Context, userID, workflowID, nodeID string) {
	entry := domain.AuditEntry{
		ID:         xid.New().String(),
		UserID:     userID,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		EventType:  domain.AuditEvent_CreditExhausted,
		Detail:     "credits exhausted, subscription stopped",
		CreatedAt:  time.Now().UTC(),
	}

	if err := g.audit.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to append credit exhaustion audit entry")
	}

	if g.onExhausted != nil {
		g.onExhausted(userID, workflowID)
	}
}
