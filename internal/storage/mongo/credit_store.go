package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) GetLedger(ctx context.Context, userID string) (domain.CreditLedger, error) {
	var ledger domain.CreditLedger

	err := s.database.Collection(CollectionCreditLedgers).FindOne(ctx, bson.M{"_id": userID}).Decode(&ledger)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CreditLedger{}, domain.ErrLedgerNotFound
		}
		return domain.CreditLedger{}, fmt.Errorf("failed to find credit ledger: %w", err)
	}

	return ledger, nil
}

// Decrement takes exactly one credit in a single conditional update. The
// balance is stored as a numeric string, so the pipeline converts, subtracts
// and converts back inside the server. Unlimited ledgers never match the
// filter and are never decremented.
func (s *Store) Decrement(ctx context.Context, userID string) error {
	filter := bson.M{
		"_id":     userID,
		"credits": bson.M{"$ne": domain.CreditsUnlimited},
		"$expr":   bson.M{"$gt": bson.A{bson.M{"$toInt": "$credits"}, 0}},
	}

	update := bson.A{
		bson.M{"$set": bson.M{
			"credits": bson.M{"$toString": bson.M{"$subtract": bson.A{bson.M{"$toInt": "$credits"}, 1}}},
		}},
	}

	result := s.database.Collection(CollectionCreditLedgers).FindOneAndUpdate(ctx, filter, update)
	err := result.Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to decrement credits: %w", err)
	}

	// No match means either the ledger is missing, became unlimited, or the
	// balance hit zero. Re-read once to tell the cases apart.
	ledger, getErr := s.GetLedger(ctx, userID)
	if getErr != nil {
		return getErr
	}
	if ledger.Unlimited() {
		return nil
	}

	return &domain.QuotaExhaustedError{UserID: userID}
}
