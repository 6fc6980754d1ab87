package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// claimTTL is how long a claimed renewal job stays invisible to other
// scanners. A job whose claimant crashed becomes claimable again afterwards.
const claimTTL = 5 * time.Minute

func (s *Store) Schedule(ctx context.Context, nodeID string, runAt time.Time) error {
	_, err := s.database.Collection(CollectionRenewalJobs).UpdateOne(ctx,
		bson.M{"_id": nodeID},
		bson.M{"$set": bson.M{
			"run_at":     runAt,
			"claimed_at": time.Time{},
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule renewal job: %w", err)
	}

	return nil
}

// ClaimDue atomically claims every due, unclaimed job. Each claim is a
// FindOneAndUpdate so two scanner instances never run the same renewal.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) ([]domain.RenewalJob, error) {
	filter := bson.M{
		"run_at": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"claimed_at": bson.M{"$exists": false}},
			bson.M{"claimed_at": bson.M{"$lte": now.Add(-claimTTL)}},
		},
	}

	var claimed []domain.RenewalJob
	for {
		var job domain.RenewalJob
		err := s.database.Collection(CollectionRenewalJobs).FindOneAndUpdate(ctx,
			filter,
			bson.M{"$set": bson.M{"claimed_at": now}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&job)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return claimed, nil
			}
			return claimed, fmt.Errorf("failed to claim renewal job: %w", err)
		}

		claimed = append(claimed, job)
	}
}

func (s *Store) Delete(ctx context.Context, nodeID string) error {
	_, err := s.database.Collection(CollectionRenewalJobs).DeleteOne(ctx, bson.M{"_id": nodeID})
	if err != nil {
		return fmt.Errorf("failed to delete renewal job: %w", err)
	}

	return nil
}
