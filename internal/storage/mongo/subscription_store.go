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

func (s *Store) Get(ctx context.Context, nodeID string) (domain.DriveSubscription, error) {
	var sub domain.DriveSubscription

	err := s.database.Collection(CollectionSubscriptions).FindOne(ctx, bson.M{"_id": nodeID}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.DriveSubscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.DriveSubscription{}, fmt.Errorf("failed to find subscription: %w", err)
	}

	return sub, nil
}

func (s *Store) Save(ctx context.Context, sub domain.DriveSubscription) error {
	_, err := s.database.Collection(CollectionSubscriptions).ReplaceOne(ctx,
		bson.M{"_id": sub.NodeID},
		sub,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	return nil
}

// ActivateChannel writes the new channel identity with a field-targeted
// pipeline update. The page token is set only when the row carries no cursor
// yet, so a cursor advanced by a concurrent notification is never regressed
// to the snapshot the caller read before opening the channel.
func (s *Store) ActivateChannel(ctx context.Context, nodeID, channelID, resourceID string, expiresAt time.Time, initialPageToken string) error {
	update := bson.A{bson.M{"$set": bson.M{
		"channel_id":   channelID,
		"resource_id":  resourceID,
		"is_listening": true,
		"expires_at":   expiresAt,
		"page_token": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$page_token", ""}}, ""}},
			initialPageToken,
			"$page_token",
		}},
	}}}

	result, err := s.database.Collection(CollectionSubscriptions).UpdateOne(ctx,
		bson.M{"_id": nodeID},
		update,
	)
	if err != nil {
		return fmt.Errorf("failed to activate watch channel: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// SetCredential replaces only the credential sub-document.
func (s *Store) SetCredential(ctx context.Context, nodeID string, cred domain.OAuthCredential) error {
	result, err := s.database.Collection(CollectionSubscriptions).UpdateOne(ctx,
		bson.M{"_id": nodeID},
		bson.M{"$set": bson.M{"credential": cred}},
	)
	if err != nil {
		return fmt.Errorf("failed to store credential snapshot: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// AdvancePageToken moves the feed cursor with a single conditional update so
// concurrent notification handlers never interleave a read-then-write.
func (s *Store) AdvancePageToken(ctx context.Context, nodeID, pageToken string) error {
	result := s.database.Collection(CollectionSubscriptions).FindOneAndUpdate(ctx,
		bson.M{"_id": nodeID, "is_listening": true},
		bson.M{"$set": bson.M{"page_token": pageToken}},
	)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrSubscriptionNotFound
		}
		return fmt.Errorf("failed to advance page token: %w", err)
	}

	return nil
}

// MarkStopped clears the listening state and the channel identity. Repeating
// it on an already-stopped row is a no-op, which keeps Stop idempotent.
func (s *Store) MarkStopped(ctx context.Context, nodeID string) error {
	_, err := s.database.Collection(CollectionSubscriptions).UpdateOne(ctx,
		bson.M{"_id": nodeID},
		bson.M{"$set": bson.M{
			"is_listening": false,
			"channel_id":   "",
			"resource_id":  "",
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark subscription stopped: %w", err)
	}

	return nil
}
