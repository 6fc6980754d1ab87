package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/kiteflow/kiteflow/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
)

// The OAuth snapshot lives inside the subscription row so a refresh and the
// watch channel it serves never drift into separate documents.

func (s *Store) GetToken(ctx context.Context, nodeID string) (domain.OAuthCredential, error) {
	sub, err := s.Get(ctx, nodeID)
	if err != nil {
		return domain.OAuthCredential{}, err
	}

	return sub.Credential, nil
}

func (s *Store) SetToken(ctx context.Context, nodeID, accessToken string, expiry time.Time) error {
	result, err := s.database.Collection(CollectionSubscriptions).UpdateOne(ctx,
		bson.M{"_id": nodeID},
		bson.M{"$set": bson.M{
			"credential.access_token": accessToken,
			"credential.expiry":       expiry,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to store refreshed token: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}
