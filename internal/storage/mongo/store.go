package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionWorkflows     = "workflows"
	CollectionDiscordNodes  = "discord_nodes"
	CollectionSlackNodes    = "slack_nodes"
	CollectionNotionNodes   = "notion_nodes"
	CollectionDriveTriggers = "drive_triggers"
	CollectionSubscriptions = "drive_subscriptions"
	CollectionCreditLedgers = "credit_ledgers"
	CollectionAuditLog      = "audit_log"
	CollectionRenewalJobs   = "renewal_jobs"
)

// Store bundles the engine's MongoDB collections behind the domain store
// interfaces.
type Store struct {
	database *mongo.Database
}

type StoreDependencies struct {
	URI          string
	DatabaseName string
}

func NewStore(ctx context.Context, deps StoreDependencies) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(deps.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{
		database: client.Database(deps.DatabaseName),
	}

	store.ensureIndexes()

	return store, nil
}

// NewStoreWithDatabase wires an already-connected database, used by tests.
func NewStoreWithDatabase(database *mongo.Database) *Store {
	return &Store{database: database}
}

func (s *Store) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	nodeIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "node_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "trigger", Value: 1},
				{Key: "channel_id", Value: 1},
			},
		},
	}

	for _, name := range []string{CollectionDiscordNodes, CollectionSlackNodes, CollectionNotionNodes} {
		if _, err := s.database.Collection(name).Indexes().CreateMany(ctx, nodeIndexes); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("Failed to create node indexes")
		}
	}

	renewalIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "run_at", Value: 1},
			},
		},
	}

	if _, err := s.database.Collection(CollectionRenewalJobs).Indexes().CreateMany(ctx, renewalIndexes); err != nil {
		log.Warn().Err(err).Msg("Failed to create renewal job indexes")
	}
}
