package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) GetChatRecord(ctx context.Context, t domain.NodeType, nodeID string) (domain.ChatRecord, error) {
	switch t {
	case domain.NodeType_Discord:
		var node domain.DiscordNode
		if err := s.findNode(ctx, CollectionDiscordNodes, bson.M{"node_id": nodeID}, &node); err != nil {
			return domain.ChatRecord{}, err
		}
		return node.ChatRecord(), nil

	case domain.NodeType_Slack:
		var node domain.SlackNode
		if err := s.findNode(ctx, CollectionSlackNodes, bson.M{"node_id": nodeID}, &node); err != nil {
			return domain.ChatRecord{}, err
		}
		return node.ChatRecord(), nil

	default:
		return domain.ChatRecord{}, fmt.Errorf("unsupported chat node type: %s", t)
	}
}

func (s *Store) GetNotionNode(ctx context.Context, nodeID string) (domain.NotionNode, error) {
	var node domain.NotionNode
	if err := s.findNode(ctx, CollectionNotionNodes, bson.M{"node_id": nodeID}, &node); err != nil {
		return domain.NotionNode{}, err
	}

	return node, nil
}

// FindTriggerRecord resolves an inbound chat event to the trigger node that
// listens on its channel. Every identifying field travels with the event, so
// the lookup is stateless.
func (s *Store) FindTriggerRecord(ctx context.Context, t domain.NodeType, eventType, channelID, teamID string) (domain.ChatRecord, error) {
	filter := bson.M{
		"trigger":    eventType,
		"channel_id": channelID,
	}

	switch t {
	case domain.NodeType_Discord:
		var node domain.DiscordNode
		if err := s.findNode(ctx, CollectionDiscordNodes, filter, &node); err != nil {
			return domain.ChatRecord{}, err
		}
		return node.ChatRecord(), nil

	case domain.NodeType_Slack:
		if teamID != "" {
			filter["team_id"] = teamID
		}
		var node domain.SlackNode
		if err := s.findNode(ctx, CollectionSlackNodes, filter, &node); err != nil {
			return domain.ChatRecord{}, err
		}
		return node.ChatRecord(), nil

	default:
		return domain.ChatRecord{}, fmt.Errorf("unsupported chat node type: %s", t)
	}
}

type driveTriggerDocument struct {
	NodeID      string             `bson:"node_id"`
	Connections domain.Connections `bson:"connections"`
}

func (s *Store) GetDriveTriggerConnections(ctx context.Context, nodeID string) (domain.Connections, error) {
	var doc driveTriggerDocument
	if err := s.findNode(ctx, CollectionDriveTriggers, bson.M{"node_id": nodeID}, &doc); err != nil {
		return domain.Connections{}, err
	}

	return doc.Connections, nil
}

func (s *Store) findNode(ctx context.Context, collection string, filter bson.M, out any) error {
	err := s.database.Collection(collection).FindOne(ctx, filter).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNodeNotFound
		}
		return fmt.Errorf("failed to find node in %s: %w", collection, err)
	}

	return nil
}
