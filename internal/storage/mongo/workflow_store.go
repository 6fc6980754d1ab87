package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type workflowDocument struct {
	ID            string                    `bson:"_id"`
	UserID        string                    `bson:"user_id"`
	Name          string                    `bson:"name"`
	ParentTrigger string                    `bson:"parent_trigger"`
	ParentID      string                    `bson:"parent_id"`
	Published     bool                      `bson:"published"`
	FlowMetadata  []domain.ActionDescriptor `bson:"flow_metadata"`
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	var doc workflowDocument

	err := s.database.Collection(CollectionWorkflows).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Workflow{}, domain.ErrWorkflowNotFound
		}
		return domain.Workflow{}, fmt.Errorf("failed to find workflow: %w", err)
	}

	return domain.Workflow{
		ID:            doc.ID,
		UserID:        doc.UserID,
		Name:          doc.Name,
		ParentTrigger: domain.TriggerType(doc.ParentTrigger),
		ParentID:      doc.ParentID,
		Published:     doc.Published,
		FlowMetadata:  doc.FlowMetadata,
	}, nil
}

func (s *Store) SetPublished(ctx context.Context, id string, published bool) error {
	result, err := s.database.Collection(CollectionWorkflows).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"published": published}},
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow publish state: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrWorkflowNotFound
	}

	return nil
}

func (s *Store) SaveFlowMetadata(ctx context.Context, id string, descriptors []domain.ActionDescriptor) error {
	result, err := s.database.Collection(CollectionWorkflows).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"flow_metadata": descriptors}},
	)
	if err != nil {
		return fmt.Errorf("failed to save flow metadata: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrWorkflowNotFound
	}

	return nil
}
