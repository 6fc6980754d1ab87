package mongo

import (
	"context"
	"fmt"

	"github.com/kiteflow/kiteflow/internal/domain"
)

func (s *Store) Append(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.database.Collection(CollectionAuditLog).InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}
