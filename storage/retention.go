package storage

import (
	"context"
	"fmt"
	"time"
)

// Retention defaults. Old workflows are removed in small batches with a
// pause in between so a large backlog never holds the write lock long
// enough to stall approvals.
const (
	RetentionDays      = 60
	retentionBatchSize = 1000
	retentionPause     = 100 * time.Millisecond
)

// PurgeExpired deletes workflows older than the retention window. Child
// rows cascade. It returns the number of workflows removed.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = RetentionDays * 24 * time.Hour
	}
	cutoff := s.now().Add(-retention).Unix()

	var total int64
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM workflows WHERE workflow_id IN (
				SELECT workflow_id FROM workflows WHERE timestamp < ? LIMIT ?
			)`, cutoff, retentionBatchSize)
		if err != nil {
			return total, fmt.Errorf("purge expired workflows: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("purge rows affected: %w", err)
		}
		total += deleted
		if deleted < retentionBatchSize {
			return total, nil
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(retentionPause):
		}
	}
}
