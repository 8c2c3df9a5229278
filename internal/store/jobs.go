package store

import (
	"context"
	"database/sql"
	"fmt"

	"devicefarm-server/internal/model"
)

// Helpers shared by publish_job and train_job, which have the same status
// lifecycle.

func jobWhere(f model.JobFilter) where {
	var w where
	if f.Status != nil {
		w.add("status = ?", int(*f.Status))
	}
	if f.GroupID != nil {
		w.add("group_id = ?", *f.GroupID)
	}
	if f.AccountID != nil {
		w.add("account_id = ?", *f.AccountID)
	}
	return w
}

// setStatus records a status change together with whatever the transition
// derives from it.
func (s *Store) setStatus(c *columns, st *model.JobStatus) {
	if st == nil {
		return
	}
	c.set("status", int(*st))
	if end, ok := st.Transition(s.now()); ok {
		c.set("end_time", end)
	}
}

func (s *Store) countJobsByStatus(ctx context.Context, table string) ([]model.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM "+table+" GROUP BY status ORDER BY status")
	if err != nil {
		return nil, fmt.Errorf("count %s by status: %w", table, err)
	}
	return collect(rows, func(sc scanner) (model.StatusCount, error) {
		var c model.StatusCount
		err := sc.Scan(&c.Status, &c.Count)
		return c, err
	})
}

// retryFailedJobs moves every failed row back to pending and touches nothing
// else.
func (s *Store) retryFailedJobs(ctx context.Context, table string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET status = ? WHERE status = ?",
		int(model.JobPending), int(model.JobFailed))
	if err != nil {
		return 0, fmt.Errorf("retry failed %s: %w", table, err)
	}
	return res.RowsAffected()
}

// deleteAllJobs empties the table and resets its autoincrement counter, so
// the next row gets id 1 again.
func (s *Store) deleteAllJobs(ctx context.Context, table string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete all %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
		return nil
	})
}
