package store

import (
	"context"
	"fmt"

	"devicefarm-server/internal/model"
)

const dialogWatcherSelect = `SELECT id, name, conditions, action, status, create_time FROM dialog_watcher`

func scanDialogWatcher(sc scanner) (model.DialogWatcher, error) {
	var w model.DialogWatcher
	err := sc.Scan(&w.ID, &w.Name, &w.Conditions, &w.Action, &w.Status, &w.CreateTime)
	return w, err
}

func (s *Store) SaveDialogWatcher(ctx context.Context, w model.DialogWatcher) (int64, error) {
	if w.Name == "" || w.Conditions == "" || w.Action == "" {
		return 0, invalid("name, conditions and action are required")
	}
	var c columns
	c.set("name", w.Name)
	c.set("conditions", w.Conditions)
	c.set("action", w.Action)
	setOpt(&c, "status", w.Status)
	return c.insert(ctx, s.db, "dialog_watcher")
}

func (s *Store) UpdateDialogWatcher(ctx context.Context, w model.DialogWatcher) error {
	if w.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if w.Name != "" {
		c.set("name", w.Name)
	}
	if w.Conditions != "" {
		c.set("conditions", w.Conditions)
	}
	if w.Action != "" {
		c.set("action", w.Action)
	}
	setOpt(&c, "status", w.Status)
	return c.update(ctx, s.db, "dialog_watcher", w.ID)
}

func (s *Store) ListDialogWatchers(ctx context.Context) ([]model.DialogWatcher, error) {
	rows, err := s.db.QueryContext(ctx, dialogWatcherSelect+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list dialog watchers: %w", err)
	}
	return collect(rows, scanDialogWatcher)
}

func (s *Store) DeleteDialogWatcher(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "dialog_watcher", id)
}
