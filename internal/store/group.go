package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"devicefarm-server/internal/model"
)

const groupTable = "`group`"

const groupSelect = `SELECT id, name, title, tags, auto_publish, publish_start_time, auto_train,
	publish_type, product_link, train_start_time FROM ` + groupTable

func scanGroup(sc scanner) (model.Group, error) {
	var g model.Group
	err := sc.Scan(&g.ID, &g.Name, &g.Title, &g.Tags, &g.AutoPublish, &g.PublishStartTime,
		&g.AutoTrain, &g.PublishType, &g.ProductLink, &g.TrainStartTime)
	return g, err
}

func groupColumns(g model.Group, c *columns) error {
	if g.PublishStartTime != nil {
		slots, err := model.ParseSlots(*g.PublishStartTime)
		if err != nil || len(slots) != 1 {
			return invalid("publish_start_time must be a single HH:MM")
		}
		g.PublishStartTime = &slots[0]
	}
	if g.TrainStartTime != nil {
		slots, err := model.ParseSlots(*g.TrainStartTime)
		if err != nil {
			return invalid("train_start_time: %v", err)
		}
		joined := strings.Join(slots, ",")
		g.TrainStartTime = &joined
	}
	setOpt(c, "title", g.Title)
	setOpt(c, "tags", g.Tags)
	setOpt(c, "auto_publish", g.AutoPublish)
	setOpt(c, "publish_start_time", g.PublishStartTime)
	setOpt(c, "auto_train", g.AutoTrain)
	setOpt(c, "publish_type", g.PublishType)
	setOpt(c, "product_link", g.ProductLink)
	setOpt(c, "train_start_time", g.TrainStartTime)
	return nil
}

func (s *Store) SaveGroup(ctx context.Context, g model.Group) (int64, error) {
	if g.Name == "" {
		return 0, invalid("name is required")
	}
	var c columns
	c.set("name", g.Name)
	if err := groupColumns(g, &c); err != nil {
		return 0, err
	}
	return c.insert(ctx, s.db, groupTable)
}

func (s *Store) UpdateGroup(ctx context.Context, g model.Group) error {
	if g.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if g.Name != "" {
		c.set("name", g.Name)
	}
	if err := groupColumns(g, &c); err != nil {
		return err
	}
	return c.update(ctx, s.db, groupTable, g.ID)
}

func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, groupSelect+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return collect(rows, scanGroup)
}

func (s *Store) GetGroup(ctx context.Context, id int64) (model.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, groupSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, groupTable, id)
}
