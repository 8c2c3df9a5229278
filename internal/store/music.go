package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"devicefarm-server/internal/model"
)

const musicSelect = `SELECT id, name, author, url, duration, create_time FROM music`

func scanMusic(sc scanner) (model.Music, error) {
	var m model.Music
	err := sc.Scan(&m.ID, &m.Name, &m.Author, &m.URL, &m.Duration, &m.CreateTime)
	return m, err
}

func (s *Store) SaveMusic(ctx context.Context, m model.Music) (int64, error) {
	if m.Name == "" || m.URL == "" {
		return 0, invalid("name and url are required")
	}
	var c columns
	c.set("name", m.Name)
	c.set("url", m.URL)
	setOpt(&c, "author", m.Author)
	setOpt(&c, "duration", m.Duration)
	return c.insert(ctx, s.db, "music")
}

func (s *Store) UpdateMusic(ctx context.Context, m model.Music) error {
	if m.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if m.Name != "" {
		c.set("name", m.Name)
	}
	if m.URL != "" {
		c.set("url", m.URL)
	}
	setOpt(&c, "author", m.Author)
	setOpt(&c, "duration", m.Duration)
	return c.update(ctx, s.db, "music", m.ID)
}

func (s *Store) ListMusic(ctx context.Context) ([]model.Music, error) {
	rows, err := s.db.QueryContext(ctx, musicSelect+" ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("list music: %w", err)
	}
	return collect(rows, scanMusic)
}

func (s *Store) RandomMusic(ctx context.Context) (model.Music, error) {
	m, err := scanMusic(s.db.QueryRowContext(ctx, musicSelect+" ORDER BY RANDOM() LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Music{}, fmt.Errorf("music: %w", ErrNotFound)
	}
	if err != nil {
		return model.Music{}, fmt.Errorf("random music: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMusic(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "music", id)
}
