package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"devicefarm-server/internal/model"
)

const materialSelect = `SELECT id, group_id, name, md5, used, create_time FROM material`

func scanMaterial(sc scanner) (model.Material, error) {
	var m model.Material
	err := sc.Scan(&m.ID, &m.GroupID, &m.Name, &m.MD5, &m.Used, &m.CreateTime)
	return m, err
}

func materialWhere(f model.MaterialFilter) where {
	var w where
	if f.Used != nil {
		w.add("used = ?", *f.Used)
	}
	if f.GroupID != nil {
		w.add("group_id = ?", *f.GroupID)
	}
	return w
}

// SaveMaterials inserts a whole upload batch atomically and returns the new
// ids in input order.
func (s *Store) SaveMaterials(ctx context.Context, materials []model.Material) ([]int64, error) {
	for _, m := range materials {
		if m.Name == "" || m.MD5 == "" {
			return nil, invalid("material name and md5 are required")
		}
	}

	ids := make([]int64, 0, len(materials))
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range materials {
			var c columns
			c.set("name", m.Name)
			c.set("md5", m.MD5)
			setOpt(&c, "group_id", m.GroupID)
			setOpt(&c, "used", m.Used)
			id, err := c.insert(ctx, tx, "material")
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateMaterialUsed sets the used flag on every material stored under name.
func (s *Store) UpdateMaterialUsed(ctx context.Context, name string, used int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE material SET used = ? WHERE name = ?`, used, name)
	if err != nil {
		return fmt.Errorf("update material used: %w", err)
	}
	return requireAffected(res, "material")
}

func markMaterialUsed(ctx context.Context, ex execer, id int64) error {
	res, err := ex.ExecContext(ctx, `UPDATE material SET used = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark material used: %w", err)
	}
	if err := requireAffected(res, "material"); err != nil {
		return invalid("material %d does not exist", id)
	}
	return nil
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (model.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, materialSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Material{}, fmt.Errorf("material %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Material{}, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

func (s *Store) ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, error) {
	w := materialWhere(f)
	rows, err := s.db.QueryContext(ctx, materialSelect+w.String()+" ORDER BY id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return collect(rows, scanMaterial)
}

func (s *Store) CountMaterials(ctx context.Context, f model.MaterialFilter) (int, error) {
	return s.count(ctx, "material", materialWhere(f))
}

// NextUnusedMaterial returns the oldest unused material of a group.
func (s *Store) NextUnusedMaterial(ctx context.Context, groupID int64) (model.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx,
		materialSelect+" WHERE used = 0 AND group_id = ? ORDER BY id ASC LIMIT 1", groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Material{}, fmt.Errorf("unused material in group %d: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return model.Material{}, fmt.Errorf("next unused material: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "material", id)
}
