package store

import (
	"context"
	"fmt"

	"devicefarm-server/internal/model"
)

const accountSelect = `SELECT a.id, a.group_id, a.email, a.pwd, a.username, a.fans, a.shop_creator, a.device,
	a.register_time, a.last_login_time FROM account a`

func scanAccount(sc scanner) (model.Account, error) {
	var a model.Account
	err := sc.Scan(&a.ID, &a.GroupID, &a.Email, &a.Pwd, &a.Username, &a.Fans, &a.ShopCreator, &a.Device,
		&a.RegisterTime, &a.LastLoginTime)
	return a, err
}

func accountColumns(a model.Account, c *columns) error {
	if err := validTime("register_time", a.RegisterTime); err != nil {
		return err
	}
	if err := validTime("last_login_time", a.LastLoginTime); err != nil {
		return err
	}
	setOpt(c, "group_id", a.GroupID)
	setOpt(c, "username", a.Username)
	setOpt(c, "fans", a.Fans)
	setOpt(c, "shop_creator", a.ShopCreator)
	setOpt(c, "device", a.Device)
	setOpt(c, "register_time", a.RegisterTime)
	setOpt(c, "last_login_time", a.LastLoginTime)
	return nil
}

func (s *Store) SaveAccount(ctx context.Context, a model.Account) (int64, error) {
	if a.Email == "" {
		return 0, invalid("email is required")
	}
	if a.Pwd == "" {
		return 0, invalid("pwd is required")
	}
	var c columns
	c.set("email", a.Email)
	c.set("pwd", a.Pwd)
	if err := accountColumns(a, &c); err != nil {
		return 0, err
	}
	return c.insert(ctx, s.db, "account")
}

func (s *Store) UpdateAccount(ctx context.Context, a model.Account) error {
	if a.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if a.Email != "" {
		c.set("email", a.Email)
	}
	if a.Pwd != "" {
		c.set("pwd", a.Pwd)
	}
	if err := accountColumns(a, &c); err != nil {
		return err
	}
	return c.update(ctx, s.db, "account", a.ID)
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelect+" ORDER BY a.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (s *Store) ListAccountsByDevice(ctx context.Context, serial string) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelect+" WHERE a.device = ? ORDER BY a.id ASC", serial)
	if err != nil {
		return nil, fmt.Errorf("list accounts by device: %w", err)
	}
	return collect(rows, scanAccount)
}

func (s *Store) ListAccountsByGroup(ctx context.Context, groupID int64) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountSelect+" WHERE a.group_id = ? ORDER BY a.id ASC", groupID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by group: %w", err)
	}
	return collect(rows, scanAccount)
}

// ListAutoTrainAccounts returns the accounts an agent should train on its own
// schedule: their group has auto_train set and their device is online and
// managed by agentIP.
func (s *Store) ListAutoTrainAccounts(ctx context.Context, agentIP string) ([]model.Account, error) {
	q := accountSelect + `
	JOIN ` + groupTable + ` g ON a.group_id = g.id
	JOIN device d ON a.device = d.serial
	WHERE g.auto_train = 1 AND d.online = 1 AND d.agent_ip = ?
	ORDER BY a.id ASC`
	rows, err := s.db.QueryContext(ctx, q, agentIP)
	if err != nil {
		return nil, fmt.Errorf("list auto train accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "account", id)
}
