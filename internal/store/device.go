package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"devicefarm-server/internal/model"
)

const deviceSelect = `SELECT id, serial, forward_port, online, ip, agent_ip, master_ip, init, update_time FROM device`

func scanDevice(sc scanner) (model.Device, error) {
	var d model.Device
	err := sc.Scan(&d.ID, &d.Serial, &d.ForwardPort, &d.Online, &d.IP, &d.AgentIP, &d.MasterIP, &d.Init, &d.UpdateTime)
	return d, err
}

// SaveDevice is the heartbeat upsert: a known serial has its reported fields
// and update_time refreshed, an unknown one is inserted.
func (s *Store) SaveDevice(ctx context.Context, d model.Device) error {
	if d.Serial == "" {
		return invalid("serial is required")
	}
	if d.AgentIP == "" {
		return invalid("agent_ip is required")
	}

	var c columns
	c.set("serial", d.Serial)
	c.set("agent_ip", d.AgentIP)
	c.set("master_ip", d.MasterIP)
	setOpt(&c, "forward_port", d.ForwardPort)
	setOpt(&c, "online", d.Online)
	setOpt(&c, "ip", d.IP)
	setOpt(&c, "init", d.Init)
	c.set("update_time", s.nowString())

	updates := make([]string, 0, len(c.names)-1)
	for _, n := range c.names[1:] {
		updates = append(updates, n+" = excluded."+n)
	}
	q := c.insertSQL("device") + " ON CONFLICT(serial) DO UPDATE SET " + strings.Join(updates, ", ")
	if _, err := s.db.ExecContext(ctx, q, c.args...); err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

// ListOnlineDevices returns online devices, optionally narrowed to one serial
// and/or one agent, in id order. That order is the fan-out order.
func (s *Store) ListOnlineDevices(ctx context.Context, serial, agentIP *string) ([]model.Device, error) {
	var w where
	w.conds = append(w.conds, "online = 1")
	if serial != nil && *serial != "" {
		w.add("serial = ?", *serial)
	}
	if agentIP != nil && *agentIP != "" {
		w.add("agent_ip = ?", *agentIP)
	}
	rows, err := s.db.QueryContext(ctx, deviceSelect+w.String()+" ORDER BY id ASC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("list online devices: %w", err)
	}
	return collect(rows, scanDevice)
}

func (s *Store) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx, deviceSelect+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return collect(rows, scanDevice)
}

func (s *Store) UpdateDeviceInit(ctx context.Context, serial string, init int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE device SET init = ? WHERE serial = ?`, init, serial)
	if err != nil {
		return fmt.Errorf("update device init: %w", err)
	}
	return requireAffected(res, "device")
}

func (s *Store) UpdateDeviceOnline(ctx context.Context, serial string, online bool) error {
	flag := 0
	if online {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE device SET online = ?, update_time = ? WHERE serial = ?`,
		flag, s.nowString(), serial)
	if err != nil {
		return fmt.Errorf("update device online: %w", err)
	}
	return requireAffected(res, "device")
}

// MarkStaleDevicesOffline flips every online device whose last heartbeat is
// older than before. It returns how many were changed.
func (s *Store) MarkStaleDevicesOffline(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE device SET online = 0 WHERE online = 1 AND update_time < ?`,
		model.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("mark stale devices: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteDevice(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "device", id)
}
