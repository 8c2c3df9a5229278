package store

import (
	"context"
	"database/sql"
	"fmt"

	"devicefarm-server/internal/model"
)

const publishJobSelect = `SELECT p.id, p.group_id, p.material_id, p.account_id, p.title, p.tags, p.status,
	p.start_time, p.end_time, p.publish_type, p.product_link, p.create_time,
	m.name, a.email, a.device
	FROM publish_job p
	LEFT JOIN material m ON p.material_id = m.id`

func scanPublishJob(sc scanner) (model.PublishJob, error) {
	var j model.PublishJob
	err := sc.Scan(&j.ID, &j.GroupID, &j.MaterialID, &j.AccountID, &j.Title, &j.Tags, &j.Status,
		&j.StartTime, &j.EndTime, &j.PublishType, &j.ProductLink, &j.CreateTime,
		&j.MaterialName, &j.Email, &j.Device)
	return j, err
}

func (s *Store) publishJobColumns(j model.PublishJob, c *columns) error {
	if err := validTime("start_time", j.StartTime); err != nil {
		return err
	}
	setOpt(c, "group_id", j.GroupID)
	setOpt(c, "title", j.Title)
	setOpt(c, "tags", j.Tags)
	setOpt(c, "start_time", j.StartTime)
	setOpt(c, "publish_type", j.PublishType)
	setOpt(c, "product_link", j.ProductLink)
	s.setStatus(c, j.Status)
	return nil
}

// CreatePublishJob inserts the job and marks its material used in one
// transaction; a job is never left pointing at a material still offered as
// unused.
func (s *Store) CreatePublishJob(ctx context.Context, j model.PublishJob) (int64, error) {
	if j.MaterialID <= 0 {
		return 0, invalid("material_id is required")
	}
	if j.AccountID <= 0 {
		return 0, invalid("account_id is required")
	}

	now := s.nowString()
	var c columns
	c.set("material_id", j.MaterialID)
	c.set("account_id", j.AccountID)
	if j.StartTime == nil {
		j.StartTime = &now
	}
	if err := s.publishJobColumns(j, &c); err != nil {
		return 0, err
	}
	c.set("create_time", now)

	var id int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if id, err = c.insert(ctx, tx, "publish_job"); err != nil {
			return err
		}
		return markMaterialUsed(ctx, tx, j.MaterialID)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) UpdatePublishJob(ctx context.Context, j model.PublishJob) error {
	if j.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if j.MaterialID > 0 {
		c.set("material_id", j.MaterialID)
	}
	if j.AccountID > 0 {
		c.set("account_id", j.AccountID)
	}
	if err := s.publishJobColumns(j, &c); err != nil {
		return err
	}
	return c.update(ctx, s.db, "publish_job", j.ID)
}

func (s *Store) ListPublishJobs(ctx context.Context) ([]model.PublishJob, error) {
	q := publishJobSelect + `
	LEFT JOIN account a ON p.account_id = a.id
	ORDER BY p.id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list publish jobs: %w", err)
	}
	return collect(rows, scanPublishJob)
}

// ListRunnablePublishJobs is what an agent polls: pending jobs whose start
// time has arrived and whose account sits on an online device it manages.
func (s *Store) ListRunnablePublishJobs(ctx context.Context, agentIP string) ([]model.PublishJob, error) {
	q := publishJobSelect + `
	JOIN account a ON p.account_id = a.id
	JOIN device d ON a.device = d.serial
	WHERE p.status = ? AND p.start_time <= ? AND d.online = 1 AND d.agent_ip = ?
	ORDER BY p.id ASC`
	rows, err := s.db.QueryContext(ctx, q, int(model.JobPending), s.nowString(), agentIP)
	if err != nil {
		return nil, fmt.Errorf("list runnable publish jobs: %w", err)
	}
	return collect(rows, scanPublishJob)
}

// CountPublishJobsForSlot counts jobs created today for an account at the
// given start time.
func (s *Store) CountPublishJobsForSlot(ctx context.Context, accountID int64, startTime string) (int, error) {
	var w where
	w.add("account_id = ?", accountID)
	w.add("start_time = ?", startTime)
	w.add("DATE(create_time) = DATE(?)", s.nowString())
	return s.count(ctx, "publish_job", w)
}

func (s *Store) CountPublishJobs(ctx context.Context, f model.JobFilter) (int, error) {
	return s.count(ctx, "publish_job", jobWhere(f))
}

func (s *Store) CountPublishJobsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	return s.countJobsByStatus(ctx, "publish_job")
}

func (s *Store) RetryFailedPublishJobs(ctx context.Context) (int64, error) {
	return s.retryFailedJobs(ctx, "publish_job")
}

func (s *Store) DeletePublishJob(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "publish_job", id)
}

func (s *Store) DeleteAllPublishJobs(ctx context.Context) error {
	return s.deleteAllJobs(ctx, "publish_job")
}
