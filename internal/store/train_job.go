package store

import (
	"context"
	"fmt"

	"devicefarm-server/internal/model"
)

const trainJobSelect = `SELECT t.id, t.group_id, t.account_id, t.like_probable, t.follow_probable,
	t.collect_probable, t.status, t.start_time, t.end_time, t.create_time, a.device, a.username
	FROM train_job t`

func scanTrainJob(sc scanner) (model.TrainJob, error) {
	var j model.TrainJob
	err := sc.Scan(&j.ID, &j.GroupID, &j.AccountID, &j.LikeProbable, &j.FollowProbable,
		&j.CollectProbable, &j.Status, &j.StartTime, &j.EndTime, &j.CreateTime, &j.Device, &j.Username)
	return j, err
}

func (s *Store) trainJobColumns(j model.TrainJob, c *columns) error {
	if err := validTime("start_time", j.StartTime); err != nil {
		return err
	}
	for name, p := range map[string]*int{
		"like_probable":    j.LikeProbable,
		"follow_probable":  j.FollowProbable,
		"collect_probable": j.CollectProbable,
	} {
		if p != nil && (*p < 0 || *p > 100) {
			return invalid("%s must be between 0 and 100", name)
		}
	}
	setOpt(c, "group_id", j.GroupID)
	setOpt(c, "like_probable", j.LikeProbable)
	setOpt(c, "follow_probable", j.FollowProbable)
	setOpt(c, "collect_probable", j.CollectProbable)
	setOpt(c, "start_time", j.StartTime)
	s.setStatus(c, j.Status)
	return nil
}

func (s *Store) SaveTrainJob(ctx context.Context, j model.TrainJob) (int64, error) {
	if j.AccountID <= 0 {
		return 0, invalid("account_id is required")
	}
	now := s.nowString()
	var c columns
	c.set("account_id", j.AccountID)
	if j.StartTime == nil {
		j.StartTime = &now
	}
	if err := s.trainJobColumns(j, &c); err != nil {
		return 0, err
	}
	c.set("create_time", now)
	return c.insert(ctx, s.db, "train_job")
}

// UpdateTrainJob applies the given fields. Setting status to completed also
// stamps end_time with the current local time.
func (s *Store) UpdateTrainJob(ctx context.Context, j model.TrainJob) error {
	if j.ID <= 0 {
		return invalid("id is required")
	}
	var c columns
	if j.AccountID > 0 {
		c.set("account_id", j.AccountID)
	}
	if err := s.trainJobColumns(j, &c); err != nil {
		return err
	}
	return c.update(ctx, s.db, "train_job", j.ID)
}

func (s *Store) ListTrainJobs(ctx context.Context) ([]model.TrainJob, error) {
	q := trainJobSelect + `
	LEFT JOIN account a ON t.account_id = a.id
	ORDER BY t.id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list train jobs: %w", err)
	}
	return collect(rows, scanTrainJob)
}

func (s *Store) ListRunnableTrainJobs(ctx context.Context, agentIP string) ([]model.TrainJob, error) {
	q := trainJobSelect + `
	JOIN account a ON t.account_id = a.id
	JOIN device d ON a.device = d.serial
	WHERE t.status = ? AND t.start_time <= ? AND d.online = 1 AND d.agent_ip = ?
	ORDER BY t.id ASC`
	rows, err := s.db.QueryContext(ctx, q, int(model.JobPending), s.nowString(), agentIP)
	if err != nil {
		return nil, fmt.Errorf("list runnable train jobs: %w", err)
	}
	return collect(rows, scanTrainJob)
}

// CountTrainJobsForSlot counts jobs created today for an account at the given
// start time, so a schedule slot is only ever planned once per day.
func (s *Store) CountTrainJobsForSlot(ctx context.Context, accountID int64, startTime string) (int, error) {
	var w where
	w.add("account_id = ?", accountID)
	w.add("start_time = ?", startTime)
	w.add("DATE(create_time) = DATE(?)", s.nowString())
	return s.count(ctx, "train_job", w)
}

func (s *Store) CountTrainJobs(ctx context.Context, f model.JobFilter) (int, error) {
	return s.count(ctx, "train_job", jobWhere(f))
}

func (s *Store) CountTrainJobsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	return s.countJobsByStatus(ctx, "train_job")
}

func (s *Store) RetryFailedTrainJobs(ctx context.Context) (int64, error) {
	return s.retryFailedJobs(ctx, "train_job")
}

func (s *Store) DeleteTrainJob(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "train_job", id)
}

func (s *Store) DeleteAllTrainJobs(ctx context.Context) error {
	return s.deleteAllJobs(ctx, "train_job")
}
