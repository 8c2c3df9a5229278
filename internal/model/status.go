package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimeLayout is how every timestamp column is stored: local wall time, no zone.
const TimeLayout = "2006-01-02 15:04:05"

func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

type JobStatus int

const (
	JobPending   JobStatus = 0
	JobRunning   JobStatus = 1
	JobCompleted JobStatus = 2
	JobFailed    JobStatus = 3
)

func (s JobStatus) Valid() bool {
	return s >= JobPending && s <= JobFailed
}

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// Transition returns the end_time a job gets when it is moved to s. Only a
// move to JobCompleted stamps one; the previous status is irrelevant.
func (s JobStatus) Transition(now time.Time) (endTime string, stamped bool) {
	if s != JobCompleted {
		return "", false
	}
	return FormatTime(now), true
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("status must be an integer: %w", err)
	}
	st := JobStatus(v)
	if !st.Valid() {
		return fmt.Errorf("unknown job status %d", v)
	}
	*s = st
	return nil
}

func ParseJobStatus(raw string) (JobStatus, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid status %q", raw)
	}
	st := JobStatus(v)
	if !st.Valid() {
		return 0, fmt.Errorf("unknown job status %d", v)
	}
	return st, nil
}
