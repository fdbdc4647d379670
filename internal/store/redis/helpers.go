package redis

import (
	"fmt"
	"strconv"

	"jobstats/internal/store"

	"github.com/google/uuid"
)

func jobFromMap(m map[string]string) (*store.Job, error) {
	id, err := uuid.Parse(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: parse job id: %w", err)
	}

	job := &store.Job{
		ID:         id,
		UUID:       m["uuid"],
		Connection: m["connection"],
		Queue:      m["queue"],
		Status:     store.JobStatus(m["status"]),
	}
	if job.QueuedAt, err = parseTime(m["queued_at"]); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, err
	}
	return job, nil
}

// attemptToMap flattens an attempt into hash fields.
// Optional fields are written as empty strings so an update clears them.
func attemptToMap(a *store.Attempt) map[string]any {
	m := map[string]any{
		"id":                   a.ID.String(),
		"job_id":               a.JobID.String(),
		"attempt_number":       a.AttemptNumber,
		"status":               string(a.Status),
		"started_at":           formatTime(a.StartedAt),
		"finished_at":          "",
		"waiting_duration":     strconv.FormatFloat(a.WaitingDuration, 'f', -1, 64),
		"handling_duration":    "",
		"exception_message":    "",
		"has_exception":        "0",
		"exception_call_stack": string(a.ExceptionCallStack),
		"created_at":           formatTime(a.CreatedAt),
		"updated_at":           formatTime(a.UpdatedAt),
	}
	if a.FinishedAt != nil {
		m["finished_at"] = formatTime(*a.FinishedAt)
	}
	if a.HandlingDuration != nil {
		m["handling_duration"] = strconv.FormatFloat(*a.HandlingDuration, 'f', -1, 64)
	}
	if a.ExceptionMessage != nil {
		m["exception_message"] = *a.ExceptionMessage
		m["has_exception"] = "1"
	}
	return m
}

func attemptFromMap(m map[string]string) (*store.Attempt, error) {
	id, err := uuid.Parse(m["id"])
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: parse attempt id: %w", err)
	}
	jobID, err := uuid.Parse(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: parse attempt job id: %w", err)
	}
	number, err := strconv.Atoi(m["attempt_number"])
	if err != nil {
		return nil, fmt.Errorf("jobstats/redis: parse attempt number: %w", err)
	}

	a := &store.Attempt{
		ID:            id,
		JobID:         jobID,
		AttemptNumber: number,
		Status:        store.AttemptStatus(m["status"]),
	}
	if a.StartedAt, err = parseTime(m["started_at"]); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, err
	}
	if v := m["waiting_duration"]; v != "" {
		if a.WaitingDuration, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("jobstats/redis: parse waiting duration: %w", err)
		}
	}
	if v := m["finished_at"]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		a.FinishedAt = &t
	}
	if v := m["handling_duration"]; v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("jobstats/redis: parse handling duration: %w", err)
		}
		a.HandlingDuration = &d
	}
	if m["has_exception"] == "1" {
		msg := m["exception_message"]
		a.ExceptionMessage = &msg
	}
	if v := m["exception_call_stack"]; v != "" {
		a.ExceptionCallStack = []byte(v)
	}
	return a, nil
}
