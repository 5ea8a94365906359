package model

import (
	"errors"
	"fmt"
	"time"
)

// Status is the canonical task lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSubmitted  Status = "SUBMITTED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var (
	ErrTerminalTask      = errors.New("task is in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusSubmitted},
	StatusSubmitted:  {StatusSubmitted, StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is one submitted generation job as seen by the gateway.
type Task struct {
	LocalTaskID    string    `json:"local_task_id"`
	ProviderTaskID string    `json:"provider_task_id"`
	Provider       Provider  `json:"provider"`
	ModelFamily    string    `json:"model_family"`
	Modality       Modality  `json:"modality"`
	Status         Status    `json:"status"`
	ResultVideoURL string    `json:"result_video_url,omitempty"`
	ResultCoverURL string    `json:"result_cover_url,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand to callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Transition moves the task to next. Terminal tasks never move.
func (t *Task) Transition(next Status, at time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalTask, t.Status)
	}
	if !CanTransition(t.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = at
	return nil
}

// Complete marks the task completed. A completed task always carries a
// video URL.
func (t *Task) Complete(videoURL, coverURL string, at time.Time) error {
	if videoURL == "" {
		return fmt.Errorf("%w: completed task requires a video url", ErrInvalidTransition)
	}
	if err := t.Transition(StatusCompleted, at); err != nil {
		return err
	}
	t.ResultVideoURL = videoURL
	t.ResultCoverURL = coverURL
	t.ErrorDetail = ""
	return nil
}

// Fail marks the task failed with the provider's explanation.
func (t *Task) Fail(detail string, at time.Time) error {
	if err := t.Transition(StatusFailed, at); err != nil {
		return err
	}
	t.ErrorDetail = detail
	return nil
}
