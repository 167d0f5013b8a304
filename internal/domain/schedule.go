package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrScheduleNotPending   = errors.New("schedule is not pending")
	ErrScheduleNotFailed    = errors.New("schedule is not failed")
	ErrScheduleStateChanged = errors.New("schedule status changed concurrently")
	ErrInvalidTransition    = errors.New("invalid schedule status transition")
	ErrInvalidFilter        = errors.New("invalid schedule filter")
	ErrInvalidRecurrence    = errors.New("invalid recurrence pattern")
	ErrNoOccurrences        = errors.New("recurrence produces no dates")
	ErrEmptyBatch           = errors.New("batch has no content ids")
	ErrMissingActor         = errors.New("actor identity is required")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExecuted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions lists every status edge a schedule may take. FAILED->EXECUTED and
// FAILED->FAILED are only reachable through an explicit retry.
var transitions = map[Status][]Status{
	StatusPending: {StatusExecuted, StatusFailed, StatusCancelled},
	StatusFailed:  {StatusExecuted, StatusFailed},
}

// CanTransitionTo reports whether a schedule in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionArchive   Action = "archive"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPublish, ActionUnpublish, ActionArchive:
		return true
	}
	return false
}

// Schedule is a deferred instruction to change one content item's status.
type Schedule struct {
	ID            string
	ContentID     string
	ContentType   ContentType
	Action        Action
	ScheduledDate time.Time
	Timezone      string // advisory only, ScheduledDate is compared in absolute time

	Status        Status
	ExecutedAt    *time.Time
	FailureReason *string

	CreatedBy string
	Metadata  map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether a pending schedule should run at now.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Status == StatusPending && !s.ScheduledDate.After(now)
}

// Metadata keys written by the recurring-schedule path.
const (
	MetaIsRecurring       = "isRecurring"
	MetaRecurrencePattern = "recurrencePattern"
	MetaOccurrence        = "occurrence"
	MetaBatchIndex        = "batchIndex"
)

// ScheduleStats backs the CMS dashboard counters.
type ScheduleStats struct {
	Pending   int
	Executed  int
	Failed    int
	Cancelled int
	DueNow    int
}

func (s ScheduleStats) Total() int {
	return s.Pending + s.Executed + s.Failed + s.Cancelled
}
