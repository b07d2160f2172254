package models

import "time"

// ScheduleStatus is the state of a deferred remediation action.
//
//	pending --(due & tick)--> executing --(success)--> completed
//	                          executing --(failure)--> failed
//	pending --(cancel)--> cancelled
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleExecuting ScheduleStatus = "executing"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case ScheduleCompleted, ScheduleFailed, ScheduleCancelled:
		return true
	default:
		return false
	}
}

// validScheduleTransitions defines allowed (from → to) transitions.
var validScheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	SchedulePending:   {ScheduleExecuting, ScheduleCancelled},
	ScheduleExecuting: {ScheduleCompleted, ScheduleFailed},
}

// CanTransition reports whether moving from `from` to `to` is allowed.
func CanTransition(from, to ScheduleStatus) bool {
	for _, next := range validScheduleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ScheduledAction is a durable deferred remediation action, owned exclusively
// by the scheduler's storage. Error is set only when Status is failed.
type ScheduledAction struct {
	ID        string               `json:"id"         db:"id"`
	ExecuteAt time.Time            `json:"execute_at" db:"execute_at"`
	Status    ScheduleStatus       `json:"status"     db:"status"`
	Error     string               `json:"error,omitempty" db:"error"`
	Action    RecommendationAction `json:"action"     db:"-"`
	ActionRaw string               `json:"-"          db:"action"` // JSON-encoded, stored in DB
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" db:"updated_at"`
}
