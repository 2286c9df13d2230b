package domain

import "time"

// UrgencyLevel classifies how close a task is to its deadline.
type UrgencyLevel string

const (
	UrgencyOverdue  UrgencyLevel = "overdue"
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyUrgent   UrgencyLevel = "urgent"
	UrgencyWarning  UrgencyLevel = "warning"
	UrgencyNormal   UrgencyLevel = "normal"
)

// Urgency is the derived deadline classification for one task.
type Urgency struct {
	Level     UrgencyLevel
	Remaining time.Duration // negative when overdue
}

// TaskUrgency derives the urgency of a task at the given instant. Tasks
// without a deadline, already done, or archived have no urgency and return
// false.
func TaskUrgency(task Task, now time.Time) (Urgency, bool) {
	if task.Deadline == nil || task.ListID == DoneListID || task.Archived {
		return Urgency{}, false
	}
	remaining := task.Deadline.Sub(now)
	u := Urgency{Remaining: remaining}
	switch {
	case remaining < 0:
		u.Level = UrgencyOverdue
	case remaining <= 2*time.Hour:
		u.Level = UrgencyCritical
	case remaining <= 24*time.Hour:
		u.Level = UrgencyUrgent
	case remaining <= 72*time.Hour:
		u.Level = UrgencyWarning
	default:
		u.Level = UrgencyNormal
	}
	return u, true
}
