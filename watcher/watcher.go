// Package watcher polls local task state on an interval, classifies deadline
// urgency, and emits user-facing alerts. It only consumes board state; it
// never mutates it.
package watcher

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/state"
)

// Alert is one user-facing deadline notification.
type Alert struct {
	ID      string              `json:"id"`
	TaskID  string              `json:"taskId"`
	Level   domain.UrgencyLevel `json:"level"`
	Message string              `json:"message"`
	Task    domain.Task         `json:"task"`
	At      time.Time           `json:"at"`
}

// Deduper suppresses repeat alerts for the same task and level within a
// window. Add returns true when the key was newly recorded.
type Deduper interface {
	Add(ctx context.Context, key string) (bool, error)
}

// Config tunes a Watcher.
type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

// Watcher derives deadline alerts from a snapshot source.
type Watcher struct {
	source   func() state.Tasks
	deduper  Deduper
	emit     func(Alert)
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time
}

// New creates a watcher over the given task source. emit runs on the
// watcher's goroutine, once per newly deduped alert.
func New(source func() state.Tasks, deduper Deduper, emit func(Alert), logger *log.Logger, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		source:   source,
		deduper:  deduper,
		emit:     emit,
		logger:   logger,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
}

// Run checks immediately, then on every interval tick, until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check performs a single poll over current task state.
func (w *Watcher) Check(ctx context.Context) {
	now := w.now().UTC()
	for _, task := range state.AllTasks(w.source()) {
		urgency, ok := domain.TaskUrgency(task, now)
		if !ok {
			continue
		}
		switch urgency.Level {
		case domain.UrgencyOverdue, domain.UrgencyCritical, domain.UrgencyUrgent:
		default:
			continue
		}

		key := task.ID + ":" + string(urgency.Level)
		fresh, err := w.deduper.Add(ctx, key)
		if err != nil {
			w.logger.WithError(err).Warn("alert dedupe unavailable, emitting anyway")
			fresh = true
		}
		if !fresh {
			continue
		}
		w.emit(Alert{
			ID:      key,
			TaskID:  task.ID,
			Level:   urgency.Level,
			Message: alertMessage(task, urgency),
			Task:    task,
			At:      now,
		})
	}
}

func alertMessage(task domain.Task, u domain.Urgency) string {
	switch u.Level {
	case domain.UrgencyOverdue:
		return fmt.Sprintf("Task %q is overdue", task.Text)
	case domain.UrgencyCritical:
		mins := int(u.Remaining.Minutes())
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("Task %q is due in %d minutes", task.Text, mins)
	default:
		hours := int(u.Remaining.Hours())
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("Task %q is due in %d hours", task.Text, hours)
	}
}
