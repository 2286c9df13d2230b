package state

import (
	"sort"
	"strings"
	"time"

	"boardsync/domain"
)

// Filter narrows a task search.
type Filter struct {
	Priority    domain.Priority
	AssignedTo  string
	HasDeadline bool
	ListID      string
}

var priorityRank = map[domain.Priority]int{
	domain.PriorityUrgent: 4,
	domain.PriorityHigh:   3,
	domain.PriorityMedium: 2,
	domain.PriorityLow:    1,
}

// SearchTasks returns tasks matching the term and filter, ordered by
// descending priority. The term matches text and description,
// case-insensitively.
func SearchTasks(tasks Tasks, term string, filter Filter) []domain.Task {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []domain.Task
	for _, t := range AllTasks(tasks) {
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Text), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.HasDeadline && t.Deadline == nil {
			continue
		}
		if filter.ListID != "" && t.ListID != filter.ListID {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] > priorityRank[out[j].Priority]
	})
	return out
}

// OverdueTasks returns open tasks whose deadline has passed.
func OverdueTasks(tasks Tasks, now time.Time) []domain.Task {
	var out []domain.Task
	for _, t := range AllTasks(tasks) {
		if t.Deadline == nil || t.ListID == domain.DoneListID {
			continue
		}
		if t.Deadline.Before(now) {
			out = append(out, t)
		}
	}
	return out
}

// TasksDueSoon returns open tasks due within the window starting at now.
func TasksDueSoon(tasks Tasks, now time.Time, window time.Duration) []domain.Task {
	threshold := now.Add(window)
	var out []domain.Task
	for _, t := range AllTasks(tasks) {
		if t.Deadline == nil || t.ListID == domain.DoneListID {
			continue
		}
		if t.Deadline.After(now) && !t.Deadline.After(threshold) {
			out = append(out, t)
		}
	}
	return out
}

// Stats summarizes one board's lists and tasks.
type Stats struct {
	TotalLists     int                     `json:"totalLists"`
	TotalTasks     int                     `json:"totalTasks"`
	CompletedTasks int                     `json:"completedTasks"`
	OverdueTasks   int                     `json:"overdueTasks"`
	CompletionRate int                     `json:"completionRate"`
	ByPriority     map[domain.Priority]int `json:"tasksByPriority"`
	ByList         map[string]int          `json:"tasksByList"`
}

// BoardStats derives the analytics counters from current state.
func BoardStats(lists Lists, tasks Tasks, now time.Time) Stats {
	all := AllTasks(tasks)
	stats := Stats{
		TotalLists: len(lists),
		TotalTasks: len(all),
		ByPriority: make(map[domain.Priority]int),
		ByList:     make(map[string]int),
	}
	for _, t := range all {
		stats.ByPriority[t.Priority]++
		if t.ListID == domain.DoneListID {
			stats.CompletedTasks++
		}
	}
	stats.OverdueTasks = len(OverdueTasks(tasks, now))
	for id, seq := range tasks {
		stats.ByList[id] = len(seq)
	}
	if stats.TotalTasks > 0 {
		stats.CompletionRate = int(float64(stats.CompletedTasks)/float64(stats.TotalTasks)*100 + 0.5)
	}
	return stats
}
