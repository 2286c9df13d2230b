package state

import (
	"sort"

	"boardsync/domain"
)

// OrderedLists returns the lists sorted by (position, id). Display order is
// derived from the explicit position field, never from map iteration order.
func OrderedLists(lists Lists) []domain.List {
	out := make([]domain.List, 0, len(lists))
	for _, l := range lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AllTasks flattens the task sequences of every list.
func AllTasks(tasks Tasks) []domain.Task {
	var out []domain.Task
	for _, seq := range tasks {
		out = append(out, seq...)
	}
	return out
}
