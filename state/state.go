// Package state holds the pure mutation operators for one board's in-memory
// replica. Every operator is copy-on-write: callers may keep a reference to
// the input maps for rollback, so inputs are never mutated in place.
package state

import (
	"time"

	"boardsync/domain"
)

// Tasks maps a list id to that list's ordered task sequence.
type Tasks map[string][]domain.Task

// Lists maps a list id to its record.
type Lists map[string]domain.List

func cloneTasks(tasks Tasks) Tasks {
	out := make(Tasks, len(tasks))
	for id, seq := range tasks {
		out[id] = seq
	}
	return out
}

func cloneSeq(seq []domain.Task) []domain.Task {
	out := make([]domain.Task, len(seq))
	copy(out, seq)
	return out
}

func cloneLists(lists Lists) Lists {
	out := make(Lists, len(lists))
	for id, l := range lists {
		out[id] = l
	}
	return out
}

// reindex rewrites each task's position to its index in the sequence, keeping
// the explicit position field the sole source of truth for display order.
func reindex(seq []domain.Task) []domain.Task {
	for i := range seq {
		seq[i].Position = i
	}
	return seq
}

// AddTask validates the task data and appends a new task to the list's
// sequence, preserving the relative order of existing tasks.
func AddTask(tasks Tasks, listID string, data domain.TaskData) (Tasks, domain.Task, error) {
	if err := domain.ValidateTask(data).Err(); err != nil {
		return nil, domain.Task{}, err
	}
	current := tasks[listID]
	task := domain.NewTask(data, listID, len(current))

	out := cloneTasks(tasks)
	seq := make([]domain.Task, 0, len(current)+1)
	seq = append(seq, current...)
	seq = append(seq, task)
	out[listID] = seq
	return out, task, nil
}

// UpdateTask merges the updates into the identified task, re-validates the
// result and replaces the task at its index, preserving sequence position.
func UpdateTask(tasks Tasks, listID, taskID string, updates TaskUpdates) (Tasks, domain.Task, error) {
	seq := tasks[listID]
	idx := indexOf(seq, taskID)
	if idx < 0 {
		return nil, domain.Task{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	merged := updates.Apply(seq[idx])
	if err := domain.ValidateTaskRecord(merged).Err(); err != nil {
		return nil, domain.Task{}, err
	}
	out := cloneTasks(tasks)
	next := cloneSeq(seq)
	next[idx] = merged
	out[listID] = next
	return out, merged, nil
}

// DeleteTask removes exactly one matching task, preserving the order of the
// rest.
func DeleteTask(tasks Tasks, listID, taskID string) (Tasks, error) {
	seq := tasks[listID]
	idx := indexOf(seq, taskID)
	if idx < 0 {
		return nil, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	out := cloneTasks(tasks)
	next := make([]domain.Task, 0, len(seq)-1)
	next = append(next, seq[:idx]...)
	next = append(next, seq[idx+1:]...)
	out[listID] = reindex(next)
	return out, nil
}

// MoveTask removes the task from the source sequence and reinserts it in the
// destination at destIndex, clamped to [0, len(dest)]. A same-list move is
// treated as remove-then-reinsert against the single shrunk sequence, not an
// independent remove and insert against two copies. Crossing into or out of
// the done list sets or clears CompletedAt.
func MoveTask(tasks Tasks, taskID, sourceListID, destListID string, destIndex int) (Tasks, error) {
	source := tasks[sourceListID]
	idx := indexOf(source, taskID)
	if idx < 0 {
		return nil, &domain.NotFoundError{Kind: "task", ID: taskID}
	}

	moved := source[idx]
	now := time.Now().UTC()
	moved.ListID = destListID
	moved.UpdatedAt = now
	if destListID == domain.DoneListID {
		if moved.CompletedAt == nil {
			moved.CompletedAt = &now
		}
	} else {
		moved.CompletedAt = nil
	}

	out := cloneTasks(tasks)

	shrunk := make([]domain.Task, 0, len(source)-1)
	shrunk = append(shrunk, source[:idx]...)
	shrunk = append(shrunk, source[idx+1:]...)

	var dest []domain.Task
	if sourceListID == destListID {
		dest = shrunk
	} else {
		out[sourceListID] = reindex(shrunk)
		dest = cloneSeq(tasks[destListID])
	}

	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(dest) {
		destIndex = len(dest)
	}
	next := make([]domain.Task, 0, len(dest)+1)
	next = append(next, dest[:destIndex]...)
	next = append(next, moved)
	next = append(next, dest[destIndex:]...)
	out[destListID] = reindex(next)
	return out, nil
}

// AddList validates the list data and merges a new list in, positioned after
// all existing lists. The companion empty task sequence is the caller's to
// create.
func AddList(lists Lists, data domain.ListData) (Lists, domain.List, error) {
	if err := domain.ValidateList(data).Err(); err != nil {
		return nil, domain.List{}, err
	}
	list := domain.NewList(data, len(lists))
	out := cloneLists(lists)
	out[list.ID] = list
	return out, list, nil
}

// UpdateList merges the updates into the identified list.
func UpdateList(lists Lists, listID string, updates ListUpdates) (Lists, domain.List, error) {
	current, ok := lists[listID]
	if !ok {
		return nil, domain.List{}, &domain.NotFoundError{Kind: "list", ID: listID}
	}
	merged := updates.Apply(current)
	if err := domain.ValidateList(domain.ListData{Name: merged.Name}).Err(); err != nil {
		return nil, domain.List{}, err
	}
	out := cloneLists(lists)
	out[listID] = merged
	return out, merged, nil
}

// DeleteList removes the list and its task sequence. When moveTasksTo names
// an existing list, the removed list's tasks are appended there with their
// ListID rewritten; otherwise they are discarded. The returned maps are
// consistent with each other and atomic from the caller's point of view.
func DeleteList(lists Lists, tasks Tasks, listID, moveTasksTo string) (Lists, Tasks, error) {
	if _, ok := lists[listID]; !ok {
		return nil, nil, &domain.NotFoundError{Kind: "list", ID: listID}
	}

	outLists := cloneLists(lists)
	delete(outLists, listID)

	outTasks := cloneTasks(tasks)
	orphans := tasks[listID]
	delete(outTasks, listID)

	if moveTasksTo != "" {
		if _, ok := lists[moveTasksTo]; ok && moveTasksTo != listID {
			now := time.Now().UTC()
			target := cloneSeq(tasks[moveTasksTo])
			for _, t := range orphans {
				t.ListID = moveTasksTo
				t.UpdatedAt = now
				target = append(target, t)
			}
			outTasks[moveTasksTo] = reindex(target)
		}
	}
	return outLists, outTasks, nil
}

func indexOf(seq []domain.Task, taskID string) int {
	for i := range seq {
		if seq[i].ID == taskID {
			return i
		}
	}
	return -1
}
