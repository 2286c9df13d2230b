// Package engine implements the optimistic-update/rollback cycle every
// mutating board action goes through: apply the mutation to the local replica
// synchronously, issue a narrow-path remote write, and on failure restore the
// prior state and surface a classified error. Remote snapshots arriving
// through the subscription channel replace local state wholesale and always
// win over unconfirmed optimistic state.
package engine

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/state"
	"boardsync/storage"
)

// User is the current signed-in identity, as exposed by the auth collaborator.
type User struct {
	ID    string
	Email string
}

// Identity resolves the current user. Implementations return an error when no
// user is signed in; the engine converts that into an AuthError.
type Identity interface {
	CurrentUser() (User, error)
}

// Store is the slice of the remote document store the engine writes through.
type Store interface {
	Apply(ctx context.Context, ref storage.BoardRef, set map[string]any, clear []string) error
	Fetch(ctx context.Context, ref storage.BoardRef) (domain.Document, error)
	Delete(ctx context.Context, ref storage.BoardRef) error
	Init(ctx context.Context, ref storage.BoardRef, doc domain.Document) (bool, error)
}

type unsubscriber interface {
	Unsubscribe()
}

// Session owns one board's in-memory replica for the duration of a board
// view. Only two writers touch the replica: intents issued through the
// session, and snapshots from the subscription channel. Create via
// Registry.Open and release with Close.
type Session struct {
	ref    storage.BoardRef
	store  Store
	auth   Identity
	logger *log.Logger

	mu       sync.Mutex
	board    domain.Board
	settings domain.Settings
	members  map[string]domain.Member
	lists    state.Lists
	tasks    state.Tasks

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}

	sub       unsubscriber
	closeOnce sync.Once
}

func newSession(ref storage.BoardRef, store Store, auth Identity, logger *log.Logger) *Session {
	return &Session{
		ref:      ref,
		store:    store,
		auth:     auth,
		logger:   logger,
		members:  make(map[string]domain.Member),
		lists:    make(state.Lists),
		tasks:    make(state.Tasks),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Ref addresses the session's board document.
func (s *Session) Ref() storage.BoardRef { return s.ref }

// Snapshot returns a copy of the current replica.
func (s *Session) Snapshot() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentLocked()
}

func (s *Session) documentLocked() domain.Document {
	doc := domain.Document{
		Board:    s.board,
		Settings: s.settings,
		Members:  make(map[string]domain.Member, len(s.members)),
		Lists:    make(map[string]domain.List, len(s.lists)),
		Tasks:    make(map[string][]domain.Task, len(s.tasks)),
	}
	for k, v := range s.members {
		doc.Members[k] = v
	}
	for k, v := range s.lists {
		doc.Lists[k] = v
	}
	for k, v := range s.tasks {
		doc.Tasks[k] = append([]domain.Task(nil), v...)
	}
	return doc
}

// ApplySnapshot replaces the replica wholesale with an authoritative remote
// copy. A snapshot always wins over earlier unconfirmed optimistic state.
func (s *Session) ApplySnapshot(doc domain.Document) {
	s.mu.Lock()
	s.board = doc.Board
	s.settings = doc.Settings
	s.members = doc.Members
	s.lists = state.Lists(doc.Lists)
	s.tasks = state.Tasks(doc.Tasks)
	s.mu.Unlock()
	s.notifyWatchers()
}

// Watch registers for change notifications. The returned channel receives a
// tick after every replica change; read the new state via Snapshot. The
// cancel function must be called when the watcher is done.
func (s *Session) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()
	cancel := func() {
		s.watchMu.Lock()
		delete(s.watchers, ch)
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) notifyWatchers() {
	s.watchMu.Lock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.watchMu.Unlock()
}

// Close releases the session and stops its subscription, if any. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
	})
}

// commit runs steps 4-5 of the reconciliation protocol: resolve the current
// user, issue the narrow-path remote write, and on any failure run the
// caller's rollback before surfacing the classified error. Local state is
// already mutated when commit runs.
func (s *Session) commit(ctx context.Context, set map[string]any, clear []string, rollback func()) error {
	fail := func(err error) error {
		s.mu.Lock()
		rollback()
		s.mu.Unlock()
		s.notifyWatchers()
		s.logger.WithError(err).WithField("board", s.ref.BoardID).Warn("remote write failed, rolled back")
		return err
	}

	if _, err := s.auth.CurrentUser(); err != nil {
		return fail(&AuthError{Reason: err.Error()})
	}
	if err := s.store.Apply(ctx, s.ref, set, clear); err != nil {
		return fail(&TransportError{Err: err})
	}
	return nil
}

// AddTask appends a new task to the list, optimistically and then remotely.
func (s *Session) AddTask(ctx context.Context, listID string, data domain.TaskData) (domain.Task, error) {
	s.mu.Lock()
	if _, ok := s.lists[listID]; !ok {
		s.mu.Unlock()
		return domain.Task{}, &domain.NotFoundError{Kind: "list", ID: listID}
	}
	original := s.tasks
	next, task, err := state.AddTask(s.tasks, listID, data)
	if err != nil {
		s.mu.Unlock()
		return domain.Task{}, err
	}
	s.tasks = next
	s.mu.Unlock()
	s.notifyWatchers()

	err = s.commit(ctx,
		map[string]any{storage.TasksPath(listID): next[listID]}, nil,
		func() { s.tasks = original })
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask merges field updates into an existing task.
func (s *Session) UpdateTask(ctx context.Context, listID, taskID string, updates state.TaskUpdates) (domain.Task, error) {
	s.mu.Lock()
	original := s.tasks
	next, task, err := state.UpdateTask(s.tasks, listID, taskID, updates)
	if err != nil {
		s.mu.Unlock()
		return domain.Task{}, err
	}
	s.tasks = next
	s.mu.Unlock()
	s.notifyWatchers()

	err = s.commit(ctx,
		map[string]any{storage.TasksPath(listID): next[listID]}, nil,
		func() { s.tasks = original })
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task from its list.
func (s *Session) DeleteTask(ctx context.Context, listID, taskID string) error {
	s.mu.Lock()
	original := s.tasks
	next, err := state.DeleteTask(s.tasks, listID, taskID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.tasks = next
	s.mu.Unlock()
	s.notifyWatchers()

	return s.commit(ctx,
		map[string]any{storage.TasksPath(listID): next[listID]}, nil,
		func() { s.tasks = original })
}

// MoveTask relocates a task, within its list or across lists. The remote
// write carries both affected task sequences and nothing else.
func (s *Session) MoveTask(ctx context.Context, taskID, sourceListID, destListID string, destIndex int) error {
	s.mu.Lock()
	if _, ok := s.lists[destListID]; !ok {
		s.mu.Unlock()
		return &domain.NotFoundError{Kind: "list", ID: destListID}
	}
	original := s.tasks
	next, err := state.MoveTask(s.tasks, taskID, sourceListID, destListID, destIndex)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.tasks = next
	s.mu.Unlock()
	s.notifyWatchers()

	set := map[string]any{storage.TasksPath(destListID): next[destListID]}
	if sourceListID != destListID {
		set[storage.TasksPath(sourceListID)] = next[sourceListID]
	}
	return s.commit(ctx, set, nil, func() { s.tasks = original })
}

// AddList creates a new list with an empty task sequence.
func (s *Session) AddList(ctx context.Context, data domain.ListData) (domain.List, error) {
	s.mu.Lock()
	originalLists, originalTasks := s.lists, s.tasks
	nextLists, list, err := state.AddList(s.lists, data)
	if err != nil {
		s.mu.Unlock()
		return domain.List{}, err
	}
	nextTasks := make(state.Tasks, len(s.tasks)+1)
	for k, v := range s.tasks {
		nextTasks[k] = v
	}
	nextTasks[list.ID] = []domain.Task{}
	s.lists, s.tasks = nextLists, nextTasks
	s.mu.Unlock()
	s.notifyWatchers()

	err = s.commit(ctx,
		map[string]any{
			storage.ListPath(list.ID):  list,
			storage.TasksPath(list.ID): []domain.Task{},
		}, nil,
		func() { s.lists, s.tasks = originalLists, originalTasks })
	if err != nil {
		return domain.List{}, err
	}
	return list, nil
}

// UpdateList merges field updates into an existing list.
func (s *Session) UpdateList(ctx context.Context, listID string, updates state.ListUpdates) (domain.List, error) {
	s.mu.Lock()
	original := s.lists
	next, list, err := state.UpdateList(s.lists, listID, updates)
	if err != nil {
		s.mu.Unlock()
		return domain.List{}, err
	}
	s.lists = next
	s.mu.Unlock()
	s.notifyWatchers()

	err = s.commit(ctx,
		map[string]any{storage.ListPath(listID): list}, nil,
		func() { s.lists = original })
	if err != nil {
		return domain.List{}, err
	}
	return list, nil
}

// DeleteList removes a list. When moveTasksTo names an existing list the
// orphaned tasks are appended there; otherwise they are discarded with the
// list. The remote write clears the deleted sub-paths and rewrites the
// redirect target, atomically.
func (s *Session) DeleteList(ctx context.Context, listID, moveTasksTo string) error {
	s.mu.Lock()
	originalLists, originalTasks := s.lists, s.tasks
	nextLists, nextTasks, err := state.DeleteList(s.lists, s.tasks, listID, moveTasksTo)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.lists, s.tasks = nextLists, nextTasks
	s.mu.Unlock()
	s.notifyWatchers()

	set := map[string]any{}
	if _, ok := nextTasks[moveTasksTo]; ok && moveTasksTo != "" {
		set[storage.TasksPath(moveTasksTo)] = nextTasks[moveTasksTo]
	}
	clear := []string{storage.ListPath(listID), storage.TasksPath(listID)}
	return s.commit(ctx, set, clear,
		func() { s.lists, s.tasks = originalLists, originalTasks })
}

// UpdateBoard merges metadata updates (name, color) into the board record.
func (s *Session) UpdateBoard(ctx context.Context, name *string, color *int) error {
	s.mu.Lock()
	original := s.board
	next := s.board
	if name != nil {
		next.Name = *name
	}
	if color != nil {
		next.Color = *color
	}
	s.board = next
	s.mu.Unlock()
	s.notifyWatchers()

	set := map[string]any{}
	if name != nil {
		set["name"] = next.Name
	}
	if color != nil {
		set["color"] = next.Color
	}
	return s.commit(ctx, set, nil, func() { s.board = original })
}

// InviteMember records a pending member on the board.
func (s *Session) InviteMember(ctx context.Context, email string, role domain.Role) (domain.Member, error) {
	user, err := s.auth.CurrentUser()
	if err != nil {
		return domain.Member{}, &AuthError{Reason: err.Error()}
	}
	member := domain.NewMember(email, role, user.ID)
	member.Status = domain.MemberPending

	s.mu.Lock()
	original, had := s.members[email]
	s.members[email] = member
	s.mu.Unlock()
	s.notifyWatchers()

	err = s.commit(ctx,
		map[string]any{storage.MemberPath(email): member}, nil,
		func() {
			if had {
				s.members[email] = original
			} else {
				delete(s.members, email)
			}
		})
	if err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// RemoveMember drops a member record from the board.
func (s *Session) RemoveMember(ctx context.Context, email string) error {
	s.mu.Lock()
	original, ok := s.members[email]
	if !ok {
		s.mu.Unlock()
		return &domain.NotFoundError{Kind: "member", ID: email}
	}
	delete(s.members, email)
	s.mu.Unlock()
	s.notifyWatchers()

	return s.commit(ctx, nil, []string{storage.MemberPath(email)},
		func() { s.members[email] = original })
}

// DeleteBoard removes the whole board document, cascading lists and tasks.
// There is no partial rollback: on failure the replica is left untouched and
// the caller may retry.
func (s *Session) DeleteBoard(ctx context.Context) error {
	if _, err := s.auth.CurrentUser(); err != nil {
		return &AuthError{Reason: err.Error()}
	}
	if err := s.store.Delete(ctx, s.ref); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
