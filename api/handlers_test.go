package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"boardsync/domain"
	"boardsync/engine"
	"boardsync/storage"
)

func testAPIUser() engine.User {
	return engine.User{ID: "user-1", Email: "user@example.com"}
}

type apiFixture struct {
	e     *echo.Echo
	token string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	logger, _ := test.NewNullLogger()
	e := echo.New()
	Register(e, storage.New(rc), rc, NewTestAuth(testSecret), logger)

	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	return &apiFixture{e: e, token: token}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeResult[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetBoardRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetBoardBootstraps(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/boards/b1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	doc := decodeResult[domain.Document](t, rec)
	if doc.Board.Owner != "user-1" {
		t.Fatalf("owner = %s", doc.Board.Owner)
	}
	if len(doc.Lists) != 3 {
		t.Fatalf("first open must create the default lists, got %d", len(doc.Lists))
	}
}

func TestAddTaskFlow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo",
		Task:   domain.TaskData{Text: "write handler tests", Priority: domain.PriorityHigh},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeResult[taskResponse](t, rec)
	if !created.Success || created.Task.ID == "" {
		t.Fatalf("response = %+v", created)
	}

	rec = f.do(t, http.MethodGet, "/api/boards/b1", nil)
	doc := decodeResult[domain.Document](t, rec)
	if len(doc.Tasks["todo"]) != 1 || doc.Tasks["todo"][0].Text != "write handler tests" {
		t.Fatalf("task not persisted: %+v", doc.Tasks["todo"])
	}
}

func TestAddTaskValidation(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo",
		Task:   domain.TaskData{Text: ""},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	res := decodeResult[resultResponse](t, rec)
	if res.Success || res.Kind != string(engine.KindValidation) {
		t.Fatalf("response = %+v", res)
	}
}

func TestAddTaskUnknownList(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "ghost",
		Task:   domain.TaskData{Text: "orphan"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
	res := decodeResult[resultResponse](t, rec)
	if res.Kind != string(engine.KindNotFound) {
		t.Fatalf("kind = %s", res.Kind)
	}
}

func TestUpdateAndDeleteTask(t *testing.T) {
	f := newAPIFixture(t)
	created := decodeResult[taskResponse](t, f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo", Task: domain.TaskData{Text: "original"},
	}))

	rec := f.do(t, http.MethodPatch, "/api/boards/b1/lists/todo/tasks/"+created.Task.ID,
		map[string]any{"text": "edited"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeResult[taskResponse](t, rec)
	if updated.Task.Text != "edited" {
		t.Fatalf("task = %+v", updated.Task)
	}

	rec = f.do(t, http.MethodDelete, "/api/boards/b1/lists/todo/tasks/"+created.Task.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}

	doc := decodeResult[domain.Document](t, f.do(t, http.MethodGet, "/api/boards/b1", nil))
	if len(doc.Tasks["todo"]) != 0 {
		t.Fatalf("task not deleted: %+v", doc.Tasks["todo"])
	}
}

func TestUpdateTaskRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t)
	created := decodeResult[taskResponse](t, f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo", Task: domain.TaskData{Text: "original"},
	}))

	rec := f.do(t, http.MethodPatch, "/api/boards/b1/lists/todo/tasks/"+created.Task.ID,
		map[string]any{"ownerEmail": "attacker@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown merge field must 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMoveTask(t *testing.T) {
	f := newAPIFixture(t)
	var taskIDs []string
	for _, text := range []string{"first", "second", "third"} {
		created := decodeResult[taskResponse](t, f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
			ListID: "todo", Task: domain.TaskData{Text: text},
		}))
		taskIDs = append(taskIDs, created.Task.ID)
	}

	rec := f.do(t, http.MethodPost, "/api/boards/b1/tasks/move", moveTaskRequest{
		TaskID: taskIDs[0], SourceListID: "todo", DestListID: "done", DestIndex: 0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("move status = %d: %s", rec.Code, rec.Body.String())
	}

	doc := decodeResult[domain.Document](t, f.do(t, http.MethodGet, "/api/boards/b1", nil))
	if len(doc.Tasks["todo"]) != 2 || len(doc.Tasks["done"]) != 1 {
		t.Fatalf("sequences after move: todo=%d done=%d", len(doc.Tasks["todo"]), len(doc.Tasks["done"]))
	}
	moved := doc.Tasks["done"][0]
	if moved.ID != taskIDs[0] || moved.CompletedAt == nil {
		t.Fatalf("moved task wrong: %+v", moved)
	}
	for i, task := range doc.Tasks["todo"] {
		if task.Position != i {
			t.Fatalf("source not reindexed: %+v", doc.Tasks["todo"])
		}
	}
}

func TestListLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/boards/b1/lists", domain.ListData{Name: "Review"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add list status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeResult[listResponse](t, rec)

	rec = f.do(t, http.MethodPatch, "/api/boards/b1/lists/"+created.List.ID,
		map[string]any{"name": "Code Review"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update list status = %d: %s", rec.Code, rec.Body.String())
	}

	// Park a task on the list, then delete the list redirecting into todo.
	task := decodeResult[taskResponse](t, f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: created.List.ID, Task: domain.TaskData{Text: "homeless soon"},
	}))
	rec = f.do(t, http.MethodDelete, "/api/boards/b1/lists/"+created.List.ID+"?moveTasksTo=todo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete list status = %d: %s", rec.Code, rec.Body.String())
	}

	doc := decodeResult[domain.Document](t, f.do(t, http.MethodGet, "/api/boards/b1", nil))
	if _, ok := doc.Lists[created.List.ID]; ok {
		t.Fatal("deleted list still present")
	}
	if len(doc.Tasks["todo"]) != 1 || doc.Tasks["todo"][0].ID != task.Task.ID {
		t.Fatalf("task not redirected: %+v", doc.Tasks["todo"])
	}
	if doc.Tasks["todo"][0].ListID != "todo" {
		t.Fatal("redirected task keeps stale list id")
	}
}

func TestBoardMetadataAndMembers(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/api/boards/b1", nil)

	rec := f.do(t, http.MethodPatch, "/api/boards/b1", map[string]any{"name": "Sprint 12"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update board status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/boards/b1/members", inviteMemberRequest{
		Email: "guest@example.com", Role: domain.RoleMember,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite status = %d: %s", rec.Code, rec.Body.String())
	}
	invited := decodeResult[memberResponse](t, rec)
	if invited.Member.Status != domain.MemberPending {
		t.Fatalf("member = %+v", invited.Member)
	}

	doc := decodeResult[domain.Document](t, f.do(t, http.MethodGet, "/api/boards/b1", nil))
	if doc.Board.Name != "Sprint 12" {
		t.Fatalf("board name = %s", doc.Board.Name)
	}
	if _, ok := doc.Members["guest@example.com"]; !ok {
		t.Fatalf("invited member missing: %+v", doc.Members)
	}

	rec = f.do(t, http.MethodDelete, "/api/boards/b1/members/guest@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove member status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatsAndSearch(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo", Task: domain.TaskData{Text: "fix login", Priority: domain.PriorityUrgent},
	})
	f.do(t, http.MethodPost, "/api/boards/b1/tasks", addTaskRequest{
		ListID: "todo", Task: domain.TaskData{Text: "write docs", Priority: domain.PriorityLow},
	})

	rec := f.do(t, http.MethodGet, "/api/boards/b1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", rec.Code, rec.Body.String())
	}
	stats := decodeResult[statsResponse](t, rec)
	if stats.Stats.TotalTasks != 2 || stats.Stats.TotalLists != 3 {
		t.Fatalf("stats = %+v", stats.Stats)
	}

	rec = f.do(t, http.MethodGet, "/api/boards/b1/tasks/search?q=login", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", rec.Code, rec.Body.String())
	}
	found := decodeResult[tasksResponse](t, rec)
	if len(found.Tasks) != 1 || found.Tasks[0].Text != "fix login" {
		t.Fatalf("search result = %+v", found.Tasks)
	}
}

func TestStreamBoard(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/api/boards/b1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1/stream", nil).WithContext(ctx)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.e.ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not stop on disconnect")
	}

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "id: ") {
		t.Fatalf("stream must open with an event id, got %q", body)
	}
	if !strings.Contains(body, "data: ") || !strings.Contains(body, `"board"`) {
		t.Fatalf("stream missing snapshot payload: %q", body)
	}
}

func TestStreamBoardRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1/stream", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDeleteBoard(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/api/boards/b1", nil)

	rec := f.do(t, http.MethodDelete, "/api/boards/b1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete board status = %d: %s", rec.Code, rec.Body.String())
	}

	// The next open bootstraps a fresh default document.
	doc := decodeResult[domain.Document](t, f.do(t, http.MethodGet, "/api/boards/b1", nil))
	total := 0
	for _, seq := range doc.Tasks {
		total += len(seq)
	}
	if total != 0 {
		t.Fatalf("deleted board kept tasks: %+v", doc.Tasks)
	}
}
