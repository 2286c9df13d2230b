package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/engine"
	"boardsync/state"
)

const requestBodyMaxSize = 1 << 20

// Handlers carries the collaborators every route needs.
type Handlers struct {
	store  engine.Store
	redis  *redis.Client
	auth   Authenticator
	logger *log.Logger
}

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, store engine.Store, client *redis.Client, auth Authenticator, logger *log.Logger) {
	h := &Handlers{store: store, redis: client, auth: auth, logger: logger}

	e.GET("/healthz", h.healthz)

	g := e.Group("/api/boards/:boardId", GzipRequestMiddleware())
	g.GET("", h.getBoard)
	g.PATCH("", h.updateBoard)
	g.DELETE("", h.deleteBoard)
	g.GET("/stats", h.getStats)
	g.GET("/stream", h.streamBoard)
	g.GET("/tasks/search", h.searchTasks)
	g.GET("/tasks/due", h.dueTasks)

	g.POST("/tasks", h.addTask)
	g.POST("/tasks/move", h.moveTask)
	g.PATCH("/lists/:listId/tasks/:taskId", h.updateTask)
	g.DELETE("/lists/:listId/tasks/:taskId", h.deleteTask)

	g.POST("/lists", h.addList)
	g.PATCH("/lists/:listId", h.updateList)
	g.DELETE("/lists/:listId", h.deleteList)

	g.POST("/members", h.inviteMember)
	g.DELETE("/members/:email", h.removeMember)
}

func (h *Handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// openSession authenticates the request and loads a fresh board session.
// Callers must Close the session.
func (h *Handlers) openSession(c echo.Context) (*engine.Session, error) {
	user, err := h.auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	reg := engine.NewRegistry(h.store, h.redis, sessionIdentity{user: user}, h.logger)
	sess, err := reg.Open(c.Request().Context(), c.Param("boardId"))
	if err != nil {
		// The response is written here; the returned error only tells the
		// caller not to proceed.
		_ = h.fail(c, err)
		return nil, err
	}
	return sess, nil
}

// fail converts an engine error into the response the taxonomy prescribes:
// validation 422, stale reference 404, auth 401, transport 502.
func (h *Handlers) fail(c echo.Context, err error) error {
	kind := engine.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case engine.KindValidation:
		status = http.StatusUnprocessableEntity
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindAuth:
		status = http.StatusUnauthorized
	case engine.KindTransport:
		status = http.StatusBadGateway
	}
	return c.JSON(status, resultResponse{Success: false, Error: err.Error(), Kind: string(kind)})
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func (h *Handlers) getBoard(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	doc := sess.Snapshot()
	ordered := state.OrderedLists(state.Lists(doc.Lists))
	order := make([]string, 0, len(ordered))
	for _, l := range ordered {
		order = append(order, l.ID)
	}
	return c.JSON(http.StatusOK, boardResponse{Document: doc, ListOrder: order})
}

func (h *Handlers) updateBoard(c echo.Context) error {
	var req updateBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.UpdateBoard(c.Request().Context(), req.Name, req.Color); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

func (h *Handlers) deleteBoard(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.DeleteBoard(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

func (h *Handlers) getStats(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	doc := sess.Snapshot()
	stats := state.BoardStats(state.Lists(doc.Lists), state.Tasks(doc.Tasks), time.Now().UTC())
	return c.JSON(http.StatusOK, statsResponse{Success: true, Stats: stats})
}

func (h *Handlers) searchTasks(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	doc := sess.Snapshot()
	filter := state.Filter{
		Priority:    domain.Priority(c.QueryParam("priority")),
		AssignedTo:  c.QueryParam("assignedTo"),
		HasDeadline: c.QueryParam("hasDeadline") == "true",
		ListID:      c.QueryParam("listId"),
	}
	tasks := state.SearchTasks(state.Tasks(doc.Tasks), c.QueryParam("q"), filter)
	return c.JSON(http.StatusOK, tasksResponse{Success: true, Tasks: tasks})
}

func (h *Handlers) dueTasks(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	doc := sess.Snapshot()
	now := time.Now().UTC()

	window := 72 * time.Hour
	if v := c.QueryParam("window"); v != "" {
		d, derr := time.ParseDuration(v)
		if derr != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid window")
		}
		window = d
	}

	tasks := state.Tasks(doc.Tasks)
	return c.JSON(http.StatusOK, dueTasksResponse{
		Success: true,
		Overdue: state.OverdueTasks(tasks, now),
		DueSoon: state.TasksDueSoon(tasks, now, window),
	})
}

func (h *Handlers) addTask(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "task.add")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	var req addTaskRequest
	if err = decodeBody(c, &req); err != nil {
		return err
	}
	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	task, aerr := sess.AddTask(ctx, req.ListID, req.Task)
	m.ObserveApply(time.Since(applyStart))
	if aerr != nil {
		err = aerr
		return h.fail(c, aerr)
	}
	return c.JSON(http.StatusCreated, taskResponse{Success: true, Task: task})
}

func (h *Handlers) updateTask(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "task.update")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	var updates state.TaskUpdates
	if err = decodeBody(c, &updates); err != nil {
		return err
	}
	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	task, aerr := sess.UpdateTask(ctx, c.Param("listId"), c.Param("taskId"), updates)
	m.ObserveApply(time.Since(applyStart))
	if aerr != nil {
		err = aerr
		return h.fail(c, aerr)
	}
	return c.JSON(http.StatusOK, taskResponse{Success: true, Task: task})
}

func (h *Handlers) deleteTask(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "task.delete")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	err = sess.DeleteTask(ctx, c.Param("listId"), c.Param("taskId"))
	m.ObserveApply(time.Since(applyStart))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

func (h *Handlers) moveTask(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "task.move")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	var req moveTaskRequest
	if err = decodeBody(c, &req); err != nil {
		return err
	}
	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	err = sess.MoveTask(ctx, req.TaskID, req.SourceListID, req.DestListID, req.DestIndex)
	m.ObserveApply(time.Since(applyStart))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

func (h *Handlers) addList(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "list.add")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	var data domain.ListData
	if err = decodeBody(c, &data); err != nil {
		return err
	}
	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	list, aerr := sess.AddList(ctx, data)
	m.ObserveApply(time.Since(applyStart))
	if aerr != nil {
		err = aerr
		return h.fail(c, aerr)
	}
	return c.JSON(http.StatusCreated, listResponse{Success: true, List: list})
}

func (h *Handlers) updateList(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "list.update")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	var updates state.ListUpdates
	if err = decodeBody(c, &updates); err != nil {
		return err
	}
	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	list, aerr := sess.UpdateList(ctx, c.Param("listId"), updates)
	m.ObserveApply(time.Since(applyStart))
	if aerr != nil {
		err = aerr
		return h.fail(c, aerr)
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, List: list})
}

func (h *Handlers) deleteList(c echo.Context) error {
	m, ctx := newMutationMetrics(c.Request().Context(), h.logger, "list.delete")
	var err error
	defer func() { m.Log(c.Response().Status, err) }()

	sess, serr := h.openSession(c)
	if serr != nil {
		err = serr
		return serr
	}
	defer sess.Close()

	applyStart := time.Now()
	err = sess.DeleteList(ctx, c.Param("listId"), c.QueryParam("moveTasksTo"))
	m.ObserveApply(time.Since(applyStart))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

func (h *Handlers) inviteMember(c echo.Context) error {
	var req inviteMemberRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	member, merr := sess.InviteMember(c.Request().Context(), req.Email, req.Role)
	if merr != nil {
		return h.fail(c, merr)
	}
	return c.JSON(http.StatusCreated, memberResponse{Success: true, Member: member})
}

func (h *Handlers) removeMember(c echo.Context) error {
	sess, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer sess.Close()
	if merr := sess.RemoveMember(c.Request().Context(), c.Param("email")); merr != nil {
		return h.fail(c, merr)
	}
	return c.JSON(http.StatusOK, resultResponse{Success: true})
}

// streamBoard serves the board as a server-sent event stream: the current
// snapshot immediately, then one event per replica change until the client
// disconnects. Closing the connection tears down the session and its
// subscription.
func (h *Handlers) streamBoard(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); authHeader == "" && token != "" {
		authHeader = "Bearer " + token
	}
	user, err := h.auth.UserFromAuthHeader(authHeader)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	ctx := c.Request().Context()
	reg := engine.NewRegistry(h.store, h.redis, sessionIdentity{user: user}, h.logger)
	subErrs := make(chan error, 1)
	sess, err := reg.OpenLive(ctx, c.Param("boardId"), func(err error) {
		select {
		case subErrs <- err:
		default:
		}
	})
	if err != nil {
		return h.fail(c, err)
	}
	defer sess.Close()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	changes, cancel := sess.Watch()
	defer cancel()

	for {
		data, err := sonic.Marshal(sess.Snapshot())
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		if _, err := c.Response().Write([]byte("id: " + strconv.FormatInt(nextTimestamp(), 10) + "\ndata: ")); err != nil {
			return nil
		}
		if _, err := c.Response().Write(data); err != nil {
			return nil
		}
		if _, err := c.Response().Write([]byte("\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return nil
		case err := <-subErrs:
			// Transport failure on the push channel; tell the client to
			// re-subscribe rather than silently going stale.
			h.logger.WithError(err).Warn("board stream subscription lost")
			return nil
		case <-changes:
		}
	}
}
