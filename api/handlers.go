package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tarefas-api/domain"
)

const postBodyMaxSize = 64 * 1024 // 64 KiB

// User-facing validation messages, kept verbatim from the web client.
const (
	msgEmptyTask    = "Você precisa preencher qual é a tarefa!"
	msgEmptyComment = "Você precisa preencher o comentário!"
)

// Register wires up the JSON API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, notifier Notifier, broker *UpdateBroker, baseURL string, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, baseURL, logger))
	e.POST("/api/tasks", postTask(store, auth, notifier, baseURL))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth, notifier))
	e.GET("/api/tasks/stream", streamTasks(store, auth, broker, baseURL))
	e.GET("/api/tasks/:id/comments", getComments(store))
	e.POST("/api/tasks/:id/comments", postComment(store, auth))
	e.DELETE("/api/tasks/:id/comments/:commentId", deleteComment(store, auth))
	e.GET("/healthz", healthz())
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type commentsResponse struct {
	Comments []domain.Comment `json:"comments"`
}

type taskRequest struct {
	Tarefa   string `json:"tarefa"`
	IsPublic bool   `json:"isPublic"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

// shareURL builds the canonical public address for a task.
func shareURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/task/" + id
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator, baseURL string, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		session, authErr := sessionFromRequest(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, session.Email)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}

		domain.SortTasksByCreatedDesc(tasks)
		for i := range tasks {
			tasks[i].ShareURL = shareURL(baseURL, tasks[i].ID)
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(store Storage, auth Authenticator, notifier Notifier, baseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req taskRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Tarefa) == "" {
			return c.String(http.StatusBadRequest, msgEmptyTask)
		}

		task := domain.Task{
			ID:       uuid.NewString(),
			Tarefa:   req.Tarefa,
			Created:  time.Now().UTC(),
			User:     session.Email,
			IsPublic: req.IsPublic,
		}
		if err := store.InsertTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		notifyTasksChanged(c, notifier, session.Email)

		task.ShareURL = shareURL(baseURL, task.ID)
		return c.JSON(http.StatusCreated, task)
	}
}

func deleteTask(store Storage, auth Authenticator, notifier Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		id := c.Param("id")
		task, err := store.GetTask(ctx, id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		if task.User != session.Email {
			return c.String(http.StatusForbidden, "not the task owner")
		}

		if err := store.DeleteTask(ctx, id); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}
		notifyTasksChanged(c, notifier, session.Email)

		return c.NoContent(http.StatusNoContent)
	}
}

func getComments(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		taskID := c.Param("id")

		task, err := store.GetTask(ctx, taskID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil || !task.IsPublic {
			return c.String(http.StatusNotFound, "task not found")
		}

		comments, err := store.ListComments(ctx, taskID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, commentsResponse{Comments: comments})
	}
}

func postComment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req commentRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Comment) == "" {
			return c.String(http.StatusBadRequest, msgEmptyComment)
		}

		taskID := c.Param("id")
		task, err := store.GetTask(ctx, taskID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil || !task.IsPublic {
			return c.String(http.StatusNotFound, "task not found")
		}

		cm := domain.Comment{
			ID:      uuid.NewString(),
			Comment: req.Comment,
			Created: time.Now().UTC(),
			TaskID:  taskID,
			User: domain.Author{
				Email: session.Email,
				Name:  session.Name,
				Image: session.Image,
			},
		}
		if err := store.InsertComment(ctx, cm); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create comment")
		}

		// The stored comment carries the server-assigned id and timestamp,
		// so the caller renders confirmed state rather than an optimistic
		// placeholder.
		return c.JSON(http.StatusCreated, cm)
	}
}

func deleteComment(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		taskID := c.Param("id")
		commentID := c.Param("commentId")
		cm, err := store.GetComment(ctx, taskID, commentID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if cm == nil {
			return c.String(http.StatusNotFound, "comment not found")
		}
		if cm.User.Email != session.Email {
			return c.String(http.StatusForbidden, "not the comment author")
		}

		if err := store.DeleteComment(ctx, taskID, commentID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete comment")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func notifyTasksChanged(c echo.Context, notifier Notifier, userEmail string) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyTasksChanged(c.Request().Context(), userEmail); err != nil {
		c.Logger().Errorf("notify tasks changed: %v", err)
	}
}
