package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tarefas-api/domain"
)

// ptBRDate is the layout new Date().toLocaleDateString() produced for the
// original audience.
const ptBRDate = "02/01/2006"

type landingPageData struct {
	TaskCount    int
	CommentCount int
}

type taskPageView struct {
	ID             string
	Tarefa         string
	CreatedDisplay string
	ShareURL       string
}

type taskPageData struct {
	Task     taskPageView
	Comments []domain.Comment
	Session  *domain.Session
}

type dashboardPageData struct {
	User domain.Session
}

// RegisterPages wires up the server-rendered page routes.
func RegisterPages(e *echo.Echo, store Storage, counts CountsProvider, auth Authenticator, baseURL string) {
	e.GET("/", landingPage(counts))
	e.GET("/dashboard", dashboardPage(auth))
	e.GET("/task/:id", taskPage(store, auth, baseURL))
}

// landingPage renders the public landing view with the cached aggregates.
// The landing page is also the redirect target for every authorization
// failure, so a failing counts backend degrades to zeros instead of an error
// page.
func landingPage(counts CountsProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		data := landingPageData{}
		agg, err := counts.Counts(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
		} else {
			data.TaskCount = agg.Tasks
			data.CommentCount = agg.Comments
		}
		return c.Render(http.StatusOK, "landing.html", data)
	}
}

// dashboardPage is reachable only with a valid session; unauthenticated
// visitors are sent back to the landing page.
func dashboardPage(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := sessionFromRequest(c, auth)
		if err != nil {
			return c.Redirect(http.StatusFound, "/")
		}
		return c.Render(http.StatusOK, "dashboard.html", dashboardPageData{User: session})
	}
}

// taskPage renders the public task detail view. Missing or private tasks
// redirect to the landing page; that redirect is the sole authorization gate
// for the whole view.
func taskPage(store Storage, auth Authenticator, baseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		task, err := store.GetTask(ctx, id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil || !task.IsPublic {
			return c.Redirect(http.StatusFound, "/")
		}

		comments, err := store.ListComments(ctx, id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		data := taskPageData{
			Task: taskPageView{
				ID:             task.ID,
				Tarefa:         task.Tarefa,
				CreatedDisplay: task.Created.Format(ptBRDate),
				ShareURL:       shareURL(baseURL, task.ID),
			},
			Comments: comments,
		}
		if session, err := sessionFromRequest(c, auth); err == nil {
			data.Session = &session
		}
		return c.Render(http.StatusOK, "task.html", data)
	}
}
