package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sumire/tracker/internal/blob"
	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Projects *service.ProjectService
	Members  *service.MemberService
	Issues   *service.IssueService
	Comments *service.CommentService

	// Images serves stored blobs below blob.URLPrefix. Nil disables the route.
	Images http.Handler

	AllowedOrigins []string
	// AuthRateLimit is the per-IP request budget per minute for /api/auth.
	// Zero disables limiting.
	AuthRateLimit int
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) http.Handler {
	authH := NewAuthHandler(d.Auth)
	userH := NewUserHandler(d.Users)
	projectH := NewProjectHandler(d.Projects)
	memberH := NewMemberHandler(d.Members)
	issueH := NewIssueHandler(d.Issues)
	commentH := NewCommentHandler(d.Comments)

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger)
	r.Use(Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerRequestID},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, domain.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, Envelope{Error: &APIError{
			Code:    "method_not_allowed",
			Message: "Method not allowed",
		}})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if d.Images != nil {
		r.Handle(blob.URLPrefix+"*", http.StripPrefix(blob.URLPrefix, d.Images))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(d.Auth))

		r.Route("/auth", func(r chi.Router) {
			if d.AuthRateLimit > 0 {
				r.Use(httprate.LimitByIP(d.AuthRateLimit, time.Minute))
			}
			r.Post("/login", authH.Login)
			r.Post("/register", authH.Register)
			r.Post("/refresh", authH.Refresh)
			if d.Auth.GoogleEnabled() {
				r.Get("/google", authH.GoogleRedirect)
				r.Get("/google/callback", authH.GoogleCallback)
			}
			if d.Auth.GitHubEnabled() {
				r.Get("/github", authH.GitHubRedirect)
				r.Get("/github/callback", authH.GitHubCallback)
			}

			r.With(RequireUser).Get("/me", authH.Me)
			r.With(RequireUser).Post("/change-password", authH.ChangePassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userH.List)
			r.Get("/{id}", userH.Get)
			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Post("/", userH.Create)
				r.Put("/{id}", userH.Update)
				r.Delete("/{id}", userH.Delete)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectH.List)
			r.Get("/{projectId}", projectH.Get)
			r.Get("/{projectId}/users", memberH.List)
			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Post("/", projectH.Create)
				r.Put("/{projectId}", projectH.Update)
				r.Delete("/{projectId}", projectH.Delete)

				r.Post("/{projectId}/users", memberH.Add)
				r.Put("/{projectId}/users/{userId}", memberH.UpdateRole)
				r.Delete("/{projectId}/users/{userId}", memberH.Remove)
				r.Get("/{projectId}/available-users", memberH.AvailableUsers)
			})
		})

		r.Route("/permissions/project/{projectId}", func(r chi.Router) {
			r.Use(RequireUser)
			r.Get("/", memberH.ListPermissions)
			r.Get("/user/{userId}", memberH.GetPermission)
			r.Put("/user/{userId}", memberH.PutPermission)
			r.Delete("/user/{userId}", memberH.Remove)
		})

		r.Route("/issues", func(r chi.Router) {
			r.Get("/", issueH.List)
			r.Get("/search", issueH.Search)
			r.Get("/{id}", issueH.Get)
			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Post("/", issueH.Create)
				r.Put("/{id}", issueH.Update)
				r.Put("/{id}/move", issueH.Move)
				r.Post("/{id}/convert-to-subtask", issueH.ConvertToSubtask)
				r.Post("/{id}/convert-to-issue", issueH.ConvertToIssue)
				r.Delete("/{id}", issueH.Delete)
			})
		})

		r.Route("/comments", func(r chi.Router) {
			r.Get("/", commentH.List)
			r.Get("/issue/{issueId}", commentH.ListByIssue)
			r.Get("/{id}", commentH.Get)
			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Post("/", commentH.Create)
				r.Put("/{id}", commentH.Update)
				r.Delete("/{id}", commentH.Delete)
			})
		})
	})

	return r
}
