package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/recaphq/recap-api/internal/api/middleware"
	"github.com/recaphq/recap-api/internal/api/shared"
)

// RouterConfig holds the handlers and guards the router mounts.
type RouterConfig struct {
	Logger  *slog.Logger
	Auth    *apimiddleware.AuthMiddleware
	Trigger apimiddleware.TriggerVerifier

	// BillingRequired makes POST /api/tasks reject anonymous callers at the
	// edge; without it sessions are optional there.
	BillingRequired bool

	Tasks          *TaskHandler
	Avatars        *AvatarHandler
	Credits        *CreditHandler
	ProcessTasks   *ProcessHandler
	ProcessAvatars *ProcessHandler

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(apimiddleware.Trace(cfg.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// scheduler trigger
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireTrigger(cfg.Trigger))
			r.Post("/tasks/process", cfg.ProcessTasks.Process)
			r.Post("/avatar/process", cfg.ProcessAvatars.Process)
		})

		// public
		r.Get("/tasks/queue-info", cfg.Tasks.QueueInfoByQuery)
		r.Get("/tasks/{id}/queue", cfg.Tasks.QueueInfo)
		r.Post("/coupons/redeem", cfg.Credits.RedeemCoupon)

		r.Group(func(r chi.Router) {
			if cfg.BillingRequired {
				r.Use(cfg.Auth.Authenticate)
			} else {
				r.Use(cfg.Auth.Optional)
			}
			r.Post("/tasks", cfg.Tasks.CreateTask)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Authenticate)
			r.Get("/tasks", cfg.Tasks.ListTasks)
			r.Get("/tasks/{id}", cfg.Tasks.GetTask)
			r.Post("/avatar/tasks", cfg.Avatars.CreateTask)
			r.Get("/avatar/tasks/{id}", cfg.Avatars.GetTask)
			r.Get("/credits", cfg.Credits.GetCredits)
			r.Post("/credits", cfg.Credits.InitCredits)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	return r
}
