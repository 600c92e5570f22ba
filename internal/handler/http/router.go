package http

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

type RouterConfig struct {
	AllowedOrigins []string
	Env            string
	Version        string
	LogLevel       slog.Level
}

func NewRouter(cfg RouterConfig, sessionHandler SessionHandler, clockHandler ClockHandler, directoryHandler DirectoryHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hris-checkin"),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/clock", func(r chi.Router) {
			r.Get("/", clockHandler.Status)
			r.Post("/sync", clockHandler.Sync)
		})

		r.Route("/offices", func(r chi.Router) {
			r.Get("/", directoryHandler.ListOffices)
			r.Get("/{officeID}/employees", directoryHandler.ListEmployees)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Close)
				r.Get("/events", sessionHandler.Events)

				r.Post("/location", sessionHandler.PushLocation)
				r.Post("/location/error", sessionHandler.PushLocationError)

				r.Put("/office", sessionHandler.SelectOffice)
				r.Delete("/office", sessionHandler.DeselectOffice)
				r.Put("/employee", sessionHandler.SelectEmployee)
				r.Put("/action", sessionHandler.SelectAction)
				r.Post("/selfie", sessionHandler.AttachSelfie)

				r.Post("/submit", sessionHandler.Submit)
				r.Post("/acknowledge", sessionHandler.Acknowledge)
				r.Post("/refresh", sessionHandler.Refresh)
			})
		})
	})

	return r
}
