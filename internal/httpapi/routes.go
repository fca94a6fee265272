package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/hub"
	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
)

type Deps struct {
	Hub     *hub.Hub
	WS      http.Handler
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	api := NewAPI(d.Hub, d.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", d.WS.ServeHTTP)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(accessLog(api.log))
		r.Get("/schemas", api.Schemas)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", api.CreateSession)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", api.GetSession)
				r.Delete("/", api.DeleteSession)
				r.Post("/join", api.JoinSession)
				r.Post("/leave", api.LeaveSession)
				r.Post("/enemies", api.SpawnEnemy)
			})
		})
	})
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
