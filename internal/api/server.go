// Package api exposes estimate conversations, estimate management, feedback
// learning and the business advisor over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/orchestrator"
	"github.com/sells-group/estimator/internal/store"
)

const maxBodyBytes = 1 << 20

// TurnHandler answers one estimate conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

// FeedbackLearner distills estimate edits into memories.
type FeedbackLearner interface {
	ExtractLearnings(ctx context.Context, original, edited []model.LineItem, notes string) ([]model.Memory, error)
}

// Advisor answers business advisor messages.
type Advisor interface {
	Reply(ctx context.Context, topic model.AdvisorTopic, profile *model.CompanyProfile, history []model.ConversationTurn, message string) (string, []model.ConversationTurn, error)
}

// Config holds the HTTP settings.
type Config struct {
	JWTSecret   string
	CORSOrigins []string
	MemoryLimit int
	MemoryCap   int
	// Providers reports circuit breaker state per model provider for /health.
	Providers func() map[string]string
}

// Server wires the handlers to their dependencies.
type Server struct {
	store   store.Store
	turns   TurnHandler
	learner FeedbackLearner
	advisor Advisor
	auth    *Authenticator
	cfg     Config
}

// New creates a Server.
func New(st store.Store, turns TurnHandler, learner FeedbackLearner, adv Advisor, cfg Config) *Server {
	return &Server{
		store:   st,
		turns:   turns,
		learner: learner,
		advisor: adv,
		auth:    NewAuthenticator(cfg.JWTSecret),
		cfg:     cfg,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/company-profile", s.getProfile)
		r.Post("/company-profile", s.createProfile)
		r.Put("/company-profile", s.updateProfile)

		r.Route("/estimates", func(r chi.Router) {
			r.Get("/", s.listEstimates)
			r.Post("/chat", s.chat)
			r.Get("/chat", s.chatHistory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getEstimate)
				r.Put("/", s.updateEstimate)
				r.Delete("/", s.deleteEstimate)
				r.Post("/approve", s.approveEstimate)
				r.Post("/feedback", s.feedback)
				r.Get("/export.xlsx", s.exportEstimate)
			})
		})

		r.Get("/learning/stats", s.learningStats)

		r.Post("/advisor/chat", s.advisorChat)
		r.Get("/advisor/chat", s.advisorConversation)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("api: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("api: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("api: starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.cfg.Providers != nil {
		body["providers"] = s.cfg.Providers()
	}
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		body["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
