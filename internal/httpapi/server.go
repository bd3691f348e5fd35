// internal/httpapi/server.go
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/config"
	"libraripro/internal/membership"
	"libraripro/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
}

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	services Services
	limiter  *ipLimiter
}

func New(cfg *config.Config, services Services, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
		limiter:  newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, time.Now),
	}
}

// Routes builds the chi router: /healthz plus the versioned API under /api/v1.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverPanic(s.logger))
	r.Use(rateLimit(s.limiter, s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { web.NotFound(w, r, s.logger) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { web.MethodNotAllowed(w, r, s.logger) })

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		catalog.NewHandler(s.services.Catalog, s.logger).Routes(r)
		membership.NewHandler(s.services.Membership, s.logger).Routes(r)
		circulation.NewHandler(s.services.Circulation, s.logger).Routes(r)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := web.WriteJSON(w, http.StatusOK, web.Envelope{"status": "available"}); err != nil {
		web.Error(w, r, s.logger, err)
	}
}

// Serve listens on the configured port until ctx is cancelled, then gives
// in-flight requests 20 seconds to finish. A listen failure is returned
// once the shutdown goroutine has exited.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:      s.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server", "reason", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting server", "address", srv.Addr, "store", s.cfg.Store.Driver)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-shutdownErr
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}

	s.logger.Info("server stopped", "address", srv.Addr)
	return nil
}
