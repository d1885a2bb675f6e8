package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tesorrells/jellyfin-sync/internal/config"
	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/seeder"
)

// Server is the curator node: it publishes group manifests and supervises
// seed processes.
type Server struct {
	handler *Handler
	httpSrv *http.Server
	seeds   *seeder.Supervisor
	logger  *slog.Logger
}

// New wires the curator server from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.EnsureServerDirectories(); err != nil {
		return nil, err
	}
	store, err := manifest.NewStore(cfg.Server.ManifestDir)
	if err != nil {
		return nil, err
	}
	seeds := seeder.New(
		cfg.Transfer.Binary,
		cfg.Transfer.SeedDiscoveryTimeoutSeconds,
		cfg.Transfer.SeedPollIntervalMillis,
		logger,
	)
	handler := NewHandler(store, seeds, logger)
	router := NewRouter(handler, cfg.Paths.APIToken)

	return &Server{
		handler: handler,
		seeds:   seeds,
		logger:  logging.NewComponentLogger(logger, "server"),
		httpSrv: &http.Server{
			Addr:              cfg.Server.Bind,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks until the context is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("curator API listening", logging.Args(logging.String("bind", s.httpSrv.Addr))...)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.seeds.Close()
		return ctx.Err()
	}
}

// NewRouter mounts the curator routes. An empty token disables auth.
func NewRouter(h *Handler, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(token))

	r.Get("/", h.Health)

	// Manifest publication.
	r.Get("/manifest/{group}.json", h.GetManifest)
	r.Post("/manifest/{group}.json", h.PutManifest)

	// Seed lifecycle.
	r.Post("/seed", h.StartSeed)
	r.Get("/seeds", h.ListSeeds)

	return r
}
