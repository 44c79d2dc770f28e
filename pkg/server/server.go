// Package server composes the learning engine service from configuration.
//
// It lives in pkg/ so other binaries can embed the service and wrap its
// handler with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.Close(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/campaignly/learning-engine/internal/api"
	"github.com/campaignly/learning-engine/internal/api/handlers"
	"github.com/campaignly/learning-engine/internal/config"
	"github.com/campaignly/learning-engine/internal/events"
	"github.com/campaignly/learning-engine/internal/learning"
	"github.com/campaignly/learning-engine/internal/metrics"
	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/internal/telemetry"
	"github.com/campaignly/learning-engine/pkg/contracts"
)

// Server holds the initialized learning engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Learning is the engine behind the handlers and the event consumer.
	Learning contracts.LearningService

	// Store is the agent state repository.
	Store contracts.AgentStateRepository

	// Port is the port the server should listen on.
	Port int

	consumer        *events.Consumer
	shutdownTracing func(context.Context) error
}

// New loads configuration from the environment and builds the server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds the server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	repo, err := store.New(ctx, cfg.Store)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("init store: %w", err)
	}

	m := metrics.NewMetrics()
	engine := learning.New(repo,
		learning.WithMetrics(m),
		learning.WithConflictRetries(cfg.Learning.ConflictRetries),
	)
	log.Info().Int("conflict_retries", cfg.Learning.ConflictRetries).Msg("✅ Learning engine initialized")

	srv := &Server{
		Handler:         api.NewRouter(cfg, handlers.New(engine), repo),
		Learning:        engine,
		Store:           repo,
		Port:            cfg.Port,
		shutdownTracing: shutdown,
	}

	if cfg.Events.Enabled {
		consumer, err := events.NewConsumer(cfg.Events, events.NewHandler(engine), m)
		if err != nil {
			srv.Close(ctx)
			return nil, fmt.Errorf("init event consumer: %w", err)
		}
		srv.consumer = consumer
	} else {
		log.Info().Msg("🔕 Event consumer disabled")
	}

	return srv, nil
}

// Close stops the event consumer, closes the store and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.consumer != nil {
		errs = append(errs, s.consumer.Close())
	}
	errs = append(errs, s.Store.Close())
	if s.shutdownTracing != nil {
		errs = append(errs, s.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
