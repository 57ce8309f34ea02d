// Package api implements the HTTP surface of the fleet optimizer.
package api

import (
	"context"
	"net/http"
	"strings"

	"fleetopt/internal/auth"
	"fleetopt/internal/config"
	"fleetopt/internal/eta"
	"fleetopt/internal/store"
	"fleetopt/internal/webhooks"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	ETA    *eta.Predictor

	limits *tenantLimiters
}

// NewServer wires backends from configuration. Without DATABASE_URL the store
// is in-memory; without REDIS_URL events and ETA history are process-local.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.Backend.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Backend.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	var hist eta.History
	if cfg.Backend.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Backend.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
		if rh, err := eta.NewRedisHistory(cfg.Backend.RedisURL); err == nil {
			hist = rh
		}
	}
	if broker == nil {
		broker = NewBroker()
	}
	if hist == nil {
		hist = eta.NewMemoryHistory()
	}

	return &Server{
		Cfg:    cfg,
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifier(cfg.Auth),
		Broker: broker,
		ETA:    eta.NewWithHistory(hist),
		limits: newTenantLimiters(cfg.Limits),
	}, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

func (s *Server) tenant(r *http.Request) string {
	return s.getPrincipal(r).Tenant
}
