// Package app wires configuration into a ready document store, the way both
// binaries need it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"firedocs/backend/internal/config"
	"firedocs/backend/internal/docstore"
	"firedocs/backend/internal/export"
	"firedocs/backend/internal/firebase"
	"firedocs/backend/internal/metrics"
	"firedocs/backend/internal/middleware"
	"firedocs/backend/internal/store"

	"firebase.google.com/go/v4/auth"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	Store    *store.Store
	Exporter *export.Exporter
	// Clients is nil on the memory backend.
	Clients *firebase.Clients

	ds docstore.DocStore
}

// Open selects the backend named by cfg.Backend. reg may be nil.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{}
	var dst export.ObjectWriter

	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory document store; data is lost on exit")
		a.ds = docstore.NewMemory()
	case config.BackendFirestore:
		clients, err := firebase.NewClients(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Clients = clients
		a.ds = clients.DocStore
		if clients.Storage != nil && clients.Bucket != "" {
			dst = export.NewBucketWriter(clients.Storage, clients.Bucket)
		}
	default:
		return nil, fmt.Errorf("unknown docstore backend %q", cfg.Backend)
	}

	a.Store = store.New(a.ds,
		store.WithLogger(logger.With("component", "store")),
		store.WithMetrics(metrics.NewStore(reg)),
	)
	a.Exporter = export.New(a.Store, dst, logger.With("component", "export"))
	return a, nil
}

// Auth is nil when no Firebase Auth client is available.
func (a *App) Auth() *auth.Client {
	if a.Clients == nil {
		return nil
	}
	return a.Clients.Auth
}

// Verifier returns an untyped nil when Auth is nil.
func (a *App) Verifier() middleware.TokenVerifier {
	if c := a.Auth(); c != nil {
		return c
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Clients != nil {
		a.Clients.Close()
		return
	}
	if a.ds != nil {
		_ = a.ds.Close()
	}
}
