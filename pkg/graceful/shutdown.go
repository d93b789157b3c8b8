package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaultline/vault-service/pkg/logger"
)

// Stopper is anything that must stop before the process exits
type Stopper interface {
	Stop()
}

type ShutdownManager struct {
	server   *http.Server
	db       *sqlx.DB
	stoppers []Stopper
	timeout  time.Duration
	logger   *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sqlx.DB, timeout time.Duration, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server:   server,
		db:       db,
		stoppers: make([]Stopper, 0),
		timeout:  timeout,
		logger:   logger,
	}
}

func (sm *ShutdownManager) Register(s Stopper) {
	sm.stoppers = append(sm.stoppers, s)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops registered
// components before draining the HTTP server and closing the database.
// Workers go first so no sweep is mid-flight when connections close.
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	for _, s := range sm.stoppers {
		s.Stop()
	}

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	if err := sm.db.Close(); err != nil {
		sm.logger.Warn("Database close error", "error", err)
	}

	sm.logger.Info("Shutdown complete")
}
