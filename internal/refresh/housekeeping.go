package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Housekeeping periodically purges expired refresh token records so
// the store does not grow without bound. The manager itself never
// self-schedules cleanup.
type Housekeeping struct {
	manager  *Manager
	log      *slog.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping builds the sweeper. A non-positive interval defaults
// to one hour.
func NewHousekeeping(manager *Manager, log *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Housekeeping{
		manager:  manager,
		log:      log,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. Non-blocking; call Stop
// for a graceful shutdown.
func (h *Housekeeping) Start() {
	go h.run()
	h.log.Info("refresh housekeeping started", "interval", h.interval)
}

// Stop shuts the loop down, blocking until any in-progress sweep has
// finished.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.log.Info("refresh housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// One sweep immediately at startup.
	h.sweep()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeping) sweep() {
	removed, err := h.manager.CleanupExpiredTokens(context.Background())
	if err != nil {
		h.log.Error("expired token sweep failed", "err", err)
		return
	}
	if removed > 0 {
		h.log.Info("expired tokens purged", "count", removed)
	}
}
