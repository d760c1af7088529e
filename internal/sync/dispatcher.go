package sync

import (
	"context"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs webhook-triggered syncs in the background with a bounded
// amount of parallelism. Enqueue never blocks the caller; webhook handlers
// must answer providers fast or get their channel dropped.
type Dispatcher struct {
	log            zerolog.Logger
	svc            Service
	connectionRepo domain.ConnectionRepo
	sem            *semaphore.Weighted
}

func NewDispatcher(log logger.Logger, svc Service, connectionRepo domain.ConnectionRepo, maxConcurrent int) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		log:            log.With().Str("module", "sync-dispatcher").Logger(),
		svc:            svc,
		connectionRepo: connectionRepo,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Enqueue schedules a sync pass for the connection and returns immediately.
// Failures are logged and land in the sync log, never returned to the caller.
func (d *Dispatcher) Enqueue(connectionID string) {
	go func() {
		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		conn, err := d.connectionRepo.FindByID(ctx, connectionID)
		if err != nil {
			d.log.Error().Err(err).Str("connectionID", connectionID).Msg("Could not load connection for queued sync")
			return
		}
		if conn == nil {
			d.log.Debug().Str("connectionID", connectionID).Msg("Queued sync for a connection that no longer exists")
			return
		}
		if !conn.SyncEnabled {
			d.log.Debug().Str("connectionID", connectionID).Msg("Skipping queued sync, connection disabled")
			return
		}

		// outcome already logged and recorded by the engine
		_, _ = d.svc.PerformFullSync(ctx, conn)
	}()
}
