package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skillproof/skillproof-backend/internal/service"
)

const sweepInterval = time.Second

// DeadlineWorker force-submits sessions whose time ran out. The WebSocket
// countdown already submits for connected candidates; this sweep is the
// backstop for candidates who disconnected, so the duration cap holds even
// with nobody on the other end.
type DeadlineWorker struct {
	cache          service.SessionCache
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(cache service.SessionCache, sessionService *service.SessionService, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		cache:          cache,
		sessionService: sessionService,
		log:            log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	due, err := w.cache.DueDeadlines(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("deadline query failed")
		return
	}

	for _, member := range due {
		sessionID, err := uuid.Parse(member)
		if err != nil {
			w.log.Error().Str("member", member).Msg("malformed deadline member, dropping")
			w.cache.RemoveDeadline(ctx, member)
			continue
		}

		// Failures leave the member in place so the next sweep retries.
		if err := w.sessionService.AutoComplete(ctx, sessionID); err != nil {
			w.log.Error().Err(err).Str("session_id", member).Msg("auto-submit failed, will retry")
			continue
		}
		w.cache.RemoveDeadline(ctx, member)
	}
}
