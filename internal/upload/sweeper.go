package upload

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/pkg/types"
)

// Sweeper reclaims sessions that stopped making progress
type Sweeper struct {
	service  *Service
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper for the service's sessions
func NewSweeper(service *Service, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled
func (sw *Sweeper) Run(ctx context.Context) {
	if sw.interval <= 0 || sw.ttl <= 0 {
		log.Info().Msg("upload sweeper disabled")
		return
	}

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", sw.interval).Dur("ttl", sw.ttl).Msg("upload sweeper started")

	for {
		select {
		case <-ticker.C:
			removed, err := sw.SweepOnce(ctx)
			if err != nil {
				log.Error().Err(err).Int("removed", removed).Msg("upload sweep finished with errors")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("upload sweep completed")
			}
		case <-ctx.Done():
			log.Info().Msg("upload sweeper stopped")
			return
		}
	}
}

// SweepOnce removes expired sessions and returns how many were removed.
// Open sessions lose their chunk area, staging key and record. Completed
// sessions are tombstones and lose only their record. A running finalize
// refreshes its session every half TTL, so a finalizing session is left
// alone unless it is twice as old as the TTL, which means its finalize
// stopped.
func (sw *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := sw.now().UTC()
	cutoff := now.Add(-sw.ttl)
	stuckCutoff := now.Add(-2 * sw.ttl)

	expired, err := sw.service.sessions.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var result *multierror.Error
	removed := 0
	for _, session := range expired {
		if session.State == types.UploadStateFinalizing && !session.UpdatedAt.Before(stuckCutoff) {
			continue
		}

		ok, err := sw.sweep(ctx, session.ID, cutoff, stuckCutoff)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if ok {
			removed++
			sw.service.metrics.SessionsExpired.Inc()
			log.Debug().Str("upload_id", session.ID).Str("state", string(session.State)).Msg("expired upload session removed")
		}
	}

	return removed, result.ErrorOrNil()
}

// sweep re-reads the session under its lock so a chunk that arrived after
// the listing keeps the session alive
func (sw *Sweeper) sweep(ctx context.Context, id string, cutoff, stuckCutoff time.Time) (bool, error) {
	unlock := sw.service.locks.Lock(id)
	defer unlock()

	session, err := sw.service.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownUpload) {
			return false, nil
		}
		return false, storageErr("get_session", id, err)
	}

	switch session.State {
	case types.UploadStateOpen:
		if !session.UpdatedAt.Before(cutoff) {
			return false, nil
		}
	case types.UploadStateFinalizing:
		if !session.UpdatedAt.Before(stuckCutoff) {
			return false, nil
		}
	case types.UploadStateCompleted:
		if !session.UpdatedAt.Before(cutoff) {
			return false, nil
		}
	}

	if err := sw.service.discardSession(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
