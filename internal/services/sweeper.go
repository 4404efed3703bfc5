package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpiredCleaner removes expired photos.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper periodically deletes expired photos.
type Sweeper struct {
	cleaner  ExpiredCleaner
	interval time.Duration
}

// NewSweeper creates a sweeper; a non-positive interval means hourly.
func NewSweeper(cleaner ExpiredCleaner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{cleaner: cleaner, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Expired photo cleanup failed")
		return
	}
	if count > 0 {
		log.Info().Int("deleted", count).Msg("Expired photos cleaned up")
	}
}
