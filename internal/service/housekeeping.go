package service

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/repository"
)

// HousekeepingService periodically purges expired verification codes and
// refresh tokens. Expiry is always re-checked on read, so this only bounds
// table growth.
type HousekeepingService struct {
	codes    repository.VerificationCodeRepository
	tokens   repository.RefreshTokenRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(
	codes repository.VerificationCodeRepository,
	tokens repository.RefreshTokenRepository,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		codes:    codes,
		tokens:   tokens,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then once per interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.logger.Info("housekeeping service started", "interval", s.interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(context.Background())
	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes expired rows. The two deletions are independent; a failure in
// one is logged and does not skip the other.
func (s *HousekeepingService) Sweep(ctx context.Context) (codes, tokens int64) {
	now := s.now()

	codes, err := s.codes.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to delete expired verification codes", "error", err)
	}
	tokens, err = s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	s.logger.Info("housekeeping sweep completed", "codes_deleted", codes, "tokens_deleted", tokens)
	return codes, tokens
}
