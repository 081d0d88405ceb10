package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

// SweeperConfig tunes the hold sweeper.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSweeperConfig sweeps every ten seconds.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: 10 * time.Second, BatchSize: 200}
}

// HoldSweeper expires lapsed holds in the background. Every access also
// expires lazily, so the sweeper only bounds how long a stale hold stays
// visible to the event stream.
type HoldSweeper struct {
	actors   *userstate.Store
	repo     domain.Repository
	sessions *Sessions
	config   SweeperConfig
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHoldSweeper creates a HoldSweeper.
func NewHoldSweeper(actors *userstate.Store, repo domain.Repository, sessions *Sessions, config SweeperConfig) *HoldSweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweeperConfig().BatchSize
	}
	return &HoldSweeper{
		actors:   actors,
		repo:     repo,
		sessions: sessions,
		config:   config,
		logger:   sessions.Logger(),
	}
}

// Sweep expires every lapsed hold it finds and returns how many it
// expired.
func (s *HoldSweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := s.repo.ExpiredHolds(ctx, s.sessions.Clock().Now(), s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, ref := range refs {
		err := s.actors.Do(ctx, ref.UserID, func(ctx context.Context, st *userstate.State) error {
			ok, err := s.sessions.Expire(ctx, st, ref.SessionID)
			if ok {
				expired++
			}
			return err
		})
		if err != nil {
			s.logger.Warn("failed to expire hold", "session_id", ref.SessionID, "user_id", ref.UserID, "error", err)
		}
	}
	return expired, nil
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (s *HoldSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.logger.Info("hold sweeper started", "interval", s.config.Interval)
}

// Stop halts the loop and waits for the in-flight sweep.
func (s *HoldSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("hold sweeper stopped")
}

func (s *HoldSweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("hold sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("expired holds", "count", n)
			}
		}
	}
}
