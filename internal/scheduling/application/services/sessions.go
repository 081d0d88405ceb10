package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/meridian/internal/userstate"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// Sessions stores sessions with their events and applies lazy hold
// expiry. Its methods run inside the owning user's actor.
type Sessions struct {
	repo       domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	holds      domain.HoldStore
	clock      sharedDomain.Clock
	logger     *slog.Logger
	metrics    observability.Metrics
}

// NewSessions creates a Sessions.
func NewSessions(repo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork,
	holds domain.HoldStore, clock sharedDomain.Clock, logger *slog.Logger, metrics observability.Metrics) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Sessions{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		holds:      holds,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Clock returns the clock every transition reads.
func (s *Sessions) Clock() sharedDomain.Clock { return s.clock }

// Holds returns the hold store.
func (s *Sessions) Holds() domain.HoldStore { return s.holds }

// Metrics returns the metrics sink.
func (s *Sessions) Metrics() observability.Metrics { return s.metrics }

// Logger returns the logger.
func (s *Sessions) Logger() *slog.Logger { return s.logger }

// Save stores sess and its pending events in one transaction, then
// caches it in st.
func (s *Sessions) Save(ctx context.Context, st *userstate.State, sess *domain.Session) error {
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.repo.Save(txCtx, sess); err != nil {
			return err
		}
		events := sess.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, sess.UserID()))
		return outbox.SaveEvents(txCtx, s.outboxRepo, events)
	})
	if err != nil {
		return err
	}
	sess.ClearDomainEvents()
	st.PutSession(sess)
	return nil
}

// Live loads a session and expires its hold if it lapsed. The returned
// session is the cached one; stage changes on a Clone.
func (s *Sessions) Live(ctx context.Context, st *userstate.State, id uuid.UUID) (*domain.Session, error) {
	sess, _, err := s.expire(ctx, st, id)
	return sess, err
}

// Expire reverts the session's hold if it lapsed and reports whether it
// did.
func (s *Sessions) Expire(ctx context.Context, st *userstate.State, id uuid.UUID) (bool, error) {
	_, expired, err := s.expire(ctx, st, id)
	return expired, err
}

func (s *Sessions) expire(ctx context.Context, st *userstate.State, id uuid.UUID) (*domain.Session, bool, error) {
	sess, err := st.Session(ctx, id)
	if err != nil {
		return nil, false, err
	}
	now := s.clock.Now()
	if !sess.HoldExpired(now) || sess.CommitInFlight() {
		return sess, false, nil
	}
	staged := sess.Clone()
	if !staged.ExpireHold(now) {
		return sess, false, nil
	}
	if err := s.Save(ctx, st, staged); err != nil {
		return nil, false, err
	}
	s.ReleaseHold(ctx, id)
	s.metrics.Counter(observability.MetricHoldsExpired, 1)
	s.logger.Info("hold expired", "session_id", id, "user_id", st.UserID)
	return staged, true, nil
}

// HoldLost reports whether the hold store no longer carries sess's hold,
// either because the record lapsed or because it names another candidate.
// A store error counts as held.
func (s *Sessions) HoldLost(ctx context.Context, sess *domain.Session) bool {
	if sess.Status() != domain.StatusHeld || sess.HeldCandidateID() == nil {
		return false
	}
	hold, ok, err := s.holds.Get(ctx, sess.ID())
	if err != nil {
		s.logger.Warn("failed to read hold", "session_id", sess.ID(), "error", err)
		return false
	}
	return !ok || hold.CandidateID != *sess.HeldCandidateID()
}

// ReleaseHold drops the hold record. The session row is authoritative, so
// a failure only leaves an entry that times out on its own.
func (s *Sessions) ReleaseHold(ctx context.Context, id uuid.UUID) {
	if err := s.holds.Release(ctx, id); err != nil {
		s.logger.Warn("failed to release hold", "session_id", id, "error", err)
	}
}
