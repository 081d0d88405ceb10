package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type txKey struct{}

func TestWithUnitOfWork(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txKey{}, "tx")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)

		err := WithUnitOfWork(ctx, uow, func(got context.Context) error {
			assert.Equal(t, txCtx, got)
			return nil
		})

		require.NoError(t, err)
		uow.AssertExpectations(t)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txKey{}, "tx")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		boom := errors.New("boom")

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return boom })

		assert.ErrorIs(t, err, boom)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
		uow.AssertExpectations(t)
	})

	t.Run("begin failure skips fn", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, errors.New("no conn"))

		called := false
		err := WithUnitOfWork(ctx, uow, func(context.Context) error {
			called = true
			return nil
		})

		assert.ErrorContains(t, err, "begin transaction: no conn")
		assert.False(t, called)
	})

	t.Run("joins a failed rollback", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		lost := errors.New("conn lost")
		uow.On("Rollback", ctx).Return(lost)
		boom := errors.New("boom")

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return boom })

		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, lost)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Rollback", ctx).Return(nil)

		assert.PanicsWithValue(t, "bad write", func() {
			_ = WithUnitOfWork(ctx, uow, func(context.Context) error { panic("bad write") })
		})
		uow.AssertCalled(t, "Rollback", ctx)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("wraps commit failure", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		busy := errors.New("database is locked")
		uow.On("Commit", ctx).Return(busy)

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return nil })

		assert.ErrorIs(t, err, busy)
		assert.ErrorContains(t, err, "commit transaction")
	})
}

type stampedEvent struct {
	domain.BaseEvent
}

func TestApplyEventMetadata_UsesRequestCorrelation(t *testing.T) {
	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	events := []domain.DomainEvent{&stampedEvent{}, &stampedEvent{}}

	ApplyEventMetadata(events, NewEventMetadata(ctx, "user-7"))

	for _, e := range events {
		assert.Equal(t, "corr-42", e.Metadata().CorrelationID)
		assert.Equal(t, "user-7", e.Metadata().UserID)
		assert.NotEmpty(t, e.Metadata().CausationID)
	}
}
