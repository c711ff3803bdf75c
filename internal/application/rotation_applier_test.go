package application

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/domain/service/mocks"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

func auditAction(action constants.AuditAction) interface{} {
	return mock.MatchedBy(func(e *models.AuditEvent) bool { return e.Action == action })
}

func TestRotationApplier_PromotesThenPurges(t *testing.T) {
	ctx := context.Background()
	audit := &mocks.MockAuditService{}
	f := newRotationFixture(t, rotatingKeySet(t), nil, audit)
	engine := service.NewRotationEngine()

	_, err := f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)

	// promotion at A's retirement; A stays within grace
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e *models.AuditEvent) bool {
		return e.Action == constants.AuditActionRotationApplied &&
			e.Metadata["previous_active_kid"] == "A" && e.Metadata["active_kid"] == "B"
	})).Return(nil).Once()

	at := t0.Add(time.Hour)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	result, err := f.applier.Apply(ctx, snapshot, engine.Decide(snapshot, at), at)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, "A", result.PreviousActiveKid)
	assert.Equal(t, "B", result.ActiveKid)
	assert.Empty(t, result.PurgedKids)
	assert.Equal(t, int64(2), result.Version)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.ActiveKid)
	assert.Empty(t, stored.NextKid)
	assert.Contains(t, stored.Keys, "A")
	assert.Equal(t, int64(2), f.holder.Current().Version())
	assert.Equal(t, "B", f.holder.Current().ActiveKid())

	// cache was invalidated so the rebuilt document reflects the new set
	f.now = at
	_, err = f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.JWKSCacheLookups.WithLabelValues("miss")))

	// grace elapsed: A is purged
	audit.On("Record", mock.Anything, auditAction(constants.AuditActionRotationApplied)).Return(nil).Once()
	at = t0.Add(2 * time.Hour)
	snapshot, err = f.repo.Load(ctx)
	require.NoError(t, err)
	result, err = f.applier.Apply(ctx, snapshot, engine.Decide(snapshot, at), at)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, result.PurgedKids)
	assert.Equal(t, int64(3), result.Version)

	stored, err = f.repo.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, stored.Keys, "A")
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues("applied")))
	audit.AssertExpectations(t)
}

func TestRotationApplier_NoopLeavesVersion(t *testing.T) {
	ctx := context.Background()
	f := newRotationFixture(t, rotatingKeySet(t), nil, nil)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)

	result, err := f.applier.Apply(ctx, snapshot, service.NewRotationEngine().Decide(snapshot, t0), t0)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, int64(1), result.Version)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues("noop")))
}

func TestRotationApplier_Inconsistent(t *testing.T) {
	ctx := context.Background()
	audit := &mocks.MockAuditService{}
	audit.On("Record", mock.Anything, auditAction(constants.AuditActionRotationInconsistent)).Return(nil).Once()
	f := newRotationFixture(t, rotatingKeySet(t), nil, audit)

	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	broken := snapshot.Clone()
	broken.ActiveKid = "gone"

	result, err := f.applier.Apply(ctx, broken, service.NewRotationEngine().Decide(broken, t0), t0)
	require.NoError(t, err)
	assert.False(t, result.Applied)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot, stored)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues("inconsistent")))
	audit.AssertExpectations(t)
}

func TestRotationApplier_StalledKeepsActiveKey(t *testing.T) {
	ctx := context.Background()
	ks := rotatingKeySet(t)
	ks.NextKid = ""
	delete(ks.Keys, "B")

	audit := &mocks.MockAuditService{}
	audit.On("Record", mock.Anything, auditAction(constants.AuditActionRotationStalled)).Return(nil).Once()
	f := newRotationFixture(t, ks, nil, audit)

	at := t0.Add(3 * time.Hour)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	decision := service.NewRotationEngine().Decide(snapshot, at)
	require.True(t, decision.ActiveOverdueWithoutSuccessor)

	result, err := f.applier.Apply(ctx, snapshot, decision, at)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, "A", f.holder.Current().ActiveKid())

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, stored.Keys, "A", "the active key is never purged")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues("stalled")))
	audit.AssertExpectations(t)
}

func TestRotationApplier_ConflictLeavesKeyringUntouched(t *testing.T) {
	ctx := context.Background()
	f := newRotationFixture(t, rotatingKeySet(t), nil, nil)

	stale, err := f.repo.Load(ctx)
	require.NoError(t, err)

	// another instance moves the stored set forward
	other := stale.Clone()
	other.GracePeriodSeconds = 7200
	other.Version = 2
	require.NoError(t, f.repo.Save(ctx, other, 1))

	at := t0.Add(time.Hour)
	_, err = f.applier.Apply(ctx, stale, service.NewRotationEngine().Decide(stale, at), at)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Equal(t, int64(1), f.holder.Current().Version())
	assert.Equal(t, "A", f.holder.Current().ActiveKid())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues("conflict")))
}

func TestRotationApplier_InvalidationFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m := &mocks.MockJWKSCache{}
	m.On("Invalidate", mock.Anything).Return(errors.Storage("redis.del", assert.AnError))
	f := newRotationFixture(t, rotatingKeySet(t), m, nil)

	at := t0.Add(time.Hour)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	result, err := f.applier.Apply(ctx, snapshot, service.NewRotationEngine().Decide(snapshot, at), at)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.ActiveKid, "the persisted rotation stands")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JWKSInvalidationFails))
	m.AssertExpectations(t)
}

func TestRotationApplier_AuditFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	audit := &mocks.MockAuditService{}
	audit.On("Record", mock.Anything, mock.Anything).Return(assert.AnError)
	f := newRotationFixture(t, rotatingKeySet(t), nil, audit)

	at := t0.Add(time.Hour)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	result, err := f.applier.Apply(ctx, snapshot, service.NewRotationEngine().Decide(snapshot, at), at)
	require.NoError(t, err)
	assert.True(t, result.Applied)
}

// recordingRepo logs Save calls into a shared call log and can fail them.
type recordingRepo struct {
	repository.KeySetRepository
	calls   *[]string
	saveErr error
}

func (r *recordingRepo) Save(ctx context.Context, ks *models.KeySet, expected int64) error {
	*r.calls = append(*r.calls, "save")
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.KeySetRepository.Save(ctx, ks, expected)
}

func TestRotationApplier_PersistsBeforeInvalidating(t *testing.T) {
	ctx := context.Background()
	var calls []string
	m := &mocks.MockJWKSCache{}
	f := newRotationFixture(t, rotatingKeySet(t), m, nil)
	m.On("Invalidate", mock.Anything).Run(func(mock.Arguments) {
		calls = append(calls, "invalidate")
		// the new keyring is already live when the cache is dropped
		assert.Equal(t, "B", f.holder.Current().ActiveKid())
	}).Return(nil).Once()

	repo := &recordingRepo{KeySetRepository: f.repo, calls: &calls}
	applier := NewRotationApplier(repo, f.holder, f.publisher, nil, logger.NewNoopLogger(), f.metrics)

	at := t0.Add(time.Hour)
	snapshot, err := f.repo.Load(ctx)
	require.NoError(t, err)
	result, err := applier.Apply(ctx, snapshot, service.NewRotationEngine().Decide(snapshot, at), at)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, []string{"save", "invalidate"}, calls)
	m.AssertExpectations(t)
}

func TestRotationApplier_FailedSaveSkipsInvalidation(t *testing.T) {
	tests := []struct {
		name    string
		saveErr error
		want    error
		outcome string
	}{
		{"conflict", errors.ErrConflict.WithMessage("key set version moved"), errors.ErrConflict, "conflict"},
		{"storage unavailable", errors.Storage("keyset.save", assert.AnError), errors.ErrStorageUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			var calls []string
			m := &mocks.MockJWKSCache{}
			f := newRotationFixture(t, rotatingKeySet(t), m, nil)
			repo := &recordingRepo{KeySetRepository: f.repo, calls: &calls, saveErr: tt.saveErr}
			applier := NewRotationApplier(repo, f.holder, f.publisher, nil, logger.NewNoopLogger(), f.metrics)

			at := t0.Add(time.Hour)
			snapshot, err := f.repo.Load(ctx)
			require.NoError(t, err)
			_, err = applier.Apply(ctx, snapshot, service.NewRotationEngine().Decide(snapshot, at), at)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, []string{"save"}, calls)
			m.AssertNotCalled(t, "Invalidate", mock.Anything)
			assert.Equal(t, "A", f.holder.Current().ActiveKid())
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Rotations.WithLabelValues(tt.outcome)))
		})
	}
}
