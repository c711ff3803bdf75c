package postgres

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
	"gorm.io/gorm"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenGorm(&config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "credcore.db"),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testKeySet(version int64) *models.KeySet {
	retired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.KeySet{
		Keys: map[string]models.SigningKey{
			"a": {Kid: "a", Algorithm: constants.AlgHS256, Material: []byte("0123456789abcdef0123456789abcdef"), RetiredAt: &retired},
			"b": {Kid: "b", Algorithm: constants.AlgHS256, Material: []byte("fedcba9876543210fedcba9876543210")},
		},
		ActiveKid:          "b",
		GracePeriodSeconds: 600,
		Version:            version,
	}
}

func TestOpenGorm_UnsupportedDriver(t *testing.T) {
	_, err := OpenGorm(&config.DatabaseConfig{Driver: "memory"})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestKeySetRepository_LoadEmpty(t *testing.T) {
	repo := NewKeySetRepository(newSQLiteDB(t))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, errors.ErrKeySetNotFound)
}

func TestKeySetRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewKeySetRepository(newSQLiteDB(t))

	require.NoError(t, repo.Save(ctx, testKeySet(1), 0))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "b", got.ActiveKid)
	assert.Equal(t, int64(600), got.GracePeriodSeconds)
	assert.Equal(t, []string{"a", "b"}, got.Kids())
	require.NotNil(t, got.Keys["a"].RetiredAt)
	assert.True(t, got.Keys["a"].RetiredAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, got.Keys["b"].RetiredAt)
	assert.Equal(t, []byte("fedcba9876543210fedcba9876543210"), got.Keys["b"].Material)
}

func TestKeySetRepository_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewKeySetRepository(newSQLiteDB(t))
	require.NoError(t, repo.Save(ctx, testKeySet(1), 0))

	t.Run("second initial save conflicts", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, testKeySet(1), 0), errors.ErrConflict)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, testKeySet(3), 2), errors.ErrConflict)
	})

	t.Run("version must advance by one", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, testKeySet(5), 1), errors.ErrInvalidArgument)
	})

	t.Run("update replaces keys", func(t *testing.T) {
		next := testKeySet(2)
		delete(next.Keys, "a")
		require.NoError(t, repo.Save(ctx, next, 1))

		got, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, []string{"b"}, got.Kids())
	})

	t.Run("inconsistent key set is rejected", func(t *testing.T) {
		bad := testKeySet(3)
		bad.ActiveKid = "missing"
		assert.ErrorIs(t, repo.Save(ctx, bad, 2), errors.ErrKeySetInconsistent)
	})
}

func TestKeySetRepository_ConcurrentWritersOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewKeySetRepository(newSQLiteDB(t))
	require.NoError(t, repo.Save(ctx, testKeySet(1), 0))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Save(ctx, testKeySet(2), 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, errors.ErrConflict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestRefreshTokenRepository_Gorm(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := service.NewRefreshTokenLedger(NewRefreshTokenRepository(newSQLiteDB(t)), logger.NewNoopLogger(),
		service.WithLedgerClock(func() time.Time { return now }))

	short, err := ledger.CreateFromJTI(ctx, "short", "user-1", time.Minute)
	require.NoError(t, err)
	long, err := ledger.CreateFromJTI(ctx, "long", "user-1", time.Hour)
	require.NoError(t, err)

	t.Run("lookup", func(t *testing.T) {
		got, err := ledger.GetByJTIHash(ctx, long.JTIHash)
		require.NoError(t, err)
		assert.Equal(t, long.ID, got.ID)
		assert.Equal(t, "user-1", got.UserID)
		assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
		assert.False(t, got.Revoked)

		_, err = ledger.GetByJTIHash(ctx, service.HashJTI("nope"))
		assert.ErrorIs(t, err, errors.ErrRefreshTokenNotFound)
	})

	t.Run("duplicate hash conflicts", func(t *testing.T) {
		_, err := ledger.CreateFromJTI(ctx, "short", "user-2", time.Minute)
		assert.ErrorIs(t, err, errors.ErrConflict)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		require.NoError(t, ledger.Revoke(ctx, long.JTIHash))
		require.NoError(t, ledger.Revoke(ctx, long.JTIHash))
		got, err := ledger.GetByJTIHash(ctx, long.JTIHash)
		require.NoError(t, err)
		assert.True(t, got.Revoked)

		assert.ErrorIs(t, ledger.Revoke(ctx, service.HashJTI("nope")), errors.ErrRefreshTokenNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		n, err := ledger.DeleteExpired(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = ledger.DeleteExpired(ctx, now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = ledger.GetByJTIHash(ctx, short.JTIHash)
		assert.ErrorIs(t, err, errors.ErrRefreshTokenNotFound)
	})
}
