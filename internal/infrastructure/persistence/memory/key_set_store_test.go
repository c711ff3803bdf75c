package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/credcore/pkg/errors"
)

func TestKeySetStore_VersionedSave(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeySetStore()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, errors.ErrKeySetNotFound)

	ks := &models.KeySet{
		Keys:      map[string]models.SigningKey{"A": {Kid: "A", Material: []byte("m")}},
		ActiveKid: "A",
		Version:   1,
	}
	require.NoError(t, store.Save(ctx, ks, 0))

	// stale writer
	stale := ks.Clone()
	stale.Version = 1
	assert.ErrorIs(t, store.Save(ctx, stale, 0), errors.ErrConflict)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)

	// the returned copy is detached from the store
	loaded.ActiveKid = "changed"
	loaded.Keys["A"].Material[0] = 'x'
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", again.ActiveKid)
	assert.Equal(t, []byte("m"), again.Keys["A"].Material)
}
