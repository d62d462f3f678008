package cache

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpillAndRehydrateRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewSpillStore(fs, fakeCodec{}, "/spill")
	key := leaf("X")
	matrix := fakeMatrix{Rows: 4, Cols: 4, Nnz: 16}

	rec, err := store.Spill(key, matrix, 1234)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.FilePath)

	exists, err := afero.Exists(fs, rec.FilePath)
	require.NoError(t, err)
	assert.True(t, exists)

	value, err := store.Rehydrate(rec)
	require.NoError(t, err)
	assert.Equal(t, matrix, value)

	exists, err = afero.Exists(fs, rec.FilePath)
	require.NoError(t, err)
	assert.False(t, exists, "rehydrate must delete the spill file")
}

func TestSpillRejectsNilValue(t *testing.T) {
	store := NewSpillStore(afero.NewMemMapFs(), fakeCodec{}, "/spill")
	_, err := store.Spill(leaf("X"), nil, 0)
	require.ErrorIs(t, err, ErrSpillInvalid)
}

func TestSpillStoreCloseRemovesWorkingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewSpillStore(fs, fakeCodec{}, "/spill")
	rec, err := store.Spill(leaf("X"), fakeMatrix{Rows: 1, Cols: 1, Nnz: 1}, 1)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	exists, err := afero.Exists(fs, rec.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)

	// Closing an already-closed store is a no-op, not an error.
	require.NoError(t, store.Close())
}
