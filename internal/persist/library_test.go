package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/pmdesk/schema"
)

const sampleBlob = `{"sheets":[{"id":"c1","type":"teams","title":"Teams","x":0,"y":0,"w":6,"h":4,"minW":4,"minH":3}],"layouts":{"lg":[{"i":"c1","x":0,"y":0,"w":6,"h":4}]}}`

func openTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := OpenLibrary(context.Background(), filepath.Join(t.TempDir(), "library.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestLibrarySaveGetList(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	info, err := lib.Save(ctx, "alice", "standup", []byte(sampleBlob))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 1, info.Cells)

	got, blob, err := lib.Get(ctx, "alice", "", "standup")
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.JSONEq(t, sampleBlob, string(blob))

	list, err := lib.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "standup", list[0].Name)

	other, err := lib.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLibrarySaveReplacesByName(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lib.now = func() time.Time { return base }

	first, err := lib.Save(ctx, "alice", "standup", []byte(sampleBlob))
	require.NoError(t, err)
	lib.now = func() time.Time { return base.Add(time.Minute) }
	second, err := lib.Save(ctx, "alice", "standup", []byte(`{"sheets":[],"layouts":{}}`))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	got, _, err := lib.Get(ctx, "alice", first.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cells)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))
}

func TestLibraryDelete(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()
	_, err := lib.Save(ctx, "alice", "standup", []byte(sampleBlob))
	require.NoError(t, err)

	require.NoError(t, lib.Delete(ctx, "alice", "", "standup"))
	err = lib.Delete(ctx, "alice", "", "standup")
	assert.True(t, errors.Is(err, schema.ErrArrangementNotFound))

	_, _, err = lib.Get(ctx, "alice", "", "standup")
	assert.True(t, errors.Is(err, schema.ErrArrangementNotFound))
}

func TestLibraryRejectsBadInput(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	_, err := lib.Save(ctx, "alice", " ", []byte(sampleBlob))
	assert.True(t, errors.Is(err, schema.ErrInvalidRequest))

	_, err = lib.Save(ctx, "alice", "broken", []byte("{"))
	assert.True(t, errors.Is(err, schema.ErrMalformedSnapshot))

	_, _, err = lib.Get(ctx, "alice", "", "")
	assert.True(t, errors.Is(err, schema.ErrInvalidRequest))
}
