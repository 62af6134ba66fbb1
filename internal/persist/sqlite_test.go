package persist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stayfinder/go-stay-cache/model"
)

func openTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sampleRecord(t *testing.T) (model.Key, Record) {
	t.Helper()
	key := model.MustKey(model.CategoryListing, "user", "42", map[string]string{"date": "2024-01-01"})
	rec := NewRecord(key, []byte("payload"), false, time.Unix(1700000000, 0), 5*time.Minute)
	return key, rec
}

func TestPutGetDelete(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key, rec := sampleRecord(t)

	require.NoError(t, b.Put(ctx, key.Canonical(), rec))

	got, err := b.Get(ctx, key.Canonical())
	require.NoError(t, err)
	require.Equal(t, rec.Payload, got.Payload)
	require.Equal(t, rec.TTL, got.TTL)
	require.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, b.Delete(ctx, key.Canonical()))
	_, err = b.Get(ctx, key.Canonical())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutUpserts(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key, rec := sampleRecord(t)

	require.NoError(t, b.Put(ctx, key.Canonical(), rec))
	rec.Payload = []byte("updated")
	require.NoError(t, b.Put(ctx, key.Canonical(), rec))

	got, err := b.Get(ctx, key.Canonical())
	require.NoError(t, err)
	require.Equal(t, []byte("updated"), got.Payload)
}

func TestRestoreRebuildsKeys(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	key, rec := sampleRecord(t)
	require.NoError(t, b.Put(ctx, key.Canonical(), rec))

	var restored []model.Key
	err := b.Restore(ctx, func(canonical string, got Record) bool {
		k, kerr := got.Key()
		require.NoError(t, kerr)
		require.Equal(t, canonical, k.Canonical())
		restored = append(restored, k)
		return true
	})
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.True(t, key.Equal(restored[0]))

	date, ok := restored[0].Param("date")
	require.True(t, ok)
	require.Equal(t, "2024-01-01", date)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.Delete(context.Background(), "absent"))
}
