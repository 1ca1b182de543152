package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uuidFromByte gives deterministic ids so regenerated files can be
// compared byte for byte.
func uuidFromByte(b byte) uuid.UUID {
	var u uuid.UUID
	u[15] = b
	return u
}

func testEntry(canonicalID, face string, generated time.Time) Entry {
	return NewEntry(canonicalID, face, "2025-06-acme.yaml",
		decimal.RequireFromString("6490.00"),
		[]byte("rendered invoice body"), generated)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	entry := testEntry("ACM-01-01-250630", "ACM-01-01-250630", time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.Put(ctx, entry))

	// A new store over the same file sees the entry.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "ACM-01-01-250630")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, StatusUnpaid, got.Status)
	assert.True(t, got.Total.Equal(entry.Total))
	assert.Equal(t, HashContent([]byte("rendered invoice body")), got.ContentHash)
}

func TestFileStoreGetUnknown(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "ACM-01-01-250630")
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ACM-01-01-250630", notFound.CanonicalID)
}

func TestFileStoreListSortsByCanonicalDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Inserted out of date order.
	require.NoError(t, store.Put(ctx, testEntry("ACM-01-02-250731", "ACM-01-02-250731", time.Now())))
	require.NoError(t, store.Put(ctx, testEntry("ZED-00-01-250615", "INV-2025-OLD-7", time.Now())))
	require.NoError(t, store.Put(ctx, testEntry("ACM-01-01-250630", "ACM-01-01-250630", time.Now())))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ZED-00-01-250615", entries[0].CanonicalID)
	assert.Equal(t, "ACM-01-01-250630", entries[1].CanonicalID)
	assert.Equal(t, "ACM-01-02-250731", entries[2].CanonicalID)
}

func TestFileStoreStableBytesAcrossRegeneration(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	write := func(path string) []byte {
		store, err := NewFileStore(path)
		require.NoError(t, err)
		generated := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
		a := testEntry("ACM-01-01-250630", "ACM-01-01-250630", generated)
		b := testEntry("ACM-01-02-250731", "ACM-01-02-250731", generated)
		a.ID = uuidFromByte(1)
		b.ID = uuidFromByte(2)
		// Insertion order differs between the two runs below.
		if filepath.Base(path) == "second.json" {
			a, b = b, a
		}
		require.NoError(t, store.Put(ctx, a))
		require.NoError(t, store.Put(ctx, b))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return data
	}

	first := write(filepath.Join(dir, "first.json"))
	second := write(filepath.Join(dir, "second.json"))
	assert.Equal(t, string(first), string(second))
}

func TestFileStoreSetStatus(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	ctx := context.Background()

	entry := testEntry("ACM-01-01-250630", "ACM-01-01-250630", time.Now())
	require.NoError(t, store.Put(ctx, entry))

	require.NoError(t, store.SetStatus(ctx, "ACM-01-01-250630", StatusPaid))
	got, err := store.Get(ctx, "ACM-01-01-250630")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)

	assert.Error(t, store.SetStatus(ctx, "ACM-01-01-250630", PaymentStatus("settled")))
	var notFound *ErrNotFound
	assert.ErrorAs(t, store.SetStatus(ctx, "NOPE-00-01-250101", StatusPaid), &notFound)
}
