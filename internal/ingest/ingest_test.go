package ingest

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/listingstore/internal/storage"
	"github.com/dshills/listingstore/pkg/types"
)

// setupTestStorage creates an in-memory store for testing
func setupTestStorage(t testing.TB) *storage.Store {
	t.Helper()

	store, err := storage.Open(context.Background(), storage.Options{Path: ":memory:"})
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// createTestFile writes a record file into fs
func createTestFile(t testing.TB, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestIngestPaths_Success(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)

	createTestFile(t, fs, "/exports/a.json", `[
		{"listing_id": "1", "district": "Kadıköy", "neighborhood": "Moda", "price": 4250000},
		{"listing_id": "2", "district": "Beşiktaş", "price": 3100000}
	]`)
	createTestFile(t, fs, "/exports/nested/b.json", `[
		{"İlan Numarası": "3", "İlçe": "Üsküdar", "Fiyat": 2000000, "Kaynak Dosya": "satilik.pdf"}
	]`)
	createTestFile(t, fs, "/exports/notes.txt", "not records")

	stats, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/exports"}, &Config{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIngested)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 3, stats.Inserted)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.PriceChanges)
	assert.Empty(t, stats.ErrorMessages)

	one, err := store.GetListing(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Kadıköy/Moda", *one.FullAddress)
	assert.Equal(t, "a.json", *one.SourceFile, "source defaults to the file name")

	three, err := store.GetListing(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "satilik.pdf", *three.SourceFile)
}

func TestIngestPaths_PriceChanges(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)
	in := NewWithFs(store, fs)

	createTestFile(t, fs, "/day1.json", `[{"listing_id": "A1", "price": 100}, {"listing_id": "A2", "price": 50}]`)
	createTestFile(t, fs, "/day2.json", `[{"listing_id": "A1", "price": 110}, {"listing_id": "A2", "price": 50}]`)

	_, err := in.IngestPaths(ctx, []string{"/day1.json"}, nil)
	require.NoError(t, err)
	stats, err := in.IngestPaths(ctx, []string{"/day2.json"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 2, stats.Updated)
	assert.Equal(t, 1, stats.PriceChanges)

	history, err := store.PriceHistory(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 110.0, history[0].Price)
}

func TestIngestPaths_SkipExisting(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)

	require.NoError(t, store.UpsertBatch(ctx, []storage.Listing{{ListingID: "1", Price: ptr(100.0)}}))
	createTestFile(t, fs, "/in.json", `[{"listing_id": "1", "price": 999}, {"listing_id": "2"}]`)

	stats, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/in.json"}, &Config{SkipExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Inserted)

	got, err := store.GetListing(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, *got.Price, "known listings are left alone")
}

func TestIngestPaths_BadFileFailsAlone(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)

	createTestFile(t, fs, "/in/good.json", `[{"listing_id": "G1"}]`)
	createTestFile(t, fs, "/in/invalid.json", `[{"listing_id": "V1"}, {"listing_id": ""}]`)
	createTestFile(t, fs, "/in/broken.json", `[{"listing_id": `)

	stats, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/in"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIngested)
	assert.Equal(t, 2, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 2)
	assert.Contains(t, stats.ErrorMessages[0], "broken.json")
	assert.Contains(t, stats.ErrorMessages[1], "invalid.json")

	ids, err := store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"G1": {}}, ids, "a bad record fails its whole file")
}

func TestIngestPaths_MissingPath(t *testing.T) {
	store := setupTestStorage(t)
	_, err := NewWithFs(store, afero.NewMemMapFs()).IngestPaths(context.Background(), []string{"/nope"}, nil)
	assert.Error(t, err)
}

func TestIngestPaths_InProgress(t *testing.T) {
	store := setupTestStorage(t)
	in := NewWithFs(store, afero.NewMemMapFs())

	require.True(t, in.lock.TryAcquire())
	_, err := in.IngestPaths(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrIngestInProgress)

	in.lock.Release()
	_, err = in.IngestPaths(context.Background(), nil, nil)
	assert.NoError(t, err)
}

func TestIngestPaths_ContextCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)
	createTestFile(t, fs, "/a.json", `[{"listing_id": "1"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/a.json"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestPaths_RecordsRun(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)
	createTestFile(t, fs, "/a.json", `[{"listing_id": "1"}]`)

	stats, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/a.json"}, nil)
	require.NoError(t, err)

	records, err := store.ListAnalyses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, AnalysisType, records[0].AnalysisType)
	assert.Equal(t, stats.Summary(), records[0].ResultSummary)
	assert.JSONEq(t, `{"files":["/a.json"],"skip_existing":false}`, records[0].Parameters)
}

func TestIngestPaths_ManyFiles(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := setupTestStorage(t)

	for i := 0; i < 40; i++ {
		createTestFile(t, fs, fmt.Sprintf("/bulk/f%02d.json", i),
			fmt.Sprintf(`[{"listing_id": "L%d", "price": %d}, {"listing_id": "shared", "price": 1}]`, i, i))
	}

	stats, err := NewWithFs(store, fs).IngestPaths(ctx, []string{"/bulk"}, &Config{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, 40, stats.FilesIngested)
	assert.Equal(t, 41, stats.Inserted)
	assert.Equal(t, 39, stats.Updated)

	ids, err := store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 41)
}

func TestDiscoverFiles_SkipsHiddenDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestFile(t, fs, "/root/a.json", "[]")
	createTestFile(t, fs, "/root/B.JSON", "[]")
	createTestFile(t, fs, "/root/.cache/c.json", "[]")
	createTestFile(t, fs, "/single.json", "[]")

	in := NewWithFs(nil, fs)
	files, err := in.discoverFiles([]string{"/root", "/single.json"})
	require.NoError(t, err)

	want := []string{"/root/B.JSON", "/root/a.json", "/single.json"}
	sort.Strings(want)
	assert.Equal(t, want, files)
}

func TestToListings(t *testing.T) {
	records := []types.ListingRecord{
		{ListingID: " 42 ", Price: ptr(10.0)},
		{ListingID: "43", District: ptr("Şişli")},
	}
	listings, err := ToListings(records)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "42", listings[0].ListingID)
	assert.Equal(t, "Şişli", *listings[1].District)
	assert.False(t, listings[1].FullAddressOverridden)

	_, err = ToListings([]types.ListingRecord{{ListingID: "1"}, {ListingID: "2", Price: ptr(-5.0)}})
	assert.ErrorIs(t, err, types.ErrNegativePrice)
	assert.Contains(t, err.Error(), "record 1")
}

func ptr[T any](v T) *T {
	return &v
}
