package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingIDs(listings []Listing) []string {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ListingID)
	}
	return ids
}

func TestReadAll_OrderAndLimit(t *testing.T) {
	fakeClock(t)
	ctx := context.Background()
	store := setupTestDB(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.UpsertBatch(ctx, []Listing{listing(fmt.Sprintf("R%d", i), ptr(float64(i)))}))
	}
	// Touching R2 moves it to the front
	require.NoError(t, store.UpsertBatch(ctx, []Listing{listing("R2", ptr(2.0))}))

	all, err := store.ReadAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"R2", "R5", "R4", "R3", "R1"}, listingIDs(all))

	for _, limit := range []int{1, 3, 5, 10} {
		rows, err := store.ReadAll(ctx, limit)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(rows), limit)
		assert.Equal(t, listingIDs(all)[:len(rows)], listingIDs(rows))
	}
}

func TestReadAll_SameBatchOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	require.NoError(t, store.UpsertBatch(ctx, []Listing{
		listing("S1", nil), listing("S2", nil), listing("S3", nil),
	}))

	rows, err := store.ReadAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"S3", "S2", "S1"}, listingIDs(rows), "ties break on insertion order, newest first")
}

func TestReadAll_Empty(t *testing.T) {
	store := setupTestDB(t)
	rows, err := store.ReadAll(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestReadAll_RowsAreDetached(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	require.NoError(t, store.UpsertBatch(ctx, []Listing{listing("X1", ptr(10.0))}))

	rows, err := store.ReadAll(ctx, 1)
	require.NoError(t, err)
	*rows[0].District = "Edited"
	*rows[0].Price = 99

	got, err := store.GetListing(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, "Kadıköy", *got.District)
	assert.Equal(t, 10.0, *got.Price)
}

func TestReadAll_NullFields(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	require.NoError(t, store.UpsertBatch(ctx, []Listing{{ListingID: "N1"}}))

	rows, err := store.ReadAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0]
	assert.Nil(t, got.District)
	assert.Nil(t, got.Neighborhood)
	assert.Nil(t, got.FullAddress)
	assert.Nil(t, got.RoomCount)
	assert.Nil(t, got.GrossArea)
	assert.Nil(t, got.Price)
	assert.Nil(t, got.ListingDate)
	assert.Nil(t, got.SourceFile)
	assert.False(t, got.CreatedAt.IsZero())
}

func seedLocations(t *testing.T, store *Store) {
	t.Helper()
	rows := []Listing{
		{ListingID: "1", District: ptr("Kadıköy"), Neighborhood: ptr("Moda"), RoomCount: ptr("3+1")},
		{ListingID: "2", District: ptr("Kadıköy"), Neighborhood: ptr("Fenerbahçe"), RoomCount: ptr("2+1")},
		{ListingID: "3", District: ptr("Beşiktaş"), Neighborhood: ptr("Levent"), RoomCount: ptr("3+1")},
		{ListingID: "4", District: ptr("Beşiktaş"), RoomCount: ptr("10+2")},
		{ListingID: "5"},
	}
	require.NoError(t, store.UpsertBatch(context.Background(), rows))
}

func TestReadFiltered(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedLocations(t, store)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"5", "4", "3", "2", "1"}},
		{"district", Filter{District: "Kadıköy"}, []string{"2", "1"}},
		{"district and neighborhood", Filter{District: "Kadıköy", Neighborhood: "Moda"}, []string{"1"}},
		{"room count", Filter{RoomCount: "3+1"}, []string{"3", "1"}},
		{"all fields", Filter{District: "Beşiktaş", Neighborhood: "Levent", RoomCount: "3+1"}, []string{"3"}},
		{"no match", Filter{District: "Sarıyer"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := store.ReadFiltered(ctx, tt.filter, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, listingIDs(rows))
		})
	}
}

func TestDistinct(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedLocations(t, store)

	districts, err := store.Distinct(ctx, "district")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beşiktaş", "Kadıköy"}, districts)

	// Room counts are text and sort lexically
	rooms, err := store.Distinct(ctx, "room_count")
	require.NoError(t, err)
	assert.Equal(t, []string{"10+2", "2+1", "3+1"}, rooms)

	_, err = store.Distinct(ctx, "price; DROP TABLE listings")
	assert.ErrorIs(t, err, ErrInvalidColumn)
}
