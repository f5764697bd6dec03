package storage

import (
	"context"
	"database/sql"
	"time"
)

// Storage defines the interface for persisting and querying listing data
type Storage interface {
	// Listing operations
	UpsertBatch(ctx context.Context, listings []Listing) error
	UpsertBatchStats(ctx context.Context, listings []Listing) (*BatchResult, error)
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
	GetListing(ctx context.Context, listingID string) (*Listing, error)
	UpdateLocation(ctx context.Context, edit LocationEdit) error
	PriceHistory(ctx context.Context, listingID string) ([]PricePoint, error)

	// Snapshot operations
	ReadAll(ctx context.Context, limit int) ([]Listing, error)
	ReadFiltered(ctx context.Context, filter Filter, limit int) ([]Listing, error)
	Distinct(ctx context.Context, column string) ([]string, error)

	// Analysis log operations
	RecordAnalysis(ctx context.Context, analysisType string, params any, summary string) error
	ListAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error)

	// Database operations
	Stats(ctx context.Context) (*Stats, error)
	ClearAll(ctx context.Context) error
	BackupTo(ctx context.Context, path string) error
	Close() error
}

// Querier is implemented by both *sql.DB and *sql.Tx. Units of work passed to
// WithTransaction receive the transaction through it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Listing is one row per unique listing_id
type Listing struct {
	ID                    int64
	ListingID             string
	District              *string
	Neighborhood          *string
	FullAddress           *string
	FullAddressOverridden bool    // FullAddress was set by hand and is not re-derived
	RoomCount             *string // Free text, e.g. "3+1"; compared lexically
	GrossArea             *float64
	Price                 *float64
	ListingDate           *string
	SourceFile            *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PricePoint is a single recorded price change
type PricePoint struct {
	Price      float64
	RecordedAt time.Time
}

// AnalysisRecord is an entry of the analysis log
type AnalysisRecord struct {
	ID            int64
	AnalysisType  string
	Parameters    string
	ResultSummary string
	CreatedAt     time.Time
}

// LocationEdit replaces the location fields of a single listing.
//
// When FullAddressOverridden is false, FullAddress is ignored and derived from
// District and Neighborhood instead.
type LocationEdit struct {
	ListingID             string
	District              *string
	Neighborhood          *string
	FullAddress           *string
	FullAddressOverridden bool
}

// BatchResult summarizes an UpsertBatchStats call
type BatchResult struct {
	BatchID      string
	Inserted     int
	Updated      int
	PriceChanges int
}

// Filter narrows ReadFiltered results. Empty fields match everything.
type Filter struct {
	District     string
	Neighborhood string
	RoomCount    string
}

// Stats contains row counts and file information for a store
type Stats struct {
	Path                string
	SchemaVersion       string
	Listings            int
	PriceHistoryEntries int
	Analyses            int
	SizeBytes           int64
}
