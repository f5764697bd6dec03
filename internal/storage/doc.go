// Package storage provides SQLite-based persistence for real-estate listings.
//
// The storage layer manages:
//   - Listings, deduplicated by their external listing id
//   - An append-only history of price changes per listing
//   - An append-only log of analysis operations
//   - Point-in-time backups and full resets
//
// # Database Schema
//
// Tables:
//   - listings: one row per listing_id, replaced in place on upsert
//   - price_history: (listing_id, price, recorded_at), appended on price change
//   - analysis_history: (analysis_type, parameters, result_summary, created_at)
//   - schema_version: version the file was created with
//
// EnsureSchema creates missing tables and indexes and never alters existing
// ones.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, storage.Options{Path: "real_estate_analysis.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	price := 1250000.0
//	err = store.UpsertBatch(ctx, []storage.Listing{{
//	    ListingID: "1029384756",
//	    District:  ptr("Kadıköy"),
//	    Price:     &price,
//	}})
//
// # Concurrency
//
// A Store owns exactly one connection and a mutex. Every operation holds the
// mutex for the duration of one statement or one transaction, so a Store may
// be shared freely between goroutines. Only one Store may be open per
// database file in a process; Open reports ErrAlreadyOpen otherwise.
//
// # Transactions
//
// WithTransaction runs a unit of work atomically:
//
//	err := store.WithTransaction(ctx, func(q storage.Querier) error {
//	    _, err := q.ExecContext(ctx, "DELETE FROM analysis_history WHERE analysis_type = ?", "draft")
//	    return err
//	})
//
// The unit of work must not call other Store methods; it would deadlock on
// the store mutex.
//
// # Errors
//
// Open failures are fatal and returned to the caller. Every later operation
// rolls back, logs, and returns an error on failure; a non-nil error means no
// state changed.
package storage
