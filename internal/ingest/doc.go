// Package ingest loads listing records produced by the extraction pipeline
// into a listing store.
//
// Record files are JSON arrays of types.ListingRecord. Keys may be the
// canonical snake_case names or the spreadsheet labels ("İlan Numarası",
// "Fiyat", ...).
//
// # Basic Usage
//
//	in := ingest.New(store)
//
//	stats, err := in.IngestPaths(ctx, []string{"exports/"}, &ingest.Config{
//	    Workers:      4,
//	    SkipExisting: false,
//	})
//
//	fmt.Println(stats.Summary())
//
// # Batches
//
// Every file is one batch: its records are validated, converted and upserted
// in a single transaction. A malformed record fails the whole file and is
// reported in Statistics.ErrorMessages; other files are unaffected. Records
// without a source file are attributed to the file they were read from.
//
// # Concurrency
//
// Files are read by a bounded errgroup pool. The store serializes the
// writes themselves. Only one run may be active per Ingester; overlapping
// calls fail with ErrIngestInProgress.
//
// Each run is recorded in the analysis log with type "ingest".
package ingest
