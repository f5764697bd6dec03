package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/listingstore/internal/storage"
	"github.com/dshills/listingstore/pkg/types"
)

// ErrIngestInProgress is returned when a run starts while another is active
var ErrIngestInProgress = errors.New("ingest already in progress")

// AnalysisType is the analysis log entry recorded after every run
const AnalysisType = "ingest"

// Ingester loads listing record files into a store
type Ingester struct {
	storage storage.Storage
	fs      afero.Fs
	lock    runLock
}

// Config contains configuration for an ingest run
type Config struct {
	Workers      int  // Number of files read concurrently (default: runtime.NumCPU())
	SkipExisting bool // Drop records whose listing id is already stored
}

// Statistics summarizes an ingest run
type Statistics struct {
	FilesIngested int
	FilesFailed   int
	Inserted      int
	Updated       int
	Skipped       int
	PriceChanges  int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates an Ingester reading from the OS filesystem
func New(store storage.Storage) *Ingester {
	return NewWithFs(store, afero.NewOsFs())
}

// NewWithFs creates an Ingester reading from fs
func NewWithFs(store storage.Storage, fs afero.Fs) *Ingester {
	return &Ingester{storage: store, fs: fs}
}

// IngestPaths ingests every record file named by paths. A directory
// contributes each .json file below it.
//
// Each file is upserted as one atomic batch, so a malformed record fails
// its whole file while other files still load. The returned error is only
// set when the run itself could not proceed.
func (in *Ingester) IngestPaths(ctx context.Context, paths []string, config *Config) (*Statistics, error) {
	if !in.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer in.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	files, err := in.discoverFiles(paths)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover files")
	}

	var existing map[string]struct{}
	if config.SkipExisting {
		if existing, err = in.storage.ExistingIDs(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to load existing ids")
		}
	}

	if err := in.ingestFiles(ctx, files, workers, existing, stats); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(startTime)

	in.recordRun(ctx, files, config, stats)
	return stats, nil
}

// discoverFiles expands directories into the .json files they contain
func (in *Ingester) discoverFiles(paths []string) ([]string, error) {
	var files []string

	for _, root := range paths {
		info, err := in.fs.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = afero.Walk(in.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				// Skip hidden directories
				if path != root && strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

// ingestFiles upserts one batch per file using a bounded worker pool
func (in *Ingester) ingestFiles(ctx context.Context, files []string, workers int,
	existing map[string]struct{}, stats *Statistics) error {

	var (
		ingested int32
		failed   int32
		inserted int32
		updated  int32
		skipped  int32
		changes  int32
	)
	var mu sync.Mutex // Protect stats.ErrorMessages

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			result, skip, err := in.ingestFile(gctx, path, existing)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				log.WithFields(log.Fields{"file": path, "error": err}).Warn("failed to ingest file")
				// Continue with other files
				return nil
			}

			atomic.AddInt32(&ingested, 1)
			atomic.AddInt32(&inserted, int32(result.Inserted))
			atomic.AddInt32(&updated, int32(result.Updated))
			atomic.AddInt32(&changes, int32(result.PriceChanges))
			atomic.AddInt32(&skipped, int32(skip))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sort.Strings(stats.ErrorMessages)
	stats.FilesIngested = int(ingested)
	stats.FilesFailed = int(failed)
	stats.Inserted = int(inserted)
	stats.Updated = int(updated)
	stats.Skipped = int(skipped)
	stats.PriceChanges = int(changes)
	return nil
}

// ingestFile reads, validates and upserts the records of one file
func (in *Ingester) ingestFile(ctx context.Context, path string, existing map[string]struct{}) (*storage.BatchResult, int, error) {
	records, err := in.readRecords(path)
	if err != nil {
		return nil, 0, err
	}

	source := filepath.Base(path)
	for i := range records {
		if records[i].SourceFile == nil {
			records[i].SourceFile = &source
		}
	}

	listings, err := ToListings(records)
	if err != nil {
		return nil, 0, err
	}

	var skipped int
	if existing != nil {
		kept := listings[:0]
		for _, l := range listings {
			if _, ok := existing[l.ListingID]; ok {
				skipped++
				continue
			}
			kept = append(kept, l)
		}
		listings = kept
	}

	result, err := in.storage.UpsertBatchStats(ctx, listings)
	if err != nil {
		return nil, 0, err
	}
	return result, skipped, nil
}

// readRecords decodes a JSON array of listing records
func (in *Ingester) readRecords(path string) ([]types.ListingRecord, error) {
	f, err := in.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []types.ListingRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "failed to decode records")
	}
	return records, nil
}

// recordRun logs a run summary to the analysis log. A failure here does not
// fail the run.
func (in *Ingester) recordRun(ctx context.Context, files []string, config *Config, stats *Statistics) {
	params := map[string]interface{}{
		"files":         files,
		"skip_existing": config.SkipExisting,
	}
	summary := stats.Summary()

	if err := in.storage.RecordAnalysis(ctx, AnalysisType, params, summary); err != nil {
		log.WithField("error", err).Warn("failed to record ingest run")
	}
	log.WithFields(log.Fields{
		"files":    len(files),
		"inserted": stats.Inserted,
		"updated":  stats.Updated,
		"skipped":  stats.Skipped,
		"failed":   stats.FilesFailed,
		"duration": stats.Duration,
	}).Info("ingest finished")
}

// Summary describes the run in one line
func (s *Statistics) Summary() string {
	return fmt.Sprintf("%d files ingested, %d failed; %d inserted, %d updated, %d skipped, %d price changes",
		s.FilesIngested, s.FilesFailed, s.Inserted, s.Updated, s.Skipped, s.PriceChanges)
}

// ToListing converts a record into the stored form. The record must be valid.
func ToListing(r types.ListingRecord) storage.Listing {
	return storage.Listing{
		ListingID:             strings.TrimSpace(r.ListingID),
		District:              r.District,
		Neighborhood:          r.Neighborhood,
		FullAddress:           r.FullAddress,
		FullAddressOverridden: false,
		RoomCount:             r.RoomCount,
		GrossArea:             r.GrossArea,
		Price:                 r.Price,
		ListingDate:           r.ListingDate,
		SourceFile:            r.SourceFile,
	}
}

// ToListings validates and converts records, failing on the first invalid one
func ToListings(records []types.ListingRecord) ([]storage.Listing, error) {
	listings := make([]storage.Listing, 0, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, errors.WithMessagef(err, "record %d", i)
		}
		listings = append(listings, ToListing(records[i]))
	}
	return listings, nil
}
