package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/listingstore/internal/export"
	"github.com/dshills/listingstore/internal/ingest"
	"github.com/dshills/listingstore/internal/snapshot"
	"github.com/dshills/listingstore/internal/storage"
)

type cmdIngest struct {
	Workers      int  `long:"workers" description:"Files read concurrently (default: configuration, then number of CPUs)"`
	SkipExisting bool `long:"skip-existing" description:"Ignore records whose listing id is already stored"`
	Args         struct {
		Paths []string `positional-arg-name:"path" required:"1"`
	} `positional-args:"yes"`
}

func (cmd *cmdIngest) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	workers := cfg.Ingest.Workers
	if cmd.Workers > 0 {
		workers = cmd.Workers
	}

	stats, err := ingest.New(store).IngestPaths(ctx, cmd.Args.Paths, &ingest.Config{
		Workers:      workers,
		SkipExisting: cmd.SkipExisting || cfg.Ingest.SkipExisting,
	})
	if err != nil {
		return err
	}

	for _, msg := range stats.ErrorMessages {
		fmt.Fprintln(os.Stderr, msg)
	}
	fmt.Printf("%s in %s\n", stats.Summary(), stats.Duration.Round(time.Millisecond))
	if stats.FilesFailed > 0 {
		return errors.Errorf("%d files failed", stats.FilesFailed)
	}
	return nil
}

// listFlags select and present listings
type listFlags struct {
	District     string `long:"district" description:"Only listings in this district"`
	Neighborhood string `long:"neighborhood" description:"Only listings in this neighborhood"`
	RoomCount    string `long:"rooms" description:"Only listings with this room count, e.g. 3+1"`
	Limit        int    `long:"limit" description:"Maximum number of listings (default: configured read limit)"`
	Labels       string `long:"labels" default:"en" choice:"en" choice:"tr" description:"Header language"`
}

func (f *listFlags) labels() snapshot.Labels {
	if f.Labels == "tr" {
		return snapshot.TurkishLabels
	}
	return snapshot.EnglishLabels
}

// read loads the selected listings as a detached snapshot
func (f *listFlags) read(ctx context.Context, store *storage.Store, readLimit int) (*snapshot.Table, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = readLimit
	}
	return snapshot.Load(ctx, store, storage.Filter{
		District:     f.District,
		Neighborhood: f.Neighborhood,
		RoomCount:    f.RoomCount,
	}, limit)
}

type cmdList struct {
	listFlags
	Format string `long:"format" default:"table" choice:"table" choice:"csv" description:"Output format"`
}

func (cmd *cmdList) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	table, err := cmd.read(ctx, store, cfg.Database.ReadLimit)
	if err != nil {
		return err
	}
	if cmd.Format == "csv" {
		return export.WriteCSV(os.Stdout, table.Rows(), cmd.labels())
	}
	return export.RenderTable(os.Stdout, table.Rows(), cmd.labels())
}

type cmdExport struct {
	listFlags
	Output string `long:"output" short:"o" required:"true" description:"CSV file to write"`
}

func (cmd *cmdExport) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	table, err := cmd.read(ctx, store, cfg.Database.ReadLimit)
	if err != nil {
		return err
	}

	f, err := os.Create(cmd.Output)
	if err != nil {
		return errors.Wrap(err, "failed to create output")
	}
	if err := export.WriteCSV(f, table.Rows(), cmd.labels()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.WithFields(log.Fields{"file": cmd.Output, "rows": table.Len()}).Info("exported listings")
	return nil
}

type cmdHistory struct {
	Args struct {
		ListingID string `positional-arg-name:"listing-id" required:"true"`
	} `positional-args:"yes"`
}

func (cmd *cmdHistory) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	listing, err := store.GetListing(ctx, cmd.Args.ListingID)
	if err != nil {
		return errors.WithMessage(err, cmd.Args.ListingID)
	}
	history, err := store.PriceHistory(ctx, cmd.Args.ListingID)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s  current price %s\n", listing.ListingID,
		snapshot.CellText(listing, snapshot.FullAddress), snapshot.FormatPrice(listing.Price))
	return writeHistory(os.Stdout, history)
}

func writeHistory(w io.Writer, history []storage.PricePoint) error {
	var table = tablewriter.NewWriter(w)
	table.Header("Recorded", "Price", "Age")
	for _, p := range history {
		price := p.Price
		if err := table.Append([]string{
			p.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			snapshot.FormatPrice(&price),
			humanize.Time(p.RecordedAt),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

type cmdEdit struct {
	District     *string `long:"district" description:"New district; empty clears it"`
	Neighborhood *string `long:"neighborhood" description:"New neighborhood; empty clears it"`
	FullAddress  *string `long:"full-address" description:"Hand-set full address; empty returns to the derived address"`
	Args         struct {
		ListingID string `positional-arg-name:"listing-id" required:"true"`
	} `positional-args:"yes"`
}

func (cmd *cmdEdit) Execute([]string) error {
	if cmd.District == nil && cmd.Neighborhood == nil && cmd.FullAddress == nil {
		return errors.New("nothing to edit: pass --district, --neighborhood or --full-address")
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	listing, err := store.GetListing(ctx, cmd.Args.ListingID)
	if err != nil {
		return errors.WithMessage(err, cmd.Args.ListingID)
	}

	table := snapshot.New([]storage.Listing{*listing})
	for col, value := range map[snapshot.Column]*string{
		snapshot.District:     cmd.District,
		snapshot.Neighborhood: cmd.Neighborhood,
	} {
		if value != nil {
			if err := table.Set(0, col, *value); err != nil {
				return err
			}
		}
	}
	// Applied last so a district change cannot re-derive over it
	if cmd.FullAddress != nil {
		if err := table.Set(0, snapshot.FullAddress, *cmd.FullAddress); err != nil {
			return err
		}
	}

	if _, err := table.Submit(ctx, store); err != nil {
		return err
	}

	addr, _ := table.Value(0, snapshot.FullAddress)
	fmt.Printf("%s: %s\n", cmd.Args.ListingID, addr)
	return nil
}

type cmdAnalyses struct {
	Limit int `long:"limit" default:"20" description:"Number of entries"`
}

func (cmd *cmdAnalyses) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListAnalyses(ctx, cmd.Limit)
	if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(os.Stdout)
	table.Header("When", "Type", "Parameters", "Summary")
	for _, r := range records {
		if err := table.Append([]string{
			humanize.Time(r.CreatedAt), r.AnalysisType, r.Parameters, r.ResultSummary,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

type cmdBackup struct {
	Args struct {
		Destination string `positional-arg-name:"destination" required:"true"`
	} `positional-args:"yes"`
}

func (cmd *cmdBackup) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return store.BackupTo(ctx, cmd.Args.Destination)
}

type cmdReset struct {
	Yes bool `long:"yes" description:"Confirm deleting all data"`
}

func (cmd *cmdReset) Execute([]string) error {
	if !cmd.Yes {
		return errors.New("refusing to delete all data without --yes")
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return store.ClearAll(ctx)
}

type cmdStatus struct{}

func (cmdStatus) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	_, store, err := openStore(ctx, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(os.Stdout)
	for _, row := range [][]string{
		{"Path", stats.Path},
		{"Schema", stats.SchemaVersion},
		{"Size", humanize.Bytes(uint64(stats.SizeBytes))},
		{"Listings", humanize.Comma(int64(stats.Listings))},
		{"Price changes", humanize.Comma(int64(stats.PriceHistoryEntries))},
		{"Analyses", strconv.Itoa(stats.Analyses)},
	} {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
