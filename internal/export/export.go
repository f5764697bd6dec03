// Package export writes listing snapshots as CSV files and text tables.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/dshills/listingstore/internal/snapshot"
	"github.com/dshills/listingstore/internal/storage"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// WriteCSV writes a header row and one record per listing. Numbers are
// written unformatted so the file can be re-imported; missing values are
// empty cells.
func WriteCSV(w io.Writer, rows []storage.Listing, labels snapshot.Labels) error {
	if labels == nil {
		labels = snapshot.EnglishLabels
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(labels.Header(snapshot.Columns)); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i := range rows {
		if err := cw.Write(csvRecord(&rows[i])); err != nil {
			return errors.Wrapf(err, "failed to write listing %s", rows[i].ListingID)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}

func csvRecord(l *storage.Listing) []string {
	record := make([]string, len(snapshot.Columns))
	for i, c := range snapshot.Columns {
		switch c {
		case snapshot.Price:
			record[i] = formatNumber(l.Price)
		case snapshot.GrossArea:
			record[i] = formatNumber(l.GrossArea)
		default:
			record[i] = snapshot.CellText(l, c)
		}
	}
	return record
}

func formatNumber(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// RenderTable writes rows as a human-readable table with formatted prices
// and areas. Listings above snapshot.HighPriceThreshold are marked with "*".
func RenderTable(w io.Writer, rows []storage.Listing, labels snapshot.Labels) error {
	if labels == nil {
		labels = snapshot.EnglishLabels
	}

	var table = tablewriter.NewWriter(w)

	var headers []any
	for _, h := range labels.Header(snapshot.Columns) {
		headers = append(headers, h)
	}
	table.Header(headers...)

	for i := range rows {
		var row = snapshot.Record(&rows[i], snapshot.Columns)
		if snapshot.IsHighPrice(rows[i].Price) {
			row[priceIndex] += " *"
		}
		if err := table.Append(row); err != nil {
			return errors.Wrapf(err, "failed to append listing %s", rows[i].ListingID)
		}
	}
	return errors.Wrap(table.Render(), "failed to render table")
}

var priceIndex = func() int {
	for i, c := range snapshot.Columns {
		if c == snapshot.Price {
			return i
		}
	}
	panic("price column missing")
}()
