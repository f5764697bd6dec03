package snapshot

import (
	"context"
	"sort"
	"strings"

	"github.com/dshills/listingstore/internal/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotEditable is returned by Set for columns a display may not change
	ErrNotEditable = errors.New("column is not editable")
	// ErrRowOutOfRange is returned for a row index outside the table
	ErrRowOutOfRange = errors.New("row out of range")
	// ErrUnknownColumn is returned for a column that is not part of the table
	ErrUnknownColumn = errors.New("unknown column")
)

// Reader loads listings for a snapshot
type Reader interface {
	ReadFiltered(ctx context.Context, filter storage.Filter, limit int) ([]storage.Listing, error)
}

// Updater receives location edits made on a snapshot
type Updater interface {
	UpdateLocation(ctx context.Context, edit storage.LocationEdit) error
}

// Table is a detached, editable copy of a set of listings. Edits stay in the
// table until they are submitted. A Table is not safe for concurrent use.
type Table struct {
	rows    []storage.Listing
	pending map[int]struct{}
}

// New returns a table over private copies of rows
func New(rows []storage.Listing) *Table {
	t := &Table{
		rows:    make([]storage.Listing, len(rows)),
		pending: make(map[int]struct{}),
	}
	for i := range rows {
		t.rows[i] = cloneListing(rows[i])
	}
	return t
}

// Load reads up to limit listings matching filter into a new table
func Load(ctx context.Context, r Reader, filter storage.Filter, limit int) (*Table, error) {
	rows, err := r.ReadFiltered(ctx, filter, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load snapshot")
	}
	return New(rows), nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns a copy of row i
func (t *Table) Row(i int) (storage.Listing, error) {
	if i < 0 || i >= len(t.rows) {
		return storage.Listing{}, errors.WithMessagef(ErrRowOutOfRange, "row %d of %d", i, len(t.rows))
	}
	return cloneListing(t.rows[i]), nil
}

// Rows returns copies of every row
func (t *Table) Rows() []storage.Listing {
	out := make([]storage.Listing, len(t.rows))
	for i := range t.rows {
		out[i] = cloneListing(t.rows[i])
	}
	return out
}

// Value returns the display text of one cell
func (t *Table) Value(row int, col Column) (string, error) {
	if row < 0 || row >= len(t.rows) {
		return "", errors.WithMessagef(ErrRowOutOfRange, "row %d of %d", row, len(t.rows))
	}
	if !col.Valid() {
		return "", errors.WithMessage(ErrUnknownColumn, string(col))
	}
	return CellText(&t.rows[row], col), nil
}

// Set changes one location cell. A blank value clears the field.
//
// Editing district or neighborhood re-derives the full address unless it was
// set by hand. Setting the full address marks it as hand-set; clearing it
// returns to the derived value.
func (t *Table) Set(row int, col Column, value string) error {
	if row < 0 || row >= len(t.rows) {
		return errors.WithMessagef(ErrRowOutOfRange, "row %d of %d", row, len(t.rows))
	}
	if !col.Valid() {
		return errors.WithMessage(ErrUnknownColumn, string(col))
	}
	if !Editable(col) {
		return errors.WithMessage(ErrNotEditable, string(col))
	}

	l := &t.rows[row]
	v := optional(value)

	switch col {
	case District:
		l.District = v
	case Neighborhood:
		l.Neighborhood = v
	case FullAddress:
		l.FullAddressOverridden = v != nil
		l.FullAddress = v
	}
	if !l.FullAddressOverridden {
		l.FullAddress = storage.DeriveFullAddress(l.District, l.Neighborhood)
	}

	t.pending[row] = struct{}{}
	return nil
}

// Dirty reports whether any row has unsubmitted edits
func (t *Table) Dirty() bool {
	return len(t.pending) > 0
}

// PendingEdits returns the location of every edited row, in row order
func (t *Table) PendingEdits() []storage.LocationEdit {
	edits := make([]storage.LocationEdit, 0, len(t.pending))
	for _, i := range t.pendingRows() {
		edits = append(edits, locationEdit(&t.rows[i]))
	}
	return edits
}

// Submit sends every pending edit to u. Edits that were applied are no
// longer pending; the rest stay pending and the first failure is returned.
func (t *Table) Submit(ctx context.Context, u Updater) (int, error) {
	var applied int
	var failed []string
	var firstErr error

	for _, i := range t.pendingRows() {
		edit := locationEdit(&t.rows[i])
		if err := u.UpdateLocation(ctx, edit); err != nil {
			log.WithFields(log.Fields{
				"listing": edit.ListingID,
				"error":   err,
			}).Warn("failed to submit location edit")
			failed = append(failed, edit.ListingID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(t.pending, i)
		applied++
	}

	if firstErr != nil {
		return applied, errors.WithMessagef(firstErr, "%d edits failed (%s)", len(failed), strings.Join(failed, ", "))
	}
	return applied, nil
}

func (t *Table) pendingRows() []int {
	rows := make([]int, 0, len(t.pending))
	for i := range t.pending {
		rows = append(rows, i)
	}
	sort.Ints(rows)
	return rows
}

func locationEdit(l *storage.Listing) storage.LocationEdit {
	edit := storage.LocationEdit{
		ListingID:             l.ListingID,
		District:              copyString(l.District),
		Neighborhood:          copyString(l.Neighborhood),
		FullAddressOverridden: l.FullAddressOverridden,
	}
	if l.FullAddressOverridden {
		edit.FullAddress = copyString(l.FullAddress)
	}
	return edit
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func cloneListing(l storage.Listing) storage.Listing {
	l.District = copyString(l.District)
	l.Neighborhood = copyString(l.Neighborhood)
	l.FullAddress = copyString(l.FullAddress)
	l.RoomCount = copyString(l.RoomCount)
	l.GrossArea = copyFloat(l.GrossArea)
	l.Price = copyFloat(l.Price)
	l.ListingDate = copyString(l.ListingDate)
	l.SourceFile = copyString(l.SourceFile)
	return l
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
