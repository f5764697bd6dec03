package storage

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidListing is returned when a listing in a batch is malformed
var ErrInvalidListing = errors.New("invalid listing")

const listingColumns = `
	id, listing_id, district, neighborhood, full_address, full_address_overridden,
	room_count, gross_area, price, listing_date, source_file, created_at, updated_at`

// DeriveFullAddress builds the default full address from its parts:
// "district/neighborhood", just the district, or nil without a district.
func DeriveFullAddress(district, neighborhood *string) *string {
	if isBlank(district) {
		return nil
	}
	addr := strings.TrimSpace(*district)
	if !isBlank(neighborhood) {
		addr += "/" + strings.TrimSpace(*neighborhood)
	}
	return &addr
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func validateListing(l *Listing) error {
	if strings.TrimSpace(l.ListingID) == "" {
		return errors.WithMessage(ErrInvalidListing, "listing_id is required")
	}
	for name, v := range map[string]*float64{"price": l.Price, "gross_area": l.GrossArea} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return errors.WithMessagef(ErrInvalidListing, "%s of %s is not a finite number", name, l.ListingID)
		}
		if *v < 0 {
			return errors.WithMessagef(ErrInvalidListing, "%s of %s is negative", name, l.ListingID)
		}
	}
	return nil
}

// UpsertBatch inserts or replaces every listing in one transaction, appending
// a price history entry for each existing listing whose price changed. Either
// the whole batch is applied or none of it is.
func (s *Store) UpsertBatch(ctx context.Context, listings []Listing) error {
	_, err := s.UpsertBatchStats(ctx, listings)
	return err
}

// UpsertBatchStats is UpsertBatch, reporting what the batch changed
func (s *Store) UpsertBatchStats(ctx context.Context, listings []Listing) (*BatchResult, error) {
	result := &BatchResult{BatchID: uuid.NewString()}
	if len(listings) == 0 {
		return result, nil
	}

	err := s.WithTransaction(ctx, func(q Querier) error {
		ts := formatTimestamp(now())
		for _, listing := range listings {
			inserted, changed, err := upsertListingWithQuerier(ctx, q, &listing, ts)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
			if changed {
				result.PriceChanges++
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("upsert_batch", err, log.Fields{"batch": result.BatchID, "size": len(listings)})
	}

	s.metrics.upserted.WithLabelValues("inserted").Add(float64(result.Inserted))
	s.metrics.upserted.WithLabelValues("updated").Add(float64(result.Updated))
	s.metrics.priceChanges.Add(float64(result.PriceChanges))

	log.WithFields(log.Fields{
		"batch":         result.BatchID,
		"inserted":      result.Inserted,
		"updated":       result.Updated,
		"price_changes": result.PriceChanges,
	}).Info("upserted listing batch")
	return result, nil
}

// upsertListingWithQuerier writes one listing and records a price change if
// needed. It reports whether the row was new and whether the price changed.
func upsertListingWithQuerier(ctx context.Context, q Querier, l *Listing, ts string) (inserted, priceChanged bool, err error) {
	if err := validateListing(l); err != nil {
		return false, false, err
	}

	var prior sql.NullFloat64
	err = q.QueryRowContext(ctx, `SELECT price FROM listings WHERE listing_id = ?`, l.ListingID).Scan(&prior)
	existed := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, false, errors.Wrapf(err, "failed to read price of %s", l.ListingID)
	}

	if !l.FullAddressOverridden && l.FullAddress == nil {
		l.FullAddress = DeriveFullAddress(l.District, l.Neighborhood)
	}

	query := `
		INSERT INTO listings (
			listing_id, district, neighborhood, full_address, full_address_overridden,
			room_count, gross_area, price, listing_date, source_file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			district = excluded.district,
			neighborhood = excluded.neighborhood,
			full_address = excluded.full_address,
			full_address_overridden = excluded.full_address_overridden,
			room_count = excluded.room_count,
			gross_area = excluded.gross_area,
			price = excluded.price,
			listing_date = excluded.listing_date,
			source_file = excluded.source_file,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		l.ListingID, nullString(l.District), nullString(l.Neighborhood), nullString(l.FullAddress),
		l.FullAddressOverridden, nullString(l.RoomCount), nullFloat(l.GrossArea), nullFloat(l.Price),
		nullString(l.ListingDate), nullString(l.SourceFile), ts, ts)
	if err != nil {
		return false, false, errors.Wrapf(err, "failed to upsert listing %s", l.ListingID)
	}

	// Only a change between two known prices is history.
	if existed && prior.Valid && l.Price != nil && prior.Float64 != *l.Price {
		_, err = q.ExecContext(ctx,
			`INSERT INTO price_history (listing_id, price, recorded_at) VALUES (?, ?, ?)`,
			l.ListingID, *l.Price, ts)
		if err != nil {
			return false, false, errors.Wrapf(err, "failed to record price change of %s", l.ListingID)
		}
		priceChanged = true
	}
	return !existed, priceChanged, nil
}

// ExistingIDs returns the set of all known listing ids
func (s *Store) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := s.withConn(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT listing_id FROM listings`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids[id] = struct{}{}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.fail("existing_ids", err, nil)
	}
	return ids, nil
}

// GetListing returns a single listing by its listing id
func (s *Store) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	var listing *Listing
	err := s.withConn(ctx, func(q Querier) error {
		row := q.QueryRowContext(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE listing_id = ?`, listingID)
		var err error
		listing, err = scanListing(row)
		return err
	})
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.fail("get_listing", err, log.Fields{"listing": listingID})
	}
	return listing, nil
}

// UpdateLocation replaces the district, neighborhood and full address of one
// listing. Unless the edit marks the full address as overridden, it is
// derived from the district and neighborhood. Price history is not touched.
func (s *Store) UpdateLocation(ctx context.Context, edit LocationEdit) error {
	fullAddress := edit.FullAddress
	if !edit.FullAddressOverridden {
		fullAddress = DeriveFullAddress(edit.District, edit.Neighborhood)
	}

	err := s.WithTransaction(ctx, func(q Querier) error {
		res, err := q.ExecContext(ctx, `
			UPDATE listings
			SET district = ?, neighborhood = ?, full_address = ?,
			    full_address_overridden = ?, updated_at = ?
			WHERE listing_id = ?
		`, nullString(edit.District), nullString(edit.Neighborhood), nullString(fullAddress),
			edit.FullAddressOverridden, formatTimestamp(now()), edit.ListingID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err == ErrNotFound {
		return err
	}
	if err != nil {
		return s.fail("update_location", err, log.Fields{"listing": edit.ListingID})
	}
	return nil
}

// PriceHistory returns recorded price changes of a listing, oldest first
func (s *Store) PriceHistory(ctx context.Context, listingID string) ([]PricePoint, error) {
	history := make([]PricePoint, 0)
	err := s.withConn(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT price, recorded_at
			FROM price_history
			WHERE listing_id = ?
			ORDER BY recorded_at, id
		`, listingID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var point PricePoint
			var recordedAt sql.NullString
			if err := rows.Scan(&point.Price, &recordedAt); err != nil {
				return err
			}
			if point.RecordedAt, err = parseNullTimestamp(recordedAt); err != nil {
				return err
			}
			history = append(history, point)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.fail("price_history", err, log.Fields{"listing": listingID})
	}
	return history, nil
}

// ClearAll deletes every listing, price history entry and analysis record in
// one transaction. It cannot be undone.
func (s *Store) ClearAll(ctx context.Context) error {
	err := s.WithTransaction(ctx, func(q Querier) error {
		for _, table := range []string{"listings", "analysis_history", "price_history"} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrapf(err, "failed to clear %s", table)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail("clear_all", err, nil)
	}
	log.WithField("path", s.opts.Path).Warn("cleared all listing data")
	return nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	var district, neighborhood, fullAddress, roomCount, listingDate, sourceFile sql.NullString
	var grossArea, price sql.NullFloat64
	var createdAt, updatedAt sql.NullString

	err := row.Scan(
		&l.ID, &l.ListingID, &district, &neighborhood, &fullAddress, &l.FullAddressOverridden,
		&roomCount, &grossArea, &price, &listingDate, &sourceFile, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.District = stringPtr(district)
	l.Neighborhood = stringPtr(neighborhood)
	l.FullAddress = stringPtr(fullAddress)
	l.RoomCount = stringPtr(roomCount)
	l.GrossArea = floatPtr(grossArea)
	l.Price = floatPtr(price)
	l.ListingDate = stringPtr(listingDate)
	l.SourceFile = stringPtr(sourceFile)
	if l.CreatedAt, err = parseNullTimestamp(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseNullTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
