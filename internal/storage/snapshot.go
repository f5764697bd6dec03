package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultReadLimit caps snapshot reads when no limit is given
const DefaultReadLimit = 5000

// ErrInvalidColumn is returned by Distinct for columns it does not serve
var ErrInvalidColumn = errors.New("invalid column")

// filterColumns are the indexed location columns plus room_count
var filterColumns = map[string]bool{
	"district":     true,
	"neighborhood": true,
	"room_count":   true,
}

// ReadAll returns up to limit listings, most recently updated first.
// A limit <= 0 means DefaultReadLimit. The returned rows are detached copies.
func (s *Store) ReadAll(ctx context.Context, limit int) ([]Listing, error) {
	return s.ReadFiltered(ctx, Filter{}, limit)
}

// ReadFiltered is ReadAll restricted to listings matching every non-empty
// field of filter. Room counts are compared as text.
func (s *Store) ReadFiltered(ctx context.Context, filter Filter, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var where []string
	var args []interface{}
	for _, cond := range []struct {
		column, value string
	}{
		{"district", filter.District},
		{"neighborhood", filter.Neighborhood},
		{"room_count", filter.RoomCount},
	} {
		if cond.value != "" {
			where = append(where, cond.column+" = ?")
			args = append(args, cond.value)
		}
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	listings := make([]Listing, 0)
	err := s.withConn(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			listing, err := scanListing(rows)
			if err != nil {
				return err
			}
			listings = append(listings, *listing)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.fail("read_listings", err, log.Fields{"limit": limit})
	}
	return listings, nil
}

// Distinct returns the distinct non-empty values of a filter column in
// lexical order. Supported columns are district, neighborhood and room_count.
func (s *Store) Distinct(ctx context.Context, column string) ([]string, error) {
	if !filterColumns[column] {
		return nil, errors.WithMessage(ErrInvalidColumn, column)
	}

	values := make([]string, 0)
	err := s.withConn(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT DISTINCT `+column+` FROM listings WHERE `+column+` IS NOT NULL AND `+column+` != '' ORDER BY `+column)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, s.fail("distinct", err, log.Fields{"column": column})
	}
	return values, nil
}
