package types

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// ListingRecord is a single listing as produced by the extraction pipeline
type ListingRecord struct {
	ListingID    string   `json:"listing_id"`
	District     *string  `json:"district,omitempty"`
	Neighborhood *string  `json:"neighborhood,omitempty"`
	FullAddress  *string  `json:"full_address,omitempty"`
	RoomCount    *string  `json:"room_count,omitempty"`
	GrossArea    *float64 `json:"gross_area,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	ListingDate  *string  `json:"listing_date,omitempty"`
	SourceFile   *string  `json:"source_file,omitempty"`
}

// recordKeys lists the accepted JSON keys per field, canonical key first
var recordKeys = map[string][]string{
	"listing_id":   {"listing_id", "İlan Numarası"},
	"district":     {"district", "İlçe"},
	"neighborhood": {"neighborhood", "Semt"},
	"full_address": {"full_address", "Tam Adres"},
	"room_count":   {"room_count", "Oda Sayısı"},
	"gross_area":   {"gross_area", "m² (Brüt)"},
	"price":        {"price", "Fiyat"},
	"listing_date": {"listing_date", "İlan Tarihi"},
	"source_file":  {"source_file", "Kaynak Dosya"},
}

// UnmarshalJSON accepts both canonical and spreadsheet-label keys
func (r *ListingRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	dests := map[string]interface{}{
		"listing_id":   &r.ListingID,
		"district":     &r.District,
		"neighborhood": &r.Neighborhood,
		"full_address": &r.FullAddress,
		"room_count":   &r.RoomCount,
		"gross_area":   &r.GrossArea,
		"price":        &r.Price,
		"listing_date": &r.ListingDate,
		"source_file":  &r.SourceFile,
	}
	for field, dest := range dests {
		for _, key := range recordKeys[field] {
			value, ok := raw[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(value, dest); err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			break
		}
	}
	return nil
}

// Validate checks the record can be stored
func (r *ListingRecord) Validate() error {
	if strings.TrimSpace(r.ListingID) == "" {
		return ErrMissingListingID
	}

	if r.Price != nil {
		if math.IsNaN(*r.Price) || math.IsInf(*r.Price, 0) {
			return errors.WithMessagef(ErrNotFinite, "price of %s", r.ListingID)
		}
		if *r.Price < 0 {
			return errors.WithMessage(ErrNegativePrice, r.ListingID)
		}
	}

	if r.GrossArea != nil {
		if math.IsNaN(*r.GrossArea) || math.IsInf(*r.GrossArea, 0) {
			return errors.WithMessagef(ErrNotFinite, "gross area of %s", r.ListingID)
		}
		if *r.GrossArea < 0 {
			return errors.WithMessage(ErrNegativeArea, r.ListingID)
		}
	}

	return nil
}
