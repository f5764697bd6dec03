package snapshot

import (
	"github.com/dshills/listingstore/internal/storage"
	"github.com/dustin/go-humanize"
)

// Column names a field of a listing as shown in a table
type Column string

const (
	ListingID    Column = "listing_id"
	District     Column = "district"
	Neighborhood Column = "neighborhood"
	FullAddress  Column = "full_address"
	RoomCount    Column = "room_count"
	GrossArea    Column = "gross_area"
	Price        Column = "price"
	ListingDate  Column = "listing_date"
	SourceFile   Column = "source_file"
)

// Columns lists every column in display order
var Columns = []Column{
	ListingID, District, Neighborhood, FullAddress, RoomCount,
	GrossArea, Price, ListingDate, SourceFile,
}

// HighPriceThreshold is the price above which a listing is highlighted
const HighPriceThreshold = 1000000

// Valid reports whether c is one of Columns
func (c Column) Valid() bool {
	for _, col := range Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Editable reports whether a display may change c
func Editable(c Column) bool {
	switch c {
	case District, Neighborhood, FullAddress:
		return true
	}
	return false
}

// Labels maps columns to header text
type Labels map[Column]string

// EnglishLabels are the default headers
var EnglishLabels = Labels{
	ListingID:    "Listing ID",
	District:     "District",
	Neighborhood: "Neighborhood",
	FullAddress:  "Full Address",
	RoomCount:    "Rooms",
	GrossArea:    "Gross Area (m²)",
	Price:        "Price",
	ListingDate:  "Listing Date",
	SourceFile:   "Source File",
}

// TurkishLabels are the headers of the listing spreadsheets
var TurkishLabels = Labels{
	ListingID:    "İlan Numarası",
	District:     "İlçe",
	Neighborhood: "Semt",
	FullAddress:  "Tam Adres",
	RoomCount:    "Oda Sayısı",
	GrossArea:    "m² (Brüt)",
	Price:        "Fiyat",
	ListingDate:  "İlan Tarihi",
	SourceFile:   "Kaynak Dosya",
}

// Label returns the header for c, falling back to the column name
func (l Labels) Label(c Column) string {
	if s, ok := l[c]; ok && s != "" {
		return s
	}
	return string(c)
}

// Header returns the labels of columns in order
func (l Labels) Header(columns []Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = l.Label(c)
	}
	return out
}

// FormatPrice renders a price with Turkish grouping, e.g. "1.234.567,00 ₺".
// A missing price renders empty.
func FormatPrice(price *float64) string {
	if price == nil {
		return ""
	}
	return humanize.FormatFloat("#.###,##", *price) + " ₺"
}

// FormatArea renders an area rounded to whole square meters with Turkish grouping
func FormatArea(area *float64) string {
	if area == nil {
		return ""
	}
	return humanize.FormatFloat("#.###,", *area)
}

// IsHighPrice reports whether price is above HighPriceThreshold
func IsHighPrice(price *float64) bool {
	return price != nil && *price > HighPriceThreshold
}

// CellText returns the display text of one field of l
func CellText(l *storage.Listing, c Column) string {
	switch c {
	case ListingID:
		return l.ListingID
	case District:
		return deref(l.District)
	case Neighborhood:
		return deref(l.Neighborhood)
	case FullAddress:
		return deref(l.FullAddress)
	case RoomCount:
		return deref(l.RoomCount)
	case GrossArea:
		return FormatArea(l.GrossArea)
	case Price:
		return FormatPrice(l.Price)
	case ListingDate:
		return deref(l.ListingDate)
	case SourceFile:
		return deref(l.SourceFile)
	}
	return ""
}

// Record returns the display text of every column of l
func Record(l *storage.Listing, columns []Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = CellText(l, c)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
