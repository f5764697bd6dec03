// Package types defines the listing record exchanged with the extraction
// pipeline.
//
// A ListingRecord is what the document extractor produces for one listing.
// Records are accepted as JSON with either snake_case keys or the column
// labels of the original spreadsheet export:
//
//	{"listing_id": "1029384756", "district": "Kadıköy", "price": 4250000}
//	{"İlan Numarası": "1029384756", "İlçe": "Kadıköy", "Fiyat": 4250000}
//
// Validate must succeed before a record is handed to the store; an invalid
// record fails the whole batch it belongs to.
package types
