// Package mcp implements the Model Context Protocol (MCP) server for listingstore.
//
// The server exposes the listing store to MCP clients as tools:
//   - upsert_listings: Insert or update a batch of listing records atomically
//   - ingest_files: Load JSON record files, one batch per file
//   - existing_ids: List stored listing ids
//   - read_listings: Most recently updated listings as JSON, a text table or CSV
//   - update_location: Correct district, neighborhood or full address
//   - price_history: Recorded price changes of one listing
//   - record_analysis / list_analyses: Append to and review the analysis log
//   - backup_database: Copy the database file
//   - clear_database: Delete all data
//   - get_status: Database location, size and row counts
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries protocol messages only.
//
// # Basic Usage
//
//	listingstore serve --db real_estate_analysis.db
//
// # Tool: upsert_listings
//
//	Request:
//	{
//	  "name": "upsert_listings",
//	  "arguments": {
//	    "listings": [
//	      {"listing_id": "1029384756", "district": "Kadıköy", "neighborhood": "Moda", "price": 4250000},
//	      {"İlan Numarası": "1029384757", "İlçe": "Beşiktaş", "Fiyat": 3100000}
//	    ]
//	  }
//	}
//
//	Response:
//	{
//	  "batch_id": "5f0c…",
//	  "inserted": 1,
//	  "updated": 1,
//	  "skipped": 0,
//	  "price_changes": 1
//	}
//
// A malformed record rejects the whole batch with an invalid params error.
//
// # Tool: update_location
//
//	Request:
//	{
//	  "name": "update_location",
//	  "arguments": {"listing_id": "1029384756", "neighborhood": "Fenerbahçe"}
//	}
//
// Without full_address the address is derived as "district/neighborhood".
// Passing full_address stores it as given and keeps it across later edits.
//
// # Error Handling
//
// Tools return MCPError values with JSON-RPC codes:
//   - -32602: Invalid params (missing listing_id, malformed record, relative path)
//   - -32603: Internal error (storage failure; nothing was changed)
//   - -32001: Listing not found
//   - -32002: Ingest in progress
//   - -32003: Backup unsupported for in-memory databases
package mcp
