package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// listingProperties describes one listing record in tool input
var listingProperties = map[string]interface{}{
	"listing_id": map[string]interface{}{
		"type":        "string",
		"description": "External listing number (İlan Numarası)",
	},
	"district":     map[string]interface{}{"type": "string"},
	"neighborhood": map[string]interface{}{"type": "string"},
	"full_address": map[string]interface{}{
		"type":        "string",
		"description": "Defaults to district/neighborhood when omitted",
	},
	"room_count":   map[string]interface{}{"type": "string", "description": "Free text, e.g. 3+1"},
	"gross_area":   map[string]interface{}{"type": "number", "minimum": 0},
	"price":        map[string]interface{}{"type": "number", "minimum": 0},
	"listing_date": map[string]interface{}{"type": "string"},
	"source_file":  map[string]interface{}{"type": "string"},
}

// upsertListingsTool returns the tool definition for upsert_listings
func upsertListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_listings",
		Description: "Insert or update listings in one atomic batch, recording price changes of existing listings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"listings": map[string]interface{}{
					"type":        "array",
					"description": "Listing records; keys may also be the spreadsheet labels (İlan Numarası, Fiyat, ...)",
					"items": map[string]interface{}{
						"type":       "object",
						"properties": listingProperties,
					},
				},
				"skip_existing": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, records whose listing_id is already stored are ignored",
					"default":     false,
				},
			},
			Required: []string{"listings"},
		},
	}
}

// ingestFilesTool returns the tool definition for ingest_files
func ingestFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_files",
		Description: "Load JSON listing record files, one atomic batch per file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Absolute paths of record files or directories of .json files",
					"items":       map[string]interface{}{"type": "string"},
				},
				"skip_existing": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
			},
			Required: []string{"paths"},
		},
	}
}

// existingIDsTool returns the tool definition for existing_ids
func existingIDsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "existing_ids",
		Description: "List every stored listing_id",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// readListingsTool returns the tool definition for read_listings
func readListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "read_listings",
		Description: "Read the most recently updated listings, optionally filtered by location and room count",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of listings to return",
					"minimum":     1,
				},
				"district":     map[string]interface{}{"type": "string"},
				"neighborhood": map[string]interface{}{"type": "string"},
				"room_count":   map[string]interface{}{"type": "string"},
				"format": map[string]interface{}{
					"type":        "string",
					"description": "json (structured), table (formatted text) or csv",
					"enum":        []string{"json", "table", "csv"},
					"default":     "json",
				},
				"labels": map[string]interface{}{
					"type":        "string",
					"description": "Header language of table and csv output",
					"enum":        []string{"en", "tr"},
					"default":     "en",
				},
			},
		},
	}
}

// priceHistoryTool returns the tool definition for price_history
func priceHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "price_history",
		Description: "Recorded price changes of one listing, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"listing_id": map[string]interface{}{"type": "string"},
			},
			Required: []string{"listing_id"},
		},
	}
}

// updateLocationTool returns the tool definition for update_location
func updateLocationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "update_location",
		Description: "Correct the district, neighborhood or full address of one listing",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"listing_id":   map[string]interface{}{"type": "string"},
				"district":     map[string]interface{}{"type": "string"},
				"neighborhood": map[string]interface{}{"type": "string"},
				"full_address": map[string]interface{}{
					"type":        "string",
					"description": "Hand-set address; omit to derive it from district and neighborhood",
				},
			},
			Required: []string{"listing_id"},
		},
	}
}

// recordAnalysisTool returns the tool definition for record_analysis
func recordAnalysisTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_analysis",
		Description: "Append an entry to the analysis log",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"analysis_type": map[string]interface{}{"type": "string"},
				"parameters": map[string]interface{}{
					"description": "Any JSON value describing the analysis inputs",
				},
				"result_summary": map[string]interface{}{
					"type":        "string",
					"description": "Truncated to 1000 characters",
				},
			},
			Required: []string{"analysis_type", "result_summary"},
		},
	}
}

// listAnalysesTool returns the tool definition for list_analyses
func listAnalysesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_analyses",
		Description: "Most recent analysis log entries, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"default": 20,
				},
			},
		},
	}
}

// backupDatabaseTool returns the tool definition for backup_database
func backupDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backup_database",
		Description: "Copy the database file to a new location",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute destination path",
				},
			},
			Required: []string{"path"},
		},
	}
}

// clearDatabaseTool returns the tool definition for clear_database
func clearDatabaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_database",
		Description: "Delete every listing, price history entry and analysis record",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true",
				},
			},
			Required: []string{"confirm"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Database location, size and row counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
