package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/dshills/listingstore/internal/export"
	"github.com/dshills/listingstore/internal/ingest"
	"github.com/dshills/listingstore/internal/snapshot"
	"github.com/dshills/listingstore/internal/storage"
	"github.com/dshills/listingstore/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeListingNotFound   = -32001 // No listing with the given listing_id
	ErrorCodeIngestInProgress  = -32002 // Another ingest run is already active
	ErrorCodeBackupUnsupported = -32003 // The database is not file backed
)

// handleUpsertListings handles the upsert_listings tool invocation
func (s *Server) handleUpsertListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	raw, ok := args["listings"].([]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "listings parameter is required", map[string]interface{}{
			"param":  "listings",
			"reason": "missing or not an array",
		})
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listing record", map[string]interface{}{
			"param":  "listings",
			"reason": err.Error(),
		})
	}
	listings, err := ingest.ToListings(records)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listing record", map[string]interface{}{
			"param":  "listings",
			"reason": err.Error(),
		})
	}

	skipped := 0
	if getBoolDefault(args, "skip_existing", false) {
		existing, err := s.storage.ExistingIDs(ctx)
		if err != nil {
			return nil, internalError("failed to load existing ids", err)
		}
		kept := listings[:0]
		for _, l := range listings {
			if _, ok := existing[l.ListingID]; ok {
				skipped++
				continue
			}
			kept = append(kept, l)
		}
		listings = kept
	}

	result, err := s.storage.UpsertBatchStats(ctx, listings)
	if err != nil {
		return nil, internalError("upsert failed", err)
	}

	response := map[string]interface{}{
		"batch_id":      result.BatchID,
		"inserted":      result.Inserted,
		"updated":       result.Updated,
		"skipped":       skipped,
		"price_changes": result.PriceChanges,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestFiles handles the ingest_files tool invocation
func (s *Server) handleIngestFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	paths, err := getStringSlice(args, "paths")
	if err != nil || len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing or empty",
		})
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "paths",
				"value":  p,
				"reason": ErrPathNotAbsolute.Error(),
			})
		}
	}

	stats, err := s.ingester.IngestPaths(ctx, paths, &ingest.Config{
		Workers:      s.opts.Workers,
		SkipExisting: getBoolDefault(args, "skip_existing", false),
	})
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, err.Error(), nil)
	}
	if err != nil {
		return nil, internalError("ingest failed", err)
	}

	response := map[string]interface{}{
		"files_ingested": stats.FilesIngested,
		"files_failed":   stats.FilesFailed,
		"inserted":       stats.Inserted,
		"updated":        stats.Updated,
		"skipped":        stats.Skipped,
		"price_changes":  stats.PriceChanges,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExistingIDs handles the existing_ids tool invocation
func (s *Server) handleExistingIDs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.storage.ExistingIDs(ctx)
	if err != nil {
		return nil, internalError("failed to load existing ids", err)
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	response := map[string]interface{}{
		"count":       len(sorted),
		"listing_ids": sorted,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReadListings handles the read_listings tool invocation
func (s *Server) handleReadListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", s.opts.ReadLimit)
	if limit < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be positive", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	format := getStringDefault(args, "format", "json")
	if format != "json" && format != "table" && format != "csv" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid format", map[string]interface{}{
			"param":   "format",
			"value":   format,
			"allowed": []string{"json", "table", "csv"},
		})
	}

	labels := snapshot.EnglishLabels
	switch lang := getStringDefault(args, "labels", "en"); lang {
	case "en":
	case "tr":
		labels = snapshot.TurkishLabels
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid labels", map[string]interface{}{
			"param":   "labels",
			"value":   lang,
			"allowed": []string{"en", "tr"},
		})
	}

	filter := storage.Filter{
		District:     getStringDefault(args, "district", ""),
		Neighborhood: getStringDefault(args, "neighborhood", ""),
		RoomCount:    getStringDefault(args, "room_count", ""),
	}
	rows, err := s.storage.ReadFiltered(ctx, filter, limit)
	if err != nil {
		return nil, internalError("failed to read listings", err)
	}

	switch format {
	case "table":
		var buf bytes.Buffer
		if err := export.RenderTable(&buf, rows, labels); err != nil {
			return nil, internalError("failed to render table", err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	case "csv":
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, rows, labels); err != nil {
			return nil, internalError("failed to write csv", err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	}

	views := make([]listingView, 0, len(rows))
	for i := range rows {
		views = append(views, newListingView(&rows[i]))
	}
	response := map[string]interface{}{
		"count":    len(views),
		"listings": views,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUpdateLocation handles the update_location tool invocation
func (s *Server) handleUpdateLocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	listingID, err := requireString(args, "listing_id")
	if err != nil {
		return nil, err
	}

	edit := storage.LocationEdit{
		ListingID:    listingID,
		District:     getOptionalString(args, "district"),
		Neighborhood: getOptionalString(args, "neighborhood"),
		FullAddress:  getOptionalString(args, "full_address"),
	}
	edit.FullAddressOverridden = edit.FullAddress != nil

	err = s.storage.UpdateLocation(ctx, edit)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeListingNotFound, "listing not found", map[string]interface{}{
			"listing_id": listingID,
		})
	}
	if err != nil {
		return nil, internalError("failed to update location", err)
	}

	listing, err := s.storage.GetListing(ctx, listingID)
	if err != nil {
		return nil, internalError("failed to reload listing", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"updated": true,
		"listing": newListingView(listing),
	})), nil
}

// handlePriceHistory handles the price_history tool invocation
func (s *Server) handlePriceHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	listingID, err := requireString(args, "listing_id")
	if err != nil {
		return nil, err
	}

	history, err := s.storage.PriceHistory(ctx, listingID)
	if err != nil {
		return nil, internalError("failed to load price history", err)
	}

	points := make([]map[string]interface{}, 0, len(history))
	for _, p := range history {
		points = append(points, map[string]interface{}{
			"price":       p.Price,
			"recorded_at": p.RecordedAt.Format(time.RFC3339Nano),
		})
	}
	response := map[string]interface{}{
		"listing_id": listingID,
		"history":    points,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordAnalysis handles the record_analysis tool invocation
func (s *Server) handleRecordAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	analysisType, err := requireString(args, "analysis_type")
	if err != nil {
		return nil, err
	}
	summary, ok := args["result_summary"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "result_summary parameter is required", map[string]interface{}{
			"param":  "result_summary",
			"reason": "missing or not a string",
		})
	}

	if err := s.storage.RecordAnalysis(ctx, analysisType, args["parameters"], summary); err != nil {
		return nil, internalError("failed to record analysis", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"recorded": true})), nil
}

// handleListAnalyses handles the list_analyses tool invocation
func (s *Server) handleListAnalyses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 20)
	if limit < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be positive", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	records, err := s.storage.ListAnalyses(ctx, limit)
	if err != nil {
		return nil, internalError("failed to list analyses", err)
	}

	entries := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		entries = append(entries, map[string]interface{}{
			"analysis_type":  r.AnalysisType,
			"parameters":     r.Parameters,
			"result_summary": r.ResultSummary,
			"created_at":     r.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"analyses": entries})), nil
}

// handleBackupDatabase handles the backup_database tool invocation
func (s *Server) handleBackupDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	err = s.storage.BackupTo(ctx, path)
	if errors.Is(err, storage.ErrBackupUnsupported) {
		return nil, newMCPError(ErrorCodeBackupUnsupported, err.Error(), nil)
	}
	if errors.Is(err, storage.ErrBackupSameFile) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	if err != nil {
		return nil, internalError("backup failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"backed_up": true,
		"path":      path,
	})), nil
}

// handleClearDatabase handles the clear_database tool invocation
func (s *Server) handleClearDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	if !getBoolDefault(args, "confirm", false) {
		return nil, newMCPError(ErrorCodeInvalidParams, "confirm must be true to clear the database", map[string]interface{}{
			"param": "confirm",
		})
	}

	if err := s.storage.ClearAll(ctx); err != nil {
		return nil, internalError("failed to clear database", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"cleared": true})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.storage.Stats(ctx)
	if err != nil {
		return nil, internalError("failed to get status", err)
	}

	response := map[string]interface{}{
		"database": map[string]interface{}{
			"path":           stats.Path,
			"schema_version": stats.SchemaVersion,
			"size":           humanize.Bytes(uint64(stats.SizeBytes)),
			"size_bytes":     stats.SizeBytes,
		},
		"statistics": map[string]interface{}{
			"listings":              stats.Listings,
			"price_history_entries": stats.PriceHistoryEntries,
			"analyses":              stats.Analyses,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// listingView is the JSON shape of a listing in tool output
type listingView struct {
	ListingID             string   `json:"listing_id"`
	District              *string  `json:"district"`
	Neighborhood          *string  `json:"neighborhood"`
	FullAddress           *string  `json:"full_address"`
	FullAddressOverridden bool     `json:"full_address_overridden"`
	RoomCount             *string  `json:"room_count"`
	GrossArea             *float64 `json:"gross_area"`
	Price                 *float64 `json:"price"`
	PriceDisplay          string   `json:"price_display,omitempty"`
	HighPrice             bool     `json:"high_price"`
	ListingDate           *string  `json:"listing_date"`
	SourceFile            *string  `json:"source_file"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

func newListingView(l *storage.Listing) listingView {
	return listingView{
		ListingID:             l.ListingID,
		District:              l.District,
		Neighborhood:          l.Neighborhood,
		FullAddress:           l.FullAddress,
		FullAddressOverridden: l.FullAddressOverridden,
		RoomCount:             l.RoomCount,
		GrossArea:             l.GrossArea,
		Price:                 l.Price,
		PriceDisplay:          snapshot.FormatPrice(l.Price),
		HighPrice:             snapshot.IsHighPrice(l.Price),
		ListingDate:           l.ListingDate,
		SourceFile:            l.SourceFile,
		CreatedAt:             l.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:             l.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// internalError reports a failed storage operation
func internalError(message string, err error) error {
	return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the tool arguments, treating absent arguments as empty
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// decodeRecords re-decodes loosely typed JSON into listing records, so the
// same key aliases as record files are accepted
func decodeRecords(raw []interface{}) ([]types.ListingRecord, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var records []types.ListingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(out)
}

// requireString extracts a non-blank string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// getOptionalString extracts a string parameter, nil when absent or blank
func getOptionalString(args map[string]interface{}, key string) *string {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return nil
	}
	return &val
}

// getStringSlice extracts an array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil, errors.Errorf("%s is not an array", key)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// ErrPathNotAbsolute is reported for relative file paths
var ErrPathNotAbsolute = errors.New("path must be absolute")
