package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/listingstore/internal/storage"
)

type handler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

func setupTestServer(t *testing.T, path string) *Server {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(store, Options{Workers: 2})
}

func request(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// callText invokes h and returns the text of its single content item
func callText(t *testing.T, h handler, args map[string]interface{}) string {
	t.Helper()
	result, err := h(context.Background(), request("test", args))
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

// callJSON invokes h and decodes its JSON response
func callJSON(t *testing.T, h handler, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(callText(t, h, args)), &out))
	return out
}

// callError invokes h and returns the MCP error it fails with
func callError(t *testing.T, h handler, args map[string]interface{}) *MCPError {
	t.Helper()
	_, err := h(context.Background(), request("test", args))
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T", err)
	return mcpErr
}

func listingArgs(records ...map[string]interface{}) map[string]interface{} {
	listings := make([]interface{}, len(records))
	for i, r := range records {
		listings[i] = r
	}
	return map[string]interface{}{"listings": listings}
}

func TestErrorCodes(t *testing.T) {
	codes := []int{
		ErrorCodeInvalidParams, ErrorCodeInternalError, ErrorCodeListingNotFound,
		ErrorCodeIngestInProgress, ErrorCodeBackupUnsupported,
	}
	seen := map[int]bool{}
	for _, code := range codes {
		assert.Less(t, code, 0)
		assert.False(t, seen[code], "duplicate code %d", code)
		seen[code] = true
	}

	err := &MCPError{Code: -32602, Message: "invalid params"}
	assert.Equal(t, "MCP error -32602: invalid params", err.Error())
}

func TestUpsertListings(t *testing.T) {
	s := setupTestServer(t, ":memory:")

	out := callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "A1", "district": "Kadıköy", "price": 100.0},
		map[string]interface{}{"İlan Numarası": "A2", "İlçe": "Beşiktaş", "Semt": "Levent"},
	))
	assert.Equal(t, 2.0, out["inserted"])
	assert.Equal(t, 0.0, out["price_changes"])
	assert.NotEmpty(t, out["batch_id"])

	out = callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "A1", "district": "Kadıköy", "price": 110.0},
	))
	assert.Equal(t, 0.0, out["inserted"])
	assert.Equal(t, 1.0, out["updated"])
	assert.Equal(t, 1.0, out["price_changes"])

	listing, err := s.storage.GetListing(context.Background(), "A2")
	require.NoError(t, err)
	assert.Equal(t, "Beşiktaş/Levent", *listing.FullAddress)
}

func TestUpsertListings_SkipExisting(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "A1", "price": 100.0}))

	args := listingArgs(
		map[string]interface{}{"listing_id": "A1", "price": 500.0},
		map[string]interface{}{"listing_id": "A2"},
	)
	args["skip_existing"] = true
	out := callJSON(t, s.handleUpsertListings, args)
	assert.Equal(t, 1.0, out["skipped"])
	assert.Equal(t, 1.0, out["inserted"])

	history, err := s.storage.PriceHistory(context.Background(), "A1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpsertListings_InvalidBatchChangesNothing(t *testing.T) {
	s := setupTestServer(t, ":memory:")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing listings", map[string]interface{}{}},
		{"not an array", map[string]interface{}{"listings": "A1"}},
		{"blank id", listingArgs(map[string]interface{}{"listing_id": "A1"}, map[string]interface{}{"listing_id": ""})},
		{"negative price", listingArgs(map[string]interface{}{"listing_id": "A1", "price": -1.0})},
		{"price as text", listingArgs(map[string]interface{}{"listing_id": "A1", "price": "cheap"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := callError(t, s.handleUpsertListings, tt.args)
			assert.Equal(t, ErrorCodeInvalidParams, err.Code)
		})
	}

	ids, err := s.storage.ExistingIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExistingIDs(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "B"},
		map[string]interface{}{"listing_id": "A"},
	))

	result, err := s.handleExistingIDs(context.Background(), request("existing_ids", nil))
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &out))
	assert.Equal(t, 2.0, out["count"])
	assert.Equal(t, []interface{}{"A", "B"}, out["listing_ids"])
}

func TestReadListings(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "1", "district": "Kadıköy", "room_count": "3+1", "price": 2500000.0},
		map[string]interface{}{"listing_id": "2", "district": "Kadıköy", "room_count": "2+1", "price": 900000.0},
		map[string]interface{}{"listing_id": "3", "district": "Şişli", "room_count": "3+1"},
	))

	out := callJSON(t, s.handleReadListings, map[string]interface{}{"district": "Kadıköy"})
	assert.Equal(t, 2.0, out["count"])
	listings := out["listings"].([]interface{})
	first := listings[0].(map[string]interface{})
	assert.Equal(t, "2", first["listing_id"], "most recently updated first")
	assert.Equal(t, "900.000,00 ₺", first["price_display"])
	assert.Equal(t, false, first["high_price"])
	second := listings[1].(map[string]interface{})
	assert.Equal(t, true, second["high_price"])

	out = callJSON(t, s.handleReadListings, map[string]interface{}{"limit": 1.0})
	assert.Equal(t, 1.0, out["count"])

	out = callJSON(t, s.handleReadListings, map[string]interface{}{"room_count": "3+1", "district": "Şişli"})
	assert.Equal(t, 1.0, out["count"])
}

func TestReadListings_Formats(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "1", "district": "Kadıköy", "price": 1500.0},
	))

	csv := callText(t, s.handleReadListings, map[string]interface{}{"format": "csv", "labels": "tr"})
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "İlan Numarası,İlçe"))
	assert.Contains(t, lines[1], "1500")

	table := callText(t, s.handleReadListings, map[string]interface{}{"format": "table"})
	assert.Contains(t, table, "1.500,00 ₺")

	assert.Equal(t, ErrorCodeInvalidParams, callError(t, s.handleReadListings, map[string]interface{}{"format": "xml"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams, callError(t, s.handleReadListings, map[string]interface{}{"labels": "de"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams, callError(t, s.handleReadListings, map[string]interface{}{"limit": 0.0}).Code)
}

func TestUpdateLocation(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(
		map[string]interface{}{"listing_id": "1", "district": "Kadıköy", "neighborhood": "Moda", "price": 10.0},
	))

	out := callJSON(t, s.handleUpdateLocation, map[string]interface{}{
		"listing_id": "1", "district": "Kadıköy", "neighborhood": "Fenerbahçe",
	})
	listing := out["listing"].(map[string]interface{})
	assert.Equal(t, "Kadıköy/Fenerbahçe", listing["full_address"])
	assert.Equal(t, false, listing["full_address_overridden"])

	out = callJSON(t, s.handleUpdateLocation, map[string]interface{}{
		"listing_id": "1", "district": "Kadıköy", "full_address": "Bağdat Cd. 1",
	})
	listing = out["listing"].(map[string]interface{})
	assert.Equal(t, "Bağdat Cd. 1", listing["full_address"])
	assert.Equal(t, true, listing["full_address_overridden"])
	assert.Nil(t, listing["neighborhood"])

	history, err := s.storage.PriceHistory(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Equal(t, ErrorCodeListingNotFound,
		callError(t, s.handleUpdateLocation, map[string]interface{}{"listing_id": "missing", "district": "X"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleUpdateLocation, map[string]interface{}{"district": "X"}).Code)
}

func TestPriceHistory(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	for _, price := range []float64{100, 110, 110, 95} {
		callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "A1", "price": price}))
	}

	out := callJSON(t, s.handlePriceHistory, map[string]interface{}{"listing_id": "A1"})
	history := out["history"].([]interface{})
	require.Len(t, history, 2)
	assert.Equal(t, 110.0, history[0].(map[string]interface{})["price"])
	assert.Equal(t, 95.0, history[1].(map[string]interface{})["price"])

	out = callJSON(t, s.handlePriceHistory, map[string]interface{}{"listing_id": "unknown"})
	assert.Empty(t, out["history"])

	assert.Equal(t, ErrorCodeInvalidParams, callError(t, s.handlePriceHistory, nil).Code)
}

func TestAnalysisTools(t *testing.T) {
	s := setupTestServer(t, ":memory:")

	callJSON(t, s.handleRecordAnalysis, map[string]interface{}{
		"analysis_type":  "price_trend",
		"parameters":     map[string]interface{}{"district": "Kadıköy"},
		"result_summary": "rising",
	})

	out := callJSON(t, s.handleListAnalyses, nil)
	entries := out["analyses"].([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "price_trend", entry["analysis_type"])
	assert.JSONEq(t, `{"district":"Kadıköy"}`, entry["parameters"].(string))
	assert.Equal(t, "rising", entry["result_summary"])

	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleRecordAnalysis, map[string]interface{}{"analysis_type": "x"}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleRecordAnalysis, map[string]interface{}{"result_summary": "x"}).Code)
}

func TestBackupDatabase(t *testing.T) {
	dir := t.TempDir()
	s := setupTestServer(t, filepath.Join(dir, storage.DefaultDBName))
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "1"}))

	dest := filepath.Join(dir, "backup", "copy.db")
	out := callJSON(t, s.handleBackupDatabase, map[string]interface{}{"path": dest})
	assert.Equal(t, true, out["backed_up"])
	_, err := os.Stat(dest)
	assert.NoError(t, err)

	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleBackupDatabase, map[string]interface{}{"path": "relative.db"}).Code)
}

func TestBackupDatabase_OntoDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), storage.DefaultDBName)
	s := setupTestServer(t, path)
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "1"}))

	err := callError(t, s.handleBackupDatabase, map[string]interface{}{"path": path})
	assert.Equal(t, ErrorCodeInvalidParams, err.Code)

	out := callJSON(t, s.handleExistingIDs, nil)
	assert.Equal(t, float64(1), out["count"])
}

func TestBackupDatabase_Memory(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	err := callError(t, s.handleBackupDatabase, map[string]interface{}{"path": filepath.Join(t.TempDir(), "x.db")})
	assert.Equal(t, ErrorCodeBackupUnsupported, err.Code)
}

func TestClearDatabase(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "1", "price": 1.0}))
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "1", "price": 2.0}))

	assert.Equal(t, ErrorCodeInvalidParams, callError(t, s.handleClearDatabase, nil).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleClearDatabase, map[string]interface{}{"confirm": false}).Code)

	callJSON(t, s.handleClearDatabase, map[string]interface{}{"confirm": true})

	out := callJSON(t, s.handleGetStatus, nil)
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, 0.0, stats["listings"])
	assert.Equal(t, 0.0, stats["price_history_entries"])
	assert.Equal(t, 0.0, stats["analyses"])
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	s := setupTestServer(t, filepath.Join(dir, storage.DefaultDBName))
	callJSON(t, s.handleUpsertListings, listingArgs(map[string]interface{}{"listing_id": "1"}))

	out := callJSON(t, s.handleGetStatus, nil)
	db := out["database"].(map[string]interface{})
	assert.Equal(t, storage.CurrentSchemaVersion, db["schema_version"])
	assert.NotEmpty(t, db["size"])
	assert.Equal(t, 1.0, out["statistics"].(map[string]interface{})["listings"])
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`[{"listing_id": "F1", "price": 10}, {"listing_id": "F2"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{`), 0o644))

	s := setupTestServer(t, ":memory:")
	out := callJSON(t, s.handleIngestFiles, map[string]interface{}{"paths": []interface{}{dir}})
	assert.Equal(t, 1.0, out["files_ingested"])
	assert.Equal(t, 1.0, out["files_failed"])
	assert.Equal(t, 2.0, out["inserted"])
	assert.Len(t, out["errors"], 1)

	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleIngestFiles, map[string]interface{}{"paths": []interface{}{"relative"}}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleIngestFiles, map[string]interface{}{"paths": []interface{}{}}).Code)
	assert.Equal(t, ErrorCodeInvalidParams,
		callError(t, s.handleIngestFiles, map[string]interface{}{"paths": []interface{}{1.0}}).Code)
}

func TestInvalidArguments(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	_, err := s.handleReadListings(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "read_listings", Arguments: "not an object"},
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeInvalidParams, err.(*MCPError).Code)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := setupTestServer(t, ":memory:")
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.ingester)
	assert.Equal(t, storage.DefaultReadLimit, s.opts.ReadLimit)
}
