package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/listingstore/internal/ingest"
	"github.com/dshills/listingstore/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "listingstore"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options tune the tool surface
type Options struct {
	// ReadLimit caps read_listings when no limit is given
	ReadLimit int
	// Workers bounds concurrent file reads of ingest_files
	Workers int
}

// Server wraps the MCP server with application dependencies. It does not own
// the store; the caller closes it after Serve returns.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	ingester *ingest.Ingester
	opts     Options
}

// NewServer creates a new MCP server over store
func NewServer(store storage.Storage, opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = storage.DefaultReadLimit
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		ingester: ingest.New(store),
		opts:     opts,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	log.WithField("server", ServerName).Info("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Ingestion
	s.mcp.AddTool(upsertListingsTool(), s.handleUpsertListings)
	s.mcp.AddTool(ingestFilesTool(), s.handleIngestFiles)
	s.mcp.AddTool(existingIDsTool(), s.handleExistingIDs)

	// Display
	s.mcp.AddTool(readListingsTool(), s.handleReadListings)
	s.mcp.AddTool(updateLocationTool(), s.handleUpdateLocation)
	s.mcp.AddTool(priceHistoryTool(), s.handlePriceHistory)

	// Analysis log
	s.mcp.AddTool(recordAnalysisTool(), s.handleRecordAnalysis)
	s.mcp.AddTool(listAnalysesTool(), s.handleListAnalyses)

	// Maintenance
	s.mcp.AddTool(backupDatabaseTool(), s.handleBackupDatabase)
	s.mcp.AddTool(clearDatabaseTool(), s.handleClearDatabase)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
