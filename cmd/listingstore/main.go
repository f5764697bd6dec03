package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/listingstore/internal/config"
	"github.com/dshills/listingstore/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalOptions apply to every command
type globalOptions struct {
	Config    string `long:"config" env:"LISTINGSTORE_CONFIG" description:"Path of a TOML configuration file"`
	EnvFile   string `long:"env-file" default:".env" description:"Dotenv file read when present"`
	DB        string `long:"db" description:"Database file (overrides configuration)"`
	LogLevel  string `long:"log.level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level (overrides configuration)"`
	LogFormat string `long:"log.format" choice:"text" choice:"json" choice:"color" description:"Logging output format (overrides configuration)"`
}

var globals globalOptions

func main() {
	parser := flags.NewParser(&globals, flags.Default)
	parser.LongDescription = `listingstore persists real-estate listings, deduplicated by listing id,
with a history of price changes per listing.

Configuration is read from an optional TOML file (--config), a dotenv file,
LISTINGSTORE_* environment variables and finally flags.`

	mustAddCmd(parser, "serve", "Serve the listing store over MCP on stdio", `
serve exposes the store as Model Context Protocol tools on stdin/stdout.
Logs are written to stderr.
`, &cmdServe{})
	mustAddCmd(parser, "ingest", "Load JSON listing record files", `
ingest upserts every record file named on the command line, one atomic batch
per file. Directories contribute each .json file below them.
`, &cmdIngest{})
	mustAddCmd(parser, "list", "Print the most recently updated listings", "", &cmdList{})
	mustAddCmd(parser, "export", "Write listings to a CSV file", "", &cmdExport{})
	mustAddCmd(parser, "history", "Print the price history of a listing", "", &cmdHistory{})
	mustAddCmd(parser, "edit", "Correct the location of a listing", `
edit changes the district, neighborhood or full address of one listing.
Unless --full-address is given the address is derived as district/neighborhood.
`, &cmdEdit{})
	mustAddCmd(parser, "analyses", "Print the analysis log", "", &cmdAnalyses{})
	mustAddCmd(parser, "backup", "Copy the database file", "", &cmdBackup{})
	mustAddCmd(parser, "reset", "Delete all listings, price history and analyses", "", &cmdReset{})
	mustAddCmd(parser, "status", "Print database statistics", "", &cmdStatus{})
	mustAddCmd(parser, "print-config", "Print combined configuration and exit", "", &cmdPrintConfig{})
	mustAddCmd(parser, "version", "Print version information", "", &cmdVersion{})

	mustParseArgs(parser)
}

func mustAddCmd(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		// A malformed command definition, not an input problem
		panic(err)
	}
}

// mustParseArgs parses the command line and runs the selected command
func mustParseArgs(parser *flags.Parser) {
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		var flagErr, ok = err.(*flags.Error)
		if !ok {
			log.WithField("err", err).Error("command failed")
			os.Exit(1)
		}

		switch flagErr.Type {
		case flags.ErrHelp:
			os.Exit(0)
		case flags.ErrCommandRequired:
			fmt.Fprintln(os.Stderr)
			parser.WriteHelp(os.Stderr)
			fmt.Fprintf(os.Stderr, "\nVersion %s, built at %s.\n", version, buildTime)
			os.Exit(1)
		default:
			// go-flags already printed the problem
			os.Exit(1)
		}
	}
}

// loadConfig combines configuration sources with global flags and
// configures logging to stderr
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globals.Config, globals.EnvFile)
	if err != nil {
		return nil, err
	}

	if globals.DB != "" {
		cfg.Database.Path = globals.DB
	}
	if globals.LogLevel != "" {
		cfg.Log.Level = globals.LogLevel
	}
	if globals.LogFormat != "" {
		cfg.Log.Format = globals.LogFormat
	}

	// stdout is reserved for command output and the MCP protocol
	if err := config.InitLog(cfg.Log, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore loads configuration and opens the configured store
func openStore(ctx context.Context, reg prometheus.Registerer) (*config.Config, *storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.Open(ctx, cfg.StoreOptions(reg))
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type cmdVersion struct{}

func (cmdVersion) Execute([]string) error {
	fmt.Printf("listingstore\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	fmt.Printf("Schema Version: %s\n", storage.CurrentSchemaVersion)
	return nil
}

type cmdPrintConfig struct{}

func (cmdPrintConfig) Execute([]string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
