// graphd - an in-memory property-graph database with a Cypher-like
// query language.
// Main entry point for the server and its interactive shell.
package main

import (
	"fmt"
	"os"

	"github.com/jsoref/memgraph/internal/cli"
	"github.com/jsoref/memgraph/internal/config"
	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/auth"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
	"github.com/jsoref/memgraph/pkg/lock"
	graphnet "github.com/jsoref/memgraph/pkg/net"
	"github.com/jsoref/memgraph/pkg/observability"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	buildDate = "dev"
	cfgFile   string
	servePort int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphd",
		Short: "graphd - an in-memory property-graph database",
		Long: `graphd is an in-memory property-graph database with a
Cypher-like query language, MVCC transactions, and a streaming
pull-based query interpreter.

Start the interactive shell:
  graphd

Start with a specific config file:
  graphd --config /path/to/config.yaml

Start the TCP server instead of the shell:
  graphd serve`,
		Run: runShell,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphd %s (built %s)\n", version, buildDate)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new auth data directory",
		Args:  cobra.MaximumNArgs(1),
		Run:   initDataDir,
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP server instead of the interactive shell",
		Run:   runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured server port")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds a logger, and assembles the graph
// store plus interpreter shared by both the shell and the TCP server.
func bootstrap() (*config.Config, *logger.Logger, *interpret.Interpreter, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	txnMgr := txn.NewManager()
	lockMgr := lock.NewManager()
	store := storage.NewStore(txnMgr, lockMgr)
	interp := interpret.New(store, interpret.Config{
		CostPlanner:     cfg.Query.CostPlanner,
		PlanCache:       cfg.Query.PlanCache,
		PlanCacheTTLSec: cfg.Query.PlanCacheTTLSec,
	})
	interp.SetLogger(log)

	if err := config.ValidateDataDir(cfg.Auth.DataDir); err != nil {
		log.Info("auth data directory not initialized, creating it", "dir", cfg.Auth.DataDir)
		if initErr := config.InitDataDir(cfg.Auth.DataDir); initErr != nil {
			return nil, nil, nil, fmt.Errorf("initializing auth data directory: %w", initErr)
		}
	}
	catalog, err := auth.NewUserCatalog(cfg.Auth.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening user catalog: %w", err)
	}
	interp.EnableAuth(catalog)

	sysCatalog := observability.NewSystemCatalog(txnMgr, lockMgr, store)
	interp.EnableObservability(sysCatalog)

	return cfg, log, interp, nil
}

func runShell(cmd *cobra.Command, args []string) {
	cfg, log, interp, err := bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting graphd", "version", version, "port", cfg.Server.Port)

	repl := cli.NewREPL(cfg, log, interp.NewSession())
	if err := repl.Run(); err != nil {
		log.Error("REPL error", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, log, interp, err := bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	server := graphnet.NewServer(graphnet.ServerConfig{
		Port:   port,
		Logger: log,
		Interp: interp,
	})

	if err := server.Start(port); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("graphd serving", "port", port)

	select {}
}

func initDataDir(cmd *cobra.Command, args []string) {
	dir := "./data"
	if len(args) > 0 {
		dir = args[0]
	}

	fmt.Printf("Initializing graphd auth data directory in: %s\n", dir)

	if err := config.InitDataDir(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfgPath := "graphd.yaml"
	if err := config.CreateDefaultConfig(cfgPath, dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create config file: %v\n", err)
	} else {
		fmt.Printf("Created config file: %s\n", cfgPath)
	}

	fmt.Println("Data directory initialized successfully!")
	fmt.Printf("Start the shell with: graphd --config %s\n", cfgPath)
}
