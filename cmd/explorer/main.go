package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/OpenExplorer/internal/output"
	"github.com/PentesterFlow/OpenExplorer/pkg/explorer"
)

var (
	version = "1.0.0"

	// Global flags
	configFile  string
	storePath   string
	catalogPath string
	format      string
	verbose     bool
	debug       bool

	// Opened by the root pre-run hook
	app *explorer.Explorer
	out output.Writer
)

func main() {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(context.Background())
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openexplorer",
		Short: "OpenExplorer - Arista device API explorer",
		Long: `OpenExplorer - explore and test Arista device APIs.

Register eAPI, CloudVision, EOS REST and streaming telemetry endpoints, pick a
call from the API catalog, dispatch it, and keep a ledger of every query and a
health scorecard of every device.`,
		Version:            version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  openExplorer,
		PersistentPostRunE: closeExplorer,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Database file (empty string keeps state in memory)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "API catalog file (json, yaml, markdown listing or sqlite)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format (json, yaml, table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	rootCmd.AddCommand(
		newEndpointCmd(),
		newCatalogCmd(),
		newRunCmd(),
		newTestCmd(),
		newHistoryCmd(),
		newInventoryCmd(),
		newWatchCmd(),
		newStatsCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file, then lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) (*explorer.Config, error) {
	config := explorer.DefaultConfig()
	if configFile != "" {
		fileConfig, err := explorer.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		config.StorePath = storePath
	}
	if flags.Changed("catalog") {
		config.Catalog = explorer.CatalogConfig{Path: catalogPath}
	}
	if flags.Changed("format") {
		config.Output.Format = format
	}
	if f := flags.Lookup("interval"); f != nil && f.Changed {
		config.WatchInterval = watchInterval
	}
	if verbose {
		config.Log.Level = "info"
	}
	if debug {
		config.Log.Level = "debug"
	}
	return config, nil
}

func openExplorer(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f, err := output.ParseFormat(config.Output.Format)
	if err != nil {
		return err
	}
	out = output.NewWriter(os.Stdout, output.Config{Format: f, Pretty: config.Output.Pretty})

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	app, err = explorer.Open(ctx, explorer.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to open explorer: %w", err)
	}
	return nil
}

func closeExplorer(cmd *cobra.Command, args []string) error {
	if out != nil {
		out.Flush()
	}
	if app != nil {
		return app.Close()
	}
	return nil
}
