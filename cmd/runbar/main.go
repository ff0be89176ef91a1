// Package main is the entry point for runbar.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/runbar/internal/app"
	"github.com/dshills/runbar/internal/ui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global flags.
var (
	workspaces []string
	configDir  string
	verbose    bool
	ephemeral  bool
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "runbar",
	Short: "A status bar for your build tasks and debug configurations",
	Long: `runbar enumerates tasks and debug launch configurations from each
workspace folder's .runbar and .vscode directories, remembers which
one you picked per workspace, and hands the pick to your editor's CLI
to run. It never executes tasks itself.

Run without arguments to start the interactive status bar.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&workspaces, "workspace", "w", nil,
		"Workspace folder (repeat for multi-root; default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "",
		"User configuration directory (default: ~/.config/runbar)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false,
		"Keep selections and history in memory only")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"Record dispatches without invoking the host CLI")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Emit JSON")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit JSON")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runTUI starts the interactive status bar.
func runTUI(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	term, err := ui.NewTerminal()
	if err != nil {
		return fmt.Errorf("opening terminal: %w", err)
	}
	if err := a.SetBackend(term); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		<-signals
		a.Shutdown()
	}()

	return a.Run(cmd.Context())
}

// newApp builds the application from the global flags.
func newApp(interactive bool) (*app.App, error) {
	level := ""
	if verbose {
		level = "debug"
	}
	return app.New(app.Options{
		Roots:       workspaces,
		ConfigDir:   configDir,
		Ephemeral:   ephemeral,
		DryRun:      dryRun,
		LogLevel:    level,
		Interactive: interactive,
	})
}
