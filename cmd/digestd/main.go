// Package main implements the digestd CLI: run a digest over a message
// snapshot and print the resulting digest JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/digestd/internal/config"
	"github.com/fyrsmithlabs/digestd/internal/logging"
	"github.com/fyrsmithlabs/digestd/internal/pipeline"
)

var (
	configPath string
	runTimeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "digestd",
	Short: "LLM-powered digest of conversational message snapshots",
	Long: `digestd turns a snapshot of normalized conversational messages into a
prioritized daily digest. The LLM path produces the full v3 digest; when it is
disabled or fails, the run degrades to the extractive v2 digest instead of
failing.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "overall run deadline")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}

// runCmd executes one digest run over a snapshot file or stdin.
var runCmd = &cobra.Command{
	Use:   "run [snapshot]",
	Short: "Produce a digest from a snapshot of messages",
	Long: `Produce a digest from a JSON snapshot of normalized messages.

Examples:
  # Digest a snapshot file
  digestd run snapshot.json

  # Digest from stdin
  cat snapshot.json | digestd run -

  # With a config file
  digestd run --config digestd.yaml snapshot.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDigest,
}

// checkCmd validates the configuration without running anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: unit=%s llm_enabled=%v\n", cfg.UnitID, cfg.LLM.Enabled)
		return nil
	},
}

func runDigest(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read snapshot %s: %w", args[0], err)
		}
	}

	var snap pipeline.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if snap.UnitID == "" {
		snap.UnitID = cfg.UnitID
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	runner, err := pipeline.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	d, err := runner.Run(ctx, snap)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode digest: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
