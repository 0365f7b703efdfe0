package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"digest-relay-go/internal/app"
	"digest-relay-go/internal/service/ingest"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single ingestion cycle and print its stats",
	Long: `Run one cycle over every configured source, then print a per-source table.

Examples:
  digest-relay run-once                # Run and publish
  digest-relay run-once --dry-run      # Skip publishing
  digest-relay run-once --json         # Print the full cycle result as JSON
  digest-relay run-once --show-digest  # Print the rendered digest after the table`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runOnceCmd)

	runOnceCmd.Flags().Bool("json", false, "output as JSON")
	runOnceCmd.Flags().Bool("show-digest", false, "print the rendered digest")
}

func runOnce(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showDigest, _ := cmd.Flags().GetBool("show-digest")

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result, runErr := a.RunOnce(ctx)
	if err := printResult(cmd, result, jsonOutput, showDigest); err != nil {
		return err
	}
	return runErr
}

func printResult(cmd *cobra.Command, result ingest.CycleResult, jsonOutput, showDigest bool) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	stats, err := ingest.FormatStats(result)
	if err != nil {
		return err
	}
	fmt.Fprint(out, stats)
	if showDigest && result.DigestText != "" {
		fmt.Fprintf(out, "\n%s\n", result.DigestText)
	}
	return nil
}
