package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"digest-relay-go/internal/app"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop fingerprints older than the retention period",
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	purged, err := a.Purge(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d fingerprints older than %d days\n", purged, cfg.Ingest.RetentionDays)
	return nil
}
