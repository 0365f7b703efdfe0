package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// FormatStats renders the per-source table and the cycle summary as plain text
func FormatStats(result CycleResult) (string, error) {
	var b strings.Builder

	table := tablewriter.NewTable(&b,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
	)
	table.Header([]string{"source", "status", "mode", "fetched", "new", "duplicates", "last id", "attempts"})

	rows := make([][]string, 0, len(result.PerSourceStats))
	for _, s := range result.PerSourceStats {
		status := "ok"
		if !s.Success {
			status = s.Error
		}
		mode := "steady"
		if s.IsFirstRun {
			mode = "first run"
		}
		name := s.SourceID
		if s.Title != "" {
			name = fmt.Sprintf("%s (%s)", s.SourceID, s.Title)
		}
		rows = append(rows, []string{
			name,
			status,
			mode,
			strconv.Itoa(s.Fetched),
			strconv.Itoa(s.NewItems),
			strconv.Itoa(s.Duplicates),
			strconv.FormatInt(s.LastItemID, 10),
			strconv.Itoa(s.Attempts),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return "", fmt.Errorf("add stats rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("render stats table: %w", err)
	}

	fmt.Fprintf(&b, "cycle %s: %d new items", result.CycleID, result.NewItemsCount)
	switch {
	case result.Cancelled:
		b.WriteString(", cancelled before publishing")
	case result.DigestIsFallback:
		fmt.Fprintf(&b, ", FALLBACK digest (%s)", result.FallbackOrigin)
	}
	if pr := result.PublishResult; pr != nil {
		fmt.Fprintf(&b, ", publish: %s", pr.Reason)
		if pr.Truncated {
			b.WriteString(" (truncated)")
		}
	}
	b.WriteString("\n")
	return b.String(), nil
}
