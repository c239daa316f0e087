// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/deshadow/pkg/ml/train"
	"github.com/gomlx/deshadow/ui/commandline"
)

// summaryRows returns the rows of the summary table: one column with the row name plus one column per run.
func summaryRows(runs []*run) [][]string {
	row := func(name string, value func(r *run) string) []string {
		cells := []string{name}
		for _, r := range runs {
			cells = append(cells, value(r))
		}
		return cells
	}
	infoOr := func(r *run, value func() string) string {
		if r.InfoErr != nil {
			return "-"
		}
		return value()
	}
	bestOf := func(metric string, maximize bool) func(r *run) string {
		return func(r *run) string {
			best, found := r.Points.Best(metric, maximize)
			if !found {
				return "-"
			}
			return fmt.Sprintf("%.4f (epoch %.0f)", best.Value, best.Step)
		}
	}
	return [][]string{
		row("directory", func(r *run) string { return r.Dir }),
		row("run id", func(r *run) string { return infoOr(r, func() string { return r.Info.RunID }) }),
		row("started", func(r *run) string {
			return infoOr(r, func() string { return humanize.Time(r.Info.Started) })
		}),
		row("duration", func(r *run) string {
			return infoOr(r, func() string {
				if r.Info.Finished == nil {
					return "unfinished"
				}
				return commandline.FormatDuration(r.Info.Finished.Sub(r.Info.Started))
			})
		}),
		row("epochs logged", func(r *run) string {
			if len(r.Points) == 0 {
				return "0"
			}
			return fmt.Sprintf("%.0f", slices.Max(slices.Collect(maps.Keys(r.Points))))
		}),
		row("best "+train.ValidationRMSEKey, bestOf(train.ValidationRMSEKey, false)),
		row("best "+train.ValidationPSNRKey, bestOf(train.ValidationPSNRKey, true)),
		row("# checkpoints", func(r *run) string { return humanize.Comma(int64(len(r.Epochs))) }),
		row("checkpoints size", func(r *run) string {
			var total int64
			for _, epoch := range r.Epochs {
				total += checkpointSize(r, epoch)
			}
			return humanize.Bytes(uint64(total))
		}),
	}
}

// checkpointSize returns the size in bytes of the translator and optimizer files of the epoch.
func checkpointSize(r *run, epoch int) (size int64) {
	translatorPath, optimizerPath := r.Checkpoints.Paths(epoch)
	for _, path := range []string{translatorPath, optimizerPath} {
		if info, err := os.Stat(path); err == nil {
			size += info.Size()
		}
	}
	return
}

// Summary writes a table with one column per run.
func Summary(w io.Writer, runs []*run) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Summary"))
	table := newTable(lipgloss.Right, lipgloss.Left)
	headers := []string{"run"}
	for _, r := range runs {
		headers = append(headers, r.Name)
	}
	table.Table.Headers(headers...)
	for _, row := range summaryRows(runs) {
		table.Row(false, row...)
	}
	_, _ = fmt.Fprintln(w, table)
}

// Config lists the configuration of each run, highlighting values that differ across runs.
func Config(w io.Writer, runs []*run) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Configuration"))
	keys := make(map[string]bool)
	for _, r := range runs {
		for key := range r.Info.Config {
			keys[key] = true
		}
	}
	table := newTable(lipgloss.Right, lipgloss.Left)
	headers := []string{"setting"}
	for _, r := range runs {
		headers = append(headers, r.Name)
	}
	table.Table.Headers(headers...)
	for _, key := range slices.Sorted(maps.Keys(keys)) {
		values := make([]string, len(runs))
		for ii, r := range runs {
			if value, found := r.Info.Config[key]; found {
				values[ii] = fmt.Sprintf("%v", value)
			}
		}
		table.Row(!isAllEqual(values), append([]string{key}, values...)...)
	}
	_, _ = fmt.Fprintln(w, table)
}

func isAllEqual[E comparable](s []E) bool {
	for ii := 1; ii < len(s); ii++ {
		if s[ii] != s[0] {
			return false
		}
	}
	return true
}
