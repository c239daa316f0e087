// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/deshadow/pkg/ml/checkpoints"
	"github.com/gomlx/deshadow/pkg/ml/models"
	"github.com/gomlx/deshadow/pkg/ml/train"
)

// Checkpoints lists the checkpoints of each run, with the validation RMSE of the epoch if it was logged.
// The latest checkpoint, the best translator so far, is highlighted.
func Checkpoints(w io.Writer, runs []*run) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Checkpoints"))
	table := newTable(lipgloss.Left, lipgloss.Right)
	table.Table.Headers("run", "epoch", train.ValidationRMSEKey, "size")
	for _, r := range runs {
		for ii, epoch := range r.Epochs {
			rmse := "-"
			for _, pt := range r.Points[float64(epoch)] {
				if pt.MetricName == train.ValidationRMSEKey {
					rmse = fmt.Sprintf("%.4f", pt.Value)
				}
			}
			table.Row(ii == len(r.Epochs)-1, r.Name, fmt.Sprintf("%d", epoch), rmse,
				humanize.Bytes(uint64(checkpointSize(r, epoch))))
		}
	}
	_, _ = fmt.Fprintln(w, table)
}

// Variables lists the translator parameters of the latest checkpoint of each run.
func Variables(w io.Writer, runs []*run) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Translator parameters"))
	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Table.Headers("run", "architecture", "name", "shape", "size", "bytes")
	for _, r := range runs {
		if len(r.Epochs) == 0 {
			continue
		}
		translatorPath, _ := r.Checkpoints.Paths(slices.Max(r.Epochs))
		sd, err := checkpoints.ReadStateDict(translatorPath)
		if err != nil {
			table.Row(true, r.Name, "-", err.Error(), "", "", "")
			continue
		}
		arch := "-"
		if a, err := models.ArchitectureFromMetadata(sd.Metadata); err == nil {
			arch = fmt.Sprintf("%s(%d blocks x %d ops, %d channels)", a.Name, a.NumIterationBlocks, a.NumOps, a.Channels)
		}
		var totalSize int
		for _, name := range sd.Names() {
			shape := sd.Tensors[name].Shape()
			totalSize += shape.Size()
			table.Row(false, r.Name, arch, name, shape.String(),
				humanize.Comma(int64(shape.Size())), humanize.Bytes(uint64(shape.Memory())))
		}
		table.Row(true, r.Name, arch, "total", "", humanize.Comma(int64(totalSize)), humanize.Bytes(uint64(sd.Memory())))
	}
	_, _ = fmt.Fprintln(w, table)
}
