// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
)

// Metrics writes one table per run with the selected metrics, one row per epoch.
func Metrics(w io.Writer, runs []*run) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Metrics"))
	for _, r := range runs {
		if len(r.Points) == 0 {
			_, _ = fmt.Fprintf(w, "%s: no metrics found\n", r.Name)
			continue
		}
		if len(runs) > 1 {
			_, _ = fmt.Fprintf(w, "%s:\n", r.Name)
		}
		_, _ = fmt.Fprintln(w, r.Points.TableForMetrics())
	}
}
