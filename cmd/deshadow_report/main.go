// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// deshadow_report reports on the output directories of deshadow_train: a summary of the runs,
// the best-RMSE checkpoints saved, the translator parameters, the metrics collected and plots of them.
//
// Example:
//
//	deshadow_report -checkpoints -metrics -metrics_types=error ~/work/best_rmse_model ~/work/best_rmse_model_aug
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/deshadow/pkg/ml/checkpoints"
	"github.com/gomlx/deshadow/pkg/ml/train/telemetry"
	"github.com/gomlx/deshadow/pkg/support/fsutil"
	"github.com/gomlx/deshadow/pkg/support/sets"
	"github.com/gomlx/deshadow/ui/plots"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagSummary     = flag.Bool("summary", true, "Display a summary of each run.")
	flagCheckpoints = flag.Bool("checkpoints", false, "Lists the best-RMSE checkpoints saved, with their sizes.")
	flagVars        = flag.Bool("vars", false, "Lists the translator parameters of the latest checkpoint of each run.")
	flagConfig      = flag.Bool("config", false, "Lists the configuration the runs were started with.")
	flagMetrics     = flag.Bool("metrics", false,
		fmt.Sprintf("Lists the metrics collected for plotting in file %q", plots.TrainingPlotFileName))
	flagMetricsNames = flag.String("metrics_names", "", "Comma-separated list of metric names to include in metrics report and plots.")
	flagMetricsTypes = flag.String("metrics_types", "", "Comma-separated list of metric types to include in metrics report and plots.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

// run holds what is known about one output directory of deshadow_train.
type run struct {
	Dir, Name string

	// Info is read from telemetry.RunFileName. It's zero if InfoErr is set.
	Info    telemetry.RunInfo
	InfoErr error

	Checkpoints *checkpoints.Handler
	Epochs      []int

	Points plots.Points
}

// loadRun reads the run information available in dir. Only the lack of a directory is an error:
// missing run information, checkpoints or metrics are reported in the respective sections.
func loadRun(dir, name string) (*run, error) {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return nil, err
	}
	r := &run{Dir: dir, Name: name}
	r.Checkpoints, err = checkpoints.Load().Dir(dir).Done()
	if err != nil {
		return nil, err
	}
	if r.Epochs, err = r.Checkpoints.ListCheckpoints(); err != nil {
		return nil, errors.WithMessagef(err, "listing checkpoints of %q", dir)
	}
	r.Info, r.InfoErr = telemetry.ReadRunInfo(dir)
	if rawPoints, err := plots.LoadPointsFromDir(dir); err == nil {
		r.Points = plots.NewPoints(rawPoints)
	} else {
		klog.V(1).Infof("No metrics for %q: %v", dir, err)
		r.Points = plots.NewPoints(nil)
	}
	return r, nil
}

// metricsFilter returns a filter for the points selected by -metrics_names and -metrics_types.
// With neither flag set, all points are selected.
func metricsFilter(names, types string) func(p plots.Point) bool {
	split := func(list string) sets.Set[string] {
		if list == "" {
			return nil
		}
		return sets.MakeWith(strings.Split(list, ",")...)
	}
	namesSet, typesSet := split(names), split(types)
	return func(p plots.Point) bool {
		if namesSet == nil && typesSet == nil {
			return true
		}
		return (namesSet != nil && (namesSet.Has(p.MetricName) || namesSet.Has(p.Short))) ||
			(typesSet != nil && typesSet.Has(p.MetricType))
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing output directory to read from. See 'deshadow_report -help'")
		os.Exit(1)
	}
	names := MinimalUniquePaths(args...)
	runs := make([]*run, len(args))
	for ii, dir := range args {
		var err error
		runs[ii], err = loadRun(dir, names[ii])
		if err != nil {
			klog.Exitf("Failed to read %q: %+v", dir, err)
		}
	}

	filter := metricsFilter(*flagMetricsNames, *flagMetricsTypes)
	for _, r := range runs {
		r.Points.Filter(filter)
	}
	if *flagSummary {
		Summary(os.Stdout, runs)
	}
	if *flagConfig {
		Config(os.Stdout, runs)
	}
	if *flagCheckpoints {
		Checkpoints(os.Stdout, runs)
	}
	if *flagVars {
		Variables(os.Stdout, runs)
	}
	if *flagMetrics {
		Metrics(os.Stdout, runs)
	}
	if *flagPlotDir != "" {
		if err := WritePlots(*flagPlotDir, runs); err != nil {
			klog.Exitf("Failed to write plots: %+v", err)
		}
	}
}
