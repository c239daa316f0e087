// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/deshadow/pkg/support/sets"
	"github.com/gomlx/deshadow/ui/plots"
	"github.com/gomlx/deshadow/ui/plots/gonumplot"
	"github.com/gomlx/deshadow/ui/plots/margaid"
	"github.com/gomlx/deshadow/ui/plots/plotly"
	"github.com/pkg/errors"
	"gonum.org/v1/plot/vg"
)

// pngDPI converts the -plot_size pixels to the length gonum/plot renders PNGs with.
const pngDPI = 96

// Plot formats supported by -plot_formats.
const (
	FormatHTML = "html"
	FormatSVG  = "svg"
	FormatPNG  = "png"
)

var (
	flagPlotDir = flag.String("plot_dir", "",
		fmt.Sprintf("If set, plots the metrics collected in file %q into this directory. "+
			"You can control which metrics to plot with -metrics_names and -metrics_types", plots.TrainingPlotFileName))
	flagPlotFormats = flag.String("plot_formats", "html,svg,png",
		"Comma-separated list of plot formats: \"html\" (plotly, one page), \"svg\" (margaid) and \"png\" (gonum/plot), "+
			"one file per metric type for the last two.")
	flagPlotSize = flag.Int("plot_size", 800, "Width of the SVG and PNG plots, the height is 2/3 of it.")
)

// runPoints returns all the points of the runs. With more than one run, metric names are prefixed with the run name,
// so each run is drawn with its own lines.
func runPoints(runs []*run) []plots.Point {
	var all []plots.Point
	for _, r := range runs {
		for _, pt := range r.Points.Extract() {
			if len(runs) > 1 {
				pt.MetricName = r.Name + "/" + pt.MetricName
				pt.Short = r.Name + "/" + pt.Short
			}
			all = append(all, pt)
		}
	}
	return all
}

// WritePlots writes the plots of the runs in the formats given by -plot_formats.
func WritePlots(dir string, runs []*run) error {
	formats := sets.MakeWith(strings.Split(*flagPlotFormats, ",")...)
	for format := range formats {
		if format != FormatHTML && format != FormatSVG && format != FormatPNG {
			return errors.Errorf("unknown plot format %q in -plot_formats=%q", format, *flagPlotFormats)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create plots directory %q", dir)
	}
	points := runPoints(runs)
	if len(points) == 0 {
		return errors.Errorf("no metrics to plot")
	}

	var written []string
	width, height := *flagPlotSize, *flagPlotSize*2/3
	if formats.Has(FormatHTML) {
		plot := plotly.New()
		addPoints(plot, points)
		path := filepath.Join(dir, "metrics.html")
		if err := plot.WriteHTMLFile(path); err != nil {
			return err
		}
		written = append(written, path)
	}
	if formats.Has(FormatSVG) {
		plot := margaid.New(width, height)
		addPoints(plot, points)
		paths, err := plot.WriteSVGs(dir)
		if err != nil {
			return err
		}
		written = append(written, paths...)
	}
	if formats.Has(FormatPNG) {
		plot := gonumplot.New()
		plot.Width, plot.Height = vg.Length(width)*vg.Inch/pngDPI, vg.Length(height)*vg.Inch/pngDPI
		addPoints(plot, points)
		paths, err := plot.Save(dir, ".png")
		if err != nil {
			return err
		}
		written = append(written, paths...)
	}
	for _, path := range written {
		fmt.Printf("Plot written to %s\n", path)
	}
	return nil
}

func addPoints(plotter plots.Plotter, points []plots.Point) {
	for _, pt := range points {
		plotter.AddPoint(pt)
	}
	plotter.DynamicSampleDone(false)
}
