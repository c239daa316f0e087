// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/deshadow/pkg/core/tensors"
	"github.com/gomlx/deshadow/pkg/ml/checkpoints"
	"github.com/gomlx/deshadow/pkg/ml/train"
	"github.com/gomlx/deshadow/pkg/ml/train/telemetry"
	"github.com/gomlx/deshadow/ui/plots"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimalUniquePaths(t *testing.T) {
	assert.Equal(t, []string{"model"}, MinimalUniquePaths("/work/runs/model"))
	assert.Equal(t, []string{"a", "b"}, MinimalUniquePaths("/work/a/model", "/work/b/model"))
	assert.Equal(t, []string{"a...x", "b...y"}, MinimalUniquePaths("/work/a/x", "/work/b/y"))
}

// writeRun creates an output directory like the one written by deshadow_train.
func writeRun(t *testing.T, dir string, rmses ...float64) {
	sink := must.M1(telemetry.NewFileSink(dir, map[string]any{"lr": "0.0002"}))
	handler := must.M1(checkpoints.Build().Dir(dir).Done())
	best := train.DefaultBestRMSESentinel
	for ii, rmse := range rmses {
		epoch := ii + 1
		require.NoError(t, sink.LogScalars(epoch, map[string]float64{
			train.EpochKey:          float64(epoch),
			train.TrainLossKey:      1 / float64(epoch),
			train.ValidationRMSEKey: rmse,
		}))
		if epoch > 1 && rmse < best {
			best = rmse
			sd := tensors.NewStateDict()
			sd.Tensors["w"] = tensors.Full(float32(epoch), 2, 2)
			require.NoError(t, handler.Save(epoch, sd, tensors.NewStateDict()))
		}
	}
	require.NoError(t, sink.Close())
}

func TestReport(t *testing.T) {
	root := t.TempDir()
	dirA, dirB := filepath.Join(root, "a", "model"), filepath.Join(root, "b", "model")
	writeRun(t, dirA, 50, 40, 45)
	writeRun(t, dirB, 30, 65)

	names := MinimalUniquePaths(dirA, dirB)
	runA := must.M1(loadRun(dirA, names[0]))
	runB := must.M1(loadRun(dirB, names[1]))
	assert.Equal(t, []int{2}, runA.Epochs)
	assert.Empty(t, runB.Epochs)
	require.NoError(t, runA.InfoErr)
	assert.NotNil(t, runA.Info.Finished)

	rows := summaryRows([]*run{runA, runB})
	byName := make(map[string][]string)
	for _, row := range rows {
		byName[row[0]] = row[1:]
	}
	assert.Equal(t, []string{"3", "2"}, byName["epochs logged"])
	assert.Equal(t, []string{"40.0000 (epoch 2)", "30.0000 (epoch 1)"}, byName["best "+train.ValidationRMSEKey])
	assert.Equal(t, []string{"-", "-"}, byName["best "+train.ValidationPSNRKey])
	assert.Equal(t, []string{"1", "0"}, byName["# checkpoints"])

	var buf bytes.Buffer
	Summary(&buf, []*run{runA, runB})
	Checkpoints(&buf, []*run{runA, runB})
	Variables(&buf, []*run{runA})
	Config(&buf, []*run{runA, runB})
	Metrics(&buf, []*run{runA, runB})
	assert.Contains(t, buf.String(), runA.Info.RunID)
	assert.Contains(t, buf.String(), "40.0000")

	// Only error metrics.
	runA.Points.Filter(metricsFilter("", "error"))
	assert.Equal(t, []string{train.ValidationRMSEKey}, runA.Points.MetricsNames())
}

func TestWritePlots(t *testing.T) {
	root := t.TempDir()
	writeRun(t, filepath.Join(root, "model"), 50, 40, 45)
	r := must.M1(loadRun(filepath.Join(root, "model"), "model"))
	plotDir := filepath.Join(root, "plots")
	*flagPlotFormats = "html,svg,png"
	require.NoError(t, WritePlots(plotDir, []*run{r}))
	for _, file := range []string{"metrics.html", "error.svg", "loss.png"} {
		assert.FileExists(t, filepath.Join(plotDir, file))
	}

	*flagPlotFormats = "pdf"
	require.Error(t, WritePlots(plotDir, []*run{r}))
	*flagPlotFormats = "html"
	empty := &run{Name: "empty", Points: plots.NewPoints(nil)}
	require.Error(t, WritePlots(plotDir, []*run{empty}))
	_ = os.RemoveAll(plotDir)
}
