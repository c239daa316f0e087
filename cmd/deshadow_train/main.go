// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// deshadow_train trains a shadow-removal translator on paired (shadowed, shadow-free) images,
// keeping a checkpoint of the translator with the best validation RMSE.
//
// Example:
//
//	deshadow_train -data=~/work/MaterialData -output=~/work/best_rmse_model -n_epochs=100 -set="lr=1e-4;aug=true"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gomlx/deshadow/pkg/ml/checkpoints"
	"github.com/gomlx/deshadow/pkg/ml/data"
	"github.com/gomlx/deshadow/pkg/ml/masks"
	"github.com/gomlx/deshadow/pkg/ml/models"
	"github.com/gomlx/deshadow/pkg/ml/models/distillnet"
	"github.com/gomlx/deshadow/pkg/ml/perceptual"
	"github.com/gomlx/deshadow/pkg/ml/train"
	"github.com/gomlx/deshadow/pkg/ml/train/losses"
	"github.com/gomlx/deshadow/pkg/ml/train/optimizers"
	"github.com/gomlx/deshadow/pkg/ml/train/telemetry"
	"github.com/gomlx/deshadow/pkg/support/fsutil"
	"github.com/gomlx/deshadow/ui/commandline"
	"github.com/gomlx/deshadow/ui/fyneui"
	"github.com/gomlx/deshadow/ui/plots"
	"github.com/gomlx/deshadow/ui/plots/plotly"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	cfg = train.DefaultConfig()

	flagDataDir    = flag.String("data", "./MaterialData", "Root directory of the dataset, with the \"train\" and \"validation\" splits.")
	flagPretrained = flag.String("pretrained", "./loaded_models/gen_sh2f_mapped.bin", "Pretrained translator weights. If empty the translator starts from its identity initialization.")
	flagOutput     = flag.String("output", "./best_rmse_model", "Output directory for checkpoints, plot points and prediction images.")
	flagUseMask    = flag.Bool("use_mask", false, "Read ground-truth shadow masks from the dataset, instead of estimating them.")
	flagAugment    = flag.Bool("aug", false, "Augment training images with random flips and rotations.")
	flagSeed       = flag.Int64("seed", 0, "Seed used to shuffle and augment the training data.")
	flagPlots      = flag.Bool("plots", true, "Write an HTML plot of the training metrics to the output directory at the end.")
	flagGUI        = flag.Bool("gui", false, "Display training progress in a window, if a display is available.")
	flagCompress   = flag.Bool("checkpoint_gzip", false, "Compress checkpoints with gzip.")
)

func init() {
	flag.IntVar(&cfg.NEpochs, "n_epochs", cfg.NEpochs, "Number of epochs of training: epochs resume_epoch to n_epochs-1 are run.")
	flag.IntVar(&cfg.ResumeEpoch, "resume_epoch", cfg.ResumeEpoch, "Epoch to start training from.")
	flag.IntVar(&cfg.BatchSize, "batchsize", cfg.BatchSize, "Size of the training batches.")
	flag.IntVar(&cfg.ImageHeight, "img_height", cfg.ImageHeight, "Height images are resized to.")
	flag.IntVar(&cfg.ImageWidth, "img_width", cfg.ImageWidth, "Width images are resized to.")
	flag.IntVar(&cfg.Channels, "channels", cfg.Channels, "Number of image channels: 1 or 3.")
	flag.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "Optimizer: \"adam\" or \"sgd\".")
	flag.Float64Var(&cfg.Hyperparameters.LearningRate, "lr", cfg.Hyperparameters.LearningRate, "Base learning rate.")
	flag.Float64Var(&cfg.Hyperparameters.Beta1, "b1", cfg.Hyperparameters.Beta1, "Adam decay of the first order momentum of the gradient.")
	flag.Float64Var(&cfg.Hyperparameters.Beta2, "b2", cfg.Hyperparameters.Beta2, "Adam decay of the second order momentum of the gradient.")
	flag.Float64Var(&cfg.Hyperparameters.Momentum, "momentum", cfg.Hyperparameters.Momentum, "SGD momentum.")
	flag.Float64Var(&cfg.Gamma, "gamma", cfg.Gamma, "Learning rate decay factor applied at each milestone.")
	flag.IntVar(&cfg.DecayEpoch, "decay_epoch", cfg.DecayEpoch, "First epoch of learning rate decay.")
	flag.IntVar(&cfg.DecaySteps, "decay_steps", cfg.DecaySteps, "Number of learning rate decay milestones, evenly spaced after decay_epoch.")
	flag.IntVar(&cfg.NumCPU, "n_cpu", cfg.NumCPU, "Number of batches read in parallel.")
	flag.DurationVar(&cfg.DataTimeout, "data_timeout", cfg.DataTimeout, "Maximum wait for one batch of data.")
	flag.Float64Var(&cfg.Weights.Pixel, "pixelwise_weight", cfg.Weights.Pixel, "Weight of the pixel-wise loss.")
	flag.Float64Var(&cfg.Weights.Perceptual, "perceptual_weight", cfg.Weights.Perceptual, "Weight of the perceptual loss.")
	flag.Float64Var(&cfg.Weights.Mask, "mask_weight", cfg.Weights.Mask, "Weight of the mask loss.")
	flag.IntVar(&cfg.ValCheckpoint, "val_checkpoint", cfg.ValCheckpoint, "Validate when epoch % val_checkpoint == 0.")
	flag.IntVar(&cfg.SaveCheckpoint, "save_checkpoint", cfg.SaveCheckpoint, "Save the prediction of every save_checkpoint-th validation sample.")
	flag.BoolVar(&cfg.ValHalfPrecision, "val_half_precision", cfg.ValHalfPrecision, "Round translator outputs to float16 during validation.")
	flag.Float64Var(&cfg.BestRMSE, "best_rmse", cfg.BestRMSE, "Initial best validation RMSE: only better translators are saved.")
	flag.IntVar(&cfg.CheckpointKeep, "checkpoint_keep", cfg.CheckpointKeep, "Number of best checkpoints to keep. If 0 all are kept.")
}

func main() {
	settings := commandline.CreateSettingsFlag(flag.CommandLine, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet, err := commandline.ParseSettings(flag.CommandLine, *settings)
	if err != nil {
		klog.Exitf("Invalid -set: %+v", err)
	}
	if klog.V(1).Enabled() {
		klog.Infof("Settings:\n%s", commandline.SprintModifiedSettings(flag.CommandLine, paramsSet))
	}
	if *flagGUI {
		fyneui.RunMain(run)
		return
	}
	run()
}

func run() {
	if err := cfg.Validate(); err != nil {
		klog.Exitf("Invalid configuration: %v", err)
	}
	dataDir := mustReplaceTilde(*flagDataDir)
	outputDir := mustReplaceTilde(*flagOutput)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		klog.Exitf("Failed to create output directory: %+v", err)
	}

	translator, optimizer := createTranslator()
	aggregator := losses.NewAggregator(cfg.Weights, masks.NewOtsu(), perceptual.NewFeaturePyramid())
	trainer, err := train.NewTrainer(cfg, translator, optimizer, aggregator)
	if err != nil {
		klog.Exitf("%v", err)
	}
	schedule, err := cfg.NewSchedule(optimizer)
	if err != nil {
		klog.Exitf("%v", err)
	}

	trainLoader, validationLoader := createLoaders(dataDir)
	format := checkpoints.BinUncompressed
	if *flagCompress {
		format = checkpoints.BinGZIP
	}
	checkpointer, err := checkpoints.Build().Dir(outputDir).Keep(cfg.CheckpointKeep).WithCompression(format).Done()
	if err != nil {
		klog.Exitf("Failed to set up checkpoints: %+v", err)
	}
	resumeFromCheckpoint(checkpointer, translator, optimizer)

	fileSink, err := telemetry.NewFileSink(outputDir, flagValues())
	if err != nil {
		klog.Exitf("Failed to set up telemetry: %+v", err)
	}
	klog.Infof("Run %s: writing to %s", fileSink.RunID(), outputDir)
	var sink telemetry.Sink = fileSink
	if notebook := telemetry.NewNotebookSink(); notebook != nil {
		sink = telemetry.Multi(fileSink, notebook)
	}

	loop := train.NewLoop(trainer, trainLoader, validationLoader, schedule).
		WithTelemetry(sink).
		WithCheckpointPolicy(train.NewBestCheckpointPolicy(checkpointer, cfg.CheckpointRetryBackoff))
	if *flagGUI {
		fyneui.AttachGUIOrProgressBar(loop, "deshadow: "+filepath.Base(outputDir))
	} else {
		commandline.AttachProgressBar(loop)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	runErr := loop.RunEpochs(ctx)
	if err := sink.Close(); err != nil {
		klog.Errorf("Failed to close telemetry: %+v", err)
	}
	commandline.ReportRun(os.Stdout, loop)
	fmt.Printf("Elapsed: %s\n", commandline.FormatDuration(time.Since(start)))
	if *flagPlots {
		writePlots(outputDir)
	}
	if runErr != nil {
		klog.Exitf("Training failed: %+v", runErr)
	}
}

func mustReplaceTilde(dir string) string {
	replaced, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		klog.Exitf("Invalid path %q: %v", dir, err)
	}
	return replaced
}

// createTranslator creates the translator, initialized with the pretrained weights if given, and its optimizer.
func createTranslator() (models.Translator, optimizers.Interface) {
	translator := distillnet.New(cfg.Channels)
	if *flagPretrained != "" {
		path := mustReplaceTilde(*flagPretrained)
		if err := models.LoadPretrained(translator, path); err != nil {
			klog.Exitf("Failed to load pretrained translator: %+v", err)
		}
		klog.Infof("Loaded pretrained translator from %s", path)
	}
	optimizer, err := cfg.NewOptimizer()
	if err != nil {
		klog.Exitf("%v", err)
	}
	return translator, optimizer
}

// createLoaders for the "train" and "validation" splits. Validation always uses batches of size 1.
func createLoaders(dataDir string) (trainLoader, validationLoader *data.Loader) {
	trainSet, err := data.NewPairedImageSet(dataDir, "train").
		Size(cfg.ImageHeight, cfg.ImageWidth).Channels(cfg.Channels).
		UseMask(*flagUseMask).Augment(*flagAugment, *flagSeed).Done()
	if err != nil {
		klog.Exitf("Failed to load training data: %+v", err)
	}
	validationSet, err := data.NewPairedImageSet(dataDir, "validation").
		Size(cfg.ImageHeight, cfg.ImageWidth).Channels(cfg.Channels).
		UseMask(*flagUseMask).Done()
	if err != nil {
		klog.Exitf("Failed to load validation data: %+v", err)
	}
	klog.Infof("Data: %d training samples, %d validation samples", trainSet.Len(), validationSet.Len())
	trainLoader = data.NewLoader(trainSet, cfg.BatchSize).Shuffle(*flagSeed).
		Parallelism(cfg.NumCPU).Timeout(cfg.DataTimeout)
	validationLoader = data.NewLoader(validationSet, 1).Parallelism(cfg.NumCPU).Timeout(cfg.DataTimeout)
	return
}

// resumeFromCheckpoint loads the latest best checkpoint of the output directory when resuming training.
func resumeFromCheckpoint(handler *checkpoints.Handler, translator models.Translator, optimizer optimizers.Interface) {
	if cfg.ResumeEpoch <= 1 {
		return
	}
	epoch, translatorState, optimizerState, err := handler.LoadLatest()
	if err != nil {
		klog.Exitf("Failed to load checkpoint: %+v", err)
	}
	if epoch == 0 {
		klog.Warningf("Resuming at epoch %d without a checkpoint in %s", cfg.ResumeEpoch, handler.Dir())
		return
	}
	if err = models.LoadStateDict(translator, translatorState); err != nil {
		klog.Exitf("Failed to restore translator from epoch %d: %+v", epoch, err)
	}
	if err = optimizer.LoadState(optimizerState); err != nil {
		klog.Exitf("Failed to restore optimizer from epoch %d: %+v", epoch, err)
	}
	klog.Infof("Resuming at epoch %d from the checkpoint of epoch %d", cfg.ResumeEpoch, epoch)
}

// flagValues returns the value of all flags, recorded with the run.
func flagValues() map[string]any {
	values := make(map[string]any)
	flag.VisitAll(func(f *flag.Flag) {
		values[f.Name] = f.Value.String()
	})
	return values
}

func writePlots(outputDir string) {
	points, err := plots.LoadPointsFromDir(outputDir)
	if err != nil {
		klog.Warningf("No plots: %v", err)
		return
	}
	plot := plotly.New()
	for _, pt := range points {
		plot.AddPoint(pt)
	}
	path := filepath.Join(outputDir, "training_plots.html")
	if err = plot.WriteHTMLFile(path); err != nil {
		klog.Warningf("%+v", errors.WithMessagef(err, "writing plots"))
		return
	}
	fmt.Printf("Plots written to %s\n", path)
}
