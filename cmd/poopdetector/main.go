// Command poopdetector runs the detection and segmentation pipeline over a
// directory of photos and writes annotated images and predictions.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/mkorzunowicz/poopdetector/controller"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/mkorzunowicz/poopdetector/util"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	// DefaultConfigPath is the pipeline configuration read when -config is not given.
	DefaultConfigPath = "poopdetector.yaml"
	// DefaultOutputDir is where annotated frames and predictions.json are written.
	DefaultOutputDir = "predictions"
)

// record is one line of predictions.json.
type record struct {
	File       string                 `json:"file"`
	Prediction *controller.Prediction `json:"prediction"`
}

func main() {
	var (
		configPath  string
		inputDir    string
		outputDir   string
		provider    string
		metricsPath string
		segment     bool
		debug       bool
	)
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Path to the pipeline YAML configuration")
	flag.StringVar(&inputDir, "dir", ".", "Directory of images (.jpg, .jpeg, .png, .bmp, .webp)")
	flag.StringVar(&outputDir, "output-dir", DefaultOutputDir, "Output directory for annotated frames")
	flag.StringVar(&provider, "provider", "", "Execution provider override (cpu, cuda, coreml, openvino)")
	flag.StringVar(&metricsPath, "metrics", "", "Write inference metrics in text exposition format to this file")
	flag.BoolVar(&segment, "segment", false, "Segment every frame from its first detection")
	flag.BoolVar(&debug, "debug", false, "Log stage timings")
	flag.Parse()

	logger := newLogger(debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, options{
		configPath:  configPath,
		inputDir:    inputDir,
		outputDir:   outputDir,
		provider:    provider,
		metricsPath: metricsPath,
		segment:     segment,
	}); err != nil {
		logger.Fatal("poopdetector failed", zap.Error(err))
	}
}

type options struct {
	configPath  string
	inputDir    string
	outputDir   string
	provider    string
	metricsPath string
	segment     bool
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	cfg, err := controller.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.provider != "" {
		p, err := providers.ParseProvider(opts.provider)
		if err != nil {
			return err
		}
		cfg.Runtime.Provider = p
	}
	if opts.segment && cfg.Segmenter == nil {
		return errors.New("-segment needs a segmenter in the configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := inference.NewMetrics(reg)
	if err != nil {
		return err
	}

	ctrl, err := controller.Open(cfg, cfg.Backend(logger, metrics))
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	files, err := util.LoadDirectoryImageFiles(opts.inputDir)
	if err != nil {
		return errors.Wrap(err, "loading images")
	}
	logger.Info("processing", zap.Int("images", len(files)), zap.String("dir", opts.inputDir),
		zap.Stringer("provider", cfg.Runtime.Provider))

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return err
	}

	start := time.Now()
	records := make([]record, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := process(ctx, ctrl, f, opts.segment)
		if err != nil {
			logger.Warn("skipping image", zap.String("file", f.Path), zap.Error(err))
			continue
		}

		overlay := postprocess.Overlay{
			Boxes:    p.Boxes,
			ScaleX:   float32(p.OriginalWidth) / float32(p.InputWidth),
			ScaleY:   float32(p.OriginalHeight) / float32(p.InputHeight),
			Polygons: p.Polygons,
		}
		out := filepath.Join(opts.outputDir, f.Name+".png")
		if err := util.SaveImageFile(out, overlay.Draw(f.Image)); err != nil {
			return errors.Wrapf(err, "writing %s", out)
		}

		records = append(records, record{File: f.Path, Prediction: p})
		logger.Info("prediction",
			zap.String("file", f.Path),
			zap.Int("boxes", len(p.Boxes)),
			zap.String("framing", string(p.Framing)),
			zap.Int("polygons", len(p.Polygons)))
	}

	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.outputDir, "predictions.json"), raw, 0o644); err != nil {
		return err
	}

	if opts.metricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.metricsPath, reg); err != nil {
			return errors.Wrap(err, "writing metrics")
		}
	}

	logger.Info("done", zap.Int("predictions", len(records)), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// process detects on one frame and, when asked, freezes it for segmentation.
func process(ctx context.Context, ctrl *controller.Controller, f util.ImageFile, segment bool) (*controller.Prediction, error) {
	p, err := ctrl.ProcessFrame(ctx, f.Image)
	if err != nil {
		return nil, err
	}
	if !segment {
		return p, nil
	}

	defer ctrl.Resume()
	return ctrl.Freeze(ctx)
}
