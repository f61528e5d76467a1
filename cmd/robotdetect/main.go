// Command robotdetect runs the full robot-detection pipeline: data
// preparation, hyperparameter search, final training and report rendering.
//
// Settings come from the YAML file named by ROBOTDETECT_CONFIG; without it
// the built-in defaults are used.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/robotdetect/config"
	"github.com/YuminosukeSato/robotdetect/observability"
	"github.com/YuminosukeSato/robotdetect/pipeline"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "robotdetect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Trace.Enabled {
		_, shutdown, err := observability.NewFileTracer(cfg.TracePath(), observability.TraceConfig{
			ServiceName:  "robotdetect",
			SamplingRate: cfg.Trace.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.GetLoggerWithName("main").Warn("Failed to flush traces", "error", err)
			}
		}()
	}

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		log.GetLoggerWithName("main").Error("Pipeline failed", err)
		return err
	}

	fmt.Println(res.Final.Evaluation.Report.String())
	fmt.Printf("ROC AUC: %.4f  Average precision: %.4f\n",
		res.Final.Evaluation.AUC, res.Final.Evaluation.AveragePrecision)
	for _, path := range res.Artifacts {
		fmt.Println("wrote", path)
	}
	return nil
}
