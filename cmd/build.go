package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/accel"
	"github.com/achilleasa/bvhbuild/bvh"
)

// Build a hierarchy over a generated or loaded scene and print its statistics.
func BuildBVH(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		logger.Error(err)
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		logger.Error(err)
		return err
	}

	sc, err := setupScene(cfg, ctx.String("obj"))
	if err != nil {
		logger.Error(err)
		return err
	}

	b := accel.NewBVH(cfg.Arena)
	builder, err := setupBuilder(cfg, b, sc, buildOptions(ctx)...)
	if err != nil {
		logger.Error(err)
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err = builder.Build(runCtx); err != nil {
		logger.Errorf("build failed: %v", err)
		return err
	}
	logger.Noticef("built %s BVH in %d ms", cfg.Scene.Kind, time.Since(start).Nanoseconds()/1e6)

	logger.Noticef("BVH statistics\n%s", b.Report(cfg.Scene.Kind))
	logger.Infof("node statistics\n%s", b.Stats().Table())
	return nil
}

// Builder options derived from the command flags.
func buildOptions(ctx *cli.Context) []bvh.Option {
	opts := []bvh.Option{bvh.WithProgress(progressLogger(progressStep))}
	if workers := ctx.Int("workers"); workers > 0 {
		opts = append(opts, bvh.WithWorkers(workers))
	}
	return opts
}

const progressStep = 100000

// Log a debug message every time another step primitives are placed into
// leaves. Monitor calls are serialized so no locking is needed.
func progressLogger(step int) bvh.ProgressMonitor {
	var done, next int
	next = step
	return func(delta int) {
		done += delta
		if done < next {
			return
		}
		logger.Debugf("placed %s primitives into leaves", humanize.Comma(int64(done)))
		for next <= done {
			next += step
		}
	}
}
