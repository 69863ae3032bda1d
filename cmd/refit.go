package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/accel"
	"github.com/achilleasa/bvhbuild/config"
	"github.com/achilleasa/bvhbuild/scene"
)

// Build a hierarchy, move the scene vertices and update the hierarchy in
// place. The result is compared against a hierarchy built from scratch over
// the moved vertices.
func RefitBVH(ctx *cli.Context) error {
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

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := buildOptions(ctx)
	b := accel.NewBVH(cfg.Arena)
	builder, err := setupBuilder(cfg, b, sc, opts...)
	if err != nil {
		logger.Error(err)
		return err
	}
	if err = builder.Build(runCtx); err != nil {
		logger.Errorf("initial build failed: %v", err)
		return err
	}

	jitterScene(sc, cfg.Scene.Kind, cfg.Scene.Seed+1, float32(ctx.Float64("jitter")))
	if sc.IsMotionBlurred() {
		logger.Warning("motion blurred hierarchies cannot be refitted; the update performs a full rebuild")
	}

	start := time.Now()
	if err = builder.Build(runCtx); err != nil {
		logger.Errorf("update failed: %v", err)
		return err
	}
	refitTime := time.Since(start)

	fresh := accel.NewBVH(cfg.Arena)
	freshBuilder, err := setupBuilder(cfg, fresh, sc, opts...)
	if err != nil {
		logger.Error(err)
		return err
	}
	start = time.Now()
	if err = freshBuilder.Build(runCtx); err != nil {
		logger.Errorf("rebuild failed: %v", err)
		return err
	}
	rebuildTime := time.Since(start)

	logger.Noticef("refit statistics\n%s", compareTable(b, fresh, refitTime, rebuildTime))
	return nil
}

func jitterScene(sc *scene.Scene, kind string, seed uint64, amount float32) {
	switch kind {
	case config.KindTriangles:
		for _, m := range sc.TriangleMeshes {
			for t := range m.Vertices {
				scene.Jitter(seed+uint64(t), amount, &m.Vertices[t])
			}
		}
	case config.KindCurves:
		for _, c := range sc.CurveSets {
			for t := range c.Points {
				scene.JitterPoints(seed+uint64(t), amount, &c.Points[t])
			}
		}
	case config.KindPatches:
		for _, m := range sc.SubdivMeshes {
			for t := range m.Vertices {
				scene.Jitter(seed+uint64(t), amount, &m.Vertices[t])
			}
		}
	}
}

func compareTable(refit, rebuild *accel.BVH, refitTime, rebuildTime time.Duration) string {
	rs, bs := refit.Stats(), rebuild.Stats()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{"", "Update", "Rebuild"})
	table.Append([]string{"Time", fmtDuration(refitTime), fmtDuration(rebuildTime)})
	table.Append([]string{"Primitives", fmt.Sprintf("%d", refit.NumPrimitives), fmt.Sprintf("%d", rebuild.NumPrimitives)})
	table.Append([]string{"Nodes", fmt.Sprintf("%d", rs.Nodes()), fmt.Sprintf("%d", bs.Nodes())})
	table.Append([]string{"SAH cost", fmt.Sprintf("%.2f", rs.SAH), fmt.Sprintf("%.2f", bs.SAH)})
	table.Append([]string{"Bounds min", fmt.Sprintf("%v", refit.Bounds.Min), fmt.Sprintf("%v", rebuild.Bounds.Min)})
	table.Append([]string{"Bounds max", fmt.Sprintf("%v", refit.Bounds.Max), fmt.Sprintf("%v", rebuild.Bounds.Max)})
	table.Render()
	return buf.String()
}

func fmtDuration(d time.Duration) string {
	return fmt.Sprintf("%d ms", d.Nanoseconds()/1e6)
}
