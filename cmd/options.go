package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/config"
)

// Flags shared by all commands that build a hierarchy.
func BuildFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load settings from a TOML file; flags override file values",
		},
		cli.StringFlag{
			Name:  "kind, k",
			Value: config.KindTriangles,
			Usage: "geometry kind: triangles, curves or patches",
		},
		cli.IntFlag{
			Name:  "count, n",
			Value: 100000,
			Usage: "number of generated primitives (triangles, hair strands or grid faces)",
		},
		cli.Uint64Flag{
			Name:  "seed",
			Value: 1,
			Usage: "random seed for the scene generator",
		},
		cli.IntFlag{
			Name:  "time-steps, t",
			Value: 1,
			Usage: "number of time steps; values above 1 enable motion blur",
		},
		cli.Float64Flag{
			Name:  "level",
			Value: 1,
			Usage: "tessellation level of subdivision faces",
		},
		cli.StringFlag{
			Name:  "strand-fallback",
			Value: "sah",
			Usage: "split used when curves cannot be grouped by direction: sah or leaf",
		},
		cli.StringFlag{
			Name:  "obj",
			Usage: "load geometry from a wavefront obj file instead of generating it",
		},
		cli.IntFlag{
			Name:  "branching-factor, N",
			Value: 4,
			Usage: "children per internal node",
		},
		cli.IntFlag{
			Name:  "max-leaf-size",
			Value: 8,
			Usage: "maximum number of primitives per leaf",
		},
		cli.BoolFlag{
			Name:  "quantize, q",
			Usage: "store internal node bounds with reduced precision",
		},
		cli.BoolFlag{
			Name:  "static",
			Usage: "release temporary build storage after building",
		},
		cli.BoolFlag{
			Name:  "no-cache",
			Usage: "always rebuild patch hierarchies instead of refitting them",
		},
		cli.IntFlag{
			Name:  "workers, w",
			Usage: "number of concurrent build tasks; 0 uses one task per CPU",
		},
		cli.Int64Flag{
			Name:  "max-bytes",
			Usage: "cap the memory reserved for hierarchy nodes; 0 disables the cap",
		},
	}
}

// Load the configuration file (if any) and apply flag overrides.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if file := ctx.String("config"); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return cfg, err
		}
	}

	// Flags only override file values when set explicitly.
	useFlag := func(name string) bool {
		return ctx.String("config") == "" || ctx.IsSet(name)
	}
	if useFlag("kind") {
		cfg.Scene.Kind = ctx.String("kind")
	}
	if useFlag("count") {
		cfg.Scene.Count = ctx.Int("count")
	}
	if useFlag("seed") {
		cfg.Scene.Seed = ctx.Uint64("seed")
	}
	if useFlag("time-steps") {
		cfg.Scene.TimeSteps = ctx.Int("time-steps")
	}
	if useFlag("level") {
		cfg.Scene.Level = float32(ctx.Float64("level"))
	}
	if useFlag("strand-fallback") {
		cfg.Scene.StrandFallback = ctx.String("strand-fallback")
	}
	if useFlag("branching-factor") {
		cfg.Build.BranchingFactor = ctx.Int("branching-factor")
	}
	if useFlag("max-leaf-size") {
		cfg.Build.MaxLeafSize = ctx.Int("max-leaf-size")
	}
	if ctx.IsSet("max-bytes") {
		cfg.Arena.MaxBytes = ctx.Int64("max-bytes")
	}
	if ctx.Bool("quantize") {
		cfg.Build.Quantize = true
	}
	if ctx.Bool("no-cache") {
		cfg.Scene.Cached = false
	}
	if ctx.Bool("static") {
		cfg.Scene.Static = true
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
