package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "bvhbuild"
	app.Usage = "build bounding volume hierarchies over scene geometry"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringSliceFlag{
			Name:  "log-module",
			Value: &cli.StringSlice{},
			Usage: "set the level of a single component logger, e.g. \"bvh builder=debug\"",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build a BVH and print its statistics",
			Description: `
Generate a scene of triangles, hair curves or subdivision patches (or load
one from a wavefront obj file) and build a BVH over its primitives.

Settings are read from the optional TOML config file; flags that are set
explicitly override the file values.`,
			Flags:  cmd.BuildFlags(),
			Action: cmd.BuildBVH,
		},
		{
			Name:  "refit",
			Usage: "compare an in-place BVH update against a full rebuild",
			Description: `
Build a BVH, move every scene vertex by a random offset and update the
hierarchy. The updated hierarchy is compared against one built from scratch
over the moved vertices.`,
			Flags: append(cmd.BuildFlags(), cli.Float64Flag{
				Name:  "jitter, j",
				Value: 0.05,
				Usage: "maximum vertex offset along each axis",
			}),
			Action: cmd.RefitBVH,
		},
		{
			Name:   "settings",
			Usage:  "print the effective build settings",
			Flags:  cmd.BuildFlags(),
			Action: cmd.ShowSettings,
		},
	}

	app.Run(os.Args)
}
