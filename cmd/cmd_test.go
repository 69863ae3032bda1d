package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/config"
	"github.com/achilleasa/bvhbuild/log"
)

func init() {
	log.SetSink(io.Discard)
}

// Run loadConfig through a cli app configured with the build flags.
func parseConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var (
		cfg    config.Config
		cfgErr error
	)
	app := cli.NewApp()
	app.Flags = BuildFlags()
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = loadConfig(ctx)
		return nil
	}
	if err := app.Run(append([]string{"bvhbuild"}, args...)); err != nil {
		t.Fatal(err)
	}
	return cfg, cfgErr
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := parseConfig(t, "--kind", "curves", "-n", "42", "--time-steps", "3", "--quantize", "--static", "--no-cache", "--max-bytes", "4096")
	if err != nil {
		t.Fatal(err)
	}

	exp := config.Default()
	exp.Scene.Kind = config.KindCurves
	exp.Scene.Count = 42
	exp.Scene.TimeSteps = 3
	exp.Scene.Static = true
	exp.Scene.Cached = false
	exp.Build.Quantize = true
	exp.Arena.MaxBytes = 4096
	if cfg != exp {
		t.Fatalf("expected config %+v; got %+v", exp, cfg)
	}
}

func TestLoadConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.toml")
	content := "[build]\nmax_leaf_size = 4\n\n[scene]\nkind = \"patches\"\ncount = 7\nlevel = 16.0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig(t, "--config", path, "--count", "9")
	if err != nil {
		t.Fatal(err)
	}

	// Unset flags must not clobber file values with flag defaults.
	if cfg.Build.MaxLeafSize != 4 || cfg.Scene.Kind != config.KindPatches || cfg.Scene.Level != 16 {
		t.Fatalf("expected file values to be preserved; got %+v", cfg)
	}
	if cfg.Scene.Count != 9 {
		t.Fatalf("expected count flag to override file value; got %d", cfg.Scene.Count)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	type spec struct {
		args   []string
		expErr error
	}
	specs := []spec{
		{[]string{"--kind", "spheres"}, config.ErrInvalidScene},
		{[]string{"--strand-fallback", "median"}, config.ErrInvalidScene},
		{[]string{"--time-steps", "0"}, config.ErrInvalidScene},
		{[]string{"--branching-factor", "1"}, bvh.ErrInvalidSettings},
		{[]string{"--max-leaf-size", "0"}, bvh.ErrInvalidSettings},
		{[]string{"--config", "missing.toml"}, os.ErrNotExist},
	}

	for index, sp := range specs {
		if _, err := parseConfig(t, sp.args...); !errors.Is(err, sp.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, sp.expErr, err)
		}
	}
}

func TestSetupScene(t *testing.T) {
	type spec struct {
		kind     string
		count    int
		expPrims int
	}
	specs := []spec{
		{config.KindTriangles, 100, 100},
		{config.KindCurves, 10, 40},
		// A 4x4 grid of faces at level 1.
		{config.KindPatches, 10, 16},
	}

	for index, sp := range specs {
		cfg := config.Default()
		cfg.Scene.Kind = sp.kind
		cfg.Scene.Count = sp.count
		sc, err := setupScene(cfg, "")
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		var got int
		switch sp.kind {
		case config.KindTriangles:
			got = sc.TriangleMeshes[0].NumPrimitives()
		case config.KindCurves:
			got = sc.CurveSets[0].NumPrimitives()
		case config.KindPatches:
			m := sc.SubdivMeshes[0]
			m.UpdateTopology()
			for f := 0; f < m.NumFaces(); f++ {
				got += m.SubPatchCount(f)
			}
		}
		if got != sp.expPrims {
			t.Fatalf("[spec %d] expected %d primitives; got %d", index, sp.expPrims, got)
		}
	}

	cfg := config.Default()
	cfg.Scene.Kind = config.KindCurves
	if _, err := setupScene(cfg, "hair.obj"); !errors.Is(err, errObjCurves) {
		t.Fatalf("expected errObjCurves; got %v", err)
	}
}

func TestProgressLogger(t *testing.T) {
	// Exercise the step bookkeeping with deltas that skip several steps.
	monitor := progressLogger(10)
	for _, delta := range []int{3, 4, 25, 1, 9, 0} {
		monitor(delta)
	}
}

func TestCommands(t *testing.T) {
	app := cli.NewApp()
	app.Commands = []cli.Command{
		{Name: "build", Flags: BuildFlags(), Action: BuildBVH},
		{Name: "refit", Flags: append(BuildFlags(), cli.Float64Flag{Name: "jitter", Value: 0.05}), Action: RefitBVH},
		{Name: "settings", Flags: BuildFlags(), Action: ShowSettings},
	}

	specs := [][]string{
		{"build", "--count", "500"},
		{"build", "--kind", "curves", "--count", "50", "--time-steps", "2"},
		{"build", "--kind", "patches", "--count", "16", "--static", "--quantize"},
		{"refit", "--count", "300"},
		{"refit", "--kind", "patches", "--count", "25", "--level", "9"},
		{"settings", "--max-bytes", "1048576"},
	}
	for index, args := range specs {
		if err := app.Run(append([]string{"bvhbuild"}, args...)); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
	}
}

func TestParseModuleLevel(t *testing.T) {
	type spec struct {
		in        string
		expModule string
		expLevel  log.Level
		expErr    bool
	}
	specs := []spec{
		{"bvh builder=debug", "bvh builder", log.Debug, false},
		{" accel patches = warning ", "accel patches", log.Warning, false},
		{"cli", "", log.Notice, true},
		{"=debug", "", log.Notice, true},
		{"scene=loud", "", log.Notice, true},
	}

	for index, sp := range specs {
		module, level, err := parseModuleLevel(sp.in)
		if sp.expErr {
			if err == nil {
				t.Fatalf("[spec %d] expected an error", index)
			}
			continue
		}
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if module != sp.expModule || level != sp.expLevel {
			t.Fatalf("[spec %d] expected %q at level %d; got %q at level %d", index, sp.expModule, sp.expLevel, module, level)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetModuleLevel(log.Notice, "scene")

	app := cli.NewApp()
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v"},
		cli.BoolFlag{Name: "vv"},
		cli.StringSliceFlag{Name: "log-module", Value: &cli.StringSlice{}},
	}
	app.Commands = []cli.Command{
		{Name: "noop", Action: func(ctx *cli.Context) error { return setupLogging(ctx) }},
	}

	if err := app.Run([]string{"bvhbuild", "--log-module", "scene=debug", "noop"}); err != nil {
		t.Fatal(err)
	}
	if err := app.Run([]string{"bvhbuild", "--log-module", "scene=loud", "noop"}); !errors.Is(err, log.ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel; got %v", err)
	}
}
