// Package config loads build configurations from TOML files.
//
// A configuration has three sections:
//
//	[build]   hierarchy build settings
//	[arena]   node allocator block sizes and memory budget
//	[scene]   parameters of the generated scene
//
// Keys missing from a file keep their default values.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/achilleasa/bvhbuild/bvh"
)

var (
	ErrUnknownKeys  = errors.New("config: unknown keys")
	ErrInvalidScene = errors.New("config: invalid scene parameters")
)

// Geometry kinds that can be generated.
const (
	KindTriangles = "triangles"
	KindCurves    = "curves"
	KindPatches   = "patches"
)

// Parameters of the generated scene.
type Scene struct {
	Kind      string `toml:"kind"`
	Count     int    `toml:"count"`
	Seed      uint64 `toml:"seed"`
	TimeSteps int    `toml:"time_steps"`
	Static    bool   `toml:"static"`

	// Cubic segments per generated hair strand.
	StrandSegments int `toml:"strand_segments"`

	// Either "sah" or "leaf".
	StrandFallback string `toml:"strand_fallback"`

	// Tessellation level of subdivision faces.
	Level float32 `toml:"level"`

	// Refit patch hierarchies when only vertices change.
	Cached bool `toml:"cached"`
}

type Config struct {
	Build bvh.Settings    `toml:"build"`
	Arena bvh.ArenaConfig `toml:"arena"`
	Scene Scene           `toml:"scene"`
}

// Get the default configuration.
func Default() Config {
	return Config{
		Build: bvh.DefaultSettings(),
		Arena: bvh.DefaultArenaConfig(),
		Scene: Scene{
			Kind:           KindTriangles,
			Count:          100000,
			Seed:           1,
			TimeSteps:      1,
			StrandSegments: 4,
			StrandFallback: "sah",
			Level:          1,
			Cached:         true,
		},
	}
}

// Load a configuration file on top of the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(filename, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: could not decode %s: %w", filename, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, fmt.Errorf("%w in %s: %s", ErrUnknownKeys, filename, strings.Join(keys, ", "))
	}

	return cfg, cfg.Validate()
}

// Validate the configuration.
func (c Config) Validate() error {
	if err := c.Build.Validate(); err != nil {
		return err
	}
	return c.Scene.Validate()
}

// Validate the scene parameters.
func (s Scene) Validate() error {
	switch {
	case s.Kind != KindTriangles && s.Kind != KindCurves && s.Kind != KindPatches:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidScene, s.Kind)
	case s.Count < 0:
		return fmt.Errorf("%w: count must be >= 0; got %d", ErrInvalidScene, s.Count)
	case s.TimeSteps < 1:
		return fmt.Errorf("%w: time steps must be >= 1; got %d", ErrInvalidScene, s.TimeSteps)
	case s.StrandSegments < 1:
		return fmt.Errorf("%w: strand segments must be >= 1; got %d", ErrInvalidScene, s.StrandSegments)
	case s.Level < 1:
		return fmt.Errorf("%w: level must be >= 1; got %v", ErrInvalidScene, s.Level)
	}
	_, err := s.Fallback()
	return err
}

// Get the strand split fallback.
func (s Scene) Fallback() (bvh.StrandFallback, error) {
	switch s.StrandFallback {
	case "sah":
		return bvh.StrandFallbackSAH, nil
	case "leaf":
		return bvh.StrandFallbackLeaf, nil
	}
	return 0, fmt.Errorf("%w: unknown strand fallback %q", ErrInvalidScene, s.StrandFallback)
}
