package cmd

import (
	"errors"
	"fmt"
	"math"

	"github.com/achilleasa/bvhbuild/accel"
	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/config"
	"github.com/achilleasa/bvhbuild/scene"
)

var errObjCurves = errors.New("obj files do not contain curves")

// Generate the scene described by the config or load it from an obj file.
func setupScene(cfg config.Config, objFile string) (*scene.Scene, error) {
	if objFile != "" {
		if cfg.Scene.Kind == config.KindCurves {
			return nil, errObjCurves
		}
		return scene.LoadOBJ(objFile)
	}

	sc := scene.New(cfg.Scene.TimeSteps)
	sc.Static = cfg.Scene.Static

	var err error
	switch cfg.Scene.Kind {
	case config.KindTriangles:
		_, err = sc.AddTriangleMesh(scene.RandomTriangles(cfg.Scene.Seed, cfg.Scene.Count, cfg.Scene.TimeSteps))
	case config.KindCurves:
		_, err = sc.AddCurveSet(scene.RandomHair(cfg.Scene.Seed, cfg.Scene.Count, cfg.Scene.StrandSegments, cfg.Scene.TimeSteps))
	case config.KindPatches:
		side := int(math.Ceil(math.Sqrt(float64(cfg.Scene.Count))))
		_, err = sc.AddSubdivMesh(scene.SubdivGrid(side, side, cfg.Scene.Level, cfg.Scene.TimeSteps))
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// Create the builder for the configured geometry kind.
func setupBuilder(cfg config.Config, b *accel.BVH, sc *scene.Scene, opts ...bvh.Option) (accel.Builder, error) {
	switch cfg.Scene.Kind {
	case config.KindTriangles:
		return accel.NewTriangleBuilder(b, sc, cfg.Build, opts...), nil
	case config.KindCurves:
		fallback, err := cfg.Scene.Fallback()
		if err != nil {
			return nil, err
		}
		return accel.NewCurveBuilder(b, sc, cfg.Build, fallback, opts...)
	case config.KindPatches:
		return accel.NewPatchBuilder(b, sc, cfg.Build, cfg.Scene.Cached, sc.IsMotionBlurred(), opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", config.ErrInvalidScene, cfg.Scene.Kind)
}
