package scene

import (
	"errors"
	"fmt"
)

var (
	ErrTimeStepMismatch = errors.New("scene: geometry time steps do not match the scene")
	ErrNoSuchGeometry   = errors.New("scene: no such geometry")
	ErrUnsupportedFile  = errors.New("scene: unsupported file format")
)

// GeometryType identifies one of the geometry collections of a scene.
type GeometryType uint8

const (
	Triangles GeometryType = iota
	Curves
	Subdiv
	numGeometryTypes
)

func (t GeometryType) String() string {
	switch t {
	case Triangles:
		return "triangles"
	case Curves:
		return "curves"
	case Subdiv:
		return "subdiv"
	}
	return "unknown"
}

// Geometry holds the state shared by all geometry types.
type Geometry struct {
	ID      uint32
	enabled bool
}

func (g *Geometry) Enabled() bool {
	return g.enabled
}

// A Scene groups the geometry that acceleration structures are built for.
// Every geometry carries NumTimeSteps vertex buffers; scenes with more than
// one time step describe motion over the unit shutter interval.
type Scene struct {
	NumTimeSteps int

	// Static scenes are built once; builders release their temporary
	// storage after building them.
	Static bool

	TriangleMeshes []*TriangleMesh
	CurveSets      []*CurveSet
	SubdivMeshes   []*SubdivMesh

	enableDisableEvents [numGeometryTypes]int
}

// Create an empty scene.
func New(timeSteps int) *Scene {
	return &Scene{NumTimeSteps: max(timeSteps, 1)}
}

// Add a triangle mesh and return its ID.
func (s *Scene) AddTriangleMesh(m *TriangleMesh) (uint32, error) {
	if len(m.Vertices) != s.NumTimeSteps {
		return 0, fmt.Errorf("%w: mesh has %d; scene has %d", ErrTimeStepMismatch, len(m.Vertices), s.NumTimeSteps)
	}
	m.ID = uint32(len(s.TriangleMeshes))
	m.enabled = true
	s.TriangleMeshes = append(s.TriangleMeshes, m)
	return m.ID, nil
}

// Add a curve set and return its ID.
func (s *Scene) AddCurveSet(c *CurveSet) (uint32, error) {
	if len(c.Points) != s.NumTimeSteps {
		return 0, fmt.Errorf("%w: curve set has %d; scene has %d", ErrTimeStepMismatch, len(c.Points), s.NumTimeSteps)
	}
	c.ID = uint32(len(s.CurveSets))
	c.enabled = true
	s.CurveSets = append(s.CurveSets, c)
	return c.ID, nil
}

// Add a subdivision mesh and return its ID.
func (s *Scene) AddSubdivMesh(m *SubdivMesh) (uint32, error) {
	if len(m.Vertices) != s.NumTimeSteps {
		return 0, fmt.Errorf("%w: mesh has %d; scene has %d", ErrTimeStepMismatch, len(m.Vertices), s.NumTimeSteps)
	}
	m.ID = uint32(len(s.SubdivMeshes))
	m.enabled = true
	s.SubdivMeshes = append(s.SubdivMeshes, m)
	return m.ID, nil
}

// Enable or disable a geometry. Every state change is counted so builders
// can detect that the set of contributing geometry changed.
func (s *Scene) SetEnabled(typ GeometryType, id uint32, enabled bool) error {
	g, err := s.geometry(typ, id)
	if err != nil {
		return err
	}
	if g.enabled != enabled {
		g.enabled = enabled
		s.enableDisableEvents[typ]++
	}
	return nil
}

// Number of enable/disable state changes for the given geometry type.
func (s *Scene) EnableDisableEvents(typ GeometryType) int {
	return s.enableDisableEvents[typ]
}

// Count the enabled geometries of a type.
func (s *Scene) NumEnabled(typ GeometryType) int {
	var n int
	switch typ {
	case Triangles:
		for _, m := range s.TriangleMeshes {
			if m.enabled {
				n++
			}
		}
	case Curves:
		for _, c := range s.CurveSets {
			if c.enabled {
				n++
			}
		}
	case Subdiv:
		for _, m := range s.SubdivMeshes {
			if m.enabled {
				n++
			}
		}
	}
	return n
}

// Check whether the scene has motion.
func (s *Scene) IsMotionBlurred() bool {
	return s.NumTimeSteps > 1
}

func (s *Scene) geometry(typ GeometryType, id uint32) (*Geometry, error) {
	switch {
	case typ == Triangles && int(id) < len(s.TriangleMeshes):
		return &s.TriangleMeshes[id].Geometry, nil
	case typ == Curves && int(id) < len(s.CurveSets):
		return &s.CurveSets[id].Geometry, nil
	case typ == Subdiv && int(id) < len(s.SubdivMeshes):
		return &s.SubdivMeshes[id].Geometry, nil
	}
	return nil, fmt.Errorf("%w: %s geometry %d", ErrNoSuchGeometry, typ, id)
}
