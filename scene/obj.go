package scene

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/types"
)

type objReader struct {
	logger log.Logger

	vertexList   []types.Vec3
	faceVertices []uint32
	faceIndices  []uint32
	holes        []uint32

	// An error stack that provides additional error information when
	// files include other files.
	errStack []string
}

// Load the polygon geometry of a wavefront obj file into a single time step
// scene. Triangles are added as a triangle mesh; every face, including
// quads and larger polygons, is also added to a subdivision mesh. Faces
// listed by "hole" directives are marked as subdivision holes and "call"
// directives include other obj files.
func LoadOBJ(filename string) (*Scene, error) {
	if !strings.HasSuffix(filename, ".obj") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}

	r := &objReader{logger: log.New("scene")}
	r.logger.Infof("parsing scene from %s", filename)
	start := time.Now()
	if err := r.parse(filename); err != nil {
		return nil, err
	}
	sc, err := r.scene()
	if err != nil {
		return nil, err
	}
	r.logger.Infof("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return sc, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *objReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n"))
	} else {
		errMsg = fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n"))
	}
	return errors.New(strings.Trim(errMsg, "\n"))
}

// Push a frame to the error stack.
func (r *objReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *objReader) popFrame() {
	r.errStack = r.errStack[1:]
}

func (r *objReader) parse(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return r.emitError("", 0, "could not open %s", filename)
	}
	defer f.Close()

	// Relative includes are resolved against the folder of the current file.
	dir := filepath.Dir(filename)

	var lineNum int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call":
			if len(lineTokens) != 2 {
				return r.emitError(filename, lineNum, "unsupported syntax for 'call'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [call]", filename, lineNum))
			extFile := lineTokens[1]
			if !filepath.IsAbs(extFile) {
				extFile = filepath.Join(dir, extFile)
			}
			if err := r.parse(extFile); err != nil {
				return err
			}
			r.popFrame()
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(filename, lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "f":
			if err := r.parseFace(lineTokens); err != nil {
				return r.emitError(filename, lineNum, "%s", err.Error())
			}
		case "hole":
			if len(lineTokens) != 2 {
				return r.emitError(filename, lineNum, "unsupported syntax for 'hole'; expected 1 argument; got %d", len(lineTokens)-1)
			}
			face, err := selectFaceCoordIndex(lineTokens[1], len(r.faceVertices))
			if err != nil {
				return r.emitError(filename, lineNum, "invalid hole face index: %s", err.Error())
			}
			r.holes = append(r.holes, uint32(face))
		}
	}

	return scanner.Err()
}

// Parse a face definition. Each face argument has one of the forms v, v/vt,
// v//vn or v/vt/vn; only the vertex index is used. Indices start from 1 and
// may be negative to indicate an offset off the end of the vertex list.
func (r *objReader) parseFace(lineTokens []string) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf("unsupported syntax for 'f'; expected at least 3 arguments; got %d", len(lineTokens)-1)
	}

	expIndices := 0
	for arg, token := range lineTokens[1:] {
		vTokens := strings.Split(token, "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}
		index, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList))
		if err != nil {
			return fmt.Errorf("could not select vertex for face argument %d: %s", arg, err.Error())
		}
		r.faceIndices = append(r.faceIndices, uint32(index))
	}
	r.faceVertices = append(r.faceVertices, uint32(len(lineTokens)-1))
	return nil
}

// Package the parsed geometry into a scene.
func (r *objReader) scene() (*Scene, error) {
	sc := New(1)
	if len(r.faceVertices) == 0 {
		return sc, nil
	}

	var triangles []Triangle
	var offset uint32
	for face, n := range r.faceVertices {
		if n == 3 && !r.isHole(uint32(face)) {
			idx := r.faceIndices[offset : offset+3]
			triangles = append(triangles, Triangle{idx[0], idx[1], idx[2]})
		}
		offset += n
	}

	if len(triangles) != 0 {
		if _, err := sc.AddTriangleMesh(NewTriangleMesh([][]types.Vec3{r.vertexList}, triangles)); err != nil {
			return nil, err
		}
	}

	mesh := NewSubdivMesh([][]types.Vec3{r.vertexList}, r.faceVertices, r.faceIndices)
	if len(r.holes) != 0 {
		mesh.Holes = NewBuffer(r.holes)
	}
	if _, err := sc.AddSubdivMesh(mesh); err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *objReader) isHole(face uint32) bool {
	for _, h := range r.holes {
		if h == face {
			return true
		}
	}
	return false
}

// Convert a 1-based or negative relative index into a list offset.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a 3 component vector.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf("unsupported syntax for '%s'; expected 3 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
