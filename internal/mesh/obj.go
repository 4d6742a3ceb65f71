package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseOBJ parses a minimal Wavefront OBJ subset: "v" vertex lines and "f"
// face lines. Texture/normal references in face fields ("i/j/k") are
// discarded. Negative (relative) indices are resolved against the vertices
// seen so far. Everything else in the file is ignored.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	face := make([]int, 0, 8)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNo)
			}
			var v Vec3
			var err error
			if v.X, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if v.Y, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if v.Z, err = strconv.ParseFloat(fields[3], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			m.Vertices = append(m.Vertices, v)

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			face = face[:0]
			for _, fld := range fields[1:] {
				// Keep only the vertex reference from "v/vt/vn".
				if i := strings.IndexByte(fld, '/'); i >= 0 {
					fld = fld[:i]
				}
				idx, err := strconv.Atoi(fld)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad face index %q", lineNo, fld)
				}
				switch {
				case idx > 0:
					idx-- // OBJ indices are 1-based
				case idx < 0:
					idx = len(m.Vertices) + idx
				default:
					return nil, fmt.Errorf("line %d: face index 0 is invalid", lineNo)
				}
				if idx < 0 || idx >= len(m.Vertices) {
					return nil, fmt.Errorf("line %d: face index out of range", lineNo)
				}
				face = append(face, idx)
			}
			m.addFace(face)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.Vertices) == 0 {
		return nil, fmt.Errorf("no vertices found")
	}
	return m, nil
}
