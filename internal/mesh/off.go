package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tokenizer yields whitespace-separated fields from r, one at a time.
// Lines are read eagerly; anything after a '#' is dropped as a comment.
type tokenizer struct {
	scanner *bufio.Scanner
	fields  []string
	pos     int
}

func newTokenizer(r io.Reader) *tokenizer {
	s := bufio.NewScanner(r)
	// Faces with many vertices can produce long lines.
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &tokenizer{scanner: s}
}

// next returns the next field, or io.EOF when the input is exhausted.
func (t *tokenizer) next() (string, error) {
	for t.pos >= len(t.fields) {
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		line := t.scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		t.fields = strings.Fields(line)
		t.pos = 0
	}
	f := t.fields[t.pos]
	t.pos++
	return f, nil
}

func (t *tokenizer) nextInt() (int, error) {
	f, err := t.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(f)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", f)
	}
	return n, nil
}

func (t *tokenizer) nextFloat() (float64, error) {
	f, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", f)
	}
	return v, nil
}

// ParseOFF parses a mesh in the Object File Format used by ModelNet.
//
// The canonical layout is a header line "OFF", a counts line
// "numVertices numFaces numEdges", numVertices coordinate lines, and
// numFaces face lines of the form "k i1 ... ik". Some ModelNet files run the
// header and counts together on one line ("OFF492 312 0"); that variant is
// accepted too. Edge counts are ignored.
func ParseOFF(r io.Reader) (*Mesh, error) {
	tok := newTokenizer(r)

	header, err := tok.next()
	if err != nil {
		return nil, fmt.Errorf("missing OFF header")
	}

	var numVerts int
	switch {
	case header == "OFF":
		numVerts, err = tok.nextInt()
		if err != nil {
			return nil, fmt.Errorf("vertex count: %w", err)
		}
	case strings.HasPrefix(header, "OFF"):
		// Header glued to the vertex count, e.g. "OFF492".
		numVerts, err = strconv.Atoi(header[len("OFF"):])
		if err != nil {
			return nil, fmt.Errorf("malformed OFF header %q", header)
		}
	default:
		return nil, fmt.Errorf("not an OFF file: header %q", header)
	}

	numFaces, err := tok.nextInt()
	if err != nil {
		return nil, fmt.Errorf("face count: %w", err)
	}
	if _, err := tok.nextInt(); err != nil {
		return nil, fmt.Errorf("edge count: %w", err)
	}
	if numVerts < 0 || numFaces < 0 {
		return nil, fmt.Errorf("negative counts: %d vertices, %d faces", numVerts, numFaces)
	}

	m := &Mesh{Vertices: make([]Vec3, numVerts)}
	for i := 0; i < numVerts; i++ {
		var v Vec3
		if v.X, err = tok.nextFloat(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if v.Y, err = tok.nextFloat(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		if v.Z, err = tok.nextFloat(); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		m.Vertices[i] = v
	}

	face := make([]int, 0, 8)
	for i := 0; i < numFaces; i++ {
		k, err := tok.nextInt()
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		if k < 3 {
			return nil, fmt.Errorf("face %d: degenerate face with %d vertices", i, k)
		}
		face = face[:0]
		for j := 0; j < k; j++ {
			idx, err := tok.nextInt()
			if err != nil {
				return nil, fmt.Errorf("face %d: %w", i, err)
			}
			if idx < 0 || idx >= numVerts {
				return nil, fmt.Errorf("face %d: vertex index %d out of range [0,%d)", i, idx, numVerts)
			}
			face = append(face, idx)
		}
		m.addFace(face)
	}

	return m, nil
}

// WriteOFF writes m to w in canonical OFF layout.
func WriteOFF(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "OFF")
	fmt.Fprintf(bw, "%d %d 0\n", len(m.Vertices), m.TriangleCount())
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "%g %g %g\n", v.X, v.Y, v.Z)
	}
	for i := 0; i < m.TriangleCount(); i++ {
		fmt.Fprintf(bw, "3 %d %d %d\n", m.Tris[3*i], m.Tris[3*i+1], m.Tris[3*i+2])
	}
	return bw.Flush()
}
