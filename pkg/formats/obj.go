// Wavefront OBJ/MTL codec. OBJ is the material-agnostic interchange
// format for externally produced meshes and the output format for the
// textured bundle.
package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// OBJ format errors.
var (
	ErrMalformedOBJFace = errors.New("malformed OBJ face element")
	ErrMalformedOBJLine = errors.New("malformed OBJ line")
)

// OBJFace is one triangle of an OBJ file. Index values are zero-based;
// texture and normal indices are -1 when absent.
type OBJFace struct {
	Material int
	Pos      [3]int32
	Tex      [3]int32
	Norm     [3]int32
}

// OBJ is a parsed Wavefront OBJ file. Polygon faces are fan-triangulated
// on load.
type OBJ struct {
	MTLLib    string
	Positions [][3]float32
	TexCoords [][2]float32
	Normals   [][3]float32
	Materials []string
	Faces     []OBJFace
}

// ObjMaterial is one material entry of an MTL file, binding a material
// name to a diffuse texture image.
type ObjMaterial struct {
	Name  string
	MapKd string
}

// ParseOBJ parses OBJ text. When flipWinding is set, face winding is
// reversed and normals are negated (for meshes authored with the
// opposite orientation convention).
func ParseOBJ(r io.Reader, flipWinding bool) (*OBJ, error) {
	obj := &OBJ{}
	matIndex := map[string]int{}
	currentMat := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			v, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOBJLine, lineNo, err)
			}
			obj.Positions = append(obj.Positions, v)
		case "vt":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: line %d: vt needs 2 values", ErrMalformedOBJLine, lineNo)
			}
			u, err1 := strconv.ParseFloat(fields[1], 32)
			vv, err2 := strconv.ParseFloat(fields[2], 32)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: line %d", ErrMalformedOBJLine, lineNo)
			}
			obj.TexCoords = append(obj.TexCoords, [2]float32{float32(u), float32(vv)})
		case "vn":
			n, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOBJLine, lineNo, err)
			}
			if flipWinding {
				n = [3]float32{-n[0], -n[1], -n[2]}
			}
			obj.Normals = append(obj.Normals, n)
		case "f":
			if err := obj.appendFace(fields[1:], currentMat, flipWinding); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOBJFace, lineNo, err)
			}
		case "usemtl":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: line %d: usemtl needs a name", ErrMalformedOBJLine, lineNo)
			}
			name := fields[1]
			idx, ok := matIndex[name]
			if !ok {
				idx = len(obj.Materials)
				matIndex[name] = idx
				obj.Materials = append(obj.Materials, name)
			}
			currentMat = idx
		case "mtllib":
			if len(fields) >= 2 {
				obj.MTLLib = fields[1]
			}
		default:
			// o, g, s and anything else carry no geometry; skip
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}
	return obj, nil
}

// ParseOBJFile reads and parses an OBJ file from disk.
func ParseOBJFile(path string, flipWinding bool) (*OBJ, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening OBJ file: %w", err)
	}
	defer f.Close()
	return ParseOBJ(f, flipWinding)
}

func parseFloats3(fields []string) ([3]float32, error) {
	var out [3]float32
	if len(fields) < 3 {
		return out, fmt.Errorf("need 3 values, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return out, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// appendFace fan-triangulates one OBJ face element list.
func (obj *OBJ) appendFace(elems []string, mat int, flipWinding bool) error {
	if len(elems) < 3 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(elems))
	}
	type corner struct{ pos, tex, norm int32 }
	corners := make([]corner, len(elems))
	for i, elem := range elems {
		parts := strings.Split(elem, "/")
		c := corner{tex: -1, norm: -1}
		pos, err := resolveOBJIndex(parts[0], len(obj.Positions))
		if err != nil {
			return err
		}
		c.pos = pos
		if len(parts) > 1 && parts[1] != "" {
			if c.tex, err = resolveOBJIndex(parts[1], len(obj.TexCoords)); err != nil {
				return err
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if c.norm, err = resolveOBJIndex(parts[2], len(obj.Normals)); err != nil {
				return err
			}
		}
		corners[i] = c
	}
	for i := 1; i < len(corners)-1; i++ {
		tri := [3]corner{corners[0], corners[i], corners[i+1]}
		if flipWinding {
			tri[1], tri[2] = tri[2], tri[1]
		}
		obj.Faces = append(obj.Faces, OBJFace{
			Material: mat,
			Pos:      [3]int32{tri[0].pos, tri[1].pos, tri[2].pos},
			Tex:      [3]int32{tri[0].tex, tri[1].tex, tri[2].tex},
			Norm:     [3]int32{tri[0].norm, tri[1].norm, tri[2].norm},
		})
	}
	return nil
}

// resolveOBJIndex converts a 1-based (possibly negative, relative) OBJ
// index into a zero-based one.
func resolveOBJIndex(s string, count int) (int32, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = count + n
	} else {
		n--
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("index %s out of range (have %d)", s, count)
	}
	return int32(n), nil
}

// WriteOBJ serializes an OBJ structure as text. Faces are grouped by
// material in material order.
func WriteOBJ(w io.Writer, obj *OBJ) error {
	bw := bufio.NewWriter(w)
	if obj.MTLLib != "" {
		fmt.Fprintf(bw, "mtllib %s\n", obj.MTLLib)
	}
	for _, p := range obj.Positions {
		fmt.Fprintf(bw, "v %g %g %g\n", p[0], p[1], p[2])
	}
	for _, t := range obj.TexCoords {
		fmt.Fprintf(bw, "vt %g %g\n", t[0], t[1])
	}
	for _, n := range obj.Normals {
		fmt.Fprintf(bw, "vn %g %g %g\n", n[0], n[1], n[2])
	}

	writeFace := func(f OBJFace) {
		bw.WriteString("f")
		for i := 0; i < 3; i++ {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(int(f.Pos[i]) + 1))
			hasTex := f.Tex[i] >= 0
			hasNorm := f.Norm[i] >= 0
			if hasTex || hasNorm {
				bw.WriteByte('/')
				if hasTex {
					bw.WriteString(strconv.Itoa(int(f.Tex[i]) + 1))
				}
				if hasNorm {
					bw.WriteByte('/')
					bw.WriteString(strconv.Itoa(int(f.Norm[i]) + 1))
				}
			}
		}
		bw.WriteByte('\n')
	}

	if len(obj.Materials) == 0 {
		for _, f := range obj.Faces {
			writeFace(f)
		}
	} else {
		for mi, name := range obj.Materials {
			fmt.Fprintf(bw, "usemtl %s\n", name)
			for _, f := range obj.Faces {
				if f.Material == mi {
					writeFace(f)
				}
			}
		}
	}
	return bw.Flush()
}

// WriteOBJFile writes an OBJ file to disk.
func WriteOBJFile(path string, obj *OBJ) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating OBJ file: %w", err)
	}
	defer f.Close()
	if err := WriteOBJ(f, obj); err != nil {
		return fmt.Errorf("writing OBJ file: %w", err)
	}
	return nil
}

// WriteMTL serializes an MTL material library. Each material maps an
// atlas to its texture image via map_Kd.
func WriteMTL(w io.Writer, materials []ObjMaterial) error {
	bw := bufio.NewWriter(w)
	for _, m := range materials {
		fmt.Fprintf(bw, "newmtl %s\n", m.Name)
		bw.WriteString("Ka 1.0 1.0 1.0\n")
		bw.WriteString("Kd 1.0 1.0 1.0\n")
		bw.WriteString("Ks 0.0 0.0 0.0\n")
		bw.WriteString("d 1.0\n")
		bw.WriteString("illum 1\n")
		if m.MapKd != "" {
			fmt.Fprintf(bw, "map_Kd %s\n", m.MapKd)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteMTLFile writes an MTL file to disk.
func WriteMTLFile(path string, materials []ObjMaterial) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating MTL file: %w", err)
	}
	defer f.Close()
	if err := WriteMTL(f, materials); err != nil {
		return fmt.Errorf("writing MTL file: %w", err)
	}
	return nil
}

// ParseMTL parses an MTL material library, keeping the material name
// and diffuse texture mapping.
func ParseMTL(r io.Reader) ([]ObjMaterial, error) {
	var materials []ObjMaterial
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "newmtl":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: newmtl needs a name", ErrMalformedOBJLine)
			}
			materials = append(materials, ObjMaterial{Name: fields[1]})
		case "map_Kd":
			if len(materials) == 0 || len(fields) < 2 {
				continue
			}
			materials[len(materials)-1].MapKd = fields[len(fields)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading MTL: %w", err)
	}
	return materials, nil
}

// ParseMTLFile reads and parses an MTL file from disk.
func ParseMTLFile(path string) ([]ObjMaterial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening MTL file: %w", err)
	}
	defer f.Close()
	return ParseMTL(f)
}
