// Binary mesh codec for reconstructed surface meshes.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Mesh format errors.
var (
	ErrInvalidMeshMagic       = errors.New("invalid mesh magic: expected 'MSHB'")
	ErrUnsupportedMeshVersion = errors.New("unsupported mesh version")
	ErrTruncatedMeshData      = errors.New("truncated mesh data")
	ErrInvalidMeshCounts      = errors.New("invalid mesh vertex/triangle count")
)

const meshMagic = "MSHB"

// MeshVersion represents the binary mesh file version.
type MeshVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v MeshVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MeshBin is a parsed binary mesh payload: flat vertex and triangle arrays.
type MeshBin struct {
	Version   MeshVersion
	Vertices  [][3]float32
	Triangles [][3]uint32
}

// ParseMesh parses a binary mesh payload.
//
// Layout (little-endian):
//
//	magic "MSHB" | version [minor, major] | vertexCount u32 | triCount u32 |
//	vertices (3 x f32 each) | triangles (3 x u32 each)
func ParseMesh(data []byte) (*MeshBin, error) {
	if len(data) < 14 {
		return nil, ErrTruncatedMeshData
	}
	if string(data[0:4]) != meshMagic {
		return nil, ErrInvalidMeshMagic
	}

	// Version is stored as [minor, major]
	version := MeshVersion{Major: data[5], Minor: data[4]}
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMeshVersion, version)
	}

	r := bytes.NewReader(data[6:])

	var vertexCount, triCount uint32
	if err := binary.Read(r, binary.LittleEndian, &vertexCount); err != nil {
		return nil, fmt.Errorf("%w: reading vertex count", ErrTruncatedMeshData)
	}
	if err := binary.Read(r, binary.LittleEndian, &triCount); err != nil {
		return nil, fmt.Errorf("%w: reading triangle count", ErrTruncatedMeshData)
	}

	// Sanity check against payload size before allocating
	need := int64(vertexCount)*12 + int64(triCount)*12
	if need > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d vertices, %d triangles exceed payload", ErrInvalidMeshCounts, vertexCount, triCount)
	}

	mesh := &MeshBin{
		Version:   version,
		Vertices:  make([][3]float32, vertexCount),
		Triangles: make([][3]uint32, triCount),
	}
	if err := binary.Read(r, binary.LittleEndian, &mesh.Vertices); err != nil {
		return nil, fmt.Errorf("%w: reading vertices", ErrTruncatedMeshData)
	}
	if err := binary.Read(r, binary.LittleEndian, &mesh.Triangles); err != nil {
		return nil, fmt.Errorf("%w: reading triangles", ErrTruncatedMeshData)
	}

	for i, tri := range mesh.Triangles {
		for _, vid := range tri {
			if vid >= vertexCount {
				return nil, fmt.Errorf("%w: triangle %d references vertex %d of %d", ErrInvalidMeshCounts, i, vid, vertexCount)
			}
		}
	}

	return mesh, nil
}

// ParseMeshFile reads and parses a binary mesh file from disk.
func ParseMeshFile(path string) (*MeshBin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh file: %w", err)
	}
	return ParseMesh(data)
}

// WriteMesh serializes a binary mesh payload.
func WriteMesh(w io.Writer, mesh *MeshBin) error {
	if _, err := io.WriteString(w, meshMagic); err != nil {
		return err
	}
	version := mesh.Version
	if version.Major == 0 {
		version = MeshVersion{Major: 1, Minor: 0}
	}
	if _, err := w.Write([]byte{version.Minor, version.Major}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(mesh.Vertices))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(mesh.Triangles))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, mesh.Vertices); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, mesh.Triangles)
}

// WriteMeshFile writes a binary mesh file to disk.
func WriteMeshFile(path string, mesh *MeshBin) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating mesh file: %w", err)
	}
	defer f.Close()
	if err := WriteMesh(f, mesh); err != nil {
		return fmt.Errorf("writing mesh file: %w", err)
	}
	return nil
}
