// Binary codec for per-vertex camera visibility.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Visibility format errors.
var (
	ErrInvalidVisMagic       = errors.New("invalid visibility magic: expected 'MVIS'")
	ErrUnsupportedVisVersion = errors.New("unsupported visibility version")
	ErrTruncatedVisData      = errors.New("truncated visibility data")
)

const visMagic = "MVIS"

// VisBin is a parsed visibility payload: for each vertex, the list of
// camera view ids that observe it. Lists may be empty but never nil
// after a successful parse.
type VisBin struct {
	Version MeshVersion
	Views   [][]int32
}

// ParseVisibility parses a binary visibility payload.
//
// Layout (little-endian):
//
//	magic "MVIS" | version [minor, major] | vertexCount u32 |
//	per vertex: viewCount u32, then viewCount x i32 view ids
func ParseVisibility(data []byte) (*VisBin, error) {
	if len(data) < 10 {
		return nil, ErrTruncatedVisData
	}
	if string(data[0:4]) != visMagic {
		return nil, ErrInvalidVisMagic
	}

	version := MeshVersion{Major: data[5], Minor: data[4]}
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVisVersion, version)
	}

	r := bytes.NewReader(data[6:])

	var vertexCount uint32
	if err := binary.Read(r, binary.LittleEndian, &vertexCount); err != nil {
		return nil, fmt.Errorf("%w: reading vertex count", ErrTruncatedVisData)
	}
	if int64(vertexCount)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d vertices exceed payload", ErrTruncatedVisData, vertexCount)
	}

	vis := &VisBin{
		Version: version,
		Views:   make([][]int32, vertexCount),
	}
	for i := range vis.Views {
		var viewCount uint32
		if err := binary.Read(r, binary.LittleEndian, &viewCount); err != nil {
			return nil, fmt.Errorf("%w: reading view count for vertex %d", ErrTruncatedVisData, i)
		}
		if int64(viewCount)*4 > int64(r.Len()) {
			return nil, fmt.Errorf("%w: vertex %d claims %d views", ErrTruncatedVisData, i, viewCount)
		}
		views := make([]int32, viewCount)
		if err := binary.Read(r, binary.LittleEndian, &views); err != nil {
			return nil, fmt.Errorf("%w: reading views for vertex %d", ErrTruncatedVisData, i)
		}
		vis.Views[i] = views
	}

	return vis, nil
}

// ParseVisibilityFile reads and parses a binary visibility file from disk.
func ParseVisibilityFile(path string) (*VisBin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading visibility file: %w", err)
	}
	return ParseVisibility(data)
}

// WriteVisibility serializes a binary visibility payload.
func WriteVisibility(w io.Writer, vis *VisBin) error {
	if _, err := io.WriteString(w, visMagic); err != nil {
		return err
	}
	version := vis.Version
	if version.Major == 0 {
		version = MeshVersion{Major: 1, Minor: 0}
	}
	if _, err := w.Write([]byte{version.Minor, version.Major}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(vis.Views))); err != nil {
		return err
	}
	for _, views := range vis.Views {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(views))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, views); err != nil {
			return err
		}
	}
	return nil
}

// WriteVisibilityFile writes a binary visibility file to disk.
func WriteVisibilityFile(path string, vis *VisBin) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating visibility file: %w", err)
	}
	defer f.Close()
	if err := WriteVisibility(f, vis); err != nil {
		return fmt.Errorf("writing visibility file: %w", err)
	}
	return nil
}
