// Package scene describes the multi-view capture setup: calibrated
// pinhole cameras, their source photographs and per-vertex visibility.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/meshforge/meshtex/pkg/math"
)

// Scene errors.
var (
	ErrNoCameras       = errors.New("scene has no cameras")
	ErrDuplicateCamera = errors.New("duplicate camera id in scene")
	ErrBadCamera       = errors.New("invalid camera parameters")
)

// Camera is a calibrated pinhole view of the scene. Rotation maps world
// directions into the camera frame (+Z forward); Center is the optical
// center in world space.
type Camera struct {
	ID        int       `yaml:"id"`
	ImagePath string    `yaml:"image"`
	Width     int       `yaml:"width"`
	Height    int       `yaml:"height"`
	Focal     float32   `yaml:"focal"`
	Cx        float32   `yaml:"cx"`
	Cy        float32   `yaml:"cy"`
	Rotation  []Vec3Row `yaml:"rotation"`
	Center    Vec3Row   `yaml:"center"`

	rot math.Mat3
}

// Vec3Row is a 3-component YAML flow sequence.
type Vec3Row [3]float32

// Vec returns the row as a Vec3.
func (r Vec3Row) Vec() math.Vec3 {
	return math.Vec3{X: r[0], Y: r[1], Z: r[2]}
}

// Project maps a world point into pixel coordinates. depth is the
// distance along the optical axis; points with depth <= 0 are behind
// the camera and their pixel coordinates are meaningless.
func (c *Camera) Project(p math.Vec3) (u, v, depth float32) {
	local := c.rot.MulVec(p.Sub(c.Center.Vec()))
	if local.Z <= 0 {
		return 0, 0, local.Z
	}
	u = c.Focal*local.X/local.Z + c.Cx
	v = c.Focal*local.Y/local.Z + c.Cy
	return u, v, local.Z
}

// InFrame reports whether pixel coordinates fall inside the image,
// leaving a one-pixel border for bilinear sampling.
func (c *Camera) InFrame(u, v float32) bool {
	return u >= 1 && v >= 1 && u < float32(c.Width)-1 && v < float32(c.Height)-1
}

// ViewDir returns the optical axis direction in world space.
func (c *Camera) ViewDir() math.Vec3 {
	return c.rot.Transpose().MulVec(math.Vec3{Z: 1})
}

// Scene is the full set of calibrated cameras for one capture.
type Scene struct {
	Cameras []Camera `yaml:"cameras"`

	byID map[int]*Camera
}

// Load reads a scene description from a YAML file. Relative image paths
// are resolved against the scene file's directory.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene file: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scene file: %w", err)
	}
	base := filepath.Dir(path)
	for i := range s.Cameras {
		cam := &s.Cameras[i]
		if cam.ImagePath != "" && !filepath.IsAbs(cam.ImagePath) {
			cam.ImagePath = filepath.Join(base, cam.ImagePath)
		}
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return &s, nil
}

// New builds a Scene from preconstructed cameras (used by tests and by
// callers that synthesize a capture in memory).
func New(cameras []Camera) (*Scene, error) {
	s := &Scene{Cameras: cameras}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scene) init() error {
	if len(s.Cameras) == 0 {
		return ErrNoCameras
	}
	s.byID = make(map[int]*Camera, len(s.Cameras))
	for i := range s.Cameras {
		cam := &s.Cameras[i]
		if cam.Width <= 0 || cam.Height <= 0 || cam.Focal <= 0 {
			return fmt.Errorf("%w: camera %d", ErrBadCamera, cam.ID)
		}
		switch len(cam.Rotation) {
		case 0:
			cam.rot = math.Identity3()
		case 3:
			cam.rot = math.Mat3{Rows: [3]math.Vec3{
				cam.Rotation[0].Vec(),
				cam.Rotation[1].Vec(),
				cam.Rotation[2].Vec(),
			}}
		default:
			return fmt.Errorf("%w: camera %d rotation needs 3 rows", ErrBadCamera, cam.ID)
		}
		if _, dup := s.byID[cam.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateCamera, cam.ID)
		}
		s.byID[cam.ID] = cam
	}
	return nil
}

// ByID returns the camera with the given view id, or nil.
func (s *Scene) ByID(id int) *Camera {
	return s.byID[id]
}

// IDs returns all camera view ids in ascending order.
func (s *Scene) IDs() []int {
	ids := make([]int, 0, len(s.Cameras))
	for _, cam := range s.Cameras {
		ids = append(ids, cam.ID)
	}
	sort.Ints(ids)
	return ids
}
