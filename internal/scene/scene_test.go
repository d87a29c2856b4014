package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meshforge/meshtex/pkg/formats"
	"github.com/meshforge/meshtex/pkg/math"
)

func testCamera(id int) Camera {
	return Camera{
		ID:     id,
		Width:  1000,
		Height: 800,
		Focal:  500,
		Cx:     500,
		Cy:     400,
		Center: Vec3Row{0, 0, -5},
	}
}

func TestCameraProject(t *testing.T) {
	s, err := New([]Camera{testCamera(0)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cam := s.ByID(0)

	// World origin is 5 units in front of the camera, on the axis
	u, v, depth := cam.Project(math.Vec3{})
	if depth != 5 {
		t.Errorf("depth = %v, want 5", depth)
	}
	if u != 500 || v != 400 {
		t.Errorf("projection = (%v, %v), want principal point (500, 400)", u, v)
	}

	// A point one unit right projects focal/depth pixels off center
	u, _, _ = cam.Project(math.Vec3{X: 1})
	if u != 600 {
		t.Errorf("offset projection u = %v, want 600", u)
	}

	// Behind the camera
	_, _, depth = cam.Project(math.Vec3{Z: -10})
	if depth > 0 {
		t.Errorf("behind-camera depth = %v, want <= 0", depth)
	}
}

func TestCameraInFrame(t *testing.T) {
	s, _ := New([]Camera{testCamera(0)})
	cam := s.ByID(0)
	if !cam.InFrame(500, 400) {
		t.Error("principal point should be in frame")
	}
	if cam.InFrame(0.5, 400) || cam.InFrame(500, 799.5) {
		t.Error("border pixels should be out of frame")
	}
}

func TestCameraViewDir(t *testing.T) {
	s, _ := New([]Camera{testCamera(0)})
	if got := s.ByID(0).ViewDir(); got != (math.Vec3{Z: 1}) {
		t.Errorf("ViewDir = %v, want +Z", got)
	}
}

func TestSceneValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty scene")
	}

	bad := testCamera(0)
	bad.Focal = 0
	if _, err := New([]Camera{bad}); err == nil {
		t.Error("expected error for zero focal length")
	}

	if _, err := New([]Camera{testCamera(1), testCamera(1)}); err == nil {
		t.Error("expected error for duplicate camera id")
	}
}

func TestLoadSceneYAML(t *testing.T) {
	dir := t.TempDir()
	src := `cameras:
  - id: 0
    image: photos/cam0.png
    width: 640
    height: 480
    focal: 320
    cx: 320
    cy: 240
    rotation:
      - [1, 0, 0]
      - [0, 1, 0]
      - [0, 0, 1]
    center: [0, 0, -2]
  - id: 3
    image: /abs/cam3.png
    width: 640
    height: 480
    focal: 320
    cx: 320
    cy: 240
`
	path := filepath.Join(dir, "scene.yaml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(s.Cameras) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(s.Cameras))
	}
	cam := s.ByID(0)
	if cam == nil {
		t.Fatal("camera 0 not found")
	}
	if cam.ImagePath != filepath.Join(dir, "photos", "cam0.png") {
		t.Errorf("relative image path not resolved: %q", cam.ImagePath)
	}
	if s.ByID(3).ImagePath != "/abs/cam3.png" {
		t.Errorf("absolute image path rewritten: %q", s.ByID(3).ImagePath)
	}
	if ids := s.IDs(); len(ids) != 2 || ids[0] != 0 || ids[1] != 3 {
		t.Errorf("IDs = %v, want [0 3]", ids)
	}
}

func TestVisibilitySets(t *testing.T) {
	vis := VisibilityFromData(&formats.VisBin{
		Views: [][]int32{{2, 0, 2}, {0, 1}, {}},
	})

	if got := vis[0]; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("vertex 0 views = %v, want [0 2]", got)
	}
	if !vis.Sees(0, 2) || vis.Sees(0, 1) || vis.Sees(2, 0) {
		t.Error("Sees gave wrong answers")
	}

	union := vis.Union(0, 1)
	if len(union) != 3 || union[0] != 0 || union[1] != 1 || union[2] != 2 {
		t.Errorf("Union = %v, want [0 1 2]", union)
	}

	inter := vis.Intersection(0, 1)
	if len(inter) != 1 || inter[0] != 0 {
		t.Errorf("Intersection = %v, want [0]", inter)
	}
	if got := vis.Intersection(0, 2); len(got) != 0 {
		t.Errorf("Intersection with empty set = %v, want empty", got)
	}
}

func TestEmptyVisibility(t *testing.T) {
	vis := EmptyVisibility(4)
	if len(vis) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(vis))
	}
	for i, views := range vis {
		if views == nil || len(views) != 0 {
			t.Errorf("vertex %d views = %v, want empty non-nil", i, views)
		}
	}
}
