package imgcache

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meshforge/meshtex/internal/scene"
)

// writeTestPNG writes a width x height PNG filled with the given color.
func writeTestPNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// testScene builds a scene with n cameras whose photos live in dir.
func testScene(t *testing.T, dir string, n int) *scene.Scene {
	t.Helper()
	cams := make([]scene.Camera, n)
	for i := range cams {
		path := filepath.Join(dir, "view"+string(rune('0'+i))+".png")
		writeTestPNG(t, path, 8, 8, color.NRGBA{R: uint8(10 * i), A: 255})
		cams[i] = scene.Camera{
			ID:        i,
			ImagePath: path,
			Width:     8,
			Height:    8,
			Focal:     4,
			Cx:        4,
			Cy:        4,
		}
	}
	s, err := scene.New(cams)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAcquireDecodesAndCaches(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 2), 4)

	img, release, err := c.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Errorf("image bounds = %v, want 8x8", img.Bounds())
	}
	if got := img.NRGBAAt(3, 3); got.R != 10 {
		t.Errorf("pixel = %v, want R=10", got)
	}
	release()

	// Second acquire hits the cache
	_, release2, err := c.Acquire(1)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	release2()

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses, want 1/1", hits, misses)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 4), 2)

	for id := 0; id < 4; id++ {
		_, release, err := c.Acquire(id)
		if err != nil {
			t.Fatalf("Acquire(%d) failed: %v", id, err)
		}
		release()
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want capacity 2", c.Len())
	}

	// Oldest entries were evicted; re-acquiring them is a miss
	_, release, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	release()
	_, misses := c.Stats()
	if misses != 5 {
		t.Errorf("misses = %d, want 5 (4 cold + 1 evicted)", misses)
	}
}

func TestPinnedNotEvicted(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 3), 1)

	imgA, releaseA, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}

	// Fill past capacity while view 0 is pinned
	for id := 1; id < 3; id++ {
		_, release, err := c.Acquire(id)
		if err != nil {
			t.Fatal(err)
		}
		release()
	}

	// Pinned entry must still be resident: acquiring it again is a hit
	imgB, releaseB, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	if imgA != imgB {
		t.Error("pinned image was evicted and reloaded")
	}
	releaseA()
	releaseB()

	hits, _ := c.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestFreshAcquireSurvivesPinnedPressure(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 2), 1)

	// Pin the only resident entry, then load a second view past
	// capacity without releasing. The fresh entry is pinned by its
	// caller too and must not fall to insertion-time eviction.
	_, releaseA, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	imgB, releaseB, err := c.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}

	imgB2, releaseB2, err := c.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}
	if imgB != imgB2 {
		t.Error("freshly loaded image was evicted while pinned")
	}
	releaseA()
	releaseB()
	releaseB2()

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("stats = %d hits, %d misses, want 1/2", hits, misses)
	}
}

func TestAcquireErrors(t *testing.T) {
	dir := t.TempDir()
	s := testScene(t, dir, 2)
	c := New(s, 2)

	if _, _, err := c.Acquire(99); !errors.Is(err, ErrUnknownView) {
		t.Errorf("expected ErrUnknownView, got %v", err)
	}

	// Corrupt one source image
	if err := os.WriteFile(s.ByID(1).ImagePath, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Acquire(1); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	// Missing file
	if err := os.Remove(s.ByID(0).ImagePath); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Acquire(0); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for missing file, got %v", err)
	}
}

func TestConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 2), 2)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			img, release, err := c.Acquire(id)
			if err != nil {
				t.Errorf("Acquire(%d) failed: %v", id, err)
				return
			}
			if img.Bounds().Dx() != 8 {
				t.Errorf("bad image for view %d", id)
			}
			release()
		}(i % 2)
	}
	wg.Wait()

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	dir := t.TempDir()
	c := New(testScene(t, dir, 1), 1)
	_, release, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	release()
	release() // second call must be a no-op

	// Entry should still be resident and acquirable
	_, release2, err := c.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	release2()
}
