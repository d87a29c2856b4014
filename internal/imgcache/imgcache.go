// Package imgcache provides a bounded-memory, on-demand loader for the
// source photographs, keyed by camera view id. Images are decoded at
// most once per residency, concurrent requests share the in-flight
// load, and pinned images are never evicted.
package imgcache

import (
	"container/list"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	// Decoder registrations for the photo formats we accept.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/meshforge/meshtex/internal/scene"
)

// Cache errors.
var (
	ErrDecode      = errors.New("image decode failed")
	ErrUnknownView = errors.New("unknown camera view")
)

// DefaultCapacity is the default number of resident decoded images.
const DefaultCapacity = 16

// Cache is a bounded LRU cache of decoded photographs.
type Cache struct {
	views    *scene.Scene
	capacity int

	mu      sync.Mutex
	entries map[int]*entry
	lru     *list.List // front = most recently used

	group singleflight.Group

	hits   int
	misses int
}

type entry struct {
	id   int
	img  *image.NRGBA
	pins int
	elem *list.Element
}

// New creates a cache over the given scene's photographs holding at
// most capacity decoded images (pinned images may push past the bound).
func New(views *scene.Scene, capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Cache{
		views:    views,
		capacity: capacity,
		entries:  make(map[int]*entry),
		lru:      list.New(),
	}
}

// Acquire returns the decoded photograph for the given view id, pinned
// against eviction. The returned release function must be called when
// the caller is done sampling from the image.
func (c *Cache) Acquire(id int) (*image.NRGBA, func(), error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.hits++
		e.pins++
		c.lru.MoveToFront(e.elem)
		c.mu.Unlock()
		return e.img, c.releaser(e), nil
	}
	c.misses++
	c.mu.Unlock()

	// Concurrent requesters for the same id share one decode.
	v, err, _ := c.group.Do(strconv.Itoa(id), func() (interface{}, error) {
		return c.load(id)
	})
	if err != nil {
		return nil, nil, err
	}
	img := v.(*image.NRGBA)

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{id: id, img: img}
		e.elem = c.lru.PushFront(e)
		c.entries[id] = e
		// Pin before evicting so pressure from pinned peers cannot
		// drop the entry being handed out.
		e.pins++
		c.evictLocked()
	} else {
		c.lru.MoveToFront(e.elem)
		e.pins++
	}
	c.mu.Unlock()
	return e.img, c.releaser(e), nil
}

func (c *Cache) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.pins--
			c.evictLocked()
			c.mu.Unlock()
		})
	}
}

// evictLocked drops least-recently-used unpinned entries until the
// cache fits its capacity. Caller holds c.mu.
func (c *Cache) evictLocked() {
	for elem := c.lru.Back(); elem != nil && len(c.entries) > c.capacity; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.pins == 0 {
			c.lru.Remove(elem)
			delete(c.entries, e.id)
		}
		elem = prev
	}
}

func (c *Cache) load(id int) (*image.NRGBA, error) {
	cam := c.views.ByID(id)
	if cam == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownView, id)
	}
	f, err := os.Open(cam.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: view %d: %v", ErrDecode, id, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: view %d (%s): %v", ErrDecode, id, cam.ImagePath, err)
	}
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba, nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out, nil
}

// Len returns the number of resident decoded images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear drops all unpinned entries and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry)
		if e.pins == 0 {
			c.lru.Remove(elem)
			delete(c.entries, e.id)
		}
		elem = next
	}
	c.hits = 0
	c.misses = 0
}
