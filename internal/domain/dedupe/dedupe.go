// Package dedupe tracks compute claims so that one caller at a time computes
// the output of a (match, stage) pair.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records claim keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if key is held and records it if not.
	// Returns true if key was already held, false if this caller now holds it.
	SeenAndRecord(ctx context.Context, key string) (bool, error)

	// Unrecord releases key so a later caller can retry the work it guards.
	Unrecord(ctx context.Context, key string) error

	Size() int64
}

type entry struct {
	key     string
	expires time.Time
}

// inMemoryDeduper keeps claims in a map with an insertion-ordered list. When
// bounded it evicts the oldest claim; when a TTL is set claims lapse so a
// crashed holder does not block the stage forever.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.seen[key]; ok {
		e := el.Value.(*entry)
		if e.expires.IsZero() || now.Before(e.expires) {
			return true, nil
		}
		d.remove(el)
	}
	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.remove(d.order.Front())
		}
	}
	e := &entry{key: key}
	if d.ttl > 0 {
		e.expires = now.Add(d.ttl)
	}
	d.seen[key] = d.order.PushBack(e)
	return false, nil
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[key]; ok {
		d.remove(el)
	}
	return nil
}

// remove must be called with d.mu held.
func (d *inMemoryDeduper) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(d.seen, el.Value.(*entry).key)
	d.order.Remove(el)
}

// Size returns the number of held claims, expired ones included until they
// are touched again.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
