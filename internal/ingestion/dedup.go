package ingestion

import (
	"container/list"
	"fmt"
)

// StoredChecker is the cold-path lookup against the warehouse.
type StoredChecker interface {
	IsStored(category string, eventID string) (bool, error)
}

// Dedup collapses feed redeliveries with a two-tier lookup: an in-memory
// LRU for the hot path and the warehouse for the cold path. The warehouse
// appender's conflict handling remains the final backstop, so a false
// negative here costs one wasted write, never a duplicate row.
// Not thread-safe; only the single consumer loop touches it.
type Dedup struct {
	lru     *dedupLRU
	checker StoredChecker
}

func NewDedup(capacity int, checker StoredChecker) *Dedup {
	return &Dedup{
		lru:     newDedupLRU(capacity),
		checker: checker,
	}
}

// Seen reports whether the event was already ingested.
func (d *Dedup) Seen(category string, eventID string) bool {
	key := fmt.Sprintf("%s:%s", category, eventID)

	if d.lru.contains(key) {
		return true
	}

	if d.checker != nil {
		stored, err := d.checker.IsStored(category, eventID)
		if err != nil {
			// Assume not seen; the append's conflict clause catches the
			// duplicate if this was wrong.
			return false
		}
		if stored {
			d.lru.add(key)
			return true
		}
	}
	return false
}

// Mark records the event after a successful append.
func (d *Dedup) Mark(category string, eventID string) {
	d.lru.add(fmt.Sprintf("%s:%s", category, eventID))
}

// Warm preloads recently ingested keys, avoiding cold-path lookups for the
// feed's redelivery window after a restart.
func (d *Dedup) Warm(category string, eventIDs []string) {
	for _, id := range eventIDs {
		d.lru.add(fmt.Sprintf("%s:%s", category, id))
	}
}

// Size returns the number of cached keys.
func (d *Dedup) Size() int { return d.lru.list.Len() }

type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	list     *list.List
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		list:     list.New(),
	}
}

func (l *dedupLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.list.MoveToFront(elem)
	}
	return ok
}

func (l *dedupLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.list.MoveToFront(elem)
		return
	}
	l.cache[key] = l.list.PushFront(key)
	if l.list.Len() > l.capacity {
		oldest := l.list.Back()
		l.list.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
	}
}
