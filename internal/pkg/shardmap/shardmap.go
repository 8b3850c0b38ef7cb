package shardmap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a string-keyed map split across independently locked shards.
// Operations on keys in different shards never contend.
type Map[V any] struct {
	shards []*shard[V]
}

func New[V any]() *Map[V] {
	return NewWithShards[V](defaultShards)
}

func NewWithShards[V any](n int) *Map[V] {
	if n <= 0 {
		n = defaultShards
	}
	m := &Map[V]{shards: make([]*shard[V], n)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Compute runs fn under the key's shard lock and stores its result.
// fn receives the current value and whether it existed.
func (m *Map[V]) Compute(key string, fn func(old V, ok bool) V) V {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.items[key]
	v := fn(old, ok)
	s.items[key] = v
	return v
}

func (m *Map[V]) Load(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

func (m *Map[V]) Store(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// CompareAndDelete removes key only if match reports true for its current value.
func (m *Map[V]) CompareAndDelete(key string, match func(V) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// DeleteIf walks every shard and removes entries for which pred is true.
// Each shard is locked only while it is being walked.
func (m *Map[V]) DeleteIf(pred func(key string, v V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
