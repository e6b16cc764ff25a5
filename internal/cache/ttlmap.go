// Package cache provides a TTL-keyed concurrent map shared by the per-vehicle
// and per-trip state holders of the processor.
//
// Entries expire a fixed duration after they were last written. Expiry is
// opportunistic: an expired entry is dropped when its key is accessed, and an
// insert that finds the map above its high-water mark sweeps every shard for
// expired entries. A sweep that frees too little is not repeated until the
// map has grown further. There is no background goroutine.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultShards = 32

type entry[V any] struct {
	value     V
	createdAt time.Time
}

type shard[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]entry[V]
}

// Map is a sharded map with per-key atomic read-modify-write operations.
// Operations on keys in different shards never contend.
type Map[K comparable, V any] struct {
	ttl       time.Duration
	highWater int
	hash      func(K) uint64
	now       func() time.Time
	shards    []*shard[K, V]
	size      atomic.Int64

	nextSweep atomic.Int64
	sweeping  atomic.Bool
	sweeps    atomic.Int64
}

type Option func(*options)

type options struct {
	shards    int
	highWater int
	now       func() time.Time
}

// WithShards sets the number of shards (default 32).
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithHighWater sets the entry count above which an insert triggers a full
// sweep of expired entries. Zero disables size-triggered sweeps.
func WithHighWater(n int) Option {
	return func(o *options) { o.highWater = n }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a Map whose entries live for ttl after their last write.
// hash selects the shard of a key.
func New[K comparable, V any](ttl time.Duration, hash func(K) uint64, opts ...Option) *Map[K, V] {
	o := options{shards: defaultShards, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Map[K, V]{
		ttl:       ttl,
		highWater: o.highWater,
		hash:      hash,
		now:       o.now,
		shards:    make([]*shard[K, V], o.shards),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]entry[V])}
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hash(key)%uint64(len(m.shards))]
}

func (m *Map[K, V]) expired(e entry[V], now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.createdAt) >= m.ttl
}

// lookup returns the live entry for key, deleting it if it has expired.
// Caller holds s.mu.
func (m *Map[K, V]) lookup(s *shard[K, V], key K, now time.Time) (entry[V], bool) {
	e, ok := s.items[key]
	if !ok {
		return e, false
	}
	if m.expired(e, now) {
		delete(s.items, key)
		m.size.Add(-1)
		return entry[V]{}, false
	}
	return e, true
}

func (m *Map[K, V]) store(s *shard[K, V], key K, v V, now time.Time) {
	if _, ok := s.items[key]; !ok {
		m.size.Add(1)
	}
	s.items[key] = entry[V]{value: v, createdAt: now}
}

// Get returns the live value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := m.lookup(s, key, m.now())
	return e.value, ok
}

// Put stores v under key and restarts its TTL.
func (m *Map[K, V]) Put(key K, v V) {
	m.maybeSweep()
	s := m.shardFor(key)
	s.mu.Lock()
	m.store(s, key, v, m.now())
	s.mu.Unlock()
}

// PutIfAbsent stores v only when no live entry exists for key. It returns the
// value held after the call and whether that value was already present.
// An existing entry keeps its original creation time.
func (m *Map[K, V]) PutIfAbsent(key K, v V) (actual V, loaded bool) {
	m.maybeSweep()
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	if e, ok := m.lookup(s, key, now); ok {
		return e.value, true
	}
	m.store(s, key, v, now)
	return v, false
}

// Compute atomically applies fn to the live value of key. When fn returns
// store=false the entry (or its absence) is left untouched, including its
// creation time; otherwise next is written and the TTL restarts.
func (m *Map[K, V]) Compute(key K, fn func(current V, present bool) (next V, store bool)) (V, bool) {
	m.maybeSweep()
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := m.now()
	e, ok := m.lookup(s, key, now)
	next, store := fn(e.value, ok)
	if !store {
		return e.value, ok
	}
	m.store(s, key, next, now)
	return next, true
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	if _, ok := s.items[key]; ok {
		delete(s.items, key)
		m.size.Add(-1)
	}
	s.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (m *Map[K, V]) Len() int { return int(m.size.Load()) }

// Prune removes every expired entry, locking one shard at a time, and returns
// how many entries were dropped.
func (m *Map[K, V]) Prune() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if m.expired(e, now) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	m.size.Add(-int64(removed))
	return removed
}

// maybeSweep prunes when the map is above its high-water mark. A sweep that
// leaves the map above the mark defers the next one until the map has grown
// by another quarter, and only one sweep runs at a time.
func (m *Map[K, V]) maybeSweep() {
	if m.highWater <= 0 {
		return
	}
	n := m.Len()
	if n <= m.highWater || int64(n) <= m.nextSweep.Load() {
		return
	}
	if !m.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer m.sweeping.Store(false)

	m.Prune()
	m.sweeps.Add(1)
	next := m.highWater
	if left := m.Len(); left > m.highWater {
		next = left + max(left/4, 1)
	}
	m.nextSweep.Store(int64(next))
}
