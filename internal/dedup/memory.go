package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key string
	at  time.Time
}

// MemoryStore is a bounded in-process store. Past MaxEntries the
// oldest-inserted key is evicted.
type MemoryStore struct {
	MaxEntries int

	mu    sync.Mutex
	order *list.List
	byKey map[string]*list.Element
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{MaxEntries: maxEntries, order: list.New(), byKey: map[string]*list.Element{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byKey[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return el.Value.(memoryEntry).at, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, at)
	return nil
}

func (s *MemoryStore) Add(_ context.Context, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	s.put(key, at)
	return true, nil
}

func (s *MemoryStore) put(key string, at time.Time) {
	if el, ok := s.byKey[key]; ok {
		s.order.Remove(el)
	}
	s.byKey[key] = s.order.PushBack(memoryEntry{key: key, at: at})
	for s.order.Len() > s.MaxEntries {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.byKey, oldest.Value.(memoryEntry).key)
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.byKey[key]; ok {
		s.order.Remove(el)
		delete(s.byKey, key)
	}
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(memoryEntry); e.at.Before(cutoff) {
			s.order.Remove(el)
			delete(s.byKey, e.key)
		}
		el = next
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
