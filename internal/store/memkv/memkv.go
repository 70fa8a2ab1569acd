// Package memkv is an in-memory store.KV implementation used by unit tests
// in place of a running Redis instance.
package memkv

import (
	"context"
	"sort"
	"sync"
	"time"

	"relay/internal/store"
)

type entry struct {
	value   string
	expires time.Time // zero = no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Store is a mutex-protected map-backed store.KV.
type Store struct {
	mu    sync.Mutex
	data  map[string]entry
	zsets map[string]map[string]float64
}

var _ store.KV = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		data:  make(map[string]entry),
		zsets: make(map[string]map[string]float64),
	}
}

func (s *Store) ttlAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{value: value, expires: s.ttlAt(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	s.data[key] = entry{value: value, expires: s.ttlAt(ttl)}
	return true, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key, oldValue, newValue string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	present := ok && !e.expired(time.Now())

	if oldValue == "" {
		if present {
			return store.ErrConflict
		}
	} else {
		if !present || e.value != oldValue {
			return store.ErrConflict
		}
	}

	s.data[key] = entry{value: newValue, expires: s.ttlAt(ttl)}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		return store.ErrNotFound
	}
	e.expires = s.ttlAt(ttl)
	s.data[key] = e
	return nil
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *Store) sortedMembers(key string) []string {
	z := s.zsets[key]
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return z[members[i]] < z[members[j]] })
	return members
}

func (s *Store) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z := s.zsets[key]
	var out []string
	for _, m := range s.sortedMembers(key) {
		score := z[m]
		if score >= min && score <= max {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ZRevRangeByScore(_ context.Context, key string, min, max float64, offset, count int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z := s.zsets[key]
	members := s.sortedMembers(key)
	var filtered []string
	for i := len(members) - 1; i >= 0; i-- {
		m := members[i]
		score := z[m]
		if score >= min && score <= max {
			filtered = append(filtered, m)
		}
	}

	if offset >= len(filtered) {
		return nil, nil
	}
	end := len(filtered)
	if count > 0 && offset+count < end {
		end = offset + count
	}
	return filtered[offset:end], nil
}

func (s *Store) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for m, score := range z {
		if score >= min && score <= max {
			delete(z, m)
		}
	}
	return nil
}

func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.zsets[key])), nil
}

func (s *Store) ZRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.zsets[key], member)
	return nil
}

// Scan mimics Redis's SCAN, which walks the whole keyspace regardless of
// type: both plain values and sorted sets are eligible matches.
func (s *Store) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []string
	for k, e := range s.data {
		if e.expired(now) {
			continue
		}
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	for k := range s.zsets {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
