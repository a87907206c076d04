// Package params holds the filter values a scenario feeds into query construction.
package params

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKey is returned when a key was not declared when the store was built.
var ErrUnknownKey = errors.New("unknown parameter key")

// Store maps declared parameter names to their current values. A scalar is a
// one-element slice. All access goes through one mutex, so a reader may observe a
// value that another in-flight task is about to overwrite; tasks that need isolation
// should work on a Clone.
type Store struct {
	mu     sync.Mutex
	values map[string][]string
}

// New declares keys with empty values.
func New(keys ...string) *Store {
	values := make(map[string][]string, len(keys))
	for _, k := range keys {
		values[k] = nil
	}
	return &Store{values: values}
}

// Set replaces the value of a declared key.
func (s *Store) Set(key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return fmt.Errorf("set %q: %w", key, ErrUnknownKey)
	}
	s.values[key] = append([]string(nil), values...)
	return nil
}

// SetScalar stores a single value.
func (s *Store) SetScalar(key, value string) error {
	return s.Set(key, value)
}

// Get returns a copy of the current value.
func (s *Store) Get(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrUnknownKey)
	}
	return append([]string(nil), v...), nil
}

// Scalar returns the first value of key, or "" when it is unset.
func (s *Store) Scalar(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	if len(v) == 0 {
		return "", nil
	}
	return v[0], nil
}

// MustGet is Get for scenario code whose keys are fixed at compile time.
func (s *Store) MustGet(key string) []string {
	v, err := s.Get(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Keys lists declared keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies every key and value under one lock acquisition.
func (s *Store) Snapshot() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.values))
	for k, v := range s.values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Clone returns an independent store with the same keys and values.
func (s *Store) Clone() *Store {
	return &Store{values: s.Snapshot()}
}
