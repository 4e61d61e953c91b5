package provider

import (
	"sort"
	"sync"
)

// Values is a concurrency-safe set of the latest values of a push-based
// source. Connection-backed sources store what they receive here and build
// their fields from it.
type Values struct {
	mu     sync.RWMutex
	values map[string]any
	enums  map[string]map[int]string
}

// NewValues creates an empty set.
func NewValues() *Values {
	return &Values{values: make(map[string]any), enums: make(map[string]map[int]string)}
}

// Set stores v under token.
func (s *Values) Set(token string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[token] = v
	delete(s.enums, token)
}

// SetEnum stores a coded enumeration value under token.
func (s *Values) SetEnum(token string, code int, constants map[int]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[token] = code
	s.enums[token] = constants
}

// Delete removes token.
func (s *Values) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, token)
	delete(s.enums, token)
}

// Reset removes every value.
func (s *Values) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	clear(s.enums)
}

// Fields returns one field per stored value, sorted by token.
func (s *Values) Fields() []Field {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := make([]Field, 0, len(s.values))
	for token, v := range s.values {
		f := staticField(token, v)
		f.Constants = s.enums[token]
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Token < fields[j].Token })
	return fields
}

// Get returns the value stored under token.
func (s *Values) Get(token string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[token]
	return v, ok
}
