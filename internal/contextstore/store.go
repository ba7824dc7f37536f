// Package contextstore implements the run-scoped, ordered key/value context
// that is threaded through a module invocation.
//
// Values are cty.Value, so every context can be rendered as JSON. The only
// mutation is Merge, a shallow top-level overwrite; modules never see the
// Store itself, only a read-only View.
package contextstore

import (
	"bytes"
	"encoding/json"

	"github.com/vk/modgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Updates is the set of top-level entries a module hands back.
type Updates map[string]cty.Value

// View is the read-only surface of a context handed to modules.
type View interface {
	Get(key string) (cty.Value, bool)
	Keys() []string
	Len() int
}

// entries is an insertion-ordered map shared by Store and Snapshot.
type entries struct {
	keys []string
	vals map[string]cty.Value
}

// Get returns the value stored under key.
func (e *entries) Get(key string) (cty.Value, bool) {
	v, ok := e.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (e *entries) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Len returns the number of entries.
func (e *entries) Len() int {
	return len(e.keys)
}

func (e *entries) clone() entries {
	c := entries{
		keys: append([]string(nil), e.keys...),
		vals: make(map[string]cty.Value, len(e.vals)),
	}
	for k, v := range e.vals {
		c.vals[k] = v
	}
	return c
}

// Store is the mutable context owned by one run.
type Store struct {
	entries
}

// New returns an empty context.
func New() *Store {
	return &Store{entries: entries{vals: make(map[string]cty.Value)}}
}

// Merge overwrites the entries named in u and leaves every other key alone.
// An overwritten key keeps its position; new keys are appended in
// lexicographic order so the result does not depend on map iteration.
func (s *Store) Merge(u Updates) {
	for _, k := range value.SortedKeys(u) {
		if _, exists := s.vals[k]; !exists {
			s.keys = append(s.keys, k)
		}
		s.vals[k] = u[k]
	}
}

// Snapshot returns a read-only copy of the current context.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{entries: s.clone()}
}

// Snapshot is an immutable copy of a context at one point in time.
type Snapshot struct {
	entries
}

// Value returns the snapshot as a single cty object.
func (s *Snapshot) Value() cty.Value {
	if s == nil || len(s.keys) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(s.vals)
}

// ToMap returns the snapshot as plain Go data.
func (s *Snapshot) ToMap() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for _, k := range s.keys {
		out[k] = value.ToGo(s.vals[k])
	}
	return out
}

// MarshalJSON renders the snapshot as a JSON object, keys in context order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := value.MarshalJSON(s.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
