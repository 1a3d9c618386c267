package domain

import (
	"encoding/json"
	"sort"
)

// TombstoneSet records the template keys explicitly deleted from one day's
// document so a later template sync does not resurrect them. It serializes as
// a sorted string array; set semantics make the no-duplicate-tombstone
// invariant structural rather than enforced ad hoc.
type TombstoneSet map[string]struct{}

// NewTombstoneSet builds a set from the given keys.
func NewTombstoneSet(keys ...string) TombstoneSet {
	s := make(TombstoneSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is tombstoned.
func (s TombstoneSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts key, returning true if it was not already present.
func (s TombstoneSet) Add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Remove deletes key, returning true if it was present.
func (s TombstoneSet) Remove(key string) bool {
	if _, ok := s[key]; !ok {
		return false
	}
	delete(s, key)
	return true
}

// Union returns a new set containing the keys of both sets.
func (s TombstoneSet) Union(other TombstoneSet) TombstoneSet {
	out := make(TombstoneSet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Clone returns a copy of the set. A nil receiver clones to nil.
func (s TombstoneSet) Clone() TombstoneSet {
	if s == nil {
		return nil
	}
	out := make(TombstoneSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Keys returns the tombstoned keys in sorted order.
func (s TombstoneSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted string array.
func (s TombstoneSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON decodes a string array, deduplicating entries.
func (s *TombstoneSet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewTombstoneSet(keys...)
	return nil
}
