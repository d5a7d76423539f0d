// Copyright 2025 Tetrate
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import "strings"

// HeaderEntry is a single (name, value) pair in a HeaderMap.
type HeaderEntry struct {
	Name  string
	Value string
}

// HeaderMap is an ordered multimap of HTTP headers. Duplicate names are
// allowed, and Get returns the value of the first entry with a given name in
// insertion order. Names are case-insensitive and stored lowercased.
//
// Because Get returns the first match, an Add performed when an entry with
// the same name already exists is observable through Range but never through
// Get. Callers rely on this to make earlier entries non-overridable.
type HeaderMap struct {
	entries []HeaderEntry
}

// NewHeaderMap creates a HeaderMap with the given initial entries, in order.
func NewHeaderMap(entries ...HeaderEntry) *HeaderMap {
	h := &HeaderMap{entries: make([]HeaderEntry, 0, len(entries))}
	for _, e := range entries {
		h.Add(e.Name, e.Value)
	}
	return h
}

// Add inserts a new entry unconditionally, regardless of existing entries
// with the same name.
func (h *HeaderMap) Add(name, value string) {
	h.entries = append(h.entries, HeaderEntry{Name: strings.ToLower(name), Value: value})
}

// AppendToValue appends the value to the first entry with the given name,
// comma separated. If no entry exists, a new one is inserted.
func (h *HeaderMap) AppendToValue(name, value string) {
	name = strings.ToLower(name)
	for i := range h.entries {
		if h.entries[i].Name == name {
			h.entries[i].Value = h.entries[i].Value + "," + value
			return
		}
	}
	h.entries = append(h.entries, HeaderEntry{Name: name, Value: value})
}

// Set removes all entries with the given name and inserts exactly one fresh
// entry with the given value.
func (h *HeaderMap) Set(name, value string) {
	h.Remove(name)
	h.entries = append(h.entries, HeaderEntry{Name: strings.ToLower(name), Value: value})
}

// Get returns the value of the first entry with the given name, and whether
// any entry exists.
func (h *HeaderMap) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, e := range h.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Has returns whether an entry with the given name exists.
func (h *HeaderMap) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Values returns the values of all entries with the given name, in order.
func (h *HeaderMap) Values(name string) []string {
	name = strings.ToLower(name)
	var values []string
	for _, e := range h.entries {
		if e.Name == name {
			values = append(values, e.Value)
		}
	}
	return values
}

// Remove drops all entries with the given name.
func (h *HeaderMap) Remove(name string) {
	name = strings.ToLower(name)
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Range calls f for every entry in insertion order until f returns false.
func (h *HeaderMap) Range(f func(name, value string) bool) {
	for _, e := range h.entries {
		if !f(e.Name, e.Value) {
			return
		}
	}
}

// Len returns the number of entries.
func (h *HeaderMap) Len() int { return len(h.entries) }

// Clone returns a deep copy of the map.
func (h *HeaderMap) Clone() *HeaderMap {
	entries := make([]HeaderEntry, len(h.entries))
	copy(entries, h.entries)
	return &HeaderMap{entries: entries}
}
