// SPDX-License-Identifier: GPL-3.0-or-later

package paconn

import "sort"

// PropListUpdateMode selects how [PropList] values are merged by
// `proplist_update` (§6.1).
type PropListUpdateMode uint8

const (
	// PropListSet replaces the whole property list.
	PropListSet PropListUpdateMode = iota

	// PropListMerge adds new keys, keeping existing values on conflict.
	PropListMerge

	// PropListReplace adds new keys, overwriting existing values on
	// conflict.
	PropListReplace
)

// PropList is the external "property list container" collaborator named
// out of scope in §1: the core only needs to set, iterate, and remove
// entries when building `SET_CLIENT_NAME`/`UPDATE_CLIENT_PROPLIST`/
// `REMOVE_CLIENT_PROPLIST` payloads (§6.2) and when exposing "an owned
// property list describing this client" (§3).
type PropList interface {
	// Set stores value under key, overwriting any existing value.
	Set(key, value string)

	// Unset removes key, if present.
	Unset(key string)

	// Get returns the value stored under key, if any.
	Get(key string) (string, bool)

	// Keys returns the stored keys in unspecified order.
	Keys() []string

	// Clone returns an independent copy.
	Clone() PropList

	// Merge applies other into pl according to mode.
	Merge(mode PropListUpdateMode, other PropList)
}

// NewPropList returns a minimal in-memory [PropList] implementation,
// sufficient for tests and for callers that have no richer property list
// container of their own.
func NewPropList() PropList {
	return &mapPropList{entries: map[string]string{}}
}

type mapPropList struct {
	entries map[string]string
}

var _ PropList = &mapPropList{}

func (p *mapPropList) Set(key, value string) {
	p.entries[key] = value
}

func (p *mapPropList) Unset(key string) {
	delete(p.entries, key)
}

func (p *mapPropList) Get(key string) (string, bool) {
	v, ok := p.entries[key]
	return v, ok
}

func (p *mapPropList) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *mapPropList) Clone() PropList {
	clone := &mapPropList{entries: make(map[string]string, len(p.entries))}
	for k, v := range p.entries {
		clone.entries[k] = v
	}
	return clone
}

func (p *mapPropList) Merge(mode PropListUpdateMode, other PropList) {
	if mode == PropListSet {
		p.entries = map[string]string{}
	}
	if other == nil {
		return
	}
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		if mode == PropListMerge {
			if _, exists := p.entries[k]; exists {
				continue
			}
		}
		p.entries[k] = v
	}
}
