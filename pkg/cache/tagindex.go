package cache

import (
	"sort"

	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
)

// tagIndex maps each tag to the keys of the entries carrying it.
type tagIndex map[endpoints.Tag]map[Key]struct{}

func (idx tagIndex) add(key Key, tags []endpoints.Tag) {
	for _, tag := range tags {
		keys, ok := idx[tag]
		if !ok {
			keys = make(map[Key]struct{})
			idx[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (idx tagIndex) remove(key Key, tags []endpoints.Tag) {
	for _, tag := range tags {
		keys, ok := idx[tag]
		if !ok {
			continue
		}
		delete(keys, key)
		if len(keys) == 0 {
			delete(idx, tag)
		}
	}
}

// lookup returns the distinct keys carrying any of tags, sorted by their
// string form.
func (idx tagIndex) lookup(tags []endpoints.Tag) []Key {
	seen := make(map[Key]struct{})
	var out []Key
	for _, tag := range tags {
		for key := range idx[tag] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
