package domain

import "sort"

// Tags is a string to string mapping used for run and experiment tags and
// for run parameters.
type Tags map[string]string

func (t Tags) Clone() Tags {
	if t == nil {
		return Tags{}
	}
	copy := make(Tags, len(t))
	for k, v := range t {
		copy[k] = v
	}
	return copy
}

// SortedKeys returns the keys in lexical order.
func (t Tags) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LifecycleStage mirrors the tracking server's soft-delete marker.
type LifecycleStage string

const (
	LifecycleActive  LifecycleStage = "active"
	LifecycleDeleted LifecycleStage = "deleted"
)
