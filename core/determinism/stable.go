// Package determinism provides primitives for guaranteeing deterministic
// output. Ordering-sensitive code must use these instead of iterating Go
// maps directly.
package determinism

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Fingerprint derives a stable identifier from an ordered list of parts.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0}) // Separator
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// FingerprintAttrs derives a stable identifier from the selected keys of an
// attribute map. Keys are folded in sorted order as k=v pairs; keys absent
// from the map are skipped. The result is independent of map iteration
// order by construction.
func FingerprintAttrs(attrs map[string]string, keys []string) string {
	selected := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := attrs[k]; ok {
			selected = append(selected, k+"="+v)
		}
	}
	sort.Strings(selected)
	return Fingerprint(selected...)
}

// SortSlice sorts a slice in a stable, deterministic manner
func SortSlice[T any](slice []T, less func(a, b T) bool) {
	sort.SliceStable(slice, func(i, j int) bool {
		return less(slice[i], slice[j])
	})
}

// SortedKeys returns the map's keys in sorted order
func SortedKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// RangeMapSorted iterates over a map in sorted key order
func RangeMapSorted[K comparable, V any](m map[K]V, fn func(K, V) bool) {
	for _, k := range SortedKeys(m) {
		if !fn(k, m[k]) {
			break
		}
	}
}
