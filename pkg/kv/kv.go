// Package kv provides the small key-value store the anonymization pipeline
// uses for durable per-speaker state, most notably the substitute-vector
// cache that keeps pseudonym assignments stable across runs.
//
// Keys are hierarchical string paths (e.g. ["anon", "xvector", "alice"])
// joined with ':' for storage. The BadgerDB implementation persists across
// process restarts; the in-memory implementation backs tests.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// separator joins key segments in the encoded form.
const separator = ":"

// Key is a hierarchical path of segments. Segments must not contain ':'.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, separator)
}

// encode validates and joins the key for storage.
func encode(k Key) ([]byte, error) {
	for _, seg := range k {
		if strings.Contains(seg, separator) {
			return nil, fmt.Errorf("kv: key segment %q contains separator", seg)
		}
	}
	return []byte(strings.Join(k, separator)), nil
}

// decode splits an encoded key back into segments.
func decode(b []byte) Key {
	return Key(strings.Split(string(b), separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with hierarchical keys.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries whose key has the given prefix of whole
	// segments, in lexicographic order of the encoded key. An empty
	// prefix lists everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases resources held by the store.
	Close() error
}

// listPrefix returns the encoded prefix bytes for List: whole-segment
// matching, so prefix ["a","b"] matches "a:b:c" but not "a:bc".
func listPrefix(prefix Key) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	p, err := encode(prefix)
	if err != nil {
		return nil, err
	}
	return append(p, separator...), nil
}
