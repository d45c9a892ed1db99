// Package kv is a small key-value layer with hierarchical keys. Keys are
// string slices such as {"conv", userID, recordID}, joined with ':' for
// storage.
//
// Badger is the persistent backend; Memory serves tests and single-process
// development servers.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("kv: not found")
	// ErrInvalidKey is returned for empty keys or segments holding the
	// separator.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Separator joins key segments.
const Separator = ':'

// Key is a hierarchical path.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Entry is one key-value pair yielded by Scan.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, value []byte) error
	// PutIfAbsent stores value only when key is absent and reports whether
	// it did. The check and the write are atomic.
	PutIfAbsent(ctx context.Context, key Key, value []byte) (bool, error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// Scan yields entries under prefix in lexicographic key order.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}

func encode(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, ErrInvalidKey
	}
	for _, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return []byte(k.String()), nil
}

// prefixBytes encodes prefix with a trailing separator so {"a","b"} does not
// match "a:bc". An empty prefix matches everything.
func prefixBytes(prefix Key) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	p, err := encode(prefix)
	if err != nil {
		return nil, err
	}
	return append(p, Separator), nil
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}
