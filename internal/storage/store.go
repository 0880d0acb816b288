package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ContentTypeJSON is the content type of every raw match object
const ContentTypeJSON = "application/json"

var (
	// ErrObjectExists is returned by Put when the key is already taken
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned by Get for a missing key
	ErrObjectNotFound = errors.New("object not found")
)

// Store is a write-once blob store for raw match records.
type Store interface {
	// Exists reports whether key is present. Metadata only; never reads content.
	Exists(ctx context.Context, key string) (bool, error)
	// Put atomically creates key with body. It never overwrites: an existing
	// key yields ErrObjectExists and leaves the stored object untouched.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the full content of key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Provider opens the store for a named bucket. Triggers name their bucket
// per invocation, so stores are opened on demand.
type Provider interface {
	Open(bucket string) (Store, error)
}

// RawMatchPrefix returns the prefix holding every raw match under folder
func RawMatchPrefix(folder string) string {
	return path.Join(folder, "raw_matches") + "/"
}

// RawMatchKey returns the object key for one raw match record
func RawMatchKey(folder, matchID string) string {
	return RawMatchPrefix(folder) + matchID + ".json"
}

// MatchIDFromKey recovers the match ID from a raw match key
func MatchIDFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), ".json")
}
