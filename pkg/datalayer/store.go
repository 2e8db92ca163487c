// Package datalayer records the key/value pushes a tag-manager bridge makes.
//
// A data layer is append-only: each push is kept as an entry, and the current model is
// the merge of every entry in order. Pushing a key with a nil value clears it. Flush marks
// the pending entries as dispatched, which is what a bridge dispatch amounts to.
package datalayer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by stores that have been closed
var ErrClosed = errors.New("data layer closed")

// Entry is one push onto the data layer
type Entry struct {
	Seq        int64          `json:"seq"`
	Data       map[string]any `json:"data"`
	PushedAt   time.Time      `json:"pushedAt"`
	Dispatched bool           `json:"dispatched"`
}

// Store persists data-layer pushes
type Store interface {
	Push(ctx context.Context, data map[string]any) error
	// Flush marks every pending entry dispatched and returns how many were pending.
	Flush(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]Entry, error)
	Close() error
}

// Config selects a store implementation
type Config struct {
	Driver string // memory, sqlite
	Path   string // sqlite database file
}

// Open creates the store described by cfg
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown data layer driver: %s", cfg.Driver)
	}
}

// Snapshot merges entries in order into the current data-layer model. Nested objects
// merge key by key; any other value replaces what was there. nil removes a key.
func Snapshot(entries []Entry) map[string]any {
	model := make(map[string]any)
	for _, e := range entries {
		merge(model, e.Data)
	}
	return model
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		next, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		cur, ok := dst[k].(map[string]any)
		if !ok {
			cur = make(map[string]any, len(next))
			dst[k] = cur
		}
		merge(cur, next)
	}
}

// Pending returns the entries not yet dispatched
func Pending(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Dispatched {
			out = append(out, e)
		}
	}
	return out
}
