// Package cache keeps fetched page extractions so repeated URLs in a batch,
// or across runs, skip the network.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/veritas/internal/model"
)

// Store is a byte-level cache layer
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a stable, filesystem-safe key for raw within namespace
func Key(namespace, raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return "veritas-" + namespace + "-v1-" + hex.EncodeToString(hash[:])
}

// Extractions caches extraction results by URL on top of a Store
type Extractions struct {
	store Store
	ttl   time.Duration
}

// NewExtractions wraps store. A zero ttl defers to the store's default.
func NewExtractions(store Store, ttl time.Duration) *Extractions {
	return &Extractions{store: store, ttl: ttl}
}

// Get returns the cached extraction for rawURL
func (e *Extractions) Get(rawURL string) (*model.Extraction, bool) {
	if e == nil || e.store == nil {
		return nil, false
	}

	data, ok := e.store.Get(Key("extract", rawURL))
	if !ok {
		return nil, false
	}

	var ext model.Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		// Corrupt entry; drop it so the next fetch replaces it
		_ = e.store.Delete(Key("extract", rawURL))
		return nil, false
	}
	return &ext, true
}

// Put stores ext under rawURL
func (e *Extractions) Put(rawURL string, ext *model.Extraction) error {
	if e == nil || e.store == nil || ext == nil {
		return nil
	}

	data, err := json.Marshal(ext)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	return e.store.Set(Key("extract", rawURL), data, e.ttl)
}
