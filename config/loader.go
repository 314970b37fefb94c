package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ebops/deploybot/storage"
)

// OptionsFile is the default path of the authored options document,
// imported into the store by the initdb command.
const OptionsFile = "config/options.json"

// LoadOptionsFile reads and validates an options document from disk.
func LoadOptionsFile(path string) (*Options, []byte, error) {
	if path == "" {
		path = OptionsFile
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read options file: %w", err)
	}
	opts, err := ParseOptions(doc)
	if err != nil {
		return nil, nil, err
	}
	return opts, doc, nil
}

// OptionsSource is the slice of the store the cache reads from.
type OptionsSource interface {
	GetProjectOptions(ctx context.Context) ([]byte, error)
}

// Cache lazily loads the options document from the store and keeps it for
// the life of the process. Invalidate drops the cached copy after an admin
// import so the next read picks up the new document.
type Cache struct {
	source OptionsSource
	logger *slog.Logger

	mu   sync.RWMutex
	opts *Options
}

// NewCache returns an options cache reading from the store.
func NewCache(source OptionsSource, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, logger: logger}
}

// Load returns the cached options, reading the store on first use. A store
// without a seeded document yields an empty options set.
func (c *Cache) Load(ctx context.Context) (*Options, error) {
	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()
	if opts != nil {
		return opts, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts != nil {
		return c.opts, nil
	}

	doc, err := c.source.GetProjectOptions(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn("no project options in store, using empty set")
		c.opts = EmptyOptions()
		return c.opts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project options: %w", err)
	}

	opts = &Options{}
	if err := json.Unmarshal(doc, opts); err != nil {
		return nil, fmt.Errorf("decode project options: %w", err)
	}
	c.logger.Info("loaded project options from store", slog.Int("projects", len(opts.Projects)))
	c.opts = opts
	return opts, nil
}

// Invalidate drops the cached document.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.opts = nil
	c.mu.Unlock()
}
