package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tablemap/internal/record"
)

// ── Source ──────────────────────────────────────────────────
// A Source fetches records from an external system. Implementations
// register themselves from init() — one file per source type.

// Config is an opaque configuration map parsed per source type.
type Config map[string]any

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
	Help     string `json:"help,omitempty"`
}

// Spec describes a source type: its label and config fields.
type Spec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() Spec

	// Read streams records from the source into a channel. The channel
	// is closed when all records have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context, cfg Config) (<-chan *record.Record, <-chan error)
}

// ── Registry ───────────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// Register registers a source by its spec type.
func Register(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// Get returns a registered source by type, or an error if not found.
func Get(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// List returns the specs of all registered sources, sorted by type.
func List() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ReadAll drains a source into a slice, preserving arrival order.
func ReadAll(ctx context.Context, s Source, cfg Config) ([]*record.Record, error) {
	out, errCh := s.Read(ctx, cfg)
	var recs []*record.Record
	for rec := range out {
		recs = append(recs, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	// A cancelled context makes sources stop mid-stream without reporting
	// an error; callers must not mistake the partial batch for a full one.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}
