package slo

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefinitionSource supplies the persisted SLO definitions the registry
// caches.
type DefinitionSource interface {
	ListDefinitions(ctx context.Context) ([]SLODefinition, error)
}

type registryKey struct {
	service string
	metric  MetricKind
}

// Registry holds SLO definitions in memory. Reads are lock-free;
// Load replaces the whole snapshot atomically, so steady-state lookups
// never contend with a reload.
type Registry struct {
	source DefinitionSource
	logger logrus.FieldLogger
	snap   atomic.Pointer[map[registryKey]SLODefinition]
}

// NewRegistry creates a registry backed by the given source. Call Load
// before the first Get.
func NewRegistry(source DefinitionSource, logger logrus.FieldLogger) *Registry {
	r := &Registry{source: source, logger: logger}
	empty := make(map[registryKey]SLODefinition)
	r.snap.Store(&empty)
	return r
}

// Load re-reads all definitions from the source and swaps the snapshot.
func (r *Registry) Load(ctx context.Context) error {
	defs, err := r.source.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("load slo definitions: %w", err)
	}

	snap := make(map[registryKey]SLODefinition, len(defs))
	for _, def := range defs {
		snap[registryKey{def.Service, def.Metric}] = def
	}

	r.snap.Store(&snap)
	r.logger.WithField("count", len(defs)).Info("loaded slo definitions")
	return nil
}

// Get returns the definition for a (service, metric) pair, or
// ErrNotFound.
func (r *Registry) Get(service string, metric MetricKind) (SLODefinition, error) {
	snap := *r.snap.Load()
	def, ok := snap[registryKey{service, metric}]
	if !ok {
		return SLODefinition{}, fmt.Errorf("%s/%s: %w", service, metric, ErrNotFound)
	}
	return def, nil
}

// All returns every definition in the current snapshot, ordered by
// service then metric so evaluation order is stable.
func (r *Registry) All() []SLODefinition {
	snap := *r.snap.Load()
	defs := make([]SLODefinition, 0, len(snap))
	for _, def := range snap {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Service != defs[j].Service {
			return defs[i].Service < defs[j].Service
		}
		return defs[i].Metric < defs[j].Metric
	})
	return defs
}

// Size returns the number of definitions in the current snapshot.
func (r *Registry) Size() int {
	return len(*r.snap.Load())
}
