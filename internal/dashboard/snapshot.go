package dashboard

import (
	"context"
	"sort"
	"sync"
)

// Snapshots keeps the latest rendered view of every panel so the HTTP API
// can serve it.
type Snapshots struct {
	mu    sync.RWMutex
	views map[string]any
}

func NewSnapshots() *Snapshots {
	return &Snapshots{views: make(map[string]any)}
}

func (s *Snapshots) Get(panel string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[panel]
	return v, ok
}

// Panels lists the panels that rendered at least once.
func (s *Snapshots) Panels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.views))
	for k := range s.views {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshots) put(panel string, v any) {
	s.mu.Lock()
	s.views[panel] = v
	s.mu.Unlock()
}

// SnapshotRenderer returns a Renderer that stores views in s.
func SnapshotRenderer[V any](s *Snapshots) Renderer[V] {
	return RendererFunc[V](func(_ context.Context, v View[V]) {
		s.put(v.Panel, v)
	})
}
