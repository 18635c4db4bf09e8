package generator

import (
	"maps"
	"sync"
)

// PathIndex maps namespace -> document slug -> output path. A namespace's
// map is replaced as a whole once its outline is resolved, and rewrites
// only ever see a copy.
type PathIndex struct {
	mu sync.RWMutex
	ns map[string]map[string]string
}

func NewPathIndex() *PathIndex {
	return &PathIndex{ns: make(map[string]map[string]string)}
}

// Set replaces the paths recorded for namespace.
func (p *PathIndex) Set(namespace string, paths map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ns[namespace] = maps.Clone(paths)
}

// Snapshot returns a copy of the paths recorded for namespace.
func (p *PathIndex) Snapshot(namespace string) map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.ns[namespace])
}

func (p *PathIndex) Delete(namespace string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ns, namespace)
}
