package tiercache

import "sync"

// depGraph maps a dependency key to the set of keys that declared it.
// Cascades are one level: dependents of dependents are not re-visited
// unless they re-registered the deleted key themselves.
type depGraph struct {
	mu   sync.RWMutex
	deps map[string]map[string]struct{}
}

func newDepGraph() *depGraph {
	return &depGraph{deps: make(map[string]map[string]struct{})}
}

// register records key as a dependent of each dep. A self-reference is
// permitted; the cascade treats it as a no-op.
func (g *depGraph) register(key string, deps []string) {
	if len(deps) == 0 {
		return
	}
	g.mu.Lock()
	for _, d := range deps {
		set, ok := g.deps[d]
		if !ok {
			set = make(map[string]struct{})
			g.deps[d] = set
		}
		set[key] = struct{}{}
	}
	g.mu.Unlock()
}

// unregister removes key's reverse edges for the given deps.
func (g *depGraph) unregister(key string, deps []string) {
	if len(deps) == 0 {
		return
	}
	g.mu.Lock()
	for _, d := range deps {
		if set, ok := g.deps[d]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(g.deps, d)
			}
		}
	}
	g.mu.Unlock()
}

// dependents returns a copy of the keys depending on key.
func (g *depGraph) dependents(key string) []string {
	g.mu.RLock()
	set := g.deps[key]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	g.mu.RUnlock()
	return out
}

// drop removes key's own dependent set after a cascade has run.
func (g *depGraph) drop(key string) {
	g.mu.Lock()
	delete(g.deps, key)
	g.mu.Unlock()
}

func (g *depGraph) clear() {
	g.mu.Lock()
	g.deps = make(map[string]map[string]struct{})
	g.mu.Unlock()
}
