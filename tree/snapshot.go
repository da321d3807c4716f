package tree

import "slices"

// Snapshot is a consistent, detached copy of the whole store. Every context
// appears once; Roots, Contexts and the Children links all point at the same
// copies.
type Snapshot struct {
	Roots    []*Context // root index, insertion order
	Contexts []*Context // every context, arrival order
}

// Get returns a snapshot node by id.
func (s Snapshot) Get(id string) (*Context, bool) {
	for _, c := range s.Contexts {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Snapshot copies the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copies := make(map[string]*Context, len(s.all))
	snap := Snapshot{
		Contexts: make([]*Context, 0, len(s.order)),
		Roots:    make([]*Context, 0, len(s.roots)),
	}

	for _, id := range s.order {
		cp := shallowCopy(s.all[id])
		copies[id] = cp
		snap.Contexts = append(snap.Contexts, cp)
	}
	for _, id := range s.order {
		src := s.all[id]
		if len(src.Children) == 0 {
			continue
		}
		dst := copies[id]
		dst.Children = make([]*Context, len(src.Children))
		for i, child := range src.Children {
			dst.Children[i] = copies[child.ID]
		}
	}
	for _, r := range s.roots {
		snap.Roots = append(snap.Roots, copies[r.ID])
	}

	return snap
}

// Get returns a copy of the context and its descendants.
func (s *Store) Get(id string) (*Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.all[id]
	if !ok {
		return nil, false
	}
	return deepCopy(c), true
}

// Roots returns copies of the root-level contexts, with descendants, in
// insertion order.
func (s *Store) Roots() []*Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := make([]*Context, len(s.roots))
	for i, r := range s.roots {
		roots[i] = deepCopy(r)
	}
	return roots
}

// shallowCopy copies c without its children. Raw JSON values are shared;
// the store replaces them rather than writing into them.
func shallowCopy(c *Context) *Context {
	cp := *c
	cp.Events = slices.Clone(c.Events)
	cp.Children = nil
	return &cp
}

func deepCopy(c *Context) *Context {
	cp := shallowCopy(c)
	if len(c.Children) > 0 {
		cp.Children = make([]*Context, len(c.Children))
		for i, child := range c.Children {
			cp.Children[i] = deepCopy(child)
		}
	}
	return cp
}
