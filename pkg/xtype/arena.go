package xtype

import (
	"fmt"
	"sort"
	"sync"
)

// Arena interns nodes and hands out stable handles for them. Interning a
// structurally equal node twice yields the same handle.
type Arena interface {
	Intern(Node) Handle
	Lookup(Handle) Node
	Len() int
	// Register marks h and everything it refers to for serialization.
	Register(Handle) error
	// Registered returns the registered handles in ascending order.
	Registered() []Handle
}

// MemArena is an in-memory Arena safe for concurrent use.
type MemArena struct {
	mu         sync.RWMutex
	nodes      []Node
	index      map[string]Handle
	registered map[Handle]struct{}
}

var _ Arena = (*MemArena)(nil)

func NewArena() *MemArena {
	return &MemArena{
		// slot zero stays empty so that NoHandle never resolves
		nodes:      []Node{nil},
		index:      map[string]Handle{},
		registered: map[Handle]struct{}{},
	}
}

func (a *MemArena) Intern(n Node) Handle {
	if n == nil {
		panic("xtype: intern of nil node")
	}
	key := string(appendNode(nil, n, identityRef))

	a.mu.RLock()
	h, ok := a.index[key]
	a.mu.RUnlock()
	if ok {
		return h
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.index[key]; ok {
		return h
	}
	for _, c := range n.Children() {
		if c == NoHandle || int(c) >= len(a.nodes) {
			panic(fmt.Sprintf("xtype: %s refers to unknown handle %d", n.Tag(), c))
		}
	}
	h = Handle(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.index[key] = h
	return h
}

func (a *MemArena) Lookup(h Handle) Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if h == NoHandle || int(h) >= len(a.nodes) {
		panic(fmt.Sprintf("xtype: lookup of unknown handle %d", h))
	}
	return a.nodes[h]
}

func (a *MemArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes) - 1
}

func (a *MemArena) Register(h Handle) error {
	if ContainsUnresolved(a, h) {
		return fmt.Errorf("register %d: %w", h, ErrUnresolved)
	}
	var walk func(Handle)
	seen := map[Handle]bool{}
	walk = func(h Handle) {
		if seen[h] {
			return
		}
		seen[h] = true
		for _, c := range a.Lookup(h).Children() {
			walk(c)
		}
	}
	walk(h)

	a.mu.Lock()
	defer a.mu.Unlock()
	for h := range seen {
		a.registered[h] = struct{}{}
	}
	return nil
}

func (a *MemArena) Registered() []Handle {
	a.mu.RLock()
	hs := make([]Handle, 0, len(a.registered))
	for h := range a.registered {
		hs = append(hs, h)
	}
	a.mu.RUnlock()
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// ContainsUnresolved reports whether h or anything it refers to is an
// Unresolved placeholder.
func ContainsUnresolved(a Arena, h Handle) bool {
	return anyNode(a, h, func(n Node) bool {
		_, ok := n.(Unresolved)
		return ok
	})
}

// ContainsPending reports whether h refers to a deferred formal child.
func ContainsPending(a Arena, h Handle) bool {
	return anyNode(a, h, func(n Node) bool {
		_, ok := n.(Pending)
		return ok
	})
}

// ContainsFormal reports whether h mentions any formal type.
func ContainsFormal(a Arena, h Handle) bool {
	return anyNode(a, h, func(n Node) bool {
		switch x := n.(type) {
		case Terminal:
			return IsFormal(x.Def)
		case Pending:
			return true
		}
		return false
	})
}

func anyNode(a Arena, h Handle, pred func(Node) bool) bool {
	n := a.Lookup(h)
	if pred(n) {
		return true
	}
	for _, c := range n.Children() {
		if anyNode(a, c, pred) {
			return true
		}
	}
	return false
}

// Rebuild interns n with its children replaced. It returns h unchanged when
// no child differs.
func Rebuild(a Arena, h Handle, children []Handle) Handle {
	n := a.Lookup(h)
	old := n.Children()
	if len(old) != len(children) {
		panic(fmt.Sprintf("xtype: %s expects %d children, got %d", n.Tag(), len(old), len(children)))
	}
	changed := false
	for i := range old {
		if old[i] != children[i] {
			changed = true
			break
		}
	}
	if !changed {
		return h
	}
	return a.Intern(n.withChildren(children))
}
