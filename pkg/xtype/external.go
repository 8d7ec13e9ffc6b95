package xtype

import (
	"strings"

	"github.com/pkg/errors"
)

// OpTable is the runtime operation table registered for a class. The engine
// only locates it.
type OpTable any

// Capabilities maps defining classes to their operation tables.
type Capabilities interface {
	Lookup(ClassID) (OpTable, bool)
}

// CapabilityMap is a static Capabilities.
type CapabilityMap map[ClassID]OpTable

func (m CapabilityMap) Lookup(id ClassID) (OpTable, bool) {
	t, ok := m[id]
	return t, ok
}

// OpTable locates the operation table for the class h resolves to.
func (e *Engine) OpTable(h Handle) (OpTable, error) {
	if ContainsUnresolved(e.arena, h) {
		return nil, ErrUnresolved
	}
	id, ok := e.DefiningClass(h)
	if !ok {
		return nil, errors.Wrapf(ErrNoSingleClass, "locating operations for %s", e.Format(h))
	}
	table, ok := e.caps.Lookup(id)
	if !ok {
		return nil, errors.Errorf("no operations registered for %s", id)
	}
	return table, nil
}

// Linker decides whether conditionally included declarations are present.
type Linker interface {
	IsPresent(condition string) bool
}

// AllPresent treats every condition as satisfied.
type AllPresent struct{}

func (AllPresent) IsPresent(string) bool { return true }

// Conditions is a Linker over a fixed set of defined names. A condition
// is a name, optionally prefixed with "!" for negation; several
// conditions joined with "&" must all hold.
type Conditions map[string]bool

func (c Conditions) IsPresent(cond string) bool {
	for _, part := range strings.Split(cond, "&") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, neg := strings.CutPrefix(part, "!"); neg {
			if c[strings.TrimSpace(name)] {
				return false
			}
		} else if !c[part] {
			return false
		}
	}
	return true
}

func (e *Engine) present(cond string) bool {
	return cond == "" || e.linker.IsPresent(cond)
}
