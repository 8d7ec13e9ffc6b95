package xtype

import (
	"fmt"
	"strconv"
	"strings"
)

// Implementation is how a method body provides behavior.
type Implementation uint8

const (
	// Implicit bodies come from the implicit classes and mixin targets.
	Implicit Implementation = iota
	Declared
	Abstract
	Delegating
	Field
	Native
	ActualCode
	Default
)

func (i Implementation) String() string {
	switch i {
	case Implicit:
		return "implicit"
	case Declared:
		return "declared"
	case Abstract:
		return "abstract"
	case Delegating:
		return "delegating"
	case Field:
		return "field"
	case Native:
		return "native"
	case ActualCode:
		return "code"
	case Default:
		return "default"
	}
	return fmt.Sprintf("Implementation(%d)", i)
}

// IsAbstract reports whether the implementation has no behavior of its own.
func (i Implementation) IsAbstract() bool {
	return i == Implicit || i == Declared || i == Abstract
}

// Signature identifies a method by name, parameter and return types.
type Signature struct {
	Name    string
	Params  []Handle
	Returns []Handle
}

// Key is the comparable form of s: two signatures are the same method
// exactly when their keys are equal.
func (s Signature) Key() string {
	var b strings.Builder
	b.WriteString(s.Name)
	writeHandles := func(hs []Handle) {
		b.WriteByte('(')
		for i, h := range hs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatUint(uint64(h), 10))
		}
		b.WriteByte(')')
	}
	writeHandles(s.Params)
	b.WriteString("->")
	writeHandles(s.Returns)
	return b.String()
}

// MethodBody is one class's contribution to a method.
type MethodBody struct {
	Class     ClassID
	Signature Signature
	Impl      Implementation
	Access    Access
	Static    bool
	// Target is the property a Delegating body forwards to.
	Target string
}

func (b MethodBody) identity() string {
	return string(b.Class) + "/" + b.Signature.Key()
}

func (b MethodBody) IsAbstract() bool {
	return b.Impl.IsAbstract()
}

func (b MethodBody) String() string {
	if b.Impl == Delegating {
		return fmt.Sprintf("%s %s -> %s", b.Impl, b.Class, b.Target)
	}
	return fmt.Sprintf("%s %s", b.Impl, b.Class)
}

// MethodInfo is the resolved chain of bodies for one signature, most
// specific first. A MethodInfo is never modified once built.
type MethodInfo struct {
	Bodies []MethodBody
}

func NewMethodInfo(bodies ...MethodBody) *MethodInfo {
	return &MethodInfo{Bodies: bodies}
}

// Head returns the most specific body.
func (m *MethodInfo) Head() MethodBody {
	return m.Bodies[0]
}

func (m *MethodInfo) Signature() Signature {
	return m.Head().Signature
}

func (m *MethodInfo) Access() Access {
	return m.Head().Access
}

// IsAbstract reports whether the chain is a lone abstract body.
func (m *MethodInfo) IsAbstract() bool {
	return len(m.Bodies) == 1 && m.Bodies[0].IsAbstract()
}

// IsFunction reports whether the chain is a lone static body.
func (m *MethodInfo) IsFunction() bool {
	return len(m.Bodies) == 1 && m.Bodies[0].Static
}

// HasDefault reports whether the chain ends in a default body.
func (m *MethodInfo) HasDefault() bool {
	return len(m.Bodies) > 0 && m.Bodies[len(m.Bodies)-1].Impl == Default
}

func (m *MethodInfo) allAbstract() bool {
	for _, b := range m.Bodies {
		if !b.IsAbstract() {
			return false
		}
	}
	return true
}

func (m *MethodInfo) anyExplicit() bool {
	for _, b := range m.Bodies {
		if b.Impl != Implicit {
			return true
		}
	}
	return false
}

// AppendDefault adds a default body at the end of the chain unless the
// chain already has one.
func (m *MethodInfo) AppendDefault(b MethodBody) *MethodInfo {
	if m.HasDefault() {
		return m
	}
	bodies := make([]MethodBody, 0, len(m.Bodies)+1)
	bodies = append(bodies, m.Bodies...)
	return &MethodInfo{Bodies: append(bodies, b)}
}

// AppendChain layers the less specific chain that beneath m.
func (m *MethodInfo) AppendChain(that *MethodInfo) *MethodInfo {
	if that == nil || len(that.Bodies) == 0 {
		return m
	}
	if that.allAbstract() {
		if m.allAbstract() && that.anyExplicit() {
			return that
		}
		return m
	}
	if m.allAbstract() {
		return that
	}

	var (
		bodies []MethodBody
		dflt   *MethodBody
		seen   = map[string]bool{}
	)
	add := func(chain []MethodBody) {
		for i := range chain {
			b := chain[i]
			if b.Impl == Default {
				if dflt == nil {
					dflt = &b
				}
				continue
			}
			if b.IsAbstract() || seen[b.identity()] {
				continue
			}
			seen[b.identity()] = true
			bodies = append(bodies, b)
		}
	}
	add(m.Bodies)
	add(that.Bodies)
	if dflt != nil {
		bodies = append(bodies, *dflt)
	}
	return &MethodInfo{Bodies: bodies}
}

// AppendBody layers a single less specific body beneath m.
func (m *MethodInfo) AppendBody(b MethodBody) *MethodInfo {
	if b.Impl == Default {
		return m.AppendDefault(b)
	}
	return m.AppendChain(NewMethodInfo(b))
}
