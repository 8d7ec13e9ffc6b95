package xtype

import (
	"sort"
)

// Progress is how far a TypeInfo got before it was returned.
type Progress uint8

const (
	// Incomplete infos were built while something they depend on was
	// still being built. They are never cached.
	Incomplete Progress = iota
	Complete
)

func (p Progress) String() string {
	if p == Complete {
		return "complete"
	}
	return "incomplete"
}

func (p Progress) worst(o Progress) Progress {
	if o < p {
		return o
	}
	return p
}

// ClassSet is a set of class identities.
type ClassSet map[ClassID]struct{}

func (c ClassSet) Has(id ClassID) bool {
	_, ok := c[id]
	return ok
}

func (c ClassSet) Add(ids ...ClassID) {
	for _, id := range ids {
		c[id] = struct{}{}
	}
}

func (c ClassSet) addAll(o ClassSet) {
	for id := range o {
		c[id] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (c ClassSet) Sorted() []ClassID {
	ids := make([]ClassID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c ClassSet) intersect(o ClassSet) ClassSet {
	out := ClassSet{}
	for id := range c {
		if o.Has(id) {
			out.Add(id)
		}
	}
	return out
}

func (c ClassSet) union(o ClassSet) ClassSet {
	out := ClassSet{}
	out.addAll(c)
	out.addAll(o)
	return out
}

// TypeInfo is the flattened view of a type: its parameter bindings, every
// property and method it has, and the classes that contributed them.
type TypeInfo struct {
	Type Handle
	// Class is the defining class, empty for relational types.
	Class  ClassID
	Format Format
	Access Access

	Params     ParamMap
	Properties map[string]*PropertyInfo
	// Methods are keyed by Signature.Key.
	Methods map[string]*MethodInfo

	Extended     ClassSet
	Implemented  ClassSet
	Incorporated ClassSet
	Implicit     ClassSet

	Progress Progress
}

func newTypeInfo(h Handle) *TypeInfo {
	return &TypeInfo{
		Type:         h,
		Params:       ParamMap{},
		Properties:   map[string]*PropertyInfo{},
		Methods:      map[string]*MethodInfo{},
		Extended:     ClassSet{},
		Implemented:  ClassSet{},
		Incorporated: ClassSet{},
		Implicit:     ClassSet{},
		Progress:     Complete,
	}
}

func (t *TypeInfo) IsComplete() bool {
	return t.Progress == Complete
}

// retype returns a shallow copy of t describing h.
func (t *TypeInfo) retype(h Handle) *TypeInfo {
	c := *t
	c.Type = h
	return &c
}

// Method returns the method chain for a signature key.
func (t *TypeInfo) Method(key string) (*MethodInfo, bool) {
	m, ok := t.Methods[key]
	return m, ok
}

// MethodBySignature returns the method chain for sig.
func (t *TypeInfo) MethodBySignature(sig Signature) (*MethodInfo, bool) {
	return t.Method(sig.Key())
}

// MethodsNamed returns every method called name, ordered by key.
func (t *TypeInfo) MethodsNamed(name string) []*MethodInfo {
	var ms []*MethodInfo
	for _, key := range t.MethodKeys() {
		if m := t.Methods[key]; m.Signature().Name == name {
			ms = append(ms, m)
		}
	}
	return ms
}

// MethodKeys returns the method keys in ascending order.
func (t *TypeInfo) MethodKeys() []string {
	keys := make([]string, 0, len(t.Methods))
	for k := range t.Methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *TypeInfo) Property(name string) (*PropertyInfo, bool) {
	p, ok := t.Properties[name]
	return p, ok
}

// PropertyNames returns the property names in ascending order.
func (t *TypeInfo) PropertyNames() []string {
	names := make([]string, 0, len(t.Properties))
	for n := range t.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Contributors returns every class that contributed to t.
func (t *TypeInfo) Contributors() ClassSet {
	all := ClassSet{}
	all.addAll(t.Extended)
	all.addAll(t.Implemented)
	all.addAll(t.Incorporated)
	all.addAll(t.Implicit)
	return all
}

// clone returns a copy of t describing h whose maps and sets may be
// modified independently.
func (t *TypeInfo) clone(h Handle) *TypeInfo {
	c := newTypeInfo(h)
	c.Class, c.Format, c.Access, c.Progress = t.Class, t.Format, t.Access, t.Progress
	for k, v := range t.Params {
		c.Params[k] = v
	}
	for k, v := range t.Properties {
		c.Properties[k] = v
	}
	for k, v := range t.Methods {
		c.Methods[k] = v
	}
	c.Extended.addAll(t.Extended)
	c.Implemented.addAll(t.Implemented)
	c.Incorporated.addAll(t.Incorporated)
	c.Implicit.addAll(t.Implicit)
	return c
}

func visibleAt(member, view Access) bool {
	if member == Struct {
		return view == Struct
	}
	return member <= view
}

// LimitAccess returns the view of t through access. A struct view keeps
// only type parameters and field-backed properties.
func (t *TypeInfo) LimitAccess(access Access) *TypeInfo {
	c := t.retype(t.Type)
	c.Access = access
	c.Properties = map[string]*PropertyInfo{}
	c.Methods = map[string]*MethodInfo{}

	if access == Struct {
		for name, p := range t.Properties {
			if p.IsTypeParam() || p.RequiresField() {
				c.Properties[name] = p
			}
		}
		return c
	}
	for name, p := range t.Properties {
		if p.IsTypeParam() || visibleAt(p.Effective.RefAccess, access) {
			c.Properties[name] = p
		}
	}
	for key, m := range t.Methods {
		if visibleAt(m.Access(), access) {
			c.Methods[key] = m
		}
	}
	return c
}
