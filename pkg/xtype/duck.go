package xtype

import "sort"

// duckType checks a value against an interface it does not declare by
// looking for every method the interface requires.
func (e *Engine) duckType(s *session, value, target Handle) Relation {
	if e.Category(target) != CategoryInterface {
		return Incompatible
	}
	if len(e.missingSignatures(s, target, value)) == 0 {
		return IsAWeak
	}
	return Incompatible
}

// MissingSignatures lists what a value of type value lacks to satisfy the
// interface target structurally, ordered by key.
func (e *Engine) MissingSignatures(target, value Handle) []Signature {
	return e.missingSignatures(newSession(), target, value)
}

func (e *Engine) missingSignatures(s *session, target, value Handle) []Signature {
	switch n := e.node(target).(type) {
	case Union:
		m1 := e.missingSignatures(s, n.Left, value)
		if len(m1) == 0 {
			return nil
		}
		m2 := e.missingSignatures(s, n.Right, value)
		if len(m2) == 0 {
			return nil
		}
		return sortSignatures(append(m1, m2...))
	case Intersection:
		return sortSignatures(append(e.missingSignatures(s, n.Left, value), e.missingSignatures(s, n.Right, value)...))
	}

	info := e.ensure(s, target)
	if info == nil {
		return []Signature{{Name: e.Format(target)}}
	}
	var missing []Signature
	for _, name := range info.PropertyNames() {
		p := info.Properties[name]
		if p.IsTypeParam() {
			if _, ok := e.genericParam(s, value, name); !ok {
				missing = append(missing, Signature{Name: name})
			}
			continue
		}
		if p.Effective.Static {
			continue
		}
		if !e.containsProperty(s, value, name, p.Type()) {
			missing = append(missing, Signature{Name: name, Returns: []Handle{p.Type()}})
		}
	}
	for _, key := range info.MethodKeys() {
		m := info.Methods[key]
		head := m.Head()
		if head.Static || head.Impl == Implicit || m.HasDefault() || head.Access != Public {
			continue
		}
		sig := e.narrowSignature(head.Signature, value)
		if !e.containsSubstitutableMethod(s, value, sig) {
			missing = append(missing, sig)
		}
	}
	return sortSignatures(missing)
}

func (e *Engine) narrowSignature(sig Signature, target Handle) Signature {
	out := Signature{Name: sig.Name}
	for _, p := range sig.Params {
		out.Params = append(out.Params, e.ResolveAutoNarrowing(p, target))
	}
	for _, r := range sig.Returns {
		out.Returns = append(out.Returns, e.ResolveAutoNarrowing(r, target))
	}
	return out
}

func sortSignatures(sigs []Signature) []Signature {
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Key() < sigs[j].Key() })
	return sigs
}

// ContainsSubstitutableMethod reports whether a value of type h has a
// method that can stand in for sig.
func (e *Engine) ContainsSubstitutableMethod(h Handle, sig Signature) bool {
	return e.containsSubstitutableMethod(newSession(), h, sig)
}

func (e *Engine) containsSubstitutableMethod(s *session, h Handle, sig Signature) bool {
	switch n := e.node(h).(type) {
	case Union:
		return e.containsSubstitutableMethod(s, n.Left, sig) && e.containsSubstitutableMethod(s, n.Right, sig)
	case Intersection:
		return e.containsSubstitutableMethod(s, n.Left, sig) || e.containsSubstitutableMethod(s, n.Right, sig)
	case Difference:
		return e.containsSubstitutableMethod(s, n.Left, sig) && !e.containsSubstitutableMethod(s, n.Right, sig)
	case Annotated:
		return e.containsSubstitutableMethod(s, e.annotationType(n), sig) ||
			e.containsSubstitutableMethod(s, n.Underlying, sig)
	}

	info := e.ensure(s, h)
	if info == nil {
		return false
	}
	if m, ok := info.MethodBySignature(sig); ok && !m.Head().Static {
		return true
	}
	for _, m := range info.MethodsNamed(sig.Name) {
		if m.Head().Static {
			continue
		}
		if e.isSubstitutable(s, m.Signature(), sig) {
			return true
		}
	}
	return false
}

// isSubstitutable reports whether a method with signature have can be
// called wherever want is expected: parameters may widen and returns may
// narrow.
func (e *Engine) isSubstitutable(s *session, have, want Signature) bool {
	if have.Name != want.Name || len(have.Params) != len(want.Params) || len(have.Returns) != len(want.Returns) {
		return false
	}
	for i := range want.Params {
		if !e.isA(s, want.Params[i], have.Params[i]) {
			return false
		}
	}
	for i := range want.Returns {
		if !e.isA(s, have.Returns[i], want.Returns[i]) {
			return false
		}
	}
	return true
}

func (e *Engine) containsProperty(s *session, h Handle, name string, typ Handle) bool {
	switch n := e.node(h).(type) {
	case Union:
		return e.containsProperty(s, n.Left, name, typ) && e.containsProperty(s, n.Right, name, typ)
	case Intersection:
		return e.containsProperty(s, n.Left, name, typ) || e.containsProperty(s, n.Right, name, typ)
	case Difference:
		return e.containsProperty(s, n.Left, name, typ) && !e.containsProperty(s, n.Right, name, typ)
	}
	info := e.ensure(s, h)
	if info == nil {
		return false
	}
	p, ok := info.Properties[name]
	return ok && !p.IsTypeParam() && e.isA(s, p.Type(), typ)
}
