package xtype

import (
	"strings"
)

// ParamInfo describes one formal type parameter as seen by a type.
type ParamInfo struct {
	Name       string
	Constraint Handle
	// Actual is the bound type; NoHandle means the constraint applies.
	Actual Handle
}

// Type returns the actual type, defaulting to the constraint.
func (p ParamInfo) Type() Handle {
	if p.Actual != NoHandle {
		return p.Actual
	}
	return p.Constraint
}

// IsBound reports whether an actual type was supplied.
func (p ParamInfo) IsBound() bool {
	return p.Actual != NoHandle
}

// GenericResolver supplies actual types for formal type references.
type GenericResolver interface {
	ResolveFormal(Identity) (Handle, bool)
}

// ResolverFunc adapts a function to a GenericResolver.
type ResolverFunc func(Identity) (Handle, bool)

func (f ResolverFunc) ResolveFormal(id Identity) (Handle, bool) { return f(id) }

// ParamMap resolves class-level formal types by name.
type ParamMap map[string]ParamInfo

func (m ParamMap) ResolveFormal(id Identity) (Handle, bool) {
	p, ok := id.(TypeParam)
	if !ok {
		return NoHandle, false
	}
	info, ok := m[p.Name]
	if !ok {
		return NoHandle, false
	}
	return info.Type(), true
}

func (m ParamMap) Clone() ParamMap {
	c := make(ParamMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// MethodParams resolves the formal type parameters of one method by
// register index.
type MethodParams struct {
	Method string
	Types  []Handle
}

func (m MethodParams) ResolveFormal(id Identity) (Handle, bool) {
	p, ok := id.(MethodParam)
	if !ok || p.Method != m.Method || p.Index < 0 || p.Index >= len(m.Types) {
		return NoHandle, false
	}
	if m.Types[p.Index] == NoHandle {
		return NoHandle, false
	}
	return m.Types[p.Index], true
}

// Resolvers consults each resolver in turn.
type Resolvers []GenericResolver

func (rs Resolvers) ResolveFormal(id Identity) (Handle, bool) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if h, ok := r.ResolveFormal(id); ok {
			return h, true
		}
	}
	return NoHandle, false
}

// MethodID joins a class and method name into the identity used by
// MethodParam.
func MethodID(class ClassID, method string) string {
	return string(class) + "#" + method
}

func splitMethodID(id string) (ClassID, string) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return "", id
	}
	return ClassID(id[:i]), id[i+1:]
}

// ResolveGenerics substitutes every formal type in h that ctx binds. When
// nothing changes, h itself is returned.
func (e *Engine) ResolveGenerics(h Handle, ctx GenericResolver) Handle {
	return e.resolveGenerics(newSession(), h, ctx)
}

func (e *Engine) resolveGenerics(s *session, h Handle, ctx GenericResolver) Handle {
	if ctx == nil {
		return h
	}
	switch n := e.node(h).(type) {
	case Terminal:
		switch def := n.Def.(type) {
		case TypeParam, MethodParam:
			if t, ok := ctx.ResolveFormal(def); ok && t != NoHandle {
				return t
			}
			return h
		case FormalChild:
			if t, ok := ctx.ResolveFormal(def); ok && t != NoHandle {
				return t
			}
			parent := e.resolveGenerics(s, def.Parent, ctx)
			if parent == def.Parent {
				return h
			}
			return e.formalChildOf(s, parent, def.Name, false)
		}
		return h
	case Pending:
		parent := e.resolveGenerics(s, n.Parent, ctx)
		if parent == n.Parent {
			return h
		}
		return e.formalChildOf(s, parent, n.Name, true)
	case Union, Intersection, Difference:
		l, r := Branches(n)
		l2, r2 := e.resolveGenerics(s, l, ctx), e.resolveGenerics(s, r, ctx)
		if l2 == l && r2 == r {
			return h
		}
		return NewRelational(e.arena, n.Tag(), l2, r2)
	case FormalTypeSequence, Unresolved:
		return h
	}

	old := e.node(h).Children()
	children := make([]Handle, len(old))
	for i, c := range old {
		children[i] = e.resolveGenerics(s, c, ctx)
	}
	return Rebuild(e.arena, h, children)
}

// formalChildOf derives parent.name once parent has been resolved.
func (e *Engine) formalChildOf(s *session, parent Handle, name string, pending bool) Handle {
	if e.IsFormalType(parent) {
		return NewPending(e.arena, parent, name)
	}
	if t, ok := e.genericParam(s, parent, name); ok {
		return t
	}
	if pending {
		return NewPending(e.arena, parent, name)
	}
	return NewFormalChild(e.arena, parent, name)
}

// genericParam returns the actual type of the formal parameter name as
// seen by h.
func (e *Engine) genericParam(s *session, h Handle, name string) (Handle, bool) {
	if ContainsUnresolved(e.arena, h) {
		return NoHandle, false
	}
	info := e.ensure(s, h)
	if info == nil {
		return NoHandle, false
	}
	p, ok := info.Params[name]
	if !ok {
		return NoHandle, false
	}
	return p.Type(), true
}

// GenericParam returns the actual type bound to the named formal
// parameter of h.
func (e *Engine) GenericParam(h Handle, name string) (Handle, bool) {
	return e.genericParam(newSession(), h, name)
}

// AdoptParameters binds the raw class h to params. Relational types adopt
// on both branches and modifiers are kept.
func (e *Engine) AdoptParameters(h Handle, params []Handle) Handle {
	switch n := e.node(h).(type) {
	case Terminal:
		id, ok := n.Def.(ClassID)
		if !ok || len(params) == 0 {
			return h
		}
		def, ok := e.universe.Class(id)
		if !ok || (len(def.Params) == 0 && id != e.universe.Tuple) {
			return h
		}
		return NewParameterized(e.arena, h, params...)
	case Parameterized:
		return h
	case Annotated, AccessQualified, ImmutableQualified:
		inner := UnderlyingOf(n)
		adopted := e.AdoptParameters(inner, params)
		if adopted == inner {
			return h
		}
		children := n.Children()
		children[0] = adopted
		return Rebuild(e.arena, h, children)
	case Union, Intersection:
		l, r := Branches(n)
		l2, r2 := e.AdoptParameters(l, params), e.AdoptParameters(r, params)
		if l2 == l && r2 == r {
			return h
		}
		return NewRelational(e.arena, n.Tag(), l2, r2)
	case Difference:
		l2 := e.AdoptParameters(n.Left, params)
		if l2 == n.Left {
			return h
		}
		return NewDifference(e.arena, l2, n.Right)
	}
	return h
}

// NormalizeParameters fills in every missing type parameter of a class
// type with its declared constraint.
func (e *Engine) NormalizeParameters(h Handle) Handle {
	return e.normalizeParameters(newSession(), h)
}

func (e *Engine) normalizeParameters(s *session, h Handle) Handle {
	switch n := e.node(h).(type) {
	case Terminal, Parameterized:
		id, ok := e.DefiningClass(h)
		if !ok || id == e.universe.Tuple {
			return h
		}
		if t, ok := n.(Terminal); ok {
			if _, isClass := t.Def.(ClassID); !isClass {
				return h
			}
		}
		def, ok := e.universe.Class(id)
		if !ok {
			return h
		}
		have := ParamsOf(e.arena, h)
		if len(have) >= len(def.Params) {
			return h
		}
		params := append([]Handle(nil), have...)
		bound := ParamMap{}
		for i, p := range def.Params {
			if i < len(params) {
				bound[p.Name] = ParamInfo{Name: p.Name, Constraint: p.Constraint, Actual: params[i]}
				continue
			}
			c := e.resolveGenerics(s, e.constraintOrObject(p.Constraint), bound)
			params = append(params, c)
			bound[p.Name] = ParamInfo{Name: p.Name, Constraint: c}
		}
		base := h
		if pt, ok := n.(Parameterized); ok {
			base = pt.Base
		}
		return NewParameterized(e.arena, base, params...)
	case Annotated, AccessQualified, ImmutableQualified:
		inner := UnderlyingOf(n)
		norm := e.normalizeParameters(s, inner)
		children := n.Children()
		children[0] = norm
		return Rebuild(e.arena, h, children)
	case Union, Intersection, Difference:
		l, r := Branches(n)
		l2, r2 := e.normalizeParameters(s, l), e.normalizeParameters(s, r)
		if l2 == l && r2 == r {
			return h
		}
		return NewRelational(e.arena, n.Tag(), l2, r2)
	}
	return h
}

func (e *Engine) object() Handle {
	return NewClass(e.arena, e.universe.Object)
}

func (e *Engine) constraintOrObject(c Handle) Handle {
	if c == NoHandle {
		return e.object()
	}
	return c
}

// Constraint returns the upper bound of a formal type. Non-formal types
// are their own constraint.
func (e *Engine) Constraint(h Handle) Handle {
	return e.constraintOf(newSession(), h)
}

func (e *Engine) constraintOf(s *session, h Handle) Handle {
	switch n := e.node(h).(type) {
	case Terminal:
		switch def := n.Def.(type) {
		case TypeParam:
			cls, ok := e.universe.Class(def.Class)
			if !ok {
				return e.object()
			}
			if i := cls.ParamIndex(def.Name); i >= 0 {
				return e.constraintOrObject(cls.Params[i].Constraint)
			}
			return e.object()
		case MethodParam:
			classID, name := splitMethodID(def.Method)
			if cls, ok := e.universe.Class(classID); ok {
				for _, m := range cls.Methods {
					if m.Name == name && def.Index < len(m.TypeParams) {
						return e.constraintOrObject(m.TypeParams[def.Index].Constraint)
					}
				}
			}
			return e.object()
		case FormalChild:
			return e.childConstraint(s, def.Parent, def.Name)
		}
		return h
	case Pending:
		return e.childConstraint(s, n.Parent, n.Name)
	case AccessQualified, ImmutableQualified, Annotated:
		if e.IsFormalType(h) {
			return e.constraintOf(s, UnderlyingOf(n))
		}
	}
	return h
}

func (e *Engine) childConstraint(s *session, parent Handle, name string) Handle {
	pc := e.constraintOf(s, parent)
	if pc == parent {
		return e.object()
	}
	info := e.ensure(s, pc)
	if info == nil {
		return e.object()
	}
	if p, ok := info.Params[name]; ok {
		return e.constraintOrObject(p.Constraint)
	}
	return e.object()
}

// ResolveTypeParameter finds what formalName binds to when h is matched
// against actual.
func (e *Engine) ResolveTypeParameter(h, actual Handle, formalName string) (Handle, bool) {
	return e.resolveTypeParameter(newSession(), h, actual, formalName)
}

func (e *Engine) resolveTypeParameter(s *session, h, actual Handle, name string) (Handle, bool) {
	switch n := e.node(h).(type) {
	case Terminal:
		if IsFormal(n.Def) && FormalName(n.Def) == name {
			return actual, true
		}
		return NoHandle, false
	case Parameterized:
		return e.resolveParameterizedParam(s, n, actual, name)
	case AccessQualified:
		if q, ok := e.node(actual).(AccessQualified); ok {
			actual = q.Underlying
		}
		return e.resolveTypeParameter(s, n.Underlying, actual, name)
	case ImmutableQualified:
		if q, ok := e.node(actual).(ImmutableQualified); ok {
			actual = q.Underlying
		}
		return e.resolveTypeParameter(s, n.Underlying, actual, name)
	case Annotated:
		if q, ok := e.node(actual).(Annotated); ok && q.Mixin == n.Mixin {
			actual = q.Underlying
		}
		return e.resolveTypeParameter(s, n.Underlying, actual, name)
	case Union:
		if that, ok := e.node(actual).(Union); ok {
			return e.resolveRelationalParam(s, n.Left, n.Right, that.Left, that.Right, name)
		}
		// either leg may answer, but only unambiguously
		t1, ok1 := e.resolveTypeParameter(s, n.Left, actual, name)
		t2, ok2 := e.resolveTypeParameter(s, n.Right, actual, name)
		switch {
		case !ok1:
			return t2, ok2
		case !ok2 || t1 == t2:
			return t1, true
		}
		return NoHandle, false
	case Intersection:
		if that, ok := e.node(actual).(Intersection); ok {
			return e.resolveRelationalParam(s, n.Left, n.Right, that.Left, that.Right, name)
		}
		return NoHandle, false
	case Difference:
		if that, ok := e.node(actual).(Difference); ok {
			return e.resolveTypeParameter(s, n.Left, that.Left, name)
		}
		return NoHandle, false
	}
	return NoHandle, false
}

func (e *Engine) shapeSign(h Handle) string {
	if IsRelational(e.node(h)) {
		return "r"
	}
	return "s"
}

func (e *Engine) resolveRelationalParam(s *session, this1, this2, that1, that2 Handle, name string) (Handle, bool) {
	topThis := e.shapeSign(this1) + e.shapeSign(this2)
	topThat := e.shapeSign(that1) + e.shapeSign(that2)

	if topThis == topThat {
		if t, ok := e.resolveTypeParameter(s, this1, that1, name); ok {
			return t, true
		}
		if t, ok := e.resolveTypeParameter(s, this2, that2, name); ok {
			return t, true
		}
	}

	switch topThis {
	case "rr", "ss":
		if topThat != topThis {
			return NoHandle, false
		}
	case "rs", "sr":
		if topThat == "rr" || topThat == "ss" {
			return NoHandle, false
		}
	}

	if t, ok := e.resolveTypeParameter(s, this1, that2, name); ok {
		return t, true
	}
	return e.resolveTypeParameter(s, this2, that1, name)
}

func (e *Engine) resolveParameterizedParam(s *session, this Parameterized, actual Handle, name string) (Handle, bool) {
	// unroll the actual type down to a parameterized type
	for {
		switch n := e.node(actual).(type) {
		case Parameterized:
		case Annotated:
			if t, ok := e.resolveParameterizedParam(s, this, NewClass(e.arena, n.Mixin), name); ok {
				return t, true
			}
			actual = n.Underlying
			continue
		case AccessQualified, ImmutableQualified:
			actual = UnderlyingOf(n)
			continue
		default:
			// String implements Iterable<Char>, so matching Iterable<Element>
			// against String still resolves Element
			return e.genericParam(s, actual, name)
		}
		break
	}
	that := e.node(actual).(Parameterized)

	idThis, ok1 := e.DefiningClass(this.Base)
	idThat, ok2 := e.DefiningClass(that.Base)
	if !ok1 || !ok2 || !e.isA(s, that.Base, this.Base) {
		return NoHandle, false
	}
	def, ok := e.universe.Class(idThis)
	if !ok {
		return NoHandle, false
	}
	if i := def.ParamIndex(name); i >= 0 {
		if idThis == idThat && i < len(that.Params) {
			return that.Params[i], true
		}
		return e.genericParam(s, actual, name)
	}

	if idThis == idThat {
		for i := 0; i < len(this.Params) && i < len(that.Params); i++ {
			if t, ok := e.resolveTypeParameter(s, this.Params[i], that.Params[i], name); ok {
				return t, true
			}
		}
		return NoHandle, false
	}
	// the formal parameters may sit at different positions
	for i, p := range def.Params {
		if i >= len(this.Params) {
			break
		}
		typeThat, ok := e.genericParam(s, actual, p.Name)
		if !ok {
			continue
		}
		if t, ok := e.resolveTypeParameter(s, this.Params[i], typeThat, name); ok {
			return t, true
		}
	}
	return NoHandle, false
}

// ResolveAutoNarrowing rebinds auto-narrowing references in h relative to
// target. A zero target binds this:class to the declaring class.
func (e *Engine) ResolveAutoNarrowing(h, target Handle) Handle {
	switch n := e.node(h).(type) {
	case Terminal:
		if tc, ok := n.Def.(ThisClass); ok {
			if target != NoHandle {
				return target
			}
			return NewClass(e.arena, tc.Class)
		}
		return h
	case ChildOf:
		return NewVirtualChild(e.arena, e.ResolveAutoNarrowing(n.Parent, target), n.Name, false)
	case VirtualChild:
		parent := e.ResolveAutoNarrowing(n.Parent, target)
		if parent == n.Parent && !n.ThisTyped {
			return h
		}
		return NewVirtualChild(e.arena, parent, n.Name, false)
	case ParentOf:
		child := e.ResolveAutoNarrowing(n.Child, target)
		if vc, ok := e.node(child).(VirtualChild); ok {
			return vc.Parent
		}
		if outer, ok := e.outerClass(child); ok {
			return NewClass(e.arena, outer)
		}
		return Rebuild(e.arena, h, []Handle{child})
	case Union, Intersection, Difference:
		l, r := Branches(n)
		l2, r2 := e.ResolveAutoNarrowing(l, target), e.ResolveAutoNarrowing(r, target)
		if l2 == l && r2 == r {
			return h
		}
		return NewRelational(e.arena, n.Tag(), l2, r2)
	case FormalTypeSequence, Unresolved, Pending:
		return h
	}
	old := e.node(h).Children()
	children := make([]Handle, len(old))
	for i, c := range old {
		children[i] = e.ResolveAutoNarrowing(c, target)
	}
	return Rebuild(e.arena, h, children)
}

// IsAutoNarrowing reports whether h mentions an auto-narrowing reference.
func (e *Engine) IsAutoNarrowing(h Handle) bool {
	return anyNode(e.arena, h, func(n Node) bool {
		switch x := n.(type) {
		case Terminal:
			_, ok := x.Def.(ThisClass)
			return ok
		case ChildOf, ParentOf:
			return true
		case VirtualChild:
			return x.ThisTyped
		}
		return false
	})
}
