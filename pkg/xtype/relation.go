package xtype

import (
	"fmt"
	"math"
)

// Relation is the outcome of an assignability check. The values are
// ordered from best to worst.
type Relation uint8

const (
	IsA Relation = iota
	// IsAWeak holds when assignment is allowed through variance or
	// structural matching rather than declared ancestry.
	IsAWeak
	Incompatible
)

func (r Relation) String() string {
	switch r {
	case IsA:
		return "IS_A"
	case IsAWeak:
		return "IS_A_WEAK"
	case Incompatible:
		return "INCOMPATIBLE"
	}
	return fmt.Sprintf("Relation(%d)", r)
}

// Best combines two relations where either suffices.
func (r Relation) Best(o Relation) Relation {
	if o < r {
		return o
	}
	return r
}

// Worst combines two relations where both are required.
func (r Relation) Worst(o Relation) Relation {
	if o > r {
		return o
	}
	return r
}

// Relation computes how a value of type left relates to the type right.
func (e *Engine) Relation(left, right Handle) (Relation, error) {
	if ContainsUnresolved(e.arena, left) || ContainsUnresolved(e.arena, right) {
		return Incompatible, ErrUnresolved
	}
	return e.relation(newSession(), left, right), nil
}

// IsA reports whether a value of left is assignable to right.
func (e *Engine) IsA(left, right Handle) bool {
	rel, err := e.Relation(left, right)
	return err == nil && rel != Incompatible
}

func (e *Engine) isA(s *session, left, right Handle) bool {
	return e.relation(s, left, right) != Incompatible
}

func (e *Engine) isObject(h Handle) bool {
	t, ok := e.node(h).(Terminal)
	return ok && t.Def == e.universe.Object
}

func (e *Engine) relation(s *session, left, right Handle) Relation {
	if left == right || e.isObject(right) {
		return IsA
	}
	key := relKey{left, right}
	if rel, ok := e.relations.Get(key); ok {
		return rel
	}
	if order, ok := s.relating[key]; ok {
		// re-entrant request for the same pair
		s.cycles++
		s.floor = min(s.floor, order)
		return Incompatible
	}
	s.started++
	s.relating[key] = s.started
	cycles, placeholders := s.cycles, s.placeholders
	rel := e.calculateRelation(s, left, right)
	delete(s.relating, key)
	// an answer that saw an assumed relation or an unfinished TypeInfo
	// holds for this request only
	if s.cycles == cycles && s.placeholders == placeholders {
		e.relations.Add(key, rel)
	}
	return rel
}

func (e *Engine) calculateRelation(s *session, left, right Handle) Relation {
	a := e.arena
	if ContainsUnresolved(a, left) || ContainsUnresolved(a, right) {
		return Incompatible
	}

	if IsAccessSpecified(a, left) || IsAccessSpecified(a, right) {
		accLeft, accRight := AccessOf(a, left), AccessOf(a, right)
		switch accRight {
		case Struct:
			if accLeft != Struct {
				return Incompatible
			}
		default:
			if accLeft == Struct || accLeft < accRight {
				return Incompatible
			}
		}
		return e.relation(s, StripAccess(a, left), StripAccess(a, right))
	}

	if e.IsImmutabilitySpecified(right) {
		if !e.IsImmutable(left) {
			return Incompatible
		}
		return e.relation(s, left, StripImmutable(a, right))
	}
	if e.IsImmutabilitySpecified(left) {
		return e.relation(s, StripImmutable(a, left), right)
	}

	ln, rn := e.node(left), e.node(right)

	// a union value is split before a union target, so that A+B is
	// assignable to B+A; the remaining cases split the target first
	if u, ok := ln.(Union); ok {
		return e.relation(s, u.Left, right).Worst(e.relation(s, u.Right, right))
	}
	if i, ok := rn.(Intersection); ok {
		return e.relation(s, left, i.Left).Worst(e.relation(s, left, i.Right))
	}
	if u, ok := rn.(Union); ok {
		return e.relation(s, left, u.Left).Best(e.relation(s, left, u.Right))
	}
	if i, ok := ln.(Intersection); ok {
		rel := e.relation(s, i.Left, right).Best(e.relation(s, i.Right, right))
		if rel == Incompatible {
			rel = e.duckType(s, left, right)
		}
		return rel
	}

	if an, ok := rn.(Annotated); ok {
		if !e.incorporates(s, left, an.Mixin) {
			return Incompatible
		}
		return e.relation(s, left, an.Underlying)
	}
	if an, ok := ln.(Annotated); ok {
		rel := e.relation(s, an.Underlying, right)
		if rel != IsA {
			rel = rel.Best(e.relation(s, e.annotationType(an), right))
		}
		return rel
	}

	if e.IsAutoNarrowing(left) || e.IsAutoNarrowing(right) {
		l2, r2 := e.ResolveAutoNarrowing(left, NoHandle), e.ResolveAutoNarrowing(right, NoHandle)
		if l2 != left || r2 != right {
			return e.relation(s, l2, r2)
		}
	}

	if e.IsFormalType(left) {
		if e.IsFormalType(right) && e.congruentFormals(left, right) {
			return IsA
		}
		c := e.constraintOf(s, left)
		if c == left {
			return Incompatible
		}
		return e.relation(s, c, right)
	}
	if e.IsFormalType(right) {
		return Incompatible
	}

	switch n := ln.(type) {
	case FormalTypeSequence:
		return Incompatible
	case Difference:
		// every value of A-B is an A
		if rel := e.relation(s, n.Left, right); rel != Incompatible {
			return rel
		}
		return e.duckType(s, left, right)
	}
	switch rn.(type) {
	case FormalTypeSequence:
		// a type sequence is satisfied by any tuple of types
		if id, ok := e.DefiningClass(left); ok && id == e.universe.Tuple {
			return IsAWeak
		}
		return Incompatible
	case Difference:
		return e.duckType(s, left, right)
	}

	rel := e.nominalRelation(s, left, right)
	if rel == Incompatible {
		rel = e.duckType(s, left, right)
	}
	return rel
}

// congruentFormals reports whether two formal references name the same
// parameter of the same declaration.
func (e *Engine) congruentFormals(l, r Handle) bool {
	lt, ok1 := e.node(StripAccess(e.arena, StripImmutable(e.arena, l))).(Terminal)
	rt, ok2 := e.node(StripAccess(e.arena, StripImmutable(e.arena, r))).(Terminal)
	return ok1 && ok2 && lt.Def == rt.Def
}

func (e *Engine) annotationType(an Annotated) Handle {
	mixin := NewClass(e.arena, an.Mixin)
	if len(an.Args) > 0 {
		return NewParameterized(e.arena, mixin, an.Args...)
	}
	return mixin
}

func (e *Engine) incorporates(s *session, h Handle, mixin ClassID) bool {
	for {
		an, ok := e.node(h).(Annotated)
		if !ok {
			break
		}
		if an.Mixin == mixin {
			return true
		}
		h = an.Underlying
	}
	info := e.ensure(s, h)
	return info != nil && info.Incorporated.Has(mixin)
}

func (e *Engine) nominalRelation(s *session, left, right Handle) Relation {
	if lv, ok := e.node(left).(VirtualChild); ok {
		if rv, ok := e.node(right).(VirtualChild); ok && lv.Name == rv.Name {
			parents := e.relation(s, lv.Parent, rv.Parent)
			if parents == Incompatible {
				return Incompatible
			}
			return parents.Worst(e.classRelation(s, left, right))
		}
	}
	return e.classRelation(s, left, right)
}

func (e *Engine) classRelation(s *session, left, right Handle) Relation {
	target, ok := e.DefiningClass(right)
	if !ok {
		return Incompatible
	}
	view, ok := e.ancestorView(s, left, target, map[ClassID]bool{})
	if !ok {
		return Incompatible
	}
	targetParams := ParamsOf(e.arena, right)
	if len(targetParams) == 0 {
		return IsA
	}
	def, ok := e.universe.Class(target)
	if !ok {
		return Incompatible
	}
	return e.assignability(s, def, targetParams, ParamsOf(e.arena, view))
}

// ancestorView returns t as seen through the contribution that reaches
// target, with type parameters resolved along the path.
func (e *Engine) ancestorView(s *session, t Handle, target ClassID, visited map[ClassID]bool) (Handle, bool) {
	id, ok := e.DefiningClass(t)
	if !ok {
		return NoHandle, false
	}
	if id == target {
		return t, true
	}
	if visited[id] {
		return NoHandle, false
	}
	visited[id] = true

	def, ok := e.universe.Class(id)
	if !ok {
		return NoHandle, false
	}
	ctx := e.paramMap(s, t, def)
	for _, c := range def.Contribs {
		if !e.present(c.Condition) || c.Kind == Annotation {
			continue
		}
		ct := e.resolveGenerics(s, c.Type, ctx)
		if view, ok := e.ancestorView(s, ct, target, visited); ok {
			return view, true
		}
	}
	if an, ok := e.node(t).(Annotated); ok {
		return e.ancestorView(s, e.annotationType(an), target, visited)
	}
	return NoHandle, false
}

// assignability compares the parameters of a value's view of def against
// the target's parameters, following the produces/consumes rules of each
// formal.
func (e *Engine) assignability(s *session, def *ClassDef, targetParams, valueParams []Handle) Relation {
	tuple := def.ID == e.universe.Tuple
	if !tuple && len(valueParams) < len(def.Params) {
		valueParams = e.normalizedParams(s, def, valueParams)
	}
	if !tuple && len(targetParams) > len(def.Params) {
		return Incompatible
	}

	weak := false
	for i := range targetParams {
		name := ""
		if !tuple {
			name = def.Params[i].Name
		}
		lt := targetParams[i]
		var rt Handle
		if i < len(valueParams) {
			rt = valueParams[i]
		} else {
			// only tuples get here; a missing element is Object
			rt = e.object()
		}
		if lt == rt {
			continue
		}
		v := e.varianceOf(def, name)
		produces := tuple || v.produces
		leftIsRight := e.isA(s, lt, rt)
		if leftIsRight && !produces {
			continue
		}
		if e.isA(s, rt, lt) {
			if leftIsRight {
				continue
			}
			consumes := tuple || v.consumes
			if produces || !consumes {
				if consumes {
					weak = true
				}
				continue
			}
			if e.IsFormalType(lt) {
				weak = true
				continue
			}
		}
		return Incompatible
	}
	if len(valueParams) > len(targetParams) {
		if tuple {
			weak = true
		} else if len(targetParams) < len(def.Params) {
			for _, p := range def.Params[len(targetParams):] {
				if e.varianceOf(def, p.Name).consumes {
					weak = true
				}
			}
		}
	}
	if weak {
		return IsAWeak
	}
	return IsA
}

func (e *Engine) normalizedParams(s *session, def *ClassDef, have []Handle) []Handle {
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
	return params
}

type varianceKey struct {
	class ClassID
	name  string
}

type variance struct {
	produces, consumes bool
}

// varianceOf reports whether def produces and consumes its formal
// parameter name through its members and contributions.
func (e *Engine) varianceOf(def *ClassDef, name string) variance {
	v, _ := e.computeVariance(def, name, map[varianceKey]int{})
	return v
}

// computeVariance also returns the shallowest depth in visiting that the
// computation ran into. A result that ran into a class still being
// computed above it omits that class's usage, so only results that did not
// are published for other callers.
func (e *Engine) computeVariance(def *ClassDef, name string, visiting map[varianceKey]int) (variance, int) {
	key := varianceKey{def.ID, name}
	e.varianceMu.Lock()
	v, ok := e.variance[key]
	e.varianceMu.Unlock()
	if ok {
		return v, math.MaxInt
	}
	if depth, ok := visiting[key]; ok {
		return variance{}, depth
	}
	depth := len(visiting)
	visiting[key] = depth
	defer delete(visiting, key)
	reached := math.MaxInt

	mentions := func(h Handle) bool {
		return h != NoHandle && anyNode(e.arena, h, func(n Node) bool {
			t, ok := n.(Terminal)
			if !ok {
				return false
			}
			p, ok := t.Def.(TypeParam)
			return ok && p.Name == name && (p.Class == def.ID || p.Class == "")
		})
	}

	for _, m := range def.Methods {
		if m.Static || !e.present(m.Condition) {
			continue
		}
		for _, p := range m.Params {
			if mentions(p) {
				v.consumes = true
			}
		}
		for _, r := range m.Returns {
			if mentions(r) {
				v.produces = true
			}
		}
	}
	for _, p := range def.Props {
		if p.Static || !e.present(p.Condition) || !mentions(p.Type) {
			continue
		}
		v.produces = true
		if !p.ReadOnly && !p.Constant {
			v.consumes = true
		}
	}
	for _, c := range def.Contribs {
		if !e.present(c.Condition) || c.Kind == Into {
			continue
		}
		cid, ok := e.DefiningClass(c.Type)
		if !ok {
			continue
		}
		cdef, ok := e.universe.Class(cid)
		if !ok {
			continue
		}
		for j, p := range ParamsOf(e.arena, c.Type) {
			if j >= len(cdef.Params) || !mentions(p) {
				continue
			}
			cv, r := e.computeVariance(cdef, cdef.Params[j].Name, visiting)
			reached = min(reached, r)
			v.produces = v.produces || cv.produces
			v.consumes = v.consumes || cv.consumes
		}
	}

	if reached >= depth {
		e.varianceMu.Lock()
		e.variance[key] = v
		e.varianceMu.Unlock()
	}
	return v, reached
}

// Produces reports whether class produces values of its formal name.
func (e *Engine) Produces(class ClassID, name string) bool {
	def, ok := e.universe.Class(class)
	return ok && e.varianceOf(def, name).produces
}

// Consumes reports whether class consumes values of its formal name.
func (e *Engine) Consumes(class ClassID, name string) bool {
	def, ok := e.universe.Class(class)
	return ok && e.varianceOf(def, name).consumes
}
