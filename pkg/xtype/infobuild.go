package xtype

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// maxDeferDepth bounds the passes made to complete a TypeInfo whose build
// depended on itself.
const maxDeferDepth = 2

// TypeInfo returns the flattened view of h, building and caching it on
// first use.
func (e *Engine) TypeInfo(h Handle) (*TypeInfo, error) {
	if h == NoHandle {
		return nil, errors.New("type info requested for a missing type")
	}
	if ContainsUnresolved(e.arena, h) {
		return nil, errors.Wrapf(ErrUnresolved, "type info for %s", e.Format(h))
	}
	if info := e.cached(h); info != nil {
		return info, nil
	}
	v, err, _ := e.flight.Do(strconv.FormatUint(uint64(h), 10), func() (any, error) {
		if info := e.cached(h); info != nil {
			return info, nil
		}
		e.logger.Debug("building type info", "type", e.Format(h))
		s := newSession()
		info := e.ensure(s, h)
		if info == nil {
			return nil, errors.Errorf("no type information for %s", e.Format(h))
		}
		if !info.IsComplete() {
			info = e.finish(s, h, info)
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TypeInfo), nil
}

func (e *Engine) cached(h Handle) *TypeInfo {
	e.infoMu.RLock()
	defer e.infoMu.RUnlock()
	return e.infos[h]
}

// remember publishes info to the cache and reports whether h was new.
func (e *Engine) remember(h Handle, info *TypeInfo) bool {
	e.infoMu.Lock()
	defer e.infoMu.Unlock()
	_, had := e.infos[h]
	e.infos[h] = info
	return !had
}

// ensure returns the TypeInfo of h within one request. The result may be
// incomplete, or nil when h has no TypeInfo at all.
//
// A build that re-entered a relation started before it is provisional: it
// stays local to the request, and so do its diagnostics.
func (e *Engine) ensure(s *session, h Handle) *TypeInfo {
	if info, ok := s.local[h]; ok {
		if !info.IsComplete() || s.assumed[h] {
			s.placeholders++
		}
		return info
	}
	if info := e.cached(h); info != nil {
		return info
	}
	if s.building[h] {
		return e.reentrant(s, h)
	}

	s.building[h] = true
	s.stack = append(s.stack, h)
	before, floor, mark := s.placeholders, s.floor, s.started
	s.floor = math.MaxInt
	info := e.build(s, h)
	assumed := s.floor <= mark
	s.floor = min(floor, s.floor)
	s.stack = s.stack[:len(s.stack)-1]
	delete(s.building, h)
	diags := s.pending[h]
	delete(s.pending, h)

	if info == nil {
		if !assumed {
			e.emit(diags...)
		}
		return nil
	}
	deferred := s.placeholders != before && s.depth < maxDeferDepth
	if deferred {
		info.Progress = Incomplete
	}
	s.local[h] = info
	switch {
	case assumed:
		s.assumed[h] = true
	case deferred:
		// a later pass rebuilds h and reports for it
	case info.IsComplete():
		if e.remember(h, info) {
			e.emit(diags...)
		}
	default:
		e.emit(diags...)
	}
	return info
}

func (e *Engine) reentrant(s *session, h Handle) *TypeInfo {
	if e.IsFormalType(h) {
		if c := e.constraintOf(s, h); c != h && !s.building[c] {
			if info := e.ensure(s, c); info != nil {
				return info.retype(h)
			}
		}
	}
	s.deferNode(h)
	s.placeholders++
	if p, ok := s.prior[h]; ok {
		return p
	}
	e.logger.Debug("deferring type info", "type", e.Format(h), "depth", s.depth)
	info := newTypeInfo(h)
	info.Progress = Incomplete
	return info
}

// finish rebuilds the deferred nodes of s, then h, using the previous
// pass's results in place of re-entrant requests.
func (e *Engine) finish(s *session, h Handle, info *TypeInfo) *TypeInfo {
	for depth := 1; !info.IsComplete() && depth <= maxDeferDepth; depth++ {
		next := newSession()
		next.depth = depth
		next.prior = s.local
		for _, d := range s.deferred {
			if d != h {
				e.ensure(next, d)
			}
		}
		if rebuilt := e.ensure(next, h); rebuilt != nil {
			info = rebuilt
		}
		s = next
	}
	return info
}

func (e *Engine) build(s *session, h Handle) *TypeInfo {
	switch n := e.node(h).(type) {
	case Terminal:
		switch id := n.Def.(type) {
		case ClassID:
			return e.publicView(s, h)
		case ThisClass:
			return e.retyped(s, h, NewClass(e.arena, id.Class))
		}
		return e.formalInfo(s, h)
	case Parameterized, Annotated, VirtualChild, ChildOf, AnonymousClass:
		return e.publicView(s, h)
	case AccessQualified:
		if n.Access == Private {
			return e.privateView(s, h, n.Underlying)
		}
		private := e.ensure(s, NewAccess(e.arena, n.Underlying, Private))
		if private == nil {
			return nil
		}
		view := private.LimitAccess(n.Access)
		view.Type = h
		return view
	case ImmutableQualified:
		return e.retyped(s, h, n.Underlying)
	case Union:
		return e.unionInfo(s, h, n)
	case Intersection:
		return e.intersectionInfo(s, h, n)
	case Difference:
		return e.differenceInfo(s, h, n)
	case ParentOf:
		if vc, ok := e.node(n.Child).(VirtualChild); ok {
			return e.retyped(s, h, vc.Parent)
		}
		outer, ok := e.outerClass(n.Child)
		if !ok {
			return nil
		}
		return e.retyped(s, h, NewClass(e.arena, outer))
	case PropertyDerived:
		return e.propertyTypeInfo(s, h, n)
	case FormalTypeSequence:
		return newTypeInfo(h)
	case Pending:
		info := e.formalInfo(s, h)
		if info != nil {
			info.Progress = Incomplete
		}
		return info
	case Unresolved:
		return nil
	}
	panic(fmt.Sprintf("xtype: unhandled variant %T", e.node(h)))
}

func (e *Engine) retyped(s *session, h, other Handle) *TypeInfo {
	info := e.ensure(s, other)
	if info == nil {
		return nil
	}
	return info.retype(h)
}

func (e *Engine) publicView(s *session, h Handle) *TypeInfo {
	private := e.ensure(s, NewAccess(e.arena, h, Private))
	if private == nil {
		return nil
	}
	view := private.LimitAccess(Public)
	view.Type = h
	return view
}

// formalInfo describes a formal type by its constraint.
func (e *Engine) formalInfo(s *session, h Handle) *TypeInfo {
	c := e.constraintOf(s, h)
	if c == h {
		return nil
	}
	return e.retyped(s, h, c)
}

// privateView builds the complete TypeInfo of u; h is u viewed privately.
func (e *Engine) privateView(s *session, h, u Handle) *TypeInfo {
	switch n := e.node(u).(type) {
	case Terminal:
		if id, ok := n.Def.(ClassID); ok {
			return e.classInfo(s, h, u, id)
		}
	case Parameterized, VirtualChild, ChildOf, AnonymousClass:
		id, ok := e.DefiningClass(u)
		if !ok {
			e.report(s, SeverityError, CodeUnknownClass, e.Format(u), "%s does not name a class", e.Format(u))
			return nil
		}
		return e.classInfo(s, h, u, id)
	case Annotated:
		return e.annotatedInfo(s, h, n)
	}
	return e.retyped(s, h, u)
}

// paramMap binds the formal parameters of def as seen by t, including
// those of the enclosing classes.
func (e *Engine) paramMap(s *session, t Handle, def *ClassDef) ParamMap {
	m := e.outerParams(s, t, def)
	if def.ID == e.universe.Tuple {
		for _, p := range def.Params {
			m[p.Name] = ParamInfo{Name: p.Name, Constraint: e.constraintOrObject(p.Constraint)}
		}
		return m
	}
	params := ParamsOf(e.arena, t)
	for i, p := range def.Params {
		info := ParamInfo{Name: p.Name}
		if i < len(params) {
			info.Actual = params[i]
		}
		m[p.Name] = info
	}
	// constraints see the bindings, so Comparable<T> becomes
	// Comparable<Int> for T = Int
	for _, p := range def.Params {
		info := m[p.Name]
		info.Constraint = e.resolveGenerics(s, e.constraintOrObject(p.Constraint), m)
		m[p.Name] = info
	}
	return m
}

func (e *Engine) outerParams(s *session, t Handle, def *ClassDef) ParamMap {
	base := t
	for {
		n := e.node(base)
		if IsModifier(n) || n.Tag() == TagParameterized {
			base = UnderlyingOf(n)
			continue
		}
		break
	}
	var parent Handle
	switch n := e.node(base).(type) {
	case VirtualChild:
		parent = n.Parent
	case ChildOf:
		parent = n.Parent
	case AnonymousClass:
		parent = n.Parent
	}
	if parent != NoHandle {
		if info := e.ensure(s, parent); info != nil {
			return info.Params.Clone()
		}
		return ParamMap{}
	}
	if def.Outer != "" && def.Virtual {
		if odef, ok := e.universe.Class(def.Outer); ok {
			return e.paramMap(s, NewClass(e.arena, def.Outer), odef)
		}
	}
	return ParamMap{}
}

// layer is the members one contribution brings, before folding.
type layer struct {
	source  ClassID
	methods map[string]*MethodInfo
	props   map[string]*PropertyInfo
}

func newLayer(source ClassID) layer {
	return layer{source: source, methods: map[string]*MethodInfo{}, props: map[string]*PropertyInfo{}}
}

func layerOf(info *TypeInfo) layer {
	return layer{source: info.Class, methods: info.Methods, props: info.Properties}
}

// implicitLayer demotes every method of info to an implicit body.
func implicitLayer(info *TypeInfo, source ClassID) layer {
	l := newLayer(source)
	for key, m := range info.Methods {
		head := m.Head()
		l.methods[key] = NewMethodInfo(MethodBody{
			Class:     source,
			Signature: head.Signature,
			Impl:      Implicit,
			Access:    head.Access,
			Static:    head.Static,
		})
	}
	for name, p := range info.Properties {
		if !p.IsTypeParam() {
			l.props[name] = p
		}
	}
	return l
}

func (e *Engine) resolveSignature(s *session, sig Signature, ctx GenericResolver) Signature {
	out := Signature{Name: sig.Name}
	for _, p := range sig.Params {
		out.Params = append(out.Params, e.resolveGenerics(s, p, ctx))
	}
	for _, r := range sig.Returns {
		out.Returns = append(out.Returns, e.resolveGenerics(s, r, ctx))
	}
	return out
}

func implementationOf(def *ClassDef, m *MethodDef) Implementation {
	switch {
	case m.Native:
		return Native
	case def.IsInterface() && m.HasCode:
		return Default
	case def.IsInterface() && m.Abstract:
		return Abstract
	case def.IsInterface():
		return Declared
	case m.Abstract || !m.HasCode:
		return Abstract
	}
	return ActualCode
}

// classInfo flattens the class id as seen by u.
func (e *Engine) classInfo(s *session, h, u Handle, id ClassID) *TypeInfo {
	def, ok := e.universe.Class(id)
	if !ok {
		e.report(s, SeverityError, CodeUnknownClass, e.Format(u), "class %s is not defined", id)
		return nil
	}
	s.walking[id] = true
	defer delete(s.walking, id)

	ctx := e.paramMap(s, u, def)
	info := newTypeInfo(h)
	info.Class = id
	info.Format = def.Format
	info.Access = Private
	info.Params = ctx.Clone()
	declared := map[string]bool{}
	for name := range ctx {
		declared[name] = true
	}

	layers := []layer{e.ownLayer(s, def, ctx)}

	var incorporated, delegated, extended, implemented, into []layer
	var delegates []Contribution
	for _, c := range def.Contribs {
		if !e.present(c.Condition) || c.Kind == Annotation {
			continue
		}
		where := string(def.ID)
		ct := e.resolveGenerics(s, c.Type, ctx)
		cid, ok := e.DefiningClass(ct)
		if !ok {
			e.report(s, SeverityError, CodeContributionKind, where,
				"%s %s %s: not a class", def.Format, c.Kind, e.Format(ct))
			continue
		}
		cdef, ok := e.universe.Class(cid)
		if !ok {
			e.report(s, SeverityError, CodeUnknownClass, where, "class %s is not defined", cid)
			continue
		}
		if !validContribution(def, c.Kind, cdef) {
			e.report(s, SeverityError, CodeContributionKind, where,
				"%s %s: %s %s %s is not allowed", def.Format, def.ID, c.Kind, cdef.Format, cdef.ID)
			continue
		}
		if s.walking[cid] {
			e.report(s, SeverityError, CodeContributionCycle, where,
				"%s %s %s, which already contributes to it", def.ID, c.Kind, cid)
			continue
		}

		view := ct
		if c.Kind == Extends || c.Kind == Incorporates {
			view = NewAccess(e.arena, ct, Protected)
		}
		ci := e.ensure(s, view)
		if ci == nil {
			info.Progress = Incomplete
			continue
		}
		info.Progress = info.Progress.worst(ci.Progress)
		e.inheritParams(s, info, declared, ci)
		info.Implicit.addAll(ci.Implicit)

		switch c.Kind {
		case Extends:
			if def.IsInterface() {
				info.Implemented.Add(cid)
			} else if def.Format == FormatMixin {
				info.Incorporated.Add(cid)
			} else {
				info.Extended.Add(cid)
			}
			info.Extended.addAll(ci.Extended)
			info.Implemented.addAll(ci.Implemented)
			info.Incorporated.addAll(ci.Incorporated)
			extended = append(extended, layerOf(ci))
		case Implements:
			info.Implemented.Add(cid)
			info.Implemented.addAll(ci.Implemented)
			implemented = append(implemented, layerOf(ci))
		case Delegates:
			info.Implemented.Add(cid)
			info.Implemented.addAll(ci.Implemented)
			delegated = append(delegated, delegatingLayer(ci, def.ID, c.Delegate))
			delegates = append(delegates, c)
		case Incorporates:
			info.Incorporated.Add(cid)
			info.Incorporated.addAll(ci.Incorporated)
			info.Incorporated.addAll(ci.Extended)
			info.Implemented.addAll(ci.Implemented)
			incorporated = append(incorporated, layerOf(ci))
		case Into:
			into = append(into, implicitLayer(ci, cid))
		}
	}

	var implicit []layer
	for _, iid := range e.universe.Implicit {
		if iid == id || info.Extended.Has(iid) || s.walking[iid] {
			continue
		}
		ci := e.ensure(s, NewClass(e.arena, iid))
		if ci == nil {
			continue
		}
		info.Implicit.Add(iid)
		info.Progress = info.Progress.worst(ci.Progress)
		implicit = append(implicit, implicitLayer(ci, iid))
	}

	layers = append(layers, incorporated...)
	layers = append(layers, delegated...)
	layers = append(layers, extended...)
	layers = append(layers, implemented...)
	layers = append(layers, implicit...)
	layers = append(layers, into...)
	e.fold(s, info, layers)

	for _, c := range delegates {
		if _, ok := info.Properties[c.Delegate]; !ok {
			e.report(s, SeverityError, CodeDelegateMissing, string(def.ID),
				"%s delegates %s to missing property %q", def.ID, e.Format(c.Type), c.Delegate)
		}
	}
	return info
}

func validContribution(def *ClassDef, kind ContribKind, target *ClassDef) bool {
	switch kind {
	case Extends:
		switch def.Format {
		case FormatInterface:
			return target.Format == FormatInterface
		case FormatMixin:
			return target.Format == FormatMixin
		}
		return target.Format != FormatInterface && target.Format != FormatMixin
	case Implements, Delegates:
		return target.Format == FormatInterface
	case Incorporates:
		return target.Format == FormatMixin
	case Into:
		return def.Format == FormatMixin
	}
	return false
}

// ownLayer holds the members def declares itself, with a read-only
// property for each of its type parameters.
func (e *Engine) ownLayer(s *session, def *ClassDef, ctx ParamMap) layer {
	own := newLayer(def.ID)
	where := string(def.ID)

	for _, p := range def.Params {
		param := ctx[p.Name]
		own.props[p.Name] = NewPropertyInfo(&PropertyBody{
			Class:     def.ID,
			Name:      p.Name,
			Type:      param.Type(),
			Param:     &param,
			ReadOnly:  true,
			RefAccess: Public,
		})
	}

	for i := range def.Methods {
		m := &def.Methods[i]
		if !e.present(m.Condition) {
			continue
		}
		sig := e.resolveSignature(s, m.Signature(), ctx)
		key := sig.Key()
		if _, dup := own.methods[key]; dup {
			e.report(s, SeverityError, CodeMethodAmbiguous, where, "method %s is declared twice", m.Name)
			continue
		}
		own.methods[key] = NewMethodInfo(MethodBody{
			Class:     def.ID,
			Signature: sig,
			Impl:      implementationOf(def, m),
			Access:    m.Access,
			Static:    m.Static,
		})
	}

	for i := range def.Props {
		p := &def.Props[i]
		if !e.present(p.Condition) {
			continue
		}
		if prev, ok := own.props[p.Name]; ok && prev.IsTypeParam() {
			e.report(s, SeverityError, CodePropertyTypeParamMix, where,
				"property %s shadows the type parameter of the same name", p.Name)
			continue
		}
		typ := p.Type
		if typ == NoHandle {
			typ = e.object()
		}
		body := &PropertyBody{
			Class:       def.ID,
			Name:        p.Name,
			Type:        e.resolveGenerics(s, typ, ctx),
			ReadOnly:    p.ReadOnly,
			ReadWrite:   !p.ReadOnly,
			RefAccess:   p.RefAccess,
			VarAccess:   p.VarAccess,
			Field:       p.HasField && !def.IsInterface(),
			Custom:      p.Custom,
			Abstract:    p.Abstract || def.IsInterface(),
			Constant:    p.Constant,
			Static:      p.Static,
			Initial:     p.Initial,
			Initializer: p.Initializer,
		}
		info := NewPropertyInfo(body)
		info.Methods = map[string]*MethodInfo{}
		for j := range p.Methods {
			pm := &p.Methods[j]
			if !e.present(pm.Condition) {
				continue
			}
			sig := e.resolveSignature(s, pm.Signature(), ctx)
			impl := Declared
			if pm.HasCode {
				impl = ActualCode
				body.Custom = true
			}
			info.Methods[sig.Key()] = NewMethodInfo(MethodBody{
				Class:     def.ID,
				Signature: sig,
				Impl:      impl,
				Access:    pm.Access,
			})
		}
		own.props[p.Name] = info
	}
	return own
}

// delegatingLayer forwards every declared method of an interface to the
// property target.
func delegatingLayer(info *TypeInfo, class ClassID, target string) layer {
	l := newLayer(info.Class)
	for key, m := range info.Methods {
		head := m.Head()
		if head.Static || head.Impl == Implicit {
			continue
		}
		l.methods[key] = NewMethodInfo(MethodBody{
			Class:     class,
			Signature: head.Signature,
			Impl:      Delegating,
			Access:    head.Access,
			Target:    target,
		})
	}
	for name, p := range info.Properties {
		if !p.IsTypeParam() {
			l.props[name] = p
		}
	}
	return l
}

// inheritParams adds the parameters a contribution sees that info does not
// declare itself. Two contributions binding one name differently is a
// conflict.
func (e *Engine) inheritParams(s *session, info *TypeInfo, declared map[string]bool, ci *TypeInfo) {
	names := make([]string, 0, len(ci.Params))
	for name := range ci.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := ci.Params[name]
		if declared[name] {
			continue
		}
		prev, ok := info.Params[name]
		if !ok {
			info.Params[name] = p
			continue
		}
		a, b := prev.Type(), p.Type()
		if a == b || a == NoHandle || b == NoHandle {
			continue
		}
		if !e.isA(s, a, b) || !e.isA(s, b, a) {
			e.report(s, SeverityError, CodeTypeParamConflict, string(info.Class),
				"type parameter %s is bound to both %s and %s", name, e.Format(a), e.Format(b))
		}
	}
}

// fold merges layers, most specific first, into info.
func (e *Engine) fold(s *session, info *TypeInfo, layers []layer) {
	for _, l := range layers {
		for _, key := range sortedKeys(l.methods) {
			m := l.methods[key]
			if cur, ok := info.Methods[key]; ok {
				info.Methods[key] = cur.AppendChain(m)
			} else {
				info.Methods[key] = m
			}
		}
		for _, name := range sortedKeys(l.props) {
			p := l.props[name]
			if cur, ok := info.Properties[name]; ok {
				info.Properties[name] = e.layerProperty(s, cur, p)
			} else {
				info.Properties[name] = p
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// annotatedInfo layers the members of an annotation mixin above the
// underlying type.
func (e *Engine) annotatedInfo(s *session, h Handle, n Annotated) *TypeInfo {
	base := e.ensure(s, NewAccess(e.arena, n.Underlying, Private))
	if base == nil {
		return nil
	}
	where := e.Format(h)
	mdef, ok := e.universe.Class(n.Mixin)
	if !ok {
		e.report(s, SeverityError, CodeUnknownClass, where, "class %s is not defined", n.Mixin)
		return base.retype(h)
	}
	if mdef.Format != FormatMixin {
		e.report(s, SeverityError, CodeContributionKind, where,
			"%s %s cannot annotate a type", mdef.Format, mdef.ID)
		return base.retype(h)
	}
	if s.walking[n.Mixin] {
		e.report(s, SeverityError, CodeContributionCycle, where,
			"annotation %s already contributes to %s", n.Mixin, e.Format(n.Underlying))
		return base.retype(h)
	}
	mi := e.ensure(s, NewAccess(e.arena, e.annotationType(n), Protected))
	if mi == nil {
		info := base.retype(h)
		info.Progress = Incomplete
		return info
	}

	info := newTypeInfo(h)
	info.Class, info.Format, info.Access = base.Class, base.Format, base.Access
	info.Progress = base.Progress.worst(mi.Progress)
	for k, v := range base.Params {
		info.Params[k] = v
	}
	info.Extended.addAll(base.Extended)
	info.Implemented = base.Implemented.union(mi.Implemented)
	info.Incorporated = base.Incorporated.union(mi.Incorporated)
	info.Incorporated.Add(n.Mixin)
	info.Implicit.addAll(base.Implicit)

	// mixin type parameters are not the annotated type's parameters
	annotation := layerOf(mi)
	annotation.props = map[string]*PropertyInfo{}
	for name, p := range mi.Properties {
		if !p.IsTypeParam() {
			annotation.props[name] = p
		}
	}
	e.fold(s, info, []layer{annotation, layerOf(base)})
	return info
}

// propertyTypeInfo describes the Ref or Var of a property, with the
// methods the property declares layered above it.
func (e *Engine) propertyTypeInfo(s *session, h Handle, n PropertyDerived) *TypeInfo {
	parent := e.ensure(s, n.Parent)
	if parent == nil {
		return nil
	}
	prop, ok := parent.Properties[n.Property]
	if !ok {
		return nil
	}
	refClass := e.universe.Var
	if prop.Effective.ReadOnly {
		refClass = e.universe.Ref
	}

	var info *TypeInfo
	if def, ok := e.universe.Class(refClass); ok && len(def.Params) > 0 {
		ref := NewParameterized(e.arena, NewClass(e.arena, refClass), prop.Type())
		base := e.ensure(s, ref)
		if base == nil {
			return nil
		}
		info = base.clone(h)
	} else {
		info = newTypeInfo(h)
		info.Class = refClass
	}
	own := newLayer(refClass)
	for key, m := range prop.Methods {
		own.methods[key] = m
	}
	lower := layer{methods: info.Methods, props: info.Properties}
	info.Methods = map[string]*MethodInfo{}
	info.Properties = map[string]*PropertyInfo{}
	e.fold(s, info, []layer{own, lower})
	return info
}
