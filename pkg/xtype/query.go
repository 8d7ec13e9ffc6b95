package xtype

import "fmt"

// Category is the broad kind a type resolves to.
type Category uint8

const (
	CategoryOther Category = iota
	CategoryClass
	CategoryInterface
	CategoryFormal
)

func (c Category) String() string {
	switch c {
	case CategoryOther:
		return "OTHER"
	case CategoryClass:
		return "CLASS"
	case CategoryInterface:
		return "INTERFACE"
	case CategoryFormal:
		return "FORMAL"
	}
	return fmt.Sprintf("Category(%d)", c)
}

func isClassOrInterface(c Category) bool {
	return c == CategoryClass || c == CategoryInterface
}

// Category classifies h.
func (e *Engine) Category(h Handle) Category {
	switch n := e.node(h).(type) {
	case Terminal:
		switch id := n.Def.(type) {
		case ClassID:
			return e.classCategory(id)
		case ThisClass:
			return e.classCategory(id.Class)
		default:
			return CategoryFormal
		}
	case Parameterized:
		return e.Category(n.Base)
	case Annotated:
		return e.Category(n.Underlying)
	case AccessQualified:
		return e.Category(n.Underlying)
	case ImmutableQualified:
		return e.Category(n.Underlying)
	case Union:
		c1, c2 := e.Category(n.Left), e.Category(n.Right)
		switch {
		case c1 == CategoryClass && isClassOrInterface(c2),
			c2 == CategoryClass && isClassOrInterface(c1):
			return CategoryClass
		case c1 == CategoryInterface && c2 == CategoryInterface:
			return CategoryInterface
		}
		return CategoryOther
	case Intersection:
		c1, c2 := e.Category(n.Left), e.Category(n.Right)
		if c1 == c2 && isClassOrInterface(c1) {
			return c1
		}
		return CategoryOther
	case Difference:
		if isClassOrInterface(e.Category(n.Left)) && isClassOrInterface(e.Category(n.Right)) {
			return CategoryInterface
		}
		return CategoryOther
	case ParentOf, ChildOf, VirtualChild, AnonymousClass:
		if id, ok := e.DefiningClass(h); ok {
			return e.classCategory(id)
		}
		return CategoryOther
	case PropertyDerived:
		return CategoryClass
	case Pending:
		return CategoryFormal
	case FormalTypeSequence, Unresolved:
		return CategoryOther
	}
	panic(fmt.Sprintf("xtype: unhandled variant %T", e.node(h)))
}

func (e *Engine) classCategory(id ClassID) Category {
	def, ok := e.universe.Class(id)
	if !ok {
		return CategoryOther
	}
	if def.IsInterface() {
		return CategoryInterface
	}
	return CategoryClass
}

// IsFormalType reports whether h is a formal type reference, possibly
// qualified by modifiers.
func (e *Engine) IsFormalType(h Handle) bool {
	switch n := e.node(h).(type) {
	case Terminal:
		return IsFormal(n.Def)
	case AccessQualified, ImmutableQualified, Annotated:
		return e.IsFormalType(UnderlyingOf(n))
	case Pending:
		return true
	}
	return false
}

// IsOnlyNullable reports whether h is the Null class itself.
func (e *Engine) IsOnlyNullable(h Handle) bool {
	switch n := e.node(h).(type) {
	case Terminal:
		return n.Def == e.universe.Null
	case AccessQualified, ImmutableQualified:
		return e.IsOnlyNullable(UnderlyingOf(n))
	case Union:
		return e.IsOnlyNullable(n.Left) && e.IsOnlyNullable(n.Right)
	}
	return false
}

// IsNullable reports whether Null is among the values of h.
func (e *Engine) IsNullable(h Handle) bool {
	switch n := e.node(h).(type) {
	case Terminal:
		return n.Def == e.universe.Null
	case Parameterized:
		return e.IsNullable(n.Base)
	case Annotated, AccessQualified, ImmutableQualified:
		return e.IsNullable(UnderlyingOf(n))
	case Union:
		only1, only2 := e.IsOnlyNullable(n.Left), e.IsOnlyNullable(n.Right)
		return only1 != only2 || (e.IsNullable(n.Left) && e.IsNullable(n.Right))
	case Intersection:
		return e.IsNullable(n.Left) && e.IsNullable(n.Right)
	case Difference:
		return false
	}
	return false
}

// IsSingleUnderlyingClass reports whether h denotes exactly one nominal
// class or interface.
func (e *Engine) IsSingleUnderlyingClass(h Handle) bool {
	switch n := e.node(h).(type) {
	case Union:
		return e.sameSingleClass(n.Left, n.Right)
	case Intersection:
		return e.sameSingleClass(n.Left, n.Right)
	case Difference:
		return false
	}
	_, ok := e.DefiningClass(h)
	return ok
}

func (e *Engine) sameSingleClass(l, r Handle) bool {
	id1, ok1 := e.DefiningClass(l)
	id2, ok2 := e.DefiningClass(r)
	return ok1 && ok2 && id1 == id2
}

// DefiningClass returns the single class h resolves to, if any.
func (e *Engine) DefiningClass(h Handle) (ClassID, bool) {
	switch n := e.node(h).(type) {
	case Terminal:
		switch id := n.Def.(type) {
		case ClassID:
			return id, true
		case ThisClass:
			return id.Class, true
		}
		return "", false
	case Parameterized:
		return e.DefiningClass(n.Base)
	case Annotated:
		return e.DefiningClass(n.Underlying)
	case AccessQualified:
		return e.DefiningClass(n.Underlying)
	case ImmutableQualified:
		return e.DefiningClass(n.Underlying)
	case Union:
		if e.sameSingleClass(n.Left, n.Right) {
			return e.DefiningClass(n.Left)
		}
		return "", false
	case Intersection:
		if e.sameSingleClass(n.Left, n.Right) {
			return e.DefiningClass(n.Left)
		}
		return "", false
	case VirtualChild:
		def, ok := e.childClass(n.Parent, n.Name)
		if !ok {
			return "", false
		}
		return def.ID, true
	case ChildOf:
		def, ok := e.childClass(n.Parent, n.Name)
		if !ok {
			return "", false
		}
		return def.ID, true
	case ParentOf:
		return e.outerClass(n.Child)
	case AnonymousClass:
		return n.Class, true
	}
	return "", false
}

// childClass finds the class name declared inside the class of parent or
// inherited through its extends chain.
func (e *Engine) childClass(parent Handle, name string) (*ClassDef, bool) {
	outer, ok := e.DefiningClass(parent)
	if !ok {
		return nil, false
	}
	seen := map[ClassID]bool{}
	for outer != "" && !seen[outer] {
		seen[outer] = true
		if def, ok := e.universe.Class(ChildID(outer, name)); ok {
			return def, true
		}
		outer = e.superClass(outer)
	}
	return nil, false
}

// superClass returns the class directly extended by id.
func (e *Engine) superClass(id ClassID) ClassID {
	def, ok := e.universe.Class(id)
	if !ok {
		return ""
	}
	for _, c := range def.Contribs {
		if c.Kind == Extends && e.present(c.Condition) {
			if sup, ok := e.DefiningClass(c.Type); ok {
				return sup
			}
		}
	}
	return ""
}

func (e *Engine) outerClass(child Handle) (ClassID, bool) {
	if vc, ok := e.node(child).(VirtualChild); ok {
		return e.DefiningClass(vc.Parent)
	}
	if co, ok := e.node(child).(ChildOf); ok {
		return e.DefiningClass(co.Parent)
	}
	id, ok := e.DefiningClass(child)
	if !ok {
		return "", false
	}
	def, ok := e.universe.Class(id)
	if !ok || def.Outer == "" {
		return "", false
	}
	return def.Outer, true
}

// IsImmutable reports whether every value of h is immutable.
func (e *Engine) IsImmutable(h Handle) bool {
	switch n := e.node(h).(type) {
	case ImmutableQualified:
		return true
	case Terminal:
		id, ok := n.Def.(ClassID)
		if !ok {
			return false
		}
		def, ok := e.universe.Class(id)
		return ok && (def.Format == FormatConst || def.Format == FormatEnum)
	case Parameterized:
		return e.IsImmutable(n.Base)
	case Annotated:
		return e.IsImmutable(n.Underlying)
	case AccessQualified:
		return e.IsImmutable(n.Underlying)
	case Union:
		return e.IsImmutable(n.Left) && e.IsImmutable(n.Right)
	case Intersection:
		return e.IsImmutable(n.Left) || e.IsImmutable(n.Right)
	case Difference:
		return e.IsImmutable(n.Left)
	}
	return false
}

// IsImmutabilitySpecified reports whether h carries an explicit immutable
// modifier, possibly beneath other modifiers.
func (e *Engine) IsImmutabilitySpecified(h Handle) bool {
	switch n := e.node(h).(type) {
	case ImmutableQualified:
		return true
	case AccessQualified:
		return e.IsImmutabilitySpecified(n.Underlying)
	case Annotated:
		return e.IsImmutabilitySpecified(n.Underlying)
	}
	return false
}

// IsAccessSpecified reports whether h carries an access modifier.
func IsAccessSpecified(a Arena, h Handle) bool {
	switch n := a.Lookup(h).(type) {
	case AccessQualified:
		return true
	case ImmutableQualified:
		return IsAccessSpecified(a, n.Underlying)
	case Annotated:
		return IsAccessSpecified(a, n.Underlying)
	}
	return false
}

// AccessOf returns the access h is viewed through.
func AccessOf(a Arena, h Handle) Access {
	switch n := a.Lookup(h).(type) {
	case AccessQualified:
		return n.Access
	case ImmutableQualified:
		return AccessOf(a, n.Underlying)
	case Annotated:
		return AccessOf(a, n.Underlying)
	}
	return Public
}

func IsAnnotated(a Arena, h Handle) bool {
	switch n := a.Lookup(h).(type) {
	case Annotated:
		return true
	case AccessQualified:
		return IsAnnotated(a, n.Underlying)
	case ImmutableQualified:
		return IsAnnotated(a, n.Underlying)
	}
	return false
}

func IsParameterized(a Arena, h Handle) bool {
	switch n := a.Lookup(h).(type) {
	case Parameterized:
		return true
	case Annotated, AccessQualified, ImmutableQualified:
		return IsParameterized(a, UnderlyingOf(n))
	}
	return false
}

// ParamsOf returns the explicit type parameters of h.
func ParamsOf(a Arena, h Handle) []Handle {
	switch n := a.Lookup(h).(type) {
	case Parameterized:
		return n.Params
	case Annotated, AccessQualified, ImmutableQualified:
		return ParamsOf(a, UnderlyingOf(n))
	}
	return nil
}

// StripAccess removes access modifiers from h, keeping other modifiers
// and annotations.
func StripAccess(a Arena, h Handle) Handle {
	switch n := a.Lookup(h).(type) {
	case AccessQualified:
		return StripAccess(a, n.Underlying)
	case ImmutableQualified:
		inner := StripAccess(a, n.Underlying)
		return Rebuild(a, h, []Handle{inner})
	case Annotated:
		inner := StripAccess(a, n.Underlying)
		return Rebuild(a, h, append([]Handle{inner}, n.Args...))
	}
	return h
}

// StripImmutable removes immutable modifiers from h, keeping access and
// annotations.
func StripImmutable(a Arena, h Handle) Handle {
	switch n := a.Lookup(h).(type) {
	case ImmutableQualified:
		return StripImmutable(a, n.Underlying)
	case AccessQualified:
		inner := StripImmutable(a, n.Underlying)
		return Rebuild(a, h, []Handle{inner})
	case Annotated:
		inner := StripImmutable(a, n.Underlying)
		return Rebuild(a, h, append([]Handle{inner}, n.Args...))
	}
	return h
}
