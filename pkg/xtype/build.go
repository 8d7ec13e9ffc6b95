package xtype

import "fmt"

func must(h Handle, what string) {
	if h == NoHandle {
		panic(fmt.Sprintf("xtype: %s requires a type", what))
	}
}

// NewClass interns the terminal type for a class.
func NewClass(a Arena, id ClassID) Handle {
	if id == "" {
		panic("xtype: class type requires an identity")
	}
	return a.Intern(Terminal{Def: id})
}

// NewTerminal interns a terminal for any identity.
func NewTerminal(a Arena, def Identity) Handle {
	if def == nil {
		panic("xtype: terminal requires an identity")
	}
	if fc, ok := def.(FormalChild); ok {
		must(fc.Parent, "formal child parent")
	}
	return a.Intern(Terminal{Def: def})
}

// NewFormal interns a class-level formal type parameter reference.
func NewFormal(a Arena, class ClassID, name string) Handle {
	return a.Intern(Terminal{Def: TypeParam{Class: class, Name: name}})
}

// NewMethodFormal interns a method-level formal type parameter reference.
func NewMethodFormal(a Arena, method string, index int, name string) Handle {
	return a.Intern(Terminal{Def: MethodParam{Method: method, Index: index, Name: name}})
}

// NewFormalChild interns parent.name for a formal parent.
func NewFormalChild(a Arena, parent Handle, name string) Handle {
	return NewTerminal(a, FormalChild{Parent: parent, Name: name})
}

// NewThisClass interns the auto-narrowing type of class.
func NewThisClass(a Arena, class ClassID) Handle {
	return a.Intern(Terminal{Def: ThisClass{Class: class}})
}

func NewParameterized(a Arena, base Handle, params ...Handle) Handle {
	must(base, "parameterized base")
	if len(params) == 0 {
		panic("xtype: parameterized type requires parameters")
	}
	for _, p := range params {
		must(p, "type parameter")
	}
	if _, ok := a.Lookup(base).(Parameterized); ok {
		panic("xtype: parameterized type cannot wrap another parameterized type")
	}
	return a.Intern(Parameterized{Base: base, Params: append([]Handle(nil), params...)})
}

func NewAnnotated(a Arena, mixin ClassID, underlying Handle, args ...Handle) Handle {
	must(underlying, "annotated type")
	for _, p := range args {
		must(p, "annotation argument")
	}
	return a.Intern(Annotated{Mixin: mixin, Underlying: underlying, Args: append([]Handle(nil), args...)})
}

// NewAccess interns underlying viewed through access. Public access on an
// unqualified type is the type itself.
func NewAccess(a Arena, underlying Handle, access Access) Handle {
	must(underlying, "access-qualified type")
	if q, ok := a.Lookup(underlying).(AccessQualified); ok {
		underlying = q.Underlying
	}
	if access == Public {
		return underlying
	}
	return a.Intern(AccessQualified{Underlying: underlying, Access: access})
}

func NewImmutable(a Arena, underlying Handle) Handle {
	must(underlying, "immutable type")
	if _, ok := a.Lookup(underlying).(ImmutableQualified); ok {
		return underlying
	}
	return a.Intern(ImmutableQualified{Underlying: underlying})
}

func NewUnion(a Arena, l, r Handle) Handle {
	must(l, "union left")
	must(r, "union right")
	return a.Intern(Union{l, r})
}

func NewIntersection(a Arena, l, r Handle) Handle {
	must(l, "intersection left")
	must(r, "intersection right")
	return a.Intern(Intersection{l, r})
}

func NewDifference(a Arena, l, r Handle) Handle {
	must(l, "difference left")
	must(r, "difference right")
	return a.Intern(Difference{l, r})
}

// NewRelational interns the relational variant tag over l and r.
func NewRelational(a Arena, tag Tag, l, r Handle) Handle {
	switch tag {
	case TagUnion:
		return NewUnion(a, l, r)
	case TagIntersection:
		return NewIntersection(a, l, r)
	case TagDifference:
		return NewDifference(a, l, r)
	}
	panic(fmt.Sprintf("xtype: %s is not a relational tag", tag))
}

func NewParentOf(a Arena, child Handle) Handle {
	must(child, "parent-of child")
	return a.Intern(ParentOf{Child: child})
}

func NewChildOf(a Arena, parent Handle, name string) Handle {
	must(parent, "child-of parent")
	return a.Intern(ChildOf{Parent: parent, Name: name})
}

func NewVirtualChild(a Arena, parent Handle, name string, thisTyped bool) Handle {
	must(parent, "virtual child parent")
	return a.Intern(VirtualChild{Parent: parent, Name: name, ThisTyped: thisTyped})
}

func NewAnonymousClass(a Arena, parent Handle, class ClassID) Handle {
	must(parent, "anonymous class parent")
	return a.Intern(AnonymousClass{Parent: parent, Class: class})
}

func NewPropertyDerived(a Arena, parent Handle, property string) Handle {
	must(parent, "property class parent")
	return a.Intern(PropertyDerived{Parent: parent, Property: property})
}

func NewTypeSequence(a Arena) Handle {
	return a.Intern(FormalTypeSequence{})
}

func NewPending(a Arena, parent Handle, name string) Handle {
	must(parent, "pending parent")
	return a.Intern(Pending{Parent: parent, Name: name})
}

func NewUnresolved(a Arena, name string) Handle {
	return a.Intern(Unresolved{Name: name})
}
