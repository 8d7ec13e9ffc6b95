package xtype

import (
	"fmt"
	"strings"
)

// Handle refers to a node interned in an Arena. The zero Handle refers to
// nothing and is never a valid child.
type Handle uint32

const NoHandle Handle = 0

// Tag identifies the variant of a Node.
type Tag uint8

const (
	TagTerminal Tag = iota + 1
	TagParameterized
	TagAnnotated
	TagAccess
	TagImmutable
	TagUnion
	TagIntersection
	TagDifference
	TagParentOf
	TagChildOf
	TagVirtualChild
	TagAnonymousClass
	TagPropertyDerived
	TagFormalSequence
	TagPending
	TagUnresolved
)

var tagNames = [...]string{
	TagTerminal:        "Terminal",
	TagParameterized:   "Parameterized",
	TagAnnotated:       "Annotated",
	TagAccess:          "AccessQualified",
	TagImmutable:       "ImmutableQualified",
	TagUnion:           "Union",
	TagIntersection:    "Intersection",
	TagDifference:      "Difference",
	TagParentOf:        "ParentOf",
	TagChildOf:         "ChildOf",
	TagVirtualChild:    "VirtualChild",
	TagAnonymousClass:  "AnonymousClass",
	TagPropertyDerived: "PropertyDerived",
	TagFormalSequence:  "FormalTypeSequence",
	TagPending:         "Pending",
	TagUnresolved:      "Unresolved",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) && tagNames[t] != "" {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", t)
}

// Node is one immutable type expression. Children are arena handles; a
// Node never owns another Node directly.
type Node interface {
	Tag() Tag
	// Children returns every handle the node refers to, in a fixed order
	// per variant.
	Children() []Handle
	// withChildren rebuilds the node with replacement children, in the
	// same order Children returns them.
	withChildren([]Handle) Node
}

// Access is the visibility a type is viewed through.
type Access uint8

const (
	Public Access = iota
	Protected
	Private
	Struct
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	case Struct:
		return "struct"
	}
	return fmt.Sprintf("Access(%d)", a)
}

// ParseAccess parses the keyword form of an access level. The empty
// string means public.
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(s) {
	case "", "public":
		return Public, nil
	case "protected":
		return Protected, nil
	case "private":
		return Private, nil
	case "struct":
		return Struct, nil
	}
	return Public, fmt.Errorf("unknown access %q", s)
}

// Identity is the nominal thing a Terminal refers to.
type Identity interface {
	fmt.Stringer
	identity()
}

// ClassID names a class, interface or mixin in a Universe.
type ClassID string

// TypeParam is a class-level formal type parameter.
type TypeParam struct {
	Class ClassID
	Name  string
}

// MethodParam is a formal type parameter of a method, identified by its
// register index.
type MethodParam struct {
	Method string
	Index  int
	Name   string
}

// FormalChild is a formal type nested inside another formal type, such as
// T.Element.
type FormalChild struct {
	Parent Handle
	Name   string
}

// ThisClass is the auto-narrowing this:class reference declared in Class.
type ThisClass struct {
	Class ClassID
}

func (ClassID) identity()     {}
func (TypeParam) identity()   {}
func (MethodParam) identity() {}
func (FormalChild) identity() {}
func (ThisClass) identity()   {}

func (id ClassID) String() string { return string(id) }
func (p TypeParam) String() string { return string(p.Class) + "." + p.Name }
func (p MethodParam) String() string { return fmt.Sprintf("%s#%d.%s", p.Method, p.Index, p.Name) }
func (c FormalChild) String() string { return fmt.Sprintf("@%d.%s", c.Parent, c.Name) }
func (t ThisClass) String() string { return string(t.Class) + ":this" }

// IsFormal reports whether the identity is a formal type reference.
func IsFormal(id Identity) bool {
	switch id.(type) {
	case TypeParam, MethodParam, FormalChild:
		return true
	}
	return false
}

// FormalName returns the simple name of a formal identity.
func FormalName(id Identity) string {
	switch x := id.(type) {
	case TypeParam:
		return x.Name
	case MethodParam:
		return x.Name
	case FormalChild:
		return x.Name
	}
	return ""
}

type Terminal struct {
	Def Identity
}

func (Terminal) Tag() Tag { return TagTerminal }

func (t Terminal) Children() []Handle {
	if fc, ok := t.Def.(FormalChild); ok {
		return []Handle{fc.Parent}
	}
	return nil
}

func (t Terminal) withChildren(ch []Handle) Node {
	if fc, ok := t.Def.(FormalChild); ok {
		fc.Parent = ch[0]
		return Terminal{Def: fc}
	}
	return t
}

type Parameterized struct {
	Base   Handle
	Params []Handle
}

func (Parameterized) Tag() Tag { return TagParameterized }

func (p Parameterized) Children() []Handle {
	return append([]Handle{p.Base}, p.Params...)
}

func (p Parameterized) withChildren(ch []Handle) Node {
	return Parameterized{Base: ch[0], Params: append([]Handle(nil), ch[1:]...)}
}

// Annotated applies a mixin annotation, optionally parameterized by Args,
// to an underlying type.
type Annotated struct {
	Mixin      ClassID
	Underlying Handle
	Args       []Handle
}

func (Annotated) Tag() Tag { return TagAnnotated }

func (a Annotated) Children() []Handle {
	return append([]Handle{a.Underlying}, a.Args...)
}

func (a Annotated) withChildren(ch []Handle) Node {
	return Annotated{Mixin: a.Mixin, Underlying: ch[0], Args: append([]Handle(nil), ch[1:]...)}
}

type AccessQualified struct {
	Underlying Handle
	Access     Access
}

func (AccessQualified) Tag() Tag { return TagAccess }
func (a AccessQualified) Children() []Handle { return []Handle{a.Underlying} }
func (a AccessQualified) withChildren(ch []Handle) Node {
	return AccessQualified{Underlying: ch[0], Access: a.Access}
}

type ImmutableQualified struct {
	Underlying Handle
}

func (ImmutableQualified) Tag() Tag { return TagImmutable }
func (i ImmutableQualified) Children() []Handle { return []Handle{i.Underlying} }
func (ImmutableQualified) withChildren(ch []Handle) Node {
	return ImmutableQualified{Underlying: ch[0]}
}

// Union is A + B: a value of either branch.
type Union struct {
	Left, Right Handle
}

// Intersection is A | B: a value of both branches.
type Intersection struct {
	Left, Right Handle
}

// Difference is A - B: A without the members only B provides.
type Difference struct {
	Left, Right Handle
}

func (Union) Tag() Tag { return TagUnion }
func (Intersection) Tag() Tag { return TagIntersection }
func (Difference) Tag() Tag { return TagDifference }

func (u Union) Children() []Handle { return []Handle{u.Left, u.Right} }
func (i Intersection) Children() []Handle { return []Handle{i.Left, i.Right} }
func (d Difference) Children() []Handle { return []Handle{d.Left, d.Right} }

func (Union) withChildren(ch []Handle) Node { return Union{ch[0], ch[1]} }
func (Intersection) withChildren(ch []Handle) Node { return Intersection{ch[0], ch[1]} }
func (Difference) withChildren(ch []Handle) Node { return Difference{ch[0], ch[1]} }

// ParentOf is the outer class of an auto-narrowing child type.
type ParentOf struct {
	Child Handle
}

func (ParentOf) Tag() Tag { return TagParentOf }
func (p ParentOf) Children() []Handle { return []Handle{p.Child} }
func (ParentOf) withChildren(ch []Handle) Node { return ParentOf{Child: ch[0]} }

// ChildOf is the auto-narrowing child class Name of Parent.
type ChildOf struct {
	Parent Handle
	Name   string
}

func (ChildOf) Tag() Tag { return TagChildOf }
func (c ChildOf) Children() []Handle { return []Handle{c.Parent} }
func (c ChildOf) withChildren(ch []Handle) Node {
	return ChildOf{Parent: ch[0], Name: c.Name}
}

// VirtualChild is an instance child class Name accessed through Parent.
// ThisTyped marks the auto-narrowing form.
type VirtualChild struct {
	Parent    Handle
	Name      string
	ThisTyped bool
}

func (VirtualChild) Tag() Tag { return TagVirtualChild }
func (v VirtualChild) Children() []Handle { return []Handle{v.Parent} }
func (v VirtualChild) withChildren(ch []Handle) Node {
	return VirtualChild{Parent: ch[0], Name: v.Name, ThisTyped: v.ThisTyped}
}

// AnonymousClass is an anonymous inner class declared within Parent.
type AnonymousClass struct {
	Parent Handle
	Class  ClassID
}

func (AnonymousClass) Tag() Tag { return TagAnonymousClass }
func (a AnonymousClass) Children() []Handle { return []Handle{a.Parent} }
func (a AnonymousClass) withChildren(ch []Handle) Node {
	return AnonymousClass{Parent: ch[0], Class: a.Class}
}

// PropertyDerived is the type of the Ref/Var of Property on Parent.
type PropertyDerived struct {
	Parent   Handle
	Property string
}

func (PropertyDerived) Tag() Tag { return TagPropertyDerived }
func (p PropertyDerived) Children() []Handle { return []Handle{p.Parent} }
func (p PropertyDerived) withChildren(ch []Handle) Node {
	return PropertyDerived{Parent: ch[0], Property: p.Property}
}

// FormalTypeSequence is the constraint of a variadic formal parameter such
// as the element types of a Tuple.
type FormalTypeSequence struct{}

func (FormalTypeSequence) Tag() Tag { return TagFormalSequence }
func (FormalTypeSequence) Children() []Handle { return nil }
func (f FormalTypeSequence) withChildren([]Handle) Node { return f }

// Pending is a formal child whose parent could not be resolved yet. A later
// resolution pass replaces it with a new node.
type Pending struct {
	Parent Handle
	Name   string
}

func (Pending) Tag() Tag { return TagPending }
func (p Pending) Children() []Handle { return []Handle{p.Parent} }
func (p Pending) withChildren(ch []Handle) Node {
	return Pending{Parent: ch[0], Name: p.Name}
}

type Unresolved struct {
	Name string
}

func (Unresolved) Tag() Tag { return TagUnresolved }
func (Unresolved) Children() []Handle { return nil }
func (u Unresolved) withChildren([]Handle) Node { return u }

// IsRelational reports whether n is a Union, Intersection or Difference.
func IsRelational(n Node) bool {
	switch n.(type) {
	case Union, Intersection, Difference:
		return true
	}
	return false
}

// Branches returns the two sides of a relational node. It panics for any
// other variant.
func Branches(n Node) (Handle, Handle) {
	switch x := n.(type) {
	case Union:
		return x.Left, x.Right
	case Intersection:
		return x.Left, x.Right
	case Difference:
		return x.Left, x.Right
	}
	panic(fmt.Sprintf("xtype: %s is not a relational type", n.Tag()))
}

// IsModifier reports whether n wraps a single underlying type.
func IsModifier(n Node) bool {
	switch n.(type) {
	case Annotated, AccessQualified, ImmutableQualified:
		return true
	}
	return false
}

// UnderlyingOf returns the wrapped type of a modifying node. It panics for
// any other variant.
func UnderlyingOf(n Node) Handle {
	switch x := n.(type) {
	case Annotated:
		return x.Underlying
	case AccessQualified:
		return x.Underlying
	case ImmutableQualified:
		return x.Underlying
	case Parameterized:
		return x.Base
	}
	panic(fmt.Sprintf("xtype: %s has no underlying type", n.Tag()))
}
