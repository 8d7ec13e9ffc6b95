package xtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	dog, cat := f.class("Dog"), f.class("Cat")
	rd, wr := f.class("Readable"), f.class("Writable")

	for _, tc := range []struct {
		typ  Handle
		want Category
	}{
		{dog, CategoryClass},
		{rd, CategoryInterface},
		{f.of("List", dog), CategoryInterface},
		{NewAccess(f.a, dog, Private), CategoryClass},
		{f.formal("List", "Element"), CategoryFormal},
		{NewPending(f.a, f.formal("List", "Element"), "Key"), CategoryFormal},
		{f.union(dog, cat), CategoryClass},
		{f.union(dog, rd), CategoryClass},
		{f.union(rd, wr), CategoryInterface},
		{f.union(dog, f.formal("List", "Element")), CategoryOther},
		{f.intersection(rd, wr), CategoryInterface},
		{f.intersection(dog, rd), CategoryOther},
		{f.difference(dog, rd), CategoryInterface},
		{NewTypeSequence(f.a), CategoryOther},
		{f.class("Undeclared"), CategoryOther},
	} {
		assert.Equal(t, tc.want, e.Category(tc.typ), e.Format(tc.typ))
	}
}

func TestNullable(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	null, str := f.class("Null"), f.class("String")

	assert.True(t, e.IsOnlyNullable(null))
	assert.True(t, e.IsOnlyNullable(f.union(null, null)))
	assert.False(t, e.IsOnlyNullable(f.union(null, str)))

	assert.True(t, e.IsNullable(null))
	assert.True(t, e.IsNullable(f.union(null, str)))
	assert.False(t, e.IsNullable(str))
	assert.False(t, e.IsNullable(f.union(str, f.class("Int"))))
	assert.False(t, e.IsNullable(f.difference(f.union(null, str), null)))

	require.Equal(t, "String?", e.Format(f.union(null, str)))
}

func TestImmutability(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	dog := f.class("Dog")

	assert.True(t, e.IsImmutable(f.class("Int")))
	assert.True(t, e.IsImmutable(f.class("Boolean")))
	assert.False(t, e.IsImmutable(dog))
	assert.True(t, e.IsImmutable(NewAccess(f.a, NewImmutable(f.a, dog), Private)))
	assert.True(t, e.IsImmutable(f.intersection(dog, f.class("Int"))))
	assert.False(t, e.IsImmutable(f.union(dog, f.class("Int"))))

	assert.True(t, e.IsImmutabilitySpecified(NewAccess(f.a, NewImmutable(f.a, dog), Private)))
	assert.False(t, e.IsImmutabilitySpecified(f.class("Int")))

	h := NewAccess(f.a, NewImmutable(f.a, dog), Private)
	require.Equal(t, NewAccess(f.a, dog, Private), StripImmutable(f.a, h))
	require.Equal(t, NewImmutable(f.a, dog), StripAccess(f.a, h))
	require.Equal(t, Private, AccessOf(f.a, h))
}

func TestDefiningClass(t *testing.T) {
	f := newFixture(t)
	f.define(
		&ClassDef{ID: "Tree"},
		&ClassDef{ID: ChildID("Tree", "Node"), Outer: "Tree", Virtual: true},
		&ClassDef{ID: "Oak", Contribs: []Contribution{{Kind: Extends, Type: f.class("Tree")}}},
	)
	e := f.engine()

	for _, tc := range []struct {
		typ  Handle
		want ClassID
		ok   bool
	}{
		{f.of("List", f.class("Dog")), "List", true},
		{NewThisClass(f.a, "Dog"), "Dog", true},
		{f.union(f.class("Dog"), f.class("Dog")), "Dog", true},
		{f.union(f.class("Dog"), f.class("Cat")), "", false},
		{NewVirtualChild(f.a, f.class("Oak"), "Node", false), "Tree.Node", true},
		{NewParentOf(f.a, NewVirtualChild(f.a, f.class("Oak"), "Node", false)), "Oak", true},
		{NewParentOf(f.a, f.class("Tree.Node")), "Tree", true},
		{f.formal("List", "Element"), "", false},
	} {
		id, ok := e.DefiningClass(tc.typ)
		assert.Equal(t, tc.ok, ok, e.Format(tc.typ))
		assert.Equal(t, tc.want, id, e.Format(tc.typ))
	}

	require.True(t, e.IsSingleUnderlyingClass(f.intersection(f.class("Dog"), f.class("Dog"))))
	require.False(t, e.IsSingleUnderlyingClass(f.intersection(f.class("Dog"), f.class("Cat"))))
}

func TestOpTable(t *testing.T) {
	type ops struct{ name string }
	f := newFixture(t, WithCapabilities(CapabilityMap{"String": ops{"strings"}}))
	e := f.engine()

	table, err := e.OpTable(NewImmutable(f.a, f.class("String")))
	require.NoError(t, err)
	require.Equal(t, ops{"strings"}, table)

	_, err = e.OpTable(f.union(f.class("Dog"), f.class("Cat")))
	require.ErrorIs(t, err, ErrNoSingleClass)

	_, err = e.OpTable(f.class("Dog"))
	require.ErrorContains(t, err, "no operations registered for Dog")

	_, err = e.OpTable(NewUnresolved(f.a, "Mystery"))
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestConditions(t *testing.T) {
	c := Conditions{"debug": true, "linux": true}
	for cond, want := range map[string]bool{
		"":               true,
		"debug":          true,
		"!debug":         false,
		"test":           false,
		"!test":          true,
		"debug & linux":  true,
		"debug & !linux": false,
		"debug&!test":    true,
	} {
		assert.Equal(t, want, c.IsPresent(cond), cond)
	}
}

func TestConditionalDeclarations(t *testing.T) {
	f := newFixture(t, WithLinker(Conditions{"debug": true}))
	f.define(&ClassDef{ID: "Logger",
		Contribs: []Contribution{{Kind: Implements, Type: f.class("Readable"), Condition: "!debug"}},
		Methods: []MethodDef{
			{Name: "trace", HasCode: true, Condition: "debug"},
			{Name: "fast", HasCode: true, Condition: "release"},
		}})
	e := f.engine()

	info := f.info(f.class("Logger"))
	require.Len(t, info.MethodsNamed("trace"), 1)
	require.Empty(t, info.MethodsNamed("fast"))
	require.False(t, info.Implemented.Has("Readable"))
	require.False(t, e.IsA(f.class("Logger"), f.class("Readable")))
}

func TestFormat(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	dog, cat, str := f.class("Dog"), f.class("Cat"), f.class("String")

	for _, tc := range []struct {
		typ  Handle
		want string
	}{
		{f.of("List", dog), "List<Dog>"},
		{f.union(dog, f.intersection(cat, str)), "Dog + (Cat | String)"},
		{f.difference(f.class("Readable"), f.class("Writable")), "Readable - Writable"},
		{NewAccess(f.a, dog, Private), "Dog:private"},
		{NewImmutable(f.a, f.of("List", dog)), "immutable List<Dog>"},
		{NewAnnotated(f.a, "Watched", dog, str), "@Watched(String) Dog"},
		{NewFormalChild(f.a, f.formal("Map", "Key"), "Hash"), "Key.Hash"},
		{NewThisClass(f.a, "Dog"), "this:class(Dog)"},
		{NewPropertyDerived(f.a, dog, "name"), "Dog.name.type"},
		{NewUnresolved(f.a, "Mystery"), "<unresolved Mystery>"},
	} {
		assert.Equal(t, tc.want, e.Format(tc.typ))
	}

	require.Equal(t, "adopt(Animal, Int) -> Dog",
		FormatSignature(f.a, Signature{Name: "adopt", Params: []Handle{f.class("Animal"), f.class("Int")}, Returns: []Handle{dog}}))
}
