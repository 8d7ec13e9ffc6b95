package xtype

import (
	"context"
	"testing"

	"github.com/dagger/testctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type TypeInfoSuite struct{}

func TestTypeInfo(tT *testing.T) {
	testctx.New(tT).RunTests(TypeInfoSuite{})
}

func (TypeInfoSuite) TestExtension(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	dog := f.info(f.class("Dog"))

	require.Equal(t, ClassID("Dog"), dog.Class)
	require.Equal(t, Public, dog.Access)
	require.True(t, dog.IsComplete())
	require.Equal(t, []ClassID{"Animal"}, dog.Extended.Sorted())
	require.True(t, dog.Implicit.Has("Object"))

	speak := f.methodNamed(dog, "speak")
	require.Equal(t, []string{"code Dog", "code Animal"}, bodyClasses(speak))
	require.Equal(t, []string{"code Dog"}, bodyClasses(f.methodNamed(dog, "fetch")))
	require.Equal(t, []string{"implicit Object"}, bodyClasses(f.methodNamed(dog, "equals")))

	name, ok := dog.Property("name")
	require.True(t, ok)
	require.Equal(t, f.class("String"), name.Type())
	require.True(t, name.RequiresField())

	puppy := f.info(f.class("Puppy"))
	require.Equal(t, []ClassID{"Animal", "Dog"}, puppy.Extended.Sorted())
	require.Equal(t, []string{"code Dog", "code Animal"}, bodyClasses(f.methodNamed(puppy, "speak")))
	require.Equal(t, puppy.Contributors(), ClassSet{"Animal": {}, "Dog": {}, "Object": {}})

	require.Empty(t, f.diag.Diagnostics)
}

func (TypeInfoSuite) TestCaching(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	e := f.engine()
	h := f.of("ArrayList", f.class("Dog"))

	first, err := e.TypeInfo(h)
	require.NoError(t, err)
	second, err := e.TypeInfo(h)
	require.NoError(t, err)
	require.Same(t, first, second)

	t.Run("concurrent requests converge", func(ctx context.Context, t *testctx.T) {
		f := newFixture(t)
		e := f.engine()
		h := f.of("ArrayList", f.of("List", f.class("Puppy")))
		infos := make([]*TypeInfo, 32)
		eg := new(errgroup.Group)
		for i := range infos {
			eg.Go(func() error {
				info, err := e.TypeInfo(h)
				infos[i] = info
				if i%2 == 0 {
					e.IsA(h, f.of("Iterable", f.of("List", f.class("Dog"))))
				}
				return err
			})
		}
		require.NoError(t, eg.Wait())
		for _, info := range infos {
			require.Same(t, infos[0], info)
		}
	})
}

func (TypeInfoSuite) TestParameters(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	dog := f.class("Dog")
	list := f.info(f.of("ArrayList", dog))

	require.Equal(t, []ClassID{"Iterable", "List"}, list.Implemented.Sorted())
	elem := list.Params["Element"]
	require.Equal(t, dog, elem.Type())
	require.True(t, elem.IsBound())
	require.Equal(t, f.class("Object"), elem.Constraint)

	prop, ok := list.Property("Element")
	require.True(t, ok)
	require.True(t, prop.IsTypeParam())
	require.Equal(t, dog, prop.Type())

	get := f.methodNamed(list, "get")
	require.Equal(t, []Handle{dog}, get.Signature().Returns)
	require.Equal(t, []string{"code ArrayList"}, bodyClasses(get))
	require.Equal(t, []Handle{dog}, f.methodNamed(list, "first").Signature().Returns)

	t.Run("unbound parameters use the constraint", func(ctx context.Context, t *testctx.T) {
		raw := f.info(f.class("List"))
		elem := raw.Params["Element"]
		require.False(t, elem.IsBound())
		require.Equal(t, f.class("Object"), elem.Type())
		require.Equal(t, []Handle{f.class("Object")}, f.methodNamed(raw, "get").Signature().Returns)
	})

	t.Run("string iterates chars", func(ctx context.Context, t *testctx.T) {
		str := f.info(f.class("String"))
		require.Equal(t, f.class("Char"), str.Params["Element"].Type())
		require.Equal(t, []string{"code String"}, bodyClasses(f.methodNamed(str, "first")))
	})

	require.Empty(t, f.diag.Diagnostics)
}

func (TypeInfoSuite) TestAccessViews(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	str := f.class("String")
	f.define(
		&ClassDef{ID: "Vault",
			Props: []PropertyDef{
				{Name: "secret", Type: str, RefAccess: Private, HasField: true},
				{Name: "count", Type: f.class("Int"), ReadOnly: true, HasField: true},
				{Name: "label", Type: str, ReadOnly: true},
			},
			Methods: []MethodDef{
				method("open", nil),
				{Name: "lock", HasCode: true, Access: Private},
				{Name: "seal", HasCode: true, Access: Protected},
			}},
		&ClassDef{ID: "SubVault", Contribs: []Contribution{{Kind: Extends, Type: f.class("Vault")}}},
	)
	vault := f.class("Vault")

	names := func(info *TypeInfo) []string {
		var out []string
		for _, key := range info.MethodKeys() {
			if m := info.Methods[key]; m.Head().Impl != Implicit {
				out = append(out, m.Signature().Name)
			}
		}
		return out
	}

	public := f.info(vault)
	require.Equal(t, []string{"open"}, names(public))
	require.Equal(t, []string{"count", "label"}, public.PropertyNames())

	protected := f.info(NewAccess(f.a, vault, Protected))
	require.Equal(t, Protected, protected.Access)
	require.ElementsMatch(t, []string{"open", "seal"}, names(protected))

	private := f.info(NewAccess(f.a, vault, Private))
	require.ElementsMatch(t, []string{"open", "lock", "seal"}, names(private))
	require.Equal(t, []string{"count", "label", "secret"}, private.PropertyNames())

	structView := f.info(NewAccess(f.a, vault, Struct))
	require.Empty(t, structView.Methods)
	require.Equal(t, []string{"count", "secret"}, structView.PropertyNames())

	t.Run("subclasses see protected members", func(ctx context.Context, t *testctx.T) {
		sub := f.info(NewAccess(f.a, f.class("SubVault"), Private))
		require.ElementsMatch(t, []string{"open", "seal"}, names(sub))
		_, ok := sub.Property("secret")
		require.False(t, ok)
	})
}

func (TypeInfoSuite) TestDelegation(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	rd := f.class("Readable")
	f.define(
		&ClassDef{ID: "Wrapper",
			Contribs: []Contribution{{Kind: Delegates, Type: rd, Delegate: "inner"}},
			Props:    []PropertyDef{{Name: "inner", Type: rd, HasField: true}}},
		&ClassDef{ID: "Broken",
			Contribs: []Contribution{{Kind: Delegates, Type: rd, Delegate: "missing"}}},
	)
	e := f.engine()

	info := f.info(f.class("Wrapper"))
	read := f.methodNamed(info, "read")
	require.Equal(t, Delegating, read.Head().Impl)
	require.Equal(t, "inner", read.Head().Target)
	require.Equal(t, Implicit, f.methodNamed(info, "equals").Head().Impl)
	require.True(t, info.Implemented.Has("Readable"))
	require.True(t, e.IsA(f.class("Wrapper"), rd))
	require.Empty(t, f.diag.Diagnostics)

	f.info(f.class("Broken"))
	require.Equal(t, []string{CodeDelegateMissing}, f.diag.Codes())
}

func (TypeInfoSuite) TestMixins(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	str := f.class("String")
	animal := f.class("Animal")
	f.define(
		&ClassDef{ID: "Tagged", Format: FormatMixin,
			Contribs: []Contribution{{Kind: Into, Type: animal}},
			Props:    []PropertyDef{{Name: "tag", Type: str, HasField: true}},
			Methods:  []MethodDef{method("describe", nil, str)}},
		&ClassDef{ID: "Parrot",
			Contribs: []Contribution{
				{Kind: Extends, Type: animal},
				{Kind: Incorporates, Type: f.class("Tagged")},
			}},
	)
	e := f.engine()

	tagged := f.info(f.class("Tagged"))
	require.Equal(t, []string{"implicit Animal"}, bodyClasses(f.methodNamed(tagged, "speak")))
	_, ok := tagged.Property("name")
	require.True(t, ok)

	parrot := f.info(f.class("Parrot"))
	require.True(t, parrot.Incorporated.Has("Tagged"))
	require.Equal(t, []string{"code Tagged"}, bodyClasses(f.methodNamed(parrot, "describe")))
	require.Equal(t, []string{"code Animal"}, bodyClasses(f.methodNamed(parrot, "speak")))
	require.Equal(t, []string{"name", "tag"}, parrot.PropertyNames())
	require.True(t, e.IsA(f.class("Parrot"), f.class("Tagged")))
	require.True(t, e.IsA(f.class("Parrot"), NewAnnotated(f.a, "Tagged", animal)))

	t.Run("annotations layer above the annotated type", func(ctx context.Context, t *testctx.T) {
		dog := f.info(NewAnnotated(f.a, "Tagged", f.class("Dog")))
		require.Equal(t, ClassID("Dog"), dog.Class)
		require.True(t, dog.Incorporated.Has("Tagged"))
		require.Equal(t, []string{"code Dog", "code Animal"}, bodyClasses(f.methodNamed(dog, "speak")))
		require.Equal(t, []string{"code Tagged"}, bodyClasses(f.methodNamed(dog, "describe")))
		_, ok := dog.Property("tag")
		require.True(t, ok)
	})

	require.Empty(t, f.diag.Diagnostics)
}

func (TypeInfoSuite) TestRelationalInfos(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	dog, cat := f.class("Dog"), f.class("Cat")

	either := f.info(f.union(dog, cat))
	require.Empty(t, either.Class)
	require.Equal(t, FormatInterface, either.Format)
	require.Len(t, either.MethodsNamed("speak"), 1)
	require.Empty(t, either.MethodsNamed("fetch"))
	require.Equal(t, []ClassID{"Animal"}, either.Extended.Sorted())

	both := f.info(f.intersection(f.class("Readable"), f.class("Writable")))
	require.Len(t, both.MethodsNamed("read"), 1)
	require.Len(t, both.MethodsNamed("write"), 1)

	diff := f.info(f.difference(f.class("File"), f.class("Pipe")))
	require.Empty(t, diff.Class)
	require.Len(t, diff.MethodsNamed("write"), 1)
	require.Empty(t, diff.MethodsNamed("read"))
	require.Empty(t, diff.MethodsNamed("equals"))
	require.Equal(t, []ClassID{"Writable"}, diff.Implemented.Sorted())

	lists := f.info(f.union(f.of("List", dog), f.of("List", cat)))
	require.Equal(t, ClassID("List"), lists.Class)
	require.Equal(t, f.union(dog, cat), lists.Params["Element"].Type())
}

func (TypeInfoSuite) TestPropertyTypes(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	str := f.class("String")
	f.define(&ClassDef{ID: "Named", Props: []PropertyDef{{
		Name: "title", Type: str, ReadOnly: true,
		Methods: []MethodDef{method("get", nil, str)},
	}}})

	name := f.info(NewPropertyDerived(f.a, f.class("Animal"), "name"))
	require.Equal(t, ClassID("Var"), name.Class)
	require.Len(t, name.MethodsNamed("set"), 1)
	require.Equal(t, []Handle{str}, f.methodNamed(name, "get").Signature().Returns)

	size := f.info(NewPropertyDerived(f.a, f.of("ArrayList", f.class("Dog")), "size"))
	require.Equal(t, ClassID("Ref"), size.Class)
	require.Empty(t, size.MethodsNamed("set"))
	require.Equal(t, []Handle{f.class("Int")}, f.methodNamed(size, "get").Signature().Returns)

	title := f.info(NewPropertyDerived(f.a, f.class("Named"), "title"))
	require.Equal(t, []string{"code Named"}, bodyClasses(f.methodNamed(title, "get")))

	_, err := f.engine().TypeInfo(NewPropertyDerived(f.a, f.class("Named"), "missing"))
	require.Error(t, err)
}

func (TypeInfoSuite) TestDiagnostics(ctx context.Context, t *testctx.T) {
	for _, tc := range []struct {
		name string
		defs func(*fixture) []*ClassDef
		typ  ClassID
		code string
	}{
		{
			name: "class implementing a class",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Contribs: []Contribution{{Kind: Implements, Type: f.class("Dog")}}}}
			},
			typ:  "Bad",
			code: CodeContributionKind,
		},
		{
			name: "class incorporating an interface",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Contribs: []Contribution{{Kind: Incorporates, Type: f.class("Readable")}}}}
			},
			typ:  "Bad",
			code: CodeContributionKind,
		},
		{
			name: "interface extending a class",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Format: FormatInterface, Contribs: []Contribution{{Kind: Extends, Type: f.class("Dog")}}}}
			},
			typ:  "Bad",
			code: CodeContributionKind,
		},
		{
			name: "undeclared contribution",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Contribs: []Contribution{{Kind: Extends, Type: f.class("Ghost")}}}}
			},
			typ:  "Bad",
			code: CodeUnknownClass,
		},
		{
			name: "extension cycle",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{
					{ID: "Egg", Contribs: []Contribution{{Kind: Extends, Type: f.class("Hen")}}},
					{ID: "Hen", Contribs: []Contribution{{Kind: Extends, Type: f.class("Egg")}}},
				}
			},
			typ:  "Egg",
			code: CodeContributionCycle,
		},
		{
			name: "conflicting parameter bindings",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Contribs: []Contribution{
					{Kind: Implements, Type: f.of("Source", f.class("Dog"))},
					{Kind: Implements, Type: f.of("Sink", f.class("Fish"))},
				}}}
			},
			typ:  "Bad",
			code: CodeTypeParamConflict,
		},
		{
			name: "property shadowing a type parameter",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad",
					Params: []ParamDef{{Name: "Value"}},
					Props:  []PropertyDef{{Name: "Value", Type: f.class("Int")}}}}
			},
			typ:  "Bad",
			code: CodePropertyTypeParamMix,
		},
		{
			name: "method declared twice",
			defs: func(f *fixture) []*ClassDef {
				return []*ClassDef{{ID: "Bad", Methods: []MethodDef{method("run", nil), method("run", nil)}}}
			},
			typ:  "Bad",
			code: CodeMethodAmbiguous,
		},
	} {
		t.Run(tc.name, func(ctx context.Context, t *testctx.T) {
			f := newFixture(t)
			f.define(tc.defs(f)...)
			info := f.info(f.class(tc.typ))
			require.NotNil(t, info)
			require.Contains(t, f.diag.Codes(), tc.code)
		})
	}

	t.Run("undeclared class", func(ctx context.Context, t *testctx.T) {
		f := newFixture(t)
		_, err := f.engine().TypeInfo(f.class("Ghost"))
		require.Error(t, err)
		require.Equal(t, []string{CodeUnknownClass}, f.diag.Codes())
	})

	t.Run("unresolved types", func(ctx context.Context, t *testctx.T) {
		f := newFixture(t)
		_, err := f.engine().TypeInfo(f.of("List", NewUnresolved(f.a, "Mystery")))
		require.ErrorIs(t, err, ErrUnresolved)
		_, err = f.engine().TypeInfo(NoHandle)
		require.Error(t, err)
	})
}

func (TypeInfoSuite) TestRelationsDuringBuilds(ctx context.Context, t *testctx.T) {
	// Square binds Element to both itself and Shape, so flattening it asks
	// whether Square is a Shape, which needs Square's own members.
	squares := func(t *testctx.T) (*fixture, Handle, Handle) {
		f := newFixture(t)
		shape, square := f.class("Shape"), f.class("Square")
		f.define(
			&ClassDef{ID: "Shape", Format: FormatInterface,
				Methods: []MethodDef{abstract("area", nil, f.class("Int"))}},
			&ClassDef{ID: "Square",
				Contribs: []Contribution{
					{Kind: Implements, Type: f.of("Source", square)},
					{Kind: Implements, Type: f.of("Sink", shape)},
				},
				Methods: []MethodDef{method("area", nil, f.class("Int"))}},
		)
		return f, square, shape
	}
	relate := func(t *testctx.T, e *Engine, l, r Handle) Relation {
		rel, err := e.Relation(l, r)
		require.NoError(t, err)
		return rel
	}

	relationFirst, square, shape := squares(t)
	e := relationFirst.engine()
	require.Equal(t, IsAWeak, relate(t, e, square, shape))
	require.Empty(t, relationFirst.diag.Diagnostics, "nothing is published while Square is provisional")
	relationFirst.info(square)
	require.Equal(t, IsAWeak, relate(t, e, square, shape))

	infoFirst, square, shape := squares(t)
	e = infoFirst.engine()
	info := infoFirst.info(square)
	require.True(t, info.IsComplete())
	require.Len(t, info.MethodsNamed("area"), 1)
	require.Equal(t, IsAWeak, relate(t, e, square, shape))

	assert.ElementsMatch(t, relationFirst.diag.Codes(), infoFirst.diag.Codes())
	conflicts := 0
	for _, code := range infoFirst.diag.Codes() {
		if code == CodeTypeParamConflict {
			conflicts++
		}
	}
	require.Equal(t, 1, conflicts, "each conflict is reported once")
}

func (TypeInfoSuite) TestCyclesTerminate(ctx context.Context, t *testctx.T) {
	f := newFixture(t)
	rec := f.formal("Rec", "T")
	f.define(
		&ClassDef{ID: "Rec", Params: []ParamDef{{Name: "T", Constraint: f.of("Tuple", rec)}}},
		&ClassDef{ID: "Egg", Contribs: []Contribution{{Kind: Extends, Type: f.class("Hen")}}},
		&ClassDef{ID: "Hen", Contribs: []Contribution{{Kind: Extends, Type: f.class("Egg")}}},
	)
	e := f.engine()

	info := f.info(f.class("Rec"))
	require.True(t, info.IsComplete())
	require.Equal(t, f.of("Tuple", rec), info.Params["T"].Constraint)

	formal := f.info(rec)
	require.Equal(t, ClassID("Tuple"), formal.Class)
	require.True(t, e.IsA(rec, f.class("Tuple")))

	egg := f.info(f.class("Egg"))
	require.True(t, egg.Extended.Has("Hen"))
	assert.True(t, e.IsA(f.class("Egg"), f.class("Hen")))
	assert.True(t, e.IsA(f.class("Hen"), f.class("Egg")))
	assert.False(t, e.IsA(f.class("Egg"), f.class("Fish")))
	require.Contains(t, f.diag.Codes(), CodeContributionCycle)
}
