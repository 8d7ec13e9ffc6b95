package xtype

// testingT is the part of testing.TB the fixture needs; suite tests pass a
// *testctx.T.
type testingT interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

// fixture is a small class library shared by the engine tests. Classes
// must be defined before the engine is first used.
type fixture struct {
	tb   testingT
	a    *MemArena
	u    *Universe
	diag *Collector
	opts []Option
	e    *Engine
}

func newFixture(tb testingT, opts ...Option) *fixture {
	tb.Helper()
	f := &fixture{
		tb:   tb,
		a:    NewArena(),
		u:    NewUniverse(),
		diag: &Collector{},
		opts: opts,
	}
	f.defineLibrary()
	return f
}

func (f *fixture) define(defs ...*ClassDef) {
	f.tb.Helper()
	if f.e != nil {
		f.tb.Fatal("define after the engine was created")
	}
	for _, def := range defs {
		if err := f.u.Define(def); err != nil {
			f.tb.Fatal(err)
		}
	}
}

func (f *fixture) engine() *Engine {
	if f.e == nil {
		opts := append([]Option{WithSink(f.diag)}, f.opts...)
		f.e = New(f.a, f.u, opts...)
	}
	return f.e
}

func (f *fixture) class(id ClassID) Handle {
	return NewClass(f.a, id)
}

func (f *fixture) of(id ClassID, params ...Handle) Handle {
	return NewParameterized(f.a, NewClass(f.a, id), params...)
}

func (f *fixture) formal(class ClassID, name string) Handle {
	return NewFormal(f.a, class, name)
}

func (f *fixture) union(l, r Handle) Handle        { return NewUnion(f.a, l, r) }
func (f *fixture) intersection(l, r Handle) Handle { return NewIntersection(f.a, l, r) }
func (f *fixture) difference(l, r Handle) Handle   { return NewDifference(f.a, l, r) }

func (f *fixture) info(h Handle) *TypeInfo {
	f.tb.Helper()
	info, err := f.engine().TypeInfo(h)
	if err != nil {
		f.tb.Fatal(err)
	}
	return info
}

func (f *fixture) methodNamed(info *TypeInfo, name string) *MethodInfo {
	f.tb.Helper()
	ms := info.MethodsNamed(name)
	if len(ms) != 1 {
		f.tb.Fatalf("%s: want one method %q, have %d", f.engine().Format(info.Type), name, len(ms))
	}
	return ms[0]
}

func method(name string, params []Handle, returns ...Handle) MethodDef {
	return MethodDef{Name: name, Params: params, Returns: returns, HasCode: true}
}

func abstract(name string, params []Handle, returns ...Handle) MethodDef {
	return MethodDef{Name: name, Params: params, Returns: returns}
}

func (f *fixture) defineLibrary() {
	obj := f.class("Object")
	boolean := f.class("Boolean")
	integer := f.class("Int")
	char := f.class("Char")
	str := f.class("String")
	animal := f.class("Animal")
	dog := f.class("Dog")

	f.define(
		&ClassDef{ID: "Object", Methods: []MethodDef{
			method("equals", []Handle{obj}, boolean),
			method("toString", nil, str),
		}},
		&ClassDef{ID: "Boolean", Format: FormatEnum},
		&ClassDef{ID: "Null", Format: FormatEnum},
		&ClassDef{ID: "Int", Format: FormatConst},
		&ClassDef{ID: "Char", Format: FormatConst},
		&ClassDef{ID: "String", Format: FormatConst,
			Contribs: []Contribution{{Kind: Implements, Type: f.of("Iterable", char)}},
			Methods: []MethodDef{
				method("first", nil, char),
				method("size", nil, integer),
			}},
		&ClassDef{ID: "Tuple", Params: []ParamDef{{Name: "ElementTypes"}}},

		&ClassDef{ID: "Ref", Format: FormatInterface,
			Params:  []ParamDef{{Name: "Referent"}},
			Methods: []MethodDef{abstract("get", nil, f.formal("Ref", "Referent"))}},
		&ClassDef{ID: "Var", Format: FormatInterface,
			Params:   []ParamDef{{Name: "Referent"}},
			Contribs: []Contribution{{Kind: Extends, Type: f.of("Ref", f.formal("Var", "Referent"))}},
			Methods:  []MethodDef{abstract("set", []Handle{f.formal("Var", "Referent")})}},

		// Iterable and Source only produce their element, Sink only
		// consumes it, List does both.
		&ClassDef{ID: "Iterable", Format: FormatInterface,
			Params:  []ParamDef{{Name: "Element"}},
			Methods: []MethodDef{abstract("first", nil, f.formal("Iterable", "Element"))}},
		&ClassDef{ID: "Source", Format: FormatInterface,
			Params:  []ParamDef{{Name: "Element"}},
			Methods: []MethodDef{abstract("next", nil, f.formal("Source", "Element"))}},
		&ClassDef{ID: "Sink", Format: FormatInterface,
			Params:  []ParamDef{{Name: "Element"}},
			Methods: []MethodDef{abstract("accept", []Handle{f.formal("Sink", "Element")})}},
		&ClassDef{ID: "List", Format: FormatInterface,
			Params:   []ParamDef{{Name: "Element"}},
			Contribs: []Contribution{{Kind: Extends, Type: f.of("Iterable", f.formal("List", "Element"))}},
			Methods: []MethodDef{
				abstract("get", []Handle{integer}, f.formal("List", "Element")),
				abstract("add", []Handle{f.formal("List", "Element")}, boolean),
			}},
		&ClassDef{ID: "ArrayList",
			Params:   []ParamDef{{Name: "Element"}},
			Contribs: []Contribution{{Kind: Implements, Type: f.of("List", f.formal("ArrayList", "Element"))}},
			Props:    []PropertyDef{{Name: "size", Type: integer, ReadOnly: true, HasField: true}},
			Methods: []MethodDef{
				method("first", nil, f.formal("ArrayList", "Element")),
				method("get", []Handle{integer}, f.formal("ArrayList", "Element")),
				method("add", []Handle{f.formal("ArrayList", "Element")}, boolean),
			}},

		&ClassDef{ID: "Animal",
			Props:   []PropertyDef{{Name: "name", Type: str, HasField: true}},
			Methods: []MethodDef{method("speak", nil, str)}},
		&ClassDef{ID: "Dog",
			Contribs: []Contribution{{Kind: Extends, Type: animal}},
			Methods: []MethodDef{
				method("speak", nil, str),
				method("fetch", nil),
			}},
		&ClassDef{ID: "Cat", Contribs: []Contribution{{Kind: Extends, Type: animal}}},
		&ClassDef{ID: "Puppy", Contribs: []Contribution{{Kind: Extends, Type: dog}}},
		&ClassDef{ID: "Fish"},

		&ClassDef{ID: "Readable", Format: FormatInterface,
			Methods: []MethodDef{abstract("read", nil, integer)}},
		&ClassDef{ID: "Writable", Format: FormatInterface,
			Methods: []MethodDef{abstract("write", []Handle{integer})}},
		&ClassDef{ID: "File",
			Contribs: []Contribution{
				{Kind: Implements, Type: f.class("Readable")},
				{Kind: Implements, Type: f.class("Writable")},
			},
			Methods: []MethodDef{
				method("read", nil, integer),
				method("write", []Handle{integer}),
			}},
		&ClassDef{ID: "Pipe",
			Contribs: []Contribution{{Kind: Implements, Type: f.class("Readable")}},
			Methods:  []MethodDef{method("read", nil, integer)}},
	)
}
