package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/xtype/pkg/xtype"
)

func loadPets(t *testing.T) *Loaded {
	t.Helper()
	l, err := Load(filepath.Join("testdata", "pets.toml"))
	require.NoError(t, err)
	return l
}

func TestLoadTOML(t *testing.T) {
	l := loadPets(t)
	e := l.Engine()

	list, ok := l.Universe.Class("List")
	require.True(t, ok)
	require.Equal(t, xtype.FormatInterface, list.Format)
	require.Equal(t, "Element", list.Params[0].Name)
	require.Len(t, list.Contribs, 1)
	require.Equal(t, xtype.Extends, list.Contribs[0].Kind)
	require.Equal(t, "Iterable<Element>", e.Format(list.Contribs[0].Type))
	require.Equal(t, xtype.NewFormal(l.Arena, "List", "Element"), xtype.ParamsOf(l.Arena, list.Contribs[0].Type)[0])

	t.Run("method type parameters", func(t *testing.T) {
		var mapDef *xtype.MethodDef
		for i := range list.Methods {
			if list.Methods[i].Name == "map" {
				mapDef = &list.Methods[i]
			}
		}
		require.NotNil(t, mapDef)
		require.Equal(t, "List<Result>", e.Format(mapDef.Returns[0]))
		param := xtype.ParamsOf(l.Arena, mapDef.Returns[0])[0]
		require.Equal(t, xtype.NewMethodFormal(l.Arena, xtype.MethodID("List", "map"), 0, "Result"), param)
	})

	t.Run("flags in any case style", func(t *testing.T) {
		animal, _ := l.Universe.Class("Animal")
		require.True(t, animal.Abstract)
		require.True(t, animal.Props[0].HasField)
		require.True(t, animal.Methods[0].HasCode)

		node, ok := l.Universe.Class("Tree.Node")
		require.True(t, ok)
		require.Equal(t, xtype.ClassID("Tree"), node.Outer)
		require.True(t, node.Virtual)
		require.True(t, node.Props[0].ReadOnly)
		require.Equal(t, "Tree.Node?", e.Format(node.Props[0].Type))
	})

	t.Run("named types", func(t *testing.T) {
		require.Equal(t, []string{"animals", "either", "ghosts", "maybe", "pets"}, l.TypeNames())
		require.Equal(t, "String?", e.Format(l.Types["maybe"]))
		require.True(t, e.IsNullable(l.Types["maybe"]))

		h, err := l.Parse("pets")
		require.NoError(t, err)
		require.Equal(t, l.Types["pets"], h)

		// unresolved bindings are kept but never registered
		require.True(t, xtype.ContainsUnresolved(l.Arena, l.Types["ghosts"]))
		require.NotContains(t, l.Arena.Registered(), l.Types["ghosts"])
		require.Contains(t, l.Arena.Registered(), l.Types["pets"])
	})

	t.Run("relations", func(t *testing.T) {
		rel, err := e.Relation(l.Types["pets"], l.Types["animals"])
		require.NoError(t, err)
		require.Equal(t, xtype.IsAWeak, rel)

		require.True(t, e.IsA(l.Types["either"], l.Scope().MustParse("Animal")))

		cat, speaker := l.Scope().MustParse("Cat"), l.Scope().MustParse("Speaker")
		rel, err = e.Relation(cat, speaker)
		require.NoError(t, err)
		require.Equal(t, xtype.IsAWeak, rel)

		_, err = e.Relation(l.Types["ghosts"], l.Types["animals"])
		require.ErrorIs(t, err, xtype.ErrUnresolved)
	})

	t.Run("conditions", func(t *testing.T) {
		require.Equal(t, xtype.Conditions{"debug": true}, l.Conditions)
		require.True(t, e.IsA(l.Scope().MustParse("Logger"), l.Scope().MustParse("Speaker")))
	})
}

func TestLoadYAML(t *testing.T) {
	l, err := Load(filepath.Join("testdata", "shapes.yaml"))
	require.NoError(t, err)
	e := l.Engine()
	parse := l.Scope().MustParse

	require.Equal(t, []xtype.ClassID{"Object"}, l.Universe.Implicit)
	require.Empty(t, l.Conditions)

	box, ok := l.Universe.Class("Box")
	require.True(t, ok)
	require.Equal(t, parse("Shape"), box.Params[0].Constraint)
	require.True(t, box.Props[0].ReadOnly)
	require.True(t, box.Props[0].HasField)
	require.Equal(t, []xtype.ParamDef{{Name: "Other", Constraint: parse("Shape")}}, box.Methods[0].TypeParams)

	assert.True(t, e.IsA(parse("Square"), parse("Shape")))
	assert.False(t, e.IsA(parse("Logger"), parse("Shape")), "the debug condition is not defined")

	rel, err := e.Relation(parse("Circle"), parse("Shape"))
	require.NoError(t, err)
	assert.Equal(t, xtype.IsAWeak, rel)

	info, err := e.TypeInfo(l.Types["boxed"])
	require.NoError(t, err)
	content, ok := info.Property("content")
	require.True(t, ok)
	require.Equal(t, parse("Square"), content.Type())
	require.Equal(t, "immutable Box<Circle>", e.Format(l.Types["frozen"]))
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		file string
		body string
		err  string
	}{
		{"unknown key", "u.toml", "[classes.A]\ncolour = \"red\"\n", "unknown key classes.A.colour"},
		{"unknown yaml key", "u.yaml", "classes:\n  A:\n    colour: red\n", "field colour not found"},
		{"bad format", "u.toml", "[classes.A]\nformat = \"struct\"\n", `class A: unknown class format "struct"`},
		{"bad flag", "u.toml", "[classes.A]\nmethods = [{ name = \"m\", flags = [\"inline\"] }]\n", `method m: unknown flag "inline"`},
		{"bad kind", "u.toml", "[classes.A]\ncontributions = [{ kind = \"mimics\", type = \"A\" }]\n", `unknown contribution kind "mimics"`},
		{"bad type", "u.yaml", "types:\n  broken: List<\n", "type broken: parse"},
		{"bad access", "u.toml", "[classes.A]\nproperties = [{ name = \"p\", type = \"A\", access = \"secret\" }]\n", `unknown access "secret"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
			_, err := Load(path)
			require.ErrorContains(t, err, tc.err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	path, err := FindConfig(nested)
	require.NoError(t, err)
	require.Empty(t, path)

	config := filepath.Join(root, "a", ConfigName)
	require.NoError(t, os.WriteFile(config, nil, 0o644))
	path, err = FindConfig(nested)
	require.NoError(t, err)
	require.Equal(t, config, path)

	// the search stops at the repository root
	sub := filepath.Join(root, "a", "repo", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "a", "repo", ".git"), 0o755))
	path, err = FindConfig(sub)
	require.NoError(t, err)
	require.Empty(t, path)
}
