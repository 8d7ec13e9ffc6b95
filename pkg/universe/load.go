package universe

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vito/xtype/pkg/xtype"
)

// ConfigName is the file FindConfig looks for.
const ConfigName = "xtype.toml"

// Loaded is a universe built from a File, with its types interned in a
// fresh arena.
type Loaded struct {
	Path       string
	Arena      *xtype.MemArena
	Universe   *xtype.Universe
	Conditions xtype.Conditions
	// Types are the named bindings from the file.
	Types map[string]xtype.Handle
}

// Engine returns an engine over the loaded universe whose linker honors
// the file's conditions.
func (l *Loaded) Engine(opts ...xtype.Option) *xtype.Engine {
	opts = append([]xtype.Option{xtype.WithLinker(l.Conditions)}, opts...)
	return xtype.New(l.Arena, l.Universe, opts...)
}

// Scope is the top-level scope: declared classes only.
func (l *Loaded) Scope() Scope {
	return Scope{Arena: l.Arena, Universe: l.Universe}
}

// Parse reads a type expression at the top level. A bare name bound in
// the file's types section refers to its binding.
func (l *Loaded) Parse(expr string) (xtype.Handle, error) {
	if h, ok := l.Types[strings.TrimSpace(expr)]; ok {
		return h, nil
	}
	return l.Scope().Parse(expr)
}

// TypeNames returns the bound names in ascending order.
func (l *Loaded) TypeNames() []string {
	names := make([]string, 0, len(l.Types))
	for n := range l.Types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load reads a universe file. Files ending in .yaml or .yml are YAML,
// anything else is TOML.
func Load(path string) (*Loaded, error) {
	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading universe")
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	default:
		md, err := toml.DecodeFile(path, &file)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Errorf("parsing %s: unknown key %s", path, undecoded[0])
		}
	}
	l, err := Build(&file)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	l.Path = path
	slog.Debug("loaded universe", "path", path, "classes", len(file.Classes), "types", len(l.Types))
	return l, nil
}

// FindConfig searches for xtype.toml starting from dir and walking up to
// parent directories, stopping at a .git boundary. It returns "" when
// there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, ConfigName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Build declares every class of file in a new universe and interns the
// types they mention.
func Build(file *File) (*Loaded, error) {
	l := &Loaded{
		Arena:      xtype.NewArena(),
		Universe:   xtype.NewUniverse(),
		Conditions: xtype.Conditions{},
		Types:      map[string]xtype.Handle{},
	}
	applyRoots(l.Universe, file.Roots)
	for _, c := range file.Conditions {
		l.Conditions[strings.TrimSpace(c)] = true
	}

	ids := make([]string, 0, len(file.Classes))
	for id := range file.Classes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Declare first so that type expressions can refer to any class.
	defs := make([]*xtype.ClassDef, len(ids))
	for i, id := range ids {
		c := file.Classes[id]
		format, err := xtype.ParseFormat(c.Format)
		if err != nil {
			return nil, errors.Wrapf(err, "class %s", id)
		}
		def := &xtype.ClassDef{
			ID:       xtype.ClassID(id),
			Format:   format,
			Outer:    xtype.ClassID(c.Outer),
			Virtual:  c.Virtual,
			Abstract: c.Abstract,
		}
		if def.Outer == "" {
			if dot := strings.LastIndexByte(id, '.'); dot > 0 {
				if _, ok := file.Classes[id[:dot]]; ok {
					def.Outer = xtype.ClassID(id[:dot])
				}
			}
		}
		for _, p := range c.Params {
			def.Params = append(def.Params, xtype.ParamDef{Name: p.Name})
		}
		if err := l.Universe.Define(def); err != nil {
			return nil, err
		}
		defs[i] = def
	}

	for i, id := range ids {
		if err := l.fill(defs[i], file.Classes[id]); err != nil {
			return nil, errors.Wrapf(err, "class %s", id)
		}
	}

	names := make([]string, 0, len(file.Types))
	for name := range file.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := l.Scope().Parse(file.Types[name])
		if err != nil {
			return nil, errors.Wrapf(err, "type %s", name)
		}
		l.Types[name] = h
		if err := l.Arena.Register(h); err != nil && !errors.Is(err, xtype.ErrUnresolved) {
			return nil, err
		}
	}
	return l, nil
}

func applyRoots(u *xtype.Universe, r Roots) {
	set := func(dst *xtype.ClassID, v string) {
		if v != "" {
			*dst = xtype.ClassID(v)
		}
	}
	set(&u.Object, r.Object)
	set(&u.Null, r.Null)
	set(&u.Tuple, r.Tuple)
	set(&u.Ref, r.Ref)
	set(&u.Var, r.Var)
	if r.Implicit != nil {
		u.Implicit = nil
		for _, id := range r.Implicit {
			u.Implicit = append(u.Implicit, xtype.ClassID(id))
		}
	}
}

func (l *Loaded) fill(def *xtype.ClassDef, c Class) error {
	scope := Scope{Arena: l.Arena, Universe: l.Universe, Class: def.ID}
	parse := func(what, expr string) (xtype.Handle, error) {
		h, err := scope.Parse(expr)
		if err != nil {
			return xtype.NoHandle, errors.Wrap(err, what)
		}
		return h, nil
	}

	for i, p := range c.Params {
		if p.Constraint == "" {
			continue
		}
		h, err := parse("param "+p.Name, p.Constraint)
		if err != nil {
			return err
		}
		def.Params[i].Constraint = h
	}

	contribs := append([]Contribution(nil), c.Contributions...)
	if c.Extends != "" {
		contribs = append([]Contribution{{Kind: "extends", Type: c.Extends}}, contribs...)
	}
	for _, t := range c.Implements {
		contribs = append(contribs, Contribution{Kind: "implements", Type: t})
	}
	for _, t := range c.Incorporates {
		contribs = append(contribs, Contribution{Kind: "incorporates", Type: t})
	}
	for _, d := range c.Delegates {
		contribs = append(contribs, Contribution{Kind: "delegates", Type: d.Type, Delegate: d.Property})
	}
	for _, t := range c.Into {
		contribs = append(contribs, Contribution{Kind: "into", Type: t})
	}
	for _, cc := range contribs {
		kind, err := ParseContribKind(cc.Kind)
		if err != nil {
			return err
		}
		h, err := parse(kind.String(), cc.Type)
		if err != nil {
			return err
		}
		def.Contribs = append(def.Contribs, xtype.Contribution{
			Kind:      kind,
			Type:      h,
			Delegate:  cc.Delegate,
			Condition: cc.Condition,
		})
	}

	for _, p := range c.Properties {
		prop, err := l.property(scope, p)
		if err != nil {
			return errors.Wrapf(err, "property %s", p.Name)
		}
		def.Props = append(def.Props, prop)
	}
	for _, m := range c.Methods {
		method, err := l.method(def.ID, m)
		if err != nil {
			return errors.Wrapf(err, "method %s", m.Name)
		}
		def.Methods = append(def.Methods, method)
	}
	return nil
}

// ParseContribKind parses a contribution kind name.
func ParseContribKind(s string) (xtype.ContribKind, error) {
	switch strcase.ToKebab(s) {
	case "extends":
		return xtype.Extends, nil
	case "implements":
		return xtype.Implements, nil
	case "incorporates":
		return xtype.Incorporates, nil
	case "delegates":
		return xtype.Delegates, nil
	case "into":
		return xtype.Into, nil
	case "annotation":
		return xtype.Annotation, nil
	}
	return xtype.Extends, errors.Errorf("unknown contribution kind %q", s)
}

// flags normalizes flag names so read_only, readOnly and read-only agree.
func flags(names []string, known ...string) (map[string]bool, error) {
	set := map[string]bool{}
	for _, n := range names {
		flag := strcase.ToKebab(n)
		ok := false
		for _, k := range known {
			if flag == k {
				ok = true
				break
			}
		}
		if !ok {
			return nil, errors.Errorf("unknown flag %q", n)
		}
		set[flag] = true
	}
	return set, nil
}

func (l *Loaded) property(scope Scope, p Property) (xtype.PropertyDef, error) {
	set, err := flags(p.Flags, "read-only", "field", "has-field", "custom", "abstract", "constant", "static")
	if err != nil {
		return xtype.PropertyDef{}, err
	}
	refAccess, err := xtype.ParseAccess(p.Access)
	if err != nil {
		return xtype.PropertyDef{}, err
	}
	varAccess := refAccess
	if p.VarAccess != "" {
		if varAccess, err = xtype.ParseAccess(p.VarAccess); err != nil {
			return xtype.PropertyDef{}, err
		}
	}
	typ, err := scope.Parse(p.Type)
	if err != nil {
		return xtype.PropertyDef{}, err
	}
	def := xtype.PropertyDef{
		Name:        p.Name,
		Type:        typ,
		ReadOnly:    set["read-only"],
		RefAccess:   refAccess,
		VarAccess:   varAccess,
		HasField:    set["field"] || set["has-field"],
		Custom:      set["custom"],
		Abstract:    set["abstract"],
		Constant:    set["constant"],
		Static:      set["static"],
		Initial:     p.Initial,
		Initializer: p.Initializer,
		Condition:   p.Condition,
	}
	for _, m := range p.Methods {
		method, err := l.method(scope.Class, m)
		if err != nil {
			return xtype.PropertyDef{}, errors.Wrapf(err, "method %s", m.Name)
		}
		def.Methods = append(def.Methods, method)
	}
	return def, nil
}

func (l *Loaded) method(class xtype.ClassID, m Method) (xtype.MethodDef, error) {
	set, err := flags(m.Flags, "code", "native", "abstract", "static")
	if err != nil {
		return xtype.MethodDef{}, err
	}
	access, err := xtype.ParseAccess(m.Access)
	if err != nil {
		return xtype.MethodDef{}, err
	}
	scope := Scope{
		Arena:    l.Arena,
		Universe: l.Universe,
		Class:    class,
		Method:   xtype.MethodID(class, m.Name),
	}
	for _, tp := range m.TypeParams {
		scope.MethodVars = append(scope.MethodVars, tp.Name)
	}

	def := xtype.MethodDef{
		Name:      m.Name,
		Static:    set["static"],
		HasCode:   set["code"],
		Native:    set["native"],
		Abstract:  set["abstract"],
		Access:    access,
		Condition: m.Condition,
	}
	for _, tp := range m.TypeParams {
		param := xtype.ParamDef{Name: tp.Name}
		if tp.Constraint != "" {
			if param.Constraint, err = scope.Parse(tp.Constraint); err != nil {
				return xtype.MethodDef{}, err
			}
		}
		def.TypeParams = append(def.TypeParams, param)
	}
	for _, expr := range m.Params {
		h, err := scope.Parse(expr)
		if err != nil {
			return xtype.MethodDef{}, err
		}
		def.Params = append(def.Params, h)
	}
	for _, expr := range m.Returns {
		h, err := scope.Parse(expr)
		if err != nil {
			return xtype.MethodDef{}, err
		}
		def.Returns = append(def.Returns, h)
	}
	return def, nil
}
