package xtype

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Format is the kind of a class declaration.
type Format uint8

const (
	FormatClass Format = iota
	FormatInterface
	FormatMixin
	FormatConst
	FormatEnum
)

func (f Format) String() string {
	switch f {
	case FormatClass:
		return "class"
	case FormatInterface:
		return "interface"
	case FormatMixin:
		return "mixin"
	case FormatConst:
		return "const"
	case FormatEnum:
		return "enum"
	}
	return fmt.Sprintf("Format(%d)", f)
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "class":
		return FormatClass, nil
	case "interface":
		return FormatInterface, nil
	case "mixin":
		return FormatMixin, nil
	case "const":
		return FormatConst, nil
	case "enum":
		return FormatEnum, nil
	}
	return FormatClass, fmt.Errorf("unknown class format %q", s)
}

// ContribKind is how a contribution brings members into a class.
type ContribKind uint8

const (
	Extends ContribKind = iota
	Implements
	Incorporates
	Delegates
	Into
	Annotation
)

func (k ContribKind) String() string {
	switch k {
	case Extends:
		return "extends"
	case Implements:
		return "implements"
	case Incorporates:
		return "incorporates"
	case Delegates:
		return "delegates"
	case Into:
		return "into"
	case Annotation:
		return "annotation"
	}
	return fmt.Sprintf("ContribKind(%d)", k)
}

// Contribution is one declared source of members.
type Contribution struct {
	Kind ContribKind
	Type Handle
	// Delegate names the property that supplies the implementation of a
	// Delegates contribution.
	Delegate string
	// Condition, when set, is checked with the engine's Linker.
	Condition string
}

// ParamDef declares a formal type parameter and its constraint.
type ParamDef struct {
	Name       string
	Constraint Handle
}

// MethodDef is a method as declared by one class.
type MethodDef struct {
	Name       string
	Params     []Handle
	Returns    []Handle
	TypeParams []ParamDef
	// Static methods are functions: they take no target.
	Static bool
	// HasCode marks a method with a body. On an interface a body is a
	// default implementation.
	HasCode   bool
	Native    bool
	Abstract  bool
	Access    Access
	Condition string
}

// Signature returns the declared signature of m.
func (m *MethodDef) Signature() Signature {
	return Signature{Name: m.Name, Params: m.Params, Returns: m.Returns}
}

// PropertyDef is a property as declared by one class.
type PropertyDef struct {
	Name        string
	Type        Handle
	ReadOnly    bool
	RefAccess   Access
	VarAccess   Access
	HasField    bool
	Custom      bool
	Abstract    bool
	Constant    bool
	Static      bool
	Initial     string
	Initializer string
	// Methods declared on the property's Ref/Var, such as a custom get.
	Methods   []MethodDef
	Condition string
}

// ClassDef is a class, interface or mixin declaration.
type ClassDef struct {
	ID       ClassID
	Format   Format
	Outer    ClassID
	Virtual  bool
	Abstract bool
	Params   []ParamDef
	Contribs []Contribution
	Props    []PropertyDef
	Methods  []MethodDef
}

// ParamIndex returns the position of the named type parameter, or -1.
func (c *ClassDef) ParamIndex(name string) int {
	for i, p := range c.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// IsInterface reports whether c declares an interface.
func (c *ClassDef) IsInterface() bool {
	return c.Format == FormatInterface
}

// SimpleName returns the last segment of the class identity.
func (c *ClassDef) SimpleName() string {
	s := string(c.ID)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Universe is the set of class declarations types are resolved against.
type Universe struct {
	// Object is the root class every type is assignable to.
	Object ClassID
	// Null is the only-nullable class.
	Null ClassID
	// Tuple is the class whose parameters form a type sequence.
	Tuple ClassID
	// Implicit classes contribute implicit members to every type.
	Implicit []ClassID
	// Ref and Var are the classes of read-only and read-write property
	// references; their single parameter is the property type.
	Ref, Var ClassID

	mu      sync.RWMutex
	classes map[ClassID]*ClassDef
}

func NewUniverse() *Universe {
	return &Universe{
		Object:   "Object",
		Null:     "Null",
		Tuple:    "Tuple",
		Implicit: []ClassID{"Object"},
		Ref:      "Ref",
		Var:      "Var",
		classes:  map[ClassID]*ClassDef{},
	}
}

// Define adds a class declaration. Redefining a class is an error.
func (u *Universe) Define(def *ClassDef) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("define: class has no identity")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.classes[def.ID]; exists {
		return fmt.Errorf("define %s: already defined", def.ID)
	}
	u.classes[def.ID] = def
	return nil
}

// MustDefine is Define for declarations known to be valid.
func (u *Universe) MustDefine(defs ...*ClassDef) {
	for _, def := range defs {
		if err := u.Define(def); err != nil {
			panic(err)
		}
	}
}

func (u *Universe) Class(id ClassID) (*ClassDef, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	def, ok := u.classes[id]
	return def, ok
}

// Classes returns every declaration ordered by identity.
func (u *Universe) Classes() []*ClassDef {
	u.mu.RLock()
	defs := make([]*ClassDef, 0, len(u.classes))
	for _, def := range u.classes {
		defs = append(defs, def)
	}
	u.mu.RUnlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// ChildID is the identity of the child class name declared inside outer.
func ChildID(outer ClassID, name string) ClassID {
	return ClassID(string(outer) + "." + name)
}
