// Package universe loads class universes and named types from TOML and
// YAML files.
package universe

// File is the decoded form of a universe file.
type File struct {
	Roots Roots `toml:"universe" yaml:"universe"`
	// Conditions are the names defined for conditional declarations.
	Conditions []string `toml:"conditions" yaml:"conditions"`
	// Classes are keyed by identity; child classes use Outer.Name.
	Classes map[string]Class `toml:"classes" yaml:"classes"`
	// Types binds names to type expressions for use by tools.
	Types map[string]string `toml:"types" yaml:"types"`
}

// Roots overrides the well-known classes of the universe.
type Roots struct {
	Object   string   `toml:"object" yaml:"object"`
	Null     string   `toml:"null" yaml:"null"`
	Tuple    string   `toml:"tuple" yaml:"tuple"`
	Ref      string   `toml:"ref" yaml:"ref"`
	Var      string   `toml:"var" yaml:"var"`
	Implicit []string `toml:"implicit" yaml:"implicit"`
}

type Class struct {
	// Format is class, interface, mixin, const or enum.
	Format   string  `toml:"format" yaml:"format"`
	Outer    string  `toml:"outer" yaml:"outer"`
	Virtual  bool    `toml:"virtual" yaml:"virtual"`
	Abstract bool    `toml:"abstract" yaml:"abstract"`
	Params   []Param `toml:"params" yaml:"params"`

	Extends       string         `toml:"extends" yaml:"extends"`
	Implements    []string       `toml:"implements" yaml:"implements"`
	Incorporates  []string       `toml:"incorporates" yaml:"incorporates"`
	Into          []string       `toml:"into" yaml:"into"`
	Delegates     []Delegate     `toml:"delegates" yaml:"delegates"`
	Contributions []Contribution `toml:"contributions" yaml:"contributions"`

	Properties []Property `toml:"properties" yaml:"properties"`
	Methods    []Method   `toml:"methods" yaml:"methods"`
}

type Param struct {
	Name       string `toml:"name" yaml:"name"`
	Constraint string `toml:"constraint" yaml:"constraint"`
}

// Delegate forwards an interface to the value of a property.
type Delegate struct {
	Type     string `toml:"type" yaml:"type"`
	Property string `toml:"property" yaml:"property"`
}

// Contribution is the general form of the shorthand contribution lists,
// for contributions that carry a condition or are annotations.
type Contribution struct {
	Kind      string `toml:"kind" yaml:"kind"`
	Type      string `toml:"type" yaml:"type"`
	Delegate  string `toml:"delegate" yaml:"delegate"`
	Condition string `toml:"condition" yaml:"condition"`
}

type Property struct {
	Name string `toml:"name" yaml:"name"`
	Type string `toml:"type" yaml:"type"`
	// Flags are any of read-only, field, custom, abstract, constant and
	// static, in any case style.
	Flags       []string `toml:"flags" yaml:"flags"`
	Access      string   `toml:"access" yaml:"access"`
	VarAccess   string   `toml:"var_access" yaml:"var_access"`
	Initial     string   `toml:"initial" yaml:"initial"`
	Initializer string   `toml:"initializer" yaml:"initializer"`
	Methods     []Method `toml:"methods" yaml:"methods"`
	Condition   string   `toml:"condition" yaml:"condition"`
}

type Method struct {
	Name       string   `toml:"name" yaml:"name"`
	Params     []string `toml:"params" yaml:"params"`
	Returns    []string `toml:"returns" yaml:"returns"`
	TypeParams []Param  `toml:"type_params" yaml:"type_params"`
	// Flags are any of code, native, abstract and static.
	Flags     []string `toml:"flags" yaml:"flags"`
	Access    string   `toml:"access" yaml:"access"`
	Condition string   `toml:"condition" yaml:"condition"`
}
