package xtype

// PropertyBody is one class's contribution to a property.
type PropertyBody struct {
	Class ClassID
	Name  string
	Type  Handle
	// Param is set for the property that exposes a formal type parameter.
	Param *ParamInfo

	ReadOnly    bool
	ReadWrite   bool
	RefAccess   Access
	VarAccess   Access
	Field       bool
	Custom      bool
	Abstract    bool
	Constant    bool
	Override    bool
	Static      bool
	Initial     string
	Initializer string
}

func (b *PropertyBody) IsTypeParam() bool {
	return b.Param != nil
}

func (b *PropertyBody) hasInit() bool {
	return b.Initial != "" || b.Initializer != ""
}

// PropertyInfo is the resolved view of a property across all layers.
type PropertyInfo struct {
	// Bodies holds every contributing body, most specific first.
	Bodies []*PropertyBody
	// Effective is the combination of all bodies.
	Effective *PropertyBody
	// Methods declared on the property's Ref or Var, keyed by signature.
	Methods map[string]*MethodInfo
}

func NewPropertyInfo(b *PropertyBody) *PropertyInfo {
	return &PropertyInfo{Bodies: []*PropertyBody{b}, Effective: b}
}

func (p *PropertyInfo) Name() string { return p.Effective.Name }
func (p *PropertyInfo) Type() Handle { return p.Effective.Type }

func (p *PropertyInfo) IsTypeParam() bool {
	return p.Effective.IsTypeParam()
}

// RequiresField reports whether any body stores the value in a field.
func (p *PropertyInfo) RequiresField() bool {
	return p.Effective.Field
}

func (p *PropertyInfo) IsOverride() bool {
	return p.Effective.Override
}

// CombineWithSuper merges this, the more specific body, with that, a body
// contributed by a super type. Conflicts are reported to the engine's sink
// and resolved in favor of this.
func (e *Engine) CombineWithSuper(this, that *PropertyBody) *PropertyBody {
	return e.combineWithSuper(newSession(), this, that)
}

func (e *Engine) combineWithSuper(s *session, this, that *PropertyBody) *PropertyBody {
	ctx := string(this.Class) + "." + this.Name

	if this.IsTypeParam() || that.IsTypeParam() {
		if this.IsTypeParam() != that.IsTypeParam() {
			e.report(s, SeverityError, CodePropertyTypeParamMix, ctx,
				"property %s cannot both name a type parameter and a value", this.Name)
			return this
		}
		switch {
		case e.isA(s, this.Type, that.Type):
			return this
		case e.isA(s, that.Type, this.Type):
			return that
		}
		e.report(s, SeverityError, CodePropertyTypeParamConflict, ctx,
			"type parameter %s is %s here but %s in %s",
			this.Name, e.Format(this.Type), e.Format(that.Type), that.Class)
		return this
	}

	if this.Constant || that.Constant {
		e.report(s, SeverityError, CodePropertyConstant, ctx,
			"constant property %s cannot be combined", this.Name)
		return this
	}
	if !e.isA(s, this.Type, that.Type) || !e.isA(s, that.Type, this.Type) {
		e.report(s, SeverityError, CodePropertyTypeMismatch, ctx,
			"property %s is %s here but %s in %s",
			this.Name, e.Format(this.Type), e.Format(that.Type), that.Class)
		return this
	}
	for _, pair := range [][2]Access{{this.RefAccess, that.RefAccess}, {this.VarAccess, that.VarAccess}} {
		mine, theirs := pair[0], pair[1]
		if (mine == Struct) != (theirs == Struct) {
			e.report(s, SeverityError, CodePropertyStructMix, ctx,
				"struct property %s cannot be combined with a non-struct property", this.Name)
			return this
		}
		if (mine == Private || theirs == Private) && mine != theirs {
			e.report(s, SeverityError, CodePropertyPrivateMix, ctx,
				"private property %s cannot be combined with a %s property",
				this.Name, theirs)
			return this
		}
	}

	merged := *this
	merged.ReadOnly = this.ReadOnly && that.ReadOnly
	merged.ReadWrite = this.ReadWrite || that.ReadWrite
	merged.Custom = this.Custom || that.Custom
	merged.Field = this.Field || that.Field
	merged.Abstract = this.Abstract
	merged.Override = this.Override || that.Override
	if !this.hasInit() {
		merged.Initial = that.Initial
		merged.Initializer = that.Initializer
	}
	return &merged
}

func (e *Engine) layerProperty(s *session, p, below *PropertyInfo) *PropertyInfo {
	if below == nil {
		return p
	}
	bodies := make([]*PropertyBody, 0, len(p.Bodies)+len(below.Bodies))
	bodies = append(bodies, p.Bodies...)
	added := false
	for _, b := range below.Bodies {
		if !containsBody(bodies, b) {
			bodies = append(bodies, b)
			added = true
		}
	}
	if !added {
		// reached again through another path
		return p
	}
	methods := map[string]*MethodInfo{}
	for k, m := range below.Methods {
		methods[k] = m
	}
	for k, m := range p.Methods {
		if lower, ok := methods[k]; ok {
			methods[k] = m.AppendChain(lower)
		} else {
			methods[k] = m
		}
	}
	effective := e.combineWithSuper(s, p.Effective, below.Effective)
	if !effective.Override {
		// the top body now sits over a super body
		over := *effective
		over.Override = true
		effective = &over
	}
	return &PropertyInfo{
		Bodies:    bodies,
		Effective: effective,
		Methods:   methods,
	}
}

// LayerOn places p above the less specific property below.
func (e *Engine) LayerOn(p, below *PropertyInfo) *PropertyInfo {
	return e.layerProperty(newSession(), p, below)
}

func containsBody(bodies []*PropertyBody, b *PropertyBody) bool {
	for _, x := range bodies {
		if x == b || (x.Class == b.Class && x.Type == b.Type) {
			return true
		}
	}
	return false
}
