package universe

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vito/xtype/pkg/xtype"
)

// Scope decides what the names in a type expression refer to.
type Scope struct {
	Arena    xtype.Arena
	Universe *xtype.Universe
	// Class is the class the expression appears in. Its type parameters,
	// and those of its outer classes, are in scope, as is "this".
	Class xtype.ClassID
	// Method, when set, puts the method's type parameters in scope.
	Method     string
	MethodVars []string
}

// ParseError reports where a type expression stopped making sense.
type ParseError struct {
	Expr   string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Expr, e.Offset, e.Msg)
}

// Parse reads a type expression:
//
//	List<Dog>            parameterized
//	Dog + Cat            union
//	Readable | Writable  intersection
//	Readable - Writable  difference
//	String?              Null + String
//	immutable List<T>    immutable
//	Dog:private          access
//	@Watched(String) Dog annotated
//	T.Hash               formal child
//	this                 the enclosing class, narrowed
//
// Operators are left-associative with equal precedence; use parentheses
// to group. Names that are neither in scope nor declared classes parse to
// Unresolved.
func (s Scope) Parse(expr string) (xtype.Handle, error) {
	p := &parser{scope: s, src: expr}
	p.next()
	h, err := p.relational()
	if err != nil {
		return xtype.NoHandle, err
	}
	if p.tok.kind != tokEOF {
		return xtype.NoHandle, p.errorf("unexpected %s", p.tok)
	}
	return h, nil
}

// MustParse is Parse for expressions known to be valid.
func (s Scope) MustParse(expr string) xtype.Handle {
	h, err := s.Parse(expr)
	if err != nil {
		panic(err)
	}
	return h
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

type parser struct {
	scope Scope
	src   string
	off   int
	tok   token
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Expr: p.src, Offset: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func isIdent(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && (unicode.IsDigit(r) || r == '.')
}

func (p *parser) next() {
	for p.off < len(p.src) && (p.src[p.off] == ' ' || p.src[p.off] == '\t') {
		p.off++
	}
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: p.off}
		return
	}
	start := p.off
	r := rune(p.src[p.off])
	if isIdent(r, true) {
		for p.off < len(p.src) && isIdent(rune(p.src[p.off]), false) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
		return
	}
	p.off++
	p.tok = token{kind: tokPunct, text: p.src[start:p.off], pos: start}
}

func (p *parser) punct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) expect(s string) error {
	if !p.punct(s) {
		return p.errorf("expected %q, got %s", s, p.tok)
	}
	p.next()
	return nil
}

func (p *parser) relational() (xtype.Handle, error) {
	l, err := p.unary()
	if err != nil {
		return xtype.NoHandle, err
	}
	a := p.scope.Arena
	for {
		var build func(xtype.Arena, xtype.Handle, xtype.Handle) xtype.Handle
		switch {
		case p.punct("+"):
			build = xtype.NewUnion
		case p.punct("|"):
			build = xtype.NewIntersection
		case p.punct("-"):
			build = xtype.NewDifference
		default:
			return l, nil
		}
		p.next()
		r, err := p.unary()
		if err != nil {
			return xtype.NoHandle, err
		}
		l = build(a, l, r)
	}
}

func (p *parser) unary() (xtype.Handle, error) {
	a := p.scope.Arena
	switch {
	case p.tok.kind == tokIdent && p.tok.text == "immutable":
		p.next()
		h, err := p.unary()
		if err != nil {
			return xtype.NoHandle, err
		}
		return xtype.NewImmutable(a, h), nil
	case p.punct("@"):
		p.next()
		if p.tok.kind != tokIdent {
			return xtype.NoHandle, p.errorf("expected mixin name, got %s", p.tok)
		}
		mixin := xtype.ClassID(p.tok.text)
		p.next()
		var args []xtype.Handle
		if p.punct("(") {
			p.next()
			var err error
			if args, err = p.list(")"); err != nil {
				return xtype.NoHandle, err
			}
		}
		h, err := p.unary()
		if err != nil {
			return xtype.NoHandle, err
		}
		return xtype.NewAnnotated(a, mixin, h, args...), nil
	}
	h, err := p.primary()
	if err != nil {
		return xtype.NoHandle, err
	}
	for {
		switch {
		case p.punct("?"):
			p.next()
			h = xtype.NewUnion(a, xtype.NewClass(a, p.scope.Universe.Null), h)
		case p.punct(":"):
			p.next()
			if p.tok.kind != tokIdent {
				return xtype.NoHandle, p.errorf("expected access, got %s", p.tok)
			}
			access, err := xtype.ParseAccess(p.tok.text)
			if err != nil {
				return xtype.NoHandle, p.errorf("%s", err)
			}
			p.next()
			h = xtype.NewAccess(a, h, access)
		default:
			return h, nil
		}
	}
}

func (p *parser) primary() (xtype.Handle, error) {
	if p.punct("(") {
		p.next()
		h, err := p.relational()
		if err != nil {
			return xtype.NoHandle, err
		}
		return h, p.expect(")")
	}
	if p.tok.kind != tokIdent {
		return xtype.NoHandle, p.errorf("expected type, got %s", p.tok)
	}
	name := p.tok.text
	p.next()
	h := p.scope.name(name)
	if p.punct("<") {
		p.next()
		if p.punct(">") {
			p.next()
			return xtype.NewTypeSequence(p.scope.Arena), nil
		}
		params, err := p.list(">")
		if err != nil {
			return xtype.NoHandle, err
		}
		return xtype.NewParameterized(p.scope.Arena, h, params...), nil
	}
	return h, nil
}

func (p *parser) list(end string) ([]xtype.Handle, error) {
	var hs []xtype.Handle
	for {
		h, err := p.relational()
		if err != nil {
			return nil, err
		}
		hs = append(hs, h)
		if p.punct(",") {
			p.next()
			continue
		}
		return hs, p.expect(end)
	}
}

// name resolves a possibly dotted name. The longest prefix that is in
// scope or declared wins; remaining segments are children of a formal.
func (s Scope) name(name string) xtype.Handle {
	parts := strings.Split(name, ".")
	for i := len(parts); i > 0; i-- {
		h, ok := s.lookup(strings.Join(parts[:i], "."))
		if !ok {
			continue
		}
		if i < len(parts) && !xtype.ContainsFormal(s.Arena, h) {
			break
		}
		for _, child := range parts[i:] {
			h = xtype.NewFormalChild(s.Arena, h, child)
		}
		return h
	}
	return xtype.NewUnresolved(s.Arena, name)
}

func (s Scope) lookup(name string) (xtype.Handle, bool) {
	if name == "this" && s.Class != "" {
		return xtype.NewThisClass(s.Arena, s.Class), true
	}
	for i, v := range s.MethodVars {
		if v == name {
			return xtype.NewMethodFormal(s.Arena, s.Method, i, name), true
		}
	}
	for class := s.Class; class != ""; {
		def, ok := s.Universe.Class(class)
		if !ok {
			break
		}
		if def.ParamIndex(name) >= 0 {
			return xtype.NewFormal(s.Arena, class, name), true
		}
		// child classes see their siblings by simple name
		if def.Outer != "" {
			if _, ok := s.Universe.Class(xtype.ChildID(def.Outer, name)); ok {
				return xtype.NewClass(s.Arena, xtype.ChildID(def.Outer, name)), true
			}
		}
		if _, ok := s.Universe.Class(xtype.ChildID(class, name)); ok {
			return xtype.NewClass(s.Arena, xtype.ChildID(class, name)), true
		}
		class = def.Outer
	}
	if _, ok := s.Universe.Class(xtype.ClassID(name)); ok {
		return xtype.NewClass(s.Arena, xtype.ClassID(name)), true
	}
	return xtype.NoHandle, false
}
