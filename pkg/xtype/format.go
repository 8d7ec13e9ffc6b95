package xtype

import (
	"fmt"
	"strings"
)

// Format renders h in source-like notation for diagnostics and tools.
func (e *Engine) Format(h Handle) string {
	return FormatType(e.arena, h)
}

// FormatType renders h in source-like notation.
func FormatType(a Arena, h Handle) string {
	var b strings.Builder
	writeType(&b, a, h, false)
	return b.String()
}

func writeType(b *strings.Builder, a Arena, h Handle, nested bool) {
	if h == NoHandle {
		b.WriteString("<none>")
		return
	}
	switch n := a.Lookup(h).(type) {
	case Terminal:
		switch id := n.Def.(type) {
		case ClassID:
			b.WriteString(string(id))
		case TypeParam:
			b.WriteString(id.Name)
		case MethodParam:
			b.WriteString(id.Name)
		case FormalChild:
			writeType(b, a, id.Parent, true)
			b.WriteByte('.')
			b.WriteString(id.Name)
		case ThisClass:
			fmt.Fprintf(b, "this:class(%s)", id.Class)
		default:
			b.WriteString(n.Def.String())
		}
	case Parameterized:
		writeType(b, a, n.Base, true)
		b.WriteByte('<')
		writeList(b, a, n.Params)
		b.WriteByte('>')
	case Annotated:
		b.WriteByte('@')
		b.WriteString(string(n.Mixin))
		if len(n.Args) > 0 {
			b.WriteByte('(')
			writeList(b, a, n.Args)
			b.WriteByte(')')
		}
		b.WriteByte(' ')
		writeType(b, a, n.Underlying, true)
	case AccessQualified:
		writeType(b, a, n.Underlying, true)
		b.WriteByte(':')
		b.WriteString(n.Access.String())
	case ImmutableQualified:
		b.WriteString("immutable ")
		writeType(b, a, n.Underlying, true)
	case Union, Intersection, Difference:
		l, r := Branches(n)
		if t, ok := a.Lookup(l).(Terminal); ok && n.Tag() == TagUnion && t.Def == ClassID("Null") {
			writeType(b, a, r, true)
			b.WriteByte('?')
			return
		}
		op := map[Tag]string{TagUnion: " + ", TagIntersection: " | ", TagDifference: " - "}[n.Tag()]
		if nested {
			b.WriteByte('(')
		}
		writeType(b, a, l, true)
		b.WriteString(op)
		writeType(b, a, r, true)
		if nested {
			b.WriteByte(')')
		}
	case ParentOf:
		b.WriteString("parent(")
		writeType(b, a, n.Child, false)
		b.WriteByte(')')
	case ChildOf:
		writeType(b, a, n.Parent, true)
		b.WriteString(".child(")
		b.WriteString(n.Name)
		b.WriteByte(')')
	case VirtualChild:
		writeType(b, a, n.Parent, true)
		b.WriteByte('.')
		b.WriteString(n.Name)
	case AnonymousClass:
		writeType(b, a, n.Parent, true)
		b.WriteString(".anon(")
		b.WriteString(string(n.Class))
		b.WriteByte(')')
	case PropertyDerived:
		writeType(b, a, n.Parent, true)
		b.WriteString(".")
		b.WriteString(n.Property)
		b.WriteString(".type")
	case FormalTypeSequence:
		b.WriteString("...")
	case Pending:
		writeType(b, a, n.Parent, true)
		b.WriteByte('.')
		b.WriteString(n.Name)
		b.WriteByte('?')
	case Unresolved:
		fmt.Fprintf(b, "<unresolved %s>", n.Name)
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func writeList(b *strings.Builder, a Arena, hs []Handle) {
	for i, h := range hs {
		if i > 0 {
			b.WriteString(", ")
		}
		writeType(b, a, h, false)
	}
}

// FormatSignature renders sig as name(params) -> returns.
func FormatSignature(a Arena, sig Signature) string {
	var b strings.Builder
	b.WriteString(sig.Name)
	b.WriteByte('(')
	writeList(&b, a, sig.Params)
	b.WriteByte(')')
	if len(sig.Returns) > 0 {
		b.WriteString(" -> ")
		writeList(&b, a, sig.Returns)
	}
	return b.String()
}
