package xtype

import (
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Record field numbers. A record is (tag, child references, scalar fields);
// child references are positions in the enclosing stream, or raw handles
// when the record is used as an interning key.
const (
	fieldTag      protowire.Number = 1
	fieldChildren protowire.Number = 2
	fieldName     protowire.Number = 3
	fieldClass    protowire.Number = 4
	fieldAux      protowire.Number = 5
	fieldIdent    protowire.Number = 6
	fieldMethod   protowire.Number = 7

	fieldRecord protowire.Number = 1
)

const (
	identClass uint64 = iota + 1
	identTypeParam
	identMethodParam
	identFormalChild
	identThisClass
)

func identityRef(h Handle) uint64 { return uint64(h) }

func appendNode(b []byte, n Node, ref func(Handle) uint64) []byte {
	b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Tag()))

	if ch := n.Children(); len(ch) > 0 {
		var packed []byte
		for _, c := range ch {
			packed = protowire.AppendVarint(packed, ref(c))
		}
		b = protowire.AppendTag(b, fieldChildren, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}

	str := func(num protowire.Number, s string) {
		if s != "" {
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, s)
		}
	}
	num := func(f protowire.Number, v uint64) {
		if v != 0 {
			b = protowire.AppendTag(b, f, protowire.VarintType)
			b = protowire.AppendVarint(b, v)
		}
	}

	switch x := n.(type) {
	case Terminal:
		switch id := x.Def.(type) {
		case ClassID:
			num(fieldIdent, identClass)
			str(fieldClass, string(id))
		case TypeParam:
			num(fieldIdent, identTypeParam)
			str(fieldClass, string(id.Class))
			str(fieldName, id.Name)
		case MethodParam:
			num(fieldIdent, identMethodParam)
			str(fieldMethod, id.Method)
			num(fieldAux, uint64(id.Index)+1)
			str(fieldName, id.Name)
		case FormalChild:
			num(fieldIdent, identFormalChild)
			str(fieldName, id.Name)
		case ThisClass:
			num(fieldIdent, identThisClass)
			str(fieldClass, string(id.Class))
		default:
			panic(errors.Errorf("xtype: cannot encode identity %T", x.Def))
		}
	case Annotated:
		str(fieldClass, string(x.Mixin))
	case AccessQualified:
		num(fieldAux, uint64(x.Access)+1)
	case ChildOf:
		str(fieldName, x.Name)
	case VirtualChild:
		str(fieldName, x.Name)
		if x.ThisTyped {
			num(fieldAux, 1)
		}
	case AnonymousClass:
		str(fieldClass, string(x.Class))
	case PropertyDerived:
		str(fieldName, x.Property)
	case Pending:
		str(fieldName, x.Name)
	case Unresolved:
		str(fieldName, x.Name)
	}
	return b
}

type rawRecord struct {
	tag      Tag
	children []Handle
	name     string
	class    string
	method   string
	aux      uint64
	ident    uint64
}

func consumeRecord(b []byte, deref func(uint64) (Handle, error)) (Node, error) {
	var r rawRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldTag:
				r.tag = Tag(v)
			case fieldAux:
				r.aux = v
			case fieldIdent:
				r.ident = v
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldChildren:
				for len(v) > 0 {
					ref, m := protowire.ConsumeVarint(v)
					if m < 0 {
						return nil, protowire.ParseError(m)
					}
					v = v[m:]
					h, err := deref(ref)
					if err != nil {
						return nil, err
					}
					r.children = append(r.children, h)
				}
			case fieldName:
				r.name = string(v)
			case fieldClass:
				r.class = string(v)
			case fieldMethod:
				r.method = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r.node()
}

func (r rawRecord) child(i int) (Handle, error) {
	if i >= len(r.children) {
		return NoHandle, errors.Errorf("%s record is missing child %d", r.tag, i)
	}
	return r.children[i], nil
}

func (r rawRecord) node() (Node, error) {
	one := func(build func(Handle) Node) (Node, error) {
		c, err := r.child(0)
		if err != nil {
			return nil, err
		}
		return build(c), nil
	}
	two := func(build func(l, r Handle) Node) (Node, error) {
		if len(r.children) != 2 {
			return nil, errors.Errorf("%s record needs 2 children, has %d", r.tag, len(r.children))
		}
		return build(r.children[0], r.children[1]), nil
	}

	switch r.tag {
	case TagTerminal:
		switch r.ident {
		case identClass:
			return Terminal{Def: ClassID(r.class)}, nil
		case identTypeParam:
			return Terminal{Def: TypeParam{Class: ClassID(r.class), Name: r.name}}, nil
		case identMethodParam:
			if r.aux == 0 {
				return nil, errors.New("method parameter record is missing its index")
			}
			return Terminal{Def: MethodParam{Method: r.method, Index: int(r.aux - 1), Name: r.name}}, nil
		case identFormalChild:
			return one(func(p Handle) Node { return Terminal{Def: FormalChild{Parent: p, Name: r.name}} })
		case identThisClass:
			return Terminal{Def: ThisClass{Class: ClassID(r.class)}}, nil
		}
		return nil, errors.Errorf("unknown terminal identity kind %d", r.ident)
	case TagParameterized:
		if len(r.children) == 0 {
			return nil, errors.New("parameterized record has no base")
		}
		return Parameterized{Base: r.children[0], Params: r.children[1:]}, nil
	case TagAnnotated:
		if len(r.children) == 0 {
			return nil, errors.New("annotated record has no underlying type")
		}
		return Annotated{Mixin: ClassID(r.class), Underlying: r.children[0], Args: r.children[1:]}, nil
	case TagAccess:
		if r.aux == 0 {
			return nil, errors.New("access record is missing its level")
		}
		return one(func(u Handle) Node { return AccessQualified{Underlying: u, Access: Access(r.aux - 1)} })
	case TagImmutable:
		return one(func(u Handle) Node { return ImmutableQualified{Underlying: u} })
	case TagUnion:
		return two(func(l, r Handle) Node { return Union{l, r} })
	case TagIntersection:
		return two(func(l, r Handle) Node { return Intersection{l, r} })
	case TagDifference:
		return two(func(l, r Handle) Node { return Difference{l, r} })
	case TagParentOf:
		return one(func(c Handle) Node { return ParentOf{Child: c} })
	case TagChildOf:
		return one(func(p Handle) Node { return ChildOf{Parent: p, Name: r.name} })
	case TagVirtualChild:
		return one(func(p Handle) Node { return VirtualChild{Parent: p, Name: r.name, ThisTyped: r.aux == 1} })
	case TagAnonymousClass:
		return one(func(p Handle) Node { return AnonymousClass{Parent: p, Class: ClassID(r.class)} })
	case TagPropertyDerived:
		return one(func(p Handle) Node { return PropertyDerived{Parent: p, Property: r.name} })
	case TagFormalSequence:
		return FormalTypeSequence{}, nil
	case TagPending:
		return one(func(p Handle) Node { return Pending{Parent: p, Name: r.name} })
	case TagUnresolved:
		return Unresolved{Name: r.name}, nil
	}
	return nil, errors.Errorf("unknown record tag %d", r.tag)
}

// EncodeNode returns the record for a single node whose children are
// written as positions.
func EncodeNode(n Node, position func(Handle) uint64) []byte {
	return appendNode(nil, n, position)
}

// DecodeNode parses a single record, mapping child positions back to
// handles.
func DecodeNode(b []byte, handle func(uint64) (Handle, error)) (Node, error) {
	return consumeRecord(b, handle)
}

// Encode serializes every registered node of a. Records appear in handle
// order, so every child precedes its parents, and child references are
// 1-based positions within the stream.
func Encode(a Arena) ([]byte, error) {
	hs := a.Registered()
	pos := make(map[Handle]uint64, len(hs))
	var out []byte
	for i, h := range hs {
		var missing Handle
		rec := EncodeNode(a.Lookup(h), func(c Handle) uint64 {
			p, ok := pos[c]
			if !ok {
				missing = c
			}
			return p
		})
		if missing != NoHandle {
			return nil, errors.Errorf("handle %d refers to unregistered handle %d", h, missing)
		}
		pos[h] = uint64(i + 1)
		out = protowire.AppendTag(out, fieldRecord, protowire.BytesType)
		out = protowire.AppendBytes(out, rec)
	}
	return out, nil
}

// Decode interns every record of data into a and returns the handle for
// each position, in stream order.
func Decode(a Arena, data []byte) ([]Handle, error) {
	var hs []Handle
	deref := func(p uint64) (Handle, error) {
		if p == 0 || p > uint64(len(hs)) {
			return NoHandle, errors.Errorf("record %d refers to position %d", len(hs)+1, p)
		}
		return hs[p-1], nil
	}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num != fieldRecord || typ != protowire.BytesType {
			return nil, errors.Errorf("unexpected field %d in record stream", num)
		}
		rec, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		node, err := DecodeNode(rec, deref)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", len(hs)+1)
		}
		h, err := construct(a, node)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", len(hs)+1)
		}
		hs = append(hs, h)
	}
	return hs, nil
}

// construct interns n through the builders, so a stream only ever yields
// handles they would have produced.
func construct(a Arena, n Node) (h Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok := r.(string)
			if !ok {
				panic(r)
			}
			err = errors.New(strings.TrimPrefix(msg, "xtype: "))
		}
	}()
	switch x := n.(type) {
	case Terminal:
		if id, ok := x.Def.(ClassID); ok {
			return NewClass(a, id), nil
		}
		return NewTerminal(a, x.Def), nil
	case Parameterized:
		return NewParameterized(a, x.Base, x.Params...), nil
	case Annotated:
		if x.Mixin == "" {
			return NoHandle, errors.New("annotated type requires a mixin")
		}
		return NewAnnotated(a, x.Mixin, x.Underlying, x.Args...), nil
	case AccessQualified:
		if x.Access == Public {
			return NoHandle, errors.New("access-qualified type cannot be public")
		}
		return NewAccess(a, x.Underlying, x.Access), nil
	case ImmutableQualified:
		return NewImmutable(a, x.Underlying), nil
	case Union:
		return NewUnion(a, x.Left, x.Right), nil
	case Intersection:
		return NewIntersection(a, x.Left, x.Right), nil
	case Difference:
		return NewDifference(a, x.Left, x.Right), nil
	case ParentOf:
		return NewParentOf(a, x.Child), nil
	case ChildOf:
		return NewChildOf(a, x.Parent, x.Name), nil
	case VirtualChild:
		return NewVirtualChild(a, x.Parent, x.Name, x.ThisTyped), nil
	case AnonymousClass:
		return NewAnonymousClass(a, x.Parent, x.Class), nil
	case PropertyDerived:
		return NewPropertyDerived(a, x.Parent, x.Property), nil
	case Pending:
		return NewPending(a, x.Parent, x.Name), nil
	}
	return a.Intern(n), nil
}
