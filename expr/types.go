// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package expr

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// TypeKind is the shape of a Type
type TypeKind uint8

const (
	TypeData TypeKind = iota
	TypeOptional
	TypeList
	TypeStruct
	TypeTuple
	TypeDict
	TypeVariant
	TypeStream
	TypeFlow
	TypeWorld
	TypeUnit
	TypeVoid
	TypeNull
	TypeEmptyList
	TypeEmptyDict
)

var typeKindNames = [...]string{
	TypeData:      "Data",
	TypeOptional:  "Optional",
	TypeList:      "List",
	TypeStruct:    "Struct",
	TypeTuple:     "Tuple",
	TypeDict:      "Dict",
	TypeVariant:   "Variant",
	TypeStream:    "Stream",
	TypeFlow:      "Flow",
	TypeWorld:     "World",
	TypeUnit:      "Unit",
	TypeVoid:      "Void",
	TypeNull:      "Null",
	TypeEmptyList: "EmptyList",
	TypeEmptyDict: "EmptyDict",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", k)
}

// Slot is the primitive kind of a Data type
type Slot uint8

const (
	Bool Slot = iota + 1
	Int32
	Int64
	Uint32
	Uint64
	Double
	String
	Utf8
)

var slotNames = [...]string{
	Bool:   "Bool",
	Int32:  "Int32",
	Int64:  "Int64",
	Uint32: "Uint32",
	Uint64: "Uint64",
	Double: "Double",
	String: "String",
	Utf8:   "Utf8",
}

func (s Slot) String() string {
	if s > 0 && int(s) < len(slotNames) {
		return slotNames[s]
	}
	return fmt.Sprintf("Slot(%d)", s)
}

// SlotByName returns the slot with the given
// name, or false if there is no such slot.
func SlotByName(name string) (Slot, bool) {
	for i := range slotNames {
		if i > 0 && slotNames[i] == name {
			return Slot(i), true
		}
	}
	return 0, false
}

// Valid returns whether text is a valid
// literal of s.
func (s Slot) Valid(text string) bool {
	var err error
	switch s {
	case Bool:
		return text == "true" || text == "false"
	case Int32:
		_, err = strconv.ParseInt(text, 10, 32)
	case Int64:
		_, err = strconv.ParseInt(text, 10, 64)
	case Uint32:
		_, err = strconv.ParseUint(text, 10, 32)
	case Uint64:
		_, err = strconv.ParseUint(text, 10, 64)
	case Double:
		_, err = strconv.ParseFloat(text, 64)
	case String, Utf8:
		return true
	default:
		return false
	}
	return err == nil
}

// Member is one named member of a Struct type
type Member struct {
	Name string
	Type *Type
}

// Type is an annotated type.
//
// Types are interned by their Context, so two
// types from the same Context are equal if and
// only if they are the same pointer.
type Type struct {
	kind    TypeKind
	slot    Slot
	item    *Type
	key     *Type
	items   []*Type
	members []Member
	str     string
}

// Kind returns the shape of t.
func (t *Type) Kind() TypeKind { return t.kind }

// Slot returns the primitive kind of a Data type.
func (t *Type) Slot() Slot { return t.slot }

// Item returns the item type of an Optional, List,
// Stream or Flow type, the payload of a Dict, or the
// underlying type of a Variant.
func (t *Type) Item() *Type { return t.item }

// Key returns the key type of a Dict.
func (t *Type) Key() *Type { return t.key }

// Items returns the element types of a Tuple.
func (t *Type) Items() []*Type { return t.items }

// Members returns the members of a Struct,
// ordered by name.
func (t *Type) Members() []Member { return t.members }

// MemberType returns the type of the named
// Struct member, or nil.
func (t *Type) MemberType(name string) *Type {
	i, ok := slices.BinarySearchFunc(t.members, name, func(m Member, name string) int {
		return strings.Compare(m.Name, name)
	})
	if !ok {
		return nil
	}
	return t.members[i].Type
}

// IsData returns whether t is a Data type
// of one of the given slots (or of any slot).
func (t *Type) IsData(slots ...Slot) bool {
	if t == nil || t.kind != TypeData {
		return false
	}
	return len(slots) == 0 || slices.Contains(slots, t.slot)
}

// IsOptional returns whether t is an Optional type.
func (t *Type) IsOptional() bool { return t != nil && t.kind == TypeOptional }

// IsScalar returns whether t is Data or
// an Optional of Data.
func (t *Type) IsScalar() bool {
	if t.IsOptional() {
		t = t.item
	}
	return t.IsData()
}

// IsSequence returns whether t is a List,
// Stream, Flow, Optional or EmptyList type; these
// are the types accepted as FlatMap inputs.
func (t *Type) IsSequence() bool {
	if t == nil {
		return false
	}
	switch t.kind {
	case TypeList, TypeStream, TypeFlow, TypeOptional, TypeEmptyList:
		return true
	}
	return false
}

// String returns the canonical text of t,
// which is accepted by ParseType.
func (t *Type) String() string {
	if t == nil {
		return "<untyped>"
	}
	return t.str
}

func typeString(t *Type) string {
	switch t.kind {
	case TypeData:
		return t.slot.String()
	case TypeOptional, TypeList, TypeStream, TypeFlow, TypeVariant:
		return t.kind.String() + "<" + t.item.str + ">"
	case TypeDict:
		return "Dict<" + t.key.str + "," + t.item.str + ">"
	case TypeTuple:
		var b strings.Builder
		b.WriteString("Tuple<")
		for i := range t.items {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.items[i].str)
		}
		b.WriteByte('>')
		return b.String()
	case TypeStruct:
		var b strings.Builder
		b.WriteString("Struct<")
		for i := range t.members {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.members[i].Name)
			b.WriteByte(':')
			b.WriteString(t.members[i].Type.str)
		}
		b.WriteByte('>')
		return b.String()
	default:
		return t.kind.String()
	}
}

func (c *Context) internType(t *Type) *Type {
	t.str = typeString(t)
	if got, ok := c.types[t.str]; ok {
		return got
	}
	c.types[t.str] = t
	return t
}

// DataType returns the Data type of slot s.
func (c *Context) DataType(s Slot) *Type {
	return c.internType(&Type{kind: TypeData, slot: s})
}

// OptionalType returns Optional<item>.
func (c *Context) OptionalType(item *Type) *Type {
	return c.internType(&Type{kind: TypeOptional, item: item})
}

// ListType returns List<item>.
func (c *Context) ListType(item *Type) *Type {
	return c.internType(&Type{kind: TypeList, item: item})
}

// StreamType returns Stream<item>.
func (c *Context) StreamType(item *Type) *Type {
	return c.internType(&Type{kind: TypeStream, item: item})
}

// FlowType returns Flow<item>.
func (c *Context) FlowType(item *Type) *Type {
	return c.internType(&Type{kind: TypeFlow, item: item})
}

// VariantType returns Variant<underlying>.
func (c *Context) VariantType(underlying *Type) *Type {
	return c.internType(&Type{kind: TypeVariant, item: underlying})
}

// DictType returns Dict<key,payload>.
func (c *Context) DictType(key, payload *Type) *Type {
	return c.internType(&Type{kind: TypeDict, key: key, item: payload})
}

// TupleType returns Tuple<items...>.
func (c *Context) TupleType(items ...*Type) *Type {
	return c.internType(&Type{kind: TypeTuple, items: slices.Clone(items)})
}

// StructType returns Struct<members...>.
// The members are sorted by name; StructType
// panics if a member name is repeated.
func (c *Context) StructType(members ...Member) *Type {
	members = slices.Clone(members)
	slices.SortFunc(members, func(a, b Member) int {
		return strings.Compare(a.Name, b.Name)
	})
	for i := 1; i < len(members); i++ {
		if members[i].Name == members[i-1].Name {
			shapePanic("Struct", fmt.Sprintf("duplicate member %q", members[i].Name))
		}
	}
	return c.internType(&Type{kind: TypeStruct, members: members})
}

func (c *Context) unitLike(k TypeKind) *Type {
	return c.internType(&Type{kind: k})
}

// WorldType returns the World type.
func (c *Context) WorldType() *Type { return c.unitLike(TypeWorld) }

// UnitType returns the Unit type.
func (c *Context) UnitType() *Type { return c.unitLike(TypeUnit) }

// VoidType returns the Void type.
func (c *Context) VoidType() *Type { return c.unitLike(TypeVoid) }

// NullType returns the Null type.
func (c *Context) NullType() *Type { return c.unitLike(TypeNull) }

// EmptyListType returns the EmptyList type.
func (c *Context) EmptyListType() *Type { return c.unitLike(TypeEmptyList) }

// EmptyDictType returns the EmptyDict type.
func (c *Context) EmptyDictType() *Type { return c.unitLike(TypeEmptyDict) }

// ParseType parses the canonical text of a type
// (see Type.String) and interns the result in c.
func (c *Context) ParseType(s string) (*Type, error) {
	p := &typeParser{ec: c, src: s}
	t := p.parse()
	if p.err == nil && p.pos != len(p.src) {
		p.fail("trailing text")
	}
	if p.err != nil {
		return nil, p.err
	}
	return t, nil
}

type typeParser struct {
	ec  *Context
	src string
	pos int
	err error
}

func (p *typeParser) fail(msg string) {
	if p.err == nil {
		p.err = fmt.Errorf("type %q: offset %d: %s", p.src, p.pos, msg)
	}
}

func (p *typeParser) ident() string {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' || c == '>' || c == ',' || c == ':' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) bool {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

// list parses '<' elem {',' elem} '>'
func (p *typeParser) list(elem func()) {
	if !p.expect('<') {
		p.fail("expected '<'")
		return
	}
	for p.err == nil {
		elem()
		if p.expect('>') {
			return
		}
		if !p.expect(',') {
			p.fail("expected ',' or '>'")
		}
	}
}

func (p *typeParser) parse() *Type {
	if p.err != nil {
		return nil
	}
	name := p.ident()
	if s, ok := SlotByName(name); ok {
		return p.ec.DataType(s)
	}
	var args []*Type
	elem := func() {
		if t := p.parse(); t != nil {
			args = append(args, t)
		}
	}
	unary := func(mk func(*Type) *Type) *Type {
		p.list(elem)
		if p.err != nil {
			return nil
		}
		if len(args) != 1 {
			p.fail(name + " takes one type parameter")
			return nil
		}
		return mk(args[0])
	}
	switch name {
	case "Optional":
		return unary(p.ec.OptionalType)
	case "List":
		return unary(p.ec.ListType)
	case "Stream":
		return unary(p.ec.StreamType)
	case "Flow":
		return unary(p.ec.FlowType)
	case "Variant":
		return unary(p.ec.VariantType)
	case "Dict":
		p.list(elem)
		if p.err != nil {
			return nil
		}
		if len(args) != 2 {
			p.fail("Dict takes two type parameters")
			return nil
		}
		return p.ec.DictType(args[0], args[1])
	case "Tuple":
		if !strings.HasPrefix(p.src[p.pos:], "<>") {
			p.list(elem)
		} else {
			p.pos += 2
		}
		if p.err != nil {
			return nil
		}
		return p.ec.TupleType(args...)
	case "Struct":
		var members []Member
		if strings.HasPrefix(p.src[p.pos:], "<>") {
			p.pos += 2
			return p.ec.StructType()
		}
		p.list(func() {
			name := p.ident()
			if name == "" || !p.expect(':') {
				p.fail("expected member name and ':'")
				return
			}
			if t := p.parse(); t != nil {
				members = append(members, Member{Name: name, Type: t})
			}
		})
		if p.err != nil {
			return nil
		}
		for i := range members {
			if slices.IndexFunc(members[:i], func(m Member) bool { return m.Name == members[i].Name }) >= 0 {
				p.fail("duplicate member " + members[i].Name)
				return nil
			}
		}
		return p.ec.StructType(members...)
	case "World":
		return p.ec.WorldType()
	case "Unit":
		return p.ec.UnitType()
	case "Void":
		return p.ec.VoidType()
	case "Null":
		return p.ec.NullType()
	case "EmptyList":
		return p.ec.EmptyListType()
	case "EmptyDict":
		return p.ec.EmptyDictType()
	}
	p.fail(fmt.Sprintf("unknown type %q", name))
	return nil
}

// MustParseType is like ParseType but panics on error.
func (c *Context) MustParseType(s string) *Type {
	t, err := c.ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}
