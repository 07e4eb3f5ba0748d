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

	"golang.org/x/exp/slices"
)

// Kind is the variant tag of a Node
type Kind uint8

const (
	KindAtom Kind = iota
	KindList
	KindCallable
	KindLambda
	KindArgument
	KindWorld
)

func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "Atom"
	case KindList:
		return "List"
	case KindCallable:
		return "Callable"
	case KindLambda:
		return "Lambda"
	case KindArgument:
		return "Argument"
	case KindWorld:
		return "World"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// AtomFlags describe the content of an atom
type AtomFlags uint8

const (
	// AtomDefault is plain identifier-like text
	AtomDefault AtomFlags = 0
	// ArbitraryContent atoms may contain
	// characters that need quoting
	ArbitraryContent AtomFlags = 1 << (iota - 1)
	// BinaryContent atoms hold raw bytes
	BinaryContent
	// MultilineContent atoms were written
	// as raw (backtick) strings
	MultilineContent
)

// Pos is a source position. It is only
// used for diagnostics.
type Pos struct {
	Row, Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Node is an immutable expression node.
//
// Nodes are created by a Context and are
// never modified after construction; every
// transformation produces a new Node (or
// returns the original one). Two nodes may be
// compared by identity (==), which is
// a valid proof of equality; equal structure
// does not imply identity (see Equal).
type Node struct {
	id       uint32
	kind     Kind
	flags    AtomFlags
	content  string
	children []*Node
	pos      Pos
	typ      *Type
	cons     *ConstraintSet
	hash     uint64
}

// ID returns the context-unique id of n.
// Ids increase in allocation order.
func (n *Node) ID() uint32 { return n.id }

// Kind returns the variant of n.
func (n *Node) Kind() Kind { return n.kind }

// Pos returns the source position of n.
func (n *Node) Pos() Pos { return n.pos }

// Flags returns the atom flags of n.
func (n *Node) Flags() AtomFlags { return n.flags }

// Content returns the text of an atom,
// the operator name of a callable, or
// the name of an argument.
func (n *Node) Content() string { return n.content }

// Type returns the annotated type of n,
// or nil if n has not been annotated.
func (n *Node) Type() *Type { return n.typ }

// Constraints returns the constraints
// attached to n, or nil.
func (n *Node) Constraints() *ConstraintSet { return n.cons }

// Children returns the children of n.
// The returned slice must not be modified.
//
// For lambdas, Children returns the arguments
// followed by the body.
func (n *Node) Children() []*Node { return n.children }

// ChildrenLen returns len(n.Children()).
func (n *Node) ChildrenLen() int { return len(n.children) }

// Child returns the i'th child of n.
func (n *Node) Child(i int) *Node { return n.children[i] }

// Head returns the first child of n.
func (n *Node) Head() *Node { return n.children[0] }

// Tail returns the last child of n.
func (n *Node) Tail() *Node { return n.children[len(n.children)-1] }

// Args returns the arguments of a lambda.
func (n *Node) Args() []*Node {
	if n.kind != KindLambda {
		return nil
	}
	return n.children[:len(n.children)-1]
}

// Body returns the body of a lambda.
func (n *Node) Body() *Node {
	if n.kind != KindLambda {
		return nil
	}
	return n.children[len(n.children)-1]
}

// IsCallable returns whether n is a callable.
// If names are provided, IsCallable returns
// whether n is a callable with one of the names.
func (n *Node) IsCallable(names ...string) bool {
	if n.kind != KindCallable {
		return false
	}
	return len(names) == 0 || slices.Contains(names, n.content)
}

// IsAtom returns whether n is an atom.
// If text is provided, IsAtom returns whether
// n is an atom with exactly that content.
func (n *Node) IsAtom(text ...string) bool {
	if n.kind != KindAtom {
		return false
	}
	return len(text) == 0 || n.content == text[0]
}

// IsList returns whether n is a list.
func (n *Node) IsList() bool { return n.kind == KindList }

// IsLambda returns whether n is a lambda.
func (n *Node) IsLambda() bool { return n.kind == KindLambda }

// IsArgument returns whether n is an argument.
func (n *Node) IsArgument() bool { return n.kind == KindArgument }

// IsWorld returns whether n is the world token.
func (n *Node) IsWorld() bool { return n.kind == KindWorld }

// Hash returns the structural hash of n.
// Structurally equal nodes (see Equal) have
// equal hashes.
func (n *Node) Hash() uint64 { return n.hash }

// String implements fmt.Stringer
func (n *Node) String() string { return Format(n) }
