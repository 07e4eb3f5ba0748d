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

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"golang.org/x/exp/slices"
)

// nodes are allocated in slabs of this size;
// a slab is never re-allocated, so pointers
// into it remain valid for the life of the Context
const slabSize = 256

// Context owns every node, type and constraint
// set created during one compilation.
//
// A Context is not safe for concurrent use;
// exactly one computation may use it at a time.
type Context struct {
	// ID identifies the compilation session.
	ID uuid.UUID
	// Issues collects the diagnostics
	// produced during compilation.
	Issues IssueManager

	slab    []Node
	nodes   int
	strings map[string]string
	types   map[string]*Type
	cons    map[string]*ConstraintSet
}

// NewContext creates a Context for one compilation.
func NewContext() *Context {
	return &Context{
		ID:      uuid.New(),
		strings: make(map[string]string),
		types:   make(map[string]*Type),
		cons:    make(map[string]*ConstraintSet),
	}
}

// NodeCount returns the number of nodes
// allocated by c so far.
func (c *Context) NodeCount() int { return c.nodes }

// TypeCount returns the number of distinct
// types interned by c so far.
func (c *Context) TypeCount() int { return len(c.types) }

// ConstraintCount returns the number of distinct
// constraint sets interned by c so far.
func (c *Context) ConstraintCount() int { return len(c.cons) }

// AddError records an error-severity issue at pos.
func (c *Context) AddError(pos Pos, f string, args ...any) {
	c.Issues.AddIssue(&Issue{
		Pos:      pos,
		Severity: SeverityError,
		Message:  fmt.Sprintf(f, args...),
	})
}

func (c *Context) intern(s string) string {
	if got, ok := c.strings[s]; ok {
		return got
	}
	c.strings[s] = s
	return s
}

func (c *Context) alloc() *Node {
	if len(c.slab) == cap(c.slab) {
		c.slab = make([]Node, 0, slabSize)
	}
	c.slab = c.slab[:len(c.slab)+1]
	n := &c.slab[len(c.slab)-1]
	c.nodes++
	n.id = uint32(c.nodes)
	return n
}

func (c *Context) make(pos Pos, kind Kind, flags AtomFlags, content string, children []*Node) *Node {
	n := c.alloc()
	n.pos = pos
	n.kind = kind
	n.flags = flags
	n.content = c.intern(content)
	n.children = children
	n.hash = hashNode(n)
	return n
}

func shapePanic(name, reason string) {
	panic(errors.WithAssertionFailure(&ShapeError{Name: name, Reason: reason}))
}

// NewAtom creates an atom.
func (c *Context) NewAtom(pos Pos, text string, flags AtomFlags) *Node {
	return c.make(pos, KindAtom, flags, text, nil)
}

// NewCallable creates a callable. NewCallable panics
// with a ShapeError if the children do not satisfy
// the registered signature of name (see CheckShape).
func (c *Context) NewCallable(pos Pos, name string, children ...*Node) *Node {
	if name == "" {
		shapePanic(name, "empty callable name")
	}
	if err := CheckShape(name, children); err != nil {
		panic(errors.WithAssertionFailure(err))
	}
	return c.make(pos, KindCallable, 0, name, slices.Clone(children))
}

// NewList creates a list.
func (c *Context) NewList(pos Pos, children ...*Node) *Node {
	return c.make(pos, KindList, 0, "", slices.Clone(children))
}

// NewArgument creates a fresh lambda argument.
// Every call produces a distinct argument, even
// when the names are the same.
func (c *Context) NewArgument(pos Pos, name string) *Node {
	return c.make(pos, KindArgument, 0, name, nil)
}

// NewWorld creates a world token.
func (c *Context) NewWorld(pos Pos) *Node {
	return c.make(pos, KindWorld, 0, "", nil)
}

// NewLambda creates a lambda over args.
// Each element of args must be a distinct argument node.
func (c *Context) NewLambda(pos Pos, args []*Node, body *Node) *Node {
	if body == nil {
		shapePanic("lambda", "missing body")
	}
	for i, a := range args {
		if a.kind != KindArgument {
			shapePanic("lambda", fmt.Sprintf("parameter %d is a %s, not an argument", i, a.kind))
		}
		if slices.Index(args[:i], a) >= 0 {
			shapePanic("lambda", fmt.Sprintf("parameter %q bound twice", a.content))
		}
	}
	children := make([]*Node, 0, len(args)+1)
	children = append(children, args...)
	children = append(children, body)
	return c.make(pos, KindLambda, 0, "", children)
}

// NewData creates a data literal callable,
// i.e. (Int32 "1") for NewData(pos, Int32, "1").
func (c *Context) NewData(pos Pos, slot Slot, text string) *Node {
	return c.NewCallable(pos, slot.String(), c.NewAtom(pos, text, AtomDefault))
}

// NewBool creates a Bool literal.
func (c *Context) NewBool(pos Pos, b bool) *Node {
	if b {
		return c.NewData(pos, Bool, "true")
	}
	return c.NewData(pos, Bool, "false")
}

func (c *Context) copyNode(n *Node) *Node {
	out := c.alloc()
	id := out.id
	*out = *n
	out.id = id
	return out
}

// Annotate returns a copy of n that carries
// the type t and the constraints cs.
// If n already carries exactly t and cs, n is returned.
func (c *Context) Annotate(n *Node, t *Type, cs *ConstraintSet) *Node {
	if n.typ == t && n.cons == cs {
		return n
	}
	out := c.copyNode(n)
	out.typ = t
	out.cons = cs
	return out
}

// WithType returns a copy of n carrying the type t.
func (c *Context) WithType(n *Node, t *Type) *Node {
	return c.Annotate(n, t, n.cons)
}

// WithConstraints returns a copy of n carrying cs.
func (c *Context) WithConstraints(n *Node, cs *ConstraintSet) *Node {
	return c.Annotate(n, n.typ, cs)
}

// KeepAnnotations returns to carrying the annotations
// of from wherever to lacks them. It is used when to is
// known to be semantically equivalent to from.
func (c *Context) KeepAnnotations(from, to *Node) *Node {
	t, cs := to.typ, to.cons
	if t == nil {
		t = from.typ
	}
	if cs == nil {
		cs = from.cons
	}
	return c.Annotate(to, t, cs)
}
