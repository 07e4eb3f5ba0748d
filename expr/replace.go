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

	"golang.org/x/exp/slices"
)

// ChangeChild returns a node like n with
// its i'th child replaced by child.
// If child is already the i'th child, n is returned.
func (c *Context) ChangeChild(n *Node, i int, child *Node) *Node {
	if n.children[i] == child {
		return n
	}
	children := slices.Clone(n.children)
	children[i] = child
	return c.ChangeChildren(n, children)
}

// ChangeChildren returns a node with the kind, content,
// flags and position of n but with the given children.
// The result carries no annotations. If children are
// identical to the children of n, n is returned.
//
// ChangeChildren panics with a ShapeError if the new
// children violate the signature of n.
func (c *Context) ChangeChildren(n *Node, children []*Node) *Node {
	if slices.Equal(n.children, children) {
		return n
	}
	switch n.kind {
	case KindCallable:
		return c.NewCallable(n.pos, n.content, children...)
	case KindList:
		return c.NewList(n.pos, children...)
	case KindLambda:
		if len(children) == 0 {
			shapePanic("lambda", "missing body")
		}
		last := len(children) - 1
		return c.NewLambda(n.pos, children[:last], children[last])
	default:
		shapePanic(n.kind.String(), fmt.Sprintf("%d children for a leaf", len(children)))
		return nil
	}
}

// rebuild is ChangeChildren preserving
// the annotations of n
func (c *Context) rebuild(n *Node, children []*Node) *Node {
	out := c.ChangeChildren(n, children)
	if out == n {
		return n
	}
	return c.Annotate(out, n.typ, n.cons)
}

// ReplaceNode replaces every occurrence of target
// (by identity) within root with replacement.
func (c *Context) ReplaceNode(root, target, replacement *Node) *Node {
	return c.ReplaceNodes(root, map[*Node]*Node{target: replacement})
}

// ReplaceNodes substitutes every node reachable from root
// that is a key of repl with the corresponding value.
// Replacements are not traversed. Shared subgraphs are
// rebuilt once, so every parent of a rebuilt node sees
// the same new node. Rebuilt ancestors keep the
// annotations of the nodes they replace.
func (c *Context) ReplaceNodes(root *Node, repl map[*Node]*Node) *Node {
	if len(repl) == 0 {
		return root
	}
	memo := make(map[*Node]*Node)
	var replace func(n *Node) *Node
	replace = func(n *Node) *Node {
		if r, ok := repl[n]; ok {
			return r
		}
		if len(n.children) == 0 {
			return n
		}
		if r, ok := memo[n]; ok {
			return r
		}
		var children []*Node
		for i, child := range n.children {
			nc := replace(child)
			if nc != child && children == nil {
				children = slices.Clone(n.children)
			}
			if children != nil {
				children[i] = nc
			}
		}
		out := n
		if children != nil {
			out = c.rebuild(n, children)
		}
		memo[n] = out
		return out
	}
	return replace(root)
}

// ApplyLambda returns the body of lambda with
// each argument replaced by the corresponding
// element of args. ApplyLambda panics if the
// number of args does not match the lambda.
func (c *Context) ApplyLambda(lambda *Node, args ...*Node) *Node {
	if !lambda.IsLambda() {
		panic(errors.AssertionFailedf("ApplyLambda: %s is not a lambda", lambda.kind))
	}
	params := lambda.Args()
	if len(params) != len(args) {
		panic(errors.AssertionFailedf("ApplyLambda: %d arguments for a lambda of %d", len(args), len(params)))
	}
	repl := make(map[*Node]*Node, len(params))
	for i := range params {
		repl[params[i]] = args[i]
	}
	return c.ReplaceNodes(lambda.Body(), repl)
}

// DeepCopyLambda returns a copy of lambda in which every
// argument bound by lambda (or by a lambda nested inside
// it) is replaced by a fresh argument. If body is non-nil,
// it is used in place of the body of lambda; it may refer
// to the arguments of lambda.
func (c *Context) DeepCopyLambda(lambda, body *Node) *Node {
	if !lambda.IsLambda() {
		panic(errors.AssertionFailedf("DeepCopyLambda: %s is not a lambda", lambda.kind))
	}
	if body == nil {
		body = lambda.Body()
	}
	remap := make(map[*Node]*Node)
	memo := make(map[*Node]*Node)
	args := c.freshArgs(lambda.Args(), remap)
	out := c.NewLambda(lambda.pos, args, c.deepCopy(body, remap, memo))
	return c.Annotate(out, lambda.typ, lambda.cons)
}

func (c *Context) freshArgs(old []*Node, remap map[*Node]*Node) []*Node {
	args := make([]*Node, len(old))
	for i, a := range old {
		args[i] = c.Annotate(c.NewArgument(a.pos, a.content), a.typ, a.cons)
		remap[a] = args[i]
	}
	return args
}

func (c *Context) deepCopy(n *Node, remap, memo map[*Node]*Node) *Node {
	if r, ok := remap[n]; ok {
		return r
	}
	if r, ok := memo[n]; ok {
		return r
	}
	var out *Node
	switch {
	case n.kind == KindLambda:
		args := c.freshArgs(n.Args(), remap)
		out = c.NewLambda(n.pos, args, c.deepCopy(n.Body(), remap, memo))
		out = c.Annotate(out, n.typ, n.cons)
	case len(n.children) > 0:
		children := make([]*Node, len(n.children))
		for i := range n.children {
			children[i] = c.deepCopy(n.children[i], remap, memo)
		}
		out = c.rebuild(n, children)
	default:
		out = n
	}
	memo[n] = out
	return out
}
