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
	"golang.org/x/exp/slices"
)

// Visitor is an interface that must
// be satisfied by the argument to Walk.
//
// A Visitor's Visit method is invoked for each node encountered by Walk. If
// the result visitor w is not nil, Walk visits each of the children of node
// with the visitor w, followed by a call of w.Visit(nil).
//
// (see also: ast.Visitor)
type Visitor interface {
	Visit(*Node) Visitor
}

// Walk traverses a graph in depth-first order: It starts by calling
// v.Visit(node); node must not be nil. If the visitor w returned by
// v.Visit(node) is not nil, Walk is invoked recursively with visitor w for
// each of the children of node, followed by a call of w.Visit(nil).
//
// Walk does not de-duplicate shared subgraphs;
// a node reachable through k paths is visited k times.
// Use VisitOnce to visit each distinct node once.
func Walk(v Visitor, n *Node) {
	w := v.Visit(n)
	if w != nil {
		for _, c := range n.children {
			Walk(w, c)
		}
		w.Visit(nil)
	}
}

// VisitOnce calls pre and then post on every distinct
// node reachable from root, children before parents for
// post. If pre returns false, the children of the node
// are skipped (post is still called). Either function
// may be nil.
func VisitOnce(root *Node, pre func(*Node) bool, post func(*Node)) {
	seen := make(map[*Node]struct{})
	var visit func(n *Node)
	visit = func(n *Node) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		if pre == nil || pre(n) {
			for _, c := range n.children {
				visit(c)
			}
		}
		if post != nil {
			post(n)
		}
	}
	visit(root)
}

// FindNode returns the first node reachable
// from root (in pre-order) that satisfies pred,
// or nil if there is no such node.
func FindNode(root *Node, pred func(*Node) bool) *Node {
	var found *Node
	VisitOnce(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	}, nil)
	return found
}

// CountNodes returns the number of
// distinct nodes reachable from root.
func CountNodes(root *Node) int {
	count := 0
	VisitOnce(root, nil, func(*Node) { count++ })
	return count
}

// DependsOn returns whether arg is
// reachable from root.
func DependsOn(root, arg *Node) bool {
	return FindNode(root, func(n *Node) bool { return n == arg }) != nil
}

// FreeArguments returns the arguments referenced
// within root that are not bound by a lambda
// enclosing the reference, ordered by ID.
// A well-formed program has no free arguments.
func FreeArguments(root *Node) []*Node {
	memo := make(map[*Node][]*Node)
	var free func(n *Node) []*Node
	free = func(n *Node) []*Node {
		if got, ok := memo[n]; ok {
			return got
		}
		var out []*Node
		switch n.kind {
		case KindArgument:
			out = []*Node{n}
		case KindLambda:
			args := n.Args()
			for _, a := range free(n.Body()) {
				if !slices.Contains(args, a) {
					out = append(out, a)
				}
			}
		default:
			for _, c := range n.children {
				for _, a := range free(c) {
					if !slices.Contains(out, a) {
						out = append(out, a)
					}
				}
			}
		}
		memo[n] = out
		return out
	}
	out := slices.Clone(free(root))
	slices.SortFunc(out, func(a, b *Node) int {
		return int(a.id) - int(b.id)
	})
	return out
}
