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

package optimize

import (
	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"
)

// ErrDivergence is returned (wrapped) when the
// walker exhausts its pass budget without reaching
// a fixpoint. It indicates a defect in the rule set.
var ErrDivergence = errors.New("optimize: rewrite rules did not converge")

// DefaultMaxPasses is the default pass budget of a Walker.
const DefaultMaxPasses = 1000

// Walker applies a Table to a graph until
// no rule fires.
type Walker struct {
	Table *Table
	Env   *Env
	// MaxPasses bounds the number of passes;
	// zero means DefaultMaxPasses.
	MaxPasses int

	passes int
}

// Passes returns the number of passes
// performed by the last call to Optimize,
// including the final pass that found no change.
func (w *Walker) Passes() int { return w.passes }

// Optimize rewrites root to a fixpoint of w.Table.
//
// Each pass visits every distinct node once, children
// first. For a callable, the named rules are tried in
// order until one fires, and then the catch-all rules
// are tried on the result if it is still a callable.
// A replacement is memoized for the rest of the pass,
// so every parent of a shared node sees the same new node.
//
// Optimize returns an error wrapping ErrDivergence
// if the pass budget is exhausted.
func (w *Walker) Optimize(ec *expr.Context, root *expr.Node) (*expr.Node, error) {
	max := w.MaxPasses
	if max <= 0 {
		max = DefaultMaxPasses
	}
	w.passes = 0
	for w.passes < max {
		w.passes++
		p := pass{w: w, ec: ec, memo: make(map[*expr.Node]*expr.Node)}
		out := p.visit(root)
		if out == root {
			return root, nil
		}
		w.Env.logf("%s: optimize pass %d: %d rules fired", ec.ID, w.passes, p.fired)
		root = out
	}
	return root, errors.Wrapf(ErrDivergence, "no fixpoint after %d passes", max)
}

// Optimize rewrites root to a fixpoint of table
// using a Walker with the default pass budget.
func Optimize(ec *expr.Context, root *expr.Node, table *Table, env *Env) (*expr.Node, error) {
	w := Walker{Table: table, Env: env}
	return w.Optimize(ec, root)
}

type pass struct {
	w     *Walker
	ec    *expr.Context
	memo  map[*expr.Node]*expr.Node
	fired int
}

func (p *pass) visit(n *expr.Node) *expr.Node {
	if out, ok := p.memo[n]; ok {
		return out
	}
	cur := n
	if n.ChildrenLen() > 0 {
		var children []*expr.Node
		for i, c := range n.Children() {
			nc := p.visit(c)
			if nc != c && children == nil {
				children = make([]*expr.Node, n.ChildrenLen())
				copy(children, n.Children())
			}
			if children != nil {
				children[i] = nc
			}
		}
		if children != nil {
			cur = p.ec.KeepAnnotations(n, p.ec.ChangeChildren(n, children))
		}
	}
	if isCallable(cur) {
		cur = p.apply(cur, p.w.Table.Lookup(cur.Content()))
		if isCallable(cur) {
			cur = p.apply(cur, p.w.Table.CatchAll())
		}
	}
	p.memo[n] = cur
	return cur
}

// apply tries rules on n in order and returns the
// result of the first one that fires. A result built
// by the rule takes the annotations of n where it has
// none; an existing node is returned as it is, so that
// it stays shared with the rest of the graph.
func (p *pass) apply(n *expr.Node, rules []Rule) *expr.Node {
	for i := range rules {
		mark := p.ec.NodeCount()
		out := rules[i].Fn(n, p.ec, p.w.Env)
		if out == nil || out == n {
			continue
		}
		p.fired++
		p.w.Env.hit(rules[i].Label)
		p.w.Env.logf("%s: rule %s: #%d -> #%d", p.ec.ID, rules[i].Label, n.ID(), out.ID())
		if int(out.ID()) > mark {
			out = p.ec.KeepAnnotations(n, out)
		}
		return out
	}
	return n
}
