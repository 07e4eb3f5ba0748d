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
	"github.com/SnellerInc/termrw/transform"
)

// Dedup merges structurally equal subgraphs of root
// so that each distinct subgraph is represented by
// one node. Nodes are merged only if they carry the
// same annotations. Arguments and worlds are never
// merged, since their identity is significant.
//
// Dedup returns the new root and the number of
// nodes that were replaced by an equal node.
func Dedup(ec *expr.Context, root *expr.Node) (*expr.Node, int) {
	d := deduper{
		ec:      ec,
		memo:    make(map[*expr.Node]*expr.Node),
		buckets: make(map[uint64][]*expr.Node),
	}
	out := d.visit(root)
	return out, d.merged
}

type deduper struct {
	ec      *expr.Context
	memo    map[*expr.Node]*expr.Node
	buckets map[uint64][]*expr.Node
	merged  int
}

func (d *deduper) visit(n *expr.Node) *expr.Node {
	if out, ok := d.memo[n]; ok {
		return out
	}
	cur := n
	if n.ChildrenLen() > 0 {
		children := make([]*expr.Node, n.ChildrenLen())
		for i, c := range n.Children() {
			children[i] = d.visit(c)
		}
		cur = d.ec.KeepAnnotations(n, d.ec.ChangeChildren(n, children))
	}
	if !cur.IsArgument() && !cur.IsWorld() {
		cur = d.canonical(cur)
	}
	d.memo[n] = cur
	return cur
}

func (d *deduper) canonical(n *expr.Node) *expr.Node {
	h := n.Hash()
	for _, c := range d.buckets[h] {
		if c == n {
			return n
		}
		if c.Type() == n.Type() && c.Constraints() == n.Constraints() && expr.Equal(c, n) {
			d.merged++
			return c
		}
	}
	d.buckets[h] = append(d.buckets[h], n)
	return n
}

// CSE returns a synchronous transformer that
// runs Dedup. It always returns Ok, since merged
// nodes carry identical annotations.
func CSE() transform.Transformer {
	return transform.Func(func(input *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
		out, _ := Dedup(ec, input)
		return out, transform.StatusOk
	})
}
