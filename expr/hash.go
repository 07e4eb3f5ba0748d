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
	"encoding/binary"

	"github.com/dchest/siphash"
)

const (
	hashk0 = 0x736e656c6c657200
	hashk1 = 0x7465726d72770000
)

// hashNode computes the structural hash of n
// from its content and the hashes of its children.
// Arguments hash by kind alone, so lambdas that
// differ only in the identity of their arguments
// produce the same hash.
func hashNode(n *Node) uint64 {
	var tmp [64]byte
	buf := tmp[:0]
	buf = append(buf, byte(n.kind), byte(n.flags))
	if n.kind != KindArgument {
		buf = append(buf, n.content...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(n.children)))
	for _, c := range n.children {
		buf = binary.LittleEndian.AppendUint64(buf, c.hash)
	}
	return siphash.Hash(hashk0, hashk1, buf)
}

// Equal returns whether a and b are structurally equal.
// Annotations and positions are ignored, and lambdas are
// compared up to the renaming of their arguments.
// Arguments that are not bound within a and b are
// only equal to themselves.
func Equal(a, b *Node) bool {
	eq := equaler{bound: make(map[*Node]*Node)}
	return eq.equal(a, b)
}

type equaler struct {
	bound map[*Node]*Node
	// pairs proven equal under the current bindings;
	// each lambda body gets its own set
	same map[[2]*Node]struct{}
}

func (e *equaler) equal(a, b *Node) bool {
	if a == b && len(e.bound) == 0 {
		return true
	}
	key := [2]*Node{a, b}
	if _, ok := e.same[key]; ok {
		return true
	}
	if !e.compare(a, b) {
		return false
	}
	if e.same == nil {
		e.same = make(map[[2]*Node]struct{})
	}
	e.same[key] = struct{}{}
	return true
}

func (e *equaler) compare(a, b *Node) bool {
	if a.hash != b.hash || a.kind != b.kind || len(a.children) != len(b.children) {
		return false
	}
	switch a.kind {
	case KindArgument:
		if to, ok := e.bound[a]; ok {
			return to == b
		}
		return a == b
	case KindLambda:
		args := a.Args()
		for i, arg := range args {
			e.bound[arg] = b.children[i]
		}
		outer := e.same
		e.same = nil
		ok := e.equal(a.Body(), b.Body())
		e.same = outer
		for _, arg := range args {
			delete(e.bound, arg)
		}
		return ok
	}
	if a.content != b.content || a.flags != b.flags {
		return false
	}
	for i := range a.children {
		if !e.equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}
