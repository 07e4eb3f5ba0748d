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
	"sync"

	"golang.org/x/exp/slices"
)

// ShapeError is produced when the children of a
// callable violate the fixed signature of its operator.
// It indicates a programming error in a rule or in
// the producer of the graph, not a user error.
type ShapeError struct {
	Name   string
	Reason string
}

func (s *ShapeError) Error() string {
	return fmt.Sprintf("expr: bad shape for %s: %s", s.Name, s.Reason)
}

// Signature is the fixed shape of an operator.
type Signature struct {
	// Min and Max bound the number of children;
	// a negative Max means no upper bound.
	Min, Max int
	// Atoms lists the child positions that
	// must be atoms.
	Atoms []int
	// Lambdas maps child positions that must be
	// lambdas to the number of their arguments.
	Lambdas map[int]int
	// Check, if non-nil, performs additional
	// validation; it returns a non-empty reason
	// if children are not acceptable.
	Check func(children []*Node) string
}

var (
	sigLock    sync.RWMutex
	signatures = make(map[string]*Signature)
)

// RegisterSignature sets the signature of an operator.
// It is meant to be called from init functions.
func RegisterSignature(name string, sig Signature) {
	sigLock.Lock()
	defer sigLock.Unlock()
	signatures[name] = &sig
}

// LookupSignature returns the signature
// of name, or nil if none is registered.
func LookupSignature(name string) *Signature {
	sigLock.RLock()
	defer sigLock.RUnlock()
	return signatures[name]
}

// CheckShape validates children against the
// signature registered for name. Operators without
// a registered signature accept any children.
func CheckShape(name string, children []*Node) error {
	sig := LookupSignature(name)
	if sig == nil {
		return nil
	}
	fail := func(f string, args ...any) error {
		return &ShapeError{Name: name, Reason: fmt.Sprintf(f, args...)}
	}
	n := len(children)
	if n < sig.Min {
		return fail("%d children; need at least %d", n, sig.Min)
	}
	if sig.Max >= 0 && n > sig.Max {
		return fail("%d children; need at most %d", n, sig.Max)
	}
	for i, c := range children {
		if c == nil {
			return fail("child %d is nil", i)
		}
	}
	for _, i := range sig.Atoms {
		if i < n && !children[i].IsAtom() {
			return fail("child %d is a %s, not an atom", i, children[i].Kind())
		}
	}
	for i, args := range sig.Lambdas {
		if i >= n {
			continue
		}
		if !children[i].IsLambda() {
			return fail("child %d is a %s, not a lambda", i, children[i].Kind())
		}
		if got := len(children[i].Args()); got != args {
			return fail("lambda at child %d has %d arguments; need %d", i, got, args)
		}
	}
	if sig.Check != nil {
		if reason := sig.Check(children); reason != "" {
			return fail("%s", reason)
		}
	}
	return nil
}

func fixed(n int, atoms ...int) Signature {
	return Signature{Min: n, Max: n, Atoms: atoms}
}

func atLeast(n int) Signature {
	return Signature{Min: n, Max: -1}
}

func withLambda(sig Signature, pos, args int) Signature {
	sig.Lambdas = map[int]int{pos: args}
	return sig
}

func checkIndex(children []*Node) string {
	if _, err := strconv.ParseUint(children[1].Content(), 10, 32); err != nil {
		return fmt.Sprintf("index %q is not a number", children[1].Content())
	}
	return ""
}

func checkMembers(children []*Node) string {
	var names []string
	for i, c := range children {
		if !c.IsList() || c.ChildrenLen() != 2 || !c.Head().IsAtom() {
			return fmt.Sprintf("member %d is not a (name value) pair", i)
		}
		name := c.Head().Content()
		if slices.Contains(names, name) {
			return fmt.Sprintf("duplicate member %q", name)
		}
		names = append(names, name)
	}
	return ""
}

func init() {
	for _, s := range slotNames[1:] {
		RegisterSignature(s, fixed(1, 0))
	}
	RegisterSignature("Just", fixed(1))
	RegisterSignature("Nothing", fixed(1, 0))
	RegisterSignature("AsList", atLeast(0))
	RegisterSignature("List", Signature{Min: 1, Max: -1, Atoms: []int{0}})
	RegisterSignature("AsStruct", Signature{Min: 0, Max: -1, Check: checkMembers})
	RegisterSignature("Member", fixed(2, 1))
	RegisterSignature("Nth", Signature{Min: 2, Max: 2, Atoms: []int{1}, Check: checkIndex})
	RegisterSignature("Not", fixed(1))
	RegisterSignature("And", atLeast(1))
	RegisterSignature("Or", atLeast(1))
	RegisterSignature("If", fixed(3))
	RegisterSignature("Coalesce", atLeast(2))
	RegisterSignature("Exists", fixed(1))
	RegisterSignature("ToList", fixed(1))
	RegisterSignature("Map", withLambda(fixed(2), 1, 1))
	RegisterSignature("FlatMap", withLambda(fixed(2), 1, 1))
	RegisterSignature("Filter", withLambda(fixed(2), 1, 1))
	RegisterSignature("Length", fixed(1))
	RegisterSignature("HasItems", fixed(1))
	RegisterSignature("Take", fixed(2))
	RegisterSignature("Skip", fixed(2))
	RegisterSignature("Sort", withLambda(fixed(3), 2, 1))
	RegisterSignature("AssumeSorted", withLambda(fixed(3), 2, 1))
	RegisterSignature("ListCredentials", fixed(0))
	RegisterSignature("Files", fixed(1, 0))
	RegisterSignature("Error", fixed(1, 0))
}
