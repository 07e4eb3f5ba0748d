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
	"strings"

	"golang.org/x/exp/slices"
)

// SortKey is one column of a sort order.
// The empty Column refers to the item itself.
type SortKey struct {
	Column string
	Asc    bool
}

func (k SortKey) String() string {
	col := k.Column
	if col == "" {
		col = "_"
	}
	if k.Asc {
		return col + " asc"
	}
	return col + " desc"
}

// ConstraintSet is a set of facts derived
// about the result of a node.
//
// Like types, constraint sets are interned
// by their Context, and a nil *ConstraintSet
// is the empty set.
type ConstraintSet struct {
	sorted []SortKey
	unique []string
	empty  bool
	str    string
}

// Sorted returns the sort order of the
// result, or nil if it is not known to be sorted.
func (cs *ConstraintSet) Sorted() []SortKey {
	if cs == nil {
		return nil
	}
	return cs.sorted
}

// Unique returns the columns by which the
// result is known to be unique, or nil.
func (cs *ConstraintSet) Unique() []string {
	if cs == nil {
		return nil
	}
	return cs.unique
}

// Empty returns whether the result is
// known to have no items.
func (cs *ConstraintSet) Empty() bool {
	return cs != nil && cs.empty
}

// SortedBy returns whether the result is known
// to be sorted by keys (or by an order of which
// keys is a prefix).
func (cs *ConstraintSet) SortedBy(keys []SortKey) bool {
	s := cs.Sorted()
	return len(keys) > 0 && len(keys) <= len(s) && slices.Equal(s[:len(keys)], keys)
}

func (cs *ConstraintSet) String() string {
	if cs == nil {
		return ""
	}
	return cs.str
}

func constraintString(cs *ConstraintSet) string {
	var parts []string
	if cs.sorted != nil {
		var keys []string
		for i := range cs.sorted {
			keys = append(keys, cs.sorted[i].String())
		}
		parts = append(parts, "Sorted("+strings.Join(keys, ",")+")")
	}
	if cs.unique != nil {
		cols := slices.Clone(cs.unique)
		for i := range cols {
			if cols[i] == "" {
				cols[i] = "_"
			}
		}
		parts = append(parts, "Unique("+strings.Join(cols, ",")+")")
	}
	if cs.empty {
		parts = append(parts, "Empty")
	}
	return strings.Join(parts, " ")
}

// NewConstraints returns the interned constraint set
// holding the given facts. It returns nil when no
// fact is given.
func (c *Context) NewConstraints(sorted []SortKey, unique []string, empty bool) *ConstraintSet {
	if len(sorted) == 0 && len(unique) == 0 && !empty {
		return nil
	}
	cs := &ConstraintSet{empty: empty}
	if len(sorted) > 0 {
		cs.sorted = slices.Clone(sorted)
	}
	if len(unique) > 0 {
		cs.unique = slices.Clone(unique)
		slices.Sort(cs.unique)
		cs.unique = slices.Compact(cs.unique)
	}
	cs.str = constraintString(cs)
	if got, ok := c.cons[cs.str]; ok {
		return got
	}
	c.cons[cs.str] = cs
	return cs
}

// SortKeys returns the sort order described by the
// direction literal asc and the key extractor lambda of
// a Sort or AssumeSorted node, or nil if the order cannot
// be described by columns. The extractor must return its
// argument, a member of its argument, or a list of
// members of its argument.
func SortKeys(asc, extractor *Node) []SortKey {
	if !asc.IsCallable("Bool") || !extractor.IsLambda() || len(extractor.Args()) != 1 {
		return nil
	}
	dir := asc.Head().Content() == "true"
	arg := extractor.Args()[0]
	column := func(n *Node) (string, bool) {
		if n == arg {
			return "", true
		}
		if n.IsCallable("Member") && n.Child(0) == arg {
			return n.Child(1).Content(), true
		}
		return "", false
	}
	body := extractor.Body()
	if col, ok := column(body); ok {
		return []SortKey{{Column: col, Asc: dir}}
	}
	if !body.IsList() || body.ChildrenLen() == 0 {
		return nil
	}
	keys := make([]SortKey, 0, body.ChildrenLen())
	for _, c := range body.Children() {
		col, ok := column(c)
		if !ok {
			return nil
		}
		keys = append(keys, SortKey{Column: col, Asc: dir})
	}
	return keys
}
