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

// Package optimize implements the rewrite rule
// table and the fixpoint walker that applies it.
//
// A rule is a pure function of a callable node: it
// either returns the node itself (no match) or a new
// node that is equivalent under the node's type. Rules
// are keyed by operator name; catch-all rules (with an
// empty Name) run on every callable after its named
// rules.
package optimize

import (
	"sort"
	"sync"

	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// RuleFunc rewrites n, or returns n if it does not apply.
type RuleFunc func(n *expr.Node, ec *expr.Context, env *Env) *expr.Node

// Rule is one entry of a Table.
type Rule struct {
	// Name is the operator the rule applies to;
	// the empty name makes the rule a catch-all.
	Name string
	// Label names the rule itself in logs
	// and statistics and for Without.
	Label string
	Fn    RuleFunc
}

// Table maps operator names to rules.
// A Table is immutable once built and
// may be shared between compilations.
type Table struct {
	named    map[string][]Rule
	catchAll []Rule
	labels   []string
}

// NewTable builds a table from rules. Rules for the
// same operator are tried in the order given.
// NewTable panics if two rules share a label.
func NewTable(rules ...Rule) *Table {
	t := &Table{named: make(map[string][]Rule)}
	seen := make(map[string]struct{})
	for _, r := range rules {
		if r.Fn == nil || r.Label == "" {
			panic(errors.AssertionFailedf("rule %q for %q: missing label or function", r.Label, r.Name))
		}
		if _, dup := seen[r.Label]; dup {
			panic(errors.AssertionFailedf("duplicate rule label %q", r.Label))
		}
		seen[r.Label] = struct{}{}
		t.labels = append(t.labels, r.Label)
		if r.Name == "" {
			t.catchAll = append(t.catchAll, r)
		} else {
			t.named[r.Name] = append(t.named[r.Name], r)
		}
	}
	sort.Strings(t.labels)
	return t
}

// Lookup returns the rules registered for name.
// It returns nothing for unregistered names; the
// catch-all rules are returned by CatchAll.
func (t *Table) Lookup(name string) []Rule {
	return t.named[name]
}

// CatchAll returns the catch-all rules.
func (t *Table) CatchAll() []Rule { return t.catchAll }

// Labels returns the sorted labels of every rule.
func (t *Table) Labels() []string { return t.labels }

// Operators returns the sorted operator
// names that have rules.
func (t *Table) Operators() []string {
	ops := maps.Keys(t.named)
	slices.Sort(ops)
	return ops
}

// All returns every rule of the table,
// named rules (by operator) first.
func (t *Table) All() []Rule {
	var out []Rule
	for _, op := range t.Operators() {
		out = append(out, t.named[op]...)
	}
	return append(out, t.catchAll...)
}

// Without returns a copy of t without the rules
// whose label (or operator name) is in names.
func (t *Table) Without(names ...string) *Table {
	if len(names) == 0 {
		return t
	}
	var keep []Rule
	for _, r := range t.All() {
		if slices.Contains(names, r.Label) || (r.Name != "" && slices.Contains(names, r.Name)) {
			continue
		}
		keep = append(keep, r)
	}
	return NewTable(keep...)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// DefaultTable returns the table of built-in rules:
// the rules of core.rules followed by the Go rules.
func DefaultTable() *Table {
	defaultOnce.Do(func() {
		declarative, err := ParseRules(coreRules(), "core.rules")
		if err != nil {
			panic(err)
		}
		defaultTable = NewTable(append(declarative, builtinRules()...)...)
	})
	return defaultTable
}

func isCallable(n *expr.Node) bool {
	return n.Kind() == expr.KindCallable
}
