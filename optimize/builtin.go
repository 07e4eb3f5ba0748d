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
	"strconv"

	"github.com/SnellerInc/termrw/expr"
)

// builtinRules returns the rules that cannot be
// expressed as patterns: variadic operators, rules
// that depend on literal values or on the ambient
// environment, and the catch-all.
func builtinRules() []Rule {
	return []Rule{
		{Name: "And", Label: "AndFlatten", Fn: flattenSame},
		{Name: "And", Label: "AndShortCircuit", Fn: shortCircuit},
		{Name: "And", Label: "AndNeutral", Fn: dropNeutral},
		{Name: "And", Label: "AndDedup", Fn: dedupChildren},
		{Name: "And", Label: "AndSingle", Fn: singleChild},
		{Name: "Or", Label: "OrFlatten", Fn: flattenSame},
		{Name: "Or", Label: "OrShortCircuit", Fn: shortCircuit},
		{Name: "Or", Label: "OrNeutral", Fn: dropNeutral},
		{Name: "Or", Label: "OrDedup", Fn: dedupChildren},
		{Name: "Or", Label: "OrSingle", Fn: singleChild},
		{Name: "Coalesce", Label: "CoalesceJust", Fn: coalesceJust},
		{Name: "Coalesce", Label: "CoalesceNothing", Fn: coalesceNothing},
		{Name: "Coalesce", Label: "CoalesceFlatten", Fn: coalesceFlatten},
		{Name: "Coalesce", Label: "CoalesceNonOptional", Fn: coalesceNonOptional},
		{Name: "Exists", Label: "ExistsNonOptional", Fn: existsNonOptional},
		{Name: "FlatMap", Label: "FlatMapSingleton", Fn: flatMapSingleton},
		{Name: "FlatMap", Label: "FlatMapEmpty", Fn: flatMapEmpty},
		{Name: "Filter", Label: "FilterFalse", Fn: filterFalse},
		{Name: "Filter", Label: "FilterEmpty", Fn: emptyInput},
		{Name: "Map", Label: "MapEmpty", Fn: emptyInput},
		{Name: "ToList", Label: "ToListNothing", Fn: toListNothing},
		{Name: "Nth", Label: "NthTuple", Fn: nthTuple},
		{Name: "Member", Label: "MemberAsStruct", Fn: memberAsStruct},
		{Name: "Length", Label: "LengthLiteral", Fn: lengthLiteral},
		{Name: "HasItems", Label: "HasItemsLiteral", Fn: hasItemsLiteral},
		{Name: "Take", Label: "TakeZero", Fn: takeZero},
		{Name: "Take", Label: "TakeEmpty", Fn: emptyPassThrough},
		{Name: "Skip", Label: "SkipEmpty", Fn: emptyPassThrough},
		{Name: "Sort", Label: "SortSorted", Fn: alreadySorted},
		{Name: "Sort", Label: "SortAssumeSorted", Fn: skipAssumeSorted},
		{Name: "AssumeSorted", Label: "AssumeSortedSorted", Fn: alreadySorted},
		{Name: "AssumeSorted", Label: "AssumeSortedNested", Fn: skipAssumeSorted},
		{Name: "ListCredentials", Label: "ListCredentials", Fn: listCredentials},
		{Name: "Files", Label: "Files", Fn: listFiles},
		{Label: "DropAssumeSorted", Fn: dropAssumeSorted},
	}
}

// boolLiteral returns the value of a Bool literal
func boolLiteral(n *expr.Node) (bool, bool) {
	if !n.IsCallable("Bool") {
		return false, false
	}
	return n.Head().Content() == "true", true
}

// uintLiteral returns the value of a non-negative integer literal
func uintLiteral(n *expr.Node) (uint64, bool) {
	if !n.IsCallable("Int32", "Int64", "Uint32", "Uint64") {
		return 0, false
	}
	v, err := strconv.ParseUint(n.Head().Content(), 10, 64)
	return v, err == nil
}

// literalItems returns the items of a literal
// list: (AsList items...) or (List "type" items...)
func literalItems(n *expr.Node) ([]*expr.Node, bool) {
	switch {
	case n.IsCallable("AsList"):
		return n.Children(), true
	case n.IsCallable("List"):
		return n.Children()[1:], true
	}
	return nil, false
}

func typeAtom(ec *expr.Context, pos expr.Pos, t *expr.Type) *expr.Node {
	return ec.NewAtom(pos, t.String(), expr.AtomDefault)
}

// emptyOf returns an empty value of the type t,
// or nil if there is no literal for it
func emptyOf(ec *expr.Context, pos expr.Pos, t *expr.Type) *expr.Node {
	switch {
	case t == nil:
		return nil
	case t.Kind() == expr.TypeList:
		return ec.NewCallable(pos, "List", typeAtom(ec, pos, t))
	case t.IsOptional():
		return ec.NewCallable(pos, "Nothing", typeAtom(ec, pos, t))
	case t.Kind() == expr.TypeEmptyList:
		return ec.NewCallable(pos, "AsList")
	}
	return nil
}

// logical returns the absorbing element of And or Or
func logical(n *expr.Node) bool {
	return n.Content() == "Or"
}

func flattenSame(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	var out []*expr.Node
	for i, c := range n.Children() {
		if c.IsCallable(n.Content()) {
			if out == nil {
				out = append(out, n.Children()[:i]...)
			}
			out = append(out, c.Children()...)
		} else if out != nil {
			out = append(out, c)
		}
	}
	if out == nil {
		return n
	}
	return ec.NewCallable(n.Pos(), n.Content(), out...)
}

func shortCircuit(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	absorb := logical(n)
	for _, c := range n.Children() {
		if v, ok := boolLiteral(c); ok && v == absorb {
			lit := ec.NewBool(n.Pos(), absorb)
			if n.Type().IsOptional() {
				return ec.NewCallable(n.Pos(), "Just", lit)
			}
			return lit
		}
	}
	return n
}

func dropNeutral(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	neutral := !logical(n)
	var keep []*expr.Node
	dropped := false
	for _, c := range n.Children() {
		if v, ok := boolLiteral(c); ok && v == neutral {
			dropped = true
			continue
		}
		keep = append(keep, c)
	}
	switch {
	case !dropped:
		return n
	case len(keep) == 0:
		return ec.NewBool(n.Pos(), neutral)
	}
	return ec.NewCallable(n.Pos(), n.Content(), keep...)
}

func dedupChildren(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	keep := make([]*expr.Node, 0, n.ChildrenLen())
outer:
	for _, c := range n.Children() {
		for _, k := range keep {
			if expr.Equal(k, c) {
				continue outer
			}
		}
		keep = append(keep, c)
	}
	if len(keep) == n.ChildrenLen() {
		return n
	}
	return ec.NewCallable(n.Pos(), n.Content(), keep...)
}

func singleChild(n *expr.Node, _ *expr.Context, _ *Env) *expr.Node {
	if n.ChildrenLen() == 1 {
		return n.Head()
	}
	return n
}

func coalesceJust(n *expr.Node, _ *expr.Context, _ *Env) *expr.Node {
	first := n.Head()
	if !first.IsCallable("Just") {
		return n
	}
	if n.Type().IsOptional() {
		return first
	}
	return first.Head()
}

func coalesceNothing(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	if !n.Head().IsCallable("Nothing") {
		return n
	}
	rest := n.Children()[1:]
	if len(rest) == 1 {
		return rest[0]
	}
	return ec.NewCallable(n.Pos(), "Coalesce", rest...)
}

func coalesceFlatten(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	last := n.Tail()
	if !last.IsCallable("Coalesce") {
		return n
	}
	children := append(n.Children()[:n.ChildrenLen()-1:n.ChildrenLen()-1], last.Children()...)
	return ec.NewCallable(n.Pos(), "Coalesce", children...)
}

func coalesceNonOptional(n *expr.Node, _ *expr.Context, _ *Env) *expr.Node {
	first := n.Head()
	t := first.Type()
	if t == nil || t.IsOptional() || t.Kind() == expr.TypeNull {
		return n
	}
	if n.Type() != nil && n.Type() != t {
		return n
	}
	return first
}

func existsNonOptional(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	t := n.Head().Type()
	if t == nil || t.IsOptional() || t.Kind() == expr.TypeNull || t.Kind() == expr.TypeVoid {
		return n
	}
	return ec.NewBool(n.Pos(), true)
}

// lambdaResult classifies what a lambda body
// produces: a list, an optional or unknown
func lambdaResult(body *expr.Node) (list, optional bool) {
	if t := body.Type(); t != nil {
		return t.Kind() == expr.TypeList || t.Kind() == expr.TypeEmptyList, t.IsOptional()
	}
	switch {
	case body.IsCallable("AsList", "List", "ToList", "Map", "FlatMap", "Filter", "Take", "Skip", "Sort", "AssumeSorted"):
		return true, false
	case body.IsCallable("Just", "Nothing"):
		return false, true
	}
	return false, false
}

// flatMapSingleton rewrites (FlatMap (AsList x) f)
// to f applied to x, converted to a list if f
// yields an optional
func flatMapSingleton(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in, fn := n.Child(0), n.Child(1)
	items, ok := literalItems(in)
	if !ok || len(items) != 1 {
		return n
	}
	list, optional := lambdaResult(fn.Body())
	switch {
	case list:
		return ec.ApplyLambda(fn, items[0])
	case optional:
		return ec.NewCallable(n.Pos(), "ToList", ec.ApplyLambda(fn, items[0]))
	}
	return n
}

// flatMapEmpty rewrites a FlatMap over an empty input
// to an empty value of the result type
func flatMapEmpty(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Child(0)
	items, ok := literalItems(in)
	empty := (ok && len(items) == 0) || in.IsCallable("Nothing") || in.Constraints().Empty()
	if !empty {
		return n
	}
	if out := emptyOf(ec, n.Pos(), n.Type()); out != nil {
		return out
	}
	if n.Type() == nil && in.IsCallable("AsList") {
		return in
	}
	return n
}

func filterFalse(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	if v, ok := boolLiteral(n.Child(1).Body()); !ok || v {
		return n
	}
	if out := emptyOf(ec, n.Pos(), n.Type()); out != nil {
		return out
	}
	return n
}

// emptyInput rewrites an operator over an input
// without items to an empty value of its type
func emptyInput(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Head()
	items, ok := literalItems(in)
	if !in.Constraints().Empty() && !(ok && len(items) == 0) && !in.IsCallable("Nothing") {
		return n
	}
	if out := emptyOf(ec, n.Pos(), n.Type()); out != nil {
		return out
	}
	return n
}

func toListNothing(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Head()
	if !in.IsCallable("Nothing") {
		return n
	}
	t := n.Type()
	if t == nil {
		opt, err := ec.ParseType(in.Head().Content())
		if err != nil || !opt.IsOptional() {
			return n
		}
		t = ec.ListType(opt.Item())
	}
	if out := emptyOf(ec, n.Pos(), t); out != nil {
		return out
	}
	return n
}

func indexError(n *expr.Node, ec *expr.Context, msg string) *expr.Node {
	ec.AddError(n.Pos(), "%s", msg)
	return ec.NewCallable(n.Pos(), "Error", ec.NewAtom(n.Pos(), msg, expr.AtomDefault))
}

func nthTuple(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	tuple := n.Child(0)
	if !tuple.IsList() {
		return n
	}
	i, err := strconv.Atoi(n.Child(1).Content())
	if err != nil {
		return n
	}
	if i < 0 || i >= tuple.ChildrenLen() {
		return indexError(n, ec, "tuple index "+strconv.Itoa(i)+" out of range for a tuple of "+strconv.Itoa(tuple.ChildrenLen())+" items")
	}
	return tuple.Child(i)
}

func memberAsStruct(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	st := n.Child(0)
	if !st.IsCallable("AsStruct") {
		return n
	}
	name := n.Child(1).Content()
	for _, m := range st.Children() {
		if m.Head().Content() == name {
			return m.Child(1)
		}
	}
	return indexError(n, ec, "member "+strconv.Quote(name)+" not found in struct")
}

func lengthLiteral(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Head()
	if in.Constraints().Empty() {
		return ec.NewData(n.Pos(), expr.Uint64, "0")
	}
	items, ok := literalItems(in)
	if !ok {
		return n
	}
	return ec.NewData(n.Pos(), expr.Uint64, strconv.Itoa(len(items)))
}

func hasItemsLiteral(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Head()
	if in.Constraints().Empty() {
		return ec.NewBool(n.Pos(), false)
	}
	items, ok := literalItems(in)
	if !ok {
		return n
	}
	return ec.NewBool(n.Pos(), len(items) > 0)
}

func takeZero(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	if v, ok := uintLiteral(n.Child(1)); !ok || v != 0 {
		return n
	}
	t := n.Type()
	if t == nil {
		t = n.Child(0).Type()
	}
	if out := emptyOf(ec, n.Pos(), t); out != nil {
		return out
	}
	if t == nil && n.Child(0).IsCallable("AsList") {
		return ec.NewCallable(n.Pos(), "AsList")
	}
	return n
}

// emptyPassThrough rewrites an operator that cannot
// add items to an empty input to the input itself
func emptyPassThrough(n *expr.Node, _ *expr.Context, _ *Env) *expr.Node {
	if in := n.Head(); in.Constraints().Empty() {
		return in
	}
	return n
}

func alreadySorted(n *expr.Node, _ *expr.Context, _ *Env) *expr.Node {
	in := n.Child(0)
	keys := expr.SortKeys(n.Child(1), n.Child(2))
	if keys == nil || !in.Constraints().SortedBy(keys) {
		return n
	}
	return in
}

// skipAssumeSorted drops an order assumption on the
// input of an operator that establishes its own order
func skipAssumeSorted(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	in := n.Child(0)
	if !in.IsCallable("AssumeSorted") {
		return n
	}
	return ec.ChangeChild(n, 0, in.Child(0))
}

func listCredentials(n *expr.Node, ec *expr.Context, env *Env) *expr.Node {
	names := env.CredentialNames()
	if len(names) == 0 {
		return ec.NewCallable(n.Pos(), "List", ec.NewAtom(n.Pos(), "List<String>", expr.AtomDefault))
	}
	items := make([]*expr.Node, len(names))
	for i := range names {
		items[i] = ec.NewData(n.Pos(), expr.String, names[i])
	}
	return ec.NewCallable(n.Pos(), "AsList", items...)
}

func listFiles(n *expr.Node, ec *expr.Context, env *Env) *expr.Node {
	files, ok := env.Listing(n.Head().Content())
	if !ok {
		return n
	}
	if len(files) == 0 {
		return ec.NewCallable(n.Pos(), "List", ec.NewAtom(n.Pos(), "List<Utf8>", expr.AtomDefault))
	}
	items := make([]*expr.Node, len(files))
	for i := range files {
		items[i] = ec.NewData(n.Pos(), expr.Utf8, files[i])
	}
	return ec.NewCallable(n.Pos(), "AsList", items...)
}

// dropAssumeSorted removes order assumptions from
// the inputs of operators with a scalar result,
// for which the order of the input is irrelevant
func dropAssumeSorted(n *expr.Node, ec *expr.Context, _ *Env) *expr.Node {
	if !n.Type().IsScalar() {
		return n
	}
	var children []*expr.Node
	for i, c := range n.Children() {
		if !c.IsCallable("AssumeSorted") {
			continue
		}
		if children == nil {
			children = append([]*expr.Node(nil), n.Children()...)
		}
		children[i] = c.Child(0)
	}
	if children == nil {
		return n
	}
	return ec.ChangeChildren(n, children)
}
