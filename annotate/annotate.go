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

// Package annotate computes the type and the
// constraint set of every node of a graph.
//
// Annotation is a pure function of the graph: a node
// is rebuilt only when its children or its annotations
// change, so annotating an annotated graph returns
// the same root.
package annotate

import (
	"fmt"
	"strconv"

	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/transform"
)

// TypeError describes an ill-typed node.
// Type errors are reported to the issue
// manager of the context.
type TypeError struct {
	At  *expr.Node
	Msg string
}

func (t *TypeError) Error() string {
	return fmt.Sprintf("%s is ill-typed: %s", t.At.Content(), t.Msg)
}

// typer computes the annotations of n from its
// annotated children. It may replace lambda children
// in ch. It returns a nil type when n cannot be typed.
type typer func(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet)

var typers map[string]typer

type annotator struct {
	ec   *expr.Context
	memo map[*expr.Node]*expr.Node
}

// Annotate returns root with every node annotated.
// Ill-typed nodes are reported to ec.Issues and left
// without a type, as are the nodes that depend on them.
func Annotate(ec *expr.Context, root *expr.Node) *expr.Node {
	a := &annotator{ec: ec, memo: make(map[*expr.Node]*expr.Node)}
	return a.visit(root)
}

// NewStage returns a synchronous transformer that
// annotates its input. It returns Error if
// annotation reported an error and Ok otherwise.
func NewStage() transform.Transformer {
	return transform.Func(func(input *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
		errs := ec.Issues.ErrorCount()
		out := Annotate(ec, input)
		if ec.Issues.ErrorCount() > errs {
			return out, transform.StatusError
		}
		return out, transform.StatusOk
	})
}

func (a *annotator) errorf(n *expr.Node, f string, args ...any) {
	err := &TypeError{At: n, Msg: fmt.Sprintf(f, args...)}
	a.ec.AddError(n.Pos(), "%s", err.Error())
}

func (a *annotator) visit(n *expr.Node) *expr.Node {
	if out, ok := a.memo[n]; ok {
		return out
	}
	var out *expr.Node
	switch n.Kind() {
	case expr.KindAtom:
		out = a.ec.Annotate(n, a.ec.UnitType(), nil)
	case expr.KindWorld:
		out = a.ec.Annotate(n, a.ec.WorldType(), nil)
	case expr.KindArgument:
		out = n
	case expr.KindLambda:
		a.errorf(n, "lambda is not an operator argument")
		out = n
	case expr.KindList:
		out = a.tuple(n)
	default:
		out = a.callable(n)
	}
	a.memo[n] = out
	return out
}

func allTyped(ch []*expr.Node) bool {
	for _, c := range ch {
		if !c.IsLambda() && c.Type() == nil {
			return false
		}
	}
	return true
}

func (a *annotator) children(n *expr.Node) []*expr.Node {
	ch := make([]*expr.Node, n.ChildrenLen())
	for i, c := range n.Children() {
		if c.IsLambda() {
			// typed by the operator
			ch[i] = c
			continue
		}
		ch[i] = a.visit(c)
	}
	return ch
}

func (a *annotator) tuple(n *expr.Node) *expr.Node {
	ch := a.children(n)
	out := a.ec.ChangeChildren(n, ch)
	if !allTyped(ch) {
		return a.ec.Annotate(out, nil, nil)
	}
	items := make([]*expr.Type, len(ch))
	for i := range ch {
		items[i] = ch[i].Type()
	}
	return a.ec.Annotate(out, a.ec.TupleType(items...), nil)
}

func (a *annotator) callable(n *expr.Node) *expr.Node {
	ch := a.children(n)
	var t *expr.Type
	var cs *expr.ConstraintSet
	if fn, ok := typers[n.Content()]; !ok {
		a.errorf(n, "unknown operator")
	} else if allTyped(ch) {
		t, cs = fn(a, n, ch)
	}
	out := a.ec.ChangeChildren(n, ch)
	if t == nil {
		cs = nil
	}
	return a.ec.Annotate(out, t, cs)
}

// lambda returns l with its arguments typed
// as args and its body annotated
func (a *annotator) lambda(l *expr.Node, args ...*expr.Type) *expr.Node {
	params := l.Args()
	typed := make([]*expr.Node, len(params))
	repl := make(map[*expr.Node]*expr.Node)
	for i, p := range params {
		if p.Type() == args[i] {
			typed[i] = p
			continue
		}
		typed[i] = a.ec.WithType(p, args[i])
		repl[p] = typed[i]
	}
	body := l.Body()
	if len(repl) > 0 {
		body = a.ec.ReplaceNodes(body, repl)
	}
	body = a.visit(body)
	out := a.ec.ChangeChildren(l, append(typed, body))
	return a.ec.Annotate(out, body.Type(), nil)
}

func init() {
	typers = map[string]typer{
		"Just":            typeJust,
		"Nothing":         typeNothing,
		"AsList":          typeAsList,
		"List":            typeList,
		"AsStruct":        typeAsStruct,
		"Member":          typeMember,
		"Nth":             typeNth,
		"Not":             typeNot,
		"And":             typeLogical,
		"Or":              typeLogical,
		"If":              typeIf,
		"Coalesce":        typeCoalesce,
		"Exists":          typeExists,
		"ToList":          typeToList,
		"Map":             typeMap,
		"FlatMap":         typeFlatMap,
		"Filter":          typeFilter,
		"Length":          typeLength,
		"HasItems":        typeLength,
		"Take":            typeTakeSkip,
		"Skip":            typeTakeSkip,
		"Sort":            typeSort,
		"AssumeSorted":    typeSort,
		"ListCredentials": typeListOf(expr.String),
		"Files":           typeListOf(expr.Utf8),
		"Error":           typeError,
	}
	for s := expr.Bool; s <= expr.Utf8; s++ {
		typers[s.String()] = typeData
	}
}

// literal list constraints: Empty for no
// items and Unique for a single item
func listConstraints(ec *expr.Context, items int) *expr.ConstraintSet {
	switch items {
	case 0:
		return ec.NewConstraints(nil, nil, true)
	case 1:
		return ec.NewConstraints(nil, []string{""}, false)
	}
	return nil
}

func unwrap(t *expr.Type) (*expr.Type, bool) {
	if t.IsOptional() {
		return t.Item(), true
	}
	return t, false
}

func isBool(t *expr.Type) bool {
	t, _ = unwrap(t)
	return t.IsData(expr.Bool)
}

func isList(t *expr.Type) bool {
	return t.Kind() == expr.TypeList || t.Kind() == expr.TypeEmptyList
}

func typeData(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	slot, _ := expr.SlotByName(n.Content())
	if !slot.Valid(ch[0].Content()) {
		a.errorf(n, "invalid literal %q", ch[0].Content())
		return nil, nil
	}
	return a.ec.DataType(slot), nil
}

func typeJust(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	return a.ec.OptionalType(ch[0].Type()), nil
}

func typeNothing(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	t, err := a.ec.ParseType(ch[0].Content())
	if err != nil {
		a.errorf(n, "%s", err)
		return nil, nil
	}
	if !t.IsOptional() {
		a.errorf(n, "%s is not an Optional type", t)
		return nil, nil
	}
	return t, nil
}

func (a *annotator) sameItems(n *expr.Node, items []*expr.Node, want *expr.Type) bool {
	for _, c := range items {
		if c.Type() != want {
			a.errorf(n, "item of type %s in a list of %s", c.Type(), want)
			return false
		}
	}
	return true
}

func typeAsList(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	if len(ch) == 0 {
		return a.ec.EmptyListType(), listConstraints(a.ec, 0)
	}
	item := ch[0].Type()
	if !a.sameItems(n, ch, item) {
		return nil, nil
	}
	return a.ec.ListType(item), listConstraints(a.ec, len(ch))
}

func typeList(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	t, err := a.ec.ParseType(ch[0].Content())
	if err != nil {
		a.errorf(n, "%s", err)
		return nil, nil
	}
	if t.Kind() != expr.TypeList {
		a.errorf(n, "%s is not a List type", t)
		return nil, nil
	}
	if !a.sameItems(n, ch[1:], t.Item()) {
		return nil, nil
	}
	return t, listConstraints(a.ec, len(ch)-1)
}

func typeAsStruct(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	members := make([]expr.Member, len(ch))
	for i, c := range ch {
		members[i] = expr.Member{Name: c.Head().Content(), Type: c.Child(1).Type()}
	}
	return a.ec.StructType(members...), nil
}

func typeMember(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	st, opt := unwrap(ch[0].Type())
	if st.Kind() != expr.TypeStruct {
		a.errorf(n, "member of non-struct type %s", ch[0].Type())
		return nil, nil
	}
	name := ch[1].Content()
	mt := st.MemberType(name)
	if mt == nil {
		a.errorf(n, "no member %q in %s", name, st)
		return nil, nil
	}
	if opt && !mt.IsOptional() {
		mt = a.ec.OptionalType(mt)
	}
	return mt, nil
}

func typeNth(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	tt, opt := unwrap(ch[0].Type())
	if tt.Kind() != expr.TypeTuple {
		a.errorf(n, "index of non-tuple type %s", ch[0].Type())
		return nil, nil
	}
	i, _ := strconv.Atoi(ch[1].Content())
	if i >= len(tt.Items()) {
		a.errorf(n, "index %d out of range for %s", i, tt)
		return nil, nil
	}
	it := tt.Items()[i]
	if opt && !it.IsOptional() {
		it = a.ec.OptionalType(it)
	}
	return it, nil
}

func typeNot(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	if !isBool(ch[0].Type()) {
		a.errorf(n, "argument of type %s is not logical", ch[0].Type())
		return nil, nil
	}
	return ch[0].Type(), nil
}

func typeLogical(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	opt := false
	for i, c := range ch {
		if !isBool(c.Type()) {
			a.errorf(n, "argument %d of type %s is not logical", i, c.Type())
			return nil, nil
		}
		opt = opt || c.Type().IsOptional()
	}
	t := a.ec.DataType(expr.Bool)
	if opt {
		t = a.ec.OptionalType(t)
	}
	return t, nil
}

func typeIf(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	if !isBool(ch[0].Type()) {
		a.errorf(n, "condition of type %s is not logical", ch[0].Type())
		return nil, nil
	}
	if ch[1].Type() != ch[2].Type() {
		a.errorf(n, "branches have different types %s and %s", ch[1].Type(), ch[2].Type())
		return nil, nil
	}
	return ch[1].Type(), nil
}

func typeCoalesce(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	base, _ := unwrap(ch[0].Type())
	opt := true
	for _, c := range ch {
		t, o := unwrap(c.Type())
		if t != base {
			a.errorf(n, "cannot coalesce %s with %s", ch[0].Type(), c.Type())
			return nil, nil
		}
		opt = opt && o
	}
	if opt {
		return a.ec.OptionalType(base), nil
	}
	return base, nil
}

func typeExists(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	return a.ec.DataType(expr.Bool), nil
}

func typeToList(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	t := ch[0].Type()
	if !t.IsOptional() {
		a.errorf(n, "argument of type %s is not optional", t)
		return nil, nil
	}
	return a.ec.ListType(t.Item()), nil
}

// input checks the input of a sequence operator and
// returns its item type, or nil for an empty list
func (a *annotator) input(n *expr.Node, in *expr.Type) (*expr.Type, bool) {
	switch in.Kind() {
	case expr.TypeEmptyList:
		return nil, true
	case expr.TypeList, expr.TypeOptional:
		return in.Item(), true
	}
	a.errorf(n, "input of type %s is not a sequence", in)
	return nil, false
}

// emptyFrom propagates the Empty constraint of in
func emptyFrom(ec *expr.Context, in *expr.Node) *expr.ConstraintSet {
	if in.Constraints().Empty() {
		return ec.NewConstraints(nil, nil, true)
	}
	return nil
}

func typeMap(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	in := ch[0].Type()
	item, ok := a.input(n, in)
	if !ok {
		return nil, nil
	}
	if item == nil {
		return in, emptyFrom(a.ec, ch[0])
	}
	ch[1] = a.lambda(ch[1], item)
	body := ch[1].Body().Type()
	if body == nil {
		return nil, nil
	}
	if in.IsOptional() {
		return a.ec.OptionalType(body), nil
	}
	return a.ec.ListType(body), emptyFrom(a.ec, ch[0])
}

func typeFlatMap(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	in := ch[0].Type()
	item, ok := a.input(n, in)
	if !ok {
		return nil, nil
	}
	if item == nil {
		return in, emptyFrom(a.ec, ch[0])
	}
	ch[1] = a.lambda(ch[1], item)
	body := ch[1].Body().Type()
	switch {
	case body == nil:
		return nil, nil
	case body.Kind() == expr.TypeEmptyList:
		return body, listConstraints(a.ec, 0)
	case body.Kind() == expr.TypeList:
		return body, emptyFrom(a.ec, ch[0])
	case body.IsOptional() && in.IsOptional():
		return body, nil
	case body.IsOptional():
		return a.ec.ListType(body.Item()), emptyFrom(a.ec, ch[0])
	}
	a.errorf(n, "lambda result of type %s is not a sequence", body)
	return nil, nil
}

func typeFilter(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	in := ch[0].Type()
	item, ok := a.input(n, in)
	if !ok {
		return nil, nil
	}
	if item != nil {
		ch[1] = a.lambda(ch[1], item)
		body := ch[1].Body().Type()
		if body == nil {
			return nil, nil
		}
		if !isBool(body) {
			a.errorf(n, "predicate of type %s is not logical", body)
			return nil, nil
		}
	}
	return in, ch[0].Constraints()
}

func typeLength(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	if !isList(ch[0].Type()) {
		a.errorf(n, "input of type %s is not a list", ch[0].Type())
		return nil, nil
	}
	if n.Content() == "HasItems" {
		return a.ec.DataType(expr.Bool), nil
	}
	return a.ec.DataType(expr.Uint64), nil
}

func zeroLiteral(n *expr.Node) bool {
	return n.IsCallable("Int32", "Int64", "Uint32", "Uint64") && n.Head().Content() == "0"
}

func typeTakeSkip(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	in := ch[0].Type()
	if !isList(in) {
		a.errorf(n, "input of type %s is not a list", in)
		return nil, nil
	}
	if !ch[1].Type().IsData(expr.Int32, expr.Int64, expr.Uint32, expr.Uint64) {
		a.errorf(n, "count of type %s is not an integer", ch[1].Type())
		return nil, nil
	}
	cs := ch[0].Constraints()
	if n.Content() == "Take" && zeroLiteral(ch[1]) {
		cs = a.ec.NewConstraints(cs.Sorted(), cs.Unique(), true)
	}
	return in, cs
}

func typeSort(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	in := ch[0].Type()
	if !isList(in) {
		a.errorf(n, "input of type %s is not a list", in)
		return nil, nil
	}
	if !isBool(ch[1].Type()) {
		a.errorf(n, "direction of type %s is not logical", ch[1].Type())
		return nil, nil
	}
	if in.Kind() == expr.TypeList {
		ch[2] = a.lambda(ch[2], in.Item())
		if ch[2].Body().Type() == nil {
			return nil, nil
		}
	}
	prev := ch[0].Constraints()
	keys := expr.SortKeys(ch[1], ch[2])
	return in, a.ec.NewConstraints(keys, prev.Unique(), prev.Empty())
}

func typeListOf(slot expr.Slot) typer {
	return func(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
		return a.ec.ListType(a.ec.DataType(slot)), nil
	}
}

// typeError keeps the type of the node
// that the Error node replaced
func typeError(a *annotator, n *expr.Node, ch []*expr.Node) (*expr.Type, *expr.ConstraintSet) {
	if t := n.Type(); t != nil {
		return t, nil
	}
	return a.ec.VoidType(), nil
}
