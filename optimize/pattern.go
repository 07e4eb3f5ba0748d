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
	_ "embed"
	"fmt"
	"io"
	"strings"
	"text/scanner"

	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/rules"
	"github.com/cockroachdb/errors"
)

//go:embed core.rules
var coreRulesText string

func coreRules() io.Reader { return strings.NewReader(coreRulesText) }

// ParseRules compiles declarative rules from src.
// The name is used in error messages and in the
// default rule labels.
//
// Each rule has the form
//
//	[Label] (Op pattern...) {, predicate} -> output
//
// A pattern is one of
//
//	_                 matches anything
//	x                 binds x, or matches the node bound to x
//	"text"            matches an atom with the given content
//	x:pattern         matches pattern and binds x
//	(list p...)       matches a list
//	(lambda (a...) p) matches a lambda, binding its arguments
//	(Op p...)         matches a callable
//
// A predicate is one of
//
//	(same x y)        x and y are structurally equal
//	(typed x "Type")  x has the given type
//	(optional x)      x has an Optional type
//	(nonoptional x)   x has a type that is not Optional
//	(empty x)         x is known to have no items
//	(list x)          x has a List type
//
// Outputs are built from bound variables, atoms,
// (list ...), (Op ...) and (apply lambda arg...),
// the latter of which inlines the lambda body.
// Outputs may not refer to the arguments bound by a
// lambda pattern.
func ParseRules(src io.Reader, name string) ([]Rule, error) {
	lst, err := rules.Parse(src)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", name)
	}
	out := make([]Rule, 0, len(lst))
	for i := range lst {
		r, err := compileRule(&lst[i], name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MustParseRules is like ParseRules but panics on error.
func MustParseRules(src, name string) []Rule {
	r, err := ParseRules(strings.NewReader(src), name)
	if err != nil {
		panic(err)
	}
	return r
}

type matcher func(n *expr.Node, b []*expr.Node) bool

type predicate func(b []*expr.Node) bool

type builder func(n *expr.Node, ec *expr.Context, b []*expr.Node) *expr.Node

// compiler holds the variables of one rule
type compiler struct {
	file   string
	vars   map[string]int
	locals map[string]bool // bound by a lambda pattern
}

func (c *compiler) errorf(pos scanner.Position, f string, args ...any) error {
	if pos.Filename == "" {
		pos.Filename = c.file
	}
	return errors.Newf("%s: %s", pos, fmt.Sprintf(f, args...))
}

func (c *compiler) bind(name string) int {
	i, ok := c.vars[name]
	if !ok {
		i = len(c.vars)
		c.vars[name] = i
	}
	return i
}

func trivial(t *rules.Term) bool {
	return (t.Name == "" || t.Name == "_") && t.Value == nil
}

func compileRule(r *rules.Rule, file string) (Rule, error) {
	c := &compiler{file: file, vars: make(map[string]int), locals: make(map[string]bool)}
	top, ok := r.From[0].(rules.List)
	if !ok || top.Head() == "" || top.Head() == "list" || top.Head() == "lambda" {
		return Rule{}, c.errorf(r.Location, "rule must match a callable")
	}
	op := top.Head()
	match, err := c.pattern(&rules.Term{Value: top, Location: r.Location})
	if err != nil {
		return Rule{}, err
	}
	var preds []predicate
	for _, v := range r.From[1:] {
		p, err := c.predicate(r.Location, v)
		if err != nil {
			return Rule{}, err
		}
		preds = append(preds, p)
	}
	build, err := c.output(&r.To)
	if err != nil {
		return Rule{}, err
	}
	label := r.Label
	if label == "" {
		label = fmt.Sprintf("%s@%d", op, r.Location.Line)
	}
	nvars := len(c.vars)
	fn := func(n *expr.Node, ec *expr.Context, env *Env) *expr.Node {
		b := make([]*expr.Node, nvars)
		if !match(n, b) {
			return n
		}
		for _, p := range preds {
			if !p(b) {
				return n
			}
		}
		return build(n, ec, b)
	}
	return Rule{Name: op, Label: label, Fn: fn}, nil
}

func (c *compiler) pattern(t *rules.Term) (matcher, error) {
	if trivial(t) {
		return func(*expr.Node, []*expr.Node) bool { return true }, nil
	}
	if t.Value == nil {
		if slot, ok := c.vars[t.Name]; ok {
			return func(n *expr.Node, b []*expr.Node) bool {
				return expr.Equal(b[slot], n)
			}, nil
		}
		slot := c.bind(t.Name)
		return func(n *expr.Node, b []*expr.Node) bool {
			b[slot] = n
			return true
		}, nil
	}
	var inner matcher
	var err error
	switch v := t.Value.(type) {
	case rules.String:
		inner = atomMatcher(string(v))
	case rules.RawString:
		inner = atomMatcher(string(v))
	case rules.List:
		inner, err = c.listPattern(t, v)
	default:
		err = c.errorf(t.Location, "unexpected pattern %s", t.Value)
	}
	if err != nil || t.Name == "" || t.Name == "_" {
		return inner, err
	}
	if _, ok := c.vars[t.Name]; ok {
		return nil, c.errorf(t.Location, "variable %s re-bound", t.Name)
	}
	slot := c.bind(t.Name)
	return func(n *expr.Node, b []*expr.Node) bool {
		if !inner(n, b) {
			return false
		}
		b[slot] = n
		return true
	}, nil
}

func atomMatcher(text string) matcher {
	return func(n *expr.Node, _ []*expr.Node) bool {
		return n.IsAtom(text)
	}
}

func (c *compiler) children(lst []rules.Term) ([]matcher, error) {
	out := make([]matcher, len(lst))
	for i := range lst {
		m, err := c.pattern(&lst[i])
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func matchAll(ms []matcher, children []*expr.Node, b []*expr.Node) bool {
	if len(ms) != len(children) {
		return false
	}
	for i := range ms {
		if !ms[i](children[i], b) {
			return false
		}
	}
	return true
}

func (c *compiler) listPattern(t *rules.Term, lst rules.List) (matcher, error) {
	op := lst.Head()
	switch op {
	case "":
		return nil, c.errorf(t.Location, "head position of list not an identifier")
	case "lambda":
		return c.lambdaPattern(t, lst)
	case "list":
		ms, err := c.children(lst[1:])
		if err != nil {
			return nil, err
		}
		return func(n *expr.Node, b []*expr.Node) bool {
			return n.IsList() && matchAll(ms, n.Children(), b)
		}, nil
	}
	ms, err := c.children(lst[1:])
	if err != nil {
		return nil, err
	}
	return func(n *expr.Node, b []*expr.Node) bool {
		return n.IsCallable(op) && matchAll(ms, n.Children(), b)
	}, nil
}

func (c *compiler) lambdaPattern(t *rules.Term, lst rules.List) (matcher, error) {
	if len(lst) != 3 {
		return nil, c.errorf(t.Location, "lambda pattern needs (lambda (args...) body)")
	}
	params, ok := lst[1].Value.(rules.List)
	if !ok || lst[1].Name != "" {
		return nil, c.errorf(lst[1].Location, "expected lambda argument list")
	}
	slots := make([]int, len(params))
	for i := range params {
		p := &params[i]
		if p.Value != nil {
			return nil, c.errorf(p.Location, "lambda arguments must be identifiers")
		}
		if p.Name == "_" {
			slots[i] = -1
			continue
		}
		if _, ok := c.vars[p.Name]; ok {
			return nil, c.errorf(p.Location, "variable %s re-bound", p.Name)
		}
		slots[i] = c.bind(p.Name)
		c.locals[p.Name] = true
	}
	body, err := c.pattern(&lst[2])
	if err != nil {
		return nil, err
	}
	return func(n *expr.Node, b []*expr.Node) bool {
		if !n.IsLambda() || len(n.Args()) != len(slots) {
			return false
		}
		for i, a := range n.Args() {
			if slots[i] >= 0 {
				b[slots[i]] = a
			}
		}
		return body(n.Body(), b)
	}, nil
}

func (c *compiler) variable(t *rules.Term) (int, error) {
	if t.Value != nil || t.Name == "" || t.Name == "_" {
		return 0, c.errorf(t.Location, "expected a variable, found %s", t.String())
	}
	slot, ok := c.vars[t.Name]
	if !ok {
		return 0, c.errorf(t.Location, "unbound variable %s", t.Name)
	}
	return slot, nil
}

func (c *compiler) predicate(pos scanner.Position, v rules.Value) (predicate, error) {
	lst, ok := v.(rules.List)
	if !ok || lst.Head() == "" {
		return nil, c.errorf(pos, "predicate must be a list with an identifier head")
	}
	args := lst[1:]
	arity := 1
	switch lst.Head() {
	case "same", "typed":
		arity = 2
	}
	if len(args) != arity {
		return nil, c.errorf(lst[0].Location, "%s takes %d arguments", lst.Head(), arity)
	}
	x, err := c.variable(&args[0])
	if err != nil {
		return nil, err
	}
	switch lst.Head() {
	case "same":
		y, err := c.variable(&args[1])
		if err != nil {
			return nil, err
		}
		return func(b []*expr.Node) bool { return expr.Equal(b[x], b[y]) }, nil
	case "typed":
		s, ok := args[1].Value.(rules.String)
		if !ok || args[1].Name != "" {
			return nil, c.errorf(args[1].Location, "typed needs a type string")
		}
		want, err := expr.NewContext().ParseType(string(s))
		if err != nil {
			return nil, c.errorf(args[1].Location, "%s", err)
		}
		str := want.String()
		return func(b []*expr.Node) bool {
			return b[x].Type() != nil && b[x].Type().String() == str
		}, nil
	case "optional":
		return func(b []*expr.Node) bool { return b[x].Type().IsOptional() }, nil
	case "nonoptional":
		return func(b []*expr.Node) bool {
			return b[x].Type() != nil && !b[x].Type().IsOptional()
		}, nil
	case "empty":
		return func(b []*expr.Node) bool { return b[x].Constraints().Empty() }, nil
	case "list":
		return func(b []*expr.Node) bool {
			return b[x].Type() != nil && b[x].Type().Kind() == expr.TypeList
		}, nil
	}
	return nil, c.errorf(lst[0].Location, "unknown predicate %s", lst.Head())
}

func (c *compiler) output(t *rules.Term) (builder, error) {
	if t.Value == nil {
		if c.locals[t.Name] {
			return nil, c.errorf(t.Location, "output refers to lambda argument %s", t.Name)
		}
		slot, err := c.variable(t)
		if err != nil {
			return nil, err
		}
		return func(_ *expr.Node, _ *expr.Context, b []*expr.Node) *expr.Node { return b[slot] }, nil
	}
	if t.Name != "" {
		return nil, c.errorf(t.Location, "unexpected binding %s in output", t.Name)
	}
	switch v := t.Value.(type) {
	case rules.String:
		text := string(v)
		return func(n *expr.Node, ec *expr.Context, _ []*expr.Node) *expr.Node {
			return ec.NewAtom(n.Pos(), text, expr.AtomDefault)
		}, nil
	case rules.RawString:
		text := string(v)
		return func(n *expr.Node, ec *expr.Context, _ []*expr.Node) *expr.Node {
			return ec.NewAtom(n.Pos(), text, expr.MultilineContent)
		}, nil
	case rules.List:
		return c.listOutput(t, v)
	}
	return nil, c.errorf(t.Location, "unexpected output %s", t.Value)
}

func (c *compiler) listOutput(t *rules.Term, lst rules.List) (builder, error) {
	op := lst.Head()
	if op == "" || op == "lambda" {
		return nil, c.errorf(t.Location, "cannot construct %s", lst)
	}
	args := make([]builder, len(lst)-1)
	for i := range lst[1:] {
		b, err := c.output(&lst[i+1])
		if err != nil {
			return nil, err
		}
		args[i] = b
	}
	build := func(n *expr.Node, ec *expr.Context, b []*expr.Node) []*expr.Node {
		out := make([]*expr.Node, len(args))
		for i := range args {
			out[i] = args[i](n, ec, b)
		}
		return out
	}
	switch op {
	case "list":
		return func(n *expr.Node, ec *expr.Context, b []*expr.Node) *expr.Node {
			return ec.NewList(n.Pos(), build(n, ec, b)...)
		}, nil
	case "apply":
		if len(args) == 0 {
			return nil, c.errorf(t.Location, "apply needs a lambda")
		}
		return func(n *expr.Node, ec *expr.Context, b []*expr.Node) *expr.Node {
			parts := build(n, ec, b)
			return ec.ApplyLambda(parts[0], parts[1:]...)
		}, nil
	}
	return func(n *expr.Node, ec *expr.Context, b []*expr.Node) *expr.Node {
		return ec.NewCallable(n.Pos(), op, build(n, ec, b)...)
	}, nil
}
