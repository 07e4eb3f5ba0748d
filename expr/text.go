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
	"strings"
	"unicode"

	"github.com/SnellerInc/termrw/rules"
)

// Format returns the canonical single-line text of n:
//
//	(Name child...)        callable
//	(list child...)        list
//	(lambda (a b) body)    lambda
//	"text" or `text`       atom
//	world                  world token
//
// Arguments are printed as identifiers; arguments
// whose names would be ambiguous are given a
// numeric suffix. Shared subgraphs are printed
// once per reference.
func Format(n *Node) string {
	f := formatter{names: make(map[*Node]string), inUse: make(map[string]int)}
	f.format(n)
	return f.out.String()
}

type formatter struct {
	out   strings.Builder
	names map[*Node]string
	inUse map[string]int
	seq   int
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !(r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

func reserved(s string) bool {
	return s == "lambda" || s == "list" || s == "world"
}

func (f *formatter) bind(arg *Node) string {
	name := arg.content
	if !isIdent(name) || reserved(name) {
		name = "arg"
	}
	base := name
	for f.inUse[name] > 0 {
		f.seq++
		name = fmt.Sprintf("%s_%d", base, f.seq)
	}
	f.inUse[name]++
	f.names[arg] = name
	return name
}

func (f *formatter) unbind(arg *Node) {
	f.inUse[f.names[arg]]--
	delete(f.names, arg)
}

func quoteAtom(n *Node) string {
	if n.flags&MultilineContent != 0 && !strings.Contains(n.content, "`") {
		return "`" + n.content + "`"
	}
	return strconv.Quote(n.content)
}

func (f *formatter) format(n *Node) {
	switch n.kind {
	case KindAtom:
		f.out.WriteString(quoteAtom(n))
	case KindWorld:
		f.out.WriteString("world")
	case KindArgument:
		if name, ok := f.names[n]; ok {
			f.out.WriteString(name)
		} else {
			f.out.WriteString(n.content)
		}
	case KindLambda:
		args := n.Args()
		f.out.WriteString("(lambda (")
		for i, a := range args {
			if i > 0 {
				f.out.WriteByte(' ')
			}
			f.out.WriteString(f.bind(a))
		}
		f.out.WriteString(") ")
		f.format(n.Body())
		f.out.WriteByte(')')
		for _, a := range args {
			f.unbind(a)
		}
	case KindList, KindCallable:
		f.out.WriteByte('(')
		if n.kind == KindList {
			f.out.WriteString("list")
		} else {
			f.out.WriteString(n.content)
		}
		for _, c := range n.children {
			f.out.WriteByte(' ')
			f.format(c)
		}
		f.out.WriteByte(')')
	}
}

// SyntaxError is returned by Parse for
// malformed expression text.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (s *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", s.Pos, s.Msg)
}

// Parse parses the textual form of an expression
// (see Format) into nodes owned by c. The text
// must contain exactly one top-level expression.
func (c *Context) Parse(src string) (*Node, error) {
	terms, err := rules.ReadTerms(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	if len(terms) != 1 {
		return nil, fmt.Errorf("expected exactly one expression; found %d", len(terms))
	}
	p := &textParser{ec: c}
	return p.term(&terms[0])
}

// MustParse is like Parse but panics on error.
func (c *Context) MustParse(src string) *Node {
	n, err := c.Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

type textParser struct {
	ec    *Context
	scope []map[string]*Node
}

func position(t *rules.Term) Pos {
	return Pos{Row: t.Location.Line, Column: t.Location.Column}
}

func (p *textParser) errorf(t *rules.Term, f string, args ...any) error {
	return &SyntaxError{Pos: position(t), Msg: fmt.Sprintf(f, args...)}
}

func (p *textParser) lookup(name string) *Node {
	for i := len(p.scope) - 1; i >= 0; i-- {
		if a, ok := p.scope[i][name]; ok {
			return a
		}
	}
	return nil
}

func (p *textParser) term(t *rules.Term) (*Node, error) {
	pos := position(t)
	if t.Bare() {
		if t.Name == "world" {
			return p.ec.NewWorld(pos), nil
		}
		if a := p.lookup(t.Name); a != nil {
			return a, nil
		}
		return nil, p.errorf(t, "unbound identifier %q", t.Name)
	}
	if t.Name != "" {
		return nil, p.errorf(t, "unexpected binding %s", t.Name)
	}
	switch v := t.Value.(type) {
	case rules.String:
		return p.ec.NewAtom(pos, string(v), AtomDefault), nil
	case rules.RawString:
		return p.ec.NewAtom(pos, string(v), MultilineContent), nil
	case rules.List:
		return p.list(t, v)
	}
	return nil, p.errorf(t, "unexpected term %s", t.String())
}

func (p *textParser) children(lst []rules.Term) ([]*Node, error) {
	out := make([]*Node, 0, len(lst))
	for i := range lst {
		n, err := p.term(&lst[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (p *textParser) list(t *rules.Term, lst rules.List) (*Node, error) {
	pos := position(t)
	head := lst.Head()
	switch head {
	case "":
		return nil, p.errorf(t, "list must begin with an operator name")
	case "list":
		kids, err := p.children(lst[1:])
		if err != nil {
			return nil, err
		}
		return p.ec.NewList(pos, kids...), nil
	case "lambda":
		return p.lambda(t, lst)
	}
	kids, err := p.children(lst[1:])
	if err != nil {
		return nil, err
	}
	if err := CheckShape(head, kids); err != nil {
		return nil, p.errorf(t, "%s", err)
	}
	return p.ec.NewCallable(pos, head, kids...), nil
}

func (p *textParser) lambda(t *rules.Term, lst rules.List) (*Node, error) {
	if len(lst) != 3 {
		return nil, p.errorf(t, "lambda needs an argument list and a body")
	}
	params, ok := lst[1].Value.(rules.List)
	if !ok || lst[1].Name != "" {
		return nil, p.errorf(&lst[1], "expected lambda argument list")
	}
	bound := make(map[string]*Node)
	args := make([]*Node, 0, len(params))
	for i := range params {
		if !params[i].Bare() || reserved(params[i].Name) {
			return nil, p.errorf(&params[i], "bad lambda argument %s", params[i].String())
		}
		if _, dup := bound[params[i].Name]; dup {
			return nil, p.errorf(&params[i], "argument %s bound twice", params[i].Name)
		}
		a := p.ec.NewArgument(position(&params[i]), params[i].Name)
		bound[params[i].Name] = a
		args = append(args, a)
	}
	p.scope = append(p.scope, bound)
	body, err := p.term(&lst[2])
	p.scope = p.scope[:len(p.scope)-1]
	if err != nil {
		return nil, err
	}
	return p.ec.NewLambda(position(t), args, body), nil
}
