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
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseFormat(t *testing.T) {
	texts := []string{
		`(Not (Not (Bool "true")))`,
		`(And (Bool "false") (Member (AsStruct (list "a" (Int32 "1"))) "a"))`,
		`(FlatMap (AsList (Int32 "1")) (lambda (x) (Just x)))`,
		`(Map (AsList (Int32 "1")) (lambda (x) (Map (AsList x) (lambda (y) (Nth (list x y) "1")))))`,
		`(Thing world (list) (list "a" ` + "`raw`" + `))`,
		"(Nothing \"Optional<Int32>\")",
	}
	for i := range texts {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			ec := NewContext()
			n, err := ec.Parse(texts[i])
			if err != nil {
				t.Fatal(err)
			}
			if got := Format(n); got != texts[i] {
				t.Errorf("got  %s", got)
				t.Errorf("want %s", texts[i])
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		`(Not)`,                 // arity
		`(Nth (list) (list))`,   // index must be an atom
		`(Nth (list) "x")`,      // index must be numeric
		`(lambda (x x) x)`,      // duplicate argument
		`(Just y)`,              // unbound
		`(Map (AsList) (Not))`,  // not a lambda
		`(Just (Bool "true")) x`, // two expressions
		`("a" "b")`,             // no head
		`(Just x:(Bool "true"))`,
	}
	for i := range bad {
		ec := NewContext()
		if n, err := ec.Parse(bad[i]); err == nil {
			t.Errorf("%s: parsed as %s", bad[i], Format(n))
		}
	}
}

func TestShapePanics(t *testing.T) {
	ec := NewContext()
	defer func() {
		x := recover()
		err, ok := x.(error)
		if !ok {
			t.Fatalf("recovered %v", x)
		}
		var se *ShapeError
		if !errors.As(err, &se) || se.Name != "Nth" {
			t.Fatalf("unexpected error %v", err)
		}
		if !errors.HasAssertionFailure(err) {
			t.Fatal("shape errors should be assertion failures")
		}
	}()
	ec.NewCallable(Pos{}, "Nth", ec.NewList(Pos{}))
}

func TestUnregisteredOperator(t *testing.T) {
	ec := NewContext()
	n := ec.NewCallable(Pos{}, "Frobnicate")
	if n.ChildrenLen() != 0 || !n.IsCallable("Frobnicate") {
		t.Fatal("unexpected node", n)
	}
}

func TestChangeChildren(t *testing.T) {
	ec := NewContext()
	n := ec.MustParse(`(Not (Bool "true"))`)
	typed := ec.WithType(n, ec.DataType(Bool))
	if typed == n || n.Type() != nil {
		t.Fatal("WithType must copy")
	}
	if got := ec.ChangeChild(typed, 0, typed.Child(0)); got != typed {
		t.Fatal("ChangeChild with the same child should return the input")
	}
	f := ec.NewBool(Pos{}, false)
	out := ec.ChangeChild(typed, 0, f)
	if out == typed || out.Child(0) != f {
		t.Fatal("ChangeChild did not replace the child")
	}
	if out.Type() != nil {
		t.Fatal("ChangeChildren should drop annotations")
	}
	if Format(typed) != `(Not (Bool "true"))` {
		t.Fatal("original modified:", typed)
	}
}

func TestReplaceNodesSharing(t *testing.T) {
	ec := NewContext()
	x := ec.NewBool(Pos{}, true)
	shared := ec.NewCallable(Pos{}, "Not", x)
	p1 := ec.NewCallable(Pos{}, "Just", shared)
	p2 := ec.NewCallable(Pos{}, "Exists", shared)
	root := ec.NewList(Pos{}, p1, p2, shared)
	root = ec.WithType(root, ec.MustParseType("Tuple<Optional<Bool>,Bool,Bool>"))

	y := ec.NewBool(Pos{}, false)
	out := ec.ReplaceNode(root, x, y)
	if out.Type() != root.Type() {
		t.Error("rebuilt root lost its type")
	}
	a := out.Child(0).Child(0)
	b := out.Child(1).Child(0)
	c := out.Child(2)
	if a != b || b != c {
		t.Fatal("shared node rebuilt more than once")
	}
	if a.Child(0) != y {
		t.Fatal("replacement not applied")
	}
	if got := ec.ReplaceNode(root, ec.NewBool(Pos{}, true), y); got != root {
		t.Fatal("replacement is by identity, not structure")
	}
}

func TestApplyLambda(t *testing.T) {
	ec := NewContext()
	l := ec.MustParse(`(lambda (a b) (And a (Not b)))`)
	t0 := ec.NewBool(Pos{}, true)
	f0 := ec.NewBool(Pos{}, false)
	out := ec.ApplyLambda(l, t0, f0)
	if got := Format(out); got != `(And (Bool "true") (Not (Bool "false")))` {
		t.Fatal(got)
	}
	if out.Child(0) != t0 || out.Child(1).Child(0) != f0 {
		t.Fatal("arguments should be substituted by identity")
	}
}

func TestDeepCopyLambda(t *testing.T) {
	ec := NewContext()
	l := ec.MustParse(`(lambda (x) (Map (AsList x) (lambda (y) (Nth (list x y) "0"))))`)
	cp := ec.DeepCopyLambda(l, nil)
	if cp.Args()[0] == l.Args()[0] {
		t.Fatal("copy shares its argument")
	}
	if !Equal(l, cp) {
		t.Fatalf("copy %s not equal to %s", cp, l)
	}
	if cp.Hash() != l.Hash() {
		t.Fatal("alpha-equivalent lambdas should hash equally")
	}
	inner := FindNode(cp.Body(), func(n *Node) bool { return n.IsLambda() })
	orig := FindNode(l.Body(), func(n *Node) bool { return n.IsLambda() })
	if inner.Args()[0] == orig.Args()[0] {
		t.Fatal("nested lambda shares its argument")
	}
	if DependsOn(cp, l.Args()[0]) {
		t.Fatal("copy references the original argument")
	}
	if len(FreeArguments(cp)) != 0 {
		t.Fatal("copy has free arguments")
	}
	// a new body may refer to the old arguments
	body := ec.NewCallable(Pos{}, "Just", l.Args()[0])
	cp2 := ec.DeepCopyLambda(l, body)
	if cp2.Body().Child(0) != cp2.Args()[0] {
		t.Fatal("replacement body not remapped")
	}
}

func TestEqual(t *testing.T) {
	ec := NewContext()
	cases := []struct {
		a, b string
		want bool
	}{
		{`(lambda (x) (Just x))`, `(lambda (y) (Just y))`, true},
		{`(lambda (x y) (Nth (list x y) "0"))`, `(lambda (y x) (Nth (list y x) "0"))`, true},
		{`(lambda (x y) (Nth (list x y) "0"))`, `(lambda (x y) (Nth (list y x) "0"))`, false},
		{`(Bool "true")`, `(Bool "false")`, false},
		{`(Just "a")`, "(Just `a`)", false},
		{`(list "a")`, `(Thing "a")`, false},
	}
	for i := range cases {
		a := ec.MustParse(cases[i].a)
		b := ec.MustParse(cases[i].b)
		if got := Equal(a, b); got != cases[i].want {
			t.Errorf("case %d: Equal(%s, %s) = %v", i, a, b, got)
		}
		if cases[i].want && a.Hash() != b.Hash() {
			t.Errorf("case %d: equal nodes with different hashes", i)
		}
	}
}

// pairChain builds (Pair n n) nested depth times over leaf,
// sharing each level between both children
func pairChain(ec *Context, leaf *Node, depth int) *Node {
	n := leaf
	for i := 0; i < depth; i++ {
		n = ec.NewCallable(Pos{}, "Pair", n, n)
	}
	return n
}

func TestEqualSharedGraphs(t *testing.T) {
	const depth = 64
	ec := NewContext()
	a := pairChain(ec, ec.NewBool(Pos{}, true), depth)
	b := pairChain(ec, ec.NewBool(Pos{}, true), depth)
	if a == b || !Equal(a, b) {
		t.Fatal("independent copies are not equal")
	}
	if Equal(a, pairChain(ec, ec.NewBool(Pos{}, false), depth)) {
		t.Fatal("different leaves compared equal")
	}

	// the same inside lambdas, where arguments are bound
	x, y := ec.NewArgument(Pos{}, "x"), ec.NewArgument(Pos{}, "y")
	la := ec.NewLambda(Pos{}, []*Node{x}, pairChain(ec, x, depth))
	lb := ec.NewLambda(Pos{}, []*Node{y}, pairChain(ec, y, depth))
	if !Equal(la, lb) {
		t.Fatal("renamed lambdas are not equal")
	}
	if Equal(la, ec.NewLambda(Pos{}, []*Node{y}, pairChain(ec, x, depth))) {
		t.Fatal("lambda over a free argument compared equal")
	}
}

func TestFreeArguments(t *testing.T) {
	ec := NewContext()
	l := ec.MustParse(`(lambda (x) (lambda (y) (list x y)))`)
	inner := l.Body()
	free := FreeArguments(inner)
	if len(free) != 1 || free[0] != l.Args()[0] {
		t.Fatalf("free arguments of %s: %v", inner, free)
	}
	if FreeArguments(l) != nil {
		t.Fatal("closed lambda has free arguments")
	}
}

func TestCountNodes(t *testing.T) {
	ec := NewContext()
	x := ec.NewBool(Pos{}, true)
	n := ec.NewCallable(Pos{}, "And", x, x, x)
	// And, Bool, atom
	if got := CountNodes(n); got != 3 {
		t.Fatalf("got %d", got)
	}
	count := 0
	Walk(visitFunc(func(n *Node) { count++ }), n)
	if count != 7 {
		t.Fatalf("Walk visited %d nodes", count)
	}
}

type visitFunc func(*Node)

func (v visitFunc) Visit(n *Node) Visitor {
	if n == nil {
		return nil
	}
	v(n)
	return v
}
