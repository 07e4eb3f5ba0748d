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

package annotate

import (
	"fmt"
	"testing"

	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/transform"
)

func TestAnnotate(t *testing.T) {
	tcs := []struct {
		text, typ, cons string
	}{
		{`(Int32 "1")`, "Int32", ""},
		{`(Just (Int32 "1"))`, "Optional<Int32>", ""},
		{`(Nothing "Optional<String>")`, "Optional<String>", ""},
		{`(AsList)`, "EmptyList", "Empty"},
		{`(AsList (Int32 "1"))`, "List<Int32>", "Unique(_)"},
		{`(AsList (Int32 "1") (Int32 "2"))`, "List<Int32>", ""},
		{`(List "List<Utf8>")`, "List<Utf8>", "Empty"},
		{`(AsStruct (list "b" (String "x")) (list "a" (Int32 "1")))`, "Struct<a:Int32,b:String>", ""},
		{`(Member (AsStruct (list "a" (Int32 "1"))) "a")`, "Int32", ""},
		{`(Member (Just (AsStruct (list "a" (Int32 "1")))) "a")`, "Optional<Int32>", ""},
		{`(Nth (list (Int32 "1") (String "s")) "1")`, "String", ""},
		{`(list (Int32 "1") (String "s"))`, "Tuple<Int32,String>", ""},
		{`(Not (Bool "true"))`, "Bool", ""},
		{`(And (Bool "true") (Just (Bool "false")))`, "Optional<Bool>", ""},
		{`(Or (Bool "true") (Bool "false"))`, "Bool", ""},
		{`(If (Bool "true") (Int32 "1") (Int32 "2"))`, "Int32", ""},
		{`(Coalesce (Nothing "Optional<Int32>") (Int32 "1"))`, "Int32", ""},
		{`(Coalesce (Nothing "Optional<Int32>") (Just (Int32 "1")))`, "Optional<Int32>", ""},
		{`(Exists (Nothing "Optional<Int32>"))`, "Bool", ""},
		{`(ToList (Just (Int32 "1")))`, "List<Int32>", ""},
		{`(Map (AsList (Int32 "1") (Int32 "2")) (lambda (x) (Just x)))`, "List<Optional<Int32>>", ""},
		{`(Map (Just (Int32 "1")) (lambda (x) (String "s")))`, "Optional<String>", ""},
		{`(FlatMap (AsList (Int32 "1") (Int32 "2")) (lambda (x) (Just x)))`, "List<Int32>", ""},
		{`(FlatMap (Just (Int32 "1")) (lambda (x) (Just x)))`, "Optional<Int32>", ""},
		{`(FlatMap (AsList) (lambda (x) (Just x)))`, "EmptyList", "Empty"},
		{`(Filter (AsList (Int32 "1") (Int32 "2")) (lambda (x) (Bool "true")))`, "List<Int32>", ""},
		{`(Length (AsList (Int32 "1")))`, "Uint64", ""},
		{`(HasItems (AsList))`, "Bool", ""},
		{`(Take (AsList (Int32 "1") (Int32 "2")) (Uint64 "0"))`, "List<Int32>", "Empty"},
		{`(Skip (AsList (Int32 "1") (Int32 "2")) (Uint64 "1"))`, "List<Int32>", ""},
		{`(Sort (AsList (Int32 "1") (Int32 "2")) (Bool "true") (lambda (x) x))`, "List<Int32>", "Sorted(_ asc)"},
		{
			`(Sort (AsList (AsStruct (list "a" (Int32 "1"))) (AsStruct (list "a" (Int32 "2")))) (Bool "false") (lambda (r) (Member r "a")))`,
			"List<Struct<a:Int32>>", "Sorted(a desc)",
		},
		{`(AssumeSorted (AsList (Int32 "1")) (Bool "true") (lambda (x) x))`, "List<Int32>", "Sorted(_ asc) Unique(_)"},
		{`(ListCredentials)`, "List<String>", ""},
		{`(Files "/data")`, "List<Utf8>", ""},
	}
	for i := range tcs {
		tc := tcs[i]
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			ec := expr.NewContext()
			root := ec.MustParse(tc.text)
			out := Annotate(ec, root)
			if ec.Issues.HasErrors() {
				for _, is := range ec.Issues.Issues() {
					t.Log(is)
				}
				t.Fatal("unexpected errors")
			}
			if got := out.Type().String(); got != tc.typ {
				t.Errorf("type: got %s, want %s", got, tc.typ)
			}
			if got := out.Constraints().String(); got != tc.cons {
				t.Errorf("constraints: got %q, want %q", got, tc.cons)
			}
			if expr.Format(out) != expr.Format(root) {
				t.Errorf("annotation changed the program: %s", expr.Format(out))
			}
			if again := Annotate(ec, out); again != out {
				t.Error("annotating an annotated graph changed it")
			}
		})
	}
}

func TestAnnotateLambdaArgs(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Map (AsList (Int32 "1")) (lambda (x) (Just x)))`)
	out := Annotate(ec, root)
	fn := out.Child(1)
	if got := fn.Args()[0].Type().String(); got != "Int32" {
		t.Fatalf("argument type %s", got)
	}
	// the body must refer to the typed argument
	if fn.Body().Head() != fn.Args()[0] {
		t.Fatal("body does not reference the typed argument")
	}
	if got := fn.Body().Type().String(); got != "Optional<Int32>" {
		t.Fatalf("body type %s", got)
	}
	if len(expr.FreeArguments(out)) != 0 {
		t.Fatal("annotation produced free arguments")
	}
}

func TestAnnotateErrors(t *testing.T) {
	bad := []string{
		`(Not (Int32 "1"))`,
		`(Frobnicate)`,
		`(AsList (Int32 "1") (String "a"))`,
		`(Int32 "x")`,
		`(Member (AsStruct) "a")`,
		`(If (Bool "true") (Int32 "1") (String "x"))`,
		`(Nothing "Int32")`,
		`(Nth (list (Int32 "1")) "3")`,
		`(Map (Int32 "1") (lambda (x) x))`,
		`(Filter (AsList (Int32 "1")) (lambda (x) x))`,
		`(Just (Not (Int32 "1")))`,
	}
	for i := range bad {
		t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
			ec := expr.NewContext()
			out := Annotate(ec, ec.MustParse(bad[i]))
			if n := ec.Issues.ErrorCount(); n != 1 {
				t.Fatalf("got %d errors, want 1", n)
			}
			if out.Type() != nil {
				t.Errorf("ill-typed root has type %s", out.Type())
			}
		})
	}
}

func TestStage(t *testing.T) {
	ec := expr.NewContext()
	st := NewStage()
	out, s := st.Transform(ec.MustParse(`(Not (Bool "true"))`), ec)
	if s != transform.StatusOk || out.Type() == nil {
		t.Fatalf("got %s, type %s", s, out.Type())
	}
	_, s = st.Transform(ec.MustParse(`(Not (Int32 "1"))`), ec)
	if s != transform.StatusError {
		t.Fatalf("got %s", s)
	}
}
