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
	"context"
	"strings"
	"testing"

	"github.com/SnellerInc/termrw/annotate"
	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/transform"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func recorded(name string, order *[]string, t transform.Transformer) transform.Stage {
	return transform.Stage{
		Name: name,
		Transformer: transform.Func(func(n *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
			*order = append(*order, name)
			return t.Transform(n, ec)
		}),
	}
}

func TestPipelineReannotates(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Not (Not (HasItems (Files "/a"))))`)
	var order []string
	p := transform.NewPipeline([]transform.Stage{
		recorded("annotate", &order, annotate.NewStage()),
		recorded("rewrite", &order, NewStage(DefaultTable(), nil)),
		recorded("annotate2", &order, annotate.NewStage()),
	})
	out, s, err := transform.SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, transform.StatusOk, s)
	require.Equal(t, `(HasItems (Files "/a"))`, expr.Format(out))
	require.Equal(t, "Bool", out.Type().String())
	require.Equal(t, []string{"annotate", "rewrite", "annotate", "rewrite", "annotate2"}, order)
}

func TestStageRestart(t *testing.T) {
	ec := expr.NewContext()
	st := NewStage(DefaultTable(), nil, RequireReannotation())
	_, s := st.Transform(ec.MustParse(`(Not (Not (Bool "true")))`), ec)
	require.Equal(t, transform.StatusRepeat.Restart(), s)
	_, s = st.Transform(ec.MustParse(`(Bool "true")`), ec)
	require.Equal(t, transform.StatusOk, s)
}

func TestStageError(t *testing.T) {
	ec := expr.NewContext()
	st := NewStage(DefaultTable(), nil)
	out, s := st.Transform(ec.MustParse(`(Nth (list (Int32 "1")) "2")`), ec)
	require.Equal(t, transform.StatusError, s)
	require.True(t, out.IsCallable("Error"))
	require.Equal(t, 1, ec.Issues.ErrorCount())
}

func TestStageDivergence(t *testing.T) {
	ec := expr.NewContext()
	st := NewStage(pingPong(), nil, WithMaxPasses(5))
	_, s, err := transform.SyncTransform(context.Background(), st, ec.MustParse(`(Ping)`), ec)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDivergence))
	require.Equal(t, transform.Error, s.Level)
}

func TestPatternErrors(t *testing.T) {
	tcs := []struct {
		src, msg string
	}{
		{`(Not x) -> y`, "unbound variable y"},
		{`(Map in (lambda (a) _)) -> a`, "lambda argument a"},
		{`(Not x), (shiny x) -> x`, "unknown predicate shiny"},
		{`(list x) -> x`, "must match a callable"},
		{`(And x x:(Not _)) -> x`, "x re-bound"},
		{`(Not x), (typed x "Lst<") -> x`, "test.rules"},
	}
	for _, tc := range tcs {
		_, err := ParseRules(strings.NewReader(tc.src), "test.rules")
		require.Error(t, err, tc.src)
		require.Contains(t, err.Error(), tc.msg, tc.src)
	}
}

func TestPatternRules(t *testing.T) {
	lst := MustParseRules("(Foo x) -> x\n[Twice] (Pair x x) -> (Just x)\n", "test.rules")
	require.Len(t, lst, 2)
	require.Equal(t, "Foo@1", lst[0].Label)
	require.Equal(t, "Foo", lst[0].Name)
	require.Equal(t, "Twice", lst[1].Label)

	table := NewTable(lst...)
	ec := expr.NewContext()
	out, err := Optimize(ec, ec.MustParse(`(Pair (Foo (Int32 "1")) (Int32 "1"))`), table, nil)
	require.NoError(t, err)
	require.Equal(t, `(Just (Int32 "1"))`, expr.Format(out))

	in := ec.MustParse(`(Pair (Int32 "1") (Int32 "2"))`)
	out, err = Optimize(ec, in, table, nil)
	require.NoError(t, err)
	require.Same(t, in, out)
}

func TestPatternPredicates(t *testing.T) {
	table := NewTable(MustParseRules(`(Wrap x), (typed x "Optional<Int32>") -> x`, "test.rules")...)
	ec := expr.NewContext()
	root := annotate.Annotate(ec, ec.MustParse(`(Wrap (Just (Int32 "1")))`))
	out, err := Optimize(ec, root, table, nil)
	require.NoError(t, err)
	require.Equal(t, `(Just (Int32 "1"))`, expr.Format(out))

	// untyped input never satisfies a type predicate
	in := ec.MustParse(`(Wrap (Just (Int32 "1")))`)
	out, err = Optimize(ec, in, table, nil)
	require.NoError(t, err)
	require.Same(t, in, out)
}

func TestDedup(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Pair (Not (HasItems (Files "/a"))) (Not (HasItems (Files "/a"))))`)
	out, merged := Dedup(ec, root)
	require.Equal(t, 4, merged)
	require.Same(t, out.Child(0), out.Child(1))
	require.Equal(t, expr.Format(root), expr.Format(out))

	again, merged := Dedup(ec, out)
	require.Zero(t, merged)
	require.Same(t, out, again)
}

func TestDedupLambdas(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Pair (lambda (x) (Just x)) (lambda (y) (Just y)))`)
	out, _ := Dedup(ec, root)
	require.Same(t, out.Child(0), out.Child(1))
	require.Empty(t, expr.FreeArguments(out))
}

func TestDedupKeepsAnnotations(t *testing.T) {
	ec := expr.NewContext()
	a := ec.MustParse(`(Nothing "Optional<Int32>")`)
	b := ec.WithType(ec.MustParse(`(Nothing "Optional<Int32>")`), ec.OptionalType(ec.DataType(expr.Int32)))
	root := ec.NewCallable(expr.Pos{}, "Pair", a, b)
	out, merged := Dedup(ec, root)
	// only the type atoms are merged
	require.Equal(t, 1, merged)
	require.NotSame(t, out.Child(0), out.Child(1))

	_, s := CSE().Transform(root, ec)
	require.Equal(t, transform.StatusOk, s)
}
