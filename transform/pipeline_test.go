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

package transform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/SnellerInc/termrw/expr"
	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// counting returns a stage that counts its
// invocations and applies fn
func counting(name string, calls *int, fn func(n *expr.Node, ec *expr.Context) (*expr.Node, Status)) Stage {
	return Stage{
		Name: name,
		Transformer: Func(func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			*calls++
			if fn == nil {
				return n, StatusOk
			}
			return fn(n, ec)
		}),
	}
}

func TestStatusCombine(t *testing.T) {
	require.Equal(t, StatusError, StatusOk.Combine(StatusError))
	require.Equal(t, Status{Level: Async, HasRestart: true}, StatusAsync.Combine(StatusRepeat.Restart()))
	require.Equal(t, StatusRepeat, StatusRepeat.Combine(StatusOk))
	require.Equal(t, "Repeat(restart)", StatusRepeat.Restart().String())
}

func TestPipelineErrorShortCircuit(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	var c1, c2, c3 int
	p := NewPipeline([]Stage{
		counting("s1", &c1, nil),
		counting("s2", &c2, func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			ec.AddError(n.Pos(), "s2 failed")
			return n, StatusError
		}),
		counting("s3", &c3, nil),
	})
	_, s, err := SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, Error, s.Level)
	require.Equal(t, 1, c1)
	require.Equal(t, 1, c2)
	require.Zero(t, c3, "stage after an error must not run")

	issues := ec.Issues.Issues()
	require.Len(t, issues, 1)
	require.Equal(t, "s2", issues[0].Message)
	require.Len(t, issues[0].Issues, 1)
	require.Equal(t, "s2 failed", issues[0].Issues[0].Message)
}

func TestPipelineRepeatRestarts(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Not (Not (Bool "true")))`)
	var annotate, rewrite, annotate2 int
	p := NewPipeline([]Stage{
		counting("annotate", &annotate, nil),
		counting("rewrite", &rewrite, func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			if n.IsCallable("Not") {
				return n.Child(0).Child(0), StatusRepeat
			}
			return n, StatusOk
		}),
		counting("annotate2", &annotate2, nil),
	})
	out, s, err := SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, StatusOk, s)
	require.Equal(t, `(Bool "true")`, expr.Format(out))
	require.Equal(t, 2, annotate, "repeat must re-run the first stage")
	require.Equal(t, 2, rewrite)
	require.Equal(t, 1, annotate2)

	stats := p.Statistics()
	require.Len(t, stats.Stages, 3)
	require.Equal(t, 1, stats.Stage("rewrite").Repeats)
	require.Nil(t, stats.Stage("missing"))
	var b strings.Builder
	_, err = stats.WriteTo(&b)
	require.NoError(t, err)
	require.Contains(t, b.String(), "  rewrite: ")
}

func TestPipelineRestartRewinds(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	rewinds := 0
	fired := false
	st := Wrap(&rewindCounter{rewinds: &rewinds, fn: func(n *expr.Node) (*expr.Node, Status) {
		if !fired {
			fired = true
			return n, StatusRepeat.Restart()
		}
		return n, StatusOk
	}})
	p := NewPipeline([]Stage{{Name: "a", Transformer: st}})
	_, s, err := InstantTransform(p, root, ec, false)
	require.NoError(t, err)
	require.Equal(t, Ok, s.Level)
	require.True(t, s.HasRestart)
	require.Equal(t, 1, rewinds)
	require.Equal(t, 1, st.Statistics().Restarts)
}

type rewindCounter struct {
	SyncImpl
	rewinds *int
	fn      func(n *expr.Node) (*expr.Node, Status)
}

func (r *rewindCounter) DoTransform(n *expr.Node, _ *expr.Context) (*expr.Node, Status) {
	return r.fn(n)
}

func (r *rewindCounter) Rewind() { *r.rewinds++ }

func TestPipelineMaxRestarts(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	forever := Func(func(n *expr.Node, _ *expr.Context) (*expr.Node, Status) {
		return n, StatusRepeat
	})
	p := NewPipeline([]Stage{{Name: "forever", Transformer: forever}}, WithMaxRestarts(10))
	_, _, err := SyncTransform(context.Background(), p, root, ec)
	require.Error(t, err)
	require.True(t, crdb.HasAssertionFailure(err))
}

func TestPipelineArgChecks(t *testing.T) {
	ec := expr.NewContext()
	l := ec.MustParse(`(lambda (x) (Just x))`)
	free := l.Body()
	var calls int
	p := NewPipeline([]Stage{counting("s", &calls, nil)})
	_, s, err := SyncTransform(context.Background(), p, free, ec)
	require.NoError(t, err)
	require.Equal(t, Error, s.Level)
	require.Zero(t, calls)
	require.True(t, ec.Issues.HasErrors())

	// the no-arg-check variant only checks the first run
	ec = expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	calls = 0
	p = NewPipelineNoArgChecks([]Stage{counting("s", &calls, func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		if calls == 1 {
			// introduce a free argument and repeat
			return ec.NewCallable(expr.Pos{}, "Just", ec.NewArgument(expr.Pos{}, "y")), StatusRepeat
		}
		return n, StatusOk
	})})
	_, s, err = SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, Ok, s.Level)
	require.Equal(t, 2, calls)
	require.False(t, ec.Issues.HasErrors())
}

func TestPipelineInternalError(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	p := NewPipeline([]Stage{{Name: "bad", Transformer: Func(func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		// shape violation inside a stage
		return ec.NewCallable(n.Pos(), "Not"), StatusOk
	})}})
	_, _, err := SyncTransform(context.Background(), p, root, ec)
	require.Error(t, err)
	var se *expr.ShapeError
	require.True(t, crdb.As(err, &se))
	require.Equal(t, "Not", se.Name)

	var nilNode *expr.Node
	p = NewPipeline([]Stage{{Name: "nil", Transformer: Func(func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		return n.Child(nilNode.ChildrenLen()), StatusOk
	})}})
	_, _, err = SyncTransform(context.Background(), p, root, ec)
	require.Error(t, err)
	require.True(t, crdb.HasAssertionFailure(err))
}

func TestChoice(t *testing.T) {
	ec := expr.NewContext()
	var left, right int
	hasNot := func(n *expr.Node, _ *expr.Context) bool {
		return expr.FindNode(n, func(n *expr.Node) bool { return n.IsCallable("Not") }) != nil
	}
	c := NewChoice(hasNot,
		counting("left", &left, nil).Transformer,
		counting("right", &right, nil).Transformer)

	_, s, err := SyncTransform(context.Background(), c, ec.MustParse(`(Just (Not (Bool "true")))`), ec)
	require.NoError(t, err)
	require.Equal(t, StatusOk, s)
	_, _, err = SyncTransform(context.Background(), c, ec.MustParse(`(Just (Bool "true"))`), ec)
	require.NoError(t, err)
	require.Equal(t, 1, left)
	require.Equal(t, 1, right)
	require.Len(t, c.Statistics().Stages, 2)
}

func TestChoiceKeepsBranchOnRepeat(t *testing.T) {
	ec := expr.NewContext()
	var left, right int
	// the predicate would flip after the first step
	c := NewChoice(func(n *expr.Node, _ *expr.Context) bool { return n.IsCallable("Not") },
		counting("left", &left, func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			if n.IsCallable("Not") {
				return n.Child(0), StatusRepeat
			}
			return n, StatusOk
		}).Transformer,
		counting("right", &right, nil).Transformer)
	out, _, err := SyncTransform(context.Background(), c, ec.MustParse(`(Not (Bool "true"))`), ec)
	require.NoError(t, err)
	require.Equal(t, `(Bool "true")`, expr.Format(out))
	require.Equal(t, 2, left)
	require.Zero(t, right)
}

func TestSyncTransformCanceled(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	never := NewPromise[Callback]()
	cb := NewCallback(func(n *expr.Node, _ *expr.Context) (*expr.Node, Step) {
		return n, Step{Status: StatusAsync, Future: never}
	})
	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	_, s, err := SyncTransform(ctx, cb, root, ec)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, Error, s.Level)

	// cancellation rewinds, so the same input
	// may start new async work
	ctx, cancel = context.WithCancel(context.Background())
	go cancel()
	_, _, err = SyncTransform(ctx, cb, root, ec)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestInstantTransformRejectsAsync(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	cb := NewCallback(func(n *expr.Node, _ *expr.Context) (*expr.Node, Step) {
		return n, Step{Status: StatusAsync, Future: NewPromise[Callback]()}
	})
	_, s, err := InstantTransform(cb, root, ec, false)
	require.Error(t, err)
	require.Equal(t, Error, s.Level)
}

func TestNull(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	out, s, err := InstantTransform(Null(), root, ec, true)
	require.NoError(t, err)
	require.Equal(t, StatusOk, s)
	require.Same(t, root, out)
}
