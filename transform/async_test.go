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
	"fmt"
	"testing"
	"time"

	"github.com/SnellerInc/termrw/expr"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	ok     bool
	issues []*expr.Issue
	value  string
}

func (o outcome) Success() bool         { return o.ok }
func (o outcome) Issues() []*expr.Issue { return o.issues }

// lookupStage replaces (Lookup "key") with (String value)
// using an asynchronous lookup
func lookupStage(resolve func(key string, p *Promise[outcome])) Transformer {
	return NewCallback(func(n *expr.Node, ec *expr.Context) (*expr.Node, Step) {
		if !n.IsCallable("Lookup") {
			return n, SyncOk()
		}
		p := NewPromise[outcome]()
		go resolve(n.Child(0).Content(), p)
		return n, WrapFuture(p, func(v outcome, input *expr.Node, ec *expr.Context) *expr.Node {
			return ec.NewData(input.Pos(), expr.String, v.value)
		}, "")
	})
}

func syncLookupStage() Transformer {
	return Func(func(n *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		if !n.IsCallable("Lookup") {
			return n, StatusOk
		}
		return ec.NewData(n.Pos(), expr.String, "value-of-"+n.Child(0).Content()), StatusRepeat.Restart()
	})
}

func TestAsyncRoundTrip(t *testing.T) {
	var annotate int
	run := func(stage Transformer) (string, *Statistics) {
		ec := expr.NewContext()
		root := ec.MustParse(`(Lookup "k")`)
		p := NewPipeline([]Stage{
			counting("annotate", &annotate, nil),
			{Name: "lookup", Transformer: stage},
			{Name: "tail", Transformer: Null()},
		})
		out, s, err := SyncTransform(context.Background(), p, root, ec)
		require.NoError(t, err)
		require.Equal(t, Ok, s.Level)
		require.False(t, ec.Issues.HasErrors())
		return expr.Format(out), p.Statistics()
	}
	async, stats := run(lookupStage(func(key string, p *Promise[outcome]) {
		time.Sleep(time.Millisecond)
		p.Resolve(outcome{ok: true, value: "value-of-" + key})
	}))
	syncOut, _ := run(syncLookupStage())
	require.Equal(t, syncOut, async)
	require.Equal(t, `(String "value-of-k")`, async)
	require.Equal(t, 4, annotate, "each run restarts once after the lookup")
	require.Greater(t, stats.Stage("lookup").WaitDuration, time.Duration(0))
}

// resolvedStage replaces (Lookup ...) with (String "v")
// once its callback runs, reporting status
func resolvedStage(status Status) Transformer {
	return NewCallback(func(n *expr.Node, ec *expr.Context) (*expr.Node, Step) {
		if !n.IsCallable("Lookup") {
			return n, SyncOk()
		}
		cb := NewPromise[Callback]()
		cb.Resolve(func(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			if status.Level == Ok {
				return input, status
			}
			return ec.NewData(input.Pos(), expr.String, "v"), status
		})
		return n, Step{Status: StatusAsync, Future: cb}
	})
}

func TestAsyncRepeatRestartsPipeline(t *testing.T) {
	ec := expr.NewContext()
	var head, tail int
	p := NewPipeline([]Stage{
		counting("annotate", &head, nil),
		{Name: "lookup", Transformer: resolvedStage(StatusRepeat)},
		counting("tail", &tail, nil),
	})
	out, s, err := SyncTransform(context.Background(), p, ec.MustParse(`(Lookup "k")`), ec)
	require.NoError(t, err)
	require.Equal(t, Ok, s.Level)
	require.Equal(t, `(String "v")`, expr.Format(out))
	require.Equal(t, 2, head, "earlier stages run again after a Repeat")
	require.Equal(t, 1, tail)
	require.Equal(t, 1, p.Statistics().Stage("lookup").Repeats)
}

func TestAsyncResume(t *testing.T) {
	ec := expr.NewContext()
	var head, tail int
	inner := NewPipeline([]Stage{
		{Name: "lookup", Transformer: resolvedStage(StatusOk)},
		counting("tail", &tail, nil),
	})
	p := NewPipeline([]Stage{
		counting("annotate", &head, nil),
		{Name: "inner", Transformer: inner},
	})
	root := ec.MustParse(`(Lookup "k")`)
	out, s, err := SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, Ok, s.Level)
	require.Same(t, root, out)
	// an Ok apply continues with the next stage
	require.Equal(t, 1, head)
	require.Equal(t, 1, tail)

	stats := p.Statistics()
	require.Zero(t, stats.Repeats)
	require.Zero(t, stats.Stage("inner").Repeats)
	require.Zero(t, stats.Stage("inner").Stage("lookup").Repeats)
}

func TestAsyncFailure(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Lookup "k")`)
	stage := lookupStage(func(key string, p *Promise[outcome]) {
		p.Resolve(outcome{
			ok:     false,
			issues: []*expr.Issue{{Severity: expr.SeverityError, Message: "no such key " + key}},
		})
	})
	p := NewPipeline([]Stage{{Name: "lookup", Transformer: stage, IssueCode: expr.CodeExecution, IssueMessage: "Lookup"}})
	_, s, err := SyncTransform(context.Background(), p, root, ec)
	require.NoError(t, err)
	require.Equal(t, Error, s.Level)

	issues := ec.Issues.Issues()
	require.Len(t, issues, 1)
	require.Equal(t, "Lookup", issues[0].Message)
	require.Equal(t, expr.CodeExecution, issues[0].Code)
	require.Len(t, issues[0].Issues, 1)
	scope := issues[0].Issues[0]
	require.Equal(t, "Execution of node: Lookup", scope.Message)
	require.Len(t, scope.Issues, 1)
	require.Equal(t, "no such key k", scope.Issues[0].Message)
}

func TestAsyncRejected(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Lookup "k")`)
	stage := lookupStage(func(key string, p *Promise[outcome]) {
		p.Reject(fmt.Errorf("connection refused"))
	})
	_, s, err := SyncTransform(context.Background(), stage, root, ec)
	require.NoError(t, err)
	require.Equal(t, Error, s.Level)
	require.True(t, ec.Issues.HasErrors())
}

func TestWrapModifyFuture(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Thing)`)
	for _, change := range []bool{false, true} {
		cb := NewCallback(func(n *expr.Node, ec *expr.Context) (*expr.Node, Step) {
			return n, WrapModifyFuture(Resolved(outcome{ok: true}), func(_ outcome, input *expr.Node, ec *expr.Context) *expr.Node {
				if change {
					return ec.NewCallable(input.Pos(), "Other")
				}
				return input
			}, "")
		})
		_, s := cb.Transform(root, ec)
		require.Equal(t, StatusAsync, s)
		<-cb.AsyncFuture(root).Done()
		out, s := cb.ApplyAsyncChanges(root, ec)
		if change {
			require.Equal(t, StatusRepeat.Restart(), s)
			require.True(t, out.IsCallable("Other"))
		} else {
			require.Equal(t, StatusOk, s)
			require.Same(t, root, out)
		}
	}
}

func TestAsyncTransform(t *testing.T) {
	ec := expr.NewContext()
	root := ec.MustParse(`(Lookup "k")`)
	stage := lookupStage(func(key string, p *Promise[outcome]) {
		p.Resolve(outcome{ok: true, value: key + key})
	})
	res, err := AsyncTransform(context.Background(), stage, root, ec, true).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Ok, res.Status.Level)
	require.Equal(t, `(String "kk")`, expr.Format(res.Root))

	// without applying, the caller finishes the step
	ec = expr.NewContext()
	root = ec.MustParse(`(Lookup "k")`)
	stage = lookupStage(func(key string, p *Promise[outcome]) {
		p.Resolve(outcome{ok: true, value: key})
	})
	res, err = AsyncTransform(context.Background(), stage, root, ec, false).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Async, res.Status.Level)
	out, s := stage.ApplyAsyncChanges(res.Root, ec)
	require.Equal(t, Repeat, s.Level)
	require.Equal(t, `(String "k")`, expr.Format(out))
}

func TestPromise(t *testing.T) {
	p := NewPromise[int]()
	require.False(t, p.Ready())
	require.NoError(t, p.Err())
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p.Resolve(3)
	p.Reject(fmt.Errorf("ignored"))
	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, v)

	select {
	case <-Completed().Done():
	default:
		t.Fatal("Completed should be done")
	}
	require.Error(t, Failed(fmt.Errorf("x")).Err())
}
