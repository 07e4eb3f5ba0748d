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
	"runtime"

	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"
)

// CatchInternalError recovers a panic raised by a
// transformer (shape errors, divergence, contract
// violations) and stores it in *errp. It must be
// called directly by a deferred statement.
//
// Runtime errors are converted to assertion failures;
// panics with non-error values are wrapped in one.
func CatchInternalError(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	switch e := r.(type) {
	case runtime.Error:
		*errp = errors.HandleAsAssertionFailure(e)
	case error:
		*errp = e
	default:
		*errp = errors.AssertionFailedf("panic: %v", r)
	}
}

func failOnError(s *Status, err *error) {
	if *err != nil {
		s.Level = Error
	}
}

// SyncTransform drives t over root until it reports Ok
// or Error, waiting for async work as needed. It returns
// an error only for internal failures (including
// cancellation of ctx, which also rewinds t); user
// diagnostics are reported in ec.Issues with an
// Error status.
func SyncTransform(ctx context.Context, t Transformer, root *expr.Node, ec *expr.Context) (out *expr.Node, status Status, err error) {
	defer failOnError(&status, &err)
	defer CatchInternalError(&err)
	for {
		if err := ctx.Err(); err != nil {
			t.Rewind()
			return root, StatusError, err
		}
		var s Status
		out, s = t.Transform(root, ec)
		status = status.Combine(Status{HasRestart: s.HasRestart})
		switch s.Level {
		case Ok, Error:
			return out, Status{Level: s.Level, HasRestart: status.HasRestart}, nil
		case Repeat:
			root = out
			continue
		}
		f := t.AsyncFuture(root)
		select {
		case <-f.Done():
		case <-ctx.Done():
			t.Rewind()
			return root, StatusError, ctx.Err()
		}
		out, s = t.ApplyAsyncChanges(root, ec)
		status = status.Combine(Status{HasRestart: s.HasRestart})
		if s.Level == Error {
			return out, Status{Level: Error, HasRestart: status.HasRestart}, nil
		}
		root = out
	}
}

// InstantTransform drives a transformer that never
// reports Async. If breakOnRestart is set, it returns
// as soon as a step reports HasRestart.
func InstantTransform(t Transformer, root *expr.Node, ec *expr.Context, breakOnRestart bool) (out *expr.Node, status Status, err error) {
	defer failOnError(&status, &err)
	defer CatchInternalError(&err)
	for {
		out, status = t.Transform(root, ec)
		switch status.Level {
		case Async:
			t.Rewind()
			return root, StatusError, errors.AssertionFailedf("instant transform: transformer returned Async")
		case Repeat:
			if breakOnRestart && status.HasRestart {
				return out, status, nil
			}
			root = out
		default:
			return out, status, nil
		}
	}
}

// Result is the result of AsyncTransform.
type Result struct {
	Root   *expr.Node
	Status Status
}

// AsyncTransform drives t on a separate goroutine and
// returns a promise of the result. The caller must not
// use ec until the promise has completed.
//
// If applyAsyncChanges is false, the promise resolves
// with an Async status once the first async work has
// completed, leaving it to the caller to call
// t.ApplyAsyncChanges(result.Root, ec).
func AsyncTransform(ctx context.Context, t Transformer, root *expr.Node, ec *expr.Context, applyAsyncChanges bool) *Promise[Result] {
	p := NewPromise[Result]()
	go func() {
		res, err := asyncDrive(ctx, t, root, ec, applyAsyncChanges)
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(res)
	}()
	return p
}

func asyncDrive(ctx context.Context, t Transformer, root *expr.Node, ec *expr.Context, apply bool) (res Result, err error) {
	defer CatchInternalError(&err)
	for {
		out, s := t.Transform(root, ec)
		switch s.Level {
		case Ok, Error:
			return Result{Root: out, Status: s}, nil
		case Repeat:
			root = out
			continue
		}
		f := t.AsyncFuture(root)
		select {
		case <-f.Done():
		case <-ctx.Done():
			t.Rewind()
			return Result{Root: root, Status: StatusError}, ctx.Err()
		}
		if !apply {
			return Result{Root: root, Status: StatusAsync}, nil
		}
		out, s = t.ApplyAsyncChanges(root, ec)
		if s.Level == Error {
			return Result{Root: out, Status: s}, nil
		}
		root = out
	}
}
