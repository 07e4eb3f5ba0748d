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
	"fmt"

	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"
)

// Callback applies the result of completed
// async work to the input it was started for.
type Callback func(input *expr.Node, ec *expr.Context) (*expr.Node, Status)

// Step is the result of one step of a callback
// transformer: a status and, when the status is
// Async, the future of the callback that applies
// the async changes.
type Step struct {
	Status Status
	Future *Promise[Callback]
}

// SyncOk returns a Step that completed with Ok.
func SyncOk() Step { return Step{Status: StatusOk} }

// SyncError returns a Step that completed with Error.
func SyncError() Step { return Step{Status: StatusError} }

// SyncRepeat returns a Step that completed with Repeat.
func SyncRepeat() Step { return Step{Status: StatusRepeat} }

// CallbackFunc is one step of a callback transformer.
// Its output is ignored when the Step is Async.
type CallbackFunc func(input *expr.Node, ec *expr.Context) (*expr.Node, Step)

type callbackImpl struct {
	fn        CallbackFunc
	callbacks map[*expr.Node]*Promise[Callback]
}

// NewCallback returns a Transformer that runs fn.
// When fn returns an Async step, the callback future
// is remembered for the input node; ApplyAsyncChanges
// runs the callback once it has resolved. Rewind
// forgets every pending callback.
func NewCallback(fn CallbackFunc) Transformer {
	return Wrap(&callbackImpl{fn: fn, callbacks: make(map[*expr.Node]*Promise[Callback])})
}

func (c *callbackImpl) DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	out, step := c.fn(input, ec)
	if step.Status.Level == Async {
		if step.Future == nil {
			panic(errors.AssertionFailedf("async step without a future"))
		}
		if _, ok := c.callbacks[input]; ok {
			panic(errors.AssertionFailedf("node #%d already has a pending callback", input.ID()))
		}
		c.callbacks[input] = step.Future
		return input, step.Status
	}
	return out, step.Status
}

func (c *callbackImpl) pending(input *expr.Node) *Promise[Callback] {
	p, ok := c.callbacks[input]
	if !ok {
		panic(errors.AssertionFailedf("no pending callback for node #%d", input.ID()))
	}
	return p
}

func (c *callbackImpl) DoAsyncFuture(input *expr.Node) Future {
	return c.pending(input)
}

func (c *callbackImpl) DoApplyAsyncChanges(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	p := c.pending(input)
	delete(c.callbacks, input)
	cb, err := p.Value()
	if err != nil {
		ec.AddError(input.Pos(), "%s", err)
		return input, StatusError
	}
	return cb(input, ec)
}

func (c *callbackImpl) Rewind() {
	clear(c.callbacks)
}

// Outcome is the result of async work
// that can report diagnostics.
type Outcome interface {
	Success() bool
	Issues() []*expr.Issue
}

// DefaultMessage is the issue scope message
// used when another one is not given.
const DefaultMessage = "Execution of node"

// WrapFutureCallback returns an Async step whose callback
// waits for f and then calls cb with its value. The issues
// of the outcome (and the error of f, if any) are reported
// inside an issue scope "<message>: <node content>"; if the
// outcome failed, the callback returns Error without calling cb.
func WrapFutureCallback[T Outcome](f *Promise[T], cb func(v T, input *expr.Node, ec *expr.Context) (*expr.Node, Status), message string) Step {
	if message == "" {
		message = DefaultMessage
	}
	out := NewPromise[Callback]()
	go func() {
		<-f.Done()
		v, err := f.Value()
		out.Resolve(func(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
			ec.Issues.AddScope(func() *expr.Issue {
				return &expr.Issue{
					Pos:      input.Pos(),
					Severity: expr.SeverityError,
					Message:  fmt.Sprintf("%s: %s", message, input.Content()),
				}
			})
			defer ec.Issues.LeaveScope()
			if err != nil {
				ec.AddError(input.Pos(), "%s", err)
				return input, StatusError
			}
			for _, i := range v.Issues() {
				ec.Issues.AddIssue(i)
			}
			if !v.Success() {
				return input, StatusError
			}
			return cb(v, input, ec)
		})
	}()
	return Step{Status: StatusAsync, Future: out}
}

// WrapFuture is WrapFutureCallback for a function that
// computes a new output from the outcome. The callback
// always reports Repeat with a restart, since the graph
// has been replaced.
func WrapFuture[T Outcome](f *Promise[T], fn func(v T, input *expr.Node, ec *expr.Context) *expr.Node, message string) Step {
	return WrapFutureCallback(f, func(v T, input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		return fn(v, input, ec), StatusRepeat.Restart()
	}, message)
}

// WrapModifyFuture is WrapFutureCallback for a function
// that may modify the output. The callback reports Ok
// when fn returns input unchanged, and Repeat with a
// restart otherwise.
func WrapModifyFuture[T Outcome](f *Promise[T], fn func(v T, input *expr.Node, ec *expr.Context) *expr.Node, message string) Step {
	return WrapFutureCallback(f, func(v T, input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
		out := fn(v, input, ec)
		if out == input {
			return out, StatusOk
		}
		return out, StatusRepeat.Restart()
	}, message)
}
