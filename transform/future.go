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
	"sync"
)

// Future is the completion signal of
// out-of-band work.
type Future interface {
	// Done is closed once the work has completed.
	Done() <-chan struct{}
	// Err returns the error the work failed
	// with, or nil. Err is only meaningful
	// once Done is closed.
	Err() error
}

// Promise is a Future carrying a value of type T.
// A Promise is resolved (or rejected) exactly once;
// subsequent calls to Resolve or Reject are ignored.
type Promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewPromise returns an unresolved Promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a Promise already resolved with v.
func Resolved[T any](v T) *Promise[T] {
	p := NewPromise[T]()
	p.Resolve(v)
	return p
}

// Rejected returns a Promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := NewPromise[T]()
	p.Reject(err)
	return p
}

// Resolve completes p with v.
func (p *Promise[T]) Resolve(v T) {
	p.once.Do(func() {
		p.val = v
		close(p.done)
	})
}

// Reject completes p with err.
func (p *Promise[T]) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done implements Future.Done
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Err implements Future.Err
func (p *Promise[T]) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Ready returns whether p has completed.
func (p *Promise[T]) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Value returns the value of a completed promise.
// It must only be called once Done is closed.
func (p *Promise[T]) Value() (T, error) {
	return p.val, p.err
}

// Wait blocks until p completes or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var completed = Resolved(struct{}{})

// Completed returns a Future that has already completed.
func Completed() Future { return completed }

// Failed returns a Future that has already failed with err.
func Failed(err error) Future { return Rejected[struct{}](err) }
