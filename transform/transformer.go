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
	"time"

	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"
)

// Transformer is one compiler pass.
//
// Transformers are bound to a single compilation
// and are not safe for concurrent use.
type Transformer interface {
	// Transform performs one step on input.
	// If the returned status is Async, the output
	// must be ignored; the caller waits on
	// AsyncFuture(input) and then calls
	// ApplyAsyncChanges(input, ec).
	Transform(input *expr.Node, ec *expr.Context) (*expr.Node, Status)
	// AsyncFuture returns the future of the
	// pending async work started for input.
	AsyncFuture(input *expr.Node) Future
	// ApplyAsyncChanges applies the completed
	// async work started for input. It returns
	// Ok, Repeat or Error.
	ApplyAsyncChanges(input *expr.Node, ec *expr.Context) (*expr.Node, Status)
	// Rewind discards any in-flight async work
	// and internal progress.
	Rewind()
	// Statistics returns the counters
	// collected so far.
	Statistics() *Statistics
}

// Impl is the part of a Transformer that
// implementations provide; Wrap adds the
// bookkeeping common to every transformer.
type Impl interface {
	DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, Status)
	DoAsyncFuture(input *expr.Node) Future
	DoApplyAsyncChanges(input *expr.Node, ec *expr.Context) (*expr.Node, Status)
	Rewind()
}

// SubStatistics can be implemented by an Impl
// that owns nested transformers; their statistics
// are reported in Statistics.Stages.
type SubStatistics interface {
	StageStatistics() []NamedStatistics
}

// SyncImpl can be embedded in an Impl
// that never returns Async.
type SyncImpl struct{}

// DoAsyncFuture implements Impl.DoAsyncFuture
func (SyncImpl) DoAsyncFuture(*expr.Node) Future {
	panic(errors.AssertionFailedf("synchronous transformer has no async future"))
}

// DoApplyAsyncChanges implements Impl.DoApplyAsyncChanges
func (SyncImpl) DoApplyAsyncChanges(*expr.Node, *expr.Context) (*expr.Node, Status) {
	panic(errors.AssertionFailedf("synchronous transformer has no async changes"))
}

// Rewind implements Impl.Rewind
func (SyncImpl) Rewind() {}

// Base is a Transformer built from an Impl.
// It measures durations, counts the nodes, types
// and constraint sets each step creates, and counts
// repeats and restarts.
type Base struct {
	impl       Impl
	stats      Statistics
	asyncStart time.Time
}

// Wrap returns a Transformer over impl.
func Wrap(impl Impl) *Base {
	return &Base{impl: impl}
}

type counters struct {
	nodes, types, cons int
}

func snapshotCounters(ec *expr.Context) counters {
	return counters{ec.NodeCount(), ec.TypeCount(), ec.ConstraintCount()}
}

func (b *Base) record(ec *expr.Context, start time.Time, before counters, s Status) {
	b.stats.TransformDuration += time.Since(start)
	after := snapshotCounters(ec)
	b.stats.NewExprNodes += after.nodes - before.nodes
	b.stats.NewTypeNodes += after.types - before.types
	b.stats.NewConstraintNodes += after.cons - before.cons
	if s.Level == Repeat && !s.resume {
		b.stats.Repeats++
	}
	if s.HasRestart {
		b.stats.Restarts++
	}
}

// Transform implements Transformer.Transform
func (b *Base) Transform(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	start, before := time.Now(), snapshotCounters(ec)
	out, s := b.impl.DoTransform(input, ec)
	b.record(ec, start, before, s)
	if s.Level == Async {
		b.asyncStart = time.Now()
	}
	return out, s
}

// AsyncFuture implements Transformer.AsyncFuture
func (b *Base) AsyncFuture(input *expr.Node) Future {
	return b.impl.DoAsyncFuture(input)
}

// ApplyAsyncChanges implements Transformer.ApplyAsyncChanges
func (b *Base) ApplyAsyncChanges(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	if !b.asyncStart.IsZero() {
		b.stats.WaitDuration += time.Since(b.asyncStart)
		b.asyncStart = time.Time{}
	}
	start, before := time.Now(), snapshotCounters(ec)
	out, s := b.impl.DoApplyAsyncChanges(input, ec)
	if s.Level == Async {
		panic(errors.AssertionFailedf("ApplyAsyncChanges returned Async"))
	}
	b.record(ec, start, before, s)
	return out, s
}

// Rewind implements Transformer.Rewind
func (b *Base) Rewind() {
	b.asyncStart = time.Time{}
	b.impl.Rewind()
}

// Statistics implements Transformer.Statistics
func (b *Base) Statistics() *Statistics {
	if sub, ok := b.impl.(SubStatistics); ok {
		b.stats.Stages = sub.StageStatistics()
	}
	return &b.stats
}

type funcImpl struct {
	SyncImpl
	fn func(input *expr.Node, ec *expr.Context) (*expr.Node, Status)
}

func (f *funcImpl) DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	return f.fn(input, ec)
}

// Func returns a synchronous Transformer
// that calls fn for every step.
func Func(fn func(input *expr.Node, ec *expr.Context) (*expr.Node, Status)) Transformer {
	return Wrap(&funcImpl{fn: fn})
}

// Null returns a Transformer that
// returns its input unchanged.
func Null() Transformer {
	return Func(func(input *expr.Node, _ *expr.Context) (*expr.Node, Status) {
		return input, StatusOk
	})
}
