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
	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/transform"
)

// StageOption is an option for NewStage.
type StageOption func(s *stage)

// WithMaxPasses sets the pass budget of the walker.
func WithMaxPasses(n int) StageOption {
	return func(s *stage) { s.walker.MaxPasses = n }
}

// RequireReannotation makes the stage request
// a restart whenever it changes the graph, so that
// every earlier stage (type annotation in particular)
// runs again from a clean state.
func RequireReannotation() StageOption {
	return func(s *stage) { s.restart = true }
}

type stage struct {
	transform.SyncImpl
	walker  Walker
	restart bool
}

// NewStage returns a synchronous transformer
// that rewrites its input to a fixpoint of table.
//
// The stage returns Error if the rewrite reported
// an error or produced an Error node, Repeat if the
// graph changed, and Ok if it did not. A diverging
// rule set is an internal error: the stage panics
// with the error returned by the walker, which the
// drivers in package transform return to the caller.
func NewStage(table *Table, env *Env, opts ...StageOption) transform.Transformer {
	s := &stage{walker: Walker{Table: table, Env: env}}
	for _, o := range opts {
		o(s)
	}
	return transform.Wrap(s)
}

func (s *stage) DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
	errs := ec.Issues.ErrorCount()
	out, err := s.walker.Optimize(ec, input)
	if err != nil {
		panic(err)
	}
	if ec.Issues.ErrorCount() > errs || hasErrorNode(out) {
		return out, transform.StatusError
	}
	if out == input {
		return out, transform.StatusOk
	}
	if s.restart {
		return out, transform.StatusRepeat.Restart()
	}
	return out, transform.StatusRepeat
}

func hasErrorNode(root *expr.Node) bool {
	return expr.FindNode(root, func(n *expr.Node) bool {
		return n.IsCallable("Error")
	}) != nil
}
