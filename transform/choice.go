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
	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"
)

// Predicate selects a branch of a choice. It must not
// modify anything and must be deterministic.
type Predicate func(input *expr.Node, ec *expr.Context) bool

type choice struct {
	cond        Predicate
	left, right Transformer
	current     Transformer
}

// NewChoice returns a Transformer that runs left when
// cond holds for its input and right otherwise. The
// predicate is evaluated once per run: the selected
// branch is kept across Repeat and Async steps until
// it reports Ok or Error.
func NewChoice(cond Predicate, left, right Transformer) Transformer {
	return Wrap(&choice{cond: cond, left: left, right: right})
}

func (c *choice) settle(out *expr.Node, s Status) (*expr.Node, Status) {
	if s.Level == Ok || s.Level == Error {
		c.current = nil
	}
	return out, s
}

func (c *choice) DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	if c.current == nil {
		if c.cond(input, ec) {
			c.current = c.left
		} else {
			c.current = c.right
		}
	}
	return c.settle(c.current.Transform(input, ec))
}

func (c *choice) DoAsyncFuture(input *expr.Node) Future {
	if c.current == nil {
		panic(errors.AssertionFailedf("choice: no branch pending"))
	}
	return c.current.AsyncFuture(input)
}

func (c *choice) DoApplyAsyncChanges(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	if c.current == nil {
		panic(errors.AssertionFailedf("choice: no branch pending"))
	}
	return c.settle(c.current.ApplyAsyncChanges(input, ec))
}

func (c *choice) Rewind() {
	c.current = nil
	c.left.Rewind()
	c.right.Rewind()
}

func (c *choice) StageStatistics() []NamedStatistics {
	return []NamedStatistics{
		{Name: "left", Statistics: *c.left.Statistics()},
		{Name: "right", Statistics: *c.right.Statistics()},
	}
}
