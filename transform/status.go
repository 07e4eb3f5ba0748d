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

// Package transform implements the compiler pass
// abstraction (Transformer) and the drivers and
// combinators that sequence passes into pipelines.
//
// A Transformer maps an input root to an output root
// and a Status. A Repeat status asks the caller to call
// Transform again with the output; an Async status asks
// the caller to wait on AsyncFuture and then call
// ApplyAsyncChanges with the same input.
package transform

import (
	"fmt"
)

// Level is the outcome of one step of a Transformer.
// Levels are ordered by precedence; see Status.Combine.
type Level uint8

const (
	// Ok means the output is final.
	Ok Level = iota
	// Repeat means the output is valid but
	// another step has been requested.
	Repeat
	// Async means the output is not yet valid;
	// the caller must wait for the future
	// and then apply the async changes.
	Async
	// Error means the step failed; the
	// diagnostics are in the issue manager.
	Error
)

func (l Level) String() string {
	switch l {
	case Ok:
		return "Ok"
	case Repeat:
		return "Repeat"
	case Async:
		return "Async"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("Level(%d)", l)
}

// Status is a Level plus the restart flag.
// HasRestart means that state derived from
// the previous graph (memoized results keyed
// by node identity) must be discarded.
type Status struct {
	Level      Level
	HasRestart bool

	// resume marks the Repeat a pipeline reports
	// after applying async changes: the caller
	// calls Transform again and the pipeline
	// continues where it was suspended
	resume bool
}

var (
	StatusOk     = Status{Level: Ok}
	StatusRepeat = Status{Level: Repeat}
	StatusAsync  = Status{Level: Async}
	StatusError  = Status{Level: Error}
)

// Restart returns s with HasRestart set.
func (s Status) Restart() Status {
	s.HasRestart = true
	return s
}

// Combine returns the status with the higher
// level of s and o; HasRestart is set if it
// is set on either.
func (s Status) Combine(o Status) Status {
	out := s
	if o.Level > out.Level {
		out.Level = o.Level
	}
	out.HasRestart = s.HasRestart || o.HasRestart
	return out
}

func (s Status) String() string {
	if s.HasRestart {
		return s.Level.String() + "(restart)"
	}
	return s.Level.String()
}
