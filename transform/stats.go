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
	"io"
	"strings"
	"time"
)

// Statistics are observational counters
// collected by a Transformer.
type Statistics struct {
	// TransformDuration is the time spent
	// in Transform and ApplyAsyncChanges.
	TransformDuration time.Duration
	// WaitDuration is the time between an
	// Async result and the matching
	// ApplyAsyncChanges call.
	WaitDuration time.Duration
	// NewExprNodes, NewTypeNodes and NewConstraintNodes
	// count the nodes, types and constraint
	// sets created during the transformer's steps.
	NewExprNodes       int
	NewTypeNodes       int
	NewConstraintNodes int
	// Repeats counts Repeat results, except the
	// resumes of a suspended pipeline. Restarts
	// counts results with HasRestart set.
	Repeats  int
	Restarts int
	// Stages holds the statistics of
	// nested transformers, if any.
	Stages []NamedStatistics
}

// NamedStatistics are the Statistics
// of one named stage.
type NamedStatistics struct {
	Name string
	Statistics
}

// Stage returns the statistics of the
// named stage, or nil.
func (s *Statistics) Stage(name string) *Statistics {
	for i := range s.Stages {
		if s.Stages[i].Name == name {
			return &s.Stages[i].Statistics
		}
	}
	return nil
}

// WriteTo writes s as an indented tree.
func (s *Statistics) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	s.write(&b, "total", 0)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func (s *Statistics) write(b *strings.Builder, name string, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "%s: transform=%s wait=%s nodes=%d types=%d constraints=%d repeats=%d restarts=%d\n",
		name, s.TransformDuration, s.WaitDuration, s.NewExprNodes,
		s.NewTypeNodes, s.NewConstraintNodes, s.Repeats, s.Restarts)
	for i := range s.Stages {
		s.Stages[i].write(b, s.Stages[i].Name, depth+1)
	}
}
