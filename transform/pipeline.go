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

// DefaultMaxRestarts is the default number of
// times a pipeline may go back to its first
// stage within one run.
const DefaultMaxRestarts = 1000

// Stage is one named Transformer in a pipeline.
type Stage struct {
	Transformer Transformer
	// Name identifies the stage in
	// statistics and logs.
	Name string
	// IssueCode and IssueMessage describe the
	// issue scope under which the issues of
	// the stage are reported. The message
	// defaults to the name.
	IssueCode    expr.IssueCode
	IssueMessage string
}

// StageHook is called after every step of
// a pipeline stage with the stage output.
type StageHook func(name string, output *expr.Node, s Status)

// Option configures a pipeline.
type Option func(*pipeline)

// WithIssueScopes sets whether the issues of each
// stage are nested under a scope issue for the stage.
// Issue scopes are enabled by default.
func WithIssueScopes(on bool) Option {
	return func(p *pipeline) { p.issueScopes = on }
}

// WithLogf sets a function used to log
// stage transitions.
func WithLogf(logf func(f string, args ...any)) Option {
	return func(p *pipeline) { p.logf = logf }
}

// WithMaxRestarts bounds the number of times the
// pipeline may go back to its first stage within
// one run; exceeding the bound is an internal error.
func WithMaxRestarts(n int) Option {
	return func(p *pipeline) { p.maxRestarts = n }
}

// WithStageHook sets a hook called after
// every step of every stage.
func WithStageHook(h StageHook) Option {
	return func(p *pipeline) { p.hook = h }
}

type pipeline struct {
	stages      []Stage
	issueScopes bool
	maxRestarts int
	logf        func(f string, args ...any)
	hook        StageHook

	// argument checks: mode is one of the
	// values below; checked records that the
	// first run has been checked
	argChecks int
	checked   bool

	index    int
	restarts int
	// input of the stage that returned Async
	asyncInput *expr.Node
}

const (
	argChecksAlways = iota
	argChecksFirst
)

// NewPipeline returns a Transformer that runs stages in
// order, feeding the output of each stage to the next.
//
// An Error from any stage stops the pipeline. A Repeat
// from a stage restarts the pipeline at the first stage
// (rewinding every stage if the status has HasRestart set).
// An Async status suspends the pipeline; once the async
// changes are applied, the next call to Transform
// resumes at the following stage, or at the first stage
// if applying the changes reported Repeat.
//
// Every time the pipeline starts from its first stage it
// checks that its input has no free lambda arguments.
func NewPipeline(stages []Stage, opts ...Option) Transformer {
	return Wrap(newPipeline(stages, argChecksAlways, opts))
}

// NewPipelineNoArgChecks is like NewPipeline, but the
// free-argument check is only performed on the first run;
// restarts skip it.
func NewPipelineNoArgChecks(stages []Stage, opts ...Option) Transformer {
	return Wrap(newPipeline(stages, argChecksFirst, opts))
}

func newPipeline(stages []Stage, checks int, opts []Option) *pipeline {
	for i := range stages {
		if stages[i].Transformer == nil {
			panic(errors.AssertionFailedf("pipeline stage %q has no transformer", stages[i].Name))
		}
	}
	p := &pipeline{
		stages:      stages,
		issueScopes: true,
		maxRestarts: DefaultMaxRestarts,
		argChecks:   checks,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *pipeline) log(ec *expr.Context, f string, args ...any) {
	if p.logf != nil {
		p.logf("%s: "+f, append([]any{ec.ID}, args...)...)
	}
}

func (p *pipeline) checkArgs(input *expr.Node, ec *expr.Context) bool {
	if p.argChecks == argChecksFirst && p.checked {
		return true
	}
	p.checked = true
	free := expr.FreeArguments(input)
	for _, a := range free {
		ec.AddError(a.Pos(), "unbound lambda argument %q", a.Content())
	}
	return len(free) == 0
}

func (p *pipeline) enterScope(st *Stage, input *expr.Node, ec *expr.Context) {
	if !p.issueScopes {
		return
	}
	ec.Issues.AddScope(func() *expr.Issue {
		msg := st.IssueMessage
		if msg == "" {
			msg = st.Name
		}
		return &expr.Issue{
			Pos:      input.Pos(),
			Code:     st.IssueCode,
			Severity: expr.SeverityError,
			Message:  msg,
		}
	})
}

func (p *pipeline) leaveScope(ec *expr.Context) {
	if p.issueScopes {
		ec.Issues.LeaveScope()
	}
}

func (p *pipeline) step(input *expr.Node, ec *expr.Context, apply bool) (*expr.Node, Status) {
	st := &p.stages[p.index]
	p.enterScope(st, input, ec)
	var out *expr.Node
	var s Status
	if apply {
		out, s = st.Transformer.ApplyAsyncChanges(input, ec)
	} else {
		out, s = st.Transformer.Transform(input, ec)
	}
	p.leaveScope(ec)
	p.log(ec, "stage %s: %s", st.Name, s)
	if p.hook != nil {
		p.hook(st.Name, out, s)
	}
	return out, s
}

func (p *pipeline) restart(ec *expr.Context, s Status) {
	p.restarts++
	if p.restarts > p.maxRestarts {
		panic(errors.AssertionFailedf("pipeline restarted more than %d times", p.maxRestarts))
	}
	if s.HasRestart {
		for i := range p.stages {
			p.stages[i].Transformer.Rewind()
		}
	}
	p.log(ec, "restart from stage %s", p.stages[0].Name)
	p.index = 0
}

func (p *pipeline) finish() {
	p.index = 0
	p.restarts = 0
	p.asyncInput = nil
}

func (p *pipeline) DoTransform(input *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	if p.asyncInput != nil {
		panic(errors.AssertionFailedf("pipeline: Transform called with async changes pending"))
	}
	cur := input
	restart := false
	for p.index < len(p.stages) {
		if p.index == 0 && !p.checkArgs(cur, ec) {
			p.finish()
			return cur, StatusError
		}
		out, s := p.step(cur, ec, false)
		switch s.Level {
		case Error:
			p.finish()
			return out, s
		case Async:
			p.asyncInput = cur
			return cur, s
		case Repeat:
			cur = out
			restart = restart || s.HasRestart
			p.restart(ec, s)
		default:
			cur = out
			p.index++
		}
	}
	p.finish()
	return cur, Status{Level: Ok, HasRestart: restart}
}

func (p *pipeline) DoAsyncFuture(input *expr.Node) Future {
	if p.asyncInput == nil {
		panic(errors.AssertionFailedf("pipeline: no async stage pending"))
	}
	return p.stages[p.index].Transformer.AsyncFuture(p.asyncInput)
}

// DoApplyAsyncChanges applies the changes of the suspended
// stage. Unless that fails, the pipeline asks to be resumed:
// at the next stage if the changes were applied cleanly, or
// at the first stage if the suspended stage reported Repeat.
func (p *pipeline) DoApplyAsyncChanges(_ *expr.Node, ec *expr.Context) (*expr.Node, Status) {
	if p.asyncInput == nil {
		panic(errors.AssertionFailedf("pipeline: no async stage pending"))
	}
	stageInput := p.asyncInput
	p.asyncInput = nil
	out, s := p.step(stageInput, ec, true)
	switch {
	case s.Level == Error:
		p.finish()
		return out, s
	case s.resume:
		// a nested pipeline continues in the same stage
	case s.Level == Repeat:
		p.restart(ec, s)
	default:
		p.index++
	}
	return out, Status{Level: Repeat, HasRestart: s.HasRestart, resume: true}
}

func (p *pipeline) Rewind() {
	for i := range p.stages {
		p.stages[i].Transformer.Rewind()
	}
	p.finish()
	p.checked = false
}

func (p *pipeline) StageStatistics() []NamedStatistics {
	out := make([]NamedStatistics, len(p.stages))
	for i := range p.stages {
		out[i].Name = p.stages[i].Name
		out[i].Statistics = *p.stages[i].Transformer.Statistics()
	}
	return out
}
