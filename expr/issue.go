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

package expr

import (
	"fmt"
	"io"
	"strings"
)

// Severity is the severity of an Issue.
// Lower values are more severe.
type Severity uint8

const (
	SeverityFatal Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "Fatal"
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	}
	return fmt.Sprintf("Severity(%d)", s)
}

// IssueCode classifies an Issue.
type IssueCode uint32

const (
	CodeDefault IssueCode = iota
	CodeTypeAnnotation
	CodeConstraints
	CodeOptimization
	CodeExecution
	CodeDiscovery
)

func (c IssueCode) String() string {
	switch c {
	case CodeDefault:
		return "DEFAULT"
	case CodeTypeAnnotation:
		return "TYPE_ANNOTATION"
	case CodeConstraints:
		return "CONSTRAINTS"
	case CodeOptimization:
		return "OPTIMIZATION"
	case CodeExecution:
		return "EXECUTION"
	case CodeDiscovery:
		return "DISCOVERY"
	}
	return fmt.Sprintf("CODE_%d", uint32(c))
}

// Issue is a user-facing diagnostic.
type Issue struct {
	Pos      Pos
	Code     IssueCode
	Severity Severity
	Message  string
	// Issues are nested issues; a scope
	// issue holds the issues reported
	// while the scope was active.
	Issues []*Issue
}

// IsError returns whether the severity
// of i is Error or worse.
func (i *Issue) IsError() bool { return i.Severity <= SeverityError }

func (i *Issue) String() string {
	var b strings.Builder
	i.write(&b, 0)
	return b.String()
}

func (i *Issue) write(b *strings.Builder, depth int) {
	for j := 0; j < depth; j++ {
		b.WriteString("    ")
	}
	fmt.Fprintf(b, "%s: %s: %s", i.Pos, i.Severity, i.Message)
	if i.Code != CodeDefault {
		fmt.Fprintf(b, " [%s]", i.Code)
	}
	for _, sub := range i.Issues {
		b.WriteByte('\n')
		sub.write(b, depth+1)
	}
}

// WriteIssues writes lst to w, one
// top-level issue per line group.
func WriteIssues(w io.Writer, lst []*Issue) error {
	for _, i := range lst {
		if _, err := io.WriteString(w, i.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

type issueScope struct {
	lazy  func() *Issue
	issue *Issue
	done  bool
}

// IssueManager collects issues. Issues added while
// a scope is active are nested under the issue
// produced by that scope; a scope's issue is only
// materialized once something is reported in it.
//
// The zero value is ready to use.
type IssueManager struct {
	scopes []issueScope
	issues []*Issue
	errors int
}

// AddScope pushes a scope. fn is called at most once,
// the first time an issue is added inside the scope;
// if fn returns nil, the scope is transparent.
func (m *IssueManager) AddScope(fn func() *Issue) {
	m.scopes = append(m.scopes, issueScope{lazy: fn})
}

// LeaveScope pops the innermost scope.
func (m *IssueManager) LeaveScope() {
	if len(m.scopes) > 0 {
		m.scopes = m.scopes[:len(m.scopes)-1]
	}
}

// LeaveAllScopes pops every active scope.
func (m *IssueManager) LeaveAllScopes() {
	m.scopes = m.scopes[:0]
}

// ScopeDepth returns the number of active scopes.
func (m *IssueManager) ScopeDepth() int { return len(m.scopes) }

func (m *IssueManager) parent() *Issue {
	var parent *Issue
	for i := range m.scopes {
		s := &m.scopes[i]
		if !s.done {
			s.done = true
			s.issue = s.lazy()
			if s.issue != nil {
				m.attach(parent, s.issue)
			}
		}
		if s.issue != nil {
			parent = s.issue
		}
	}
	return parent
}

func (m *IssueManager) attach(parent, i *Issue) {
	if parent == nil {
		m.issues = append(m.issues, i)
	} else {
		parent.Issues = append(parent.Issues, i)
	}
}

// AddIssue records i in the innermost scope.
func (m *IssueManager) AddIssue(i *Issue) {
	if i.IsError() {
		m.errors++
	}
	m.attach(m.parent(), i)
}

// AddError records an error-severity issue.
func (m *IssueManager) AddError(pos Pos, msg string) {
	m.AddIssue(&Issue{Pos: pos, Severity: SeverityError, Message: msg})
}

// Issues returns the top-level issues
// recorded so far.
func (m *IssueManager) Issues() []*Issue { return m.issues }

// HasErrors returns whether any issue with
// Error or Fatal severity has been recorded.
func (m *IssueManager) HasErrors() bool { return m.errors > 0 }

// ErrorCount returns the number of error-severity
// issues recorded so far.
func (m *IssueManager) ErrorCount() int { return m.errors }
