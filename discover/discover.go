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

// Package discover implements the asynchronous
// directory discovery stage. It lists the directories
// named by Files nodes and records the listings in an
// optimize.Env, where the Files rule picks them up.
package discover

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/optimize"
	"github.com/SnellerInc/termrw/transform"
	"github.com/cockroachdb/errors"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Lister lists the files of a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// FSLister lists directories of a file system.
// Directory names are slash-separated; a leading
// slash is relative to the root of FS.
type FSLister struct {
	FS fs.FS
}

// List implements Lister. Only regular files are
// listed; subdirectories are skipped.
func (l *FSLister) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(path.Clean(dir), "/")
	if name == "" {
		name = "."
	}
	ents, err := fs.ReadDir(l.FS, name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ErrOutsideRoots is returned by a restricted
// Lister for a directory outside its roots.
var ErrOutsideRoots = errors.New("directory is outside the configured roots")

type restricted struct {
	inner Lister
	roots []string
}

// Restrict returns a Lister that only lists directories
// below one of roots. An empty roots list allows nothing.
func Restrict(l Lister, roots []string) Lister {
	clean := make([]string, len(roots))
	for i := range roots {
		clean[i] = path.Clean("/" + roots[i])
	}
	return &restricted{inner: l, roots: clean}
}

func (r *restricted) List(ctx context.Context, dir string) ([]string, error) {
	dir = path.Clean("/" + dir)
	for _, root := range r.roots {
		if root == "/" || dir == root || strings.HasPrefix(dir, root+"/") {
			return r.inner.List(ctx, dir)
		}
	}
	return nil, errors.Wrapf(ErrOutsideRoots, "listing %q", dir)
}

// DefaultParallel is the default number of
// directories listed at the same time.
const DefaultParallel = 8

// ScopeMessage is the message of the issue scope
// that holds listing failures.
const ScopeMessage = transform.DefaultMessage + ": Files"

// Option is an option for NewStage.
type Option func(s *stage)

// WithParallel sets the number of directories
// listed concurrently.
func WithParallel(n int) Option {
	return func(s *stage) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithLogf sets a function that receives
// one line per listed directory.
func WithLogf(logf func(f string, args ...any)) Option {
	return func(s *stage) { s.logf = logf }
}

type stage struct {
	env      *optimize.Env
	lister   Lister
	parallel int
	logf     func(f string, args ...any)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStage returns an asynchronous transformer that
// lists every directory named by a Files node that is
// not yet known to env. The transformer returns Async
// while listings are pending; applying the async changes
// records the listings in env and returns Ok, or returns
// Error with the failures reported inside a scope issue
// with the message ScopeMessage. The graph itself is
// never changed. Rewind cancels pending listings.
func NewStage(env *optimize.Env, l Lister, opts ...Option) transform.Transformer {
	s := &stage{env: env, lister: l, parallel: DefaultParallel}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return &rewinder{Transformer: transform.NewCallback(s.step), s: s}
}

type rewinder struct {
	transform.Transformer
	s *stage
}

func (r *rewinder) Rewind() {
	r.s.cancel()
	r.Transformer.Rewind()
}

// Pending returns the sorted directories named by Files
// nodes of root that are not listed in env.
func Pending(root *expr.Node, env *optimize.Env) []string {
	seen := make(map[string]struct{})
	expr.VisitOnce(root, nil, func(n *expr.Node) {
		if !n.IsCallable("Files") || n.ChildrenLen() != 1 || !n.Head().IsAtom() {
			return
		}
		dir := n.Head().Content()
		if _, ok := env.Listing(dir); !ok {
			seen[dir] = struct{}{}
		}
	})
	dirs := maps.Keys(seen)
	slices.Sort(dirs)
	return dirs
}

// listing is the outcome of one round of discovery
type listing struct {
	files  map[string][]string
	issues []*expr.Issue
}

func (l *listing) Success() bool { return len(l.issues) == 0 }

func (l *listing) Issues() []*expr.Issue { return l.issues }

func (s *stage) step(input *expr.Node, ec *expr.Context) (*expr.Node, transform.Step) {
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	dirs := Pending(input, s.env)
	if len(dirs) == 0 {
		return input, transform.SyncOk()
	}
	if s.logf != nil {
		s.logf("%s: discovering %d directories", ec.ID, len(dirs))
	}
	res := s.list(s.ctx, input.Pos(), dirs)
	out := transform.NewPromise[transform.Callback]()
	go func() {
		<-res.Done()
		v, err := res.Value()
		out.Resolve(func(input *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
			return s.apply(v, err, input, ec)
		})
	}()
	return input, transform.Step{Status: transform.StatusAsync, Future: out}
}

// list lists dirs concurrently, at most s.parallel at a time
func (s *stage) list(ctx context.Context, pos expr.Pos, dirs []string) *transform.Promise[*listing] {
	p := transform.NewPromise[*listing]()
	go func() {
		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		g.SetLimit(s.parallel)
		res := &listing{files: make(map[string][]string)}
		for _, dir := range dirs {
			dir := dir
			g.Go(func() error {
				files, err := s.lister.List(ctx, dir)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.issues = append(res.issues, &expr.Issue{
						Pos:      pos,
						Severity: expr.SeverityError,
						Message:  fmt.Sprintf("listing %s: %s", dir, err),
					})
					return nil
				}
				res.files[dir] = files
				if s.logf != nil {
					s.logf("listed %s: %d files", dir, len(files))
				}
				return nil
			})
		}
		g.Wait()
		if err := ctx.Err(); err != nil {
			p.Reject(err)
			return
		}
		// completion order must not leak into diagnostics
		slices.SortFunc(res.issues, func(a, b *expr.Issue) int {
			return strings.Compare(a.Message, b.Message)
		})
		p.Resolve(res)
	}()
	return p
}

func (s *stage) apply(v *listing, err error, input *expr.Node, ec *expr.Context) (*expr.Node, transform.Status) {
	ec.Issues.AddScope(func() *expr.Issue {
		return &expr.Issue{
			Pos:      input.Pos(),
			Severity: expr.SeverityError,
			Message:  ScopeMessage,
		}
	})
	defer ec.Issues.LeaveScope()
	if err != nil {
		ec.AddError(input.Pos(), "%s", err)
		return input, transform.StatusError
	}
	for _, is := range v.Issues() {
		ec.Issues.AddIssue(is)
	}
	if !v.Success() {
		return input, transform.StatusError
	}
	for dir, files := range v.files {
		s.env.SetListing(dir, files)
	}
	return input, transform.StatusOk
}
