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

// Command termrw rewrites an s-expression program
// with the built-in rule table and prints the result.
//
// Usage:
//
//	termrw [-config file] [-v] [-stats] [-cse] [-dump dir] file.sexp
//
// The file "-" reads the program from stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/SnellerInc/termrw/annotate"
	"github.com/SnellerInc/termrw/config"
	"github.com/SnellerInc/termrw/discover"
	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/optimize"
	"github.com/SnellerInc/termrw/snapshot"
	"github.com/SnellerInc/termrw/transform"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("termrw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgfile string
		verbose bool
		stats   bool
		cse     bool
		dumpdir string
	)
	fs.StringVar(&cfgfile, "config", "", "YAML configuration file")
	fs.BoolVar(&verbose, "v", false, "log stages and rule firings")
	fs.BoolVar(&stats, "stats", false, "print transformer statistics")
	fs.BoolVar(&cse, "cse", false, "merge equal subgraphs after rewriting")
	fs.StringVar(&dumpdir, "dump", "", "write a snapshot per stage step into this directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: termrw [flags] file.sexp")
		fs.PrintDefaults()
		return 2
	}
	exit := func(err error) int {
		fmt.Fprintf(stderr, "termrw: %s\n", err)
		return 1
	}

	cfg := config.Default()
	if cfgfile != "" {
		var err error
		cfg, err = config.Load(cfgfile)
		if err != nil {
			return exit(err)
		}
	}
	src, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		return exit(err)
	}
	ec := expr.NewContext()
	root, err := ec.Parse(string(src))
	if err != nil {
		return exit(err)
	}

	var logf func(f string, args ...any)
	if verbose {
		logf = log.New(stderr, "", log.Lshortfile).Printf
	}
	env := cfg.Env()
	env.Logf = logf
	lister := discover.Restrict(&discover.FSLister{FS: os.DirFS("/")}, cfg.Roots)
	stages := []transform.Stage{
		{Name: "discover", Transformer: discover.NewStage(env, lister, discover.WithLogf(logf))},
		{Name: "annotate", Transformer: annotate.NewStage()},
		{Name: "optimize", Transformer: optimize.NewStage(cfg.Table(), env, optimize.WithMaxPasses(cfg.MaxPasses))},
	}
	if cse {
		stages = append(stages, transform.Stage{Name: "cse", Transformer: optimize.CSE()})
	}
	stages = append(stages, transform.Stage{Name: "check", Transformer: annotate.NewStage()})

	var opts []transform.Option
	if logf != nil {
		opts = append(opts, transform.WithLogf(logf))
	}
	var dumpErr error
	if dumpdir != "" {
		if err := os.MkdirAll(dumpdir, 0o755); err != nil {
			return exit(err)
		}
		seq := 0
		opts = append(opts, transform.WithStageHook(func(name string, out *expr.Node, s transform.Status) {
			if s.Level == transform.Async || dumpErr != nil {
				return
			}
			seq++
			dumpErr = dump(filepath.Join(dumpdir, fmt.Sprintf("%03d-%s.snap", seq, name)), out, cfg.Snapshot)
		}))
	}
	p := cfg.NewPipeline(stages, opts...)

	out, status, err := transform.SyncTransform(context.Background(), p, root, ec)
	if err != nil {
		return exit(err)
	}
	if dumpErr != nil {
		return exit(dumpErr)
	}
	if status.Level != transform.Error {
		fmt.Fprintln(stdout, expr.Format(out))
	}
	if stats {
		p.Statistics().WriteTo(stderr)
	}
	expr.WriteIssues(stderr, ec.Issues.Issues())
	if status.Level == transform.Error {
		return 1
	}
	return 0
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func dump(path string, root *expr.Node, algo string) error {
	s, err := snapshot.Take(root, algo)
	if err != nil {
		return err
	}
	return s.Save(path)
}
