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

// Package config loads the YAML configuration
// of the rewriting pipeline.
package config

import (
	"os"

	"github.com/SnellerInc/termrw/compr"
	"github.com/SnellerInc/termrw/optimize"
	"github.com/SnellerInc/termrw/transform"
	"github.com/cockroachdb/errors"

	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"
)

// Config is the pipeline configuration.
//
// An example configuration:
//
//	max_passes: 100
//	disabled_rules: [NotNot, Coalesce]
//	credentials:
//	  warehouse: s3cr3t
//	roots: [/data]
//	snapshot: zstd
type Config struct {
	// MaxPasses is the pass budget of the
	// rewrite walker.
	MaxPasses int `json:"max_passes,omitempty"`
	// MaxRestarts bounds the number of times
	// the pipeline restarts from its first stage.
	MaxRestarts int `json:"max_restarts,omitempty"`
	// DisabledRules are rule labels or operator
	// names removed from the rule table.
	DisabledRules []string `json:"disabled_rules,omitempty"`
	// IssueScopes groups diagnostics under
	// the stage that reported them.
	IssueScopes *bool `json:"issue_scopes,omitempty"`
	// ArgChecks checks for free lambda arguments
	// on every restart rather than only on the first run.
	ArgChecks *bool `json:"arg_checks,omitempty"`
	// Credentials maps credential names to secrets.
	Credentials map[string]string `json:"credentials,omitempty"`
	// Roots are the directories that
	// discovery may list.
	Roots []string `json:"roots,omitempty"`
	// Snapshot is the compression used
	// for graph snapshots.
	Snapshot string `json:"snapshot,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.MaxPasses == 0 {
		c.MaxPasses = optimize.DefaultMaxPasses
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = transform.DefaultMaxRestarts
	}
	if c.IssueScopes == nil {
		c.IssueScopes = ptr(true)
	}
	if c.ArgChecks == nil {
		c.ArgChecks = ptr(true)
	}
	if c.Roots == nil {
		c.Roots = []string{"/"}
	}
	if c.Snapshot == "" {
		c.Snapshot = "zstd"
	}
}

func ptr[T any](v T) *T { return &v }

// Parse parses a YAML configuration, fills
// in the defaults and validates the result.
// Unknown fields are an error.
func Parse(buf []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.UnmarshalStrict(buf, c); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return c, nil
}

// Validate checks c for consistency.
func (c *Config) Validate() error {
	if c.MaxPasses < 0 {
		return errors.Newf("config: max_passes %d is negative", c.MaxPasses)
	}
	if c.MaxRestarts < 0 {
		return errors.Newf("config: max_restarts %d is negative", c.MaxRestarts)
	}
	table := optimize.DefaultTable()
	for _, name := range c.DisabledRules {
		if !slices.Contains(table.Labels(), name) && !slices.Contains(table.Operators(), name) {
			return errors.Newf("config: disabled rule %q does not exist", name)
		}
	}
	if c.Snapshot != "" && compr.Compression(c.Snapshot) == nil {
		return errors.Newf("config: unknown snapshot compression %q (want one of %v)", c.Snapshot, compr.Names)
	}
	for _, r := range c.Roots {
		if r == "" {
			return errors.New("config: empty discovery root")
		}
	}
	return nil
}

// Table returns the default rule table
// without the disabled rules.
func (c *Config) Table() *optimize.Table {
	return optimize.DefaultTable().Without(c.DisabledRules...)
}

// Env returns an environment holding
// the configured credentials.
func (c *Config) Env() *optimize.Env {
	return &optimize.Env{Credentials: c.Credentials}
}

// PipelineOptions returns the pipeline options
// that correspond to c.
func (c *Config) PipelineOptions() []transform.Option {
	return []transform.Option{
		transform.WithMaxRestarts(c.MaxRestarts),
		transform.WithIssueScopes(c.IssueScopes == nil || *c.IssueScopes),
	}
}

// NewPipeline builds a pipeline of stages
// honoring the arg_checks setting.
func (c *Config) NewPipeline(stages []transform.Stage, opts ...transform.Option) transform.Transformer {
	opts = append(c.PipelineOptions(), opts...)
	if c.ArgChecks != nil && !*c.ArgChecks {
		return transform.NewPipelineNoArgChecks(stages, opts...)
	}
	return transform.NewPipeline(stages, opts...)
}
