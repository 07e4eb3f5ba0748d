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
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Env holds the ambient compile-time facts that
// rules may read. Rules must treat it as read-only;
// only the stages that produce the facts (for example
// directory discovery) write to it, and never while
// the walker is running.
//
// A nil *Env is valid and holds no facts.
type Env struct {
	// Credentials maps credential names to
	// their secrets. Only the names are ever
	// visible to the program.
	Credentials map[string]string
	// Directories holds directory listings
	// by directory name. A present key with
	// no entries is an empty directory.
	Directories map[string][]string
	// Logf, if non-nil, receives a line
	// for every rule that fires.
	Logf func(f string, args ...any)

	hits map[string]int
}

// CredentialNames returns the sorted
// names of the known credentials.
func (e *Env) CredentialNames() []string {
	if e == nil {
		return nil
	}
	names := maps.Keys(e.Credentials)
	slices.Sort(names)
	return names
}

// Listing returns the listing of dir
// and whether it is known.
func (e *Env) Listing(dir string) ([]string, bool) {
	if e == nil {
		return nil, false
	}
	lst, ok := e.Directories[dir]
	return lst, ok
}

// SetListing records the listing of dir.
func (e *Env) SetListing(dir string, files []string) {
	if e.Directories == nil {
		e.Directories = make(map[string][]string)
	}
	files = slices.Clone(files)
	slices.Sort(files)
	e.Directories[dir] = files
}

// Hits returns the number of times each
// rule (by label) has fired.
func (e *Env) Hits() map[string]int {
	if e == nil {
		return nil
	}
	return e.hits
}

func (e *Env) hit(label string) {
	if e == nil {
		return
	}
	if e.hits == nil {
		e.hits = make(map[string]int)
	}
	e.hits[label]++
}

func (e *Env) logf(f string, args ...any) {
	if e != nil && e.Logf != nil {
		e.Logf(f, args...)
	}
}
