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

package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/SnellerInc/termrw/compr"
	"github.com/SnellerInc/termrw/expr"
	"github.com/SnellerInc/termrw/optimize"
	"github.com/cockroachdb/errors"
)

const program = `(Map (AsList (Int32 "1") (Int32 "2")) (lambda (x) (Just (Not (Not x)))))`

func TestRoundTrip(t *testing.T) {
	for _, algo := range compr.Names {
		t.Run(algo, func(t *testing.T) {
			ec := expr.NewContext()
			root := ec.MustParse(program)
			s, err := Take(root, algo)
			if err != nil {
				t.Fatal(err)
			}
			if s.Digest != Sum(root) {
				t.Error("digest differs from Sum")
			}
			var b bytes.Buffer
			if _, err := s.WriteTo(&b); err != nil {
				t.Fatal(err)
			}
			dec, err := Decode(b.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			if !dec.Equal(s) || dec.Algo != algo {
				t.Fatalf("decoded %+v", dec)
			}
			// restore into a fresh context
			out, err := Restore(expr.NewContext(), dec)
			if err != nil {
				t.Fatal(err)
			}
			if !expr.Equal(out, root) {
				t.Errorf("restored %s", expr.Format(out))
			}
		})
	}
}

func TestIdempotentDigest(t *testing.T) {
	ec := expr.NewContext()
	out, err := optimize.Optimize(ec, ec.MustParse(program), optimize.DefaultTable(), nil)
	if err != nil {
		t.Fatal(err)
	}
	again, err := optimize.Optimize(ec, out, optimize.DefaultTable(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if Sum(out) != Sum(again) {
		t.Error("second optimization changed the digest")
	}
	if Sum(out) == Sum(ec.MustParse(program)) {
		t.Error("optimization did not change the digest")
	}
}

func TestCorrupt(t *testing.T) {
	ec := expr.NewContext()
	s, err := Take(ec.MustParse(program), "none")
	if err != nil {
		t.Fatal(err)
	}
	s.Data[0] = '['
	if _, err := Restore(ec, s); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v", err)
	}
	if _, err := Decode([]byte("TRWS\x09zs")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("got %v", err)
	}
	if _, err := Take(ec.MustParse(program), "lz4"); err == nil {
		t.Error("unknown compression accepted")
	}
}

func TestSaveLoad(t *testing.T) {
	ec := expr.NewContext()
	s, err := Take(ec.MustParse(program), "s2")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "snap")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(s) {
		t.Error("loaded snapshot differs")
	}
}
