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

// Package snapshot records the state of a graph as
// a digest of its canonical text plus the compressed
// text itself.
//
// The binary encoding of a Snapshot is
//
//	magic "TRWS" | name length (1 byte) | codec name |
//	digest (32 bytes) | compressed text
package snapshot

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"

	"github.com/SnellerInc/termrw/compr"
	"github.com/SnellerInc/termrw/expr"
	"github.com/cockroachdb/errors"

	"golang.org/x/crypto/blake2b"
)

const magic = "TRWS"

// Digest is the blake2b-256 hash of the
// canonical text of a graph.
type Digest [blake2b.Size256]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Snapshot is a restorable record of a graph.
// Annotations are not recorded.
type Snapshot struct {
	Digest Digest
	// Algo is the name of the codec
	// that compressed Data.
	Algo string
	Data []byte
}

// ErrCorrupt is returned when a snapshot
// does not match its digest.
var ErrCorrupt = errors.New("snapshot: corrupt")

// Sum returns the digest of root.
func Sum(root *expr.Node) Digest {
	return blake2b.Sum256([]byte(expr.Format(root)))
}

// Take returns a snapshot of root compressed with
// the codec named algo (see compr.Compression).
func Take(root *expr.Node, algo string) (*Snapshot, error) {
	c := compr.Compression(algo)
	if c == nil {
		return nil, errors.Newf("snapshot: unknown compression %q", algo)
	}
	text := []byte(expr.Format(root))
	return &Snapshot{
		Digest: blake2b.Sum256(text),
		Algo:   c.Name(),
		Data:   c.Compress(text, nil),
	}, nil
}

// Equal returns whether s and o record the same graph.
func (s *Snapshot) Equal(o *Snapshot) bool {
	return s.Digest == o.Digest
}

// Text returns the decompressed text of s,
// checking it against the digest.
func (s *Snapshot) Text() (string, error) {
	c := compr.Compression(s.Algo)
	if c == nil {
		return "", errors.Newf("snapshot: unknown compression %q", s.Algo)
	}
	text, err := c.Decompress(s.Data, nil)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "snapshot"), ErrCorrupt)
	}
	if blake2b.Sum256(text) != s.Digest {
		return "", errors.Wrapf(ErrCorrupt, "digest mismatch (want %s)", s.Digest)
	}
	return string(text), nil
}

// Restore parses the graph recorded by s into ec.
func Restore(ec *expr.Context, s *Snapshot) (*expr.Node, error) {
	text, err := s.Text()
	if err != nil {
		return nil, err
	}
	return ec.Parse(text)
}

// WriteTo writes the binary encoding of s to w.
func (s *Snapshot) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	b.WriteString(magic)
	b.WriteByte(byte(len(s.Algo)))
	b.WriteString(s.Algo)
	b.Write(s.Digest[:])
	b.Write(s.Data)
	return b.WriteTo(w)
}

// Decode decodes the binary encoding of a snapshot.
func Decode(buf []byte) (*Snapshot, error) {
	if !bytes.HasPrefix(buf, []byte(magic)) {
		return nil, errors.Wrap(ErrCorrupt, "bad magic")
	}
	buf = buf[len(magic):]
	if len(buf) < 1 || len(buf) < 1+int(buf[0])+blake2b.Size256 {
		return nil, errors.Wrap(ErrCorrupt, "truncated header")
	}
	n := int(buf[0])
	s := &Snapshot{Algo: string(buf[1 : 1+n])}
	buf = buf[1+n:]
	copy(s.Digest[:], buf)
	s.Data = bytes.Clone(buf[blake2b.Size256:])
	return s, nil
}

// Save writes s to the file at path.
func (s *Snapshot) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Decode(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return s, nil
}
