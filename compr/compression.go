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

// Package compr wraps the compression codecs
// used for graph snapshots.
package compr

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses whole buffers.
// Codecs are safe for concurrent use.
type Codec interface {
	// Name is the name of the algorithm,
	// as accepted by Compression.
	Name() string
	// Compress appends the compressed
	// contents of src to dst.
	Compress(src, dst []byte) []byte
	// Decompress appends the decompressed
	// contents of src to dst.
	Decompress(src, dst []byte) ([]byte, error)
}

// Names lists the names accepted by Compression.
var Names = []string{"none", "s2", "zstd"}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(src, dst []byte) []byte {
	return zstdEncoder.EncodeAll(src, dst)
}

func (zstdCodec) Decompress(src, dst []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, dst)
	if err != nil {
		return dst, errors.Wrap(err, "zstd")
	}
	return out, nil
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(src, dst []byte) []byte {
	return append(dst, s2.Encode(nil, src)...)
}

func (s2Codec) Decompress(src, dst []byte) ([]byte, error) {
	out, err := s2.Decode(nil, src)
	if err != nil {
		return dst, errors.Wrap(err, "s2")
	}
	return append(dst, out...), nil
}

type noneCodec struct{}

func (noneCodec) Name() string { return "none" }

func (noneCodec) Compress(src, dst []byte) []byte { return append(dst, src...) }

func (noneCodec) Decompress(src, dst []byte) ([]byte, error) { return append(dst, src...), nil }

// Compression returns the codec with the given name,
// or nil if there is none. The empty name selects zstd.
func Compression(name string) Codec {
	switch name {
	case "zstd", "":
		return zstdCodec{}
	case "s2":
		return s2Codec{}
	case "none":
		return noneCodec{}
	default:
		return nil
	}
}
