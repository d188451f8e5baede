// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package inflate decompresses the zlib encoded data blocks of BBI files.
package inflate

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Inflate decompresses raw, which must hold a single zlib stream.  The
// uncompressed data may not exceed limit bytes, which is the maximum block
// size declared by the file header.  A limit of zero disables the check.
func Inflate(raw []byte, limit uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("initializing zlib reader: %w", err)
	}
	defer zr.Close()

	var buffer bytes.Buffer
	if limit > 0 {
		buffer.Grow(int(limit))
		n, err := io.Copy(&buffer, io.LimitReader(zr, int64(limit)+1))
		if err != nil {
			return nil, fmt.Errorf("decompressing data: %w", err)
		}
		if n > int64(limit) {
			return nil, fmt.Errorf("decompressed block exceeds %d bytes", limit)
		}
		return buffer.Bytes(), nil
	}
	if _, err := io.Copy(&buffer, zr); err != nil {
		return nil, fmt.Errorf("decompressing data: %w", err)
	}
	return buffer.Bytes(), nil
}

// Deflate compresses data into a single zlib stream.  It is the inverse of
// Inflate and exists to build fixtures.
func Deflate(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	zw := zlib.NewWriter(&buffer)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("writing compressed data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}
	return buffer.Bytes(), nil
}
