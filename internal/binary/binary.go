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

// Package binary provides support for operating on binary data.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Cursor reads fixed width values from a byte slice using a single byte
// order.  The first read that runs past the end of the data records an error
// which is reported by Err; every later read returns the zero value.
type Cursor struct {
	data  []byte
	order binary.ByteOrder
	pos   int
	err   error
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte, order binary.ByteOrder) *Cursor {
	return &Cursor{data: data, order: order}
}

// At returns a new Cursor over the same data positioned at pos.
func (c *Cursor) At(pos int) *Cursor {
	return &Cursor{data: c.data, order: c.order, pos: pos}
}

// Order returns the byte order used to decode values.
func (c *Cursor) Order() binary.ByteOrder {
	return c.order
}

// Pos returns the current read position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the length of the underlying data.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Err returns the first error encountered while reading, if any.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) next(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos < 0 || c.pos+n > len(c.data) {
		c.err = fmt.Errorf("reading %d bytes at offset %d of %d: %w", n, c.pos, len(c.data), io.ErrUnexpectedEOF)
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) {
	c.next(n)
}

// Uint8 reads a single byte.
func (c *Cursor) Uint8() uint8 {
	if b := c.next(1); b != nil {
		return b[0]
	}
	return 0
}

// Uint16 reads an unsigned 16-bit integer.
func (c *Cursor) Uint16() uint16 {
	if b := c.next(2); b != nil {
		return c.order.Uint16(b)
	}
	return 0
}

// Uint32 reads an unsigned 32-bit integer.
func (c *Cursor) Uint32() uint32 {
	if b := c.next(4); b != nil {
		return c.order.Uint32(b)
	}
	return 0
}

// Uint64 reads an unsigned 64-bit integer.
func (c *Cursor) Uint64() uint64 {
	if b := c.next(8); b != nil {
		return c.order.Uint64(b)
	}
	return 0
}

// Float32 reads an IEEE 754 single precision value.
func (c *Cursor) Float32() float32 {
	return math.Float32frombits(c.Uint32())
}

// Float64 reads an IEEE 754 double precision value.
func (c *Cursor) Float64() float64 {
	return math.Float64frombits(c.Uint64())
}

// Bytes returns the next n bytes.  The result aliases the underlying data.
func (c *Cursor) Bytes(n int) []byte {
	return c.next(n)
}

// FixedString reads an n byte, NUL padded field and returns its contents up
// to the first NUL.
func (c *Cursor) FixedString(n int) string {
	b := c.next(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// CString reads a NUL terminated string and consumes the terminator.  A
// string running to the end of the data without a terminator is returned
// as is.
func (c *Cursor) CString() string {
	if c.err != nil {
		return ""
	}
	rest := c.data[c.pos:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		c.pos += i + 1
		return string(rest[:i])
	}
	c.pos = len(c.data)
	return string(rest)
}
