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

// Package file serves byte ranges of a local file through a memory mapping.
package file

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// Source is a read only memory mapped file.  It implements bbi.Source and
// bbi.Sizer.
type Source struct {
	path   string
	reader *mmap.ReaderAt
}

// Open maps the file at path.  The caller must Close the source.
func Open(path string) (*Source, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &Source{path: path, reader: reader}, nil
}

// Fetch returns a copy of length bytes starting at offset.
func (s *Source) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := uint64(s.reader.Len())
	if offset > size || uint64(length) > size-offset {
		return nil, fmt.Errorf("reading %d bytes at offset %d of %s (%d bytes): %w", length, offset, s.path, size, io.ErrUnexpectedEOF)
	}
	buf := make([]byte, length)
	if _, err := s.reader.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return buf, nil
}

// Size returns the size of the file.
func (s *Source) Size(context.Context) (uint64, error) {
	return uint64(s.reader.Len()), nil
}

// Close unmaps the file.
func (s *Source) Close() error {
	return s.reader.Close()
}
