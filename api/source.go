// Copyright 2017 Google Inc.
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

package api

import (
	"context"
	"fmt"
	"io"
)

// ObjectSource adapts an ObjectHandle to bbi.Source and bbi.Sizer.
type ObjectSource struct {
	object ObjectHandle
}

// NewObjectSource returns a source that reads object.
func NewObjectSource(object ObjectHandle) *ObjectSource {
	return &ObjectSource{object}
}

func (src *ObjectSource) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	r, err := src.object.NewRangeReader(ctx, int64(offset), int64(length))
	if err != nil {
		return nil, fmt.Errorf("opening range: %w", err)
	}
	defer r.Close()

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, err)
	}
	return data, nil
}

// Size reads the first byte of the object to learn its size.  It returns
// zero, meaning unknown, if the reader does not report one.
func (src *ObjectSource) Size(ctx context.Context) (uint64, error) {
	r, err := src.object.NewRangeReader(ctx, 0, 1)
	if err != nil {
		return 0, fmt.Errorf("opening object: %w", err)
	}
	defer r.Close()

	if sized, ok := r.(interface{ Size() int64 }); ok && sized.Size() > 0 {
		return uint64(sized.Size()), nil
	}
	return 0, nil
}
