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

package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/internal/bbitest"
)

var (
	_ bbi.Source = (*Source)(nil)
	_ bbi.Sizer  = (*Source)(nil)
)

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bw")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestFetch(t *testing.T) {
	data := []byte("0123456789")
	src, err := Open(writeTestFile(t, data))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	got, err := src.Fetch(ctx, 3, 4)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(got) != "3456" {
		t.Errorf("Fetch(3, 4): got %q, want %q", got, "3456")
	}
	if size, _ := src.Size(ctx); size != 10 {
		t.Errorf("Size(): got %d, want 10", size)
	}
	for _, tc := range []struct{ offset, length uint64 }{{8, 3}, {11, 0}, {20, 1}} {
		if _, err := src.Fetch(ctx, tc.offset, uint32(tc.length)); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Fetch(%d, %d): got %v, want %v", tc.offset, tc.length, err, io.ErrUnexpectedEOF)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.bw")); err == nil {
		t.Fatal("Open() of a missing file succeeded")
	}
}

func TestQuery(t *testing.T) {
	data := bbitest.File{
		Compress: true,
		Chroms:   []bbitest.Chrom{{Name: "chr1", Length: 1000}},
		Records: []bbitest.Record{
			{Chrom: "chr1", Start: 0, End: 10, Value: 1},
			{Chrom: "chr1", Start: 10, End: 20, Value: 2},
			{Chrom: "chr1", Start: 30, End: 40, Value: 3},
		},
		ZoomReductions: []uint32{100},
	}.Build()
	src, err := Open(writeTestFile(t, data))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer src.Close()

	f, err := bbi.Open(context.Background(), src)
	if err != nil {
		t.Fatalf("bbi.Open() failed: %v", err)
	}
	if f.Size() != uint64(len(data)) {
		t.Errorf("Size(): got %d, want %d", f.Size(), len(data))
	}
	result, err := f.Features(context.Background(), bbi.Query{Reference: "chr1", Start: 5, End: 35})
	if err != nil {
		t.Fatalf("Features() failed: %v", err)
	}
	if got := len(result.Features); got != 3 {
		t.Errorf("got %d features, want 3", got)
	}
}
