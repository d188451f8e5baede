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

package inflate

import (
	"bytes"
	"strings"
	"testing"
)

func TestInflate(t *testing.T) {
	data := []byte(strings.Repeat("chr1\t100\t200\t0.5\n", 64))
	raw, err := Deflate(data)
	if err != nil {
		t.Fatalf("Deflate() failed: %v", err)
	}

	testCases := []struct {
		name  string
		limit uint32
		ok    bool
	}{
		{"no limit", 0, true},
		{"exact limit", uint32(len(data)), true},
		{"generous limit", uint32(len(data) * 2), true},
		{"limit too small", uint32(len(data) - 1), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Inflate(raw, tc.limit)
			if !tc.ok {
				if err == nil {
					t.Fatalf("Inflate() accepted a block larger than %d bytes", tc.limit)
				}
				return
			}
			if err != nil {
				t.Fatalf("Inflate() returned unexpected error: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Wrong data: got %d bytes, want %d bytes", len(got), len(data))
			}
		})
	}
}

func TestInflateCorrupt(t *testing.T) {
	if _, err := Inflate([]byte("not a zlib stream"), 0); err == nil {
		t.Fatal("Inflate() accepted corrupt input")
	}
}
