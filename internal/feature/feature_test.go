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

package feature

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

type sectionHeader struct {
	ChromID, Start, End uint32
	Step, Span          uint32
	Type, Reserved      uint8
	Count               uint16
}

func encode(t *testing.T, order binary.ByteOrder, values ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range values {
		if err := binary.Write(&buf, order, v); err != nil {
			t.Fatalf("binary.Write() failed: %v", err)
		}
	}
	return buf.Bytes()
}

func TestDecodeValues(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		testCases := []struct {
			name string
			data []byte
			want []Value
		}{
			{
				"bedGraph",
				encode(t, order,
					sectionHeader{ChromID: 2, Start: 100, End: 300, Type: uint8(BedGraph), Count: 2},
					[]uint32{100, 150}, float32(1.5),
					[]uint32{200, 300}, float32(-2)),
				[]Value{{2, 100, 150, 1.5}, {2, 200, 300, -2}},
			},
			{
				"variableStep",
				encode(t, order,
					sectionHeader{ChromID: 0, Start: 10, End: 40, Span: 5, Type: uint8(VarStep), Count: 2},
					uint32(10), float32(3),
					uint32(35), float32(4)),
				[]Value{{0, 10, 15, 3}, {0, 35, 40, 4}},
			},
			{
				"fixedStep",
				encode(t, order,
					sectionHeader{ChromID: 1, Start: 1000, End: 1060, Step: 20, Span: 10, Type: uint8(FixedStep), Count: 3},
					[]float32{0.25, 0.5, 0.75}),
				[]Value{{1, 1000, 1010, 0.25}, {1, 1020, 1030, 0.5}, {1, 1040, 1050, 0.75}},
			},
		}
		for _, tc := range testCases {
			t.Run(order.String()+"/"+tc.name, func(t *testing.T) {
				got, err := DecodeValues(tc.data, order)
				if err != nil {
					t.Fatalf("DecodeValues() returned unexpected error: %v", err)
				}
				if !reflect.DeepEqual(got, tc.want) {
					t.Errorf("Wrong values: got %v, want %v", got, tc.want)
				}
			})
		}
	}
}

func TestDecodeValuesErrors(t *testing.T) {
	order := binary.LittleEndian
	testCases := []struct {
		name string
		data []byte
	}{
		{"truncated header", []byte{1, 2, 3}},
		{"truncated item", encode(t, order,
			sectionHeader{Type: uint8(BedGraph), Count: 2},
			[]uint32{1, 2}, float32(1))},
		{"unknown type", encode(t, order,
			sectionHeader{Type: 9, Count: 1}, float32(1))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeValues(tc.data, order); err == nil {
				t.Fatal("DecodeValues() accepted malformed input")
			}
		})
	}
}

func TestDecodeSummaries(t *testing.T) {
	order := binary.BigEndian
	data := encode(t, order,
		[]uint32{3, 0, 1000, 800}, []float32{0, 9, 400, 2000},
		[]uint32{3, 1000, 2000, 10}, []float32{1, 1, 10, 10})
	got, err := DecodeSummaries(data, order)
	if err != nil {
		t.Fatalf("DecodeSummaries() returned unexpected error: %v", err)
	}
	want := []Summary{
		{ChromID: 3, Start: 0, End: 1000, ValidCount: 800, Min: 0, Max: 9, Sum: 400, SumSquares: 2000},
		{ChromID: 3, Start: 1000, End: 2000, ValidCount: 10, Min: 1, Max: 1, Sum: 10, SumSquares: 10},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong summaries: got %v, want %v", got, want)
	}

	if _, err := DecodeSummaries(data[:40], order); err == nil {
		t.Error("DecodeSummaries() accepted a partial record")
	}
}

func TestDecodeBeds(t *testing.T) {
	order := binary.LittleEndian
	data := encode(t, order,
		[]uint32{0, 10, 20}, []byte("geneA\t0\t+\x00"),
		[]uint32{0, 30, 45}, []byte("\x00"),
		[]uint32{1, 5, 6}, []byte("geneC"))
	got, err := DecodeBeds(data, order)
	if err != nil {
		t.Fatalf("DecodeBeds() returned unexpected error: %v", err)
	}
	want := []Bed{{0, 10, 20, "geneA\t0\t+"}, {0, 30, 45, ""}, {1, 5, 6, "geneC"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong records: got %v, want %v", got, want)
	}

	if _, err := DecodeBeds([]byte{1, 0, 0, 0, 2}, order); err == nil {
		t.Error("DecodeBeds() accepted a truncated record")
	}
}
