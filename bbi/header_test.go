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

package bbi

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/googlegenomics/bigwig/internal/bbitest"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var byteOrders = []binary.ByteOrder{binary.LittleEndian, binary.BigEndian}

var testChroms = []bbitest.Chrom{
	{Name: "chr1", Length: 100000},
	{Name: "chr2", Length: 50000},
	{Name: "chrX", Length: 20000},
}

func TestParseHeader(t *testing.T) {
	for _, order := range byteOrders {
		for _, bigBed := range []bool{false, true} {
			spec := bbitest.File{
				BigBed:         bigBed,
				ByteOrder:      order,
				Compress:       true,
				Chroms:         testChroms,
				Records:        []bbitest.Record{{Chrom: "chr1", Start: 10, End: 20, Value: 1}},
				ZoomReductions: []uint32{100, 10000},
			}
			data := spec.Build()
			h, err := ParseHeader(data)
			if err != nil {
				t.Fatalf("ParseHeader(%v, bigBed=%v) failed: %v", order, bigBed, err)
			}

			want := BigWig
			if bigBed {
				want = BigBed
			}
			if h.Format != want {
				t.Errorf("Format: got %v, want %v", h.Format, want)
			}
			if h.ByteOrder != order {
				t.Errorf("ByteOrder: got %v, want %v", h.ByteOrder, order)
			}
			if got := len(h.ZoomLevels); got != 2 {
				t.Fatalf("got %d zoom levels, want 2", got)
			}
			if h.ZoomLevels[0].ReductionLevel != 100 || h.ZoomLevels[1].ReductionLevel != 10000 {
				t.Errorf("wrong reduction levels: %+v", h.ZoomLevels)
			}
			if h.ChromTreeOffset == 0 || h.UnzoomedIndexOffset <= h.UnzoomedDataOffset {
				t.Errorf("implausible offsets: %+v", h)
			}
			if h.UncompressBufSize == 0 {
				t.Errorf("UncompressBufSize is zero for a compressed file")
			}
		}
	}
}

func TestParseHeaderErrors(t *testing.T) {
	valid := bbitest.File{Chroms: testChroms, ZoomReductions: []uint32{100}}.Build()

	testCases := []struct {
		name string
		data []byte
		want FormatErrorKind
	}{
		{"empty", nil, NotBigWigFamily},
		{"bad magic", []byte{1, 2, 3, 4, 5, 6, 7, 8}, NotBigWigFamily},
		{"short header", valid[:40], TruncatedHeader},
		{"short zoom table", valid[:70], TruncatedHeader},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHeader(tc.data)
			if !errors.Is(err, &FormatError{Kind: tc.want}) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	data := make([]byte, 1024)
	copy(data, "BAM\x01")
	_, err := Open(context.Background(), sizedSource{&memSource{data: data}})
	var formatErr *FormatError
	if !errors.As(err, &formatErr) || formatErr.Kind != NotBigWigFamily {
		t.Fatalf("got %v, want a NotBigWigFamily error", err)
	}
}

func TestDetectFormatProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("the byte order that matches the magic is recovered", prop.ForAll(
		func(bigEndian, bigBed bool) bool {
			order, magic, format := binary.ByteOrder(binary.LittleEndian), uint32(BigWigMagic), BigWig
			if bigEndian {
				order = binary.BigEndian
			}
			if bigBed {
				magic, format = BigBedMagic, BigBed
			}
			var data [4]byte
			order.PutUint32(data[:], magic)

			gotOrder, gotFormat, err := detectFormat(data[:])
			if err != nil || gotOrder != order || gotFormat != format {
				return false
			}
			// Detecting again from the bytes re-encoded with the detected
			// order gives the same answer.
			var again [4]byte
			gotOrder.PutUint32(again[:], magic)
			order2, format2, err := detectFormat(again[:])
			return err == nil && order2 == gotOrder && format2 == gotFormat
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.Property("other magics are rejected", prop.ForAll(
		func(magic uint32) bool {
			var data [4]byte
			binary.LittleEndian.PutUint32(data[:], magic)
			_, _, err := detectFormat(data[:])
			return errors.Is(err, &FormatError{Kind: NotBigWigFamily})
		},
		gen.UInt32().SuchThat(func(v uint32) bool {
			for _, m := range []uint32{BigWigMagic, BigBedMagic} {
				var b [4]byte
				binary.BigEndian.PutUint32(b[:], m)
				if v == m || v == binary.LittleEndian.Uint32(b[:]) {
					return false
				}
			}
			return true
		}),
	))

	properties.TestingRun(t)
}

func TestStats(t *testing.T) {
	spec := bbitest.File{
		Chroms: testChroms,
		Records: []bbitest.Record{
			{Chrom: "chr1", Start: 0, End: 10, Value: 2},
			{Chrom: "chr1", Start: 10, End: 20, Value: 4},
		},
	}
	f, _ := openBytes(t, spec.Build())
	stats, err := f.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.BasesCovered != 20 || stats.Min != 2 || stats.Max != 4 || stats.Sum != 60 || stats.SumSquares != 200 {
		t.Errorf("wrong summary: %+v", stats.Summary)
	}
	if stats.Mean != 3 {
		t.Errorf("Mean: got %v, want 3", stats.Mean)
	}
	// variance = (200 - 60*60/20) / 19
	if want := math.Sqrt(20.0 / 19); math.Abs(stats.StdDev-want) > 1e-9 {
		t.Errorf("StdDev: got %v, want %v", stats.StdDev, want)
	}

	spec.NoSummary = true
	f, _ = openBytes(t, spec.Build())
	if _, err := f.Stats(); err != ErrNoSummary {
		t.Errorf("Stats() without a summary: got %v, want %v", err, ErrNoSummary)
	}
}

func TestStdDev(t *testing.T) {
	testCases := []struct {
		sum, sumSquares float64
		n               uint64
		want            float64
	}{
		{0, 0, 0, 0},
		{5, 25, 1, 0},
		{6, 20, 2, math.Sqrt(2)},
		// Rounding can make the variance slightly negative.
		{3, 2.9999999, 3, 0},
	}
	for _, tc := range testCases {
		if got := stdDev(tc.sum, tc.sumSquares, tc.n); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("stdDev(%v, %v, %v): got %v, want %v", tc.sum, tc.sumSquares, tc.n, got, tc.want)
		}
	}
}

func TestAutoSQL(t *testing.T) {
	const schema = "table bed3\n\"simple bed\"\n(\nstring chrom;\nuint chromStart;\nuint chromEnd;\n)\n"
	f, _ := openBytes(t, bbitest.File{BigBed: true, Chroms: testChroms, AutoSQL: schema}.Build())
	got, err := f.AutoSQL(context.Background())
	if err != nil {
		t.Fatalf("AutoSQL() failed: %v", err)
	}
	if got != schema {
		t.Errorf("AutoSQL(): got %q, want %q", got, schema)
	}

	f, _ = openBytes(t, bbitest.File{BigBed: true, Chroms: testChroms}.Build())
	if got, err := f.AutoSQL(context.Background()); err != nil || got != "" {
		t.Errorf("AutoSQL() without a schema: got (%q, %v), want empty", got, err)
	}
}
