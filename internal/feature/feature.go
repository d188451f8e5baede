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

// Package feature decodes the records stored in uncompressed BBI data
// blocks: BigWig sections, BigBed records and zoom level summaries.
package feature

import (
	"encoding/binary"
	"fmt"

	bin "github.com/googlegenomics/bigwig/internal/binary"
)

// SectionType identifies the layout of the items in a BigWig section.
type SectionType uint8

// BigWig section types.
const (
	BedGraph  SectionType = 1
	VarStep   SectionType = 2
	FixedStep SectionType = 3
)

const (
	sectionHeaderSize = 24
	summarySize       = 32
)

func (t SectionType) String() string {
	switch t {
	case BedGraph:
		return "bedGraph"
	case VarStep:
		return "variableStep"
	case FixedStep:
		return "fixedStep"
	}
	return fmt.Sprintf("SectionType(%d)", uint8(t))
}

// Value is a single BigWig data point covering [Start, End).
type Value struct {
	ChromID    uint32
	Start, End uint32
	Value      float32
}

// Summary is a zoom level record summarising the data in [Start, End).
type Summary struct {
	ChromID    uint32
	Start, End uint32
	ValidCount uint32
	Min, Max   float32
	Sum        float32
	SumSquares float32
}

// Bed is a single BigBed record.  Rest holds the tab separated fields that
// follow the coordinates.
type Bed struct {
	ChromID    uint32
	Start, End uint32
	Rest       string
}

// DecodeValues decodes every BigWig section in data.
func DecodeValues(data []byte, order binary.ByteOrder) ([]Value, error) {
	var values []Value
	c := bin.NewCursor(data, order)
	for c.Pos() < c.Len() {
		var header struct {
			chromID, start, end uint32
			step, span          uint32
			kind                SectionType
			count               uint16
		}
		header.chromID = c.Uint32()
		header.start = c.Uint32()
		header.end = c.Uint32()
		header.step = c.Uint32()
		header.span = c.Uint32()
		header.kind = SectionType(c.Uint8())
		c.Skip(1)
		header.count = c.Uint16()
		if err := c.Err(); err != nil {
			return nil, fmt.Errorf("reading section header: %w", err)
		}

		for i := uint16(0); i < header.count; i++ {
			v := Value{ChromID: header.chromID}
			switch header.kind {
			case BedGraph:
				v.Start = c.Uint32()
				v.End = c.Uint32()
			case VarStep:
				v.Start = c.Uint32()
				v.End = v.Start + header.span
			case FixedStep:
				v.Start = header.start + uint32(i)*header.step
				v.End = v.Start + header.span
			default:
				return nil, fmt.Errorf("unsupported section type %v", header.kind)
			}
			v.Value = c.Float32()
			if err := c.Err(); err != nil {
				return nil, fmt.Errorf("reading %v item %d: %w", header.kind, i, err)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

// DecodeSummaries decodes the zoom level records in data.
func DecodeSummaries(data []byte, order binary.ByteOrder) ([]Summary, error) {
	if len(data)%summarySize != 0 {
		return nil, fmt.Errorf("zoom block length %d is not a multiple of %d", len(data), summarySize)
	}
	summaries := make([]Summary, 0, len(data)/summarySize)
	c := bin.NewCursor(data, order)
	for c.Pos() < c.Len() {
		summaries = append(summaries, Summary{
			ChromID:    c.Uint32(),
			Start:      c.Uint32(),
			End:        c.Uint32(),
			ValidCount: c.Uint32(),
			Min:        c.Float32(),
			Max:        c.Float32(),
			Sum:        c.Float32(),
			SumSquares: c.Float32(),
		})
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	return summaries, nil
}

// DecodeBeds decodes the BigBed records in data.
func DecodeBeds(data []byte, order binary.ByteOrder) ([]Bed, error) {
	var beds []Bed
	c := bin.NewCursor(data, order)
	for c.Pos() < c.Len() {
		bed := Bed{
			ChromID: c.Uint32(),
			Start:   c.Uint32(),
			End:     c.Uint32(),
		}
		if err := c.Err(); err != nil {
			return nil, fmt.Errorf("reading bed record: %w", err)
		}
		bed.Rest = c.CString()
		beds = append(beds, bed)
	}
	return beds, nil
}
