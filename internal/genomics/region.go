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

// Package genomics contains definitions related to Genomic data.
package genomics

import "fmt"

// Region defines a region of genomic interest on a single reference.
type Region struct {
	// ReferenceID is the numeric chromosome identifier assigned by the file.
	ReferenceID uint32
	// Start and End specify the half open range [Start, End) in base pairs
	// relative to the reference.
	Start, End uint32
}

func (region Region) String() string {
	return fmt.Sprintf("[region:%d, start:%d, end:%d]", region.ReferenceID, region.Start, region.End)
}

// Position is a point in the genome coordinate space spanning all
// references.  Positions are ordered first by reference and then by base.
type Position struct {
	ReferenceID uint32
	Base        uint32
}

// Less reports whether p sorts before q.
func (p Position) Less(q Position) bool {
	if p.ReferenceID != q.ReferenceID {
		return p.ReferenceID < q.ReferenceID
	}
	return p.Base < q.Base
}

// Span is an interval in the genome coordinate space that may cross
// reference boundaries.
type Span struct {
	Start, End Position
}

// Overlaps reports whether s intersects region.  A span overlaps unless it
// ends at or before the start of the region or starts at or after its end;
// both comparisons are made across references, so a span that crosses a
// reference boundary is handled correctly.
func (s Span) Overlaps(region Region) bool {
	start := Position{region.ReferenceID, region.Start}
	end := Position{region.ReferenceID, region.End}
	if !start.Less(s.End) {
		return false
	}
	if !s.Start.Less(end) {
		return false
	}
	return true
}
