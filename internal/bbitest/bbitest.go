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

// Package bbitest builds small BigWig and BigBed files for tests.
package bbitest

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/googlegenomics/bigwig/internal/inflate"
)

// Magic numbers of the structures written by File.Build.
const (
	BigWigMagic    = 0x888FFC26
	BigBedMagic    = 0x8789F2EB
	ChromTreeMagic = 0x78CA8C91
	CIRTreeMagic   = 0x2468ACE0
)

// Chrom is a chromosome of a test file.
type Chrom struct {
	Name   string
	Length uint32
}

// Record is a single data point (BigWig) or interval (BigBed).
type Record struct {
	Chrom      string
	Start, End uint32
	Value      float32
	Rest       string
}

// File describes a test file.  The zero value of every field except Chroms
// is usable.
type File struct {
	// BigBed selects BigBed records instead of BigWig bedGraph sections.
	BigBed bool
	// ByteOrder defaults to little endian.
	ByteOrder binary.ByteOrder
	// Compress stores every data block zlib compressed.
	Compress bool

	// Chroms are assigned ids in order.
	Chroms  []Chrom
	Records []Record

	// RecordsPerBlock is the number of records in each data block, 2 by
	// default.
	RecordsPerBlock int
	// BlockSize is the fan out of both trees, 2 by default, which makes
	// even small files have several index levels.
	BlockSize int

	// ZoomReductions lists the reduction level of each zoom level.
	ZoomReductions []uint32
	// NoSummary omits the total summary.
	NoSummary bool
	// AutoSQL is stored, NUL terminated, when it is not empty.
	AutoSQL string
}

type layout struct {
	spec        File
	order       binary.ByteOrder
	ids         map[string]uint32
	blockSize   int
	perBlock    int
	w           *writer
	maxBlockLen int
}

// Build returns the encoded file.  It panics if the description is
// inconsistent, for example if a record names an unknown chromosome.
func (spec File) Build() []byte {
	l := &layout{
		spec:      spec,
		order:     spec.ByteOrder,
		ids:       make(map[string]uint32),
		blockSize: spec.BlockSize,
		perBlock:  spec.RecordsPerBlock,
	}
	if l.order == nil {
		l.order = binary.LittleEndian
	}
	if l.blockSize <= 0 {
		l.blockSize = 2
	}
	if l.perBlock <= 0 {
		l.perBlock = 2
	}
	for i, c := range spec.Chroms {
		l.ids[c.Name] = uint32(i)
	}
	l.w = &writer{order: l.order}
	return l.build()
}

type placed struct {
	chrom      uint32
	start, end uint32
	value      float32
	rest       string
}

func (l *layout) records() []placed {
	records := make([]placed, len(l.spec.Records))
	for i, r := range l.spec.Records {
		id, ok := l.ids[r.Chrom]
		if !ok {
			panic(fmt.Sprintf("bbitest: record %d names unknown chromosome %q", i, r.Chrom))
		}
		value := r.Value
		if l.spec.BigBed {
			value = 1
		}
		records[i] = placed{chrom: id, start: r.Start, end: r.End, value: value, rest: r.Rest}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].chrom != records[j].chrom {
			return records[i].chrom < records[j].chrom
		}
		return records[i].start < records[j].start
	})
	return records
}

func (l *layout) build() []byte {
	w := l.w
	zoomCount := len(l.spec.ZoomReductions)
	w.zeros(64 + 24*zoomCount)

	var summaryOffset uint64
	if !l.spec.NoSummary {
		summaryOffset = w.len()
		w.zeros(40)
	}
	var autoSQLOffset uint64
	if l.spec.AutoSQL != "" {
		autoSQLOffset = w.len()
		w.bytes([]byte(l.spec.AutoSQL))
		w.u8(0)
	}

	chromTreeOffset := w.len()
	l.writeChromTree()

	records := l.records()
	dataOffset := w.len()
	leaves := l.writeRecordBlocks(records)
	indexOffset := w.len()
	l.writeCIRTree(leaves)

	type zoomHeader struct {
		reduction          uint32
		dataOffset, offset uint64
	}
	zooms := make([]zoomHeader, zoomCount)
	for i, reduction := range l.spec.ZoomReductions {
		zooms[i].reduction = reduction
		zooms[i].dataOffset = w.len()
		leaves := l.writeSummaryBlocks(summarize(records, reduction))
		zooms[i].offset = w.len()
		l.writeCIRTree(leaves)
	}

	magic := uint32(BigWigMagic)
	fieldCount := uint16(0)
	if l.spec.BigBed {
		magic = BigBedMagic
		fieldCount = 3
		for _, r := range records {
			if r.rest != "" {
				fieldCount = 4
				break
			}
		}
	}
	w.u32(magic)

	var uncompressBufSize uint32
	if l.spec.Compress {
		uncompressBufSize = uint32(l.maxBlockLen)
	}

	h := &writer{order: l.order}
	h.u32(magic)
	h.u16(4)
	h.u16(uint16(zoomCount))
	h.u64(chromTreeOffset)
	h.u64(dataOffset)
	h.u64(indexOffset)
	h.u16(fieldCount)
	h.u16(fieldCount)
	h.u64(autoSQLOffset)
	h.u64(summaryOffset)
	h.u32(uncompressBufSize)
	h.u64(0)
	for _, z := range zooms {
		h.u32(z.reduction)
		h.u32(0)
		h.u64(z.dataOffset)
		h.u64(z.offset)
	}
	if !l.spec.NoSummary {
		s := total(records)
		h.u64(s.validCount)
		h.f64(s.min)
		h.f64(s.max)
		h.f64(s.sum)
		h.f64(s.sumSquares)
	}
	copy(w.buf, h.buf)
	return w.buf
}

func (l *layout) writeChromTree() {
	w := l.w
	base := w.len()
	chroms := make([]Chrom, len(l.spec.Chroms))
	copy(chroms, l.spec.Chroms)
	sort.Slice(chroms, func(i, j int) bool { return chroms[i].Name < chroms[j].Name })

	keySize := 1
	for _, c := range chroms {
		if len(c.Name) > keySize {
			keySize = len(c.Name)
		}
	}
	w.u32(ChromTreeMagic)
	w.u32(uint32(l.blockSize))
	w.u32(uint32(keySize))
	w.u32(8)
	w.u64(uint64(len(chroms)))
	w.u64(0)

	type item struct {
		key   string
		chrom Chrom
		child int
	}
	leaves := make([]item, len(chroms))
	for i, c := range chroms {
		leaves[i] = item{key: c.Name, chrom: c}
	}
	levels := [][]item{leaves}
	for len(levels[len(levels)-1]) > l.blockSize {
		below := levels[len(levels)-1]
		var parents []item
		for i := 0; i < len(below); i += l.blockSize {
			parents = append(parents, item{key: below[i].key, child: i / l.blockSize})
		}
		levels = append(levels, parents)
	}

	nodeSize := uint64(4 + l.blockSize*(keySize+8))
	starts := levelStarts(base+32, levels, func(int) uint64 { return nodeSize }, l.blockSize)
	for k := len(levels) - 1; k >= 0; k-- {
		items := levels[k]
		forEachNode(len(items), l.blockSize, func(lo, hi int) {
			w.u8(boolByte(k == 0))
			w.u8(0)
			w.u16(uint16(hi - lo))
			for _, it := range items[lo:hi] {
				key := make([]byte, keySize)
				copy(key, it.key)
				w.bytes(key)
				if k == 0 {
					w.u32(l.ids[it.chrom.Name])
					w.u32(it.chrom.Length)
				} else {
					w.u64(starts[k-1] + uint64(it.child)*nodeSize)
				}
			}
			w.zeros((l.blockSize - (hi - lo)) * (keySize + 8))
		})
	}
}

type leafItem struct {
	startChrom, startBase uint32
	endChrom, endBase     uint32
	offset, size          uint64
	child                 int
}

// writeBlock writes a data block, compressing it if requested, and returns
// its index entry.
func (l *layout) writeBlock(data []byte, chrom, start, end uint32) leafItem {
	if len(data) > l.maxBlockLen {
		l.maxBlockLen = len(data)
	}
	if l.spec.Compress {
		var err error
		if data, err = inflate.Deflate(data); err != nil {
			panic(fmt.Sprintf("bbitest: compressing block: %v", err))
		}
	}
	offset := l.w.len()
	l.w.bytes(data)
	return leafItem{
		startChrom: chrom, startBase: start,
		endChrom: chrom, endBase: end,
		offset: offset, size: uint64(len(data)),
	}
}

func (l *layout) writeRecordBlocks(records []placed) []leafItem {
	l.w.u32(uint32(len(records)))
	var leaves []leafItem
	forEachGroup(len(records), l.perBlock, func(i, j int) bool {
		return records[i].chrom == records[j].chrom
	}, func(lo, hi int) {
		group := records[lo:hi]
		b := &writer{order: l.order}
		if l.spec.BigBed {
			for _, r := range group {
				b.u32(r.chrom)
				b.u32(r.start)
				b.u32(r.end)
				b.bytes([]byte(r.rest))
				b.u8(0)
			}
		} else {
			b.u32(group[0].chrom)
			b.u32(group[0].start)
			b.u32(maxEnd(group))
			b.u32(0)
			b.u32(0)
			b.u8(1)
			b.u8(0)
			b.u16(uint16(len(group)))
			for _, r := range group {
				b.u32(r.start)
				b.u32(r.end)
				b.f32(r.value)
			}
		}
		leaves = append(leaves, l.writeBlock(b.buf, group[0].chrom, group[0].start, maxEnd(group)))
	})
	return leaves
}

func (l *layout) writeSummaryBlocks(summaries []summary) []leafItem {
	l.w.u32(uint32(len(summaries)))
	var leaves []leafItem
	forEachGroup(len(summaries), l.perBlock, func(i, j int) bool {
		return summaries[i].chrom == summaries[j].chrom
	}, func(lo, hi int) {
		group := summaries[lo:hi]
		b := &writer{order: l.order}
		end := uint32(0)
		for _, s := range group {
			b.u32(s.chrom)
			b.u32(s.start)
			b.u32(s.end)
			b.u32(uint32(s.validCount))
			b.f32(float32(s.min))
			b.f32(float32(s.max))
			b.f32(float32(s.sum))
			b.f32(float32(s.sumSquares))
			if s.end > end {
				end = s.end
			}
		}
		leaves = append(leaves, l.writeBlock(b.buf, group[0].chrom, group[0].start, end))
	})
	return leaves
}

func (l *layout) writeCIRTree(leaves []leafItem) {
	w := l.w
	base := w.len()
	b := l.blockSize

	bounds := leafItem{}
	if len(leaves) > 0 {
		bounds = merge(leaves)
	}
	w.u32(CIRTreeMagic)
	w.u32(uint32(b))
	w.u64(uint64(len(leaves)))
	w.u32(bounds.startChrom)
	w.u32(bounds.startBase)
	w.u32(bounds.endChrom)
	w.u32(bounds.endBase)
	w.u64(base)
	w.u32(uint32(l.perBlock))
	w.u32(0)

	levels := [][]leafItem{leaves}
	for len(levels[len(levels)-1]) > b {
		below := levels[len(levels)-1]
		var parents []leafItem
		for i := 0; i < len(below); i += b {
			hi := i + b
			if hi > len(below) {
				hi = len(below)
			}
			parent := merge(below[i:hi])
			parent.child = i / b
			parents = append(parents, parent)
		}
		levels = append(levels, parents)
	}

	size := func(k int) uint64 {
		if k == 0 {
			return uint64(4 + b*32)
		}
		return uint64(4 + b*24)
	}
	starts := levelStarts(base+48, levels, size, b)
	for k := len(levels) - 1; k >= 0; k-- {
		items := levels[k]
		forEachNode(len(items), b, func(lo, hi int) {
			w.u8(boolByte(k == 0))
			w.u8(0)
			w.u16(uint16(hi - lo))
			for _, it := range items[lo:hi] {
				w.u32(it.startChrom)
				w.u32(it.startBase)
				w.u32(it.endChrom)
				w.u32(it.endBase)
				if k == 0 {
					w.u64(it.offset)
					w.u64(it.size)
				} else {
					w.u64(starts[k-1] + uint64(it.child)*size(k-1))
				}
			}
			itemSize := 24
			if k == 0 {
				itemSize = 32
			}
			w.zeros((b - (hi - lo)) * itemSize)
		})
	}
}

// levelStarts returns the file offset of the first node of each level when
// the levels are written from the root down starting at base.
func levelStarts[T any](base uint64, levels [][]T, nodeSize func(int) uint64, blockSize int) []uint64 {
	starts := make([]uint64, len(levels))
	offset := base
	for k := len(levels) - 1; k >= 0; k-- {
		starts[k] = offset
		offset += uint64(nodeCount(len(levels[k]), blockSize)) * nodeSize(k)
	}
	return starts
}

func nodeCount(items, blockSize int) int {
	if items == 0 {
		return 1
	}
	return (items + blockSize - 1) / blockSize
}

// forEachNode calls fn with the bounds of the items in each node.  A level
// without items still has one empty node.
func forEachNode(items, blockSize int, fn func(lo, hi int)) {
	if items == 0 {
		fn(0, 0)
		return
	}
	for lo := 0; lo < items; lo += blockSize {
		hi := lo + blockSize
		if hi > items {
			hi = items
		}
		fn(lo, hi)
	}
}

// forEachGroup calls fn with runs of at most n items for which same holds
// against the first item of the run.
func forEachGroup(items, n int, same func(i, j int) bool, fn func(lo, hi int)) {
	for lo := 0; lo < items; {
		hi := lo + 1
		for hi < items && hi-lo < n && same(lo, hi) {
			hi++
		}
		fn(lo, hi)
		lo = hi
	}
}

func merge(items []leafItem) leafItem {
	m := items[0]
	for _, it := range items[1:] {
		if it.startChrom < m.startChrom || (it.startChrom == m.startChrom && it.startBase < m.startBase) {
			m.startChrom, m.startBase = it.startChrom, it.startBase
		}
		if it.endChrom > m.endChrom || (it.endChrom == m.endChrom && it.endBase > m.endBase) {
			m.endChrom, m.endBase = it.endChrom, it.endBase
		}
	}
	return m
}

func maxEnd(records []placed) uint32 {
	end := uint32(0)
	for _, r := range records {
		if r.end > end {
			end = r.end
		}
	}
	return end
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

type summary struct {
	chrom      uint32
	start, end uint32
	validCount uint64
	min, max   float64
	sum        float64
	sumSquares float64
}

func (s *summary) add(value float64, bases uint32) {
	if s.validCount == 0 {
		s.min, s.max = value, value
	}
	s.min = math.Min(s.min, value)
	s.max = math.Max(s.max, value)
	s.validCount += uint64(bases)
	s.sum += value * float64(bases)
	s.sumSquares += value * value * float64(bases)
}

func total(records []placed) summary {
	var s summary
	for _, r := range records {
		s.add(float64(r.value), r.end-r.start)
	}
	return s
}

// summarize bins the records into windows of reduction bases.  Only windows
// that cover some data are returned.
func summarize(records []placed, reduction uint32) []summary {
	var out []summary
	index := make(map[[2]uint32]int)
	for _, r := range records {
		for bin := r.start / reduction; bin*reduction < r.end; bin++ {
			lo, hi := bin*reduction, (bin+1)*reduction
			if r.start > lo {
				lo = r.start
			}
			if r.end < hi {
				hi = r.end
			}
			key := [2]uint32{r.chrom, bin}
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, summary{chrom: r.chrom, start: bin * reduction, end: (bin + 1) * reduction})
			}
			out[i].add(float64(r.value), hi-lo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].chrom != out[j].chrom {
			return out[i].chrom < out[j].chrom
		}
		return out[i].start < out[j].start
	})
	return out
}

type writer struct {
	order binary.ByteOrder
	buf   []byte
}

func (w *writer) len() uint64       { return uint64(len(w.buf)) }
func (w *writer) bytes(data []byte) { w.buf = append(w.buf, data...) }
func (w *writer) zeros(n int)       { w.buf = append(w.buf, make([]byte, n)...) }
func (w *writer) u8(v uint8)        { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.bytes(b[:])
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.bytes(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.bytes(b[:])
}

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }
