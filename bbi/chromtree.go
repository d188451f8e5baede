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
	"encoding/binary"
	"sort"

	bin "github.com/googlegenomics/bigwig/internal/binary"
)

const (
	// The root node of the chromosome B+ tree follows its 32 byte header.
	chromTreeRootOffset = 32

	// Trees in real files are a handful of levels deep; anything deeper is
	// treated as corrupt rather than followed.
	maximumTreeDepth = 64
)

// ChromRecord describes one chromosome (reference sequence) in a file.
type ChromRecord struct {
	// Name is the name as stored in the file.
	Name string
	// CanonicalName is Name after normalization; it is the lookup key.
	CanonicalName string
	ID            uint32
	Length        uint32
}

// ChromIndex maps chromosome names to records and back.  It is built once
// from the file's B+ tree and is read only afterwards.
type ChromIndex struct {
	byName map[string]*ChromRecord
	byID   map[uint32]*ChromRecord
}

// Lookup returns the record whose canonical name is name.
func (index *ChromIndex) Lookup(name string) (ChromRecord, bool) {
	if r, ok := index.byName[name]; ok {
		return *r, true
	}
	return ChromRecord{}, false
}

// ByID returns the record with the given numeric id.
func (index *ChromIndex) ByID(id uint32) (ChromRecord, bool) {
	if r, ok := index.byID[id]; ok {
		return *r, true
	}
	return ChromRecord{}, false
}

// Len returns the number of chromosomes that can be looked up by id.
func (index *ChromIndex) Len() int {
	return len(index.byID)
}

// Records returns every record ordered by id.
func (index *ChromIndex) Records() []ChromRecord {
	records := make([]ChromRecord, 0, len(index.byID))
	for _, r := range index.byID {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records
}

type chromTreeHeader struct {
	blockSize uint32
	keySize   uint32
	valSize   uint32
	itemCount uint64
}

// parseChromTree reads the whole chromosome B+ tree in data, which starts at
// file offset base.  Child pointers in the tree are file offsets and are
// made relative to data before they are followed.
func parseChromTree(data []byte, order binary.ByteOrder, base uint64, normalize Normalizer) (*ChromIndex, error) {
	c := bin.NewCursor(data, order)
	if magic := c.Uint32(); c.Err() == nil && magic != chromTreeMagic {
		return nil, formatErrorf(BadChromTreeMagic, "got 0x%08x, want 0x%08x", magic, uint32(chromTreeMagic))
	}
	var header chromTreeHeader
	header.blockSize = c.Uint32()
	header.keySize = c.Uint32()
	header.valSize = c.Uint32()
	header.itemCount = c.Uint64()
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedChromTree, "reading header: %v", err)
	}
	if header.valSize < 8 {
		return nil, formatErrorf(TruncatedChromTree, "value size %d is smaller than 8 bytes", header.valSize)
	}

	index := &ChromIndex{
		byName: make(map[string]*ChromRecord),
		byID:   make(map[uint32]*ChromRecord),
	}
	walker := chromTreeWalker{data: c, base: base, header: header, normalize: normalize, index: index}
	if err := walker.readNode(chromTreeRootOffset, 0); err != nil {
		return nil, err
	}
	return index, nil
}

type chromTreeWalker struct {
	data      *bin.Cursor
	base      uint64
	header    chromTreeHeader
	normalize Normalizer
	index     *ChromIndex
}

func (w *chromTreeWalker) readNode(offset uint64, depth int) error {
	if depth >= maximumTreeDepth {
		return formatErrorf(TreeTooDeep, "chromosome tree deeper than %d levels", maximumTreeDepth)
	}
	if offset >= uint64(w.data.Len()) {
		return formatErrorf(TruncatedChromTree, "node at offset %d is outside the %d byte tree", w.base+offset, w.data.Len())
	}

	c := w.data.At(int(offset))
	isLeaf := c.Uint8()
	c.Skip(1)
	count := c.Uint16()
	keySize := int(w.header.keySize)
	for i := uint16(0); i < count; i++ {
		if isLeaf != 0 {
			name := c.FixedString(keySize)
			id := c.Uint32()
			length := c.Uint32()
			c.Skip(int(w.header.valSize) - 8)
			if err := c.Err(); err != nil {
				return formatErrorf(TruncatedChromTree, "leaf item %d at offset %d: %v", i, w.base+offset, err)
			}
			record := &ChromRecord{Name: name, CanonicalName: w.normalize(name), ID: id, Length: length}
			w.index.byName[record.CanonicalName] = record
			w.index.byID[record.ID] = record
			continue
		}

		c.Skip(keySize)
		child := c.Uint64()
		if err := c.Err(); err != nil {
			return formatErrorf(TruncatedChromTree, "index item %d at offset %d: %v", i, w.base+offset, err)
		}
		if child < w.base {
			return formatErrorf(TruncatedChromTree, "child offset %d precedes the tree at %d", child, w.base)
		}
		if err := w.readNode(child-w.base, depth+1); err != nil {
			return err
		}
	}
	if err := c.Err(); err != nil {
		return formatErrorf(TruncatedChromTree, "node at offset %d: %v", w.base+offset, err)
	}
	return nil
}
