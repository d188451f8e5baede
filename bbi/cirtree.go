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

	bin "github.com/googlegenomics/bigwig/internal/binary"
	"github.com/googlegenomics/bigwig/internal/genomics"
)

const (
	cirHeaderSize  = 48
	nodeHeaderSize = 4
	leafItemSize   = 32
	indexItemSize  = 24
)

// cirHeader is the header of a chromosome id R-tree (CIR tree).
type cirHeader struct {
	blockSize     uint32
	itemCount     uint64
	bounds        genomics.Span
	endFileOffset uint64
	itemsPerSlot  uint32
}

func parseCIRHeader(data []byte, order binary.ByteOrder) (*cirHeader, error) {
	c := bin.NewCursor(data, order)
	if magic := c.Uint32(); c.Err() == nil && magic != cirTreeMagic {
		return nil, formatErrorf(BadIndexMagic, "got 0x%08x, want 0x%08x", magic, uint32(cirTreeMagic))
	}
	h := &cirHeader{}
	h.blockSize = c.Uint32()
	h.itemCount = c.Uint64()
	h.bounds = readSpan(c)
	h.endFileOffset = c.Uint64()
	h.itemsPerSlot = c.Uint32()
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedIndex, "reading header: %v", err)
	}
	if h.blockSize == 0 {
		return nil, formatErrorf(BadIndexMagic, "block size is zero")
	}
	return h, nil
}

// maximumNodeSize is the number of bytes a node may occupy on disk, which is
// the size of a leaf node with every slot used.
func (h *cirHeader) maximumNodeSize() uint64 {
	return nodeHeaderSize + uint64(h.blockSize)*leafItemSize
}

// Block identifies a single data block stored in the file.
type Block struct {
	Offset uint64
	Size   uint64
}

type cirItem struct {
	span genomics.Span
	// offset is the child node offset for index items and the data block
	// offset for leaf items.
	offset uint64
	size   uint64
}

type cirNode struct {
	leaf  bool
	items []cirItem
}

// parseCIRNode parses the node at the start of data.  The node starts at
// file offset offset, which is only used in error messages.
func parseCIRNode(data []byte, order binary.ByteOrder, h *cirHeader, offset uint64) (*cirNode, error) {
	c := bin.NewCursor(data, order)
	node := &cirNode{leaf: c.Uint8() != 0}
	c.Skip(1)
	count := c.Uint16()
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedIndex, "node at offset %d: %v", offset, err)
	}
	if uint32(count) > h.blockSize {
		return nil, formatErrorf(TruncatedIndex, "node at offset %d has %d items, block size is %d", offset, count, h.blockSize)
	}
	itemSize := indexItemSize
	if node.leaf {
		itemSize = leafItemSize
	}
	if need := nodeHeaderSize + int(count)*itemSize; need > len(data) {
		return nil, formatErrorf(TruncatedIndex, "node at offset %d needs %d bytes, %d available", offset, need, len(data))
	}

	node.items = make([]cirItem, count)
	for i := range node.items {
		item := &node.items[i]
		item.span = readSpan(c)
		item.offset = c.Uint64()
		if node.leaf {
			item.size = c.Uint64()
		}
	}
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedIndex, "node at offset %d: %v", offset, err)
	}
	return node, nil
}

// nodeSize returns the number of bytes used by the items of a node with the
// given header bytes.
func nodeSize(header []byte, order binary.ByteOrder) uint64 {
	c := bin.NewCursor(header, order)
	itemSize := uint64(indexItemSize)
	if c.Uint8() != 0 {
		itemSize = leafItemSize
	}
	c.Skip(1)
	return nodeHeaderSize + uint64(c.Uint16())*itemSize
}

func readSpan(c *bin.Cursor) genomics.Span {
	var s genomics.Span
	s.Start.ReferenceID = c.Uint32()
	s.Start.Base = c.Uint32()
	s.End.ReferenceID = c.Uint32()
	s.End.Base = c.Uint32()
	return s
}
