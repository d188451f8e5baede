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
	"math"

	"github.com/googlegenomics/bigwig/internal/genomics"
)

// View is one spatial index of a file: either the index over the base pair
// data or the index of one zoom level.  A View loads its index header and
// root node on first use and keeps them for the lifetime of the file.
type View struct {
	file *File

	// offset is the file offset of the CIR tree header.  extent is the number
	// of bytes the index may occupy from offset; zero means that the extent is
	// not known and every node is read header first.
	offset uint64
	extent uint64

	zoomed    bool
	reduction uint32

	header lazy[*cirHeader]
	root   lazy[*cirNode]
}

// Zoomed reports whether the view indexes zoom level summaries.
func (v *View) Zoomed() bool {
	return v.zoomed
}

// ReductionLevel returns the number of bases summarised by each record in
// the view, or zero for the unzoomed view.
func (v *View) ReductionLevel() uint32 {
	return v.reduction
}

func (v *View) end() uint64 {
	if v.extent == 0 {
		return math.MaxUint64
	}
	return v.offset + v.extent
}

func (v *View) loadHeader(ctx context.Context) (*cirHeader, error) {
	if v.extent != 0 && v.extent < cirHeaderSize {
		return nil, formatErrorf(TruncatedIndex, "index at offset %d is only %d bytes", v.offset, v.extent)
	}
	data, err := v.file.fetch(ctx, v.offset, cirHeaderSize)
	if err != nil {
		return nil, err
	}
	return parseCIRHeader(data, v.file.header.ByteOrder)
}

func (v *View) checkNodeOffset(offset uint64) error {
	if offset < v.offset+cirHeaderSize || offset >= v.end() {
		return formatErrorf(TruncatedIndex, "node offset %d is outside the index at [%d, %d)", offset, v.offset, v.end())
	}
	return nil
}

func (v *View) readNode(ctx context.Context, h *cirHeader, offset uint64) (*cirNode, error) {
	if err := v.checkNodeOffset(offset); err != nil {
		return nil, err
	}
	order := v.file.header.ByteOrder
	length := h.maximumNodeSize()
	if v.extent == 0 {
		head, err := v.file.fetch(ctx, offset, nodeHeaderSize)
		if err != nil {
			return nil, err
		}
		length = nodeSize(head, order)
	} else if end := v.end(); offset+length > end {
		length = end - offset
	}
	data, err := v.file.fetch(ctx, offset, length)
	if err != nil {
		return nil, err
	}
	return parseCIRNode(data, order, h, offset)
}

// readLevel reads the nodes at offsets, which are in on-disk order.  When
// the extent is known and the nodes fit within the chunk size limit they are
// read with a single fetch.
func (v *View) readLevel(ctx context.Context, h *cirHeader, offsets []uint64) ([]*cirNode, error) {
	if len(offsets) == 0 {
		return nil, nil
	}
	lo, hi := offsets[0], offsets[0]
	for _, offset := range offsets {
		if err := v.checkNodeOffset(offset); err != nil {
			return nil, err
		}
		if offset < lo {
			lo = offset
		}
		if offset > hi {
			hi = offset
		}
	}

	nodes := make([]*cirNode, len(offsets))
	end := hi + h.maximumNodeSize()
	if end > v.end() {
		end = v.end()
	}
	if v.extent == 0 || len(offsets) == 1 || end-lo > uint64(v.file.limit) {
		for i, offset := range offsets {
			node, err := v.readNode(ctx, h, offset)
			if err != nil {
				return nil, err
			}
			nodes[i] = node
		}
		return nodes, nil
	}

	data, err := v.file.fetch(ctx, lo, end-lo)
	if err != nil {
		return nil, err
	}
	for i, offset := range offsets {
		node, err := parseCIRNode(data[offset-lo:], v.file.header.ByteOrder, h, offset)
		if err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	return nodes, nil
}

// findBlocks returns every data block whose bounds overlap region, in
// on-disk order.
func (v *View) findBlocks(ctx context.Context, region genomics.Region) ([]Block, error) {
	h, err := v.header.get(ctx, v.loadHeader)
	if err != nil {
		return nil, err
	}
	root, err := v.root.get(ctx, func(ctx context.Context) (*cirNode, error) {
		return v.readNode(ctx, h, v.offset+cirHeaderSize)
	})
	if err != nil {
		return nil, err
	}

	var blocks []Block
	level := []*cirNode{root}
	for depth := 0; len(level) > 0; depth++ {
		if depth >= maximumTreeDepth {
			return nil, formatErrorf(TreeTooDeep, "index at offset %d is deeper than %d levels", v.offset, maximumTreeDepth)
		}
		var children []uint64
		seen := make(map[uint64]bool)
		for _, node := range level {
			for _, item := range node.items {
				if !item.span.Overlaps(region) {
					continue
				}
				if node.leaf {
					blocks = append(blocks, Block{Offset: item.offset, Size: item.size})
					continue
				}
				if !seen[item.offset] {
					seen[item.offset] = true
					children = append(children, item.offset)
				}
			}
		}
		if level, err = v.readLevel(ctx, h, children); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}
