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
	"fmt"

	bin "github.com/googlegenomics/bigwig/internal/binary"
)

// Magic numbers, as read in the file's own byte order.
const (
	BigWigMagic = 0x888FFC26
	BigBedMagic = 0x8789F2EB

	chromTreeMagic = 0x78CA8C91
	cirTreeMagic   = 0x2468ACE0
)

const (
	// The fixed header is followed immediately by the zoom level table.
	headerSize     = 64
	zoomHeaderSize = 24

	// headerFetchSize bytes are read on open; this covers the fixed header,
	// a typical zoom table and the total summary that usually follows it.
	headerFetchSize = 512
)

// Format identifies the member of the BBI family stored in a file.
type Format int

// Supported formats.
const (
	BigWig Format = iota + 1
	BigBed
)

func (f Format) String() string {
	switch f {
	case BigWig:
		return "bigwig"
	case BigBed:
		return "bigbed"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ZoomLevel describes one precomputed summary resolution.
type ZoomLevel struct {
	// ReductionLevel is the number of bases summarised by each record.
	ReductionLevel uint32
	DataOffset     uint64
	IndexOffset    uint64
}

// Header is the fixed header of a BBI file.  It is parsed once when a file
// is opened and never modified.
type Header struct {
	Magic               uint32
	Format              Format
	Version             uint16
	ChromTreeOffset     uint64
	UnzoomedDataOffset  uint64
	UnzoomedIndexOffset uint64
	FieldCount          uint16
	DefinedFieldCount   uint16
	AutoSQLOffset       uint64
	TotalSummaryOffset  uint64
	// UncompressBufSize is the maximum size of an uncompressed data block.
	// Zero means that blocks are stored without compression.
	UncompressBufSize uint32
	ExtensionOffset   uint64
	// ZoomLevels are kept in file order, which is by increasing
	// ReductionLevel by convention.
	ZoomLevels []ZoomLevel

	// ByteOrder is the byte order detected from the magic number.  Every
	// other structure in the file is read with it.
	ByteOrder binary.ByteOrder
}

// detectFormat reads the magic number at the start of data, first in little
// endian order and then, if neither magic matches, in big endian order.
func detectFormat(data []byte) (binary.ByteOrder, Format, error) {
	if len(data) < 4 {
		return nil, 0, formatErrorf(NotBigWigFamily, "file is only %d bytes", len(data))
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(data) {
		case BigWigMagic:
			return order, BigWig, nil
		case BigBedMagic:
			return order, BigBed, nil
		}
	}
	return nil, 0, formatErrorf(NotBigWigFamily, "magic %x", data[:4])
}

// ParseHeader parses the fixed header and zoom level table at the start of
// data, which should hold the first bytes of the file.
func ParseHeader(data []byte) (*Header, error) {
	order, format, err := detectFormat(data)
	if err != nil {
		return nil, err
	}

	c := bin.NewCursor(data, order)
	h := &Header{ByteOrder: order, Format: format}
	h.Magic = c.Uint32()
	h.Version = c.Uint16()
	zoomLevels := c.Uint16()
	h.ChromTreeOffset = c.Uint64()
	h.UnzoomedDataOffset = c.Uint64()
	h.UnzoomedIndexOffset = c.Uint64()
	h.FieldCount = c.Uint16()
	h.DefinedFieldCount = c.Uint16()
	h.AutoSQLOffset = c.Uint64()
	h.TotalSummaryOffset = c.Uint64()
	h.UncompressBufSize = c.Uint32()
	h.ExtensionOffset = c.Uint64()
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedHeader, "%v", err)
	}

	h.ZoomLevels = make([]ZoomLevel, zoomLevels)
	for i := range h.ZoomLevels {
		c := c.At(headerSize + i*zoomHeaderSize)
		h.ZoomLevels[i].ReductionLevel = c.Uint32()
		c.Skip(4)
		h.ZoomLevels[i].DataOffset = c.Uint64()
		h.ZoomLevels[i].IndexOffset = c.Uint64()
		if err := c.Err(); err != nil {
			return nil, formatErrorf(TruncatedHeader, "zoom level %d: %v", i, err)
		}
	}
	return h, nil
}

// headerLength returns the number of bytes, counted from the start of the
// file, that ParseHeader needs for the header whose first bytes are in data.
func headerLength(data []byte) (uint64, error) {
	order, _, err := detectFormat(data)
	if err != nil {
		return 0, err
	}
	if len(data) < 8 {
		return 0, formatErrorf(TruncatedHeader, "file is only %d bytes", len(data))
	}
	return headerSize + uint64(order.Uint16(data[6:]))*zoomHeaderSize, nil
}
