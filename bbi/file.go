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

// Package bbi reads BigWig and BigBed files, the members of the BBI family
// of indexed genomic data formats.
//
// A File is opened over a Source, which serves byte ranges of the file.  Only
// the fixed header, the zoom level table, the summary and the chromosome
// tree are read on open; everything else is read on demand when a query
// needs it and the index nodes that every query touches are kept in memory.
// A File is safe for concurrent use.
package bbi

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/googlegenomics/bigwig/internal/genomics"
	"github.com/googlegenomics/bigwig/internal/inflate"
)

// DefaultChunkSizeLimit is the default maximum number of bytes requested
// from a Source in one fetch.
const DefaultChunkSizeLimit = 30000000

// Source serves byte ranges of a single file.
type Source interface {
	// Fetch returns exactly length bytes starting at offset.  Fewer bytes
	// must be reported as an error.
	Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error)
}

// Sizer is implemented by sources that know the size of their file.  A size
// of zero means that the size is unknown.
type Sizer interface {
	Size(ctx context.Context) (uint64, error)
}

// Normalizer maps a chromosome name to the canonical form used for lookups.
type Normalizer func(string) string

type options struct {
	limit     uint32
	normalize Normalizer
	size      uint64
}

// Option configures Open.
type Option func(*options)

// WithChunkSizeLimit sets the maximum number of bytes requested in a single
// fetch.  Larger fetches fail with a SizeLimitError without reaching the
// Source.
func WithChunkSizeLimit(limit uint32) Option {
	return func(o *options) { o.limit = limit }
}

// WithNormalizer replaces genomics.CanonicalName as the chromosome name
// normalizer.
func WithNormalizer(normalize Normalizer) Option {
	return func(o *options) { o.normalize = normalize }
}

// WithFileSize sets the size of the file, overriding the Source's Sizer.
func WithFileSize(size uint64) Option {
	return func(o *options) { o.size = size }
}

// File is an opened BigWig or BigBed file.
type File struct {
	source    Source
	header    *Header
	stats     *Stats
	size      uint64
	limit     uint32
	normalize Normalizer

	chroms lazy[*ChromIndex]

	mu     sync.Mutex
	views  map[viewKey]*View
	scales map[float64]*View
}

// Open reads the header, summary and chromosome index of the file served by
// source.  Structural problems are reported as a *FormatError.
func Open(ctx context.Context, source Source, opts ...Option) (*File, error) {
	o := options{limit: DefaultChunkSizeLimit, normalize: genomics.CanonicalName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.size == 0 {
		if sizer, ok := source.(Sizer); ok {
			size, err := sizer.Size(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading file size: %w", err)
			}
			o.size = size
		}
	}

	f := &File{
		source:    source,
		size:      o.size,
		limit:     o.limit,
		normalize: o.normalize,
		views:     make(map[viewKey]*View),
		scales:    make(map[float64]*View),
	}
	if err := f.readHeader(ctx); err != nil {
		return nil, err
	}
	if _, err := f.chromIndex(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) readHeader(ctx context.Context) error {
	length := uint64(headerFetchSize)
	if f.size > 0 && f.size < length {
		length = f.size
	}
	data, err := f.fetch(ctx, 0, length)
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	need, err := headerLength(data)
	if err != nil {
		return err
	}
	if need > uint64(len(data)) && (f.size == 0 || need <= f.size) {
		if data, err = f.fetch(ctx, 0, need); err != nil {
			return fmt.Errorf("reading zoom table: %w", err)
		}
	}
	if f.header, err = ParseHeader(data); err != nil {
		return err
	}

	offset := f.header.TotalSummaryOffset
	if offset == 0 {
		return nil
	}
	var raw []byte
	if offset+summarySize <= uint64(len(data)) {
		raw = data[offset : offset+summarySize]
	} else if raw, err = f.fetch(ctx, offset, summarySize); err != nil {
		return fmt.Errorf("reading total summary: %w", err)
	}
	summary, err := parseSummary(raw, f.header.ByteOrder)
	if err != nil {
		return err
	}
	f.stats = newStats(summary)
	return nil
}

func (f *File) chromIndex(ctx context.Context) (*ChromIndex, error) {
	return f.chroms.get(ctx, func(ctx context.Context) (*ChromIndex, error) {
		start := f.header.ChromTreeOffset
		end := (f.header.UnzoomedDataOffset + 3) &^ 3
		if f.size > 0 && end > f.size {
			end = f.size
		}
		if end <= start {
			return nil, formatErrorf(TruncatedChromTree, "tree at offset %d ends at %d", start, end)
		}
		data, err := f.fetch(ctx, start, end-start)
		if err != nil {
			return nil, fmt.Errorf("reading chromosome tree: %w", err)
		}
		return parseChromTree(data, f.header.ByteOrder, start, f.normalize)
	})
}

// fetch reads length bytes at offset, refusing requests over the chunk size
// limit before they reach the source.
func (f *File) fetch(ctx context.Context, offset, length uint64) ([]byte, error) {
	if length > uint64(f.limit) {
		return nil, &SizeLimitError{Offset: offset, Length: length, Limit: f.limit}
	}
	data, err := f.source.Fetch(ctx, offset, uint32(length))
	if err != nil {
		return nil, fmt.Errorf("fetching %d bytes at offset %d: %w", length, offset, err)
	}
	if uint64(len(data)) != length {
		return nil, fmt.Errorf("fetching %d bytes at offset %d: got %d bytes: %w", length, offset, len(data), io.ErrUnexpectedEOF)
	}
	return data, nil
}

// Header returns the parsed file header, which must not be modified.
func (f *File) Header() *Header {
	return f.header
}

// Format returns the member of the BBI family stored in the file.
func (f *File) Format() Format {
	return f.header.Format
}

// Size returns the size of the file in bytes, or zero if it is not known.
func (f *File) Size() uint64 {
	return f.size
}

// Stats returns the summary over all data in the file, or ErrNoSummary if
// the file does not carry one.
func (f *File) Stats() (*Stats, error) {
	if f.stats == nil {
		return nil, ErrNoSummary
	}
	stats := *f.stats
	return &stats, nil
}

// Chromosomes returns every chromosome in the file ordered by id.
func (f *File) Chromosomes(ctx context.Context) ([]ChromRecord, error) {
	index, err := f.chromIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index.Records(), nil
}

// HasReference reports whether the file has data for the chromosome name.
func (f *File) HasReference(ctx context.Context, name string) (bool, error) {
	index, err := f.chromIndex(ctx)
	if err != nil {
		return false, err
	}
	_, ok := index.Lookup(f.normalize(name))
	return ok, nil
}

// The autoSql text has no stored length; at most this many bytes are read.
const maximumAutoSQLSize = 64 * 1024

// AutoSQL returns the autoSql table definition of a BigBed file, or the
// empty string if the file has none.
func (f *File) AutoSQL(ctx context.Context) (string, error) {
	offset := f.header.AutoSQLOffset
	if offset == 0 {
		return "", nil
	}
	end := offset + maximumAutoSQLSize
	if chroms := f.header.ChromTreeOffset; chroms > offset && chroms < end {
		end = chroms
	}
	if f.size > 0 && end > f.size {
		end = f.size
	}
	if end <= offset {
		return "", formatErrorf(TruncatedHeader, "autoSql offset %d is past the end of the file", offset)
	}
	data, err := f.fetch(ctx, offset, end-offset)
	if err != nil {
		return "", fmt.Errorf("reading autoSql: %w", err)
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// ReadBlock returns the uncompressed contents of a data block.
func (f *File) ReadBlock(ctx context.Context, block Block) ([]byte, error) {
	data, err := f.fetch(ctx, block.Offset, block.Size)
	if err != nil {
		return nil, fmt.Errorf("reading block: %w", err)
	}
	if f.header.UncompressBufSize == 0 {
		return data, nil
	}
	out, err := inflate.Inflate(data, f.header.UncompressBufSize)
	if err != nil {
		return nil, formatErrorf(BadBlock, "block at offset %d: %v", block.Offset, err)
	}
	return out, nil
}
