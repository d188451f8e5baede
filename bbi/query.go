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

	"github.com/googlegenomics/bigwig/internal/feature"
	"github.com/googlegenomics/bigwig/internal/genomics"
	"golang.org/x/sync/errgroup"
)

// Query selects the data overlapping [Start, End) on one chromosome.
type Query struct {
	// Reference is the chromosome name.  It is normalized before lookup.
	Reference  string
	Start, End uint32

	// The resolution of the answer is given either as the number of bases
	// covered by one pixel or as its reciprocal.  BasesPerSpan takes
	// precedence; if neither is set the scale is 1.
	BasesPerSpan float64
	Scale        float64
}

func (q Query) scale() float64 {
	switch {
	case q.BasesPerSpan > 0:
		return 1 / q.BasesPerSpan
	case q.Scale > 0:
		return q.Scale
	}
	return 1
}

// Result is the answer to a Query.
type Result struct {
	// Found reports whether the chromosome exists in the file.  A missing
	// chromosome gives an empty result.
	Found bool
	Chrom ChromRecord

	Zoomed         bool
	ReductionLevel uint32

	// Blocks holds the data blocks that overlap the query, in file order.
	Blocks []Block
	// UncompressBufSize is zero when the blocks are stored uncompressed.
	UncompressBufSize uint32

	// Features is only filled in by File.Features.
	Features []Feature
}

// Feature is one decoded record.  Zoom level records carry a summary of the
// values in [Start, End) and report their mean as Value.
type Feature struct {
	ChromID    uint32
	Start, End uint32
	Value      float64

	ValidCount uint32
	Min, Max   float64
	Sum        float64
	SumSquares float64

	// Rest holds the fields of a BigBed record that follow its coordinates.
	Rest string
}

// Blocks locates the data blocks that answer q.
func (f *File) Blocks(ctx context.Context, q Query) (*Result, error) {
	index, err := f.chromIndex(ctx)
	if err != nil {
		return nil, err
	}
	view := f.View(q.scale())
	result := &Result{
		Zoomed:            view.Zoomed(),
		ReductionLevel:    view.ReductionLevel(),
		UncompressBufSize: f.header.UncompressBufSize,
	}
	chrom, ok := index.Lookup(f.normalize(q.Reference))
	if !ok {
		return result, nil
	}
	result.Found, result.Chrom = true, chrom

	region := genomics.Region{ReferenceID: chrom.ID, Start: q.Start, End: q.End}
	if result.Blocks, err = view.findBlocks(ctx, region); err != nil {
		return nil, err
	}
	return result, nil
}

// Number of blocks read at the same time by Features.
const blockReaders = 8

// Features answers q with the decoded records that overlap it.  Blocks are
// read concurrently and their records are returned in file order.
func (f *File) Features(ctx context.Context, q Query) (*Result, error) {
	result, err := f.Blocks(ctx, q)
	if err != nil {
		return nil, err
	}

	decoded := make([][]Feature, len(result.Blocks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(blockReaders)
	for i, block := range result.Blocks {
		i, block := i, block
		g.Go(func() error {
			data, err := f.ReadBlock(ctx, block)
			if err != nil {
				return err
			}
			features, err := f.decodeBlock(data, result.Zoomed)
			if err != nil {
				return formatErrorf(BadBlock, "block at offset %d: %v", block.Offset, err)
			}
			decoded[i] = filterFeatures(features, result.Chrom.ID, q.Start, q.End)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, features := range decoded {
		result.Features = append(result.Features, features...)
	}
	return result, nil
}

func (f *File) decodeBlock(data []byte, zoomed bool) ([]Feature, error) {
	order := f.header.ByteOrder
	switch {
	case zoomed:
		summaries, err := feature.DecodeSummaries(data, order)
		if err != nil {
			return nil, err
		}
		features := make([]Feature, len(summaries))
		for i, s := range summaries {
			features[i] = Feature{
				ChromID:    s.ChromID,
				Start:      s.Start,
				End:        s.End,
				ValidCount: s.ValidCount,
				Min:        float64(s.Min),
				Max:        float64(s.Max),
				Sum:        float64(s.Sum),
				SumSquares: float64(s.SumSquares),
			}
			if s.ValidCount > 0 {
				features[i].Value = float64(s.Sum) / float64(s.ValidCount)
			}
		}
		return features, nil

	case f.header.Format == BigBed:
		beds, err := feature.DecodeBeds(data, order)
		if err != nil {
			return nil, err
		}
		features := make([]Feature, len(beds))
		for i, b := range beds {
			features[i] = Feature{ChromID: b.ChromID, Start: b.Start, End: b.End, Rest: b.Rest}
		}
		return features, nil

	default:
		values, err := feature.DecodeValues(data, order)
		if err != nil {
			return nil, err
		}
		features := make([]Feature, len(values))
		for i, v := range values {
			features[i] = Feature{ChromID: v.ChromID, Start: v.Start, End: v.End, Value: float64(v.Value)}
		}
		return features, nil
	}
}

// filterFeatures keeps the features on chrom that overlap [start, end),
// reusing the storage of features.
func filterFeatures(features []Feature, chrom, start, end uint32) []Feature {
	kept := features[:0]
	for _, f := range features {
		if f.ChromID == chrom && f.Start < end && f.End > start {
			kept = append(kept, f)
		}
	}
	return kept
}
