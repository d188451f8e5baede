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

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/googlegenomics/bigwig/bbi"
)

// writeFeatures writes bedGraph lines for BigWig data, BED lines for BigBed
// data, and chrom, start, end, validCount, min, max, sum and sumSquares
// columns for zoomed data.
func writeFeatures(w io.Writer, format bbi.Format, result *bbi.Result) error {
	name := result.Chrom.Name
	for _, f := range result.Features {
		var err error
		switch {
		case result.Zoomed:
			_, err = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n", name, f.Start, f.End, f.ValidCount,
				formatFloat(f.Min), formatFloat(f.Max), formatFloat(f.Sum), formatFloat(f.SumSquares))
		case format == bbi.BigBed && f.Rest != "":
			_, err = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, f.Start, f.End, f.Rest)
		case format == bbi.BigBed:
			_, err = fmt.Fprintf(w, "%s\t%d\t%d\n", name, f.Start, f.End)
		default:
			_, err = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, f.Start, f.End, formatFloat(f.Value))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeBlocks(w io.Writer, result *bbi.Result) error {
	for _, b := range result.Blocks {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", b.Offset, b.Size); err != nil {
			return err
		}
	}
	return nil
}

func writeChromosomes(w io.Writer, chroms []bbi.ChromRecord) error {
	for _, c := range chroms {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Length); err != nil {
			return err
		}
	}
	return nil
}

func writeStats(w io.Writer, s *bbi.Stats) error {
	_, err := fmt.Fprintf(w, "basesCovered\t%d\nmin\t%s\nmax\t%s\nmean\t%s\nstdDev\t%s\n",
		s.BasesCovered, formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.Mean), formatFloat(s.StdDev))
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func blockBytes(result *bbi.Result) int64 {
	var n int64
	for _, b := range result.Blocks {
		n += int64(b.Size)
	}
	return n
}

func humanSize(n int64) string {
	kb := n / 1024
	mb := kb / 1024
	gb := mb / 1024
	if gb > 1 {
		return fmt.Sprintf("%d GB", gb)
	}
	if mb > 1 {
		return fmt.Sprintf("%d MB", mb)
	}
	if kb > 1 {
		return fmt.Sprintf("%d KB", kb)
	}
	return fmt.Sprintf("%d bytes", n)
}
