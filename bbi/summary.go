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
	"math"

	bin "github.com/googlegenomics/bigwig/internal/binary"
)

const summarySize = 40

// Summary holds the statistics over all data in a file.
type Summary struct {
	BasesCovered uint64
	Min, Max     float64
	Sum          float64
	SumSquares   float64
}

func parseSummary(data []byte, order binary.ByteOrder) (*Summary, error) {
	c := bin.NewCursor(data, order)
	s := &Summary{
		BasesCovered: c.Uint64(),
		Min:          c.Float64(),
		Max:          c.Float64(),
		Sum:          c.Float64(),
		SumSquares:   c.Float64(),
	}
	if err := c.Err(); err != nil {
		return nil, formatErrorf(TruncatedHeader, "total summary: %v", err)
	}
	return s, nil
}

// Stats is a Summary together with the derived mean and standard deviation.
type Stats struct {
	Summary
	Mean   float64
	StdDev float64
}

func newStats(s *Summary) *Stats {
	stats := &Stats{Summary: *s}
	if s.BasesCovered > 0 {
		stats.Mean = s.Sum / float64(s.BasesCovered)
	}
	stats.StdDev = stdDev(s.Sum, s.SumSquares, s.BasesCovered)
	return stats
}

// stdDev returns the sample standard deviation of n values given their sum
// and sum of squares.
func stdDev(sum, sumSquares float64, n uint64) float64 {
	if n == 0 {
		return 0
	}
	count := float64(n)
	variance := sumSquares - sum*sum/count
	if n > 1 {
		variance /= count - 1
	}
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}
