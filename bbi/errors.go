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
	"errors"
	"fmt"
)

// FormatErrorKind classifies a structural problem with a file.
type FormatErrorKind int

// Kinds of FormatError.
const (
	NotBigWigFamily FormatErrorKind = iota + 1
	TruncatedHeader
	BadChromTreeMagic
	TruncatedChromTree
	BadIndexMagic
	TruncatedIndex
	TreeTooDeep
	BadBlock
)

var formatErrorNames = map[FormatErrorKind]string{
	NotBigWigFamily:    "not a BigWig or BigBed file",
	TruncatedHeader:    "truncated header",
	BadChromTreeMagic:  "bad chromosome tree magic",
	TruncatedChromTree: "truncated chromosome tree",
	BadIndexMagic:      "bad index magic",
	TruncatedIndex:     "truncated index",
	TreeTooDeep:        "tree too deep",
	BadBlock:           "bad data block",
}

func (k FormatErrorKind) String() string {
	if name, ok := formatErrorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FormatErrorKind(%d)", int(k))
}

// FormatError reports that a file does not have the expected structure.
// Format errors are fatal for the file that produced them.
type FormatError struct {
	Kind   FormatErrorKind
	Detail string
}

func (err *FormatError) Error() string {
	if err.Detail == "" {
		return err.Kind.String()
	}
	return fmt.Sprintf("%v: %s", err.Kind, err.Detail)
}

// Is reports whether target is a FormatError of the same kind, which allows
// errors.Is(err, &FormatError{Kind: TruncatedIndex}).
func (err *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	return ok && t.Kind == err.Kind
}

func formatErrorf(kind FormatErrorKind, format string, args ...interface{}) error {
	return &FormatError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ErrSizeLimitExceeded is matched by every SizeLimitError.
var ErrSizeLimitExceeded = errors.New("fetch exceeds chunk size limit")

// SizeLimitError reports a fetch that was rejected before any I/O because
// it was larger than the configured chunk size limit.
type SizeLimitError struct {
	Offset uint64
	Length uint64
	Limit  uint32
}

func (err *SizeLimitError) Error() string {
	return fmt.Sprintf("fetching %d bytes at offset %d: limit is %d bytes", err.Length, err.Offset, err.Limit)
}

// Unwrap returns ErrSizeLimitExceeded.
func (err *SizeLimitError) Unwrap() error {
	return ErrSizeLimitExceeded
}

// ErrNoSummary is returned by Stats when the file carries no total summary.
var ErrNoSummary = errors.New("no summary available")
