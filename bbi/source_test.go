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
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fetchRecord struct {
	offset uint64
	length uint32
}

// memSource serves a file from memory and records every fetch.  When gate is
// not nil every fetch at gateOffset waits until the gate is closed, and the
// first such fetch is announced on started if it is not nil.
type memSource struct {
	data []byte

	gate       chan struct{}
	gateOffset uint64
	started    chan struct{}

	mu      sync.Mutex
	fetches []fetchRecord
}

func (s *memSource) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, fetchRecord{offset, length})
	s.mu.Unlock()

	if s.gate != nil && offset == s.gateOffset {
		if s.started != nil {
			select {
			case s.started <- struct{}{}:
			default:
			}
		}
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	end := offset + uint64(length)
	if end > uint64(len(s.data)) {
		return nil, fmt.Errorf("reading [%d, %d) of %d bytes: %w", offset, end, len(s.data), io.ErrUnexpectedEOF)
	}
	return s.data[offset:end], nil
}

// waitEntered waits until n callers have bumped entered, then gives them time
// to block on whatever they are waiting for.
func waitEntered(t *testing.T, entered *int32, n int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(entered) < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d callers started", atomic.LoadInt32(entered), n)
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
}

func (s *memSource) count(offset uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.fetches {
		if f.offset == offset {
			n++
		}
	}
	return n
}

func (s *memSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

// sizedSource is a memSource that also reports its size.
type sizedSource struct {
	*memSource
}

func (s sizedSource) Size(context.Context) (uint64, error) {
	return uint64(len(s.data)), nil
}

func openBytes(t *testing.T, data []byte, opts ...Option) (*File, *memSource) {
	t.Helper()
	src := &memSource{data: data}
	f, err := Open(context.Background(), sizedSource{src}, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return f, src
}
