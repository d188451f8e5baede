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
	"sync"

	"golang.org/x/sync/singleflight"
)

// lazy holds a value that is loaded on first use.  Concurrent callers that
// arrive while a load is in flight wait for it instead of starting their own;
// once a load succeeds its value is returned to every later caller without
// calling the loader again.  A failed load is not cached.
type lazy[T any] struct {
	mu     sync.Mutex
	loaded bool
	value  T
	group  singleflight.Group
}

func (l *lazy[T]) cached() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}

func (l *lazy[T]) get(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cached(); ok {
		return v, nil
	}
	v, err, _ := l.group.Do("", func() (interface{}, error) {
		// A load may have completed between the check above and this call.
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.value, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
