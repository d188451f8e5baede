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

// Package httprange serves byte ranges of a remote file with HTTP range
// requests.
package httprange

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
)

// Source reads a file from a URL.  It implements bbi.Source and bbi.Sizer.
type Source struct {
	url    string
	client *http.Client
}

// New returns a source for url.  If client is nil http.DefaultClient is used;
// an authenticated client such as one from oauth2.NewClient can be passed to
// read protected files.
func New(url string, client *http.Client) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{url: url, client: client}
}

// Fetch requests length bytes starting at offset.  Servers that ignore the
// Range header and return the whole file are also supported.
func (s *Source) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	last := offset + uint64(length) - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, last))

	resp, err := s.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		data := make([]byte, length)
		if _, err := io.ReadFull(resp.Body, data); err != nil {
			return nil, fmt.Errorf("reading bytes %d-%d of %s: %w", offset, last, s.url, err)
		}
		return data, nil

	case http.StatusOK:
		if _, err := io.CopyN(ioutil.Discard, resp.Body, int64(offset)); err != nil {
			return nil, fmt.Errorf("skipping to offset %d of %s: %w", offset, s.url, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(resp.Body, data); err != nil {
			return nil, fmt.Errorf("reading bytes %d-%d of %s: %w", offset, last, s.url, err)
		}
		return data, nil

	case http.StatusRequestedRangeNotSatisfiable:
		return nil, fmt.Errorf("bytes %d-%d of %s: %w", offset, last, s.url, io.ErrUnexpectedEOF)
	}
	return nil, &StatusError{URL: s.url, StatusCode: resp.StatusCode}
}

// Size returns the Content-Length reported for a HEAD request, or zero if the
// server does not report one.
func (s *Source) Size(ctx context.Context) (uint64, error) {
	req, err := http.NewRequest(http.MethodHead, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("requesting %s: %w", s.url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: s.url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return uint64(resp.ContentLength), nil
}

// StatusError reports an unexpected HTTP response status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("requesting %s: %d %s", err.URL, err.StatusCode, http.StatusText(err.StatusCode))
}
