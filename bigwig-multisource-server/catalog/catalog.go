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

// Package catalog maps track ids to BigWig and BigBed files that live on
// local disk, behind HTTP URLs or in S3.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/internal/metrics"
	"github.com/googlegenomics/bigwig/sources/file"
	"github.com/googlegenomics/bigwig/sources/httprange"
	"github.com/googlegenomics/bigwig/sources/s3object"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ErrUnknownTrack is returned by Open for ids that are not in the catalog.
var ErrUnknownTrack = errors.New("unknown track")

// trackExtensions are the file name extensions picked up by FromDirectory.
var trackExtensions = []string{".bw", ".bigwig", ".bb", ".bigbed"}

// Track names a single file.  Exactly one of Path and URL is set.  URL is
// either an http(s):// or an s3://bucket/key URL.
type Track struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// Config is the YAML form of a catalog.
//
//	port: 8080
//	chunk_size_limit: 8388608
//	tracks:
//	  - id: signal
//	    path: /data/signal.bw
//	  - id: peaks
//	    url: https://example.org/peaks.bb
//	  - id: genes
//	    url: s3://tracks/genes.bb
type Config struct {
	Port           int     `yaml:"port"`
	ChunkSizeLimit uint32  `yaml:"chunk_size_limit"`
	Tracks         []Track `yaml:"tracks"`
}

// LoadConfig reads the YAML configuration at path.  Relative track paths are
// resolved against the directory holding the configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, track := range config.Tracks {
		if track.Path != "" && !filepath.IsAbs(track.Path) {
			config.Tracks[i].Path = filepath.Join(dir, track.Path)
		}
	}
	return config, nil
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if err := validate(config.Tracks); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(tracks []Track) error {
	seen := make(map[string]bool)
	for i, track := range tracks {
		switch {
		case track.ID == "":
			return fmt.Errorf("track %d has no id", i)
		case seen[track.ID]:
			return fmt.Errorf("duplicate track id %q", track.ID)
		case (track.Path == "") == (track.URL == ""):
			return fmt.Errorf("track %q must have exactly one of path and url", track.ID)
		}
		if strings.HasPrefix(track.URL, "s3://") {
			if _, _, err := s3object.ParseURL(track.URL); err != nil {
				return fmt.Errorf("track %q: %w", track.ID, err)
			}
		}
		seen[track.ID] = true
	}
	return nil
}

// Catalog opens tracks on first use and keeps them open until Close.
// Concurrent first requests for the same track share a single open.
type Catalog struct {
	tracks  map[string]Track
	opts    []bbi.Option
	client  *http.Client
	metrics *metrics.Metrics

	s3Mu  sync.Mutex
	s3    s3object.API
	newS3 func(context.Context) (s3object.API, error)

	group   singleflight.Group
	mu      sync.Mutex
	files   map[string]*bbi.File
	closers []io.Closer
}

// New returns a catalog of tracks.  The options are passed to bbi.Open for
// every track.
func New(tracks []Track, opts ...bbi.Option) (*Catalog, error) {
	if err := validate(tracks); err != nil {
		return nil, err
	}
	c := &Catalog{
		tracks: make(map[string]Track, len(tracks)),
		opts:   opts,
		client: http.DefaultClient,
		newS3:  newDefaultS3Client,
		files:  make(map[string]*bbi.File),
	}
	for _, track := range tracks {
		c.tracks[track.ID] = track
	}
	return c, nil
}

// FromDirectory returns a catalog of the BigWig and BigBed files in dir.  The
// id of each track is its file name without the extension.
func FromDirectory(dir string, opts ...bbi.Option) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var tracks []Track
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range trackExtensions {
			if ext == want {
				tracks = append(tracks, Track{
					ID:   strings.TrimSuffix(name, filepath.Ext(name)),
					Path: filepath.Join(dir, name),
				})
				break
			}
		}
	}
	return New(tracks, opts...)
}

// SetHTTPClient sets the client used to read URL tracks.
func (c *Catalog) SetHTTPClient(client *http.Client) {
	c.client = client
}

// SetS3Client sets the client used to read s3:// tracks.  By default a
// client is created from the AWS environment on first use.
func (c *Catalog) SetS3Client(client s3object.API) {
	c.s3Mu.Lock()
	defer c.s3Mu.Unlock()
	c.s3 = client
}

func newDefaultS3Client(ctx context.Context) (s3object.API, error) {
	return s3object.NewDefaultClient(ctx)
}

// s3Client returns the shared S3 client, creating it on first use.  A failed
// attempt is not remembered, so a later request tries again.
func (c *Catalog) s3Client(ctx context.Context) (s3object.API, error) {
	c.s3Mu.Lock()
	defer c.s3Mu.Unlock()
	if c.s3 != nil {
		return c.s3, nil
	}
	client, err := c.newS3(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}
	c.s3 = client
	return client, nil
}

// Instrument records the fetches made by every track in m.
func (c *Catalog) Instrument(m *metrics.Metrics) {
	c.metrics = m
}

// IDs returns the sorted track ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.tracks))
	for id := range c.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Open returns the opened file of track id.
func (c *Catalog) Open(ctx context.Context, id string) (*bbi.File, error) {
	track, ok := c.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTrack, id)
	}

	c.mu.Lock()
	f, ok := c.files[id]
	c.mu.Unlock()
	if ok {
		return f, nil
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		c.mu.Lock()
		f, ok := c.files[id]
		c.mu.Unlock()
		if ok {
			return f, nil
		}

		f, err := c.open(ctx, track)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.files[id] = f
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening track %q: %w", id, err)
	}
	return v.(*bbi.File), nil
}

func (c *Catalog) open(ctx context.Context, track Track) (*bbi.File, error) {
	var (
		source bbi.Source
		kind   string
		closer io.Closer
	)
	if track.Path != "" {
		src, err := file.Open(track.Path)
		if err != nil {
			return nil, err
		}
		source, kind, closer = src, "file", src
	} else if strings.HasPrefix(track.URL, "s3://") {
		bucket, key, err := s3object.ParseURL(track.URL)
		if err != nil {
			return nil, err
		}
		client, err := c.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		source, kind = s3object.New(client, bucket, key), "s3"
	} else {
		source, kind = httprange.New(track.URL, c.client), "http"
	}
	if c.metrics != nil {
		source = c.metrics.Source(kind, source)
	}

	f, err := bbi.Open(ctx, source, c.opts...)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	if closer != nil {
		c.mu.Lock()
		c.closers = append(c.closers, closer)
		c.mu.Unlock()
	}
	if f.Size() == 0 {
		log.Printf("Track %q has no known size: the coarsest zoom level is not used", track.ID)
	}
	if _, err := f.Stats(); errors.Is(err, bbi.ErrNoSummary) {
		log.Printf("Track %q has no total summary", track.ID)
	}
	return f, nil
}

// Close releases the local files opened by the catalog.  The files returned
// by Open must not be used afterwards.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	c.files = make(map[string]*bbi.File)
	return first
}
