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

// Package s3object serves byte ranges of an object in Amazon S3 or an S3
// compatible store.
package s3object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when the object does not exist.
var ErrNotFound = errors.New("object not found")

// API is the subset of *s3.Client used by Source.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Source reads an object with ranged GetObject calls.  It implements
// bbi.Source and bbi.Sizer.
type Source struct {
	client      API
	bucket, key string
}

// New returns a source for the object key in bucket.
func New(client API, bucket, key string) *Source {
	return &Source{client: client, bucket: bucket, key: key}
}

// NewDefaultClient returns a client configured from the environment and the
// shared AWS configuration files.
func NewDefaultClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(u string) (string, string, error) {
	rest := strings.TrimPrefix(u, "s3://")
	if rest == u {
		return "", "", fmt.Errorf("%q is not an s3:// URL", u)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q", u)
	}
	return parts[0], parts[1], nil
}

func (s *Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// Fetch reads length bytes starting at offset.
func (s *Source) Fetch(ctx context.Context, offset uint64, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	last := offset + uint64(length) - 1
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, last)),
	})
	if err != nil {
		return nil, s.wrap(fmt.Sprintf("reading bytes %d-%d", offset, last), err)
	}
	defer out.Body.Close()

	data := make([]byte, length)
	if _, err := io.ReadFull(out.Body, data); err != nil {
		return nil, fmt.Errorf("reading bytes %d-%d of %s: %w", offset, last, s, err)
	}
	return data, nil
}

// Size returns the content length of the object, or zero if it is not
// reported.
func (s *Source) Size(ctx context.Context) (uint64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return 0, s.wrap("reading object metadata", err)
	}
	if n := aws.ToInt64(out.ContentLength); n > 0 {
		return uint64(n), nil
	}
	return 0, nil
}

func (s *Source) wrap(context string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s of %s: %w: %v", context, s, ErrNotFound, err)
	}
	return fmt.Errorf("%s of %s: %w", context, s, err)
}
