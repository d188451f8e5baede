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

package s3object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/internal/bbitest"
)

var (
	_ bbi.Source = (*Source)(nil)
	_ bbi.Sizer  = (*Source)(nil)
	_ API        = (*s3.Client)(nil)
)

// fakeS3 serves objects from memory and records the requested ranges.
type fakeS3 struct {
	objects map[string][]byte
	ranges  []string
}

func (f *fakeS3) object(bucket, key *string) ([]byte, bool) {
	data, ok := f.objects[aws.ToString(bucket)+"/"+aws.ToString(key)]
	return data, ok
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.object(in.Bucket, in.Key)
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.ranges = append(f.ranges, aws.ToString(in.Range))
	var first, last int
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &first, &last); err != nil {
		return nil, err
	}
	if first >= len(data) {
		return nil, errors.New("InvalidRange")
	}
	if last >= len(data) {
		last = len(data) - 1
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[first : last+1]))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := f.object(in.Bucket, in.Key)
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestFetch(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"bucket/dir/data": []byte("the quick brown fox")}}
	src := New(fake, "bucket", "dir/data")

	got, err := src.Fetch(context.Background(), 4, 5)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(got) != "quick" {
		t.Errorf("Fetch(4, 5): got %q, want %q", got, "quick")
	}
	if want := "bytes=4-8"; len(fake.ranges) != 1 || fake.ranges[0] != want {
		t.Errorf("Wrong ranges requested: got %v, want [%s]", fake.ranges, want)
	}

	if _, err := src.Fetch(context.Background(), 15, 10); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Fetch() past the end: got %v, want %v", err, io.ErrUnexpectedEOF)
	}

	size, err := src.Size(context.Background())
	if err != nil || size != 19 {
		t.Errorf("Size(): got (%d, %v), want 19", size, err)
	}
}

func TestNotFound(t *testing.T) {
	src := New(&fakeS3{}, "bucket", "missing")
	if _, err := src.Fetch(context.Background(), 0, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(): got %v, want %v", err, ErrNotFound)
	}
	if _, err := src.Size(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Size(): got %v, want %v", err, ErrNotFound)
	}
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://tracks/hg38/signal.bw")
	if err != nil || bucket != "tracks" || key != "hg38/signal.bw" {
		t.Errorf("ParseURL: got (%q, %q, %v)", bucket, key, err)
	}
	for _, bad := range []string{"gs://tracks/a.bw", "s3://", "s3://tracks", "s3://tracks/", "s3:///a.bw"} {
		if _, _, err := ParseURL(bad); err == nil {
			t.Errorf("ParseURL(%q) succeeded", bad)
		}
	}
}

func TestQuery(t *testing.T) {
	data := bbitest.File{
		Compress: true,
		Chroms:   []bbitest.Chrom{{Name: "chr1", Length: 1000}},
		Records: []bbitest.Record{
			{Chrom: "chr1", Start: 0, End: 10, Value: 1},
			{Chrom: "chr1", Start: 10, End: 20, Value: 2},
			{Chrom: "chr1", Start: 20, End: 30, Value: 3},
		},
	}.Build()
	fake := &fakeS3{objects: map[string][]byte{"b/k.bw": data}}

	f, err := bbi.Open(context.Background(), New(fake, "b", "k.bw"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	result, err := f.Features(context.Background(), bbi.Query{Reference: "chr1", Start: 5, End: 15})
	if err != nil {
		t.Fatalf("Features() failed: %v", err)
	}
	if len(result.Features) != 2 || result.Features[1].Value != 2 {
		t.Errorf("Wrong features: %+v", result.Features)
	}
}
