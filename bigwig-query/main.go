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

// This binary queries BigWig and BigBed files on local disk, in GCS (gs://
// paths, using Google authentication), in S3 (s3:// paths, using the AWS
// environment) or behind HTTP URLs.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/bigwig/api"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/sources/file"
	"github.com/googlegenomics/bigwig/sources/httprange"
	"github.com/googlegenomics/bigwig/sources/s3object"
	"github.com/pkg/profile"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const (
	scope = "https://www.googleapis.com/auth/devstorage.read_only"
)

var (
	reference     = flag.String("r", "", "reference name")
	start         = flag.Uint("start", 0, "first base of the query")
	end           = flag.Uint("end", math.MaxUint32, "base after the last base of the query")
	basesPerPixel = flag.Float64("bpp", 0, "bases per pixel, selects a zoom level")
	scale         = flag.Float64("scale", 0, "pixels per base, used when -bpp is not set")
	output        = flag.String("o", "", "output filename")

	blocks  = flag.Bool("blocks", false, "print the data blocks instead of the features")
	chroms  = flag.Bool("chroms", false, "print the chromosomes")
	stats   = flag.Bool("stats", false, "print the whole file summary")
	autoSQL = flag.Bool("autosql", false, "print the BigBed autoSql schema")

	chunkSizeLimit = flag.Uint("chunk_size_limit", bbi.DefaultChunkSizeLimit, "largest single read, in bytes")
	profileMode    = flag.String("profile", "", "write a cpu or mem profile to the current directory")
)

func main() {
	flag.Parse()

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		log.Fatalf("Unknown profile mode %q", *profileMode)
	}

	if !*chroms && !*stats && !*autoSQL && *reference == "" {
		log.Fatalf("You must specify a reference name with -r.")
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		defer f.Close()

		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	ctx := contextWithCABundle(context.Background())
	query := bbi.Query{
		Reference:    *reference,
		Start:        uint32(*start),
		End:          uint32(*end),
		BasesPerSpan: *basesPerPixel,
		Scale:        *scale,
	}

	for _, target := range flag.Args() {
		log.Printf("Opening %q", target)
		source, closer, err := openSource(ctx, target)
		if err != nil {
			log.Fatalf("Failed to open %q: %v", target, err)
		}
		f, err := bbi.Open(ctx, source, bbi.WithChunkSizeLimit(uint32(*chunkSizeLimit)))
		if err != nil {
			log.Fatalf("Failed to read %q: %v", target, err)
		}

		if err := run(ctx, w, f, query); err != nil {
			log.Fatalf("Query of %q failed: %v", target, err)
		}
		if closer != nil {
			closer.Close()
		}
	}
}

func run(ctx context.Context, w io.Writer, f *bbi.File, query bbi.Query) error {
	switch {
	case *chroms:
		list, err := f.Chromosomes(ctx)
		if err != nil {
			return err
		}
		return writeChromosomes(w, list)
	case *stats:
		s, err := f.Stats()
		if err != nil {
			return err
		}
		return writeStats(w, s)
	case *autoSQL:
		schema, err := f.AutoSQL(ctx)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, schema)
		return err
	case *blocks:
		result, err := f.Blocks(ctx, query)
		if err != nil {
			return err
		}
		log.Printf("Found %d blocks", len(result.Blocks))
		return writeBlocks(w, result)
	}

	result, err := f.Features(ctx, query)
	if err != nil {
		return err
	}
	if !result.Found {
		log.Printf("Reference %q is not in the file", query.Reference)
	}
	log.Printf("Found %d features in %d blocks (%s)", len(result.Features), len(result.Blocks), humanSize(blockBytes(result)))
	return writeFeatures(w, f.Format(), result)
}

// openSource returns a source for target.  The closer is nil for sources
// that hold no resources.
func openSource(ctx context.Context, target string) (bbi.Source, io.Closer, error) {
	switch {
	case strings.HasPrefix(target, "gs://"):
		bucket, object, err := parseGCSPath(target)
		if err != nil {
			return nil, nil, err
		}
		client, err := google.DefaultClient(ctx, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("creating client: %w", err)
		}
		gcs, err := storage.NewClient(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, nil, fmt.Errorf("creating storage client: %w", err)
		}
		handle := api.GCSClient{Client: gcs}.NewObjectHandle(bucket, object)
		return api.NewObjectSource(handle), gcs, nil
	case strings.HasPrefix(target, "s3://"):
		bucket, key, err := s3object.ParseURL(target)
		if err != nil {
			return nil, nil, err
		}
		client, err := s3object.NewDefaultClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s3object.New(client, bucket, key), nil, nil
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		client := http.DefaultClient
		if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
			client = c
		}
		return httprange.New(target, client), nil, nil
	}
	src, err := file.Open(target)
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}

func parseGCSPath(target string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(target, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS path %q", target)
	}
	return parts[0], parts[1], nil
}

// contextWithCABundle reads the standard cURL certificate authority override
// from the environment, for compatibility with other tools.
func contextWithCABundle(ctx context.Context) context.Context {
	bundle := os.Getenv("CURL_CA_BUNDLE")
	if bundle == "" {
		return ctx
	}
	pem, err := os.ReadFile(bundle)
	if err != nil {
		log.Fatalf("Failed to read CA override file %q: %v", bundle, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		log.Fatalf("Failed to initialize system certificate pool: %v", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		log.Fatalf("Failed to add certificates from bundle %q", bundle)
	}
	log.Printf("Using CA override bundle from %q", bundle)
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: pool,
			}},
	})
}
