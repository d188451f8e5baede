// Copyright 2017 Google Inc.
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

// Package api implements an HTTP API for range queries over BigWig and
// BigBed files stored in GCS.
//
// Files are addressed as /<endpoint>/<bucket>/<object>, where the endpoint
// is one of features, blocks, chromosomes or stats.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/internal/metrics"
)

const (
	featuresPath    = "/features/"
	blocksPath      = "/blocks/"
	chromosomesPath = "/chromosomes/"
	statsPath       = "/stats/"

	requestIDHeader = "X-Request-Id"
)

var (
	errInvalidOrUnspecifiedID = errors.New("invalid or unspecified ID")
	errMissingReferenceName   = errors.New("no reference name specified")
	errMissingOrInvalidToken  = errors.New("missing or invalid token")
)

// NewStorageClientFunc is the type of function that constructs the appropriate
// storage.Client to satisfy the incoming request. Any headers that caused this
// particular client to be created are returned as well.
type NewStorageClientFunc func(*http.Request) (Client, http.Header, error)

// Server provides the query API.  Must be created with NewServer.
type Server struct {
	newStorageClient NewStorageClientFunc
	chunkSizeLimit   uint32
	whitelist        map[string]bool
	metrics          *metrics.Metrics
}

// NewServer returns a new Server configured to use newStorageClient and
// chunkSizeLimit. The server will call storageClientFunc on each request to
// determine which GCS storage client to use.  No single read from storage is
// larger than chunkSizeLimit bytes.
func NewServer(newStorageClient NewStorageClientFunc, chunkSizeLimit uint32) *Server {
	return &Server{newStorageClient, chunkSizeLimit, make(map[string]bool), nil}
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// access. If Whitelist is never called for a given Server then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		server.whitelist[bucket] = true
	}
}

// Instrument records storage reads and queries in m.
func (server *Server) Instrument(m *metrics.Metrics) {
	server.metrics = m
}

// Export registers the API endpoints with mux.
func (server *Server) Export(mux *http.ServeMux) {
	mux.Handle(featuresPath, forwardOrigin(server.serveFeatures))
	mux.Handle(blocksPath, forwardOrigin(server.serveBlocks))
	mux.Handle(chromosomesPath, forwardOrigin(server.serveChromosomes))
	mux.Handle(statsPath, forwardOrigin(server.serveStats))
}

func (server *Server) serveFeatures(w http.ResponseWriter, req *http.Request) {
	file, query, err := server.openQuery(req, featuresPath)
	if err == nil {
		var result *bbi.Result
		if result, err = file.Features(req.Context(), query); err == nil {
			writeJSON(w, http.StatusOK, FeaturesResponse(file.Format(), result))
		}
	}
	server.observe("features", err)
	if err != nil {
		writeError(w, req, err)
	}
}

func (server *Server) serveBlocks(w http.ResponseWriter, req *http.Request) {
	file, query, err := server.openQuery(req, blocksPath)
	if err == nil {
		var result *bbi.Result
		if result, err = file.Blocks(req.Context(), query); err == nil {
			writeJSON(w, http.StatusOK, BlocksResponse(result))
		}
	}
	server.observe("blocks", err)
	if err != nil {
		writeError(w, req, err)
	}
}

func (server *Server) serveChromosomes(w http.ResponseWriter, req *http.Request) {
	file, err := server.open(req, chromosomesPath)
	if err == nil {
		var chroms []bbi.ChromRecord
		if chroms, err = file.Chromosomes(req.Context()); err == nil {
			writeJSON(w, http.StatusOK, ChromosomesResponse(file.Format(), chroms))
		}
	}
	server.observe("chromosomes", err)
	if err != nil {
		writeError(w, req, err)
	}
}

func (server *Server) serveStats(w http.ResponseWriter, req *http.Request) {
	file, err := server.open(req, statsPath)
	if err == nil {
		var stats *bbi.Stats
		if stats, err = file.Stats(); err == nil {
			writeJSON(w, http.StatusOK, StatsResponse(stats))
		}
	}
	server.observe("stats", err)
	if err != nil {
		writeError(w, req, err)
	}
}

func (server *Server) observe(kind string, err error) {
	if server.metrics != nil {
		server.metrics.ObserveQuery(kind, err)
	}
}

// open opens the file named by the request path after prefix.  Errors are
// returned as API errors.  Files are opened for each request and nothing is
// cached between requests.
func (server *Server) open(req *http.Request, prefix string) (*bbi.File, error) {
	bucket, object, err := parseID(req.URL.Path[len(prefix):])
	if err != nil {
		return nil, newInvalidInputError("parsing file ID", err)
	}

	if err := server.checkWhitelist(bucket); err != nil {
		return nil, newPermissionDeniedError("checking whitelist", err)
	}

	gcs, _, err := server.newStorageClient(req)
	if err != nil {
		return nil, newStorageError("creating client", err)
	}

	var source bbi.Source = NewObjectSource(gcs.NewObjectHandle(bucket, object))
	if server.metrics != nil {
		source = server.metrics.Source("gcs", source)
	}
	file, err := bbi.Open(req.Context(), source, bbi.WithChunkSizeLimit(server.chunkSizeLimit))
	if err != nil {
		return nil, newFileError("opening file", err)
	}
	return file, nil
}

func (server *Server) openQuery(req *http.Request, prefix string) (*bbi.File, bbi.Query, error) {
	query, err := ParseQuery(req.URL.Query())
	if err != nil {
		return nil, bbi.Query{}, err
	}
	file, err := server.open(req, prefix)
	if err != nil {
		return nil, bbi.Query{}, err
	}
	return file, query, nil
}

func (server *Server) checkWhitelist(bucket string) error {
	if len(server.whitelist) == 0 || server.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}

// parseID parses path and returns a GCS bucket and object, or an error.
func parseID(path string) (string, string, error) {
	if parts := strings.SplitN(path, "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", errInvalidOrUnspecifiedID
}

// ParseQuery reads a query from the referenceName, start, end, basesPerPixel
// and scale parameters.  A missing end selects the rest of the reference.
// Errors are API errors.
func ParseQuery(values url.Values) (bbi.Query, error) {
	query := bbi.Query{Reference: values.Get("referenceName"), End: math.MaxUint32}
	if query.Reference == "" {
		return bbi.Query{}, newInvalidInputError("parsing query", errMissingReferenceName)
	}

	for _, p := range []struct {
		name string
		dst  *uint32
	}{{"start", &query.Start}, {"end", &query.End}} {
		if v := values.Get(p.name); v != "" {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return bbi.Query{}, newInvalidInputError("parsing "+p.name, err)
			}
			*p.dst = uint32(n)
		}
	}

	for _, p := range []struct {
		name string
		dst  *float64
	}{{"basesPerPixel", &query.BasesPerSpan}, {"scale", &query.Scale}} {
		if v := values.Get(p.name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
				return bbi.Query{}, newInvalidInputError("parsing "+p.name, fmt.Errorf("invalid value %q", v))
			}
			*p.dst = f
		}
	}

	if query.Start > query.End {
		return bbi.Query{}, newInvalidRangeError(fmt.Errorf("start %d > end %d", query.Start, query.End))
	}
	return query, nil
}

// FeaturesResponse returns the JSON form of a features query result.
func FeaturesResponse(format bbi.Format, result *bbi.Result) map[string]interface{} {
	features := make([]map[string]interface{}, 0, len(result.Features))
	for _, f := range result.Features {
		item := map[string]interface{}{"start": f.Start, "end": f.End}
		switch {
		case result.Zoomed:
			item["value"] = f.Value
			item["validCount"] = f.ValidCount
			item["min"] = f.Min
			item["max"] = f.Max
			item["sum"] = f.Sum
			item["sumSquares"] = f.SumSquares
		case format == bbi.BigBed:
			item["rest"] = f.Rest
		default:
			item["value"] = f.Value
		}
		features = append(features, item)
	}
	return map[string]interface{}{
		"format":         format.String(),
		"reference":      result.Chrom.Name,
		"zoomed":         result.Zoomed,
		"reductionLevel": result.ReductionLevel,
		"features":       features,
	}
}

// BlocksResponse returns the JSON form of a block query result.
func BlocksResponse(result *bbi.Result) map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(result.Blocks))
	for _, b := range result.Blocks {
		blocks = append(blocks, map[string]interface{}{"offset": b.Offset, "size": b.Size})
	}
	return map[string]interface{}{
		"reference":         result.Chrom.Name,
		"zoomed":            result.Zoomed,
		"reductionLevel":    result.ReductionLevel,
		"uncompressBufSize": result.UncompressBufSize,
		"blocks":            blocks,
	}
}

// ChromosomesResponse returns the JSON form of a chromosome listing.
func ChromosomesResponse(format bbi.Format, chroms []bbi.ChromRecord) map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(chroms))
	for _, c := range chroms {
		list = append(list, map[string]interface{}{"name": c.Name, "id": c.ID, "length": c.Length})
	}
	return map[string]interface{}{
		"format":      format.String(),
		"chromosomes": list,
	}
}

// StatsResponse returns the JSON form of the file summary.
func StatsResponse(stats *bbi.Stats) map[string]interface{} {
	return map[string]interface{}{
		"basesCovered": stats.BasesCovered,
		"min":          stats.Min,
		"max":          stats.Max,
		"sum":          stats.Sum,
		"sumSquares":   stats.SumSquares,
		"mean":         stats.Mean,
		"stdDev":       stats.StdDev,
	}
}

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newApiError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newApiError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newApiError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newApiError("PermissionDenied", http.StatusForbidden, context, err)
}

func newUnsupportedFormatError(err error) error {
	return &apiError{"UnsupportedFormat", http.StatusBadRequest, err}
}

func newNotFoundError(context string, err error) error {
	return newApiError("NotFound", http.StatusNotFound, context, err)
}

func newPayloadTooLargeError(context string, err error) error {
	return newApiError("PayloadTooLarge", http.StatusRequestEntityTooLarge, context, err)
}

// newFileError converts an error from the bbi package, or from the storage
// engine underneath it, into an API error where one is defined.
func newFileError(context string, err error) error {
	var formatErr *bbi.FormatError
	switch {
	case errors.As(err, &formatErr):
		return newUnsupportedFormatError(fmt.Errorf("%s: %w", context, err))
	case errors.Is(err, bbi.ErrSizeLimitExceeded):
		return newPayloadTooLargeError(context, err)
	case errors.Is(err, bbi.ErrNoSummary):
		return newNotFoundError(context, err)
	}
	return newStorageError(context, err)
}

// ErrorResponse returns the HTTP status code and JSON body describing err,
// and whether err is one of the errors defined by the API.
func ErrorResponse(err error) (int, map[string]interface{}, bool) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr, _ = newFileError("query", err).(*apiError)
	}
	if apiErr == nil {
		return http.StatusInternalServerError, nil, false
	}
	return apiErr.code, map[string]interface{}{
		"error":   apiErr.name,
		"message": fmt.Sprintf("%s: %v", http.StatusText(apiErr.code), apiErr.cause),
	}, true
}

// writeError writes either a JSON object or bare HTTP error describing err to
// w.  A JSON object is written only when the error has a name and code defined
// by the API.  Other errors are logged with the request id.
func writeError(w http.ResponseWriter, req *http.Request, err error) {
	if code, body, ok := ErrorResponse(err); ok {
		writeJSON(w, code, body)
		return
	}

	log.Printf("Request %s for %s failed: %v", RequestID(req.Context()), req.URL.Path, err)
	writeHTTPError(w, http.StatusInternalServerError, err)
}

func writeHTTPError(w http.ResponseWriter, code int, err error) {
	http.Error(w, fmt.Sprintf("%s: %v", http.StatusText(code), err), code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Add("Content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request that ctx belongs to.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID assigns a new id to req, which is echoed in the response
// headers and used in log messages about the request.
func WithRequestID(w http.ResponseWriter, req *http.Request) *http.Request {
	id := uuid.New().String()
	w.Header().Set(requestIDHeader, id)
	return req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id))
}

type forwardOrigin func(w http.ResponseWriter, req *http.Request)

func (f forwardOrigin) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if origin := req.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	f(w, WithRequestID(w, req))
}
