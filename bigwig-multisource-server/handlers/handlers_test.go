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

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/bigwig-multisource-server/catalog"
	"github.com/googlegenomics/bigwig/internal/bbitest"
	"github.com/googlegenomics/bigwig/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, opts ...bbi.Option) *gin.Engine {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	chroms := []bbitest.Chrom{{Name: "chr1", Length: 10000}, {Name: "chr2", Length: 5000}}
	files := map[string]bbitest.File{
		"signal.bw": {
			Chroms: chroms,
			Records: []bbitest.Record{
				{Chrom: "chr1", Start: 0, End: 100, Value: 1},
				{Chrom: "chr1", Start: 100, End: 200, Value: 2},
				{Chrom: "chr2", Start: 0, End: 100, Value: 3},
			},
			ZoomReductions: []uint32{500},
		},
		"peaks.bb": {
			BigBed:  true,
			Chroms:  chroms,
			Records: []bbitest.Record{{Chrom: "chr2", Start: 5, End: 15, Rest: "p1"}},
			AutoSQL: "table bed4\n",
		},
		"bare.bw": {Chroms: chroms, NoSummary: true},
	}
	for name, spec := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), spec.Build(), 0644))
	}

	c, err := catalog.FromDirectory(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	r := gin.New()
	New(c, metrics.New(prometheus.NewRegistry())).Register(r)
	return r
}

func get(r *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", url, nil)
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	body := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTracksRoute(t *testing.T) {
	w := get(setupRouter(t), "/tracks")
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, []interface{}{"bare", "peaks", "signal"}, decode(t, w)["tracks"])
}

func TestFeaturesRoute(t *testing.T) {
	w := get(setupRouter(t), "/features/signal?referenceName=chr1&start=150")
	assert.Equal(t, 200, w.Code)

	body := decode(t, w)
	assert.Equal(t, "BigWig", body["format"])
	assert.Equal(t, "chr1", body["reference"])
	features := body["features"].([]interface{})
	require.Len(t, features, 1)
	assert.Equal(t, map[string]interface{}{"start": 100.0, "end": 200.0, "value": 2.0}, features[0])
}

func TestZoomedFeaturesRoute(t *testing.T) {
	w := get(setupRouter(t), "/features/signal?referenceName=chr1&scale=0.001")
	assert.Equal(t, 200, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["zoomed"])
	assert.Equal(t, 500.0, body["reductionLevel"])
	features := body["features"].([]interface{})
	require.Len(t, features, 1)
	assert.Equal(t, 200.0, features[0].(map[string]interface{})["validCount"])
}

func TestBedFeaturesRoute(t *testing.T) {
	w := get(setupRouter(t), "/features/peaks?referenceName=chr2")
	assert.Equal(t, 200, w.Code)

	features := decode(t, w)["features"].([]interface{})
	require.Len(t, features, 1)
	assert.Equal(t, "p1", features[0].(map[string]interface{})["rest"])
}

func TestBlocksRoute(t *testing.T) {
	w := get(setupRouter(t), "/blocks/signal?referenceName=chr2")
	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, decode(t, w)["blocks"])
}

func TestChromosomesRoute(t *testing.T) {
	w := get(setupRouter(t), "/chromosomes/peaks")
	assert.Equal(t, 200, w.Code)

	body := decode(t, w)
	assert.Equal(t, "BigBed", body["format"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "chr1", "id": 0.0, "length": 10000.0},
		map[string]interface{}{"name": "chr2", "id": 1.0, "length": 5000.0},
	}, body["chromosomes"])
}

func TestStatsRoute(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/stats/signal")
	assert.Equal(t, 200, w.Code)
	body := decode(t, w)
	assert.Equal(t, 300.0, body["basesCovered"])
	assert.Equal(t, 2.0, body["mean"])

	w = get(r, "/stats/bare")
	assert.Equal(t, 404, w.Code)
	assert.Equal(t, "NotFound", decode(t, w)["error"])
}

func TestErrorRoutes(t *testing.T) {
	testCases := []struct {
		name, url string
		code      int
		error     string
	}{
		{"unknown track", "/features/nope?referenceName=chr1", 404, "NotFound"},
		{"no reference", "/features/signal", 400, "InvalidInput"},
		{"bad start", "/blocks/signal?referenceName=chr1&start=abc", 400, "InvalidInput"},
		{"inverted range", "/features/signal?referenceName=chr1&start=20&end=10", 400, "InvalidRange"},
	}
	r := setupRouter(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(r, tc.url)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.error, decode(t, w)["error"])
		})
	}
}

func TestChunkSizeLimitRoute(t *testing.T) {
	w := get(setupRouter(t, bbi.WithChunkSizeLimit(64)), "/chromosomes/signal")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PayloadTooLarge", decode(t, w)["error"])
}
