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

// Package handlers provides gin handlers that answer queries over the
// tracks of a catalog.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/bigwig/api"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/bigwig-multisource-server/catalog"
	"github.com/googlegenomics/bigwig/internal/metrics"
)

// Handlers holds the state shared by the handlers.
type Handlers struct {
	catalog *catalog.Catalog
	metrics *metrics.Metrics
}

// New returns handlers that serve the tracks of c.  m may be nil.
func New(c *catalog.Catalog, m *metrics.Metrics) *Handlers {
	return &Handlers{catalog: c, metrics: m}
}

// Register adds the routes to router.
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/tracks", h.Tracks)
	router.GET("/features/:id", h.Features)
	router.GET("/blocks/:id", h.Blocks)
	router.GET("/chromosomes/:id", h.Chromosomes)
	router.GET("/stats/:id", h.Stats)
}

// Tracks lists the track ids.
func (h *Handlers) Tracks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tracks": h.catalog.IDs()})
}

// Features answers a feature query.
func (h *Handlers) Features(c *gin.Context) {
	file, query, ok := h.openQuery(c, "features")
	if !ok {
		return
	}
	result, err := file.Features(c.Request.Context(), query)
	h.observe("features", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FeaturesResponse(file.Format(), result))
}

// Blocks answers a block query.
func (h *Handlers) Blocks(c *gin.Context) {
	file, query, ok := h.openQuery(c, "blocks")
	if !ok {
		return
	}
	result, err := file.Blocks(c.Request.Context(), query)
	h.observe("blocks", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.BlocksResponse(result))
}

// Chromosomes lists the chromosomes of a track.
func (h *Handlers) Chromosomes(c *gin.Context) {
	file, ok := h.open(c, "chromosomes")
	if !ok {
		return
	}
	chroms, err := file.Chromosomes(c.Request.Context())
	h.observe("chromosomes", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ChromosomesResponse(file.Format(), chroms))
}

// Stats returns the whole file summary of a track.
func (h *Handlers) Stats(c *gin.Context) {
	file, ok := h.open(c, "stats")
	if !ok {
		return
	}
	stats, err := file.Stats()
	h.observe("stats", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.StatsResponse(stats))
}

func (h *Handlers) open(c *gin.Context, kind string) (*bbi.File, bool) {
	file, err := h.catalog.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.observe(kind, err)
		writeError(c, err)
		return nil, false
	}
	return file, true
}

func (h *Handlers) openQuery(c *gin.Context, kind string) (*bbi.File, bbi.Query, bool) {
	query, err := api.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.observe(kind, err)
		writeError(c, err)
		return nil, bbi.Query{}, false
	}
	file, ok := h.open(c, kind)
	return file, query, ok
}

func (h *Handlers) observe(kind string, err error) {
	if h.metrics != nil {
		h.metrics.ObserveQuery(kind, err)
	}
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, catalog.ErrUnknownTrack) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":   "NotFound",
			"message": err.Error(),
		})
		return
	}
	if code, body, ok := api.ErrorResponse(err); ok {
		c.AbortWithStatusJSON(code, body)
		return
	}
	log.Printf("Request for %s failed: %v", c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal",
		"message": http.StatusText(http.StatusInternalServerError),
	})
}
