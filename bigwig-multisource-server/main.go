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

// This binary serves BigWig and BigBed tracks from a local directory or from
// a catalog of local files and URLs.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/bigwig/bbi"
	"github.com/googlegenomics/bigwig/bigwig-multisource-server/catalog"
	"github.com/googlegenomics/bigwig/bigwig-multisource-server/handlers"
	"github.com/googlegenomics/bigwig/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	port           = flag.Int("port", 8080, "HTTP service port")
	chunkSizeLimit = flag.Uint("chunk_size_limit", bbi.DefaultChunkSizeLimit, "largest single read from a track, in bytes")

	secure    = flag.Bool("secure", false, "serve in HTTPS-only mode")
	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")

	directory = flag.String("directory", "", "directory that contains bigWig/bigBed files")
	config    = flag.String("config", "", "YAML catalog of tracks")
)

func main() {
	flag.Parse()

	if *secure && (*httpsCert == "" || *httpsKey == "") {
		log.Fatalf("You must specify both -https_cert and -https_key in secure mode.")
	}

	limit := uint32(*chunkSizeLimit)
	var (
		tracks *catalog.Catalog
		err    error
	)
	switch {
	case *config != "":
		var cfg *catalog.Config
		if cfg, err = catalog.LoadConfig(*config); err != nil {
			log.Fatalf("Loading catalog: %v", err)
		}
		if cfg.ChunkSizeLimit != 0 {
			limit = cfg.ChunkSizeLimit
		}
		if cfg.Port != 0 {
			*port = cfg.Port
		}
		tracks, err = catalog.New(cfg.Tracks, bbi.WithChunkSizeLimit(limit))
	case *directory != "":
		tracks, err = catalog.FromDirectory(*directory, bbi.WithChunkSizeLimit(limit))
	default:
		log.Fatalf("You must specify either -directory or -config.")
	}
	if err != nil {
		log.Fatalf("Creating catalog: %v", err)
	}
	defer tracks.Close()
	log.Printf("Serving %d tracks", len(tracks.IDs()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	tracks.Instrument(m)

	router := gin.Default()
	handlers.New(tracks, m).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	address := fmt.Sprintf(":%d", *port)
	if *secure {
		err = router.RunTLS(address, *httpsCert, *httpsKey)
	} else {
		err = router.Run(address)
	}
	if err != nil {
		log.Fatalf("Server returned an error: %v", err)
	}
}
