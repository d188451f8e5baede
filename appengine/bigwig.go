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

// Package bigwig runs the query API on App Engine.  Reads are authorized with
// the caller's bearer token.
//
// BUCKET_WHITELIST restricts reads to a comma-separated list of buckets and
// CHUNK_SIZE_LIMIT overrides the largest single read from storage.
package bigwig

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/bigwig/api"
	"google.golang.org/appengine"
)

const defaultChunkSizeLimit = 8 * 1024 * 1024

func init() {
	mux := http.NewServeMux()
	server := api.NewServer(newAppEngineClient, chunkSizeLimit())
	if list := os.Getenv("BUCKET_WHITELIST"); list != "" {
		server.Whitelist(strings.Split(list, ","))
	}
	server.Export(mux)
	http.HandleFunc("/", mux.ServeHTTP)
}

func chunkSizeLimit() uint32 {
	v := os.Getenv("CHUNK_SIZE_LIMIT")
	if v == "" {
		return defaultChunkSizeLimit
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		log.Printf("Ignoring invalid CHUNK_SIZE_LIMIT %q", v)
		return defaultChunkSizeLimit
	}
	return uint32(n)
}

func newAppEngineClient(req *http.Request) (api.Client, http.Header, error) {
	return api.NewClientFromBearerToken(req.WithContext(appengine.NewContext(req)))
}
