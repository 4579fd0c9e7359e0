// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package sampledatatest provides an in-memory Elasticsearch stand-in for
// testing sample data ingestion.
package sampledatatest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.elastic.co/apm/module/apmelasticsearch/v2"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// BulkRequest holds the decoded actions of a /_bulk request.
type BulkRequest struct {
	// Indices holds the target index of each action.
	Indices []string

	// Documents holds the source of each action.
	Documents [][]byte
}

// DecodeBulkRequest decodes a /_bulk request's body, returning the decoded
// request and a response body.
func DecodeBulkRequest(r *http.Request) (BulkRequest, esutil.BulkIndexerResponse) {
	body := r.Body
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			panic(err)
		}
		defer r.Close()
		body = r
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var req BulkRequest
	var result esutil.BulkIndexerResponse
	for scanner.Scan() {
		action := make(map[string]struct {
			Index string `json:"_index"`
		})
		if err := json.NewDecoder(strings.NewReader(scanner.Text())).Decode(&action); err != nil {
			panic(err)
		}
		var actionType, index string
		for actionType = range action {
			index = action[actionType].Index
		}
		if !scanner.Scan() {
			panic("expected source")
		}

		doc := append([]byte{}, scanner.Bytes()...)
		if !json.Valid(doc) {
			panic(fmt.Errorf("invalid JSON: %s", doc))
		}
		req.Indices = append(req.Indices, index)
		req.Documents = append(req.Documents, doc)

		item := esutil.BulkIndexerResponseItem{Index: index, Status: http.StatusCreated}
		result.Items = append(result.Items, map[string]esutil.BulkIndexerResponseItem{actionType: item})
	}
	return req, result
}

// NewMockElasticsearchClient returns an elasticsearch.Client which sends /_bulk requests to bulkHandler.
func NewMockElasticsearchClient(t testing.TB, bulkHandler http.HandlerFunc) *elasticsearch.Client {
	mux := http.NewServeMux()
	HandleBulk(mux, bulkHandler)
	return newClient(t, mux)
}

// HandleBulk registers bulkHandler with mux for handling /_bulk requests,
// wrapping bulkHandler to conform with go-elasticsearch version checking.
func HandleBulk(mux *http.ServeMux, bulkHandler http.HandlerFunc) {
	mux.HandleFunc("/_bulk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		bulkHandler.ServeHTTP(w, r)
	})
}

func newClient(t testing.TB, h http.Handler) *elasticsearch.Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	config := elasticsearch.Config{}
	config.Addresses = []string{srv.URL}
	config.DisableRetry = true
	config.Transport = apmelasticsearch.WrapRoundTripper(http.DefaultTransport)
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)
	return client
}

// Detector is the state of an anomaly detector held by Server.
type Detector struct {
	ID          string
	Body        map[string]any
	Started     bool
	Historical  bool
	HistoryBody map[string]int64
}

// Server is an in-memory backend handling index administration, bulk
// requests and the anomaly detection plugin API.
type Server struct {
	mu        sync.Mutex
	indices   map[string]json.RawMessage
	docs      map[string][][]byte
	bulk      []BulkRequest
	detectors map[string]*Detector
	nextID    int

	// BulkHandler, if set, replaces the default /_bulk handling. Requests
	// are still recorded by the default handler only.
	BulkHandler http.HandlerFunc
}

// NewServer starts a Server, closed via t.Cleanup, and returns it with a
// client sending requests to it.
func NewServer(t testing.TB) (*Server, *elasticsearch.Client) {
	s := &Server{
		indices:   make(map[string]json.RawMessage),
		docs:      make(map[string][][]byte),
		detectors: make(map[string]*Detector),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_bulk", s.handleBulk)
	mux.HandleFunc("HEAD /{index}", s.handleExists)
	mux.HandleFunc("PUT /{index}", s.handleCreate)
	mux.HandleFunc("DELETE /{index}", s.handleDelete)
	mux.HandleFunc("GET /{index}", s.handleGet)
	mux.HandleFunc("POST /_plugins/_anomaly_detection/detectors", s.handleDetectorCreate)
	mux.HandleFunc("POST /_plugins/_anomaly_detection/detectors/{id}/_start", s.handleDetectorStart)
	mux.HandleFunc("POST /_plugins/_anomaly_detection/detectors/{id}/_stop", s.handleDetectorStop)
	mux.HandleFunc("DELETE /_plugins/_anomaly_detection/detectors/{id}", s.handleDetectorDelete)
	return s, newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		mux.ServeHTTP(w, r)
	}))
}

// AddIndex adds an empty index to s.
func (s *Server) AddIndex(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices[name] = json.RawMessage("{}")
}

// Indices returns the sorted names of the existing indices.
func (s *Server) Indices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.indices))
	for name := range s.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexBody returns the body an index was created with.
func (s *Server) IndexBody(name string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indices[name]
}

// Documents returns the documents indexed into index.
func (s *Server) Documents(index string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.docs[index]...)
}

// BulkRequests returns the bulk requests received so far.
func (s *Server) BulkRequests() []BulkRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BulkRequest(nil), s.bulk...)
}

// Detectors returns the existing detectors.
func (s *Server) Detectors() []Detector {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Detector, 0, len(s.detectors))
	for _, d := range s.detectors {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if s.BulkHandler != nil {
		s.BulkHandler(w, r)
		return
	}
	req, result := DecodeBulkRequest(r)
	s.mu.Lock()
	s.bulk = append(s.bulk, req)
	for i, index := range req.Indices {
		s.docs[index] = append(s.docs[index], req.Documents[i])
	}
	s.mu.Unlock()
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, ok := s.indices[r.PathValue("index")]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("index")
	body, _ := io.ReadAll(r.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[name]; ok {
		writeError(w, http.StatusBadRequest, "resource_already_exists_exception")
		return
	}
	s.indices[name] = body
	fmt.Fprintf(w, `{"acknowledged":true,"index":%q}`, name)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("index")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[name]; !ok {
		writeError(w, http.StatusNotFound, "index_not_found_exception")
		return
	}
	delete(s.indices, name)
	delete(s.docs, name)
	fmt.Fprint(w, `{"acknowledged":true}`)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	patterns := strings.Split(r.PathValue("index"), ",")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any)
	for name := range s.indices {
		for _, p := range patterns {
			if ok, _ := path.Match(p, name); ok {
				out[name] = map[string]any{
					"settings": map[string]any{"index": map[string]any{"provided_name": name}},
				}
			}
		}
	}
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleDetectorCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "detector-" + strconv.Itoa(s.nextID)
	s.detectors[id] = &Detector{ID: id, Body: body}
	fmt.Fprintf(w, `{"_id":%q,"_version":1,"_seq_no":%d,"anomaly_detector":{}}`, id, s.nextID)
}

func (s *Server) handleDetectorStart(w http.ResponseWriter, r *http.Request) {
	var body map[string]int64
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			writeError(w, http.StatusBadRequest, "parse_exception")
			return
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.detectors[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "resource_not_found_exception")
		return
	}
	if body != nil {
		d.Historical = true
		d.HistoryBody = body
	} else {
		d.Started = true
	}
	fmt.Fprintf(w, `{"_id":%q,"_version":1}`, d.ID)
}

func (s *Server) handleDetectorStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.detectors[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "resource_not_found_exception")
		return
	}
	if r.URL.Query().Get("historical") == "true" {
		d.Historical = false
	} else {
		d.Started = false
	}
	fmt.Fprintf(w, `{"_id":%q,"_version":0}`, d.ID)
}

func (s *Server) handleDetectorDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.detectors[id]; !ok {
		writeError(w, http.StatusNotFound, "resource_not_found_exception")
		return
	}
	delete(s.detectors, id)
	fmt.Fprintf(w, `{"_id":%q,"result":"deleted"}`, id)
}

func writeError(w http.ResponseWriter, status int, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"type":%q,"reason":%q},"status":%d}`, errType, errType, status)
}
