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

package sampledata

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Index administers a single index.
type Index struct {
	name   string
	body   Document
	client esapi.Transport
	logger *zap.Logger
}

// NewIndex returns an Index named name, created with body when it does not
// exist. body holds the index settings and mappings and may be nil.
func NewIndex(client esapi.Transport, name string, body map[string]any, logger *zap.Logger) (*Index, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrConfiguration)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: index name is required", ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		name:   name,
		body:   Document(body),
		client: client,
		logger: logger.With(zap.String("index", name)),
	}, nil
}

// Name returns the index name.
func (x *Index) Name() string {
	return x.name
}

// Exists reports whether the index exists.
func (x *Index) Exists(ctx context.Context) (bool, error) {
	res, err := esapi.IndicesExistsRequest{Index: []string{x.name}}.Do(ctx, x.client)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check index %q: %w", ErrConnectionFailure, x.name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: failed to check index %q: %s", ErrConnectionFailure, x.name, res.String())
}

// Create creates the index unless it already exists. It reports whether
// the index was created.
func (x *Index) Create(ctx context.Context) (bool, error) {
	exists, err := x.Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		x.logger.Info("index exists already")
		return false, nil
	}
	req := esapi.IndicesCreateRequest{Index: x.name}
	if len(x.body) > 0 {
		var buf bytes.Buffer
		if _, err := x.body.WriteTo(&buf); err != nil {
			return false, fmt.Errorf("%w: failed to encode index body: %w", ErrConfiguration, err)
		}
		req.Body = &buf
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return false, fmt.Errorf("%w: index %q failed to be created: %w", ErrConnectionFailure, x.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("%w: index %q failed to be created: %s", ErrConnectionFailure, x.name, res.String())
	}
	x.logger.Info("index created")
	return true, nil
}

// Delete deletes the index if it exists. It reports whether the index was
// deleted.
func (x *Index) Delete(ctx context.Context) (bool, error) {
	exists, err := x.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		x.logger.Info("index does not exist")
		return false, nil
	}
	res, err := esapi.IndicesDeleteRequest{Index: []string{x.name}}.Do(ctx, x.client)
	if err != nil {
		return false, fmt.Errorf("%w: index %q failed to be deleted: %w", ErrConnectionFailure, x.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("%w: index %q failed to be deleted: %s", ErrConnectionFailure, x.name, res.String())
	}
	x.logger.Info("index deleted")
	return true, nil
}

// IngestMore ingests more documents into the index with in.
func (x *Index) IngestMore(ctx context.Context, in *Ingester, template any, opts IngestOptions) ([]Document, error) {
	docs, err := in.Ingest(ctx, template, x.name, opts)
	if err != nil {
		x.logger.Error("failed to ingest more documents", zap.Error(err))
		return docs, err
	}
	return docs, nil
}

// ListIndices returns the sorted names of the indices matching pattern.
func ListIndices(ctx context.Context, client esapi.Transport, pattern string) ([]string, error) {
	allowNoIndices := true
	res, err := esapi.IndicesGetRequest{
		Index:          []string{pattern},
		AllowNoIndices: &allowNoIndices,
		FilterPath:     []string{"*.settings.index.provided_name"},
	}.Do(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list indices %q: %w", ErrConnectionFailure, pattern, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: failed to list indices %q: %s", ErrConnectionFailure, pattern, res.String())
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read indices: %w", ErrConnectionFailure, err)
	}
	var indices map[string]jsoniter.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		if err := jsoniter.Unmarshal(body, &indices); err != nil {
			return nil, fmt.Errorf("failed to decode indices: %w", err)
		}
	}
	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
