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

package sampledata_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/sampledatatest"
)

func TestIndexCreate(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	core, observed := observer.New(zapcore.InfoLevel)
	index, err := sampledata.NewIndex(client, "sample", map[string]any{
		"settings": map[string]any{"number_of_shards": 1},
	}, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, "sample", index.Name())

	ctx := context.Background()
	exists, err := index.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := index.Create(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"sample"}, srv.Indices())

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.IndexBody("sample"), &body))
	assert.Equal(t, map[string]any{"settings": map[string]any{"number_of_shards": float64(1)}}, body)

	// Creating an existing index is a no-op.
	created, err = index.Create(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	var messages []string
	for _, entry := range observed.AllUntimed() {
		messages = append(messages, entry.Message)
		assert.Equal(t, "sample", entry.ContextMap()["index"])
	}
	assert.Equal(t, []string{"index created", "index exists already"}, messages)
}

func TestIndexDelete(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	srv.AddIndex("sample")
	index, err := sampledata.NewIndex(client, "sample", nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	deleted, err := index.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, srv.Indices())

	// Deleting a missing index is a no-op.
	deleted, err = index.Delete(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestIndexIngestMore(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	in, err := sampledata.New(client, sampledata.Config{})
	require.NoError(t, err)
	index, err := sampledata.NewIndex(client, "sample", nil, nil)
	require.NoError(t, err)

	opts := sampledata.DefaultIngestOptions()
	opts.Mapping = false
	opts.Number = 4
	docs, err := index.IngestMore(context.Background(), in, shorthandTemplate, opts)
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	assert.Len(t, srv.Documents("sample"), 4)

	opts.Chunk = 0
	_, err = index.IngestMore(context.Background(), in, shorthandTemplate, opts)
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)
}

func TestNewIndexInvalid(t *testing.T) {
	_, err := sampledata.NewIndex(nil, "sample", nil, nil)
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)

	_, client := sampledatatest.NewServer(t)
	_, err = sampledata.NewIndex(client, "", nil, nil)
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)
}

func TestListIndices(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	for _, name := range []string{"sample_5_2_2024", "sample_5_1_2024", "other", "sample"} {
		srv.AddIndex(name)
	}

	names, err := sampledata.ListIndices(context.Background(), client, "sample*")
	require.NoError(t, err)
	assert.Equal(t, []string{"sample", "sample_5_1_2024", "sample_5_2_2024"}, names)

	names, err = sampledata.ListIndices(context.Background(), client, "missing*")
	require.NoError(t, err)
	assert.Empty(t, names)
}
