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
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/fastjson"

	sampledata "github.com/elastic/go-sampledata"
)

func newDataset(n int) []sampledata.Document {
	dataset := make([]sampledata.Document, n)
	for i := range dataset {
		dataset[i] = sampledata.Document{"message": strings.Repeat("x", 10), "n": i}
	}
	return dataset
}

func TestBulkHeader(t *testing.T) {
	var w fastjson.Writer
	require.NoError(t, sampledata.BulkHeader{Index: "logs"}.MarshalFastJSON(&w))
	assert.Equal(t, `{"index":{"_index":"logs"}}`, string(w.Bytes()))
}

func TestBuildBatchChunks(t *testing.T) {
	dataset := newDataset(12)
	opts := sampledata.BatchOptions{IndexName: "logs", Chunk: 5, MaxBulkBytes: 100000}

	var sizes []int
	for next := 0; next < len(dataset); {
		batch, err := sampledata.BuildBatch(opts, next, dataset)
		require.NoError(t, err)
		require.Equal(t, next+batch.Len(), batch.Next)
		assert.Len(t, batch.Pairs(), 2*batch.Len())
		for i, a := range batch.Actions {
			assert.Equal(t, "logs", a.Header.Index)
			assert.Equal(t, next+i, a.Document["n"])
		}
		sizes = append(sizes, batch.Len())
		next = batch.Next
	}
	assert.Equal(t, []int{5, 5, 2}, sizes)
}

func TestBuildBatchSize(t *testing.T) {
	dataset := newDataset(10)
	var line bytes.Buffer
	line.WriteString(`{"index":{"_index":"logs"}}` + "\n")
	_, err := dataset[0].WriteTo(&line)
	require.NoError(t, err)
	line.WriteByte('\n')
	pairSize := line.Len()

	// Room for three pairs, but not four.
	opts := sampledata.BatchOptions{IndexName: "logs", Chunk: 10, MaxBulkBytes: 4 * pairSize}
	batch, err := sampledata.BuildBatch(opts, 0, dataset)
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Len())
	assert.Equal(t, 3, batch.Next)
	assert.Equal(t, 3*pairSize, batch.Size)
	assert.Less(t, batch.Size, opts.MaxBulkBytes)
}

func TestBuildBatchDocumentTooLarge(t *testing.T) {
	dataset := newDataset(2)
	opts := sampledata.BatchOptions{IndexName: "logs", Chunk: 5, MaxBulkBytes: 10}
	batch, err := sampledata.BuildBatch(opts, 0, dataset)
	assert.ErrorIs(t, err, sampledata.ErrDocumentTooLarge)
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, 0, batch.Next)
}

func TestBuildBatchFileTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	dataset := newDataset(3)
	opts := sampledata.BatchOptions{
		IndexName:      "logs",
		FileProvided:   true,
		TimestampField: "@timestamp",
		Minutes:        10,
		Chunk:          5,
		MaxBulkBytes:   100000,
		Now:            func() time.Time { return now },
	}
	batch, err := sampledata.BuildBatch(opts, 0, dataset)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Len())

	weekAgo := now.AddDate(0, 0, -7)
	for i, doc := range dataset {
		want := weekAgo.Add(time.Duration(i+1) * 10 * time.Minute).Unix()
		assert.Equal(t, want, doc["@timestamp"])
	}
}

func TestBuildBatchInvalidOptions(t *testing.T) {
	dataset := newDataset(1)
	for name, opts := range map[string]sampledata.BatchOptions{
		"missing_index":  {Chunk: 1, MaxBulkBytes: 100},
		"zero_chunk":     {IndexName: "logs", MaxBulkBytes: 100},
		"zero_max_bytes": {IndexName: "logs", Chunk: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := sampledata.BuildBatch(opts, 0, dataset)
			assert.ErrorIs(t, err, sampledata.ErrConfiguration)
		})
	}
	_, err := sampledata.BuildBatch(sampledata.BatchOptions{IndexName: "logs", Chunk: 1, MaxBulkBytes: 100}, 2, dataset)
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)
}
