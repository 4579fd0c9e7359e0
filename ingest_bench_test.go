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
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/fastjson"
	"go.uber.org/zap"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/sampledatatest"
)

const benchmarkTemplate = `{
	"@timestamp": "date_time",
	"host.name": "domain_name",
	"host.ip": "ipv4",
	"user": "user_name",
	"latency": ["float", 4, 2, true],
	"status": ["random_element", ["ok", "degraded", "down"]],
	"tags": ["array", "word", 3]
}`

func BenchmarkIngest(b *testing.B) {
	for _, tc := range []struct {
		name             string
		compressionLevel int
	}{
		{name: "NoCompression", compressionLevel: gzip.NoCompression},
		{name: "BestSpeed", compressionLevel: gzip.BestSpeed},
		{name: "DefaultCompression", compressionLevel: gzip.DefaultCompression},
		{name: "BestCompression", compressionLevel: gzip.BestCompression},
	} {
		b.Run(tc.name, func(b *testing.B) {
			benchmarkIngest(b, sampledata.Config{CompressionLevel: tc.compressionLevel})
		})
	}
}

func BenchmarkIngestError(b *testing.B) {
	client := sampledatatest.NewMockElasticsearchClient(b, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		_, result := sampledatatest.DecodeBulkRequest(r)
		for i, item := range result.Items {
			for k, itemResp := range item {
				itemResp.Status = http.StatusBadRequest
				itemResp.Error.Type = "error_type"
				if i%2 == 0 {
					itemResp.Error.Reason = "error_reason_even. Preview of field's value: 'abc def ghi'"
				} else {
					itemResp.Error.Reason = "error_reason_odd. Preview of field's value: some field value"
				}
				item[k] = itemResp
			}
		}
		result.HasErrors = true
		json.NewEncoder(w).Encode(result)
	})
	in, err := sampledata.New(client, sampledata.Config{
		Logger: zap.NewNop(),
		Faker:  gofakeit.New(1),
	})
	require.NoError(b, err)

	opts := benchmarkOptions()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := in.Ingest(context.Background(), benchmarkTemplate, "sample-benchmark", opts); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkIngest(b *testing.B, cfg sampledata.Config) {
	var indexed atomic.Int64
	client := sampledatatest.NewMockElasticsearchClient(b, func(w http.ResponseWriter, r *http.Request) {
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

		var n int64
		var jsonw fastjson.Writer
		jsonw.RawString(`{"items":[`)
		first := true
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			// Actions are always "index", skip decoding to avoid
			// inflating allocations in benchmark.
			if !scanner.Scan() {
				panic("expected source")
			}
			if first {
				first = false
			} else {
				jsonw.RawByte(',')
			}
			jsonw.RawString(`{"index":{"status":201}}`)
			n++
		}
		require.NoError(b, scanner.Err())
		jsonw.RawString(`]}`)
		w.Write(jsonw.Bytes())
		indexed.Add(n)
	})
	cfg.Logger = zap.NewNop()
	cfg.Faker = gofakeit.New(1)
	in, err := sampledata.New(client, cfg)
	require.NoError(b, err)

	opts := benchmarkOptions()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := in.Ingest(context.Background(), benchmarkTemplate, "sample-benchmark", opts); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	assert.Equal(b, int64(b.N*opts.Number), indexed.Load())
}

func BenchmarkGenerate(b *testing.B) {
	g, err := sampledata.NewGenerator(sampledata.Config{Faker: gofakeit.New(1)})
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Generate(benchmarkTemplate, false); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildBatch(b *testing.B) {
	g, err := sampledata.NewGenerator(sampledata.Config{Faker: gofakeit.New(1)})
	require.NoError(b, err)
	dataset := make([]sampledata.Document, 500)
	for i := range dataset {
		dataset[i], err = g.Generate(benchmarkTemplate, false)
		require.NoError(b, err)
	}
	opts := sampledata.BatchOptions{IndexName: "sample-benchmark", Chunk: 500, MaxBulkBytes: 10 << 20}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch, err := sampledata.BuildBatch(opts, 0, dataset)
		if err != nil {
			b.Fatal(err)
		}
		b.SetBytes(int64(batch.Size))
	}
}

func benchmarkOptions() sampledata.IngestOptions {
	opts := sampledata.DefaultIngestOptions()
	opts.Mapping = false
	opts.Number = 100
	opts.Chunk = 50
	opts.Timestamp = "@timestamp"
	opts.MaxBulkSize = 5 << 20
	opts.CurrentDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return opts
}
