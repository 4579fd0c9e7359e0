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

package anomalydetection_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/anomalydetection"
	"github.com/elastic/go-sampledata/sampledatatest"
)

const detectorPayload = `{"name": "sample-detector", "time_field": "@timestamp", "detection_interval": {"period": {"interval": 10, "unit": "Minutes"}}}`

func TestDetectorLifecycle(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	d, err := anomalydetection.New(client, anomalydetection.Config{
		Indices:     []string{"sample*"},
		Payload:     detectorPayload,
		ResultIndex: anomalydetection.DefaultResultIndex,
		DaysAgo:     3,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.Empty(t, d.ID())

	ctx := context.Background()
	require.NoError(t, d.Create(ctx))
	assert.Equal(t, "detector-1", d.ID())

	detectors := srv.Detectors()
	require.Len(t, detectors, 1)
	body := detectors[0].Body
	assert.Equal(t, "sample-detector", body["name"])
	assert.Equal(t, []any{"sample*"}, body["indices"])
	assert.Equal(t, anomalydetection.DefaultResultIndex, body["result_index"])

	require.NoError(t, d.Start(ctx, false))
	require.NoError(t, d.Start(ctx, true))
	detectors = srv.Detectors()
	assert.True(t, detectors[0].Started)
	assert.True(t, detectors[0].Historical)
	assert.Equal(t, map[string]int64{
		"start_time": now.AddDate(0, 0, -3).UnixMilli(),
		"end_time":   now.UnixMilli(),
	}, detectors[0].HistoryBody)

	require.NoError(t, d.Stop(ctx, true))
	assert.False(t, srv.Detectors()[0].Historical)
	assert.True(t, srv.Detectors()[0].Started)
	require.NoError(t, d.Stop(ctx, false))
	assert.False(t, srv.Detectors()[0].Started)

	require.NoError(t, d.Delete(ctx))
	assert.Empty(t, d.ID())
	assert.Empty(t, srv.Detectors())
}

func TestDetectorDefaultDaysAgo(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	d, err := anomalydetection.New(client, anomalydetection.Config{
		Indices: []string{"sample*"},
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Create(ctx))
	require.NoError(t, d.Start(ctx, true))
	detectors := srv.Detectors()
	require.Len(t, detectors, 1)
	assert.NotContains(t, detectors[0].Body, "result_index")
	assert.Equal(t, now.AddDate(0, 0, -7).UnixMilli(), detectors[0].HistoryBody["start_time"])
}

func TestDetectorNotCreated(t *testing.T) {
	_, client := sampledatatest.NewServer(t)
	d, err := anomalydetection.New(client, anomalydetection.Config{Indices: []string{"sample*"}})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, d.Start(ctx, false), anomalydetection.ErrDetectorNotCreated)
	assert.ErrorIs(t, d.Stop(ctx, false), anomalydetection.ErrDetectorNotCreated)
	assert.ErrorIs(t, d.Delete(ctx), anomalydetection.ErrDetectorNotCreated)
}

func TestDetectorRecreate(t *testing.T) {
	srv, client := sampledatatest.NewServer(t)
	d, err := anomalydetection.New(client, anomalydetection.Config{Indices: []string{"sample*"}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Create(ctx))
	first := d.ID()
	require.NoError(t, d.Delete(ctx))
	assert.ErrorIs(t, d.Start(ctx, false), anomalydetection.ErrDetectorNotCreated)

	require.NoError(t, d.Create(ctx))
	assert.NotEqual(t, first, d.ID())
	require.Len(t, srv.Detectors(), 1)
}

func TestDetectorConnectionFailure(t *testing.T) {
	// The bulk-only mock answers every plugin request with 404.
	client := sampledatatest.NewMockElasticsearchClient(t, func(w http.ResponseWriter, r *http.Request) {})
	d, err := anomalydetection.New(client, anomalydetection.Config{Indices: []string{"sample*"}})
	require.NoError(t, err)

	err = d.Create(context.Background())
	assert.ErrorIs(t, err, sampledata.ErrConnectionFailure)
	assert.Empty(t, d.ID())
}

func TestDetectorPayloadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "detector.json")
	require.NoError(t, os.WriteFile(plain, []byte(detectorPayload), 0o644))

	compressed := filepath.Join(dir, "compressed.json.gz")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(detectorPayload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	for _, payload := range []any{plain, compressed, []byte(detectorPayload), map[string]any{"name": "sample-detector"}} {
		srv, client := sampledatatest.NewServer(t)
		d, err := anomalydetection.New(client, anomalydetection.Config{
			Indices: []string{"sample*"},
			Payload: payload,
		})
		require.NoError(t, err)
		require.NoError(t, d.Create(context.Background()))
		detectors := srv.Detectors()
		require.Len(t, detectors, 1)
		assert.Equal(t, "sample-detector", detectors[0].Body["name"])
	}

	// Decompressed copies are removed once read.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"detector.json", "compressed.json.gz"}, names)
}

func TestNewDetectorInvalid(t *testing.T) {
	_, client := sampledatatest.NewServer(t)
	for name, cfg := range map[string]anomalydetection.Config{
		"no_indices":       {},
		"negative_days":    {Indices: []string{"sample*"}, DaysAgo: -1},
		"invalid_payload":  {Indices: []string{"sample*"}, Payload: `{"name": `},
		"array_payload":    {Indices: []string{"sample*"}, Payload: `[1, 2]`},
		"unsupported_type": {Indices: []string{"sample*"}, Payload: 42},
		"missing_file":     {Indices: []string{"sample*"}, Payload: filepath.Join(t.TempDir(), "missing.json")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := anomalydetection.New(client, cfg)
			assert.ErrorIs(t, err, sampledata.ErrConfiguration)
		})
	}

	_, err := anomalydetection.New(nil, anomalydetection.Config{Indices: []string{"sample*"}})
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)
}
