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

package job_test

import (
	"archive/tar"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/anomalydetection"
	"github.com/elastic/go-sampledata/job"
	"github.com/elastic/go-sampledata/sampledatatest"
)

var testNow = time.Date(2024, 5, 8, 15, 0, 0, 0, time.UTC)

func jobConfig(before, after int) map[string]any {
	return map[string]any{
		"plugin": job.PluginAnomalyDetection,
		"ingest_args": map[string]any{
			"index_name":    "sample",
			"data_template": map[string]any{"value": []any{"integer", 40, 60}},
			"mapping":       false,
			"timestamp":     "@timestamp",
			"minutes":       720,
		},
		"index_body":     map[string]any{"settings": map[string]any{"number_of_shards": 1}},
		"days_before":    before,
		"days_after":     after,
		"create_payload": map[string]any{"name": "sample-detector", "time_field": "@timestamp"},
	}
}

func encodeJob(t testing.TB, cfg map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	return data
}

func writeJob(t testing.TB, dir, name string, cfg map[string]any) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), encodeJob(t, cfg), 0o644))
}

func newRunner(t testing.TB, dir string, logger *zap.Logger) (*sampledatatest.Server, *job.Runner) {
	t.Helper()
	srv, client := sampledatatest.NewServer(t)
	r, err := job.NewRunner(client, job.RunnerConfig{
		ConfigDir:   dir,
		Ingest:      sampledata.Config{Logger: logger},
		SettleDelay: -1,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return srv, r
}

func TestStartup(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "job.json", jobConfig(1, 1))
	srv, r := newRunner(t, dir, nil)
	srv.AddIndex("sample_5_9_2024")

	require.NoError(t, r.Startup(context.Background()))
	assert.Equal(t, []string{"sample_5_7_2024", "sample_5_8_2024", "sample_5_9_2024"}, srv.Indices())

	// Two documents, twelve hours apart, cover each day.
	for _, name := range []string{"sample_5_7_2024", "sample_5_8_2024"} {
		docs := srv.Documents(name)
		require.Len(t, docs, 2, name)
		var body map[string]any
		require.NoError(t, json.Unmarshal(srv.IndexBody(name), &body))
		assert.Equal(t, map[string]any{"number_of_shards": float64(1)}, body["settings"])
	}
	var first map[string]any
	require.NoError(t, json.Unmarshal(srv.Documents("sample_5_7_2024")[0], &first))
	assert.Equal(t, "2024-05-07T00:00:00Z", first["@timestamp"])
	var second map[string]any
	require.NoError(t, json.Unmarshal(srv.Documents("sample_5_7_2024")[1], &second))
	assert.Equal(t, "2024-05-07T12:00:00Z", second["@timestamp"])

	// Existing indices are left untouched.
	assert.Empty(t, srv.Documents("sample_5_9_2024"))

	detectors := srv.Detectors()
	require.Len(t, detectors, 1)
	d := detectors[0]
	assert.Equal(t, "sample-detector", d.Body["name"])
	assert.Equal(t, []any{"sample*"}, d.Body["indices"])
	assert.Equal(t, anomalydetection.DefaultResultIndex, d.Body["result_index"])
	assert.True(t, d.Started)
	assert.True(t, d.Historical)
	assert.Equal(t, map[string]int64{
		"start_time": testNow.AddDate(0, 0, -1).UnixMilli(),
		"end_time":   testNow.UnixMilli(),
	}, d.HistoryBody)
}

func TestStartupSingleIndex(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "job.json", jobConfig(0, 0))
	srv, r := newRunner(t, dir, nil)

	require.NoError(t, r.Startup(context.Background()))
	assert.Equal(t, []string{"sample"}, srv.Indices())
	require.Len(t, srv.Documents("sample"), 2)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(srv.Documents("sample")[0], &doc))
	assert.Equal(t, testNow.Format(time.RFC3339), doc["@timestamp"])

	detectors := srv.Detectors()
	require.Len(t, detectors, 1)
	// Historical analysis defaults to a week.
	assert.Equal(t, testNow.AddDate(0, 0, -7).UnixMilli(), detectors[0].HistoryBody["start_time"])

	// Refresh leaves single indices alone.
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{"sample"}, srv.Indices())
	assert.Len(t, srv.Documents("sample"), 2)
}

func TestStartupUnsupportedPlugin(t *testing.T) {
	dir := t.TempDir()
	cfg := jobConfig(0, 0)
	cfg["plugin"] = "alerting"
	writeJob(t, dir, "job.json", cfg)

	core, observed := observer.New(zapcore.WarnLevel)
	srv, r := newRunner(t, dir, zap.New(core))
	require.NoError(t, r.Startup(context.Background()))
	assert.Equal(t, []string{"sample"}, srv.Indices())
	assert.Empty(t, srv.Detectors())

	logs := observed.FilterMessage("unsupported plugin, skipping").AllUntimed()
	require.Len(t, logs, 1)
	assert.Equal(t, "alerting", logs[0].ContextMap()["plugin"])
}

func TestStartupMissingKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := jobConfig(1, 1)
	delete(cfg, "create_payload")
	writeJob(t, dir, "job.json", cfg)

	srv, r := newRunner(t, dir, nil)
	err := r.Startup(context.Background())
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)
	assert.Empty(t, srv.Indices())

	// The refresh job has no use for the payload.
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{"sample_5_8_2024", "sample_5_9_2024"}, srv.Indices())
}

func TestStartupSkipsDataFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"message": "hello"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a config"), 0o644))

	srv, r := newRunner(t, dir, nil)
	require.NoError(t, r.Startup(context.Background()))
	assert.Empty(t, srv.Indices())
}

func TestStartupFileTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.ndjson"),
		[]byte(`{"message": "a"}`+"\n"+`{"message": "b"}`+"\n"+`{"message": "c"}`+"\n"), 0o644,
	))
	cfg := jobConfig(0, 0)
	cfg["ingest_args"] = map[string]any{
		"index_name":    "sample",
		"data_template": "data.ndjson",
		"file_provided": true,
		"timestamp":     "@timestamp",
		"minutes":       10,
	}
	writeJob(t, dir, "job.json", cfg)

	srv, r := newRunner(t, dir, nil)
	require.NoError(t, r.Startup(context.Background()))
	docs := srv.Documents("sample")
	require.Len(t, docs, 3)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(docs[0], &doc))
	assert.Equal(t, "a", doc["message"])
	assert.Equal(t, float64(testNow.AddDate(0, 0, -7).Add(10*time.Minute).Unix()), doc["@timestamp"])
}

func TestStartupArchives(t *testing.T) {
	dir := t.TempDir()

	// One job in a tarball, another gzip compressed.
	archive := filepath.Join(dir, "jobs.tar.gz")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	data := encodeJob(t, jobConfig(0, 0))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "tarred.json", Mode: 0o644, Size: int64(len(data))}))
	_, err = tw.Write(data)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := jobConfig(0, 0)
	cfg["ingest_args"].(map[string]any)["index_name"] = "compressed"
	f, err = os.Create(filepath.Join(dir, "compressed.json.gz"))
	require.NoError(t, err)
	zw = gzip.NewWriter(f)
	_, err = zw.Write(encodeJob(t, cfg))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	srv, r := newRunner(t, dir, nil)
	require.NoError(t, r.Startup(context.Background()))
	assert.Equal(t, []string{"compressed", "sample"}, srv.Indices())
	assert.Len(t, srv.Detectors(), 2)

	// Extracted and decompressed files are removed again.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"jobs.tar.gz", "compressed.json.gz"}, names)
}

func TestStartupArchiveEscape(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "jobs.tar.gz"))
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	data := encodeJob(t, jobConfig(0, 0))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escaped.json", Mode: 0o644, Size: int64(len(data))}))
	_, err = tw.Write(data)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	srv, r := newRunner(t, dir, nil)
	err = r.Startup(context.Background())
	assert.ErrorIs(t, err, sampledata.ErrFileFormat)
	assert.Empty(t, srv.Indices())
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escaped.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRefresh(t *testing.T) {
	dir := t.TempDir()
	writeJob(t, dir, "job.json", jobConfig(1, 1))
	srv, r := newRunner(t, dir, nil)
	for _, name := range []string{
		"sample",
		"sample_x",
		"sample_5_1_2024",
		"sample_5_6_2024",
		"sample_5_7_2024",
		"other_5_1_2024",
	} {
		srv.AddIndex(name)
	}

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{
		"other_5_1_2024",
		"sample",
		"sample_5_7_2024",
		"sample_5_8_2024",
		"sample_5_9_2024",
		"sample_x",
	}, srv.Indices())
	assert.Len(t, srv.Documents("sample_5_8_2024"), 2)
	assert.Len(t, srv.Documents("sample_5_9_2024"), 2)
	assert.Empty(t, srv.Detectors())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(srv.Documents("sample_5_9_2024")[0], &doc))
	assert.Equal(t, "2024-05-09T00:00:00Z", doc["@timestamp"])
}

func TestNewRunnerInvalid(t *testing.T) {
	_, client := sampledatatest.NewServer(t)
	_, err := job.NewRunner(nil, job.RunnerConfig{ConfigDir: "config"})
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)

	_, err = job.NewRunner(client, job.RunnerConfig{})
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)

	_, err = job.NewRunner(client, job.RunnerConfig{ConfigDir: "config", MaxConcurrentIndices: -1})
	assert.ErrorIs(t, err, sampledata.ErrConfiguration)

	r, err := job.NewRunner(client, job.RunnerConfig{ConfigDir: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	assert.ErrorIs(t, r.Startup(context.Background()), sampledata.ErrConfiguration)
}
