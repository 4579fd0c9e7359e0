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
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/job"
)

func TestRunnerIntegration(t *testing.T) {
	switch strings.ToLower(os.Getenv("INTEGRATION_TESTS")) {
	case "1", "true":
	default:
		t.Skip("Skipping integration test, export INTEGRATION_TESTS=1 to run")
	}

	config := elasticsearch.Config{}
	config.Username = "admin"
	config.Password = "changeme"
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)

	const base = "sample-data-integration"
	today := time.Now()
	names := []string{
		job.IndexName(base, today.AddDate(0, 0, -1)),
		job.IndexName(base, today),
	}
	deleteIndices := func() {
		resp, err := esapi.IndicesDeleteRequest{Index: names}.Do(context.Background(), client)
		require.NoError(t, err)
		defer resp.Body.Close()
	}
	deleteIndices()
	defer deleteIndices()

	// Elasticsearch has no anomaly detection plugin; only the indices are
	// maintained.
	cfg := jobConfig(1, 0)
	cfg["plugin"] = "none"
	cfg["ingest_args"].(map[string]any)["index_name"] = base
	dir := t.TempDir()
	writeJob(t, dir, "job.json", cfg)

	r, err := job.NewRunner(client, job.RunnerConfig{ConfigDir: dir, SettleDelay: -1})
	require.NoError(t, err)
	require.NoError(t, r.Startup(context.Background()))

	resp, err := esapi.IndicesRefreshRequest{Index: names}.Do(context.Background(), client)
	require.NoError(t, err)
	resp.Body.Close()

	for _, name := range names {
		var result struct {
			Count int
		}
		resp, err := esapi.CountRequest{Index: []string{name}}.Do(context.Background(), client)
		require.NoError(t, err)
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, 2, result.Count, name)
	}

	indices, err := sampledata.ListIndices(context.Background(), client, base+"*")
	require.NoError(t, err)
	assert.ElementsMatch(t, names, indices)
}
