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

package job

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	sampledata "github.com/elastic/go-sampledata"
)

// PluginAnomalyDetection is the plugin value of job configs whose indices
// are analysed by an anomaly detector.
const PluginAnomalyDetection = "anomaly_detection"

const minutesPerDay = 1440

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is a job config file: the indices to maintain, how to fill them,
// and the plugin to run over them.
type Config struct {
	// Plugin names the plugin to run over the indices. Files without a
	// plugin are data files, not job configs.
	Plugin string `json:"plugin" yaml:"plugin"`

	IngestArgs *IngestArgs    `json:"ingest_args" yaml:"ingest_args"`
	IndexBody  map[string]any `json:"index_body" yaml:"index_body"`
	DaysBefore *int           `json:"days_before" yaml:"days_before"`
	DaysAfter  *int           `json:"days_after" yaml:"days_after"`
	Payload    any            `json:"create_payload" yaml:"create_payload"`

	// path holds the file the config was read from.
	path string
}

// IngestArgs holds the arguments of the ingestion of a single index.
// Unset arguments take the values of sampledata.DefaultIngestOptions.
type IngestArgs struct {
	IndexName             string                   `json:"index_name" yaml:"index_name"`
	DataTemplate          any                      `json:"data_template" yaml:"data_template"`
	FileProvided          bool                     `json:"file_provided" yaml:"file_provided"`
	Mapping               *bool                    `json:"mapping" yaml:"mapping"`
	Number                *int                     `json:"number" yaml:"number"`
	Chunk                 *int                     `json:"chunk" yaml:"chunk"`
	Timestamp             string                   `json:"timestamp" yaml:"timestamp"`
	Minutes               *int                     `json:"minutes" yaml:"minutes"`
	MaxBulkSize           *int                     `json:"max_bulk_size" yaml:"max_bulk_size"`
	AnomalyDetectionTrend []sampledata.TrendConfig `json:"anomaly_detection_trend" yaml:"anomaly_detection_trend"`
}

// Path returns the file c was read from.
func (c Config) Path() string {
	return c.path
}

// Validate checks that the keys every job needs are present. Startup jobs
// additionally need a plugin payload.
func (c Config) Validate(startup bool) error {
	missing := c.IngestArgs == nil || c.IngestArgs.IndexName == "" ||
		c.IndexBody == nil || c.DaysBefore == nil || c.DaysAfter == nil
	if startup {
		missing = missing || c.Payload == nil || c.Plugin == ""
	}
	if missing {
		keys := "ingest_args, index_name, index_body, days_before, days_after"
		if startup {
			keys += ", create_payload, plugin"
		}
		return fmt.Errorf("%w: %s: one or more of the following required keys are missing: %s",
			sampledata.ErrConfiguration, c.path, keys,
		)
	}
	if *c.DaysBefore < 0 || *c.DaysAfter < 0 {
		return fmt.Errorf("%w: %s: days_before and days_after must not be negative",
			sampledata.ErrConfiguration, c.path,
		)
	}
	if c.IngestArgs.Minutes != nil && *c.IngestArgs.Minutes <= 0 {
		return fmt.Errorf("%w: %s: minutes should be a positive integer, got %d",
			sampledata.ErrConfiguration, c.path, *c.IngestArgs.Minutes,
		)
	}
	return nil
}

// Dated reports whether c maintains one index per day rather than a
// single index.
func (c Config) Dated() bool {
	return *c.DaysBefore != 0 || *c.DaysAfter != 0
}

// Options returns the ingest options for an index whose first document is
// stamped with current. When minutes is set, enough documents are
// generated to cover a whole day.
func (a IngestArgs) Options(current time.Time) sampledata.IngestOptions {
	opts := sampledata.DefaultIngestOptions()
	opts.FileProvided = a.FileProvided
	opts.Timestamp = a.Timestamp
	opts.CurrentDate = current
	opts.AnomalyDetectionTrend = a.AnomalyDetectionTrend
	if a.Mapping != nil {
		opts.Mapping = *a.Mapping
	}
	if a.Number != nil {
		opts.Number = *a.Number
	}
	if a.Chunk != nil {
		opts.Chunk = *a.Chunk
	}
	if a.MaxBulkSize != nil {
		opts.MaxBulkSize = *a.MaxBulkSize
	}
	if a.Minutes != nil {
		opts.Minutes = *a.Minutes
		opts.Number = int(math.Ceil(float64(minutesPerDay) / float64(*a.Minutes)))
	}
	return opts
}

// template returns the data template, resolving relative file names
// against dir when the file exists there.
func (a IngestArgs) template(dir string) any {
	name, ok := a.DataTemplate.(string)
	if !ok || !sampledata.IsFileTemplate(name) || filepath.IsAbs(name) {
		return a.DataTemplate
	}
	if p := filepath.Join(dir, name); fileExists(p) {
		return p
	}
	return name
}

// LoadConfig reads a .json or .yaml job config. It reports false for files
// that are not job configs, that is files without a plugin key.
func LoadConfig(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w: %w", sampledata.ErrConfiguration, err)
	}
	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var keys map[string]any
	if err := unmarshal(data, &keys); err != nil {
		return Config{}, false, nil
	}
	if _, ok := keys["plugin"]; !ok {
		return Config{}, false, nil
	}
	cfg := Config{path: path}
	if err := unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w: failed to decode %s: %w", sampledata.ErrConfiguration, path, err)
	}
	return cfg, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
