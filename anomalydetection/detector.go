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

// Package anomalydetection manages OpenSearch anomaly detectors over sample
// data indices.
package anomalydetection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/esapi"
)

// DefaultResultIndex holds the index detectors created by sample data jobs
// write their results to.
const DefaultResultIndex = "opensearch-ad-plugin-result-index"

// ErrDetectorNotCreated is returned by operations on a Detector that has
// not been created yet.
var ErrDetectorNotCreated = errors.New("anomaly detector has not been created")

// Plugin is a backend plugin with a create, start, stop and delete
// lifecycle.
type Plugin interface {
	Create(ctx context.Context) error
	Start(ctx context.Context, historical bool) error
	Stop(ctx context.Context, historical bool) error
	Delete(ctx context.Context) error
}

// Config holds configuration for Detector.
type Config struct {
	// Indices holds the indices, or index patterns, the detector reads.
	Indices []string

	// Payload holds the detector definition, as a map, a JSON string, or
	// the name of a .json file, optionally gzip compressed.
	Payload any

	// ResultIndex holds an optional custom index to write results to.
	ResultIndex string

	// DaysAgo holds how many days back a historical analysis starts.
	//
	// If DaysAgo is zero, 7 days will be used.
	DaysAgo int

	// Logger holds an optional Logger to use for logging detector
	// responses.
	Logger *zap.Logger

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// Detector is an anomaly detector managed through the anomaly detection
// plugin API.
type Detector struct {
	client  esapi.Transport
	config  Config
	payload map[string]any
	logger  *zap.Logger
	id      string
}

var _ Plugin = (*Detector)(nil)

// New returns a Detector which has yet to be created.
func New(client esapi.Transport, cfg Config) (*Detector, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", sampledata.ErrConfiguration)
	}
	if len(cfg.Indices) == 0 {
		return nil, fmt.Errorf("%w: at least one index is required", sampledata.ErrConfiguration)
	}
	if cfg.DaysAgo < 0 {
		return nil, fmt.Errorf("%w: days ago must not be negative, got %d", sampledata.ErrConfiguration, cfg.DaysAgo)
	}
	if cfg.DaysAgo == 0 {
		cfg.DaysAgo = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	payload, err := loadPayload(cfg.Payload)
	if err != nil {
		return nil, err
	}
	return &Detector{
		client:  client,
		config:  cfg,
		payload: payload,
		logger:  logger.With(zap.Strings("indices", cfg.Indices)),
	}, nil
}

// ID returns the detector ID, or "" if it has not been created.
func (d *Detector) ID() string {
	return d.id
}

// Create creates the detector from its payload, reading the configured
// indices and writing to the configured result index.
func (d *Detector) Create(ctx context.Context) error {
	body := make(map[string]any, len(d.payload)+2)
	for k, v := range d.payload {
		body[k] = v
	}
	body["indices"] = d.config.Indices
	if d.config.ResultIndex != "" {
		body["result_index"] = d.config.ResultIndex
	}
	data, err := jsoniter.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode detector: %w", sampledata.ErrConfiguration, err)
	}

	var resp struct {
		ID string `json:"_id"`
	}
	if err := d.do(ctx, "create", esapi.AnomalyDetectorCreateRequest{Body: bytes.NewReader(data)}, &resp); err != nil {
		return err
	}
	if resp.ID == "" {
		return fmt.Errorf("%w: detector has improper configurations or already exists", sampledata.ErrConfiguration)
	}
	d.id = resp.ID
	d.logger.Info("anomaly detector created", zap.String("detector_id", d.id))
	return nil
}

// Start starts the real-time detector, or a historical analysis over the
// last DaysAgo days.
func (d *Detector) Start(ctx context.Context, historical bool) error {
	if d.id == "" {
		return ErrDetectorNotCreated
	}
	req := esapi.AnomalyDetectorStartRequest{DetectorID: d.id}
	if historical {
		end := d.config.Now()
		start := end.AddDate(0, 0, -d.config.DaysAgo)
		data, err := jsoniter.Marshal(map[string]int64{
			"start_time": start.UnixMilli(),
			"end_time":   end.UnixMilli(),
		})
		if err != nil {
			return err
		}
		req.Body = bytes.NewReader(data)
	}
	return d.do(ctx, "start", req, nil)
}

// Stop stops the real-time detector, or its historical analysis.
func (d *Detector) Stop(ctx context.Context, historical bool) error {
	if d.id == "" {
		return ErrDetectorNotCreated
	}
	return d.do(ctx, "stop", esapi.AnomalyDetectorStopRequest{DetectorID: d.id, Historical: historical}, nil)
}

// Delete deletes the detector.
func (d *Detector) Delete(ctx context.Context) error {
	if d.id == "" {
		return ErrDetectorNotCreated
	}
	if err := d.do(ctx, "delete", esapi.AnomalyDetectorDeleteRequest{DetectorID: d.id}, nil); err != nil {
		return err
	}
	d.id = ""
	return nil
}

type request interface {
	Do(context.Context, esapi.Transport) (*esapi.Response, error)
}

func (d *Detector) do(ctx context.Context, op string, req request, out any) error {
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("%w: anomaly detector failed to %s: %w", sampledata.ErrConnectionFailure, op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: anomaly detector failed to %s: %s", sampledata.ErrConnectionFailure, op, res.String())
	}
	if out != nil {
		if err := jsoniter.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	d.logger.Debug("anomaly detector request completed",
		zap.String("operation", op),
		zap.String("detector_id", d.id),
	)
	return nil
}

// loadPayload converts a map, JSON string or .json file name to a map.
func loadPayload(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return p, nil
	case string:
		if strings.Contains(p, ".json") && !strings.HasPrefix(strings.TrimSpace(p), "{") {
			return loadPayloadFile(p)
		}
		return decodePayload([]byte(p))
	case []byte:
		return decodePayload(p)
	}
	return nil, fmt.Errorf("%w: payload can only be a map, a JSON string or a file name, got %T", sampledata.ErrConfiguration, payload)
}

func loadPayloadFile(path string) (_ map[string]any, err error) {
	name, cleanup, err := sampledata.Decompress(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sampledata.ErrConfiguration, err)
	}
	return decodePayload(data)
}

func decodePayload(data []byte) (map[string]any, error) {
	var payload map[string]any
	if err := jsoniter.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload should be a JSON object: %w", sampledata.ErrConfiguration, err)
	}
	return payload, nil
}
