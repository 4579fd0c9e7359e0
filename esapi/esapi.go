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

// Package esapi contains requests for the OpenSearch anomaly detection plugin
// API, written in the style of https://github.com/elastic/go-elasticsearch/tree/main/esapi
// so that they can be performed with the same transports.
package esapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	goesapi "github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	headerContentType     = "Content-Type"
	headerContentTypeJSON = "application/json"

	detectorsPath = "/_plugins/_anomaly_detection/detectors"
)

// Transport defines the interface for an API client.
type Transport interface {
	Perform(*http.Request) (*http.Response, error)
}

// Response is the API response.
type Response = goesapi.Response

// AnomalyDetectorCreateRequest creates an anomaly detector.
type AnomalyDetectorCreateRequest struct {
	Body io.Reader

	Header http.Header
}

// Do executes the request and returns response or error.
func (r AnomalyDetectorCreateRequest) Do(ctx context.Context, transport Transport) (*Response, error) {
	return perform(ctx, transport, http.MethodPost, detectorsPath, nil, r.Body, r.Header)
}

// AnomalyDetectorStartRequest starts a real-time detector, or a historical
// analysis when Body holds a start_time and end_time.
type AnomalyDetectorStartRequest struct {
	DetectorID string
	Body       io.Reader

	Header http.Header
}

// Do executes the request and returns response or error.
func (r AnomalyDetectorStartRequest) Do(ctx context.Context, transport Transport) (*Response, error) {
	return perform(ctx, transport, http.MethodPost, detectorPath(r.DetectorID, "_start"), nil, r.Body, r.Header)
}

// AnomalyDetectorStopRequest stops a real-time detector, or its historical
// analysis when Historical is set.
type AnomalyDetectorStopRequest struct {
	DetectorID string
	Historical bool

	Header http.Header
}

// Do executes the request and returns response or error.
func (r AnomalyDetectorStopRequest) Do(ctx context.Context, transport Transport) (*Response, error) {
	var params url.Values
	if r.Historical {
		params = url.Values{"historical": []string{"true"}}
	}
	return perform(ctx, transport, http.MethodPost, detectorPath(r.DetectorID, "_stop"), params, nil, r.Header)
}

// AnomalyDetectorDeleteRequest deletes a detector.
type AnomalyDetectorDeleteRequest struct {
	DetectorID string

	Header http.Header
}

// Do executes the request and returns response or error.
func (r AnomalyDetectorDeleteRequest) Do(ctx context.Context, transport Transport) (*Response, error) {
	return perform(ctx, transport, http.MethodDelete, detectorPath(r.DetectorID, ""), nil, nil, r.Header)
}

func detectorPath(id, action string) string {
	var path strings.Builder
	path.Grow(len(detectorsPath) + 1 + len(id) + 1 + len(action))
	path.WriteString(detectorsPath)
	path.WriteString("/")
	path.WriteString(url.PathEscape(id))
	if action != "" {
		path.WriteString("/")
		path.WriteString(action)
	}
	return path.String()
}

func perform(ctx context.Context, transport Transport, method, path string, params url.Values, body io.Reader, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get(headerContentType) == "" {
		req.Header.Set(headerContentType, headerContentTypeJSON)
	}

	res, err := transport.Perform(req)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: res.StatusCode,
		Body:       res.Body,
		Header:     res.Header,
	}, nil
}
