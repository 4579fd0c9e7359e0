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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	flushDuration          metric.Float64Histogram
	docsGenerated          metric.Int64Counter
	anomaliesInjected      metric.Int64Counter
	bulkRequests           metric.Int64Counter
	docsIndexed            metric.Int64Counter
	bytesTotal             metric.Int64Counter
	bytesUncompressedTotal metric.Int64Counter
}

type histogramMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Float64Histogram
}

type counterMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Int64Counter
}

func newMetrics(cfg Config) (*metrics, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("github.com/elastic/go-sampledata")
	ms := metrics{}
	histograms := []histogramMetric{
		{
			name:        "sampledata.flushed.latency",
			description: "The amount of time a _bulk request took, in seconds.",
			unit:        "s",
			p:           &ms.flushDuration,
		},
	}
	for _, m := range histograms {
		if err := newFloat64Histogram(meter, m); err != nil {
			return &ms, err
		}
	}

	counters := []counterMetric{
		{
			name:        "sampledata.documents.generated",
			description: "The number of documents generated or loaded for ingestion.",
			p:           &ms.docsGenerated,
		},
		{
			name:        "sampledata.anomalies.injected",
			description: "The number of feature values replaced by an anomaly.",
			p:           &ms.anomaliesInjected,
		},
		{
			name:        "sampledata.bulk_requests.count",
			description: "The number of bulk requests completed.",
			p:           &ms.bulkRequests,
		},
		{
			name:        "sampledata.documents.indexed",
			description: "The number of documents processed by bulk requests, by status.",
			p:           &ms.docsIndexed,
		},
		{
			name:        "sampledata.flushed.bytes",
			description: "The total number of bytes written to the request body",
			unit:        "by",
			p:           &ms.bytesTotal,
		},
		{
			name:        "sampledata.flushed.uncompressed.bytes",
			description: "The total number of uncompressed bytes written to the request body",
			unit:        "by",
			p:           &ms.bytesUncompressedTotal,
		},
	}
	for _, m := range counters {
		if err := newInt64Counter(meter, m); err != nil {
			return &ms, err
		}
	}
	return &ms, nil
}

func newInt64Counter(meter metric.Meter, c counterMetric) error {
	unit := c.unit
	if unit == "" {
		unit = "1"
	}
	m, err := meter.Int64Counter(
		c.name,
		metric.WithUnit(unit),
		metric.WithDescription(c.description),
	)
	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", c.name, err,
		)
	}
	*c.p = m
	return nil
}

func newFloat64Histogram(meter metric.Meter, h histogramMetric) error {
	m, err := meter.Float64Histogram(
		h.name,
		metric.WithUnit(h.unit),
		metric.WithDescription(h.description),
	)
	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", h.name, err,
		)
	}
	*h.p = m
	return nil
}
