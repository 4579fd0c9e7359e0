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
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds configuration for Ingester and the generators it uses.
type Config struct {
	// Logger holds an optional Logger to use for logging field resolution
	// failures and bulk requests.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Tracer holds an optional apm.Tracer to use for tracing bulk requests.
	// Each bulk request is traced as a transaction.
	//
	// If Tracer is nil, requests will not be traced with Elastic APM.
	Tracer *apm.Tracer

	// TracerProvider holds an optional OTel TracerProvider. It is only used
	// when Tracer is nil.
	//
	// If TracerProvider is nil, requests will not be traced with OTel.
	TracerProvider trace.TracerProvider

	// MeterProvider holds the OTel MeterProvider to be used to create and
	// record ingest metrics.
	//
	// If unset, the global OTel MeterProvider will be used, if that is unset,
	// no metrics will be recorded.
	MeterProvider metric.MeterProvider

	// MetricAttributes holds any extra attributes to set in the recorded
	// metrics.
	MetricAttributes attribute.Set

	// CompressionLevel holds the gzip compression level used for bulk
	// request bodies, from 0 (gzip.NoCompression) to 9 (gzip.BestCompression).
	// The special value -1 (gzip.DefaultCompression) selects the default
	// compression level.
	CompressionLevel int

	// Pipeline holds the ingest pipeline ID.
	//
	// If Pipeline is empty, no ingest pipeline will be specified in the Bulk request.
	Pipeline string

	// Faker holds the random source used for every generated value,
	// including array lengths and anomaly draws. Set it to a seeded
	// gofakeit.Faker for reproducible output.
	//
	// If Faker is nil, a randomly seeded Faker will be used.
	Faker *gofakeit.Faker

	// FieldTypes holds additional generators, keyed by field type name.
	// They may replace built-in generators but not the reserved "null",
	// "array" and "keyword" types.
	FieldTypes map[string]FieldTypeFunc

	// Aliases holds additional field type aliases, merged over
	// DefaultAliases. Every alias must name a known generator.
	Aliases Aliases

	// Now returns the current time. It seeds the timestamps assigned to
	// documents loaded from files.
	//
	// If Now is nil, time.Now will be used.
	Now func() time.Time
}

func (cfg Config) logger() *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

func (cfg Config) now() time.Time {
	if cfg.Now == nil {
		return time.Now()
	}
	return cfg.Now()
}
