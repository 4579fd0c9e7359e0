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
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"go.elastic.co/apm/module/apmzap/v2"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BulkWriter issues bulk requests.
type BulkWriter interface {
	Bulk(ctx context.Context, batch BulkBatch) (BulkIndexerResponseStat, error)
}

// IngestOptions holds the options for a single Ingest call.
type IngestOptions struct {
	// Mapping reports whether the template is a mapping rather than a
	// shorthand.
	Mapping bool

	// FileProvided reports whether the template names a file of documents
	// to load as they are, rather than a template to generate from.
	FileProvided bool

	// Number holds the number of times the template is generated.
	Number int

	// Chunk holds the maximum number of documents per bulk request.
	Chunk int

	// Timestamp holds the name of the timestamp field, if any.
	Timestamp string

	// Minutes holds the interval between the timestamps of consecutive
	// documents.
	Minutes int

	// CurrentDate holds the timestamp of the first generated document.
	// If zero, Config.Now is used.
	CurrentDate time.Time

	// MaxBulkSize holds the size in bytes a bulk request must stay below.
	MaxBulkSize int

	// AnomalyDetectionTrend holds the trends applied to every generated
	// document, in order.
	AnomalyDetectionTrend []TrendConfig
}

// DefaultIngestOptions returns the options used when generating sample data
// without further configuration.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		Mapping:     true,
		Number:      6,
		Chunk:       5,
		Minutes:     2,
		MaxBulkSize: 100000,
	}
}

// Ingester generates documents and indexes them with bulk requests.
//
// Ingest may be called concurrently. Documents are generated by one call
// at a time, as they share a single random source, while bulk requests
// are issued concurrently.
type Ingester struct {
	writer    BulkWriter
	generator *Generator
	config    Config
	metrics   *metrics

	// mu is held while building a dataset.
	mu sync.Mutex

	// tracer is an OTel tracer, and should not be confused with
	// `config.Tracer` which is an Elastic APM Tracer.
	tracer trace.Tracer
}

// New returns an Ingester writing to client through a BulkIndexer.
func New(client elastictransport.Interface, cfg Config) (*Ingester, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrConfiguration)
	}
	w, err := NewBulkIndexer(BulkIndexerConfig{
		Client:           client,
		CompressionLevel: cfg.CompressionLevel,
		Pipeline:         cfg.Pipeline,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return NewIngester(w, cfg)
}

// NewIngester returns an Ingester writing bulk requests to w.
func NewIngester(w BulkWriter, cfg Config) (*Ingester, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: bulk writer is nil", ErrConfiguration)
	}
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"%w: expected CompressionLevel in range [-1,9], got %d",
			ErrConfiguration, cfg.CompressionLevel,
		)
	}
	g, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	ms, err := newMetrics(cfg)
	if err != nil {
		return nil, err
	}
	in := &Ingester{
		writer:    w,
		generator: g,
		config:    cfg,
		metrics:   ms,
	}
	if cfg.TracerProvider != nil {
		in.tracer = cfg.TracerProvider.Tracer("github.com/elastic/go-sampledata.ingester")
	}
	return in, nil
}

// Generator returns the Generator used by i.
func (i *Ingester) Generator() *Generator {
	return i.generator
}

// Ingest builds a dataset from template and indexes it into indexName.
//
// If opts.FileProvided is set, template names a file whose documents are
// indexed as they are. Otherwise template is generated opts.Number times,
// either passing every document through the configured trends or stamping
// opts.Timestamp with the simulated date.
//
// Ingest returns the dataset it built. A failed bulk request aborts
// ingestion with ErrConnectionFailure; documents rejected individually are
// logged and counted only.
func (i *Ingester) Ingest(ctx context.Context, template any, indexName string, opts IngestOptions) ([]Document, error) {
	trends, err := i.validate(template, indexName, opts)
	if err != nil {
		return nil, err
	}
	i.mu.Lock()
	dataset, err := i.buildDataset(template, opts, trends)
	i.mu.Unlock()
	if err != nil {
		return nil, err
	}
	attrs := metric.WithAttributeSet(i.config.MetricAttributes)
	i.metrics.docsGenerated.Add(context.Background(), int64(len(dataset)), attrs)

	link := linkedTraceContextFrom(ctx)
	batchOpts := BatchOptions{
		IndexName:      indexName,
		FileProvided:   opts.FileProvided,
		TimestampField: opts.Timestamp,
		Minutes:        opts.Minutes,
		Chunk:          opts.Chunk,
		MaxBulkBytes:   opts.MaxBulkSize,
		Now:            i.config.Now,
	}
	for next := 0; next < len(dataset); {
		batch, err := BuildBatch(batchOpts, next, dataset)
		if err != nil {
			return dataset, err
		}
		if err := checkBatch(batch, next); err != nil {
			return dataset, err
		}
		if err := i.flush(ctx, batch, link); err != nil {
			return dataset, fmt.Errorf("%w: %w", ErrConnectionFailure, err)
		}
		next = batch.Next
	}
	return dataset, nil
}

func (i *Ingester) validate(template any, indexName string, opts IngestOptions) ([]*AverageTrend, error) {
	switch t := template.(type) {
	case nil:
		return nil, fmt.Errorf("%w: template is required", ErrConfiguration)
	case string:
		if t == "" {
			return nil, fmt.Errorf("%w: template is required", ErrConfiguration)
		}
	}
	if indexName == "" {
		return nil, fmt.Errorf("%w: index name is required", ErrConfiguration)
	}
	if opts.FileProvided && !IsFileTemplate(template) {
		return nil, fmt.Errorf("%w: a file name is required when a file is provided", ErrConfiguration)
	}
	if opts.Number < 0 {
		return nil, fmt.Errorf("%w: number should be a positive integer, got %d", ErrConfiguration, opts.Number)
	}
	if opts.Chunk <= 0 {
		return nil, fmt.Errorf("%w: chunk should be a positive integer, got %d", ErrConfiguration, opts.Chunk)
	}
	if opts.Minutes < 0 {
		return nil, fmt.Errorf("%w: minutes should be a positive integer, got %d", ErrConfiguration, opts.Minutes)
	}
	if opts.MaxBulkSize <= 0 {
		return nil, fmt.Errorf("%w: max bulk size should be a positive integer, got %d", ErrConfiguration, opts.MaxBulkSize)
	}
	trends := make([]*AverageTrend, 0, len(opts.AnomalyDetectionTrend))
	for _, cfg := range opts.AnomalyDetectionTrend {
		t, err := NewAverageTrend(cfg, opts.Timestamp, i.generator.Resolver())
		if err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	return trends, nil
}

func (i *Ingester) buildDataset(template any, opts IngestOptions, trends []*AverageTrend) ([]Document, error) {
	if opts.FileProvided {
		return LoadFile(template.(string))
	}
	current := opts.CurrentDate
	if current.IsZero() {
		current = i.config.now()
	}
	step := time.Duration(opts.Minutes) * time.Minute
	attrs := metric.WithAttributeSet(i.config.MetricAttributes)

	dataset := make([]Document, 0, opts.Number)
	for n := 0; n < opts.Number; n++ {
		docs, err := i.generator.GenerateAll(template, opts.Mapping)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if len(trends) == 0 {
				if opts.Timestamp != "" {
					doc[opts.Timestamp] = current.Format(time.RFC3339)
				}
				continue
			}
			for _, t := range trends {
				anomalous, err := t.Apply(doc, current)
				if err != nil {
					return nil, err
				}
				if anomalous {
					i.metrics.anomaliesInjected.Add(context.Background(), 1, attrs,
						metric.WithAttributes(attribute.String("feature", t.Feature())),
					)
				}
			}
		}
		dataset = append(dataset, docs...)
		current = current.Add(step)
	}
	return dataset, nil
}

// checkBatch verifies that batch pairs every header with a document and
// continues from start.
func checkBatch(batch BulkBatch, start int) error {
	if batch.Next != start+batch.Len() {
		return fmt.Errorf("%w: %d documents from %d end at %d", ErrMalformedBatch, batch.Len(), start, batch.Next)
	}
	for _, a := range batch.Actions {
		if a.Document == nil {
			return fmt.Errorf("%w: header for %q has no document", ErrMalformedBatch, a.Header.Index)
		}
	}
	return nil
}

func (i *Ingester) flush(ctx context.Context, batch BulkBatch, link *linkedTraceContext) error {
	n := batch.Len()
	logger := i.config.logger()
	var span trace.Span
	if i.tracingEnabled() {
		tx := i.config.Tracer.StartTransactionOptions("sampledata.bulk", "output", apm.TransactionOptions{
			Links: link.apmLinks(),
		})
		tx.Context.SetLabel("documents", n)
		defer tx.End()
		ctx = apm.ContextWithTransaction(ctx, tx)

		// Add trace IDs to logger, to associate any per-item errors
		// below with the trace.
		logger = logger.With(apmzap.TraceContext(ctx)...)
	} else if i.otelTracingEnabled() {
		ctx, span = i.tracer.Start(ctx, "sampledata.bulk",
			trace.WithNewRoot(),
			trace.WithLinks(link.otelLinks()...),
			trace.WithAttributes(attribute.Int("documents", n)),
		)
		defer span.End()

		logger = logger.With(
			zap.String("traceId", span.SpanContext().TraceID().String()),
			zap.String("spanId", span.SpanContext().SpanID().String()),
		)
	}

	start := time.Now()
	resp, err := i.writer.Bulk(ctx, batch)
	took := time.Since(start)

	attrs := metric.WithAttributeSet(i.config.MetricAttributes)
	i.metrics.bulkRequests.Add(context.Background(), 1, attrs)
	i.metrics.flushDuration.Record(context.Background(), took.Seconds(), attrs)
	if resp.BytesFlushed > 0 {
		i.metrics.bytesTotal.Add(context.Background(), int64(resp.BytesFlushed), attrs)
	}
	if resp.BytesUncompressed > 0 {
		i.metrics.bytesUncompressedTotal.Add(context.Background(), int64(resp.BytesUncompressed), attrs)
	}
	if err != nil {
		logger.Error("bulk indexing request failed", zap.Error(err))
		if i.tracingEnabled() {
			apm.CaptureError(ctx, err).Send()
		} else if span != nil && span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bulk indexing request failed")
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			i.metrics.docsIndexed.Add(
				context.Background(),
				int64(n),
				metric.WithAttributes(attribute.String("status", "Timeout")),
				attrs,
			)
		}
		var errFailed ErrorFlushFailed
		if errors.As(err, &errFailed) {
			var status string
			switch {
			case errFailed.tooMany:
				status = "TooMany"
			case errFailed.clientError:
				status = "FailedClient"
			case errFailed.serverError:
				status = "FailedServer"
			}
			if status != "" {
				i.metrics.docsIndexed.Add(
					context.Background(),
					int64(n),
					metric.WithAttributes(
						attribute.String("status", status),
						semconv.HTTPResponseStatusCode(errFailed.statusCode),
					),
					attrs,
				)
			}
		}
		return err
	}

	var tooManyRequests, clientFailed, serverFailed int64
	var failedCount map[BulkIndexerResponseItem]int
	if len(resp.FailedDocs) > 0 {
		failedCount = make(map[BulkIndexerResponseItem]int, len(resp.FailedDocs))
	}
	for _, info := range resp.FailedDocs {
		switch {
		case info.Status == http.StatusTooManyRequests:
			tooManyRequests++
		case info.Status >= 400 && info.Status < 500:
			clientFailed++
		case info.Status >= 500:
			serverFailed++
		}
		info.Position = 0 // reset position so that the response item can be used as key in the map
		failedCount[info]++
		if i.tracingEnabled() {
			apm.CaptureError(ctx, errors.New(info.Error.Reason)).Send()
		} else if span != nil && span.IsRecording() {
			e := errors.New(info.Error.Reason)
			span.RecordError(e)
			span.SetStatus(codes.Error, e.Error())
		}
	}
	for key, count := range failedCount {
		logger.Error(fmt.Sprintf("failed to index documents in '%s' (%s): %s",
			key.Index, key.Error.Type, key.Error.Reason,
		), zap.Int("documents", count))
	}
	for status, count := range map[string]int64{
		"Success":      resp.Indexed,
		"TooMany":      tooManyRequests,
		"FailedClient": clientFailed,
		"FailedServer": serverFailed,
	} {
		if count > 0 {
			i.metrics.docsIndexed.Add(
				context.Background(),
				count,
				metric.WithAttributes(attribute.String("status", status)),
				attrs,
			)
		}
	}
	logger.Debug(
		"bulk request completed",
		zap.Int64("docs_indexed", resp.Indexed),
		zap.Int("docs_failed", len(resp.FailedDocs)),
		zap.Int64("docs_rate_limited", tooManyRequests),
	)
	if span != nil && span.IsRecording() && len(resp.FailedDocs) == 0 {
		span.SetStatus(codes.Ok, "")
	}
	return nil
}

// tracingEnabled checks whether we should be doing tracing
// using APM tracer.
func (i *Ingester) tracingEnabled() bool {
	return i.config.Tracer != nil && i.config.Tracer.Recording()
}

// otelTracingEnabled checks whether we should be doing tracing
// using otel tracer.
func (i *Ingester) otelTracingEnabled() bool {
	return i.tracer != nil
}
