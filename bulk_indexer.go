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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unsafe"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"go.elastic.co/fastjson"
)

// BulkIndexerConfig holds configuration for BulkIndexer.
type BulkIndexerConfig struct {
	// Client holds the Elasticsearch client.
	Client esapi.Transport

	// CompressionLevel holds the gzip compression level, from 0 (gzip.NoCompression)
	// to 9 (gzip.BestCompression). Higher values provide greater compression, at a
	// greater cost of CPU. The special value -1 (gzip.DefaultCompression) selects the
	// default compression level.
	CompressionLevel int

	// Pipeline holds the ingest pipeline ID.
	//
	// If Pipeline is empty, no ingest pipeline will be specified in the Bulk request.
	Pipeline string
}

// BulkIndexer encodes documents into a single _bulk request body and
// issues it. A BulkIndexer is not safe for concurrent use.
type BulkIndexer struct {
	config                   BulkIndexerConfig
	itemsAdded               int
	bytesFlushed             int
	bytesUncompressed        int
	bytesUncompressedFlushed int
	jsonw                    fastjson.Writer
	writer                   io.Writer
	gzipw                    *gzip.Writer
	buf                      bytes.Buffer
}

// BulkIndexerResponseStat summarises a bulk response.
type BulkIndexerResponseStat struct {
	Indexed    int64
	FailedDocs []BulkIndexerResponseItem

	// BytesFlushed and BytesUncompressed hold the size of the request
	// body as sent and before compression.
	BytesFlushed      int
	BytesUncompressed int
}

// BulkIndexerResponseItem represents the Elasticsearch response item.
type BulkIndexerResponseItem struct {
	Index  string `json:"_index"`
	Status int    `json:"status"`

	Position int

	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

func init() {
	jsoniter.RegisterTypeDecoderFunc("sampledata.BulkIndexerResponseStat", func(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
		stat := (*BulkIndexerResponseStat)(ptr)
		iter.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
			if s != "items" {
				i.Skip()
				return true
			}
			var idx int
			i.ReadArrayCB(func(i *jsoniter.Iterator) bool {
				return i.ReadMapCB(func(i *jsoniter.Iterator, action string) bool {
					var item BulkIndexerResponseItem
					i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
						switch s {
						case "_index":
							item.Index = i.ReadString()
						case "status":
							item.Status = i.ReadInt()
						case "error":
							i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
								switch s {
								case "type":
									item.Error.Type = i.ReadString()
								case "reason":
									// Drop the field value preview Elasticsearch
									// appends to mapping errors.
									item.Error.Reason, _, _ = strings.Cut(i.ReadString(), ". Preview")
								default:
									i.Skip()
								}
								return true
							})
						default:
							i.Skip()
						}
						return true
					})
					item.Position = idx
					idx++
					if item.Error.Type != "" || item.Status > 201 {
						stat.FailedDocs = append(stat.FailedDocs, item)
					} else {
						stat.Indexed++
					}
					return true
				})
			})
			// items is all we need.
			return false
		})
	})
}

// NewBulkIndexer returns a bulk indexer that issues bulk requests to Elasticsearch.
// It is only tested with v8 go-elasticsearch client. Use other clients at your own risk.
func NewBulkIndexer(cfg BulkIndexerConfig) (*BulkIndexer, error) {
	if cfg.Client == nil {
		return nil, errors.New("client is nil")
	}
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			cfg.CompressionLevel,
		)
	}
	return newBulkIndexer(cfg), nil
}

func newBulkIndexer(cfg BulkIndexerConfig) *BulkIndexer {
	b := &BulkIndexer{config: cfg}
	if cfg.CompressionLevel != gzip.NoCompression {
		b.gzipw, _ = gzip.NewWriterLevel(&b.buf, cfg.CompressionLevel)
		b.writer = b.gzipw
	} else {
		b.writer = &b.buf
	}
	return b
}

func (b *BulkIndexer) resetBuf() {
	b.itemsAdded = 0
	b.bytesUncompressed = 0
	b.buf.Reset()
	if b.gzipw != nil {
		b.gzipw.Reset(&b.buf)
	}
}

// Items returns the number of buffered items.
func (b *BulkIndexer) Items() int {
	return b.itemsAdded
}

// Len returns the number of buffered bytes.
func (b *BulkIndexer) Len() int {
	return b.buf.Len()
}

// BytesFlushed returns the number of bytes sent by the last bulk request.
func (b *BulkIndexer) BytesFlushed() int {
	return b.bytesFlushed
}

// BytesUncompressedFlushed returns the number of bytes encoded for the last
// bulk request, before compression.
func (b *BulkIndexer) BytesUncompressedFlushed() int {
	return b.bytesUncompressedFlushed
}

// BulkIndexerItem is a single document to index.
type BulkIndexerItem struct {
	Index string
	Body  io.WriterTo
}

// Add encodes an item in the buffer.
func (b *BulkIndexer) Add(item BulkIndexerItem) error {
	if err := b.writeMeta(item.Index); err != nil {
		return err
	}
	cw := countWriter{w: b.writer}
	if _, err := item.Body.WriteTo(&cw); err != nil {
		return fmt.Errorf("failed to write bulk indexer item: %w", err)
	}
	if _, err := cw.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	b.bytesUncompressed += cw.n
	b.itemsAdded++
	return nil
}

func (b *BulkIndexer) writeMeta(index string) error {
	defer b.jsonw.Reset()
	BulkHeader{Index: index}.MarshalFastJSON(&b.jsonw)
	b.jsonw.RawByte('\n')
	n, err := b.writer.Write(b.jsonw.Bytes())
	b.bytesUncompressed += n
	if err != nil {
		return fmt.Errorf("failed to write bulk action: %w", err)
	}
	return nil
}

// Bulk encodes every action of batch and issues a single bulk request.
func (b *BulkIndexer) Bulk(ctx context.Context, batch BulkBatch) (BulkIndexerResponseStat, error) {
	for _, a := range batch.Actions {
		if err := b.Add(BulkIndexerItem{Index: a.Header.Index, Body: a.Document}); err != nil {
			b.resetBuf()
			return BulkIndexerResponseStat{}, err
		}
	}
	return b.Flush(ctx)
}

// Flush executes a bulk request if there are any items buffered, and clears out the buffer.
func (b *BulkIndexer) Flush(ctx context.Context) (BulkIndexerResponseStat, error) {
	if b.itemsAdded == 0 {
		return BulkIndexerResponseStat{}, nil
	}

	if b.gzipw != nil {
		if err := b.gzipw.Close(); err != nil {
			b.resetBuf()
			return BulkIndexerResponseStat{}, fmt.Errorf("failed closing the gzip writer: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Body:       &b.buf,
		Header:     make(http.Header),
		FilterPath: []string{"items.*._index", "items.*.status", "items.*.error.type", "items.*.error.reason"},
		Pipeline:   b.config.Pipeline,
	}
	if b.gzipw != nil {
		req.Header.Set("Content-Encoding", "gzip")
	}

	bytesFlushed := b.buf.Len()
	bytesUncompressed := b.bytesUncompressed
	res, err := req.Do(ctx, b.config.Client)
	b.resetBuf()
	if err != nil {
		return BulkIndexerResponseStat{}, fmt.Errorf("failed to execute the request: %w", err)
	}
	defer res.Body.Close()

	// Record the number of flushed bytes only when err == nil. The body may
	// not have been sent otherwise.
	b.bytesFlushed = bytesFlushed
	b.bytesUncompressedFlushed = bytesUncompressed
	resp := BulkIndexerResponseStat{
		BytesFlushed:      bytesFlushed,
		BytesUncompressed: bytesUncompressed,
	}
	if res.IsError() {
		return resp, ErrorFlushFailed{
			resp:        res.String(),
			statusCode:  res.StatusCode,
			tooMany:     res.StatusCode == http.StatusTooManyRequests,
			clientError: res.StatusCode >= 400 && res.StatusCode < 500,
			serverError: res.StatusCode >= 500,
		}
	}
	if err := jsoniter.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("error decoding bulk response: %w", err)
	}
	return resp, nil
}

// ErrorFlushFailed is returned when a bulk request fails as a whole.
type ErrorFlushFailed struct {
	resp        string
	statusCode  int
	tooMany     bool
	clientError bool
	serverError bool
}

// StatusCode returns the HTTP status code of the failed request.
func (e ErrorFlushFailed) StatusCode() int {
	return e.statusCode
}

// ResponseBody returns the body of the failed request.
func (e ErrorFlushFailed) ResponseBody() string {
	return e.resp
}

func (e ErrorFlushFailed) Error() string {
	return fmt.Sprintf("flush failed (%d): %s", e.statusCode, e.resp)
}

// countWriter counts the bytes written through it.
type countWriter struct {
	w io.Writer
	n int
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
