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
	"time"

	"go.elastic.co/fastjson"
)

// BulkHeader is the action line preceding a document in a bulk request.
type BulkHeader struct {
	Index string
}

// MarshalFastJSON encodes h as {"index":{"_index":...}}.
func (h BulkHeader) MarshalFastJSON(w *fastjson.Writer) error {
	w.RawString(`{"index":{`)
	if h.Index != "" {
		w.RawString(`"_index":`)
		w.String(h.Index)
	}
	w.RawString("}}")
	return nil
}

// BulkAction pairs a bulk header with its document.
type BulkAction struct {
	Header   BulkHeader
	Document Document
}

// BulkBatch holds the actions of one bulk request.
type BulkBatch struct {
	Actions []BulkAction

	// Next holds the dataset index of the first document not in the batch.
	Next int

	// Size holds the NDJSON encoded size of the batch in bytes.
	Size int
}

// Len returns the number of documents in the batch.
func (b BulkBatch) Len() int {
	return len(b.Actions)
}

// Pairs returns the batch flattened to header, document, header,
// document, and so on.
func (b BulkBatch) Pairs() []any {
	out := make([]any, 0, 2*len(b.Actions))
	for _, a := range b.Actions {
		out = append(out, a.Header, a.Document)
	}
	return out
}

// BatchOptions holds the options for BuildBatch.
type BatchOptions struct {
	// IndexName holds the name of the index documents are written to.
	IndexName string

	// FileProvided reports whether the dataset was loaded from a user file.
	// Such documents get evenly spaced timestamps in TimestampField,
	// starting a week before Now.
	FileProvided bool

	// TimestampField holds the name of the timestamp field, if any.
	TimestampField string

	// Minutes holds the interval between back-filled timestamps.
	Minutes int

	// Chunk holds the maximum number of documents in a batch.
	Chunk int

	// MaxBulkBytes holds the size a batch must stay below.
	MaxBulkBytes int

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

func (opts BatchOptions) validate() error {
	if opts.IndexName == "" {
		return fmt.Errorf("%w: index name is required", ErrConfiguration)
	}
	if opts.Chunk <= 0 {
		return fmt.Errorf("%w: chunk must be a positive integer, got %d", ErrConfiguration, opts.Chunk)
	}
	if opts.MaxBulkBytes <= 0 {
		return fmt.Errorf("%w: max bulk size must be a positive integer, got %d", ErrConfiguration, opts.MaxBulkBytes)
	}
	if opts.Minutes < 0 {
		return fmt.Errorf("%w: minutes must not be negative, got %d", ErrConfiguration, opts.Minutes)
	}
	return nil
}

// BuildBatch builds the next bulk batch from dataset, starting at
// startIndex. It considers at most opts.Chunk documents, and stops before
// the first document that would bring the batch to opts.MaxBulkBytes or
// more.
//
// If the document at startIndex alone reaches the limit, BuildBatch
// returns an empty batch with Next equal to startIndex, and
// ErrDocumentTooLarge. Back-filled timestamps are written to the dataset
// documents in place.
func BuildBatch(opts BatchOptions, startIndex int, dataset []Document) (BulkBatch, error) {
	if err := opts.validate(); err != nil {
		return BulkBatch{}, err
	}
	if startIndex < 0 || startIndex > len(dataset) {
		return BulkBatch{}, fmt.Errorf("%w: start index %d out of range [0,%d]", ErrConfiguration, startIndex, len(dataset))
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	clock := now().AddDate(0, 0, -7)
	header := BulkHeader{Index: opts.IndexName}

	var jsonw fastjson.Writer
	if err := header.MarshalFastJSON(&jsonw); err != nil {
		return BulkBatch{}, err
	}
	headerSize := jsonw.Size() + 1

	batch := BulkBatch{Next: startIndex}
	end := min(startIndex+opts.Chunk, len(dataset))
	for i := startIndex; i < end; i++ {
		doc := dataset[i]
		if opts.FileProvided && opts.TimestampField != "" {
			clock = clock.Add(time.Duration(opts.Minutes) * time.Minute)
			doc[opts.TimestampField] = clock.Unix()
		}
		jsonw.Reset()
		if err := doc.MarshalFastJSON(&jsonw); err != nil {
			return BulkBatch{}, fmt.Errorf("failed to encode document %d: %w", i, err)
		}
		size := batch.Size + headerSize + jsonw.Size() + 1
		if size >= opts.MaxBulkBytes {
			break
		}
		batch.Actions = append(batch.Actions, BulkAction{Header: header, Document: doc})
		batch.Size = size
		batch.Next = i + 1
	}
	if batch.Len() == 0 && startIndex < len(dataset) {
		return batch, fmt.Errorf("%w: document %d with limit %d bytes", ErrDocumentTooLarge, startIndex, opts.MaxBulkBytes)
	}
	return batch, nil
}
