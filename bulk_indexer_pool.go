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
	"sync/atomic"
)

// BulkIndexerPool leases BulkIndexers to concurrent ingests, bounding the
// number leased at once. Returned indexers are reused.
type BulkIndexerPool struct {
	indexers chan *BulkIndexer
	slots    chan struct{}
	leased   atomic.Int64
	config   BulkIndexerConfig
}

// NewBulkIndexerPool returns a BulkIndexerPool leasing at most max indexers
// created from c.
func NewBulkIndexerPool(max int, c BulkIndexerConfig) (*BulkIndexerPool, error) {
	if max <= 0 {
		return nil, fmt.Errorf("expected max > 0, got %d", max)
	}
	if c.Client == nil {
		return nil, errors.New("client is nil")
	}
	if c.CompressionLevel < -1 || c.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			c.CompressionLevel,
		)
	}
	return &BulkIndexerPool{
		indexers: make(chan *BulkIndexer, max),
		slots:    make(chan struct{}, max),
		config:   c,
	}, nil
}

// Get leases a BulkIndexer, waiting for one to be returned if max are
// already leased. It returns ctx.Err() if ctx is done first.
func (p *BulkIndexerPool) Get(ctx context.Context) (*BulkIndexer, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.leased.Add(1)
	select {
	case idx := <-p.indexers:
		return idx, nil
	default:
		return newBulkIndexer(p.config), nil
	}
}

// Put returns a leased BulkIndexer to the pool. Any buffered items are
// discarded. No references to the indexer should be kept after Put.
func (p *BulkIndexerPool) Put(indexer *BulkIndexer) {
	if indexer == nil {
		return
	}
	indexer.resetBuf()
	select {
	case p.indexers <- indexer:
	default:
	}
	p.leased.Add(-1)
	<-p.slots
}

// Leased returns the number of indexers currently leased.
func (p *BulkIndexerPool) Leased() int64 {
	return p.leased.Load()
}

// pooledWriter is a BulkWriter leasing an indexer for every request.
type pooledWriter struct {
	pool *BulkIndexerPool
}

// Writer returns a BulkWriter which leases an indexer from p for each bulk
// request.
func (p *BulkIndexerPool) Writer() BulkWriter {
	return pooledWriter{pool: p}
}

func (w pooledWriter) Bulk(ctx context.Context, batch BulkBatch) (BulkIndexerResponseStat, error) {
	idx, err := w.pool.Get(ctx)
	if err != nil {
		return BulkIndexerResponseStat{}, err
	}
	defer w.pool.Put(idx)
	return idx.Bulk(ctx, batch)
}
