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

// Package job maintains sample data indices described by a directory of
// job config files: the startup job fills a range of daily indices and
// starts their plugins, the refresh job rolls that range forward.
package job

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sampledata "github.com/elastic/go-sampledata"
	"github.com/elastic/go-sampledata/anomalydetection"
)

// RunnerConfig holds configuration for Runner.
type RunnerConfig struct {
	// ConfigDir holds the directory job config files are read from.
	ConfigDir string

	// Ingest holds the configuration of the Ingester filling indices. Its
	// Logger is also used by the Runner.
	Ingest sampledata.Config

	// MaxConcurrentIndices holds the maximum number of indices of a job
	// that are created and filled concurrently.
	//
	// If MaxConcurrentIndices is zero, 4 will be used.
	MaxConcurrentIndices int

	// SettleDelay holds how long to wait after filling the indices of a
	// job before creating its plugin, so that the new documents are
	// searchable.
	//
	// If SettleDelay is zero, one second will be used. A negative value
	// disables waiting.
	SettleDelay time.Duration

	// ResultIndex holds the index anomaly detectors write results to.
	//
	// If ResultIndex is empty, anomalydetection.DefaultResultIndex will be
	// used.
	ResultIndex string

	// Now returns the current time, from which index dates are derived.
	//
	// If Now is nil, time.Now will be used.
	Now func() time.Time
}

// Runner runs the startup and refresh jobs.
type Runner struct {
	client   elastictransport.Interface
	config   RunnerConfig
	pool     *sampledata.BulkIndexerPool
	ingester *sampledata.Ingester
	logger   *zap.Logger
}

// NewRunner returns a Runner administering indices through client.
func NewRunner(client elastictransport.Interface, cfg RunnerConfig) (*Runner, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is nil", sampledata.ErrConfiguration)
	}
	if cfg.ConfigDir == "" {
		return nil, fmt.Errorf("%w: config directory is required", sampledata.ErrConfiguration)
	}
	if cfg.MaxConcurrentIndices < 0 {
		return nil, fmt.Errorf("%w: max concurrent indices must not be negative, got %d",
			sampledata.ErrConfiguration, cfg.MaxConcurrentIndices,
		)
	}
	if cfg.MaxConcurrentIndices == 0 {
		cfg.MaxConcurrentIndices = 4
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.ResultIndex == "" {
		cfg.ResultIndex = anomalydetection.DefaultResultIndex
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Ingest.Now == nil {
		cfg.Ingest.Now = cfg.Now
	}
	logger := cfg.Ingest.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := sampledata.NewBulkIndexerPool(cfg.MaxConcurrentIndices, sampledata.BulkIndexerConfig{
		Client:           client,
		CompressionLevel: cfg.Ingest.CompressionLevel,
		Pipeline:         cfg.Ingest.Pipeline,
	})
	if err != nil {
		return nil, err
	}
	ingester, err := sampledata.NewIngester(pool.Writer(), cfg.Ingest)
	if err != nil {
		return nil, err
	}
	return &Runner{
		client:   client,
		config:   cfg,
		pool:     pool,
		ingester: ingester,
		logger:   logger,
	}, nil
}

// Startup creates and fills the indices of every job config that do not
// exist yet, then creates and starts the job's plugin.
func (r *Runner) Startup(ctx context.Context) error {
	return r.run(ctx, true, r.startup)
}

// Refresh deletes the daily indices of every job config that are older
// than days_before, and creates and fills the indices from today until
// days_after that do not exist yet.
func (r *Runner) Refresh(ctx context.Context) error {
	return r.run(ctx, false, r.refresh)
}

func (r *Runner) run(ctx context.Context, startup bool, fn func(context.Context, Config) error) (err error) {
	files, cleanup, err := configFiles(r.config.ConfigDir)
	defer func() {
		if cerr := cleanup(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove extracted config files: %w", cerr))
		}
	}()
	if err != nil {
		return err
	}
	for _, path := range files {
		cfg, ok, err := LoadConfig(path)
		if err != nil {
			return err
		}
		if !ok {
			r.logger.Debug("skipping file without plugin", zap.String("file", path))
			continue
		}
		if err := cfg.Validate(startup); err != nil {
			return err
		}
		if err := fn(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) startup(ctx context.Context, cfg Config) error {
	base := cfg.IngestArgs.IndexName
	before, after := *cfg.DaysBefore, *cfg.DaysAfter
	logger := r.logger.With(zap.String("job", cfg.Path()), zap.String("index", base))

	var targets []target
	if cfg.Dated() {
		today := r.today()
		for day := -before; day <= after; day++ {
			date := today.AddDate(0, 0, day)
			targets = append(targets, target{name: IndexName(base, date), date: date})
		}
	} else {
		targets = append(targets, target{name: base, date: r.config.Now()})
	}
	if err := r.fill(ctx, cfg, targets); err != nil {
		return fmt.Errorf("startup index ingestion failed: %w", err)
	}

	if r.config.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.SettleDelay):
		}
	}

	if cfg.Plugin != PluginAnomalyDetection {
		logger.Warn("unsupported plugin, skipping", zap.String("plugin", cfg.Plugin))
		return nil
	}
	detector, err := anomalydetection.New(r.client, anomalydetection.Config{
		Indices:     []string{base + "*"},
		Payload:     cfg.Payload,
		ResultIndex: r.config.ResultIndex,
		DaysAgo:     before,
		Logger:      logger,
		Now:         r.config.Now,
	})
	if err != nil {
		return err
	}
	if err := detector.Create(ctx); err != nil {
		return fmt.Errorf("startup anomaly detector failed: %w", err)
	}
	if err := detector.Start(ctx, false); err != nil {
		return fmt.Errorf("startup anomaly detector failed: %w", err)
	}
	if err := detector.Start(ctx, true); err != nil {
		return fmt.Errorf("startup anomaly detector failed: %w", err)
	}
	logger.Info("anomaly detector started", zap.String("detector_id", detector.ID()))
	return nil
}

func (r *Runner) refresh(ctx context.Context, cfg Config) error {
	if !cfg.Dated() {
		return nil
	}
	base := cfg.IngestArgs.IndexName
	before, after := *cfg.DaysBefore, *cfg.DaysAfter

	names, err := sampledata.ListIndices(ctx, r.client, base+"*")
	if err != nil {
		return err
	}
	now := r.config.Now()
	for _, name := range names {
		date, ok := ParseIndexDate(base, name, now.Location())
		if !ok {
			continue
		}
		if int(now.Sub(date).Hours()/24) <= before {
			continue
		}
		idx, err := sampledata.NewIndex(r.client, name, nil, r.logger)
		if err != nil {
			return err
		}
		if _, err := idx.Delete(ctx); err != nil {
			return fmt.Errorf("refresh job failed to delete indices: %w", err)
		}
	}

	today := r.today()
	targets := make([]target, 0, after+1)
	for day := 0; day <= after; day++ {
		date := today.AddDate(0, 0, day)
		targets = append(targets, target{name: IndexName(base, date), date: date})
	}
	if err := r.fill(ctx, cfg, targets); err != nil {
		return fmt.Errorf("refresh job failed to ingest indices: %w", err)
	}
	return nil
}

type target struct {
	name string
	date time.Time
}

// fill creates and fills the targets that do not exist yet, at most
// MaxConcurrentIndices at a time.
func (r *Runner) fill(ctx context.Context, cfg Config, targets []target) error {
	template := cfg.IngestArgs.template(r.config.ConfigDir)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxConcurrentIndices)
	for _, t := range targets {
		g.Go(func() error {
			idx, err := sampledata.NewIndex(r.client, t.name, cfg.IndexBody, r.logger)
			if err != nil {
				return err
			}
			created, err := idx.Create(ctx)
			if err != nil || !created {
				return err
			}
			_, err = idx.IngestMore(ctx, r.ingester, template, cfg.IngestArgs.Options(t.date))
			return err
		})
	}
	return g.Wait()
}

func (r *Runner) today() time.Time {
	now := r.config.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// IndexName returns the name of the daily index of base for date, in the
// form base_M_D_YYYY.
func IndexName(base string, date time.Time) string {
	return fmt.Sprintf("%s_%d_%d_%d", base, int(date.Month()), date.Day(), date.Year())
}

// ParseIndexDate returns the date of a daily index of base named by
// IndexName, at midnight in loc.
func ParseIndexDate(base, name string, loc *time.Location) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(name, base+"_")
	if !ok {
		return time.Time{}, false
	}
	parts := strings.Split(suffix, "_")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	var mdy [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, false
		}
		mdy[i] = n
	}
	date := time.Date(mdy[2], time.Month(mdy[0]), mdy[1], 0, 0, 0, 0, loc)
	if int(date.Month()) != mdy[0] || date.Day() != mdy[1] {
		return time.Time{}, false
	}
	return date, true
}
