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
)

// AverageTrendName names the only supported data trend.
const AverageTrendName = "AverageTrend"

// TrendConfig describes a feature whose values stay within
// [AvgMin, AvgMax] except for occasional anomalies, which fall within
// [AvgMax, AbsMax] or [AbsMin, AvgMin].
type TrendConfig struct {
	// DataTrend names the trend kind. Empty means AverageTrend.
	DataTrend string `json:"data_trend" yaml:"data_trend"`

	// Feature holds the name of the document field to shape.
	Feature string `json:"feature" yaml:"feature"`

	AvgMin float64 `json:"avg_min" yaml:"avg_min"`
	AvgMax float64 `json:"avg_max" yaml:"avg_max"`
	AbsMin float64 `json:"abs_min" yaml:"abs_min"`
	AbsMax float64 `json:"abs_max" yaml:"abs_max"`

	// AnomalyPercentage holds the probability, in [0,1], of a document
	// receiving an anomalous value.
	AnomalyPercentage float64 `json:"anomaly_percentage" yaml:"anomaly_percentage"`

	// OtherArgs holds extra keyword arguments for the float field type
	// used to generate anomalous non-integer values.
	OtherArgs map[string]any `json:"other_args" yaml:"other_args"`
}

// Validate checks the ranges and anomaly percentage of cfg.
func (cfg TrendConfig) Validate() error {
	if cfg.DataTrend != "" && cfg.DataTrend != AverageTrendName {
		return fmt.Errorf("%w: unknown data trend %q", ErrConfiguration, cfg.DataTrend)
	}
	if cfg.Feature == "" {
		return fmt.Errorf("%w: trend feature is required", ErrConfiguration)
	}
	if cfg.AvgMin < cfg.AbsMin {
		return fmt.Errorf("%w: avg_min (%v) must be greater than or equal to abs_min (%v)", ErrConfiguration, cfg.AvgMin, cfg.AbsMin)
	}
	if cfg.AvgMax > cfg.AbsMax {
		return fmt.Errorf("%w: avg_max (%v) must be less than or equal to abs_max (%v)", ErrConfiguration, cfg.AvgMax, cfg.AbsMax)
	}
	if cfg.AvgMin > cfg.AvgMax {
		return fmt.Errorf("%w: avg_min (%v) must be less than or equal to avg_max (%v)", ErrConfiguration, cfg.AvgMin, cfg.AvgMax)
	}
	if cfg.AbsMin > cfg.AbsMax {
		return fmt.Errorf("%w: abs_min (%v) must be less than or equal to abs_max (%v)", ErrConfiguration, cfg.AbsMin, cfg.AbsMax)
	}
	if cfg.AnomalyPercentage < 0 || cfg.AnomalyPercentage > 1 {
		return fmt.Errorf("%w: anomaly_percentage must be in [0,1], got %v", ErrConfiguration, cfg.AnomalyPercentage)
	}
	return nil
}

// AverageTrend injects anomalies into one feature of generated documents.
type AverageTrend struct {
	cfg            TrendConfig
	timestampField string
	resolver       *FieldResolver
}

// NewAverageTrend returns an AverageTrend for cfg, generating anomalous
// values with r. If timestampField is non-empty, Apply sets it on every
// document.
func NewAverageTrend(cfg TrendConfig, timestampField string, r *FieldResolver) (*AverageTrend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: a field resolver is required", ErrConfiguration)
	}
	return &AverageTrend{cfg: cfg, timestampField: timestampField, resolver: r}, nil
}

// Feature returns the name of the field shaped by t.
func (t *AverageTrend) Feature() string {
	return t.cfg.Feature
}

// Apply decides whether doc is anomalous, replacing its feature value with
// one drawn from either tail range if so, and then stamps the timestamp
// field with currentDate in epoch milliseconds.
//
// The feature must already hold a numeric value. Integer values are
// regenerated as integers and any other number as a float.
func (t *AverageTrend) Apply(doc Document, currentDate time.Time) (bool, error) {
	value, ok := doc[t.cfg.Feature]
	if !ok {
		return false, fmt.Errorf("%w: document has no feature %q", ErrConfiguration, t.cfg.Feature)
	}
	faker := t.resolver.Faker()

	noise := float64(faker.IntRange(1, 1000)) / 1000
	anomalous := noise <= t.cfg.AnomalyPercentage
	if anomalous {
		lo, hi := t.cfg.AvgMax, t.cfg.AbsMax
		if faker.Bool() {
			lo, hi = t.cfg.AbsMin, t.cfg.AvgMin
		}
		var (
			v   any
			err error
		)
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			v, err = t.resolver.Resolve("integer", int(lo), int(hi))
		case float32, float64:
			kw := make(map[string]any, len(t.cfg.OtherArgs)+2)
			for k, v := range t.cfg.OtherArgs {
				kw[k] = v
			}
			kw["min_value"] = lo
			kw["max_value"] = hi
			v, err = t.resolver.Resolve("float", kw)
		default:
			return false, fmt.Errorf("%w: feature %q must be numeric, got %T", ErrConfiguration, t.cfg.Feature, value)
		}
		if err != nil {
			return false, fmt.Errorf("failed to generate anomaly for %q: %w", t.cfg.Feature, err)
		}
		doc[t.cfg.Feature] = v
	}
	if t.timestampField != "" {
		doc[t.timestampField] = currentDate.UnixMilli()
	}
	return anomalous, nil
}
