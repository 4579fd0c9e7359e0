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
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for bad template shapes, invalid trend
	// ranges and invalid options. It is always returned before any
	// generation or ingestion starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrGeneration is returned when a single field cannot be resolved.
	// Document generation swallows it and stores a null value instead.
	ErrGeneration = errors.New("generation error")

	// ErrFileFormat is returned when a template or data file has an
	// unsupported extension or cannot be decoded.
	ErrFileFormat = errors.New("file format error")

	// ErrConnectionFailure is returned when an index administration or
	// bulk request fails.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrMalformedBatch is returned when a bulk batch does not consist of
	// header/document pairs.
	ErrMalformedBatch = errors.New("malformed bulk batch")

	// ErrDocumentTooLarge is returned when a single document and its action
	// header exceed the configured bulk size, so no progress can be made.
	ErrDocumentTooLarge = errors.New("document exceeds max bulk size")
)

var (
	ErrInvalidFieldType = fmt.Errorf("%w: invalid field type", ErrGeneration)
	ErrInvalidArraySpec = fmt.Errorf("%w: invalid array", ErrGeneration)
	ErrInvalidKeyword   = fmt.Errorf("%w: keyword attribute needs to be defined", ErrConfiguration)
	ErrNotAMapping      = fmt.Errorf("%w: input is not a mapping", ErrConfiguration)
)
