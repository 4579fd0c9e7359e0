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

// Package sampledata generates fake documents from field type templates
// and bulk indexes them into Elasticsearch or OpenSearch.
//
// Templates describe each field with a type name and optional arguments,
// either as an index mapping or in a shorthand form. One numeric field may
// be shaped into a trend with occasional anomalies, for exercising anomaly
// detection. Documents are indexed in size bounded bulk requests.
package sampledata
