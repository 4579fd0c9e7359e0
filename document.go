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
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.elastic.co/fastjson"
)

// Document is a single generated or loaded document, keyed by field name.
//
// Values produced by the generator are strings, numbers, booleans, nil or
// slices of those. Documents loaded from user files may also hold nested
// objects.
type Document map[string]any

// MarshalFastJSON encodes d as a JSON object with its keys sorted.
func (d Document) MarshalFastJSON(w *fastjson.Writer) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.RawByte('{')
	for i, k := range keys {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(k)
		w.RawByte(':')
		if err := marshalValue(w, d[k]); err != nil {
			return fmt.Errorf("failed to encode field %q: %w", k, err)
		}
	}
	w.RawByte('}')
	return nil
}

// WriteTo writes the JSON encoding of d to w.
func (d Document) WriteTo(w io.Writer) (int64, error) {
	var jsonw fastjson.Writer
	if err := d.MarshalFastJSON(&jsonw); err != nil {
		return 0, err
	}
	n, err := w.Write(jsonw.Bytes())
	return int64(n), err
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func marshalValue(w *fastjson.Writer, v any) error {
	switch v := v.(type) {
	case nil:
		w.RawString("null")
	case string:
		w.String(v)
	case bool:
		w.Bool(v)
	case int:
		w.Int64(int64(v))
	case int8:
		w.Int64(int64(v))
	case int16:
		w.Int64(int64(v))
	case int32:
		w.Int64(int64(v))
	case int64:
		w.Int64(v)
	case uint:
		w.Uint64(uint64(v))
	case uint8:
		w.Uint64(uint64(v))
	case uint16:
		w.Uint64(uint64(v))
	case uint32:
		w.Uint64(uint64(v))
	case uint64:
		w.Uint64(v)
	case float32:
		w.Float32(v)
	case float64:
		w.Float64(v)
	case time.Time:
		w.String(v.Format(time.RFC3339Nano))
	case []any:
		w.RawByte('[')
		for i, elem := range v {
			if i > 0 {
				w.RawByte(',')
			}
			if err := marshalValue(w, elem); err != nil {
				return err
			}
		}
		w.RawByte(']')
	case map[string]any:
		return Document(v).MarshalFastJSON(w)
	case Document:
		return v.MarshalFastJSON(w)
	case fastjson.Marshaler:
		return v.MarshalFastJSON(w)
	default:
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
		if err != nil {
			return err
		}
		w.RawBytes(data)
	}
	return nil
}
