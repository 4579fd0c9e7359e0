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
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

//go:embed field_types.json
var defaultAliasesJSON []byte

// Aliases maps template field type names, such as "integer" or "text", to
// the name of the generator producing their values.
type Aliases map[string]string

// DefaultAliases returns the built-in field type aliases.
func DefaultAliases() Aliases {
	aliases, err := ParseAliases(strings.NewReader(string(defaultAliasesJSON)))
	if err != nil {
		panic(err)
	}
	return aliases
}

// ParseAliases decodes a JSON object of alias to generator name.
func ParseAliases(r io.Reader) (Aliases, error) {
	var aliases Aliases
	if err := jsoniter.NewDecoder(r).Decode(&aliases); err != nil {
		return nil, fmt.Errorf("%w: failed to decode field type aliases: %w", ErrConfiguration, err)
	}
	return aliases, nil
}

// Merge returns a copy of a with the entries of other added, replacing any
// existing aliases of the same name.
func (a Aliases) Merge(other Aliases) Aliases {
	out := make(Aliases, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Validate returns an error naming every alias whose target is not one of
// types, or which shadows a reserved type name.
func (a Aliases) Validate(types map[string]FieldTypeFunc) error {
	var invalid []string
	for alias, target := range a {
		switch alias {
		case "null", "array", "keyword":
			invalid = append(invalid, fmt.Sprintf("%q is a reserved type", alias))
			continue
		}
		if _, ok := types[target]; !ok {
			invalid = append(invalid, fmt.Sprintf("%q -> %q", alias, target))
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	sort.Strings(invalid)
	return fmt.Errorf("%w: unknown field type aliases: %s", ErrConfiguration, strings.Join(invalid, ", "))
}
