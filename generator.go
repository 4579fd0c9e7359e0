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
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Generator expands templates into documents.
//
// A template is either a mapping, {"properties": {field: {"type": def}}},
// or a shorthand, {field: def}, where def is a field type name or a list
// holding a field type name followed by its arguments. Templates may be
// given as a map, a JSON string or byte slice, or the name of a .json,
// .ndjson or .csv file, optionally gzip compressed.
type Generator struct {
	resolver *FieldResolver
	logger   *zap.Logger
}

// NewGenerator returns a Generator resolving fields with a new
// FieldResolver created from cfg.
func NewGenerator(cfg Config) (*Generator, error) {
	r, err := NewFieldResolver(cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{resolver: r, logger: cfg.logger()}, nil
}

// Resolver returns the FieldResolver used by g.
func (g *Generator) Resolver() *FieldResolver {
	return g.resolver
}

// Generate generates one document from template. If isMapping is true the
// template must hold a "properties" object.
//
// Field resolution failures are logged and yield a nil value, so every field
// in the template is present in the returned document. File templates are
// not accepted here; use GenerateFile or GenerateAll.
func (g *Generator) Generate(template any, isMapping bool) (Document, error) {
	if IsFileTemplate(template) {
		return nil, fmt.Errorf("%w: file template %q generates several documents", ErrConfiguration, template)
	}
	tmpl, err := decodeTemplate(template)
	if err != nil {
		return nil, err
	}
	if isMapping {
		return g.generateMapping(tmpl)
	}
	return g.generateShorthand(tmpl), nil
}

// GenerateAll generates the documents described by template: one per line
// or row for a file template, otherwise exactly one.
func (g *Generator) GenerateAll(template any, isMapping bool) ([]Document, error) {
	if IsFileTemplate(template) {
		return g.GenerateFile(template.(string))
	}
	doc, err := g.Generate(template, isMapping)
	if err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}

// GenerateFile generates one document per line of a .json or .ndjson file,
// or per data row of a .csv file. Gzip compressed files, named with a ".gz"
// suffix, are decompressed to a sibling file which is removed before
// GenerateFile returns.
//
// Each NDJSON line is generated as a mapping if it has a "properties" key,
// and as a shorthand otherwise. CSV rows are generated as shorthands keyed
// by the header row; cells holding a comma are parsed as literal argument
// lists, such as ['integer', 0, 5].
func (g *Generator) GenerateFile(path string) ([]Document, error) {
	var docs []Document
	err := withFile(path, func(name string, format fileFormat) error {
		switch format {
		case formatNDJSON:
			return readNDJSON(name, func(line []byte, lineno int) error {
				tmpl, err := decodeJSONTemplate(line)
				if err != nil {
					return fmt.Errorf("%w: %s line %d: %w", ErrFileFormat, path, lineno, err)
				}
				_, isMapping := tmpl["properties"]
				doc, err := g.Generate(tmpl, isMapping)
				if err != nil {
					return fmt.Errorf("%s line %d: %w", path, lineno, err)
				}
				docs = append(docs, doc)
				return nil
			})
		default:
			return readCSV(name, func(header, row []string) error {
				tmpl := make(map[string]any, len(header))
				for i, field := range header {
					cell := row[i]
					if !strings.Contains(cell, ",") {
						tmpl[field] = cell
						continue
					}
					args, err := parseLiteral(cell)
					if err != nil {
						return err
					}
					tmpl[field] = args
				}
				docs = append(docs, g.generateShorthand(tmpl))
				return nil
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (g *Generator) generateMapping(tmpl map[string]any) (Document, error) {
	v, ok := tmpl["properties"]
	if !ok {
		return nil, ErrNotAMapping
	}
	props, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: properties must be an object, got %T", ErrNotAMapping, v)
	}
	doc := make(Document, len(props))
	for _, field := range sortedKeys(props) {
		attr, _ := props[field].(map[string]any)
		def, ok := attr["type"]
		if !ok {
			g.logger.Warn("dynamic fields not supported, copying attribute", zap.String("field", field))
			doc[field] = props[field]
			continue
		}
		doc[field] = g.resolveDef(field, def)
	}
	return doc, nil
}

func (g *Generator) generateShorthand(tmpl map[string]any) Document {
	doc := make(Document, len(tmpl))
	for _, field := range sortedKeys(tmpl) {
		doc[field] = g.resolveDef(field, tmpl[field])
	}
	return doc
}

// resolveDef resolves a field type name, or a list of a field type name
// followed by its arguments.
func (g *Generator) resolveDef(field string, def any) any {
	switch def := def.(type) {
	case string:
		return g.resolver.ResolveField(field, def)
	case []any:
		if len(def) > 0 {
			if kind, ok := def[0].(string); ok {
				return g.resolver.ResolveField(field, kind, def[1:]...)
			}
		}
	case []string:
		if len(def) > 0 {
			args := make([]any, len(def)-1)
			for i, s := range def[1:] {
				args[i] = s
			}
			return g.resolver.ResolveField(field, def[0], args...)
		}
	}
	g.logger.Warn("unsupported field definition",
		zap.String("field", field),
		zap.Any("definition", def),
	)
	return nil
}

func decodeTemplate(template any) (map[string]any, error) {
	switch t := template.(type) {
	case Document:
		return t, nil
	case map[string]any:
		return t, nil
	case string:
		return decodeJSONTemplate([]byte(t))
	case []byte:
		return decodeJSONTemplate(t)
	case nil:
		return nil, fmt.Errorf("%w: template is required", ErrConfiguration)
	}
	return nil, fmt.Errorf("%w: unsupported template type %T", ErrConfiguration, template)
}

func decodeJSONTemplate(data []byte) (map[string]any, error) {
	var tmpl map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: failed to decode template: %w", ErrConfiguration, err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: template is not a JSON object", ErrConfiguration)
	}
	return tmpl, nil
}

// sortedKeys returns the keys of m in order, so that a seeded faker
// generates the same document every time.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
