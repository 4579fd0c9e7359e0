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

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
)

// Reserved field type names, handled by FieldResolver itself.
const (
	TypeNull    = "null"
	TypeArray   = "array"
	TypeKeyword = "keyword"
)

// FieldResolver resolves a field type and its arguments to a value.
//
// Field types are looked up first among the reserved types, then among the
// configured aliases, then among the registered generators by name.
type FieldResolver struct {
	faker   *gofakeit.Faker
	types   map[string]FieldTypeFunc
	aliases Aliases
	logger  *zap.Logger
}

// NewFieldResolver returns a FieldResolver using the generators, aliases and
// random source in cfg. Aliases are validated against the generators once,
// here, rather than per call.
func NewFieldResolver(cfg Config) (*FieldResolver, error) {
	types := make(map[string]FieldTypeFunc, len(builtinFieldTypes)+len(cfg.FieldTypes))
	for name, fn := range builtinFieldTypes {
		types[name] = fn
	}
	for name, fn := range cfg.FieldTypes {
		switch name {
		case TypeNull, TypeArray, TypeKeyword:
			return nil, fmt.Errorf("%w: cannot register reserved field type %q", ErrConfiguration, name)
		}
		if fn == nil {
			return nil, fmt.Errorf("%w: field type %q has a nil generator", ErrConfiguration, name)
		}
		types[name] = fn
	}
	aliases := DefaultAliases().Merge(cfg.Aliases)
	if err := aliases.Validate(types); err != nil {
		return nil, err
	}
	faker := cfg.Faker
	if faker == nil {
		faker = gofakeit.New(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldResolver{
		faker:   faker,
		types:   types,
		aliases: aliases,
		logger:  logger,
	}, nil
}

// Faker returns the random source used by r.
func (r *FieldResolver) Faker() *gofakeit.Faker {
	return r.faker
}

// Resolve returns a value for the field type kind given args.
//
// The "array" type takes an element type and either a fixed length or the
// string "integer" followed by a [min, max] length range; any remaining
// arguments are passed to the element type. Elements resolving to nil are
// dropped, so an array may be shorter than requested. The "keyword" type
// resolves its first argument as a type, passing it the remaining arguments.
func (r *FieldResolver) Resolve(kind string, args ...any) (any, error) {
	switch kind {
	case TypeNull:
		return nil, nil
	case TypeArray:
		return r.resolveArray(args)
	case TypeKeyword:
		if len(args) == 0 {
			return nil, ErrInvalidKeyword
		}
		attr, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: keyword attribute must be a type name, got %T", ErrInvalidFieldType, args[0])
		}
		return r.Resolve(attr, args[1:]...)
	}

	name := kind
	if target, ok := r.aliases[kind]; ok {
		name = target
	}
	fn, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrInvalidFieldType, kind)
	}
	v, err := fn(r.faker, NewArgs(args))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidFieldType, kind, err)
	}
	return v, nil
}

// ResolveField resolves kind like Resolve, logging any failure and
// returning nil in its place.
func (r *FieldResolver) ResolveField(field, kind string, args ...any) any {
	v, err := r.Resolve(kind, args...)
	if err != nil {
		r.logger.Warn("failed to resolve field",
			zap.String("field", field),
			zap.String("type", kind),
			zap.Error(err),
		)
		return nil
	}
	return v
}

func (r *FieldResolver) resolveArray(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: an element type and a length are required", ErrInvalidArraySpec)
	}
	elem, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: element type must be a type name, got %T", ErrInvalidArraySpec, args[0])
	}

	var n int
	var elemArgs []any
	if count, ok := toInt(args[1]); ok {
		n, elemArgs = count, args[2:]
	} else if s, _ := args[1].(string); s == "integer" {
		if len(args) < 3 {
			return nil, fmt.Errorf("%w: a random length needs a [min, max] range", ErrInvalidArraySpec)
		}
		lo, hi, ok := lengthRange(args[2])
		if !ok {
			return nil, fmt.Errorf("%w: length range must be two ascending integers, got %v", ErrInvalidArraySpec, args[2])
		}
		v, err := r.Resolve("integer", lo, hi)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArraySpec, err)
		}
		n, _ = toInt(v)
		elemArgs = args[3:]
	} else {
		return nil, fmt.Errorf(`%w: length must be an integer or "integer", got %v`, ErrInvalidArraySpec, args[1])
	}
	// A negative length yields an empty array.
	out := make([]any, 0, max(n, 0))
	for i := 0; i < n; i++ {
		v, err := r.Resolve(elem, elemArgs...)
		if err != nil {
			r.logger.Warn("failed to resolve array element",
				zap.String("type", elem),
				zap.Error(err),
			)
			continue
		}
		if v == nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// lengthRange returns the bounds of a two element ascending range.
func lengthRange(v any) (int, int, bool) {
	var bounds []any
	switch v := v.(type) {
	case []any:
		bounds = v
	case []int:
		for _, n := range v {
			bounds = append(bounds, n)
		}
	case [2]int:
		bounds = []any{v[0], v[1]}
	default:
		return 0, 0, false
	}
	if len(bounds) != 2 {
		return 0, 0, false
	}
	lo, ok1 := toInt(bounds[0])
	hi, ok2 := toInt(bounds[1])
	if !ok1 || !ok2 || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}
