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
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// FieldTypeFunc generates a single value for a named field type.
type FieldTypeFunc func(f *gofakeit.Faker, args Args) (any, error)

// Args holds the arguments given to a field type. Arguments are either
// positional, or a single keyword map when the template supplies exactly
// one object argument.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// NewArgs returns the Args for a template argument list.
func NewArgs(args []any) Args {
	if len(args) == 1 {
		if kw, ok := args[0].(map[string]any); ok {
			return Args{Keyword: kw}
		}
	}
	return Args{Positional: args}
}

// Len returns the number of supplied arguments.
func (a Args) Len() int {
	return len(a.Positional) + len(a.Keyword)
}

// accept returns an error if a holds more positional arguments than names,
// or a keyword that is not one of names.
func (a Args) accept(names ...string) error {
	if len(a.Positional) > len(names) {
		return fmt.Errorf("takes at most %d arguments (%d given)", len(names), len(a.Positional))
	}
	for k := range a.Keyword {
		found := false
		for _, name := range names {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("got an unexpected keyword argument %q", k)
		}
	}
	return nil
}

func (a Args) lookup(pos int, name string) (any, bool) {
	if a.Keyword != nil {
		v, ok := a.Keyword[name]
		return v, ok && v != nil
	}
	if pos < len(a.Positional) && a.Positional[pos] != nil {
		return a.Positional[pos], true
	}
	return nil, false
}

// Int returns the integer argument at pos or named name, or def if absent.
func (a Args) Int(pos int, name string, def int) (int, error) {
	v, ok := a.lookup(pos, name)
	if !ok {
		return def, nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("argument %q must be an integer, got %T", name, v)
	}
	return n, nil
}

// Float returns the numeric argument at pos or named name. The boolean
// result reports whether the argument was supplied.
func (a Args) Float(pos int, name string) (float64, bool, error) {
	v, ok := a.lookup(pos, name)
	if !ok {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false, fmt.Errorf("argument %q must be a number, got %T", name, v)
	}
	return f, true, nil
}

// Bool returns the boolean argument at pos or named name, or def if absent.
func (a Args) Bool(pos int, name string, def bool) (bool, error) {
	v, ok := a.lookup(pos, name)
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q must be a boolean, got %T", name, v)
	}
	return b, nil
}

// String returns the string argument at pos or named name, or def if absent.
func (a Args) String(pos int, name string, def string) (string, error) {
	v, ok := a.lookup(pos, name)
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", name, v)
	}
	return s, nil
}

// toInt converts v to an int. Floats are accepted only when integral, since
// JSON templates decode every number as float64.
func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// noArgs adapts a generator that takes no arguments.
func noArgs(fn func(f *gofakeit.Faker) any) FieldTypeFunc {
	return func(f *gofakeit.Faker, args Args) (any, error) {
		if err := args.accept(); err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}

// builtinFieldTypes holds the generators every FieldResolver knows about.
// Names follow the provider method names used by field type aliases.
var builtinFieldTypes = map[string]FieldTypeFunc{
	"random_int":       randomInt,
	"pyint":            pyInt,
	"random_number":    randomNumber,
	"pyfloat":          pyFloat,
	"pystr":            pyStr,
	"pybool":           noArgs(func(f *gofakeit.Faker) any { return f.Bool() }),
	"random_element":   randomElement,
	"year":             noArgs(func(f *gofakeit.Faker) any { return strconv.Itoa(f.Year()) }),
	"month":            noArgs(func(f *gofakeit.Faker) any { return fmt.Sprintf("%02d", f.Month()) }),
	"day_of_week":      noArgs(func(f *gofakeit.Faker) any { return f.WeekDay() }),
	"date":             noArgs(func(f *gofakeit.Faker) any { return f.Date().Format(time.DateOnly) }),
	"date_time":        noArgs(func(f *gofakeit.Faker) any { return f.Date().UTC().Format(time.RFC3339) }),
	"unix_time":        noArgs(func(f *gofakeit.Faker) any { return f.Date().Unix() }),
	"date_of_birth":    dateOfBirth,
	"name":             noArgs(func(f *gofakeit.Faker) any { return f.Name() }),
	"first_name":       noArgs(func(f *gofakeit.Faker) any { return f.FirstName() }),
	"last_name":        noArgs(func(f *gofakeit.Faker) any { return f.LastName() }),
	"email":            noArgs(func(f *gofakeit.Faker) any { return f.Email() }),
	"user_name":        noArgs(func(f *gofakeit.Faker) any { return f.Username() }),
	"company":          noArgs(func(f *gofakeit.Faker) any { return f.Company() }),
	"job":              noArgs(func(f *gofakeit.Faker) any { return f.JobTitle() }),
	"phone_number":     noArgs(func(f *gofakeit.Faker) any { return f.Phone() }),
	"ssn":              noArgs(ssn),
	"address":          noArgs(func(f *gofakeit.Faker) any { return f.Address().Address }),
	"street_address":   noArgs(func(f *gofakeit.Faker) any { return f.Street() }),
	"city":             noArgs(func(f *gofakeit.Faker) any { return f.City() }),
	"state":            noArgs(func(f *gofakeit.Faker) any { return f.State() }),
	"state_abbr":       noArgs(func(f *gofakeit.Faker) any { return f.StateAbr() }),
	"zipcode":          noArgs(func(f *gofakeit.Faker) any { return f.Zip() }),
	"zipcode_in_state": zipcodeInState,
	"country":          noArgs(func(f *gofakeit.Faker) any { return f.Country() }),
	"country_code":     noArgs(func(f *gofakeit.Faker) any { return f.CountryAbr() }),
	"latitude":         noArgs(func(f *gofakeit.Faker) any { return f.Latitude() }),
	"longitude":        noArgs(func(f *gofakeit.Faker) any { return f.Longitude() }),
	"ipv4":             noArgs(func(f *gofakeit.Faker) any { return f.IPv4Address() }),
	"ipv6":             noArgs(func(f *gofakeit.Faker) any { return f.IPv6Address() }),
	"url":              noArgs(func(f *gofakeit.Faker) any { return f.URL() }),
	"domain_name":      noArgs(func(f *gofakeit.Faker) any { return f.DomainName() }),
	"mac_address":      noArgs(func(f *gofakeit.Faker) any { return f.MacAddress() }),
	"user_agent":       noArgs(func(f *gofakeit.Faker) any { return f.UserAgent() }),
	"color_name":       noArgs(func(f *gofakeit.Faker) any { return f.Color() }),
	"hex_color":        noArgs(func(f *gofakeit.Faker) any { return f.HexColor() }),
	"word":             noArgs(func(f *gofakeit.Faker) any { return f.Word() }),
	"sentence":         sentence,
	"uuid4":            noArgs(func(f *gofakeit.Faker) any { return f.UUID() }),
}

// randomInt returns an integer in [min, max] stepping by step.
func randomInt(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("min", "max", "step"); err != nil {
		return nil, err
	}
	lo, err := args.Int(0, "min", 0)
	if err != nil {
		return nil, err
	}
	hi, err := args.Int(1, "max", 9999)
	if err != nil {
		return nil, err
	}
	step, err := args.Int(2, "step", 1)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, fmt.Errorf("empty range for random_int(%d, %d)", lo, hi)
	}
	if step <= 0 {
		return nil, errors.New("step must be a positive integer")
	}
	return lo + step*f.IntRange(0, (hi-lo)/step), nil
}

func pyInt(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("min_value", "max_value", "step"); err != nil {
		return nil, err
	}
	lo, err := args.Int(0, "min_value", 0)
	if err != nil {
		return nil, err
	}
	hi, err := args.Int(1, "max_value", 9999)
	if err != nil {
		return nil, err
	}
	step, err := args.Int(2, "step", 1)
	if err != nil {
		return nil, err
	}
	return randomInt(f, Args{Positional: []any{lo, hi, step}})
}

// randomNumber returns a non-negative integer with at most digits digits.
func randomNumber(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("digits"); err != nil {
		return nil, err
	}
	digits, err := args.Int(0, "digits", 4)
	if err != nil {
		return nil, err
	}
	if digits < 1 || digits > 18 {
		return nil, fmt.Errorf("digits must be in [1,18], got %d", digits)
	}
	return f.IntRange(0, int(math.Pow10(digits))-1), nil
}

// pyFloat returns a float whose integer part has at most left_digits digits
// and which is rounded to right_digits decimals. min_value and max_value
// override the bounds implied by left_digits.
func pyFloat(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("left_digits", "right_digits", "positive", "min_value", "max_value"); err != nil {
		return nil, err
	}
	left, err := args.Int(0, "left_digits", 5)
	if err != nil {
		return nil, err
	}
	right, err := args.Int(1, "right_digits", 2)
	if err != nil {
		return nil, err
	}
	positive, err := args.Bool(2, "positive", false)
	if err != nil {
		return nil, err
	}
	minValue, hasMin, err := args.Float(3, "min_value")
	if err != nil {
		return nil, err
	}
	maxValue, hasMax, err := args.Float(4, "max_value")
	if err != nil {
		return nil, err
	}
	if left < 0 || right < 0 || left > 15 || right > 15 {
		return nil, errors.New("left_digits and right_digits must be in [0,15]")
	}
	if left == 0 && right == 0 {
		return nil, errors.New("left_digits and right_digits cannot both be 0")
	}

	limit := math.Pow10(left) - math.Pow10(-right)
	lo, hi := -limit, limit
	if positive {
		lo = 0
	}
	if hasMin {
		lo = minValue
	}
	if hasMax {
		hi = maxValue
	}
	if lo > hi {
		return nil, fmt.Errorf("min_value (%v) must be less than or equal to max_value (%v)", lo, hi)
	}
	scale := math.Pow10(right)
	v := math.Round(f.Float64Range(lo, hi)*scale) / scale
	return math.Min(math.Max(v, lo), hi), nil
}

func pyStr(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("max_chars"); err != nil {
		return nil, err
	}
	n, err := args.Int(0, "max_chars", 20)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("max_chars must not be negative, got %d", n)
	}
	return f.LetterN(uint(n)), nil
}

func randomElement(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("elements"); err != nil {
		return nil, err
	}
	v, ok := args.lookup(0, "elements")
	if !ok {
		return nil, errors.New("random_element requires elements")
	}
	var elements []any
	switch v := v.(type) {
	case []any:
		elements = v
	case map[string]any:
		for k := range v {
			elements = append(elements, k)
		}
	default:
		return nil, fmt.Errorf("elements must be a list, got %T", v)
	}
	if len(elements) == 0 {
		return nil, errors.New("elements must not be empty")
	}
	return elements[f.IntRange(0, len(elements)-1)], nil
}

// dateOfBirth returns a YYYY-MM-DD date for someone aged within
// [minimum_age, maximum_age]. The first argument is a time zone and is
// accepted only for compatibility.
func dateOfBirth(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("tzinfo", "minimum_age", "maximum_age"); err != nil {
		return nil, err
	}
	minAge, err := args.Int(1, "minimum_age", 0)
	if err != nil {
		return nil, err
	}
	maxAge, err := args.Int(2, "maximum_age", 115)
	if err != nil {
		return nil, err
	}
	if minAge < 0 || minAge > maxAge {
		return nil, fmt.Errorf("invalid age range [%d, %d]", minAge, maxAge)
	}
	now := time.Now().UTC()
	end := now.AddDate(-minAge, 0, 0)
	start := now.AddDate(-maxAge-1, 0, 1)
	return f.DateRange(start, end).Format(time.DateOnly), nil
}

func sentence(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("nb_words"); err != nil {
		return nil, err
	}
	n, err := args.Int(0, "nb_words", 6)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("nb_words must be positive, got %d", n)
	}
	return f.Sentence(n), nil
}

// ssn formats a nine digit social security number as AAA-GG-SSSS.
func ssn(f *gofakeit.Faker) any {
	s := f.SSN()
	if len(s) != 9 {
		return s
	}
	return s[:3] + "-" + s[3:5] + "-" + s[5:]
}

// statePostcodes holds the zip code ranges used by zipcode_in_state.
var statePostcodes = map[string][2]int{
	"AL": {35004, 36925},
	"AK": {99501, 99950},
	"AZ": {85001, 86556},
	"AR": {71601, 72959},
	"CA": {90001, 96162},
	"CO": {80001, 81658},
	"CT": {6001, 6389},
	"FL": {32004, 34997},
	"GA": {30001, 31999},
	"IL": {60001, 62999},
	"MA": {1001, 2791},
	"NY": {10001, 14925},
	"OR": {97001, 97920},
	"TX": {75503, 79999},
	"WA": {98001, 99403},
}

func zipcodeInState(f *gofakeit.Faker, args Args) (any, error) {
	if err := args.accept("state_abbr"); err != nil {
		return nil, err
	}
	state, err := args.String(0, "state_abbr", "")
	if err != nil {
		return nil, err
	}
	if state == "" {
		state = f.RandomString(stateAbbrs())
	}
	r, ok := statePostcodes[state]
	if !ok {
		return nil, fmt.Errorf("state_abbr %q not supported", state)
	}
	return fmt.Sprintf("%05d", f.IntRange(r[0], r[1])), nil
}

func stateAbbrs() []string {
	out := make([]string, 0, len(statePostcodes))
	for k := range statePostcodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
