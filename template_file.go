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
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 16 * 1024 * 1024

type fileFormat int

const (
	formatNDJSON fileFormat = iota + 1
	formatCSV
)

// IsFileTemplate reports whether template names a file rather than holding
// an inline JSON template.
func IsFileTemplate(template any) bool {
	s, ok := template.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return s != "" && !strings.HasPrefix(s, "{")
}

func detectFormat(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz"))) {
	case ".json", ".ndjson":
		return formatNDJSON, nil
	case ".csv":
		return formatCSV, nil
	}
	return 0, fmt.Errorf("%w: %q must be a .json, .ndjson or .csv file", ErrFileFormat, path)
}

// Decompress decompresses a gzip file ending in ".gz" into a new file in
// the same directory, keeping the extension that precedes the suffix, and
// returns its name and a function removing it. Files without the suffix
// are returned unchanged with a no-op cleanup.
//
// The caller must call cleanup once it is done with the file, on every
// path, to remove exactly the file created here.
func Decompress(path string) (name string, cleanup func() error, err error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, func() error { return nil }, nil
	}
	base := filepath.Base(strings.TrimSuffix(path, ".gz"))
	ext := filepath.Ext(base)

	in, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrFileFormat, err)
	}
	defer in.Close()
	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to read gzip header of %q: %w", ErrFileFormat, path, err)
	}
	defer zr.Close()

	out, err := os.CreateTemp(filepath.Dir(path), strings.TrimSuffix(base, ext)+".*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create decompressed copy of %q: %w", path, err)
	}
	name = out.Name()
	cleanup = func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("%w: failed to decompress %q: %w", ErrFileFormat, path, err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write %q: %w", name, err)
	}
	return name, cleanup, nil
}

// withFile decompresses path if needed and calls fn with the readable file
// name and its format, removing any decompressed copy before returning.
func withFile(path string, fn func(name string, format fileFormat) error) (err error) {
	format, err := detectFormat(path)
	if err != nil {
		return err
	}
	name, cleanup, err := Decompress(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to remove %q: %w", name, cerr)
		}
	}()
	return fn(name, format)
}

// readNDJSON calls fn for every non-blank line of the named file.
func readNDJSON(name string, fn func(line []byte, lineno int) error) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileFormat, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line, lineno); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: failed to read %q: %w", ErrFileFormat, name, err)
	}
	return nil
}

// readCSV calls fn for every data row of the named file, with the header
// row as field names.
func readCSV(name string, fn func(header, row []string) error) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileFormat, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: %q has no header row", ErrFileFormat, name)
		}
		return fmt.Errorf("%w: failed to read %q: %w", ErrFileFormat, name, err)
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read %q: %w", ErrFileFormat, name, err)
		}
		if err := fn(header, row); err != nil {
			return err
		}
	}
}

// LoadFile loads user supplied documents from a .json, .ndjson or .csv file,
// optionally gzip compressed, without generating any values. CSV cells are
// kept as strings.
func LoadFile(path string) ([]Document, error) {
	var docs []Document
	err := withFile(path, func(name string, format fileFormat) error {
		switch format {
		case formatNDJSON:
			return readNDJSON(name, func(line []byte, lineno int) error {
				var doc Document
				if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &doc); err != nil {
					return fmt.Errorf("%w: %s line %d: %w", ErrFileFormat, path, lineno, err)
				}
				if doc == nil {
					return fmt.Errorf("%w: %s line %d: not a JSON object", ErrFileFormat, path, lineno)
				}
				docs = append(docs, doc)
				return nil
			})
		default:
			return readCSV(name, func(header, row []string) error {
				doc := make(Document, len(header))
				for i, field := range header {
					doc[field] = row[i]
				}
				docs = append(docs, doc)
				return nil
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// parseLiteral parses a CSV cell holding a literal argument list, such as
// ['integer', 0, 5] or ("array", "word", 3), into a []any. Bare comma
// separated values are treated as a tuple.
func parseLiteral(cell string) ([]any, error) {
	src := literalToYAML(strings.TrimSpace(cell))
	if !strings.HasPrefix(src, "[") {
		src = "[" + src + "]"
	}
	var v any
	if err := yaml.Unmarshal([]byte(src), &v); err != nil {
		return nil, fmt.Errorf("%w: invalid literal %q: %w", ErrFileFormat, cell, err)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: literal %q is not a list", ErrFileFormat, cell)
	}
	return list, nil
}

// literalToYAML rewrites a literal into a YAML flow sequence: tuples become
// sequences and None, True and False become null, true and false. Quoted
// strings are copied unchanged.
func literalToYAML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '(':
			b.WriteByte('[')
		case c == ')':
			b.WriteByte(']')
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "None":
				b.WriteString("null")
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
