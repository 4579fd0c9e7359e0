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

package job

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	sampledata "github.com/elastic/go-sampledata"
)

// configFiles returns the job config candidates in dir, after extracting
// .tar.gz archives into dir and decompressing .gz files into new files
// beside them. cleanup removes every file created on the way and must be
// called even when err is non-nil.
func configFiles(dir string) (files []string, cleanup func() error, err error) {
	var created []string
	cleanup = func() error {
		var errs []error
		for i := len(created) - 1; i >= 0; i-- {
			if err := os.Remove(created[i]); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, cleanup, fmt.Errorf("%w: %w", sampledata.ErrConfiguration, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		extracted, err := untar(filepath.Join(dir, e.Name()), dir)
		created = append(created, extracted...)
		if err != nil {
			return nil, cleanup, err
		}
	}

	if entries, err = os.ReadDir(dir); err != nil {
		return nil, cleanup, fmt.Errorf("%w: %w", sampledata.ErrConfiguration, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		switch filepath.Ext(strings.TrimSuffix(name, ".gz")) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		decompressed, _, err := sampledata.Decompress(filepath.Join(dir, name))
		if err != nil {
			return nil, cleanup, err
		}
		if strings.HasSuffix(name, ".gz") {
			created = append(created, decompressed)
		}
		files = append(files, decompressed)
	}
	slices.Sort(files)
	return files, cleanup, nil
}

// untar extracts the regular files of a gzip compressed tar archive into
// dir, returning the names of the extracted files.
func untar(path, dir string) (extracted []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sampledata.ErrFileFormat, err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gzip header of %q: %w", sampledata.ErrFileFormat, path, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return extracted, nil
		}
		if err != nil {
			return extracted, fmt.Errorf("%w: failed to read %q: %w", sampledata.ErrFileFormat, path, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		target := filepath.Join(root, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return extracted, fmt.Errorf("%w: %q escapes the config directory", sampledata.ErrFileFormat, hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return extracted, err
		}
		if err := writeFile(target, tr); err != nil {
			return extracted, err
		}
		extracted = append(extracted, target)
	}
}

func writeFile(name string, r io.Reader) error {
	out, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %q: %w", name, err)
	}
	return out.Close()
}
