// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dsldict

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ianlewis/go-dictzip"
	"github.com/sirupsen/logrus"

	"github.com/initial-ddl/dsldict/idx"
)

// ErrAbbreviationDictionary indicates a source whose #NAME is "Abbrev";
// such sources are companions of other dictionaries and are never opened
// as top-level dictionaries.
var ErrAbbreviationDictionary = errors.New("abbreviation dictionary")

// OpenOptions are options for opening dictionaries.
type OpenOptions struct {
	// IndexDir is the directory index files are kept in. Empty means the
	// directory of the source file.
	IndexDir string

	// MaxHeadwordSize is the largest headword, in code points, that gets
	// indexed. Longer headwords are treated as spurious and dropped.
	MaxHeadwordSize int

	// MaxPictureWidth is the display width above which pictures get
	// wrapped in a gdpicture:// link. Zero disables the wrapping.
	MaxPictureWidth int

	// Logger receives build and parse diagnostics. Nil means the standard
	// logger.
	Logger *logrus.Logger
}

// DefaultOpenOptions are the default options for Open.
var DefaultOpenOptions = &OpenOptions{
	MaxHeadwordSize: 256,
}

func (o *OpenOptions) maxHeadwordSize() int {
	if o == nil || o.MaxHeadwordSize == 0 {
		return DefaultOpenOptions.MaxHeadwordSize
	}
	return o.MaxHeadwordSize
}

func (o *OpenOptions) logger() *logrus.Logger {
	if o == nil || o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// OpenAll opens all DSL dictionaries under a directory. It returns all
// successfully opened dictionaries along with any errors that occurred.
func OpenAll(path string, opts *OpenOptions) ([]*Dictionary, []error) {
	var dicts []*Dictionary
	var errs []error
	if err := filepath.WalkDir(path, func(path string, info fs.DirEntry, err error) error {
		// Walking the file path will ignore errors.
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if info.IsDir() || !isDslName(info.Name()) {
			return nil
		}
		d, err := Open(path, opts)
		if err != nil {
			if !errors.Is(err, ErrAbbreviationDictionary) {
				errs = append(errs, err)
			}
			return nil
		}
		dicts = append(dicts, d)
		return nil
	}); err != nil {
		errs = append(errs, err)
		return nil, errs
	}
	return dicts, errs
}

// isDslName reports whether name is a top-level DSL source file name.
// Abbreviation companions are never top-level dictionaries.
func isDslName(name string) bool {
	lower := strings.ToLower(name)

	var stem string
	switch {
	case strings.HasSuffix(lower, ".dsl"):
		stem = lower[:len(lower)-len(".dsl")]
	case strings.HasSuffix(lower, ".dsl.dz"):
		stem = lower[:len(lower)-len(".dsl.dz")]
	default:
		return false
	}
	return !strings.HasSuffix(stem, "_abrv")
}

// Open opens the DSL dictionary at the given .dsl or .dsl.dz path,
// rebuilding its index file if it is missing or stale.
func Open(path string, opts *OpenOptions) (*Dictionary, error) {
	if !isDslName(filepath.Base(path)) {
		return nil, fmt.Errorf("not a dictionary source: %q", path)
	}

	baseName := strings.TrimSuffix(path, filepath.Ext(path))
	baseName = strings.TrimSuffix(baseName, ".dsl") // strip ".dsl" of ".dsl.dz"

	abrvPath := tryPossibleName(
		baseName+"_abrv.dsl",
		baseName+"_abrv.dsl.dz",
		baseName+"_ABRV.DSL",
		baseName+"_ABRV.DSL.DZ",
		baseName+"_ABRV.DSL.dz",
	)
	zipPath := tryPossibleName(
		baseName+".dsl.files.zip",
		baseName+".dsl.dz.files.zip",
		baseName+".DSL.FILES.ZIP",
		baseName+".DSL.DZ.FILES.ZIP",
	)

	files := []string{path}
	if abrvPath != "" {
		files = append(files, abrvPath)
	}
	if zipPath != "" {
		files = append(files, zipPath)
	}

	id := makeDictionaryID(files)

	indexDir := filepath.Dir(path)
	if opts != nil && opts.IndexDir != "" {
		indexDir = opts.IndexDir
	}
	indexPath := filepath.Join(indexDir, id+".idx")

	if needToRebuildIndex(files, indexPath) || indexIsOldOrBad(indexPath, zipPath != "") {
		err := BuildIndex(path, abrvPath, zipPath, indexPath, &BuildOptions{
			MaxHeadwordSize: opts.maxHeadwordSize(),
			Logger:          opts.logger(),
		})
		if err != nil {
			return nil, fmt.Errorf("building index for %q: %w", path, err)
		}
	}

	return newDictionary(id, indexPath, path, zipPath, opts)
}

// tryPossibleName returns the first of the candidate paths that exists.
func tryPossibleName(candidates ...string) string {
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// makeDictionaryID derives a stable dictionary id from the set of files
// the dictionary consists of.
func makeDictionaryID(files []string) string {
	h := md5.New()
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		io.WriteString(h, abs)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// needToRebuildIndex reports whether the index file is missing or older
// than any of the dictionary's files.
func needToRebuildIndex(files []string, indexPath string) bool {
	idxInfo, err := os.Stat(indexPath)
	if err != nil {
		return true
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return true
		}
		if info.ModTime().After(idxInfo.ModTime()) {
			return true
		}
	}
	return false
}

// indexIsOldOrBad reports whether the index header fails validation.
func indexIsOldOrBad(indexPath string, hasZipFile bool) bool {
	f, err := os.Open(indexPath)
	if err != nil {
		return true
	}
	defer f.Close()

	h, err := idx.ReadHeader(f)
	if err != nil {
		return true
	}
	return h.Validate(hasZipFile) != nil
}

// sourceReader is a block-addressable reader over a dictionary source,
// either plain or dictzip-compressed.
type sourceReader interface {
	io.ReaderAt
	io.Closer
}

// openSource opens path for random access, transparently handling .dz
// compression.
func openSource(path string) (sourceReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".dz") {
		z, err := dictzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening dictzip %q: %w", path, err)
		}
		return &dzReader{f: f, z: z}, nil
	}
	return f, nil
}

// dzReader adapts a dictzip reader and its underlying file to
// sourceReader.
type dzReader struct {
	f *os.File
	z *dictzip.Reader
}

// ReadAt implements [io.ReaderAt] over the decompressed data.
func (r *dzReader) ReadAt(p []byte, off int64) (int, error) {
	return r.z.ReadAt(p, off)
}

// Close closes the underlying file.
func (r *dzReader) Close() error {
	return r.f.Close()
}

// readSource reads the entire decompressed content of a source file.
func readSource(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".dz") {
		z, err := dictzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening dictzip %q: %w", path, err)
		}
		b, err := io.ReadAll(z)
		if err != nil {
			return nil, fmt.Errorf("reading dictzip %q: %w", path, err)
		}
		return b, nil
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return b, nil
}
