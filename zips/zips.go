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

// Package zips indexes and extracts entries of a companion resource
// archive (the .files.zip convention).
package zips

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/initial-ddl/dsldict/idx"
)

// ErrNotFound indicates that the archive has no entry with the requested
// name.
var ErrNotFound = errors.New("resource not found in archive")

// IndexArchive walks the archive's entries and adds each file name to iw.
// The link's article offset is the entry's ordinal within the archive,
// which Archive.Load resolves back to the entry. It returns the number of
// indexed entries.
func IndexArchive(path string, iw idx.IndexedWords) (int, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("opening resource archive %q: %w", path, err)
	}
	defer rc.Close()

	n := 0
	for i, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		iw.AddSingleWord(f.Name, uint32(i))
		n++
	}
	return n, nil
}

// Archive provides lookups into a resource archive through the B-tree
// embedded in the dictionary's index file. The archive file itself is
// opened lazily on first extraction.
type Archive struct {
	path  string
	btree *idx.BtreeIndex

	rc *zip.ReadCloser
}

// New creates an archive view. btree may be nil when the index contains no
// usable archive B-tree; all lookups then fail.
func New(path string, btree *idx.BtreeIndex) *Archive {
	return &Archive{path: path, btree: btree}
}

// IsOpen reports whether the archive is usable.
func (a *Archive) IsOpen() bool {
	return a != nil && a.btree != nil
}

// Has reports whether the archive contains an entry with the given name.
// Matching is case-insensitive.
func (a *Archive) Has(name string) bool {
	if !a.IsOpen() {
		return false
	}
	links, err := a.btree.FindArticles(name, false)
	return err == nil && len(links) > 0
}

// Load extracts the named entry.
func (a *Archive) Load(name string) ([]byte, error) {
	if !a.IsOpen() {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	links, err := a.btree.FindArticles(name, false)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if a.rc == nil {
		rc, err := zip.OpenReader(a.path)
		if err != nil {
			return nil, fmt.Errorf("opening resource archive %q: %w", a.path, err)
		}
		a.rc = rc
	}

	ordinal := int(links[0].ArticleOffset)
	if ordinal >= len(a.rc.File) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	f, err := a.rc.File[ordinal].Open()
	if err != nil {
		return nil, fmt.Errorf("extracting %q: %w", name, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("extracting %q: %w", name, err)
	}
	return b, nil
}

// Close releases the archive file if it was opened.
func (a *Archive) Close() error {
	if a == nil || a.rc == nil {
		return nil
	}
	err := a.rc.Close()
	a.rc = nil
	if err != nil {
		return fmt.Errorf("closing resource archive: %w", err)
	}
	return nil
}
