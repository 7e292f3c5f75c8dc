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

package idx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/initial-ddl/dsldict/internal/folding"
)

const (
	// Signature is "DSLX" in little-endian byte order.
	Signature uint32 = 0x584c5344

	// serializedFormatVersion is the version of the serialized layout
	// outside the B-tree nodes.
	serializedFormatVersion = 23

	// CurrentZipSupportVersion is the version of the zip-index schema. It
	// narrows reindexing down to dictionaries that carry a zip file.
	CurrentZipSupportVersion uint32 = 2
)

// CurrentFormatVersion combines the serialized format, the B-tree format
// and the folding algorithm versions. A mismatch on any component forces a
// full rebuild.
const CurrentFormatVersion uint32 = serializedFormatVersion + btreeFormatVersion + folding.Version

var (
	// ErrIndexOldOrBad indicates an index file that is missing, truncated,
	// or written by a different format version.
	ErrIndexOldOrBad = errors.New("index is old or bad")
)

// Header is the fixed-size index file header. All fields are little-endian
// and tightly packed; the struct layout has no padding.
type Header struct {
	Signature                uint32
	FormatVersion            uint32
	ZipSupportVersion        uint32
	DslEncoding              int32
	ChunksOffset             uint32
	HasAbrv                  uint32
	AbrvAddress              uint32
	IndexBtreeMaxElements    uint32
	IndexRootOffset          uint32
	ArticleCount             uint32
	WordCount                uint32
	LangFrom                 uint32
	LangTo                   uint32
	HasZipFile               uint32
	HasSoundDictionaryName   uint32
	ZipIndexBtreeMaxElements uint32
	ZipIndexRootOffset       uint32
}

// HeaderSize is the on-disk size of the header in bytes.
const HeaderSize = 17 * 4

// ReadHeader reads the header at the start of the index file.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := r.ReadAt(b, 0); err != nil {
		return nil, fmt.Errorf("reading index header: %w", err)
	}

	var h Header
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("decoding index header: %w", err)
	}
	return &h, nil
}

// Write writes the header to w at the current position.
func (h *Header) Write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("writing index header: %w", err)
	}
	return nil
}

// Validate checks the signature and format versions against the current
// constants. hasZipFile is whether a resource archive accompanies the
// source now; archive presence is part of the index's identity.
func (h *Header) Validate(hasZipFile bool) error {
	if h.Signature != Signature {
		return fmt.Errorf("%w: bad signature %#x", ErrIndexOldOrBad, h.Signature)
	}
	if h.FormatVersion != CurrentFormatVersion {
		return fmt.Errorf("%w: format version %d != %d", ErrIndexOldOrBad, h.FormatVersion, CurrentFormatVersion)
	}
	if (h.HasZipFile != 0) != hasZipFile {
		return fmt.Errorf("%w: resource archive presence changed", ErrIndexOldOrBad)
	}
	if hasZipFile && h.ZipSupportVersion != CurrentZipSupportVersion {
		return fmt.Errorf("%w: zip support version %d != %d", ErrIndexOldOrBad, h.ZipSupportVersion, CurrentZipSupportVersion)
	}
	return nil
}

// ReadString reads a u32-length-prefixed string at off and returns it with
// the offset just past it.
func ReadString(r io.ReaderAt, off int64) (string, int64, error) {
	var lenBuf [4]byte
	if _, err := r.ReadAt(lenBuf[:], off); err != nil {
		return "", 0, fmt.Errorf("reading string length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return "", off + 4, nil
	}

	b := make([]byte, n)
	if _, err := r.ReadAt(b, off+4); err != nil {
		return "", 0, fmt.Errorf("reading string: %w", err)
	}
	return string(b), off + 4 + int64(n), nil
}

// WriteString writes a u32-length-prefixed string.
func WriteString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("writing string length: %w", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return fmt.Errorf("writing string: %w", err)
	}
	return nil
}
