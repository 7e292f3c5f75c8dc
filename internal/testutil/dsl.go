// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testutil provides helpers that write DSL dictionary fixtures.
package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ianlewis/go-dictzip"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// Encoding names accepted by EncodeDSL.
const (
	UTF8    = "UTF-8"
	UTF16LE = "UTF-16LE"
	UTF16BE = "UTF-16BE"
	UTF32LE = "UTF-32LE"
	Win1251 = "WINDOWS-1251"
)

// EncodeDSL encodes content with the named encoding, prefixed with the
// encoding's byte-order mark where one exists.
func EncodeDSL(t *testing.T, content, encName string) []byte {
	t.Helper()

	var bom []byte
	var enc transform.Transformer
	switch encName {
	case UTF8:
		bom = []byte{0xEF, 0xBB, 0xBF}
		return append(bom, []byte(content)...)
	case UTF16LE:
		bom = []byte{0xFF, 0xFE}
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	case UTF16BE:
		bom = []byte{0xFE, 0xFF}
		enc = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	case UTF32LE:
		bom = []byte{0xFF, 0xFE, 0x00, 0x00}
		enc = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM).NewEncoder()
	case Win1251:
		enc = charmap.Windows1251.NewEncoder()
	default:
		t.Fatalf("unknown encoding: %q", encName)
	}

	encoded, _, err := transform.Bytes(enc, []byte(content))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return append(bom, encoded...)
}

// WriteDSL writes a .dsl source file fixture and returns its path.
func WriteDSL(t *testing.T, dir, name, content, encName string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, EncodeDSL(t, content, encName), 0o600); err != nil {
		t.Fatalf("writing fixture %q: %v", path, err)
	}
	return path
}

// WriteDSLDz writes a dictzip-compressed .dsl.dz source file fixture and
// returns its path.
func WriteDSLDz(t *testing.T, dir, name, content, encName string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture %q: %v", path, err)
	}
	defer f.Close()

	z, err := dictzip.NewWriter(f)
	if err != nil {
		t.Fatalf("creating dictzip writer: %v", err)
	}
	if _, err := z.Write(EncodeDSL(t, content, encName)); err != nil {
		t.Fatalf("writing fixture %q: %v", path, err)
	}
	if err := z.Close(); err != nil {
		t.Fatalf("closing dictzip writer: %v", err)
	}
	return path
}

// WriteZip writes a resource archive fixture with the given entries and
// returns its path.
func WriteZip(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture %q: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, data := range files {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("adding zip entry %q: %v", entryName, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("writing zip entry %q: %v", entryName, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip fixture: %v", err)
	}
	return path
}
