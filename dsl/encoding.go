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

package dsl

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// Encoding identifies the character encoding of a DSL source file. The
// numeric values are persisted in index headers and must not be reordered.
type Encoding int32

const (
	// UTF16LE is the default encoding of historical DSL files.
	UTF16LE Encoding = iota
	// UTF16BE is big-endian UTF-16.
	UTF16BE
	// Windows1250 is the Central European Windows code page.
	Windows1250
	// Windows1251 is the Cyrillic Windows code page.
	Windows1251
	// Windows1252 is the Western European Windows code page.
	Windows1252
	// UTF8 is UTF-8.
	UTF8
	// UTF32LE is little-endian UTF-32.
	UTF32LE
	// UTF32BE is big-endian UTF-32.
	UTF32BE
)

// EncodingError indicates that a byte sequence is not valid for the declared
// encoding.
type EncodingError struct {
	// Encoding is the encoding the bytes were decoded with.
	Encoding Encoding

	// Offset is the byte offset of the offending sequence.
	Offset int64
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s byte sequence at offset %d", e.Encoding, e.Offset)
}

// String returns the canonical name of the encoding.
func (e Encoding) String() string {
	switch e {
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	case Windows1250:
		return "WINDOWS-1250"
	case Windows1251:
		return "WINDOWS-1251"
	case Windows1252:
		return "WINDOWS-1252"
	case UTF8:
		return "UTF-8"
	case UTF32LE:
		return "UTF-32LE"
	case UTF32BE:
		return "UTF-32BE"
	default:
		return "UTF-8"
	}
}

// EncodingByName returns the encoding with the given (case-insensitive)
// name. It reports false for unrecognized names.
func EncodingByName(name string) (Encoding, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTF-16LE", "UTF16LE":
		return UTF16LE, true
	case "UTF-16BE", "UTF16BE":
		return UTF16BE, true
	case "WINDOWS-1250":
		return Windows1250, true
	case "WINDOWS-1251":
		return Windows1251, true
	case "WINDOWS-1252", "LATIN1", "ISO-8859-1":
		return Windows1252, true
	case "UTF-8", "UTF8":
		return UTF8, true
	case "UTF-32LE", "UTF32LE":
		return UTF32LE, true
	case "UTF-32BE", "UTF32BE":
		return UTF32BE, true
	default:
		return UTF8, false
	}
}

// CodeUnitSize returns the width of one code unit in bytes. Line terminators
// occupy exactly one code unit in the encoded stream.
func (e Encoding) CodeUnitSize() int {
	switch e {
	case UTF16LE, UTF16BE:
		return 2
	case UTF32LE, UTF32BE:
		return 4
	default:
		return 1
	}
}

// textEncoding returns the x/text encoding for e. UTF8 is handled by
// decodeUTF8 instead so that malformed sequences are reported as hard errors
// rather than replaced.
func (e Encoding) textEncoding() encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	case Windows1250:
		return charmap.Windows1250
	case Windows1251:
		return charmap.Windows1251
	case Windows1252:
		return charmap.Windows1252
	default:
		return unicode.UTF8
	}
}

// Decode converts b from the source encoding into a Go string. off is the
// byte offset of b within the source file and is used for error reporting
// only.
func (e Encoding) Decode(b []byte, off int64) (string, error) {
	if e == UTF8 {
		return decodeUTF8(b, off)
	}

	s, _, err := transform.Bytes(e.textEncoding().NewDecoder(), b)
	if err != nil {
		return "", &EncodingError{Encoding: e, Offset: off}
	}
	return string(s), nil
}

// decodeUTF8 decodes UTF-8 permissively on the ASCII range while validating
// multi-byte sequences. A leading continuation byte is a hard error.
func decodeUTF8(b []byte, off int64) (string, error) {
	var sb strings.Builder
	sb.Grow(len(b))

	for i := 0; i < len(b); {
		c := b[i]
		if c < 0x80 {
			sb.WriteByte(c)
			i++
			continue
		}

		var size int
		var r rune
		switch {
		case c&0xE0 == 0xC0:
			size, r = 2, rune(c&0x1F)
		case c&0xF0 == 0xE0:
			size, r = 3, rune(c&0x0F)
		case c&0xF8 == 0xF0:
			size, r = 4, rune(c&0x07)
		default:
			// Continuation byte in the lead position.
			return "", &EncodingError{Encoding: UTF8, Offset: off + int64(i)}
		}

		if i+size > len(b) {
			return "", &EncodingError{Encoding: UTF8, Offset: off + int64(i)}
		}
		for j := 1; j < size; j++ {
			cc := b[i+j]
			if cc&0xC0 != 0x80 {
				return "", &EncodingError{Encoding: UTF8, Offset: off + int64(i+j)}
			}
			r = r<<6 | rune(cc&0x3F)
		}
		sb.WriteRune(r)
		i += size
	}

	return sb.String(), nil
}

// Byte-order marks, longest first so that UTF-32LE is not mistaken for
// UTF-16LE.
var boms = []struct {
	bom []byte
	enc Encoding
}{
	{[]byte{0xFF, 0xFE, 0x00, 0x00}, UTF32LE},
	{[]byte{0x00, 0x00, 0xFE, 0xFF}, UTF32BE},
	{[]byte{0xEF, 0xBB, 0xBF}, UTF8},
	{[]byte{0xFF, 0xFE}, UTF16LE},
	{[]byte{0xFE, 0xFF}, UTF16BE},
}

// DetectEncoding determines the encoding of a DSL source. An explicit
// #ENCODING directive near the head of the file wins over a byte-order
// mark; without either the historical UTF-16LE default applies. The
// returned bomLen is the number of bytes the byte-order mark occupies.
func DetectEncoding(data []byte) (enc Encoding, bomLen int) {
	enc = UTF16LE

	for _, b := range boms {
		if bytes.HasPrefix(data, b.bom) {
			enc = b.enc
			bomLen = len(b.bom)
			break
		}
	}

	// Probe the head for an #ENCODING directive. The BOM encoding is tried
	// first; without a BOM the directive may be written in any supported
	// encoding, so the plausible candidates are probed in turn.
	candidates := []Encoding{enc}
	if bomLen == 0 {
		candidates = append(candidates, UTF8, UTF16BE, Windows1251, Windows1252)
	}
	for _, c := range candidates {
		if declared, ok := probeEncodingDirective(data[bomLen:], c); ok {
			return declared, bomLen
		}
	}

	return enc, bomLen
}

// probeEncodingDirective decodes up to the first few lines of data with enc
// and looks for an #ENCODING "<name>" directive.
func probeEncodingDirective(data []byte, enc Encoding) (Encoding, bool) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	// Truncate to whole code units.
	unit := enc.CodeUnitSize()
	head = head[:len(head)/unit*unit]

	decoded, err := enc.Decode(head, 0)
	if err != nil {
		// Re-try on successively shorter prefixes in case the truncation
		// split a multi-byte sequence.
		for cut := 1; cut <= 3 && len(head) > cut*unit; cut++ {
			if decoded, err = enc.Decode(head[:len(head)-cut*unit], 0); err == nil {
				break
			}
		}
		if err != nil {
			return enc, false
		}
	}

	for _, line := range strings.FieldsFunc(decoded, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			// Directives only appear in the header block.
			break
		}
		name, value := parseDirective(line)
		if name == "ENCODING" {
			if declared, ok := EncodingByName(value); ok {
				return declared, true
			}
		}
	}
	return enc, false
}
