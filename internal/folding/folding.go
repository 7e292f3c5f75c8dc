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

// Package folding implements the text folding used for index keys. Keys are
// case folded and whitespace folded before insertion and lookup; diacritic
// stripping is a separate primitive applied only for diacritic-insensitive
// matching.
package folding

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Version identifies the folding algorithm. It participates in the index
// format version; changing the folding behavior must bump it so that stale
// indexes are rebuilt.
const Version = 1

// diacriticsRemover decomposes text and drops combining marks.
var diacriticsRemover = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold returns the index key form of a word: case folded with leading and
// trailing whitespace removed and internal whitespace spans collapsed.
// Diacritics are preserved.
func Fold(s string) string {
	folded, _, err := transform.String(transform.Chain(cases.Fold(), &WhitespaceFolder{}), s)
	if err != nil {
		// The transformers above never return errors for valid UTF-8;
		// RuneError substitution makes them total on invalid input too.
		return strings.TrimSpace(strings.ToLower(s))
	}
	return folded
}

// CaseFold performs case folding only.
func CaseFold(s string) string {
	folded, _, err := transform.String(cases.Fold(), s)
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// RemoveDiacritics strips combining marks from s after canonical
// decomposition. The result is re-composed.
func RemoveDiacritics(s string) string {
	stripped, _, err := transform.String(diacriticsRemover, s)
	if err != nil {
		return s
	}
	return stripped
}

// TrimWs removes leading and trailing Unicode whitespace.
func TrimWs(s string) string {
	return strings.TrimFunc(s, unicode.IsSpace)
}

// IsWsOnly reports whether s contains nothing but whitespace.
func IsWsOnly(s string) bool {
	return TrimWs(s) == ""
}
