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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestExpandOptionalParts tests ExpandOptionalParts.
func TestExpandOptionalParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "no optional parts",
			input:    "cat",
			expected: []string{"cat"},
		},
		{
			name:     "single group",
			input:    "dog(s)",
			expected: []string{"dogs", "dog"},
		},
		{
			name:     "two top-level groups",
			input:    "a(b)c(d)",
			expected: []string{"abcd", "abc", "acd", "ac"},
		},
		{
			name:     "nested groups",
			input:    "a(b(c))",
			expected: []string{"abc", "ab", "a"},
		},
		{
			name:     "escaped parenthesis is literal",
			input:    `a\(b\)`,
			expected: []string{`a\(b\)`},
		},
		{
			name:     "unbalanced group is literal",
			input:    "a(b",
			expected: []string{"a(b"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, ExpandOptionalParts(test.input)); diff != "" {
				t.Fatalf("ExpandOptionalParts (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestExpandOptionalParts_count tests that k top-level groups produce 2^k
// alternatives with the all-retained variant first and the all-removed
// variant last.
func TestExpandOptionalParts_count(t *testing.T) {
	t.Parallel()

	alts := ExpandOptionalParts("w(a)x(b)y(c)z")
	if got, want := len(alts), 8; got != want {
		t.Fatalf("len(alts): got %d, want %d", got, want)
	}
	if got, want := alts[0], "waxbycz"; got != want {
		t.Errorf("first alternative: got %q, want %q", got, want)
	}
	if got, want := alts[len(alts)-1], "wxyz"; got != want {
		t.Errorf("last alternative: got %q, want %q", got, want)
	}
}

// TestProcessUnsortedParts tests ProcessUnsortedParts.
func TestProcessUnsortedParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		keep     bool
		expected string
	}{
		{
			name:     "keep removes braces only",
			input:    "{to} work",
			keep:     true,
			expected: "to work",
		},
		{
			name:     "strip removes section",
			input:    "{to} work",
			keep:     false,
			expected: " work",
		},
		{
			name:     "no braces",
			input:    "work",
			keep:     false,
			expected: "work",
		},
		{
			name:     "nested flattened",
			input:    "a{b{c}d}e",
			keep:     false,
			expected: "ae",
		},
		{
			name:     "nested kept",
			input:    "a{b{c}d}e",
			keep:     true,
			expected: "abcde",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got := ProcessUnsortedParts(test.input, test.keep)
			if diff := cmp.Diff(test.expected, got); diff != "" {
				t.Fatalf("ProcessUnsortedParts (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestExpandTildes tests ExpandTildes.
func TestExpandTildes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		tildeValue string
		expected   string
	}{
		{
			name:       "simple",
			input:      "foo~bar",
			tildeValue: "X",
			expected:   "fooXbar",
		},
		{
			name:       "escaped tilde preserved",
			input:      `foo\~bar`,
			tildeValue: "X",
			expected:   `foo\~bar`,
		},
		{
			name:       "multiple tildes",
			input:      "~ and ~",
			tildeValue: "dog",
			expected:   "dog and dog",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got := ExpandTildes(test.input, test.tildeValue)
			if diff := cmp.Diff(test.expected, got); diff != "" {
				t.Fatalf("ExpandTildes (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestUnescape tests Unescape.
func TestUnescape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain ascii unchanged",
			input:    "The cat.",
			expected: "The cat.",
		},
		{
			name:     "escaped bracket",
			input:    `\[b\]`,
			expected: "[b]",
		},
		{
			name:     "escaped backslash",
			input:    `a\\b`,
			expected: `a\b`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, Unescape(test.input)); diff != "" {
				t.Fatalf("Unescape (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestNormalizeHeadword tests NormalizeHeadword.
func TestNormalizeHeadword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain",
			input:    "cat",
			expected: "cat",
		},
		{
			name:     "enclosing whitespace",
			input:    "  cat\t",
			expected: "cat",
		},
		{
			name:     "internal runs collapsed",
			input:    "give \t up",
			expected: "give up",
		},
		{
			name:     "variant marker stripped",
			input:    "bank¹",
			expected: "bank",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, NormalizeHeadword(test.input)); diff != "" {
				t.Fatalf("NormalizeHeadword (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestNormalizeHeadword_idempotent tests idempotence of headword
// normalization.
func TestNormalizeHeadword_idempotent(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"cat", " a  b ", "bank¹", "\tgive  up\t"} {
		once := NormalizeHeadword(s)
		if got := NormalizeHeadword(once); got != once {
			t.Errorf("NormalizeHeadword not idempotent for %q: %q != %q", s, got, once)
		}
	}
}

// TestIsAtSignFirst tests IsAtSignFirst.
func TestIsAtSignFirst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "at sign first",
			input:    "@robin",
			expected: true,
		},
		{
			name:     "at sign after whitespace",
			input:    "  \t@robin",
			expected: true,
		},
		{
			name:     "escaped at sign",
			input:    `\@robin`,
			expected: false,
		},
		{
			name:     "mid-line at sign",
			input:    "ro@bin",
			expected: false,
		},
		{
			name:     "empty line",
			input:    "",
			expected: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if got := IsAtSignFirst(test.input); got != test.expected {
				t.Fatalf("IsAtSignFirst(%q): got %v, want %v", test.input, got, test.expected)
			}
		})
	}
}

// TestStripComments tests StripComments.
func TestStripComments(t *testing.T) {
	t.Parallel()

	t.Run("single line", func(t *testing.T) {
		t.Parallel()

		carry := false
		got := StripComments("a{{comment}}b", &carry)
		if got != "ab" {
			t.Fatalf("StripComments: got %q, want %q", got, "ab")
		}
		if carry {
			t.Error("carry flag should be false")
		}
	})

	t.Run("multi line", func(t *testing.T) {
		t.Parallel()

		carry := false
		first := StripComments("a{{start", &carry)
		if first != "a" {
			t.Fatalf("StripComments: got %q, want %q", first, "a")
		}
		if !carry {
			t.Fatal("carry flag should be true")
		}

		second := StripComments("end}}b", &carry)
		if second != "b" {
			t.Fatalf("StripComments: got %q, want %q", second, "b")
		}
		if carry {
			t.Error("carry flag should be false")
		}
	})
}
