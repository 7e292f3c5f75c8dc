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

package folding

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestFold tests Fold.
func TestFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "lowercase unchanged",
			input:    "cat",
			expected: "cat",
		},
		{
			name:     "case folded",
			input:    "CaT",
			expected: "cat",
		},
		{
			name:     "leading and trailing whitespace",
			input:    "  cat\t",
			expected: "cat",
		},
		{
			name:     "internal whitespace collapsed",
			input:    "give \t up",
			expected: "give up",
		},
		{
			name:     "cyrillic",
			input:    "Собака",
			expected: "собака",
		},
		{
			name:     "diacritics preserved",
			input:    "Tête",
			expected: "tête",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, Fold(test.input)); diff != "" {
				t.Fatalf("Fold (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestRemoveDiacritics tests RemoveDiacritics.
func TestRemoveDiacritics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no diacritics",
			input:    "cat",
			expected: "cat",
		},
		{
			name:     "precomposed",
			input:    "tête-à-tête",
			expected: "tete-a-tete",
		},
		{
			name:     "combining mark",
			input:    "é",
			expected: "e",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(test.expected, RemoveDiacritics(test.input)); diff != "" {
				t.Fatalf("RemoveDiacritics (-want, +got):\n%s", diff)
			}
		})
	}
}

// TestFold_idempotent tests that folding an already folded word is a no-op.
func TestFold_idempotent(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"cat", "give up", "собака", "tête"} {
		if got := Fold(Fold(s)); got != Fold(s) {
			t.Errorf("Fold not idempotent for %q: %q != %q", s, got, Fold(s))
		}
	}
}
