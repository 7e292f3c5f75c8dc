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
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func testRenderer(t *testing.T) *renderer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	d := &Dictionary{
		id:  "0123456789abcdef",
		log: log,
		abrv: map[string]string{
			"n": "noun",
		},
	}
	return d.newRenderer("test", 1)
}

// TestRenderer_tags tests the tag to HTML mapping.
func TestRenderer_tags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold",
			input:    "[b]x[/b]",
			expected: `<b class="dsl_b">x</b>`,
		},
		{
			name:     "italic",
			input:    "[i]x[/i]",
			expected: `<i class="dsl_i">x</i>`,
		},
		{
			name:     "underline",
			input:    "[u]x[/u]",
			expected: `<span class="dsl_u">x</span>`,
		},
		{
			name:     "color default",
			input:    "[c]x[/c]",
			expected: `<span class="c_default_color">x</span>`,
		},
		{
			name:     "color attribute",
			input:    "[c red]x[/c]",
			expected: `<font color="red">x</font>`,
		},
		{
			name:     "margin",
			input:    "[m1]x[/m1]",
			expected: `<div class="dsl_m1">x</div>`,
		},
		{
			name:     "translation",
			input:    "[trn]x[/trn]",
			expected: `<span class="dsl_trn">x</span>`,
		},
		{
			name:     "example",
			input:    "[ex]x[/ex]",
			expected: `<span class="dsl_ex">x</span>`,
		},
		{
			name:     "comment",
			input:    "[com]x[/com]",
			expected: `<span class="dsl_com">x</span>`,
		},
		{
			name:     "transcription",
			input:    "[!trs]x[/!trs]",
			expected: `<span class="dsl_trs">x</span>`,
		},
		{
			name:     "subscript",
			input:    "[sub]2[/sub]",
			expected: `<sub>2</sub>`,
		},
		{
			name:     "superscript",
			input:    "[sup]2[/sup]",
			expected: `<sup>2</sup>`,
		},
		{
			name:     "temperature",
			input:    "[t]x[/t]",
			expected: `<span class="dsl_t">x</span>`,
		},
		{
			name:     "line break",
			input:    "[br]",
			expected: `<br />`,
		},
		{
			name:     "abbreviation tooltip",
			input:    "[p]n[/p]",
			expected: `<span class="dsl_p" title="noun">n</span>`,
		},
		{
			name:     "unknown abbreviation",
			input:    "[p]xyz[/p]",
			expected: `<span class="dsl_p">xyz</span>`,
		},
		{
			name:     "optional zone",
			input:    "[*]rare[/*]",
			expected: `<span class="dsl_opt" id="O0123456_1_opt_0">rare</span>`,
		},
		{
			name:     "cross reference",
			input:    "[ref]robin[/ref]",
			expected: `<a class="dsl_ref" href="gdlookup://localhost/robin">robin</a>`,
		},
		{
			name:     "cross reference shorthand",
			input:    "<<robin>>",
			expected: `<a class="dsl_ref" href="gdlookup://localhost/robin">robin</a>`,
		},
		{
			name:     "url",
			input:    "[url]example.com[/url]",
			expected: `<a class="dsl_url" href="http://example.com">example.com</a>`,
		},
		{
			name:     "unknown tag",
			input:    "[zz]x[/zz]",
			expected: `<span class="dsl_unknown">[zz]x</span>`,
		},
		{
			name:     "text newline becomes paragraph",
			input:    "a\nb",
			expected: `a<p></p>b`,
		},
		{
			name:     "text is escaped",
			input:    "a < b",
			expected: `a &lt; b`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got := testRenderer(t).toHTML(test.input)
			if !strings.Contains(got, test.expected) {
				t.Fatalf("toHTML(%q):\ngot:  %q\nwant substring: %q", test.input, got, test.expected)
			}
		})
	}
}

// TestRenderer_stress tests the two-variant stress markup.
func TestRenderer_stress(t *testing.T) {
	t.Parallel()

	got := testRenderer(t).toHTML("[']a[/']")

	if !strings.Contains(got, `<span class="dsl_stress_without_accent">a</span>`) {
		t.Errorf("missing unaccented variant: %q", got)
	}
	if !strings.Contains(got, `<span class="dsl_stress_with_accent">a`+"́"+`</span>`) {
		t.Errorf("missing accented variant: %q", got)
	}
}

// TestRenderer_refAttrs tests that ref attributes become query
// parameters.
func TestRenderer_refAttrs(t *testing.T) {
	t.Parallel()

	got := testRenderer(t).toHTML(`[ref dict="Other"]robin[/ref]`)

	if !strings.Contains(got, "gdlookup://localhost/robin?dict=Other") {
		t.Errorf("missing query parameter: %q", got)
	}
}

// TestRenderer_optionalZoneNumbering tests that optional zone ids count
// up within an article.
func TestRenderer_optionalZoneNumbering(t *testing.T) {
	t.Parallel()

	r := testRenderer(t)
	got := r.toHTML("[*]a[/*][*]b[/*]")

	if !strings.Contains(got, "_opt_0") || !strings.Contains(got, "_opt_1") {
		t.Errorf("optional zones not numbered: %q", got)
	}
	if r.optionalPartNom != 2 {
		t.Errorf("optionalPartNom: got %d, want 2", r.optionalPartNom)
	}
}
