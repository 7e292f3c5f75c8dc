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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/initial-ddl/dsldict/internal/testutil"
)

func openFixture(t *testing.T, dir string, opts *OpenOptions) *Dictionary {
	t.Helper()

	dicts, errs := OpenAll(dir, opts)
	for _, err := range errs {
		t.Errorf("OpenAll: %v", err)
	}
	if len(dicts) != 1 {
		t.Fatalf("OpenAll: got %d dictionaries, want 1", len(dicts))
	}
	t.Cleanup(func() { dicts[0].Close() })
	return dicts[0]
}

// TestDictionary_lookup tests indexing and rendering of a minimal
// dictionary in the historical default encoding.
func TestDictionary_lookup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\n#INDEX_LANGUAGE \"English\"\ncat\n\tThe [i]cat[/i].\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	if got, want := d.Name(), "Test"; got != want {
		t.Errorf("Name: got %q, want %q", got, want)
	}
	if got, want := d.ArticleCount(), uint32(1); got != want {
		t.Errorf("ArticleCount: got %d, want %d", got, want)
	}
	if got, want := d.WordCount(), uint32(1); got != want {
		t.Errorf("WordCount: got %d, want %d", got, want)
	}
	if got, want := d.LangFrom(), code2ToInt("en"); got != want {
		t.Errorf("LangFrom: got %d, want %d", got, want)
	}

	links, err := d.FindArticles(ctx, "cat", false)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("FindArticles: got %d links, want 1", len(links))
	}

	articles, err := d.Articles(ctx, "cat", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if got, want := articles[0].Headword, "cat"; got != want {
		t.Errorf("Headword: got %q, want %q", got, want)
	}
	if !strings.Contains(articles[0].HTML, `<i class="dsl_i">cat</i>`) {
		t.Errorf("HTML missing italic span: %q", articles[0].HTML)
	}
}

// TestDictionary_optionalParts tests optional-part expansion and tilde
// substitution.
func TestDictionary_optionalParts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "dogs.dsl",
		"#NAME \"Dogs\"\ndog(s)\n\t~ bark.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	// Both expansions index the same article.
	for _, q := range []string{"dog", "dogs"} {
		links, err := d.FindArticles(ctx, q, false)
		if err != nil {
			t.Fatalf("FindArticles(%q): %v", q, err)
		}
		if len(links) != 1 {
			t.Fatalf("FindArticles(%q): got %d links, want 1", q, len(links))
		}
	}

	articles, err := d.Articles(ctx, "dog", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}

	// The tilde value is the first optional expansion, "dogs".
	if !strings.Contains(articles[0].HTML, "dogs bark.") {
		t.Errorf("HTML missing expanded tilde: %q", articles[0].HTML)
	}
	if got, want := articles[0].Headword, "dog(s)"; got != want {
		t.Errorf("Headword: got %q, want %q", got, want)
	}
}

// TestDictionary_embeddedCard tests that embedded cards get their own
// index entries and load on their own.
func TestDictionary_embeddedCard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "birds.dsl",
		"#NAME \"Birds\"\nbird\n\tsomething\n\t@robin\n\t\tred-breasted\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	// Parent article plus one embedded card.
	if got, want := d.ArticleCount(), uint32(2); got != want {
		t.Errorf("ArticleCount: got %d, want %d", got, want)
	}

	links, err := d.FindArticles(ctx, "robin", false)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("FindArticles: got %d links, want 1", len(links))
	}

	articles, err := d.Articles(ctx, "robin", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, "red-breasted") {
		t.Errorf("HTML missing card body: %q", articles[0].HTML)
	}
	if strings.Contains(articles[0].HTML, "something") {
		t.Errorf("HTML contains parent body: %q", articles[0].HTML)
	}
}

// TestDictionary_encodingDirective tests a UTF-8 source declared via
// #ENCODING with no byte-order mark.
func TestDictionary_encodingDirective(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "#NAME \"Utf\"\n#ENCODING \"UTF-8\"\nnaïve\n\tUnsophisticated.\n"
	if err := os.WriteFile(filepath.Join(dir, "utf.dsl"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	if got := d.Encoding().String(); got != "UTF-8" {
		t.Errorf("Encoding: got %q, want %q", got, "UTF-8")
	}

	articles, err := d.Articles(ctx, "naïve", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, "Unsophisticated.") {
		t.Errorf("HTML missing body: %q", articles[0].HTML)
	}

	// Diacritic-insensitive lookup finds the same article.
	links, err := d.FindArticles(ctx, "naive", true)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("FindArticles: got %d links, want 1", len(links))
	}
}

// TestDictionary_dictzip tests a dictzip-compressed source.
func TestDictionary_dictzip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSLDz(t, dir, "test.dsl.dz",
		"#NAME \"Zipped\"\ncat\n\tThe cat.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	articles, err := d.Articles(ctx, "cat", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, "The cat.") {
		t.Errorf("HTML missing body: %q", articles[0].HTML)
	}
}

// TestDictionary_missingSound tests that a missing sound file emits a
// global search URL instead of a dictionary-specific one.
func TestDictionary_missingSound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "sound.dsl",
		"#NAME \"Sound\"\nbark\n\t[s]bark.wav[/s]\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)

	articles, err := d.Articles(context.Background(), "bark", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, "gdau://search/bark.wav") {
		t.Errorf("HTML missing search sound URL: %q", articles[0].HTML)
	}
}

// TestDictionary_resourceArchive tests resources served from the
// companion archive and sound URLs referencing the dictionary.
func TestDictionary_resourceArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "res.dsl",
		"#NAME \"Res\"\nbark\n\t[s]bark.wav[/s]\n",
		testutil.UTF16LE)
	testutil.WriteZip(t, dir, "res.dsl.files.zip", map[string][]byte{
		"bark.wav": []byte("RIFFdata"),
	})

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	articles, err := d.Articles(ctx, "bark", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, "gdau://"+d.ID()+"/bark.wav") {
		t.Errorf("HTML missing dictionary sound URL: %q", articles[0].HTML)
	}

	b, err := d.Resource(ctx, "bark.wav")
	if err != nil {
		t.Fatalf("Resource: %v", err)
	}
	if string(b) != "RIFFdata" {
		t.Errorf("Resource: got %q, want %q", b, "RIFFdata")
	}

	if _, err := d.Resource(ctx, "missing.wav"); !errors.Is(err, ErrResourceMissing) {
		t.Errorf("Resource(missing): got %v, want ErrResourceMissing", err)
	}
}

// TestDictionary_longHeadword tests that over-long headwords are dropped
// while shorter alternatives still index the article.
func TestDictionary_longHeadword(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 200)

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "long.dsl",
		"#NAME \"Long\"\ncat\n"+long[:90]+"\n\tThe cat.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, &OpenOptions{MaxHeadwordSize: 64})
	ctx := context.Background()

	links, err := d.FindArticles(ctx, long[:90], false)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("FindArticles(long): got %d links, want 0", len(links))
	}

	links, err = d.FindArticles(ctx, "cat", false)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("FindArticles(cat): got %d links, want 1", len(links))
	}
}

// TestDictionary_abbreviations tests the abbreviation companion and [p]
// tooltips.
func TestDictionary_abbreviations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "abbr.dsl",
		"#NAME \"Abbr\"\ncat\n\t[p]n[/p] feline\n",
		testutil.UTF16LE)
	testutil.WriteDSL(t, dir, "abbr_abrv.dsl",
		"#NAME \"Abbrev\"\nn\n\tnoun\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)

	articles, err := d.Articles(context.Background(), "cat", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Articles: got %d, want 1", len(articles))
	}
	if !strings.Contains(articles[0].HTML, `title="noun"`) {
		t.Errorf("HTML missing abbreviation tooltip: %q", articles[0].HTML)
	}
}

// TestOpenAll_skipsAbbrev tests that "Abbrev"-named sources are not
// top-level dictionaries.
func TestOpenAll_skipsAbbrev(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "standalone.dsl",
		"#NAME \"Abbrev\"\nn\n\tnoun\n",
		testutil.UTF16LE)

	dicts, errs := OpenAll(dir, nil)
	for _, err := range errs {
		t.Errorf("OpenAll: %v", err)
	}
	if len(dicts) != 0 {
		t.Errorf("OpenAll: got %d dictionaries, want 0", len(dicts))
	}
}

// TestDictionary_cancelled tests that a cancelled request finishes with
// no data and no error.
func TestDictionary_cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\ncat\n\tThe cat.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	articles, err := d.Articles(ctx, "cat", false)
	if err != nil {
		t.Fatalf("Articles: %v", err)
	}
	if articles != nil {
		t.Errorf("Articles: got %v, want nil", articles)
	}
}

// TestBuildIndex_deterministic tests that rebuilding from identical
// source yields a byte-identical index file.
func TestBuildIndex_deterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dslPath := testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\ncat\n\tThe cat.\ndog(s)\n\t~ bark.\n",
		testutil.UTF16LE)
	abrvPath := testutil.WriteDSL(t, dir, "test_abrv.dsl",
		"#NAME \"Abbrev\"\nn\n\tnoun\nadj\n\tadjective\n",
		testutil.UTF16LE)

	idx1 := filepath.Join(dir, "a.idx")
	idx2 := filepath.Join(dir, "b.idx")

	if err := BuildIndex(dslPath, abrvPath, "", idx1, nil); err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := BuildIndex(dslPath, abrvPath, "", idx2, nil); err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	b1, err := os.ReadFile(idx1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := os.ReadFile(idx2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("rebuild produced a different index file")
	}
}

// TestDictionary_articleText tests the plain text feed consumed by the
// full-text search builder.
func TestDictionary_articleText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\ncat\n\tThe [i]cat[/i]. [s]bark.wav[/s]\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	addrs, err := d.ArticleAddresses(ctx)
	if err != nil {
		t.Fatalf("ArticleAddresses: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("ArticleAddresses: got %d, want 1", len(addrs))
	}

	headword, text, err := d.ArticleText(ctx, addrs[0])
	if err != nil {
		t.Fatalf("ArticleText: %v", err)
	}
	if headword != "cat" {
		t.Errorf("headword: got %q, want %q", headword, "cat")
	}
	if !strings.Contains(text, "The cat.") {
		t.Errorf("text missing body: %q", text)
	}
	if strings.Contains(text, "bark.wav") {
		t.Errorf("text contains stripped media zone: %q", text)
	}
	if strings.Contains(text, "[i]") {
		t.Errorf("text contains markup: %q", text)
	}
}

// TestDictionary_multipleHeadwords tests alt-headword lines.
func TestDictionary_multipleHeadwords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\ncolor\ncolour\n\tA hue.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)
	ctx := context.Background()

	if got, want := d.WordCount(), uint32(2); got != want {
		t.Errorf("WordCount: got %d, want %d", got, want)
	}

	for _, q := range []string{"color", "colour"} {
		articles, err := d.Articles(ctx, q, false)
		if err != nil {
			t.Fatalf("Articles(%q): %v", q, err)
		}
		if len(articles) != 1 {
			t.Fatalf("Articles(%q): got %d, want 1", q, len(articles))
		}
		if got := articles[0].Headword; got != q {
			t.Errorf("Headword: got %q, want %q", got, q)
		}
		if !strings.Contains(articles[0].HTML, "A hue.") {
			t.Errorf("HTML missing body: %q", articles[0].HTML)
		}
	}
}

// TestDictionary_nbspHeadword tests that a non-breaking space does not
// count as indentation.
func TestDictionary_nbspHeadword(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteDSL(t, dir, "test.dsl",
		"#NAME \"Test\"\ncat\n\tThe cat.\n\u00a0odd\n\tAn odd entry.\n",
		testutil.UTF16LE)

	d := openFixture(t, dir, nil)

	// The nbsp line begins a new headword, not body text.
	if got, want := d.ArticleCount(), uint32(2); got != want {
		t.Errorf("ArticleCount: got %d, want %d", got, want)
	}
}
