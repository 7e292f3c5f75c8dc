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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/initial-ddl/dsldict/dsl"
	"github.com/initial-ddl/dsldict/idx"
	"github.com/initial-ddl/dsldict/internal/folding"
	"github.com/initial-ddl/dsldict/zips"
)

// ErrResourceMissing indicates that a resource could not be found in any
// of the resource directories or the resource archive.
var ErrResourceMissing = errors.New("resource missing")

// Dictionary is an opened DSL dictionary. It serves concurrent lookup and
// rendering requests against its index file.
//
// The index file reader, the decompressor handle and the resource archive
// are each guarded by their own mutex. Request paths hold one of them at a
// time, except resource archive lookups: those hold the archive mutex while
// the archive's B-tree, which lives in the index file, takes the index
// mutex.
type Dictionary struct {
	id        string
	indexPath string
	dslPath   string
	zipPath   string

	opts *OpenOptions
	log  *logrus.Logger

	header          idx.Header
	name            string
	soundDictionary string

	// resourceDir1/2 are the two .files resource directory conventions.
	resourceDir1 string
	resourceDir2 string

	idxFile *os.File

	idxMu  sync.Mutex
	chunks *idx.ChunkReader
	btree  *idx.BtreeIndex

	dzMu sync.Mutex
	dz   sourceReader

	zipMu       sync.Mutex
	resourceZip *zips.Archive

	abrv map[string]string

	initMu   sync.Mutex
	initDone atomic.Bool
	initErr  error

	// articleNom numbers rendered articles for optional-zone element ids.
	articleNom atomic.Uint32
}

// newDictionary opens the index file and reads the eager part of the
// dictionary state (header and names). Everything else is deferred to the
// first request.
func newDictionary(id, indexPath, dslPath, zipPath string, opts *OpenOptions) (*Dictionary, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("opening index %q: %w", indexPath, err)
	}

	h, err := idx.ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	name, pos, err := idx.ReadString(f, idx.HeaderSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary name: %w", err)
	}

	var soundDict string
	if h.HasSoundDictionaryName != 0 {
		soundDict, _, err = idx.ReadString(f, pos)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading sound dictionary name: %w", err)
		}
	}

	d := &Dictionary{
		id:              id,
		indexPath:       indexPath,
		dslPath:         dslPath,
		zipPath:         zipPath,
		opts:            opts,
		log:             opts.logger(),
		header:          *h,
		name:            name,
		soundDictionary: soundDict,
		idxFile:         f,
		resourceDir1:    dslPath + ".files",
	}

	// The second convention drops the .dz extension.
	if strings.EqualFold(filepath.Ext(dslPath), ".dz") {
		d.resourceDir2 = dslPath[:len(dslPath)-len(".dz")] + ".files"
	} else {
		d.resourceDir2 = d.resourceDir1
	}

	return d, nil
}

// ensureInitDone performs the deferred initialization: the chunk reader,
// the decompressor handle, the abbreviation table and the B-trees are all
// opened on first use. An initialization error is captured once; every
// subsequent operation returns it.
func (d *Dictionary) ensureInitDone() error {
	if d.initDone.Load() {
		return d.initErr
	}

	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.initDone.Load() {
		return d.initErr
	}

	d.initErr = d.doInit()
	d.initDone.Store(true)
	return d.initErr
}

func (d *Dictionary) doInit() error {
	fi, err := d.idxFile.Stat()
	if err != nil {
		return fmt.Errorf("stat index: %w", err)
	}
	fileEnd := uint32(fi.Size())

	d.chunks = idx.NewChunkReader(d.idxFile, d.header.ChunksOffset, fileEnd)

	d.dz, err = openSource(d.dslPath)
	if err != nil {
		return err
	}

	if d.header.HasAbrv != 0 {
		if err := d.loadAbbreviations(); err != nil {
			return err
		}
	}

	d.btree = idx.OpenIndex(idx.IndexInfo{
		BtreeMaxElements: d.header.IndexBtreeMaxElements,
		RootOffset:       d.header.IndexRootOffset,
	}, d.idxFile, &d.idxMu)

	if d.header.HasZipFile != 0 &&
		(d.header.ZipIndexBtreeMaxElements != 0 || d.header.ZipIndexRootOffset != 0) &&
		strings.EqualFold(filepath.Ext(d.zipPath), ".zip") {
		zipBtree := idx.OpenIndex(idx.IndexInfo{
			BtreeMaxElements: d.header.ZipIndexBtreeMaxElements,
			RootOffset:       d.header.ZipIndexRootOffset,
		}, d.idxFile, &d.idxMu)
		d.resourceZip = zips.New(d.zipPath, zipBtree)
	}

	return nil
}

// loadAbbreviations reads the abbreviation block from the chunk store.
func (d *Dictionary) loadAbbreviations() error {
	block, err := d.chunks.GetBlock(d.header.AbrvAddress)
	if err != nil {
		return fmt.Errorf("reading abbreviation block: %w", err)
	}

	d.abrv = map[string]string{}

	pos := 0
	next := func() (string, error) {
		if pos+4 > len(block) {
			return "", fmt.Errorf("%w: truncated abbreviation block", idx.ErrIndexOldOrBad)
		}
		n := int(binary.LittleEndian.Uint32(block[pos:]))
		pos += 4
		if pos+n > len(block) {
			return "", fmt.Errorf("%w: truncated abbreviation block", idx.ErrIndexOldOrBad)
		}
		s := string(block[pos : pos+n])
		pos += n
		return s, nil
	}

	if pos+4 > len(block) {
		return fmt.Errorf("%w: truncated abbreviation block", idx.ErrIndexOldOrBad)
	}
	total := int(binary.LittleEndian.Uint32(block[pos:]))
	pos += 4

	for i := 0; i < total; i++ {
		key, err := next()
		if err != nil {
			return err
		}
		value, err := next()
		if err != nil {
			return err
		}
		d.abrv[key] = value
	}
	return nil
}

// Name returns the dictionary name.
func (d *Dictionary) Name() string { return d.name }

// ID returns the dictionary id used in emitted URLs.
func (d *Dictionary) ID() string { return d.id }

// ArticleCount returns the number of articles, embedded cards included.
func (d *Dictionary) ArticleCount() uint32 { return d.header.ArticleCount }

// WordCount returns the number of indexed headwords.
func (d *Dictionary) WordCount() uint32 { return d.header.WordCount }

// LangFrom returns the source language code.
func (d *Dictionary) LangFrom() uint32 { return d.header.LangFrom }

// LangTo returns the target language code.
func (d *Dictionary) LangTo() uint32 { return d.header.LangTo }

// Encoding returns the encoding of the source file.
func (d *Dictionary) Encoding() dsl.Encoding { return dsl.Encoding(d.header.DslEncoding) }

// MainFilename returns the path of the dictionary source file.
func (d *Dictionary) MainFilename() string { return d.dslPath }

// Close releases the dictionary's file handles.
func (d *Dictionary) Close() error {
	var errs []error
	if d.idxFile != nil {
		errs = append(errs, d.idxFile.Close())
	}
	if d.dz != nil {
		errs = append(errs, d.dz.Close())
	}
	if d.resourceZip != nil {
		errs = append(errs, d.resourceZip.Close())
	}
	return errors.Join(errs...)
}

// cancelled samples the request's cancellation state. It is checked before
// and after each I/O suspension point; a cancelled request finishes with
// no data and no error.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// FindArticles returns the article links stored under the given headword.
func (d *Dictionary) FindArticles(ctx context.Context, word string, ignoreDiacritics bool) ([]idx.WordArticleLink, error) {
	if err := d.ensureInitDone(); err != nil {
		return nil, err
	}
	if cancelled(ctx) {
		return nil, nil
	}
	return d.btree.FindArticles(word, ignoreDiacritics)
}

// SearchResults returns up to limit indexed words beginning with the given
// prefix, for search-as-you-type interfaces. A limit of zero or less means
// no limit.
func (d *Dictionary) SearchResults(ctx context.Context, prefix string, limit int) ([]idx.WordArticleLink, error) {
	if err := d.ensureInitDone(); err != nil {
		return nil, err
	}
	if cancelled(ctx) {
		return nil, nil
	}
	return d.btree.FindCandidates(prefix, limit)
}

// ArticleAddresses returns the distinct chunk block ids of all articles in
// index order. The full-text-search builder walks these and feeds
// ArticleText into its own index.
func (d *Dictionary) ArticleAddresses(ctx context.Context) ([]uint32, error) {
	if err := d.ensureInitDone(); err != nil {
		return nil, err
	}

	seen := map[uint32]bool{}
	var out []uint32
	err := d.btree.WalkLinks(func(l idx.WordArticleLink) bool {
		if cancelled(ctx) {
			return false
		}
		if !seen[l.ArticleOffset] {
			seen[l.ArticleOffset] = true
			out = append(out, l.ArticleOffset)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if cancelled(ctx) {
		return nil, nil
	}
	return out, nil
}

// readArticleData fetches an article's raw text: the chunk block is read
// under the index lock, the article bytes under the decompressor lock, and
// the result is decoded with the stored source encoding and stripped of
// DSL comments. A decompressor failure yields a placeholder body instead
// of an error.
func (d *Dictionary) readArticleData(ctx context.Context, blockID uint32) (string, error) {
	if cancelled(ctx) {
		return "", nil
	}

	d.idxMu.Lock()
	block, err := d.chunks.GetBlock(blockID)
	d.idxMu.Unlock()
	if err != nil {
		return "", err
	}
	if len(block) < 8 {
		return "", fmt.Errorf("%w: short article block", idx.ErrIndexOldOrBad)
	}

	articleOffset := binary.LittleEndian.Uint32(block[0:4])
	articleSize := binary.LittleEndian.Uint32(block[4:8])

	if cancelled(ctx) {
		return "", nil
	}

	body := make([]byte, articleSize)
	d.dzMu.Lock()
	_, err = d.dz.ReadAt(body, int64(articleOffset))
	d.dzMu.Unlock()

	if cancelled(ctx) {
		return "", nil
	}

	if err != nil {
		// Do not poison the dictionary; surface the error in the article.
		return "\n\r\t" + fmt.Sprintf("DICTZIP error: %v", err), nil
	}

	articleData, err := d.Encoding().Decode(body, int64(articleOffset))
	if err != nil {
		return "", err
	}

	carry := false
	return dsl.StripComments(articleData, &carry), nil
}

// loadArticle reads the article at blockID and locates the displayed
// headword matching the request. It returns the tilde value, the displayed
// headword, the matched headword's ordinal and the article body.
func (d *Dictionary) loadArticle(ctx context.Context, blockID uint32, requestedHeadwordFolded string, ignoreDiacritics bool) (tildeValue, displayedHeadword string, headwordIndex int, body string, err error) {
	articleData, err := d.readArticleData(ctx, blockID)
	if err != nil || articleData == "" {
		return "", "", 0, "", err
	}

	runes := []rune(articleData)

	// An embedded card's recorded range begins at its @ line, which is
	// indented; top-level articles never are.
	insidedCard := len(runes) > 0 && dsl.IsWs(runes[0])

	pos := 0
	hadFirstHeadword := false
	foundDisplayedHeadword := false
	var tildeValueWithUnsorted string

	for {
		begin := pos
		for pos < len(runes) && runes[pos] != '\n' && runes[pos] != '\r' {
			pos++
		}

		if !foundDisplayedHeadword {
			rawHeadword := string(runes[begin:pos])

			if insidedCard && rawHeadword != "" && dsl.IsWs([]rune(rawHeadword)[0]) {
				rawHeadword = insidedCardHeadword(rawHeadword)
			}

			if rawHeadword != "" {
				if !hadFirstHeadword {
					alts := dsl.ExpandOptionalParts(rawHeadword)
					tildeValue = alts[0]
					tildeValueWithUnsorted = tildeValue
					tildeValue = dsl.ProcessUnsortedParts(tildeValue, false)
				}

				str := rawHeadword
				if hadFirstHeadword {
					str = dsl.ExpandTildes(str, tildeValueWithUnsorted)
				}
				str = dsl.ProcessUnsortedParts(str, true)
				str = folding.CaseFold(str)

				// Does one of the alternatives match the requested word?
				for _, alt := range dsl.ExpandOptionalParts(str) {
					alt = dsl.NormalizeHeadword(dsl.Unescape(alt))

					var found bool
					if ignoreDiacritics {
						found = folding.RemoveDiacritics(folding.TrimWs(alt)) ==
							folding.RemoveDiacritics(requestedHeadwordFolded)
					} else {
						found = folding.TrimWs(alt) == requestedHeadwordFolded
					}

					if found {
						display := rawHeadword
						if hadFirstHeadword {
							display = dsl.ExpandTildes(display, tildeValueWithUnsorted)
						}
						displayedHeadword = dsl.ProcessUnsortedParts(display, false)
						foundDisplayedHeadword = true
						break
					}
				}

				if !foundDisplayedHeadword {
					headwordIndex++
					hadFirstHeadword = true
				}
			}
		}

		if pos == len(runes) {
			break
		}
		if runes[pos] == '\r' {
			pos++
		}
		if pos < len(runes) && runes[pos] == '\n' {
			pos++
		}
		if pos == len(runes) {
			break
		}

		if dsl.IsWs(runes[pos]) {
			if !insidedCard {
				// The body starts here.
				break
			}
			// Inside an embedded card an indented line is either another
			// @ headword or the card body.
			lineEnd := pos
			for lineEnd < len(runes) && runes[lineEnd] != '\n' && runes[lineEnd] != '\r' {
				lineEnd++
			}
			if !dsl.IsAtSignFirst(string(runes[pos:lineEnd])) {
				break
			}
		}
	}

	if !foundDisplayedHeadword {
		if insidedCard {
			displayedHeadword = requestedHeadwordFolded
		} else {
			displayedHeadword = tildeValue
		}
	}

	if pos != len(runes) {
		body = string(runes[pos:])
	}
	return tildeValue, displayedHeadword, headwordIndex, body, nil
}

// insidedCardHeadword extracts the headword from an embedded card's @
// line. A headword still containing an unescaped tilde cannot be resolved
// here and yields the empty string.
func insidedCardHeadword(rawHeadword string) string {
	at := strings.IndexRune(rawHeadword, '@')
	if at < 0 {
		return rawHeadword
	}
	head := folding.TrimWs(rawHeadword[at+1:])

	rest := head
	for {
		i := strings.IndexRune(rest, '~')
		if i < 0 {
			return head
		}
		if i == 0 || rest[i-1] != '\\' {
			return ""
		}
		rest = rest[i+1:]
	}
}

// Article is one rendered dictionary article.
type Article struct {
	// Headword is the displayed headword.
	Headword string

	// HTML is the rendered article.
	HTML string
}

// Articles looks up a headword and renders every matching article to HTML.
// Requests for the same article through distinct headwords are rendered
// separately; duplicates of the same (article, headword) pair are dropped.
func (d *Dictionary) Articles(ctx context.Context, word string, ignoreDiacritics bool) ([]Article, error) {
	if err := d.ensureInitDone(); err != nil {
		return nil, err
	}
	if cancelled(ctx) {
		return nil, nil
	}

	chain, err := d.btree.FindArticles(word, ignoreDiacritics)
	if err != nil {
		return nil, err
	}

	wordCaseFolded := folding.CaseFold(folding.TrimWs(word))

	type articleKey struct {
		blockID       uint32
		headwordIndex int
	}
	included := map[articleKey]bool{}

	var out []Article
	for _, link := range chain {
		if cancelled(ctx) {
			return nil, nil
		}

		tildeValue, displayedHeadword, headwordIndex, body, err := d.loadArticle(ctx, link.ArticleOffset, wordCaseFolded, ignoreDiacritics)
		if err != nil {
			d.log.WithError(err).WithField("dictionary", d.name).Warn("failed loading article")
			out = append(out, Article{
				Headword: word,
				HTML:     `<span class="dsl_article">Article loading error</span>`,
			})
			continue
		}

		key := articleKey{blockID: link.ArticleOffset, headwordIndex: headwordIndex}
		if included[key] {
			continue
		}
		included[key] = true

		if displayedHeadword == "" || dsl.IsWs([]rune(displayedHeadword)[0]) {
			displayedHeadword = word // Embedded card.
		}

		nom := d.articleNom.Add(1)
		r := d.newRenderer(displayedHeadword, nom)

		var sb strings.Builder
		sb.WriteString(`<div class="dsl_article">`)
		sb.WriteString(`<div class="dsl_headwords"><p>`)
		sb.WriteString(r.toHTML(displayedHeadword))
		headEnd := `</p></div>`

		body = dsl.ExpandTildes(body, tildeValue)

		definition := r.toHTML(body)

		if r.optionalPartNom > 0 {
			prefix := fmt.Sprintf("O%s_%d", shortID(d.id), nom)
			sb.WriteString(fmt.Sprintf(
				` <img src="qrc:///icons/expand_opt.png" class="hidden_expand_opt" id="%s_expand" alt="[+]"/>`,
				prefix))
		}
		sb.WriteString(headEnd)
		sb.WriteString(`<div class="dsl_definition">`)
		sb.WriteString(definition)
		sb.WriteString(`</div></div>`)

		out = append(out, Article{Headword: displayedHeadword, HTML: sb.String()})
	}

	if cancelled(ctx) {
		return nil, nil
	}
	return out, nil
}

// Resource returns the content of a media resource. Lookup order is the
// containing folder, the two .files directory conventions, then the
// resource archive.
func (d *Dictionary) Resource(ctx context.Context, name string) ([]byte, error) {
	if err := d.ensureInitDone(); err != nil {
		return nil, err
	}
	if cancelled(ctx) {
		return nil, nil
	}

	dirs := []string{
		filepath.Dir(d.dslPath),
		d.resourceDir1,
		d.resourceDir2,
	}
	for _, dir := range dirs {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return b, nil
		}
		if cancelled(ctx) {
			return nil, nil
		}
	}

	if d.resourceZip.IsOpen() {
		d.zipMu.Lock()
		b, err := d.resourceZip.Load(name)
		d.zipMu.Unlock()
		if cancelled(ctx) {
			return nil, nil
		}
		if err == nil {
			return b, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrResourceMissing, name)
}

// shortID returns the 7-character id prefix used in element ids.
func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// hasResourceFile reports whether a media file exists in either resource
// directory, the containing folder, or the archive.
func (d *Dictionary) hasResourceFile(name string) bool {
	for _, dir := range []string{d.resourceDir1, d.resourceDir2, filepath.Dir(d.dslPath)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	if d.resourceZip.IsOpen() {
		d.zipMu.Lock()
		ok := d.resourceZip.Has(name)
		d.zipMu.Unlock()
		return ok
	}
	return false
}

// loadResourceBytes loads a media file for size probing, without error
// reporting.
func (d *Dictionary) loadResourceBytes(name string) []byte {
	for _, dir := range []string{d.resourceDir1, d.resourceDir2, filepath.Dir(d.dslPath)} {
		if b, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return b
		}
	}
	if d.resourceZip.IsOpen() {
		d.zipMu.Lock()
		b, err := d.resourceZip.Load(name)
		d.zipMu.Unlock()
		if err == nil {
			return b
		}
	}
	return nil
}
