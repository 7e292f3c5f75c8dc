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
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/initial-ddl/dsldict/dsl"
	"github.com/initial-ddl/dsldict/idx"
	"github.com/initial-ddl/dsldict/internal/folding"
	"github.com/initial-ddl/dsldict/zips"
)

// maxHeadwordLineSize is the longest line, in code points, that can still
// be a headword. Longer lines are skipped outright.
const maxHeadwordLineSize = 100

// BuildOptions are options for BuildIndex.
type BuildOptions struct {
	// MaxHeadwordSize is the largest headword, in code points, that gets
	// indexed.
	MaxHeadwordSize int

	// Logger receives parse diagnostics. Diagnostics never abort the
	// build. Nil means the standard logger.
	Logger *logrus.Logger
}

// DefaultBuildOptions are the default options for BuildIndex.
var DefaultBuildOptions = &BuildOptions{
	MaxHeadwordSize: 256,
}

func (o *BuildOptions) maxHeadwordSize() int {
	if o == nil || o.MaxHeadwordSize == 0 {
		return DefaultBuildOptions.MaxHeadwordSize
	}
	return o.MaxHeadwordSize
}

func (o *BuildOptions) logger() *logrus.Logger {
	if o == nil || o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// insidedCard records an embedded card discovered during the body scan.
type insidedCard struct {
	offset    uint32
	size      uint32
	headwords []string
}

// BuildIndex scans the DSL source at dslPath and writes a fresh index file
// to indexPath. abrvPath and zipPath name the optional abbreviation and
// resource archive companions ("" for none).
func BuildIndex(dslPath, abrvPath, zipPath, indexPath string, opts *BuildOptions) (err error) {
	log := opts.logger()

	data, err := readSource(dslPath)
	if err != nil {
		return err
	}

	scanner, err := dsl.NewScanner(data)
	if err != nil {
		return fmt.Errorf("scanning %q: %w", dslPath, err)
	}

	if scanner.DictionaryName() == "Abbrev" {
		return fmt.Errorf("%q: %w", dslPath, ErrAbbreviationDictionary)
	}

	log.WithField("dictionary", scanner.DictionaryName()).Debug("building index")

	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("creating index %q: %w", indexPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing index: %w", cerr)
		}
		if err != nil {
			os.Remove(indexPath)
		}
	}()

	var header idx.Header

	// A dummy header first; it is rewritten with the real values at the
	// end of the build.
	if err := header.Write(f); err != nil {
		return err
	}
	if err := idx.WriteString(f, scanner.DictionaryName()); err != nil {
		return err
	}
	if sd := scanner.SoundDictionary(); sd != "" {
		header.HasSoundDictionaryName = 1
		if err := idx.WriteString(f, sd); err != nil {
			return err
		}
	}

	header.DslEncoding = int32(scanner.Encoding())

	indexedWords := idx.NewIndexedWords()

	chunks, err := idx.NewChunkWriter(f)
	if err != nil {
		return err
	}

	if abrvPath != "" {
		if err := buildAbbreviations(abrvPath, chunks, &header, log); err != nil {
			// A bad abbreviation companion is skipped, not fatal.
			log.WithError(err).WithField("file", abrvPath).Warn("error reading abbreviation file, skipping it")
		}
	}

	builder := &indexBuilder{
		scanner:      scanner,
		chunks:       chunks,
		indexedWords: indexedWords,
		maxHeadword:  opts.maxHeadwordSize(),
		log:          log.WithField("file", dslPath),
	}
	if err := builder.scanArticles(); err != nil {
		return err
	}

	header.ChunksOffset, err = chunks.Finish()
	if err != nil {
		return err
	}

	idxInfo, err := idx.BuildIndex(indexedWords, f)
	if err != nil {
		return err
	}
	header.IndexBtreeMaxElements = idxInfo.BtreeMaxElements
	header.IndexRootOffset = idxInfo.RootOffset

	// If there is a resource archive, index it too.
	if zipPath != "" {
		header.HasZipFile = 1

		zipFileNames := idx.NewIndexedWords()
		if _, err := zips.IndexArchive(zipPath, zipFileNames); err != nil {
			log.WithError(err).WithField("file", zipPath).Warn("error indexing resource archive")
		}

		if len(zipFileNames) > 0 {
			zipInfo, err := idx.BuildIndex(zipFileNames, f)
			if err != nil {
				return err
			}
			header.ZipIndexBtreeMaxElements = zipInfo.BtreeMaxElements
			header.ZipIndexRootOffset = zipInfo.RootOffset
		}
		// A bad archive leaves the mark that one exists but no index.
	}

	header.Signature = idx.Signature
	header.FormatVersion = idx.CurrentFormatVersion
	header.ZipSupportVersion = idx.CurrentZipSupportVersion
	header.ArticleCount = builder.articleCount
	header.WordCount = builder.wordCount
	header.LangFrom = languageToID(scanner.LangFrom())
	header.LangTo = languageToID(scanner.LangTo())

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding index: %w", err)
	}
	return header.Write(f)
}

// buildAbbreviations scans the abbreviation companion and serializes the
// resulting map into one chunk block. A record is one or more key lines
// followed by an indented value line.
func buildAbbreviations(abrvPath string, chunks *idx.ChunkWriter, header *idx.Header, log *logrus.Logger) error {
	data, err := readSource(abrvPath)
	if err != nil {
		return err
	}

	scanner, err := dsl.NewScanner(data)
	if err != nil {
		return err
	}

	abrv := map[string]string{}

	for {
		cur, _, err := scanner.ReadNextLineWithoutComments(true)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if cur == "" || dsl.IsWs([]rune(cur)[0]) {
			continue
		}

		var keys []string
		eof := false

		// Collect the keys and get to the definition.
		for {
			cur = dsl.ProcessUnsortedParts(cur, true)
			if len(keys) > 0 {
				cur = dsl.ExpandTildes(cur, keys[0])
			}
			keys = append(keys, dsl.ExpandOptionalParts(cur)...)

			cur, _, err = scanner.ReadNextLineWithoutComments(false)
			if err == io.EOF || (err == nil && cur == "") {
				log.WithField("file", abrvPath).Warn("premature end of file")
				eof = true
				break
			}
			if err != nil {
				return err
			}
			if dsl.IsWs([]rune(cur)[0]) {
				break
			}
		}
		if eof {
			break
		}

		cur = dsl.TrimWs(cur)
		if len(keys) > 0 {
			cur = dsl.ExpandTildes(cur, keys[0])
		}

		// Any markup in the value is stripped.
		value := dsl.ParseArticle(cur).RenderAsText(false)

		for _, key := range keys {
			key = dsl.NormalizeHeadword(dsl.Unescape(key))
			abrv[folding.TrimWs(key)] = value
		}
	}

	if len(abrv) == 0 {
		return nil
	}

	header.HasAbrv = 1
	header.AbrvAddress, err = chunks.StartNewBlock()
	if err != nil {
		return err
	}

	chunks.AddUint32(uint32(len(abrv)))

	keys := make([]string, 0, len(abrv))
	for k := range abrv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		chunks.AddUint32(uint32(len(k)))
		chunks.AddToBlock([]byte(k))
		chunks.AddUint32(uint32(len(abrv[k])))
		chunks.AddToBlock([]byte(abrv[k]))
	}
	return nil
}

// indexBuilder drives the article scan.
type indexBuilder struct {
	scanner      *dsl.Scanner
	chunks       *idx.ChunkWriter
	indexedWords idx.IndexedWords
	maxHeadword  int
	log          *logrus.Entry

	articleCount uint32
	wordCount    uint32
}

// addHeadword normalizes and inserts one expanded headword alternative.
func (b *indexBuilder) addHeadword(word string, descOffset uint32) {
	word = dsl.NormalizeHeadword(dsl.Unescape(word))
	if !b.indexedWords.AddWord(word, descOffset, b.maxHeadword) && !folding.IsWsOnly(word) {
		b.log.WithField("line", b.scanner.LinesRead()).Warn("headword too long, skipped")
	}
}

// scanArticles walks every article in the source, emitting chunk blocks
// and index entries for parent articles and their embedded cards.
func (b *indexBuilder) scanArticles() error {
	var (
		cur       string
		curOffset uint32
		hasString bool
	)

	readLine := func(skipBlank bool) error {
		var err error
		cur, curOffset, err = b.scanner.ReadNextLineWithoutComments(skipBlank)
		if err == io.EOF {
			hasString = false
			curOffset = b.scanner.Offset()
			return nil
		}
		if err != nil {
			return err
		}
		hasString = true
		return nil
	}

	for {
		// Find the main headword.
		if !hasString {
			if err := readLine(true); err != nil {
				return err
			}
		}
		if !hasString {
			return nil // Clean end of file.
		}
		hasString = false

		// The line should either be pure whitespace or a headword. A line
		// too long to be a headword never is one.
		if cur == "" || len([]rune(cur)) > maxHeadwordLineSize {
			continue
		}
		if dsl.IsWs([]rune(cur)[0]) {
			if !dsl.IsWsOnly(cur) {
				b.log.WithField("offset", fmt.Sprintf("%#x", curOffset)).Warn("garbage string")
			}
			continue
		}

		// Got the headword.
		cur = dsl.ProcessUnsortedParts(cur, true)
		allEntryWords := dsl.ExpandOptionalParts(cur)

		articleOffset := curOffset

		// More headwords may follow.
		for {
			if err := readLine(false); err != nil {
				return err
			}
			if !hasString {
				b.log.Warn("premature end of file")
				break
			}

			// Empty lines between the headwords are skipped.
			if cur == "" {
				continue
			}
			if dsl.IsWs([]rune(cur)[0]) {
				break // No more headwords.
			}

			cur = dsl.ProcessUnsortedParts(cur, true)
			cur = dsl.ExpandTildes(cur, allEntryWords[0])
			allEntryWords = append(allEntryWords, dsl.ExpandOptionalParts(cur)...)
		}

		if !hasString {
			return nil
		}

		// Insert the new entry.
		descOffset, err := b.chunks.StartNewBlock()
		if err != nil {
			return err
		}
		b.chunks.AddUint32(articleOffset)

		for _, word := range allEntryWords {
			b.addHeadword(word, descOffset)
		}

		b.articleCount++
		b.wordCount += uint32(len(allEntryWords))

		// Skip the article's body, collecting embedded cards.
		insideInsided := false
		var insidedCards []insidedCard
		var insidedHeadwords []string
		offset := curOffset
		linesInsideCard := 0
		dogLine := 0
		wasEmptyLine := false
		headwordLine := b.scanner.LinesRead() - 2
		noSignificantLines := dsl.IsWsOnly(cur)
		haveLine := !noSignificantLines

		for {
			if !haveLine {
				if err := readLine(false); err != nil {
					return err
				}
			}
			haveLine = false

			if !hasString || (cur != "" && !dsl.IsWs([]rune(cur)[0])) {
				if insideInsided {
					b.log.WithField("line", dogLine).Warn("unclosed tag '@'")
					insidedCards = append(insidedCards, insidedCard{
						offset:    offset,
						size:      curOffset - offset,
						headwords: insidedHeadwords,
					})
				}
				if noSignificantLines {
					b.log.WithField("line", headwordLine).Warn("orphan headword")
				}
				break
			}

			// Check for orphan strings.
			if cur == "" {
				wasEmptyLine = true
				continue
			}
			if wasEmptyLine && !dsl.IsWsOnly(cur) {
				b.log.WithField("line", b.scanner.LinesRead()-1).Warn("orphan string")
				wasEmptyLine = false
			}

			if noSignificantLines {
				noSignificantLines = dsl.IsWsOnly(cur)
			}

			// Find embedded cards.
			n := strings.IndexRune(cur, '@')
			if n < 0 || (n > 0 && cur[n-1] == '\\') {
				if insideInsided {
					linesInsideCard++
				}
				continue
			}
			// The embedded card tag must be the first thing on its line.
			if !dsl.IsAtSignFirst(cur) {
				b.log.WithField("line", b.scanner.LinesRead()-1).Warn("unescaped '@' symbol")
				if insideInsided {
					linesInsideCard++
				}
				continue
			}

			dogLine = b.scanner.LinesRead() - 1

			if insideInsided {
				if linesInsideCard > 0 {
					// A body line separates headword groups; this @ starts
					// a new card.
					insidedCards = append(insidedCards, insidedCard{
						offset:    offset,
						size:      curOffset - offset,
						headwords: insidedHeadwords,
					})
					insidedHeadwords = nil
					linesInsideCard = 0
					offset = curOffset
				}
			} else {
				offset = curOffset
				linesInsideCard = 0
			}

			headword := dsl.TrimWs(cur[n+1:])
			if headword != "" {
				headword = dsl.ProcessUnsortedParts(headword, true)
				headword = dsl.ExpandTildes(headword, allEntryWords[0])
				insidedHeadwords = append(insidedHeadwords, headword)
				insideInsided = true
			} else {
				insideInsided = false
			}
		}

		// The offset of the first line after the article (end of file
		// included) fixes the article's size.
		b.chunks.AddUint32(curOffset - articleOffset)

		for _, card := range insidedCards {
			cardOffset, err := b.chunks.StartNewBlock()
			if err != nil {
				return err
			}
			b.chunks.AddUint32(card.offset)
			b.chunks.AddUint32(card.size)

			for _, hw := range card.headwords {
				alts := dsl.ExpandOptionalParts(hw)
				for _, word := range alts {
					b.addHeadword(word, cardOffset)
				}
				b.wordCount += uint32(len(alts))
			}
			b.articleCount++
		}

		if !hasString {
			return nil
		}
	}
}
