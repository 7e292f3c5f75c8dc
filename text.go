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
	"regexp"
	"strings"

	"github.com/k3a/html2text"
	"golang.org/x/text/unicode/norm"

	"github.com/initial-ddl/dsldict/dsl"
)

// Text returns a plain text rendering of the article's HTML, suitable for
// terminal display.
func (a Article) Text() string {
	return html2text.HTML2Text(a.HTML)
}

// Tag stripping for the full-text feed. Media and transcription zones are
// removed wholesale; purely presentational tags are blanked.
var (
	strippedZoneTags = []string{"s", "url", "!trs", "video", "preview"}

	presentationalTagRe = regexp.MustCompile(`\[(|/)(p|trn|ex|com|\*|t|br|m[0-9]?)\]`)
	langTagRe           = regexp.MustCompile(`\[(|/)lang(\s[^\]]*)?\]`)
	remainingTagRe      = regexp.MustCompile(`\[[^\\\[\]]+\]`)
)

// ArticleText returns the article's first headword and its body as plain
// text. The full-text-search builder consumes this; it is not a rendering
// path.
func (d *Dictionary) ArticleText(ctx context.Context, blockID uint32) (headword, text string, err error) {
	if err := d.ensureInitDone(); err != nil {
		return "", "", err
	}

	articleData, err := d.readArticleData(ctx, blockID)
	if err != nil || articleData == "" {
		return "", "", err
	}

	runes := []rune(articleData)
	insidedCard := len(runes) > 0 && dsl.IsWs(runes[0])

	pos := 0
	var articleHeadword, tildeValue string

	// Skip the headwords, keeping the first one.
	for {
		begin := pos
		for pos < len(runes) && runes[pos] != '\n' && runes[pos] != '\r' {
			pos++
		}

		if articleHeadword == "" {
			articleHeadword = string(runes[begin:pos])

			if insidedCard && articleHeadword != "" && dsl.IsWs([]rune(articleHeadword)[0]) {
				articleHeadword = insidedCardHeadword(articleHeadword)
			}

			if articleHeadword != "" {
				tildeValue = articleHeadword

				articleHeadword = dsl.ProcessUnsortedParts(articleHeadword, true)
				articleHeadword = dsl.ExpandOptionalParts(articleHeadword)[0]
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
				break
			}
			lineEnd := pos
			for lineEnd < len(runes) && runes[lineEnd] != '\n' && runes[lineEnd] != '\r' {
				lineEnd++
			}
			if !dsl.IsAtSignFirst(string(runes[pos:lineEnd])) {
				break
			}
		}
	}

	if articleHeadword != "" {
		headword = dsl.NormalizeHeadword(dsl.Unescape(articleHeadword))
	}

	var articleText string
	if pos != len(runes) {
		articleText = string(runes[pos:])
	}

	if tildeValue != "" {
		tv := dsl.ProcessUnsortedParts(tildeValue, false)
		articleText = dsl.ExpandTildes(articleText, dsl.ExpandOptionalParts(tv)[0])
	}

	if articleText == "" {
		return headword, "", nil
	}

	text = norm.NFC.String(articleText)
	text = stripMediaZones(text)

	text = presentationalTagRe.ReplaceAllString(text, " ")
	text = langTagRe.ReplaceAllString(text, " ")
	text = remainingTagRe.ReplaceAllString(text, "")

	text = strings.ReplaceAll(text, "<<", "")
	text = strings.ReplaceAll(text, ">>", "")

	if hasInsidedCards(text) {
		// The markup parser handles articles with embedded cards.
		text = dsl.ParseArticle(text).RenderAsText(true)
	} else {
		text = dsl.Unescape(text)
	}

	return headword, text, nil
}

// stripMediaZones removes [s]...[/s] and similar zones, replacing each
// with a single space.
func stripMediaZones(text string) string {
	runes := []rune(text)
	var out []rune

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\\' {
			out = append(out, ch)
			if i+1 < len(runes) {
				out = append(out, runes[i+1])
				i++
			}
			continue
		}
		if ch != '[' || i+1 >= len(runes) || runes[i+1] == '/' {
			out = append(out, ch)
			continue
		}

		end := i + 1
		for end < len(runes) && runes[end] != ']' {
			end++
		}
		if end == len(runes) {
			out = append(out, runes[i:]...)
			break
		}

		tag := strings.ToLower(strings.TrimSpace(string(runes[i+1 : end])))
		stripped := false
		for _, zone := range strippedZoneTags {
			if tag != zone {
				continue
			}
			closer := "[/" + zone + "]"
			rest := strings.ToLower(string(runes[end+1:]))
			if n := strings.Index(rest, closer); n >= 0 {
				i = end + n + len(closer)
			} else {
				i = len(runes)
			}
			out = append(out, ' ')
			stripped = true
			break
		}
		if !stripped {
			out = append(out, ch)
		}
	}

	return string(out)
}

// hasInsidedCards reports whether an unescaped @ remains in the text.
func hasInsidedCards(text string) bool {
	runes := []rune(text)
	for i, ch := range runes {
		if ch == '@' && (i == 0 || runes[i-1] != '\\') {
			return true
		}
	}
	return false
}
