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
	"fmt"
	"html"
	"image"
	_ "image/gif"  // registered for picture size probing
	_ "image/jpeg" // registered for picture size probing
	_ "image/png"  // registered for picture size probing
	"net/url"
	"strings"

	"github.com/initial-ddl/dsldict/dsl"
)

// renderer converts one article's DOM to HTML. A renderer is request-local
// and must not be shared between requests.
type renderer struct {
	d *Dictionary

	// headword is the article's displayed headword, used in diagnostics.
	headword string

	// articleNom numbers the article within the session; optionalPartNom
	// numbers [*] zones within the article. Both feed element ids.
	articleNom      uint32
	optionalPartNom int
}

func (d *Dictionary) newRenderer(headword string, articleNom uint32) *renderer {
	return &renderer{d: d, headword: headword, articleNom: articleNom}
}

// toHTML parses s as DSL markup and renders it.
func (r *renderer) toHTML(s string) string {
	// A lone "<" headword is returned escaped without parsing.
	if s == "<" {
		return "&lt;"
	}
	return r.renderChildren(dsl.ParseArticle(s))
}

func (r *renderer) renderChildren(node *dsl.Node) string {
	var sb strings.Builder
	for _, c := range node.Children {
		sb.WriteString(r.renderNode(c))
	}
	return sb.String()
}

func (r *renderer) renderNode(node *dsl.Node) string {
	if !node.IsTag {
		text := html.EscapeString(node.Text)
		text = strings.ReplaceAll(text, "\r", "")
		text = strings.ReplaceAll(text, "\n", "<p></p>")
		return text
	}

	switch {
	case node.Name == "b":
		return `<b class="dsl_b">` + r.renderChildren(node) + `</b>`

	case node.Name == "i":
		return `<i class="dsl_i">` + r.renderChildren(node) + `</i>`

	case node.Name == "u":
		text := r.renderChildren(node)
		var prefix string
		// In "foo[u] bar[/u]" a plain space is emitted before the span as
		// well; the span keeps its own leading space.
		if text != "" && dsl.IsWs(rune(text[0])) {
			prefix = " "
		}
		return prefix + `<span class="dsl_u">` + text + `</span>`

	case node.Name == "c":
		if node.Attrs == "" {
			return `<span class="c_default_color">` + r.renderChildren(node) + `</span>`
		}
		return `<font color="` + html.EscapeString(node.Attrs) + `">` + r.renderChildren(node) + `</font>`

	case node.Name == "*":
		id := fmt.Sprintf("O%s_%d_opt_%d", shortID(r.d.id), r.articleNom, r.optionalPartNom)
		r.optionalPartNom++
		return `<span class="dsl_opt" id="` + id + `">` + r.renderChildren(node) + `</span>`

	case node.Name == "m":
		return `<div class="dsl_m">` + r.renderChildren(node) + `</div>`

	case len(node.Name) == 2 && node.Name[0] == 'm' && node.Name[1] >= '0' && node.Name[1] <= '9':
		return `<div class="dsl_` + node.Name + `">` + r.renderChildren(node) + `</div>`

	case node.Name == "trn":
		return `<span class="dsl_trn">` + r.renderChildren(node) + `</span>`

	case node.Name == "ex":
		return `<span class="dsl_ex">` + r.renderChildren(node) + `</span>`

	case node.Name == "com":
		return `<span class="dsl_com">` + r.renderChildren(node) + `</span>`

	case node.Name == "s" || node.Name == "video":
		return r.renderMedia(node)

	case node.Name == "url":
		link := r.nodeLink(node)
		if u, err := url.Parse(link); err == nil && u.Scheme == "" {
			link = "http://" + link
		}
		return `<a class="dsl_url" href="` + link + `">` + r.renderChildren(node) + `</a>`

	case node.Name == "!trs":
		return `<span class="dsl_trs">` + r.renderChildren(node) + `</span>`

	case node.Name == "p":
		out := `<span class="dsl_p"`
		if expansion, ok := r.d.abrv[abbrevKey(node.RenderAsText(false))]; ok {
			out += ` title="` + html.EscapeString(expansion) + `"`
		}
		return out + `>` + r.renderChildren(node) + `</span>`

	case node.Name == "'":
		// Both an accented and an unaccented variant are emitted; clients
		// pick one via CSS.
		data := r.renderChildren(node)
		return `<span class="dsl_stress">` +
			`<span class="dsl_stress_without_accent">` + data + `</span>` +
			`<span class="dsl_stress_with_accent">` + data + "\u0301" + `</span>` +
			`</span>`

	case node.Name == "lang":
		out := `<span class="dsl_lang"`
		if node.Attrs != "" {
			var code string
			if id := parseLangIDAttr(node.Attrs); id != 0 {
				code = codeForLangID(id)
			} else if name, ok := attrValue(node.Attrs, "name"); ok {
				code = codeForLangName(name)
			}
			if code != "" {
				out += ` lang="` + code + `"`
			}
		}
		return out + `>` + r.renderChildren(node) + `</span>`

	case node.Name == "ref":
		u := url.URL{
			Scheme: "gdlookup",
			Host:   "localhost",
			Path:   "/" + dsl.NormalizeHeadword(dsl.Unescape(r.nodeLink(node))),
		}
		if node.Attrs != "" {
			attr := strings.ReplaceAll(node.Attrs, `"`, "")
			if n := strings.Index(attr, "="); n > 0 {
				q := url.Values{}
				q.Set(attr[:n], attr[n+1:])
				u.RawQuery = q.Encode()
			}
		}
		return `<a class="dsl_ref" href="` + u.String() + `">` + r.renderChildren(node) + `</a>`

	case node.Name == "@":
		// An embedded card whose marker line was not parsed out; link it
		// like a cross reference.
		u := url.URL{
			Scheme: "gdlookup",
			Host:   "localhost",
			Path:   "/" + dsl.NormalizeHeadword(node.RenderAsText(false)),
		}
		return `<a class="dsl_ref" href="` + u.String() + `">` + r.renderChildren(node) + `</a>`

	case node.Name == "sub":
		return `<sub>` + r.renderChildren(node) + `</sub>`

	case node.Name == "sup":
		return `<sup>` + r.renderChildren(node) + `</sup>`

	case node.Name == "t":
		return `<span class="dsl_t">` + r.renderChildren(node) + `</span>`

	case node.Name == "br":
		return `<br />`

	default:
		r.d.log.WithFields(map[string]interface{}{
			"tag":        node.Name,
			"attrs":      node.Attrs,
			"dictionary": r.d.name,
			"article":    r.headword,
		}).Warn("unknown DSL tag")

		out := `<span class="dsl_unknown">[` + html.EscapeString(node.Name)
		if node.Attrs != "" {
			out += " " + html.EscapeString(node.Attrs)
		}
		return out + `]` + r.renderChildren(node) + `</span>`
	}
}

// renderMedia renders [s] and [video] references, classifying the target
// by extension.
func (r *renderer) renderMedia(node *dsl.Node) string {
	filename := strings.TrimSpace(node.RenderAsText(false))

	switch {
	case isNameOfSound(filename):
		// With the file present, reference this dictionary exactly;
		// otherwise make a global "search" reference.
		search := !r.d.hasResourceFile(filename)

		u := url.URL{Scheme: "gdau", Host: r.d.id, Path: "/" + filename}
		if search {
			u.Host = "search"
			if r.d.header.HasSoundDictionaryName != 0 {
				u.Fragment = r.d.soundDictionary
			}
		}
		ref := u.String()

		return `<span class="dsl_s_wav"><a href="` + ref +
			`"><img src="qrc:///icons/playsound.png" border="0" align="absmiddle" alt="Play"/></a></span>`

	case isNameOfPicture(filename):
		u := url.URL{Scheme: "bres", Host: r.d.id, Path: "/" + filename}

		resize := false
		if r.d.opts != nil && r.d.opts.MaxPictureWidth > 0 {
			if b := r.d.loadResourceBytes(filename); b != nil {
				if cfg, _, err := image.DecodeConfig(bytes.NewReader(b)); err == nil {
					resize = cfg.Width > r.d.opts.MaxPictureWidth
				}
			}
		}

		if resize {
			link := "gdpicture" + strings.TrimPrefix(u.String(), "bres")
			return `<a href="` + link + `"><img src="` + u.String() +
				`" alt="` + html.EscapeString(filename) + `"` +
				fmt.Sprintf(`width="%d"/>`, r.d.opts.MaxPictureWidth) + `</a>`
		}
		return `<img src="` + u.String() + `" alt="` + html.EscapeString(filename) + `"/>`

	case isNameOfVideo(filename):
		u := url.URL{Scheme: "gdvideo", Host: r.d.id, Path: "/" + filename}
		return `<a class="dsl_s dsl_video" href="` + u.String() + `">` +
			`<span class="img"></span>` +
			`<span class="filename">` + r.renderChildren(node) + `</span></a>`

	default:
		// Unknown file type; downgrade to a hyperlink.
		u := url.URL{Scheme: "bres", Host: r.d.id, Path: "/" + filename}
		return `<a class="dsl_s" href="` + u.String() + `">` + r.renderChildren(node) + `</a>`
	}
}

// nodeLink resolves the link target of a ref or url node: an explicit
// target attribute wins over the node's text.
func (r *renderer) nodeLink(node *dsl.Node) string {
	if target, ok := attrValue(node.Attrs, "target"); ok {
		return strings.TrimSpace(target)
	}
	return strings.TrimSpace(node.RenderAsText(false))
}

// attrValue extracts a key="value" attribute from a raw attribute string.
func attrValue(attrs, key string) (string, bool) {
	i := strings.Index(attrs, key+`="`)
	if i < 0 {
		return "", false
	}
	start := i + len(key) + 2
	end := strings.Index(attrs[start:], `"`)
	if end < 0 {
		return attrs[start:], true
	}
	return attrs[start : start+end], true
}

// abbrevKey is the key form of an abbreviation: trimmed, like the builder
// stores them. Keys are not case folded, so lookups are case-sensitive.
func abbrevKey(s string) string {
	return strings.TrimSpace(s)
}
