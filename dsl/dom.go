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
	"strings"
)

// Node is a node of a parsed article. A node is either a text node (IsTag
// false, Text set) or a tag node (IsTag true, Name/Attrs/Children set).
// Unknown tags are preserved as tag nodes so the renderer can emit a
// visible diagnostic for them.
type Node struct {
	IsTag bool

	// Text is the text of a text node. Escape sequences have been resolved.
	Text string

	// Name is the tag name of a tag node, e.g. "b", "m1", "*" or "@".
	Name string

	// Attrs is the raw attribute string following the tag name.
	Attrs string

	Children []*Node
}

// RenderAsText flattens the subtree to its plain text. With
// skipTranscription set the content of [!trs] tags is omitted.
func (n *Node) RenderAsText(skipTranscription bool) string {
	var sb strings.Builder
	n.renderAsText(&sb, skipTranscription)
	return sb.String()
}

func (n *Node) renderAsText(sb *strings.Builder, skipTranscription bool) {
	if !n.IsTag {
		sb.WriteString(n.Text)
		return
	}
	if skipTranscription && n.Name == "!trs" {
		return
	}
	for _, c := range n.Children {
		c.renderAsText(sb, skipTranscription)
	}
}

// voidTags have no content and no closing tag.
var voidTags = map[string]bool{
	"br": true,
}

// ParseArticle parses a DSL article body into a document tree. The parser
// is total: malformed markup degrades to text or unknown-tag nodes, excess
// closing tags close the nearest open tag of that name or are dropped, and
// any tags left open at the end of input are closed implicitly.
func ParseArticle(s string) *Node {
	root := &Node{IsTag: true}
	stack := []*Node{root}

	var text strings.Builder
	flush := func() {
		if text.Len() == 0 {
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, &Node{Text: text.String()})
		text.Reset()
	}
	open := func(name, attrs string) {
		flush()
		node := &Node{IsTag: true, Name: name, Attrs: attrs}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, node)
		if !voidTags[name] {
			stack = append(stack, node)
		}
	}
	closeTag := func(name string) {
		// Find the nearest open tag with this name; drop the closer when
		// there is none. Anything above the match is closed implicitly.
		for i := len(stack) - 1; i > 0; i-- {
			if stack[i].Name == name {
				flush()
				stack = stack[:i]
				return
			}
		}
	}

	runes := []rune(s)
	lineStart := true
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch {
		case ch == '\\':
			// The escaped character is added literally; the backslash is
			// consumed here.
			if i+1 < len(runes) {
				text.WriteRune(runes[i+1])
				i++
			}
			lineStart = false

		case ch == '[':
			end := indexRune(runes, i+1, ']')
			if end < 0 {
				text.WriteRune(ch)
				lineStart = false
				break
			}
			content := strings.TrimSpace(string(runes[i+1 : end]))
			i = end
			lineStart = false
			if content == "" {
				break
			}
			if content[0] == '/' {
				closeTag(strings.TrimSpace(content[1:]))
				break
			}
			name := content
			attrs := ""
			if j := strings.IndexFunc(content, IsWs); j >= 0 {
				name = content[:j]
				attrs = strings.TrimSpace(content[j+1:])
			}
			open(name, attrs)

		case ch == '<' && i+1 < len(runes) && runes[i+1] == '<':
			// <<word>> is shorthand for [ref]word[/ref].
			open("ref", "")
			i++
			lineStart = false

		case ch == '>' && i+1 < len(runes) && runes[i+1] == '>':
			closeTag("ref")
			i++
			lineStart = false

		case ch == '@' && lineStart:
			// An embedded-card marker that survived to rendering. The rest
			// of the line becomes the card headword inside an @ node.
			flush()
			end := i + 1
			for end < len(runes) && runes[end] != '\n' && runes[end] != '\r' {
				end++
			}
			head := TrimWs(string(runes[i+1 : end]))
			node := &Node{IsTag: true, Name: "@"}
			if head != "" {
				node.Children = append(node.Children, &Node{Text: head})
			}
			top := stack[len(stack)-1]
			top.Children = append(top.Children, node)
			i = end - 1

		case ch == '\n' || ch == '\r':
			text.WriteRune(ch)
			lineStart = true

		default:
			if !IsWs(ch) {
				lineStart = false
			}
			text.WriteRune(ch)
		}
	}
	flush()

	return root
}

// indexRune returns the index of the first occurrence of r in runes at or
// after from, or -1.
func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
