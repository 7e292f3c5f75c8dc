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

package idx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/initial-ddl/dsldict/internal/folding"
)

// btreeFormatVersion is the version of the B-tree node layout. It
// participates in the index format version.
const btreeFormatVersion = 2

const (
	nodeKindLeaf     uint32 = 0
	nodeKindInterior uint32 = 1
)

// WordArticleLink links a stored headword to the chunk block describing its
// article.
type WordArticleLink struct {
	// Word is the headword as displayed, before folding.
	Word string

	// ArticleOffset is the chunk block id of the article's metadata.
	ArticleOffset uint32
}

// IndexInfo locates a B-tree inside the index file.
type IndexInfo struct {
	BtreeMaxElements uint32
	RootOffset       uint32
}

// IndexedWords accumulates headwords during index build. Keys are folded;
// each key holds every link inserted for it, multiplicity preserved.
type IndexedWords map[string][]WordArticleLink

// NewIndexedWords creates an empty word accumulator.
func NewIndexedWords() IndexedWords {
	return IndexedWords{}
}

// AddWord folds and inserts a headword. Words longer than maxHeadwordSize
// code points are treated as spurious and dropped; the return value
// reports whether the word was inserted.
func (iw IndexedWords) AddWord(word string, articleOffset uint32, maxHeadwordSize int) bool {
	trimmed := folding.TrimWs(word)
	if trimmed == "" {
		return false
	}
	if maxHeadwordSize > 0 && utf8.RuneCountInString(trimmed) > maxHeadwordSize {
		return false
	}

	key := folding.Fold(trimmed)
	if key == "" {
		return false
	}
	iw[key] = append(iw[key], WordArticleLink{Word: trimmed, ArticleOffset: articleOffset})
	return true
}

// AddSingleWord inserts a word without a length limit. Used for resource
// archive entry names.
func (iw IndexedWords) AddSingleWord(word string, articleOffset uint32) {
	key := folding.Fold(word)
	if key == "" {
		return
	}
	iw[key] = append(iw[key], WordArticleLink{Word: word, ArticleOffset: articleOffset})
}

// BuildIndex writes a B-tree over the accumulated words at the current
// position of w and returns its location. Leaves hold at most
// btreeMaxElements keys and are zlib-compressed; the root interior node
// lists each leaf's first key.
func BuildIndex(iw IndexedWords, w io.WriteSeeker) (IndexInfo, error) {
	keys := make([]string, 0, len(iw))
	for k := range iw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	maxElements := int(math.Sqrt(float64(len(keys)))) + 1

	type leafRef struct {
		firstKey string
		offset   uint32
	}
	var leaves []leafRef

	for start := 0; start < len(keys); start += maxElements {
		end := start + maxElements
		if end > len(keys) {
			end = len(keys)
		}

		off, err := writeLeaf(w, keys[start:end], iw)
		if err != nil {
			return IndexInfo{}, err
		}
		leaves = append(leaves, leafRef{firstKey: keys[start], offset: off})
	}

	if len(leaves) == 0 {
		// An empty dictionary still gets an empty leaf so that lookups have
		// a node to land on.
		off, err := writeLeaf(w, nil, iw)
		if err != nil {
			return IndexInfo{}, err
		}
		leaves = append(leaves, leafRef{offset: off})
	}

	if len(leaves) == 1 {
		return IndexInfo{BtreeMaxElements: uint32(maxElements), RootOffset: leaves[0].offset}, nil
	}

	rootPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("locating btree root: %w", err)
	}

	var buf bytes.Buffer
	writeU32(&buf, nodeKindInterior)
	writeU32(&buf, uint32(len(leaves)))
	for _, l := range leaves {
		writeU32(&buf, uint32(len(l.firstKey)))
		buf.WriteString(l.firstKey)
		writeU32(&buf, l.offset)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return IndexInfo{}, fmt.Errorf("writing btree root: %w", err)
	}

	return IndexInfo{BtreeMaxElements: uint32(maxElements), RootOffset: uint32(rootPos)}, nil
}

func writeLeaf(w io.WriteSeeker, keys []string, iw IndexedWords) (uint32, error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("locating btree leaf: %w", err)
	}

	var raw bytes.Buffer
	writeU32(&raw, uint32(len(keys)))
	for _, k := range keys {
		writeU32(&raw, uint32(len(k)))
		raw.WriteString(k)
		links := iw[k]
		writeU32(&raw, uint32(len(links)))
		for _, l := range links {
			writeU32(&raw, uint32(len(l.Word)))
			raw.WriteString(l.Word)
			writeU32(&raw, l.ArticleOffset)
		}
	}

	var compressed bytes.Buffer
	z := zlib.NewWriter(&compressed)
	if _, err := z.Write(raw.Bytes()); err != nil {
		return 0, fmt.Errorf("compressing btree leaf: %w", err)
	}
	if err := z.Close(); err != nil {
		return 0, fmt.Errorf("compressing btree leaf: %w", err)
	}

	var buf bytes.Buffer
	writeU32(&buf, nodeKindLeaf)
	writeU32(&buf, uint32(compressed.Len()))
	writeU32(&buf, uint32(raw.Len()))
	buf.Write(compressed.Bytes())

	if _, err := w.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("writing btree leaf: %w", err)
	}
	return uint32(pos), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// BtreeIndex is a read-only view of a persistent B-tree. All file access is
// serialized on the mutex supplied at open time; the same mutex may guard
// other readers of the same file.
type BtreeIndex struct {
	r    io.ReaderAt
	info IndexInfo
	mu   *sync.Mutex
}

// OpenIndex opens a B-tree located by info inside the index file.
func OpenIndex(info IndexInfo, r io.ReaderAt, mu *sync.Mutex) *BtreeIndex {
	return &BtreeIndex{r: r, info: info, mu: mu}
}

type leafEntry struct {
	key   string
	links []WordArticleLink
}

type interiorChild struct {
	firstKey string
	offset   uint32
}

type btreeNode struct {
	leaf     bool
	entries  []leafEntry
	children []interiorChild
}

// FindArticles returns every link stored under the folded form of word.
// With ignoreDiacritics set, keys are additionally compared with combining
// marks stripped.
func (b *BtreeIndex) FindArticles(word string, ignoreDiacritics bool) ([]WordArticleLink, error) {
	key := folding.Fold(word)
	if key == "" {
		return nil, nil
	}
	cmpKey := key
	if ignoreDiacritics {
		cmpKey = folding.RemoveDiacritics(key)
	}

	leaf, _, err := b.findLeaf(cmpKey, ignoreDiacritics)
	if err != nil {
		return nil, err
	}

	var links []WordArticleLink
	for _, e := range leaf.entries {
		k := e.key
		if ignoreDiacritics {
			k = folding.RemoveDiacritics(k)
		}
		if k == cmpKey {
			links = append(links, e.links...)
		}
	}
	return links, nil
}

// FindCandidates returns up to limit stored words whose folded form begins
// with the folded form of prefix, in key order. A limit of zero or less
// means no limit.
func (b *BtreeIndex) FindCandidates(prefix string, limit int) ([]WordArticleLink, error) {
	key := folding.Fold(prefix)

	root, err := b.readNode(b.info.RootOffset)
	if err != nil {
		return nil, err
	}

	var out []WordArticleLink
	collect := func(n *btreeNode) bool {
		for _, e := range n.entries {
			if e.key < key {
				continue
			}
			if !strings.HasPrefix(e.key, key) {
				return false
			}
			for _, l := range e.links {
				out = append(out, l)
				if limit > 0 && len(out) >= limit {
					return false
				}
			}
		}
		return true
	}

	if root.leaf {
		collect(root)
		return out, nil
	}

	start := childIndex(root.children, key)
	for i := start; i < len(root.children); i++ {
		leaf, err := b.readNode(root.children[i].offset)
		if err != nil {
			return nil, err
		}
		if !collect(leaf) {
			break
		}
	}
	return out, nil
}

// WalkLinks calls fn for every link in key order. fn returning false stops
// the walk.
func (b *BtreeIndex) WalkLinks(fn func(WordArticleLink) bool) error {
	root, err := b.readNode(b.info.RootOffset)
	if err != nil {
		return err
	}

	walkNode := func(n *btreeNode) bool {
		for _, e := range n.entries {
			for _, l := range e.links {
				if !fn(l) {
					return false
				}
			}
		}
		return true
	}

	if root.leaf {
		walkNode(root)
		return nil
	}
	for _, c := range root.children {
		leaf, err := b.readNode(c.offset)
		if err != nil {
			return err
		}
		if !walkNode(leaf) {
			return nil
		}
	}
	return nil
}

// findLeaf descends to the leaf that would contain key.
func (b *BtreeIndex) findLeaf(key string, ignoreDiacritics bool) (*btreeNode, int, error) {
	node, err := b.readNode(b.info.RootOffset)
	if err != nil {
		return nil, 0, err
	}
	if node.leaf {
		return node, 0, nil
	}

	children := node.children
	if ignoreDiacritics {
		children = make([]interiorChild, len(node.children))
		for i, c := range node.children {
			children[i] = interiorChild{firstKey: folding.RemoveDiacritics(c.firstKey), offset: c.offset}
		}
	}
	i := childIndex(children, key)

	leaf, err := b.readNode(children[i].offset)
	if err != nil {
		return nil, 0, err
	}
	return leaf, i, nil
}

// childIndex returns the index of the last child whose first key is <= key,
// or 0 when key sorts before every child.
func childIndex(children []interiorChild, key string) int {
	i := sort.Search(len(children), func(i int) bool {
		return children[i].firstKey > key
	})
	if i > 0 {
		i--
	}
	return i
}

// readNode reads and decodes the node at the given file offset.
func (b *BtreeIndex) readNode(offset uint32) (*btreeNode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var head [12]byte
	if _, err := b.r.ReadAt(head[:4], int64(offset)); err != nil {
		return nil, fmt.Errorf("reading btree node: %w", err)
	}

	switch kind := binary.LittleEndian.Uint32(head[:4]); kind {
	case nodeKindLeaf:
		if _, err := b.r.ReadAt(head[4:12], int64(offset)+4); err != nil {
			return nil, fmt.Errorf("reading btree leaf header: %w", err)
		}
		compressedLen := binary.LittleEndian.Uint32(head[4:8])
		rawLen := binary.LittleEndian.Uint32(head[8:12])

		compressed := make([]byte, compressedLen)
		if _, err := b.r.ReadAt(compressed, int64(offset)+12); err != nil {
			return nil, fmt.Errorf("reading btree leaf: %w", err)
		}

		z, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("decompressing btree leaf: %w", err)
		}
		defer z.Close()

		raw := make([]byte, rawLen)
		if _, err := io.ReadFull(z, raw); err != nil {
			return nil, fmt.Errorf("decompressing btree leaf: %w", err)
		}
		return parseLeaf(raw)

	case nodeKindInterior:
		return b.readInterior(offset)

	default:
		return nil, fmt.Errorf("%w: unknown btree node kind %d", ErrIndexOldOrBad, kind)
	}
}

func (b *BtreeIndex) readInterior(offset uint32) (*btreeNode, error) {
	var head [8]byte
	if _, err := b.r.ReadAt(head[:], int64(offset)); err != nil {
		return nil, fmt.Errorf("reading btree interior node: %w", err)
	}
	count := binary.LittleEndian.Uint32(head[4:8])

	node := &btreeNode{}
	pos := int64(offset) + 8
	for i := uint32(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := b.r.ReadAt(lenBuf[:], pos); err != nil {
			return nil, fmt.Errorf("reading btree child key: %w", err)
		}
		keyLen := binary.LittleEndian.Uint32(lenBuf[:])
		kb := make([]byte, keyLen+4)
		if _, err := b.r.ReadAt(kb, pos+4); err != nil {
			return nil, fmt.Errorf("reading btree child: %w", err)
		}
		node.children = append(node.children, interiorChild{
			firstKey: string(kb[:keyLen]),
			offset:   binary.LittleEndian.Uint32(kb[keyLen:]),
		})
		pos += 4 + int64(keyLen) + 4
	}
	return node, nil
}

func parseLeaf(raw []byte) (*btreeNode, error) {
	node := &btreeNode{leaf: true}

	r := bytes.NewReader(raw)
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		key, err := readLenString(r)
		if err != nil {
			return nil, err
		}
		linkCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		entry := leafEntry{key: key}
		for j := uint32(0); j < linkCount; j++ {
			word, err := readLenString(r)
			if err != nil {
				return nil, err
			}
			off, err := readU32(r)
			if err != nil {
				return nil, err
			}
			entry.links = append(entry.links, WordArticleLink{Word: word, ArticleOffset: off})
		}
		node.entries = append(node.entries, entry)
	}
	return node, nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated btree node", ErrIndexOldOrBad)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readLenString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: truncated btree node", ErrIndexOldOrBad)
	}
	return string(b), nil
}
