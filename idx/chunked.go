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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBadBlockID indicates a chunk block id outside the chunk region.
var ErrBadBlockID = errors.New("bad chunk block id")

// ChunkWriter appends size-prefixed blocks to the index file. A block id is
// the absolute file offset of the block's first payload byte; ids are
// assigned when a block is started and remain valid after the writer
// finishes.
type ChunkWriter struct {
	w io.WriteSeeker

	regionStart uint32
	buf         []byte
	blockID     uint32
	started     bool
}

// NewChunkWriter creates a writer whose chunk region begins at the current
// position of w.
func NewChunkWriter(w io.WriteSeeker) (*ChunkWriter, error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating chunk region: %w", err)
	}
	return &ChunkWriter{w: w, regionStart: uint32(pos)}, nil
}

// StartNewBlock flushes any block in progress and returns the id of a new
// empty block.
func (c *ChunkWriter) StartNewBlock() (uint32, error) {
	if err := c.flush(); err != nil {
		return 0, err
	}

	pos, err := c.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("locating chunk block: %w", err)
	}

	c.blockID = uint32(pos) + 4
	c.started = true
	return c.blockID, nil
}

// AddToBlock appends bytes to the block in progress.
func (c *ChunkWriter) AddToBlock(b []byte) {
	c.buf = append(c.buf, b...)
}

// AddUint32 appends a little-endian u32 to the block in progress.
func (c *ChunkWriter) AddUint32(v uint32) {
	c.buf = binary.LittleEndian.AppendUint32(c.buf, v)
}

// Finish flushes the final block and returns the offset of the chunk
// region.
func (c *ChunkWriter) Finish() (uint32, error) {
	if err := c.flush(); err != nil {
		return 0, err
	}
	return c.regionStart, nil
}

func (c *ChunkWriter) flush() error {
	if !c.started {
		return nil
	}

	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(c.buf)))
	if _, err := c.w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("writing chunk block size: %w", err)
	}
	if _, err := c.w.Write(c.buf); err != nil {
		return fmt.Errorf("writing chunk block: %w", err)
	}

	c.buf = c.buf[:0]
	c.started = false
	return nil
}

// ChunkReader provides random access to chunk blocks in an index file.
// Concurrent use must be serialized by the caller.
type ChunkReader struct {
	r io.ReaderAt

	// [start, end) bounds of the region blocks may live in.
	start uint32
	end   uint32
}

// NewChunkReader creates a reader over the chunk region starting at
// chunksOffset. end bounds block payloads; the end of the index file is a
// safe value since blocks never extend past it.
func NewChunkReader(r io.ReaderAt, chunksOffset, end uint32) *ChunkReader {
	return &ChunkReader{r: r, start: chunksOffset, end: end}
}

// GetBlock reads the block with the given id.
func (c *ChunkReader) GetBlock(id uint32) ([]byte, error) {
	if id < c.start+4 || id > c.end {
		return nil, fmt.Errorf("%w: %d", ErrBadBlockID, id)
	}

	var sizeBuf [4]byte
	if _, err := c.r.ReadAt(sizeBuf[:], int64(id)-4); err != nil {
		return nil, fmt.Errorf("reading chunk block size: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if id+size > c.end {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrBadBlockID, id, size)
	}

	b := make([]byte, size)
	if _, err := c.r.ReadAt(b, int64(id)); err != nil {
		return nil, fmt.Errorf("reading chunk block: %w", err)
	}
	return b, nil
}
