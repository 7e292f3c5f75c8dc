// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package idx implements the persistent dictionary index file.
//
// An index file is self-describing and contains, in order:
//  1. A fixed-size little-endian header (see Header).
//  2. The dictionary name and, optionally, a preferred sound dictionary
//     name, each as a u32 length followed by UTF-8 bytes.
//  3. The chunk region: a contiguous sequence of size-prefixed blocks
//     holding article metadata and the abbreviation table.
//  4. A B-tree mapping folded headwords to article chunk blocks.
//  5. Optionally, a second B-tree indexing a companion resource archive.
//
// The header's ChunksOffset, IndexRootOffset and ZipIndexRootOffset fields
// locate the regions.
package idx
