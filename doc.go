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

// Package dsldict implements a dictionary engine for Lingvo DSL
// dictionaries in pure Go.
//
// A DSL dictionary consists of several files:
//  1. A .dsl source file with the dictionary entries. The source can be
//     compressed using the dictzip format (.dsl.dz).
//  2. An optional _abrv.dsl[.dz] companion with abbreviation expansions.
//  3. An optional .files.zip companion archive with media resources.
//
// The engine builds a persistent index file over the source (headword
// B-tree, article metadata, abbreviation table, resource archive index)
// and serves lookup and rendering requests against it. Article bodies are
// decoded from the original source at recorded byte offsets, expanded
// (optional parts, tildes, embedded cards) and rendered to HTML.
package dsldict
