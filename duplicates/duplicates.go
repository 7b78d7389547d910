// elUMI: a high-performance tool for consensus calling duplicate reads in FASTQ files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elumi/blob/master/LICENSE.txt>.

// Package duplicates groups indexed reads that share a barcode+UMI
// identifier and computes duplication statistics over the groups.
package duplicates

import (
	"fmt"
	"strings"

	"github.com/exascience/elumi/fastq"
	"github.com/exascience/elumi/index"
)

// An Identifier is a barcode+UMI pair extracted from a read header. Two
// reads are duplicates when their identifiers are equal. The zero tail
// is valid: identifiers without a separator have only a head.
type Identifier struct {
	Head string
	Tail string
}

// ParseIdentifier splits an identifier string at the first underscore.
// A string without an underscore becomes a head-only identifier.
func ParseIdentifier(s string) Identifier {
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return Identifier{Head: s[:i], Tail: s[i+1:]}
	}
	return Identifier{Head: s}
}

// String formats the identifier the way it appeared in the index.
func (id Identifier) String() string {
	if id.Tail == "" {
		return id.Head
	}
	return id.Head + "_" + id.Tail
}

// Statistics summarize the duplication structure of an indexed file.
// Ignored reads are excluded from every figure except IgnoredReads.
type Statistics struct {
	// TotalReads counts the reads eligible for grouping.
	TotalReads int `json:"total_reads"`

	// IgnoredReads counts reads excluded by the upstream index filters.
	IgnoredReads int `json:"ignored_reads"`

	// DuplicateReads counts reads that belong to a group of size > 1.
	DuplicateReads int `json:"duplicate_reads"`

	// DuplicateGroups counts groups of size > 1.
	DuplicateGroups int `json:"duplicate_groups"`

	// ProportionDuplicate is DuplicateReads / TotalReads.
	ProportionDuplicate float64 `json:"proportion_duplicate"`

	// Distribution maps group size to the number of groups of that size.
	Distribution map[int]int `json:"distribution"`
}

// A Map collects the file positions of all reads per identifier, in
// order of first occurrence. Within a group, positions are in file
// order because the index is scanned sequentially.
type Map struct {
	ids       []Identifier
	byID      map[Identifier]int
	positions [][]fastq.Position
	byPos     map[int64]Identifier
}

// Len returns the number of distinct identifiers.
func (m *Map) Len() int {
	return len(m.ids)
}

// At returns the identifier and member positions of the group with the
// given first-occurrence index.
func (m *Map) At(i int) (Identifier, []fastq.Position) {
	return m.ids[i], m.positions[i]
}

// Identify returns the identifier of the read at the given file
// position, for callers that look up groups by member position.
func (m *Map) Identify(pos int64) (Identifier, bool) {
	id, ok := m.byPos[pos]
	return id, ok
}

func (m *Map) add(id Identifier, pos fastq.Position) error {
	if prev, ok := m.byPos[pos.Pos]; ok {
		return fmt.Errorf("index lists position %v twice, for identifiers %v and %v", pos.Pos, prev, id)
	}
	m.byPos[pos.Pos] = id
	i, ok := m.byID[id]
	if !ok {
		i = len(m.ids)
		m.byID[id] = i
		m.ids = append(m.ids, id)
		m.positions = append(m.positions, nil)
	}
	m.positions[i] = append(m.positions[i], pos)
	return nil
}

// BuildMap scans an index and collects the non-ignored reads into
// duplicate groups, computing duplication statistics along the way.
func BuildMap(r *index.Reader) (*Map, *Statistics, error) {
	m := &Map{
		byID:  make(map[Identifier]int),
		byPos: make(map[int64]Identifier),
	}
	stats := &Statistics{Distribution: make(map[int]int)}
	for r.Scan() {
		row := r.Row()
		if row.Ignored {
			stats.IgnoredReads++
			continue
		}
		stats.TotalReads++
		pos := fastq.Position{Pos: row.Pos, Length: row.RecLen}
		if err := m.add(ParseIdentifier(row.ID), pos); err != nil {
			return nil, nil, err
		}
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	for _, positions := range m.positions {
		size := len(positions)
		stats.Distribution[size]++
		if size > 1 {
			stats.DuplicateGroups++
			stats.DuplicateReads += size
		}
	}
	if stats.TotalReads > 0 {
		stats.ProportionDuplicate = float64(stats.DuplicateReads) / float64(stats.TotalReads)
	}
	return m, stats, nil
}
