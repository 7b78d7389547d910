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

package duplicates

import (
	"fmt"

	"github.com/exascience/elumi/fastq"
)

// DefaultMaxGroupBytes is the ceiling on the total byte span of a group
// before it is yielded as ignored. Groups larger than this are almost
// always the result of a degenerate barcode and would dominate the
// consensus runtime.
const DefaultMaxGroupBytes = 30000

// A UMIGroup is the set of reads sharing one barcode+UMI identifier.
// Index numbers the yielded groups 0..N-1 without gaps. Groups whose
// members span more than the configured byte ceiling carry Ignore=true
// and must be passed through without consensus calling. Consensus is
// filled in downstream.
type UMIGroup struct {
	ID        Identifier
	Index     int
	Records   []*fastq.Record
	AvgQual   float64
	Ignore    bool
	Consensus *fastq.Record
}

// IterOpts configure a GroupIterator.
type IterOpts struct {
	// DuplicatesOnly skips groups with a single member. Skipped groups
	// do not consume an index number.
	DuplicatesOnly bool

	// MaxGroupBytes overrides DefaultMaxGroupBytes when positive.
	MaxGroupBytes int
}

// A GroupIterator yields the duplicate groups of a Map in order of
// first occurrence, fetching the member records from the source FASTQ
// file. It is single-pass and not safe for concurrent use. Singleton
// groups are fetched with a forward-only sequential reader, because
// their positions appear in file order; multi-member groups go through
// the random-access fetcher.
type GroupIterator struct {
	m          *Map
	sequential *fastq.SequentialReader
	random     fastq.Fetcher
	opts       IterOpts
	next       int
	index      int
	group      UMIGroup
	err        error
	closers    []func() error
}

// NewGroupIterator opens the source FASTQ file for group retrieval.
func NewGroupIterator(source string, m *Map, opts IterOpts) (*GroupIterator, error) {
	if opts.MaxGroupBytes <= 0 {
		opts.MaxGroupBytes = DefaultMaxGroupBytes
	}
	sequential, err := fastq.NewSequentialReader(source)
	if err != nil {
		return nil, err
	}
	random, err := fastq.OpenMapped(source)
	if err != nil {
		_ = sequential.Close()
		return nil, err
	}
	return &GroupIterator{
		m:          m,
		sequential: sequential,
		random:     random,
		opts:       opts,
		closers:    []func() error{sequential.Close, random.Close},
	}, nil
}

// Scan advances to the next group. It returns false at the end of the
// map or on the first fetch error, which is terminal; check Err.
func (it *GroupIterator) Scan() bool {
	if it.err != nil {
		return false
	}
	for ; it.next < it.m.Len(); it.next++ {
		id, positions := it.m.At(it.next)
		if it.opts.DuplicatesOnly && len(positions) < 2 {
			continue
		}
		group, err := it.fetch(id, positions)
		if err != nil {
			it.err = fmt.Errorf("%w, while fetching group %v", err, id)
			return false
		}
		group.Index = it.index
		it.index++
		it.group = group
		it.next++
		return true
	}
	return false
}

func (it *GroupIterator) fetch(id Identifier, positions []fastq.Position) (UMIGroup, error) {
	group := UMIGroup{ID: id, Records: make([]*fastq.Record, 0, len(positions))}
	span := 0
	for _, pos := range positions {
		span += pos.Length
	}
	group.Ignore = span > it.opts.MaxGroupBytes
	fetcher := it.random
	if len(positions) == 1 {
		fetcher = it.sequential
	}
	var qualTotal, baseTotal int64
	for _, pos := range positions {
		rec, err := fetcher.Fetch(pos)
		if err != nil {
			return UMIGroup{}, err
		}
		group.Records = append(group.Records, rec)
		qualTotal += fastq.PhredTotal(rec.Qual)
		baseTotal += int64(len(rec.Qual))
	}
	if baseTotal > 0 {
		group.AvgQual = float64(qualTotal) / float64(baseTotal)
	}
	return group, nil
}

// Group returns the group produced by the last successful Scan.
func (it *GroupIterator) Group() *UMIGroup {
	return &it.group
}

// Err returns the first error encountered while fetching groups.
func (it *GroupIterator) Err() error {
	return it.err
}

// Close releases the underlying readers.
func (it *GroupIterator) Close() error {
	var err error
	for _, close := range it.closers {
		if nerr := close(); err == nil {
			err = nerr
		}
	}
	return err
}
