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

package consensus

import (
	"context"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/fastq"
)

// groupSource adapts a GroupIterator to the pargo pipeline.Source
// interface, producing batches of materialized groups.
type groupSource struct {
	it    *duplicates.GroupIterator
	batch []duplicates.UMIGroup
	err   error
	eof   bool
}

// Err implements the method of the pipeline.Source interface.
func (s *groupSource) Err() error {
	return s.err
}

// Prepare implements the method of the pipeline.Source interface.
func (s *groupSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (s *groupSource) Fetch(size int) int {
	if s.err != nil || s.eof {
		s.batch = nil
		return 0
	}
	batch := make([]duplicates.UMIGroup, 0, size)
	for len(batch) < size {
		if !s.it.Scan() {
			s.eof = true
			s.err = s.it.Err()
			break
		}
		batch = append(batch, *s.it.Group())
	}
	s.batch = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (s *groupSource) Data() interface{} {
	return s.batch
}

// tagMembers returns a pargo pipeline.Filter that renders every member
// of each group as an ORIG-tagged record, one byte block per group.
func tagMembers() pipeline.Filter {
	return func(_ *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			groups := data.([]duplicates.UMIGroup)
			blocks := make([][]byte, 0, len(groups))
			for i := range groups {
				g := &groups[i]
				n := len(g.Records)
				var out []byte
				for k, rec := range g.Records {
					tags := fastq.Tags{Type: fastq.Original, Group: g.Index, Size: n, Member: k + 1}
					out = (&fastq.Record{ID: tags.Append(rec.ID), Seq: rec.Seq, Qual: rec.Qual}).AppendFastq(out)
				}
				blocks = append(blocks, out)
			}
			return blocks
		}
		return
	}
}

// Group streams every group in discovery order and writes all members
// as ORIG-tagged records, without calling consensus sequences.
func Group(it *duplicates.GroupIterator, w *fastq.Writer) error {
	source := &groupSource{it: it}
	var p pipeline.Pipeline
	p.Source(source)
	p.SetVariableBatchSize(16, 512)
	p.Add(
		pipeline.LimitedPar(0, tagMembers()),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			for _, block := range data.([][]byte) {
				if _, err := w.Write(block); err != nil {
					p.SetErr(err)
					return data
				}
			}
			return data
		})),
	)
	p.Run()
	return p.Err()
}
