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

// Package consensus turns a stream of duplicate groups into output
// records: one consensus record per multi-member group, passthrough for
// singletons and oversized groups. Groups are processed on a worker
// pool but written strictly in discovery order, so the output is the
// same for every thread count.
package consensus

import (
	"fmt"

	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/fastq"
	"github.com/exascience/elumi/ordered"
)

// An Engine computes the consensus of one group's ordered members.
// Implementations must be safe for concurrent use.
type Engine interface {
	Consensus(seqs, quals [][]byte) (seq, qual []byte, err error)
}

// Opts configure a consensus calling run.
type Opts struct {
	// Threads is the size of the worker pool.
	Threads int

	// Capacity bounds the in-flight groups; zero defaults to 3x Threads.
	Capacity int

	// ReportOriginals additionally emits each member of a multi-member
	// group, immediately before its group's consensus record.
	ReportOriginals bool
}

// formatGroup renders all output records of one group as a single byte
// block, so the pipeline reorders whole groups and members can never
// interleave across groups.
func formatGroup(g *duplicates.UMIGroup, engine Engine, reportOriginals bool) ([]byte, error) {
	n := len(g.Records)
	var out []byte
	switch {
	case g.Ignore:
		for _, rec := range g.Records {
			tags := fastq.Tags{Type: fastq.Ignored, Group: g.Index, Size: n}
			out = (&fastq.Record{ID: tags.Append(rec.ID), Seq: rec.Seq, Qual: rec.Qual}).AppendFastq(out)
		}
	case n == 1:
		rec := g.Records[0]
		tags := fastq.Tags{Type: fastq.Singleton, Group: g.Index, Size: 1, AvgQual: g.AvgQual}
		out = (&fastq.Record{ID: tags.Append(rec.ID), Seq: rec.Seq, Qual: rec.Qual}).AppendFastq(out)
	default:
		if reportOriginals {
			for k, rec := range g.Records {
				tags := fastq.Tags{Type: fastq.Original, Group: g.Index, Size: n, Member: k + 1}
				out = (&fastq.Record{ID: tags.Append(rec.ID), Seq: rec.Seq, Qual: rec.Qual}).AppendFastq(out)
			}
		}
		seqs := make([][]byte, n)
		quals := make([][]byte, n)
		for k, rec := range g.Records {
			seqs[k] = []byte(rec.Seq)
			quals[k] = []byte(rec.Qual)
		}
		seq, qual, err := engine.Consensus(seqs, quals)
		if err != nil {
			return nil, fmt.Errorf("%w, while calling a consensus for group %v", err, g.ID)
		}
		tags := fastq.Tags{Type: fastq.Consensus, Group: g.Index, Size: n, AvgQual: g.AvgQual}
		g.Consensus = &fastq.Record{ID: tags.Append(g.ID.String()), Seq: string(seq), Qual: string(qual)}
		out = g.Consensus.AppendFastq(out)
	}
	return out, nil
}

// Call drains the group iterator, calls consensus sequences on a pool
// of opts.Threads workers, and writes the output records in group
// discovery order. The iterator is driven from a single goroutine;
// workers only see materialized in-memory groups.
func Call(it *duplicates.GroupIterator, w *fastq.Writer, engine Engine, opts Opts) error {
	cfg := ordered.Config{Threads: opts.Threads, Capacity: opts.Capacity}
	return ordered.Map(cfg,
		func() (duplicates.UMIGroup, bool, error) {
			if it.Scan() {
				return *it.Group(), true, nil
			}
			return duplicates.UMIGroup{}, false, it.Err()
		},
		func(g duplicates.UMIGroup) ([]byte, error) {
			return formatGroup(&g, engine, opts.ReportOriginals)
		},
		func(block []byte) error {
			_, err := w.Write(block)
			return err
		})
}
