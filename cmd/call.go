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

package cmd

import (
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/exascience/elumi/align"
	"github.com/exascience/elumi/consensus"
	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/fastq"
	"github.com/exascience/elumi/index"
)

// CallHelp is the help string for this command.
const CallHelp = "call parameters:\n" +
	"elumi call fastq-file index-file\n" +
	"[--output fastq-file]\n" +
	"[--threads number]\n" +
	"[--capacity number]\n" +
	"[--duplicates-only]\n" +
	"[--report-originals]\n" +
	"[--max-group-bytes number]\n"

// Call implements the elumi call command.
func Call() (err error) {
	var (
		output                          string
		threads, capacity, maxGroup     int
		duplicatesOnly, reportOriginals bool
	)

	var flags flag.FlagSet
	flags.StringVar(&output, "output", "", "write output to the specified file instead of stdout; .gz compresses")
	flags.IntVar(&threads, "threads", runtime.NumCPU(), "number of worker threads")
	flags.IntVar(&capacity, "capacity", 0, "maximum number of in-flight groups; defaults to 3x the thread count")
	flags.BoolVar(&duplicatesOnly, "duplicates-only", false, "only output groups with at least two members")
	flags.BoolVar(&reportOriginals, "report-originals", false, "also output the original members of each consensus group")
	flags.IntVar(&maxGroup, "max-group-bytes", duplicates.DefaultMaxGroupBytes, "byte ceiling above which a group is passed through unaligned")
	parseFlags(flags, 4, CallHelp)

	input := getFilename(os.Args[2], CallHelp)
	indexFile := getFilename(os.Args[3], CallHelp)

	reader, err := index.Open(indexFile)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	m, stats, err := duplicates.BuildMap(reader)
	if err != nil {
		return err
	}
	log.Printf("Collected %v groups from %v reads (%.2f%% duplicates, %v ignored)",
		m.Len(), stats.TotalReads, 100*stats.ProportionDuplicate, stats.IgnoredReads)

	it, err := duplicates.NewGroupIterator(input, m, duplicates.IterOpts{
		DuplicatesOnly: duplicatesOnly,
		MaxGroupBytes:  maxGroup,
	})
	if err != nil {
		return err
	}
	defer func() {
		if nerr := it.Close(); err == nil {
			err = nerr
		}
	}()
	writer, err := fastq.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := writer.Close(); err == nil {
			err = nerr
		}
	}()

	engine := align.NewEngine(align.DefaultScheme)
	return consensus.Call(it, writer, engine, consensus.Opts{
		Threads:         threads,
		Capacity:        capacity,
		ReportOriginals: reportOriginals,
	})
}
