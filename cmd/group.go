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
	"os"

	"github.com/exascience/elumi/consensus"
	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/fastq"
	"github.com/exascience/elumi/index"
)

// GroupHelp is the help string for this command.
const GroupHelp = "group parameters:\n" +
	"elumi group fastq-file index-file\n" +
	"[--output fastq-file]\n" +
	"[--duplicates-only]\n"

// Group implements the elumi group command.
func Group() (err error) {
	var (
		output         string
		duplicatesOnly bool
	)

	var flags flag.FlagSet
	flags.StringVar(&output, "output", "", "write output to the specified file instead of stdout; .gz compresses")
	flags.BoolVar(&duplicatesOnly, "duplicates-only", false, "only output groups with at least two members")
	parseFlags(flags, 4, GroupHelp)

	input := getFilename(os.Args[2], GroupHelp)
	indexFile := getFilename(os.Args[3], GroupHelp)

	reader, err := index.Open(indexFile)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	m, _, err := duplicates.BuildMap(reader)
	if err != nil {
		return err
	}
	it, err := duplicates.NewGroupIterator(input, m, duplicates.IterOpts{DuplicatesOnly: duplicatesOnly})
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

	return consensus.Group(it, writer)
}
