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
	"fmt"
	"os"

	"github.com/exascience/elumi/index"
	"github.com/exascience/elumi/utils"
)

// IndexHelp is the help string for this command.
const IndexHelp = "index parameters:\n" +
	"elumi index fastq-file index-file\n" +
	"[--preset bc-umi | umi-tools | illumina]\n" +
	"[--regex regex]\n" +
	"[--skip-unmatched]\n" +
	"[--len min,max]\n" +
	"[--qual min,max]\n"

// Index implements the elumi index command.
func Index() error {
	var (
		preset, regex, lenFilter, qualFilter string
		skipUnmatched                        bool
	)

	var flags flag.FlagSet
	flags.StringVar(&preset, "preset", "", "identifier preset for the barcode format of the read headers")
	flags.StringVar(&regex, "regex", "", "custom identifier regex; capture groups form the barcode+UMI identifier")
	flags.BoolVar(&skipUnmatched, "skip-unmatched", false, "count reads whose header does not match instead of failing")
	flags.StringVar(&lenFilter, "len", "", "read length interval, as in 100,inf; reads outside are marked ignored")
	flags.StringVar(&qualFilter, "qual", "", "average quality interval, as in 10,inf; reads outside are marked ignored")
	parseFlags(flags, 4, IndexHelp)

	input := getFilename(os.Args[2], IndexHelp)
	output := getFilename(os.Args[3], IndexHelp)

	opts := index.BuildOpts{
		SkipUnmatched: skipUnmatched,
		Filter:        index.UnboundedFilter,
		Version:       utils.ProgramVersion,
	}
	switch {
	case preset != "" && regex != "":
		return fmt.Errorf("--preset and --regex are mutually exclusive")
	case regex != "":
		opts.Regex = regex
	default:
		if preset == "" {
			preset = "bc-umi"
		}
		re, err := index.PresetRegex(preset)
		if err != nil {
			return err
		}
		opts.Regex = re
	}
	var err error
	if lenFilter != "" {
		if opts.Filter.Len, err = index.ParseInterval(lenFilter); err != nil {
			return err
		}
	}
	if qualFilter != "" {
		if opts.Filter.Qual, err = index.ParseInterval(qualFilter); err != nil {
			return err
		}
	}

	return index.Build(input, output, opts)
}
