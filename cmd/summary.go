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
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"os"
	"sort"

	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/index"
)

// SummaryHelp is the help string for this command.
const SummaryHelp = "summary parameters:\n" +
	"elumi summary index-file\n" +
	"[--html report-file]\n"

//go:embed report.gohtml
var reportTemplate string

type sizeCount struct {
	Size, Count int
}

type report struct {
	Metadata     *index.Metadata
	Statistics   *duplicates.Statistics
	Distribution []sizeCount
}

// Summary implements the elumi summary command.
func Summary() (err error) {
	var htmlFile string

	var flags flag.FlagSet
	flags.StringVar(&htmlFile, "html", "", "additionally render an HTML report to the specified file")
	parseFlags(flags, 3, SummaryHelp)

	input := getFilename(os.Args[2], SummaryHelp)

	reader, err := index.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	_, stats, err := duplicates.BuildMap(reader)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if htmlFile == "" {
		return nil
	}
	t, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return err
	}
	r := report{Metadata: reader.Metadata(), Statistics: stats}
	for size, count := range stats.Distribution {
		r.Distribution = append(r.Distribution, sizeCount{Size: size, Count: count})
	}
	sort.Slice(r.Distribution, func(i, j int) bool {
		return r.Distribution[i].Size < r.Distribution[j].Size
	})
	file, err := os.Create(htmlFile)
	if err != nil {
		return fmt.Errorf("unable to create report file %v: %w", htmlFile, err)
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	return t.Execute(file, &r)
}
