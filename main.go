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

// elUMI is a high-performance tool for grouping duplicate reads in
// barcoded .fastq files and calling one consensus read per group.
//
// Please see https://github.com/exascience/elumi for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/elumi/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: index, summary, call, group")
	fmt.Fprint(os.Stderr, "\n", cmd.IndexHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SummaryHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CallHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.GroupHelp)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("elumi: ")
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = cmd.Index()
	case "summary":
		err = cmd.Summary()
	case "call":
		err = cmd.Call()
	case "group":
		err = cmd.Group()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
