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

package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/exascience/pargo/pipeline"
	"github.com/google/uuid"

	"github.com/exascience/elumi/fastq"
)

// BuildOpts configure index construction.
type BuildOpts struct {
	// Regex extracts the barcode+UMI identifier from a read header. Its
	// capture groups, joined with _, form the identifier.
	Regex string

	// SkipUnmatched counts headers the regex does not match instead of
	// failing on them.
	SkipUnmatched bool

	// Filter marks reads outside the length/quality intervals as ignored.
	Filter FilterOpts

	// Version is recorded in the index metadata.
	Version string
}

type rawRecord struct {
	pos    int64
	recLen int
	block  []byte
}

// fastqSource scans a FASTQ file sequentially, tracking exact byte
// offsets, and produces batches of raw record spans for the index
// construction pipeline. It implements the pargo pipeline.Source
// interface.
type fastqSource struct {
	reader *bufio.Reader
	offset int64
	batch  []rawRecord
	err    error
	eof    bool
}

func (s *fastqSource) readRecord() (rawRecord, bool, error) {
	pos := s.offset
	var block []byte
	for line := 0; line < 4; line++ {
		data, err := s.reader.ReadBytes('\n')
		block = append(block, data...)
		s.offset += int64(len(data))
		if err == io.EOF {
			if line == 0 && len(data) == 0 {
				return rawRecord{}, false, nil
			}
			if line < 3 {
				return rawRecord{}, false, &fastq.DecodeError{Pos: pos, Msg: "truncated record at end of file"}
			}
			// final record without a trailing newline
			break
		}
		if err != nil {
			return rawRecord{}, false, &fastq.AccessError{Pos: pos, Op: "read", Err: err}
		}
	}
	return rawRecord{pos: pos, recLen: len(block), block: block}, true, nil
}

// Err implements the method of the pipeline.Source interface.
func (s *fastqSource) Err() error {
	return s.err
}

// Prepare implements the method of the pipeline.Source interface.
func (s *fastqSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (s *fastqSource) Fetch(size int) int {
	if s.err != nil || s.eof {
		s.batch = nil
		return 0
	}
	batch := make([]rawRecord, 0, size)
	for len(batch) < size {
		rec, ok, err := s.readRecord()
		if err != nil {
			s.err = err
			break
		}
		if !ok {
			s.eof = true
			break
		}
		batch = append(batch, rec)
	}
	s.batch = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (s *fastqSource) Data() interface{} {
	return s.batch
}

type parsedRecord struct {
	row       Row
	matched   bool
	captures  int
	header    string
	qualTotal int64
}

// recordsToRows returns a pargo pipeline.Filter that decodes raw record
// spans, extracts barcode+UMI identifiers, and applies the upstream
// filters, producing index rows.
func recordsToRows(re *regexp.Regexp, opts *BuildOpts) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([]rawRecord)
			rows := make([]parsedRecord, 0, len(records))
			for _, record := range records {
				rec, err := fastq.Parse(record.block, record.pos)
				if err != nil {
					p.SetErr(fmt.Errorf("%w, while constructing the index", err))
					return rows
				}
				parsed := parsedRecord{
					row: Row{
						Pos:     record.pos,
						AvgQual: rec.AvgQual(),
						NBases:  len(rec.Seq),
						RecLen:  record.recLen,
						Ignored: !opts.Filter.Keep(rec),
					},
					header:    rec.ID,
					qualTotal: fastq.PhredTotal(rec.Qual),
				}
				// only capture groups that participate in the match
				// contribute to the identifier
				if loc := re.FindStringSubmatchIndex(rec.ID); loc != nil {
					parsed.matched = true
					var parts []string
					for g := 1; 2*g < len(loc); g++ {
						if loc[2*g] >= 0 {
							parts = append(parts, rec.ID[loc[2*g]:loc[2*g+1]])
						}
					}
					parsed.captures = len(parts)
					parsed.row.ID = strings.Join(parts, "_")
				}
				rows = append(rows, parsed)
			}
			return rows
		}
		return
	}
}

// Build constructs a positional index for a FASTQ file and writes it to
// outfile. The source file must be uncompressed, because the recorded
// byte offsets address the raw file for later random access.
func Build(infile, outfile string, opts BuildOpts) (err error) {
	if filepath.Ext(infile) == ".gz" {
		return fmt.Errorf("cannot index compressed file %v: the index records byte offsets for random access, which requires an uncompressed source", infile)
	}
	re, err := regexp.Compile(opts.Regex)
	if err != nil {
		return fmt.Errorf("invalid barcode regex %q: %w", opts.Regex, err)
	}
	file, err := os.Open(infile)
	if err != nil {
		return fmt.Errorf("unable to open file %v: %w", infile, err)
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	writer, err := NewWriter(outfile)
	if err != nil {
		return err
	}

	start := time.Now()
	source := &fastqSource{reader: bufio.NewReaderSize(file, 128*1024)}
	meta := &writer.Meta
	expectedCaptures := -1
	var qualTotal, lenTotal int64

	var p pipeline.Pipeline
	p.Source(source)
	p.SetVariableBatchSize(512, 8192)
	p.Add(
		pipeline.LimitedPar(0, recordsToRows(re, &opts)),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			rows := data.([]parsedRecord)
			for i := range rows {
				parsed := &rows[i]
				meta.ReadCount++
				if meta.ReadCount%50000 == 0 {
					log.Println("Processed:", meta.ReadCount, "reads")
				}
				if parsed.row.Ignored {
					meta.FilteredReads++
				}
				if !parsed.matched {
					if !opts.SkipUnmatched {
						p.SetErr(fmt.Errorf("no identifier match at position %v for header %q with regex %v; pass --skip-unmatched to skip such reads", parsed.row.Pos, parsed.header, re))
						return data
					}
					meta.UnmatchedReadCount++
					continue
				}
				if expectedCaptures < 0 {
					expectedCaptures = parsed.captures
				} else if parsed.captures != expectedCaptures {
					p.SetErr(fmt.Errorf("inconsistent identifier count at position %v: header %q has %v matches, expected %v", parsed.row.Pos, parsed.header, parsed.captures, expectedCaptures))
					return data
				}
				meta.MatchedReadCount++
				qualTotal += parsed.qualTotal
				lenTotal += int64(parsed.row.NBases)
				if err := writer.Append(&parsed.row); err != nil {
					p.SetErr(fmt.Errorf("%w, while writing index rows", err))
					return data
				}
			}
			return data
		})),
	)
	p.Run()
	if err := p.Err(); err != nil {
		return err
	}
	if meta.MatchedReadCount == 0 && !opts.SkipUnmatched {
		return errors.New("empty input: no reads were indexed")
	}

	if meta.MatchedReadCount > 0 {
		meta.AvgQual = float64(qualTotal) / float64(lenTotal)
		meta.AvgLen = float64(lenTotal) / float64(meta.MatchedReadCount)
	}
	meta.Version = opts.Version
	meta.RunID = uuid.New().String()
	meta.IndexDate = time.Now().Format(time.RFC3339)
	meta.Elapsed = time.Since(start).Seconds()
	meta.GB = float64(source.offset) / float64(1<<30)
	if meta.FilePath, err = filepath.Abs(infile); err != nil {
		return err
	}

	log.Printf("Stats: %v matched reads, %v unmatched reads, %v filtered reads, %.1fs runtime",
		meta.MatchedReadCount, meta.UnmatchedReadCount, meta.FilteredReads, meta.Elapsed)
	return writer.Finish()
}
