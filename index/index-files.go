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

// Package index implements the positional index file format: a #-prefixed
// JSON metadata line followed by a tab-separated table with one row per
// raw read, recording where the read lives in the source file.
package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// A Row describes one raw read: its identifier, the byte offset and exact
// byte span of the record in the source file, its average PHRED quality
// and base count, and whether upstream filters excluded it from grouping.
type Row struct {
	ID      string
	Pos     int64
	AvgQual float64
	NBases  int
	RecLen  int
	Ignored bool
}

// header is the column header row of the tabular section.
const header = "id\tpos\tavg_qual\tn_bases\trec_len\tignored"

// A ParseError reports a malformed metadata line or table row in an index
// file. Line is 1-based.
type ParseError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid index file %v at line %v: %v: %v", e.Path, e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid index file %v at line %v: %v", e.Path, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// A Reader parses an index file. Rows are pulled one at a time with Scan;
// parse failures are fatal, there is no partial parse.
type Reader struct {
	path    string
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	meta    Metadata
	line    int
	row     Row
	err     error
}

// Open opens an index file, which may be gzip-compressed, and parses its
// metadata line and column header.
func Open(path string) (r *Reader, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open index file %v: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = file.Close()
		}
	}()
	r = &Reader{path: path, file: file}
	var in io.Reader = file
	if filepath.Ext(path) == ".gz" {
		if r.gz, err = gzip.NewReader(file); err != nil {
			return nil, fmt.Errorf("unable to open gzip index file %v: %w", path, err)
		}
		in = r.gz
	}
	r.scanner = bufio.NewScanner(in)
	r.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !r.scanner.Scan() {
		return nil, &ParseError{Path: path, Line: 1, Msg: "missing metadata line", Err: r.scanner.Err()}
	}
	r.line = 1
	meta := r.scanner.Text()
	if !strings.HasPrefix(meta, "#") {
		return nil, &ParseError{Path: path, Line: 1, Msg: "metadata line does not start with #"}
	}
	if err = json.Unmarshal([]byte(meta[1:]), &r.meta); err != nil {
		return nil, &ParseError{Path: path, Line: 1, Msg: "malformed metadata JSON", Err: err}
	}
	if !r.scanner.Scan() {
		return nil, &ParseError{Path: path, Line: 2, Msg: "missing column header", Err: r.scanner.Err()}
	}
	r.line = 2
	if r.scanner.Text() != header {
		return nil, &ParseError{Path: path, Line: 2, Msg: fmt.Sprintf("unexpected column header %q", r.scanner.Text())}
	}
	return r, nil
}

// Metadata returns the parsed metadata header.
func (r *Reader) Metadata() *Metadata {
	return &r.meta
}

// Scan advances to the next row. It returns false at the end of the file
// or on the first malformed row; check Err afterwards.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	if !r.scanner.Scan() {
		r.err = r.scanner.Err()
		return false
	}
	r.line++
	text := r.scanner.Text()
	fields := strings.Split(text, "\t")
	if len(fields) != 6 {
		r.err = &ParseError{Path: r.path, Line: r.line, Msg: fmt.Sprintf("expected 6 columns, got %v in row %q", len(fields), text)}
		return false
	}
	r.row.ID = fields[0]
	fail := func(column string, err error) bool {
		r.err = &ParseError{Path: r.path, Line: r.line, Msg: fmt.Sprintf("invalid %v in row %q", column, text), Err: err}
		return false
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos < 0 {
		return fail("pos", err)
	}
	r.row.Pos = pos
	if r.row.AvgQual, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return fail("avg_qual", err)
	}
	if r.row.NBases, err = strconv.Atoi(fields[3]); err != nil {
		return fail("n_bases", err)
	}
	recLen, err := strconv.Atoi(fields[4])
	if err != nil || recLen <= 0 {
		return fail("rec_len", err)
	}
	r.row.RecLen = recLen
	if r.row.Ignored, err = strconv.ParseBool(fields[5]); err != nil {
		return fail("ignored", err)
	}
	return true
}

// Row returns the row parsed by the last successful Scan. The value is
// overwritten on the next Scan.
func (r *Reader) Row() *Row {
	return &r.row
}

// Err returns the first error encountered while scanning rows.
func (r *Reader) Err() error {
	return r.err
}

// Close closes the index file.
func (r *Reader) Close() error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if nerr := r.file.Close(); err == nil {
		err = nerr
	}
	return err
}

// A Writer produces an index file. Rows are appended to a temporary file
// in the output directory first, because the metadata header can only be
// written once the whole source file has been scanned; Finish prepends
// the metadata and column header and copies the rows over.
type Writer struct {
	Meta Metadata

	path string
	temp *os.File
	out  *bufio.Writer
}

// NewWriter creates an index writer for the given output path.
func NewWriter(path string) (*Writer, error) {
	temp, err := os.CreateTemp(filepath.Dir(path), ".elumi-index-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary index file: %w", err)
	}
	return &Writer{
		path: path,
		temp: temp,
		out:  bufio.NewWriter(temp),
	}, nil
}

// Append writes one row to the tabular section.
func (w *Writer) Append(row *Row) error {
	_, err := fmt.Fprintf(w.out, "%s\t%d\t%.2f\t%d\t%d\t%t\n",
		row.ID, row.Pos, row.AvgQual, row.NBases, row.RecLen, row.Ignored)
	return err
}

// Finish writes the metadata line and column header to the final output
// file, copies the buffered rows over, and removes the temporary file.
func (w *Writer) Finish() (err error) {
	defer func() {
		name := w.temp.Name()
		if nerr := w.temp.Close(); err == nil {
			err = nerr
		}
		if nerr := os.Remove(name); err == nil {
			err = nerr
		}
	}()
	if err := w.out.Flush(); err != nil {
		return err
	}
	if _, err := w.temp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	final, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("unable to create index file %v: %w", w.path, err)
	}
	defer func() {
		if nerr := final.Close(); err == nil {
			err = nerr
		}
	}()
	var out io.Writer = final
	var gz *gzip.Writer
	if filepath.Ext(w.path) == ".gz" {
		gz = gzip.NewWriter(final)
		out = gz
	}
	meta, err := json.Marshal(&w.Meta)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "#%s\n%s\n", meta, header); err != nil {
		return err
	}
	if _, err := io.Copy(out, w.temp); err != nil {
		return err
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}
