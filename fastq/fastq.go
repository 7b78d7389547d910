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

// Package fastq implements reading and writing of 4-line FASTQ records,
// including random access to individual records by exact byte offset and
// length.
package fastq

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// A Record is one fully materialized read.
type Record struct {
	ID   string
	Seq  string
	Qual string
}

// A Position locates one raw record in the source file: the byte offset
// where the record starts, and the exact byte span of the record
// including the trailing newline.
type Position struct {
	Pos    int64
	Length int
}

// A DecodeError reports an invalid raw record at a known byte offset.
type DecodeError struct {
	Pos int64
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid FASTQ record at position %v: %v: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid FASTQ record at position %v: %v", e.Pos, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// An AccessError reports a failed seek or read against the source file.
type AccessError struct {
	Pos int64
	Op  string
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("unable to %v at position %v: %v", e.Op, e.Pos, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// phredTable maps quality characters to their PHRED score, with a parallel
// error flag for characters outside the printable ASCII-33 range.
var phredTable [512]int16

func init() {
	for char := 0; char < 256; char++ {
		pos := char << 1
		if (char < 33) || (char > 126) {
			phredTable[pos] = 0
			phredTable[pos+1] = 1
		} else {
			phredTable[pos] = int16(char - 33)
			phredTable[pos+1] = 0
		}
	}
}

// PhredTotal sums the PHRED scores of all characters in a quality string.
func PhredTotal(qual string) (total int64) {
	for i := 0; i < len(qual); i++ {
		total += int64(phredTable[int(qual[i])<<1])
	}
	return total
}

// AvgQual returns the mean PHRED quality of the record, or 0 for an empty
// quality string.
func (r *Record) AvgQual() float64 {
	if len(r.Qual) == 0 {
		return 0
	}
	return float64(PhredTotal(r.Qual)) / float64(len(r.Qual))
}

func validQual(qual string) bool {
	var invalid int16
	for i := 0; i < len(qual); i++ {
		invalid |= phredTable[int(qual[i])<<1+1]
	}
	return invalid == 0
}

func chompLine(data []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil, len(data) > 0
	}
	return data[:i], data[i+1:], true
}

// Parse decodes the 4-line raw layout of a single record fetched from the
// given byte offset: an @-prefixed id line, the sequence line, a +-prefixed
// separator line, and the quality line.
func Parse(data []byte, pos int64) (*Record, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Pos: pos, Msg: "record is not valid UTF-8"}
	}
	id, rest, ok := chompLine(data)
	if !ok || len(id) == 0 || id[0] != '@' {
		return nil, &DecodeError{Pos: pos, Msg: "missing @ on id line"}
	}
	seq, rest, ok := chompLine(rest)
	if !ok {
		return nil, &DecodeError{Pos: pos, Msg: "missing sequence line"}
	}
	sep, rest, ok := chompLine(rest)
	if !ok || len(sep) == 0 || sep[0] != '+' {
		return nil, &DecodeError{Pos: pos, Msg: "missing + on separator line"}
	}
	qual, _, ok := chompLine(rest)
	if !ok {
		return nil, &DecodeError{Pos: pos, Msg: "missing quality line"}
	}
	if len(seq) != len(qual) {
		return nil, &DecodeError{Pos: pos, Msg: fmt.Sprintf("sequence length %v does not match quality length %v", len(seq), len(qual))}
	}
	if !validQual(string(qual)) {
		return nil, &DecodeError{Pos: pos, Msg: "quality line contains characters outside the PHRED+33 range"}
	}
	return &Record{
		ID:   string(id[1:]),
		Seq:  string(seq),
		Qual: string(qual),
	}, nil
}

// AppendFastq formats the record in 4-line FASTQ layout, appending to buf.
func (r *Record) AppendFastq(buf []byte) []byte {
	buf = append(buf, '@')
	buf = append(buf, r.ID...)
	buf = append(buf, '\n')
	buf = append(buf, r.Seq...)
	buf = append(buf, "\n+\n"...)
	buf = append(buf, r.Qual...)
	buf = append(buf, '\n')
	return buf
}

// AppendFasta formats the record in 2-line FASTA layout, appending to buf.
func (r *Record) AppendFasta(buf []byte) []byte {
	buf = append(buf, '>')
	buf = append(buf, r.ID...)
	buf = append(buf, '\n')
	buf = append(buf, r.Seq...)
	buf = append(buf, '\n')
	return buf
}
