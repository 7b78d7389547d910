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

package fastq

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// A Writer is a buffered output sink for formatted records. Output is
// gzip-compressed when the filename ends in .gz.
type Writer struct {
	out  *bufio.Writer
	gz   *gzip.Writer
	file *os.File
}

// Create opens an output sink for the given filename. If the name is
// "/dev/stdout" or empty, output goes to standard output.
func Create(name string) (*Writer, error) {
	w := new(Writer)
	switch name {
	case "", "/dev/stdout":
		w.out = bufio.NewWriter(os.Stdout)
	default:
		file, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		w.file = file
		if filepath.Ext(name) == ".gz" {
			w.gz = gzip.NewWriter(file)
			w.out = bufio.NewWriter(w.gz)
		} else {
			w.out = bufio.NewWriter(file)
		}
	}
	return w, nil
}

// NewWriter wraps an arbitrary io.Writer as an uncompressed output sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

// Close flushes all buffers and closes the compressor and the file, in
// that order.
func (w *Writer) Close() error {
	err := w.out.Flush()
	if w.gz != nil {
		if nerr := w.gz.Close(); err == nil {
			err = nerr
		}
	}
	if w.file != nil {
		if nerr := w.file.Close(); err == nil {
			err = nerr
		}
	}
	return err
}
