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
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// A Fetcher retrieves one raw record from the source file given its exact
// byte offset and length.
type Fetcher interface {
	Fetch(pos Position) (*Record, error)
}

// A SequentialReader is a forward-only buffered cursor over the source
// file. It serves records that are visited in increasing file order, and
// refuses to move backwards. It is not safe for concurrent use.
type SequentialReader struct {
	reader *bufio.Reader
	file   *os.File
	offset int64
	buffer []byte
}

// NewSequentialReader opens the given file as a forward-only buffered
// cursor, starting at offset 0.
func NewSequentialReader(name string) (*SequentialReader, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %v: %w", name, err)
	}
	return &SequentialReader{
		reader: bufio.NewReaderSize(file, 128*1024),
		file:   file,
	}, nil
}

// Fetch reads the record at the given position. The position must not be
// behind the cursor.
func (r *SequentialReader) Fetch(pos Position) (*Record, error) {
	if pos.Pos < r.offset {
		return nil, &AccessError{Pos: pos.Pos, Op: "seek", Err: fmt.Errorf("sequential cursor already at position %v", r.offset)}
	}
	if skip := pos.Pos - r.offset; skip > 0 {
		if _, err := r.reader.Discard(int(skip)); err != nil {
			return nil, &AccessError{Pos: pos.Pos, Op: "seek", Err: err}
		}
		r.offset = pos.Pos
	}
	if cap(r.buffer) < pos.Length {
		r.buffer = make([]byte, pos.Length)
	}
	block := r.buffer[:pos.Length]
	if _, err := io.ReadFull(r.reader, block); err != nil {
		return nil, &AccessError{Pos: pos.Pos, Op: fmt.Sprintf("read %v bytes", pos.Length), Err: err}
	}
	r.offset += int64(pos.Length)
	return Parse(block, pos.Pos)
}

// Close closes the underlying file.
func (r *SequentialReader) Close() error {
	return r.file.Close()
}

// A MappedReader is a random-offset cursor over a memory-mapped source
// file. All access is bounds-checked slicing; fetches do not mutate any
// cursor state, so a MappedReader can be shared between goroutines.
type MappedReader struct {
	data []byte
	file *os.File
}

// OpenMapped memory-maps the given file read-only for random record
// access.
func OpenMapped(name string) (*MappedReader, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %v: %w", name, err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("unable to stat file %v: %w", name, err)
	}
	if stat.Size() == 0 {
		return &MappedReader{file: file}, nil
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("unable to mmap file %v: %w", name, err)
	}
	return &MappedReader{data: data, file: file}, nil
}

// Fetch decodes the record in the mapped byte span at the given position.
func (r *MappedReader) Fetch(pos Position) (*Record, error) {
	end := pos.Pos + int64(pos.Length)
	if pos.Pos < 0 || end > int64(len(r.data)) {
		return nil, &AccessError{Pos: pos.Pos, Op: fmt.Sprintf("read %v bytes", pos.Length), Err: fmt.Errorf("span [%v, %v) exceeds file size %v", pos.Pos, end, len(r.data))}
	}
	return Parse(r.data[pos.Pos:end], pos.Pos)
}

// Close unmaps and closes the file.
func (r *MappedReader) Close() error {
	var err error
	if r.data != nil {
		err = unix.Munmap(r.data)
		r.data = nil
	}
	if nerr := r.file.Close(); err == nil {
		err = nerr
	}
	return err
}

// A ReadAtReader is a random-offset cursor over any io.ReaderAt. It is the
// fallback for inputs that cannot be memory-mapped.
type ReadAtReader struct {
	reader io.ReaderAt
}

// NewReadAtReader returns a random-offset cursor over r.
func NewReadAtReader(r io.ReaderAt) *ReadAtReader {
	return &ReadAtReader{reader: r}
}

// Fetch reads and decodes the record at the given position.
func (r *ReadAtReader) Fetch(pos Position) (*Record, error) {
	block := make([]byte, pos.Length)
	if _, err := r.reader.ReadAt(block, pos.Pos); err != nil {
		return nil, &AccessError{Pos: pos.Pos, Op: fmt.Sprintf("read %v bytes", pos.Length), Err: err}
	}
	return Parse(block, pos.Pos)
}
