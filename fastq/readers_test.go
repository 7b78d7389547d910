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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestFile lays out records back to back and returns the file name
// with the exact position of every record.
func writeTestFile(t *testing.T, records []*Record) (string, []Position) {
	t.Helper()
	var data []byte
	positions := make([]Position, 0, len(records))
	for _, rec := range records {
		start := len(data)
		data = rec.AppendFastq(data)
		positions = append(positions, Position{Pos: int64(start), Length: len(data) - start})
	}
	name := filepath.Join(t.TempDir(), "reads.fastq")
	require.NoError(t, os.WriteFile(name, data, 0666))
	return name, positions
}

var testRecords = []*Record{
	{ID: "read1 AAAA_CCCC", Seq: "ACGT", Qual: "IIII"},
	{ID: "read2 AAAA_CCCC", Seq: "ACGTACGT", Qual: "IIIIIIII"},
	{ID: "read3 GGGG_TTTT", Seq: "TTTT", Qual: "!!!!"},
}

func TestFetchersAgree(t *testing.T) {
	name, positions := writeTestFile(t, testRecords)

	sequential, err := NewSequentialReader(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, sequential.Close()) }()
	mapped, err := OpenMapped(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, mapped.Close()) }()
	file, err := os.Open(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, file.Close()) }()
	readAt := NewReadAtReader(file)

	for i, pos := range positions {
		want := testRecords[i]
		for _, fetcher := range []Fetcher{sequential, mapped, readAt} {
			rec, err := fetcher.Fetch(pos)
			require.NoError(t, err)
			assert.Equal(t, want, rec)
		}
	}
}

func TestSequentialReaderRefusesBackwards(t *testing.T) {
	name, positions := writeTestFile(t, testRecords)
	sequential, err := NewSequentialReader(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, sequential.Close()) }()

	_, err = sequential.Fetch(positions[2])
	require.NoError(t, err)
	_, err = sequential.Fetch(positions[0])
	var accessErr *AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, "seek", accessErr.Op)
}

func TestMappedReaderBounds(t *testing.T) {
	name, positions := writeTestFile(t, testRecords)
	mapped, err := OpenMapped(name)
	require.NoError(t, err)
	defer func() { require.NoError(t, mapped.Close()) }()

	last := positions[len(positions)-1]
	_, err = mapped.Fetch(Position{Pos: last.Pos, Length: last.Length + 1})
	var accessErr *AccessError
	require.ErrorAs(t, err, &accessErr)
	_, err = mapped.Fetch(Position{Pos: -1, Length: 4})
	assert.Error(t, err)
}

func TestOpenMappedEmptyFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "empty.fastq")
	require.NoError(t, os.WriteFile(name, nil, 0666))
	mapped, err := OpenMapped(name)
	require.NoError(t, err)
	_, err = mapped.Fetch(Position{Pos: 0, Length: 1})
	assert.Error(t, err)
	require.NoError(t, mapped.Close())
}
