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
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRows = []Row{
	{ID: "AAAA_CCCC", Pos: 0, AvgQual: 40, NBases: 4, RecLen: 29, Ignored: false},
	{ID: "AAAA_CCCC", Pos: 29, AvgQual: 40, NBases: 8, RecLen: 37, Ignored: false},
	{ID: "GGGG_TTTT", Pos: 66, AvgQual: 0, NBases: 4, RecLen: 29, Ignored: true},
}

func writeTestIndex(t *testing.T, path string, rows []Row) {
	t.Helper()
	writer, err := NewWriter(path)
	require.NoError(t, err)
	for i := range rows {
		require.NoError(t, writer.Append(&rows[i]))
	}
	writer.Meta = Metadata{
		Version:          "1.2.0",
		RunID:            "93ccee12-5066-4d33-8c02-fc6b0377a65d",
		FilePath:         "/data/reads.fastq",
		ReadCount:        len(rows),
		MatchedReadCount: len(rows),
	}
	require.NoError(t, writer.Finish())
}

func TestIndexRoundTrip(t *testing.T) {
	for _, name := range []string{"reads.index", "reads.index.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			writeTestIndex(t, path, testRows)

			reader, err := Open(path)
			require.NoError(t, err)
			defer func() { require.NoError(t, reader.Close()) }()
			assert.Equal(t, "1.2.0", reader.Metadata().Version)
			assert.Equal(t, len(testRows), reader.Metadata().ReadCount)
			var rows []Row
			for reader.Scan() {
				rows = append(rows, *reader.Row())
			}
			require.NoError(t, reader.Err())
			assert.Equal(t, testRows, rows)
		})
	}
}

func TestIndexWriterRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	writeTestIndex(t, filepath.Join(dir, "reads.index"), testRows)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reads.index", entries[0].Name())
}

func TestIndexParseErrors(t *testing.T) {
	for _, test := range []struct {
		name, content string
	}{
		{"empty", ""},
		{"no hash", "{}\n" + header + "\n"},
		{"bad json", "#{\n" + header + "\n"},
		{"missing header", "#{}\n"},
		{"wrong header", "#{}\nid\tpos\n"},
		{"short row", "#{}\n" + header + "\nAAAA\t0\t40.00\n"},
		{"bad pos", "#{}\n" + header + "\nAAAA\t-3\t40.00\t4\t29\tfalse\n"},
		{"bad rec_len", "#{}\n" + header + "\nAAAA\t0\t40.00\t4\t0\tfalse\n"},
		{"bad bool", "#{}\n" + header + "\nAAAA\t0\t40.00\t4\t29\tmaybe\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.index")
			require.NoError(t, os.WriteFile(path, []byte(test.content), 0666))
			reader, err := Open(path)
			if err == nil {
				defer func() { require.NoError(t, reader.Close()) }()
				for reader.Scan() {
				}
				err = reader.Err()
			}
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, path, parseErr.Path)
		})
	}
}

func TestParseInterval(t *testing.T) {
	i, err := ParseInterval("100,15000")
	require.NoError(t, err)
	assert.True(t, i.Contains(100))
	assert.True(t, i.Contains(15000))
	assert.False(t, i.Contains(99.9))

	i, err = ParseInterval("-inf,inf")
	require.NoError(t, err)
	assert.True(t, i.Contains(math.MaxFloat64))
	assert.True(t, i.Contains(-math.MaxFloat64))

	for _, s := range []string{"", "100", "a,b", "1,2,3"} {
		_, err := ParseInterval(s)
		assert.Error(t, err, s)
	}
}

func TestPresetRegex(t *testing.T) {
	for _, name := range []string{"bc-umi", "umi-tools", "illumina"} {
		re, err := PresetRegex(name)
		require.NoError(t, err)
		assert.NotEmpty(t, re)
	}
	_, err := PresetRegex("nope")
	assert.Error(t, err)
}
