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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rec, err := Parse([]byte("@read1 AAAA_CCCC\nACGT\n+\nIIII\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, "read1 AAAA_CCCC", rec.ID)
	assert.Equal(t, "ACGT", rec.Seq)
	assert.Equal(t, "IIII", rec.Qual)
}

func TestParseNoTrailingNewline(t *testing.T) {
	rec, err := Parse([]byte("@read1\nACGT\n+\nIIII"), 0)
	require.NoError(t, err)
	assert.Equal(t, "IIII", rec.Qual)
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data string
	}{
		{"missing @", "read1\nACGT\n+\nIIII\n"},
		{"empty id line", "\nACGT\n+\nIIII\n"},
		{"missing separator", "@read1\nACGT\nIIII\n"},
		{"truncated", "@read1\nACGT\n"},
		{"length mismatch", "@read1\nACGT\n+\nIII\n"},
		{"quality out of range", "@read1\nACGT\n+\nII\x07I\n"},
		{"invalid utf8", "@re\xffad1\nACGT\n+\nIIII\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.data), 42)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, int64(42), decodeErr.Pos)
		})
	}
}

func TestAvgQual(t *testing.T) {
	rec := &Record{Qual: "!I"} // PHRED 0 and 40
	assert.InDelta(t, 20.0, rec.AvgQual(), 1e-9)
	assert.Equal(t, int64(40), PhredTotal(rec.Qual))
	empty := &Record{}
	assert.Equal(t, 0.0, empty.AvgQual())
}

func TestAppendFastq(t *testing.T) {
	rec := &Record{ID: "read1", Seq: "ACGT", Qual: "IIII"}
	assert.Equal(t, "@read1\nACGT\n+\nIIII\n", string(rec.AppendFastq(nil)))
	assert.Equal(t, ">read1\nACGT\n", string(rec.AppendFasta(nil)))
}

func TestTagsRoundTrip(t *testing.T) {
	for _, tags := range []Tags{
		{Type: Singleton, Group: 0, Size: 1, AvgQual: 31.25},
		{Type: Consensus, Group: 7, Size: 3, AvgQual: 40},
		{Type: Original, Group: 7, Size: 3, Member: 2},
		{Type: Ignored, Group: 12, Size: 5},
	} {
		t.Run(tags.Type.String(), func(t *testing.T) {
			tagged := tags.Append("read1 AAAA_CCCC")
			base, parsed, err := ParseTags(tagged)
			require.NoError(t, err)
			assert.Equal(t, "read1 AAAA_CCCC", base)
			assert.Equal(t, tags.Type, parsed.Type)
			assert.Equal(t, tags.Group, parsed.Group)
			assert.Equal(t, tags.Size, parsed.Size)
			if tags.Type == Original {
				assert.Equal(t, tags.Member, parsed.Member)
			}
			if tags.Type == Singleton || tags.Type == Consensus {
				assert.InDelta(t, tags.AvgQual, parsed.AvgQual, 0.005)
			}
		})
	}
}

func TestTagLabels(t *testing.T) {
	assert.Equal(t, "id UT:Z:SIN UG:i:0 QL:f:30.00",
		Tags{Type: Singleton, Group: 0, Size: 1, AvgQual: 30}.Append("id"))
	assert.Equal(t, "id UT:Z:CON_4 UG:i:2 QL:f:12.50",
		Tags{Type: Consensus, Group: 2, Size: 4, AvgQual: 12.5}.Append("id"))
	assert.Equal(t, "id UT:Z:ORIG_1_OF_4 UG:i:2",
		Tags{Type: Original, Group: 2, Size: 4, Member: 1}.Append("id"))
	assert.Equal(t, "id UT:Z:IGN_9 UG:i:5",
		Tags{Type: Ignored, Group: 5, Size: 9}.Append("id"))
}

func TestParseTagsErrors(t *testing.T) {
	_, _, err := ParseTags("read1 no tags here")
	assert.Error(t, err)
	_, _, err = ParseTags("read1 UT:Z:SIN")
	assert.Error(t, err)
	_, _, err = ParseTags("read1 UT:Z:BOGUS UG:i:0")
	assert.Error(t, err)
}
