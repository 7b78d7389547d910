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

package consensus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elumi/align"
	"github.com/exascience/elumi/duplicates"
	"github.com/exascience/elumi/fastq"
	"github.com/exascience/elumi/index"
)

// writeScenario materializes reads with identifiers in file order
// A, A, B, C, C, C and returns the FASTQ file plus its index file.
func writeScenario(t *testing.T) (string, string) {
	t.Helper()
	records := []*fastq.Record{
		{ID: "A_1 read1", Seq: "ACGT", Qual: "IIII"},
		{ID: "A_1 read2", Seq: "ACGA", Qual: "IIII"},
		{ID: "B_1 read3", Seq: "TTTT", Qual: "IIII"},
		{ID: "C_1 read4", Seq: "GGCC", Qual: "IIII"},
		{ID: "C_1 read5", Seq: "GGCC", Qual: "IIII"},
		{ID: "C_1 read6", Seq: "GGCC", Qual: "IIII"},
	}
	dir := t.TempDir()
	var data []byte
	indexPath := filepath.Join(dir, "reads.index")
	writer, err := index.NewWriter(indexPath)
	require.NoError(t, err)
	for _, rec := range records {
		start := len(data)
		data = rec.AppendFastq(data)
		require.NoError(t, writer.Append(&index.Row{
			ID:      strings.Fields(rec.ID)[0],
			Pos:     int64(start),
			AvgQual: 40,
			NBases:  len(rec.Seq),
			RecLen:  len(data) - start,
		}))
	}
	require.NoError(t, writer.Finish())
	fastqPath := filepath.Join(dir, "reads.fastq")
	require.NoError(t, os.WriteFile(fastqPath, data, 0666))
	return fastqPath, indexPath
}

func newScenarioIterator(t *testing.T, fastqPath, indexPath string, opts duplicates.IterOpts) *duplicates.GroupIterator {
	t.Helper()
	reader, err := index.Open(indexPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Close()) }()
	m, _, err := duplicates.BuildMap(reader)
	require.NoError(t, err)
	it, err := duplicates.NewGroupIterator(fastqPath, m, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, it.Close()) })
	return it
}

func runCall(t *testing.T, fastqPath, indexPath string, iterOpts duplicates.IterOpts, opts Opts) string {
	t.Helper()
	it := newScenarioIterator(t, fastqPath, indexPath, iterOpts)
	var buf bytes.Buffer
	writer := fastq.NewWriter(&buf)
	require.NoError(t, Call(it, writer, align.NewEngine(align.DefaultScheme), opts))
	require.NoError(t, writer.Close())
	return buf.String()
}

// parseOutput splits the 4-line records of an output buffer back into
// base ids and tags.
func parseOutput(t *testing.T, out string) []fastq.Tags {
	t.Helper()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Zero(t, len(lines)%4)
	var tags []fastq.Tags
	for i := 0; i < len(lines); i += 4 {
		_, parsed, err := fastq.ParseTags(strings.TrimPrefix(lines[i], "@"))
		require.NoError(t, err)
		tags = append(tags, parsed)
	}
	return tags
}

func TestCall(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	out := runCall(t, fastqPath, indexPath, duplicates.IterOpts{}, Opts{Threads: 1})

	tags := parseOutput(t, out)
	require.Len(t, tags, 3)
	assert.Equal(t, fastq.Consensus, tags[0].Type)
	assert.Equal(t, 0, tags[0].Group)
	assert.Equal(t, 2, tags[0].Size)
	assert.Equal(t, fastq.Singleton, tags[1].Type)
	assert.Equal(t, 1, tags[1].Group)
	assert.Equal(t, fastq.Consensus, tags[2].Type)
	assert.Equal(t, 3, tags[2].Size)

	// the A group ties at the last base; the consensus record carries the
	// group identifier as its id
	lines := strings.Split(out, "\n")
	assert.Equal(t, "ACGA", lines[1])
	assert.True(t, strings.HasPrefix(lines[0], "@A_1 UT:Z:CON_2"))
	// the C group agrees everywhere
	assert.Equal(t, "GGCC", lines[9])
}

func TestCallDeterministicAcrossThreadCounts(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	want := runCall(t, fastqPath, indexPath, duplicates.IterOpts{}, Opts{Threads: 1})
	for _, threads := range []int{2, 4, 8} {
		got := runCall(t, fastqPath, indexPath, duplicates.IterOpts{}, Opts{Threads: threads})
		assert.Equal(t, want, got, "threads=%v", threads)
	}
}

func TestCallDuplicatesOnly(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	out := runCall(t, fastqPath, indexPath, duplicates.IterOpts{DuplicatesOnly: true}, Opts{Threads: 2})

	tags := parseOutput(t, out)
	require.Len(t, tags, 2)
	assert.Equal(t, fastq.Consensus, tags[0].Type)
	assert.Equal(t, 0, tags[0].Group)
	assert.Equal(t, fastq.Consensus, tags[1].Type)
	assert.Equal(t, 1, tags[1].Group)
}

func TestCallReportOriginals(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	out := runCall(t, fastqPath, indexPath, duplicates.IterOpts{}, Opts{Threads: 4, ReportOriginals: true})

	tags := parseOutput(t, out)
	// 2 originals + consensus, singleton, 3 originals + consensus
	require.Len(t, tags, 8)
	expected := []struct {
		t     fastq.ReadType
		group int
	}{
		{fastq.Original, 0}, {fastq.Original, 0}, {fastq.Consensus, 0},
		{fastq.Singleton, 1},
		{fastq.Original, 2}, {fastq.Original, 2}, {fastq.Original, 2}, {fastq.Consensus, 2},
	}
	for i, e := range expected {
		assert.Equal(t, e.t, tags[i].Type, "record %v", i)
		assert.Equal(t, e.group, tags[i].Group, "record %v", i)
	}
	assert.Equal(t, 1, tags[0].Member)
	assert.Equal(t, 2, tags[1].Member)
}

func TestCallIgnoredPassthrough(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	// every multi-member group exceeds the ceiling
	out := runCall(t, fastqPath, indexPath, duplicates.IterOpts{MaxGroupBytes: 40}, Opts{Threads: 2})

	tags := parseOutput(t, out)
	require.Len(t, tags, 6)
	assert.Equal(t, fastq.Ignored, tags[0].Type)
	assert.Equal(t, fastq.Ignored, tags[1].Type)
	assert.Equal(t, 2, tags[0].Size)
	assert.Equal(t, fastq.Singleton, tags[2].Type)
	assert.Equal(t, fastq.Ignored, tags[3].Type)
	assert.Equal(t, 3, tags[3].Size)

	// members pass through unmodified
	lines := strings.Split(out, "\n")
	assert.Equal(t, "ACGT", lines[1])
	assert.Equal(t, "ACGA", lines[5])
}

func TestCallEngineErrorIsFatal(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	it := newScenarioIterator(t, fastqPath, indexPath, duplicates.IterOpts{})
	var buf bytes.Buffer
	writer := fastq.NewWriter(&buf)
	boom := errors.New("boom")
	err := Call(it, writer, failingEngine{err: boom}, Opts{Threads: 2})
	require.ErrorIs(t, err, boom)
}

type failingEngine struct {
	err error
}

func (e failingEngine) Consensus(_, _ [][]byte) ([]byte, []byte, error) {
	return nil, nil, e.err
}

func TestGroup(t *testing.T) {
	fastqPath, indexPath := writeScenario(t)
	it := newScenarioIterator(t, fastqPath, indexPath, duplicates.IterOpts{})
	var buf bytes.Buffer
	writer := fastq.NewWriter(&buf)
	require.NoError(t, Group(it, writer))
	require.NoError(t, writer.Close())

	tags := parseOutput(t, buf.String())
	require.Len(t, tags, 6)
	for _, parsed := range tags {
		assert.Equal(t, fastq.Original, parsed.Type)
	}
	assert.Equal(t, []int{0, 0, 1, 2, 2, 2}, []int{
		tags[0].Group, tags[1].Group, tags[2].Group, tags[3].Group, tags[4].Group, tags[5].Group,
	})
	assert.Equal(t, 1, tags[0].Member)
	assert.Equal(t, 2, tags[1].Member)
	assert.Equal(t, 3, tags[5].Member)
}
