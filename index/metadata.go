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

// Metadata is the JSON object stored on the #-prefixed first line of an
// index file. It describes the indexing run and the source FASTQ file.
type Metadata struct {
	Version            string  `json:"version"`
	RunID              string  `json:"run_id"`
	FilePath           string  `json:"file_path"`
	IndexDate          string  `json:"index_date"`
	Elapsed            float64 `json:"elapsed"`
	GB                 float64 `json:"gb"`
	ReadCount          int     `json:"read_count"`
	MatchedReadCount   int     `json:"matched_read_count"`
	UnmatchedReadCount int     `json:"unmatched_read_count"`
	FilteredReads      int     `json:"filtered_reads"`
	AvgQual            float64 `json:"avg_qual"`
	AvgLen             float64 `json:"avg_len"`
}
