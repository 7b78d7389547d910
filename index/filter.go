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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/exascience/elumi/fastq"
)

// An Interval is a closed float interval. The bounds may be infinite.
type Interval struct {
	Min, Max float64
}

// Contains reports whether v lies within the interval.
func (i Interval) Contains(v float64) bool {
	return i.Min <= v && v <= i.Max
}

// ParseInterval parses an interval of the form "a,b", where a may be
// "-inf" and b may be "inf".
func ParseInterval(s string) (Interval, error) {
	parts := strings.Split(strings.ToLower(s), ",")
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("invalid interval %q: expected the format <min>,<max>, as in 0,15000 or 0,inf", s)
	}
	parseBound := func(part string) (float64, error) {
		part = strings.TrimSpace(part)
		switch part {
		case "inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval bound %q in %q", part, s)
		}
		return v, nil
	}
	min, err := parseBound(parts[0])
	if err != nil {
		return Interval{}, err
	}
	max, err := parseBound(parts[1])
	if err != nil {
		return Interval{}, err
	}
	return Interval{Min: min, Max: max}, nil
}

// FilterOpts are the upstream quality filters applied during index
// construction. Reads outside the intervals are marked ignored in the
// index; they are never grouped, but they are still counted.
type FilterOpts struct {
	Len  Interval
	Qual Interval
}

// UnboundedFilter accepts every read.
var UnboundedFilter = FilterOpts{
	Len:  Interval{Min: math.Inf(-1), Max: math.Inf(1)},
	Qual: Interval{Min: math.Inf(-1), Max: math.Inf(1)},
}

// Keep reports whether the record passes the length and quality filters.
func (f FilterOpts) Keep(rec *fastq.Record) bool {
	return f.Len.Contains(float64(len(rec.Seq))) && f.Qual.Contains(rec.AvgQual())
}
