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
	"fmt"
	"strconv"
	"strings"
)

// A ReadType says how an output record relates to its duplicate group.
type ReadType int

// The possible read types.
const (
	Consensus ReadType = iota
	Singleton
	Original
	Ignored
)

func (t ReadType) String() string {
	switch t {
	case Consensus:
		return "consensus"
	case Singleton:
		return "singleton"
	case Original:
		return "original"
	case Ignored:
		return "ignored"
	default:
		return fmt.Sprintf("ReadType(%d)", int(t))
	}
}

// Tags records the provenance of an output record: the ordinal of its
// duplicate group, how the record was derived, the group's member count,
// and, for singleton and consensus records, the group's average input
// quality. Member is the 1-based position within the group and is only
// meaningful for Original records.
type Tags struct {
	Type    ReadType
	Group   int
	Size    int
	Member  int
	AvgQual float64
}

func (t Tags) label() string {
	switch t.Type {
	case Consensus:
		return fmt.Sprintf("CON_%d", t.Size)
	case Singleton:
		return "SIN"
	case Original:
		return fmt.Sprintf("ORIG_%d_OF_%d", t.Member, t.Size)
	default:
		return fmt.Sprintf("IGN_%d", t.Size)
	}
}

// Append encodes the tags onto an identifier line. The average input
// quality is only reported for singleton and consensus records.
func (t Tags) Append(id string) string {
	tagged := fmt.Sprintf("%s UT:Z:%s UG:i:%d", id, t.label(), t.Group)
	if t.Type == Singleton || t.Type == Consensus {
		tagged += fmt.Sprintf(" QL:f:%.2f", t.AvgQual)
	}
	return tagged
}

func parseLabel(label string, t *Tags) error {
	switch {
	case label == "SIN":
		t.Type = Singleton
		t.Size = 1
		return nil
	case strings.HasPrefix(label, "CON_"):
		t.Type = Consensus
		size, err := strconv.Atoi(label[len("CON_"):])
		t.Size = size
		return err
	case strings.HasPrefix(label, "IGN_"):
		t.Type = Ignored
		size, err := strconv.Atoi(label[len("IGN_"):])
		t.Size = size
		return err
	case strings.HasPrefix(label, "ORIG_"):
		t.Type = Original
		parts := strings.Split(label[len("ORIG_"):], "_OF_")
		if len(parts) != 2 {
			return fmt.Errorf("malformed ORIG label %v", label)
		}
		member, err := strconv.Atoi(parts[0])
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(parts[1])
		t.Member = member
		t.Size = size
		return err
	default:
		return fmt.Errorf("unknown read type label %v", label)
	}
}

// ParseTags is the inverse of Tags.Append: it splits a tagged identifier
// line into the original identifier and the decoded tags.
func ParseTags(id string) (string, Tags, error) {
	var tags Tags
	cut := strings.Index(id, " UT:Z:")
	if cut < 0 {
		return "", tags, fmt.Errorf("no UT:Z tag in identifier %v", id)
	}
	base := id[:cut]
	sawGroup := false
	for _, field := range strings.Fields(id[cut:]) {
		switch {
		case strings.HasPrefix(field, "UT:Z:"):
			if err := parseLabel(field[len("UT:Z:"):], &tags); err != nil {
				return "", tags, fmt.Errorf("%w, while parsing identifier %v", err, id)
			}
		case strings.HasPrefix(field, "UG:i:"):
			group, err := strconv.Atoi(field[len("UG:i:"):])
			if err != nil {
				return "", tags, fmt.Errorf("%w, while parsing identifier %v", err, id)
			}
			tags.Group = group
			sawGroup = true
		case strings.HasPrefix(field, "QL:f:"):
			avg, err := strconv.ParseFloat(field[len("QL:f:"):], 64)
			if err != nil {
				return "", tags, fmt.Errorf("%w, while parsing identifier %v", err, id)
			}
			tags.AvgQual = avg
		}
	}
	if !sawGroup {
		return "", tags, fmt.Errorf("no UG:i tag in identifier %v", id)
	}
	return base, tags, nil
}
