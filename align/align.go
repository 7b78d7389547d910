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

// Package align implements the built-in consensus caller: each group
// member is aligned against the running consensus with a two-piece
// affine-gap global alignment, and per-column votes weighted by PHRED
// quality decide the consensus base.
package align

import (
	"errors"
	"fmt"
	"math"
)

// A Scheme holds the alignment scoring constants. The two gap pieces
// let short gaps be scored convexly: a gap of length k costs the better
// of GapOpen+(k-1)*GapExtend and GapOpen2+(k-1)*GapExtend2.
type Scheme struct {
	Match, Mismatch      int32
	GapOpen, GapExtend   int32
	GapOpen2, GapExtend2 int32
}

// DefaultScheme is the scoring used by the call command. The constants
// are fixed per engine, not tunable per call.
var DefaultScheme = Scheme{
	Match:      5,
	Mismatch:   -4,
	GapOpen:    -8,
	GapExtend:  -6,
	GapOpen2:   -10,
	GapExtend2: -4,
}

// An Engine computes consensus sequences for duplicate groups.
type Engine struct {
	scheme Scheme
}

// NewEngine returns a consensus engine with the given scoring scheme.
func NewEngine(scheme Scheme) *Engine {
	return &Engine{scheme: scheme}
}

// Consensus bases, in tie-break order: at equal vote weight the
// earliest entry wins, which is the lexicographically smallest base.
const baseChars = "ACGNT"

var baseIndex [256]int

func init() {
	for i := range baseIndex {
		baseIndex[i] = 3 // unknown symbols count as N
	}
	for i := 0; i < len(baseChars); i++ {
		baseIndex[baseChars[i]] = i
		baseIndex[baseChars[i]|0x20] = i
	}
}

// weight is the vote weight of one base call: PHRED quality plus one,
// so even the lowest quality still counts.
func weight(q byte) int64 {
	if q <= 33 {
		return 1
	}
	return int64(q-33) + 1
}

// meanWeight is the rounded mean vote weight of a member, used for gap
// votes, where no per-base quality exists.
func meanWeight(qual []byte) int64 {
	var total int64
	for _, q := range qual {
		total += weight(q)
	}
	mw := (total + int64(len(qual))/2) / int64(len(qual))
	if mw < 1 {
		mw = 1
	}
	return mw
}

// A column accumulates the votes of all members aligned so far: one
// weight per base plus a gap weight for members whose alignment skips
// the column.
type column struct {
	votes [len(baseChars)]int64
	gap   int64
}

func (c *column) best() byte {
	bi := 0
	for b := 1; b < len(baseChars); b++ {
		if c.votes[b] > c.votes[bi] {
			bi = b
		}
	}
	return baseChars[bi]
}

// Consensus aligns the ordered members of one duplicate group and
// returns the consensus sequence with a derived quality string. The
// derived quality of a column is the winning vote weight minus the
// runner-up weight, clamped to [0, 60] and ASCII-33 encoded.
func (e *Engine) Consensus(seqs, quals [][]byte) ([]byte, []byte, error) {
	if len(seqs) == 0 {
		return nil, nil, errors.New("cannot call a consensus for an empty group")
	}
	if len(quals) != len(seqs) {
		return nil, nil, fmt.Errorf("got %v sequences but %v quality strings", len(seqs), len(quals))
	}
	for k := range seqs {
		if len(seqs[k]) == 0 {
			return nil, nil, fmt.Errorf("empty sequence for group member %v", k)
		}
		if len(seqs[k]) != len(quals[k]) {
			return nil, nil, fmt.Errorf("sequence and quality lengths differ for group member %v", k)
		}
	}

	profile := make([]column, len(seqs[0]))
	for i, b := range seqs[0] {
		profile[i].votes[baseIndex[b]] = weight(quals[0][i])
	}
	depthWeight := meanWeight(quals[0])

	for k := 1; k < len(seqs); k++ {
		backbone := make([]byte, len(profile))
		for c := range profile {
			backbone[c] = profile[c].best()
		}
		ops := e.align(backbone, seqs[k])
		mw := meanWeight(quals[k])
		updated := make([]column, 0, len(profile)+4)
		c, q := 0, 0
		for _, op := range ops {
			switch op {
			case opMatch:
				col := profile[c]
				col.votes[baseIndex[seqs[k][q]]] += weight(quals[k][q])
				updated = append(updated, col)
				c++
				q++
			case opDelete:
				col := profile[c]
				col.gap += mw
				updated = append(updated, col)
				c++
			case opInsert:
				var col column
				col.votes[baseIndex[seqs[k][q]]] = weight(quals[k][q])
				col.gap = depthWeight
				updated = append(updated, col)
				q++
			}
		}
		profile = updated
		depthWeight += mw
	}

	seq := make([]byte, 0, len(profile))
	qual := make([]byte, 0, len(profile))
	for i := range profile {
		col := &profile[i]
		bi := 0
		for b := 1; b < len(baseChars); b++ {
			if col.votes[b] > col.votes[bi] {
				bi = b
			}
		}
		best := col.votes[bi]
		if col.gap > best {
			// only a strict majority for the gap drops the column: on a
			// tie, the base wins
			continue
		}
		runner := col.gap
		for b := 0; b < len(baseChars); b++ {
			if b != bi && col.votes[b] > runner {
				runner = col.votes[b]
			}
		}
		d := best - runner
		if d > 60 {
			d = 60
		}
		seq = append(seq, baseChars[bi])
		qual = append(qual, byte(d)+33)
	}
	return seq, qual, nil
}

// Alignment operations, reference-relative.
const (
	opMatch  = 'M' // consume one reference column and one query base
	opDelete = 'D' // consume one reference column, gap in the query
	opInsert = 'I' // consume one query base, gap in the reference
)

const minScore = math.MinInt32 / 2

// Traceback encoding: bits 0-2 hold the source of the main score, bits
// 3-6 record whether each gap state extended an existing gap.
const (
	srcDiag = iota
	srcE1
	srcE2
	srcF1
	srcF2
	srcMask = 0x07

	btE1Ext = 0x08
	btE2Ext = 0x10
	btF1Ext = 0x20
	btF2Ext = 0x40
)

// align computes a global alignment of query against ref under the
// two-piece affine gap model and returns the operations in
// reference order. The score matrices use rolling rows; only the
// traceback matrix is kept in full.
func (e *Engine) align(ref, query []byte) []byte {
	s := e.scheme
	n, m := len(ref), len(query)
	stride := m + 1
	bt := make([]byte, (n+1)*stride)

	gapCost := func(k int32) int32 {
		c1 := s.GapOpen + (k-1)*s.GapExtend
		c2 := s.GapOpen2 + (k-1)*s.GapExtend2
		if c1 > c2 {
			return c1
		}
		return c2
	}

	prevH := make([]int32, m+1)
	curH := make([]int32, m+1)
	e1 := make([]int32, m+1)
	e2 := make([]int32, m+1)
	for j := 1; j <= m; j++ {
		prevH[j] = gapCost(int32(j))
		e1[j] = minScore
		e2[j] = minScore
	}
	e1[0] = minScore
	e2[0] = minScore

	for i := 1; i <= n; i++ {
		if open := prevH[0] + s.GapOpen; e1[0]+s.GapExtend < open {
			e1[0] = open
		} else {
			e1[0] += s.GapExtend
		}
		if open := prevH[0] + s.GapOpen2; e2[0]+s.GapExtend2 < open {
			e2[0] = open
		} else {
			e2[0] += s.GapExtend2
		}
		curH[0] = gapCost(int32(i))
		f1, f2 := int32(minScore), int32(minScore)
		for j := 1; j <= m; j++ {
			var b byte
			if open, ext := prevH[j]+s.GapOpen, e1[j]+s.GapExtend; ext > open {
				e1[j] = ext
				b |= btE1Ext
			} else {
				e1[j] = open
			}
			if open, ext := prevH[j]+s.GapOpen2, e2[j]+s.GapExtend2; ext > open {
				e2[j] = ext
				b |= btE2Ext
			} else {
				e2[j] = open
			}
			if open, ext := curH[j-1]+s.GapOpen, f1+s.GapExtend; ext > open {
				f1 = ext
				b |= btF1Ext
			} else {
				f1 = open
			}
			if open, ext := curH[j-1]+s.GapOpen2, f2+s.GapExtend2; ext > open {
				f2 = ext
				b |= btF2Ext
			} else {
				f2 = open
			}
			sub := s.Mismatch
			if ref[i-1] == query[j-1] {
				sub = s.Match
			}
			best := prevH[j-1] + sub
			src := byte(srcDiag)
			if e1[j] > best {
				best, src = e1[j], srcE1
			}
			if e2[j] > best {
				best, src = e2[j], srcE2
			}
			if f1 > best {
				best, src = f1, srcF1
			}
			if f2 > best {
				best, src = f2, srcF2
			}
			curH[j] = best
			bt[i*stride+j] = b | src
		}
		prevH, curH = curH, prevH
	}

	ops := make([]byte, 0, n+m)
	i, j := n, m
	state := byte(srcDiag)
	for i > 0 || j > 0 {
		if i == 0 {
			ops = append(ops, opInsert)
			j--
			continue
		}
		if j == 0 {
			ops = append(ops, opDelete)
			i--
			continue
		}
		b := bt[i*stride+j]
		switch state {
		case srcDiag:
			switch b & srcMask {
			case srcDiag:
				ops = append(ops, opMatch)
				i--
				j--
			default:
				state = b & srcMask
			}
		case srcE1:
			ops = append(ops, opDelete)
			if b&btE1Ext == 0 {
				state = srcDiag
			}
			i--
		case srcE2:
			ops = append(ops, opDelete)
			if b&btE2Ext == 0 {
				state = srcDiag
			}
			i--
		case srcF1:
			ops = append(ops, opInsert)
			if b&btF1Ext == 0 {
				state = srcDiag
			}
			j--
		case srcF2:
			ops = append(ops, opInsert)
			if b&btF2Ext == 0 {
				state = srcDiag
			}
			j--
		}
	}
	for lo, hi := 0, len(ops)-1; lo < hi; lo, hi = lo+1, hi-1 {
		ops[lo], ops[hi] = ops[hi], ops[lo]
	}
	return ops
}
