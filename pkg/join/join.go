// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package join implements the temporal equi-join operator (spec
// §4.6) — the hardest operator in the engine. Two input streams
// sharing an epoch key are matched through a pair of hash tables and
// coordinated through two advancing epoch watermarks, so that the
// shared downstream sees exactly one Reset(eid=E) per completed epoch,
// emitted only after every possible join output for that epoch has
// already been produced.
package join

import (
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Extractor maps an input record to the (join key, carry) pair
// described in spec §4.1's GLOSSARY: key is the subset used for
// matching, carry is the subset of fields to preserve through the
// join.
type Extractor func(r record.Record) (key, carry record.Record, err error)

// state is the shared mutable triple the two sides of a join jointly
// own: two hash tables of pending records and two epoch watermarks.
// Neither returned operator is valid without the other; both must be
// constructed together (by New) and used from the same single-threaded
// context, exactly as spec §5 and §9 require.
type state struct {
	eidKey     string
	tableLeft  *record.Map[record.Record]
	tableRight *record.Map[record.Record]
	wmLeft     int64
	wmRight    int64
	next       operator.Operator
}

// side is one of the two operators New returns. Both left and right
// are implemented by this same type, parameterized by which table is
// "mine" vs "the other side's", and which watermark is "mine" vs
// "theirs".
type side struct {
	st      *state
	extract Extractor
	mine    *record.Map[record.Record]
	other   *record.Map[record.Record]
	myWM    *int64
	otherWM *int64
}

// New returns the (left, right) operator pair for a temporal equi-join
// against a shared downstream. eidKey names the epoch-id field both
// input streams carry (conventionally "eid", per epoch.DefaultKeyOut).
func New(leftExtract, rightExtract Extractor, next operator.Operator, eidKey string) (left, right operator.Operator) {
	st := &state{
		eidKey:     eidKey,
		tableLeft:  record.NewMap[record.Record](),
		tableRight: record.NewMap[record.Record](),
		next:       next,
	}
	l := &side{st: st, extract: leftExtract, mine: st.tableLeft, other: st.tableRight, myWM: &st.wmLeft, otherWM: &st.wmRight}
	r := &side{st: st, extract: rightExtract, mine: st.tableRight, other: st.tableLeft, myWM: &st.wmRight, otherWM: &st.wmLeft}
	return l, r
}

// Next implements spec §4.6's left.next (the right side is the exact
// mirror, since side is generic over which table/watermark is "mine").
func (s *side) Next(r record.Record) error {
	k, c, err := s.extract(r)
	if err != nil {
		return err
	}
	e, err := r.GetInt(s.st.eidKey)
	if err != nil {
		return err
	}

	if err := s.advanceWatermark(e); err != nil {
		return err
	}

	lookupKey := k.Set(s.st.eidKey, value.Int(e))
	if otherCarry, ok := s.other.Get(lookupKey); ok {
		s.other.Delete(lookupKey)
		return s.st.next.Next(lookupKey.Merge(c).Merge(otherCarry))
	}

	s.mine.Set(lookupKey, c)
	return nil
}

// Reset implements spec §4.6's left.reset: advance this side's
// watermark to e, emitting a downstream Reset for every epoch that
// becomes jointly complete. No state is cleared — unmatched entries
// persist across epoch boundaries and are only removed on a
// subsequent match (spec §5's "keep until matched" reference
// behavior).
func (s *side) Reset(r record.Record) error {
	e, err := r.GetInt(s.st.eidKey)
	if err != nil {
		return err
	}
	return s.advanceWatermark(e)
}

// Len reports the number of unmatched entries currently held in this
// side's table, so a pruner can monitor it without reaching into
// unexported join state.
func (s *side) Len() int { return s.mine.Len() }

// PruneOlderThan drops every unmatched entry in this side's table
// whose epoch id is more than maxAge epochs behind the other side's
// watermark. Once the other side has advanced that far past an epoch,
// no future record from it can carry that epoch id again, so the
// entry can never be matched and is safe to discard. Returns the
// number of entries dropped.
func (s *side) PruneOlderThan(maxAge int64) int {
	var stale []record.Record
	s.mine.Each(func(key record.Record, _ record.Record) {
		e, err := key.GetInt(s.st.eidKey)
		if err != nil {
			return
		}
		if *s.otherWM-e > maxAge {
			stale = append(stale, key)
		}
	})
	for _, k := range stale {
		s.mine.Delete(k)
	}
	return len(stale)
}

// advanceWatermark implements the "while e > watermark" loop shared by
// Next and Reset: each side only emits a downstream Reset for an epoch
// once the *other* side has already closed it, guaranteeing exactly
// one Reset(eid=E) per completed epoch regardless of left/right
// interleaving.
func (s *side) advanceWatermark(e int64) error {
	for e > *s.myWM {
		if *s.otherWM > *s.myWM {
			if err := s.st.next.Reset(record.Of(record.F(s.st.eidKey, value.Int(*s.myWM)))); err != nil {
				return err
			}
		}
		*s.myWM++
	}
	return nil
}
