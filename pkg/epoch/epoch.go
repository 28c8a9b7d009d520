// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package epoch implements the epoch windowing operator: it assigns a
// monotonically increasing integer epoch id to each record based on its
// "time" field and emits synthetic reset signals at window boundaries.
package epoch

import (
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// TimeField is the record key every epoch-aware operator reads its
// timestamp from (spec §3's invariant).
const TimeField = "time"

// DefaultKeyOut is the conventional epoch-id field name used by every
// query in the library unless overridden.
const DefaultKeyOut = "eid"

type windower struct {
	width   float64
	keyOut  string
	next    operator.Operator
	boundary float64
	eid      int64
}

// New returns a Builder implementing §4.2's epoch windowing operator.
// width is the window size in seconds; keyOut is the field name the
// epoch id is written to on every record and reset (conventionally
// "eid").
//
// The first window's boundary is set from the first record's own
// timestamp ("boundary = t + width"), not from wall-clock zero or
// input-stream zero — per spec §9's documented open question, the
// first emitted epoch may therefore span up to width seconds starting
// at an arbitrary offset. Input records must be non-decreasing in
// "time"; this is a caller contract, not something the operator
// verifies.
//
// On an external Reset (one not synthesized by this operator itself),
// the current (not-yet-completed) eid is forwarded downstream and the
// window state is zeroed. The resolution adopted here (see DESIGN.md)
// is "continue": a subsequent run of next() after an external reset
// restarts epoch numbering at 0, since boundary and eid are both
// zeroed.
func New(width float64, keyOut string) operator.Builder {
	return func(next operator.Operator) operator.Operator {
		return &windower{width: width, keyOut: keyOut, next: next}
	}
}

func (w *windower) Next(r record.Record) error {
	t, err := r.GetFloat(TimeField)
	if err != nil {
		return err
	}

	if w.boundary == 0.0 {
		w.boundary = t + w.width
	} else {
		for t >= w.boundary {
			if err := w.next.Reset(record.Of(record.F(w.keyOut, value.Int(w.eid)))); err != nil {
				return err
			}
			w.boundary += w.width
			w.eid++
		}
	}

	return w.next.Next(r.Set(w.keyOut, value.Int(w.eid)))
}

func (w *windower) Reset(_ record.Record) error {
	if err := w.next.Reset(record.Of(record.F(w.keyOut, value.Int(w.eid)))); err != nil {
		return err
	}
	w.boundary = 0.0
	w.eid = 0
	return nil
}
