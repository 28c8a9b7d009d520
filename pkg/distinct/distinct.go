// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package distinct implements the per-epoch distinct-key operator
// (spec §4.5).
package distinct

import (
	"github.com/lukemarshall2222/netquery/pkg/groupby"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
)

// KeyFn extracts the key whose distinct values are tracked.
type KeyFn = groupby.KeyFn

type distinctOp struct {
	keyFn KeyFn
	next  operator.Operator
	seen  *record.Map[struct{}]
}

// New returns a Builder implementing §4.5's distinct operator: Next
// inserts keyFn(r) into a per-epoch set (idempotent); Reset emits one
// record per distinct key (the reset record merged left-biased with
// the key), forwards Reset downstream, then clears the set.
func New(keyFn KeyFn) operator.Builder {
	return func(next operator.Operator) operator.Operator {
		return &distinctOp{keyFn: keyFn, next: next, seen: record.NewMap[struct{}]()}
	}
}

func (d *distinctOp) Next(r record.Record) error {
	d.seen.Set(d.keyFn(r), struct{}{})
	return nil
}

func (d *distinctOp) Reset(r record.Record) error {
	var emitErr error
	d.seen.Each(func(k record.Record, _ struct{}) {
		if emitErr != nil {
			return
		}
		emitErr = d.next.Next(r.Merge(k))
	})
	if emitErr != nil {
		return emitErr
	}
	if err := d.next.Reset(r); err != nil {
		return err
	}
	d.seen.Clear()
	return nil
}
