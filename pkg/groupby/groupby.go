// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package groupby implements the per-epoch keyed-reduction operator
// (spec §4.4) plus its pre-supplied reducers and key-extractors.
package groupby

import (
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// KeyFn extracts the grouping key (a sub-record) from an input record.
type KeyFn func(r record.Record) record.Record

// Reducer folds one record into an accumulator. The first call for a
// fresh group receives value.Empty() as acc.
type Reducer func(acc value.Value, r record.Record) (value.Value, error)

type groupBy struct {
	keyFn  KeyFn
	reduce Reducer
	outKey string
	next   operator.Operator
	table  *record.Map[value.Value]
}

// New returns a Builder implementing §4.4's group-by aggregation
// operator: Next folds each record into table[keyFn(r)]; Reset emits
// one record per group (reset-record merged left-biased with the
// group's key, merged left-biased with {outKey: accumulated value}),
// then forwards Reset downstream, then clears the table.
//
// Emission order over groups is unspecified (spec §4.4).
func New(keyFn KeyFn, reduce Reducer, outKey string) operator.Builder {
	return func(next operator.Operator) operator.Operator {
		return &groupBy{
			keyFn:  keyFn,
			reduce: reduce,
			outKey: outKey,
			next:   next,
			table:  record.NewMap[value.Value](),
		}
	}
}

func (g *groupBy) Next(r record.Record) error {
	k := g.keyFn(r)
	acc, ok := g.table.Get(k)
	if !ok {
		acc = value.Empty()
	}
	next, err := g.reduce(acc, r)
	if err != nil {
		return err
	}
	g.table.Set(k, next)
	return nil
}

func (g *groupBy) Reset(r record.Record) error {
	var emitErr error
	g.table.Each(func(k record.Record, v value.Value) {
		if emitErr != nil {
			return
		}
		out := r.Merge(k).Merge(record.Of(record.F(g.outKey, v)))
		emitErr = g.next.Next(out)
	})
	if emitErr != nil {
		return emitErr
	}
	if err := g.next.Reset(r); err != nil {
		return err
	}
	g.table.Clear()
	return nil
}
