// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package operator defines the uniform two-method dataflow contract
// every stage of a query pipeline implements, plus the stateless
// operators (filter, map, split) and the composition helpers used to
// wire a pipeline together.
//
// Topology is baked in at construction: a Builder takes the downstream
// operator and returns a new operator wrapping it, the same shape
// gorilla/handlers middleware uses to wrap an http.Handler. There is no
// dynamic pipeline graph.
package operator

import "github.com/lukemarshall2222/netquery/pkg/record"

// Operator is the contract every pipeline stage implements.
//
// Next processes one input record; side effects are calls into
// downstream operators and mutation of the operator's own state.
// Reset marks an epoch (or external) boundary; the record carries
// epoch metadata and any accumulated counters.
//
// No operator may suspend, block, or yield: a call to Next or Reset
// runs synchronously to completion, including every downstream call it
// triggers, before returning to its caller.
type Operator interface {
	Next(r record.Record) error
	Reset(r record.Record) error
}

// Builder takes a downstream operator and returns a new operator
// wrapping it. Pipelines are built by nesting Builder calls, innermost
// (closest to the sink) first.
type Builder func(next Operator) Operator

// Predicate reports whether a record should pass a Filter stage.
type Predicate func(r record.Record) bool

// Func maps one record to its replacement for a Map stage. It may
// return an error (e.g. a MissingField/TypeMismatch from a failed
// field extraction), which aborts the pipeline run.
type Func func(r record.Record) (record.Record, error)

// OperatorFunc adapts two plain functions into an Operator, useful for
// sinks and tests that don't need a dedicated type.
type OperatorFunc struct {
	NextFn  func(record.Record) error
	ResetFn func(record.Record) error
}

func (f OperatorFunc) Next(r record.Record) error {
	if f.NextFn == nil {
		return nil
	}
	return f.NextFn(r)
}

func (f OperatorFunc) Reset(r record.Record) error {
	if f.ResetFn == nil {
		return nil
	}
	return f.ResetFn(r)
}

// filterOp implements §4.3's filter: Next forwards r downstream only
// when pred(r) holds; Reset always forwards.
type filterOp struct {
	pred Predicate
	next Operator
}

// Filter returns a Builder that passes records matching pred to
// downstream, and forwards every Reset unchanged.
func Filter(pred Predicate) Builder {
	return func(next Operator) Operator {
		return &filterOp{pred: pred, next: next}
	}
}

func (f *filterOp) Next(r record.Record) error {
	if f.pred(r) {
		return f.next.Next(r)
	}
	return nil
}

func (f *filterOp) Reset(r record.Record) error {
	return f.next.Reset(r)
}

// mapOp implements §4.3's map: Next forwards fn(r) downstream; Reset
// always forwards unchanged.
type mapOp struct {
	fn   Func
	next Operator
}

// Map returns a Builder that transforms every record with fn before
// forwarding it downstream.
func Map(fn Func) Builder {
	return func(next Operator) Operator {
		return &mapOp{fn: fn, next: next}
	}
}

func (m *mapOp) Next(r record.Record) error {
	out, err := m.fn(r)
	if err != nil {
		return err
	}
	return m.next.Next(out)
}

func (m *mapOp) Reset(r record.Record) error {
	return m.next.Reset(r)
}

// splitOp implements §4.3's split: both Next and Reset are sent to both
// branches, left-then-right.
type splitOp struct {
	left, right Operator
}

// Split returns an operator that fans every Next/Reset call out to both
// left and right, in that order.
func Split(left, right Operator) Operator {
	return &splitOp{left: left, right: right}
}

func (s *splitOp) Next(r record.Record) error {
	if err := s.left.Next(r); err != nil {
		return err
	}
	return s.right.Next(r)
}

func (s *splitOp) Reset(r record.Record) error {
	if err := s.left.Reset(r); err != nil {
		return err
	}
	return s.right.Reset(r)
}

// Chain applies a sequence of Builders to a terminal sink, listed
// outermost (closest to source) first: Chain(sink, a, b, c) builds
// a(b(c(sink))), i.e. records flow source -> a -> b -> c -> sink.
func Chain(sink Operator, builders ...Builder) Operator {
	op := sink
	for i := len(builders) - 1; i >= 0; i-- {
		op = builders[i](op)
	}
	return op
}
