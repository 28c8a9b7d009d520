// Package testutil provides small operator.Operator test doubles shared
// across the engine's package tests.
package testutil

import "github.com/lukemarshall2222/netquery/pkg/record"

// Collector is an operator.Operator that records every Next and Reset
// call it receives, for assertion in tests.
type Collector struct {
	Nexts  []record.Record
	Resets []record.Record
}

func (c *Collector) Next(r record.Record) error {
	c.Nexts = append(c.Nexts, r)
	return nil
}

func (c *Collector) Reset(r record.Record) error {
	c.Resets = append(c.Resets, r)
	return nil
}
