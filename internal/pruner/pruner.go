// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pruner schedules a periodic sweep over a running pipeline's
// unmatched join-table state: it drops entries that have fallen more
// than a configured number of epochs behind the opposite join side's
// watermark,
// using gocron for the schedule, and warns whenever a table still
// holds more unmatched entries than expected once that pass is done.
// The join operator itself never drops unmatched entries on its own
// (its keep-until-matched reference behavior); a pruner is how a
// pipeline opts into a bound on long-running memory growth instead.
package pruner

import (
	"fmt"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
)

// Sweepable is a join table a sweep can measure and age out entries
// from. pkg/join's side type satisfies this via its Len/PruneOlderThan
// methods.
type Sweepable interface {
	Len() int
	PruneOlderThan(maxAge int64) int
}

// Policy decides, from a table's current size and age, whether and how
// a sweep should act. MaxEpochAge, when non-zero, is passed to every
// watched table's PruneOlderThan each sweep; WarnAboveEntries is then
// checked against whatever remains.
type Policy struct {
	WarnAboveEntries int
	MaxEpochAge      int64
}

// Pruner runs a periodic sweep over a set of named, Sweepable join
// tables: dropping entries older than the configured policy allows,
// then logging a warning for any table still over size.
type Pruner struct {
	scheduler gocron.Scheduler
	tables    map[string]Sweepable
	policy    Policy
}

// New builds a Pruner that sweeps every interval, evaluating policy
// against each named table registered with Watch.
func New(interval time.Duration, policy Policy) (*Pruner, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("pruner: new scheduler: %w", err)
	}
	p := &Pruner{scheduler: s, tables: make(map[string]Sweepable), policy: policy}

	_, err = s.NewJob(gocron.DurationJob(interval), gocron.NewTask(p.sweep))
	if err != nil {
		return nil, fmt.Errorf("pruner: schedule sweep: %w", err)
	}
	return p, nil
}

// Watch registers a named table to be checked on every sweep.
func (p *Pruner) Watch(name string, table Sweepable) {
	p.tables[name] = table
}

// Sweep runs one sweep pass immediately, outside the schedule. New's
// caller never needs to call this directly — it exists so the pass
// can be driven deterministically in tests.
func (p *Pruner) Sweep() { p.sweep() }

func (p *Pruner) sweep() {
	for name, table := range p.tables {
		if p.policy.MaxEpochAge > 0 {
			if n := table.PruneOlderThan(p.policy.MaxEpochAge); n > 0 {
				cclog.Infof("pruner: dropped %d unmatched entries from join table %q more than %d epochs behind the opposite side's watermark", n, name, p.policy.MaxEpochAge)
			}
		}
		n := table.Len()
		if p.policy.WarnAboveEntries > 0 && n > p.policy.WarnAboveEntries {
			cclog.Warnf("pruner: join table %q holds %d unmatched entries (above %d) — check for a stalled or missing input stream", name, n, p.policy.WarnAboveEntries)
		}
	}
}

// Start begins running scheduled sweeps in the background.
func (p *Pruner) Start() { p.scheduler.Start() }

// Stop halts the scheduler and releases its resources.
func (p *Pruner) Stop() error {
	return p.scheduler.Shutdown()
}
