package epoch_test

import (
	"testing"

	"github.com/lukemarshall2222/netquery/internal/testutil"
	"github.com/lukemarshall2222/netquery/pkg/epoch"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Scenario 1 from spec §8: 20 ticks at time=0..19 through epoch(1s)
// should produce 20 ascending resets, eid 0..19, one per tick.
func Test20TickIdentity(t *testing.T) {
	sink := &testutil.Collector{}
	op := epoch.New(1.0, "eid")(sink)

	for i := 0; i < 20; i++ {
		r := record.Of(record.F("time", value.Float(float64(i))))
		if err := op.Next(r); err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
	}
	if err := op.Reset(record.New()); err != nil {
		t.Fatalf("final Reset: %v", err)
	}

	if len(sink.Nexts) != 20 {
		t.Fatalf("got %d next records, want 20", len(sink.Nexts))
	}
	if len(sink.Resets) != 20 {
		t.Fatalf("got %d resets, want 20 (one per tick boundary)", len(sink.Resets))
	}

	for i, r := range sink.Resets {
		eid, err := r.GetInt("eid")
		if err != nil {
			t.Fatalf("reset %d missing eid: %v", i, err)
		}
		if eid != int64(i) {
			t.Fatalf("reset %d has eid %d, want %d", i, eid, i)
		}
	}
}

func TestEidMonotonicAndAttached(t *testing.T) {
	sink := &testutil.Collector{}
	op := epoch.New(1.0, "eid")(sink)

	times := []float64{0.0, 0.5, 1.2, 1.9, 2.1}
	for _, ts := range times {
		if err := op.Next(record.Of(record.F("time", value.Float(ts)))); err != nil {
			t.Fatal(err)
		}
	}

	wantEids := []int64{0, 0, 1, 1, 2}
	if len(sink.Nexts) != len(wantEids) {
		t.Fatalf("got %d next records, want %d", len(sink.Nexts), len(wantEids))
	}
	for i, r := range sink.Nexts {
		got, err := r.GetInt("eid")
		if err != nil {
			t.Fatal(err)
		}
		if got != wantEids[i] {
			t.Errorf("record %d: eid = %d, want %d", i, got, wantEids[i])
		}
	}
}

func TestMissingTimeFieldErrors(t *testing.T) {
	sink := &testutil.Collector{}
	op := epoch.New(1.0, "eid")(sink)

	if err := op.Next(record.New()); err == nil {
		t.Fatal("expected MissingFieldError for a record without \"time\"")
	}
}
