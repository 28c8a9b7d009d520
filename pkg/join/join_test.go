package join_test

import (
	"testing"

	"github.com/lukemarshall2222/netquery/internal/testutil"
	"github.com/lukemarshall2222/netquery/pkg/join"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

func extractByA(carryKey string) join.Extractor {
	return func(r record.Record) (key, carry record.Record, err error) {
		if _, ok := r.Get("a"); !ok {
			return record.Record{}, record.Record{}, &record.MissingFieldError{Key: "a"}
		}
		return r.Restrict("a"), r.Restrict(carryKey), nil
	}
}

// Scenario 4 from spec §8: join pairing, left-first arrival. The left
// record arrives, is buffered unmatched; the right record then arrives
// with the same join key and is paired against it immediately. Only
// once both sides close epoch 0 does the shared downstream see its
// Reset.
func TestJoinPairingLeftFirstArrival(t *testing.T) {
	sink := &testutil.Collector{}
	left, right := join.New(extractByA("x"), extractByA("y"), sink, "eid")

	l := record.Of(record.F("a", value.Int(1)), record.F("x", value.Int(100)), record.F("eid", value.Int(0)))
	if err := left.Next(l); err != nil {
		t.Fatalf("left.Next: %v", err)
	}
	if len(sink.Nexts) != 0 {
		t.Fatalf("unmatched left record should not emit yet, got %d", len(sink.Nexts))
	}

	if err := left.Reset(record.Of(record.F("eid", value.Int(1)))); err != nil {
		t.Fatalf("left.Reset: %v", err)
	}
	if len(sink.Resets) != 0 {
		t.Fatalf("left alone closing epoch 0 should not emit a joint Reset yet, got %d", len(sink.Resets))
	}

	r := record.Of(record.F("a", value.Int(1)), record.F("y", value.Int(200)), record.F("eid", value.Int(0)))
	if err := right.Next(r); err != nil {
		t.Fatalf("right.Next: %v", err)
	}
	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d matched records, want 1", len(sink.Nexts))
	}
	x, _ := sink.Nexts[0].GetInt("x")
	y, _ := sink.Nexts[0].GetInt("y")
	eid, _ := sink.Nexts[0].GetInt("eid")
	if x != 100 || y != 200 || eid != 0 {
		t.Fatalf("got x=%d y=%d eid=%d, want x=100 y=200 eid=0", x, y, eid)
	}

	if err := right.Reset(record.Of(record.F("eid", value.Int(1)))); err != nil {
		t.Fatalf("right.Reset: %v", err)
	}
	if len(sink.Resets) != 1 {
		t.Fatalf("expected exactly one joint Reset once both sides close epoch 0, got %d", len(sink.Resets))
	}
	resetEid, _ := sink.Resets[0].GetInt("eid")
	if resetEid != 0 {
		t.Fatalf("reset eid = %d, want 0", resetEid)
	}
}

func TestJoinUnmatchedRecordsPersistAcrossEpochs(t *testing.T) {
	sink := &testutil.Collector{}
	left, right := join.New(extractByA("x"), extractByA("y"), sink, "eid")

	l := record.Of(record.F("a", value.Int(7)), record.F("x", value.Int(1)), record.F("eid", value.Int(0)))
	left.Next(l)
	left.Reset(record.Of(record.F("eid", value.Int(1))))
	left.Reset(record.Of(record.F("eid", value.Int(2))))

	r := record.Of(record.F("a", value.Int(7)), record.F("y", value.Int(2)), record.F("eid", value.Int(0)))
	if err := right.Next(r); err != nil {
		t.Fatal(err)
	}
	if len(sink.Nexts) != 1 {
		t.Fatalf("expected the late-arriving right record to still match the buffered left entry, got %d matches", len(sink.Nexts))
	}
}

func TestJoinNoMatchEmitsNothing(t *testing.T) {
	sink := &testutil.Collector{}
	left, right := join.New(extractByA("x"), extractByA("y"), sink, "eid")

	left.Next(record.Of(record.F("a", value.Int(1)), record.F("x", value.Int(100)), record.F("eid", value.Int(0))))
	right.Next(record.Of(record.F("a", value.Int(2)), record.F("y", value.Int(200)), record.F("eid", value.Int(0))))

	if len(sink.Nexts) != 0 {
		t.Fatalf("different join keys should never match, got %d emitted records", len(sink.Nexts))
	}
}

// sweepable mirrors the shape a pruner observes a join side through
// (internal/pruner.Sweepable, pkg/query.Table) without importing either.
type sweepable interface {
	Len() int
	PruneOlderThan(maxAge int64) int
}

// Once the opposite side's watermark has moved far enough past an
// unmatched entry's epoch, that entry can never be matched — a
// PruneOlderThan call past that point must drop it, and one made
// before that point must leave it alone.
func TestSidePruneOlderThanDropsOnlyStaleEntries(t *testing.T) {
	sink := &testutil.Collector{}
	left, right := join.New(extractByA("x"), extractByA("y"), sink, "eid")

	l := record.Of(record.F("a", value.Int(1)), record.F("x", value.Int(100)), record.F("eid", value.Int(0)))
	if err := left.Next(l); err != nil {
		t.Fatal(err)
	}

	leftTable := left.(sweepable)
	if n := leftTable.Len(); n != 1 {
		t.Fatalf("expected 1 unmatched left entry, got %d", n)
	}

	for e := int64(1); e <= 3; e++ {
		if err := right.Reset(record.Of(record.F("eid", value.Int(e)))); err != nil {
			t.Fatal(err)
		}
	}
	if dropped := leftTable.PruneOlderThan(5); dropped != 0 {
		t.Fatalf("entry only 3 epochs behind should survive PruneOlderThan(5), dropped %d", dropped)
	}
	if n := leftTable.Len(); n != 1 {
		t.Fatalf("expected the entry to still be present, got %d", n)
	}

	for e := int64(4); e <= 10; e++ {
		if err := right.Reset(record.Of(record.F("eid", value.Int(e)))); err != nil {
			t.Fatal(err)
		}
	}
	if dropped := leftTable.PruneOlderThan(5); dropped != 1 {
		t.Fatalf("entry now 10 epochs behind should be dropped by PruneOlderThan(5), dropped %d", dropped)
	}
	if n := leftTable.Len(); n != 0 {
		t.Fatalf("expected table empty after pruning, got %d", n)
	}
}
