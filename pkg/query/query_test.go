package query_test

import (
	"testing"

	"github.com/lukemarshall2222/netquery/internal/testutil"
	"github.com/lukemarshall2222/netquery/pkg/packet"
	"github.com/lukemarshall2222/netquery/pkg/query"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

func pkt(fields ...record.Field) record.Record {
	return record.Of(append([]record.Field{record.F(packet.TimeField, value.Float(0.5))}, fields...)...)
}

// Scenario 2 from spec §8: 5 records all at time=0.5, through count_pkts,
// should produce one record pkts=5, eid=0, followed by one reset.
func TestCountPktsSingleEpoch(t *testing.T) {
	sink := &testutil.Collector{}
	op := query.CountPkts(sink)

	for i := 0; i < 5; i++ {
		if err := op.Next(pkt()); err != nil {
			t.Fatal(err)
		}
	}
	if err := op.Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.Nexts))
	}
	pkts, err := sink.Nexts[0].GetInt("pkts")
	if err != nil || pkts != 5 {
		t.Fatalf("pkts = %v (%v), want 5", pkts, err)
	}
	eid, _ := sink.Nexts[0].GetInt("eid")
	if eid != 0 {
		t.Fatalf("eid = %d, want 0", eid)
	}
	if len(sink.Resets) != 1 {
		t.Fatalf("got %d resets, want 1", len(sink.Resets))
	}
}

func tcpSyn(dst int64) record.Record {
	return pkt(
		record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
		record.F(packet.L4FlagsField, value.Int(packet.FlagSYN)),
		record.F(packet.IPv4DstField, value.IPv4(uint32(dst))),
	)
}

// Scenario 3 from spec §8: tcp_new_cons flags a destination only once it
// reaches ThresholdTCPNewCons (40) bare SYNs in the epoch; 39 must not
// trigger, 40 must.
func TestTCPNewConsThreshold(t *testing.T) {
	t.Run("below threshold", func(t *testing.T) {
		sink := &testutil.Collector{}
		op := query.TCPNewCons(sink)
		for i := 0; i < 39; i++ {
			if err := op.Next(tcpSyn(1)); err != nil {
				t.Fatal(err)
			}
		}
		op.Reset(record.New())
		if len(sink.Nexts) != 0 {
			t.Fatalf("39 SYNs should not trigger tcp_new_cons, got %d records", len(sink.Nexts))
		}
	})

	t.Run("at threshold", func(t *testing.T) {
		sink := &testutil.Collector{}
		op := query.TCPNewCons(sink)
		for i := 0; i < 40; i++ {
			if err := op.Next(tcpSyn(1)); err != nil {
				t.Fatal(err)
			}
		}
		op.Reset(record.New())
		if len(sink.Nexts) != 1 {
			t.Fatalf("40 SYNs should trigger tcp_new_cons, got %d records", len(sink.Nexts))
		}
		cons, _ := sink.Nexts[0].GetInt("cons")
		if cons != 40 {
			t.Fatalf("cons = %d, want 40", cons)
		}
	})
}

// Scenario 5 from spec §8: Slowloris flags a destination receiving many
// connections each carrying very few bytes: 6 distinct connection
// triples (>= ThresholdSlowlorisConns) paired against 8 byte-bearing
// records summing to a byte count whose per-connection ratio stays at
// or below ThresholdSlowlorisBytesPerConn.
func TestSlowlorisPositive(t *testing.T) {
	sink := &testutil.Collector{}
	ops, _ := query.Slowloris(sink)

	dst := value.IPv4(10)
	for sport := int64(0); sport < 6; sport++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.IPv4SrcField, value.IPv4(uint32(100+sport))),
			record.F(packet.IPv4DstField, dst),
			record.F(packet.L4SportField, value.Int(sport)),
		)
		if err := ops["conns"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["conns"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 8; i++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.IPv4DstField, dst),
			record.F(packet.IPv4LenField, value.Int(65)),
		)
		if err := ops["bytes"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["bytes"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d flagged records, want 1", len(sink.Nexts))
	}
	ratio, err := sink.Nexts[0].GetInt("bytes_per_conn")
	if err != nil {
		t.Fatal(err)
	}
	if ratio > query.ThresholdSlowlorisBytesPerConn {
		t.Fatalf("bytes_per_conn = %d, want <= %d", ratio, query.ThresholdSlowlorisBytesPerConn)
	}
}

// A join table holds an unmatched entry until the other side catches
// up, and drops it once a match is produced — the tables BuildMulti
// exposes alongside the stream operators must reflect that directly so
// a pruner can watch the same state the join itself mutates.
func TestSlowlorisTablesTrackUnmatchedEntries(t *testing.T) {
	sink := &testutil.Collector{}
	ops, tables := query.Slowloris(sink)

	if tables["conns"].Len() != 0 || tables["bytes"].Len() != 0 {
		t.Fatalf("expected both tables empty before any input, got conns=%d bytes=%d", tables["conns"].Len(), tables["bytes"].Len())
	}

	dst := value.IPv4(10)
	for sport := int64(0); sport < 6; sport++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.IPv4SrcField, value.IPv4(uint32(100+sport))),
			record.F(packet.IPv4DstField, dst),
			record.F(packet.L4SportField, value.Int(sport)),
		)
		if err := ops["conns"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["conns"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	if tables["conns"].Len() != 1 {
		t.Fatalf("expected 1 unmatched conns entry waiting on a bytes match, got %d", tables["conns"].Len())
	}
	if tables["bytes"].Len() != 0 {
		t.Fatalf("expected bytes table untouched, got %d", tables["bytes"].Len())
	}

	for i := 0; i < 8; i++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.IPv4DstField, dst),
			record.F(packet.IPv4LenField, value.Int(65)),
		)
		if err := ops["bytes"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["bytes"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	if tables["conns"].Len() != 0 {
		t.Fatalf("expected the match to clear the waiting conns entry, got %d", tables["conns"].Len())
	}
}

// Scenario 6 from spec §8: syn_flood_sonata topology smoke test. 5 SYNs
// addressed to a host, 5 SYN-ACKs sourced from that same host, and a
// single ACK back to it should leave syns+synacks-acks = 9, clearing
// ThresholdSonata (3).
func TestSynFloodSonataTopology(t *testing.T) {
	sink := &testutil.Collector{}
	ops, _ := query.SynFloodSonata(sink)

	host := value.IPv4(10)
	for i := 0; i < 5; i++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.L4FlagsField, value.Int(packet.FlagSYN)),
			record.F(packet.IPv4DstField, host),
		)
		if err := ops["syn"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["syn"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		r := pkt(
			record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
			record.F(packet.L4FlagsField, value.Int(packet.FlagSYNACK)),
			record.F(packet.IPv4SrcField, host),
		)
		if err := ops["synack"].Next(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := ops["synack"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	ackRec := pkt(
		record.F(packet.IPv4ProtoField, value.Int(packet.ProtoTCP)),
		record.F(packet.L4FlagsField, value.Int(packet.FlagACK)),
		record.F(packet.IPv4DstField, host),
	)
	if err := ops["ack"].Next(ackRec); err != nil {
		t.Fatal(err)
	}
	if err := ops["ack"].Reset(record.New()); err != nil {
		t.Fatal(err)
	}

	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d flagged records, want 1", len(sink.Nexts))
	}
	diff, err := sink.Nexts[0].GetInt("syns+synacks-acks")
	if err != nil || diff != 9 {
		t.Fatalf("syns+synacks-acks = %v (%v), want 9", diff, err)
	}
}
