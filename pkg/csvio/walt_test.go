package csvio_test

import (
	"io"
	"strings"
	"testing"

	"github.com/lukemarshall2222/netquery/internal/testutil"
	"github.com/lukemarshall2222/netquery/pkg/csvio"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

func TestReadFileParsesSevenFields(t *testing.T) {
	sink := &testutil.Collector{}
	in := strings.NewReader("10.0.0.1,10.0.0.2,1234,80,5,6000,0\n")

	if err := csvio.ReadFile(in, sink, false, nil); err != nil {
		t.Fatal(err)
	}
	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.Nexts))
	}

	r := sink.Nexts[0]
	if sport, _ := r.GetInt(csvio.SrcPortField); sport != 1234 {
		t.Errorf("sport = %d, want 1234", sport)
	}
	if pkts, _ := r.GetInt(csvio.PacketCountField); pkts != 5 {
		t.Errorf("pkts = %d, want 5", pkts)
	}
	if len(sink.Resets) != 1 {
		t.Fatalf("got %d resets, want 1 (final EOF reset)", len(sink.Resets))
	}
	finalEid, _ := sink.Resets[0].GetInt(csvio.EpochField)
	if finalEid != 1 {
		t.Errorf("final reset eid = %d, want 1 (one past the last epoch seen)", finalEid)
	}
}

func TestReadFileNullAddressSentinel(t *testing.T) {
	sink := &testutil.Collector{}
	in := strings.NewReader("0,10.0.0.2,1234,80,5,6000,0\n")

	if err := csvio.ReadFile(in, sink, false, nil); err != nil {
		t.Fatal(err)
	}
	src, err := sink.Nexts[0].MustGet(csvio.SrcIPField)
	if err != nil {
		t.Fatal(err)
	}
	n, err := src.AsInt()
	if err != nil || n != 0 {
		t.Fatalf("expected the literal \"0\" sentinel to parse as Int(0), got %v (%v)", n, err)
	}
}

func TestReadFileEpochRolloverEmitsOneResetPerEpoch(t *testing.T) {
	sink := &testutil.Collector{}
	in := strings.NewReader(
		"10.0.0.1,10.0.0.2,1,2,1,1,0\n" +
			"10.0.0.1,10.0.0.2,1,2,1,1,2\n",
	)

	if err := csvio.ReadFile(in, sink, false, nil); err != nil {
		t.Fatal(err)
	}
	// epoch 0 -> epoch 2 should close out epochs 0 and 1 as the
	// watermark rolls forward, then the final EOF reset closes epoch 2
	// (emitted as watermark+1, per the file source contract).
	if len(sink.Resets) != 3 {
		t.Fatalf("got %d resets, want 3", len(sink.Resets))
	}
	wantEids := []int64{0, 1, 3}
	for i, r := range sink.Resets {
		eid, _ := r.GetInt(csvio.EpochField)
		if eid != wantEids[i] {
			t.Errorf("reset %d has eid %d, want %d", i, eid, wantEids[i])
		}
	}
}

func TestReadFileMalformedLineFailsByDefault(t *testing.T) {
	sink := &testutil.Collector{}
	in := strings.NewReader("not,enough,fields\n")

	if err := csvio.ReadFile(in, sink, false, nil); err == nil {
		t.Fatal("expected a ParseError for a malformed line")
	}
}

func TestReadFileSkipMalformedSkipsAndContinues(t *testing.T) {
	sink := &testutil.Collector{}
	in := strings.NewReader(
		"not,enough,fields\n" +
			"10.0.0.1,10.0.0.2,1,2,1,1,0\n",
	)

	var skipped []error
	if err := csvio.ReadFile(in, sink, true, func(err error) { skipped = append(skipped, err) }); err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 {
		t.Fatalf("got %d skipped lines, want 1", len(skipped))
	}
	if len(sink.Nexts) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.Nexts))
	}
}

func TestReadFilesRejectsUnequalCounts(t *testing.T) {
	readers := []io.Reader{strings.NewReader(""), strings.NewReader("")}
	ops := []operator.Operator{&testutil.Collector{}}

	err := csvio.ReadFiles(readers, ops, false, nil)
	if err == nil {
		t.Fatal("expected a ConfigError for mismatched reader/operator counts")
	}
	if _, ok := err.(*csvio.ConfigError); !ok {
		t.Fatalf("got %T, want *csvio.ConfigError", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	original := "10.0.0.1,10.0.0.2,1234,80,5,6000,0\n"
	sink := &testutil.Collector{}
	if err := csvio.ReadFile(strings.NewReader(original), sink, false, nil); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	writer := csvio.NewSink(&out)
	if err := writer.Next(sink.Nexts[0]); err != nil {
		t.Fatal(err)
	}

	if out.String() != original {
		t.Fatalf("round trip mismatch: got %q, want %q", out.String(), original)
	}
}

func TestSinkRejectsNonAddressSrc(t *testing.T) {
	r := record.Of(
		record.F(csvio.SrcIPField, value.Int(5)),
		record.F(csvio.DstIPField, value.Int(0)),
		record.F(csvio.SrcPortField, value.Int(1)),
		record.F(csvio.DstPortField, value.Int(2)),
		record.F(csvio.PacketCountField, value.Int(1)),
		record.F(csvio.ByteCountField, value.Int(1)),
		record.F(csvio.EpochField, value.Int(0)),
	)
	var out strings.Builder
	writer := csvio.NewSink(&out)
	if err := writer.Next(r); err == nil {
		t.Fatal("expected an error for a non-zero, non-IPv4 address field")
	}
}
