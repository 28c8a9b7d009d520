package avrosink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lukemarshall2222/netquery/internal/avrosink"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

func TestSinkWritesAndCloses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hits.avro")

	sink, err := avrosink.NewSink(path, "ids_hit")
	if err != nil {
		t.Fatal(err)
	}

	r := record.Of(
		record.F("ipv4.dst", value.IPv4(0x0a000001)),
		record.F("eid", value.Int(3)),
		record.F("cons", value.Int(40)),
	)
	if err := sink.Next(r); err != nil {
		t.Fatal(err)
	}
	if err := sink.Next(r); err != nil {
		t.Fatal(err)
	}
	if err := sink.Reset(record.New()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("expected a non-empty Avro file to have been written")
	}
}

func TestSinkRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	sink, err := avrosink.NewSink(filepath.Join(dir, "hits.avro"), "ids_hit")
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	first := record.Of(record.F("a", value.Int(1)))
	if err := sink.Next(first); err != nil {
		t.Fatal(err)
	}

	missingField := record.Of(record.F("b", value.Int(2)))
	if err := sink.Next(missingField); err == nil {
		t.Fatal("expected an error when a later record lacks a field the inferred schema requires")
	}
}
