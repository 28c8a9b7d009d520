package config_test

import (
	"testing"

	"github.com/lukemarshall2222/netquery/internal/config"
)

func TestLoadValidFileSource(t *testing.T) {
	raw := []byte(`{
		"query": "tcp_new_cons",
		"source": {"files": ["walt1.csv", "walt2.csv"]},
		"sink": {"csvPath": "out.csv"}
	}`)

	run, err := config.Load(raw)
	if err != nil {
		t.Fatal(err)
	}
	if run.Query != "tcp_new_cons" {
		t.Errorf("query = %q, want tcp_new_cons", run.Query)
	}
	if len(run.Source.Files) != 2 {
		t.Errorf("got %d files, want 2", len(run.Source.Files))
	}
}

func TestLoadValidNATSSource(t *testing.T) {
	raw := []byte(`{
		"query": "ddos",
		"source": {"nats": {"address": "nats://localhost:4222", "subject": "packets.in"}}
	}`)

	run, err := config.Load(raw)
	if err != nil {
		t.Fatal(err)
	}
	if run.Source.NATS == nil || run.Source.NATS.Subject != "packets.in" {
		t.Fatalf("got %+v, want a nats source on packets.in", run.Source.NATS)
	}
}

func TestLoadRejectsMissingQuery(t *testing.T) {
	raw := []byte(`{"source": {"files": ["a.csv"]}}`)
	if _, err := config.Load(raw); err == nil {
		t.Fatal("expected a schema validation error for a missing query field")
	}
}

func TestLoadRejectsSourceWithBothFilesAndNATS(t *testing.T) {
	raw := []byte(`{
		"query": "ident",
		"source": {
			"files": ["a.csv"],
			"nats": {"address": "nats://localhost:4222", "subject": "x"}
		}
	}`)
	if _, err := config.Load(raw); err == nil {
		t.Fatal("expected a schema validation error: source must be exactly one of files or nats")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	if _, err := config.Load([]byte(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLoadParsesPruneSettings(t *testing.T) {
	raw := []byte(`{
		"query": "slowloris",
		"source": {"files": ["conns.csv", "bytes.csv"]},
		"pruneInterval": "5m",
		"pruneMaxAgeEpochs": 120
	}`)

	run, err := config.Load(raw)
	if err != nil {
		t.Fatal(err)
	}
	if run.PruneInterval != "5m" {
		t.Errorf("pruneInterval = %q, want 5m", run.PruneInterval)
	}
	if run.PruneMaxAge != 120 {
		t.Errorf("pruneMaxAgeEpochs = %d, want 120", run.PruneMaxAge)
	}
}
