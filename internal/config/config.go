// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the engine's run configuration:
// which query to run, where its input comes from, and where its output
// goes. Validation is against a fixed JSON Schema compiled once at
// init with jsonschema.CompileString, so a malformed
// document fails fast with a schema path instead of surfacing
// downstream as a confusing decode error.
package config

import (
	"encoding/json"
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON constrains a run config to a non-empty query name, a
// source (exactly one of file or nats), and an optional sink. Whether
// the name is a registered query is not checked here.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query", "source"],
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "epochWidth": {"type": "number", "exclusiveMinimum": 0},
    "source": {
      "type": "object",
      "oneOf": [
        {"required": ["files"], "properties": {"files": {"type": "array", "items": {"type": "string"}, "minItems": 1}}},
        {"required": ["nats"], "properties": {"nats": {"$ref": "#/definitions/nats"}}}
      ]
    },
    "sink": {
      "type": "object",
      "properties": {
        "csvPath": {"type": "string"},
        "nats": {"$ref": "#/definitions/nats"},
        "avroPath": {"type": "string"}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "listenAddr": {"type": "string"}
      }
    },
    "pruneInterval": {"type": "string"},
    "pruneMaxAgeEpochs": {"type": "integer", "minimum": 0},
    "ledgerPath": {"type": "string"},
    "predicate": {"type": "string"}
  },
  "definitions": {
    "nats": {
      "type": "object",
      "required": ["address", "subject"],
      "properties": {
        "address": {"type": "string", "minLength": 1},
        "subject": {"type": "string", "minLength": 1},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "credsFilePath": {"type": "string"}
      }
    }
  }
}`

var compiled *jsonschema.Schema

func init() {
	sch, err := jsonschema.CompileString("netquery-run-config.json", schemaJSON)
	if err != nil {
		cclog.Fatalf("config: schema does not compile: %#v", err)
	}
	compiled = sch
}

// NATSEndpoint names a subject on a NATS server, for either a Source
// or a Sink.
type NATSEndpoint struct {
	Address       string `json:"address"`
	Subject       string `json:"subject"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"credsFilePath,omitempty"`
}

// Source selects exactly one input for a run: a list of Walt's-CSV
// files, or a NATS subject.
type Source struct {
	Files []string      `json:"files,omitempty"`
	NATS  *NATSEndpoint `json:"nats,omitempty"`
}

// Sink selects where a run's output records go; any combination may be
// set, and none is also valid (cmd/netquery then dumps results to
// stdout).
type Sink struct {
	CSVPath  string        `json:"csvPath,omitempty"`
	NATS     *NATSEndpoint `json:"nats,omitempty"`
	AvroPath string        `json:"avroPath,omitempty"`
}

// Metrics optionally exposes a Prometheus scrape endpoint for a run.
type Metrics struct {
	ListenAddr string `json:"listenAddr"`
}

// Run is the top-level configuration for a single netquery invocation.
type Run struct {
	Query         string   `json:"query"`
	EpochWidth    float64  `json:"epochWidth,omitempty"`
	Source        Source   `json:"source"`
	Sink          Sink     `json:"sink,omitempty"`
	Metrics       *Metrics `json:"metrics,omitempty"`
	PruneInterval string   `json:"pruneInterval,omitempty"`
	PruneMaxAge   int64    `json:"pruneMaxAgeEpochs,omitempty"`
	LedgerPath    string   `json:"ledgerPath,omitempty"`
	Predicate     string   `json:"predicate,omitempty"`
}

// Load validates raw against the run-config schema and decodes it into
// a Run. Schema validation failures and decode failures are both
// reported as a single wrapped error; the caller decides whether that
// is fatal.
func Load(raw []byte) (Run, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Run{}, fmt.Errorf("config: invalid JSON: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return Run{}, fmt.Errorf("config: schema validation failed: %w", err)
	}

	var run Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return Run{}, fmt.Errorf("config: decode: %w", err)
	}
	if run.Source.Files == nil && run.Source.NATS == nil {
		return Run{}, fmt.Errorf("config: source must set either files or nats")
	}
	return run, nil
}
