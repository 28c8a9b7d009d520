// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package avrosink persists a query's output records to an Avro
// object-container file: a fixed schema compiled once, records
// appended through a single long-lived OCF writer reused across every
// Next call. Only output records are written here, never operator
// state — the engine does not resume a run from disk.
package avrosink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"

	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// schemaFor builds an Avro record schema from a sample record's field
// set: every field is a nullable union of {null, double, long, string},
// wide enough to hold any of value.Value's arms without per-query
// schema authoring.
func schemaFor(name string, sample record.Record) string {
	fields := `[`
	for i, k := range sample.Keys() {
		if i > 0 {
			fields += `,`
		}
		fields += fmt.Sprintf(`{"name":%q,"type":["null","double","long","string"]}`, avroFieldName(k))
	}
	fields += `]`
	return fmt.Sprintf(`{"type":"record","name":%q,"fields":%s}`, name, fields)
}

// avroFieldName maps a record field name (which may contain "." as in
// "ipv4.src") to a legal Avro field name.
func avroFieldName(k string) string {
	out := make([]byte, len(k))
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = k[i]
		}
	}
	return string(out)
}

func toAvroValue(r record.Record, field string) (any, error) {
	v, err := r.MustGet(field)
	if err != nil {
		return nil, err
	}
	switch v.Arm() {
	case value.ArmFloat:
		f, _ := v.AsFloat()
		return map[string]any{"double": f}, nil
	case value.ArmInt:
		n, _ := v.AsInt()
		return map[string]any{"long": n}, nil
	case value.ArmIPv4, value.ArmMAC:
		return map[string]any{"string": v.String()}, nil
	default:
		return nil, nil
	}
}

// Sink is an operator.Operator that appends every record it sees to an
// Avro OCF file on disk. Reset is a no-op: epoch boundaries are not
// represented in the output file, matching the persistence Non-goal —
// this sink only ever writes completed result rows.
type Sink struct {
	f      *os.File
	w      *bufio.Writer
	writer *goavro.OCFWriter
	name   string
}

// NewSink opens (creating if necessary) path for append and returns a
// Sink. The Avro schema is inferred from the first record written, so
// every record passed to Next must share the same field set; the OCF
// writer (and its header) is created exactly once, on that first call.
func NewSink(path, recordName string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("avrosink: open %s: %w", path, err)
	}
	return &Sink{f: f, w: bufio.NewWriter(f), name: recordName}, nil
}

func (s *Sink) Next(r record.Record) error {
	if s.writer == nil {
		codec, err := goavro.NewCodec(schemaFor(s.name, r))
		if err != nil {
			return fmt.Errorf("avrosink: schema: %w", err)
		}
		writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
			W:               s.w,
			Codec:           codec,
			CompressionName: goavro.CompressionDeflateLabel,
		})
		if err != nil {
			return fmt.Errorf("avrosink: OCF writer: %w", err)
		}
		s.writer = writer
	}

	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		av, err := toAvroValue(r, k)
		if err != nil {
			return err
		}
		out[avroFieldName(k)] = av
	}

	if err := s.writer.Append([]any{out}); err != nil {
		return fmt.Errorf("avrosink: append: %w", err)
	}
	return nil
}

func (s *Sink) Reset(_ record.Record) error { return nil }

// Close flushes buffered output and closes the underlying file.
func (s *Sink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}
