// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dump implements the two diagnostic sinks described in spec
// §6: a free-form "key" => value dump and a header-then-rows CSV dump.
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/lukemarshall2222/netquery/pkg/record"
)

// Sink formats each record as `"key1" => value1, "key2" => value2, ...`
// terminated by a newline. It never fails on a well-formed record.
type Sink struct {
	w io.Writer
}

// NewSink wraps w as a dump sink operator.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Next(r record.Record) error {
	_, err := fmt.Fprintln(s.w, r.String())
	return err
}

func (s *Sink) Reset(r record.Record) error {
	_, err := fmt.Fprintln(s.w, r.String())
	return err
}

// PrefixColumn configures an optional constant column CSVSink adds
// ahead of every record's own fields: HeaderName labels the column,
// RowValue is written on every data row.
type PrefixColumn struct {
	HeaderName string
	RowValue   string
}

// CSVSink writes a one-line header of comma-separated field names on
// its first invocation (derived from the first record it sees, in that
// record's iteration order, optionally preceded by Prefix.HeaderName),
// then one comma-separated line per subsequent record.
type CSVSink struct {
	w          io.Writer
	Prefix     *PrefixColumn
	headerKeys []string
	wroteHeader bool
}

// NewCSVSink wraps w as a CSV dump sink. prefix may be nil.
func NewCSVSink(w io.Writer, prefix *PrefixColumn) *CSVSink {
	return &CSVSink{w: w, Prefix: prefix}
}

func (s *CSVSink) Next(r record.Record) error {
	if !s.wroteHeader {
		s.headerKeys = r.Keys()
		if err := s.writeHeader(); err != nil {
			return err
		}
		s.wroteHeader = true
	}

	fields := make([]string, 0, len(s.headerKeys)+1)
	if s.Prefix != nil {
		fields = append(fields, s.Prefix.RowValue)
	}
	for _, k := range s.headerKeys {
		v, ok := r.Get(k)
		if ok {
			fields = append(fields, v.String())
		} else {
			fields = append(fields, "")
		}
	}
	_, err := fmt.Fprintln(s.w, strings.Join(fields, ","))
	return err
}

func (s *CSVSink) writeHeader() error {
	fields := make([]string, 0, len(s.headerKeys)+1)
	if s.Prefix != nil {
		fields = append(fields, s.Prefix.HeaderName)
	}
	fields = append(fields, s.headerKeys...)
	_, err := fmt.Fprintln(s.w, strings.Join(fields, ","))
	return err
}

func (s *CSVSink) Reset(_ record.Record) error {
	return nil
}
