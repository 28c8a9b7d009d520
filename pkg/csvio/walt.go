// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package csvio implements Walt's canonical CSV format (spec §6): one
// record per line, seven comma-separated fields in fixed order
// (src_ip, dst_ip, src_l4_port, dst_l4_port, packet_count, byte_count,
// epoch_id), used by both the file source and the paired sink.
package csvio

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Field names used by Walt's CSV records once parsed into the engine's
// Record type.
const (
	SrcIPField      = "ipv4.src"
	DstIPField      = "ipv4.dst"
	SrcPortField    = "l4.sport"
	DstPortField    = "l4.dport"
	PacketCountField = "pkt_count"
	ByteCountField   = "byte_count"
	EpochField       = "eid"
	TuplesField      = "tuples"
)

// ParseError reports an address/integer/line parse failure at the
// CSV boundary.
type ParseError struct {
	Context string
	Line    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %q", e.Context, e.Line)
}

// ConfigError reports a misconfigured read: spec §7 specifically calls
// out ReadFiles being given unequal numbers of files and operators.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

func parseAddrField(field string) (value.Value, error) {
	if field == "0" {
		return value.Int(0), nil
	}
	ip := net.ParseIP(field).To4()
	if ip == nil {
		return value.Value{}, &ParseError{Context: "address", Line: field}
	}
	addr := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
	return value.IPv4(addr), nil
}

func parseIntField(context, field string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, &ParseError{Context: context, Line: field}
	}
	return n, nil
}

// parseLine parses one Walt's-CSV line into a Record. It does not set
// the "tuples"/"eid" bookkeeping fields; the caller (ReadFile) adds
// those.
func parseLine(line string) (record.Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 7 {
		return record.Record{}, &ParseError{Context: "field count", Line: line}
	}

	src, err := parseAddrField(fields[0])
	if err != nil {
		return record.Record{}, err
	}
	dst, err := parseAddrField(fields[1])
	if err != nil {
		return record.Record{}, err
	}
	sport, err := parseIntField("src_l4_port", fields[2])
	if err != nil {
		return record.Record{}, err
	}
	dport, err := parseIntField("dst_l4_port", fields[3])
	if err != nil {
		return record.Record{}, err
	}
	pkts, err := parseIntField("packet_count", fields[4])
	if err != nil {
		return record.Record{}, err
	}
	bytes_, err := parseIntField("byte_count", fields[5])
	if err != nil {
		return record.Record{}, err
	}
	eid, err := parseIntField("epoch_id", fields[6])
	if err != nil {
		return record.Record{}, err
	}

	return record.Of(
		record.F(SrcIPField, src),
		record.F(DstIPField, dst),
		record.F(SrcPortField, value.Int(sport)),
		record.F(DstPortField, value.Int(dport)),
		record.F(PacketCountField, value.Int(pkts)),
		record.F(ByteCountField, value.Int(bytes_)),
		record.F(EpochField, value.Int(eid)),
	), nil
}

// ReadFile drives op's Next/Reset from the lines of r, following spec
// §6's file source contract: the per-file tuple counter increments per
// line; whenever a line's epoch_id advances past the watermark, one
// Reset is emitted per intervening epoch (carrying the counter value
// at the moment of rollover and the watermark epoch, then the counter
// resets to one for the new epoch); on EOF one final Reset is emitted
// with the watermark advanced one past the last epoch seen.
//
// skipMalformed, if true, passes the parse error of a bad line to
// onSkip (when non-nil) and skips that line instead of aborting the
// whole read (the boundary-parser leniency
// spec §7 allows); when false (the default for in-pipeline use) a
// malformed line is fatal.
func ReadFile(r io.Reader, op operator.Operator, skipMalformed bool, onSkip func(error)) error {
	scanner := bufio.NewScanner(r)

	var counter int64
	var watermark int64
	haveLine := false

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			if skipMalformed {
				if onSkip != nil {
					onSkip(err)
				}
				continue
			}
			return err
		}
		haveLine = true

		eidVal, _ := rec.GetInt(EpochField)
		counter++

		if eidVal > watermark {
			for ; watermark < eidVal; watermark++ {
				if err := op.Reset(record.Of(
					record.F(TuplesField, value.Int(counter)),
					record.F(EpochField, value.Int(watermark)),
				)); err != nil {
					return err
				}
				counter = 0
			}
			counter = 1
		}

		if err := op.Next(rec.Set(TuplesField, value.Int(counter))); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	finalEid := watermark
	if haveLine {
		finalEid = watermark + 1
	}
	return op.Reset(record.Of(
		record.F(TuplesField, value.Int(counter)),
		record.F(EpochField, value.Int(finalEid)),
	))
}

// ReadFiles drives len(readers) independent ReadFile runs, one per
// (reader, operator) pair. It exists to mirror spec §6's
// "read_walts_csv" entry point, which fails with ConfigError when the
// number of files and operators disagree rather than silently zipping
// a truncated pairing.
func ReadFiles(readers []io.Reader, ops []operator.Operator, skipMalformed bool, onSkip func(error)) error {
	if len(readers) != len(ops) {
		return &ConfigError{Reason: fmt.Sprintf("%d files but %d operators", len(readers), len(ops))}
	}
	for i := range readers {
		if err := ReadFile(readers[i], ops[i], skipMalformed, onSkip); err != nil {
			return err
		}
	}
	return nil
}

// Sink writes records to w in Walt's canonical CSV format: the seven
// fields comma-separated, trailing newline, no header.
type Sink struct {
	w io.Writer
}

// NewSink wraps w as a Walt's-CSV sink operator.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

func formatAddrField(r record.Record, key string) (string, error) {
	v, err := r.MustGet(key)
	if err != nil {
		return "", err
	}
	switch v.Arm() {
	case value.ArmIPv4:
		return v.String(), nil
	case value.ArmInt:
		n, _ := v.AsInt()
		if n == 0 {
			return "0", nil
		}
		return "", &ParseError{Context: key, Line: v.String()}
	default:
		return "", &value.TypeMismatchError{Expected: value.ArmIPv4, Actual: v.Arm()}
	}
}

func (s *Sink) Next(r record.Record) error {
	src, err := formatAddrField(r, SrcIPField)
	if err != nil {
		return err
	}
	dst, err := formatAddrField(r, DstIPField)
	if err != nil {
		return err
	}
	sport, err := r.GetInt(SrcPortField)
	if err != nil {
		return err
	}
	dport, err := r.GetInt(DstPortField)
	if err != nil {
		return err
	}
	pkts, err := r.GetInt(PacketCountField)
	if err != nil {
		return err
	}
	bytes_, err := r.GetInt(ByteCountField)
	if err != nil {
		return err
	}
	eid, err := r.GetInt(EpochField)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "%s,%s,%d,%d,%d,%d,%d\n", src, dst, sport, dport, pkts, bytes_, eid)
	return err
}

func (s *Sink) Reset(_ record.Record) error {
	return nil
}
