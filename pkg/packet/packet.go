// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package packet documents the ingestion boundary between the engine
// and a packet parser. Ethernet/IPv4/TCP/UDP header extraction from
// binary buffers is out of scope for this module (spec §1): Parser is
// the seam a real parser implementation plugs into.
package packet

import "github.com/lukemarshall2222/netquery/pkg/record"

// FieldSet enumerates the record keys a parser is expected to
// populate, by arm, per spec §6. A Parser need not populate fields not
// relevant to a given link/network/transport combination, but every
// record reaching the engine must at minimum carry TimeField.
const (
	TimeField = "time"

	EthSrcField        = "eth.src"
	EthDstField        = "eth.dst"
	EthEthertypeField  = "eth.ethertype"

	IPv4HlenField  = "ipv4.hlen"
	IPv4ProtoField = "ipv4.proto"
	IPv4LenField   = "ipv4.len"
	IPv4SrcField   = "ipv4.src"
	IPv4DstField   = "ipv4.dst"

	L4SportField = "l4.sport"
	L4DportField = "l4.dport"
	L4FlagsField = "l4.flags"
)

// Protocol numbers referenced by the query library's filters.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// TCP flag bits referenced by the query library's filters.
const (
	FlagFIN = 1 << 0
	FlagSYN = 1 << 1
	FlagACK = 1 << 4
	FlagSYNACK = FlagSYN | FlagACK
)

// Parser turns a raw captured frame into one engine record.
// A frame that cannot be parsed (truncated header, unsupported
// ethertype) should be skipped by the caller rather than surfaced as a
// record; Parser itself reports the error so the caller can decide.
type Parser interface {
	Parse(frame []byte, captureTime float64) (record.Record, error)
}
