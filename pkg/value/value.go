// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package value implements the heterogeneous scalar variant that flows
// through every record in the query engine: timestamps, counters, IPv4
// addresses, MAC addresses, and the Empty sentinel used to seed
// reductions.
package value

import (
	"fmt"
	"net"
)

// Arm identifies which case of the Value variant is populated.
type Arm int

const (
	// ArmEmpty is the zero value: the sentinel used as the initial
	// accumulator in reductions. Equal only to itself.
	ArmEmpty Arm = iota
	ArmFloat
	ArmInt
	ArmIPv4
	ArmMAC
)

func (a Arm) String() string {
	switch a {
	case ArmEmpty:
		return "Empty"
	case ArmFloat:
		return "Float"
	case ArmInt:
		return "Int"
	case ArmIPv4:
		return "IPv4"
	case ArmMAC:
		return "MAC"
	default:
		return "Unknown"
	}
}

// Value is a tagged variant carrying exactly one of a fractional scalar,
// a signed integer, an IPv4 address (as a 32-bit integer), or a 6-byte
// MAC address. The zero Value is Empty.
type Value struct {
	arm   Arm
	f     float64
	i     int64
	ipv4  uint32
	mac   [6]byte
}

// Empty returns the Empty sentinel value.
func Empty() Value { return Value{arm: ArmEmpty} }

// Float wraps a float64 scalar (wall-clock timestamps and other
// fractional measurements).
func Float(f float64) Value { return Value{arm: ArmFloat, f: f} }

// Int wraps a signed 64-bit integer (counters, ports, epoch ids, flag
// bitfields).
func Int(i int64) Value { return Value{arm: ArmInt, i: i} }

// IPv4 wraps an IPv4 address stored as a 32-bit integer in host order.
func IPv4(addr uint32) Value { return Value{arm: ArmIPv4, ipv4: addr} }

// MAC wraps a 6-byte Ethernet address.
func MAC(addr [6]byte) Value { return Value{arm: ArmMAC, mac: addr} }

// Arm reports which variant arm is populated.
func (v Value) Arm() Arm { return v.arm }

// IsEmpty reports whether v is the Empty sentinel.
func (v Value) IsEmpty() bool { return v.arm == ArmEmpty }

// AsFloat returns the wrapped float64, or a TypeMismatch error if v is
// not a Float.
func (v Value) AsFloat() (float64, error) {
	if v.arm != ArmFloat {
		return 0, &TypeMismatchError{Expected: ArmFloat, Actual: v.arm}
	}
	return v.f, nil
}

// AsInt returns the wrapped int64, or a TypeMismatch error if v is not
// an Int.
func (v Value) AsInt() (int64, error) {
	if v.arm != ArmInt {
		return 0, &TypeMismatchError{Expected: ArmInt, Actual: v.arm}
	}
	return v.i, nil
}

// AsIPv4 returns the wrapped 32-bit address, or a TypeMismatch error if
// v is not an IPv4.
func (v Value) AsIPv4() (uint32, error) {
	if v.arm != ArmIPv4 {
		return 0, &TypeMismatchError{Expected: ArmIPv4, Actual: v.arm}
	}
	return v.ipv4, nil
}

// AsMAC returns the wrapped 6-byte address, or a TypeMismatch error if v
// is not a MAC.
func (v Value) AsMAC() ([6]byte, error) {
	if v.arm != ArmMAC {
		return [6]byte{}, &TypeMismatchError{Expected: ArmMAC, Actual: v.arm}
	}
	return v.mac, nil
}

// Equal reports structural equality between two values: same arm and
// same underlying payload. Two Empty values are always equal.
func (v Value) Equal(o Value) bool {
	if v.arm != o.arm {
		return false
	}
	switch v.arm {
	case ArmEmpty:
		return true
	case ArmFloat:
		return v.f == o.f
	case ArmInt:
		return v.i == o.i
	case ArmIPv4:
		return v.ipv4 == o.ipv4
	case ArmMAC:
		return v.mac == o.mac
	default:
		return false
	}
}

// Less provides a total order across all values, sufficient for use as
// a sort/aggregation key. Arms are ordered by their Arm constant; within
// an arm, by natural order of the payload.
func (v Value) Less(o Value) bool {
	if v.arm != o.arm {
		return v.arm < o.arm
	}
	switch v.arm {
	case ArmEmpty:
		return false
	case ArmFloat:
		return v.f < o.f
	case ArmInt:
		return v.i < o.i
	case ArmIPv4:
		return v.ipv4 < o.ipv4
	case ArmMAC:
		for i := range v.mac {
			if v.mac[i] != o.mac[i] {
				return v.mac[i] < o.mac[i]
			}
		}
		return false
	default:
		return false
	}
}

// String formats the value for display. Float is formatted with six
// fractional digits to preserve round-trip precision with the reference
// CSV output; IPv4 as canonical dotted-quad; MAC via net.HardwareAddr.
func (v Value) String() string {
	switch v.arm {
	case ArmEmpty:
		return "Empty"
	case ArmFloat:
		return fmt.Sprintf("%.6f", v.f)
	case ArmInt:
		return fmt.Sprintf("%d", v.i)
	case ArmIPv4:
		return net.IPv4(byte(v.ipv4>>24), byte(v.ipv4>>16), byte(v.ipv4>>8), byte(v.ipv4)).String()
	case ArmMAC:
		return net.HardwareAddr(v.mac[:]).String()
	default:
		return "?"
	}
}

// hashKey returns a canonical, collision-resistant textual encoding used
// when a Value participates in a Record's structural hash key. Distinct
// from String(): it includes the arm tag so that, e.g., Int(0) and
// IPv4(0) never collide.
func (v Value) hashKey() string {
	switch v.arm {
	case ArmEmpty:
		return "E"
	case ArmFloat:
		return fmt.Sprintf("F%x", v.f)
	case ArmInt:
		return fmt.Sprintf("I%d", v.i)
	case ArmIPv4:
		return fmt.Sprintf("4%d", v.ipv4)
	case ArmMAC:
		return fmt.Sprintf("M%x", v.mac)
	default:
		return "?"
	}
}

// HashKey exposes hashKey for use by pkg/record's canonical Record key.
func (v Value) HashKey() string { return v.hashKey() }
