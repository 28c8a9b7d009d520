package query

import (
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/packet"
	"github.com/lukemarshall2222/netquery/pkg/record"
)

func protoEquals(proto int64) operator.Predicate {
	return func(r record.Record) bool {
		v, err := r.GetInt(packet.IPv4ProtoField)
		return err == nil && v == proto
	}
}

func flagsEqual(flags int64) operator.Predicate {
	return func(r record.Record) bool {
		v, err := r.GetInt(packet.L4FlagsField)
		return err == nil && v == flags
	}
}

func flagsHaveBit(bit int64) operator.Predicate {
	return func(r record.Record) bool {
		v, err := r.GetInt(packet.L4FlagsField)
		return err == nil && v&bit == bit
	}
}

func and(preds ...operator.Predicate) operator.Predicate {
	return func(r record.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

func atLeast(field string, threshold int64) operator.Predicate {
	return func(r record.Record) bool {
		v, err := r.GetInt(field)
		return err == nil && v >= threshold
	}
}

func atMost(field string, threshold int64) operator.Predicate {
	return func(r record.Record) bool {
		v, err := r.GetInt(field)
		return err == nil && v <= threshold
	}
}
