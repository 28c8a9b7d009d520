package query

import (
	"github.com/lukemarshall2222/netquery/pkg/join"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Multi is a multi-input-stream query: given the terminal sink, it
// returns one operator per named input stream a driver should call
// Next/Reset on, plus the query's underlying join tables keyed the
// same way, for a pruner to watch.
type Multi func(sink operator.Operator) (map[string]operator.Operator, map[string]Table)

// Table is the unmatched-entry side of a join a pruner can monitor and
// age out entries from. pkg/join's join operator satisfies this.
type Table interface {
	Len() int
	PruneOlderThan(maxAge int64) int
}

// renameExtractor returns a join.Extractor that renames hostField into
// "host" for the join key and preserves carryField unchanged as the
// carry.
func renameExtractor(hostField, carryField string) join.Extractor {
	return func(r record.Record) (record.Record, record.Record, error) {
		hv, err := r.MustGet(hostField)
		if err != nil {
			return record.Record{}, record.Record{}, err
		}
		cv, err := r.MustGet(carryField)
		if err != nil {
			return record.Record{}, record.Record{}, err
		}
		return record.Of(record.F("host", hv)), record.Of(record.F(carryField, cv)), nil
	}
}

// sameKeyExtractor returns a join.Extractor that uses keyField itself
// (unrenamed) as the join key and carryField as the carry.
func sameKeyExtractor(keyField, carryField string) join.Extractor {
	return func(r record.Record) (record.Record, record.Record, error) {
		kv, err := r.MustGet(keyField)
		if err != nil {
			return record.Record{}, record.Record{}, err
		}
		cv, err := r.MustGet(carryField)
		if err != nil {
			return record.Record{}, record.Record{}, err
		}
		return record.Of(record.F(keyField, kv)), record.Of(record.F(carryField, cv)), nil
	}
}

func sumFields(outField string, fields ...string) operator.Func {
	return func(r record.Record) (record.Record, error) {
		var sum int64
		for _, f := range fields {
			v, err := r.GetInt(f)
			if err != nil {
				return record.Record{}, err
			}
			sum += v
		}
		return r.Set(outField, value.Int(sum)), nil
	}
}

func diffFields(outField, minuend, subtrahend string) operator.Func {
	return func(r record.Record) (record.Record, error) {
		a, err := r.GetInt(minuend)
		if err != nil {
			return record.Record{}, err
		}
		b, err := r.GetInt(subtrahend)
		if err != nil {
			return record.Record{}, err
		}
		return r.Set(outField, value.Int(a-b)), nil
	}
}
