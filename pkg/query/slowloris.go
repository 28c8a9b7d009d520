package query

import (
	"github.com/lukemarshall2222/netquery/pkg/distinct"
	"github.com/lukemarshall2222/netquery/pkg/epoch"
	"github.com/lukemarshall2222/netquery/pkg/groupby"
	"github.com/lukemarshall2222/netquery/pkg/join"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/packet"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Slowloris implements the Slowloris low-and-slow detector (spec
// §4.7): joins a per-destination connection count against a
// per-destination byte count over a 1s epoch and flags destinations
// with many connections each carrying very few bytes.
//
// The returned map's keys are "conns" and "bytes".
func Slowloris(sink operator.Operator) (map[string]operator.Operator, map[string]Table) {
	joinSink := operator.Chain(sink,
		operator.Map(bytesPerConn),
		operator.Filter(atMost("bytes_per_conn", ThresholdSlowlorisBytesPerConn)),
	)

	joinLeft, joinRight := join.New(
		sameKeyExtractor(packet.IPv4DstField, "n_conns"),
		sameKeyExtractor(packet.IPv4DstField, "n_bytes"),
		joinSink,
		epoch.DefaultKeyOut,
	)

	nConns := operator.Chain(joinLeft,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(protoEquals(packet.ProtoTCP)),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField, packet.L4SportField)),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "n_conns"),
		operator.Filter(atLeast("n_conns", ThresholdSlowlorisConns)),
	)
	nBytes := operator.Chain(joinRight,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(protoEquals(packet.ProtoTCP)),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.SumInts(packet.IPv4LenField), "n_bytes"),
		operator.Filter(atLeast("n_bytes", ThresholdSlowlorisBytes)),
	)

	ops := map[string]operator.Operator{
		"conns": nConns,
		"bytes": nBytes,
	}
	tables := map[string]Table{
		"conns": joinLeft.(Table),
		"bytes": joinRight.(Table),
	}
	return ops, tables
}

// bytesPerConn computes the integer-division bytes-per-connection
// ratio. n_conns is guaranteed >= 1 by the upstream ThresholdSlowlorisConns
// filter, so this never divides by zero.
func bytesPerConn(r record.Record) (record.Record, error) {
	nBytes, err := r.GetInt("n_bytes")
	if err != nil {
		return record.Record{}, err
	}
	nConns, err := r.GetInt("n_conns")
	if err != nil {
		return record.Record{}, err
	}
	return r.Set("bytes_per_conn", value.Int(nBytes/nConns)), nil
}
