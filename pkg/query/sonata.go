package query

import (
	"github.com/lukemarshall2222/netquery/pkg/epoch"
	"github.com/lukemarshall2222/netquery/pkg/groupby"
	"github.com/lukemarshall2222/netquery/pkg/join"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/packet"
)

// SynFloodSonata implements the Sonata-style SYN flood detector (spec
// §4.7): three input streams (SYN, SYN-ACK, ACK) feed two chained
// joins. A host whose syns+synacks-acks total reaches
// ThresholdSonata in a 1s epoch is flagged — a host completing far
// fewer handshakes than it started or was addressed by.
//
// The returned map's keys are the stream names a driver feeds:
// "syn", "synack", "ack".
func SynFloodSonata(sink operator.Operator) (map[string]operator.Operator, map[string]Table) {
	finalSink := operator.Chain(sink,
		operator.Map(diffFields("syns+synacks-acks", "syns+synacks", "acks")),
		operator.Filter(atLeast("syns+synacks-acks", ThresholdSonata)),
	)

	join2Left, join2Right := join.New(
		sameKeyExtractor("host", "syns+synacks"),
		renameExtractor(packet.IPv4DstField, "acks"),
		finalSink,
		epoch.DefaultKeyOut,
	)

	join1Sink := operator.Map(sumFields("syns+synacks", "syns", "synacks"))(join2Left)

	join1Left, join1Right := join.New(
		renameExtractor(packet.IPv4DstField, "syns"),
		renameExtractor(packet.IPv4SrcField, "synacks"),
		join1Sink,
		epoch.DefaultKeyOut,
	)

	syns := operator.Chain(join1Left,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsEqual(packet.FlagSYN))),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "syns"),
	)
	synacks := operator.Chain(join1Right,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsEqual(packet.FlagSYNACK))),
		groupby.New(groupby.FilterGroups(packet.IPv4SrcField), groupby.Counter, "synacks"),
	)
	acks := operator.Chain(join2Right,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsEqual(packet.FlagACK))),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "acks"),
	)

	ops := map[string]operator.Operator{
		"syn":    syns,
		"synack": synacks,
		"ack":    acks,
	}
	tables := map[string]Table{
		"syn":          join1Left.(Table),
		"synack":       join1Right.(Table),
		"syns+synacks": join2Left.(Table),
		"ack":          join2Right.(Table),
	}
	return ops, tables
}
