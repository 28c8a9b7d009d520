package query

import (
	"github.com/lukemarshall2222/netquery/pkg/epoch"
	"github.com/lukemarshall2222/netquery/pkg/groupby"
	"github.com/lukemarshall2222/netquery/pkg/join"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/packet"
)

// CompletedFlows implements the completed-flow imbalance detector
// (spec §4.7): joins per-destination SYN counts against per-source FIN
// counts over a 30s epoch and flags hosts that started meaningfully
// more connections than they completed.
//
// The returned map's keys are "syn" and "fin".
func CompletedFlows(sink operator.Operator) (map[string]operator.Operator, map[string]Table) {
	joinSink := operator.Chain(sink,
		operator.Map(diffFields("diff", "syns", "fins")),
		operator.Filter(atLeast("diff", ThresholdCompletedFlow)),
	)

	joinLeft, joinRight := join.New(
		renameExtractor(packet.IPv4DstField, "syns"),
		renameExtractor(packet.IPv4SrcField, "fins"),
		joinSink,
		epoch.DefaultKeyOut,
	)

	syns := operator.Chain(joinLeft,
		epoch.New(CompletedFlowsEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsEqual(packet.FlagSYN))),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "syns"),
	)
	fins := operator.Chain(joinRight,
		epoch.New(CompletedFlowsEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsHaveBit(packet.FlagFIN))),
		groupby.New(groupby.FilterGroups(packet.IPv4SrcField), groupby.Counter, "fins"),
	)

	ops := map[string]operator.Operator{
		"syn": syns,
		"fin": fins,
	}
	tables := map[string]Table{
		"syn": joinLeft.(Table),
		"fin": joinRight.(Table),
	}
	return ops, tables
}
