package query

import (
	"github.com/lukemarshall2222/netquery/pkg/distinct"
	"github.com/lukemarshall2222/netquery/pkg/epoch"
	"github.com/lukemarshall2222/netquery/pkg/groupby"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/packet"
	"github.com/lukemarshall2222/netquery/pkg/record"
)

// Single is a single-input-stream query: given the terminal sink, it
// returns the operator a driver should call Next/Reset on for every
// input record.
type Single func(sink operator.Operator) operator.Operator

// Ident drops the two Ethernet address fields from every record and
// forwards the rest unchanged.
func Ident(sink operator.Operator) operator.Operator {
	return operator.Chain(sink, operator.Map(func(r record.Record) (record.Record, error) {
		return r.Drop(packet.EthSrcField, packet.EthDstField), nil
	}))
}

// CountPkts counts every record seen in each 1s epoch.
func CountPkts(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		groupby.New(groupby.SingleGroup, groupby.Counter, "pkts"),
	)
}

// PktsPerSrcDst counts records per (src, dst) pair in each 1s epoch.
func PktsPerSrcDst(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		groupby.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField), groupby.Counter, "pkts"),
	)
}

// DistinctSrcs counts the number of distinct source addresses seen in
// each 1s epoch.
func DistinctSrcs(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField)),
		groupby.New(groupby.SingleGroup, groupby.Counter, "srcs"),
	)
}

// TCPNewCons flags destinations receiving at least ThresholdTCPNewCons
// bare TCP SYNs in a 1s epoch (a new-connection flood).
func TCPNewCons(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), flagsEqual(packet.FlagSYN))),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "cons"),
		operator.Filter(atLeast("cons", ThresholdTCPNewCons)),
	)
}

// SSHBruteForce flags (dst, len) pairs receiving distinct connection
// attempts from at least ThresholdSSHBruteForce sources on port 22 in
// a 1s epoch.
func SSHBruteForce(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		operator.Filter(and(protoEquals(packet.ProtoTCP), func(r record.Record) bool {
			v, err := r.GetInt(packet.L4DportField)
			return err == nil && v == 22
		})),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField, packet.IPv4LenField)),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField, packet.IPv4LenField), groupby.Counter, "srcs"),
		operator.Filter(atLeast("srcs", ThresholdSSHBruteForce)),
	)
}

// SuperSpreader flags sources contacting at least ThresholdSuperSpreader
// distinct destinations in a 1s epoch.
func SuperSpreader(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField)),
		groupby.New(groupby.FilterGroups(packet.IPv4SrcField), groupby.Counter, "dsts"),
		operator.Filter(atLeast("dsts", ThresholdSuperSpreader)),
	)
}

// PortScan flags sources contacting at least ThresholdPortScan distinct
// destination ports in a 1s epoch.
func PortScan(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.L4DportField)),
		groupby.New(groupby.FilterGroups(packet.IPv4SrcField), groupby.Counter, "ports"),
		operator.Filter(atLeast("ports", ThresholdPortScan)),
	)
}

// DDoS flags destinations contacted by at least ThresholdDDoS distinct
// sources in a 1s epoch.
func DDoS(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(DefaultEpochWidth, epoch.DefaultKeyOut),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField)),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "srcs"),
		operator.Filter(atLeast("srcs", ThresholdDDoS)),
	)
}

// Q3 emits each distinct (src, dst) pair seen in a 100s epoch.
func Q3(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(Q3EpochWidth, epoch.DefaultKeyOut),
		distinct.New(groupby.FilterGroups(packet.IPv4SrcField, packet.IPv4DstField)),
	)
}

// Q4 counts records per destination in a 10000s epoch.
func Q4(sink operator.Operator) operator.Operator {
	return operator.Chain(sink,
		epoch.New(Q4EpochWidth, epoch.DefaultKeyOut),
		groupby.New(groupby.FilterGroups(packet.IPv4DstField), groupby.Counter, "pkts"),
	)
}
