package query

import "github.com/lukemarshall2222/netquery/pkg/operator"

// Spec names a runnable query and how its input streams map onto
// files or NATS subjects a driver is configured with. Single-stream
// queries take exactly one input; multi-stream queries take one input
// per name in StreamOrder, in that order.
type Spec struct {
	Name        string
	Single      Single
	Multi       Multi
	StreamOrder []string
}

// Registry lists every query this engine knows how to run, keyed by
// the name a run config refers to it by.
var Registry = map[string]Spec{
	"ident":            {Name: "ident", Single: Ident},
	"count_pkts":       {Name: "count_pkts", Single: CountPkts},
	"pkts_per_src_dst": {Name: "pkts_per_src_dst", Single: PktsPerSrcDst},
	"distinct_srcs":    {Name: "distinct_srcs", Single: DistinctSrcs},
	"tcp_new_cons":     {Name: "tcp_new_cons", Single: TCPNewCons},
	"ssh_brute_force":  {Name: "ssh_brute_force", Single: SSHBruteForce},
	"super_spreader":   {Name: "super_spreader", Single: SuperSpreader},
	"port_scan":        {Name: "port_scan", Single: PortScan},
	"ddos":             {Name: "ddos", Single: DDoS},
	"q3":               {Name: "q3", Single: Q3},
	"q4":               {Name: "q4", Single: Q4},
	"slowloris":        {Name: "slowloris", Multi: Slowloris, StreamOrder: []string{"conns", "bytes"}},
	"completed_flows":  {Name: "completed_flows", Multi: CompletedFlows, StreamOrder: []string{"syn", "fin"}},
	"syn_flood_sonata": {Name: "syn_flood_sonata", Multi: SynFloodSonata, StreamOrder: []string{"syn", "synack", "ack"}},
}

// Lookup resolves a query name, reporting whether it was found.
func Lookup(name string) (Spec, bool) {
	s, ok := Registry[name]
	return s, ok
}

// IsMulti reports whether this Spec is a multi-stream query.
func (s Spec) IsMulti() bool { return s.Multi != nil }

// BuildSingle wires the single-stream variant against sink. Callers
// must check IsMulti first.
func (s Spec) BuildSingle(sink operator.Operator) operator.Operator {
	return s.Single(sink)
}

// BuildMulti wires the multi-stream variant against sink, returning
// its per-stream operators and the underlying join tables a pruner can
// watch. Callers must check IsMulti first.
func (s Spec) BuildMulti(sink operator.Operator) (map[string]operator.Operator, map[string]Table) {
	return s.Multi(sink)
}
