// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package query implements the nine detection queries plus the
// identity/counting utility queries of spec §4.7, each a composition
// of the primitives in pkg/epoch, pkg/groupby, pkg/distinct, and
// pkg/join.
package query

// Epoch widths, in seconds, named per spec §4.7's table.
const (
	DefaultEpochWidth         = 1.0
	Q3EpochWidth              = 100.0
	Q4EpochWidth              = 10000.0
	CompletedFlowsEpochWidth  = 30.0
)

// Detection thresholds, named per spec §4.7's table.
const (
	ThresholdTCPNewCons    = 40
	ThresholdSSHBruteForce = 40
	ThresholdSuperSpreader = 40
	ThresholdPortScan      = 40
	ThresholdDDoS          = 45
	ThresholdSonata        = 3
	ThresholdCompletedFlow = 1

	ThresholdSlowlorisConns        = 5
	ThresholdSlowlorisBytes        = 500
	ThresholdSlowlorisBytesPerConn = 90
)
