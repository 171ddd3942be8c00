// Package config holds wire/semantic constants for the block processing core.
package config

import "time"

// MaxOrphanSize is the hard cap on entries held by either the orphan pool
// or the incomplete-chunks pool.
const MaxOrphanSize = 1024

// MaxOrphanAge is how long an orphan may sit in a pool before it becomes
// eligible for age-based eviction.
const MaxOrphanAge = 300 * time.Second

// AcceptableTimeDifference bounds how far into the future a header's
// timestamp may be before it is rejected as InvalidBlockFutureTime.
const AcceptableTimeDifference = 120 * time.Second

// OldBlockMinHeight and OldBlockHeadMargin define the "abusive peer"
// heuristic: a resubmitted block is reported as OldBlock, rather than the
// generic Unfit, when it is both above OldBlockMinHeight and more than
// OldBlockHeadMargin below the current block head. This is a heuristic, not
// a consensus rule; tune freely.
var (
	OldBlockMinHeight  uint64 = 50
	OldBlockHeadMargin uint64 = 50
)
