package collector

import (
	"sort"
	"time"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/discovery"
)

// TargetResult is everything one collection pass learned about one pod.
// A target is recorded whole or not at all: either Up is true and every value
// field is filled from the node's own answers, or Up is false and only the
// failure is kept. Values are passed through verbatim; rate computation is
// Prometheus's job.
type TargetResult struct {
	Target discovery.Target

	// Up reports whether the full query set succeeded against this pod.
	Up bool

	Blocks               int64
	Peers                int
	Connections          int
	Difficulty           float64
	VerificationProgress float64

	// Err is the first failure seen while probing, nil when Up.
	Err error
}

// Snapshot is the immutable outcome of one collection pass. The collector
// swaps a pointer to it atomically, so readers always see one complete pass,
// never a mixture of two.
type Snapshot struct {
	// Results holds one entry per attempted target, sorted by pod name.
	Results []TargetResult

	// Discovered is how many targets DNS discovery actually resolved; it is
	// zero when the pass ran against the fallback target only.
	Discovered int

	TakenAt time.Time
	Elapsed time.Duration
}

// newSnapshot assembles a snapshot from per-target results, establishing the
// stable pod-name ordering the exposition relies on.
func newSnapshot(results []TargetResult, discovered int, takenAt time.Time) *Snapshot {
	sort.Slice(results, func(left, right int) bool {
		return results[left].Target.Name < results[right].Target.Name
	})

	return &Snapshot{
		Results:    results,
		Discovered: discovered,
		TakenAt:    takenAt,
		Elapsed:    time.Since(takenAt),
	}
}
