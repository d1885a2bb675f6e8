package sync

import (
	"time"

	"github.com/tesorrells/jellyfin-sync/internal/manifest"
)

// Outcome classifies what reconciliation did with one item in one cycle.
type Outcome int

const (
	// OutcomeSkipped means the item was already present and verified.
	OutcomeSkipped Outcome = iota
	// OutcomeFetched means the item was downloaded and, when a hash was
	// declared, verified.
	OutcomeFetched
	// OutcomeFetchFailed means the item could not be fetched this cycle.
	OutcomeFetchFailed
	// OutcomeQuarantined means the fetched content failed verification and
	// was moved aside for inspection.
	OutcomeQuarantined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFetched:
		return "fetched"
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// ItemResult is the per-item record of one cycle. Reporting only; the next
// cycle re-evaluates from manifest state.
type ItemResult struct {
	Item     manifest.Item
	Outcome  Outcome
	Attempts int
	Err      error
}

// Report summarizes one reconciliation cycle.
type Report struct {
	CycleID     string
	Group       string
	Started     time.Time
	Finished    time.Time
	ManifestErr error
	Items       []ItemResult
}

// Count returns how many items ended with the given outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}
