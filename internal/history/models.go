package history

import "time"

// Cycle is one recorded reconciliation cycle with outcome counts.
type Cycle struct {
	ID            string    `json:"id"`
	Group         string    `json:"group"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
	ManifestError string    `json:"manifest_error,omitempty"`
	Fetched       int       `json:"fetched"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Quarantined   int       `json:"quarantined"`
}

// ItemRecord is one item's recorded outcome within a cycle.
type ItemRecord struct {
	Title    string `json:"title"`
	Magnet   string `json:"magnet"`
	Path     string `json:"path"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}
