package domain

import "time"

// DomainPhase is the state of one domain within a reindex run.
type DomainPhase string

// Domain reindex phases.
const (
	PhasePending    DomainPhase = "pending"
	PhaseCollecting DomainPhase = "collecting"
	PhaseEmbedding  DomainPhase = "embedding"
	PhaseCommitted  DomainPhase = "committed"
	PhaseFailed     DomainPhase = "failed"
)

// DomainReport is the outcome of one domain's pass in a reindex run.
// A domain with Errors > 0 is still reported, never treated as a crash
// of the whole run.
type DomainReport struct {
	// Domain is the domain this report covers.
	Domain Domain

	// Phase is the terminal phase: committed or failed.
	Phase DomainPhase

	// Embedded is the number of records embedded and upserted.
	Embedded int

	// Skipped is the number of records whose content hash was unchanged
	// and which already had a vector.
	Skipped int

	// Errors counts malformed rows plus batch-level failures.
	Errors int

	// Duration is the wall-clock time of the domain pass.
	Duration time.Duration

	// Err holds the failure message when Phase is failed.
	Err string
}

// RunSummary is the structured result of a full reindex run.
// A run always completes and returns a summary, even if every domain failed.
type RunSummary struct {
	// RunID uniquely identifies this run.
	RunID string

	// StartedAt and EndedAt bound the run.
	StartedAt time.Time
	EndedAt   time.Time

	// Domains maps each processed domain to its report.
	Domains map[Domain]DomainReport
}

// TotalEmbedded sums embedded counters across domains.
func (s *RunSummary) TotalEmbedded() int {
	total := 0
	for _, report := range s.Domains {
		total += report.Embedded
	}
	return total
}

// TotalErrors sums error counters across domains.
func (s *RunSummary) TotalErrors() int {
	total := 0
	for _, report := range s.Domains {
		total += report.Errors
	}
	return total
}

// Failed reports whether any domain ended in the failed phase.
func (s *RunSummary) Failed() bool {
	for _, report := range s.Domains {
		if report.Phase == PhaseFailed {
			return true
		}
	}
	return false
}
