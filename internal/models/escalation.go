package models

import "time"

// Attempt records one iteration of a bounded repair loop.
type Attempt struct {
	Number        int       `json:"number"`         // 1-based attempt number within the scope
	Specialist    string    `json:"specialist"`     // Specialist invoked for the attempt
	Summary       string    `json:"summary"`        // What the attempt tried
	FailureReason string    `json:"failure_reason"` // Why it did not succeed
	Timestamp     time.Time `json:"timestamp"`      // When the attempt finished
}

// EscalationPayload is produced when a bounded loop exhausts its iteration
// ceiling. It always carries the full attempt history; an escalation with no
// diagnostic content is useless to the decision-maker.
type EscalationPayload struct {
	Scope          string    `json:"scope"`           // Loop scope identifier
	Ceiling        int       `json:"ceiling"`         // Ceiling that was exhausted
	Attempts       []Attempt `json:"attempts"`        // Every attempt, in order
	BlockingIssues []string  `json:"blocking_issues"` // Specific unresolved blockers
	Alternatives   []string  `json:"alternatives"`    // Suggested alternative approaches
}
