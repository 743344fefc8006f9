package models

import (
	"fmt"
	"sort"
	"strings"
)

// Finding severity constants.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding is a single risk item reported by a specialist.
type Finding struct {
	Severity string `json:"severity"` // "critical", "warning", "info"
	Message  string `json:"message"`  // Human-readable description
}

// Consultation is the recorded output of one specialist invocation against a
// plan or a step. Specialists that error out still produce a consultation
// (pass=false, recommendation "invocation error") so the aggregator's
// accounting stays total.
type Consultation struct {
	Domain         string    `json:"domain"`                 // Domain tag the specialist was consulted for
	Specialist     string    `json:"specialist"`             // Specialist identifier
	Pass           bool      `json:"pass"`                   // Overall pass/fail verdict
	Recommendation string    `json:"recommendation"`         // Recommendation summary
	Findings       []Finding `json:"findings,omitempty"`     // Risk items
	Requires       []string  `json:"requires,omitempty"`     // Resources the recommendation depends on
	Forbids        []string  `json:"forbids,omitempty"`      // Resources the recommendation rules out
	StepOrdinal    int       `json:"step_ordinal,omitempty"` // 0 for drafting-time consultations, else the step consulted for
}

// Summary renders a one-line summary suitable for the plan file.
func (c *Consultation) Summary() string {
	verdict := "FAIL"
	if c.Pass {
		verdict = "PASS"
	}
	return fmt.Sprintf("%s (%s): %s - %s", c.Domain, c.Specialist, verdict, c.Recommendation)
}

// SortConsultations orders consultations by domain tag, then specialist, then
// step ordinal. Drafting-time fan-out may collect results in any order;
// sorting first makes conflict detection order-independent.
func SortConsultations(consultations []Consultation) {
	sort.SliceStable(consultations, func(i, j int) bool {
		if consultations[i].Domain != consultations[j].Domain {
			return consultations[i].Domain < consultations[j].Domain
		}
		if consultations[i].Specialist != consultations[j].Specialist {
			return consultations[i].Specialist < consultations[j].Specialist
		}
		return consultations[i].StepOrdinal < consultations[j].StepOrdinal
	})
}

// ConflictRecord captures a pair of consultations whose recommendations
// cannot both be satisfied: one requires a resource the other forbids.
// Conflicts are derived from consultations, never stored independently;
// resolutions are recorded on the plan keyed by Key().
type ConflictRecord struct {
	DomainA    string // Domain whose consultation requires the resource
	DomainB    string // Domain whose consultation forbids the resource
	Resource   string // The contested resource
	Reason     string // Human-readable explanation
	Resolution string // Decision label once resolved; empty while unresolved
}

// Key returns a stable identifier for the conflict, independent of the order
// the consultations were gathered in.
func (c *ConflictRecord) Key() string {
	domains := []string{c.DomainA, c.DomainB}
	sort.Strings(domains)
	return strings.Join([]string{domains[0], domains[1], c.Resource}, "|")
}

// Resolved returns true once an explicit decision has been recorded.
func (c *ConflictRecord) Resolved() bool {
	return c.Resolution != ""
}

// RiskMatrix counts findings per domain and severity.
type RiskMatrix map[string]map[string]int

// Add records one finding for a domain.
func (m RiskMatrix) Add(domain, severity string) {
	row, ok := m[domain]
	if !ok {
		row = make(map[string]int)
		m[domain] = row
	}
	row[severity]++
}

// Domains returns the domains present in the matrix, sorted.
func (m RiskMatrix) Domains() []string {
	domains := make([]string, 0, len(m))
	for domain := range m {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Count returns the number of findings for a domain at a severity.
func (m RiskMatrix) Count(domain, severity string) int {
	return m[domain][severity]
}
