package consult

import (
	"fmt"
	"sort"

	"github.com/harrison/overseer/internal/models"
)

// DetectConflicts finds every pair of consultations whose recommendations
// cannot both be satisfied: one requires a resource the other forbids.
// Consultations must already be sorted (models.SortConsultations) so the
// result is independent of collection order. Conflicts are never resolved
// here; resolution belongs to the decision checkpoint.
func DetectConflicts(consultations []models.Consultation) []models.ConflictRecord {
	seen := make(map[string]bool)
	var conflicts []models.ConflictRecord

	for i := range consultations {
		for j := range consultations {
			if i == j || consultations[i].Domain == consultations[j].Domain {
				continue
			}
			for _, resource := range intersect(consultations[i].Requires, consultations[j].Forbids) {
				record := models.ConflictRecord{
					DomainA:  consultations[i].Domain,
					DomainB:  consultations[j].Domain,
					Resource: resource,
					Reason: fmt.Sprintf("%s requires %q but %s forbids it",
						consultations[i].Domain, resource, consultations[j].Domain),
				}
				if key := record.Key(); !seen[key] {
					seen[key] = true
					conflicts = append(conflicts, record)
				}
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Key() < conflicts[j].Key()
	})
	return conflicts
}

// ApplyResolutions copies recorded decisions onto matching conflict records.
func ApplyResolutions(conflicts []models.ConflictRecord, resolutions map[string]string) {
	for i := range conflicts {
		if decision, ok := resolutions[conflicts[i].Key()]; ok {
			conflicts[i].Resolution = decision
		}
	}
}

// Unresolved filters the conflict set down to records with no recorded
// decision. A plan cannot be approved while this is non-empty.
func Unresolved(conflicts []models.ConflictRecord) []models.ConflictRecord {
	var open []models.ConflictRecord
	for _, c := range conflicts {
		if !c.Resolved() {
			open = append(open, c)
		}
	}
	return open
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]bool, len(b))
	for _, item := range b {
		set[item] = true
	}
	var out []string
	for _, item := range a {
		if set[item] {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}
