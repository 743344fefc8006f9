package consult

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/specialist"
)

// Result is the aggregate outcome of consulting every domain-relevant
// specialist for a task.
type Result struct {
	Domains       []string              // Domains the task classified into, sorted
	Consultations []models.Consultation // One per domain, sorted by domain tag
	Matrix        models.RiskMatrix     // Findings per domain and severity
	Conflicts     []models.ConflictRecord
}

// Passed reports whether every consultation passed.
func (r *Result) Passed() bool {
	for i := range r.Consultations {
		if !r.Consultations[i].Pass {
			return false
		}
	}
	return true
}

// Aggregator classifies tasks and fans out specialist consultations.
// Specialists are stateless relative to each other, so drafting-time
// consultation is the one place concurrent invocation is safe.
type Aggregator struct {
	classifier *Classifier
	invoker    *specialist.Invoker
}

// NewAggregator wires a classifier and an invoker together.
func NewAggregator(classifier *Classifier, invoker *specialist.Invoker) *Aggregator {
	return &Aggregator{classifier: classifier, invoker: invoker}
}

// Consult classifies the task text, invokes every matched specialist in
// parallel, and assembles the risk matrix and conflict set. Consultations are
// re-sorted by domain tag after the join so the conflict set never depends on
// completion order. Specialist failures surface as failing consultations;
// only an unregistered domain aborts the run.
func (a *Aggregator) Consult(ctx context.Context, taskContext string, prior []models.Consultation) (*Result, error) {
	domains := a.classifier.Classify(taskContext)

	consultations := make([]models.Consultation, len(domains))
	errs := make([]error, len(domains))

	var wg sync.WaitGroup
	for i, domain := range domains {
		wg.Add(1)
		go func(i int, domain string) {
			defer wg.Done()
			consultations[i], errs[i] = a.invoker.Invoke(ctx, domain, taskContext, prior)
		}(i, domain)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("consult %s: %w", domains[i], err)
		}
	}

	models.SortConsultations(consultations)

	matrix := make(models.RiskMatrix)
	for i := range consultations {
		for _, finding := range consultations[i].Findings {
			matrix.Add(consultations[i].Domain, finding.Severity)
		}
	}

	return &Result{
		Domains:       domains,
		Consultations: consultations,
		Matrix:        matrix,
		Conflicts:     DetectConflicts(consultations),
	}, nil
}
