package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"drafted to pending_approval", PlanDrafted, PlanPendingApproval, true},
		{"pending_approval to approved", PlanPendingApproval, PlanApproved, true},
		{"approved to in_progress", PlanApproved, PlanInProgress, true},
		{"in_progress to completed", PlanInProgress, PlanCompleted, true},
		{"in_progress to aborted", PlanInProgress, PlanAborted, true},
		{"abort while pending approval", PlanPendingApproval, PlanAborted, true},
		{"abort while drafted", PlanDrafted, PlanAborted, true},
		{"skip a stage", PlanDrafted, PlanApproved, false},
		{"backward", PlanApproved, PlanDrafted, false},
		{"complete without executing", PlanApproved, PlanCompleted, false},
		{"leave completed", PlanCompleted, PlanInProgress, false},
		{"leave aborted", PlanAborted, PlanInProgress, false},
		{"unknown status", "bogus", PlanApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPlanTransition(t *testing.T) {
	plan := &Plan{ID: "p1", Status: PlanDrafted, Description: "demo"}

	require.NoError(t, plan.Transition(PlanPendingApproval))
	require.NoError(t, plan.Transition(PlanApproved))
	require.NoError(t, plan.Transition(PlanInProgress))

	err := plan.Transition(PlanDrafted)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PlanInProgress, plan.Status)

	require.NoError(t, plan.Transition(PlanCompleted))
	assert.True(t, plan.IsTerminal())
	require.Error(t, plan.Transition(PlanAborted))
}

func TestPlanValidate(t *testing.T) {
	plan := &Plan{
		ID:          "p1",
		Status:      PlanDrafted,
		Description: "demo",
		Steps: []Step{
			{Ordinal: 1, Description: "first", Domain: "css", State: StepPending},
			{Ordinal: 2, Description: "second", Domain: "seo", State: StepPending},
		},
	}
	require.NoError(t, plan.Validate())

	plan.Steps[1].Ordinal = 5
	require.Error(t, plan.Validate())

	plan.Steps[1].Ordinal = 2
	plan.Steps[0].Domain = ""
	require.Error(t, plan.Validate())
}

func TestFirstNonTerminalStep(t *testing.T) {
	plan := &Plan{
		Steps: []Step{
			{Ordinal: 1, State: StepCompleted},
			{Ordinal: 2, State: StepSkipped},
			{Ordinal: 3, State: StepPending},
			{Ordinal: 4, State: StepPending},
		},
	}

	step := plan.FirstNonTerminalStep()
	require.NotNil(t, step)
	assert.Equal(t, 3, step.Ordinal)

	plan.Steps[2].State = StepCompleted
	plan.Steps[3].State = StepFailed
	assert.Nil(t, plan.FirstNonTerminalStep())
}

func TestRollUpStatus(t *testing.T) {
	plan := &Plan{
		Steps: []Step{
			{Ordinal: 1, State: StepCompleted},
			{Ordinal: 2, State: StepSkipped},
			{Ordinal: 3, State: StepCompleted},
		},
	}
	assert.Equal(t, PlanCompleted, plan.RollUpStatus(), "skipped steps do not force an abort")

	plan.Steps[1].State = StepFailed
	assert.Equal(t, PlanAborted, plan.RollUpStatus())
}

func TestInProgressCount(t *testing.T) {
	plan := &Plan{
		Steps: []Step{
			{Ordinal: 1, State: StepCompleted},
			{Ordinal: 2, State: StepInProgress},
			{Ordinal: 3, State: StepPending},
		},
	}
	assert.Equal(t, 1, plan.InProgressCount())
}

func TestStepCheckboxMark(t *testing.T) {
	tests := []struct {
		state string
		mark  string
	}{
		{StepPending, " "},
		{StepInProgress, " "},
		{StepCompleted, "x"},
		{StepSkipped, "~"},
		{StepFailed, " "},
	}
	for _, tt := range tests {
		step := Step{State: tt.state}
		assert.Equal(t, tt.mark, step.CheckboxMark(), "state %s", tt.state)
	}
}

func TestSortConsultationsIsOrderIndependent(t *testing.T) {
	a := Consultation{Domain: "css", Specialist: "css-validator"}
	b := Consultation{Domain: "seo", Specialist: "seo-auditor"}
	c := Consultation{Domain: "css", Specialist: "responsive-auditor"}

	first := []Consultation{b, a, c}
	second := []Consultation{c, b, a}
	SortConsultations(first)
	SortConsultations(second)

	assert.Equal(t, first, second)
	assert.Equal(t, "css", first[0].Domain)
	assert.Equal(t, "css-validator", first[0].Specialist, "within a domain, specialists sort ascending")
}

func TestConflictRecordKey(t *testing.T) {
	forward := ConflictRecord{DomainA: "css", DomainB: "seo", Resource: "inline-styles"}
	reversed := ConflictRecord{DomainA: "seo", DomainB: "css", Resource: "inline-styles"}

	assert.Equal(t, forward.Key(), reversed.Key())
	assert.False(t, forward.Resolved())

	forward.Resolution = "prefer-css"
	assert.True(t, forward.Resolved())
}

func TestPlanResolutions(t *testing.T) {
	plan := &Plan{ID: "p1"}
	_, ok := plan.ResolutionFor("css|seo|x")
	assert.False(t, ok)

	plan.RecordResolution("css|seo|x", "prefer-css")
	decision, ok := plan.ResolutionFor("css|seo|x")
	require.True(t, ok)
	assert.Equal(t, "prefer-css", decision)
}

func TestRiskMatrix(t *testing.T) {
	matrix := make(RiskMatrix)
	matrix.Add("css", SeverityCritical)
	matrix.Add("css", SeverityCritical)
	matrix.Add("seo", SeverityWarning)

	assert.Equal(t, []string{"css", "seo"}, matrix.Domains())
	assert.Equal(t, 2, matrix.Count("css", SeverityCritical))
	assert.Equal(t, 1, matrix.Count("seo", SeverityWarning))
	assert.Equal(t, 0, matrix.Count("seo", SeverityCritical))
}
