package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/engine"
	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/planstore"
	"github.com/harrison/overseer/internal/specialist"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitBlocked, ExitCode(fmt.Errorf("ask: %w", checkpoint.ErrNoDecision)))
	assert.Equal(t, ExitBlocked, ExitCode(fmt.Errorf("%w: 2 open", ErrConflictsUnresolved)))
	assert.Equal(t, ExitInvalid, ExitCode(fmt.Errorf("%w: plan x", ErrValidationFailed)))
	assert.Equal(t, ExitAborted, ExitCode(engine.ErrPlanAborted))
}

func TestSplitStepFlag(t *testing.T) {
	tests := []struct {
		raw    string
		domain string
		text   string
	}{
		{"backend: add limiter", "backend", "add limiter"},
		{"add limiter", "", "add limiter"},
		{"fix ratio: 3:1 sampling", "", "fix ratio: 3:1 sampling"},
		{": no domain", "", ": no domain"},
		{"docs:", "docs", ""},
	}
	for _, tt := range tests {
		domain, text := splitStepFlag(tt.raw)
		assert.Equal(t, tt.domain, domain, tt.raw)
		assert.Equal(t, tt.text, text, tt.raw)
	}
}

// writeSpecialist writes a definition whose command echoes a canned JSON
// response, so command-level tests run real external invocations.
func writeSpecialist(t *testing.T, dir, domain, keywords, response string) {
	t.Helper()
	// The command is a block list: the JSON response is full of double quotes
	// that would break a flow-sequence item.
	def := fmt.Sprintf(`---
name: %s-reviewer
domain: %s
description: reviews %s work
keywords: %s
command:
  - sh
  - -c
  - echo '%s'
---

Review the task and answer with a JSON verdict.
`, domain, domain, domain, keywords, response)
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain+".md"), []byte(def), 0644))
}

func TestSpecialistFixtureParses(t *testing.T) {
	dir := t.TempDir()
	writeSpecialist(t, dir, "backend", "backend, api",
		`{"pass":true,"recommendation":"ok","requires":["redis"]}`)

	def, err := specialist.ParseDefinitionFile(filepath.Join(dir, "backend.md"))
	require.NoError(t, err)
	assert.Equal(t, "backend-reviewer", def.Name)
	assert.Equal(t, []string{"backend", "api"}, []string(def.Keywords))
	assert.Equal(t,
		[]string{"sh", "-c", `echo '{"pass":true,"recommendation":"ok","requires":["redis"]}'`},
		def.Command)
}

// setupWorkspace chdirs into a fresh directory with a populated
// .overseer/specialists tree.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("echo specialists require sh")
	}
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".overseer", "specialists"), 0755))
	return filepath.Join(dir, ".overseer", "specialists")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDraftConflictBlocksApproval(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend, api",
		`{"pass":true,"recommendation":"cache sessions","requires":["redis"]}`)
	writeSpecialist(t, specialists, "security", "security, auth",
		`{"pass":true,"recommendation":"no shared state","forbids":["redis"]}`)

	out, err := execute(t, "draft", "harden backend security for the api",
		"--step", "backend: move sessions server-side")
	require.Error(t, err)
	assert.Equal(t, ExitBlocked, ExitCode(err))
	assert.Contains(t, out, "backend requires \"redis\" but security forbids it")

	// The conflicted plan still reaches pending_approval; only the approved
	// transition is gated on resolution.
	store := planstore.NewStore(filepath.Join(".overseer", "plans"))
	plan, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, models.PlanPendingApproval, plan.Status)

	// Approval without a resolution is refused; the console decider has no
	// terminal to ask on.
	_, err = execute(t, "approve")
	require.Error(t, err)
	assert.Equal(t, ExitBlocked, ExitCode(err))

	// An explicit resolution unblocks approval.
	_, err = execute(t, "approve", "--resolve", "backend|security|redis=backend")
	require.NoError(t, err)

	plan, err = store.Current()
	require.NoError(t, err)
	assert.Equal(t, models.PlanApproved, plan.Status)
	assert.Equal(t, "backend", plan.Resolutions["backend|security|redis"])
}

func TestDraftApproveRunCompletesPlan(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend, api",
		`{"pass":true,"recommendation":"looks solid"}`)

	out, err := execute(t, "draft", "add pagination to the backend api",
		"--step", "backend: add cursor parameters",
		"--step", "backend: cap page size")
	require.NoError(t, err)
	assert.Contains(t, out, "pending approval")

	_, err = execute(t, "approve")
	require.NoError(t, err)

	out, err = execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Completed: 2")

	// The finished plan was archived out of the active directory.
	store := planstore.NewStore(filepath.Join(".overseer", "plans"))
	_, err = store.Current()
	require.ErrorIs(t, err, planstore.ErrPlanNotFound)

	archived, err := os.ReadDir(filepath.Join(".overseer", "archive"))
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestRunFailingStepBlocksWithoutTerminal(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend",
		`{"pass":false,"recommendation":"missing error handling"}`)

	_, err := execute(t, "draft", "refactor the backend worker",
		"--step", "backend: extract retry helper")
	require.NoError(t, err)
	_, err = execute(t, "approve")
	require.NoError(t, err)

	_, err = execute(t, "run")
	require.Error(t, err)
	assert.Equal(t, ExitBlocked, ExitCode(err), "a failing step with no decision-maker blocks instead of guessing")
}

func TestValidateReportsFailure(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend",
		`{"pass":false,"recommendation":"regression in pagination"}`)

	seedApprovedPlan(t, "backend")

	out, err := execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitInvalid, ExitCode(err))
	assert.Contains(t, out, "regression in pagination")
}

func TestStatusRendersChecklist(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend",
		`{"pass":true,"recommendation":"ok"}`)

	plan := seedApprovedPlan(t, "backend")

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, plan.ID)
	assert.Contains(t, out, "[ ] 1. ship it")
}

func TestSpecialistsListsDefinitions(t *testing.T) {
	specialists := setupWorkspace(t)
	writeSpecialist(t, specialists, "backend", "backend, api",
		`{"pass":true,"recommendation":"ok"}`)

	out, err := execute(t, "specialists")
	require.NoError(t, err)
	assert.Contains(t, out, "backend-reviewer")
	assert.Contains(t, out, "keywords: backend, api")
}

func TestApproveWithoutPlan(t *testing.T) {
	setupWorkspace(t)
	_, err := execute(t, "approve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active plan")
}

// seedApprovedPlan saves an approved single-step plan directly through the
// store, bypassing draft-time consultation.
func seedApprovedPlan(t *testing.T, domain string) *models.Plan {
	t.Helper()
	store := planstore.NewStore(filepath.Join(".overseer", "plans"))
	plan := &models.Plan{
		ID:          "11111111-2222-3333-4444-555555555555",
		CreatedAt:   time.Now().UTC(),
		Status:      models.PlanApproved,
		Description: "backend maintenance",
		Steps: []models.Step{
			{Ordinal: 1, Domain: domain, Description: "ship it", State: models.StepPending},
		},
	}
	require.NoError(t, store.Save(plan))
	return plan
}
