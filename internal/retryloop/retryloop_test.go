package retryloop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/config"
	"github.com/harrison/overseer/internal/history"
	"github.com/harrison/overseer/internal/models"
)

func testCeilings() config.CeilingConfig {
	return config.CeilingConfig{StepFix: 5, Feature: 10, FullPass: 15, Increment: 3}
}

func TestRunStopsExactlyAtCeiling(t *testing.T) {
	store, err := history.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	decider := checkpoint.NewScriptedDecider("abort")
	ctrl := NewController(testCeilings(), checkpoint.New(decider, store), store)

	calls := 0
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		calls++
		assert.Len(t, prior, iteration-1, "each retry sees every prior attempt")
		return Result{Attempt: models.Attempt{
			Specialist:    "backend-reviewer",
			Summary:       fmt.Sprintf("fix attempt %d", iteration),
			FailureReason: "tests still red",
		}}, nil
	}

	outcome, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 2, work)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Equal(t, 5, calls, "a ceiling of 5 allows exactly 5 attempts, never a 6th")

	require.NotNil(t, payload)
	assert.Equal(t, 5, payload.Ceiling)
	assert.Len(t, payload.Attempts, 5)
	assert.Equal(t, []string{"tests still red"}, payload.BlockingIssues)
}

func TestRunSucceedsBeforeCeiling(t *testing.T) {
	ctrl := NewController(testCeilings(), checkpoint.New(checkpoint.NewScriptedDecider(), nil), nil)

	calls := 0
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		calls++
		return Result{
			Attempt: models.Attempt{Specialist: "backend-reviewer", Summary: "apply fix"},
			Done:    iteration == 3,
		}, nil
	}

	outcome, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Nil(t, payload)
	assert.Equal(t, 3, calls)
}

func TestRunExtendRaisesCeilingMonotonically(t *testing.T) {
	store, err := history.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	// Extend once (5 -> 8), then abort at the new ceiling.
	decider := checkpoint.NewScriptedDecider("extend", "abort")
	ctrl := NewController(testCeilings(), checkpoint.New(decider, store), store)

	calls := 0
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		calls++
		return Result{Attempt: models.Attempt{Specialist: "s", Summary: "try", FailureReason: "still broken"}}, nil
	}

	outcome, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Equal(t, 8, calls, "extension adds the increment without resetting the count")
	require.NotNil(t, payload)
	assert.Equal(t, 8, payload.Ceiling)

	require.Len(t, decider.Asked(), 2)
	assert.NotEqual(t, decider.Asked()[0].Key(), decider.Asked()[1].Key(),
		"each exhausted ceiling is a fresh question")
}

func TestRunAcceptStopsWithoutError(t *testing.T) {
	decider := checkpoint.NewScriptedDecider("accept")
	ctrl := NewController(testCeilings(), checkpoint.New(decider, nil), nil)

	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		return Result{Attempt: models.Attempt{Specialist: "s", Summary: "try", FailureReason: "flaky"}}, nil
	}

	outcome, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	require.NotNil(t, payload)
}

func TestRunResumesAttemptCountFromLog(t *testing.T) {
	store, err := history.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.RecordAttempt(context.Background(), "plan-1", config.ScopeStepFix, 1,
			models.Attempt{Number: i, Specialist: "s", Summary: "earlier run", FailureReason: "broken"}))
	}

	decider := checkpoint.NewScriptedDecider("abort")
	ctrl := NewController(testCeilings(), checkpoint.New(decider, store), store)

	calls := 0
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		calls++
		assert.GreaterOrEqual(t, iteration, 4, "count resumes after the recorded attempts")
		return Result{Attempt: models.Attempt{Specialist: "s", Summary: "retry", FailureReason: "broken"}}, nil
	}

	outcome, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Equal(t, 2, calls, "3 prior attempts leave room for only 2 more under a ceiling of 5")
	assert.Len(t, payload.Attempts, 5)
}

func TestRunSurfacesAlternatives(t *testing.T) {
	decider := checkpoint.NewScriptedDecider("abort")
	ctrl := NewController(testCeilings(), checkpoint.New(decider, nil), nil)

	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		return Result{
			Attempt:      models.Attempt{Specialist: "s", Summary: "try", FailureReason: "schema mismatch"},
			Alternatives: []string{"regenerate the schema", "pin the driver version"},
		}, nil
	}

	_, payload, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, []string{"regenerate the schema", "pin the driver version"}, payload.Alternatives)

	asked := decider.Asked()
	require.Len(t, asked, 1)
	assert.Contains(t, asked[0].Text, "regenerate the schema")
}

func TestRunPropagatesWorkError(t *testing.T) {
	ctrl := NewController(testCeilings(), checkpoint.New(checkpoint.NewScriptedDecider(), nil), nil)

	boom := errors.New("sandbox unavailable")
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		return Result{}, boom
	}

	_, _, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.ErrorIs(t, err, boom)
}

func TestRunBlocksWithoutDecider(t *testing.T) {
	ctrl := NewController(testCeilings(), checkpoint.New(checkpoint.NewScriptedDecider(), nil), nil)

	work := func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error) {
		return Result{Attempt: models.Attempt{Specialist: "s", Summary: "try", FailureReason: "broken"}}, nil
	}

	_, _, err := ctrl.Run(context.Background(), "plan-1", config.ScopeStepFix, 1, work)
	require.ErrorIs(t, err, checkpoint.ErrNoDecision)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", OutcomeSucceeded.String())
	assert.Equal(t, "accepted", OutcomeAccepted.String())
	assert.Equal(t, "aborted", OutcomeAborted.String())
}
