package checkpoint

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overseer/internal/history"
)

func failureQuestion() Question {
	return Question{
		Scope: "plan-1/step-2/failure",
		Text:  "Step 2 failed. How should execution proceed?",
		Options: []Option{
			{Label: "retry", Description: "run the step again"},
			{Label: "skip", Description: "mark the step skipped"},
			{Label: "abort", Description: "abort the plan"},
		},
	}
}

func TestQuestionKeyDeterministic(t *testing.T) {
	q := failureQuestion()
	assert.Equal(t, q.Key(), failureQuestion().Key())

	other := failureQuestion()
	other.Scope = "plan-1/step-3/failure"
	assert.NotEqual(t, q.Key(), other.Key())

	reordered := failureQuestion()
	reordered.Options[0], reordered.Options[1] = reordered.Options[1], reordered.Options[0]
	assert.NotEqual(t, q.Key(), reordered.Key())
}

func TestAskValidatesAnswer(t *testing.T) {
	cp := New(NewScriptedDecider("launch the missiles"), nil)
	_, err := cp.Ask(context.Background(), failureQuestion())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not one of the offered options")
}

func TestAskCanonicalizesCase(t *testing.T) {
	cp := New(NewScriptedDecider("RETRY"), nil)
	answer, err := cp.Ask(context.Background(), failureQuestion())
	require.NoError(t, err)
	assert.Equal(t, "retry", answer)
}

func TestAskRequiresOptions(t *testing.T) {
	cp := New(NewScriptedDecider("yes"), nil)
	_, err := cp.Ask(context.Background(), Question{Text: "anything?"})
	require.Error(t, err)
}

func TestAskExhaustedScriptBlocks(t *testing.T) {
	cp := New(NewScriptedDecider(), nil)
	_, err := cp.Ask(context.Background(), failureQuestion())
	require.ErrorIs(t, err, ErrNoDecision)
}

func TestAskReplaysRecordedDecision(t *testing.T) {
	store, err := history.NewStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	decider := NewScriptedDecider("skip")
	cp := New(decider, store)

	answer, err := cp.Ask(context.Background(), failureQuestion())
	require.NoError(t, err)
	assert.Equal(t, "skip", answer)

	// Same question after a "restart": the recorded answer is replayed and
	// the decider is not consulted again.
	cp2 := New(NewScriptedDecider(), store)
	answer, err = cp2.Ask(context.Background(), failureQuestion())
	require.NoError(t, err)
	assert.Equal(t, "skip", answer)
}

func TestConsoleDeciderNonInteractive(t *testing.T) {
	interactive := false
	d := &ConsoleDecider{in: strings.NewReader(""), out: &bytes.Buffer{}, interactive: &interactive}

	_, err := d.Ask(context.Background(), failureQuestion())
	require.ErrorIs(t, err, ErrNoDecision)
}

func TestConsoleDeciderReadsAnswer(t *testing.T) {
	interactive := true
	var out bytes.Buffer
	d := &ConsoleDecider{in: strings.NewReader("bogus\n2\n"), out: &out, interactive: &interactive}

	answer, err := d.Ask(context.Background(), failureQuestion())
	require.NoError(t, err)
	assert.Equal(t, "skip", answer, "numeric answers resolve to the option label")
	assert.Contains(t, out.String(), "Unrecognized answer")
}

func TestConsoleDeciderLabelAnswer(t *testing.T) {
	interactive := true
	d := &ConsoleDecider{in: strings.NewReader("abort\n"), out: &bytes.Buffer{}, interactive: &interactive}

	answer, err := d.Ask(context.Background(), failureQuestion())
	require.NoError(t, err)
	assert.Equal(t, "abort", answer)
}

func TestConsoleDeciderEOF(t *testing.T) {
	interactive := true
	d := &ConsoleDecider{in: strings.NewReader("nonsense\n"), out: &bytes.Buffer{}, interactive: &interactive}

	_, err := d.Ask(context.Background(), failureQuestion())
	require.ErrorIs(t, err, ErrNoDecision)
}
