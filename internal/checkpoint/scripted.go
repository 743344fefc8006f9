package checkpoint

import (
	"context"
	"sync"
)

// ScriptedDecider answers questions from a fixed script, in order. It exists
// for tests and non-interactive dry runs; once the script is exhausted every
// ask reports ErrNoDecision.
type ScriptedDecider struct {
	mu      sync.Mutex
	answers []string
	asked   []Question
}

// NewScriptedDecider creates a decider that replies with the given answers.
func NewScriptedDecider(answers ...string) *ScriptedDecider {
	return &ScriptedDecider{answers: answers}
}

// Ask pops the next scripted answer.
func (d *ScriptedDecider) Ask(ctx context.Context, q Question) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.asked = append(d.asked, q)
	if len(d.answers) == 0 {
		return "", ErrNoDecision
	}
	answer := d.answers[0]
	d.answers = d.answers[1:]
	return answer, nil
}

// Asked returns every question received so far.
func (d *ScriptedDecider) Asked() []Question {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Question(nil), d.asked...)
}
