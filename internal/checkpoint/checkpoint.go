// Package checkpoint implements the decision checkpoint: the single
// synchronous interface through which every irreversible transition must
// pass. The engine suspends while a question is pending and never assumes a
// default answer.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNoDecision indicates the decision-maker declined to select an option or
// is not available. Callers must treat this as "blocked", never as any
// particular answer.
var ErrNoDecision = errors.New("no decision available")

// Option is one selectable answer to a question.
type Option struct {
	Label       string // Short answer label ("retry", "skip", ...)
	Description string // What choosing this option means
}

// Question is a structured decision request. Scope disambiguates otherwise
// identical questions (typically "<plan-id>/<step>/<phase>").
type Question struct {
	Scope   string
	Text    string
	Options []Option
}

// Key returns a deterministic identifier for the question. Re-asking the
// identical question produces the identical key, which is what makes the
// checkpoint idempotent across crashes.
func (q Question) Key() string {
	h := sha256.New()
	h.Write([]byte(q.Scope))
	h.Write([]byte{0})
	h.Write([]byte(q.Text))
	for _, opt := range q.Options {
		h.Write([]byte{0})
		h.Write([]byte(opt.Label))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// labels returns the option labels in order.
func (q Question) labels() []string {
	labels := make([]string, len(q.Options))
	for i, opt := range q.Options {
		labels[i] = opt.Label
	}
	return labels
}

// Decider is the presentation mechanism that obtains an answer from the
// external decision-maker. Implementations block until a decision is made or
// return ErrNoDecision when no decision-maker is reachable.
type Decider interface {
	Ask(ctx context.Context, q Question) (string, error)
}

// DecisionLog records answers so a repeated identical question replays the
// original decision instead of asking again. Implemented by history.Store.
type DecisionLog interface {
	RecordDecision(ctx context.Context, key, question, answer string) error
	DecisionFor(ctx context.Context, key string) (string, bool, error)
}

// Checkpoint combines a decider with a decision log. No engine state is
// mutated while an ask is in flight.
type Checkpoint struct {
	decider Decider
	log     DecisionLog // optional; nil disables replay
}

// New creates a checkpoint. log may be nil, in which case every ask reaches
// the decider.
func New(decider Decider, log DecisionLog) *Checkpoint {
	return &Checkpoint{decider: decider, log: log}
}

// Ask poses the question, replaying a previously recorded answer when one
// exists. The selected label is validated against the offered options before
// it is recorded or returned.
func (c *Checkpoint) Ask(ctx context.Context, q Question) (string, error) {
	if len(q.Options) == 0 {
		return "", fmt.Errorf("question %q has no options", q.Text)
	}

	key := q.Key()
	if c.log != nil {
		if answer, found, err := c.log.DecisionFor(ctx, key); err != nil {
			return "", fmt.Errorf("decision log lookup: %w", err)
		} else if found {
			return answer, nil
		}
	}

	answer, err := c.decider.Ask(ctx, q)
	if err != nil {
		return "", err
	}

	label, ok := canonicalLabel(q, answer)
	if !ok {
		return "", fmt.Errorf("decision %q is not one of the offered options %v", answer, q.labels())
	}

	if c.log != nil {
		if err := c.log.RecordDecision(ctx, key, q.Text, label); err != nil {
			return "", fmt.Errorf("record decision: %w", err)
		}
	}
	return label, nil
}

// canonicalLabel matches an answer against the offered options,
// case-insensitively, and returns the option's exact label.
func canonicalLabel(q Question, answer string) (string, bool) {
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Label, strings.TrimSpace(answer)) {
			return opt.Label, true
		}
	}
	return "", false
}
