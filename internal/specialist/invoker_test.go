package specialist

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/overseer/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(&Definition{Name: "css-validator", Domain: "css"}))
	return registry
}

func TestInvokeUnknownDomain(t *testing.T) {
	inv := NewInvoker(newTestRegistry(t), 0)

	_, err := inv.Invoke(context.Background(), "database", "task", nil)
	require.ErrorIs(t, err, ErrUnknownDomain)
}

func TestInvokeBoundFunc(t *testing.T) {
	inv := NewInvoker(newTestRegistry(t), 0)
	inv.Bind("css", func(ctx context.Context, req Request) (models.Consultation, error) {
		assert.Equal(t, "css", req.Domain)
		assert.Equal(t, "restyle the header", req.TaskContext)
		return models.Consultation{
			Pass:           true,
			Recommendation: "use theme variables",
			Requires:       []string{"theme.css"},
		}, nil
	})

	consultation, err := inv.Invoke(context.Background(), "css", "restyle the header", nil)
	require.NoError(t, err)

	assert.True(t, consultation.Pass)
	assert.Equal(t, "css", consultation.Domain)
	assert.Equal(t, "css-validator", consultation.Specialist)
	assert.Equal(t, "use theme variables", consultation.Recommendation)
}

func TestInvokeFuncErrorBecomesSyntheticFailure(t *testing.T) {
	inv := NewInvoker(newTestRegistry(t), 0)
	inv.Bind("css", func(ctx context.Context, req Request) (models.Consultation, error) {
		return models.Consultation{}, errors.New("specialist exploded")
	})

	consultation, err := inv.Invoke(context.Background(), "css", "task", nil)
	require.NoError(t, err, "specialist failure is data, not an error")

	assert.False(t, consultation.Pass)
	assert.Equal(t, InvocationErrorRecommendation, consultation.Recommendation)
	require.Len(t, consultation.Findings, 1)
	assert.Equal(t, models.SeverityCritical, consultation.Findings[0].Severity)
	assert.Contains(t, consultation.Findings[0].Message, "specialist exploded")
}

func TestInvokeNoCommandNoBinding(t *testing.T) {
	inv := NewInvoker(newTestRegistry(t), 0)

	consultation, err := inv.Invoke(context.Background(), "css", "task", nil)
	require.NoError(t, err)
	assert.False(t, consultation.Pass)
	assert.Equal(t, InvocationErrorRecommendation, consultation.Recommendation)
}

func TestInvokeCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	registry := NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(&Definition{
		Name:   "echo-specialist",
		Domain: "general",
		Command: []string{"sh", "-c",
			`cat >/dev/null; echo '{"pass":true,"findings":[{"severity":"info","message":"looks fine"}],"recommendation":"ship it"}'`},
	}))
	inv := NewInvoker(registry, 5*time.Second)

	consultation, err := inv.Invoke(context.Background(), "general", "task", nil)
	require.NoError(t, err)

	assert.True(t, consultation.Pass)
	assert.Equal(t, "echo-specialist", consultation.Specialist)
	assert.Equal(t, "ship it", consultation.Recommendation)
	require.Len(t, consultation.Findings, 1)
	assert.Equal(t, "looks fine", consultation.Findings[0].Message)
}

func TestInvokeCommandMalformedOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	registry := NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(&Definition{
		Name:    "garbage-specialist",
		Domain:  "general",
		Command: []string{"sh", "-c", `cat >/dev/null; echo 'not json at all'`},
	}))
	inv := NewInvoker(registry, 5*time.Second)

	consultation, err := inv.Invoke(context.Background(), "general", "task", nil)
	require.NoError(t, err)
	assert.False(t, consultation.Pass)
	assert.Equal(t, InvocationErrorRecommendation, consultation.Recommendation)
}
