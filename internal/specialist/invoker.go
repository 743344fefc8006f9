package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/overseer/internal/models"
)

// InvocationErrorRecommendation marks consultations synthesised when a
// specialist failed to produce a usable answer.
const InvocationErrorRecommendation = "invocation error"

// Request is the wire contract sent to a specialist.
type Request struct {
	Domain        string                `json:"domain"`
	TaskContext   string                `json:"task_context"`
	PriorFindings []models.Consultation `json:"prior_findings,omitempty"`
}

// response is the wire contract a specialist must answer with.
type response struct {
	Pass           bool             `json:"pass"`
	Findings       []models.Finding `json:"findings"`
	Recommendation string           `json:"recommendation"`
	Requires       []string         `json:"requires,omitempty"`
	Forbids        []string         `json:"forbids,omitempty"`
}

// Func is an in-process specialist implementation, used for built-ins and
// tests. Returning an error produces the same synthetic failing consultation
// an external specialist crash would.
type Func func(ctx context.Context, req Request) (models.Consultation, error)

// Invoker runs specialists and enforces the response contract: every
// invocation yields a consultation with a pass/fail flag, whatever the
// specialist itself does.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	funcs    map[string]Func // domain -> in-process implementation
}

// NewInvoker creates an invoker over the given registry. A non-positive
// timeout disables the per-invocation deadline.
func NewInvoker(registry *Registry, timeout time.Duration) *Invoker {
	return &Invoker{
		registry: registry,
		timeout:  timeout,
		funcs:    make(map[string]Func),
	}
}

// Bind attaches an in-process implementation for a domain, taking precedence
// over the definition's external command.
func (inv *Invoker) Bind(domain string, fn Func) {
	inv.funcs[domain] = fn
}

// Invoke consults the specialist registered for the domain tag. An
// unregistered domain is an error (ErrUnknownDomain); a specialist that
// crashes or answers garbage is not — it becomes a failing consultation so
// the aggregator's accounting stays total.
func (inv *Invoker) Invoke(ctx context.Context, domain, taskContext string, prior []models.Consultation) (models.Consultation, error) {
	def, ok := inv.registry.Get(domain)
	if !ok {
		return models.Consultation{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	req := Request{Domain: domain, TaskContext: taskContext, PriorFindings: prior}

	if fn, ok := inv.funcs[domain]; ok {
		consultation, err := fn(ctx, req)
		if err != nil {
			return syntheticFailure(def, err), nil
		}
		consultation.Domain = domain
		consultation.Specialist = def.Name
		return consultation, nil
	}

	if len(def.Command) == 0 {
		return syntheticFailure(def, fmt.Errorf("specialist %q has no command and no bound implementation", def.Name)), nil
	}

	resp, err := inv.runCommand(ctx, def, req)
	if err != nil {
		return syntheticFailure(def, err), nil
	}

	return models.Consultation{
		Domain:         domain,
		Specialist:     def.Name,
		Pass:           resp.Pass,
		Recommendation: resp.Recommendation,
		Findings:       resp.Findings,
		Requires:       resp.Requires,
		Forbids:        resp.Forbids,
	}, nil
}

// runCommand executes the specialist's external command, feeding the request
// as JSON on stdin and expecting a JSON response on stdout.
func (inv *Invoker) runCommand(ctx context.Context, def *Definition, req Request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, def.Command[0], def.Command[1:]...)
	cmd.Stdin = strings.NewReader(string(payload))

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", def.Name, err)
	}

	var resp response
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("malformed response from %s: %w", def.Name, err)
	}
	if resp.Recommendation == "" && !resp.Pass && len(resp.Findings) == 0 {
		return nil, fmt.Errorf("empty response from %s", def.Name)
	}

	return &resp, nil
}

// syntheticFailure converts a specialist failure into data: a failing
// consultation carrying the error as a critical finding.
func syntheticFailure(def *Definition, cause error) models.Consultation {
	return models.Consultation{
		Domain:         def.Domain,
		Specialist:     def.Name,
		Pass:           false,
		Recommendation: InvocationErrorRecommendation,
		Findings: []models.Finding{
			{Severity: models.SeverityCritical, Message: cause.Error()},
		},
	}
}
