package planstore

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/overseer/internal/models"
)

// Plan files are markdown: YAML frontmatter for the status header, a "Steps"
// section holding one checklist line per step, and a "Consultations" section
// with one entry per specialist consultation. The checkbox is tri-state:
// "[ ]" pending or in progress, "[x]" completed, "[~]" skipped. Everything
// the engine needs to resume after a crash round-trips through this format.

var (
	stepLineRe    = regexp.MustCompile(`^- \[([ x~])\] Step (\d+) \(([a-zA-Z0-9_-]+)\): (.*)$`)
	stepStatusRe  = regexp.MustCompile(`\s*\(status: ([a-z_]+)\)$`)
	consultLineRe = regexp.MustCompile(`^- ([a-zA-Z0-9_-]+) \(([^)]+)\)(?: \[step (\d+)\])?: (PASS|FAIL) - (.*)$`)
	detailLineRe  = regexp.MustCompile(`^  - (files|notes|requires|forbids): (.*)$`)
	findingLineRe = regexp.MustCompile(`^  - \[(critical|warning|info)\] (.*)$`)
)

// frontmatter is the YAML status header at the top of every plan file.
type frontmatter struct {
	ID          string            `yaml:"id"`
	Status      string            `yaml:"status"`
	CreatedAt   time.Time         `yaml:"created_at"`
	ArchivedAt  *time.Time        `yaml:"archived_at,omitempty"`
	Resolutions map[string]string `yaml:"resolutions,omitempty"`
}

// Serialize renders a plan to its markdown persistence format.
func Serialize(plan *models.Plan) ([]byte, error) {
	fm := frontmatter{
		ID:          plan.ID,
		Status:      plan.Status,
		CreatedAt:   plan.CreatedAt.UTC(),
		ArchivedAt:  plan.ArchivedAt,
		Resolutions: plan.Resolutions,
	}
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(header)
	sb.WriteString("---\n\n")
	sb.WriteString("# Plan\n\n")
	sb.WriteString(strings.TrimSpace(plan.Description))
	sb.WriteString("\n\n## Steps\n\n")

	for i := range plan.Steps {
		step := &plan.Steps[i]
		fmt.Fprintf(&sb, "- [%s] Step %d (%s): %s (status: %s)\n",
			step.CheckboxMark(), step.Ordinal, step.Domain, step.Description, stepState(step))
		if len(step.Resources) > 0 {
			fmt.Fprintf(&sb, "  - files: %s\n", strings.Join(step.Resources, ", "))
		}
		if step.Notes != "" {
			fmt.Fprintf(&sb, "  - notes: %s\n", collapseLine(step.Notes))
		}
	}

	sb.WriteString("\n## Consultations\n\n")
	for i := range plan.Consultations {
		c := &plan.Consultations[i]
		verdict := "FAIL"
		if c.Pass {
			verdict = "PASS"
		}
		stepRef := ""
		if c.StepOrdinal > 0 {
			stepRef = fmt.Sprintf(" [step %d]", c.StepOrdinal)
		}
		fmt.Fprintf(&sb, "- %s (%s)%s: %s - %s\n", c.Domain, c.Specialist, stepRef, verdict, collapseLine(c.Recommendation))
		if len(c.Requires) > 0 {
			fmt.Fprintf(&sb, "  - requires: %s\n", strings.Join(c.Requires, ", "))
		}
		if len(c.Forbids) > 0 {
			fmt.Fprintf(&sb, "  - forbids: %s\n", strings.Join(c.Forbids, ", "))
		}
		for _, finding := range c.Findings {
			fmt.Fprintf(&sb, "  - [%s] %s\n", finding.Severity, collapseLine(finding.Message))
		}
	}

	return []byte(sb.String()), nil
}

func stepState(step *models.Step) string {
	if step.State == "" {
		return models.StepPending
	}
	return step.State
}

// collapseLine flattens newlines so free text cannot break the line-oriented
// format.
func collapseLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Parse reads a plan back from its markdown persistence format.
func Parse(data []byte) (*models.Plan, error) {
	body, fmBytes := splitFrontmatter(data)
	if fmBytes == nil {
		return nil, fmt.Errorf("plan file has no frontmatter header")
	}

	var fm frontmatter
	if err := yaml.Unmarshal(fmBytes, &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	plan := &models.Plan{
		ID:          fm.ID,
		Status:      fm.Status,
		CreatedAt:   fm.CreatedAt,
		ArchivedAt:  fm.ArchivedAt,
		Resolutions: fm.Resolutions,
	}

	sections, err := splitSections(body)
	if err != nil {
		return nil, err
	}
	plan.Description = strings.TrimSpace(sections["Plan"])

	steps, err := parseSteps(sections["Steps"])
	if err != nil {
		return nil, err
	}
	plan.Steps = steps

	consultations, err := parseConsultations(sections["Consultations"])
	if err != nil {
		return nil, err
	}
	plan.Consultations = consultations

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan file: %w", err)
	}
	return plan, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(data []byte) (body, fm []byte) {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 || strings.TrimRight(lines[0], "\r") != "---" {
		return data, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == "---" {
			return []byte(strings.Join(lines[i+1:], "\n")), []byte(strings.Join(lines[1:i], "\n"))
		}
	}
	return data, nil
}

// splitSections walks the goldmark AST to locate headings, then slices the
// source into named sections. The AST gives reliable heading positions; the
// section bodies themselves are parsed line by line, which is more robust
// for our checklist format than walking list nodes.
func splitSections(body []byte) (map[string]string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(body))

	type headingPos struct {
		title string
		stop  int // byte offset where the heading's text ends
	}
	var headings []headingPos

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		segment := heading.Lines().At(heading.Lines().Len() - 1)
		headings = append(headings, headingPos{
			title: extractText(heading, body),
			stop:  segment.Stop,
		})
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk plan markdown: %w", err)
	}

	sections := make(map[string]string, len(headings))
	for i, h := range headings {
		end := len(body)
		if i+1 < len(headings) {
			// Back up to the start of the next heading's line.
			end = lineStart(body, headings[i+1].stop)
		}
		if h.stop <= end {
			sections[h.title] = string(body[h.stop:end])
		}
	}
	return sections, nil
}

// lineStart returns the offset of the beginning of the line containing pos.
func lineStart(body []byte, pos int) int {
	if pos > len(body) {
		pos = len(body)
	}
	idx := bytes.LastIndexByte(body[:pos], '\n')
	return idx + 1
}

// extractText extracts plain text from an AST node's direct children.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

func parseSteps(section string) ([]models.Step, error) {
	var steps []models.Step

	for _, line := range strings.Split(section, "\n") {
		if matches := stepLineRe.FindStringSubmatch(line); matches != nil {
			ordinal, err := strconv.Atoi(matches[2])
			if err != nil {
				return nil, fmt.Errorf("bad step ordinal %q", matches[2])
			}
			description := matches[4]
			state := ""
			if sm := stepStatusRe.FindStringSubmatch(description); sm != nil {
				state = sm[1]
				description = strings.TrimSuffix(description, sm[0])
			}
			if state == "" {
				state = stateFromMark(matches[1])
			}
			steps = append(steps, models.Step{
				Ordinal:     ordinal,
				Domain:      matches[3],
				Description: strings.TrimSpace(description),
				State:       state,
			})
			continue
		}
		if len(steps) == 0 {
			continue
		}
		last := &steps[len(steps)-1]
		if matches := detailLineRe.FindStringSubmatch(line); matches != nil {
			switch matches[1] {
			case "files":
				last.Resources = splitList(matches[2])
			case "notes":
				last.Notes = matches[2]
			}
		}
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Ordinal < steps[j].Ordinal })
	return steps, nil
}

func stateFromMark(mark string) string {
	switch mark {
	case "x":
		return models.StepCompleted
	case "~":
		return models.StepSkipped
	default:
		return models.StepPending
	}
}

func parseConsultations(section string) ([]models.Consultation, error) {
	var consultations []models.Consultation

	for _, line := range strings.Split(section, "\n") {
		if matches := consultLineRe.FindStringSubmatch(line); matches != nil {
			c := models.Consultation{
				Domain:         matches[1],
				Specialist:     matches[2],
				Pass:           matches[4] == "PASS",
				Recommendation: matches[5],
			}
			if matches[3] != "" {
				ordinal, err := strconv.Atoi(matches[3])
				if err != nil {
					return nil, fmt.Errorf("bad consultation step ordinal %q", matches[3])
				}
				c.StepOrdinal = ordinal
			}
			consultations = append(consultations, c)
			continue
		}
		if len(consultations) == 0 {
			continue
		}
		last := &consultations[len(consultations)-1]
		if matches := detailLineRe.FindStringSubmatch(line); matches != nil {
			switch matches[1] {
			case "requires":
				last.Requires = splitList(matches[2])
			case "forbids":
				last.Forbids = splitList(matches[2])
			}
			continue
		}
		if matches := findingLineRe.FindStringSubmatch(line); matches != nil {
			last.Findings = append(last.Findings, models.Finding{
				Severity: matches[1],
				Message:  matches[2],
			})
		}
	}

	return consultations, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
