// Package specialist implements the domain-specialist registry and invoker.
//
// Specialists are opaque capability units keyed by domain tag. Each one is
// defined by a markdown file with YAML frontmatter (name, domain, keywords,
// command) whose body carries the specialist's instructions. The registry
// loads every definition at process start; the invoker runs a specialist
// against a task context and always returns a structured consultation, even
// when the specialist itself blows up.
package specialist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes one registered specialist.
type Definition struct {
	Name         string      `yaml:"name" json:"name"`
	Domain       string      `yaml:"domain" json:"domain"`
	Description  string      `yaml:"description" json:"description"`
	Keywords     KeywordList `yaml:"keywords" json:"keywords,omitempty"`
	Command      []string    `yaml:"command" json:"command,omitempty"`
	FilePath     string      `yaml:"-" json:"-"`
	Instructions string      `yaml:"-" json:"-"` // Markdown body below the frontmatter
}

// KeywordList accepts both a comma-separated string and a YAML array for the
// keywords field, mirroring how specialist files are written by hand.
type KeywordList []string

// UnmarshalYAML implements custom unmarshaling for KeywordList.
func (k *KeywordList) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		parts := strings.Split(str, ",")
		*k = make(KeywordList, 0, len(parts))
		for _, part := range parts {
			if kw := strings.TrimSpace(part); kw != "" {
				*k = append(*k, kw)
			}
		}
		return nil
	}

	var arr []string
	if err := value.Decode(&arr); err == nil {
		*k = KeywordList(arr)
		return nil
	}

	return fmt.Errorf("keywords must be either a comma-separated string or an array")
}

// MarshalJSON always serializes keywords as a JSON array.
func (k KeywordList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(k))
}

// ParseDefinitionFile parses a single specialist definition file.
func ParseDefinitionFile(path string) (*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	frontmatter, body := extractFrontmatter(content)
	if frontmatter == nil {
		return nil, fmt.Errorf("no frontmatter found in %s", path)
	}

	var def Definition
	if err := yaml.Unmarshal(frontmatter, &def); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	def.FilePath = path
	def.Instructions = strings.TrimSpace(string(body))

	if def.Name == "" {
		return nil, fmt.Errorf("specialist name is required in %s", path)
	}
	if def.Domain == "" {
		return nil, fmt.Errorf("specialist domain is required in %s", path)
	}

	return &def, nil
}

// extractFrontmatter splits YAML frontmatter from markdown content, returning
// the frontmatter bytes and the remaining body.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := strings.Split(string(content), "\n")
	if len(lines) < 3 || strings.TrimRight(lines[0], "\r") != "---" {
		return nil, content
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == "---" {
			frontmatter := []byte(strings.Join(lines[1:i], "\n"))
			body := []byte(strings.Join(lines[i+1:], "\n"))
			return frontmatter, body
		}
	}

	return nil, content
}

// Problem describes a defect found while checking a definition file.
type Problem struct {
	FilePath string // Definition file the problem was found in
	Field    string // Offending field, if applicable
	Message  string // What is wrong
}

func (p Problem) String() string {
	if p.Field != "" {
		return fmt.Sprintf("%s: %s: %s", filepath.Base(p.FilePath), p.Field, p.Message)
	}
	return fmt.Sprintf("%s: %s", filepath.Base(p.FilePath), p.Message)
}

// Check validates a definition beyond the hard parse requirements and
// reports advisory problems.
func (d *Definition) Check() []Problem {
	var problems []Problem

	if d.Description == "" {
		problems = append(problems, Problem{FilePath: d.FilePath, Field: "description", Message: "description is empty"})
	}
	if len(d.Keywords) == 0 {
		problems = append(problems, Problem{FilePath: d.FilePath, Field: "keywords", Message: "no keywords; domain will never be matched by classification"})
	}
	if d.Instructions == "" {
		problems = append(problems, Problem{FilePath: d.FilePath, Message: "no instruction body below frontmatter"})
	}
	for _, kw := range d.Keywords {
		if kw != strings.ToLower(kw) {
			problems = append(problems, Problem{FilePath: d.FilePath, Field: "keywords", Message: fmt.Sprintf("keyword %q should be lowercase", kw)})
		}
	}

	return problems
}
