package specialist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownDomain indicates a domain tag with no registered specialist.
// This is always an error, never a silent skip.
var ErrUnknownDomain = errors.New("no specialist registered for domain")

// Registry is the static capability table mapping domain tags to specialist
// definitions. It is populated once at process start and read-only afterwards.
type Registry struct {
	Dir      string
	byDomain map[string]*Definition
}

// NewRegistry creates a registry reading definitions from dir. If dir is
// empty, ~/.overseer/specialists is used.
func NewRegistry(dir string) *Registry {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".overseer", "specialists")
	}
	return &Registry{
		Dir:      dir,
		byDomain: make(map[string]*Definition),
	}
}

// Load scans the specialists directory and parses every definition file.
// A missing directory yields an empty registry, not an error. Files that
// fail to parse are reported on stderr and skipped. A duplicate domain tag
// is an error: the capability table must be unambiguous.
func (r *Registry) Load() error {
	if _, err := os.Stat(r.Dir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return fmt.Errorf("read specialists directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		// README.md documents the directory, it is not a specialist.
		if entry.Name() == "README.md" {
			continue
		}

		path := filepath.Join(r.Dir, entry.Name())
		def, err := ParseDefinitionFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse %s: %v\n", path, err)
			continue
		}

		if existing, ok := r.byDomain[def.Domain]; ok {
			return fmt.Errorf("duplicate specialists for domain %q: %s and %s", def.Domain, existing.FilePath, def.FilePath)
		}
		r.byDomain[def.Domain] = def
	}

	return nil
}

// Register adds a definition directly, for built-in or test specialists.
func (r *Registry) Register(def *Definition) error {
	if def.Domain == "" {
		return fmt.Errorf("specialist %q has no domain", def.Name)
	}
	if existing, ok := r.byDomain[def.Domain]; ok {
		return fmt.Errorf("duplicate specialists for domain %q: %s and %s", def.Domain, existing.Name, def.Name)
	}
	r.byDomain[def.Domain] = def
	return nil
}

// Get returns the specialist registered for a domain tag.
func (r *Registry) Get(domain string) (*Definition, bool) {
	def, ok := r.byDomain[domain]
	return def, ok
}

// Has reports whether a domain tag has a registered specialist.
func (r *Registry) Has(domain string) bool {
	_, ok := r.byDomain[domain]
	return ok
}

// Domains returns every registered domain tag, sorted for determinism.
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.byDomain))
	for domain := range r.byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// List returns all definitions ordered by domain tag.
func (r *Registry) List() []*Definition {
	defs := make([]*Definition, 0, len(r.byDomain))
	for _, domain := range r.Domains() {
		defs = append(defs, r.byDomain[domain])
	}
	return defs
}

// KeywordTable builds the deterministic keyword -> domain classification
// table from every registered specialist. Keywords are lowercased; when two
// domains claim the same keyword the lexicographically smaller domain wins,
// so the table never depends on load order.
func (r *Registry) KeywordTable() map[string]string {
	table := make(map[string]string)
	for _, domain := range r.Domains() {
		for _, kw := range r.byDomain[domain].Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if existing, ok := table[kw]; !ok || domain < existing {
				table[kw] = domain
			}
		}
	}
	return table
}

// Check runs definition checks across the whole registry.
func (r *Registry) Check() []Problem {
	var problems []Problem
	for _, def := range r.List() {
		problems = append(problems, def.Check()...)
	}
	return problems
}
