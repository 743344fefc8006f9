// Package consult implements the consultation aggregator: it classifies a
// task into domain tags, fans out to every matched specialist, and assembles
// the risk matrix and conflict set the decision checkpoint works from.
package consult

import (
	"regexp"
	"sort"
	"strings"
)

var wordSplitter = regexp.MustCompile(`[^a-z0-9]+`)

// Classifier maps task text to domain tags through a fixed keyword table.
// Classification is purely rule-based: the same text always yields the same
// domains.
type Classifier struct {
	table         map[string]string // lowercase keyword -> domain tag
	defaultDomain string
}

// NewClassifier builds a classifier over a keyword table. Text matching no
// keyword classifies to defaultDomain rather than failing the drafting phase.
func NewClassifier(table map[string]string, defaultDomain string) *Classifier {
	normalized := make(map[string]string, len(table))
	for kw, domain := range table {
		normalized[strings.ToLower(strings.TrimSpace(kw))] = domain
	}
	return &Classifier{table: normalized, defaultDomain: defaultDomain}
}

// Classify returns the sorted set of domain tags the text matches. Single-word
// keywords match on token boundaries; multi-word keywords match as substrings
// of the lowercased text.
func (c *Classifier) Classify(text string) []string {
	lowered := strings.ToLower(text)
	tokens := make(map[string]bool)
	for _, tok := range wordSplitter.Split(lowered, -1) {
		if tok != "" {
			tokens[tok] = true
		}
	}

	matched := make(map[string]bool)
	for kw, domain := range c.table {
		if strings.ContainsAny(kw, " -") {
			if strings.Contains(lowered, kw) {
				matched[domain] = true
			}
		} else if tokens[kw] {
			matched[domain] = true
		}
	}

	if len(matched) == 0 {
		return []string{c.defaultDomain}
	}

	domains := make([]string, 0, len(matched))
	for domain := range matched {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
