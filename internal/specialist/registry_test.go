package specialist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoad(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "css.md", `---
name: css-validator
domain: css
description: css things
keywords: css, theme
---
body
`)
	writeDefinition(t, dir, "seo.md", `---
name: seo-auditor
domain: seo
description: seo things
keywords: seo, meta
---
body
`)
	writeDefinition(t, dir, "README.md", "# Not a specialist\n")
	writeDefinition(t, dir, "broken.md", "no frontmatter here\n")

	registry := NewRegistry(dir)
	require.NoError(t, registry.Load())

	assert.Equal(t, []string{"css", "seo"}, registry.Domains())
	assert.True(t, registry.Has("css"))
	assert.False(t, registry.Has("database"))

	def, ok := registry.Get("seo")
	require.True(t, ok)
	assert.Equal(t, "seo-auditor", def.Name)
}

func TestRegistryLoadMissingDir(t *testing.T) {
	registry := NewRegistry("/nonexistent/specialists")
	require.NoError(t, registry.Load())
	assert.Empty(t, registry.Domains())
}

func TestRegistryDuplicateDomain(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.md", "---\nname: a\ndomain: css\n---\nbody\n")
	writeDefinition(t, dir, "b.md", "---\nname: b\ndomain: css\n---\nbody\n")

	registry := NewRegistry(dir)
	err := registry.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate specialists")
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry(t.TempDir())

	require.NoError(t, registry.Register(&Definition{Name: "gen", Domain: "general"}))
	require.Error(t, registry.Register(&Definition{Name: "gen2", Domain: "general"}))
	require.Error(t, registry.Register(&Definition{Name: "nodomain"}))
}

func TestKeywordTable(t *testing.T) {
	registry := NewRegistry(t.TempDir())
	require.NoError(t, registry.Register(&Definition{
		Name: "css-validator", Domain: "css",
		Keywords: KeywordList{"Theme", "stylesheet", "layout"},
	}))
	require.NoError(t, registry.Register(&Definition{
		Name: "a11y-auditor", Domain: "accessibility",
		Keywords: KeywordList{"layout", "aria"},
	}))

	table := registry.KeywordTable()

	assert.Equal(t, "css", table["theme"], "keywords are lowercased")
	assert.Equal(t, "css", table["stylesheet"])
	assert.Equal(t, "accessibility", table["aria"])
	// Contested keyword goes to the lexicographically smaller domain,
	// independent of registration order.
	assert.Equal(t, "accessibility", table["layout"])
}
