package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planrun/planrun/traits"
)

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadProfiles(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: smoke
    description: Fast checks only
    names:
      - Checkout
    include_tags:
      - fast
    exclude_tags:
      - flaky
`)

	pf, err := LoadProfiles(path)
	require.NoError(t, err)

	p, err := pf.Profile("smoke")
	require.NoError(t, err)
	assert.Equal(t, "Fast checks only", p.Description)

	f := p.Filter()
	assert.Equal(t, []string{"Checkout"}, f.Names)
	assert.Equal(t, []traits.Tag{"fast"}, f.IncludeTags)
	assert.Equal(t, []traits.Tag{"flaky"}, f.ExcludeTags)
}

func TestLoadProfilesInheritance(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: base
    names:
      - Common
    exclude_tags:
      - flaky
  - id: extended
    inherits:
      - base
    names:
      - Extra
`)

	pf, err := LoadProfiles(path)
	require.NoError(t, err)

	p, err := pf.Profile("extended")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Extra", "Common"}, p.Names)
	assert.Equal(t, []string{"flaky"}, p.ExcludeTags)
	assert.Empty(t, p.Inherits, "inheritance is fully resolved at load time")
}

func TestLoadProfilesTransitiveInheritance(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: a
    names: [one]
  - id: b
    inherits: [a]
    names: [two]
  - id: c
    inherits: [b]
    names: [three]
`)

	pf, err := LoadProfiles(path)
	require.NoError(t, err)

	p, err := pf.Profile("c")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two", "three"}, p.Names)
}

func TestLoadProfilesRejectsCycle(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: a
    inherits: [b]
  - id: b
    inherits: [a]
`)

	_, err := LoadProfiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular inheritance")
}

func TestLoadProfilesRejectsUnknownParent(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: a
    inherits: [ghost]
`)

	_, err := LoadProfiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-existent")
}

func TestLoadProfilesRejectsDuplicateIDs(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: a
  - id: a
`)

	_, err := LoadProfiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate profile id")
}

func TestLoadProfilesMissingFile(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestProfileNotFound(t *testing.T) {
	path := writeProfiles(t, `
profiles:
  - id: only
`)
	pf, err := LoadProfiles(path)
	require.NoError(t, err)

	_, err = pf.Profile("missing")
	require.Error(t, err)
}
