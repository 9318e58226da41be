package catalog

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/traits"
)

// FilterProfile is a named, file-loadable selection of tests: name
// patterns plus include/exclude tag sets. Profiles let one binary carry
// several run definitions (smoke, full, nightly) selected at launch.
type FilterProfile struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description,omitempty"`
	Names       []string `yaml:"names,omitempty"`
	IncludeTags []string `yaml:"include_tags,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty"`
	// Inherits merges the named profiles' patterns into this one.
	Inherits []string `yaml:"inherits,omitempty"`
}

// ProfileFile is the on-disk shape of a filter profile collection.
type ProfileFile struct {
	Profiles []FilterProfile `yaml:"profiles"`
}

// LoadProfiles reads and resolves a profile file. Profile inheritance is
// resolved here: a profile accumulates the patterns of everything it
// inherits, recursively, with cycles rejected.
func LoadProfiles(path string) (*ProfileFile, error) {
	log.Debug("Reading filter profile file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	var pf ProfileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing profile file: %w", err)
	}

	byID := make(map[string]*FilterProfile, len(pf.Profiles))
	for i := range pf.Profiles {
		p := &pf.Profiles[i]
		if p.ID == "" {
			return nil, fmt.Errorf("profile at index %d has no id", i)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id %q", p.ID)
		}
		byID[p.ID] = p
	}

	for i := range pf.Profiles {
		if err := resolveProfile(&pf.Profiles[i], byID, make(map[string]bool)); err != nil {
			return nil, err
		}
	}
	return &pf, nil
}

func resolveProfile(p *FilterProfile, byID map[string]*FilterProfile, visiting map[string]bool) error {
	if len(p.Inherits) == 0 {
		return nil
	}
	if visiting[p.ID] {
		return fmt.Errorf("circular inheritance detected at profile %q", p.ID)
	}
	visiting[p.ID] = true
	defer delete(visiting, p.ID)

	for _, parentID := range p.Inherits {
		parent, ok := byID[parentID]
		if !ok {
			return fmt.Errorf("profile %q inherits from non-existent profile %q", p.ID, parentID)
		}
		if err := resolveProfile(parent, byID, visiting); err != nil {
			return err
		}
		p.Names = appendMissing(p.Names, parent.Names)
		p.IncludeTags = appendMissing(p.IncludeTags, parent.IncludeTags)
		p.ExcludeTags = appendMissing(p.ExcludeTags, parent.ExcludeTags)
	}
	p.Inherits = nil
	return nil
}

func appendMissing(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// Profile returns the resolved profile with the given id.
func (pf *ProfileFile) Profile(id string) (FilterProfile, error) {
	for _, p := range pf.Profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return FilterProfile{}, fmt.Errorf("profile %q not found", id)
}

// Filter converts the profile into the configuration filter the plan
// builder consumes.
func (p FilterProfile) Filter() events.Filter {
	f := events.Filter{Names: p.Names}
	for _, t := range p.IncludeTags {
		f.IncludeTags = append(f.IncludeTags, traits.Tag(t))
	}
	for _, t := range p.ExcludeTags {
		f.ExcludeTags = append(f.ExcludeTags, traits.Tag(t))
	}
	return f
}
