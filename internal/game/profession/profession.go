// Package profession loads the playable profession catalogue from YAML
// and serves it read-only to the session.
package profession

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyrpg/tinyrpg/internal/game/action"
)

// NoneName is the sentinel profession every player starts with.
const NoneName = "None"

// ErrUnknown is returned when a lookup names a profession that is not
// in the catalogue.
var ErrUnknown = errors.New("unknown profession")

// BaseAttributes are the starting attribute values a profession grants.
type BaseAttributes struct {
	BaseHP   int `yaml:"base_hp"`
	BaseAP   int `yaml:"base_ap"`
	BaseMana int `yaml:"base_mana"`
}

// Profession is the immutable definition of one playable role.
type Profession struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description"`
	BaseAttributes BaseAttributes `yaml:"base_attributes"`
	Actions        []action.Def   `yaml:"actions"`
}

// Validate checks the definition invariants, including every action.
func (p *Profession) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profession name must not be empty")
	}
	if p.BaseAttributes.BaseHP < 1 {
		return fmt.Errorf("profession %q: base_hp must be >= 1, got %d", p.Name, p.BaseAttributes.BaseHP)
	}
	if p.BaseAttributes.BaseAP < 0 || p.BaseAttributes.BaseMana < 0 {
		return fmt.Errorf("profession %q: base attributes must not be negative", p.Name)
	}
	seen := make(map[string]bool, len(p.Actions))
	for i := range p.Actions {
		a := &p.Actions[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("profession %q: %w", p.Name, err)
		}
		if seen[a.ID] {
			return fmt.Errorf("profession %q: duplicate action id %q", p.Name, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Registry holds the loaded professions keyed by name (case-sensitive).
// It always contains the None sentinel. Read-only after loading.
type Registry struct {
	profs map[string]*Profession
	none  *Profession
}

// NewRegistry creates a Registry containing only the None sentinel.
func NewRegistry() *Registry {
	none := &Profession{Name: NoneName}
	return &Registry{
		profs: map[string]*Profession{NoneName: none},
		none:  none,
	}
}

// Register adds p to the registry after validating it.
// The None sentinel cannot be replaced.
//
// Postcondition: on nil return, Lookup(p.Name) succeeds.
func (r *Registry) Register(p *Profession) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Name == NoneName {
		return fmt.Errorf("profession name %q is reserved", NoneName)
	}
	r.profs[p.Name] = p
	return nil
}

// Lookup returns the profession with the given name.
//
// Postcondition: returns ErrUnknown iff name is not in the catalogue.
func (r *Registry) Lookup(name string) (*Profession, error) {
	p, ok := r.profs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return p, nil
}

// None returns the sentinel profession.
func (r *Registry) None() *Profession {
	return r.none
}

// Names returns the catalogue names in sorted order, sentinel included.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profs))
	for name := range r.profs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered professions, sentinel excluded.
func (r *Registry) Count() int {
	return len(r.profs) - 1
}

// LoadDirectory reads every *.yaml file in dir, parses each as a
// Profession with strict field checking, and returns a populated
// Registry.
//
// Precondition: dir must be a readable directory.
// Postcondition: returns a non-nil Registry, or an error if any file
// fails to parse or validate.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading profession dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var p Profession
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := reg.Register(&p); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return reg, nil
}
