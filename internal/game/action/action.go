// Package action defines the combat actions granted by professions.
// Action content is static configuration loaded as part of the
// profession catalogue; resolution is owned by the session.
package action

import (
	"fmt"

	"github.com/tinyrpg/tinyrpg/internal/game/status"
)

// Target constrains whom an action may be aimed at.
type Target string

const (
	// TargetSelf actions always resolve against the actor.
	TargetSelf Target = "self"
	// TargetOther actions require a living target other than the actor.
	TargetOther Target = "other"
	// TargetAny actions accept any living occupied slot, actor included.
	TargetAny Target = "any"
)

// Valid reports whether t is a known targeting mode.
func (t Target) Valid() bool {
	switch t {
	case TargetSelf, TargetOther, TargetAny:
		return true
	}
	return false
}

// StatusSpec describes a status effect an action inflicts on its target.
type StatusSpec struct {
	Attribute     status.Attribute `yaml:"attribute"`
	Change        int              `yaml:"change"`
	Duration      int              `yaml:"duration"`
	DurationDelta int              `yaml:"duration_delta"`
}

// Effect converts the declaration into an applicable status effect.
func (s StatusSpec) Effect() status.Effect {
	return status.Effect{
		Modifier:      status.Modifier{Attribute: s.Attribute, Change: s.Change},
		Duration:      s.Duration,
		DurationDelta: s.DurationDelta,
	}
}

// Def is the static definition of one action.
// At most one of Damage and Heal should be set; LuaAmount, when
// non-empty, is a sandboxed Lua chunk that computes the amount instead
// of the fixed value.
type Def struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Target      Target      `yaml:"target"`
	CostAP      int         `yaml:"cost_ap"`
	CostMana    int         `yaml:"cost_mana"`
	Damage      int         `yaml:"damage"`
	Heal        int         `yaml:"heal"`
	Status      *StatusSpec `yaml:"status"`
	LuaAmount   string      `yaml:"lua_amount"`
}

// IsHeal reports whether the action's amount restores rather than
// drains the target's health.
func (d *Def) IsHeal() bool {
	return d.Heal > 0 && d.Damage == 0
}

// Validate checks the definition invariants.
//
// Postcondition: returns nil iff the definition is usable by the session.
func (d *Def) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("action id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("action %q: name must not be empty", d.ID)
	}
	if !d.Target.Valid() {
		return fmt.Errorf("action %q: target must be one of [self, other, any], got %q", d.ID, d.Target)
	}
	if d.CostAP < 0 || d.CostMana < 0 {
		return fmt.Errorf("action %q: costs must not be negative", d.ID)
	}
	if d.Damage < 0 || d.Heal < 0 {
		return fmt.Errorf("action %q: damage and heal must not be negative", d.ID)
	}
	if d.Damage > 0 && d.Heal > 0 {
		return fmt.Errorf("action %q: damage and heal are mutually exclusive", d.ID)
	}
	if d.Status != nil {
		if !d.Status.Attribute.Valid() {
			return fmt.Errorf("action %q: status attribute must be one of [hp, ap, mana], got %q", d.ID, d.Status.Attribute)
		}
		if d.Status.Duration < 1 {
			return fmt.Errorf("action %q: status duration must be >= 1, got %d", d.ID, d.Status.Duration)
		}
		if d.Status.DurationDelta < 0 {
			return fmt.Errorf("action %q: status duration_delta must not be negative", d.ID)
		}
	}
	return nil
}
