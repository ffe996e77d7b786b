// Package player implements the per-participant aggregate owned by the
// session: identity, profession, live attributes, timed statuses,
// readiness, and liveness.
package player

import (
	"unicode/utf8"

	"github.com/tinyrpg/tinyrpg/internal/game/action"
	"github.com/tinyrpg/tinyrpg/internal/game/profession"
	"github.com/tinyrpg/tinyrpg/internal/game/status"
	"github.com/tinyrpg/tinyrpg/internal/protocol"
)

// Display name length bounds, enforced at join. Counted in characters,
// not bytes, so multibyte names get the same budget as ASCII ones.
const (
	MinNameLen = 4
	MaxNameLen = 24
)

// ValidName reports whether name satisfies the display-name bounds.
func ValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= MinNameLen && n <= MaxNameLen
}

// Attributes are the live numeric stats of a player. Current values
// are clamped to 0 on decrease; the max values are only reset by
// profession selection.
type Attributes struct {
	HP, MaxHP     int
	AP, MaxAP     int
	Mana, MaxMana int
}

// Player is one participant's mutable state. It is owned exclusively
// by the session, which serialises all access.
type Player struct {
	Name       string
	Profession *profession.Profession
	Attributes Attributes
	Statuses   *status.Set
	Ready      bool
	Alive      bool
	Actions    []action.Def
}

// New creates a player with the None sentinel profession, zero
// attributes, and no actions.
func New(name string, none *profession.Profession) *Player {
	return &Player{
		Name:       name,
		Profession: none,
		Statuses:   status.NewSet(),
		Alive:      true,
	}
}

// SetProfession looks name up in the catalogue, resets all current and
// max attributes to the profession's base values, and replaces the
// action list. Statuses are independent of profession and persist.
//
// Postcondition: on nil return, Attributes match the profession's base
// values exactly; calling again with the same name yields the same
// result.
func (p *Player) SetProfession(reg *profession.Registry, name string) error {
	prof, err := reg.Lookup(name)
	if err != nil {
		return err
	}
	base := prof.BaseAttributes
	p.Profession = prof
	p.Attributes = Attributes{
		HP: base.BaseHP, MaxHP: base.BaseHP,
		AP: base.BaseAP, MaxAP: base.BaseAP,
		Mana: base.BaseMana, MaxMana: base.BaseMana,
	}
	p.Actions = append([]action.Def(nil), prof.Actions...)
	return nil
}

// SetReady sets the readiness flag. No validation: a player may flip
// it any number of times while the lobby is open.
func (p *Player) SetReady(ready bool) {
	p.Ready = ready
}

// Action returns the player's action with the given id.
func (p *Player) Action(id string) (action.Def, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return action.Def{}, false
}

// ApplyDamage reduces HP by amount, flooring at zero. Reaching zero
// kills the player.
//
// Precondition: amount >= 0.
// Postcondition: HP >= 0; Alive is false iff HP == 0.
func (p *Player) ApplyDamage(amount int) {
	p.Attributes.HP -= amount
	if p.Attributes.HP <= 0 {
		p.Attributes.HP = 0
		p.Alive = false
	}
}

// Heal restores HP by amount, capped at MaxHP. Healing does not revive
// a dead player.
//
// Precondition: amount >= 0.
func (p *Player) Heal(amount int) {
	if !p.Alive {
		return
	}
	p.Attributes.HP += amount
	if p.Attributes.HP > p.Attributes.MaxHP {
		p.Attributes.HP = p.Attributes.MaxHP
	}
}

// ProcessStatuses runs one upkeep pass over the player's statuses.
// Each effect is applied to its attribute (clamped at 0; the upper
// bound is deliberately not enforced here), decayed, and expired.
// After the pass, HP <= 0 kills the player.
//
// This method double-applies effects if called twice in the same turn;
// the session's turn-advance operation is its only call site.
func (p *Player) ProcessStatuses() {
	p.Statuses.Tick(func(attr status.Attribute, amount int) {
		switch attr {
		case status.AttrHP:
			p.Attributes.HP = floorZero(p.Attributes.HP - amount)
		case status.AttrAP:
			p.Attributes.AP = floorZero(p.Attributes.AP - amount)
		case status.AttrMana:
			p.Attributes.Mana = floorZero(p.Attributes.Mana - amount)
		}
	})
	if p.Attributes.HP <= 0 {
		p.Alive = false
	}
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// LobbyView produces the pre-game wire view of this player. The
// profession name is passed through verbatim, sentinel included.
func (p *Player) LobbyView() protocol.LobbySlot {
	return protocol.LobbySlot{
		Name:                  p.Name,
		Profession:            p.Profession.Name,
		ProfessionDescription: p.Profession.Description,
		Ready:                 p.Ready,
	}
}

// CombatView produces the in-combat wire view of this player.
func (p *Player) CombatView() protocol.CombatSlot {
	return protocol.CombatSlot{
		Name:       p.Name,
		Profession: p.Profession.Name,
		HP:         [2]int{p.Attributes.HP, p.Attributes.MaxHP},
		AP:         [2]int{p.Attributes.AP, p.Attributes.MaxAP},
		Mana:       [2]int{p.Attributes.Mana, p.Attributes.MaxMana},
	}
}
