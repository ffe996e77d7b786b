// Package status implements timed attribute modifiers. Each effect
// drains one attribute once per turn, decays by a fixed delta, and
// expires when its duration runs out. A negative change restores the
// attribute instead, but only on the effect's first turn: the decay
// floor raises any negative change to zero after one application.
package status

// Attribute names the player attribute a modifier acts on.
type Attribute string

const (
	AttrHP   Attribute = "hp"
	AttrAP   Attribute = "ap"
	AttrMana Attribute = "mana"
)

// Valid reports whether a is one of the known attributes.
func (a Attribute) Valid() bool {
	switch a {
	case AttrHP, AttrAP, AttrMana:
		return true
	}
	return false
}

// Modifier names the attribute an effect acts on and by how much.
// A positive Change is subtracted from the attribute each turn.
type Modifier struct {
	Attribute Attribute
	Change    int
}

// Effect is one timed status applied to a player.
type Effect struct {
	Modifier Modifier
	// Duration is the number of turns the effect has left.
	Duration int
	// DurationDelta is subtracted from Modifier.Change after each
	// application; Change is floored at 0 and the capped value is
	// what future turns apply.
	DurationDelta int
}

// Set holds the active effects on one player in application order.
// It is not safe for concurrent use; the session serialises access.
type Set struct {
	effects []*Effect
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Apply appends a copy of e to the set. Effects whose duration is
// already spent are dropped.
//
// Postcondition: every stored effect has Duration >= 1.
func (s *Set) Apply(e Effect) {
	if e.Duration <= 0 {
		return
	}
	cp := e
	s.effects = append(s.effects, &cp)
}

// Len returns the number of active effects.
func (s *Set) Len() int {
	return len(s.effects)
}

// All returns a snapshot copy of the active effects in application order.
func (s *Set) All() []Effect {
	out := make([]Effect, 0, len(s.effects))
	for _, e := range s.effects {
		out = append(out, *e)
	}
	return out
}

// Tick runs one upkeep pass: every effect is applied once via the
// apply callback, then decremented and decayed; effects whose duration
// reaches zero are removed in the same pass.
//
// Tick is not idempotent within a turn. The session must call it
// exactly once per player per turn boundary.
//
// Postcondition: for every remaining effect, Duration >= 1 and
// Modifier.Change >= 0.
func (s *Set) Tick(apply func(attr Attribute, amount int)) {
	kept := s.effects[:0]
	for _, e := range s.effects {
		apply(e.Modifier.Attribute, e.Modifier.Change)
		e.Duration--
		e.Modifier.Change -= e.DurationDelta
		if e.Modifier.Change < 0 {
			e.Modifier.Change = 0
		}
		if e.Duration > 0 {
			kept = append(kept, e)
		}
	}
	s.effects = kept
}
