// Package session implements the authoritative state machine for one
// six-slot game session: slot assignment, the lobby → combat → ended
// phase progression, turn rotation, action resolution, and the win
// condition. All operations are serialised behind one mutex; connection
// workers share a single Session instance.
package session

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tinyrpg/tinyrpg/internal/game/action"
	"github.com/tinyrpg/tinyrpg/internal/game/player"
	"github.com/tinyrpg/tinyrpg/internal/game/profession"
	"github.com/tinyrpg/tinyrpg/internal/protocol"
	"github.com/tinyrpg/tinyrpg/internal/scripting"
)

// NumSlots is the fixed number of seats in a session.
const NumSlots = protocol.NumSlots

// Phase is the session's lifecycle state. Transitions are monotonic:
// lobby → combat → ended.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseCombat
	PhaseEnded
)

// String returns a human-readable phase label.
func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseCombat:
		return "combat"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Expected rejections. These are ordinary return values, not faults:
// the router maps them to ERROR reason codes and the connection stays
// open.
var (
	ErrLobbyFull         = errors.New("lobby is full")
	ErrNameTaken         = errors.New("name already taken")
	ErrGameStarted       = errors.New("game already started")
	ErrInvalidName       = errors.New("invalid player name")
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrEmptySlot         = errors.New("slot is empty")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrActionUnavailable = errors.New("action unavailable")
	ErrInvalidTarget     = errors.New("invalid target")
	ErrWrongPhase        = errors.New("request not valid in current phase")
)

// Update is a phase-dependent snapshot of the session. Exactly one of
// Lobby and Game is non-nil: Lobby while the session is in the lobby,
// Game during combat and after the session has ended.
type Update struct {
	Phase Phase
	Lobby *protocol.LobbySnapshot
	Game  *protocol.CombatSnapshot
}

// Session is the single source of truth for one game session.
// All exported methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	logger   *zap.Logger
	registry *profession.Registry
	scripts  *scripting.Manager // nil disables scripted action amounts

	minPlayers int

	slots  [NumSlots]*player.Player
	phase  Phase
	turn   int
	active int
}

// New creates a session in the lobby phase.
//
// Precondition: registry and logger must be non-nil; scripts may be nil.
// minPlayers is clamped to [1, NumSlots].
func New(registry *profession.Registry, scripts *scripting.Manager, minPlayers int, logger *zap.Logger) *Session {
	if minPlayers < 1 {
		minPlayers = 1
	}
	if minPlayers > NumSlots {
		minPlayers = NumSlots
	}
	return &Session{
		logger:     logger,
		registry:   registry,
		scripts:    scripts,
		minPlayers: minPlayers,
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Join allocates the lowest-numbered empty slot for a new player.
// Valid only in the lobby phase.
//
// Postcondition: on nil error, the returned slot index is occupied by a
// player named name with the None profession, and the snapshot reflects
// the post-join lobby.
func (s *Session) Join(name string) (int, protocol.LobbySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return -1, protocol.LobbySnapshot{}, ErrGameStarted
	}
	if !player.ValidName(name) {
		return -1, protocol.LobbySnapshot{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	free := -1
	for i, p := range s.slots {
		if p == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if p.Name == name {
			return -1, protocol.LobbySnapshot{}, fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
	}
	if free < 0 {
		return -1, protocol.LobbySnapshot{}, ErrLobbyFull
	}

	s.slots[free] = player.New(name, s.registry.None())
	s.logger.Info("player joined",
		zap.String("name", name),
		zap.String("slot", protocol.SlotID(free)),
	)
	return free, s.lobbySnapshotLocked(), nil
}

// UpdateProfession sets the profession of the player in slot.
// Valid only in the lobby phase for an occupied slot.
func (s *Session) UpdateProfession(slot int, name string) (protocol.LobbySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return protocol.LobbySnapshot{}, ErrGameStarted
	}
	p, err := s.occupiedLocked(slot)
	if err != nil {
		return protocol.LobbySnapshot{}, err
	}
	if err := p.SetProfession(s.registry, name); err != nil {
		return protocol.LobbySnapshot{}, err
	}
	return s.lobbySnapshotLocked(), nil
}

// UpdateReady sets the readiness flag of the player in slot.
// Valid only in the lobby phase for an occupied slot.
func (s *Session) UpdateReady(slot int, ready bool) (protocol.LobbySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return protocol.LobbySnapshot{}, ErrGameStarted
	}
	p, err := s.occupiedLocked(slot)
	if err != nil {
		return protocol.LobbySnapshot{}, err
	}
	p.SetReady(ready)
	return s.lobbySnapshotLocked(), nil
}

// TryStart evaluates start-eligibility and, when met, transitions the
// session to combat. Any occupied slot may request it. An ineligible
// request is a normal "not yet" response carrying the unchanged lobby
// snapshot, not an error.
//
// Eligibility: at least minPlayers occupied slots and every occupied
// slot ready. Profession choice is not gated; a slot that never picked
// one enters combat with the sentinel's zero attributes.
func (s *Session) TryStart(slot int) (bool, Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return false, Update{}, ErrGameStarted
	}
	if _, err := s.occupiedLocked(slot); err != nil {
		return false, Update{}, err
	}

	occupied := 0
	allReady := true
	for _, p := range s.slots {
		if p == nil {
			continue
		}
		occupied++
		if !p.Ready {
			allReady = false
		}
	}
	if occupied < s.minPlayers || !allReady {
		snap := s.lobbySnapshotLocked()
		return false, Update{Phase: s.phase, Lobby: &snap}, nil
	}

	s.phase = PhaseCombat
	s.turn = 1
	s.active = s.lowestAliveLocked()
	s.logger.Info("combat started",
		zap.Int("players", occupied),
		zap.String("active", protocol.SlotID(s.active)),
	)
	snap := s.combatSnapshotLocked()
	return true, Update{Phase: s.phase, Game: &snap}, nil
}

// Update returns the snapshot appropriate to the current phase,
// tagged with the requester's player number. Valid in any phase for an
// occupied slot (in combat, dead players still observe the session).
func (s *Session) Update(slot int) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.occupiedLocked(slot); err != nil {
		return Update{}, err
	}
	return s.updateLocked(slot), nil
}

// DoAction resolves one action by the player in slot against target
// (a slot id). Valid only in combat, only on the actor's turn, and only
// while the actor is alive. Side effects are all-or-nothing: validation
// and formula evaluation complete before any attribute changes.
func (s *Session) DoAction(slot int, actionID, target string) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseCombat {
		return Update{}, ErrWrongPhase
	}
	actor, err := s.occupiedLocked(slot)
	if err != nil {
		return Update{}, err
	}
	if slot != s.active || !actor.Alive {
		return Update{}, ErrNotYourTurn
	}
	def, ok := actor.Action(actionID)
	if !ok {
		return Update{}, fmt.Errorf("%w: %q", ErrActionUnavailable, actionID)
	}

	tgt, err := s.resolveTargetLocked(actor, slot, def, target)
	if err != nil {
		return Update{}, err
	}

	if actor.Attributes.AP < def.CostAP || actor.Attributes.Mana < def.CostMana {
		return Update{}, fmt.Errorf("%w: insufficient resources for %q", ErrActionUnavailable, actionID)
	}

	amount := def.Damage
	if def.IsHeal() {
		amount = def.Heal
	}
	if def.LuaAmount != "" {
		if s.scripts == nil {
			return Update{}, fmt.Errorf("%w: scripted action %q with scripting disabled", ErrActionUnavailable, actionID)
		}
		amount, err = s.scripts.EvalAmount(def.LuaAmount, scripting.Env{
			ActorHP: actor.Attributes.HP, ActorMaxHP: actor.Attributes.MaxHP,
			ActorAP: actor.Attributes.AP, ActorMana: actor.Attributes.Mana,
			TargetHP: tgt.Attributes.HP, TargetMaxHP: tgt.Attributes.MaxHP,
			TurnNumber: s.turn,
		})
		if err != nil {
			return Update{}, fmt.Errorf("%w: %q: %v", ErrActionUnavailable, actionID, err)
		}
	}

	// Validation complete; apply all side effects.
	actor.Attributes.AP -= def.CostAP
	actor.Attributes.Mana -= def.CostMana
	if def.IsHeal() {
		tgt.Heal(amount)
	} else if amount > 0 {
		tgt.ApplyDamage(amount)
	}
	if def.Status != nil {
		tgt.Statuses.Apply(def.Status.Effect())
	}

	s.logger.Info("action resolved",
		zap.String("actor", actor.Name),
		zap.String("action", def.ID),
		zap.String("target", tgt.Name),
		zap.Int("amount", amount),
	)
	if !tgt.Alive {
		s.logger.Info("player eliminated", zap.String("name", tgt.Name))
	}
	s.checkWinLocked()
	return s.updateLocked(slot), nil
}

// EndTurn ends the active player's turn: upkeep runs exactly once on
// the outgoing player, the active slot advances past empty and dead
// slots, and the win condition is re-evaluated.
func (s *Session) EndTurn(slot int) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseCombat {
		return Update{}, ErrWrongPhase
	}
	out, err := s.occupiedLocked(slot)
	if err != nil {
		return Update{}, err
	}
	if slot != s.active || !out.Alive {
		return Update{}, ErrNotYourTurn
	}

	// Upkeep. The sole call site of ProcessStatuses, which keeps the
	// once-per-turn contract structural.
	out.ProcessStatuses()
	if !out.Alive {
		s.logger.Info("player eliminated", zap.String("name", out.Name))
	}

	if s.checkWinLocked() {
		return s.updateLocked(slot), nil
	}
	s.advanceLocked()
	return s.updateLocked(slot), nil
}

// Leave removes the participant in slot. In the lobby the slot is
// freed; in combat the player is marked dead but stays visible, and the
// turn advances if it was theirs. Valid in any phase.
func (s *Session) Leave(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.occupiedLocked(slot)
	if err != nil {
		return err
	}

	switch s.phase {
	case PhaseLobby:
		s.slots[slot] = nil
	case PhaseCombat:
		p.Alive = false
		if s.checkWinLocked() {
			break
		}
		if slot == s.active {
			s.advanceLocked()
		}
	case PhaseEnded:
		// Nothing to re-evaluate; the slot stays visible in the
		// terminal snapshot.
	}

	s.logger.Info("player left",
		zap.String("name", p.Name),
		zap.String("slot", protocol.SlotID(slot)),
		zap.String("phase", s.phase.String()),
	)
	return nil
}

// occupiedLocked returns the player in slot, or an error for an
// out-of-range or empty slot.
func (s *Session) occupiedLocked(slot int) (*player.Player, error) {
	if slot < 0 || slot >= NumSlots {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	p := s.slots[slot]
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptySlot, protocol.SlotID(slot))
	}
	return p, nil
}

// resolveTargetLocked applies the action's targeting mode: self actions
// always resolve to the actor; other/any actions require a living
// occupied target slot.
func (s *Session) resolveTargetLocked(actor *player.Player, slot int, def action.Def, target string) (*player.Player, error) {
	if def.Target == action.TargetSelf {
		return actor, nil
	}
	idx, ok := protocol.SlotIndex(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if def.Target == action.TargetOther && idx == slot {
		return nil, fmt.Errorf("%w: %q cannot target self", ErrInvalidTarget, def.ID)
	}
	tgt := s.slots[idx]
	if tgt == nil || !tgt.Alive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}
	return tgt, nil
}

// aliveCountLocked counts occupied slots whose player is alive.
func (s *Session) aliveCountLocked() int {
	n := 0
	for _, p := range s.slots {
		if p != nil && p.Alive {
			n++
		}
	}
	return n
}

// lowestAliveLocked returns the lowest occupied living slot, or -1.
func (s *Session) lowestAliveLocked() int {
	for i, p := range s.slots {
		if p != nil && p.Alive {
			return i
		}
	}
	return -1
}

// checkWinLocked transitions to ended when at most one living player
// remains. Reports whether the session is (now) ended.
func (s *Session) checkWinLocked() bool {
	if s.phase != PhaseCombat {
		return s.phase == PhaseEnded
	}
	if s.aliveCountLocked() > 1 {
		return false
	}
	s.phase = PhaseEnded
	winner := "nobody"
	if idx := s.lowestAliveLocked(); idx >= 0 {
		winner = s.slots[idx].Name
	}
	s.logger.Info("session ended",
		zap.Int("turns", s.turn),
		zap.String("winner", winner),
	)
	return true
}

// advanceLocked moves the active slot to the next occupied living slot
// in ascending order, wrapping around. The turn number increments each
// time the rotation returns to the lowest living slot.
//
// Precondition: at least one occupied living slot exists.
func (s *Session) advanceLocked() {
	lowest := s.lowestAliveLocked()
	for i := 1; i <= NumSlots; i++ {
		idx := (s.active + i) % NumSlots
		p := s.slots[idx]
		if p == nil || !p.Alive {
			continue
		}
		s.active = idx
		if idx == lowest {
			s.turn++
		}
		return
	}
}

// updateLocked builds the phase-appropriate snapshot, tagging it with
// the requester's 1-based player number.
func (s *Session) updateLocked(requester int) Update {
	if s.phase == PhaseLobby {
		snap := s.lobbySnapshotLocked()
		snap.PlayerNumber = requester + 1
		return Update{Phase: s.phase, Lobby: &snap}
	}
	snap := s.combatSnapshotLocked()
	snap.PlayerNumber = requester + 1
	return Update{Phase: s.phase, Game: &snap}
}

func (s *Session) lobbySnapshotLocked() protocol.LobbySnapshot {
	lobby := make(map[string]protocol.LobbySlot, NumSlots)
	for i, p := range s.slots {
		if p == nil {
			lobby[protocol.SlotID(i)] = protocol.EmptyLobbySlot()
			continue
		}
		lobby[protocol.SlotID(i)] = p.LobbyView()
	}
	return protocol.LobbySnapshot{Lobby: lobby}
}

func (s *Session) combatSnapshotLocked() protocol.CombatSnapshot {
	players := make(map[string]protocol.CombatSlot, NumSlots)
	for i, p := range s.slots {
		if p == nil {
			players[protocol.SlotID(i)] = protocol.EmptyCombatSlot()
			continue
		}
		players[protocol.SlotID(i)] = p.CombatView()
	}
	return protocol.CombatSnapshot{
		TurnNumber:   s.turn,
		ActivePlayer: protocol.SlotID(s.active),
		Players:      players,
	}
}
