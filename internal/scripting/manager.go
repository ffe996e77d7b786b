package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Env exposes the combat values visible to an action formula.
type Env struct {
	ActorHP, ActorMaxHP   int
	ActorAP, ActorMana    int
	TargetHP, TargetMaxHP int
	TurnNumber            int
}

// Manager evaluates action amount formulas in fresh sandboxed VMs.
// A fresh LState per evaluation keeps formulas stateless and makes
// concurrent sessions trivially safe.
type Manager struct {
	logger    *zap.Logger
	instLimit int
}

// NewManager creates a Manager using the default instruction limit.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger, instLimit: DefaultInstructionLimit}
}

// NewManagerWithLimit creates a Manager with a custom instruction limit.
// A limit of zero or less selects the default.
//
// Precondition: logger must be non-nil.
func NewManagerWithLimit(logger *zap.Logger, limit int) *Manager {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	return &Manager{logger: logger, instLimit: limit}
}

// EvalAmount runs script in a sandboxed VM and returns the computed
// amount. The script is a Lua chunk that must return a number; the
// globals `actor` and `target` expose attribute tables and `turn` the
// current turn number. Negative results are floored at zero.
//
// Postcondition: returns amount >= 0, or a non-nil error and 0.
func (m *Manager) EvalAmount(script string, env Env) (int, error) {
	L := NewSandboxedState(m.instLimit)
	defer L.Close()

	actor := L.NewTable()
	L.SetField(actor, "hp", lua.LNumber(env.ActorHP))
	L.SetField(actor, "max_hp", lua.LNumber(env.ActorMaxHP))
	L.SetField(actor, "ap", lua.LNumber(env.ActorAP))
	L.SetField(actor, "mana", lua.LNumber(env.ActorMana))
	L.SetGlobal("actor", actor)

	target := L.NewTable()
	L.SetField(target, "hp", lua.LNumber(env.TargetHP))
	L.SetField(target, "max_hp", lua.LNumber(env.TargetMaxHP))
	L.SetGlobal("target", target)

	L.SetGlobal("turn", lua.LNumber(env.TurnNumber))

	if err := L.DoString(script); err != nil {
		m.logger.Warn("action formula failed", zap.Error(err))
		return 0, fmt.Errorf("running action formula: %w", err)
	}

	ret := L.Get(-1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("action formula returned %s, want number", ret.Type())
	}
	amount := int(n)
	if amount < 0 {
		amount = 0
	}
	return amount, nil
}
