package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tinyrpg/tinyrpg/internal/scripting"
)

func TestEvalAmountConstant(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	amount, err := m.EvalAmount("return 7", scripting.Env{})
	require.NoError(t, err)
	assert.Equal(t, 7, amount)
}

func TestEvalAmountUsesEnv(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	env := scripting.Env{ActorMana: 12, TargetHP: 30, TurnNumber: 3}
	amount, err := m.EvalAmount("return math.floor(actor.mana / 4) + turn", env)
	require.NoError(t, err)
	assert.Equal(t, 6, amount)
}

func TestEvalAmountNegativeFlooredAtZero(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	amount, err := m.EvalAmount("return -5", scripting.Env{})
	require.NoError(t, err)
	assert.Equal(t, 0, amount)
}

func TestEvalAmountNonNumberRejected(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	_, err := m.EvalAmount(`return "lots"`, scripting.Env{})
	assert.Error(t, err)
}

func TestEvalAmountSyntaxErrorRejected(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	_, err := m.EvalAmount("return ((", scripting.Env{})
	assert.Error(t, err)
}

func TestEvalAmountInfiniteLoopTerminates(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	_, err := m.EvalAmount("while true do end", scripting.Env{})
	assert.Error(t, err)
}

func TestSandboxStripsDangerousGlobals(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	for _, g := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		_, err := m.EvalAmount("return "+g+`("x")`, scripting.Env{})
		assert.Error(t, err, "global %q should be stripped", g)
	}
}

func TestSandboxHasNoOSLibrary(t *testing.T) {
	m := scripting.NewManager(zaptest.NewLogger(t))
	_, err := m.EvalAmount(`return os.time()`, scripting.Env{})
	assert.Error(t, err)
}
