package handlers_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tinyrpg/tinyrpg/internal/config"
	"github.com/tinyrpg/tinyrpg/internal/frontend/handlers"
	"github.com/tinyrpg/tinyrpg/internal/frontend/netio"
	"github.com/tinyrpg/tinyrpg/internal/game/action"
	"github.com/tinyrpg/tinyrpg/internal/game/profession"
	"github.com/tinyrpg/tinyrpg/internal/game/session"
	"github.com/tinyrpg/tinyrpg/internal/protocol"
	"github.com/tinyrpg/tinyrpg/internal/scripting"
	"github.com/tinyrpg/tinyrpg/internal/testutil"
)

func testRegistry(t *testing.T) *profession.Registry {
	t.Helper()
	reg := profession.NewRegistry()
	require.NoError(t, reg.Register(&profession.Profession{
		Name:           "Warrior",
		Description:    "A front-line fighter.",
		BaseAttributes: profession.BaseAttributes{BaseHP: 30, BaseAP: 10, BaseMana: 5},
		Actions: []action.Def{
			{ID: "slash", Name: "Slash", Target: action.TargetOther, CostAP: 3, Damage: 6},
		},
	}))
	return reg
}

// startServer brings up a full acceptor+router stack on a random port
// and returns its address.
func startServer(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	sess := session.New(testRegistry(t), scripting.NewManager(logger), 1, logger)
	router := handlers.NewRouter(sess, logger)

	cfg := config.ServerConfig{
		Host:             "127.0.0.1",
		Port:             0,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
	}
	acc := netio.NewAcceptor(cfg, router, logger)
	go func() {
		_ = acc.ListenAndServe()
	}()
	t.Cleanup(acc.Stop)

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func join(t *testing.T, c *testutil.Client, name string) protocol.JoinAccept {
	t.Helper()
	raw := c.ExpectResponse(protocol.ReqJoinLobby, name, protocol.RespJoinAccept)
	var accept protocol.JoinAccept
	require.NoError(t, json.Unmarshal(raw, &accept))
	return accept
}

func TestJoinFlow(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	accept := join(t, alice, "Alice123")
	assert.Equal(t, 1, accept.PlayerNumber)
	assert.Equal(t, "Alice123", accept.Lobby["p1"].Name)
	assert.True(t, accept.Lobby["p2"].Ready)

	bob := testutil.Dial(t, addr)
	accept = join(t, bob, "Bob45678")
	assert.Equal(t, 2, accept.PlayerNumber)
	assert.Equal(t, "Alice123", accept.Lobby["p1"].Name)
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	join(t, alice, "Alice123")

	dupe := testutil.Dial(t, addr)
	dupe.ExpectError(protocol.ReqJoinLobby, "Alice123", protocol.ReasonNameTaken)

	// The rejected connection may retry with a different name.
	accept := join(t, dupe, "Bob45678")
	assert.Equal(t, 2, accept.PlayerNumber)
}

func TestJoinRejectsInvalidName(t *testing.T) {
	addr := startServer(t)
	c := testutil.Dial(t, addr)
	c.ExpectError(protocol.ReqJoinLobby, "Al", protocol.ReasonInvalidName)
}

func TestRequestBeforeJoinRejected(t *testing.T) {
	addr := startServer(t)
	c := testutil.Dial(t, addr)
	c.ExpectError(protocol.ReqGetUpdate, nil, protocol.ReasonInvalidCommand)
}

func TestLobbyToCombatFlow(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	join(t, alice, "Alice123")
	bob := testutil.Dial(t, addr)
	join(t, bob, "Bob45678")

	for _, c := range []*testutil.Client{alice, bob} {
		c.ExpectResponse(protocol.ReqUpdateProfession, "Warrior", protocol.RespLobbyData)
		c.ExpectResponse(protocol.ReqUpdateReady, true, protocol.RespLobbyData)
	}

	raw := alice.ExpectResponse(protocol.ReqTryStart, nil, protocol.RespGameStart)
	var start protocol.GameStart
	require.NoError(t, json.Unmarshal(raw, &start))
	assert.Equal(t, 1, start.Game.TurnNumber)
	assert.Equal(t, "p1", start.Game.ActivePlayer)
	assert.Equal(t, [2]int{30, 30}, start.Game.Players["p2"].HP)

	// Bob polls and sees combat state with his own seat number.
	raw = bob.ExpectResponse(protocol.ReqGetUpdate, nil, protocol.RespGameData)
	var game protocol.CombatSnapshot
	require.NoError(t, json.Unmarshal(raw, &game))
	assert.Equal(t, 2, game.PlayerNumber)
	assert.Equal(t, "p1", game.ActivePlayer)
}

func TestTryStartNotReadyReturnsLobbyData(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	join(t, alice, "Alice123")
	alice.ExpectResponse(protocol.ReqUpdateProfession, "Warrior", protocol.RespLobbyData)

	// Not ready yet: the start request is answered with lobby data.
	raw := alice.ExpectResponse(protocol.ReqTryStart, nil, protocol.RespLobbyData)
	var snap protocol.LobbySnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.False(t, snap.Lobby["p1"].Ready)
}

func TestCombatActionAndEndTurn(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	join(t, alice, "Alice123")
	bob := testutil.Dial(t, addr)
	join(t, bob, "Bob45678")

	for _, c := range []*testutil.Client{alice, bob} {
		c.ExpectResponse(protocol.ReqUpdateProfession, "Warrior", protocol.RespLobbyData)
		c.ExpectResponse(protocol.ReqUpdateReady, true, protocol.RespLobbyData)
	}
	alice.ExpectResponse(protocol.ReqTryStart, nil, protocol.RespGameStart)

	// Bob acts out of turn.
	bob.ExpectError(protocol.ReqDoAction,
		protocol.ActionRequest{Action: "slash", Target: "p1"},
		protocol.ReasonNotYourTurn)

	raw := alice.ExpectResponse(protocol.ReqDoAction,
		protocol.ActionRequest{Action: "slash", Target: "p2"},
		protocol.RespGameData)
	var game protocol.CombatSnapshot
	require.NoError(t, json.Unmarshal(raw, &game))
	assert.Equal(t, [2]int{24, 30}, game.Players["p2"].HP)

	raw = alice.ExpectResponse(protocol.ReqEndTurn, nil, protocol.RespGameData)
	require.NoError(t, json.Unmarshal(raw, &game))
	assert.Equal(t, "p2", game.ActivePlayer)
}

func TestDisconnectFreesLobbySlot(t *testing.T) {
	addr := startServer(t)

	alice := testutil.Dial(t, addr)
	join(t, alice, "Alice123")
	alice.Exit()

	// The freed slot and name become available again.
	deadline := time.After(2 * time.Second)
	for {
		c := testutil.Dial(t, addr)
		env := c.RoundTrip(protocol.ReqJoinLobby, "Alice123")
		if env.Response == protocol.RespJoinAccept {
			var accept protocol.JoinAccept
			require.NoError(t, json.Unmarshal(env.Data, &accept))
			assert.Equal(t, 1, accept.PlayerNumber)
			return
		}
		c.Close()
		select {
		case <-deadline:
			t.Fatal("slot was not freed after exit")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestMalformedEnvelopeGetsInvalidCommand(t *testing.T) {
	addr := startServer(t)
	c := testutil.Dial(t, addr)
	join(t, c, "Alice123")

	// An unknown request name is answered, not fatal.
	c.ExpectError("NO SUCH REQUEST", nil, protocol.ReasonInvalidCommand)

	// Still usable afterwards.
	c.ExpectResponse(protocol.ReqGetUpdate, nil, protocol.RespLobbyData)
}

func TestUnparseableStreamAnsweredBeforeClose(t *testing.T) {
	addr := startServer(t)
	c := testutil.Dial(t, addr)
	join(t, c, "Alice123")

	// Broken JSON cannot be skipped past, but the client still gets
	// one error answer before the server gives up on the stream.
	c.SendRaw([]byte("{this is not json"))
	env := c.Recv()
	assert.Equal(t, protocol.RespError, env.Response)
	var reason string
	require.NoError(t, json.Unmarshal(env.Data, &reason))
	assert.Equal(t, protocol.ReasonInvalidCommand, reason)

	c.ExpectClosed()
}
