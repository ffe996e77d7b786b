package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSlotID(t *testing.T) {
	assert.Equal(t, "p1", SlotID(0))
	assert.Equal(t, "p6", SlotID(5))
}

func TestSlotIndex(t *testing.T) {
	for i := 0; i < NumSlots; i++ {
		idx, ok := SlotIndex(SlotID(i))
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}
	for _, id := range []string{"", "p0", "p7", "q1", "p10", "P1", "1"} {
		_, ok := SlotIndex(id)
		assert.False(t, ok, "id %q should be rejected", id)
	}
}

func TestRequestEnvelopeLeavesDataRaw(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"request": "DO ACTION", "data": {"action": "slash", "target": "p2"}}`), &req)
	require.NoError(t, err)
	assert.Equal(t, ReqDoAction, req.Request)

	var payload ActionRequest
	require.NoError(t, json.Unmarshal(req.Data, &payload))
	assert.Equal(t, "slash", payload.Action)
	assert.Equal(t, "p2", payload.Target)
}

func TestLobbySnapshotWireShape(t *testing.T) {
	snap := LobbySnapshot{
		Lobby: map[string]LobbySlot{
			"p1": {Name: "Alice123", Profession: "Warrior", ProfessionDescription: "A fighter.", Ready: false},
			"p2": EmptyLobbySlot(),
		},
		PlayerNumber: 1,
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "lobby")
	assert.EqualValues(t, 1, decoded["player-number"])

	lobby := decoded["lobby"].(map[string]any)
	p2 := lobby["p2"].(map[string]any)
	assert.Equal(t, true, p2["ready"])
	assert.Equal(t, "", p2["name"])
	assert.Contains(t, p2, "profession_description")
}

func TestLobbySnapshotOmitsZeroPlayerNumber(t *testing.T) {
	raw, err := json.Marshal(LobbySnapshot{Lobby: map[string]LobbySlot{}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "player-number")
}

func TestCombatSnapshotWireShape(t *testing.T) {
	snap := CombatSnapshot{
		TurnNumber:   3,
		ActivePlayer: "p2",
		Players: map[string]CombatSlot{
			"p1": {Name: "Alice123", Profession: "Warrior", HP: [2]int{24, 30}, AP: [2]int{10, 10}, Mana: [2]int{5, 5}},
			"p2": EmptyCombatSlot(),
		},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.EqualValues(t, 3, decoded["turn-number"])
	assert.Equal(t, "p2", decoded["active-player"])

	players := decoded["players"].(map[string]any)
	p1 := players["p1"].(map[string]any)
	hp := p1["hp"].([]any)
	require.Len(t, hp, 2)
	assert.EqualValues(t, 24, hp[0])
	assert.EqualValues(t, 30, hp[1])
}

func TestErrorResponse(t *testing.T) {
	raw, err := json.Marshal(ErrorResponse(ReasonLobbyFull))
	require.NoError(t, err)
	assert.JSONEq(t, `{"response": "ERROR", "data": "LOBBY FULL"}`, string(raw))
}

func TestPropertySlotIDRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		i := rapid.IntRange(0, NumSlots-1).Draw(t, "slot")
		idx, ok := SlotIndex(SlotID(i))
		if !ok || idx != i {
			t.Fatalf("slot %d did not round-trip (got %d, %v)", i, idx, ok)
		}
	})
}
