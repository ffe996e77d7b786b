// Package protocol defines the JSON wire contract spoken between the
// session server and its clients: the fixed handshake greetings, the
// request/response envelopes, and the lobby and combat snapshot shapes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake greetings exchanged before any structured message.
// Either side closing the connection on a mismatch is fatal to that
// connection only.
const (
	HandshakeClient = "Tiny-PyRPG Client"
	HandshakeServer = "Tiny-PyRPG Server"
)

// Request names recognised by the server.
const (
	ReqJoinLobby        = "JOIN LOBBY"
	ReqUpdateProfession = "UPDATE PROFESSION"
	ReqUpdateReady      = "UPDATE READY"
	ReqGetUpdate        = "GET UPDATE"
	ReqTryStart         = "TRY START"
	ReqDoAction         = "DO ACTION"
	ReqEndTurn          = "END TURN"
	ReqExit             = "EXIT"
)

// Response names emitted by the server.
const (
	RespJoinAccept = "JOIN ACCEPT"
	RespLobbyData  = "LOBBY DATA"
	RespGameData   = "GAME DATA"
	RespGameStart  = "GAME START"
	RespError      = "ERROR"
)

// Machine-readable reason codes carried by ERROR responses.
const (
	ReasonLobbyFull         = "LOBBY FULL"
	ReasonNameTaken         = "NAME TAKEN"
	ReasonGameStarted       = "GAME STARTED"
	ReasonInvalidName       = "INVALID NAME"
	ReasonNotYourTurn       = "NOT YOUR TURN"
	ReasonActionUnavailable = "ACTION UNAVAILABLE"
	ReasonInvalidTarget     = "INVALID TARGET"
	ReasonInvalidCommand    = "INVALID COMMAND"
)

// NumSlots is the fixed number of seats in a session.
const NumSlots = 6

// Request is the client-to-server envelope. Data is left raw so the
// router can decode it against the shape the request name implies.
type Request struct {
	Request string          `json:"request"`
	Data    json.RawMessage `json:"data"`
}

// Response is the server-to-client envelope.
type Response struct {
	Response string `json:"response"`
	Data     any    `json:"data"`
}

// ErrorResponse builds an ERROR envelope carrying the given reason code.
func ErrorResponse(reason string) Response {
	return Response{Response: RespError, Data: reason}
}

// LobbySlot is the pre-game view of one seat.
type LobbySlot struct {
	Name                  string `json:"name"`
	Profession            string `json:"profession"`
	ProfessionDescription string `json:"profession_description"`
	Ready                 bool   `json:"ready"`
}

// EmptyLobbySlot returns the sentinel view of an unoccupied seat.
// Ready is true so unfilled seats never block a start check on the
// client side.
func EmptyLobbySlot() LobbySlot {
	return LobbySlot{Ready: true}
}

// LobbySnapshot is the full pre-game view of the session.
// PlayerNumber (1-6) identifies the requesting seat and is only set on
// GET UPDATE responses.
type LobbySnapshot struct {
	Lobby        map[string]LobbySlot `json:"lobby"`
	PlayerNumber int                  `json:"player-number,omitempty"`
}

// CombatSlot is the in-combat view of one seat. HP, AP, and Mana are
// [current, max] pairs.
type CombatSlot struct {
	Name       string `json:"name"`
	Profession string `json:"profession"`
	HP         [2]int `json:"hp"`
	AP         [2]int `json:"ap"`
	Mana       [2]int `json:"mana"`
}

// EmptyCombatSlot returns the sentinel view of an unoccupied seat.
func EmptyCombatSlot() CombatSlot {
	return CombatSlot{}
}

// CombatSnapshot is the full in-combat view of the session.
type CombatSnapshot struct {
	TurnNumber   int                   `json:"turn-number"`
	ActivePlayer string                `json:"active-player"`
	Players      map[string]CombatSlot `json:"players"`
	PlayerNumber int                   `json:"player-number,omitempty"`
}

// JoinAccept is the payload of a JOIN ACCEPT response.
type JoinAccept struct {
	PlayerNumber int                  `json:"player-number"`
	Lobby        map[string]LobbySlot `json:"lobby"`
}

// GameStart is the payload of a GAME START response.
type GameStart struct {
	Game CombatSnapshot `json:"game"`
}

// ActionRequest is the payload of a DO ACTION request. Target is a
// slot id ("p1".."p6") and may be empty for self-targeted actions.
type ActionRequest struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// SlotID returns the wire slot id for a zero-based slot index.
//
// Precondition: 0 <= idx < NumSlots.
func SlotID(idx int) string {
	return fmt.Sprintf("p%d", idx+1)
}

// SlotIndex parses a wire slot id back to a zero-based index.
// Returns false for anything outside "p1".."p6".
func SlotIndex(id string) (int, bool) {
	if len(id) != 2 || id[0] != 'p' {
		return 0, false
	}
	n := int(id[1] - '0')
	if n < 1 || n > NumSlots {
		return 0, false
	}
	return n - 1, true
}
