// Package handlers routes decoded request envelopes to session
// operations and shapes the results back into response envelopes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinyrpg/tinyrpg/internal/frontend/netio"
	"github.com/tinyrpg/tinyrpg/internal/game/profession"
	"github.com/tinyrpg/tinyrpg/internal/game/session"
	"github.com/tinyrpg/tinyrpg/internal/protocol"
)

// Router dispatches client requests against the single authoritative
// session. It implements netio.SessionHandler.
type Router struct {
	session *session.Session
	logger  *zap.Logger
}

// NewRouter creates a Router for the given session.
//
// Precondition: sess and logger must be non-nil.
func NewRouter(sess *session.Session, logger *zap.Logger) *Router {
	return &Router{session: sess, logger: logger}
}

// clientState tracks what the server knows about one connection.
type clientState struct {
	slot   int
	joined bool
	left   bool
}

// HandleSession runs the request loop for one connection. The first
// accepted request must be JOIN LOBBY; every request gets exactly one
// response. A client that disconnects (or EXITs) leaves the session.
func (r *Router) HandleSession(ctx context.Context, conn *netio.Conn) error {
	connID := uuid.NewString()
	logger := r.logger.With(
		zap.String("conn_id", connID),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Debug("session handler started")

	state := &clientState{slot: -1}
	defer r.leave(state, logger)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := conn.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("client disconnected")
				return nil
			}
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// The decoder consumed the malformed value; the
				// stream is still framed correctly.
				if werr := conn.WriteResponse(protocol.ErrorResponse(protocol.ReasonInvalidCommand)); werr != nil {
					return werr
				}
				continue
			}
			var synErr *json.SyntaxError
			if errors.As(err, &synErr) {
				// There is no framing delimiter to resynchronise on,
				// so the stream is unusable past this point. Answer,
				// then close.
				_ = conn.WriteResponse(protocol.ErrorResponse(protocol.ReasonInvalidCommand))
				logger.Warn("unparseable request stream", zap.Error(err))
				return nil
			}
			return err
		}

		if req.Request == protocol.ReqExit {
			logger.Info("client exited")
			r.leave(state, logger)
			return nil
		}

		resp := r.dispatch(state, req, logger)
		if err := conn.WriteResponse(resp); err != nil {
			return err
		}
	}
}

// dispatch executes a single request and builds its response.
func (r *Router) dispatch(state *clientState, req protocol.Request, logger *zap.Logger) protocol.Response {
	if !state.joined && req.Request != protocol.ReqJoinLobby {
		return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
	}

	switch req.Request {
	case protocol.ReqJoinLobby:
		return r.handleJoin(state, req.Data, logger)

	case protocol.ReqUpdateProfession:
		// data is the bare profession name.
		var name string
		if err := json.Unmarshal(req.Data, &name); err != nil {
			return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
		}
		snap, err := r.session.UpdateProfession(state.slot, name)
		if err != nil {
			return errorResponse(err, logger)
		}
		return protocol.Response{Response: protocol.RespLobbyData, Data: snap}

	case protocol.ReqUpdateReady:
		// data is a bare boolean.
		var ready bool
		if err := json.Unmarshal(req.Data, &ready); err != nil {
			return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
		}
		snap, err := r.session.UpdateReady(state.slot, ready)
		if err != nil {
			return errorResponse(err, logger)
		}
		return protocol.Response{Response: protocol.RespLobbyData, Data: snap}

	case protocol.ReqGetUpdate:
		upd, err := r.session.Update(state.slot)
		if err != nil {
			return errorResponse(err, logger)
		}
		return updateResponse(upd)

	case protocol.ReqTryStart:
		started, upd, err := r.session.TryStart(state.slot)
		if err != nil {
			return errorResponse(err, logger)
		}
		if started {
			return protocol.Response{Response: protocol.RespGameStart, Data: protocol.GameStart{Game: *upd.Game}}
		}
		return protocol.Response{Response: protocol.RespLobbyData, Data: upd.Lobby}

	case protocol.ReqDoAction:
		var payload protocol.ActionRequest
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
		}
		upd, err := r.session.DoAction(state.slot, payload.Action, payload.Target)
		if err != nil {
			return errorResponse(err, logger)
		}
		return updateResponse(upd)

	case protocol.ReqEndTurn:
		upd, err := r.session.EndTurn(state.slot)
		if err != nil {
			return errorResponse(err, logger)
		}
		return updateResponse(upd)

	default:
		logger.Debug("unknown request", zap.String("request", req.Request))
		return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
	}
}

func (r *Router) handleJoin(state *clientState, data json.RawMessage, logger *zap.Logger) protocol.Response {
	if state.joined {
		return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
	}
	// data is the bare display name.
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return protocol.ErrorResponse(protocol.ReasonInvalidCommand)
	}

	slot, snap, err := r.session.Join(name)
	if err != nil {
		return errorResponse(err, logger)
	}
	state.slot = slot
	state.joined = true
	logger.Info("player joined",
		zap.String("name", name),
		zap.String("slot", protocol.SlotID(slot)),
	)
	return protocol.Response{
		Response: protocol.RespJoinAccept,
		Data:     protocol.JoinAccept{PlayerNumber: slot + 1, Lobby: snap.Lobby},
	}
}

// leave detaches the connection's player exactly once. A slot freed in
// the lobby may be re-occupied by a later join, so a second leave for
// the same connection must never fire.
func (r *Router) leave(state *clientState, logger *zap.Logger) {
	if !state.joined || state.left {
		return
	}
	state.left = true
	if err := r.session.Leave(state.slot); err != nil {
		logger.Warn("leaving session", zap.Error(err))
		return
	}
	logger.Info("player left", zap.String("slot", protocol.SlotID(state.slot)))
}

// updateResponse shapes a session update into the phase-appropriate
// envelope.
func updateResponse(upd session.Update) protocol.Response {
	if upd.Lobby != nil {
		return protocol.Response{Response: protocol.RespLobbyData, Data: upd.Lobby}
	}
	return protocol.Response{Response: protocol.RespGameData, Data: upd.Game}
}

// errorResponse maps a session error to its wire reason code.
func errorResponse(err error, logger *zap.Logger) protocol.Response {
	logger.Debug("request rejected", zap.Error(err))
	return protocol.ErrorResponse(reasonFor(err))
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, session.ErrLobbyFull):
		return protocol.ReasonLobbyFull
	case errors.Is(err, session.ErrNameTaken):
		return protocol.ReasonNameTaken
	case errors.Is(err, session.ErrGameStarted):
		return protocol.ReasonGameStarted
	case errors.Is(err, session.ErrInvalidName):
		return protocol.ReasonInvalidName
	case errors.Is(err, session.ErrNotYourTurn):
		return protocol.ReasonNotYourTurn
	case errors.Is(err, session.ErrActionUnavailable):
		return protocol.ReasonActionUnavailable
	case errors.Is(err, session.ErrInvalidTarget):
		return protocol.ReasonInvalidTarget
	case errors.Is(err, profession.ErrUnknown):
		return protocol.ReasonInvalidCommand
	default:
		return protocol.ReasonInvalidCommand
	}
}
