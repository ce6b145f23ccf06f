package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couchsync/server/internal/service/room"
	"github.com/couchsync/server/pkg/ctxlogger"
)

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, err := c.getQueryParam(r, "user-id")
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to get user id", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	createRoomResp, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		HostId: userId,
	})
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to create room", "error", err)
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	c.serveRoom(w, r, userId, createRoomResp.Room, nil)
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomCode := chi.URLParam(r, "room-code")
	if roomCode == "" {
		http.Error(w, "empty room code", http.StatusBadRequest)
		return
	}

	userId, err := c.getQueryParam(r, "user-id")
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to get user id", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	joinRoomResp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		RoomCode: roomCode,
		UserId:   userId,
	})
	if err != nil {
		c.logger.DebugContext(r.Context(), "failed to join room", "error", err)
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			http.Error(w, "room not found", http.StatusNotFound)
		case errors.Is(err, room.ErrRoomFull):
			http.Error(w, "room is full", http.StatusConflict)
		default:
			http.Error(w, "failed to join room", http.StatusInternalServerError)
		}
		return
	}

	c.serveRoom(w, r, userId, joinRoomResp.Room, joinRoomResp.Messages)
}

// serveRoom upgrades the request, subscribes the connection to the
// room topic and serves protocol messages until the client goes away.
func (c controller) serveRoom(w http.ResponseWriter, r *http.Request, userId string, joinedRoom room.Room, messages []room.ChatMessage) {
	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("room_id", joinedRoom.Id))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", userId))

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	if err := c.connRepo.Add(conn, userId); err != nil {
		c.logger.WarnContext(ctx, "failed to register connection", "error", err)
		return
	}
	defer c.connRepo.RemoveByConn(conn)

	sub, err := c.channelRepo.Subscribe(ctx, joinedRoom.Id)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe to room topic", "error", err)
		return
	}
	defer sub.Close()

	writer := &wsWriter{conn: conn}
	if err := writer.WriteJSON(&Output{
		Type: "JOINED_ROOM",
		Payload: map[string]any{
			"room":     joinedRoom,
			"messages": messages,
		},
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to write joined room", "error", err)
		return
	}

	go c.pump(ctx, writer, sub)

	ctx = context.WithValue(ctx, roomIdCtxKey, joinedRoom.Id)
	ctx = context.WithValue(ctx, userIdCtxKey, userId)
	ctx = context.WithValue(ctx, writerCtxKey, writer)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil && !errors.Is(err, errRoomLeft) {
		c.logger.InfoContext(ctx, "connection closed", "error", err)

		// a dropped connection releases the slot the same way an
		// explicit leave does
		if _, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
			RoomId: joinedRoom.Id,
			UserId: userId,
		}); err != nil {
			c.logger.DebugContext(ctx, "failed to leave room on disconnect", "error", err)
		}
	}
}
