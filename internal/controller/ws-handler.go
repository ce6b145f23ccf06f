package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchsync/server/internal/protocol"
	"github.com/couchsync/server/internal/service/room"
	"github.com/couchsync/server/pkg/wsrouter"
)

// errRoomLeft terminates the serve loop after an explicit leave.
var errRoomLeft = fmt.Errorf("room left: %w", wsrouter.ErrCloseConn)

type EmptyInput struct{}

func (c controller) handleAlive(_ context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return nil
}

type SyncInput struct {
	Type      string   `json:"type" validate:"required,oneof=play pause seek heartbeat request_sync video_change partner_joined"`
	Time      *float64 `json:"time"`
	IsPlaying *bool    `json:"is_playing"`
	Source    string   `json:"source" validate:"omitempty,oneof=local youtube"`
	URL       string   `json:"url"`
	VideoName string   `json:"video_name" validate:"max=255"`
}

// handleSync relays a sync-protocol message to the room topic. The
// sender id is taken from the connection, never from the payload, so
// a client cannot spoof another participant.
func (c controller) handleSync(ctx context.Context, _ *websocket.Conn, input SyncInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("invalid sync payload: %v", validationErrors)
	}

	msg := protocol.SyncMessage{
		Type:      protocol.SyncType(input.Type),
		UserId:    c.getUserIdFromCtx(ctx),
		Time:      input.Time,
		IsPlaying: input.IsPlaying,
		Source:    protocol.VideoSource(input.Source),
		URL:       input.URL,
		VideoName: input.VideoName,
	}

	return c.publish(ctx, protocol.EventSync, &msg)
}

type P2PSignalInput struct {
	Signal json.RawMessage `json:"signal" validate:"required"`
}

func (c controller) handleP2PSignal(ctx context.Context, _ *websocket.Conn, input P2PSignalInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("invalid signal payload: %v", validationErrors)
	}

	return c.publish(ctx, protocol.EventP2PSignal, &protocol.SignalPayload{
		UserId: c.getUserIdFromCtx(ctx),
		Signal: input.Signal,
	})
}

type WebRTCInput struct {
	Type      string          `json:"type" validate:"required,oneof=offer answer candidate"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

func (c controller) handleWebRTC(ctx context.Context, _ *websocket.Conn, input WebRTCInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("invalid webrtc payload: %v", validationErrors)
	}

	return c.publish(ctx, protocol.EventWebRTC, &protocol.WebRTCPayload{
		Type:      input.Type,
		UserId:    c.getUserIdFromCtx(ctx),
		SDP:       input.SDP,
		Candidate: input.Candidate,
	})
}

type UpdateVideoInput struct {
	VideoURL  string `json:"video_url" validate:"max=2048"`
	VideoType string `json:"video_type" validate:"required,oneof=local youtube"`
	VideoName string `json:"video_name" validate:"max=255"`
}

func (c controller) handleUpdateVideo(ctx context.Context, _ *websocket.Conn, input UpdateVideoInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("invalid video payload: %v", validationErrors)
	}

	_, err := c.roomService.UpdateVideo(ctx, &room.UpdateVideoParams{
		RoomId:    c.getRoomIdFromCtx(ctx),
		UserId:    c.getUserIdFromCtx(ctx),
		VideoURL:  input.VideoURL,
		VideoType: input.VideoType,
		VideoName: input.VideoName,
	})
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	return nil
}

type ChatMessageInput struct {
	Message string `json:"message" validate:"required,max=2000"`
}

func (c controller) handleChatMessage(ctx context.Context, _ *websocket.Conn, input ChatMessageInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("invalid chat payload: %v", validationErrors)
	}

	appendResp, err := c.roomService.AppendChatMessage(ctx, &room.AppendChatMessageParams{
		RoomId:  c.getRoomIdFromCtx(ctx),
		UserId:  c.getUserIdFromCtx(ctx),
		Message: input.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return c.publish(ctx, protocol.EventChatMessage, &protocol.ChatMessagePayload{
		Id:        appendResp.Message.Id,
		RoomId:    appendResp.Message.RoomId,
		UserId:    appendResp.Message.UserId,
		Message:   appendResp.Message.Message,
		CreatedAt: appendResp.Message.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (c controller) handleLeaveRoom(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	_, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomId: c.getRoomIdFromCtx(ctx),
		UserId: c.getUserIdFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return errRoomLeft
}

func (c controller) publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	if err := c.channelRepo.Publish(ctx, c.getRoomIdFromCtx(ctx), &protocol.Envelope{
		Event:   event,
		Payload: data,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}

	return nil
}
