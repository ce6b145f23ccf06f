// Package client is the session-side counterpart of the server: a
// websocket connection to a room plus the wiring that ties the sync
// engine, peer link and media resolver together.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couchsync/server/internal/protocol"
)

type Room struct {
	Id        string  `json:"id"`
	HostId    string  `json:"host_id"`
	GuestId   *string `json:"guest_id"`
	RoomCode  string  `json:"room_code"`
	Status    string  `json:"status"`
	VideoURL  *string `json:"video_url"`
	VideoType *string `json:"video_type"`
	VideoName *string `json:"video_name"`
}

type ChatMessage struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	UserId    string    `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// JoinedRoom is the first frame the server sends on a new connection.
type JoinedRoom struct {
	Room     Room          `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

// Handlers receive frames relayed from the room topic. All of them are
// invoked from the single Listen goroutine.
type Handlers struct {
	OnSync        func(msg protocol.SyncMessage)
	OnSignal      func(payload protocol.SignalPayload)
	OnWebRTC      func(payload protocol.WebRTCPayload)
	OnChatMessage func(payload protocol.ChatMessagePayload)
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Client struct {
	conn     *websocket.Conn
	handlers Handlers
	logger   *slog.Logger

	writeMu sync.Mutex
}

// CreateRoom opens a connection as the host of a fresh room.
func CreateRoom(ctx context.Context, baseURL, userId string, handlers Handlers, logger *slog.Logger) (*Client, JoinedRoom, error) {
	return dial(ctx, baseURL, "/api/v1/ws/room/create", userId, handlers, logger)
}

// JoinRoom opens a connection as the guest of an existing room.
func JoinRoom(ctx context.Context, baseURL, roomCode, userId string, handlers Handlers, logger *slog.Logger) (*Client, JoinedRoom, error) {
	path := fmt.Sprintf("/api/v1/ws/room/%s/join", url.PathEscape(roomCode))
	return dial(ctx, baseURL, path, userId, handlers, logger)
}

func dial(ctx context.Context, baseURL, path, userId string, handlers Handlers, logger *slog.Logger) (*Client, JoinedRoom, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + path + "?user-id=" + url.QueryEscape(userId)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, JoinedRoom{}, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	c := &Client{
		conn:     conn,
		handlers: handlers,
		logger:   logger,
	}

	// the server answers every accepted connection with JOINED_ROOM
	// before any relayed traffic
	var first envelope
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, JoinedRoom{}, fmt.Errorf("failed to read join frame: %w", err)
	}
	if first.Type != "JOINED_ROOM" {
		conn.Close()
		return nil, JoinedRoom{}, fmt.Errorf("unexpected first frame %q", first.Type)
	}

	var joined JoinedRoom
	if err := json.Unmarshal(first.Payload, &joined); err != nil {
		conn.Close()
		return nil, JoinedRoom{}, fmt.Errorf("failed to decode join frame: %w", err)
	}

	return c, joined, nil
}

// Listen reads relayed frames until the connection closes. Run it on
// its own goroutine.
func (c *Client) Listen(ctx context.Context) error {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Type {
	case "SYNC":
		var msg protocol.SyncMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.logger.Warn("bad sync frame", "error", err)
			return
		}
		if c.handlers.OnSync != nil {
			c.handlers.OnSync(msg)
		}
	case "P2P_SIGNAL":
		var payload protocol.SignalPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.Warn("bad signal frame", "error", err)
			return
		}
		if c.handlers.OnSignal != nil {
			c.handlers.OnSignal(payload)
		}
	case "WEBRTC":
		var payload protocol.WebRTCPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.Warn("bad webrtc frame", "error", err)
			return
		}
		if c.handlers.OnWebRTC != nil {
			c.handlers.OnWebRTC(payload)
		}
	case "CHAT_MESSAGE":
		var payload protocol.ChatMessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.Warn("bad chat frame", "error", err)
			return
		}
		if c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(payload)
		}
	default:
		c.logger.Debug("ignoring frame", "type", env.Type)
	}
}

func (c *Client) send(messageType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", messageType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(&envelope{Type: messageType, Payload: data})
}

// PublishSync implements the sync engine's publisher.
func (c *Client) PublishSync(_ context.Context, msg *protocol.SyncMessage) error {
	return c.send("SYNC", msg)
}

// PublishSignal implements the peer link's signal publisher.
func (c *Client) PublishSignal(_ context.Context, signal json.RawMessage) error {
	return c.send("P2P_SIGNAL", map[string]json.RawMessage{"signal": signal})
}

func (c *Client) SendWebRTC(payload *protocol.WebRTCPayload) error {
	return c.send("WEBRTC", payload)
}

func (c *Client) SendChat(message string) error {
	return c.send("CHAT_MESSAGE", map[string]string{"message": message})
}

func (c *Client) UpdateVideo(videoURL, videoType, videoName string) error {
	return c.send("UPDATE_VIDEO", map[string]string{
		"video_url":  videoURL,
		"video_type": videoType,
		"video_name": videoName,
	})
}

func (c *Client) Alive() error {
	return c.send("ALIVE", struct{}{})
}

// Leave tells the server to release this participant's slot. The
// server closes the connection afterwards.
func (c *Client) Leave() error {
	return c.send("LEAVE_ROOM", struct{}{})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
