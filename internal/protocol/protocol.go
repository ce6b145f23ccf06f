// Package protocol defines the wire types exchanged over a room's
// broadcast topic. Messages are constructed, sent, consumed once and
// discarded; nothing here is persisted.
package protocol

import "encoding/json"

// Event names carried on the topic watch_room_<room_id>.
const (
	EventSync        = "sync"
	EventP2PSignal   = "p2p_signal"
	EventWebRTC      = "webrtc"
	EventChatMessage = "chat_message"
)

// Envelope is the unit published to a room topic and relayed verbatim
// to every subscriber.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type VideoSource string

const (
	SourceLocal   VideoSource = "local"
	SourceYoutube VideoSource = "youtube"
)

type SyncType string

const (
	SyncPlay          SyncType = "play"
	SyncPause         SyncType = "pause"
	SyncSeek          SyncType = "seek"
	SyncHeartbeat     SyncType = "heartbeat"
	SyncRequestSync   SyncType = "request_sync"
	SyncVideoChange   SyncType = "video_change"
	SyncPartnerJoined SyncType = "partner_joined"
)

// SyncMessage is the tagged union driving playback synchronization.
// UserId identifies the sender so receivers can discard their own
// messages.
type SyncMessage struct {
	Type      SyncType    `json:"type"`
	UserId    string      `json:"user_id"`
	Time      *float64    `json:"time,omitempty"`
	IsPlaying *bool       `json:"is_playing,omitempty"`
	Source    VideoSource `json:"source,omitempty"`
	URL       string      `json:"url,omitempty"`
	VideoName string      `json:"video_name,omitempty"`
}

// SignalPayload wraps an opaque peer-handshake blob produced by one
// side's peer object and fed into the other side's.
type SignalPayload struct {
	UserId string          `json:"user_id"`
	Signal json.RawMessage `json:"signal"`
}

// WebRTC payload types for the call-media handshake.
const (
	WebRTCOffer     = "offer"
	WebRTCAnswer    = "answer"
	WebRTCCandidate = "candidate"
)

type WebRTCPayload struct {
	Type      string          `json:"type"`
	UserId    string          `json:"user_id"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ChatMessagePayload is the row-insert notification for a chat append.
type ChatMessagePayload struct {
	Id        string `json:"id"`
	RoomId    string `json:"room_id"`
	UserId    string `json:"user_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }
