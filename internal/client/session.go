package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/couchsync/server/internal/media"
	"github.com/couchsync/server/internal/peerlink"
	"github.com/couchsync/server/internal/player"
	"github.com/couchsync/server/internal/playsync"
	"github.com/couchsync/server/internal/protocol"
)

// Options configures one watch session.
type Options struct {
	BaseURL      string
	UserId       string
	Player       player.Player
	PeerFactory  peerlink.PeerFactory
	StreamSource peerlink.StreamSource
	Uploader     media.Uploader
	Sync         playsync.Config
	Peer         peerlink.Config
	Logger       *slog.Logger

	// OnChatMessage receives chat rows relayed for this room.
	OnChatMessage func(payload protocol.ChatMessagePayload)
	// OnPeerWarning fires when the peer link is slow or failed.
	OnPeerWarning func(err error)
}

// Session owns everything scoped to one room membership: the server
// connection, the sync engine, the peer link and the media resolver.
// All of it is created on enter and destroyed on Close; nothing is
// shared between sessions.
type Session struct {
	opts     Options
	client   *Client
	engine   *playsync.Engine
	link     *peerlink.Link
	resolver *media.Resolver
	logger   *slog.Logger

	room      Room
	backlog   []ChatMessage
	isHost    bool
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// StartHost creates a room and runs the session as its host.
func StartHost(ctx context.Context, opts Options) (*Session, error) {
	return start(ctx, opts, "")
}

// JoinAsGuest joins an existing room by code.
func JoinAsGuest(ctx context.Context, opts Options, roomCode string) (*Session, error) {
	return start(ctx, opts, roomCode)
}

func start(ctx context.Context, opts Options, roomCode string) (*Session, error) {
	sessionCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		opts:   opts,
		logger: opts.Logger,
		cancel: cancel,
	}

	handlers := Handlers{
		OnSync:        func(msg protocol.SyncMessage) { s.engine.HandleSync(msg) },
		OnSignal:      func(payload protocol.SignalPayload) { s.link.HandleSignal(payload) },
		OnChatMessage: opts.OnChatMessage,
	}

	var (
		c      *Client
		joined JoinedRoom
		err    error
	)
	if roomCode == "" {
		c, joined, err = CreateRoom(sessionCtx, opts.BaseURL, opts.UserId, handlers, opts.Logger)
	} else {
		c, joined, err = JoinRoom(sessionCtx, opts.BaseURL, roomCode, opts.UserId, handlers, opts.Logger)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	s.client = c
	s.room = joined.Room
	s.backlog = joined.Messages
	s.isHost = joined.Room.HostId == opts.UserId

	role := playsync.RoleGuest
	if s.isHost {
		role = playsync.RoleHost
	}

	s.link = peerlink.NewLink(opts.UserId, opts.PeerFactory, c, opts.StreamSource, opts.Peer, peerlink.Hooks{
		OnConnected:   func() { s.maybeShareStream() },
		OnSlowConnect: func() { s.warn(fmt.Errorf("peer connection is taking longer than expected")) },
		OnError:       func(err error) { s.warn(err) },
	}, opts.Logger)

	s.resolver = media.NewResolver(opts.Uploader, media.Hooks{
		OnConnectPeer: func() {
			if s.isHost {
				return
			}
			if err := s.link.Connect(sessionCtx, false); err != nil {
				s.warn(err)
			}
		},
		OnUploadFailed: func(err error) { s.warn(err) },
	}, opts.Logger)

	s.engine = playsync.New(opts.UserId, role, opts.Player, c, opts.Sync, playsync.Hooks{
		OnVideoChange: func(msg protocol.SyncMessage) { s.resolver.Apply(msg) },
		OnPartnerJoined: func() {
			if err := s.link.Connect(sessionCtx, true); err != nil {
				s.warn(err)
			}
		},
		OnSyncRequested: func() { s.maybeShareStream() },
	}, opts.Logger)

	s.seedFromRoom(joined.Room)
	s.engine.Start(sessionCtx)

	go func() {
		if err := c.Listen(sessionCtx); err != nil && sessionCtx.Err() == nil {
			opts.Logger.Info("room connection closed", "error", err)
		}
	}()

	return s, nil
}

// seedFromRoom replays the persisted video selection so a participant
// joining after the host picked a video converges without waiting for
// a heartbeat.
func (s *Session) seedFromRoom(r Room) {
	if r.VideoType == nil {
		return
	}
	source := protocol.VideoSource(*r.VideoType)
	url, name := "", ""
	if r.VideoURL != nil {
		url = *r.VideoURL
	}
	if r.VideoName != nil {
		name = *r.VideoName
	}

	s.engine.SeedVideo(source, url, name)
	if !s.isHost {
		s.resolver.Apply(protocol.SyncMessage{
			Type:      protocol.SyncVideoChange,
			Source:    source,
			URL:       url,
			VideoName: name,
		})
	}
}

// maybeShareStream starts the host's stream capture when the active
// video is a local file with no shared URL. Safe to call repeatedly;
// the link makes sharing idempotent.
func (s *Session) maybeShareStream() {
	if !s.isHost || !s.link.Connected() {
		return
	}
	current := s.resolver.Current()
	if current.Source != protocol.SourceLocal || current.URL != "" {
		return
	}
	if err := s.link.ShareStream(); err != nil {
		s.logger.Warn("failed to share movie stream", "error", err)
	}
}

func (s *Session) warn(err error) {
	s.logger.Warn("peer link notice", "error", err)
	if s.opts.OnPeerWarning != nil {
		s.opts.OnPeerWarning(err)
	}
}

func (s *Session) Room() Room { return s.room }

// ChatBacklog returns the messages that existed before this session
// joined, oldest first.
func (s *Session) ChatBacklog() []ChatMessage { return s.backlog }

func (s *Session) IsHost() bool { return s.isHost }

func (s *Session) Play() { s.engine.Play() }

func (s *Session) Pause() { s.engine.Pause() }

func (s *Session) Seek(seconds float64) { s.engine.Seek(seconds) }

// PlayerReady is called once the local player can accept commands; a
// guest uses it to request an immediate resync from the host.
func (s *Session) PlayerReady() { s.engine.NotifyPlayerReady() }

func (s *Session) SendChat(message string) error { return s.client.SendChat(message) }

// SelectYouTubeVideo persists and broadcasts a YouTube selection.
func (s *Session) SelectYouTubeVideo(url, name string) error {
	if err := s.client.UpdateVideo(url, string(protocol.SourceYoutube), name); err != nil {
		return err
	}
	s.engine.SetVideo(protocol.SourceYoutube, url, name)
	s.resolver.Apply(protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    protocol.SourceYoutube,
		URL:       url,
		VideoName: name,
	})
	return nil
}

// ShareLocalFile uploads a local file to shared storage and announces
// it; on upload failure the announcement carries no URL and the
// partner falls back to the peer stream.
func (s *Session) ShareLocalFile(ctx context.Context, filename, contentType string, body io.Reader) error {
	err := s.resolver.ShareLocalFile(ctx, sessionAnnouncer{s}, s.room.Id, filename, contentType, body)
	s.maybeShareStream()
	return err
}

// SelectLocalFile is the escape hatch for a participant who already
// has the identical file.
func (s *Session) SelectLocalFile(name string) {
	s.resolver.SelectLocalFile(name)
}

// RetryPeerLink re-runs the connection attempt after a surfaced
// failure, keeping this side's role.
func (s *Session) RetryPeerLink(ctx context.Context) error {
	return s.link.Connect(ctx, s.isHost)
}

// sessionAnnouncer persists the selection server-side and broadcasts
// it in one step.
type sessionAnnouncer struct{ s *Session }

func (a sessionAnnouncer) SetVideo(source protocol.VideoSource, url, name string) {
	if err := a.s.client.UpdateVideo(url, string(source), name); err != nil {
		a.s.logger.Warn("failed to persist video selection", "error", err)
	}
	a.s.engine.SetVideo(source, url, name)
}

// Close leaves the room and releases every session resource: the
// server subscription first, then the peer connection and its media
// tracks, then the engine's timers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.client.Leave(); err != nil {
			s.logger.Debug("failed to send leave", "error", err)
		}
		s.client.Close()
		s.cancel()
		s.link.Teardown()
		s.engine.Close()
	})
}
