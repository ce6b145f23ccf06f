// Package peerlink establishes the direct client-to-client connection
// used for movie-stream fallback and call media. The room topic is
// only the out-of-band handshake relay; bulk media never crosses it.
package peerlink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchsync/server/internal/protocol"
)

// ErrDataChannel marks a data-channel establishment failure. Errors
// wrapping it get one automatic retry; everything else waits for a
// manual retry.
var ErrDataChannel = errors.New("data channel failure")

// Peer is the embedder-supplied connection object: a WebRTC peer in
// the browser, a loopback fake in tests.
type Peer interface {
	// Signal feeds a remote handshake blob into the peer.
	Signal(data json.RawMessage) error
	// AttachStream adds an outgoing media stream to the connection.
	AttachStream(s Stream) error
	Close() error
}

// Callbacks are fired by the peer as negotiation progresses.
type Callbacks struct {
	// OnSignal hands back a locally produced handshake blob for
	// broadcast to the partner.
	OnSignal func(data json.RawMessage)
	OnConnect func()
	OnError   func(err error)
}

// PeerFactory creates a fresh peer for one connection attempt.
type PeerFactory func(initiator bool, cb Callbacks) (Peer, error)

// Stream is an outgoing captured media stream.
type Stream interface {
	StopTracks()
}

// StreamSource captures playback from the local player element. A
// capture before media metadata has loaded is not possible; the source
// reports readiness and fires a hook when it flips.
type StreamSource interface {
	MetadataLoaded() bool
	OnMetadataLoaded(fn func())
	CaptureStream() (Stream, error)
}

type Config struct {
	// RetryDelay is the pause before the single automatic retry on a
	// data-channel failure.
	RetryDelay time.Duration
	// SlowConnectWarning is how long an attempt may stay pending
	// before the user is warned. The attempt itself keeps going.
	SlowConnectWarning time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryDelay <= 0 {
		c.RetryDelay = 3 * time.Second
	}
	if c.SlowConnectWarning <= 0 {
		c.SlowConnectWarning = 20 * time.Second
	}
	return c
}

// SignalPublisher broadcasts a handshake blob to the room topic.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, signal json.RawMessage) error
}

// Hooks surface link lifecycle to the session UI.
type Hooks struct {
	OnConnected func()
	// OnSlowConnect fires once per attempt when the warning timeout
	// elapses without a connection.
	OnSlowConnect func()
	// OnError receives failures that need a manual retry.
	OnError func(err error)
}

type Link struct {
	userId  string
	factory PeerFactory
	pub     SignalPublisher
	source  StreamSource
	cfg     Config
	hooks   Hooks
	logger  *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	peer      Peer
	initiator bool
	connected bool
	sharing   bool
	retried   bool
	closed    bool

	activeStream Stream

	retryTimer *time.Timer
	slowTimer  *time.Timer
}

func NewLink(userId string, factory PeerFactory, pub SignalPublisher, source StreamSource, cfg Config, hooks Hooks, logger *slog.Logger) *Link {
	return &Link{
		userId:  userId,
		factory: factory,
		pub:     pub,
		source:  source,
		cfg:     cfg.withDefaults(),
		hooks:   hooks,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Connect starts a connection attempt. The host passes initiator=true
// when reacting to a partner join; either side may call it again for a
// manual retry, which tears down the previous peer first.
func (l *Link) Connect(ctx context.Context, initiator bool) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("link closed")
	}
	if l.peer != nil {
		l.peer.Close()
		l.peer = nil
	}
	l.ctx = ctx
	l.initiator = initiator
	l.connected = false
	l.retried = false
	l.mu.Unlock()

	return l.attempt(initiator)
}

func (l *Link) attempt(initiator bool) error {
	peer, err := l.factory(initiator, Callbacks{
		OnSignal:  l.broadcastSignal,
		OnConnect: l.onConnect,
		OnError:   l.onPeerError,
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		peer.Close()
		return errors.New("link closed")
	}
	l.peer = peer
	if l.slowTimer == nil {
		l.slowTimer = time.AfterFunc(l.cfg.SlowConnectWarning, l.onSlowConnect)
	} else {
		l.slowTimer.Reset(l.cfg.SlowConnectWarning)
	}
	l.mu.Unlock()

	return nil
}

func (l *Link) broadcastSignal(data json.RawMessage) {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	if err := l.pub.PublishSignal(ctx, data); err != nil {
		l.logger.Debug("failed to publish peer signal", "error", err)
	}
}

// HandleSignal feeds a partner's handshake blob into the local peer.
// Own signals echoed back by the topic are dropped.
func (l *Link) HandleSignal(payload protocol.SignalPayload) {
	if payload.UserId == l.userId {
		return
	}

	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()
	if peer == nil {
		return
	}

	if err := peer.Signal(payload.Signal); err != nil {
		l.logger.Warn("failed to apply peer signal", "error", err)
	}
}

func (l *Link) onConnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.connected = true
	if l.slowTimer != nil {
		l.slowTimer.Stop()
	}
	l.mu.Unlock()

	if l.hooks.OnConnected != nil {
		l.hooks.OnConnected()
	}
}

func (l *Link) onPeerError(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	retry := errors.Is(err, ErrDataChannel) && !l.retried
	if retry {
		l.retried = true
		initiator := l.initiator
		if l.retryTimer == nil {
			l.retryTimer = time.AfterFunc(l.cfg.RetryDelay, func() { l.retryAttempt(initiator) })
		} else {
			l.retryTimer.Reset(l.cfg.RetryDelay)
		}
	}
	l.mu.Unlock()

	if retry {
		l.logger.Info("data channel failed, retrying", "delay", l.cfg.RetryDelay, "error", err)
		return
	}
	l.logger.Warn("peer link failed", "error", err)
	if l.hooks.OnError != nil {
		l.hooks.OnError(err)
	}
}

func (l *Link) retryAttempt(initiator bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.peer != nil {
		l.peer.Close()
		l.peer = nil
	}
	l.sharing = false
	l.mu.Unlock()

	if err := l.attempt(initiator); err != nil {
		l.logger.Warn("peer link retry failed", "error", err)
		if l.hooks.OnError != nil {
			l.hooks.OnError(err)
		}
	}
}

// onSlowConnect warns without tearing anything down; the attempt keeps
// racing in the background.
func (l *Link) onSlowConnect() {
	l.mu.Lock()
	pending := !l.connected && !l.closed
	l.mu.Unlock()

	if pending && l.hooks.OnSlowConnect != nil {
		l.hooks.OnSlowConnect()
	}
}

// ShareStream captures the local playback stream and attaches it to
// the peer connection. Duplicate calls are no-ops; a call before media
// metadata has loaded defers itself to the metadata-loaded event.
func (l *Link) ShareStream() error {
	l.mu.Lock()
	if l.closed || l.sharing {
		l.mu.Unlock()
		return nil
	}
	peer := l.peer
	if peer == nil || !l.connected {
		l.mu.Unlock()
		return errors.New("peer not connected")
	}
	if !l.source.MetadataLoaded() {
		l.mu.Unlock()
		l.source.OnMetadataLoaded(func() {
			if err := l.ShareStream(); err != nil {
				l.logger.Warn("deferred stream share failed", "error", err)
			}
		})
		return nil
	}
	l.sharing = true
	l.mu.Unlock()

	stream, err := l.source.CaptureStream()
	if err != nil {
		l.mu.Lock()
		l.sharing = false
		l.mu.Unlock()
		return err
	}

	if err := peer.AttachStream(stream); err != nil {
		stream.StopTracks()
		l.mu.Lock()
		l.sharing = false
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.activeStream = stream
	l.mu.Unlock()

	return nil
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) Sharing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharing
}

// Teardown stops local media tracks, closes the peer and cancels every
// pending timer, in that order. Safe to call more than once.
func (l *Link) Teardown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	stream := l.activeStream
	l.activeStream = nil
	peer := l.peer
	l.peer = nil
	l.connected = false
	l.sharing = false
	if l.retryTimer != nil {
		l.retryTimer.Stop()
	}
	if l.slowTimer != nil {
		l.slowTimer.Stop()
	}
	l.mu.Unlock()

	if stream != nil {
		stream.StopTracks()
	}
	if peer != nil {
		peer.Close()
	}
}
