// Package playsync keeps two independently running players in
// agreement about play state and timeline position. Messages are
// fire-and-forget over the room topic; staleness self-heals via the
// host heartbeat, so nothing here retries individual sends.
package playsync

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/couchsync/server/internal/player"
	"github.com/couchsync/server/internal/protocol"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type State string

const (
	StateIdle            State = "idle"
	StateAwaitingPartner State = "awaiting_partner"
	StateSynced          State = "synced"
)

// Publisher sends a sync message to the room topic. Implemented by the
// websocket client.
type Publisher interface {
	PublishSync(ctx context.Context, msg *protocol.SyncMessage) error
}

type Config struct {
	// ApplyWindow is how long the engine suppresses outgoing messages
	// after applying a remote update.
	ApplyWindow time.Duration
	// DriftThreshold is the minimum timeline divergence before a
	// received time is applied.
	DriftThreshold time.Duration
	// HeartbeatInterval is the host's unconditional broadcast period.
	HeartbeatInterval time.Duration
	// SeekDebounce is the quiescence period before a seek is sent.
	SeekDebounce time.Duration
}

func (c Config) withDefaults() Config {
	if c.ApplyWindow <= 0 {
		c.ApplyWindow = 800 * time.Millisecond
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = 2500 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 8 * time.Second
	}
	if c.SeekDebounce <= 0 {
		c.SeekDebounce = 200 * time.Millisecond
	}
	return c
}

// Hooks let the session wire the peer link and media resolver in
// without the engine importing them.
type Hooks struct {
	// OnVideoChange fires when a remote video_change (or a heartbeat
	// naming a different video) arrives.
	OnVideoChange func(msg protocol.SyncMessage)
	// OnPartnerJoined fires on the host when the guest announces
	// itself.
	OnPartnerJoined func()
	// OnSyncRequested fires on the host when a guest asks for an
	// immediate resync.
	OnSyncRequested func()
}

type Engine struct {
	userId string
	role   Role
	player player.Player
	pub    Publisher
	cfg    Config
	hooks  Hooks
	logger *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	state    State
	applying bool

	video struct {
		source protocol.VideoSource
		url    string
		name   string
	}

	// named timers, cancelled on Close
	applyTimer  *time.Timer
	seekTimer   *time.Timer
	pendingSeek float64
	seekPending bool

	heartbeatStop chan struct{}
	closed        bool
}

func New(userId string, role Role, p player.Player, pub Publisher, cfg Config, hooks Hooks, logger *slog.Logger) *Engine {
	return &Engine{
		userId: userId,
		role:   role,
		player: p,
		pub:    pub,
		cfg:    cfg.withDefaults(),
		hooks:  hooks,
		logger: logger,
		ctx:    context.Background(),
		state:  StateIdle,
	}
}

// Start transitions the engine out of idle. The guest announces itself
// to the host; the host begins its heartbeat loop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateIdle || e.closed {
		e.mu.Unlock()
		return
	}
	e.ctx = ctx
	e.state = StateAwaitingPartner
	isHost := e.role == RoleHost
	if isHost {
		e.heartbeatStop = make(chan struct{})
		go e.heartbeatLoop(ctx, e.heartbeatStop)
	}
	e.mu.Unlock()

	if !isHost {
		e.send(&protocol.SyncMessage{Type: protocol.SyncPartnerJoined})
		e.mu.Lock()
		e.state = StateSynced
		e.mu.Unlock()
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Play is invoked by local UI or a player event. It is a no-op while a
// remote update is being applied, which is what keeps an applied
// remote play from echoing back out.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.applying || e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.player.Play()
	e.send(&protocol.SyncMessage{
		Type: protocol.SyncPlay,
		Time: protocol.Float(e.player.CurrentTime()),
	})
}

func (e *Engine) Pause() {
	e.mu.Lock()
	if e.applying || e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.player.Pause()
	e.send(&protocol.SyncMessage{
		Type: protocol.SyncPause,
		Time: protocol.Float(e.player.CurrentTime()),
	})
}

// Seek moves the local player immediately but debounces the outgoing
// message: rapid scrubbing coalesces into one seek carrying the last
// position.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	if e.applying || e.closed {
		e.mu.Unlock()
		return
	}
	e.pendingSeek = seconds
	e.seekPending = true
	if e.seekTimer == nil {
		e.seekTimer = time.AfterFunc(e.cfg.SeekDebounce, e.flushSeek)
	} else {
		e.seekTimer.Reset(e.cfg.SeekDebounce)
	}
	e.mu.Unlock()

	e.player.SeekTo(seconds)
}

func (e *Engine) flushSeek() {
	e.mu.Lock()
	if !e.seekPending || e.closed {
		e.mu.Unlock()
		return
	}
	seconds := e.pendingSeek
	e.seekPending = false
	e.mu.Unlock()

	e.send(&protocol.SyncMessage{
		Type: protocol.SyncSeek,
		Time: protocol.Float(seconds),
	})
}

// SetVideo records a local video selection, resets playback to the
// start and broadcasts a video_change.
func (e *Engine) SetVideo(source protocol.VideoSource, url, name string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.video.source = source
	e.video.url = url
	e.video.name = name
	e.mu.Unlock()

	e.player.Pause()
	e.player.SeekTo(0)

	e.send(&protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    source,
		URL:       url,
		VideoName: name,
	})
}

// SeedVideo records an already-persisted video selection, as found on
// the room row when (re)joining, without broadcasting a change.
func (e *Engine) SeedVideo(source protocol.VideoSource, url, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.video.source = source
	e.video.url = url
	e.video.name = name
}

// NotifyPlayerReady is called by the guest once its player can accept
// commands; it asks the host for an immediate heartbeat instead of
// waiting out the interval.
func (e *Engine) NotifyPlayerReady() {
	if e.role == RoleHost {
		return
	}
	e.send(&protocol.SyncMessage{Type: protocol.SyncRequestSync})
}

// HandleSync dispatches one message from the room topic.
func (e *Engine) HandleSync(msg protocol.SyncMessage) {
	if msg.UserId == e.userId {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	switch msg.Type {
	case protocol.SyncPlay:
		e.applyRemote(msg, true)
	case protocol.SyncPause:
		e.applyRemote(msg, false)
	case protocol.SyncSeek:
		e.applySeek(msg)
	case protocol.SyncHeartbeat:
		e.applyHeartbeat(msg)
	case protocol.SyncRequestSync:
		e.handleRequestSync()
	case protocol.SyncVideoChange:
		e.handleVideoChange(msg)
	case protocol.SyncPartnerJoined:
		e.handlePartnerJoined()
	default:
		e.logger.Warn("unknown sync message type", "type", msg.Type)
	}
}

func (e *Engine) applyRemote(msg protocol.SyncMessage, playing bool) {
	e.beginApply()
	if playing {
		e.player.Play()
	} else {
		e.player.Pause()
	}
	e.correctDrift(msg.Time)
}

func (e *Engine) applySeek(msg protocol.SyncMessage) {
	if msg.Time == nil {
		return
	}
	e.beginApply()
	e.player.SeekTo(*msg.Time)
}

func (e *Engine) applyHeartbeat(msg protocol.SyncMessage) {
	e.beginApply()
	if msg.IsPlaying != nil && *msg.IsPlaying != e.player.Playing() {
		if *msg.IsPlaying {
			e.player.Play()
		} else {
			e.player.Pause()
		}
	}
	e.correctDrift(msg.Time)

	// A heartbeat naming a different video doubles as a late
	// video_change for a guest that missed the original.
	if msg.Source != "" {
		e.mu.Lock()
		changed := msg.Source != e.video.source || msg.URL != e.video.url || msg.VideoName != e.video.name
		e.mu.Unlock()
		if changed {
			e.handleVideoChange(msg)
		}
	}
}

// correctDrift applies a remote time only when the divergence exceeds
// the threshold; near-equal times are left alone to avoid stutter.
func (e *Engine) correctDrift(remote *float64) {
	if remote == nil {
		return
	}
	if math.Abs(e.player.CurrentTime()-*remote) > e.cfg.DriftThreshold.Seconds() {
		e.player.SeekTo(*remote)
	}
}

func (e *Engine) handleRequestSync() {
	if e.role != RoleHost {
		return
	}
	e.sendHeartbeat()
	if e.hooks.OnSyncRequested != nil {
		e.hooks.OnSyncRequested()
	}
}

func (e *Engine) handleVideoChange(msg protocol.SyncMessage) {
	e.mu.Lock()
	e.video.source = msg.Source
	e.video.url = msg.URL
	e.video.name = msg.VideoName
	e.mu.Unlock()

	e.beginApply()
	e.player.Pause()
	e.player.SeekTo(0)

	if e.hooks.OnVideoChange != nil {
		e.hooks.OnVideoChange(msg)
	}
}

func (e *Engine) handlePartnerJoined() {
	e.mu.Lock()
	e.state = StateSynced
	isHost := e.role == RoleHost
	e.mu.Unlock()

	if !isHost {
		return
	}
	if e.hooks.OnPartnerJoined != nil {
		e.hooks.OnPartnerJoined()
	}
	// Newcomer gets state immediately instead of waiting a tick.
	e.sendHeartbeat()
}

// beginApply opens the suppression window. Back-to-back remote
// messages extend it rather than stacking timers.
func (e *Engine) beginApply() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.applying = true
	if e.applyTimer == nil {
		e.applyTimer = time.AfterFunc(e.cfg.ApplyWindow, func() {
			e.mu.Lock()
			e.applying = false
			e.mu.Unlock()
		})
	} else {
		e.applyTimer.Reset(e.cfg.ApplyWindow)
	}
}

func (e *Engine) heartbeatLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sendHeartbeat()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) sendHeartbeat() {
	e.mu.Lock()
	source, url, name := e.video.source, e.video.url, e.video.name
	e.mu.Unlock()

	e.send(&protocol.SyncMessage{
		Type:      protocol.SyncHeartbeat,
		Time:      protocol.Float(e.player.CurrentTime()),
		IsPlaying: protocol.Bool(e.player.Playing()),
		Source:    source,
		URL:       url,
		VideoName: name,
	})
}

func (e *Engine) send(msg *protocol.SyncMessage) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	msg.UserId = e.userId
	if err := e.pub.PublishSync(ctx, msg); err != nil {
		// At-most-once delivery; the next heartbeat corrects.
		e.logger.Debug("failed to publish sync message", "type", msg.Type, "error", err)
	}
}

// Close cancels the heartbeat loop and every pending timer. Safe to
// call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.state = StateIdle
	if e.applyTimer != nil {
		e.applyTimer.Stop()
	}
	if e.seekTimer != nil {
		e.seekTimer.Stop()
	}
	stop := e.heartbeatStop
	e.heartbeatStop = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}
