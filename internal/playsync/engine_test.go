package playsync

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchsync/server/internal/player"
	"github.com/couchsync/server/internal/protocol"
)

type capturePub struct {
	mu   sync.Mutex
	msgs []protocol.SyncMessage
}

func (p *capturePub) PublishSync(_ context.Context, msg *protocol.SyncMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, *msg)
	return nil
}

func (p *capturePub) ofType(t protocol.SyncType) []protocol.SyncMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.SyncMessage
	for _, m := range p.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

var testConfig = Config{
	ApplyWindow:       50 * time.Millisecond,
	DriftThreshold:    2500 * time.Millisecond,
	HeartbeatInterval: time.Hour,
	SeekDebounce:      30 * time.Millisecond,
}

func newTestEngine(t *testing.T, role Role, hooks Hooks) (*Engine, *capturePub, *player.Virtual) {
	t.Helper()
	pub := &capturePub{}
	p := player.NewVirtual(3600)
	e := New("user-a", role, p, pub, testConfig, hooks, slog.Default())
	t.Cleanup(e.Close)
	return e, pub, p
}

func TestRemoteApplyDoesNotEcho(t *testing.T) {
	e, pub, p := newTestEngine(t, RoleHost, Hooks{})
	e.Start(context.Background())
	p.Play()

	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncPause,
		UserId: "user-b",
		Time:   protocol.Float(0),
	})
	require.False(t, p.Playing())

	// the local pause handler firing inside the window stays silent
	e.Pause()
	assert.Empty(t, pub.ofType(protocol.SyncPause))

	time.Sleep(2 * testConfig.ApplyWindow)
	e.Pause()
	assert.Len(t, pub.ofType(protocol.SyncPause), 1)
}

func TestSelfMessagesDiscarded(t *testing.T) {
	e, _, p := newTestEngine(t, RoleHost, Hooks{})
	e.Start(context.Background())

	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncPlay,
		UserId: "user-a",
	})

	assert.False(t, p.Playing())
}

func TestSeekDebounceCoalesces(t *testing.T) {
	e, pub, _ := newTestEngine(t, RoleHost, Hooks{})
	e.Start(context.Background())

	for _, pos := range []float64{10, 20, 30, 40, 50} {
		e.Seek(pos)
	}

	time.Sleep(3 * testConfig.SeekDebounce)

	seeks := pub.ofType(protocol.SyncSeek)
	require.Len(t, seeks, 1)
	require.NotNil(t, seeks[0].Time)
	assert.Equal(t, 50.0, *seeks[0].Time)
}

func TestDriftCorrectionThreshold(t *testing.T) {
	now := time.Unix(0, 0)
	p := player.NewVirtualWithClock(3600, func() time.Time { return now })
	pub := &capturePub{}
	e := New("user-a", RoleGuest, p, pub, testConfig, Hooks{}, slog.Default())
	defer e.Close()

	p.SeekTo(100)

	// below threshold: position untouched
	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncHeartbeat,
		UserId: "user-b",
		Time:   protocol.Float(101.5),
	})
	assert.InDelta(t, 100, p.CurrentTime(), 0.001)

	// above threshold: snap to remote
	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncHeartbeat,
		UserId: "user-b",
		Time:   protocol.Float(110),
	})
	assert.InDelta(t, 110, p.CurrentTime(), 0.001)

	// same heartbeat again lands under threshold: idempotent
	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncHeartbeat,
		UserId: "user-b",
		Time:   protocol.Float(110),
	})
	assert.InDelta(t, 110, p.CurrentTime(), 0.001)
}

func TestHeartbeatConvergesPlayState(t *testing.T) {
	e, _, p := newTestEngine(t, RoleGuest, Hooks{})
	require.False(t, p.Playing())

	e.HandleSync(protocol.SyncMessage{
		Type:      protocol.SyncHeartbeat,
		UserId:    "user-b",
		Time:      protocol.Float(0),
		IsPlaying: protocol.Bool(true),
	})

	assert.True(t, p.Playing())
}

func TestGuestAnnouncesOnStart(t *testing.T) {
	e, pub, _ := newTestEngine(t, RoleGuest, Hooks{})
	e.Start(context.Background())

	require.Len(t, pub.ofType(protocol.SyncPartnerJoined), 1)
	assert.Equal(t, StateSynced, e.State())
}

func TestHostRespondsToPartnerJoined(t *testing.T) {
	var joined int
	e, pub, _ := newTestEngine(t, RoleHost, Hooks{
		OnPartnerJoined: func() { joined++ },
	})
	e.Start(context.Background())
	require.Equal(t, StateAwaitingPartner, e.State())

	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncPartnerJoined,
		UserId: "user-b",
	})

	assert.Equal(t, StateSynced, e.State())
	assert.Equal(t, 1, joined)
	assert.Len(t, pub.ofType(protocol.SyncHeartbeat), 1)
}

func TestRequestSyncTriggersImmediateHeartbeat(t *testing.T) {
	var requested int
	e, pub, _ := newTestEngine(t, RoleHost, Hooks{
		OnSyncRequested: func() { requested++ },
	})
	e.Start(context.Background())

	e.HandleSync(protocol.SyncMessage{
		Type:   protocol.SyncRequestSync,
		UserId: "user-b",
	})

	assert.Len(t, pub.ofType(protocol.SyncHeartbeat), 1)
	assert.Equal(t, 1, requested)
}

func TestVideoChangeResetsPlayback(t *testing.T) {
	var got protocol.SyncMessage
	e, _, p := newTestEngine(t, RoleGuest, Hooks{
		OnVideoChange: func(msg protocol.SyncMessage) { got = msg },
	})
	p.SeekTo(500)
	p.Play()

	e.HandleSync(protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		UserId:    "user-b",
		Source:    protocol.SourceYoutube,
		URL:       "https://youtu.be/dQw4w9WgXcQ",
		VideoName: "Never Gonna Give You Up",
	})

	assert.False(t, p.Playing())
	assert.Equal(t, 0.0, p.CurrentTime())
	assert.Equal(t, protocol.SourceYoutube, got.Source)
}

func TestHeartbeatWithNewVideoActsAsVideoChange(t *testing.T) {
	var changes int
	e, _, _ := newTestEngine(t, RoleGuest, Hooks{
		OnVideoChange: func(protocol.SyncMessage) { changes++ },
	})

	hb := protocol.SyncMessage{
		Type:      protocol.SyncHeartbeat,
		UserId:    "user-b",
		Time:      protocol.Float(0),
		IsPlaying: protocol.Bool(false),
		Source:    protocol.SourceLocal,
		VideoName: "movie.mp4",
	}
	e.HandleSync(hb)
	e.HandleSync(hb)

	// only the first heartbeat names a video the engine has not seen
	assert.Equal(t, 1, changes)
}

func TestSetVideoBroadcasts(t *testing.T) {
	e, pub, _ := newTestEngine(t, RoleHost, Hooks{})
	e.Start(context.Background())

	e.SetVideo(protocol.SourceLocal, "", "movie.mp4")

	changes := pub.ofType(protocol.SyncVideoChange)
	require.Len(t, changes, 1)
	assert.Equal(t, protocol.SourceLocal, changes[0].Source)
	assert.Empty(t, changes[0].URL)
	assert.Equal(t, "movie.mp4", changes[0].VideoName)
}

func TestNotifyPlayerReady(t *testing.T) {
	guest, guestPub, _ := newTestEngine(t, RoleGuest, Hooks{})
	guest.NotifyPlayerReady()
	assert.Len(t, guestPub.ofType(protocol.SyncRequestSync), 1)

	host, hostPub, _ := newTestEngine(t, RoleHost, Hooks{})
	host.NotifyPlayerReady()
	assert.Empty(t, hostPub.ofType(protocol.SyncRequestSync))
}

func TestCloseStopsEmitting(t *testing.T) {
	e, pub, _ := newTestEngine(t, RoleHost, Hooks{})
	e.Start(context.Background())

	e.Seek(42)
	e.Close()
	time.Sleep(3 * testConfig.SeekDebounce)

	assert.Empty(t, pub.ofType(protocol.SyncSeek))
	e.Play()
	assert.Empty(t, pub.ofType(protocol.SyncPlay))
}
