package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchsync/server/internal/client"
	"github.com/couchsync/server/internal/controller"
	"github.com/couchsync/server/internal/peerlink"
	"github.com/couchsync/server/internal/player"
	"github.com/couchsync/server/internal/playsync"
	channelRedis "github.com/couchsync/server/internal/repository/channel/redis"
	"github.com/couchsync/server/internal/repository/connection/inmemory"
	roomRepoPkg "github.com/couchsync/server/internal/repository/room"
	roomRedis "github.com/couchsync/server/internal/repository/room/redis"
	"github.com/couchsync/server/internal/service/room"
)

type stubPeer struct {
	mu       sync.Mutex
	cb       peerlink.Callbacks
	attached int
}

func (p *stubPeer) Signal(json.RawMessage) error { return nil }

func (p *stubPeer) AttachStream(peerlink.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached++
	return nil
}

func (p *stubPeer) Close() error { return nil }

func (p *stubPeer) connect() { p.cb.OnConnect() }

type stubFactory struct {
	mu         sync.Mutex
	peers      []*stubPeer
	initiators []bool
}

func (f *stubFactory) new(initiator bool, cb peerlink.Callbacks) (peerlink.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &stubPeer{cb: cb}
	f.peers = append(f.peers, p)
	f.initiators = append(f.initiators, initiator)
	return p, nil
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *stubFactory) last() *stubPeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

type stubSource struct {
	mu       sync.Mutex
	captured int
	stream   stubStream
}

type stubStream struct{}

func (stubStream) StopTracks() {}

func (s *stubSource) MetadataLoaded() bool    { return true }
func (s *stubSource) OnMetadataLoaded(func()) {}

func (s *stubSource) CaptureStream() (peerlink.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured++
	return s.stream, nil
}

func (s *stubSource) captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

type stubUploader struct {
	url string
	err error
}

func (u *stubUploader) Upload(context.Context, string, string, string, io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type sessionFixture struct {
	baseURL  string
	roomRepo interface {
		GetRoom(ctx context.Context, id string) (roomRepoPkg.Room, error)
	}
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	roomRepo := roomRedis.NewRepo(rc, time.Hour)
	channelRepo := channelRedis.NewRepo(rc)
	connRepo := inmemory.NewRepo()
	roomService := room.NewService(roomRepo, nil)
	ctrl := controller.NewController(roomService, channelRepo, connRepo, slog.Default())

	srv := httptest.NewServer(ctrl.GetMux())
	t.Cleanup(srv.Close)

	return &sessionFixture{
		baseURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
		roomRepo: roomRepo,
	}
}

func sessionOptions(fx *sessionFixture, userId string, factory *stubFactory, source *stubSource, uploader *stubUploader) client.Options {
	opts := client.Options{
		BaseURL:      fx.baseURL,
		UserId:       userId,
		Player:       player.NewVirtual(3600),
		PeerFactory:  factory.new,
		StreamSource: source,
		Sync: playsync.Config{
			HeartbeatInterval: time.Hour,
			ApplyWindow:       50 * time.Millisecond,
		},
		Logger: slog.Default(),
	}
	if uploader != nil {
		opts.Uploader = uploader
	}
	return opts
}

func TestLocalFileWithoutURLUsesPeerStream(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	hostFactory := &stubFactory{}
	hostSource := &stubSource{}
	host, err := client.StartHost(ctx, sessionOptions(fx, "host-1", hostFactory, hostSource,
		&stubUploader{err: errors.New("bucket unreachable")}))
	require.NoError(t, err)
	defer host.Close()

	// upload fails, so the announcement carries no URL
	err = host.ShareLocalFile(ctx, "movie.mp4", "video/mp4", strings.NewReader("bytes"))
	require.Error(t, err)

	require.Eventually(t, func() bool {
		r, err := fx.roomRepo.GetRoom(ctx, host.Room().Id)
		return err == nil && r.VideoType == "local" && r.VideoURL == ""
	}, 3*time.Second, 20*time.Millisecond)

	guestFactory := &stubFactory{}
	guest, err := client.JoinAsGuest(ctx, sessionOptions(fx, "guest-1", guestFactory, &stubSource{}, nil),
		host.Room().RoomCode)
	require.NoError(t, err)
	defer guest.Close()
	require.False(t, guest.IsHost())

	// guest enters the connecting state as the non-initiator
	require.Eventually(t, func() bool { return guestFactory.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, guestFactory.initiators[0])

	// the guest's partner_joined makes the host initiate
	require.Eventually(t, func() bool { return hostFactory.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.True(t, hostFactory.initiators[0])

	// repeated connect events still capture the stream exactly once
	hostFactory.last().connect()
	hostFactory.last().connect()
	require.Eventually(t, func() bool { return hostSource.captures() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, hostSource.captures())
}

func TestUploadSuccessSkipsPeerLink(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	hostFactory := &stubFactory{}
	host, err := client.StartHost(ctx, sessionOptions(fx, "host-1", hostFactory, &stubSource{},
		&stubUploader{url: "https://cdn.example.com/couchsync-videos/abc.mp4"}))
	require.NoError(t, err)
	defer host.Close()

	require.NoError(t, host.ShareLocalFile(ctx, "movie.mp4", "video/mp4", strings.NewReader("bytes")))

	require.Eventually(t, func() bool {
		r, err := fx.roomRepo.GetRoom(ctx, host.Room().Id)
		return err == nil && r.VideoURL != ""
	}, 3*time.Second, 20*time.Millisecond)

	guestFactory := &stubFactory{}
	guest, err := client.JoinAsGuest(ctx, sessionOptions(fx, "guest-1", guestFactory, &stubSource{}, nil),
		host.Room().RoomCode)
	require.NoError(t, err)
	defer guest.Close()

	// the host still reacts to partner_joined, but the guest never
	// enters the peer-connecting state: the shared URL serves it
	require.Eventually(t, func() bool { return hostFactory.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, guestFactory.count())
}

func TestPlaybackConvergesAcrossSessions(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	hostPlayer := player.NewVirtual(3600)
	hostOpts := sessionOptions(fx, "host-1", &stubFactory{}, &stubSource{}, nil)
	hostOpts.Player = hostPlayer
	host, err := client.StartHost(ctx, hostOpts)
	require.NoError(t, err)
	defer host.Close()

	guestPlayer := player.NewVirtual(3600)
	guestOpts := sessionOptions(fx, "guest-1", &stubFactory{}, &stubSource{}, nil)
	guestOpts.Player = guestPlayer
	guest, err := client.JoinAsGuest(ctx, guestOpts, host.Room().RoomCode)
	require.NoError(t, err)
	defer guest.Close()

	host.Play()
	require.Eventually(t, func() bool { return guestPlayer.Playing() }, 3*time.Second, 20*time.Millisecond)

	// let the guest's suppression window close before it acts locally
	time.Sleep(150 * time.Millisecond)
	guest.Pause()
	require.Eventually(t, func() bool { return !hostPlayer.Playing() }, 3*time.Second, 20*time.Millisecond)
}
