package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchsync/server/internal/protocol"
)

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (u *fakeUploader) Upload(_ context.Context, roomId, filename, _ string, _ io.Reader) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return u.url + "/" + roomId + "/" + filename, nil
}

type fakeAnnouncer struct {
	source protocol.VideoSource
	url    string
	name   string
	calls  int
}

func (a *fakeAnnouncer) SetVideo(source protocol.VideoSource, url, name string) {
	a.source = source
	a.url = url
	a.name = name
	a.calls++
}

func TestApplySharedURL(t *testing.T) {
	var connects int
	r := NewResolver(nil, Hooks{OnConnectPeer: func() { connects++ }}, slog.Default())

	res := r.Apply(protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    protocol.SourceLocal,
		URL:       "https://cdn.example.com/bucket/room-1/abc.mp4",
		VideoName: "movie.mp4",
	})

	assert.Equal(t, ModeURL, res.Mode)
	assert.Equal(t, 0, connects, "shared URL never enters the peer-connecting state")
}

func TestApplyLocalWithoutURLConnectsPeerOnce(t *testing.T) {
	var connects int
	r := NewResolver(nil, Hooks{OnConnectPeer: func() { connects++ }}, slog.Default())

	msg := protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    protocol.SourceLocal,
		VideoName: "movie.mp4",
	}

	res := r.Apply(msg)
	assert.Equal(t, ModePeerStream, res.Mode)

	// same payload again, as a heartbeat this time: idempotent
	msg.Type = protocol.SyncHeartbeat
	r.Apply(msg)
	r.Apply(msg)

	assert.Equal(t, 1, connects)
}

func TestApplyYoutubeExtractsVideoId(t *testing.T) {
	r := NewResolver(nil, Hooks{}, slog.Default())

	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
	}
	for _, u := range urls {
		res := r.Apply(protocol.SyncMessage{
			Type:   protocol.SyncVideoChange,
			Source: protocol.SourceYoutube,
			URL:    u,
		})
		assert.Equal(t, ModeURL, res.Mode, u)
		assert.Equal(t, "dQw4w9WgXcQ", res.YoutubeVideoId, u)
	}
}

func TestSelectLocalFileBypassesPeer(t *testing.T) {
	var connects int
	r := NewResolver(nil, Hooks{OnConnectPeer: func() { connects++ }}, slog.Default())

	r.SelectLocalFile("movie.mp4")

	// a later video_change naming the picked file stays local
	res := r.Apply(protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    protocol.SourceLocal,
		VideoName: "movie.mp4",
	})

	assert.Equal(t, ModeLocalFile, res.Mode)
	assert.Equal(t, 0, connects)
}

func TestShareLocalFileUploadSuccess(t *testing.T) {
	uploader := &fakeUploader{url: "https://cdn.example.com"}
	announcer := &fakeAnnouncer{}
	var connects int
	r := NewResolver(uploader, Hooks{OnConnectPeer: func() { connects++ }}, slog.Default())

	err := r.ShareLocalFile(context.Background(), announcer, "room-1", "movie.mp4", "video/mp4", strings.NewReader("bytes"))
	require.NoError(t, err)

	require.Equal(t, 1, announcer.calls)
	assert.Equal(t, protocol.SourceLocal, announcer.source)
	assert.NotEmpty(t, announcer.url)
	assert.Equal(t, 0, connects)
}

func TestShareLocalFileUploadFailureFallsBack(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("bucket unreachable")}
	announcer := &fakeAnnouncer{}
	var failures int
	r := NewResolver(uploader, Hooks{OnUploadFailed: func(error) { failures++ }}, slog.Default())

	err := r.ShareLocalFile(context.Background(), announcer, "room-1", "movie.mp4", "video/mp4", strings.NewReader("bytes"))
	require.Error(t, err)

	// the announcement still goes out, just without a URL, which is
	// what routes the partner onto the peer-stream tier
	require.Equal(t, 1, announcer.calls)
	assert.Empty(t, announcer.url)
	assert.Equal(t, "movie.mp4", announcer.name)
	assert.Equal(t, 1, failures)
}

func TestOrderIndependence(t *testing.T) {
	msg := protocol.SyncMessage{
		Type:      protocol.SyncVideoChange,
		Source:    protocol.SourceLocal,
		URL:       "https://cdn.example.com/bucket/room-1/abc.mp4",
		VideoName: "movie.mp4",
	}

	// video_change first, heartbeat repeat after
	a := NewResolver(nil, Hooks{}, slog.Default())
	first := a.Apply(msg)
	hb := msg
	hb.Type = protocol.SyncHeartbeat
	second := a.Apply(hb)

	// heartbeat only, as a guest who joined late would see
	b := NewResolver(nil, Hooks{}, slog.Default())
	late := b.Apply(hb)

	assert.Equal(t, first, second)
	assert.Equal(t, first, late)
}
