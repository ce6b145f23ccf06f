// Package media decides how each participant obtains the bytes of the
// video being watched: a shared URL, an incoming peer stream, or a
// manually picked local file, in that priority order.
package media

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/couchsync/server/internal/protocol"
	"github.com/couchsync/server/pkg/ytvideoid"
)

type Mode string

const (
	ModeNone Mode = "none"
	// ModeURL streams a shared URL directly; no peer link needed.
	ModeURL Mode = "url"
	// ModePeerStream receives the host's captured playback stream.
	ModePeerStream Mode = "peer_stream"
	// ModeLocalFile plays a manually picked local copy, bypassing the
	// network entirely.
	ModeLocalFile Mode = "local_file"
)

// Resolution is the effective media source for this participant.
type Resolution struct {
	Mode           Mode
	Source         protocol.VideoSource
	URL            string
	VideoName      string
	YoutubeVideoId string
}

// Uploader pushes a local file to shared storage and returns a stable
// public URL.
type Uploader interface {
	Upload(ctx context.Context, roomId, filename, contentType string, body io.Reader) (string, error)
}

// VideoAnnouncer broadcasts the active video selection to the room.
// Implemented by the sync engine.
type VideoAnnouncer interface {
	SetVideo(source protocol.VideoSource, url, name string)
}

type Hooks struct {
	// OnResolved fires whenever the effective source changes.
	OnResolved func(Resolution)
	// OnConnectPeer fires once per video when the resolver lands on
	// the peer-stream tier and a link must be established.
	OnConnectPeer func()
	// OnUploadFailed fires when shared storage rejects a file; the
	// session falls back to peer streaming automatically.
	OnUploadFailed func(err error)
}

type Resolver struct {
	uploader Uploader
	hooks    Hooks
	logger   *slog.Logger

	mu        sync.Mutex
	current   Resolution
	localName string
}

func NewResolver(uploader Uploader, hooks Hooks, logger *slog.Logger) *Resolver {
	return &Resolver{
		uploader: uploader,
		hooks:    hooks,
		logger:   logger,
		current:  Resolution{Mode: ModeNone},
	}
}

// Apply reconciles against the latest video_change or heartbeat
// payload. It is idempotent and order-independent: feeding the same
// payload again, or after a late partner_joined, changes nothing.
func (r *Resolver) Apply(msg protocol.SyncMessage) Resolution {
	next := r.resolve(msg)

	r.mu.Lock()
	if next == r.current {
		current := r.current
		r.mu.Unlock()
		return current
	}
	r.current = next
	r.mu.Unlock()

	r.logger.Debug("media source resolved", "mode", next.Mode, "source", next.Source)

	if r.hooks.OnResolved != nil {
		r.hooks.OnResolved(next)
	}
	if next.Mode == ModePeerStream && r.hooks.OnConnectPeer != nil {
		r.hooks.OnConnectPeer()
	}
	return next
}

func (r *Resolver) resolve(msg protocol.SyncMessage) Resolution {
	res := Resolution{
		Source:    msg.Source,
		URL:       msg.URL,
		VideoName: msg.VideoName,
	}

	switch {
	case msg.Source == protocol.SourceYoutube:
		res.Mode = ModeURL
		if id, err := ytvideoid.Extract(msg.URL); err == nil {
			res.YoutubeVideoId = id
		}
	case msg.URL != "":
		res.Mode = ModeURL
	default:
		r.mu.Lock()
		picked := r.localName != "" && r.localName == msg.VideoName
		r.mu.Unlock()
		if picked {
			res.Mode = ModeLocalFile
		} else {
			res.Mode = ModePeerStream
		}
	}

	return res
}

// SelectLocalFile is the manual escape hatch: the participant already
// has the file and picks it directly.
func (r *Resolver) SelectLocalFile(name string) Resolution {
	r.mu.Lock()
	r.localName = name
	next := r.current
	next.Mode = ModeLocalFile
	next.Source = protocol.SourceLocal
	next.VideoName = name
	r.current = next
	r.mu.Unlock()

	if r.hooks.OnResolved != nil {
		r.hooks.OnResolved(next)
	}
	return next
}

// Current returns the last resolution.
func (r *Resolver) Current() Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// ShareLocalFile is the host-side path for a newly picked local file:
// try the storage tier first and announce the result either way. On
// upload failure the announcement carries no URL, which routes the
// partner onto the peer-stream tier.
func (r *Resolver) ShareLocalFile(ctx context.Context, announcer VideoAnnouncer, roomId, filename, contentType string, body io.Reader) error {
	r.mu.Lock()
	r.localName = filename
	r.mu.Unlock()

	url := ""
	var uploadErr error
	if r.uploader != nil {
		url, uploadErr = r.uploader.Upload(ctx, roomId, filename, contentType, body)
	}
	if uploadErr != nil {
		r.logger.Warn("upload failed, falling back to peer streaming", "file", filename, "error", uploadErr)
		url = ""
		if r.hooks.OnUploadFailed != nil {
			r.hooks.OnUploadFailed(uploadErr)
		}
	}

	announcer.SetVideo(protocol.SourceLocal, url, filename)

	r.mu.Lock()
	r.current = Resolution{
		Mode:      ModeLocalFile,
		Source:    protocol.SourceLocal,
		URL:       url,
		VideoName: filename,
	}
	r.mu.Unlock()

	return uploadErr
}
