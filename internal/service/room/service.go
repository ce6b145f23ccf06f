package room

import (
	"context"
	"errors"

	"github.com/couchsync/server/internal/repository/room"
	"github.com/couchsync/server/pkg/randstr"
	"github.com/couchsync/server/pkg/ytvideodata"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrNotInRoom    = errors.New("user is not in the room")
)

const (
	roomCodeLength      = 6
	roomCodeMaxAttempts = 5
)

type iRoomRepo interface {
	SetRoom(context.Context, *room.SetRoomParams) error
	GetRoom(context.Context, string) (room.Room, error)
	GetRoomIdByCode(context.Context, string) (string, error)
	SetGuest(context.Context, *room.SetGuestParams) error
	ClearGuest(context.Context, string) error
	UpdateVideo(context.Context, *room.UpdateVideoParams) error
	RemoveRoom(context.Context, string) error
	AddChatMessage(context.Context, *room.AddChatMessageParams) error
	GetChatMessages(context.Context, string) ([]room.ChatMessage, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

// VideoDataFunc fetches display metadata for a YouTube video id. May
// be nil, in which case stored video names are not enriched.
type VideoDataFunc func(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)

type service struct {
	roomRepo  iRoomRepo
	generator iGenerator
	videoData VideoDataFunc
}

func NewService(roomRepo iRoomRepo, videoData VideoDataFunc) *service {
	s := service{
		roomRepo:  roomRepo,
		videoData: videoData,
	}

	// room codes are uppercase base-36
	s.generator = randstr.New([]byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"))

	return &s
}
