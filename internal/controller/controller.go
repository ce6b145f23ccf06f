package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	channelRedis "github.com/couchsync/server/internal/repository/channel/redis"
	"github.com/couchsync/server/internal/protocol"
	"github.com/couchsync/server/internal/service/room"
	"github.com/couchsync/server/pkg/validator"
	"github.com/couchsync/server/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	UpdateVideo(context.Context, *room.UpdateVideoParams) (room.UpdateVideoResponse, error)
	AppendChatMessage(context.Context, *room.AppendChatMessageParams) (room.AppendChatMessageResponse, error)
}

type iChannelRepo interface {
	Publish(ctx context.Context, roomId string, env *protocol.Envelope) error
	Subscribe(ctx context.Context, roomId string) (*channelRedis.Subscription, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, userId string) error
	RemoveByConn(conn *websocket.Conn) error
}

type controller struct {
	roomService iRoomService
	channelRepo iChannelRepo
	connRepo    iConnRepo
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	wsmux       *wsrouter.WSRouter
	logger      *slog.Logger
}

func NewController(roomService iRoomService, channelRepo iChannelRepo, connRepo iConnRepo, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		channelRepo: channelRepo,
		connRepo:    connRepo,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
