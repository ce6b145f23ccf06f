package room

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repo "github.com/couchsync/server/internal/repository/room"
	roomRedis "github.com/couchsync/server/internal/repository/room/redis"
)

func newTestService(t *testing.T) *service {
	t.Helper()
	s := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	return NewService(roomRedis.NewRepo(rc, time.Hour), nil)
}

func TestCreateAndJoinRoom(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), createResp.Room.RoomCode, "room code must be 6 uppercase alphanumeric chars")
	assert.Equal(t, repo.StatusWaiting, createResp.Room.Status)
	assert.Nil(t, createResp.Room.GuestId)

	joinResp, err := service.JoinRoom(ctx, &JoinRoomParams{
		RoomCode: createResp.Room.RoomCode,
		UserId:   "guest-1",
	})
	require.NoError(t, err)
	assert.Equal(t, repo.StatusActive, joinResp.Room.Status)
	require.NotNil(t, joinResp.Room.GuestId)
	assert.Equal(t, "guest-1", *joinResp.Room.GuestId)
	assert.Empty(t, joinResp.Messages)
}

func TestJoinRoomLowercaseCode(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)

	// codes are case-insensitive on entry
	_, err = service.JoinRoom(ctx, &JoinRoomParams{
		RoomCode: " " + toLower(createResp.Room.RoomCode) + " ",
		UserId:   "guest-1",
	})
	require.NoError(t, err)
}

func toLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func TestJoinRoomErrors(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.JoinRoom(ctx, &JoinRoomParams{RoomCode: "NOSUCH", UserId: "u1"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)

	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-1"})
	require.NoError(t, err)

	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-2"})
	assert.ErrorIs(t, err, ErrRoomFull)

	// host and the existing guest can always re-enter
	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "host-1"})
	require.NoError(t, err)
	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-1"})
	require.NoError(t, err)
}

func TestJoinRoomConcurrentGuests(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)

	// two guests race for the single seat; the seat claim is atomic so
	// exactly one wins regardless of interleaving
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userId := range []string{"guest-1", "guest-2"} {
		wg.Add(1)
		go func(userId string) {
			defer wg.Done()
			_, err := service.JoinRoom(ctx, &JoinRoomParams{
				RoomCode: createResp.Room.RoomCode,
				UserId:   userId,
			})
			errs <- err
		}(userId)
	}
	wg.Wait()
	close(errs)

	var joined, full int
	for err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrRoomFull):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 1, full)
}

func TestLeaveRoom(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)
	roomId := createResp.Room.Id

	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-1"})
	require.NoError(t, err)

	// guest leaving resets the room to waiting
	leaveResp, err := service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: roomId, UserId: "guest-1"})
	require.NoError(t, err)
	assert.False(t, leaveResp.RoomDeleted)

	joinResp, err := service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-2"})
	require.NoError(t, err)
	assert.Equal(t, repo.StatusActive, joinResp.Room.Status)

	// host leaving destroys the room and frees the code
	leaveResp, err = service.LeaveRoom(ctx, &LeaveRoomParams{RoomId: roomId, UserId: "host-1"})
	require.NoError(t, err)
	assert.True(t, leaveResp.RoomDeleted)

	_, err = service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-2"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestUpdateVideo(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)

	_, err = service.UpdateVideo(ctx, &UpdateVideoParams{
		RoomId:    createResp.Room.Id,
		UserId:    "stranger",
		VideoURL:  "u",
		VideoType: repo.VideoTypeLocal,
	})
	assert.ErrorIs(t, err, ErrNotInRoom)

	updateResp, err := service.UpdateVideo(ctx, &UpdateVideoParams{
		RoomId:    createResp.Room.Id,
		UserId:    "host-1",
		VideoURL:  "https://cdn.example.com/movie.mp4",
		VideoType: repo.VideoTypeLocal,
		VideoName: "movie.mp4",
	})
	require.NoError(t, err)
	require.NotNil(t, updateResp.Room.VideoURL)
	assert.Equal(t, "https://cdn.example.com/movie.mp4", *updateResp.Room.VideoURL)
}

func TestAppendChatMessage(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	createResp, err := service.CreateRoom(ctx, &CreateRoomParams{HostId: "host-1"})
	require.NoError(t, err)

	appendResp, err := service.AppendChatMessage(ctx, &AppendChatMessageParams{
		RoomId:  createResp.Room.Id,
		UserId:  "host-1",
		Message: "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appendResp.Message.Id)
	assert.False(t, appendResp.Message.CreatedAt.IsZero())

	joinResp, err := service.JoinRoom(ctx, &JoinRoomParams{RoomCode: createResp.Room.RoomCode, UserId: "guest-1"})
	require.NoError(t, err)
	require.Len(t, joinResp.Messages, 1)
	assert.Equal(t, "hello", joinResp.Messages[0].Message)
}
