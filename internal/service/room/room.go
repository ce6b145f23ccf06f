package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	repo "github.com/couchsync/server/internal/repository/room"
)

type CreateRoomParams struct {
	HostId string
}

type CreateRoomResponse struct {
	Room Room
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	roomId := uuid.NewString()

	var roomCode string
	for attempt := 0; ; attempt++ {
		roomCode = s.generator.GenerateRandomString(roomCodeLength)
		err := s.roomRepo.SetRoom(ctx, &repo.SetRoomParams{
			Id:       roomId,
			HostId:   params.HostId,
			RoomCode: roomCode,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrRoomCodeTaken) || attempt+1 >= roomCodeMaxAttempts {
			return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
		}
	}

	res, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to get created room: %w", err)
	}

	return CreateRoomResponse{Room: fromRepoRoom(res)}, nil
}

type JoinRoomParams struct {
	RoomCode string
	UserId   string
}

type JoinRoomResponse struct {
	Room     Room
	Messages []ChatMessage
}

func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	roomCode := strings.ToUpper(strings.TrimSpace(params.RoomCode))

	roomId, err := s.roomRepo.GetRoomIdByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repo.ErrRoomNotFound) {
			return JoinRoomResponse{}, ErrRoomNotFound
		}
		return JoinRoomResponse{}, fmt.Errorf("failed to look up room code: %w", err)
	}

	res, err := s.roomRepo.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, repo.ErrRoomNotFound) {
			return JoinRoomResponse{}, ErrRoomNotFound
		}
		return JoinRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if res.GuestId != "" && res.GuestId != params.UserId && res.HostId != params.UserId {
		return JoinRoomResponse{}, ErrRoomFull
	}

	if res.HostId != params.UserId {
		// the seat claim is atomic in the repo, so a joiner racing this
		// check still loses cleanly
		if err := s.roomRepo.SetGuest(ctx, &repo.SetGuestParams{
			RoomId:  roomId,
			GuestId: params.UserId,
		}); err != nil {
			if errors.Is(err, repo.ErrGuestSeatTaken) {
				return JoinRoomResponse{}, ErrRoomFull
			}
			return JoinRoomResponse{}, fmt.Errorf("failed to set guest: %w", err)
		}

		res.GuestId = params.UserId
		res.Status = repo.StatusActive
	}

	messages, err := s.getChatMessages(ctx, roomId)
	if err != nil {
		return JoinRoomResponse{}, err
	}

	return JoinRoomResponse{
		Room:     fromRepoRoom(res),
		Messages: messages,
	}, nil
}

type LeaveRoomParams struct {
	RoomId string
	UserId string
}

type LeaveRoomResponse struct {
	RoomDeleted bool
}

// LeaveRoom destroys the room when the host leaves and resets it to
// waiting when the guest leaves.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	res, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, repo.ErrRoomNotFound) {
			return LeaveRoomResponse{}, ErrRoomNotFound
		}
		return LeaveRoomResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	switch params.UserId {
	case res.HostId:
		if err := s.roomRepo.RemoveRoom(ctx, params.RoomId); err != nil {
			return LeaveRoomResponse{}, fmt.Errorf("failed to remove room: %w", err)
		}
		return LeaveRoomResponse{RoomDeleted: true}, nil
	case res.GuestId:
		if err := s.roomRepo.ClearGuest(ctx, params.RoomId); err != nil {
			return LeaveRoomResponse{}, fmt.Errorf("failed to clear guest: %w", err)
		}
		return LeaveRoomResponse{}, nil
	default:
		return LeaveRoomResponse{}, ErrNotInRoom
	}
}
