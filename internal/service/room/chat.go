package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	repo "github.com/couchsync/server/internal/repository/room"
)

type AppendChatMessageParams struct {
	RoomId  string
	UserId  string
	Message string
}

type AppendChatMessageResponse struct {
	Message ChatMessage
}

// AppendChatMessage stores a chat message. Messages are append-only;
// edits and deletes are not supported.
func (s service) AppendChatMessage(ctx context.Context, params *AppendChatMessageParams) (AppendChatMessageResponse, error) {
	res, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, repo.ErrRoomNotFound) {
			return AppendChatMessageResponse{}, ErrRoomNotFound
		}
		return AppendChatMessageResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	if params.UserId != res.HostId && params.UserId != res.GuestId {
		return AppendChatMessageResponse{}, ErrNotInRoom
	}

	message := repo.ChatMessage{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		UserId:    params.UserId,
		Message:   params.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.roomRepo.AddChatMessage(ctx, &repo.AddChatMessageParams{Message: message}); err != nil {
		return AppendChatMessageResponse{}, fmt.Errorf("failed to add chat message: %w", err)
	}

	return AppendChatMessageResponse{Message: fromRepoChatMessage(message)}, nil
}

func (s service) getChatMessages(ctx context.Context, roomId string) ([]ChatMessage, error) {
	stored, err := s.roomRepo.GetChatMessages(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}

	messages := make([]ChatMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, fromRepoChatMessage(m))
	}

	return messages, nil
}
