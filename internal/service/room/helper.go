package room

import (
	repo "github.com/couchsync/server/internal/repository/room"
)

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromRepoRoom(r repo.Room) Room {
	return Room{
		Id:        r.Id,
		HostId:    r.HostId,
		GuestId:   optional(r.GuestId),
		RoomCode:  r.RoomCode,
		Status:    r.Status,
		VideoURL:  optional(r.VideoURL),
		VideoType: optional(r.VideoType),
		VideoName: optional(r.VideoName),
	}
}

func fromRepoChatMessage(m repo.ChatMessage) ChatMessage {
	return ChatMessage{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}
