package redis

import (
	"context"
	"fmt"

	"github.com/couchsync/server/internal/repository/room"
)

func (r repo) SetRoom(ctx context.Context, params *room.SetRoomParams) error {
	codeKey := r.getRoomCodeKey(params.RoomCode)
	ok, err := r.rc.SetNX(ctx, codeKey, params.Id, r.expireDuration).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve room code: %w", err)
	}
	if !ok {
		return room.ErrRoomCodeTaken
	}

	roomKey := r.getRoomKey(params.Id)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, roomKey,
		"id", params.Id,
		"host_id", params.HostId,
		"room_code", params.RoomCode,
		"status", room.StatusWaiting,
	)
	pipe.Expire(ctx, roomKey, r.expireDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		r.rc.Del(ctx, codeKey)
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	roomKey := r.getRoomKey(roomId)
	var res room.Room
	if err := r.rc.HGetAll(ctx, roomKey).Scan(&res); err != nil {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	if res.Id == "" {
		return room.Room{}, room.ErrRoomNotFound
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return res, nil
}

func (r repo) GetRoomIdByCode(ctx context.Context, roomCode string) (string, error) {
	roomId, err := r.rc.Get(ctx, r.getRoomCodeKey(roomCode)).Result()
	if err != nil {
		if isNil(err) {
			return "", room.ErrRoomNotFound
		}
		return "", fmt.Errorf("failed to get room id by code: %w", err)
	}

	return roomId, nil
}

// SetGuest claims the single guest seat. HSetNX makes the claim
// atomic, so of two concurrent joiners exactly one wins; the other
// gets ErrGuestSeatTaken. Re-claiming by the seated guest succeeds.
func (r repo) SetGuest(ctx context.Context, params *room.SetGuestParams) error {
	roomKey := r.getRoomKey(params.RoomId)
	cmd := r.rc.Exists(ctx, roomKey)
	if err := cmd.Err(); err != nil {
		return err
	}
	if cmd.Val() == 0 {
		return room.ErrRoomNotFound
	}

	claimed, err := r.rc.HSetNX(ctx, roomKey, "guest_id", params.GuestId).Result()
	if err != nil {
		return fmt.Errorf("failed to claim guest seat: %w", err)
	}
	if !claimed {
		seated, err := r.rc.HGet(ctx, roomKey, "guest_id").Result()
		if err != nil {
			return fmt.Errorf("failed to get seated guest: %w", err)
		}
		if seated != params.GuestId {
			return room.ErrGuestSeatTaken
		}
	}

	if err := r.rc.HSet(ctx, roomKey, "status", room.StatusActive).Err(); err != nil {
		return fmt.Errorf("failed to set guest: %w", err)
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return nil
}

func (r repo) ClearGuest(ctx context.Context, roomId string) error {
	roomKey := r.getRoomKey(roomId)
	pipe := r.rc.TxPipeline()
	pipe.HDel(ctx, roomKey, "guest_id")
	pipe.HSet(ctx, roomKey, "status", room.StatusWaiting)
	pipe.Expire(ctx, roomKey, r.expireDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear guest: %w", err)
	}

	return nil
}

func (r repo) UpdateVideo(ctx context.Context, params *room.UpdateVideoParams) error {
	roomKey := r.getRoomKey(params.RoomId)
	cmd := r.rc.Exists(ctx, roomKey)
	if err := cmd.Err(); err != nil {
		return err
	}
	if cmd.Val() == 0 {
		return room.ErrRoomNotFound
	}

	if err := r.rc.HSet(ctx, roomKey,
		"video_url", params.VideoURL,
		"video_type", params.VideoType,
		"video_name", params.VideoName,
	).Err(); err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	r.rc.Expire(ctx, roomKey, r.expireDuration)

	return nil
}

func (r repo) RemoveRoom(ctx context.Context, roomId string) error {
	res, err := r.GetRoom(ctx, roomId)
	if err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	pipe.Del(ctx, r.getRoomKey(roomId))
	pipe.Del(ctx, r.getRoomCodeKey(res.RoomCode))
	pipe.Del(ctx, r.getChatKey(roomId))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	return nil
}
