package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slices"

	"github.com/couchsync/server/internal/repository/room"
)

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (r repo) AddChatMessage(ctx context.Context, params *room.AddChatMessageParams) error {
	data, err := json.Marshal(params.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	chatKey := r.getChatKey(params.Message.RoomId)
	pipe := r.rc.TxPipeline()
	pipe.RPush(ctx, chatKey, data)
	pipe.Expire(ctx, chatKey, r.expireDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add chat message: %w", err)
	}

	return nil
}

func (r repo) GetChatMessages(ctx context.Context, roomId string) ([]room.ChatMessage, error) {
	chatKey := r.getChatKey(roomId)
	raw, err := r.rc.LRange(ctx, chatKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}

	r.rc.Expire(ctx, chatKey, r.expireDuration)

	messages := make([]room.ChatMessage, 0, len(raw))
	for _, entry := range raw {
		var msg room.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}

		messages = append(messages, msg)
	}

	slices.SortStableFunc(messages, func(a, b room.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return messages, nil
}
