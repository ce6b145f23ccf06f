package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	channelRedis "github.com/couchsync/server/internal/repository/channel/redis"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c controller) generateTimeBasedId() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

func (c controller) getQueryParam(r *http.Request, key string) (string, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return "", fmt.Errorf("%s was not provided", key)
	}

	return value, nil
}

// wsWriter serializes writes to a single websocket connection between
// the relay pump and message handlers.
type wsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// pump relays every envelope published on the room topic to the
// client until the subscription closes.
func (c controller) pump(ctx context.Context, w *wsWriter, sub *channelRedis.Subscription) {
	for env := range sub.Channel() {
		if err := w.WriteJSON(&Output{
			Type:    strings.ToUpper(env.Event),
			Payload: env.Payload,
		}); err != nil {
			c.logger.DebugContext(ctx, "failed to relay envelope", "error", err)
			return
		}
	}
}
