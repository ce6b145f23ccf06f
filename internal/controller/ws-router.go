package controller

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/couchsync/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())

	// a rejected message is reported back to its sender through the
	// serialized writer shared with the relay pump
	mux.OnError(func(ctx context.Context, _ *websocket.Conn, err error) {
		c.logger.DebugContext(ctx, "rejected websocket message", "error", err)

		writer := c.getWriterFromCtx(ctx)
		if writer == nil {
			return
		}

		if err := writer.WriteJSON(&Output{
			Type:    "ERROR",
			Payload: map[string]string{"error": err.Error()},
		}); err != nil {
			c.logger.DebugContext(ctx, "failed to write error reply", "error", err)
		}
	})

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	// sync protocol and peer handshake relays
	wsrouter.Handle(mux, "SYNC", c.handleSync)
	wsrouter.Handle(mux, "P2P_SIGNAL", c.handleP2PSignal)
	wsrouter.Handle(mux, "WEBRTC", c.handleWebRTC)

	// room registry
	wsrouter.Handle(mux, "UPDATE_VIDEO", c.handleUpdateVideo)
	wsrouter.Handle(mux, "LEAVE_ROOM", c.handleLeaveRoom)

	// chat
	wsrouter.Handle(mux, "CHAT_MESSAGE", c.handleChatMessage)

	return mux
}
