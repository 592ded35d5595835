package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const feedWriteTimeout = 5 * time.Second

// handleFeed upgrades to a websocket and streams the user's completion
// events until the client disconnects.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", user.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := h.broker.Subscribe(user.ID)
	defer cancel()

	slog.Info("progress feed opened", "user_id", user.ID)
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(writeCtx, conn, e)
			cancelWrite()
			if err != nil {
				slog.Info("progress feed closed", "user_id", user.ID, "error", err)
				return
			}
		}
	}
}
