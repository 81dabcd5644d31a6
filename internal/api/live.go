package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	liveWriteTimeout = 5 * time.Second
	livePingInterval = 30 * time.Second
)

// handleLive streams the caller's progress events over a websocket until
// either side closes the connection.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())

	// The server's read and write timeouts must not cut long-lived streams.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", u.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	// The client only listens; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	events, cancel, err := s.broker.Subscribe(ctx, u.ID)
	if err != nil {
		slog.Error("progress subscribe failed", "user_id", u.ID, "error", err)
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cancel()

	slog.Info("live progress connected", "user_id", u.ID)
	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("live progress disconnected", "user_id", u.ID)
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("live progress write failed", "user_id", u.ID, "error", err)
				}
				return
			}
		}
	}
}
