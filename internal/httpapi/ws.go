package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/protocol"
)

const (
	wsReadTimeout  = 10 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS serves one turn per text frame. A frame without user_id continues
// the session last used on the connection.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	var current string
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var out any
		req, err := protocol.ParseChatRequest(data)
		switch {
		case err != nil:
			out = protocol.ErrorFrame{Error: err.Error(), Code: protocol.CodeInvalidRequest, UserID: current}
		default:
			userID := req.User()
			if userID == "" {
				userID = current
			}
			if !s.limiter.Allow(userID, r) {
				out = protocol.ErrorFrame{Error: "too many requests", Code: protocol.CodeRateLimited, UserID: userID}
				break
			}
			resp, err := s.engine.Process(ctx, userID, req.Message)
			if err != nil {
				s.logger.Error("websocket turn failed", zap.Error(err))
				out = protocol.ErrorFrame{Error: "internal server error", Code: protocol.CodeInternal, UserID: userID}
				break
			}
			current = resp.UserID
			if resp.IsFinished {
				current = ""
			}
			out = resp
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}
