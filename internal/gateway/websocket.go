package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/monitoring"
)

// wsWriteTimeout bounds a single frame write.
const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves GET /api/chat/ws.
//
// Each text frame is a chat request with the same shape as POST /api/chat.
// Each reply is sent whole in one frame; there is no token streaming.
// A frame without conversation_id continues the conversation last used on
// this connection, so a client only needs to send the id once.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hijacked connections keep the server write deadline otherwise.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(g.config.Server.AllowedOrigins),
	})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(MaxRequestBodySize)

	ctx := r.Context()
	requestID := monitoring.RequestIDFromContext(ctx)
	current := ""

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				log.Debug().Err(err).Str("request_id", requestID).Msg("websocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			g.writeFrame(ctx, conn, WSFrame{Type: FrameError, Error: "only text frames are supported"})
			continue
		}

		req, err := parseChatRequest(data)
		if err != nil {
			g.alerts.FlagInvalidRequest(requestID, err.Error())
			g.writeFrame(ctx, conn, WSFrame{Type: FrameError, Error: msgBadRequest + ": " + err.Error()})
			continue
		}
		if req.ConversationID == "" {
			req.ConversationID = current
		}

		reply, err := g.chat(ctx, monitoring.TransportWebSocket, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			f := classifyChatError(err, g.showDetails())
			g.writeFrame(ctx, conn, WSFrame{
				Type:           FrameError,
				ConversationID: req.ConversationID,
				Error:          f.message,
				Category:       f.category,
				Details:        f.details,
			})
			continue
		}

		current = reply.ConversationID
		if err := g.writeFrame(ctx, conn, WSFrame{
			Type:           FrameReply,
			Response:       reply.Content,
			ConversationID: reply.ConversationID,
		}); err != nil {
			return
		}
	}
}

func (g *Gateway) writeFrame(ctx context.Context, conn *websocket.Conn, frame WSFrame) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	err := wsjson.Write(ctx, conn, frame)
	if err != nil {
		log.Debug().Err(err).Msg("websocket write failed")
	}
	return err
}

// originHosts converts configured origins to the host patterns the
// websocket library matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		} else if o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}
