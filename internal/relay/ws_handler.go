package relay

import (
	"net/http"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/httpx"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow CORS for demo; tighten in prod.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWS mounts GET /ws/chat/:id for authenticated members.
// Auth works via:
// 1) Header: Authorization: Bearer <JWT>
// 2) Query:  ?token=<JWT>
func (s *Server) serveWS(c *gin.Context) {
	token := auth.BearerToken(c)
	if token == "" {
		httpx.Err(c, http.StatusUnauthorized, "missing token")
		return
	}
	cl, err := auth.ParseToken(s.JWTSecret, token)
	if err != nil {
		httpx.Err(c, http.StatusUnauthorized, "invalid token")
		return
	}
	cid, ok := parseID(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	member, err := s.Store.IsMember(c.Request.Context(), cid, cl.UserID)
	if err != nil {
		httpx.Internal(c, s.Log, "membership check", err, "conversation", cid)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if !member {
		// non-members get the revoked close code, not a handshake error
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.CloseMembershipRevoked, "not a member"))
		conn.Close()
		return
	}

	client := &Client{
		Hub:            s.Hub,
		Store:          s.Store,
		Conn:           conn,
		Send:           make(chan []byte, sendBuffer),
		UserID:         cl.UserID,
		ConversationID: cid,
		log:            s.Log.With("conversation", cid, "user", cl.UserID),
		limiter:        rate.NewLimiter(rate.Limit(s.InboundRate), s.InboundBurst),
	}
	if !s.Hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
