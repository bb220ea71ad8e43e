package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 5120
	sendBuffer     = 256
)

// Client is one websocket joined to one conversation.
type Client struct {
	Hub            *Hub
	Store          *storage.Store
	Conn           *websocket.Conn
	Send           chan []byte
	UserID         int64
	ConversationID int64

	log     *slog.Logger
	limiter *rate.Limiter
	// closeCode is set by the hub before it closes Send.
	closeCode int
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "err", err)
			}
			break
		}
		if !c.limiter.Allow() {
			c.Hub.Reply(c, protocol.Error("rate limit exceeded"))
			continue
		}
		f, err := protocol.Decode(msg)
		if err != nil {
			c.log.Warn("malformed frame", "err", err)
			c.Hub.Reply(c, protocol.Error("malformed frame"))
			continue
		}
		switch f.Type {
		case protocol.TypeSendMessage:
			c.sendMessage(f.Content)
		case protocol.TypeTyping:
			c.Hub.Broadcast(c.ConversationID, protocol.TypingIndicator(c.userID(), f.Typing()), c)
		default:
			c.Hub.Reply(c, protocol.Error("unsupported frame type "+f.Type))
		}
	}
}

func (c *Client) sendMessage(content string) {
	if err := protocol.ValidateContent(content); err != nil {
		c.Hub.Reply(c, protocol.Error("message must be 1 to 1000 characters"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	ok, err := c.Store.IsMember(ctx, c.ConversationID, c.UserID)
	if err == nil && !ok {
		c.Hub.Kick(c.ConversationID, c.UserID)
		return
	}
	m, err := c.Store.InsertMessage(ctx, c.ConversationID, c.UserID, content)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Error("store message", "err", err)
		}
		c.Hub.Reply(c, protocol.Error("message could not be saved"))
		return
	}
	// the sender gets the stored copy too, to reconcile its pending entry
	c.Hub.Broadcast(c.ConversationID, protocol.GroupMessage(wireMessage(m)), nil)
}

func (c *Client) userID() string {
	return formatID(c.UserID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				var payload []byte
				if c.closeCode != 0 {
					payload = websocket.FormatCloseMessage(c.closeCode, "membership revoked")
				}
				c.Conn.WriteMessage(websocket.CloseMessage, payload)
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
