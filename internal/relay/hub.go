package relay

import (
	"context"
	"log/slog"
	"slices"
	"strconv"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

type outbound struct {
	conversationID int64
	payload        []byte
	except         *Client
	// to, when set, addresses a single client instead of the room.
	to *Client
}

type kickReq struct {
	conversationID int64
	userID         int64
}

// Hub fans frames out to the clients of each conversation. All room state is
// owned by the Run goroutine.
type Hub struct {
	log *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	kick       chan kickReq
	done       chan struct{}

	// conversationID -> set of client connections (handles multi-tab/or mutlti device)
	rooms map[int64]map[*Client]bool
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log.With("component", "hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		kick:       make(chan kickReq),
		done:       make(chan struct{}),
		rooms:      make(map[int64]map[*Client]bool),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					close(client.Send)
				}
			}
			h.rooms = map[int64]map[*Client]bool{}
			return
		case client := <-h.register:
			room := h.rooms[client.ConversationID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.ConversationID] = room
			}
			room[client] = true
			h.log.Debug("client joined", "conversation", client.ConversationID, "user", client.UserID)
			h.presence(client.ConversationID)
		case client := <-h.unregister:
			if h.drop(client) {
				h.presence(client.ConversationID)
			}
		case msg := <-h.broadcast:
			h.deliver(msg)
		case req := <-h.kick:
			room := h.rooms[req.conversationID]
			kicked := false
			for client := range room {
				if client.UserID == req.userID {
					client.closeCode = protocol.CloseMembershipRevoked
					h.drop(client)
					kicked = true
				}
			}
			if kicked {
				h.log.Info("member removed", "conversation", req.conversationID, "user", req.userID)
				h.presence(req.conversationID)
			}
		}
	}
}

// drop removes a client and closes its send channel, once.
func (h *Hub) drop(client *Client) bool {
	room, ok := h.rooms[client.ConversationID]
	if !ok || !room[client] {
		return false
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(h.rooms, client.ConversationID)
	}
	return true
}

func (h *Hub) deliver(msg outbound) {
	if msg.to != nil {
		if h.rooms[msg.to.ConversationID][msg.to] {
			h.push(msg.to, msg.payload)
		}
		return
	}
	dropped := false
	for client := range h.rooms[msg.conversationID] {
		if client == msg.except {
			continue
		}
		if !h.push(client, msg.payload) {
			dropped = true
		}
	}
	if dropped {
		h.presence(msg.conversationID)
	}
}

func (h *Hub) push(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		// slow/broken client → drop
		h.drop(client)
		h.log.Warn("dropped slow client", "conversation", client.ConversationID, "user", client.UserID)
		return false
	}
}

// presence sends the current online set to everyone in the room.
func (h *Hub) presence(conversationID int64) {
	room := h.rooms[conversationID]
	if len(room) == 0 {
		return
	}
	ids := make([]string, 0, len(room))
	for client := range room {
		ids = append(ids, strconv.FormatInt(client.UserID, 10))
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	payload, err := protocol.OnlineMembers(ids).Encode()
	if err != nil {
		h.log.Error("encode presence", "err", err)
		return
	}
	for client := range room {
		h.push(client, payload)
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends a frame to every client in the conversation except one,
// which may be nil.
func (h *Hub) Broadcast(conversationID int64, f protocol.Frame, except *Client) {
	h.send(outbound{conversationID: conversationID, except: except}, f)
}

// Reply sends a frame to one client if it is still connected.
func (h *Hub) Reply(c *Client, f protocol.Frame) {
	h.send(outbound{conversationID: c.ConversationID, to: c}, f)
}

func (h *Hub) send(msg outbound, f protocol.Frame) {
	payload, err := f.Encode()
	if err != nil {
		h.log.Error("encode frame", "type", f.Type, "err", err)
		return
	}
	msg.payload = payload
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Kick disconnects every connection the user holds in the conversation with
// the membership-revoked close code.
func (h *Hub) Kick(conversationID, userID int64) {
	select {
	case h.kick <- kickReq{conversationID: conversationID, userID: userID}:
	case <-h.done:
	}
}
