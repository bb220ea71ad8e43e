package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// link is one established websocket, tagged with the epoch that created it.
type link struct {
	epoch uint64
	ws    *websocket.Conn
	out   chan []byte
	done  chan struct{}
	once  sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		l.ws.Close()
	})
}

// Conn owns the duplex session for exactly one conversation. Every dial
// attempt gets a new epoch; callbacks from an older epoch are discarded, which
// is how a caller-initiated Close is told apart from a dropped transport.
type Conn struct {
	cfg            Config
	conversationID string
	token          string
	log            *slog.Logger
	clock          clock.Clock
	events         dispatcher

	mu        sync.Mutex
	state     State
	epoch     uint64
	link      *link
	timer     clock.Timer
	backoff   *backoff
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
	connected bool
}

func NewConn(cfg Config, conversationID, token string) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:            cfg,
		conversationID: conversationID,
		token:          token,
		log:            cfg.Logger.With("component", "conn", "conversation", conversationID),
		clock:          cfg.Clock,
		backoff:        newBackoff(cfg),
	}
}

// SocketURL builds the session URL for a conversation. The websocket scheme
// follows the base: http becomes ws, https becomes wss.
func SocketURL(base, conversationID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u = u.JoinPath("ws", "chat", conversationID)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) ConversationID() string { return c.conversationID }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Subscribe registers fn for every event of this connection. Events are
// delivered synchronously in transport order; fn must not block for long.
func (c *Conn) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.events.subscribe(fn)
}

// Open dials the conversation and blocks until the session is established or
// the first attempt fails. A failed first attempt leaves the handle
// Disconnected and may be retried with Open.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	epoch := c.epoch
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.backoff.reset()
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitState(epoch, StateConnecting)

	ws, err := c.dial(ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			c.reject(epoch, protocol.CloseMembershipRevoked)
			return err
		}
		c.mu.Lock()
		current := !c.closed && c.epoch == epoch
		if current {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if current {
			c.emitState(epoch, StateDisconnected)
		}
		return err
	}
	if !c.attach(epoch, ws) {
		ws.Close()
		return ErrClosed
	}
	return nil
}

// Send transmits a send_message frame. It returns false without transmitting
// when the handle is not connected, the content is blank or too long, or the
// outbound buffer is full. The server echo arrives through the event stream.
func (c *Conn) Send(content string) bool {
	if protocol.ValidateContent(content) != nil {
		return false
	}
	return c.write(protocol.SendMessage(content))
}

// SendTyping is fire-and-forget and silently does nothing when not connected.
func (c *Conn) SendTyping(isTyping bool) {
	c.write(protocol.Typing(isTyping))
}

// Close tears the session down and cancels any pending reconnect. It is safe
// to call in any state and more than once; the handle cannot be reopened.
func (c *Conn) Close() {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.epoch++
	epoch := c.epoch
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	l := c.link
	c.link = nil
	notify := !wasClosed && c.state != StateRejected
	if c.state != StateRejected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if l != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		l.shutdown()
	}
	if notify {
		c.log.Debug("connection closed by caller")
		c.emitState(epoch, StateDisconnected)
	}
}

func (c *Conn) write(f protocol.Frame) bool {
	data, err := f.Encode()
	if err != nil {
		return false
	}
	c.mu.Lock()
	l := c.link
	ok := c.state == StateConnected && l != nil
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.out <- data:
		return true
	default:
		c.log.Warn("outbound buffer full, dropping frame", "type", f.Type)
		return false
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := SocketURL(c.cfg.ServerURL, c.conversationID, c.token)
	if err != nil {
		return nil, err
	}
	ws, resp, err := c.cfg.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusForbidden:
				return nil, ErrRejected
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
			}
		}
		return nil, fmt.Errorf("dial conversation %s: %w", c.conversationID, err)
	}
	return ws, nil
}

func (c *Conn) attach(epoch uint64, ws *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	l := &link{
		epoch: epoch,
		ws:    ws,
		out:   make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
	c.link = l
	reconnected := c.connected
	c.connected = true
	c.state = StateConnected
	c.backoff.reset()
	c.mu.Unlock()

	c.log.Info("connected", "epoch", epoch)
	c.emitState(epoch, StateConnected)
	if reconnected {
		c.emit(Event{Kind: EventReconnected, Epoch: epoch})
	}
	go c.writePump(l)
	go c.readPump(l)
	return true
}

func (c *Conn) readPump(l *link) {
	defer l.shutdown()
	l.ws.SetReadLimit(maxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			c.lost(l, err)
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		if !c.current(l.epoch) {
			return
		}
		c.deliver(l.epoch, f)
	}
}

func (c *Conn) writePump(l *link) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		l.shutdown()
	}()
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.out:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) deliver(epoch uint64, f protocol.Frame) {
	switch f.Type {
	case protocol.TypeGroupMessage:
		m := *f.Data
		if m.ConversationID == "" {
			m.ConversationID = c.conversationID
		}
		c.emit(Event{Kind: EventMessage, Epoch: epoch, Message: m})
	case protocol.TypeTypingIndicator:
		c.emit(Event{Kind: EventTyping, Epoch: epoch, AccountID: f.UserID, IsTyping: f.Typing()})
	case protocol.TypeOnlineMembers:
		c.emit(Event{Kind: EventPresence, Epoch: epoch, Members: f.Members})
	case protocol.TypeError:
		c.emit(Event{Kind: EventError, Epoch: epoch, Detail: f.Detail})
	default:
		c.log.Debug("ignoring client-bound frame", "type", f.Type)
	}
}

func (c *Conn) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.epoch == epoch
}

// lost handles the end of a link that the caller did not close.
func (c *Conn) lost(l *link, err error) {
	c.mu.Lock()
	if c.closed || c.epoch != l.epoch {
		c.mu.Unlock()
		return
	}
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == protocol.CloseMembershipRevoked {
		c.reject(l.epoch, ce.Code)
		return
	}
	c.retry(l.epoch, err)
}

func (c *Conn) retry(epoch uint64, cause error) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	delay, ok := c.backoff.next()
	if !ok {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.log.Warn("giving up reconnecting", "err", cause)
		c.emitState(epoch, StateDisconnected)
		c.emit(Event{Kind: EventError, Epoch: epoch, Detail: "connection lost"})
		return
	}
	c.epoch++
	next := c.epoch
	c.state = StateReconnecting
	c.timer = c.clock.AfterFunc(delay, func() { c.redial(next) })
	c.mu.Unlock()

	c.log.Info("connection lost, reconnecting", "delay", delay, "err", cause)
	c.emitState(next, StateReconnecting)
}

func (c *Conn) redial(epoch uint64) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	ctx := c.ctx
	c.mu.Unlock()
	c.emitState(epoch, StateConnecting)

	ws, err := c.dial(ctx)
	switch {
	case errors.Is(err, ErrRejected):
		c.reject(epoch, protocol.CloseMembershipRevoked)
	case errors.Is(err, ErrUnauthorized):
		c.mu.Lock()
		current := !c.closed && c.epoch == epoch
		if current {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if current {
			c.emitState(epoch, StateDisconnected)
			c.emit(Event{Kind: EventError, Epoch: epoch, Detail: "authentication failed"})
		}
	case err != nil:
		c.retry(epoch, err)
	default:
		if !c.attach(epoch, ws) {
			ws.Close()
		}
	}
}

// reject moves the handle to the terminal Rejected state. The Rejected event
// is emitted at most once per handle.
func (c *Conn) reject(epoch uint64, code int) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateRejected
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l != nil {
		l.shutdown()
	}
	c.log.Warn("conversation access revoked", "code", code)
	c.emitState(epoch, StateRejected)
	c.emit(Event{Kind: EventRejected, Epoch: epoch, Code: code})
}

func (c *Conn) emitState(epoch uint64, s State) {
	c.emit(Event{Kind: EventStateChanged, Epoch: epoch, State: s})
}

func (c *Conn) emit(ev Event) {
	ev.ConversationID = c.conversationID
	c.events.emit(ev)
}
