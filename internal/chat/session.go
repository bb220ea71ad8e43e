package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// Notice is a one-line, non-blocking message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
}

const noticeBuffer = 16

// Client opens sessions for the account behind its token.
type Client struct {
	cfg     Config
	tokens  TokenSource
	selfID  string
	history HistoryClient
	log     *slog.Logger
}

func NewClient(cfg Config, tokens TokenSource, selfID string) *Client {
	cfg.defaults()
	return &Client{
		cfg:     cfg,
		tokens:  tokens,
		selfID:  selfID,
		history: NewHTTPHistory(cfg.ServerURL, tokens, cfg.HTTPClient),
		log:     cfg.Logger,
	}
}

// WithHistory replaces the history source, for servers that expose history
// elsewhere.
func (c *Client) WithHistory(h HistoryClient) *Client {
	cp := *c
	cp.history = h
	return &cp
}

// Join opens a session on an existing conversation: it connects, then loads
// the newest history page. A failed history load is reported as a notice,
// not an error.
func (c *Client) Join(ctx context.Context, conversationID string) (*Session, error) {
	s := c.newSession(conversationID)
	if err := s.conn.Open(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("join %s: %w", conversationID, err)
	}
	if err := s.pager.LoadFirst(ctx); err != nil && !isStale(err) {
		s.notify(NoticeError, "Could not load message history")
	}
	s.changed()
	return s, nil
}

func (c *Client) newSession(conversationID string) *Session {
	log := c.log.With("component", "session", "conversation", conversationID)
	conn := NewConn(c.cfg, conversationID, c.tokens.Token())
	view := NewView(conversationID, c.selfID, c.cfg.PageSize, c.cfg.ReconcileWindow, c.cfg.Clock)
	presence := NewPresence(c.selfID, c.cfg.TypingTTL, c.cfg.Clock)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:       conversationID,
		log:      log,
		conn:     conn,
		view:     view,
		pager:    NewPaginator(c.history, view, c.cfg.PageSize, c.log),
		presence: presence,
		typing:   NewTypingDebouncer(conn, c.cfg.TypingIdle, c.cfg.Clock),
		clock:    c.cfg.Clock,
		window:   c.cfg.ReconcileWindow,
		expiry:   make(map[string]clock.Timer),
		ctx:      ctx,
		cancel:   cancel,
		changes:  make(chan struct{}, 1),
		notices:  make(chan Notice, noticeBuffer),
	}
	presence.OnChange(s.changed)
	s.unsubscribe = conn.Subscribe(s.handle)
	return s
}

// Session is the per-conversation context: one connection, one view, one
// paginator and one presence aggregator, all discarded on Close.
type Session struct {
	id          string
	log         *slog.Logger
	conn        *Conn
	view        *View
	pager       *Paginator
	presence    *Presence
	typing      *TypingDebouncer
	clock       clock.Clock
	window      time.Duration
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	mu       sync.Mutex
	closed   bool
	rejected bool
	// expiry holds one timer per unconfirmed send, keyed by local id.
	expiry  map[string]clock.Timer
	changes chan struct{}
	notices chan Notice
}

func (s *Session) ConversationID() string { return s.id }

// Send shows content immediately as a pending entry and transmits it. It
// returns false, leaving nothing behind, when the content is invalid or the
// connection is not up. A pending entry the server never confirms, for
// example one refused with an error frame, is removed when the reconcile
// window closes.
func (s *Session) Send(content string) bool {
	if s.isClosed() || protocol.ValidateContent(content) != nil || s.conn.State() != StateConnected {
		return false
	}
	local := s.view.ApplyOptimisticSend(content)
	if !s.conn.Send(content) {
		s.view.DropOptimistic(local)
		return false
	}
	s.typing.Flush()
	s.expireLater(local)
	s.changed()
	return true
}

func (s *Session) expireLater(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.expiry[localID] = s.clock.AfterFunc(s.window, func() {
		s.mu.Lock()
		delete(s.expiry, localID)
		s.mu.Unlock()
		if s.view.ExpirePending() {
			s.log.Debug("unconfirmed send discarded", "local_id", localID)
			s.changed()
		}
	})
}

// Input feeds the current input text to the typing debouncer.
func (s *Session) Input(text string) {
	if s.isClosed() {
		return
	}
	s.typing.OnLocalInput(text)
}

// LoadMore fetches older history, typically on scroll-to-top.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	fetched, err := s.pager.LoadMore(ctx)
	switch {
	case err != nil && isStale(err):
		return fetched, nil
	case err != nil:
		s.notify(NoticeError, "Could not load older messages")
		return fetched, err
	case fetched:
		s.changed()
	}
	return fetched, nil
}

func (s *Session) Messages() []protocol.Message { return s.view.Messages() }

func (s *Session) Pending() []Pending { return s.view.Pending() }

func (s *Session) Cursor() Cursor { return s.view.Cursor() }

func (s *Session) Typing() []string { return s.presence.Typing() }

func (s *Session) Online() []string { return s.presence.Online() }

func (s *Session) State() State { return s.conn.State() }

// Rejected reports whether access was revoked; the UI should leave.
func (s *Session) Rejected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Changes receives a value whenever visible state may have changed. Signals
// coalesce; read the getters after each one. Closed on Close.
func (s *Session) Changes() <-chan struct{} { return s.changes }

// Notices carries user-facing notices. Closed on Close.
func (s *Session) Notices() <-chan Notice { return s.notices }

// Close ends the session on every exit path: it stops typing, drops any
// history fetch in flight and closes the connection without reconnecting.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.expiry {
		t.Stop()
		delete(s.expiry, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.typing.Reset()
	s.pager.Cancel()
	s.unsubscribe()
	s.conn.Close()
	s.presence.Clear()

	s.mu.Lock()
	close(s.changes)
	close(s.notices)
	s.mu.Unlock()
}

func (s *Session) handle(ev Event) {
	if ev.ConversationID != s.id || s.isClosed() {
		return
	}
	switch ev.Kind {
	case EventMessage:
		if s.view.ApplyLiveMessage(ev.Message) {
			s.changed()
		}
	case EventTyping:
		if s.presence.OnTypingEvent(ev.AccountID, ev.IsTyping) {
			s.changed()
		}
	case EventPresence:
		s.presence.OnPresenceSnapshot(ev.Members)
		s.changed()
	case EventError:
		s.log.Warn("server error", "detail", ev.Detail)
		s.notify(NoticeError, ev.Detail)
	case EventReconnected:
		s.notify(NoticeInfo, "Reconnected")
		go s.reload()
	case EventRejected:
		s.mu.Lock()
		s.rejected = true
		s.mu.Unlock()
		s.typing.Reset()
		s.pager.Cancel()
		s.notify(NoticeError, "You no longer have access to this conversation")
		s.changed()
	case EventStateChanged:
		if ev.State == StateReconnecting {
			s.notify(NoticeWarn, "Connection lost, reconnecting")
		}
		s.changed()
	}
}

// reload rebuilds the view from the newest page after a reconnect, picking
// up messages missed while the transport was down.
func (s *Session) reload() {
	if err := s.pager.LoadFirst(s.ctx); err != nil {
		if !isStale(err) && !s.isClosed() {
			s.notify(NoticeError, "Could not refresh messages")
		}
		return
	}
	s.changed()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) notify(level NoticeLevel, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notices <- Notice{Level: level, Text: text}:
	default:
		s.log.Debug("notice dropped", "text", text)
	}
}

// Switcher keeps at most one active session. Switching closes the previous
// conversation before the next one is joined.
type Switcher struct {
	client *Client

	switchMu sync.Mutex
	mu       sync.Mutex
	active   *Session
}

func NewSwitcher(client *Client) *Switcher {
	return &Switcher{client: client}
}

func (w *Switcher) Switch(ctx context.Context, conversationID string) (*Session, error) {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	prev := w.active
	w.active = nil
	w.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	s, err := w.client.Join(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.active = s
	w.mu.Unlock()
	return s, nil
}

func (w *Switcher) Active() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *Switcher) Close() {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()
	w.mu.Lock()
	prev := w.active
	w.active = nil
	w.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}
