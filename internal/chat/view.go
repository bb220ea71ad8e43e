package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/google/uuid"
)

// Cursor tracks history paging for a view.
type Cursor struct {
	Page      int // pages loaded so far
	PageSize  int
	HasMore   bool
	Retrieved int // messages returned by history fetches
}

// Pending is a locally authored message that the server has not echoed yet.
type Pending struct {
	LocalID string
	Content string
	SentAt  time.Time
}

// View is the ordered, de-duplicated message sequence of one conversation.
// Confirmed messages are kept sorted by (created_at, id); pending optimistic
// entries are kept apart and always render after them.
type View struct {
	conversationID string
	selfID         string
	clock          clock.Clock
	window         time.Duration

	mu       sync.RWMutex
	messages []protocol.Message
	ids      map[string]struct{}
	pending  []Pending
	cursor   Cursor
}

func NewView(conversationID, selfID string, pageSize int, window time.Duration, clk clock.Clock) *View {
	if clk == nil {
		clk = clock.New()
	}
	return &View{
		conversationID: conversationID,
		selfID:         selfID,
		clock:          clk,
		window:         window,
		ids:            make(map[string]struct{}),
		cursor:         Cursor{PageSize: pageSize},
	}
}

func (v *View) ConversationID() string { return v.conversationID }

// ApplyLiveMessage inserts a pushed message. A message id that is already
// present is ignored, so duplicate deliveries are harmless. It reports
// whether the view changed.
func (v *View) ApplyLiveMessage(m protocol.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	expired := v.expirePendingLocked()
	if _, dup := v.ids[m.ID]; dup || m.ID == "" {
		return expired
	}
	v.reconcileLocked(m)
	v.insertLocked(m)
	return true
}

// ApplyHistoryPage merges a page of older messages. With isFirstPage the
// confirmed sequence is rebuilt from the page, keeping only messages newer
// than the newest one in the page; those arrived live while it was in flight.
// It returns the number of messages added.
func (v *View) ApplyHistoryPage(page []protocol.Message, isFirstPage bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if isFirstPage {
		var newest *protocol.Message
		for i := range page {
			if newest == nil || protocol.CompareMessages(page[i], *newest) > 0 {
				newest = &page[i]
			}
		}
		kept := v.messages[:0:0]
		for _, m := range v.messages {
			if newest == nil || protocol.CompareMessages(m, *newest) > 0 {
				kept = append(kept, m)
			}
		}
		v.messages = kept
		v.ids = make(map[string]struct{}, len(kept)+len(page))
		for _, m := range kept {
			v.ids[m.ID] = struct{}{}
		}
	}
	v.expirePendingLocked()

	added := 0
	for _, m := range page {
		if _, dup := v.ids[m.ID]; dup || m.ID == "" {
			continue
		}
		v.ids[m.ID] = struct{}{}
		v.messages = append(v.messages, m)
		v.reconcileLocked(m)
		added++
	}
	slices.SortStableFunc(v.messages, protocol.CompareMessages)
	return added
}

// ApplyOptimisticSend records content the local user is sending and returns
// the local id of the provisional entry. The entry is replaced when the
// server echo arrives: same sender, same content, within the reconcile
// window. An entry still unconfirmed when the window closes is discarded.
func (v *View) ApplyOptimisticSend(content string) string {
	id := uuid.NewString()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, Pending{LocalID: id, Content: content, SentAt: v.clock.Now()})
	return id
}

// DropOptimistic removes a provisional entry, for sends that never left.
func (v *View) DropOptimistic(localID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.pending {
		if p.LocalID == localID {
			v.pending = slices.Delete(v.pending, i, i+1)
			return true
		}
	}
	return false
}

// ExpirePending discards provisional entries whose reconcile window has
// closed. It reports whether any were removed.
func (v *View) ExpirePending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expirePendingLocked()
}

// Messages returns a copy of the confirmed sequence, oldest first.
func (v *View) Messages() []protocol.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.messages)
}

func (v *View) Pending() []Pending {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.pending)
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.messages)
}

func (v *View) Cursor() Cursor {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cursor
}

func (v *View) setCursor(c Cursor) {
	v.mu.Lock()
	v.cursor = c
	v.mu.Unlock()
}

func (v *View) insertLocked(m protocol.Message) {
	v.ids[m.ID] = struct{}{}
	n := len(v.messages)
	if n == 0 || protocol.CompareMessages(v.messages[n-1], m) < 0 {
		v.messages = append(v.messages, m)
		return
	}
	i, _ := slices.BinarySearchFunc(v.messages, m, protocol.CompareMessages)
	v.messages = slices.Insert(v.messages, i, m)
}

func (v *View) reconcileLocked(m protocol.Message) {
	if v.selfID == "" || m.SenderID != v.selfID {
		return
	}
	now := v.clock.Now()
	for i, p := range v.pending {
		if !m.CreatedAt.IsZero() && m.CreatedAt.Before(p.SentAt.Add(-v.window)) {
			continue
		}
		if p.Content == m.Content && now.Sub(p.SentAt) < v.window {
			v.pending = slices.Delete(v.pending, i, i+1)
			return
		}
	}
}

func (v *View) expirePendingLocked() bool {
	now := v.clock.Now()
	n := len(v.pending)
	v.pending = slices.DeleteFunc(v.pending, func(p Pending) bool {
		return now.Sub(p.SentAt) >= v.window
	})
	return len(v.pending) != n
}
