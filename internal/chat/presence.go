package chat

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
)

// Presence holds the ephemeral typing and online sets of one conversation.
// Both are advisory: they are rebuilt from transport events only, and a
// typing entry that is not refreshed expires after ttl.
type Presence struct {
	selfID string
	ttl    time.Duration
	clock  clock.Clock

	mu       sync.Mutex
	typing   map[string]*typingEntry
	online   []string
	onChange func()
}

type typingEntry struct {
	timer clock.Timer
}

func NewPresence(selfID string, ttl time.Duration, clk clock.Clock) *Presence {
	if clk == nil {
		clk = clock.New()
	}
	return &Presence{
		selfID: selfID,
		ttl:    ttl,
		clock:  clk,
		typing: make(map[string]*typingEntry),
	}
}

// OnChange registers fn to run when a typing entry expires on its own.
func (p *Presence) OnChange(fn func()) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// OnTypingEvent adds or removes accountID from the typing set. The local
// account is never added. It reports whether the set changed.
func (p *Presence) OnTypingEvent(accountID string, isTyping bool) bool {
	if accountID == "" || accountID == p.selfID {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.typing[accountID]
	if had {
		prev.timer.Stop()
	}
	if !isTyping {
		delete(p.typing, accountID)
		return had
	}
	e := &typingEntry{}
	e.timer = p.clock.AfterFunc(p.ttl, func() { p.expire(accountID, e) })
	p.typing[accountID] = e
	return !had
}

// OnPresenceSnapshot replaces the online set wholesale.
func (p *Presence) OnPresenceSnapshot(accountIDs []string) {
	online := slices.Clone(accountIDs)
	sort.Strings(online)
	online = slices.Compact(online)
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

func (p *Presence) Typing() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.typing))
	for id := range p.typing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Presence) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.online)
}

func (p *Presence) IsOnline(accountID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, found := slices.BinarySearch(p.online, accountID)
	return found
}

// Clear drops both sets and stops expiry timers.
func (p *Presence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.typing {
		e.timer.Stop()
		delete(p.typing, id)
	}
	p.online = nil
}

func (p *Presence) expire(accountID string, e *typingEntry) {
	p.mu.Lock()
	if p.typing[accountID] != e {
		p.mu.Unlock()
		return
	}
	delete(p.typing, accountID)
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
