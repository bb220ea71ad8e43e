package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

type Page struct {
	Messages []protocol.Message
	// HasMore is inferred: a full page means there may be another one. When
	// the history is an exact multiple of the page size this costs one extra
	// empty fetch.
	HasMore bool
}

// LoadPage performs one history request. It has no effect on any
// connection.
func LoadPage(ctx context.Context, h HistoryClient, conversationID string, skip, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, fmt.Errorf("load page: invalid limit %d", limit)
	}
	msgs, err := h.FetchHistory(ctx, conversationID, skip, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{Messages: msgs, HasMore: len(msgs) >= limit}, nil
}

// Paginator loads older messages into a View on demand. At most one fetch is
// in flight; results of a cancelled or superseded fetch are discarded and a
// failed fetch leaves the view untouched.
type Paginator struct {
	history  HistoryClient
	view     *View
	pageSize int
	log      *slog.Logger

	mu       sync.Mutex
	inflight bool
	gen      uint64
	cancel   context.CancelFunc
}

func NewPaginator(history HistoryClient, view *View, pageSize int, log *slog.Logger) *Paginator {
	if log == nil {
		log = slog.Default()
	}
	return &Paginator{
		history:  history,
		view:     view,
		pageSize: pageSize,
		log:      log.With("component", "paginator", "conversation", view.ConversationID()),
	}
}

// LoadFirst fetches the newest page and rebuilds the view from it. It
// supersedes any fetch in flight.
func (p *Paginator) LoadFirst(ctx context.Context) error {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.inflight = true
	p.mu.Unlock()
	defer cancel()

	page, err := LoadPage(ctx, p.history, p.view.ConversationID(), 0, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return ErrStale
	}
	p.inflight = false
	p.cancel = nil
	if err != nil {
		p.log.Warn("history fetch failed", "skip", 0, "err", err)
		return fmt.Errorf("load history: %w", err)
	}
	p.view.ApplyHistoryPage(page.Messages, true)
	p.view.setCursor(Cursor{
		Page:      1,
		PageSize:  p.pageSize,
		HasMore:   page.HasMore,
		Retrieved: len(page.Messages),
	})
	return nil
}

// LoadMore fetches the next older page. It reports whether a fetch was
// performed: nothing is fetched while another fetch is in flight or once the
// history is exhausted. Before any page has loaded it fetches the first one.
func (p *Paginator) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.inflight {
		p.mu.Unlock()
		return false, nil
	}
	cur := p.view.Cursor()
	if cur.Page == 0 {
		p.mu.Unlock()
		return true, p.LoadFirst(ctx)
	}
	if !cur.HasMore {
		p.mu.Unlock()
		return false, nil
	}
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.inflight = true
	p.mu.Unlock()
	defer cancel()

	skip := cur.Page * p.pageSize
	page, err := LoadPage(ctx, p.history, p.view.ConversationID(), skip, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return true, ErrStale
	}
	p.inflight = false
	p.cancel = nil
	if err != nil {
		p.log.Warn("history fetch failed", "skip", skip, "err", err)
		return true, fmt.Errorf("load older messages: %w", err)
	}
	p.view.ApplyHistoryPage(page.Messages, false)
	p.view.setCursor(Cursor{
		Page:      cur.Page + 1,
		PageSize:  p.pageSize,
		HasMore:   page.HasMore,
		Retrieved: cur.Retrieved + len(page.Messages),
	})
	return true, nil
}

// Cancel abandons any fetch in flight; its result will be dropped.
func (p *Paginator) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.inflight = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Loading reports whether a fetch is in flight.
func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

func isStale(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, context.Canceled)
}
