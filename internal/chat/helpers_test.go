package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

var epoch0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id int, sender, content string) protocol.Message {
	return protocol.Message{
		ID:             fmt.Sprint(id),
		ConversationID: "c1",
		SenderID:       sender,
		Sender:         protocol.Sender{Name: sender},
		Content:        content,
		CreatedAt:      epoch0.Add(time.Duration(id) * time.Second),
	}
}

// fakeHistory serves a fixed conversation of n messages, newest first by
// skip, each page oldest first.
type fakeHistory struct {
	mu    sync.Mutex
	all   []protocol.Message
	calls [][2]int
	err   error
	// gate, when set, blocks every fetch until it is closed.
	gate chan struct{}
}

func newFakeHistory(n int) *fakeHistory {
	h := &fakeHistory{}
	for i := 1; i <= n; i++ {
		h.all = append(h.all, msg(i, "u2", fmt.Sprintf("m%d", i)))
	}
	return h
}

func (h *fakeHistory) FetchHistory(ctx context.Context, _ string, skip, limit int) ([]protocol.Message, error) {
	h.mu.Lock()
	h.calls = append(h.calls, [2]int{skip, limit})
	gate, err := h.gate, h.err
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	end := len(h.all) - skip
	if end <= 0 {
		return nil, nil
	}
	start := max(end-limit, 0)
	return append([]protocol.Message(nil), h.all[start:end]...), nil
}

func (h *fakeHistory) Calls() [][2]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][2]int(nil), h.calls...)
}

type typingRecorder struct {
	mu    sync.Mutex
	sent  []bool
	times []time.Time
	now   func() time.Time
}

func (r *typingRecorder) SendTyping(isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, isTyping)
	if r.now != nil {
		r.times = append(r.times, r.now())
	}
}
