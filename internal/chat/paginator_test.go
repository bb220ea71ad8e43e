package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPager(h HistoryClient, pageSize int) (*Paginator, *View) {
	v := NewView("c1", "me", pageSize, 10*time.Second, clock.NewFake(epoch0))
	return NewPaginator(h, v, pageSize, nil), v
}

func TestLoadPageHasMore(t *testing.T) {
	h := newFakeHistory(5)
	p, err := LoadPage(context.Background(), h, "c1", 0, 5)
	require.NoError(t, err)
	assert.True(t, p.HasMore)

	p, err = LoadPage(context.Background(), h, "c1", 0, 6)
	require.NoError(t, err)
	assert.False(t, p.HasMore)
	assert.Len(t, p.Messages, 5)

	_, err = LoadPage(context.Background(), h, "c1", 0, 0)
	assert.Error(t, err)
}

func TestPagingScenario(t *testing.T) {
	ctx := context.Background()
	h := newFakeHistory(62)
	p, v := newPager(h, 50)

	require.NoError(t, p.LoadFirst(ctx))
	assert.Equal(t, 50, v.Len())
	assert.True(t, v.Cursor().HasMore)

	fetched, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, 62, v.Len())
	assert.False(t, v.Cursor().HasMore)
	assert.Equal(t, [][2]int{{0, 50}, {50, 50}}, h.Calls())

	msgs := v.Messages()
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "62", msgs[61].ID)

	v.ApplyLiveMessage(msg(63, "u2", "live"))
	msgs = v.Messages()
	require.Len(t, msgs, 63)
	assert.Equal(t, "63", msgs[62].ID)
}

func TestLoadMoreExhaustedIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newFakeHistory(3)
	p, _ := newPager(h, 50)
	require.NoError(t, p.LoadFirst(ctx))

	fetched, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Len(t, h.Calls(), 1)
}

func TestLoadMoreBeforeFirstPage(t *testing.T) {
	h := newFakeHistory(3)
	p, v := newPager(h, 50)
	fetched, err := p.LoadMore(context.Background())
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, 3, v.Len())
	assert.Equal(t, 1, v.Cursor().Page)
}

func TestLoadMoreWhileInFlight(t *testing.T) {
	ctx := context.Background()
	h := newFakeHistory(120)
	p, _ := newPager(h, 50)
	require.NoError(t, p.LoadFirst(ctx))

	h.mu.Lock()
	h.gate = make(chan struct{})
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.LoadMore(ctx)
	}()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	fetched, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, fetched)

	close(h.gate)
	<-done
	assert.Len(t, h.Calls(), 2)
}

func TestFailedFetchLeavesViewUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newFakeHistory(80)
	p, v := newPager(h, 50)
	require.NoError(t, p.LoadFirst(ctx))
	before := v.Messages()
	cur := v.Cursor()

	boom := errors.New("boom")
	h.mu.Lock()
	h.err = boom
	h.mu.Unlock()

	fetched, err := p.LoadMore(ctx)
	assert.True(t, fetched)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, v.Messages())
	assert.Equal(t, cur, v.Cursor())
	assert.False(t, p.Loading())

	h.mu.Lock()
	h.err = nil
	h.mu.Unlock()
	_, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, v.Len())
}

func TestCancelDiscardsResult(t *testing.T) {
	h := newFakeHistory(10)
	h.gate = make(chan struct{})
	p, v := newPager(h, 50)

	errc := make(chan error, 1)
	go func() { errc <- p.LoadFirst(context.Background()) }()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	p.Cancel()
	err := <-errc
	assert.True(t, isStale(err))
	assert.Zero(t, v.Len())
	assert.Zero(t, v.Cursor().Page)
}
