package chat

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(msgs []protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestApplyLiveMessageIdempotent(t *testing.T) {
	v := NewView("c1", "me", 50, 10*time.Second, clock.NewFake(epoch0))

	assert.True(t, v.ApplyLiveMessage(msg(1, "u2", "hi")))
	once := v.Messages()
	assert.False(t, v.ApplyLiveMessage(msg(1, "u2", "hi")))
	assert.Equal(t, once, v.Messages())
	assert.False(t, v.ApplyLiveMessage(protocol.Message{Content: "no id"}))
}

func TestLiveMessageOutOfOrder(t *testing.T) {
	v := NewView("c1", "me", 50, 10*time.Second, clock.NewFake(epoch0))
	v.ApplyLiveMessage(msg(3, "u2", "c"))
	v.ApplyLiveMessage(msg(1, "u2", "a"))
	v.ApplyLiveMessage(msg(2, "u2", "b"))
	assert.Equal(t, []string{"1", "2", "3"}, ids(v.Messages()))
}

func TestSameTimestampOrdersByID(t *testing.T) {
	v := NewView("c1", "me", 50, 10*time.Second, clock.NewFake(epoch0))
	a, b := msg(10, "u2", "a"), msg(9, "u2", "b")
	b.CreatedAt = a.CreatedAt
	v.ApplyLiveMessage(a)
	v.ApplyLiveMessage(b)
	assert.Equal(t, []string{"9", "10"}, ids(v.Messages()))
}

func TestMergeOrderAnyInterleaving(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	all := make([]protocol.Message, 40)
	for i := range all {
		all[i] = msg(i+1, "u2", "x")
	}

	for round := 0; round < 50; round++ {
		v := NewView("c1", "me", 10, 10*time.Second, clock.NewFake(epoch0))
		order := r.Perm(len(all))
		for i := 0; i < len(order); {
			if r.IntN(2) == 0 {
				v.ApplyLiveMessage(all[order[i]])
				i++
				continue
			}
			n := min(1+r.IntN(5), len(order)-i)
			page := make([]protocol.Message, 0, n+1)
			for _, k := range order[i : i+n] {
				page = append(page, all[k])
			}
			// overlap with something already applied
			page = append(page, all[order[r.IntN(i+n)]])
			v.ApplyHistoryPage(page, false)
			i += n
		}

		got := v.Messages()
		require.Len(t, got, len(all))
		seen := map[string]bool{}
		for i, m := range got {
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
			if i > 0 {
				assert.Negative(t, protocol.CompareMessages(got[i-1], m))
			}
		}
	}
}

func TestOptimisticSendReconciled(t *testing.T) {
	clk := clock.NewFake(epoch0)
	v := NewView("c1", "me", 50, 10*time.Second, clk)

	local := v.ApplyOptimisticSend("hello")
	require.Len(t, v.Pending(), 1)
	assert.Equal(t, local, v.Pending()[0].LocalID)

	// same text from someone else does not confirm our send
	other := msg(1, "u2", "hello")
	other.CreatedAt = clk.Now()
	v.ApplyLiveMessage(other)
	assert.Len(t, v.Pending(), 1)

	clk.Advance(time.Second)
	echo := msg(2, "me", "hello")
	echo.CreatedAt = clk.Now()
	v.ApplyLiveMessage(echo)
	assert.Empty(t, v.Pending())
	assert.Equal(t, []string{"1", "2"}, ids(v.Messages()))
}

func TestOptimisticSendOutsideWindow(t *testing.T) {
	clk := clock.NewFake(epoch0)
	v := NewView("c1", "me", 50, 10*time.Second, clk)
	v.ApplyOptimisticSend("hello")

	// a late echo is shown once; the stale entry does not linger beside it
	clk.Advance(11 * time.Second)
	echo := msg(5, "me", "hello")
	echo.CreatedAt = clk.Now()
	assert.True(t, v.ApplyLiveMessage(echo))
	assert.Empty(t, v.Pending())
	assert.Equal(t, []string{"5"}, ids(v.Messages()))
}

func TestUnconfirmedSendExpires(t *testing.T) {
	clk := clock.NewFake(epoch0)
	v := NewView("c1", "me", 50, 10*time.Second, clk)
	v.ApplyOptimisticSend("never echoed")

	clk.Advance(9 * time.Second)
	assert.False(t, v.ExpirePending())
	require.Len(t, v.Pending(), 1)

	clk.Advance(time.Second)
	assert.True(t, v.ExpirePending())
	assert.Empty(t, v.Pending())
	assert.False(t, v.ExpirePending())

	// a duplicate delivery still reports the expiry as a change
	v.ApplyLiveMessage(msg(1, "u2", "x"))
	v.ApplyOptimisticSend("again")
	clk.Advance(time.Hour)
	assert.True(t, v.ApplyLiveMessage(msg(1, "u2", "x")))
	assert.Empty(t, v.Pending())
}

func TestOldHistoryDoesNotConfirmNewSend(t *testing.T) {
	clk := clock.NewFake(epoch0.Add(time.Hour))
	v := NewView("c1", "me", 50, 10*time.Second, clk)
	v.ApplyOptimisticSend("ok")

	old := msg(1, "me", "ok")
	v.ApplyHistoryPage([]protocol.Message{old}, true)
	assert.Len(t, v.Pending(), 1)
}

func TestDropOptimistic(t *testing.T) {
	v := NewView("c1", "me", 50, 10*time.Second, clock.NewFake(epoch0))
	id := v.ApplyOptimisticSend("x")
	assert.True(t, v.DropOptimistic(id))
	assert.False(t, v.DropOptimistic(id))
	assert.Empty(t, v.Pending())
}

func TestFirstPageKeepsNewerLiveMessages(t *testing.T) {
	v := NewView("c1", "me", 50, 10*time.Second, clock.NewFake(epoch0))
	v.ApplyLiveMessage(msg(1, "u2", "stale"))
	v.ApplyLiveMessage(msg(9, "u2", "arrived during fetch"))

	added := v.ApplyHistoryPage([]protocol.Message{msg(4, "u2", "a"), msg(5, "u2", "b")}, true)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"4", "5", "9"}, ids(v.Messages()))
}
