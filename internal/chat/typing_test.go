package chat

import (
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingDebounce(t *testing.T) {
	clk := clock.NewFake(epoch0)
	rec := &typingRecorder{now: clk.Now}
	d := NewTypingDebouncer(rec, 1200*time.Millisecond, clk)

	text := ""
	var last time.Time
	for i := 0; i <= 10; i++ {
		if i > 0 {
			clk.Advance(200 * time.Millisecond)
		}
		text += "a"
		d.OnLocalInput(text)
		last = clk.Now()
	}
	assert.Equal(t, []bool{true}, rec.sent)

	clk.Advance(1199 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.sent)
	clk.Advance(time.Millisecond)
	require.Equal(t, []bool{true, false}, rec.sent)
	assert.Equal(t, last.Add(1200*time.Millisecond), rec.times[1])
	assert.Equal(t, epoch0, rec.times[0])

	clk.Advance(10 * time.Second)
	assert.Len(t, rec.sent, 2)
}

func TestTypingNewBurstAfterIdle(t *testing.T) {
	clk := clock.NewFake(epoch0)
	rec := &typingRecorder{}
	d := NewTypingDebouncer(rec, time.Second, clk)

	d.OnLocalInput("a")
	clk.Advance(2 * time.Second)
	d.OnLocalInput("ab")
	assert.Equal(t, []bool{true, false, true}, rec.sent)
	assert.True(t, d.Active())
}

func TestTypingClearedInputFlushes(t *testing.T) {
	clk := clock.NewFake(epoch0)
	rec := &typingRecorder{}
	d := NewTypingDebouncer(rec, time.Second, clk)

	d.OnLocalInput("a")
	d.OnLocalInput("")
	assert.Equal(t, []bool{true, false}, rec.sent)
	clk.Advance(5 * time.Second)
	assert.Equal(t, []bool{true, false}, rec.sent)

	d.Flush()
	assert.Len(t, rec.sent, 2)
}

func TestTypingResetIsSilent(t *testing.T) {
	clk := clock.NewFake(epoch0)
	rec := &typingRecorder{}
	d := NewTypingDebouncer(rec, time.Second, clk)
	d.OnLocalInput("a")
	d.Reset()
	clk.Advance(5 * time.Second)
	assert.Equal(t, []bool{true}, rec.sent)
	assert.False(t, d.Active())
}
