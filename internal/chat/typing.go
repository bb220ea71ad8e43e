package chat

import (
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
)

type TypingSender interface {
	SendTyping(isTyping bool)
}

// TypingDebouncer turns keystrokes into typing signals: true once at the
// start of a burst, false once the input has been idle for the idle window.
// Every keystroke restarts the idle window.
type TypingDebouncer struct {
	sender TypingSender
	clock  clock.Clock
	idle   time.Duration

	mu     sync.Mutex
	active bool
	timer  clock.Timer
	gen    uint64
}

func NewTypingDebouncer(sender TypingSender, idle time.Duration, clk clock.Clock) *TypingDebouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &TypingDebouncer{sender: sender, clock: clk, idle: idle}
}

// OnLocalInput is called with the input text after every edit. Clearing the
// input ends the burst immediately.
func (d *TypingDebouncer) OnLocalInput(text string) {
	if text == "" {
		d.Flush()
		return
	}
	d.mu.Lock()
	start := !d.active
	d.active = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.idle, func() { d.idleElapsed(gen) })
	d.mu.Unlock()

	if start {
		d.sender.SendTyping(true)
	}
}

// Flush ends the current burst now, sending false if a burst was active.
func (d *TypingDebouncer) Flush() {
	if d.stop() {
		d.sender.SendTyping(false)
	}
}

// Reset ends the current burst without signalling, for teardown.
func (d *TypingDebouncer) Reset() {
	d.stop()
}

func (d *TypingDebouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *TypingDebouncer) stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return false
	}
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return true
}

func (d *TypingDebouncer) idleElapsed(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()
	d.sender.SendTyping(false)
}
