// Package chat is the client-side chat core: one duplex connection per open
// conversation, an ordered de-duplicated message view, history paging, and
// typing/presence aggregation, composed per conversation by Session.
package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ageniuscoder/mmchat/chatcore/internal/clock"
	"github.com/gorilla/websocket"
)

type Config struct {
	// ServerURL is the http(s) base of the chat server. The websocket scheme
	// is derived from it.
	ServerURL string

	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectFactor      float64
	MaxReconnectAttempts int
	DisableJitter        bool

	TypingIdle time.Duration
	TypingTTL  time.Duration

	PageSize        int
	ReconcileWindow time.Duration

	PongWait   time.Duration
	PingPeriod time.Duration

	Clock      clock.Clock
	Logger     *slog.Logger
	Dialer     *websocket.Dialer
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ReconnectFactor == 0 {
		c.ReconnectFactor = 2
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 6
	}
	if c.TypingIdle == 0 {
		c.TypingIdle = 1200 * time.Millisecond
	}
	if c.TypingTTL == 0 {
		c.TypingTTL = 5 * time.Second
	}
	if c.PageSize == 0 {
		c.PageSize = 50
	}
	if c.ReconcileWindow == 0 {
		c.ReconcileWindow = 10 * time.Second
	}
	if c.PongWait == 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod == 0 {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
}
