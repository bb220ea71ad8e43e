package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
)

const maxResponseSize = 4 << 20

// TokenSource supplies the current bearer credential. The chat core treats
// it as opaque and never refreshes it.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// api is the request/response side of the chat server.
type api struct {
	base   string
	tokens TokenSource
	http   *http.Client
}

func (a api) getJSON(ctx context.Context, query url.Values, out any, path ...string) error {
	u, err := url.Parse(a.base)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	u = u.JoinPath(path...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if a.tokens != nil {
		req.Header.Set("Authorization", "Bearer "+a.tokens.Token())
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", u.Path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error any `json:"error"`
		}
		_ = json.NewDecoder(body).Decode(&e)
		msg := ""
		if e.Error != nil {
			msg = fmt.Sprint(e.Error)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u.Path, err)
	}
	return nil
}

// HistoryClient fetches a window of stored messages, newest first by skip.
type HistoryClient interface {
	FetchHistory(ctx context.Context, conversationID string, skip, limit int) ([]protocol.Message, error)
}

// HTTPHistory reads GET /api/chat/{id}/messages?skip=&limit=.
type HTTPHistory struct {
	api api
}

func NewHTTPHistory(baseURL string, tokens TokenSource, client *http.Client) *HTTPHistory {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHistory{api: api{base: baseURL, tokens: tokens, http: client}}
}

func (h *HTTPHistory) FetchHistory(ctx context.Context, conversationID string, skip, limit int) ([]protocol.Message, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := h.api.getJSON(ctx, q, &out, "api", "chat", conversationID, "messages"); err != nil {
		return nil, err
	}
	return out.Messages, nil
}
