package chat

import (
	"context"
	"fmt"
	"net/http"
)

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

type Member struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// Conversation is supplied by the roster service. The chat core joins
// existing conversations only; it never creates one.
type Conversation struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Kind       ConversationKind `json:"kind"`
	MaxMembers int              `json:"max_members,omitempty"`
	Members    []Member         `json:"members"`
}

// Validate checks the membership invariants: a direct conversation has
// exactly two members, a group between two and MaxMembers.
func (c Conversation) Validate() error {
	n := len(c.Members)
	switch c.Kind {
	case KindDirect:
		if n != 2 {
			return fmt.Errorf("direct conversation %s has %d members", c.ID, n)
		}
	case KindGroup:
		if n < 2 || (c.MaxMembers > 0 && n > c.MaxMembers) {
			return fmt.Errorf("group %s has %d members, want 2..%d", c.ID, n, c.MaxMembers)
		}
	default:
		return fmt.Errorf("conversation %s has unknown kind %q", c.ID, c.Kind)
	}
	return nil
}

// RosterClient reads membership on demand. It is not on the live message
// path.
type RosterClient struct {
	api api
}

func NewRosterClient(baseURL string, tokens TokenSource, client *http.Client) *RosterClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &RosterClient{api: api{base: baseURL, tokens: tokens, http: client}}
}

func (r *RosterClient) Members(ctx context.Context, conversationID string) (Conversation, error) {
	var c Conversation
	if err := r.api.getJSON(ctx, nil, &c, "api", "conversations", conversationID, "members"); err != nil {
		return Conversation{}, err
	}
	if err := c.Validate(); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// IdentityClient resolves the account behind the current token.
type IdentityClient struct {
	api api
}

func NewIdentityClient(baseURL string, tokens TokenSource, client *http.Client) *IdentityClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &IdentityClient{api: api{base: baseURL, tokens: tokens, http: client}}
}

func (i *IdentityClient) Me(ctx context.Context) (Account, error) {
	var a Account
	if err := i.api.getJSON(ctx, nil, &a, "api", "me"); err != nil {
		return Account{}, err
	}
	return a, nil
}
