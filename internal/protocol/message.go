package protocol

import (
	"cmp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxContentLength bounds message content, counted in runes.
const MaxContentLength = 1000

var validate = validator.New()

// Sender is a denormalized snapshot of the author taken when the message was
// stored. It is not refreshed when the profile changes.
type Sender struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type content struct {
	Text string `validate:"required,max=1000"`
}

// ValidateContent reports whether s may be sent: not blank and no longer
// than MaxContentLength runes.
func ValidateContent(s string) error {
	if strings.TrimSpace(s) == "" {
		return validate.Struct(content{})
	}
	return validate.Struct(content{Text: s})
}

// CompareMessages orders by created_at, then by id (see CompareIDs).
func CompareMessages(a, b Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return CompareIDs(a.ID, b.ID)
}

// CompareIDs is a total order over ids: integer ids compare numerically and
// sort before every non-integer id, which compare lexicographically.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
