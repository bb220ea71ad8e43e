package protocol

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("group message", func(t *testing.T) {
		f, err := Decode([]byte(`{"type":"group_message","data":{"id":"7","sender_id":"2","content":"hi","created_at":"2025-01-02T03:04:05Z"}}`))
		require.NoError(t, err)
		require.NotNil(t, f.Data)
		assert.Equal(t, "7", f.Data.ID)
		assert.Equal(t, "hi", f.Data.Content)
	})

	t.Run("typing indicator", func(t *testing.T) {
		f, err := Decode([]byte(`{"type":"typing_indicator","user_id":"3","is_typing":false}`))
		require.NoError(t, err)
		assert.Equal(t, "3", f.UserID)
		assert.False(t, f.Typing())
	})

	t.Run("empty presence snapshot", func(t *testing.T) {
		f, err := Decode([]byte(`{"type":"online_members"}`))
		require.NoError(t, err)
		assert.Empty(t, f.Members)
	})

	malformed := map[string]string{
		"not json":             `{"type":`,
		"missing type":         `{"content":"x"}`,
		"unknown type":         `{"type":"read_receipt"}`,
		"message without data": `{"type":"group_message"}`,
		"message without id":   `{"type":"group_message","data":{"content":"x"}}`,
		"indicator no user":    `{"type":"typing_indicator","is_typing":true}`,
		"typing without flag":  `{"type":"typing"}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncodeTypingKeepsFalse(t *testing.T) {
	b, err := Typing(false).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"typing","is_typing":false}`, string(b))

	b, err = SendMessage("hello").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send_message","content":"hello"}`, string(b))
}

func TestValidateContent(t *testing.T) {
	assert.Error(t, ValidateContent(""))
	assert.Error(t, ValidateContent("   \n"))
	assert.NoError(t, ValidateContent("a"))
	assert.NoError(t, ValidateContent(strings.Repeat("a", MaxContentLength)))
	assert.Error(t, ValidateContent(strings.Repeat("a", MaxContentLength+1)))
	// runes, not bytes
	assert.NoError(t, ValidateContent(strings.Repeat("é", MaxContentLength)))
}

func TestCompareMessages(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Message{ID: "9", CreatedAt: at}
	b := Message{ID: "10", CreatedAt: at}
	assert.Equal(t, -1, CompareMessages(a, b), "numeric ids compare as numbers")

	c := Message{ID: "1", CreatedAt: at.Add(time.Second)}
	assert.Equal(t, 1, CompareMessages(c, b), "created_at wins over id")

	assert.Equal(t, -1, CompareIDs("abc", "abd"))
	assert.Equal(t, 0, CompareIDs("42", "42"))
}

func TestCompareIDsMixedKindsIsTransitive(t *testing.T) {
	assert.Equal(t, -1, CompareIDs("9", "10"))
	assert.Equal(t, -1, CompareIDs("10", "1a"))
	assert.Equal(t, -1, CompareIDs("9", "1a"), "integers sort before other ids")
	assert.Equal(t, 1, CompareIDs("1a", "9"))

	ids := []string{"1a", "10", "b", "9", "-3", "10a", "2"}
	for _, a := range ids {
		for _, b := range ids {
			for _, c := range ids {
				if CompareIDs(a, b) < 0 && CompareIDs(b, c) < 0 {
					assert.Negative(t, CompareIDs(a, c), "%s < %s < %s", a, b, c)
				}
			}
			assert.Equal(t, -CompareIDs(b, a), CompareIDs(a, b))
		}
	}

	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, CompareIDs)
	assert.Equal(t, []string{"-3", "2", "9", "10", "10a", "1a", "b"}, sorted)
}
