package relay

import (
	"strconv"

	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func wireMessage(m storage.Message) protocol.Message {
	return protocol.Message{
		ID:             formatID(m.ID),
		ConversationID: formatID(m.ConversationID),
		SenderID:       formatID(m.SenderID),
		Sender:         protocol.Sender{Name: m.SenderName, Avatar: m.SenderAvatar},
		Content:        m.Content,
		CreatedAt:      m.SentAt,
	}
}
