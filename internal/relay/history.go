package relay

import (
	"net/http"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/httpx"
	"github.com/ageniuscoder/mmchat/chatcore/internal/protocol"
	"github.com/ageniuscoder/mmchat/chatcore/internal/utils"
	"github.com/gin-gonic/gin"
)

type pageReq struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
	Skip  int `form:"skip" binding:"omitempty,min=0"`
}

// history serves GET /api/chat/:id/messages. skip counts back from the
// newest message; each page is returned oldest first.
func (s *Server) history(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, ok := parseID(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	var q pageReq
	if err := c.ShouldBindQuery(&q); err != nil {
		httpx.Err(c, http.StatusBadRequest, utils.BindErr(err))
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	if !s.requireMember(c, cid, uid) {
		return
	}

	rows, err := s.Store.Messages(c.Request.Context(), cid, q.Skip, q.Limit)
	if err != nil {
		httpx.Internal(c, s.Log, "history", err, "conversation", cid)
		return
	}
	list := make([]protocol.Message, 0, len(rows))
	for _, m := range rows {
		list = append(list, wireMessage(m))
	}
	httpx.OK(c, gin.H{"messages": list})
}

// requireMember writes 403 and reports false when uid is not in the
// conversation.
func (s *Server) requireMember(c *gin.Context, cid, uid int64) bool {
	ok, err := s.Store.IsMember(c.Request.Context(), cid, uid)
	if err != nil {
		httpx.Internal(c, s.Log, "membership check", err, "conversation", cid)
		return false
	}
	if !ok {
		httpx.Err(c, http.StatusForbidden, "not a participant")
		return false
	}
	return true
}
