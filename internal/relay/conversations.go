package relay

import (
	"errors"
	"net/http"
	"slices"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/httpx"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	"github.com/ageniuscoder/mmchat/chatcore/internal/utils"
	"github.com/gin-gonic/gin"
)

type privateReq struct {
	OtherUserID int64 `json:"other_user_id" binding:"required,gt=0"`
}

type groupReq struct {
	Name      string  `json:"name" binding:"required,max=100"`
	MemberIDs []int64 `json:"member_ids" binding:"required,min=1"`
}

type addReq struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

type memberView struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

type conversationView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	MaxMembers int          `json:"max_members,omitempty"`
	Members    []memberView `json:"members,omitempty"`
}

func kind(isGroup bool) string {
	if isGroup {
		return "group"
	}
	return "direct"
}

func (s *Server) createOrGetPrivate(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req privateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, utils.BindErr(err))
		return
	}
	if req.OtherUserID == uid {
		httpx.Err(c, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}
	ctx := c.Request.Context()

	// find existing conversation
	if id, err := s.Store.FindDirect(ctx, uid, req.OtherUserID); err == nil {
		httpx.OK(c, gin.H{"conversation_id": formatID(id), "is_group": false})
		return
	}
	if _, err := s.Store.UserByID(ctx, req.OtherUserID); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid user id")
		return
	}

	id, err := s.Store.CreateConversation(ctx, "", false, 2, uid, []int64{req.OtherUserID})
	if err != nil {
		s.Log.Error("create conversation", "err", err)
		httpx.Err(c, http.StatusBadRequest, "create conversation failed")
		return
	}
	httpx.OK(c, gin.H{"conversation_id": formatID(id), "is_group": false})
}

func (s *Server) createGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req groupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, utils.BindErr(err))
		return
	}
	members := slices.DeleteFunc(slices.Clone(req.MemberIDs), func(id int64) bool { return id == uid })
	slices.Sort(members)
	members = slices.Compact(members)
	if n := len(members) + 1; n < 2 || n > s.MaxGroupMembers {
		httpx.Err(c, http.StatusBadRequest, "a group needs between 2 and "+formatID(int64(s.MaxGroupMembers))+" members")
		return
	}
	ctx := c.Request.Context()
	for _, id := range members {
		if _, err := s.Store.UserByID(ctx, id); err != nil {
			httpx.Err(c, http.StatusBadRequest, "invalid user id "+formatID(id))
			return
		}
	}

	cid, err := s.Store.CreateConversation(ctx, req.Name, true, s.MaxGroupMembers, uid, members)
	if err != nil {
		s.Log.Error("create group", "err", err)
		httpx.Err(c, http.StatusBadRequest, "create group failed")
		return
	}
	httpx.OK(c, gin.H{"conversation_id": formatID(cid), "is_group": true})
}

// requireAdmin writes 403 and reports false unless uid administers cid.
func (s *Server) requireAdmin(c *gin.Context, cid, uid int64, action string) bool {
	ok, err := s.Store.IsAdmin(c.Request.Context(), cid, uid)
	if err != nil {
		httpx.Internal(c, s.Log, "admin check", err, "conversation", cid)
		return false
	}
	if !ok {
		httpx.Err(c, http.StatusForbidden, "only admin can "+action+" participants")
		return false
	}
	return true
}

func (s *Server) addParticipant(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, ok := parseID(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if !s.requireAdmin(c, cid, uid, "add") {
		return
	}

	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, utils.BindErr(err))
		return
	}
	if _, err := s.Store.UserByID(c.Request.Context(), req.UserID); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid user id")
		return
	}

	err := s.Store.AddParticipant(c.Request.Context(), cid, req.UserID)
	switch {
	case errors.Is(err, storage.ErrGroupFull):
		httpx.Err(c, http.StatusConflict, "group is full")
		return
	case err != nil:
		s.Log.Error("add participant", "conversation", cid, "err", err)
		httpx.Err(c, http.StatusBadRequest, "add failed")
		return
	}
	httpx.OK(c, gin.H{"ok": true})
}

// removeParticipant lets an admin remove a member, or a member leave. Live
// sockets of the removed member are closed with the membership-revoked code.
func (s *Server) removeParticipant(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, ok := parseID(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	target, ok := parseID(c.Param("userId"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid user id")
		return
	}
	if target != uid && !s.requireAdmin(c, cid, uid, "remove") {
		return
	}

	err := s.Store.RemoveParticipant(c.Request.Context(), cid, target)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.Err(c, http.StatusNotFound, "not a participant")
		return
	case err != nil:
		s.Log.Error("remove participant", "conversation", cid, "err", err)
		httpx.Err(c, http.StatusBadRequest, "remove failed")
		return
	}
	s.Hub.Kick(cid, target)
	httpx.OK(c, gin.H{"ok": true})
}

func (s *Server) members(c *gin.Context) {
	uid := auth.MustUserID(c)
	cid, ok := parseID(c.Param("id"))
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if !s.requireMember(c, cid, uid) {
		return
	}
	ctx := c.Request.Context()
	conv, err := s.Store.ConversationByID(ctx, cid)
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "conversation not found")
		return
	}
	parts, err := s.Store.Participants(ctx, cid)
	if err != nil {
		httpx.Internal(c, s.Log, "members", err, "conversation", cid)
		return
	}

	view := conversationView{
		ID:      formatID(conv.ID),
		Name:    conv.Name,
		Kind:    kind(conv.IsGroup),
		Members: make([]memberView, 0, len(parts)),
	}
	if conv.IsGroup {
		view.MaxMembers = conv.MaxMembers
	}
	for _, p := range parts {
		role := "member"
		if p.IsAdmin {
			role = "admin"
		}
		name := p.DisplayName
		if name == "" {
			name = p.Username
		}
		view.Members = append(view.Members, memberView{AccountID: formatID(p.UserID), Name: name, Role: role})
	}
	httpx.OK(c, view)
}

func (s *Server) listMine(c *gin.Context) {
	uid := auth.MustUserID(c)

	convs, err := s.Store.ConversationsFor(c.Request.Context(), uid)
	if err != nil {
		httpx.Internal(c, s.Log, "list conversations", err, "user", uid)
		return
	}

	list := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		list = append(list, gin.H{
			"id":         formatID(conv.ID),
			"name":       conv.Name,
			"kind":       kind(conv.IsGroup),
			"created_at": conv.CreatedAt,
		})
	}
	httpx.OK(c, gin.H{"conversations": list})
}
