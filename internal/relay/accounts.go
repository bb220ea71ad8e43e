package relay

import (
	"errors"
	"net/http"

	"github.com/ageniuscoder/mmchat/chatcore/internal/auth"
	"github.com/ageniuscoder/mmchat/chatcore/internal/httpx"
	"github.com/ageniuscoder/mmchat/chatcore/internal/storage"
	"github.com/ageniuscoder/mmchat/chatcore/internal/utils"
	"github.com/gin-gonic/gin"
)

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Err(c, http.StatusBadRequest, utils.BindErr(err))
		return
	}

	u, err := s.Store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.Log.Error("login lookup", "err", err)
		}
		httpx.Err(c, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		httpx.Err(c, http.StatusUnauthorized, "Invalid Credentials")
		return
	}
	tok, err := auth.NewToken(s.JWTSecret, u.ID, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "Token Generation Failed")
		return
	}
	httpx.OK(c, gin.H{"token": tok, "user_id": formatID(u.ID)})
}

func (s *Server) getMe(c *gin.Context) {
	uid := auth.MustUserID(c)

	u, err := s.Store.UserByID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpx.Err(c, http.StatusNotFound, "user not found")
		} else {
			httpx.Internal(c, s.Log, "getMe", err, "user", uid)
		}
		return
	}

	httpx.OK(c, gin.H{
		"id":           formatID(u.ID),
		"username":     u.Username,
		"display_name": u.DisplayName,
		"avatar_url":   u.AvatarURL,
		"created_at":   u.CreatedAt,
	})
}

func (s *Server) searchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		httpx.Err(c, http.StatusBadRequest, "query parameter is required")
		return
	}

	found, err := s.Store.SearchUsers(c.Request.Context(), query, 10)
	if err != nil {
		httpx.Internal(c, s.Log, "search users", err)
		return
	}
	users := make([]gin.H, 0, len(found))
	for _, u := range found {
		users = append(users, gin.H{
			"id":           formatID(u.ID),
			"username":     u.Username,
			"display_name": u.DisplayName,
		})
	}
	httpx.OK(c, gin.H{"users": users})
}
