package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"nagano_festival_backend/app"
	"nagano_festival_backend/db"

	"github.com/gin-gonic/gin"
)

// アカウント系は全て BearerAuth の背後。ユーザーは毎リクエスト DB から
// 引き直したものを使う。

// GET /api/me
func (s *Srv) Me(c *gin.Context) {
	u, ok := app.CurrentUser(c)
	if !ok {
		app.Fail(c, fmt.Errorf("%w: missing token", app.ErrAuth))
		return
	}
	n, _ := s.Repo.CountPasskeys(c.Request.Context(), u.ID)
	body := userBody(u)
	body["passkey_count"] = n
	body["last_login_at"] = u.LastLoginAt
	c.JSON(200, app.H{"user": body})
}

// GET /api/me/passkeys
func (s *Srv) ListMyPasskeys(c *gin.Context) {
	u, ok := app.CurrentUser(c)
	if !ok {
		app.Fail(c, fmt.Errorf("%w: missing token", app.ErrAuth))
		return
	}
	ps, err := s.Repo.ListPasskeys(c.Request.Context(), u.ID)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	out := make([]app.H, 0, len(ps))
	for _, p := range ps {
		var transports []string
		_ = json.Unmarshal([]byte(p.TransportsJSON), &transports)
		out = append(out, app.H{
			"id":           p.ID,
			"created_at":   p.CreatedAt,
			"last_used_at": p.LastUsedAt,
			"transports":   transports,
			"backed_up":    p.BackupState,
		})
	}
	c.JSON(200, app.H{"passkeys": out})
}

// DELETE /api/me/passkeys/:id
func (s *Srv) DeleteMyPasskey(c *gin.Context) {
	u, ok := app.CurrentUser(c)
	if !ok {
		app.Fail(c, fmt.Errorf("%w: missing token", app.ErrAuth))
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: invalid passkey id", app.ErrValidation))
		return
	}
	if err := s.Repo.DeletePasskey(c.Request.Context(), u.ID, uint(id)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			app.Fail(c, fmt.Errorf("%w: passkey not found", app.ErrNotFound))
			return
		}
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	c.JSON(200, app.H{"ok": true})
}

// DELETE /api/me — 自分のアカウントを削除（root は保護）
func (s *Srv) DeleteMe(c *gin.Context) {
	u, ok := app.CurrentUser(c)
	if !ok {
		app.Fail(c, fmt.Errorf("%w: missing token", app.ErrAuth))
		return
	}
	if u.IsRoot() {
		app.Fail(c, fmt.Errorf("%w: root account cannot be deleted", app.ErrForbidden))
		return
	}
	if err := s.Repo.DeleteUser(c.Request.Context(), u.ID); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	c.JSON(200, app.H{"ok": true})
}

// --- 管理者のみ ---

// PUT /api/admin/users/:id/role
func (s *Srv) SetUserRole(c *gin.Context) {
	var in struct {
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: invalid user id", app.ErrValidation))
		return
	}

	target, err := s.Repo.FindUserByID(c.Request.Context(), uint(id))
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: user not found", app.ErrNotFound))
		return
	}
	if target.IsRoot() {
		app.Fail(c, fmt.Errorf("%w: root role is immutable", app.ErrForbidden))
		return
	}
	if err := s.Repo.SetAdmin(c.Request.Context(), target.ID, in.IsAdmin); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	c.JSON(200, app.H{"ok": true})
}

// DELETE /api/admin/users/:id
func (s *Srv) AdminDeleteUser(c *gin.Context) {
	me, _ := app.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: invalid user id", app.ErrValidation))
		return
	}
	if me != nil && me.ID == uint(id) {
		app.Fail(c, fmt.Errorf("%w: cannot delete yourself", app.ErrValidation))
		return
	}

	target, err := s.Repo.FindUserByID(c.Request.Context(), uint(id))
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: user not found", app.ErrNotFound))
		return
	}
	if target.IsRoot() {
		app.Fail(c, fmt.Errorf("%w: root account cannot be deleted", app.ErrForbidden))
		return
	}
	if err := s.Repo.DeleteUser(c.Request.Context(), target.ID); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	c.JSON(200, app.H{"ok": true})
}
