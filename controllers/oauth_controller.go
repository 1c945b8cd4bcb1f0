package controllers

import (
	"errors"
	"fmt"
	"strings"

	"nagano_festival_backend/app"
	"nagano_festival_backend/db"
	"nagano_festival_backend/models"
	"nagano_festival_backend/oauth"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/auth/:provider — 同意画面の URL を返す
func (s *Srv) AuthorizationURL(c *gin.Context) {
	p, ok := s.Providers[c.Param("provider")]
	if !ok {
		app.Fail(c, fmt.Errorf("%w: unknown provider", app.ErrNotFound))
		return
	}
	c.JSON(200, app.H{"url": p.AuthorizationURL()})
}

// POST /api/auth/:provider — 認可コードを引き換え、リンクポリシーを適用
func (s *Srv) ExchangeCode(c *gin.Context) {
	p, ok := s.Providers[c.Param("provider")]
	if !ok {
		app.Fail(c, fmt.Errorf("%w: unknown provider", app.ErrNotFound))
		return
	}
	var in struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: no code provided", app.ErrValidation))
		return
	}

	profile, err := p.Exchange(c.Request.Context(), in.Code)
	if err != nil {
		if errors.Is(err, oauth.ErrProfileIncomplete) {
			app.Fail(c, fmt.Errorf("%w: profile incomplete", app.ErrUpstream))
			return
		}
		app.Fail(c, fmt.Errorf("%w: token exchange failed", app.ErrUpstream))
		return
	}

	// リンクポリシー：① subject id → ② メール → 管理者なら拒否 →
	// 既存ならリンク回填、無ければ保留登録トークン
	u, err := s.findBySubject(c, p.Name(), profile.SubjectID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	if u == nil && profile.Email != "" {
		u, err = s.Repo.FindUserByEmail(c.Request.Context(), profile.Email)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
	}

	if u != nil {
		// 管理者アカウントはソーシャルログイン経由で到達不可
		if u.IsAdmin {
			app.Fail(c, fmt.Errorf("%w: administrator accounts cannot use social login", app.ErrForbidden))
			return
		}
		s.backfillLink(u, p.Name(), profile)
		if err := s.Repo.SaveUser(c.Request.Context(), u); err != nil {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
		tok, err := s.issueLogin(c, u, token.SocialSessionTTL)
		if err != nil {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
		c.JSON(200, app.H{"token": tok, "user": userBody(u)})
		return
	}

	// 一致なし：ユーザーはまだ作らない。保留登録トークンを発行して
	// userID の選択を求める。
	pending, err := s.Tokens.IssuePendingRegistration(token.PendingRegistration{
		Provider:        p.Name(),
		SubjectID:       profile.SubjectID,
		Email:           profile.Email,
		DisplayNameHint: profile.DisplayName,
	})
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{
		"action":             "register",
		"registration_token": pending,
		"email":              profile.Email,
		"name":               profile.DisplayName,
		"suggested_username": suggestUsername(profile.Email),
	})
}

// POST /api/auth/social-register — 保留登録トークン + 選んだ userID で確定
func (s *Srv) SocialRegister(c *gin.Context) {
	var in struct {
		RegistrationToken string `json:"registration_token" binding:"required"`
		Username          string `json:"username" binding:"required"`
		DisplayName       string `json:"display_name"`
		Email             string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	pending, err := s.Tokens.VerifyPendingRegistration(in.RegistrationToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			app.Fail(c, fmt.Errorf("%w: registration token expired", app.ErrAuth))
			return
		}
		app.Fail(c, fmt.Errorf("%w: invalid registration token", app.ErrAuth))
		return
	}

	if !userIDPattern.MatchString(in.Username) {
		app.Fail(c, fmt.Errorf("%w: username must be 4+ chars of A-Za-z0-9._", app.ErrValidation))
		return
	}
	if _, err := s.Repo.FindUserByUserID(c.Request.Context(), in.Username); err == nil {
		app.Fail(c, fmt.Errorf("%w: username already taken", app.ErrConflict))
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	email := in.Email
	if email == "" {
		email = pending.Email
	}
	if email != "" {
		if _, err := s.Repo.FindUserByEmail(c.Request.Context(), email); err == nil {
			app.Fail(c, fmt.Errorf("%w: email already registered", app.ErrConflict))
			return
		} else if !errors.Is(err, db.ErrNotFound) {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
	}

	display := in.DisplayName
	if display == "" {
		display = pending.DisplayNameHint
	}
	if display == "" {
		display = in.Username
	}

	u := &models.User{
		UserID:      in.Username,
		Email:       email,
		DisplayName: display,
		Handle:      uuid.NewString(),
	}
	switch pending.Provider {
	case "google":
		u.GoogleUserID = pending.SubjectID
	case "line":
		u.LineUserID = pending.SubjectID
	default:
		app.Fail(c, fmt.Errorf("%w: invalid registration token", app.ErrAuth))
		return
	}

	if err := s.Repo.CreateUser(c.Request.Context(), u); err != nil {
		// リトライや二重送信はここで競合として弾く。二人目は作られない。
		if db.IsDuplicate(err) {
			app.Fail(c, fmt.Errorf("%w: username or email already taken", app.ErrConflict))
			return
		}
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	tok, err := s.issueLogin(c, u, token.SocialSessionTTL)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"token": tok, "user": userBody(u)})
}

func (s *Srv) findBySubject(c *gin.Context, provider, subjectID string) (*models.User, error) {
	switch provider {
	case "google":
		return s.Repo.FindUserByGoogleID(c.Request.Context(), subjectID)
	case "line":
		return s.Repo.FindUserByLineID(c.Request.Context(), subjectID)
	}
	return nil, db.ErrNotFound
}

// backfillLink は欠けているプロバイダ ID を補い、表示名・メールを更新する
func (s *Srv) backfillLink(u *models.User, provider string, p *oauth.Profile) {
	switch provider {
	case "google":
		if u.GoogleUserID == "" {
			u.GoogleUserID = p.SubjectID
		}
	case "line":
		if u.LineUserID == "" {
			u.LineUserID = p.SubjectID
		}
	}
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.Email != "" && u.Email == "" {
		u.Email = p.Email
	}
}

func suggestUsername(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) < 4 {
		return ""
	}
	return s
}
