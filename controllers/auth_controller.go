package controllers

import (
	"errors"
	"fmt"

	"nagano_festival_backend/app"
	"nagano_festival_backend/db"
	"nagano_festival_backend/models"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// POST /api/register — ローカルアカウント登録
func (s *Srv) Register(c *gin.Context) {
	var in struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}
	if in.Username == "" || in.Password == "" {
		app.Fail(c, fmt.Errorf("%w: username and password are required", app.ErrValidation))
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
	if in.Email != "" {
		if _, err := s.Repo.FindUserByEmail(c.Request.Context(), in.Email); err == nil {
			app.Fail(c, fmt.Errorf("%w: email already registered", app.ErrConflict))
			return
		} else if !errors.Is(err, db.ErrNotFound) {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
	}

	display := in.DisplayName
	if display == "" {
		display = in.Username
	}
	u := &models.User{
		UserID:      in.Username,
		Email:       in.Email,
		DisplayName: display,
		Handle:      uuid.NewString(),
	}
	if err := u.SetPassword(in.Password); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	if err := s.Repo.CreateUser(c.Request.Context(), u); err != nil {
		// 同時登録の競合は一意制約で最終判定する
		if db.IsDuplicate(err) {
			app.Fail(c, fmt.Errorf("%w: username or email already taken", app.ErrConflict))
			return
		}
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(201, app.H{"message": "registered", "user": userBody(u)})
}

// POST /api/login — ユーザーID かメールアドレス + パスワード
func (s *Srv) Login(c *gin.Context) {
	var in struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	u, err := s.Repo.FindUserByIdentifier(c.Request.Context(), in.Username)
	if err != nil {
		// 存在の有無は漏らさない
		app.Fail(c, fmt.Errorf("%w: invalid credentials", app.ErrAuth))
		return
	}
	if !u.CheckPassword(in.Password) {
		app.Fail(c, fmt.Errorf("%w: invalid credentials", app.ErrAuth))
		return
	}

	tok, err := s.issueLogin(c, u, token.SessionTTL)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"token": tok, "user": userBody(u)})
}
