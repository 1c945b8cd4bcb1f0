package controllers

import (
	"errors"
	"fmt"
	"log"

	"nagano_festival_backend/app"
	"nagano_festival_backend/db"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
)

// POST /api/forgot-password
// アカウント列挙を防ぐため、メールが未登録でも成功を返す。
// レート制限（3/時）は routes 側のミドルウェアが掛ける。
func (s *Srv) ForgotPassword(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Email == "" {
		app.Fail(c, fmt.Errorf("%w: email is required", app.ErrValidation))
		return
	}

	u, err := s.Repo.FindUserByEmail(c.Request.Context(), in.Email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(200, app.H{"message": "Password reset email sent"})
			return
		}
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	resetToken, err := s.Tokens.IssueReset(u.Email)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.Cfg.FrontendURL, resetToken)
	body := fmt.Sprintf("以下のリンクからパスワードを再設定してください:\n\n%s\n\n※このリンクは1時間有効です。", resetURL)
	if err := s.Mailer.Send(u.Email, "パスワードリセットのご案内", body); err != nil {
		log.Printf("reset mail to %s failed: %v", u.Email, err)
		app.Fail(c, fmt.Errorf("%w: failed to send email", app.ErrInternal))
		return
	}

	c.JSON(200, app.H{"message": "Password reset email sent"})
}

// POST /api/reset-password
// Expired と Invalid は別メッセージ。再送信への防御は有効期限のみで、
// 窓内の再利用をわざわざ冪等にはしない。
func (s *Srv) ResetPassword(c *gin.Context) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Token == "" || in.NewPassword == "" {
		app.Fail(c, fmt.Errorf("%w: token and new password are required", app.ErrValidation))
		return
	}

	email, err := s.Tokens.VerifyReset(in.Token)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			app.Fail(c, fmt.Errorf("%w: the token has expired", app.ErrValidation))
			return
		}
		app.Fail(c, fmt.Errorf("%w: invalid token", app.ErrValidation))
		return
	}

	u, err := s.Repo.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: user not found", app.ErrNotFound))
		return
	}

	if err := u.SetPassword(in.NewPassword); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	if err := s.Repo.SetPasswordHash(c.Request.Context(), u.ID, u.PasswordHash); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"message": "Password has been reset successfully", "email": email})
}
