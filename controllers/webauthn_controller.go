package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"nagano_festival_backend/app"
	"nagano_festival_backend/db"
	"nagano_festival_backend/models"
	"nagano_festival_backend/session"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// パスキーのセレモニーは options / verify の二段。状態は Redis に
// challenge_id で保存し、verify で成否に関わらず消す。

type ceremonyVerifyReq struct {
	ChallengeID string          `json:"challenge_id" binding:"required"`
	Credential  json.RawMessage `json:"credential" binding:"required"`
}

// POST /api/register/options
func (s *Srv) RegisterOptions(c *gin.Context) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	ch := session.Challenge{}
	var wUser *waUser

	if u := s.optionalUser(c); u != nil {
		// ログイン済み：既存アカウントに鍵を追加
		var err error
		wUser, err = s.loadWAUser(c, u)
		if err != nil {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
		ch.UserID = u.ID
	} else {
		// 未ログイン：候補ユーザー名で新規アカウント登録
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
		handle := uuid.NewString()
		ch.CandidateUserID = in.Username
		ch.CandidateEmail = in.Email
		ch.CandidateHandle = handle
		wUser = &waUser{handle: handleBytes(handle), name: in.Username, displayName: in.Username}
	}

	wa, err := s.webAuthnFor(c)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	opts, sd, err := wa.BeginRegistration(
		wUser,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	ch.SessionData = *sd
	cid := uuid.NewString()
	if err := s.Challenges.SaveRegistration(c.Request.Context(), cid, &ch); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"options": opts, "challenge_id": cid})
}

// POST /api/register/verify
func (s *Srv) RegisterVerify(c *gin.Context) {
	var in ceremonyVerifyReq
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	ch, err := s.Challenges.LoadRegistration(c.Request.Context(), in.ChallengeID)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: no pending registration challenge", app.ErrAuth))
		return
	}
	// 成否に関わらず一度きり
	defer s.Challenges.DeleteRegistration(c.Request.Context(), in.ChallengeID)

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(in.Credential))
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	var (
		wUser   *waUser
		newUser *models.User
		owner   *models.User
	)
	if ch.UserID != 0 {
		owner, err = s.Repo.FindUserByID(c.Request.Context(), ch.UserID)
		if err != nil {
			app.Fail(c, fmt.Errorf("%w: user not found", app.ErrAuth))
			return
		}
		wUser, err = s.loadWAUser(c, owner)
		if err != nil {
			app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
			return
		}
	} else {
		newUser = &models.User{
			UserID:      ch.CandidateUserID,
			Email:       ch.CandidateEmail,
			DisplayName: ch.CandidateUserID,
			Handle:      ch.CandidateHandle,
		}
		wUser = &waUser{
			handle:      handleBytes(ch.CandidateHandle),
			name:        ch.CandidateUserID,
			displayName: ch.CandidateUserID,
		}
	}

	wa, err := s.webAuthnFor(c)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	// チャレンジ一致・origin・rp_id ハッシュ・署名はライブラリが検証する
	cred, err := wa.CreateCredential(wUser, ch.SessionData, parsed)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrAuth, err))
		return
	}

	if _, err := s.Repo.FindPasskeyByCredentialID(c.Request.Context(), cred.ID); err == nil {
		app.Fail(c, fmt.Errorf("%w: credential already registered", app.ErrConflict))
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	transports, _ := json.Marshal(cred.Transport)
	pk := &models.Passkey{
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		TransportsJSON:  string(transports),
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
	if owner != nil {
		pk.UserID = owner.ID
	}

	if err := s.Repo.RegisterPasskey(c.Request.Context(), newUser, pk); err != nil {
		if db.IsDuplicate(err) {
			app.Fail(c, fmt.Errorf("%w: already registered", app.ErrConflict))
			return
		}
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	username := ch.CandidateUserID
	if owner != nil {
		username = owner.UserID
	}
	// 登録はログインではないので、ここではトークンを発行しない
	c.JSON(200, app.H{"verified": true, "username": username})
}

// POST /api/login/options
func (s *Srv) LoginOptions(c *gin.Context) {
	var in struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	u, err := s.Repo.FindUserByIdentifier(c.Request.Context(), in.Username)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: user not found", app.ErrNotFound))
		return
	}

	wUser, err := s.loadWAUser(c, u)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	if len(wUser.creds) == 0 {
		app.Fail(c, fmt.Errorf("%w: no passkeys registered", app.ErrValidation))
		return
	}

	wa, err := s.webAuthnFor(c)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	opts, sd, err := wa.BeginLogin(wUser)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	cid := uuid.NewString()
	ch := session.Challenge{SessionData: *sd, UserID: u.ID}
	if err := s.Challenges.SaveAuthentication(c.Request.Context(), cid, &ch); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"options": opts, "challenge_id": cid})
}

// POST /api/login/verify
func (s *Srv) LoginVerify(c *gin.Context) {
	var in ceremonyVerifyReq
	if err := c.ShouldBindJSON(&in); err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	ch, err := s.Challenges.LoadAuthentication(c.Request.Context(), in.ChallengeID)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: no pending authentication challenge", app.ErrAuth))
		return
	}
	defer s.Challenges.DeleteAuthentication(c.Request.Context(), in.ChallengeID)

	u, err := s.Repo.FindUserByID(c.Request.Context(), ch.UserID)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: user not found", app.ErrAuth))
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(in.Credential))
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrValidation, err))
		return
	}

	pk, err := s.Repo.FindPasskeyByCredentialID(c.Request.Context(), parsed.RawID)
	if err != nil || pk.UserID != u.ID {
		app.Fail(c, fmt.Errorf("%w: invalid credential", app.ErrAuth))
		return
	}

	wUser, err := s.loadWAUser(c, u)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	wa, err := s.webAuthnFor(c)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	cred, err := wa.ValidateLogin(wUser, ch.SessionData, parsed)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrAuth, err))
		return
	}

	// クローン検出：前回値が非ゼロなら厳密増加のみ許す。署名が正しくても失敗。
	if pk.SignCount != 0 && cred.Authenticator.SignCount <= pk.SignCount {
		app.Fail(c, fmt.Errorf("%w: sign count did not increase (cloned authenticator?)", app.ErrAuth))
		return
	}
	// 同一クレデンシャルの並行認証は条件付き UPDATE 一文で裁定する
	ok, err := s.Repo.AdvanceSignCount(c.Request.Context(), pk.CredentialID, cred.Authenticator.SignCount)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}
	if !ok {
		app.Fail(c, fmt.Errorf("%w: sign count did not increase (cloned authenticator?)", app.ErrAuth))
		return
	}

	tok, err := s.issueLogin(c, u, token.SessionTTL)
	if err != nil {
		app.Fail(c, fmt.Errorf("%w: %v", app.ErrInternal, err))
		return
	}

	c.JSON(200, app.H{"token": tok, "user": userBody(u)})
}
