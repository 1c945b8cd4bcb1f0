// Package token issues and verifies the signed bearer tokens used across
// the app: session tokens, password-reset tokens and pending social
// registration tokens. All three share one HS256 secret but carry distinct
// purpose tags so they are never interchangeable.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenInvalid   = errors.New("token invalid")
)

const (
	// SessionTTL はパスワード/Passkey ログインの有効期間
	SessionTTL = 24 * time.Hour
	// SocialSessionTTL はソーシャルログインの有効期間（原典どおり 7 日）
	SocialSessionTTL = 7 * 24 * time.Hour
	// ResetTTL を超えたリセットトークンは Expired
	ResetTTL = time.Hour
	// PendingRegistrationTTL 内に userID を決めて登録を完了させる
	PendingRegistrationTTL = 15 * time.Minute

	purposeReset      = "password_reset"
	purposeSocialReg  = "social_registration"
	signingMethodName = "HS256"
)

// SessionClaims はセッショントークンの載荷 {user_id, email, display_name, exp}。
// Purpose / TokenType は他用途のトークンを検出して拒否するためだけにある。
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID      uint   `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Purpose     string `json:"purpose,omitempty"`
	TokenType   string `json:"type,omitempty"`
}

type resetClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// PendingRegistration is the decoded payload of a pending social
// registration token. No user row exists yet when one is issued.
type PendingRegistration struct {
	Provider        string
	SubjectID       string
	Email           string
	DisplayNameHint string
}

type pendingClaims struct {
	jwt.RegisteredClaims
	Provider        string `json:"provider"`
	SubjectID       string `json:"subject_id"`
	Email           string `json:"email"`
	DisplayNameHint string `json:"name"`
	Purpose         string `json:"type"`
}

// Service は共有シークレットだけに依存し、ストレージには触れない
type Service struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// NewWithClock は時刻源を差し替える。期限判定の検証用。
func NewWithClock(secret string, now func() time.Time) *Service {
	return &Service{secret: []byte(secret), now: now}
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parseOpts() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethodName}),
		jwt.WithTimeFunc(s.now),
	}
}

func (s *Service) keyFunc(*jwt.Token) (interface{}, error) { return s.secret, nil }

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	default:
		return ErrTokenInvalid
	}
}

// IssueSession はセッショントークンを発行する。ログアウトはクライアント側の
// トークン破棄のみで、サーバー側の失効は持たない（受け入れた制約）。
func (s *Service) IssueSession(userID uint, email, displayName string, ttl time.Duration) (string, error) {
	return s.sign(SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
	})
}

func (s *Service) VerifySession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, s.parseOpts()...)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	// リセット用（purpose）・保留登録用（type）のトークンは
	// セッションとして受け付けない
	if claims.Purpose != "" || claims.TokenType != "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueReset は対象メールアドレス宛のリセットトークンを発行する。1 時間有効。
func (s *Service) IssueReset(email string) (string, error) {
	return s.sign(resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(ResetTTL)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Email:   email,
		Purpose: purposeReset,
	})
}

// VerifyReset は Expired とそれ以外を区別する。呼び出し側は別メッセージを返す。
func (s *Service) VerifyReset(tokenString string) (string, error) {
	claims := &resetClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, s.parseOpts()...)
	if err != nil {
		return "", mapParseError(err)
	}
	if !tok.Valid || claims.Purpose != purposeReset || claims.Email == "" {
		return "", ErrTokenInvalid
	}
	return claims.Email, nil
}

// IssuePendingRegistration はソーシャル初回ログインで発行し、
// userID を選んだ後の確定呼び出しで引き換える。
func (s *Service) IssuePendingRegistration(p PendingRegistration) (string, error) {
	return s.sign(pendingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(PendingRegistrationTTL)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Provider:        p.Provider,
		SubjectID:       p.SubjectID,
		Email:           p.Email,
		DisplayNameHint: p.DisplayNameHint,
		Purpose:         purposeSocialReg,
	})
}

func (s *Service) VerifyPendingRegistration(tokenString string) (*PendingRegistration, error) {
	claims := &pendingClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc, s.parseOpts()...)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !tok.Valid || claims.Purpose != purposeSocialReg || claims.Provider == "" || claims.SubjectID == "" {
		return nil, ErrTokenInvalid
	}
	return &PendingRegistration{
		Provider:        claims.Provider,
		SubjectID:       claims.SubjectID,
		Email:           claims.Email,
		DisplayNameHint: claims.DisplayNameHint,
	}, nil
}
