package controllers

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"nagano_festival_backend/app"
	"nagano_festival_backend/config"
	"nagano_festival_backend/db"
	"nagano_festival_backend/mail"
	"nagano_festival_backend/models"
	"nagano_festival_backend/oauth"
	"nagano_festival_backend/session"
	"nagano_festival_backend/token"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

const rpDisplayName = "Nagano Festival Navi"

// 4文字以上の半角英数字・ピリオド・アンダーバー
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._]{4,}$`)

type Srv struct {
	Repo       *db.Repo
	Tokens     *token.Service
	Challenges *session.ChallengeStore
	Providers  map[string]oauth.Provider
	Mailer     mail.Mailer
	Cfg        config.Config
}

func GetSrv(a *app.App) *Srv {
	cfg := a.Config
	return &Srv{
		Repo:       db.NewRepo(a.DB),
		Tokens:     a.Tokens,
		Challenges: session.NewChallengeStore(a.RDB, cfg.ChallengeTTL),
		Providers: map[string]oauth.Provider{
			"google": &oauth.Google{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURI:  cfg.GoogleRedirectURI,
			},
			"line": &oauth.Line{
				ChannelID:     cfg.LineChannelID,
				ChannelSecret: cfg.LineChannelSecret,
				RedirectURI:   cfg.LineRedirectURI,
			},
		},
		Mailer: mail.NewSMTPMailer(cfg),
		Cfg:    cfg,
	}
}

// --- relying party ---

// effectiveHost：本番は BASE_URL のホスト、それ以外はリクエストの Host
func (s *Srv) effectiveHost(c *gin.Context) string {
	if s.Cfg.BaseURL != "" {
		if u, err := url.Parse(s.Cfg.BaseURL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	host := c.Request.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

func rpIDForHost(host string) string {
	// ループバックと IP リテラルは rp_id として使えないので localhost に寄せる
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return "localhost"
	}
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "localhost"
	}
	return host
}

// webAuthnFor はリクエストごとに RP 設定を組み立てる。
// Origin ヘッダが無いときは https:// + ホストにフォールバックする
// （開発向けの互換挙動。強化は未解決課題として DESIGN.md 参照）。
func (s *Srv) webAuthnFor(c *gin.Context) (*webauthn.WebAuthn, error) {
	host := s.effectiveHost(c)
	rpID := rpIDForHost(host)

	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = "https://" + c.Request.Host
	}

	return webauthn.New(&webauthn.Config{
		RPDisplayName: rpDisplayName,
		RPID:          rpID,
		RPOrigins:     []string{origin},
	})
}

// --- WebAuthn user adapter ---

// waUser 既存ユーザーにも、まだ行の無い登録候補にも使う
type waUser struct {
	handle      []byte
	name        string
	displayName string
	creds       []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { return u.handle }
func (u *waUser) WebAuthnName() string                       { return u.name }
func (u *waUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func handleBytes(handle string) []byte {
	if id, err := uuid.Parse(handle); err == nil {
		return id[:]
	}
	return []byte(handle)
}

func toWaCred(p models.Passkey) webauthn.Credential {
	return webauthn.Credential{
		ID:              p.CredentialID,
		PublicKey:       p.PublicKey,
		AttestationType: p.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:    p.AAGUID,
			SignCount: p.SignCount,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: p.BackupEligible,
			BackupState:    p.BackupState,
		},
	}
}

func (s *Srv) loadWAUser(c *gin.Context, u *models.User) (*waUser, error) {
	ps, err := s.Repo.ListPasskeys(c.Request.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(ps))
	for _, p := range ps {
		ws = append(ws, toWaCred(p))
	}
	display := u.DisplayName
	if display == "" {
		display = u.UserID
	}
	return &waUser{handle: handleBytes(u.Handle), name: u.UserID, displayName: display, creds: ws}, nil
}

// --- 共通ヘルパ ---

// optionalUser：Bearer ヘッダがあれば検証してユーザーを返す。無ければ nil。
func (s *Srv) optionalUser(c *gin.Context) *models.User {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil
	}
	claims, err := s.Tokens.VerifySession(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil
	}
	u, err := s.Repo.FindUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil
	}
	return u
}

func userBody(u *models.User) app.H {
	return app.H{
		"id":           u.ID,
		"username":     u.UserID,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"is_admin":     u.IsAdmin,
	}
}

// issueLogin は lastLoginAt を更新してセッショントークンを発行する
func (s *Srv) issueLogin(c *gin.Context, u *models.User, ttl time.Duration) (string, error) {
	if err := s.Repo.TouchUserLogin(c.Request.Context(), u.ID); err != nil {
		return "", err
	}
	return s.Tokens.IssueSession(u.ID, u.Email, u.DisplayName, ttl)
}
