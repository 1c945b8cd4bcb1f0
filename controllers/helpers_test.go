package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nagano_festival_backend/app"
	"nagano_festival_backend/config"
	"nagano_festival_backend/db"
	"nagano_festival_backend/limiter"
	"nagano_festival_backend/models"
	"nagano_festival_backend/oauth"
	"nagano_festival_backend/session"
	"nagano_festival_backend/token"
)

const (
	testSecret = "test-secret"
	testHost   = "example.com"
	testOrigin = "https://example.com"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type testEnv struct {
	srv    *Srv
	router *gin.Engine
	repo   *db.Repo
	redis  *miniredis.Miniredis
	mailer *fakeMailer
}

// newTestEnv は routes.RegisterRoutes と同じ配線をテスト用に組む。
// DB は sqlite のインメモリ、Redis は miniredis。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := db.NewRepo(gdb)
	mailer := &fakeMailer{}
	cfg := config.Config{
		SecretKey:    testSecret,
		FrontendURL:  "https://festival.example.com",
		ChallengeTTL: 5 * time.Minute,
	}

	s := &Srv{
		Repo:       repo,
		Tokens:     token.New(testSecret),
		Challenges: session.NewChallengeStore(rdb, cfg.ChallengeTTL),
		Providers:  map[string]oauth.Provider{},
		Mailer:     mailer,
		Cfg:        cfg,
	}

	r := gin.New()
	lim := limiter.New(rdb)
	authMW := app.BearerAuth(s.Tokens, repo)
	adminMW := app.AdminOnly()

	api := r.Group("/api")
	api.POST("/register", s.Register)
	api.POST("/login", s.Login)
	api.POST("/register/options", s.RegisterOptions)
	api.POST("/register/verify", s.RegisterVerify)
	api.POST("/login/options", s.LoginOptions)
	api.POST("/login/verify", s.LoginVerify)
	api.GET("/auth/:provider", s.AuthorizationURL)
	api.POST("/auth/:provider", s.ExchangeCode)
	api.POST("/auth/social-register", s.SocialRegister)
	api.POST("/forgot-password", lim.Middleware("forgot", 3, time.Hour), s.ForgotPassword)
	api.POST("/reset-password", lim.Middleware("reset", 10, time.Minute), s.ResetPassword)

	me := r.Group("/api/me", authMW)
	me.GET("", s.Me)
	me.GET("/passkeys", s.ListMyPasskeys)
	me.DELETE("/passkeys/:id", s.DeleteMyPasskey)
	me.DELETE("", s.DeleteMe)

	admin := r.Group("/api/admin", authMW, adminMW)
	admin.PUT("/users/:id/role", s.SetUserRole)
	admin.DELETE("/users/:id", s.AdminDeleteUser)

	return &testEnv{srv: s, router: r, repo: repo, redis: mr, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Host = testHost
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// registerLocal は /api/register + /api/login を通してトークンを得る
func (e *testEnv) registerLocal(t *testing.T, username, password, email string) string {
	t.Helper()

	w := e.do(t, "POST", "/api/register", gin.H{
		"username": username,
		"password": password,
		"email":    email,
	}, "")
	require.Equal(t, 201, w.Code, w.Body.String())

	w = e.do(t, "POST", "/api/login", gin.H{"username": username, "password": password}, "")
	require.Equal(t, 200, w.Code, w.Body.String())
	return decodeJSON(t, w)["token"].(string)
}

// createSocialUser は連携済み（パスワード無し）のユーザー行を直接作る
func (e *testEnv) createSocialUser(t *testing.T, username, email, googleSub string) *models.User {
	t.Helper()
	u := &models.User{
		UserID:       username,
		Email:        email,
		DisplayName:  username,
		GoogleUserID: googleSub,
		Handle:       uuid.NewString(),
	}
	require.NoError(t, e.repo.CreateUser(context.Background(), u))
	return u
}
