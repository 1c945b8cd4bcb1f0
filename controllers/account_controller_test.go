package controllers

import (
	"context"
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nagano_festival_backend/models"
	"nagano_festival_backend/token"
)

func TestMe(t *testing.T) {
	e := newTestEnv(t)
	bearer := e.registerLocal(t, "hanako", "password123", "hanako@example.com")

	w := e.do(t, "GET", "/api/me", nil, bearer)
	require.Equal(t, 200, w.Code, w.Body.String())

	user := decodeJSON(t, w)["user"].(map[string]any)
	require.Equal(t, "hanako", user["username"])
	require.EqualValues(t, 0, user["passkey_count"])
	require.NotNil(t, user["last_login_at"])
	require.Equal(t, false, user["is_admin"])

	w = e.do(t, "GET", "/api/me", nil, "")
	require.Equal(t, 401, w.Code)
}

func TestPasskeyManagement(t *testing.T) {
	e := newTestEnv(t)
	bearer := e.registerLocal(t, "hanako", "password123", "hanako@example.com")

	pc := newPasskeyClient()
	code, body := pc.register(t, e, "", "", bearer)
	require.Equal(t, 200, code, body)

	w := e.do(t, "GET", "/api/me/passkeys", nil, bearer)
	require.Equal(t, 200, w.Code)
	keys := decodeJSON(t, w)["passkeys"].([]any)
	require.Len(t, keys, 1)
	id := keys[0].(map[string]any)["id"].(float64)

	// 他人は消せない
	other := e.registerLocal(t, "outsider", "password123", "")
	w = e.do(t, "DELETE", fmt.Sprintf("/api/me/passkeys/%d", int(id)), nil, other)
	require.Equal(t, 404, w.Code)

	w = e.do(t, "DELETE", fmt.Sprintf("/api/me/passkeys/%d", int(id)), nil, bearer)
	require.Equal(t, 200, w.Code)

	w = e.do(t, "GET", "/api/me/passkeys", nil, bearer)
	require.Equal(t, 200, w.Code)
	require.Empty(t, decodeJSON(t, w)["passkeys"])
}

func TestDeleteMe(t *testing.T) {
	e := newTestEnv(t)
	bearer := e.registerLocal(t, "shortlived", "password123", "")

	w := e.do(t, "DELETE", "/api/me", nil, bearer)
	require.Equal(t, 200, w.Code)

	// 以後そのトークンは user not found で弾かれる
	w = e.do(t, "GET", "/api/me", nil, bearer)
	require.Equal(t, 401, w.Code)
}

func (e *testEnv) makeAdmin(t *testing.T, username, password string) string {
	t.Helper()
	bearer := e.registerLocal(t, username, password, "")
	u, err := e.repo.FindUserByUserID(context.Background(), username)
	require.NoError(t, err)
	require.NoError(t, e.repo.SetAdmin(context.Background(), u.ID, true))
	return bearer
}

func TestAdminGate(t *testing.T) {
	e := newTestEnv(t)
	admin := e.makeAdmin(t, "bigboss", "password123")
	plain := e.registerLocal(t, "pleb.user", "password123", "")

	target, err := e.repo.FindUserByUserID(context.Background(), "pleb.user")
	require.NoError(t, err)

	// 一般ユーザーは 403
	w := e.do(t, "PUT", fmt.Sprintf("/api/admin/users/%d/role", target.ID), gin.H{"is_admin": true}, plain)
	require.Equal(t, 403, w.Code)

	w = e.do(t, "PUT", fmt.Sprintf("/api/admin/users/%d/role", target.ID), gin.H{"is_admin": true}, admin)
	require.Equal(t, 200, w.Code)

	fresh, err := e.repo.FindUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	require.True(t, fresh.IsAdmin)
}

// 役割は毎リクエスト DB から引き直す：剥奪は既発行トークンにも即時効く
func TestAdminRevocationImmediate(t *testing.T) {
	e := newTestEnv(t)
	admin := e.makeAdmin(t, "bigboss", "password123")
	e.registerLocal(t, "victim.user", "password123", "")

	boss, err := e.repo.FindUserByUserID(context.Background(), "bigboss")
	require.NoError(t, err)
	require.NoError(t, e.repo.SetAdmin(context.Background(), boss.ID, false))

	target, err := e.repo.FindUserByUserID(context.Background(), "victim.user")
	require.NoError(t, err)
	w := e.do(t, "DELETE", fmt.Sprintf("/api/admin/users/%d", target.ID), nil, admin)
	require.Equal(t, 403, w.Code)
}

func TestAdminDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	admin := e.makeAdmin(t, "bigboss", "password123")
	e.registerLocal(t, "doomed.user", "password123", "")

	target, err := e.repo.FindUserByUserID(context.Background(), "doomed.user")
	require.NoError(t, err)

	w := e.do(t, "DELETE", fmt.Sprintf("/api/admin/users/%d", target.ID), nil, admin)
	require.Equal(t, 200, w.Code)

	// 自分自身は消せない
	boss, err := e.repo.FindUserByUserID(context.Background(), "bigboss")
	require.NoError(t, err)
	w = e.do(t, "DELETE", fmt.Sprintf("/api/admin/users/%d", boss.ID), nil, admin)
	require.Equal(t, 400, w.Code)
}

func TestRootProtectedFromAdminAPI(t *testing.T) {
	e := newTestEnv(t)
	admin := e.makeAdmin(t, "bigboss", "password123")

	root := &models.User{UserID: models.RootUserID, DisplayName: "root", IsAdmin: true, Handle: uuid.NewString()}
	require.NoError(t, e.repo.CreateUser(context.Background(), root))

	w := e.do(t, "PUT", fmt.Sprintf("/api/admin/users/%d/role", root.ID), gin.H{"is_admin": false}, admin)
	require.Equal(t, 403, w.Code)

	w = e.do(t, "DELETE", fmt.Sprintf("/api/admin/users/%d", root.ID), nil, admin)
	require.Equal(t, 403, w.Code)

	// root 自身による退会も不可
	rootBearer, err := e.srv.Tokens.IssueSession(root.ID, "", "root", token.SessionTTL)
	require.NoError(t, err)
	w = e.do(t, "DELETE", "/api/me", nil, rootBearer)
	require.Equal(t, 403, w.Code)
}
