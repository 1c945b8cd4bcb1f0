package controllers

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestLocalRegister(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/register", gin.H{
		"username": "hanako",
		"password": "password123",
		"email":    "hanako@example.com",
	}, "")
	require.Equal(t, 201, w.Code, w.Body.String())

	res := decodeJSON(t, w)
	// 登録はログインではない
	require.NotContains(t, res, "token")
	user := res["user"].(map[string]any)
	require.Equal(t, "hanako", user["username"])
	require.Equal(t, "hanako", user["display_name"])

	u, err := e.repo.FindUserByUserID(context.Background(), "hanako")
	require.NoError(t, err)
	require.NotEqual(t, "password123", u.PasswordHash)
	require.Nil(t, u.LastLoginAt)
}

func TestLocalRegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		name string
		body gin.H
		code int
	}{
		{"missing password", gin.H{"username": "validname"}, 400},
		{"missing username", gin.H{"password": "password123"}, 400},
		{"too short", gin.H{"username": "abc", "password": "password123"}, 400},
		{"bad characters", gin.H{"username": "na me!", "password": "password123"}, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, "POST", "/api/register", tc.body, "")
			require.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestLocalRegisterDuplicates(t *testing.T) {
	e := newTestEnv(t)
	e.registerLocal(t, "duplicated", "password123", "dup@example.com")

	w := e.do(t, "POST", "/api/register", gin.H{
		"username": "duplicated",
		"password": "password123",
	}, "")
	require.Equal(t, 409, w.Code)

	w = e.do(t, "POST", "/api/register", gin.H{
		"username": "othername",
		"password": "password123",
		"email":    "dup@example.com",
	}, "")
	require.Equal(t, 409, w.Code)
}

func TestLocalLogin(t *testing.T) {
	e := newTestEnv(t)
	e.registerLocal(t, "kenji", "password123", "kenji@example.com")

	// userID でもメールアドレスでも入れる
	for _, id := range []string{"kenji", "kenji@example.com"} {
		w := e.do(t, "POST", "/api/login", gin.H{"username": id, "password": "password123"}, "")
		require.Equal(t, 200, w.Code, w.Body.String())
		res := decodeJSON(t, w)
		require.NotEmpty(t, res["token"])
		require.Equal(t, "kenji", res["user"].(map[string]any)["username"])
	}

	u, err := e.repo.FindUserByUserID(context.Background(), "kenji")
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)
}

// 未登録もパスワード違いも同じ応答。存在の有無を漏らさない。
func TestLocalLoginInvalidCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.registerLocal(t, "kenji", "password123", "")

	wrongPw := e.do(t, "POST", "/api/login", gin.H{"username": "kenji", "password": "wrong"}, "")
	unknown := e.do(t, "POST", "/api/login", gin.H{"username": "nobody", "password": "wrong"}, "")

	require.Equal(t, 401, wrongPw.Code)
	require.Equal(t, 401, unknown.Code)
	require.JSONEq(t, wrongPw.Body.String(), unknown.Body.String())
}

// 連携のみでパスワード未設定のアカウントには空パスワードでも入れない
func TestLocalLoginPasswordlessAccount(t *testing.T) {
	e := newTestEnv(t)
	e.createSocialUser(t, "socialonly", "social@example.com", "sub-900")

	w := e.do(t, "POST", "/api/login", gin.H{"username": "socialonly", "password": ""}, "")
	require.Equal(t, 400, w.Code) // binding:required が空文字を弾く

	w = e.do(t, "POST", "/api/login", gin.H{"username": "socialonly", "password": "guess"}, "")
	require.Equal(t, 401, w.Code)
}
