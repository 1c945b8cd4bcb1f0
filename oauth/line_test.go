package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// 署名はどうせ検証しないのでダミーで組む
func fakeIDToken(t *testing.T, claims map[string]string) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256"}`)) + "." +
		enc.EncodeToString(payload) + "." +
		enc.EncodeToString([]byte("sig"))
}

func TestLineExchange(t *testing.T) {
	idToken := fakeIDToken(t, map[string]string{"email": "hanako@example.com"})

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "channel-id", r.Form.Get("client_id"))
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "at-1",
			"id_token":     idToken,
		})
	}))
	defer tokenSrv.Close()

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{
			"userId":      "U-123",
			"displayName": "花子",
		})
	}))
	defer profileSrv.Close()

	l := &Line{
		ChannelID:     "channel-id",
		ChannelSecret: "channel-secret",
		RedirectURI:   "https://festival.example.com/callback",
		TokenURL:      tokenSrv.URL,
		ProfileURL:    profileSrv.URL,
	}
	p, err := l.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, &Profile{SubjectID: "U-123", Email: "hanako@example.com", DisplayName: "花子"}, p)
}

// id_token が無くてもプロフィールが取れればメール空で成立する
func TestLineExchangeNoIDToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1"})
	}))
	defer tokenSrv.Close()

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"userId": "U-123", "displayName": "花子"})
	}))
	defer profileSrv.Close()

	l := &Line{TokenURL: tokenSrv.URL, ProfileURL: profileSrv.URL}
	p, err := l.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	require.Empty(t, p.Email)
}

func TestLineExchangeIncompleteProfile(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1"})
	}))
	defer tokenSrv.Close()

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"displayName": "名無し"})
	}))
	defer profileSrv.Close()

	l := &Line{TokenURL: tokenSrv.URL, ProfileURL: profileSrv.URL}
	_, err := l.Exchange(context.Background(), "the-code")
	require.ErrorIs(t, err, ErrProfileIncomplete)
}

func TestEmailFromIDToken(t *testing.T) {
	require.Equal(t, "a@example.com",
		emailFromIDToken(fakeIDToken(t, map[string]string{"email": "a@example.com"})))
	require.Empty(t, emailFromIDToken(""))
	require.Empty(t, emailFromIDToken("only.two"))
	require.Empty(t, emailFromIDToken("x.%%%.y"))
}
