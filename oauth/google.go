package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type Google struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// テストで差し替えるため。空ならデフォルトのエンドポイント。
	TokenURL    string
	UserinfoURL string
	HTTPClient  *http.Client
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthorizationURL() string {
	params := url.Values{
		"client_id":     {g.ClientID},
		"redirect_uri":  {g.RedirectURI},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {"GOOGLE_LOGIN"},
	}
	return googleAuthURL + "?" + params.Encode()
}

func (g *Google) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return defaultHTTPClient()
}

func (g *Google) tokenURL() string {
	if g.TokenURL != "" {
		return g.TokenURL
	}
	return googleTokenURL
}

func (g *Google) userinfoURL() string {
	if g.UserinfoURL != "" {
		return g.UserinfoURL
	}
	return googleUserinfoURL
}

func (g *Google) Exchange(ctx context.Context, code string) (*Profile, error) {
	form := url.Values{
		"client_id":     {g.ClientID},
		"client_secret": {g.ClientSecret},
		"code":          {code},
		"redirect_uri":  {g.RedirectURI},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	var tokenRes struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenRes); err != nil || tokenRes.AccessToken == "" {
		return nil, ErrExchangeFailed
	}

	uiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL(), nil)
	if err != nil {
		return nil, err
	}
	uiReq.Header.Set("Authorization", "Bearer "+tokenRes.AccessToken)

	uiResp, err := g.client().Do(uiReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer uiResp.Body.Close()

	var userinfo struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(uiResp.Body).Decode(&userinfo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if userinfo.ID == "" || userinfo.Email == "" {
		return nil, ErrProfileIncomplete
	}

	return &Profile{
		SubjectID:   userinfo.ID,
		Email:       userinfo.Email,
		DisplayName: userinfo.Name,
	}, nil
}
