package bilibili

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/model"
)

// sessionCookies are the cookie names that make up a login credential
var sessionCookies = []string{"SESSDATA", "bili_jct", "DedeUserID", "DedeUserID__ckMd5", "sid"}

// GetLoginQRCode requests a new login challenge
func (c *Client) GetLoginQRCode(ctx context.Context) (model.LoginChallenge, error) {
	const op = "get_login_qr_code"
	var env envelope[model.LoginChallenge]
	if _, err := c.getJSON(ctx, op, c.passportBase+"/x/passport-login/web/qrcode/generate", "", &env); err != nil {
		return model.LoginChallenge{}, err
	}
	if err := codeError(op, env.Code, env.Message); err != nil {
		return model.LoginChallenge{}, err
	}
	if env.Data == nil || env.Data.Key == "" || env.Data.URL == "" {
		return model.LoginChallenge{}, apperr.New(apperr.KindNetwork, "empty login challenge")
	}
	return *env.Data, nil
}

// PollLoginStatus checks a challenge once. On success the credential is
// the cookie header built from the cookies the server set.
func (c *Client) PollLoginStatus(ctx context.Context, key string) (model.PollResult, error) {
	const op = "poll_login_status"
	q := url.Values{}
	q.Set("qrcode_key", key)

	var env envelope[model.PollResult]
	cookies, err := c.getJSON(ctx, op, c.passportBase+"/x/passport-login/web/qrcode/poll?"+q.Encode(), "", &env)
	if err != nil {
		return model.PollResult{}, err
	}
	if err := codeError(op, env.Code, env.Message); err != nil {
		return model.PollResult{}, err
	}
	if env.Data == nil {
		return model.PollResult{}, apperr.New(apperr.KindNetwork, "empty poll response")
	}

	res := *env.Data
	if res.Code == model.PollCodeSuccess {
		res.Credential = cookieHeader(cookies)
		if res.Credential == "" {
			res.Credential = credentialFromURL(res.URL)
		}
	}
	c.logger.Debug().
		Str(xlog.FieldChallengeKey, key).
		Int(xlog.FieldCode, int(res.Code)).
		Int(xlog.FieldCredLen, len(res.Credential)).
		Msg("login poll")
	return res, nil
}

type navData struct {
	IsLogin   bool   `json:"isLogin"`
	Name      string `json:"uname"`
	Face      string `json:"face"`
	MID       uint64 `json:"mid"`
	VIPStatus int    `json:"vipStatus"`
}

// GetUserProfile fetches the profile of the account owning credential
func (c *Client) GetUserProfile(ctx context.Context, credential string) (*model.UserProfile, error) {
	const op = "get_user_profile"
	if credential == "" {
		return nil, apperr.ErrNotLoggedIn
	}
	var env envelope[navData]
	if _, err := c.getJSON(ctx, op, c.apiBase+"/x/web-interface/nav", credential, &env); err != nil {
		return nil, err
	}
	// nav answers -101 with isLogin=false for stale credentials
	if env.Data != nil && !env.Data.IsLogin {
		return nil, apperr.Wrap(apperr.KindAuth, op, apperr.ErrNotLoggedIn)
	}
	if err := codeError(op, env.Code, env.Message); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, apperr.New(apperr.KindNetwork, "empty profile response")
	}
	return &model.UserProfile{
		Name:      c.plainText(env.Data.Name),
		Avatar:    env.Data.Face,
		MID:       env.Data.MID,
		VIPStatus: env.Data.VIPStatus,
	}, nil
}

// cookieHeader renders cookies as a Cookie request header value
func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	seen := make(map[string]bool, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" || ck.Value == "" || seen[ck.Name] {
			continue
		}
		seen[ck.Name] = true
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// credentialFromURL reads the session cookies from the cross domain login
// URL returned with a successful poll.
func credentialFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	var parts []string
	for _, name := range sessionCookies {
		if v := q.Get(name); v != "" {
			parts = append(parts, name+"="+v)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
