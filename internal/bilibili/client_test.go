package bilibili

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ytget/cilicili/internal/apperr"
	"github.com/ytget/cilicili/internal/model"
)

// newTestClient points every base URL at one test server. The server's own
// client replaces the guarded stream client, which refuses loopback.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()
	c := NewClient(Options{
		APIBaseURL:       srv.URL,
		PassportBaseURL:  srv.URL + "/passport",
		ShortLinkBaseURL: srv.URL + "/short",
		RateLimit:        rate.Inf,
		HTTPClient:       srv.Client(),
		StreamClient:     srv.Client(),
		Logger:           &logger,
	})
	return c, srv
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestNormalizeOptions(t *testing.T) {
	got := normalizeOptions(Options{APIBaseURL: "http://api.test/"})
	assert.Equal(t, "http://api.test", got.APIBaseURL)
	assert.Equal(t, DefaultPassportBaseURL, got.PassportBaseURL)
	assert.Equal(t, DefaultShortLinkBaseURL, got.ShortLinkBaseURL)
	assert.Equal(t, defaultTimeout, got.Timeout)
	assert.Equal(t, defaultStreamTimeout, got.StreamTimeout)
	assert.Equal(t, rate.Limit(defaultRateLimit), got.RateLimit)
	assert.Equal(t, defaultRateLimitBurst, got.RateLimitBurst)
	assert.Equal(t, DefaultUserAgent, got.UserAgent)
}

func TestGetVideoInfo(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, SiteReferer, r.Header.Get("Referer"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		writeJSON(w, `{"code":0,"message":"0","data":{
			"bvid":"BV1xx411c7mD","aid":170001,
			"title":"<b>Hello</b> &amp; bye","desc":"<script>x()</script>plain",
			"pic":"https://i0.test/pic.jpg","owner":{"name":"up","mid":7},
			"duration":125,"pages":[{"cid":99,"page":1,"part":"<i>P1</i>","duration":125}]}}`)
	})
	c, _ := newTestClient(t, mux)

	t.Run("bvid", func(t *testing.T) {
		meta, err := c.GetVideoInfo(context.Background(), "BV1xx411c7mD")
		require.NoError(t, err)
		assert.Equal(t, "bvid=BV1xx411c7mD", gotQuery)
		assert.Equal(t, "Hello & bye", meta.Title)
		assert.Equal(t, "plain", meta.Description)
		assert.Equal(t, "P1", meta.Pages[0].Part)
		assert.Equal(t, uint64(99), meta.FirstPageCID())
		assert.Equal(t, "up", meta.Owner.Name)
	})

	t.Run("av id", func(t *testing.T) {
		_, err := c.GetVideoInfo(context.Background(), "av170001")
		require.NoError(t, err)
		assert.Equal(t, "aid=170001", gotQuery)
	})

	t.Run("digits", func(t *testing.T) {
		_, err := c.GetVideoInfo(context.Background(), "170001")
		require.NoError(t, err)
		assert.Equal(t, "aid=170001", gotQuery)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := c.GetVideoInfo(context.Background(), "watch?v=1")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Contains(t, err.Error(), "invalid video ID format")
	})

	t.Run("invalid av number", func(t *testing.T) {
		_, err := c.GetVideoInfo(context.Background(), "avx")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestGetVideoInfoAPIError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"code":-404,"message":"not found"}`)
	}))

	_, err := c.GetVideoInfo(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error: -404 - not found")
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}

func TestAuthFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    apperr.Kind
	}{
		{
			name: "http 401",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "denied", http.StatusUnauthorized)
			},
			kind: apperr.KindAuth,
		},
		{
			name: "http 403",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			kind: apperr.KindAuth,
		},
		{
			name: "code -101",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, `{"code":-101,"message":"not logged in"}`)
			},
			kind: apperr.KindAuth,
		},
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			kind: apperr.KindNetwork,
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, `{`)
			},
			kind: apperr.KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			_, err := c.GetVideoStreams(context.Background(), "BV1xx411c7mD", 1, "SESSDATA=x")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestGetVideoStreams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/player/playurl", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "BV1xx411c7mD", q.Get("bvid"))
		assert.Equal(t, "99", q.Get("cid"))
		assert.Equal(t, "127", q.Get("qn"))
		assert.Equal(t, "1", q.Get("fourk"))
		assert.Equal(t, "4048", q.Get("fnval"))
		assert.Equal(t, "SESSDATA=abc", r.Header.Get("Cookie"))
		writeJSON(w, `{"code":0,"data":{
			"accept_quality":[80,64],
			"accept_description":["1080P Full HD","720P HD"],
			"dash":{"duration":10,
				"video":[
					{"id":80,"baseUrl":"https://cdn.test/v80.m4s","bandwidth":800,"mimeType":"video/mp4","codecs":"avc1","width":1920,"height":1080},
					{"id":32,"baseUrl":"https://cdn.test/v32.m4s","bandwidth":0,"mimeType":"video/mp4","codecs":"hev1","width":852,"height":480},
					{"id":999,"baseUrl":"https://cdn.test/v999.m4s","mimeType":"","height":1440}
				],
				"audio":[{"id":30280,"baseUrl":"https://cdn.test/a.m4s","bandwidth":160,"mimeType":"audio/mp4","codecs":"mp4a.40.2"}]}}}`)
	})
	c, _ := newTestClient(t, mux)

	opts, err := c.GetVideoStreams(context.Background(), "BV1xx411c7mD", 99, "SESSDATA=abc")
	require.NoError(t, err)

	want := &model.StreamOptions{
		Video: []model.VideoStream{
			{Quality: 80, Format: "mp4", Codecs: "avc1", Description: "1080P Full HD", Width: 1920, Height: 1080, URL: "https://cdn.test/v80.m4s", Size: 1000},
			{Quality: 32, Format: "mp4", Codecs: "hev1", Description: "480P", Width: 852, Height: 480, URL: "https://cdn.test/v32.m4s"},
			{Quality: 999, Format: "mp4", Description: "1440P", Height: 1440, URL: "https://cdn.test/v999.m4s"},
		},
		Audio: []model.AudioStream{
			{Quality: 30280, Format: "mp4", Codecs: "mp4a.40.2", URL: "https://cdn.test/a.m4s", Size: 200},
		},
	}
	assert.Equal(t, want, opts)
	assert.Equal(t, "192K", AudioLabel(30280))
}

func TestGetVideoStreamsWithoutDash(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"code":0,"data":{"accept_quality":[16]}}`)
	}))
	_, err := c.GetVideoStreams(context.Background(), "BV1", 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stream data")
}

func TestLoginFlow(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/passport/x/passport-login/web/qrcode/generate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"code":0,"data":{"url":"https://login.test/qr?k=k1","qrcode_key":"k1"}}`)
	})
	mux.HandleFunc("/passport/x/passport-login/web/qrcode/poll", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.URL.Query().Get("qrcode_key"))
		polls++
		switch polls {
		case 1:
			writeJSON(w, `{"code":0,"data":{"code":86101,"message":"not scanned"}}`)
		case 2:
			writeJSON(w, `{"code":0,"data":{"code":86090,"message":"scanned"}}`)
		default:
			http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "s1"})
			http.SetCookie(w, &http.Cookie{Name: "bili_jct", Value: "j1"})
			writeJSON(w, `{"code":0,"data":{"code":0,"message":"","url":"https://www.bilibili.com/?SESSDATA=s1"}}`)
		}
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	ch, err := c.GetLoginQRCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.LoginChallenge{URL: "https://login.test/qr?k=k1", Key: "k1"}, ch)

	res, err := c.PollLoginStatus(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.PollCodePending, res.Code)
	assert.Empty(t, res.Credential)

	res, err = c.PollLoginStatus(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.PollCodeScanned, res.Code)

	res, err = c.PollLoginStatus(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.PollCodeSuccess, res.Code)
	assert.Equal(t, "SESSDATA=s1; bili_jct=j1", res.Credential)
}

func TestPollCredentialFromURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"code":0,"data":{"code":0,"url":"https://passport.test/cross?DedeUserID=7&SESSDATA=s2&bili_jct=j2&gourl=x"}}`)
	}))

	res, err := c.PollLoginStatus(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "DedeUserID=7; SESSDATA=s2; bili_jct=j2", res.Credential)
}

func TestGetLoginQRCodeEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"code":0,"data":{"url":"","qrcode_key":""}}`)
	}))
	_, err := c.GetLoginQRCode(context.Background())
	require.Error(t, err)
}

func TestGetUserProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "SESSDATA=good" {
			writeJSON(w, `{"code":-101,"message":"not logged in","data":{"isLogin":false}}`)
			return
		}
		writeJSON(w, `{"code":0,"data":{"isLogin":true,"uname":"alice","face":"https://i0.test/a.jpg","mid":42,"vipStatus":1}}`)
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	profile, err := c.GetUserProfile(ctx, "SESSDATA=good")
	require.NoError(t, err)
	assert.Equal(t, &model.UserProfile{Name: "alice", Avatar: "https://i0.test/a.jpg", MID: 42, VIPStatus: 1}, profile)
	assert.True(t, profile.IsVIP())

	_, err = c.GetUserProfile(ctx, "SESSDATA=stale")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotLoggedIn))
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	_, err = c.GetUserProfile(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
}

func TestResolveVideoID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short/good", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.bilibili.com/video/BV1xx411c7mD?share=1", http.StatusFound)
	})
	mux.HandleFunc("/short/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.bilibili.com/", http.StatusFound)
	})
	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"https://b23.tv/good", "BV1xx411c7mD", false},
		{"https://b23.tv/bad", "", true},
		{"https://www.bilibili.com/video/av42", "av42", false},
		{"BV1xx411c7mD", "BV1xx411c7mD", false},
		{"not a video", "", true},
	}
	for _, tt := range tests {
		got, err := c.ResolveVideoID(ctx, tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}
