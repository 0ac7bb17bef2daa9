package bilibili

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/model"
)

// Playurl query: highest quality, 4K allowed, DASH with all codecs
const (
	playurlQN    = "127"
	playurlFourK = "1"
	playurlFnval = "4048"
)

// qualityNames labels quality ids missing from accept_description
var qualityNames = map[int]string{
	127:   "8K",
	126:   "Dolby Vision",
	125:   "HDR",
	120:   "4K",
	116:   "1080P60",
	112:   "1080P+",
	80:    "1080P",
	74:    "720P60",
	64:    "720P",
	32:    "480P",
	16:    "360P",
	30216: "64K",
	30232: "132K",
	30280: "192K",
	30250: "Dolby Atmos",
	30251: "Hi-Res",
}

// ResolveVideoID turns user input into an id GetVideoInfo accepts. Short
// links are followed one redirect to find the full video URL.
func (c *Client) ResolveVideoID(ctx context.Context, input string) (string, error) {
	ref, ok := ParseVideoRef(input)
	if !ok {
		return "", apperr.ErrInvalidVideoRef
	}
	if ref.Kind != RefShort {
		return ref.APIID(), nil
	}

	const op = "resolve_short_link"
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.shortBase+"/"+ref.ID, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, op, err)
	}
	c.applyHeaders(req, SiteReferer, "")
	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNetwork, op, err)
	}
	_ = resp.Body.Close()

	location := resp.Header.Get("Location")
	target, ok := ParseVideoRef(location)
	if !ok || target.Kind == RefShort {
		return "", apperr.Newf(apperr.KindValidation, "short link %s does not point to a video", ref.ID)
	}
	c.logger.Debug().Str("short", ref.ID).Str(xlog.FieldVideoID, target.APIID()).Msg("resolved short link")
	return target.APIID(), nil
}

// GetVideoInfo fetches the metadata of a video by BV id or av id
func (c *Client) GetVideoInfo(ctx context.Context, videoID string) (*model.VideoMetadata, error) {
	const op = "get_video_info"
	q := url.Values{}
	switch {
	case strings.HasPrefix(videoID, "BV"):
		q.Set("bvid", videoID)
	case strings.HasPrefix(videoID, "av"), isDigits(videoID):
		aid, err := strconv.ParseUint(strings.TrimPrefix(videoID, "av"), 10, 64)
		if err != nil {
			return nil, apperr.Newf(apperr.KindValidation, "invalid AV number: %s", videoID)
		}
		q.Set("aid", strconv.FormatUint(aid, 10))
	default:
		return nil, apperr.Newf(apperr.KindValidation, "invalid video ID format: %s", videoID)
	}

	var env envelope[model.VideoMetadata]
	if _, err := c.getJSON(ctx, op, c.apiBase+"/x/web-interface/view?"+q.Encode(), "", &env); err != nil {
		return nil, err
	}
	if err := codeError(op, env.Code, env.Message); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, apperr.New(apperr.KindNetwork, "no video data")
	}

	meta := env.Data
	meta.Title = c.plainText(meta.Title)
	meta.Description = c.plainText(meta.Description)
	for i := range meta.Pages {
		meta.Pages[i].Part = c.plainText(meta.Pages[i].Part)
	}
	c.logger.Info().Str(xlog.FieldVideoID, meta.ID()).Int("pages", len(meta.Pages)).Msg("video info loaded")
	return meta, nil
}

type dashStream struct {
	ID        int    `json:"id"`
	BaseURL   string `json:"baseUrl"`
	Bandwidth int64  `json:"bandwidth"`
	MimeType  string `json:"mimeType"`
	Codecs    string `json:"codecs"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type playurlData struct {
	AcceptQuality     []int    `json:"accept_quality"`
	AcceptDescription []string `json:"accept_description"`
	Dash              *struct {
		Duration int64        `json:"duration"`
		Video    []dashStream `json:"video"`
		Audio    []dashStream `json:"audio"`
	} `json:"dash"`
}

// GetVideoStreams resolves the DASH streams of one part of a video
func (c *Client) GetVideoStreams(ctx context.Context, bvid string, cid uint64, credential string) (*model.StreamOptions, error) {
	const op = "get_video_streams"
	q := url.Values{}
	q.Set("bvid", bvid)
	q.Set("cid", strconv.FormatUint(cid, 10))
	q.Set("qn", playurlQN)
	q.Set("fourk", playurlFourK)
	q.Set("fnval", playurlFnval)

	var env envelope[playurlData]
	if _, err := c.getJSON(ctx, op, c.apiBase+"/x/player/playurl?"+q.Encode(), credential, &env); err != nil {
		return nil, err
	}
	if err := codeError(op, env.Code, env.Message); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Dash == nil || len(env.Data.Dash.Video) == 0 {
		return nil, apperr.New(apperr.KindNetwork, "no stream data")
	}

	opts := mapStreams(env.Data)
	c.logger.Info().
		Str(xlog.FieldVideoID, bvid).
		Int("video_streams", len(opts.Video)).
		Int("audio_streams", len(opts.Audio)).
		Msg("streams resolved")
	return opts, nil
}

func mapStreams(data *playurlData) *model.StreamOptions {
	labels := make(map[int]string, len(data.AcceptQuality))
	for i, q := range data.AcceptQuality {
		if i < len(data.AcceptDescription) {
			labels[q] = data.AcceptDescription[i]
		}
	}
	duration := data.Dash.Duration

	opts := &model.StreamOptions{}
	for _, v := range data.Dash.Video {
		desc, ok := labels[v.ID]
		if !ok {
			desc = qualityLabel(v.ID, v.Height)
		}
		opts.Video = append(opts.Video, model.VideoStream{
			Quality:     v.ID,
			Format:      formatFromMime(v.MimeType),
			Codecs:      v.Codecs,
			Description: desc,
			Width:       v.Width,
			Height:      v.Height,
			URL:         v.BaseURL,
			Size:        estimateSize(v.Bandwidth, duration),
		})
	}
	for _, a := range data.Dash.Audio {
		opts.Audio = append(opts.Audio, model.AudioStream{
			Quality: a.ID,
			Format:  formatFromMime(a.MimeType),
			Codecs:  a.Codecs,
			URL:     a.BaseURL,
			Size:    estimateSize(a.Bandwidth, duration),
		})
	}
	return opts
}

// AudioLabel returns a display name for an audio quality id
func AudioLabel(quality int) string {
	return qualityLabel(quality, 0)
}

func qualityLabel(id, height int) string {
	if name, ok := qualityNames[id]; ok {
		return name
	}
	if height > 0 {
		return fmt.Sprintf("%dP", height)
	}
	return strconv.Itoa(id)
}

func formatFromMime(mime string) string {
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" {
		return sub
	}
	return "mp4"
}

// estimateSize derives a byte size from bits per second and seconds
func estimateSize(bandwidth, seconds int64) int64 {
	if bandwidth <= 0 || seconds <= 0 {
		return 0
	}
	return bandwidth * seconds / 8
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
