package bilibili

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/cilicili/internal/apperr"
	"github.com/ytget/cilicili/internal/download"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/platform"
)

// Temporary stream file suffixes
const (
	VideoPartSuffix = "_video.m4s"
	AudioPartSuffix = "_audio.m4s"
	OutputExtension = ".mp4"
)

// Merger muxes a video and an audio file
type Merger interface {
	Merge(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// StreamFetcher downloads the selected DASH streams and merges them into
// one mp4 in the download directory.
type StreamFetcher struct {
	client *Client
	merger Merger
	dir    func() string
	logger zerolog.Logger
}

var _ download.Fetcher = (*StreamFetcher)(nil)

// NewStreamFetcher creates a fetcher writing into the directory dir returns
// at the time of each download.
func NewStreamFetcher(client *Client, merger Merger, dir func() string) *StreamFetcher {
	return &StreamFetcher{
		client: client,
		merger: merger,
		dir:    dir,
		logger: client.logger.With().Str(xlog.FieldComponent, "fetcher").Logger(),
	}
}

// Download fetches video and audio concurrently, then merges them. Without
// an audio stream the video file becomes the result; a failed merge falls
// back to the video alone.
func (f *StreamFetcher) Download(ctx context.Context, req download.Request) (string, error) {
	if req.Metadata == nil {
		return "", apperr.New(apperr.KindValidation, "video info not loaded")
	}
	if req.Quality.Video.URL == "" {
		return "", apperr.New(apperr.KindValidation, "video stream URL is empty")
	}

	dir := f.dir()
	if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "create download directory", err)
	}

	base := platform.SanitizeFilename(req.Metadata.Title)
	videoPath := filepath.Join(dir, base+VideoPartSuffix)
	audioPath := filepath.Join(dir, base+AudioPartSuffix)
	referer := SiteOrigin + "/video/" + req.Metadata.BVID

	audio := req.Quality.Audio
	hasAudio := audio != nil && audio.URL != ""

	total := req.Quality.Video.Size
	if hasAudio {
		total += audio.Size
	}
	progress := newProgressTracker(total, req.Progress)

	f.logger.Info().
		Str(xlog.FieldItemID, req.ItemID).
		Str(xlog.FieldVideoID, req.Metadata.ID()).
		Bool("audio", hasAudio).
		Int(xlog.FieldCredLen, len(req.Credential)).
		Msg("fetching streams")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.fetchStream(gctx, req.Quality.Video.URL, referer, req.Credential, videoPath, progress)
	})
	if hasAudio {
		g.Go(func() error {
			return f.fetchStream(gctx, audio.URL, referer, req.Credential, audioPath, progress)
		})
	}
	if err := g.Wait(); err != nil {
		os.Remove(videoPath)
		os.Remove(audioPath)
		return "", err
	}

	finalPath := platform.UniquePath(dir, base+OutputExtension)
	if !hasAudio {
		if err := os.Rename(videoPath, finalPath); err != nil {
			return "", apperr.Wrap(apperr.KindStorage, "rename video", err)
		}
		f.logSaved(req.ItemID, finalPath)
		return finalPath, nil
	}

	if err := f.merger.Merge(ctx, videoPath, audioPath, finalPath); err != nil {
		f.logger.Warn().Err(err).Str(xlog.FieldItemID, req.ItemID).Msg("merge failed, keeping video only")
		os.Remove(audioPath)
		if err := os.Rename(videoPath, finalPath); err != nil {
			return "", apperr.Wrap(apperr.KindStorage, "rename video", err)
		}
		f.logSaved(req.ItemID, finalPath)
		return finalPath, nil
	}
	os.Remove(videoPath)
	os.Remove(audioPath)
	f.logSaved(req.ItemID, finalPath)
	return finalPath, nil
}

func (f *StreamFetcher) logSaved(itemID, path string) {
	info, err := platform.GetFileInfo(path)
	if err != nil {
		f.logger.Warn().Err(err).Str(xlog.FieldPath, path).Msg("saved file is not readable")
		return
	}
	f.logger.Info().
		Str(xlog.FieldItemID, itemID).
		Str(xlog.FieldPath, path).
		Int64("size", info.Size).
		Msg("download saved")
}

// fetchStream writes one stream URL to path
func (f *StreamFetcher) fetchStream(ctx context.Context, rawURL, referer, credential, path string, progress *progressTracker) error {
	const op = "download_stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	f.client.applyHeaders(req, referer, credential)
	req.Header.Set("Origin", SiteOrigin)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.stream.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := statusError(op, resp); err != nil {
		return err
	}
	progress.expect(resp.ContentLength)

	out, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, op, err)
	}
	if _, err := io.Copy(io.MultiWriter(out, progress), resp.Body); err != nil {
		out.Close()
		return apperr.Wrap(apperr.KindNetwork, op, fmt.Errorf("read stream: %w", err))
	}
	if err := out.Close(); err != nil {
		return apperr.Wrap(apperr.KindStorage, op, err)
	}
	return nil
}

// progressTracker turns bytes written by concurrent streams into a
// monotonic percentage. It stays below 100 until the caller finishes.
type progressTracker struct {
	mu       sync.Mutex
	total    int64
	expected bool
	written  int64
	last     int
	report   func(int)
}

func newProgressTracker(estimate int64, report func(int)) *progressTracker {
	return &progressTracker{total: estimate, report: report}
}

// expect replaces the size estimate with real content lengths as they arrive
func (p *progressTracker) expect(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	if !p.expected {
		p.total = 0
		p.expected = true
	}
	p.total += n
	p.mu.Unlock()
}

func (p *progressTracker) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written += int64(len(b))
	pct := 0
	if p.total > 0 {
		pct = int(p.written * 100 / p.total)
	}
	pct = min(pct, 99)
	changed := pct > p.last
	if changed {
		p.last = pct
	}
	report := p.report
	p.mu.Unlock()

	if changed && report != nil {
		report(pct)
	}
	return len(b), nil
}
