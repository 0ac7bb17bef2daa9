package export

import (
	"context"
	"errors"

	"github.com/ytget/cilicili/internal/apperr"
	"github.com/ytget/cilicili/internal/platform"
	"github.com/ytget/cilicili/internal/transcode"
)

// Backend performs the file operations behind the pipeline
type Backend interface {
	CopyToFolder(src, folder, name string) (string, error)
	OpenFolder(path string) error
	RevealFile(path string) error
	DefaultFolder() (string, error)
	EnsureFolder(path string) error
	Convert(ctx context.Context, inputPath, outputPath, format string) (string, error)
	ExtractAudio(ctx context.Context, inputPath, outputPath, format string) (string, error)
}

// LocalBackend works on the local filesystem and runs ffmpeg through a
// transcoder.
type LocalBackend struct {
	transcoder transcode.Transcoder
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates a backend using t for conversions
func NewLocalBackend(t transcode.Transcoder) *LocalBackend {
	return &LocalBackend{transcoder: t}
}

func (b *LocalBackend) CopyToFolder(src, folder, name string) (string, error) {
	path, err := platform.CopyFileUnique(src, folder, name)
	if err != nil {
		if errors.Is(err, platform.ErrNotExist) {
			return "", apperr.Wrap(apperr.KindValidation, "export", err)
		}
		return "", apperr.Wrap(apperr.KindStorage, "export", err)
	}
	return path, nil
}

func (b *LocalBackend) OpenFolder(path string) error {
	return platform.OpenFolder(path)
}

func (b *LocalBackend) RevealFile(path string) error {
	if err := platform.OpenFileInManager(path); err != nil {
		if errors.Is(err, platform.ErrNotExist) {
			return apperr.Wrap(apperr.KindValidation, "reveal", err)
		}
		return apperr.Wrap(apperr.KindStorage, "reveal", err)
	}
	return nil
}

func (b *LocalBackend) DefaultFolder() (string, error) {
	return platform.GetHomeDownloadsDir()
}

func (b *LocalBackend) EnsureFolder(path string) error {
	if err := platform.CreateDirectoryIfNotExists(path); err != nil {
		return apperr.Wrap(apperr.KindStorage, "create folder", err)
	}
	return nil
}

func (b *LocalBackend) Convert(ctx context.Context, inputPath, outputPath, format string) (string, error) {
	return b.transcoder.Convert(ctx, inputPath, outputPath, format)
}

func (b *LocalBackend) ExtractAudio(ctx context.Context, inputPath, outputPath, format string) (string, error) {
	return b.transcoder.ExtractAudio(ctx, inputPath, outputPath, format)
}
