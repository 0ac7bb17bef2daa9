package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/platform"
)

// ErrUnsupportedFormat is returned for formats without an argument preset
var ErrUnsupportedFormat = apperr.New(apperr.KindValidation, "unsupported format")

// maxStderr bounds how much ffmpeg output ends up in an error message
const maxStderr = 2048

// Runner executes a command and returns its combined stderr on failure
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run starts name with args and waits for it
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, tail(stderr.String(), maxStderr))
	}
	return nil
}

// Transcoder defines the interface for the transcoding service.
type Transcoder interface {
	Merge(ctx context.Context, videoPath, audioPath, outputPath string) error
	Convert(ctx context.Context, inputPath, outputPath, format string) (string, error)
	ExtractAudio(ctx context.Context, inputPath, outputPath, format string) (string, error)
}

// Service runs ffmpeg
type Service struct {
	ffmpegPath string
	runner     Runner
	logger     zerolog.Logger
}

var _ Transcoder = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithRunner replaces the exec based runner
func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a transcoder using the ffmpeg binary at ffmpegPath,
// or the one found on PATH when ffmpegPath is empty.
func NewService(ffmpegPath string, opts ...Option) *Service {
	s := &Service{
		ffmpegPath: ffmpegPath,
		runner:     ExecRunner{},
		logger:     xlog.WithComponent("transcode"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookupFFmpeg resolves the ffmpeg executable. A configured path wins over
// PATH lookup.
func LookupFFmpeg(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		return "", apperr.Newf(apperr.KindUnavailable, "ffmpeg not found at %s", configured)
	}
	path, err := exec.LookPath(FFmpegCommand)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnavailable, "lookup ffmpeg", err)
	}
	return path, nil
}

// Merge muxes videoPath and audioPath into outputPath. The inputs are left
// in place.
func (s *Service) Merge(ctx context.Context, videoPath, audioPath, outputPath string) error {
	for _, p := range []string{videoPath, audioPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("merge input %s: %w", p, platform.ErrNotExist)
		}
	}
	if err := prepareOutput(outputPath); err != nil {
		return err
	}
	if err := s.run(ctx, BuildMergeArgs(videoPath, audioPath, outputPath)); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	s.logger.Info().Str(xlog.FieldPath, outputPath).Msg("merged video and audio")
	return nil
}

// Convert re-encodes inputPath into format and returns outputPath
func (s *Service) Convert(ctx context.Context, inputPath, outputPath, format string) (string, error) {
	args, err := BuildConvertArgs(inputPath, outputPath, format)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input %s: %w", inputPath, platform.ErrNotExist)
	}
	if err := prepareOutput(outputPath); err != nil {
		return "", err
	}
	if err := s.run(ctx, args); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg conversion failed: %w", err)
	}
	s.logger.Info().Str(xlog.FieldPath, outputPath).Str(xlog.FieldFormat, format).Msg("converted video")
	return outputPath, nil
}

// ExtractAudio writes the audio track of inputPath to outputPath as format
func (s *Service) ExtractAudio(ctx context.Context, inputPath, outputPath, format string) (string, error) {
	args, err := BuildExtractAudioArgs(inputPath, outputPath, format)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input %s: %w", inputPath, platform.ErrNotExist)
	}
	if err := prepareOutput(outputPath); err != nil {
		return "", err
	}
	if err := s.run(ctx, args); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}
	s.logger.Info().Str(xlog.FieldPath, outputPath).Str(xlog.FieldFormat, format).Msg("extracted audio")
	return outputPath, nil
}

func (s *Service) run(ctx context.Context, args []string) error {
	bin, err := LookupFFmpeg(s.ffmpegPath)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("bin", bin).Strs("args", args).Msg("running ffmpeg")
	return s.runner.Run(ctx, bin, args...)
}

func prepareOutput(outputPath string) error {
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(outputPath)); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

// tail returns the last n bytes of s, trimmed
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// IsUnsupportedFormat reports whether err is a format rejection
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}
