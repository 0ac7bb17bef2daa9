package export

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/platform"
	"github.com/ytget/cilicili/internal/transcode"
)

var (
	// ErrNoExportFolder rejects an export before a target folder was chosen
	ErrNoExportFolder = apperr.New(apperr.KindValidation, "please select an export folder first")
	// ErrNoSource rejects an operation without an input file
	ErrNoSource = apperr.New(apperr.KindValidation, "no file selected")
	// ErrCancelled reports that the user closed the folder chooser
	ErrCancelled = apperr.New(apperr.KindValidation, "no folder selected")
)

// Result is the outcome of one pipeline operation
type Result struct {
	// Path is the produced file or folder
	Path string
	// Paths lists every exported file of a batch
	Paths   []string
	Message string
	Err     error
}

// OK reports whether the operation succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Pipeline dispatches export commands to a Backend. It holds no state
// besides its collaborators.
type Pipeline struct {
	backend Backend
	logger  zerolog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a pipeline over backend
func NewPipeline(backend Backend, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend: backend,
		logger:  xlog.WithComponent("export"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExportToFolder copies src into folder, keeping existing files by adding
// a numeric suffix. An empty name keeps the source's base name.
func (p *Pipeline) ExportToFolder(src, folder, name string) Result {
	const action = "Export"
	if strings.TrimSpace(folder) == "" {
		return p.fail(action, src, ErrNoExportFolder)
	}
	if strings.TrimSpace(src) == "" {
		return p.fail(action, src, ErrNoSource)
	}
	path, err := p.backend.CopyToFolder(src, folder, name)
	if err != nil {
		return p.fail(action, src, err)
	}
	p.logger.Info().Str(xlog.FieldPath, path).Msg("exported file")
	return Result{Path: path, Message: "Exported to " + path}
}

// BatchExport exports every source into folder. Files that fail are
// reported together; the rest are still exported.
func (p *Pipeline) BatchExport(sources []string, folder string) Result {
	const action = "Export"
	if strings.TrimSpace(folder) == "" {
		return p.fail(action, "", ErrNoExportFolder)
	}
	if len(sources) == 0 {
		return p.fail(action, "", ErrNoSource)
	}

	var paths, failures []string
	for _, src := range sources {
		r := p.ExportToFolder(src, folder, "")
		if !r.OK() {
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(src), r.Err))
			continue
		}
		paths = append(paths, r.Path)
	}

	if len(failures) > 0 {
		err := apperr.Newf(apperr.KindStorage, "some files failed: %s", strings.Join(failures, "; "))
		res := p.fail(action, "", err)
		res.Paths = paths
		return res
	}
	return Result{
		Path:    folder,
		Paths:   paths,
		Message: fmt.Sprintf("Exported %d files to %s", len(paths), folder),
	}
}

// ConvertFormat re-encodes src into format next to the source
func (p *Pipeline) ConvertFormat(ctx context.Context, src, format string) Result {
	const action = "Conversion"
	format = strings.ToLower(strings.TrimSpace(format))
	if strings.TrimSpace(src) == "" {
		return p.fail(action, src, ErrNoSource)
	}
	if !slices.Contains(transcode.VideoFormats, format) {
		return p.fail(action, src, unsupported(format, transcode.VideoFormats))
	}
	path, err := p.backend.Convert(ctx, src, outputPath(src, "", format), format)
	if err != nil {
		return p.fail(action, src, err)
	}
	return Result{Path: path, Message: "Converted to " + path}
}

// ExtractAudio writes the audio track of src as format next to the source
func (p *Pipeline) ExtractAudio(ctx context.Context, src, format string) Result {
	const action = "Audio extraction"
	format = strings.ToLower(strings.TrimSpace(format))
	if strings.TrimSpace(src) == "" {
		return p.fail(action, src, ErrNoSource)
	}
	if !slices.Contains(transcode.AudioFormats, format) {
		return p.fail(action, src, unsupported(format, transcode.AudioFormats))
	}
	path, err := p.backend.ExtractAudio(ctx, src, outputPath(src, "_audio", format), format)
	if err != nil {
		return p.fail(action, src, err)
	}
	return Result{Path: path, Message: "Audio saved to " + path}
}

// OpenFolder reveals path in the system file manager
func (p *Pipeline) OpenFolder(path string) Result {
	const action = "Open folder"
	if strings.TrimSpace(path) == "" {
		return p.fail(action, path, ErrNoSource)
	}
	if err := p.backend.OpenFolder(path); err != nil {
		return p.fail(action, path, apperr.Wrap(apperr.KindStorage, "open_folder", err))
	}
	return Result{Path: path, Message: "Opened " + path}
}

// RevealFile shows a downloaded file in the system file manager
func (p *Pipeline) RevealFile(path string) Result {
	const action = "Show file"
	if strings.TrimSpace(path) == "" {
		return p.fail(action, path, ErrNoSource)
	}
	if err := p.backend.RevealFile(path); err != nil {
		return p.fail(action, path, err)
	}
	return Result{Path: path, Message: "Showing " + filepath.Base(path)}
}

// DefaultExportFolder is where the folder chooser starts
func (p *Pipeline) DefaultExportFolder() string {
	dir, err := p.backend.DefaultFolder()
	if err != nil {
		p.logger.Warn().Err(err).Msg("no default export folder")
		return ""
	}
	return dir
}

// SelectExportFolder accepts the folder the user picked. An empty choice
// means the chooser was cancelled.
func (p *Pipeline) SelectExportFolder(chosen string) Result {
	const action = "Select folder"
	if strings.TrimSpace(chosen) == "" {
		return Result{Message: ErrCancelled.Error(), Err: ErrCancelled}
	}
	if err := p.backend.EnsureFolder(chosen); err != nil {
		return p.fail(action, chosen, err)
	}
	return Result{Path: chosen, Message: "Export folder set to " + chosen}
}

func (p *Pipeline) fail(action, src string, err error) Result {
	p.logger.Warn().Err(err).Str(xlog.FieldPath, src).Str("action", action).Msg("export operation failed")
	return Result{Message: action + " failed: " + apperr.UserMessage(err), Err: err}
}

func unsupported(format string, allowed []string) error {
	return fmt.Errorf("%w: %q (supported: %s)", transcode.ErrUnsupportedFormat, format, strings.Join(allowed, ", "))
}

// outputPath derives a free path next to src with the given suffix and
// extension.
func outputPath(src, suffix, format string) string {
	dir := filepath.Dir(src)
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return platform.UniquePath(dir, stem+suffix+"."+format)
}
