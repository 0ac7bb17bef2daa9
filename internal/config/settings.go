package config

import (
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"

	"github.com/ytget/cilicili/internal/platform"
)

// Quality presets used to preselect streams after analysis
type QualityPreset string

const (
	QualityBest   QualityPreset = "best"
	QualityMedium QualityPreset = "medium"
	QualityLow    QualityPreset = "low"
)

// SessionStorage selects where the login session is kept
type SessionStorage string

const (
	SessionInPreferences  SessionStorage = "preferences"
	SessionEncryptedFile  SessionStorage = "encrypted-file"
	DefaultSessionStorage                = SessionInPreferences
)

// Settings keys for Fyne preferences
const (
	KeyDownloadDir    = "download_directory"
	KeyExportFolder   = "export_folder"
	KeyQualityPreset  = "quality_preset"
	KeyLanguage       = "app_language"
	KeyPollInterval   = "login_poll_interval_ms"
	KeySessionStorage = "session_storage"
	KeyFFmpegPath     = "ffmpeg_path"
	KeyRateLimit      = "api_rate_limit"
	KeyLogLevel       = "log_level"
)

// Default values
const (
	DefaultQualityPreset = QualityBest
	DefaultLanguage      = "system"
	DefaultPollInterval  = 2 * time.Second
	MinPollInterval      = time.Second
	MaxPollInterval      = 10 * time.Second
	DefaultRateLimit     = 5.0
	MaxRateLimit         = 50.0
	DefaultLogLevel      = "info"
	SessionFileName      = "session.bin"
)

// Settings manages application configuration
type Settings struct {
	app fyne.App
}

// NewSettings creates a new settings manager
func NewSettings(app fyne.App) *Settings {
	return &Settings{app: app}
}

// GetDownloadDirectory returns the configured download directory
func (s *Settings) GetDownloadDirectory() string {
	dir := s.app.Preferences().String(KeyDownloadDir)
	if dir == "" {
		// Use <Downloads>/CiliCili
		defaultDir, err := platform.DefaultDownloadDir()
		if err != nil {
			defaultDir = filepath.Join(".", platform.AppFolderName)
		}
		s.SetDownloadDirectory(defaultDir)
		return defaultDir
	}
	return dir
}

// SetDownloadDirectory sets the download directory
func (s *Settings) SetDownloadDirectory(dir string) {
	s.app.Preferences().SetString(KeyDownloadDir, dir)
}

// GetExportFolder returns the chosen export folder, empty until the user
// picks one
func (s *Settings) GetExportFolder() string {
	return s.app.Preferences().String(KeyExportFolder)
}

// SetExportFolder remembers the export folder
func (s *Settings) SetExportFolder(dir string) {
	s.app.Preferences().SetString(KeyExportFolder, dir)
}

// GetQualityPreset returns the configured quality preset
func (s *Settings) GetQualityPreset() QualityPreset {
	preset := QualityPreset(s.app.Preferences().String(KeyQualityPreset))
	switch preset {
	case QualityBest, QualityMedium, QualityLow:
		return preset
	}
	s.SetQualityPreset(DefaultQualityPreset)
	return DefaultQualityPreset
}

// SetQualityPreset sets the quality preset
func (s *Settings) SetQualityPreset(preset QualityPreset) {
	s.app.Preferences().SetString(KeyQualityPreset, string(preset))
}

// GetQualityPresetOptions returns available quality preset options
func (s *Settings) GetQualityPresetOptions() []QualityPreset {
	return []QualityPreset{QualityBest, QualityMedium, QualityLow}
}

// GetLanguage returns the configured language
func (s *Settings) GetLanguage() string {
	lang := s.app.Preferences().String(KeyLanguage)
	if lang == "" {
		s.SetLanguage(DefaultLanguage)
		return DefaultLanguage
	}
	return lang
}

// SetLanguage sets the application language
func (s *Settings) SetLanguage(lang string) {
	s.app.Preferences().SetString(KeyLanguage, lang)
}

// GetLanguageOptions returns available language options
func (s *Settings) GetLanguageOptions() map[string]string {
	return map[string]string{
		"system": "System Default",
		"en":     "English",
		"zh":     "中文",
	}
}

// GetPollInterval returns the login poll period
func (s *Settings) GetPollInterval() time.Duration {
	ms := s.app.Preferences().Int(KeyPollInterval)
	if ms <= 0 {
		return DefaultPollInterval
	}
	return clampPoll(time.Duration(ms) * time.Millisecond)
}

// SetPollInterval sets the login poll period, clamped to 1-10s
func (s *Settings) SetPollInterval(d time.Duration) {
	s.app.Preferences().SetInt(KeyPollInterval, int(clampPoll(d).Milliseconds()))
}

func clampPoll(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}

// GetSessionStorage returns where the session is persisted
func (s *Settings) GetSessionStorage() SessionStorage {
	mode := SessionStorage(s.app.Preferences().String(KeySessionStorage))
	switch mode {
	case SessionInPreferences, SessionEncryptedFile:
		return mode
	}
	return DefaultSessionStorage
}

// SetSessionStorage selects the session storage. Unknown values fall back
// to the default.
func (s *Settings) SetSessionStorage(mode SessionStorage) {
	if mode != SessionInPreferences && mode != SessionEncryptedFile {
		mode = DefaultSessionStorage
	}
	s.app.Preferences().SetString(KeySessionStorage, string(mode))
}

// SessionFilePath is where the encrypted session file lives
func (s *Settings) SessionFilePath() string {
	return filepath.Join(s.app.Storage().RootURI().Path(), SessionFileName)
}

// GetFFmpegPath returns the configured ffmpeg binary, empty to search PATH
func (s *Settings) GetFFmpegPath() string {
	return s.app.Preferences().String(KeyFFmpegPath)
}

// SetFFmpegPath sets the ffmpeg binary
func (s *Settings) SetFFmpegPath(path string) {
	s.app.Preferences().SetString(KeyFFmpegPath, path)
}

// GetRateLimit returns the API request rate in requests per second
func (s *Settings) GetRateLimit() float64 {
	v := s.app.Preferences().FloatWithFallback(KeyRateLimit, DefaultRateLimit)
	if v <= 0 {
		return DefaultRateLimit
	}
	return min(v, MaxRateLimit)
}

// SetRateLimit sets the API request rate
func (s *Settings) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		perSecond = DefaultRateLimit
	}
	s.app.Preferences().SetFloat(KeyRateLimit, min(perSecond, MaxRateLimit))
}

// GetLogLevel returns the log level name
func (s *Settings) GetLogLevel() string {
	return s.app.Preferences().StringWithFallback(KeyLogLevel, DefaultLogLevel)
}
