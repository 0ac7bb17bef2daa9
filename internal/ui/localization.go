package ui

// Localization manages UI text translations
type Localization struct {
	currentLanguage string
	texts           map[string]map[string]string
}

// Text keys for localization
const (
	KeyAppTitle          = "app_title"
	KeyAnalyze           = "analyze"
	KeyDownload          = "download"
	KeyRetry             = "retry"
	KeyReveal            = "reveal"
	KeyExport            = "export"
	KeyExportAll         = "export_all"
	KeyConvert           = "convert"
	KeyExtractAudio      = "extract_audio"
	KeySettings          = "settings"
	KeyFile              = "file"
	KeyAccount           = "account"
	KeyLanguage          = "language"
	KeyLogin             = "login"
	KeyLogout            = "logout"
	KeyLogoutConfirm     = "logout_confirm"
	KeyRefresh           = "refresh"
	KeyClose             = "close"
	KeyChooseExport      = "choose_export"
	KeyDownloadDirectory = "download_directory"
	KeyExportFolder      = "export_folder"
	KeyQualityPreset     = "quality_preset"
	KeyVideoQuality      = "video_quality"
	KeyAudioQuality      = "audio_quality"
	KeyNoAudio           = "no_audio"
	KeyFormat            = "format"
	KeyPollInterval      = "poll_interval"
	KeySessionStorage    = "session_storage"
	KeyFFmpegPath        = "ffmpeg_path"
	KeySave              = "save"
	KeyCancel            = "cancel"
	KeyBrowse            = "browse"
	KeyEnterURL          = "enter_url"
	KeySettingsSaved     = "settings_saved"
	KeyAnalyzing         = "analyzing"
	KeyAnalyzeFailed     = "analyze_failed"
	KeyLoginForStreams   = "login_for_streams"
	KeyDownloadStarted   = "download_started"
	KeyDownloadCompleted = "download_completed"
	KeyDownloadFailed    = "download_failed"
	KeyPleaseEnterURL    = "please_enter_url"
	KeyInvalidURL        = "invalid_url"
	KeyNotLoggedIn       = "not_logged_in"
	KeyScanToLogin       = "scan_to_login"
)

// NewLocalization creates a new localization manager
func NewLocalization() *Localization {
	l := &Localization{
		currentLanguage: "en",
		texts:           make(map[string]map[string]string),
	}

	l.initializeTexts()
	return l
}

// SetLanguage sets the current language. Unknown languages are ignored.
func (l *Localization) SetLanguage(lang string) {
	if lang == "system" {
		lang = "en"
	}

	if _, exists := l.texts[lang]; exists {
		l.currentLanguage = lang
	}
}

// GetText returns localized text for the given key
func (l *Localization) GetText(key string) string {
	if text, found := l.texts[l.currentLanguage][key]; found {
		return text
	}
	// Fallback to English, then the key itself
	if text, found := l.texts["en"][key]; found {
		return text
	}
	return key
}

// GetCurrentLanguage returns the current language code
func (l *Localization) GetCurrentLanguage() string {
	return l.currentLanguage
}

// GetAvailableLanguages returns map of available languages with their display names
func (l *Localization) GetAvailableLanguages() map[string]string {
	return map[string]string{
		"en": "English",
		"zh": "中文",
	}
}

// initializeTexts initializes all text translations
func (l *Localization) initializeTexts() {
	l.texts["en"] = map[string]string{
		KeyAppTitle:          "CiliCili",
		KeyAnalyze:           "Analyze",
		KeyDownload:          "Download",
		KeyRetry:             "Retry",
		KeyReveal:            "Show",
		KeyExport:            "Export",
		KeyExportAll:         "Export completed",
		KeyConvert:           "Convert",
		KeyExtractAudio:      "Audio",
		KeySettings:          "Settings",
		KeyFile:              "File",
		KeyAccount:           "Account",
		KeyLanguage:          "Language",
		KeyLogin:             "Log in",
		KeyLogout:            "Log out",
		KeyLogoutConfirm:     "Log out of this account?",
		KeyRefresh:           "Refresh",
		KeyClose:             "Close",
		KeyChooseExport:      "Choose export folder",
		KeyDownloadDirectory: "Download Directory",
		KeyExportFolder:      "Export Folder",
		KeyQualityPreset:     "Preferred Quality",
		KeyVideoQuality:      "Video",
		KeyAudioQuality:      "Audio",
		KeyNoAudio:           "No audio",
		KeyFormat:            "Format",
		KeyPollInterval:      "Login Poll Interval (seconds)",
		KeySessionStorage:    "Session Storage",
		KeyFFmpegPath:        "FFmpeg Path",
		KeySave:              "Save",
		KeyCancel:            "Cancel",
		KeyBrowse:            "Browse",
		KeyEnterURL:          "Video URL, b23.tv link, BV or av id",
		KeySettingsSaved:     "Settings saved",
		KeyAnalyzing:         "Loading video info...",
		KeyAnalyzeFailed:     "Could not load video",
		KeyLoginForStreams:   "Log in to load available qualities",
		KeyDownloadStarted:   "Download started",
		KeyDownloadCompleted: "Download completed",
		KeyDownloadFailed:    "Download failed",
		KeyPleaseEnterURL:    "Please enter a video URL or id",
		KeyInvalidURL:        "Supported: bilibili.com/video/BV..., bilibili.com/video/av..., b23.tv/..., BV... or av...",
		KeyNotLoggedIn:       "Not logged in",
		KeyScanToLogin:       "Scan to log in",
	}

	l.texts["zh"] = map[string]string{
		KeyAppTitle:          "CiliCili",
		KeyAnalyze:           "解析",
		KeyDownload:          "下载",
		KeyRetry:             "重试",
		KeyReveal:            "显示",
		KeyExport:            "导出",
		KeyExportAll:         "导出已完成",
		KeyConvert:           "转换",
		KeyExtractAudio:      "音频",
		KeySettings:          "设置",
		KeyFile:              "文件",
		KeyAccount:           "账号",
		KeyLanguage:          "语言",
		KeyLogin:             "登录",
		KeyLogout:            "退出登录",
		KeyLogoutConfirm:     "确定退出当前账号？",
		KeyRefresh:           "刷新",
		KeyClose:             "关闭",
		KeyChooseExport:      "选择导出文件夹",
		KeyDownloadDirectory: "下载目录",
		KeyExportFolder:      "导出文件夹",
		KeyQualityPreset:     "首选画质",
		KeyVideoQuality:      "视频",
		KeyAudioQuality:      "音频",
		KeyNoAudio:           "无音频",
		KeyFormat:            "格式",
		KeyPollInterval:      "登录轮询间隔（秒）",
		KeySessionStorage:    "会话存储",
		KeyFFmpegPath:        "FFmpeg 路径",
		KeySave:              "保存",
		KeyCancel:            "取消",
		KeyBrowse:            "浏览",
		KeyEnterURL:          "视频链接、b23.tv 短链、BV 号或 av 号",
		KeySettingsSaved:     "设置已保存",
		KeyAnalyzing:         "正在获取视频信息...",
		KeyAnalyzeFailed:     "无法获取视频",
		KeyLoginForStreams:   "登录后可获取清晰度列表",
		KeyDownloadStarted:   "开始下载",
		KeyDownloadCompleted: "下载完成",
		KeyDownloadFailed:    "下载失败",
		KeyPleaseEnterURL:    "请输入视频链接或编号",
		KeyInvalidURL:        "支持：bilibili.com/video/BV...、bilibili.com/video/av...、b23.tv/...、BV... 或 av...",
		KeyNotLoggedIn:       "未登录",
		KeyScanToLogin:       "扫码登录",
	}
}
