package ui

import "time"

// Icons (emojis/symbols)
const (
	IconSettings = "⚙"
	IconPlay     = "▶"
	IconRetry    = "↻"
	IconFolder   = "📁"
	IconExport   = "📤"
	IconError    = "❌"
	IconDone     = "✔"
	IconPending  = "⏳"
	IconUser     = "👤"
)

// Text fragments
const (
	MiddleDotSeparator  = " · "
	DashPlaceholder     = "—"
	ProgressLabelFormat = "%d%%"
)

// Layout sizing
const (
	WindowWidth  float32 = 860
	WindowHeight float32 = 620

	StatusLabelWidth  float32 = 110
	PercentLabelWidth float32 = 48

	RowMinWidth  float32 = 420
	RowMinHeight float32 = 64

	QRCodeSize          = 256
	QRImageSize float32 = 220

	LoginDialogWidth  float32 = 320
	LoginDialogHeight float32 = 380
)

// Timeouts for background calls started from the UI
const (
	AnalyzeTimeout = 30 * time.Second
	LoginTimeout   = 20 * time.Second
)

// Medium preset upper bound: 720P
const mediumQualityCap = 64
