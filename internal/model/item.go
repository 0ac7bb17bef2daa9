package model

import (
	"strings"
	"time"
)

// DownloadItem represents a single entry of the download queue
type DownloadItem struct {
	ID         string
	SourceURL  string
	Title      string
	Progress   int // 0 to 100
	Status     DownloadStatus
	Metadata   *VideoMetadata
	Quality    *QualitySelection
	LastError  string
	OutputPath string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Clone returns a copy that does not share mutable state with d.
// Metadata is immutable once fetched and is shared.
func (d *DownloadItem) Clone() *DownloadItem {
	if d == nil {
		return nil
	}
	c := *d
	if d.Quality != nil {
		q := *d.Quality
		if d.Quality.Audio != nil {
			a := *d.Quality.Audio
			q.Audio = &a
		}
		c.Quality = &q
	}
	return &c
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (d *DownloadItem) GetDisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}

	if d.OutputPath != "" {
		parts := strings.FieldsFunc(d.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return d.SourceURL
}
