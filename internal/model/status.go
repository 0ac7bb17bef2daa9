package model

// DownloadStatus represents the status of a download item
type DownloadStatus string

const (
	// DownloadStatusPending means the item is queued but not started
	DownloadStatusPending DownloadStatus = "pending"

	// DownloadStatusDownloading means the download is in progress
	DownloadStatusDownloading DownloadStatus = "downloading"

	// DownloadStatusCompleted means the download finished successfully
	DownloadStatusCompleted DownloadStatus = "completed"

	// DownloadStatusFailed means the download failed with an error
	DownloadStatusFailed DownloadStatus = "failed"
)

// String returns the string representation of DownloadStatus
func (ds DownloadStatus) String() string {
	return string(ds)
}

// IsActive returns true if the item is currently downloading
func (ds DownloadStatus) IsActive() bool {
	return ds == DownloadStatusDownloading
}

// IsFinished returns true if the item is in a finished state (completed or failed)
func (ds DownloadStatus) IsFinished() bool {
	return ds == DownloadStatusCompleted || ds == DownloadStatusFailed
}

// IsValid reports whether ds is one of the known statuses
func (ds DownloadStatus) IsValid() bool {
	switch ds {
	case DownloadStatusPending, DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from ds to next is allowed.
// Allowed: Pending->Downloading, Downloading->{Completed,Failed}, Failed->Pending.
// Setting the current status again is treated as a no-op transition and allowed.
func (ds DownloadStatus) CanTransitionTo(next DownloadStatus) bool {
	if ds == next {
		return true
	}
	switch ds {
	case DownloadStatusPending:
		return next == DownloadStatusDownloading
	case DownloadStatusDownloading:
		return next == DownloadStatusCompleted || next == DownloadStatusFailed
	case DownloadStatusFailed:
		return next == DownloadStatusPending
	default:
		return false
	}
}
