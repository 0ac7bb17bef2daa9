package download

import (
	"context"

	"github.com/ytget/cilicili/internal/model"
)

// Request is everything a Fetcher needs for one item
type Request struct {
	ItemID     string
	Metadata   *model.VideoMetadata
	Quality    model.QualitySelection
	Credential string
	// Progress receives percentages in [0, 100]
	Progress func(percent int)
}

// Fetcher downloads the selected streams and returns the local file path
type Fetcher interface {
	Download(ctx context.Context, req Request) (string, error)
}

// CredentialSource exposes the current session to the queue
type CredentialSource interface {
	IsLoggedIn() bool
	Credential() string
}

// Downloader defines the interface of the download queue
type Downloader interface {
	SetChangeCallback(func(*model.DownloadItem))
	NewItem(sourceURL string, meta *model.VideoMetadata, quality *model.QualitySelection) *model.DownloadItem
	AddItem(item *model.DownloadItem) error
	Get(id string) (*model.DownloadItem, bool)
	Items() []*model.DownloadItem
	UpdateProgress(id string, progress int)
	UpdateStatus(id string, status model.DownloadStatus) error
	Retry(id string) error
	ExecuteDownload(ctx context.Context, id string) error
}

var _ Downloader = (*Queue)(nil)
