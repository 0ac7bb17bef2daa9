package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/metrics"
	"github.com/ytget/cilicili/internal/model"
)

var (
	// ErrDuplicateID is returned when an item id is already queued
	ErrDuplicateID = errors.New("duplicate download item id")
	// ErrItemNotFound is returned for operations that need an existing item
	ErrItemNotFound = errors.New("download item not found")
	// ErrIllegalTransition is returned when a status change is not allowed
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrAlreadyRunning is returned when an item is already downloading
	ErrAlreadyRunning = errors.New("download already in progress")
	// ErrRunSuperseded is returned when the item left the run a fetch
	// belonged to before the fetch returned
	ErrRunSuperseded = errors.New("download run superseded")

	errNoMetadata = apperr.New(apperr.KindValidation, "video info not loaded")
	errNoQuality  = apperr.New(apperr.KindValidation, "no quality selected")
)

// Queue is the ordered download queue
type Queue struct {
	mu    sync.RWMutex
	items []*model.DownloadItem
	index map[string]*model.DownloadItem
	// runs counts the downloads started per item; results of older runs are dropped
	runs     map[string]uint64
	onChange func(*model.DownloadItem) // callback for UI updates

	fetcher  Fetcher
	sessions CredentialSource
	newID    func() string
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithMetrics enables queue counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides the item id generator
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) { q.newID = gen }
}

// NewQueue creates an empty queue
func NewQueue(fetcher Fetcher, sessions CredentialSource, opts ...Option) *Queue {
	q := &Queue{
		index:    make(map[string]*model.DownloadItem),
		runs:     make(map[string]uint64),
		fetcher:  fetcher,
		sessions: sessions,
		newID:    generateItemID,
		now:      time.Now,
		logger:   xlog.WithComponent("download"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetChangeCallback sets the function called with a copy of every changed item
func (q *Queue) SetChangeCallback(callback func(*model.DownloadItem)) {
	q.mu.Lock()
	q.onChange = callback
	q.mu.Unlock()
}

// NewItem builds a Pending item with a fresh id. It is not queued yet.
func (q *Queue) NewItem(sourceURL string, meta *model.VideoMetadata, quality *model.QualitySelection) *model.DownloadItem {
	item := &model.DownloadItem{
		ID:        q.newID(),
		SourceURL: sourceURL,
		Status:    model.DownloadStatusPending,
		Metadata:  meta,
		Quality:   quality,
		CreatedAt: q.now(),
	}
	if meta != nil {
		item.Title = meta.Title
	}
	return item
}

// AddItem appends item to the queue. An item without an id gets one; an id
// that is already queued is rejected.
func (q *Queue) AddItem(item *model.DownloadItem) error {
	if item == nil {
		return errors.New("add item: nil item")
	}
	stored := item.Clone()
	if stored.ID == "" {
		stored.ID = q.newID()
		item.ID = stored.ID
	}
	if stored.Status == "" {
		stored.Status = model.DownloadStatusPending
	}
	if !stored.Status.IsValid() {
		return fmt.Errorf("add item %s: unknown status %q", stored.ID, stored.Status)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = q.now()
	}

	q.mu.Lock()
	if _, exists := q.index[stored.ID]; exists {
		q.mu.Unlock()
		q.logger.Error().Str(xlog.FieldItemID, stored.ID).Msg("duplicate item id")
		return fmt.Errorf("add item %s: %w", stored.ID, ErrDuplicateID)
	}
	q.items = append(q.items, stored)
	q.index[stored.ID] = stored
	snap := stored.Clone()
	q.mu.Unlock()

	q.logger.Info().Str(xlog.FieldItemID, stored.ID).Str("title", stored.Title).Msg("item queued")
	q.notify(snap)
	return nil
}

// Get returns a copy of the item
func (q *Queue) Get(id string) (*model.DownloadItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Items returns copies of all items in insertion order
func (q *Queue) Items() []*model.DownloadItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*model.DownloadItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, item.Clone())
	}
	return out
}

// Len returns the number of queued items
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// UpdateProgress sets the progress of an item, clamped to [0, 100]. Unknown
// ids are ignored, as is a decrease while the item is downloading.
func (q *Queue) UpdateProgress(id string, progress int) {
	q.setProgress(id, 0, progress)
}

// setProgress applies a progress update. A non-zero run restricts it to
// that download run while the item is still downloading.
func (q *Queue) setProgress(id string, run uint64, progress int) {
	progress = max(0, min(progress, 100))

	q.mu.Lock()
	item, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if run != 0 && (q.runs[id] != run || item.Status != model.DownloadStatusDownloading) {
		q.mu.Unlock()
		return
	}
	if item.Status == model.DownloadStatusDownloading && progress < item.Progress {
		q.mu.Unlock()
		return
	}
	if item.Progress == progress {
		q.mu.Unlock()
		return
	}
	item.Progress = progress
	snap := item.Clone()
	q.mu.Unlock()

	q.notify(snap)
}

// UpdateStatus moves an item to status. Unknown ids are ignored; illegal
// transitions are refused, logged and counted.
func (q *Queue) UpdateStatus(id string, status model.DownloadStatus) error {
	q.mu.Lock()
	item, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	if err := q.transitionLocked(item, status); err != nil {
		q.mu.Unlock()
		return err
	}
	snap := item.Clone()
	q.mu.Unlock()

	q.notify(snap)
	return nil
}

// Retry resets a Failed item to Pending
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	item, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("retry %s: %w", id, ErrItemNotFound)
	}
	if item.Status != model.DownloadStatusFailed {
		status := item.Status
		q.mu.Unlock()
		return fmt.Errorf("retry %s from %s: %w", id, status, ErrIllegalTransition)
	}
	if err := q.transitionLocked(item, model.DownloadStatusPending); err != nil {
		q.mu.Unlock()
		return err
	}
	item.Progress = 0
	item.LastError = ""
	snap := item.Clone()
	q.mu.Unlock()

	q.logger.Info().Str(xlog.FieldItemID, id).Msg("item reset for retry")
	q.notify(snap)
	return nil
}

// ExecuteDownload runs the download of a Pending item. Without a logged in
// session, metadata or a selected quality the item fails immediately and
// the fetcher is not called. Otherwise the item is Downloading until the
// fetcher returns, then Completed or Failed with the fetcher's error.
//
// The credential is read once, here; a logout while the fetch runs does
// not abort it.
func (q *Queue) ExecuteDownload(ctx context.Context, id string) error {
	q.mu.Lock()
	item, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("execute %s: %w", id, ErrItemNotFound)
	}
	switch item.Status {
	case model.DownloadStatusDownloading:
		q.mu.Unlock()
		return fmt.Errorf("execute %s: %w", id, ErrAlreadyRunning)
	case model.DownloadStatusPending:
	default:
		status := item.Status
		q.mu.Unlock()
		q.rejected(id, status, model.DownloadStatusDownloading)
		return fmt.Errorf("execute %s from %s: %w", id, status, ErrIllegalTransition)
	}

	credential := ""
	if q.sessions != nil && q.sessions.IsLoggedIn() {
		credential = q.sessions.Credential()
	}
	if err := checkPreconditions(item, credential); err != nil {
		// a start that fails at once; the fetcher is never called
		item.Status = model.DownloadStatusFailed
		item.LastError = err.Error()
		item.FinishedAt = q.now()
		snap := item.Clone()
		q.mu.Unlock()

		q.logger.Warn().Str(xlog.FieldItemID, id).Err(err).Msg("download precondition failed")
		q.countFinished(model.DownloadStatusFailed)
		q.notify(snap)
		return err
	}

	item.Status = model.DownloadStatusDownloading
	item.Progress = 0
	item.LastError = ""
	item.StartedAt = q.now()
	q.runs[id]++
	run := q.runs[id]
	req := Request{
		ItemID:     id,
		Metadata:   item.Metadata,
		Quality:    *item.Clone().Quality,
		Credential: credential,
		Progress:   func(p int) { q.setProgress(id, run, p) },
	}
	snap := item.Clone()
	q.mu.Unlock()

	q.logger.Info().
		Str(xlog.FieldItemID, id).
		Str(xlog.FieldVideoID, req.Metadata.ID()).
		Str("quality", req.Quality.Video.Description).
		Msg("download started")
	if q.metrics != nil {
		q.metrics.DownloadsStarted.Inc()
		q.metrics.ActiveDownloads.Inc()
	}
	q.notify(snap)

	path, err := q.fetcher.Download(ctx, req)

	if q.metrics != nil {
		q.metrics.ActiveDownloads.Dec()
	}

	q.mu.Lock()
	if q.runs[id] != run || item.Status != model.DownloadStatusDownloading {
		status := item.Status
		q.mu.Unlock()
		q.logger.Warn().
			Str(xlog.FieldItemID, id).
			Str("status", status.String()).
			AnErr("fetch_error", err).
			Msg("dropping result of a superseded download run")
		if err != nil {
			return fmt.Errorf("execute %s: %w: %w", id, ErrRunSuperseded, err)
		}
		return fmt.Errorf("execute %s: %w", id, ErrRunSuperseded)
	}
	if err != nil {
		_ = q.transitionLocked(item, model.DownloadStatusFailed)
		item.LastError = err.Error()
	} else {
		_ = q.transitionLocked(item, model.DownloadStatusCompleted)
		item.OutputPath = path
	}
	status := item.Status
	snap = item.Clone()
	q.mu.Unlock()

	if err != nil {
		q.logger.Error().Str(xlog.FieldItemID, id).Err(err).Msg("download failed")
	} else {
		q.logger.Info().Str(xlog.FieldItemID, id).Str(xlog.FieldPath, path).Msg("download completed")
	}
	q.countFinished(status)
	q.notify(snap)
	return err
}

func checkPreconditions(item *model.DownloadItem, credential string) error {
	switch {
	case credential == "":
		return apperr.ErrNotLoggedIn
	case item.Metadata == nil:
		return errNoMetadata
	case item.Quality == nil:
		return errNoQuality
	}
	return nil
}

// transitionLocked validates and applies a status change
func (q *Queue) transitionLocked(item *model.DownloadItem, next model.DownloadStatus) error {
	if !next.IsValid() || !item.Status.CanTransitionTo(next) {
		q.rejected(item.ID, item.Status, next)
		return fmt.Errorf("%s: %s -> %s: %w", item.ID, item.Status, next, ErrIllegalTransition)
	}
	if item.Status == next {
		return nil
	}
	switch next {
	case model.DownloadStatusDownloading:
		item.StartedAt = q.now()
	case model.DownloadStatusCompleted:
		item.Progress = 100
		item.FinishedAt = q.now()
	case model.DownloadStatusFailed:
		item.FinishedAt = q.now()
	}
	item.Status = next
	return nil
}

func (q *Queue) rejected(id string, from, to model.DownloadStatus) {
	q.logger.Warn().
		Str(xlog.FieldItemID, id).
		Str(xlog.FieldOldState, from.String()).
		Str(xlog.FieldNewState, to.String()).
		Msg("rejected status transition")
	if q.metrics != nil {
		q.metrics.RejectedTransition.Inc()
	}
}

func (q *Queue) countFinished(status model.DownloadStatus) {
	if q.metrics != nil {
		q.metrics.DownloadsFinished.WithLabelValues(status.String()).Inc()
	}
}

// notify calls the change callback if set
func (q *Queue) notify(item *model.DownloadItem) {
	q.mu.RLock()
	cb := q.onChange
	q.mu.RUnlock()
	if cb != nil {
		cb(item)
	}
}

// generateItemID returns a time ordered UUIDv7 based id
func generateItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "dl-" + uuid.NewString()
	}
	return "dl-" + id.String()
}
