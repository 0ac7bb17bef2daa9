package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/cilicili/internal/apperr"
	"github.com/ytget/cilicili/internal/metrics"
	"github.com/ytget/cilicili/internal/model"
)

type fakeSession struct {
	mu         sync.Mutex
	loggedIn   bool
	credential string
}

func (f *fakeSession) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeSession) Credential() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credential
}

func (f *fakeSession) logout() {
	f.mu.Lock()
	f.loggedIn = false
	f.credential = ""
	f.mu.Unlock()
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    []Request
	progress []int
	path     string
	err      error
	// block, when set, is waited on before returning
	block chan struct{}
	// started is closed on the first call
	started chan struct{}
}

func (f *fakeFetcher) Download(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	block := f.block
	progress := f.progress
	path, err := f.path, f.err
	f.mu.Unlock()

	for _, p := range progress {
		req.Progress(p)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return path, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fetchResult struct {
	path string
	err  error
}

// pendingFetch is one Download call held until the test sends its result
type pendingFetch struct {
	req    Request
	result chan fetchResult
}

// heldFetcher hands every call to the test and waits for its result
type heldFetcher struct {
	calls chan *pendingFetch
}

func newHeldFetcher() *heldFetcher {
	return &heldFetcher{calls: make(chan *pendingFetch, 4)}
}

func (f *heldFetcher) Download(ctx context.Context, req Request) (string, error) {
	p := &pendingFetch{req: req, result: make(chan fetchResult, 1)}
	f.calls <- p
	select {
	case r := <-p.result:
		return r.path, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func testMeta() *model.VideoMetadata {
	return &model.VideoMetadata{
		BVID:  "BV1xx411c7mD",
		Title: "Test video",
		Pages: []model.VideoPage{{CID: 1001, Page: 1, Part: "P1"}},
	}
}

func testQuality() *model.QualitySelection {
	return &model.QualitySelection{
		Video: model.VideoStream{Quality: 80, Description: "1080P", URL: "https://cdn.example/v.m4s"},
		Audio: &model.AudioStream{Quality: 30280, URL: "https://cdn.example/a.m4s"},
	}
}

func loggedIn() *fakeSession {
	return &fakeSession{loggedIn: true, credential: "SESSDATA=tok"}
}

func newTestQueue(f Fetcher, s CredentialSource, opts ...Option) *Queue {
	return NewQueue(f, s, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func addReady(t *testing.T, q *Queue) *model.DownloadItem {
	t.Helper()
	item := q.NewItem("https://www.bilibili.com/video/BV1xx411c7mD", testMeta(), testQuality())
	if err := q.AddItem(item); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	return item
}

func TestNewQueue(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())

	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d items", q.Len())
	}
	if len(q.Items()) != 0 {
		t.Errorf("Expected no items, got %d", len(q.Items()))
	}
}

func TestNewItem(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := q.NewItem("https://b23.tv/abc", testMeta(), testQuality())

	if !strings.HasPrefix(item.ID, "dl-") {
		t.Errorf("Expected ID to start with 'dl-', got '%s'", item.ID)
	}
	if item.Status != model.DownloadStatusPending {
		t.Errorf("Expected status pending, got %s", item.Status)
	}
	if item.Title != "Test video" {
		t.Errorf("Expected title from metadata, got '%s'", item.Title)
	}
	if item.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestGenerateItemID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := generateItemID()
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestAddItem(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())

	first := addReady(t, q)
	second := addReady(t, q)

	items := q.Items()
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].ID != first.ID || items[1].ID != second.ID {
		t.Error("Expected items in insertion order")
	}
}

func TestAddItem_DuplicateID(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn(), WithIDGenerator(func() string { return "fixed" }))

	require.NoError(t, q.AddItem(q.NewItem("u1", nil, nil)))
	err := q.AddItem(q.NewItem("u2", nil, nil))

	require.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, q.Len())
}

func TestAddItem_AssignsMissingFields(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := &model.DownloadItem{SourceURL: "BV1xx411c7mD"}

	require.NoError(t, q.AddItem(item))
	require.NotEmpty(t, item.ID)

	got, ok := q.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, model.DownloadStatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestAddItem_StoresCopy(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := addReady(t, q)

	item.Title = "changed outside"
	item.Quality.Video.Description = "changed"

	got, _ := q.Get(item.ID)
	assert.Equal(t, "Test video", got.Title)
	assert.Equal(t, "1080P", got.Quality.Video.Description)
}

func TestUnknownIDIsNoop(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := addReady(t, q)
	before := q.Items()

	q.UpdateProgress("missing", 50)
	require.NoError(t, q.UpdateStatus("missing", model.DownloadStatusCompleted))

	after := q.Items()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("queue changed (-before +after):\n%s", diff)
	}
	got, _ := q.Get(item.ID)
	assert.Equal(t, 0, got.Progress)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []model.DownloadStatus
		wantErr bool
	}{
		{"pending to downloading", []model.DownloadStatus{model.DownloadStatusDownloading}, false},
		{"full success", []model.DownloadStatus{model.DownloadStatusDownloading, model.DownloadStatusCompleted}, false},
		{"fail then retry", []model.DownloadStatus{model.DownloadStatusDownloading, model.DownloadStatusFailed, model.DownloadStatusPending}, false},
		{"pending to completed", []model.DownloadStatus{model.DownloadStatusCompleted}, true},
		{"completed to downloading", []model.DownloadStatus{model.DownloadStatusDownloading, model.DownloadStatusCompleted, model.DownloadStatusDownloading}, true},
		{"unknown status", []model.DownloadStatus{"paused"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			q := newTestQueue(&fakeFetcher{}, loggedIn(), WithMetrics(m))
			item := addReady(t, q)

			var err error
			for _, st := range tt.path {
				if err = q.UpdateStatus(item.ID, st); err != nil {
					break
				}
			}
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTransition))
			} else {
				require.NoError(t, err)
				got, _ := q.Get(item.ID)
				assert.Equal(t, tt.path[len(tt.path)-1], got.Status)
			}
		})
	}
}

func TestUpdateProgress(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := addReady(t, q)
	require.NoError(t, q.UpdateStatus(item.ID, model.DownloadStatusDownloading))

	q.UpdateProgress(item.ID, 40)
	q.UpdateProgress(item.ID, 30)
	got, _ := q.Get(item.ID)
	assert.Equal(t, 40, got.Progress, "regression ignored while downloading")

	q.UpdateProgress(item.ID, 250)
	got, _ = q.Get(item.ID)
	assert.Equal(t, 100, got.Progress, "clamped")
}

func TestExecuteDownload_NotLoggedIn(t *testing.T) {
	fetcher := &fakeFetcher{path: "/tmp/x.mp4"}
	q := newTestQueue(fetcher, &fakeSession{})
	item := addReady(t, q)

	err := q.ExecuteDownload(context.Background(), item.ID)

	require.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, 0, fetcher.callCount())
	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusFailed, got.Status)
	assert.Equal(t, "not logged in", got.LastError)
}

func TestExecuteDownload_MissingPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		meta    *model.VideoMetadata
		quality *model.QualitySelection
		wantMsg string
	}{
		{"no metadata", nil, testQuality(), "video info not loaded"},
		{"no quality", testMeta(), nil, "no quality selected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			q := newTestQueue(fetcher, loggedIn())
			item := q.NewItem("u", tt.meta, tt.quality)
			require.NoError(t, q.AddItem(item))

			err := q.ExecuteDownload(context.Background(), item.ID)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))

			got, _ := q.Get(item.ID)
			assert.Equal(t, model.DownloadStatusFailed, got.Status)
			assert.Equal(t, tt.wantMsg, got.LastError)
			assert.Equal(t, 0, fetcher.callCount())
		})
	}
}

func TestExecuteDownload_Success(t *testing.T) {
	fetcher := &fakeFetcher{path: "/downloads/Test video.mp4", progress: []int{10, 55, 90}}
	m := metrics.New()
	q := newTestQueue(fetcher, loggedIn(), WithMetrics(m))
	item := addReady(t, q)

	var seen []int
	q.SetChangeCallback(func(it *model.DownloadItem) { seen = append(seen, it.Progress) })

	require.NoError(t, q.ExecuteDownload(context.Background(), item.ID))

	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/downloads/Test video.mp4", got.OutputPath)
	assert.Equal(t, []int{0, 10, 55, 90, 100}, seen)

	require.Equal(t, 1, fetcher.callCount())
	req := fetcher.calls[0]
	assert.Equal(t, "SESSDATA=tok", req.Credential)
	assert.Equal(t, "BV1xx411c7mD", req.Metadata.BVID)
	if diff := cmp.Diff(*testQuality(), req.Quality, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("quality mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsFinished.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveDownloads))
}

func TestExecuteDownload_FetcherErrorVerbatim(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("disk full")}
	q := newTestQueue(fetcher, loggedIn())
	item := addReady(t, q)

	err := q.ExecuteDownload(context.Background(), item.ID)
	require.EqualError(t, err, "disk full")

	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusFailed, got.Status)
	assert.Equal(t, "disk full", got.LastError)
}

func TestExecuteDownload_RetryReachesCompleted(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection reset")}
	q := newTestQueue(fetcher, loggedIn())
	item := addReady(t, q)

	require.Error(t, q.ExecuteDownload(context.Background(), item.ID))

	// executing a Failed item directly is refused
	require.ErrorIs(t, q.ExecuteDownload(context.Background(), item.ID), ErrIllegalTransition)

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.path = "/downloads/ok.mp4"
	fetcher.progress = []int{50}
	fetcher.mu.Unlock()

	require.NoError(t, q.Retry(item.ID))
	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusPending, got.Status)
	assert.Empty(t, got.LastError)

	require.NoError(t, q.ExecuteDownload(context.Background(), item.ID))
	got, _ = q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestRetry_OnlyFromFailed(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())
	item := addReady(t, q)

	require.ErrorIs(t, q.Retry(item.ID), ErrIllegalTransition)
	require.ErrorIs(t, q.Retry("missing"), ErrItemNotFound)
}

func TestExecuteDownload_SameItemTwice(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	fetcher := &fakeFetcher{path: "/d/a.mp4", block: block, started: started}
	q := newTestQueue(fetcher, loggedIn())
	item := addReady(t, q)

	done := make(chan error, 1)
	go func() { done <- q.ExecuteDownload(context.Background(), item.ID) }()
	<-started

	err := q.ExecuteDownload(context.Background(), item.ID)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestExecuteDownload_DistinctItemsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	fetcher := fetcherFunc(func(ctx context.Context, req Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return fmt.Sprintf("/d/%s.mp4", req.ItemID), nil
	})
	q := newTestQueue(fetcher, loggedIn())

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, addReady(t, q).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.ExecuteDownload(context.Background(), id))
		}()
	}
	require.Eventually(t, func() bool { return inFlight.Load() == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(3), peak.Load())
	for _, id := range ids {
		got, _ := q.Get(id)
		assert.Equal(t, model.DownloadStatusCompleted, got.Status)
	}
}

func TestExecuteDownload_LogoutMidFlightCompletes(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	fetcher := &fakeFetcher{path: "/d/a.mp4", block: block, started: started}
	sess := loggedIn()
	q := newTestQueue(fetcher, sess)
	item := addReady(t, q)

	done := make(chan error, 1)
	go func() { done <- q.ExecuteDownload(context.Background(), item.ID) }()
	<-started
	sess.logout()
	close(block)

	require.NoError(t, <-done)
	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusCompleted, got.Status)
	assert.Equal(t, "SESSDATA=tok", fetcher.calls[0].Credential)
}

func TestUpdateCallback(t *testing.T) {
	q := newTestQueue(&fakeFetcher{}, loggedIn())

	var updates []*model.DownloadItem
	q.SetChangeCallback(func(item *model.DownloadItem) {
		updates = append(updates, item)
	})

	item := addReady(t, q)
	require.NoError(t, q.UpdateStatus(item.ID, model.DownloadStatusDownloading))

	if len(updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(updates))
	}
	if updates[1].Status != model.DownloadStatusDownloading {
		t.Errorf("Expected downloading in callback, got %s", updates[1].Status)
	}

	// callback receives copies
	updates[1].Progress = 99
	got, _ := q.Get(item.ID)
	if got.Progress != 0 {
		t.Errorf("Expected stored progress 0, got %d", got.Progress)
	}
}

type fetcherFunc func(ctx context.Context, req Request) (string, error)

func (f fetcherFunc) Download(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func TestExecuteDownload_SupersededRunIsDropped(t *testing.T) {
	fetcher := newHeldFetcher()
	q := newTestQueue(fetcher, loggedIn())
	item := addReady(t, q)

	first := make(chan error, 1)
	go func() { first <- q.ExecuteDownload(context.Background(), item.ID) }()
	run1 := <-fetcher.calls

	require.NoError(t, q.UpdateStatus(item.ID, model.DownloadStatusFailed))
	require.NoError(t, q.Retry(item.ID))

	second := make(chan error, 1)
	go func() { second <- q.ExecuteDownload(context.Background(), item.ID) }()
	run2 := <-fetcher.calls

	run1.req.Progress(80)
	got, _ := q.Get(item.ID)
	assert.Equal(t, 0, got.Progress)

	run1.result <- fetchResult{path: "/downloads/old.mp4"}
	require.ErrorIs(t, <-first, ErrRunSuperseded)
	got, _ = q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusDownloading, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Empty(t, got.OutputPath)

	run2.req.Progress(40)
	got, _ = q.Get(item.ID)
	assert.Equal(t, 40, got.Progress)

	run2.result <- fetchResult{path: "/downloads/new.mp4"}
	require.NoError(t, <-second)
	got, _ = q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/downloads/new.mp4", got.OutputPath)
}

func TestExecuteDownload_FailedWhileRunningKeepsFailed(t *testing.T) {
	fetcher := newHeldFetcher()
	q := newTestQueue(fetcher, loggedIn())
	item := addReady(t, q)

	done := make(chan error, 1)
	go func() { done <- q.ExecuteDownload(context.Background(), item.ID) }()
	run := <-fetcher.calls

	require.NoError(t, q.UpdateStatus(item.ID, model.DownloadStatusFailed))
	run.result <- fetchResult{err: errors.New("late failure")}

	err := <-done
	require.ErrorIs(t, err, ErrRunSuperseded)
	assert.ErrorContains(t, err, "late failure")
	got, _ := q.Get(item.ID)
	assert.Equal(t, model.DownloadStatusFailed, got.Status)
}
