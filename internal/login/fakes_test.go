package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ytget/cilicili/internal/model"
)

type fakeTask struct {
	mu        sync.Mutex
	fn        func()
	repeating bool
	delay     time.Duration
	cancelled bool
}

func (t *fakeTask) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *fakeTask) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// fakeScheduler records tasks and runs them only when the test says so
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) Every(interval time.Duration, fn func()) Handle {
	return s.add(&fakeTask{fn: fn, repeating: true, delay: interval})
}

func (s *fakeScheduler) After(d time.Duration, fn func()) Handle {
	return s.add(&fakeTask{fn: fn, delay: d})
}

func (s *fakeScheduler) add(t *fakeTask) *fakeTask {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return t
}

func (s *fakeScheduler) filter(repeating bool, activeOnly bool) []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTask
	for _, t := range s.tasks {
		if t.repeating != repeating {
			continue
		}
		if activeOnly && t.isCancelled() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// activePollers returns the repeating tasks that were not cancelled
func (s *fakeScheduler) activePollers() []*fakeTask { return s.filter(true, true) }

// allPollers returns every repeating task ever scheduled
func (s *fakeScheduler) allPollers() []*fakeTask { return s.filter(true, false) }

// tick fires every active repeating task once
func (s *fakeScheduler) tick() {
	for _, t := range s.activePollers() {
		t.fn()
	}
}

// fireAfter runs the pending delayed tasks
func (s *fakeScheduler) fireAfter() {
	for _, t := range s.filter(false, true) {
		t.Cancel()
		t.fn()
	}
}

type pollCall struct {
	key string
}

type fakeAuthAPI struct {
	mu         sync.Mutex
	challenges []model.LoginChallenge
	challErr   error
	results    []model.PollResult
	pollErr    error
	polls      []pollCall
	// onPoll runs inside PollLoginStatus before the result is returned
	onPoll func()
}

func (f *fakeAuthAPI) GetLoginQRCode(context.Context) (model.LoginChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challErr != nil {
		return model.LoginChallenge{}, f.challErr
	}
	if len(f.challenges) == 0 {
		return model.LoginChallenge{}, errors.New("no challenge queued")
	}
	ch := f.challenges[0]
	f.challenges = f.challenges[1:]
	return ch, nil
}

func (f *fakeAuthAPI) PollLoginStatus(_ context.Context, key string) (model.PollResult, error) {
	f.mu.Lock()
	f.polls = append(f.polls, pollCall{key: key})
	hook := f.onPoll
	var res model.PollResult
	err := f.pollErr
	if err == nil && len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	} else if err == nil {
		res = model.PollResult{Code: model.PollCodePending}
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return res, err
}

func (f *fakeAuthAPI) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polls)
}

type setCall struct {
	loggedIn   bool
	profile    *model.UserProfile
	credential string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []setCall
	err   error
}

func (r *recordingSink) SetSession(_ context.Context, loggedIn bool, profile *model.UserProfile, credential string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, setCall{loggedIn: loggedIn, profile: profile, credential: credential})
	return r.err
}

func (r *recordingSink) snapshot() []setCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]setCall(nil), r.calls...)
}

type fakeProfiles struct {
	profile *model.UserProfile
	err     error
	creds   []string
}

func (f *fakeProfiles) GetUserProfile(_ context.Context, credential string) (*model.UserProfile, error) {
	f.creds = append(f.creds, credential)
	return f.profile, f.err
}

func pending() model.PollResult {
	return model.PollResult{Code: model.PollCodePending, Message: "not scanned"}
}

func scanned() model.PollResult {
	return model.PollResult{Code: model.PollCodeScanned, Message: "scanned"}
}

func success(cred string) model.PollResult {
	return model.PollResult{Code: model.PollCodeSuccess, Credential: cred}
}

func expired() model.PollResult {
	return model.PollResult{Code: model.PollCodeExpired, Message: "expired"}
}
