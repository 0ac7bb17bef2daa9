package login

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/metrics"
	"github.com/ytget/cilicili/internal/model"
)

const (
	// DefaultPollInterval is the period between two status polls
	DefaultPollInterval = 2 * time.Second
	// DefaultDismissDelay is how long the success state stays visible
	DefaultDismissDelay = 1500 * time.Millisecond
)

// Status messages shown next to the QR code
const (
	MsgFetching     = "Fetching login QR code..."
	MsgScanPrompt   = "Scan the QR code with the Bilibili app"
	MsgWaiting      = "Waiting for scan..."
	MsgScanned      = "Scanned! Confirm the login on your phone"
	MsgSuccess      = "Login successful! Redirecting..."
	MsgExpired      = "QR code expired, please refresh"
	MsgNetworkError = "Network error, please check your connection"
)

// ErrAttemptActive is returned when a login is started while another one
// is still loading, polling or showing success.
var ErrAttemptActive = errors.New("login attempt already in progress")

// ErrSuperseded is returned to an Attempt whose flow was taken over by a
// newer Acquire.
var ErrSuperseded = errors.New("login attempt superseded")

// AuthAPI is the remote side of the QR login protocol
type AuthAPI interface {
	GetLoginQRCode(ctx context.Context) (model.LoginChallenge, error)
	PollLoginStatus(ctx context.Context, key string) (model.PollResult, error)
}

// ProfileFetcher resolves the profile for a fresh credential
type ProfileFetcher interface {
	GetUserProfile(ctx context.Context, credential string) (*model.UserProfile, error)
}

// SessionSink receives the credential of a successful login
type SessionSink interface {
	SetSession(ctx context.Context, loggedIn bool, profile *model.UserProfile, credential string) error
}

// Status is a snapshot of the controller
type Status struct {
	State     model.LoginState
	Message   string
	Challenge *model.LoginChallenge
}

// Controller is the QR login state machine
type Controller struct {
	mu        sync.Mutex
	state     model.LoginState
	message   string
	challenge *model.LoginChallenge
	// gen identifies the current attempt; callbacks of older attempts
	// compare it and bail out.
	gen uint64
	// owner is the Attempt that currently holds the flow, 0 when none
	owner       uint64
	lastOwner   uint64
	poller      Handle
	dismiss     Handle
	attemptStop context.CancelFunc

	listeners []func(Status)
	onDismiss func()

	api          AuthAPI
	sessions     SessionSink
	profiles     ProfileFetcher
	scheduler    Scheduler
	interval     time.Duration
	dismissDelay time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithScheduler replaces the ticker based scheduler
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithPollInterval sets the poll period
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithDismissDelay sets how long Success is shown before OnDismiss fires
func WithDismissDelay(d time.Duration) Option {
	return func(c *Controller) { c.dismissDelay = d }
}

// WithProfileFetcher enables the profile lookup after a successful login
func WithProfileFetcher(p ProfileFetcher) Option {
	return func(c *Controller) { c.profiles = p }
}

// WithMetrics enables poll and attempt counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates an idle controller
func NewController(api AuthAPI, sessions SessionSink, opts ...Option) *Controller {
	c := &Controller{
		state:        model.LoginStateIdle,
		api:          api,
		sessions:     sessions,
		scheduler:    TickerScheduler{},
		interval:     DefaultPollInterval,
		dismissDelay: DefaultDismissDelay,
		logger:       xlog.WithComponent("login"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current snapshot
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn to receive every status change
func (c *Controller) Subscribe(fn func(Status)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// OnDismiss sets the callback fired once the success state has been shown
// for the dismiss delay.
func (c *Controller) OnDismiss(fn func()) {
	c.mu.Lock()
	c.onDismiss = fn
	c.mu.Unlock()
}

// StartLogin requests a new challenge and starts polling it. It is only
// valid from Idle or Error.
func (c *Controller) StartLogin(ctx context.Context) error {
	return c.start(ctx, 0)
}

// start runs StartLogin on behalf of owner; owner 0 skips the ownership check
func (c *Controller) start(ctx context.Context, owner uint64) error {
	c.mu.Lock()
	if owner != 0 && owner != c.owner {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if !c.state.CanStart() {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("start login from %s: %w", state, ErrAttemptActive)
	}
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.challenge = nil
	c.setStateLocked(model.LoginStateLoading, MsgFetching)
	snap := c.statusLocked()
	c.mu.Unlock()
	c.notify(snap)

	if c.metrics != nil {
		c.metrics.LoginAttempts.Inc()
	}

	challenge, err := c.api.GetLoginQRCode(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug().Msg("challenge arrived for a superseded attempt, dropping")
		return nil
	}
	if err != nil {
		c.setStateLocked(model.LoginStateError, "Failed to get QR code: "+apperr.UserMessage(err))
		snap = c.statusLocked()
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("failed to get login challenge")
		c.notify(snap)
		return fmt.Errorf("get login challenge: %w", err)
	}

	c.challenge = &challenge
	attemptCtx, stop := context.WithCancel(context.Background())
	c.attemptStop = stop
	c.setStateLocked(model.LoginStatePolling, MsgScanPrompt)
	c.poller = c.scheduler.Every(c.interval, func() { c.pollTick(attemptCtx, gen) })
	snap = c.statusLocked()
	c.mu.Unlock()

	c.logger.Info().
		Str(xlog.FieldChallengeKey, challenge.Key).
		Dur("interval", c.interval).
		Msg("polling login challenge")
	c.notify(snap)
	return nil
}

// Refresh abandons the current attempt and starts a new one
func (c *Controller) Refresh(ctx context.Context) error {
	c.Cancel()
	return c.StartLogin(ctx)
}

// Cancel stops any active timer, discards the challenge and returns to Idle
func (c *Controller) Cancel() {
	c.cancel(0)
}

// cancel runs Cancel on behalf of owner. It reports false and leaves the
// flow alone when owner no longer holds it.
func (c *Controller) cancel(owner uint64) bool {
	c.mu.Lock()
	if owner != 0 && owner != c.owner {
		c.mu.Unlock()
		return false
	}
	c.stopLocked()
	if c.dismiss != nil {
		c.dismiss.Cancel()
		c.dismiss = nil
	}
	c.gen++
	c.challenge = nil
	c.setStateLocked(model.LoginStateIdle, "")
	snap := c.statusLocked()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// pollTick checks the challenge once. The network call runs without the
// lock; its result is dropped if the attempt changed meanwhile.
func (c *Controller) pollTick(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != model.LoginStatePolling || c.challenge == nil {
		c.mu.Unlock()
		return
	}
	key := c.challenge.Key
	c.mu.Unlock()

	res, err := c.api.PollLoginStatus(ctx, key)

	c.mu.Lock()
	if gen != c.gen || c.state != model.LoginStatePolling {
		c.mu.Unlock()
		c.logger.Debug().Str(xlog.FieldChallengeKey, key).Msg("dropping stale poll result")
		return
	}

	if err != nil {
		c.stopLocked()
		c.setStateLocked(model.LoginStateError, MsgNetworkError)
		snap := c.statusLocked()
		c.mu.Unlock()
		c.countPoll("error")
		c.logger.Error().Err(err).Str(xlog.FieldChallengeKey, key).Msg("login poll failed")
		c.notify(snap)
		return
	}
	c.countPoll(strconv.Itoa(int(res.Code)))

	switch res.Code {
	case model.PollCodePending:
		c.setStateLocked(model.LoginStatePolling, MsgWaiting)
	case model.PollCodeScanned:
		c.setStateLocked(model.LoginStatePolling, MsgScanned)
	case model.PollCodeExpired:
		c.stopLocked()
		c.setStateLocked(model.LoginStateError, MsgExpired)
	case model.PollCodeSuccess:
		c.stopLocked()
		if res.Credential == "" {
			c.setStateLocked(model.LoginStateError, "Login succeeded but no credential was returned")
			break
		}
		c.setStateLocked(model.LoginStateSuccess, MsgSuccess)
		c.dismiss = c.scheduler.After(c.dismissDelay, func() { c.fireDismiss(gen) })
	default:
		c.setStateLocked(model.LoginStatePolling, "Status: "+res.Message)
		c.logger.Warn().
			Int(xlog.FieldCode, int(res.Code)).
			Str("message", res.Message).
			Msg("unrecognized login poll code")
	}
	snap := c.statusLocked()
	c.mu.Unlock()

	if snap.State == model.LoginStateSuccess {
		c.completeLogin(gen, res.Credential)
	}
	c.notify(snap)
}

// completeLogin pushes the credential and, when configured, the profile
// into the session store. Nothing is pushed once the attempt identified by
// gen was cancelled.
func (c *Controller) completeLogin(gen uint64, credential string) {
	c.mu.Lock()
	current := gen == c.gen
	c.mu.Unlock()
	if !current {
		c.logger.Debug().Msg("login cancelled before the credential was stored, dropping")
		return
	}

	ctx := context.Background()
	if err := c.sessions.SetSession(ctx, true, nil, credential); err != nil {
		c.logger.Error().Err(err).Msg("failed to store login credential")
		return
	}
	c.logger.Info().Int(xlog.FieldCredLen, len(credential)).Msg("login succeeded")

	if c.profiles == nil {
		return
	}
	profile, err := c.profiles.GetUserProfile(ctx, credential)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to fetch user profile")
		return
	}
	if err := c.sessions.SetSession(ctx, true, profile, credential); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store user profile")
	}
}

func (c *Controller) fireDismiss(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != model.LoginStateSuccess {
		c.mu.Unlock()
		return
	}
	c.dismiss = nil
	fn := c.onDismiss
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// stopLocked cancels the poll timer and any in-flight poll request
func (c *Controller) stopLocked() {
	if c.poller != nil {
		c.poller.Cancel()
		c.poller = nil
	}
	if c.attemptStop != nil {
		c.attemptStop()
		c.attemptStop = nil
	}
}

func (c *Controller) setStateLocked(state model.LoginState, msg string) {
	if state != c.state {
		c.logger.Debug().
			Str(xlog.FieldOldState, c.state.String()).
			Str(xlog.FieldNewState, state.String()).
			Msg("login state changed")
	}
	c.state = state
	c.message = msg
}

func (c *Controller) statusLocked() Status {
	st := Status{State: c.state, Message: c.message}
	if c.challenge != nil {
		ch := *c.challenge
		st.Challenge = &ch
	}
	return st
}

func (c *Controller) notify(st Status) {
	c.mu.Lock()
	listeners := make([]func(Status), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

func (c *Controller) countPoll(code string) {
	if c.metrics != nil {
		c.metrics.LoginPolls.WithLabelValues(code).Inc()
	}
}
