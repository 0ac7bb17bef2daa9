package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/model"
)

// ErrCorruptSession is returned by a Storage whose record cannot be decoded
var ErrCorruptSession = errors.New("persisted session is corrupt or was written with another secret")

// Storage persists a single session record
type Storage interface {
	// Save replaces the persisted record
	Save(ctx context.Context, s model.StoredSession) error
	// Load returns the persisted record, or nil if there is none
	Load(ctx context.Context) (*model.StoredSession, error)
	// Clear removes the persisted record; clearing nothing is not an error
	Clear(ctx context.Context) error
}

// Store is the in-memory session plus its persistence
type Store struct {
	mu        sync.RWMutex
	session   model.Session
	loginTime time.Time
	listeners []func(model.Session)

	storage   Storage
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRetention overrides the retention window
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// NewStore creates a logged out Store backed by storage
func NewStore(storage Storage, opts ...Option) *Store {
	if storage == nil {
		panic("session: storage must not be nil")
	}
	s := &Store{
		storage:   storage,
		retention: model.SessionRetention,
		now:       time.Now,
		logger:    xlog.WithComponent("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// IsLoggedIn reports whether a credential is held
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.LoggedIn
}

// Credential returns the current credential, empty when logged out
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Credential
}

// Subscribe registers fn to receive every session change
func (s *Store) Subscribe(fn func(model.Session)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetSession replaces the current session. Logging in with both a profile
// and a credential persists the session; a persistence failure is logged
// and the in-memory session stays valid.
func (s *Store) SetSession(ctx context.Context, loggedIn bool, profile *model.UserProfile, credential string) error {
	if loggedIn && credential == "" {
		return apperr.New(apperr.KindValidation, "logged in session requires a credential")
	}
	if !loggedIn {
		credential = ""
		profile = nil
	}

	s.mu.Lock()
	s.session = model.Session{LoggedIn: loggedIn, Profile: copyProfile(profile), Credential: credential}
	if loggedIn {
		s.loginTime = s.now()
	} else {
		s.loginTime = time.Time{}
	}
	snap := copySession(s.session)
	s.mu.Unlock()

	s.logger.Info().
		Bool("logged_in", loggedIn).
		Bool("has_profile", profile != nil).
		Int(xlog.FieldCredLen, len(credential)).
		Msg("session updated")

	s.notify(snap)

	if loggedIn && profile != nil {
		if err := s.Persist(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist session")
		}
	}
	return nil
}

// Persist writes the current session to storage. Only a logged in session
// with a profile is persisted.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	if !s.session.LoggedIn || s.session.Profile == nil || s.session.Credential == "" {
		s.mu.RUnlock()
		return nil
	}
	loginTime := s.loginTime
	if loginTime.IsZero() {
		loginTime = s.now()
	}
	record := model.StoredSession{
		Credential: s.session.Credential,
		Profile:    copyProfile(s.session.Profile),
		LoginTime:  loginTime.UnixMilli(),
	}
	s.mu.RUnlock()

	if err := s.storage.Save(ctx, record); err != nil {
		return apperr.Wrap(apperr.KindStorage, "save_login_data", err)
	}
	return nil
}

// Restore loads the persisted session. An expired or unreadable record is
// cleared from storage and leaves the store logged out. It reports whether a session was
// restored.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	record, err := s.storage.Load(ctx)
	if errors.Is(err, ErrCorruptSession) {
		s.logger.Warn().Err(err).Msg("persisted session is unreadable, clearing")
		if err := s.storage.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear unreadable session")
		}
		return false, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load persisted session")
		return false, apperr.Wrap(apperr.KindStorage, "load_login_data", err)
	}
	if record == nil {
		return false, nil
	}

	now := s.now()
	if now.Sub(record.LoginAt()) > s.retention || record.Credential == "" {
		s.logger.Info().
			Time("login_at", record.LoginAt()).
			Msg("persisted session expired, clearing")
		if err := s.storage.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear expired session")
		}
		return false, nil
	}

	s.mu.Lock()
	s.session = model.Session{
		LoggedIn:   true,
		Profile:    copyProfile(record.Profile),
		Credential: record.Credential,
	}
	s.loginTime = record.LoginAt()
	snap := copySession(s.session)
	s.mu.Unlock()

	s.logger.Info().Time("login_at", record.LoginAt()).Msg("session restored")
	s.notify(snap)
	return true, nil
}

// Clear logs out and removes the persisted record. The store is logged out
// even if storage fails.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.session = model.Session{}
	s.loginTime = time.Time{}
	s.mu.Unlock()

	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}
	s.logger.Info().Msg("logged out")
	s.notify(model.Session{})
}

func (s *Store) notify(snap model.Session) {
	s.mu.RLock()
	listeners := make([]func(model.Session), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(copySession(snap))
	}
}

func copySession(in model.Session) model.Session {
	in.Profile = copyProfile(in.Profile)
	return in
}

func copyProfile(p *model.UserProfile) *model.UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
