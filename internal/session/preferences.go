package session

import (
	"context"
	"encoding/json"
	"fmt"

	"fyne.io/fyne/v2"

	"github.com/ytget/cilicili/internal/model"
)

// KeyLoginData is the preference key holding the serialized session
const KeyLoginData = "login_data"

// PreferencesStorage keeps the session as plain JSON in the app preferences
type PreferencesStorage struct {
	prefs fyne.Preferences
}

// NewPreferencesStorage creates a storage over the given app's preferences
func NewPreferencesStorage(app fyne.App) *PreferencesStorage {
	return &PreferencesStorage{prefs: app.Preferences()}
}

// Save replaces the persisted record
func (p *PreferencesStorage) Save(_ context.Context, s model.StoredSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	p.prefs.SetString(KeyLoginData, string(data))
	return nil
}

// Load returns the persisted record, or nil if there is none
func (p *PreferencesStorage) Load(_ context.Context) (*model.StoredSession, error) {
	raw := p.prefs.String(KeyLoginData)
	if raw == "" {
		return nil, nil
	}
	var s model.StoredSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w: %w", ErrCorruptSession, err)
	}
	return &s, nil
}

// Clear removes the persisted record
func (p *PreferencesStorage) Clear(_ context.Context) error {
	p.prefs.RemoveValue(KeyLoginData)
	return nil
}
