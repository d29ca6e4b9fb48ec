package automation

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Settings are the action tunables. They can change at runtime; every
// Execute call works on the snapshot it was handed.
type Settings struct {
	RetryAttempts int           `validate:"gte=1,lte=100"`
	CommandDelay  time.Duration `validate:"gte=0"`
	RetryBackoff  time.Duration `validate:"gte=0"`
	CommitKey     string        `validate:"required"`
}

func DefaultSettings() Settings {
	return Settings{
		RetryAttempts: 3,
		CommandDelay:  200 * time.Millisecond,
		RetryBackoff:  time.Second,
		CommitKey:     "enter",
	}
}

func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	return nil
}

func (s Settings) normalized() Settings {
	if s.RetryAttempts < 1 {
		s.RetryAttempts = 1
	}
	if s.CommandDelay < 0 {
		s.CommandDelay = 0
	}
	if s.RetryBackoff < 0 {
		s.RetryBackoff = 0
	}
	s.CommitKey = strings.TrimSpace(s.CommitKey)
	if s.CommitKey == "" {
		s.CommitKey = DefaultSettings().CommitKey
	}
	return s
}

// SettingsStore publishes Settings to concurrently running units.
type SettingsStore struct {
	p atomic.Pointer[Settings]
}

func NewSettingsStore(s Settings) *SettingsStore {
	st := &SettingsStore{}
	s = s.normalized()
	st.p.Store(&s)
	return st
}

func (st *SettingsStore) Load() Settings {
	if p := st.p.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

// Update replaces the current settings. Invalid settings are rejected and the
// previous ones stay in effect.
func (st *SettingsStore) Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.normalized()
	st.p.Store(&s)
	return nil
}
