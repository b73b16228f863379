package graph

import (
	"time"

	"production-tracker-backend/internal/model"
)

// Kind is the resolved settings variant of a process. KindNone means the
// process has no settings row and can never be the target of a transition.
type Kind string

const (
	KindNone      Kind = ""
	KindDefault   Kind = Kind(model.SettingsDefault)
	KindStart     Kind = Kind(model.SettingsStart)
	KindCondition Kind = Kind(model.SettingsCondition)
	KindEnding    Kind = Kind(model.SettingsEnding)
)

// Settings is the tagged union Default | Start | Condition | Ending | None.
// It is resolved once when a process is loaded.
type Settings struct {
	Kind Kind

	quarantineHours   *int
	quarantineMinutes *int
	maxTimeMinutes    *int
	condPath          *bool
}

// Resolve builds the union from a loaded process.
func Resolve(p *model.Process) Settings {
	if p == nil || p.Settings == nil {
		return Settings{Kind: KindNone}
	}
	s := p.Settings
	switch s.Kind {
	case model.SettingsDefault, model.SettingsStart, model.SettingsCondition, model.SettingsEnding:
	default:
		return Settings{Kind: KindNone}
	}
	return Settings{
		Kind:              Kind(s.Kind),
		quarantineHours:   s.QuarantineHours,
		quarantineMinutes: s.QuarantineMinutes,
		maxTimeMinutes:    s.MaxTimeInProcessMinutes,
		condPath:          s.CondPath,
	}
}

func (s Settings) Present() bool { return s.Kind != KindNone }

func (s Settings) IsCondition() bool { return s.Kind == KindCondition }

func (s Settings) IsStart() bool { return s.Kind == KindStart }

func (s Settings) IsEnding() bool { return s.Kind == KindEnding }

// timed reports whether the variant may carry quarantine timers.
// Default, start and condition do, in that precedence; ending never does.
func (s Settings) timed() bool {
	switch s.Kind {
	case KindDefault, KindStart, KindCondition:
		return true
	}
	return false
}

// MoveQuarantine returns the hour-based quarantine applied on move-out.
func (s Settings) MoveQuarantine() (time.Duration, bool) {
	if !s.timed() || s.quarantineHours == nil || *s.quarantineHours <= 0 {
		return 0, false
	}
	return time.Duration(*s.quarantineHours) * time.Hour, true
}

// ReceiveQuarantine returns the minute-based quarantine applied on receive.
func (s Settings) ReceiveQuarantine() (time.Duration, bool) {
	if !s.timed() || s.quarantineMinutes == nil || *s.quarantineMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*s.quarantineMinutes) * time.Minute, true
}

// MaxTimeInProcess is only honoured for default settings.
func (s Settings) MaxTimeInProcess() (time.Duration, bool) {
	if s.Kind != KindDefault || s.maxTimeMinutes == nil || *s.maxTimeMinutes <= 0 {
		return 0, false
	}
	return time.Duration(*s.maxTimeMinutes) * time.Minute, true
}

// CondPath is the branch this process accepts when entered from a condition process.
func (s Settings) CondPath() (bool, bool) {
	if !s.Present() || s.condPath == nil {
		return false, false
	}
	return *s.condPath, true
}
