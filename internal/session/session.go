// Package session owns the authentication lifecycle: sign-in, sign-out,
// token refresh, restore on start, and the listeners that react to each
// transition. The cache subscribes here so that it never serves one user's
// data to another.
package session

import (
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/rshade/finsync/internal/apierr"
)

// Profile defaults applied when the backend profile lacks a field.
const (
	DefaultCurrency = "USD"
	DefaultLanguage = "en"
	DefaultTimezone = "UTC"
)

// ProviderPassword is the Session.Provider value for email/password sign-in.
const ProviderPassword = "password"

// State is the lifecycle state of the store.
type State int

// Lifecycle states.
const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session is the signed-in identity plus the user's display settings.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	Currency     string    `json:"currency"`
	Language     string    `json:"language"`
	Timezone     string    `json:"timezone"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Provider     string    `json:"provider"`
}

// IsAuthenticated reports whether the session carries a usable identity.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != "" && s.UserID != ""
}

// Location returns the session's time zone, or UTC if it cannot be loaded.
func (s Session) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ExpiresWithin reports whether the access token expires before now+skew.
// A zero ExpiresAt never expires.
func (s Session) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

func (s Session) profile() Profile {
	return Profile{
		DisplayName: s.DisplayName,
		Currency:    s.Currency,
		Language:    s.Language,
		Timezone:    s.Timezone,
	}
}

func (s *Session) applyProfile(p Profile) {
	p = p.withDefaults()
	if p.DisplayName != "" {
		s.DisplayName = p.DisplayName
	}
	s.Currency = p.Currency
	s.Language = p.Language
	s.Timezone = p.Timezone
}

func (s *Session) applyTokens(t Tokens) {
	s.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		s.RefreshToken = t.RefreshToken
	}
	s.ExpiresAt = t.ExpiresAt
}

// User is the identity the auth backend reports for a token.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Tokens is an issued credential.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Profile holds the per-user settings stored by the backend.
type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Language    string `json:"language,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

func (p Profile) withDefaults() Profile {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	return p
}

// ProfileUpdate changes profile settings. Nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	Language    *string `json:"language,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Currency == nil && u.Language == nil && u.Timezone == nil
}

// Validate checks the settings and normalizes currency and language codes in place.
func (u *ProfileUpdate) Validate() error {
	const op = "session.ProfileUpdate"
	if u.IsEmpty() {
		return apierr.New(apierr.KindValidation, op, "no settings to update")
	}
	if u.Currency != nil {
		unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(*u.Currency)))
		if err != nil {
			return apierr.Newf(apierr.KindValidation, op, "unknown currency %q", *u.Currency)
		}
		code := unit.String()
		u.Currency = &code
	}
	if u.Language != nil {
		tag, err := language.Parse(strings.TrimSpace(*u.Language))
		if err != nil {
			return apierr.Newf(apierr.KindValidation, op, "invalid language tag %q", *u.Language)
		}
		s := tag.String()
		u.Language = &s
	}
	if u.Timezone != nil {
		if _, err := time.LoadLocation(*u.Timezone); err != nil || *u.Timezone == "" {
			return apierr.Newf(apierr.KindValidation, op, "unknown time zone %q", *u.Timezone)
		}
	}
	return nil
}

func (u ProfileUpdate) apply(p Profile) Profile {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Currency != nil {
		p.Currency = *u.Currency
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
	return p
}

// EventType names a session transition.
type EventType string

// Session transitions delivered to listeners.
const (
	EventSignedIn        EventType = "signed_in"
	EventSignedOut       EventType = "signed_out"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventSessionRestored EventType = "session_restored"
	EventProfileUpdated  EventType = "profile_updated"
)

// Event is delivered to listeners after a successful transition. Session is
// the zero value for EventSignedOut.
type Event struct {
	Type    EventType
	Session Session
}

// AuthEventType names an event pushed by the auth backend.
type AuthEventType string

// External auth events.
const (
	AuthSignedIn       AuthEventType = "SIGNED_IN"
	AuthSignedOut      AuthEventType = "SIGNED_OUT"
	AuthTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
)

// AuthEvent is an auth state change reported by the backend outside a call
// made by this store.
type AuthEvent struct {
	Type     AuthEventType
	Tokens   Tokens
	Provider string
}
