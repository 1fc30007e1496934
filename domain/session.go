package domain

import (
	"maps"
	"time"
)

// Session is the application's view of the authenticated identity.
// A nil *Session means no one is signed in.
type Session struct {
	Identity    string         `json:"identity"`        // Subject id assigned by the identity provider
	Email       string         `json:"email,omitempty"` // Nullable until the provider or profile supplies it
	DisplayName string         `json:"display_name,omitempty"`
	PhotoURL    string         `json:"photo_url,omitempty"` // Photo reference as returned by the provider
	Profile     map[string]any `json:"profile,omitempty"`   // Stored profile document; nil when it could not be fetched
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
}

// Clone returns a copy that shares nothing mutable with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Profile != nil {
		out.Profile = maps.Clone(s.Profile)
	}
	if s.LastLoginAt != nil {
		t := *s.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

// Present reports whether the session carries an authenticated identity.
func (s *Session) Present() bool {
	return s != nil && s.Identity != ""
}
