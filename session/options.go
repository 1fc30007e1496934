package session

import (
	"time"

	"go.pilab.hu/recovery/domain"
	"go.pilab.hu/recovery/internal/metrics"
	"go.pilab.hu/recovery/log"
)

const (
	// DefaultCacheKey is the SessionCache key the session mirror is stored under.
	DefaultCacheKey = "session"
	// DefaultPostAuthTarget is where a successful sign-in navigates.
	DefaultPostAuthTarget = "/onboarding"
	// DefaultSignedOutTarget is where a successful sign-out navigates.
	DefaultSignedOutTarget = "/welcome"
)

// Options configures a Manager. Zero values fall back to the defaults above.
type Options struct {
	CacheKey          string // Local cache key of the session mirror
	PostAuthTarget    string // Route requested after a successful social sign-in
	SignedOutTarget   string // Route requested after sign-out
	ProfileCollection string
	// SeedFromCache publishes the cached mirror at Start, before the first
	// provider notification arrives.
	SeedFromCache bool

	Logger  log.Logger
	Metrics *metrics.SessionMetrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CacheKey == "" {
		o.CacheKey = DefaultCacheKey
	}
	if o.PostAuthTarget == "" {
		o.PostAuthTarget = DefaultPostAuthTarget
	}
	if o.SignedOutTarget == "" {
		o.SignedOutTarget = DefaultSignedOutTarget
	}
	if o.ProfileCollection == "" {
		o.ProfileCollection = domain.UsersCollection
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
