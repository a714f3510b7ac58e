package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Instance is one browser lent out by a Pool. The inUse, lastUsed and
// uses fields belong to the pool and are only touched under its mutex.
type Instance struct {
	ID        string
	handle    Handle
	launchKey string
	profile   Profile
	temporary bool
	createdAt time.Time

	lastUsed time.Time
	inUse    bool
	uses     int

	closeOnce sync.Once
	closeErr  error
}

func newInstance(h Handle, profile Profile, temporary bool, now time.Time) *Instance {
	return &Instance{
		ID:        uuid.NewString(),
		handle:    h,
		launchKey: profile.LaunchKey(),
		profile:   profile,
		temporary: temporary,
		createdAt: now,
		lastUsed:  now,
		inUse:     true,
		uses:      1,
	}
}

// NewPage opens a tab with the per-page settings of the borrowing profile.
func (i *Instance) NewPage(ctx context.Context) (Page, error) {
	return i.handle.NewPage(ctx, i.profile.PageOptions())
}

// NewPageWith opens a tab with explicit options. An empty user agent is
// filled in from the profile.
func (i *Instance) NewPageWith(ctx context.Context, opts PageOptions) (Page, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = i.profile.UserAgentString()
	}
	return i.handle.NewPage(ctx, opts)
}

// Ping checks that the browser process still responds.
func (i *Instance) Ping(ctx context.Context) error {
	return i.handle.Ping(ctx)
}

// Temporary reports whether the instance bypasses the pool.
func (i *Instance) Temporary() bool {
	return i.temporary
}

// Profile returns the profile the instance was borrowed with.
func (i *Instance) Profile() Profile {
	return i.profile
}

// CreatedAt returns the launch time.
func (i *Instance) CreatedAt() time.Time {
	return i.createdAt
}

func (i *Instance) close() error {
	i.closeOnce.Do(func() {
		i.closeErr = i.handle.Close()
	})
	return i.closeErr
}
