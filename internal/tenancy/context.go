// internal/tenancy/context.go
//
// Current-subsite state: session-scoped context, process-wide flags, and
// the switch-and-restore guard.
//
// Context
// -------
// Three layers of state decide which subsite a query is scoped to:
//
//   - State      — process-wide: the disable-scoping flag used by
//     maintenance tooling, and a forced-subsite override (single ID or
//     list) for read-only batch scenarios.  Explicit object, no package
//     globals.
//   - SessionStore — one persisted value: the subsite ID resolved for
//     this session, surviving across requests.
//   - Context    — the per-session working object.  CurrentID applies the
//     precedence contract: forced override → explicit request override →
//     session value → fresh Resolve cached back into the session.
//
// ChangeSubsite re-derives the active locale from the subsite's language
// and invalidates the permission cache, but only when the subsite actually
// changed.  WithSubsite is the guard used by duplication: it switches to
// the target subsite, runs fn, and restores the previous value on every
// exit path.
//
// Notes
// -----
// • The guard is process-observable state when the Context is shared;
//   concurrent duplications must be serialized by the caller.
package tenancy

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/canopycms/canopy/internal/subsite"
)

// SessionStore persists the resolved subsite ID for a session's lifetime.
// The cookie-backed implementation lives in internal/session.
type SessionStore interface {
	SubsiteID() (uint64, bool)
	SetSubsiteID(uint64)
}

// PermissionCache is the slice of the access layer the context needs: the
// ability to flush memoized accessible-subsites results when the current
// subsite changes.
type PermissionCache interface {
	Invalidate()
}

//
// Process-wide flags
//

// State holds the process-wide tenancy switches shared by every Context.
type State struct {
	mu       sync.RWMutex
	disabled bool
	forced   []uint64
}

// DisableScoping turns subsite filtering off or on process-wide.  While
// disabled, repository queries see rows from all subsites.
func (s *State) DisableScoping(off bool) {
	s.mu.Lock()
	s.disabled = off
	s.mu.Unlock()
}

// ScopingDisabled reports the disable flag.
func (s *State) ScopingDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled
}

// Force pins resolution to the given subsite IDs.  While set, normal
// resolution is suppressed entirely and CurrentID returns the first ID.
// Intended for read-only batch jobs.
func (s *State) Force(ids ...uint64) {
	s.mu.Lock()
	s.forced = ids
	s.mu.Unlock()
}

// ClearForced removes the forced override.
func (s *State) ClearForced() {
	s.mu.Lock()
	s.forced = nil
	s.mu.Unlock()
}

// Forced returns the forced ID list, or nil when no override is active.
func (s *State) Forced() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forced
}

//
// Session-scoped context
//

// Context tracks the current subsite for one session.  Not safe for
// concurrent use; each request builds its own Context over the shared
// State.
type Context struct {
	resolver *Resolver
	state    *State
	db       *sqlx.DB
	sess     SessionStore    // may be nil (batch jobs)
	perms    PermissionCache // may be nil

	mu      sync.Mutex
	current *uint64 // memo for this context's lifetime
	locale  string
}

// NewContext builds a session context.  sess and perms may be nil.
func NewContext(r *Resolver, st *State, db *sqlx.DB, sess SessionStore, perms PermissionCache) *Context {
	return &Context{resolver: r, state: st, db: db, sess: sess, perms: perms}
}

// CurrentID returns the subsite ID scoping this session.  override, when
// non-nil, is the explicit per-request parameter and beats everything
// except a process-wide forced override.
func (c *Context) CurrentID(ctx context.Context, host string, override *uint64) (uint64, error) {
	if forced := c.state.Forced(); len(forced) > 0 {
		return forced[0], nil
	}
	if override != nil {
		c.mu.Lock()
		v := *override
		c.current = &v
		c.mu.Unlock()
		return v, nil
	}

	c.mu.Lock()
	if c.current != nil {
		id := *c.current
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	if c.sess != nil {
		if id, ok := c.sess.SubsiteID(); ok {
			c.mu.Lock()
			c.current = &id
			c.mu.Unlock()
			return id, nil
		}
	}

	id, err := c.resolver.Resolve(ctx, host)
	if err != nil {
		return subsite.MainSiteID, err
	}
	c.mu.Lock()
	c.current = &id
	c.mu.Unlock()
	if c.sess != nil {
		c.sess.SetSubsiteID(id)
	}
	return id, nil
}

// ChangeSubsite makes id the session's current subsite.  The active locale
// is re-derived from the subsite's language when set, and the permission
// cache is flushed, but only when the subsite actually changed.
func (c *Context) ChangeSubsite(ctx context.Context, id uint64) error {
	c.mu.Lock()
	changed := c.current == nil || *c.current != id
	c.current = &id
	c.mu.Unlock()

	if c.sess != nil {
		c.sess.SetSubsiteID(id)
	}

	if id != subsite.MainSiteID {
		rec, err := subsite.ByID(ctx, c.db, id)
		if err != nil {
			return err
		}
		if rec.Language != "" {
			c.mu.Lock()
			c.locale = rec.Language
			c.mu.Unlock()
		}
	}

	if changed && c.perms != nil {
		c.perms.Invalidate()
	}
	return nil
}

// Activate makes rec the current subsite.
func (c *Context) Activate(ctx context.Context, rec *subsite.Record) error {
	return c.ChangeSubsite(ctx, rec.ID)
}

// Locale returns the locale last derived by ChangeSubsite, or "".
func (c *Context) Locale() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locale
}

// WithSubsite runs fn with id as the current subsite and restores the
// previous value afterwards, on error and panic paths included.
func (c *Context) WithSubsite(ctx context.Context, id uint64, fn func() error) error {
	c.mu.Lock()
	var prev *uint64
	if c.current != nil {
		v := *c.current
		prev = &v
	}
	c.mu.Unlock()

	if err := c.ChangeSubsite(ctx, id); err != nil {
		return err
	}
	defer func() {
		if prev != nil {
			_ = c.ChangeSubsite(ctx, *prev)
		} else {
			c.mu.Lock()
			c.current = nil
			c.mu.Unlock()
		}
	}()
	return fn()
}
