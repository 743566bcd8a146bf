// internal/tenancy/engine.go
//
// Engine wiring.
//
// Context
// -------
// Engine bundles the pieces a running deployment shares: the resolver,
// the process-wide State, the host-map cache, the accessible-subsites
// memo, and the subsite repository whose AfterSave hook keeps the host-map
// artifact and both caches in step with subsite writes.  cmd/web builds
// one Engine at boot; each request derives a session Context from it.
package tenancy

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/canopycms/canopy/internal/access"
	"github.com/canopycms/canopy/internal/permission"
	"github.com/canopycms/canopy/internal/subsite"
)

// PermissionCreateSubsiteAssets governs assigning asset folders to a
// subsite.
const PermissionCreateSubsiteAssets = "SUBSITE_ASSETS_CREATE_SUBSITE"

func init() {
	permission.Register(permission.Definition{
		Code:     PermissionCreateSubsiteAssets,
		Name:     "Create assets in a subsite",
		Category: "Subsites",
		Help:     "Allows assigning asset folders to a specific subsite.",
	})
}

// Options configures an Engine.
type Options struct {
	StrictSubdomainMatching bool
	HostMapPath             string
	SubsiteLabel            string
	MainSiteTitle           string
	AccessCacheSize         int
}

// Engine is the process-wide tenancy assembly.
type Engine struct {
	DB       *sqlx.DB
	Resolver *Resolver
	State    *State
	HostMap  *HostMapCache
	Access   *access.Cache
	Subsites *subsite.Repository

	mainSiteTitle string
}

// NewEngine wires the engine over the shared database handle.
func NewEngine(db *sqlx.DB, o Options) *Engine {
	e := &Engine{
		DB:            db,
		Resolver:      NewResolver(db, o.StrictSubdomainMatching),
		State:         &State{},
		HostMap:       NewHostMapCache(db, o.StrictSubdomainMatching, o.SubsiteLabel, o.HostMapPath),
		Access:        access.NewCache(db, o.AccessCacheSize),
		mainSiteTitle: o.MainSiteTitle,
	}
	e.Subsites = &subsite.Repository{
		DB:        db,
		AfterSave: e.afterSubsiteSave,
	}
	return e
}

// afterSubsiteSave keeps derived state consistent with subsite writes: the
// host-map artifact is regenerated wholesale and the permission memo is
// flushed, since associations may have changed meaning.
func (e *Engine) afterSubsiteSave(ctx context.Context) {
	if _, err := e.HostMap.Rebuild(ctx); err != nil {
		zap.S().Errorw("hostmap rebuild failed", "err", err)
	}
	e.Access.Invalidate()
}

// NewContext derives a session context.  sess may be nil for batch use.
func (e *Engine) NewContext(sess SessionStore) *Context {
	return NewContext(e.Resolver, e.State, e.DB, sess, e.Access)
}

// MainSiteTitle labels the synthetic main-site entry.
func (e *Engine) MainSiteTitle() string { return e.mainSiteTitle }
