// internal/access/accessible.go
//
// Accessible-subsites query with a process-lifetime memo.
//
// Context
// -------
// AccessibleSubsites computes the ordered set of subsites a member may
// reach with one of the requested permission codes: the union of direct
// grants and role-transitive grants, with access-all-subsites groups
// reaching every titled subsite.  When includeMainSite is requested and
// the member separately holds a code through any access-all-subsites
// group, a synthetic main-site record (ID 0) labeled mainSiteTitle is
// prepended.
//
// Results are memoized per (member, codes, includeMainSite, label) tuple
// in an LRU.  There is no TTL: Invalidate must be called whenever group,
// permission, or association data changes (subsite change, permission
// edit, data reset).
package access

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/canopycms/canopy/internal/cache"
	"github.com/canopycms/canopy/internal/metrics"
	"github.com/canopycms/canopy/internal/subsite"
)

// DefaultCacheSize bounds the memo; one entry per distinct query tuple.
const DefaultCacheSize = 256

// Cache memoizes AccessibleSubsites results.
type Cache struct {
	db *sqlx.DB

	mu  sync.Mutex
	lru *cache.LRU
}

// NewCache builds a memo over the shared database handle.
func NewCache(db *sqlx.DB, capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCacheSize
	}
	return &Cache{db: db, lru: cache.New(capacity)}
}

// memoKey builds the tuple key.  Codes are order-sensitive on purpose:
// callers pass stable lists, and a differently-ordered list is a
// different call site.
func memoKey(memberID uint64, codes []string, includeMain bool, label string) string {
	return fmt.Sprintf("%d|%s|%t|%s", memberID, strings.Join(codes, ","), includeMain, label)
}

// AccessibleSubsites returns the subsites memberID can reach with one of
// codes (ADMIN always counts).  An empty codes slice is a programmer
// error and fails loudly with ErrNoPermissionCodes.
func (c *Cache) AccessibleSubsites(ctx context.Context, memberID uint64, codes []string, includeMainSite bool, mainSiteTitle string) ([]subsite.Record, error) {
	if len(codes) == 0 {
		return nil, ErrNoPermissionCodes
	}

	key := memoKey(memberID, codes, includeMainSite, mainSiteTitle)
	c.mu.Lock()
	if v, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		metrics.AccessibleCacheHits.Inc()
		return v.([]subsite.Record), nil
	}
	c.mu.Unlock()
	metrics.AccessibleCacheMisses.Inc()

	all := withAdmin(codes)

	direct, err := subsitesByDirectGrant(ctx, c.db, memberID, all)
	if err != nil {
		return nil, err
	}
	transitive, err := subsitesByRoleGrant(ctx, c.db, memberID, all)
	if err != nil {
		return nil, err
	}

	// Union, preserving the title order of the two result sets.
	seen := make(map[uint64]struct{}, len(direct)+len(transitive))
	out := make([]subsite.Record, 0, len(direct)+len(transitive))
	for _, rows := range [][]subsite.Record{direct, transitive} {
		for _, r := range rows {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}

	if includeMainSite {
		ok, err := hasAllSubsitesGrant(ctx, c.db, memberID, all)
		if err != nil {
			return nil, err
		}
		if ok {
			main := subsite.Record{ID: subsite.MainSiteID, Title: mainSiteTitle, Public: true}
			out = append([]subsite.Record{main}, out...)
		}
	}

	c.mu.Lock()
	c.lru.Add(key, out)
	c.mu.Unlock()
	return out, nil
}

// Invalidate flushes the whole memo.  Wired to subsite changes,
// permission edits, and data-reset events.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}
