// internal/tenancy/resolver.go
//
// Host → subsite resolution.
//
// Context
// -------
// The resolver answers one question: which subsite serves this host?  It
// fetches every domain row belonging to a public subsite (primary rows
// first), expands wildcards in Go via pattern.go, and applies a strict
// precedence contract:
//
//  1. Matches from exactly one subsite → that subsite wins.
//  2. Matches from two or more distinct subsites → AmbiguousDomainError.
//     This is an operator configuration bug and is never resolved by
//     first-match-wins.
//  3. No match → the subsite flagged default_site, if any.
//  4. Otherwise the main-site sentinel (0), meaning no scoping applies.
//
// Concurrent cold resolves for the same host are collapsed through
// singleflight; repository state unchanged, repeated calls return the same
// ID.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/canopycms/canopy/internal/metrics"
	"github.com/canopycms/canopy/internal/subsite"
)

// AmbiguousDomainError reports a host whose matching domain rows belong to
// more than one subsite.  It carries the conflicting patterns so the
// operator can find the offending rows.
type AmbiguousDomainError struct {
	Host    string
	Domains []string
}

func (e *AmbiguousDomainError) Error() string {
	return fmt.Sprintf("tenancy: host %q matches domains of multiple subsites: %s",
		e.Host, strings.Join(e.Domains, ", "))
}

// Resolver maps host names to subsite IDs.
type Resolver struct {
	db     *sqlx.DB
	strict bool
	sfg    singleflight.Group
}

// NewResolver returns a Resolver.  strict enables strict subdomain
// matching (no www. stripping).
func NewResolver(db *sqlx.DB, strict bool) *Resolver {
	return &Resolver{db: db, strict: strict}
}

// Resolve returns the subsite ID serving host.  See the package comment
// for the precedence contract.
func (r *Resolver) Resolve(ctx context.Context, host string) (uint64, error) {
	host = NormalizeHost(host, r.strict)

	v, err, _ := r.sfg.Do(host, func() (interface{}, error) {
		return r.resolve(ctx, host)
	})
	if err != nil {
		metrics.ResolveErrorsTotal.Inc()
		return subsite.MainSiteID, err
	}
	metrics.ResolveTotal.Inc()
	return v.(uint64), nil
}

func (r *Resolver) resolve(ctx context.Context, host string) (uint64, error) {
	rows, err := subsite.PublicDomains(ctx, r.db)
	if err != nil {
		return subsite.MainSiteID, err
	}

	var (
		matchedID  uint64
		matched    bool
		conflicts  []string
		distinctID = map[uint64]struct{}{}
	)
	for _, d := range rows {
		if !Matches(d.Domain, host, r.strict) {
			continue
		}
		distinctID[d.SubsiteID] = struct{}{}
		conflicts = append(conflicts, d.Domain)
		if !matched {
			matchedID, matched = d.SubsiteID, true
		}
	}

	if len(distinctID) > 1 {
		metrics.AmbiguousDomainTotal.Inc()
		return subsite.MainSiteID, &AmbiguousDomainError{Host: host, Domains: conflicts}
	}
	if matched {
		return matchedID, nil
	}

	def, err := subsite.DefaultSite(ctx, r.db)
	if err != nil {
		if errors.Is(err, subsite.ErrNotFound) {
			return subsite.MainSiteID, nil
		}
		return subsite.MainSiteID, err
	}
	return def.ID, nil
}
