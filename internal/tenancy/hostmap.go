// internal/tenancy/hostmap.go
//
// Host → canonical-domain artifact for the static-serving layer.
//
// Context
// -------
// An external static-content server needs to know, for any registered
// host, which canonical domain serves it.  Rebuild derives that map from
// the subsite tables and dumps it as flat JSON at a well-known path.  The
// write is best-effort: an unwritable target is skipped silently because
// the artifact is an optimization, never required for resolution itself.
//
// Canonical-domain derivation takes the subsite's highest-priority domain
// pattern (primary first) and substitutes wildcards:
//
//   - a trailing `.*` becomes "." + the currently-serving host, so
//     "store.*" served from example.org yields "store.example.org";
//   - a leading `*.` becomes the configured subsite label (default
//     "subsite.");
//   - any remaining ".www." mid-string collapses to "." (intermediate
//     subdomain stripping, not end-anchored).
//
// Rebuild runs after every subsite write, so the artifact converges on the
// table contents without being transactionally tied to them.
package tenancy

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/canopycms/canopy/internal/metrics"
	"github.com/canopycms/canopy/internal/subsite"
)

// DefaultSubsiteLabel replaces a leading "*." when no label is configured.
const DefaultSubsiteLabel = "subsite."

var trailingWildcard = regexp.MustCompile(`\.\*$`)

// HostMap is the flat domain → canonical-domain mapping, plus a "default"
// key when a default subsite exists.
type HostMap map[string]string

// HostMapCache rebuilds and persists the host-map artifact.
type HostMapCache struct {
	db     *sqlx.DB
	strict bool
	label  string // leading-wildcard replacement, e.g. "subsite."
	path   string // artifact target; empty disables writing

	// ServingHost supplies the host the process is currently serving,
	// used to expand trailing wildcards in a primary pattern.
	ServingHost func() string
}

// ServingHostFrom picks the host used for trailing-wildcard expansion:
// the configured public host when set, otherwise the host part of the
// listen address.  Listeners bound to all interfaces (":8080") yield an
// empty host, which leaves trailing wildcards unexpanded.
func ServingHostFrom(configured, listenAddr string) func() string {
	return func() string {
		if configured != "" {
			return configured
		}
		host, _, err := net.SplitHostPort(listenAddr)
		if err != nil {
			return listenAddr
		}
		return host
	}
}

// NewHostMapCache constructs the cache.  label falls back to
// DefaultSubsiteLabel when empty.
func NewHostMapCache(db *sqlx.DB, strict bool, label, path string) *HostMapCache {
	if label == "" {
		label = DefaultSubsiteLabel
	}
	return &HostMapCache{db: db, strict: strict, label: label, path: path}
}

// Rebuild derives the full map and writes the artifact.  Repository
// errors are returned; write failures are not.
func (h *HostMapCache) Rebuild(ctx context.Context) (HostMap, error) {
	sites, err := subsite.AllConfigured(ctx, h.db)
	if err != nil {
		return nil, err
	}

	m := make(HostMap, len(sites)*2)
	for i := range sites {
		s := &sites[i]
		domains, err := subsite.DomainsBySubsite(ctx, h.db, s.ID)
		if err != nil {
			return nil, err
		}
		if len(domains) == 0 {
			continue
		}
		canonical := h.canonicalDomain(domains[0].Domain)
		for _, d := range domains {
			m[NormalizeDomain(d.Domain, h.strict)] = canonical
		}
		if s.DefaultSite {
			m["default"] = canonical
		}
	}

	metrics.HostMapRebuildTotal.Inc()
	h.write(m)
	return m, nil
}

// canonicalDomain expands wildcards in a primary pattern.  Wildcards in a
// primary domain are not recommended, so the expansion is a guess that
// favours something routable.
func (h *HostMapCache) canonicalDomain(pattern string) string {
	d := strings.ToLower(pattern)
	if h.ServingHost != nil {
		if host := h.ServingHost(); host != "" {
			d = trailingWildcard.ReplaceAllString(d, "."+host)
		}
	}
	if strings.HasPrefix(d, "*.") {
		d = h.label + d[2:]
	}
	d = strings.ReplaceAll(d, ".www.", ".")
	return d
}

// write dumps m as JSON to the configured path.  Best effort only.
func (h *HostMapCache) write(m HostMap) {
	if h.path == "" {
		return
	}
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		zap.S().Debugw("hostmap marshal skipped", "err", err)
		return
	}
	if err := os.WriteFile(h.path, buf, 0o644); err != nil {
		zap.S().Debugw("hostmap write skipped", "path", h.path, "err", err)
	}
}
