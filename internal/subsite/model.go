// internal/subsite/model.go
//
// `subsite` and `subsite_domain` table row models.
//
// Context
// -------
// A Subsite is an isolated content and permission scope sharing one Canopy
// deployment.  Each subsite owns zero or more domain rows; a domain row
// binds one host pattern (wildcards allowed) to exactly one subsite, with
// an `is_primary` flag marking the canonical pattern.
//
// Schema reference (2026-08-12)
//
//	CREATE TABLE subsite (
//	    id                  INT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    title               VARCHAR(256)  NOT NULL DEFAULT '',
//	    language            VARCHAR(16)   NOT NULL DEFAULT '',
//	    theme               VARCHAR(128)  NOT NULL DEFAULT '',
//	    default_site        TINYINT(1)    NOT NULL DEFAULT 0,
//	    public              TINYINT(1)    NOT NULL DEFAULT 1,
//	    page_type_denylist  TEXT          NOT NULL,
//	    is_template         TINYINT(1)    NOT NULL DEFAULT 0,
//	    created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
//	CREATE TABLE subsite_domain (
//	    id          INT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    subsite_id  INT UNSIGNED  NOT NULL,
//	    domain      VARCHAR(256)  NOT NULL,
//	    is_primary  TINYINT(1)    NOT NULL DEFAULT 0
//	);
//
// Notes
// -----
// • An empty `title` marks an unconfigured or template placeholder row;
//   list queries exclude it.
// • `is_template` rows are cloning sources only and never resolve from a
//   host (they carry no domain rows by convention).
// • These structs are pure data models for sqlx scans.
package subsite

import (
	"strings"
	"time"
)

// MainSiteID is the sentinel subsite ID meaning "no subsite scoping".
const MainSiteID uint64 = 0

// Record mirrors one row in the `subsite` table.
type Record struct {
	ID               uint64    `db:"id"`
	Title            string    `db:"title"`
	Language         string    `db:"language"`
	Theme            string    `db:"theme"`
	DefaultSite      bool      `db:"default_site"`
	Public           bool      `db:"public"`
	PageTypeDenylist string    `db:"page_type_denylist"`
	IsTemplate       bool      `db:"is_template"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// DeniedPageTypes splits the comma-separated denylist column.  Empty
// entries are dropped.
func (r *Record) DeniedPageTypes() []string {
	if r.PageTypeDenylist == "" {
		return nil
	}
	parts := strings.Split(r.PageTypeDenylist, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Domain mirrors one row in the `subsite_domain` table.
type Domain struct {
	ID        uint64 `db:"id"`
	SubsiteID uint64 `db:"subsite_id"`
	Domain    string `db:"domain"`
	IsPrimary bool   `db:"is_primary"`
}
