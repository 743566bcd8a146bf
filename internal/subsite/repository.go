// internal/subsite/repository.go
//
// Subsite-table query helpers.
//
// Context
// -------
// Read helpers are free functions in the usual style: the caller supplies a
// *sqlx.DB connected to the shared database, each helper executes exactly
// one parameterised SELECT, rows are scanned into the models from model.go,
// and errors are returned verbatim so the caller can wrap or log them.
//
// Writes go through Repository so that persisting a subsite can trigger the
// host-map rebuild hook (the host-map artifact is eventually consistent
// with the table, not transactionally consistent).
//
// Notes
// -----
// • Column lists match the struct fields; update both together.
// • `PublicDomains` orders primary rows first so that, when one host is
//   covered by several patterns of the same subsite, the primary pattern
//   wins.  The secondary `id ASC` keeps the order deterministic.
package subsite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a subsite row does not exist.
var ErrNotFound = errors.New("subsite not found")

const domainCols = `d.id, d.subsite_id, d.domain, d.is_primary`

const recordCols = `id, title, language, theme, default_site, public,
               page_type_denylist, is_template, created_at, updated_at`

// PublicDomains returns every domain row belonging to a public subsite,
// primary rows first.  The resolver expands wildcards in Go, so this is
// the only domain query the hot path needs.
func PublicDomains(ctx context.Context, db *sqlx.DB) ([]Domain, error) {
	const q = `
        SELECT ` + domainCols + `
        FROM   subsite_domain d
        JOIN   subsite s ON s.id = d.subsite_id
        WHERE  s.public = 1
        ORDER  BY d.is_primary DESC, d.id ASC`
	var rows []Domain
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// DomainsBySubsite returns the domain rows of one subsite, primary first.
func DomainsBySubsite(ctx context.Context, db *sqlx.DB, subsiteID uint64) ([]Domain, error) {
	const q = `
        SELECT ` + domainCols + `
        FROM   subsite_domain d
        WHERE  d.subsite_id = ?
        ORDER  BY d.is_primary DESC, d.id ASC`
	var rows []Domain
	if err := db.SelectContext(ctx, &rows, q, subsiteID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByID fetches a single subsite row.
func ByID(ctx context.Context, db *sqlx.DB, id uint64) (*Record, error) {
	const q = `
        SELECT ` + recordCols + `
        FROM   subsite
        WHERE  id = ?
        LIMIT  1`
	var rec Record
	if err := db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DefaultSite returns the subsite flagged as default, or ErrNotFound when
// no row carries the flag.  Callers treat ErrNotFound as "fall back to the
// main site", not as a failure.
func DefaultSite(ctx context.Context, db *sqlx.DB) (*Record, error) {
	const q = `
        SELECT ` + recordCols + `
        FROM   subsite
        WHERE  default_site = 1
        LIMIT  1`
	var rec Record
	if err := db.GetContext(ctx, &rec, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// AllConfigured returns every subsite with a non-empty title, ordered by
// title.  Untitled rows are unconfigured or template placeholders and are
// never listed.
func AllConfigured(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	const q = `
        SELECT ` + recordCols + `
        FROM   subsite
        WHERE  title <> ''
        ORDER  BY title ASC`
	var rows []Record
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

//
// Repository (writes)
//

// Repository wraps subsite writes so every persisted record fires the
// AfterSave hook.  The tenancy engine points the hook at the host-map
// rebuild during boot.
type Repository struct {
	DB *sqlx.DB

	// AfterSave runs after any successful subsite or domain write.  May
	// be nil.  Hook errors are the hook's problem; Save already returned
	// its row to the table.
	AfterSave func(ctx context.Context)
}

// Save inserts rec when rec.ID is zero, otherwise updates the existing
// row.  On insert the generated ID is written back into rec.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	if rec.ID == 0 {
		const q = `
            INSERT INTO subsite
                   (title, language, theme, default_site, public,
                    page_type_denylist, is_template)
            VALUES (?, ?, ?, ?, ?, ?, ?)`
		res, err := r.DB.ExecContext(ctx, q,
			rec.Title, rec.Language, rec.Theme, rec.DefaultSite,
			rec.Public, rec.PageTypeDenylist, rec.IsTemplate)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec.ID = uint64(id)
	} else {
		const q = `
            UPDATE subsite
            SET    title = ?, language = ?, theme = ?, default_site = ?,
                   public = ?, page_type_denylist = ?, is_template = ?
            WHERE  id = ?`
		if _, err := r.DB.ExecContext(ctx, q,
			rec.Title, rec.Language, rec.Theme, rec.DefaultSite,
			rec.Public, rec.PageTypeDenylist, rec.IsTemplate, rec.ID); err != nil {
			return err
		}
	}
	if r.AfterSave != nil {
		r.AfterSave(ctx)
	}
	return nil
}

// SaveDomain inserts or updates one domain row.  Primary-flag uniqueness
// per subsite is a soft convention; the resolver and host map order by
// is_primary DESC, id ASC so a stray second primary stays deterministic.
func (r *Repository) SaveDomain(ctx context.Context, d *Domain) error {
	if d.ID == 0 {
		const q = `
            INSERT INTO subsite_domain (subsite_id, domain, is_primary)
            VALUES (?, ?, ?)`
		res, err := r.DB.ExecContext(ctx, q, d.SubsiteID, d.Domain, d.IsPrimary)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		d.ID = uint64(id)
	} else {
		const q = `
            UPDATE subsite_domain
            SET    subsite_id = ?, domain = ?, is_primary = ?
            WHERE  id = ?`
		if _, err := r.DB.ExecContext(ctx, q,
			d.SubsiteID, d.Domain, d.IsPrimary, d.ID); err != nil {
			return err
		}
	}
	if r.AfterSave != nil {
		r.AfterSave(ctx)
	}
	return nil
}
