// internal/access/store.go
//
// Query helpers for member → group → permission relations.
//
// Context
// -------
// The access model lives in the shared database:
//
//	member          (id PK, email, ...)
//	group           (id PK, title, access_all_subsites)
//	group_member    (group_id, member_id)
//	group_subsite   (group_id, subsite_id)
//	permission      (group_id, code)
//	group_role      (group_id, role_id)
//	role            (id PK, title)
//	role_code       (role_id, code)
//
// A group reaches a subsite either through an explicit group_subsite row
// or, when access_all_subsites is set, implicitly for every subsite.  A
// permission code is granted either directly (permission row) or
// transitively through a role attached to the group.  The ADMIN code
// always counts as granting whatever was asked for.
//
// These helpers build IN (? … ?) clauses dynamically and accept the
// shared *sqlx.DB; callers wrap results in their own memo.
package access

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/canopycms/canopy/internal/subsite"
)

// AdminCode short-circuits every permission check.
const AdminCode = "ADMIN"

// ErrNoPermissionCodes reports an empty code list.  Asking which subsites
// are reachable with no codes is a programmer error, not an empty result.
var ErrNoPermissionCodes = errors.New("access: permission code list must be non-empty")

const subsiteCols = `s.id, s.title, s.language, s.theme, s.default_site, s.public,
               s.page_type_denylist, s.is_template, s.created_at, s.updated_at`

// withAdmin returns codes plus AdminCode, deduplicated.
func withAdmin(codes []string) []string {
	out := make([]string, 0, len(codes)+1)
	seen := make(map[string]struct{}, len(codes)+1)
	for _, c := range append(codes, AdminCode) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// placeholders returns "?,?,…" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// subsitesByDirectGrant returns the subsites reachable by memberID through
// a group that holds one of the codes directly.
func subsitesByDirectGrant(ctx context.Context, db *sqlx.DB, memberID uint64, codes []string) ([]subsite.Record, error) {
	q := `
        SELECT DISTINCT ` + subsiteCols + `
        FROM   subsite s
        INNER  JOIN ` + "`group`" + ` g
               ON g.access_all_subsites = 1
               OR g.id IN (SELECT gs.group_id FROM group_subsite gs
                            WHERE gs.subsite_id = s.id)
        INNER  JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = ?
        INNER  JOIN permission p    ON p.group_id  = g.id
               AND p.code IN (` + placeholders(len(codes)) + `)
        WHERE  s.title <> ''
        ORDER  BY s.title ASC`

	args := make([]any, 0, len(codes)+1)
	args = append(args, memberID)
	for _, c := range codes {
		args = append(args, c)
	}

	var rows []subsite.Record
	if err := db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// subsitesByRoleGrant is the transitive variant: the code is held by a
// role attached to the group rather than by the group itself.
func subsitesByRoleGrant(ctx context.Context, db *sqlx.DB, memberID uint64, codes []string) ([]subsite.Record, error) {
	q := `
        SELECT DISTINCT ` + subsiteCols + `
        FROM   subsite s
        INNER  JOIN ` + "`group`" + ` g
               ON g.access_all_subsites = 1
               OR g.id IN (SELECT gs.group_id FROM group_subsite gs
                            WHERE gs.subsite_id = s.id)
        INNER  JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = ?
        INNER  JOIN group_role gr   ON gr.group_id = g.id
        INNER  JOIN role_code rc    ON rc.role_id  = gr.role_id
               AND rc.code IN (` + placeholders(len(codes)) + `)
        WHERE  s.title <> ''
        ORDER  BY s.title ASC`

	args := make([]any, 0, len(codes)+1)
	args = append(args, memberID)
	for _, c := range codes {
		args = append(args, c)
	}

	var rows []subsite.Record
	if err := db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// hasAllSubsitesGrant reports whether memberID holds one of the codes,
// directly or through a role, via any access-all-subsites group.  This is
// evaluated independently of any specific subsite and gates the synthetic
// main-site entry.
func hasAllSubsitesGrant(ctx context.Context, db *sqlx.DB, memberID uint64, codes []string) (bool, error) {
	direct := `
        SELECT 1
        FROM   ` + "`group`" + ` g
        INNER  JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = ?
        INNER  JOIN permission p    ON p.group_id  = g.id
               AND p.code IN (` + placeholders(len(codes)) + `)
        WHERE  g.access_all_subsites = 1
        LIMIT  1`
	role := `
        SELECT 1
        FROM   ` + "`group`" + ` g
        INNER  JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = ?
        INNER  JOIN group_role gr   ON gr.group_id = g.id
        INNER  JOIN role_code rc    ON rc.role_id  = gr.role_id
               AND rc.code IN (` + placeholders(len(codes)) + `)
        WHERE  g.access_all_subsites = 1
        LIMIT  1`

	args := make([]any, 0, len(codes)+1)
	args = append(args, memberID)
	for _, c := range codes {
		args = append(args, c)
	}

	var dummy int
	err := db.QueryRowxContext(ctx, direct, args...).Scan(&dummy)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	err = db.QueryRowxContext(ctx, role, args...).Scan(&dummy)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}
