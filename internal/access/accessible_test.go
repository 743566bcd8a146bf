// internal/access/accessible_test.go
//
// Accessible-subsites query tests over sqlmock: union of direct and
// role-transitive grants, main-site synthesis, memoization, and the
// loud-failure contract for empty code lists.

package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

const (
	directGrantQuery = `INNER\s+JOIN permission p`
	roleGrantQuery   = `INNER\s+JOIN group_role gr`
	// The main-site probes select from group, not subsite.
	mainDirectQuery = `FROM\s+` + "`group`" + ` g\s+INNER\s+JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = \?\s+INNER\s+JOIN permission`
	mainRoleQuery   = `FROM\s+` + "`group`" + ` g\s+INNER\s+JOIN group_member gm ON gm.group_id = g.id AND gm.member_id = \?\s+INNER\s+JOIN group_role`
)

var siteCols = []string{
	"id", "title", "language", "theme", "default_site", "public",
	"page_type_denylist", "is_template", "created_at", "updated_at",
}

func siteRows(pairs ...any) *sqlmock.Rows {
	rows := sqlmock.NewRows(siteCols)
	now := time.Now()
	for i := 0; i < len(pairs); i += 2 {
		rows.AddRow(pairs[i], pairs[i+1], "", "", false, true, "", false, now, now)
	}
	return rows
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestAccessibleSubsites_UnionAndMemo(t *testing.T) {
	db, mock := newMockDB(t)
	c := NewCache(db, 16)

	// Direct grants reach Alpha and Beta; a role grant adds Gamma and
	// repeats Beta, which must not appear twice.
	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows(1, "Alpha", 2, "Beta"))
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows(2, "Beta", 3, "Gamma"))

	got, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("result size = %d, want 3 (union, deduped)", len(got))
	}
	wantTitles := []string{"Alpha", "Beta", "Gamma"}
	for i, w := range wantTitles {
		if got[i].Title != w {
			t.Fatalf("result[%d] = %q, want %q", i, got[i].Title, w)
		}
	}

	// Second call: served from the memo, no SQL.
	again, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 3 {
		t.Fatalf("memoized result size = %d", len(again))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("memo missed: %v", err)
	}
}

func TestAccessibleSubsites_InvalidateForcesRequery(t *testing.T) {
	db, mock := newMockDB(t)
	c := NewCache(db, 16)

	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows(1, "Alpha"))
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows())
	if _, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, false, ""); err != nil {
		t.Fatal(err)
	}

	c.Invalidate()

	// Permission data changed: Alpha is gone after the flush.
	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows())
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows())
	got, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("stale memo served after Invalidate: %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestAccessibleSubsites_MainSitePrepended(t *testing.T) {
	db, mock := newMockDB(t)
	c := NewCache(db, 16)

	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows(1, "Alpha"))
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows())
	mock.ExpectQuery(mainDirectQuery).WillReturnRows(
		sqlmock.NewRows([]string{"1"}).AddRow(1))

	got, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"ADMIN"}, true, "Main site")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("result size = %d, want main site + Alpha", len(got))
	}
	if got[0].ID != 0 || got[0].Title != "Main site" {
		t.Fatalf("main-site entry wrong: %+v", got[0])
	}
	if got[1].Title != "Alpha" {
		t.Fatalf("second entry = %q", got[1].Title)
	}
}

func TestAccessibleSubsites_MainSiteViaRoleGrant(t *testing.T) {
	db, mock := newMockDB(t)
	c := NewCache(db, 16)

	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows())
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows(1, "Alpha"))
	// Direct probe misses, the role probe hits.
	mock.ExpectQuery(mainDirectQuery).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery(mainRoleQuery).WillReturnRows(
		sqlmock.NewRows([]string{"1"}).AddRow(1))

	got, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, true, "Main site")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 0 {
		t.Fatalf("main-site entry missing: %+v", got)
	}
}

func TestAccessibleSubsites_NoMainSiteWithoutAllSubsitesGrant(t *testing.T) {
	db, mock := newMockDB(t)
	c := NewCache(db, 16)

	mock.ExpectQuery(directGrantQuery).WillReturnRows(siteRows(1, "Alpha"))
	mock.ExpectQuery(roleGrantQuery).WillReturnRows(siteRows())
	mock.ExpectQuery(mainDirectQuery).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery(mainRoleQuery).WillReturnRows(sqlmock.NewRows([]string{"1"}))

	got, err := c.AccessibleSubsites(context.Background(), 42,
		[]string{"CMS_ACCESS_CMSMain"}, true, "Main site")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("unexpected main-site synthesis: %+v", got)
	}
}

func TestAccessibleSubsites_EmptyCodesFailLoudly(t *testing.T) {
	db, _ := newMockDB(t)
	c := NewCache(db, 16)

	_, err := c.AccessibleSubsites(context.Background(), 42, nil, false, "")
	if !errors.Is(err, ErrNoPermissionCodes) {
		t.Fatalf("want ErrNoPermissionCodes, got %v", err)
	}
}

func TestWithAdmin(t *testing.T) {
	got := withAdmin([]string{"CMS_ACCESS_CMSMain", "ADMIN"})
	if len(got) != 2 {
		t.Fatalf("ADMIN duplicated: %v", got)
	}
	got = withAdmin([]string{"X"})
	if len(got) != 2 || got[1] != AdminCode {
		t.Fatalf("ADMIN not appended: %v", got)
	}
}
