// internal/tenancy/context_test.go
//
// Session context tests: resolution precedence, change semantics, and the
// switch-and-restore guard.

package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/canopycms/canopy/internal/permission"
)

// fakeSession is an in-memory tenancy.SessionStore.
type fakeSession struct {
	id  uint64
	set bool
}

func (f *fakeSession) SubsiteID() (uint64, bool) { return f.id, f.set }
func (f *fakeSession) SetSubsiteID(id uint64)    { f.id, f.set = id, true }

// fakePerms counts invalidations.
type fakePerms struct{ flushes int }

func (f *fakePerms) Invalidate() { f.flushes++ }

const byIDQuery = `FROM\s+subsite\s+WHERE\s+id = \?`

func subsiteRow(id uint64, language string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "language", "theme", "default_site", "public",
		"page_type_denylist", "is_template", "created_at", "updated_at",
	}).AddRow(id, "Site", language, "", false, true, "", false,
		time.Now(), time.Now())
}

func TestCurrentID_ForcedOverrideWins(t *testing.T) {
	db, _ := newMockDB(t)
	st := &State{}
	st.Force(7, 8)

	c := NewContext(NewResolver(db, false), st, db, &fakeSession{id: 3, set: true}, nil)
	id, err := c.CurrentID(context.Background(), "one.example.org", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Fatalf("CurrentID = %d, want forced 7", id)
	}
}

func TestCurrentID_ExplicitOverrideBeatsSession(t *testing.T) {
	db, _ := newMockDB(t)
	sess := &fakeSession{id: 3, set: true}
	c := NewContext(NewResolver(db, false), &State{}, db, sess, nil)

	nine := uint64(9)
	id, err := c.CurrentID(context.Background(), "one.example.org", &nine)
	if err != nil {
		t.Fatal(err)
	}
	if id != 9 {
		t.Fatalf("CurrentID = %d, want override 9", id)
	}

	// Subsequent calls in the same request see the override.
	id, err = c.CurrentID(context.Background(), "one.example.org", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 9 {
		t.Fatalf("memo after override = %d, want 9", id)
	}
}

func TestCurrentID_SessionValueUsed(t *testing.T) {
	db, _ := newMockDB(t)
	sess := &fakeSession{id: 3, set: true}
	c := NewContext(NewResolver(db, false), &State{}, db, sess, nil)

	id, err := c.CurrentID(context.Background(), "whatever.host", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Fatalf("CurrentID = %d, want session value 3", id)
	}
}

func TestCurrentID_FreshResolveCachedIntoSession(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(domainQuery).WillReturnRows(fixtureRows())

	sess := &fakeSession{}
	c := NewContext(NewResolver(db, false), &State{}, db, sess, nil)

	id, err := c.CurrentID(context.Background(), "two.mysite.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("CurrentID = %d, want 2", id)
	}
	if got, ok := sess.SubsiteID(); !ok || got != 2 {
		t.Fatalf("session not primed: %d %t", got, ok)
	}

	// Second call is served from the session, no further queries.
	if _, err := c.CurrentID(context.Background(), "two.mysite.com", nil); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected extra queries: %v", err)
	}
}

func TestChangeSubsite_InvalidatesOnlyOnChange(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(2, "de_DE"))
	mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(2, "de_DE"))

	perms := &fakePerms{}
	c := NewContext(NewResolver(db, false), &State{}, db, nil, perms)

	if err := c.ChangeSubsite(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if perms.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", perms.flushes)
	}
	if c.Locale() != "de_DE" {
		t.Fatalf("locale = %q, want de_DE", c.Locale())
	}

	// Same subsite again: locale re-derived, cache untouched.
	if err := c.ChangeSubsite(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if perms.flushes != 1 {
		t.Fatalf("flushes after no-op change = %d, want 1", perms.flushes)
	}
}

func TestWithSubsite_RestoresOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(1, ""))
	mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(2, ""))
	mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(1, ""))

	c := NewContext(NewResolver(db, false), &State{}, db, nil, nil)
	if err := c.ChangeSubsite(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := c.WithSubsite(context.Background(), 2, func() error {
		if id, _ := c.CurrentID(context.Background(), "", nil); id != 2 {
			t.Fatalf("inside guard: current = %d, want 2", id)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("guard swallowed the error: %v", err)
	}

	id, err := c.CurrentID(context.Background(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("after guard: current = %d, want restored 1", id)
	}
}

func TestScopingDisableFlag(t *testing.T) {
	st := &State{}
	if st.ScopingDisabled() {
		t.Fatal("scoping disabled by default")
	}
	st.DisableScoping(true)
	if !st.ScopingDisabled() {
		t.Fatal("disable flag not observed")
	}
	st.DisableScoping(false)
	if st.ScopingDisabled() {
		t.Fatal("disable flag not cleared")
	}
}

func TestPermissionCodeRegistered(t *testing.T) {
	if _, ok := permission.Lookup(PermissionCreateSubsiteAssets); !ok {
		t.Fatalf("%s missing from the permission catalog", PermissionCreateSubsiteAssets)
	}
}
