// internal/tenancy/hostmap_test.go
//
// Host-map derivation and best-effort artifact tests.

package tenancy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	allConfiguredQuery = `WHERE\s+title <> ''`
	bySubsiteQuery     = `WHERE\s+d.subsite_id = \?`
)

func expectHostMapFixture(mock sqlmock.Sqlmock) {
	siteCols := []string{
		"id", "title", "language", "theme", "default_site", "public",
		"page_type_denylist", "is_template", "created_at", "updated_at",
	}
	now := time.Now()
	mock.ExpectQuery(allConfiguredQuery).WillReturnRows(
		sqlmock.NewRows(siteCols).
			AddRow(1, "Alpha", "", "", true, true, "", false, now, now).
			AddRow(2, "Beta", "", "", false, true, "", false, now, now).
			AddRow(3, "Gamma", "", "", false, true, "", false, now, now).
			AddRow(4, "Delta", "", "", false, true, "", false, now, now).
			AddRow(5, "Empty", "", "", false, true, "", false, now, now))

	// Alpha: literal primary plus a www alias.
	mock.ExpectQuery(bySubsiteQuery).WithArgs(uint64(1)).WillReturnRows(
		sqlmock.NewRows(domainCols).
			AddRow(1, 1, "one.example.org", true).
			AddRow(2, 1, "www.one.example.org", false))
	// Beta: leading-wildcard primary.
	mock.ExpectQuery(bySubsiteQuery).WithArgs(uint64(2)).WillReturnRows(
		sqlmock.NewRows(domainCols).
			AddRow(3, 2, "*.shop.example", true))
	// Gamma: trailing-wildcard primary and an intermediate www.
	mock.ExpectQuery(bySubsiteQuery).WithArgs(uint64(3)).WillReturnRows(
		sqlmock.NewRows(domainCols).
			AddRow(4, 3, "store.*", true).
			AddRow(5, 3, "a.www.b.example", false))
	// Delta: intermediate www in the primary pattern.
	mock.ExpectQuery(bySubsiteQuery).WithArgs(uint64(4)).WillReturnRows(
		sqlmock.NewRows(domainCols).
			AddRow(6, 4, "x.www.y.example", true))
	// Empty: no domain rows at all.
	mock.ExpectQuery(bySubsiteQuery).WithArgs(uint64(5)).WillReturnRows(
		sqlmock.NewRows(domainCols))
}

func TestHostMapRebuild(t *testing.T) {
	db, mock := newMockDB(t)
	expectHostMapFixture(mock)

	h := NewHostMapCache(db, false, "", "")
	h.ServingHost = func() string { return "serving.example" }

	m, err := h.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		// Both Alpha keys point at the literal primary; the www alias key
		// is stripped.
		"one.example.org": "one.example.org",
		// Leading wildcard expands to the subsite label.
		"*.shop.example": "subsite.shop.example",
		// Trailing wildcard expands to the serving host; the secondary
		// key maps to the same canonical.
		"store.*":         "store.serving.example",
		"a.www.b.example": "store.serving.example",
		// Intermediate .www. collapses in the canonical, not in the key.
		"x.www.y.example": "x.y.example",
		// Alpha carries default_site.
		"default": "one.example.org",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("map[%q] = %q, want %q", k, m[k], v)
		}
	}
	if _, ok := m["www.one.example.org"]; ok {
		t.Error("www alias key not normalized")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestHostMapWriteArtifact(t *testing.T) {
	db, mock := newMockDB(t)
	expectHostMapFixture(mock)

	path := filepath.Join(t.TempDir(), "hostmap.json")
	h := NewHostMapCache(db, false, "", path)
	h.ServingHost = func() string { return "serving.example" }

	if _, err := h.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(buf, &m); err != nil {
		t.Fatalf("artifact not valid JSON: %v", err)
	}
	if m["default"] != "one.example.org" {
		t.Fatalf("artifact default = %q", m["default"])
	}
}

func TestServingHostFrom(t *testing.T) {
	cases := []struct {
		name       string
		configured string
		listenAddr string
		want       string
	}{
		{"configured host wins", "canopy.example", ":8080", "canopy.example"},
		{"listen host part", "", "10.0.0.5:8080", "10.0.0.5"},
		{"bind-all listener has no host", "", ":8080", ""},
		{"portless listen addr passes through", "", "canopy.internal", "canopy.internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ServingHostFrom(tc.configured, tc.listenAddr)(); got != tc.want {
				t.Fatalf("ServingHostFrom(%q, %q) = %q, want %q",
					tc.configured, tc.listenAddr, got, tc.want)
			}
		})
	}
}

// A bind-all listener supplies no serving host, so trailing wildcards
// stay unexpanded in the canonical domain.
func TestHostMapRebuild_NoServingHost(t *testing.T) {
	db, mock := newMockDB(t)
	expectHostMapFixture(mock)

	h := NewHostMapCache(db, false, "", "")
	h.ServingHost = ServingHostFrom("", ":8080")

	m, err := h.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := m["store.*"]; got != "store.*" {
		t.Fatalf(`map["store.*"] = %q, want unexpanded "store.*"`, got)
	}
}

func TestHostMapWriteFailureIsSilent(t *testing.T) {
	db, mock := newMockDB(t)
	expectHostMapFixture(mock)

	h := NewHostMapCache(db, false, "", "/nonexistent-dir/hostmap.json")
	if _, err := h.Rebuild(context.Background()); err != nil {
		t.Fatalf("unwritable artifact target must not fail the rebuild: %v", err)
	}
}
