// internal/tenancy/duplicator_test.go
//
// Tree-duplication tests over an in-memory TreeStore.
//
// The fake store keeps all nodes in one slice; Children filters by
// subsite + parent the way the SQL store does.  The tenancy context still
// runs against sqlmock because every clone step switches the guard, and
// the guard re-derives locale from the subsite row.

package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/canopycms/canopy/internal/content"
	"github.com/canopycms/canopy/internal/subsite"
)

type fakeTree struct {
	nodes  []content.Node
	nextID uint64
	// failAt makes CreateNode fail on the n-th call (1-based); 0 disables.
	failAt  int
	creates int
}

func (f *fakeTree) Children(_ context.Context, subsiteID, parentID uint64) ([]content.Node, error) {
	var out []content.Node
	for _, n := range f.nodes {
		if n.SubsiteID == subsiteID && n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeTree) CreateNode(_ context.Context, n *content.Node) (uint64, error) {
	f.creates++
	if f.failAt > 0 && f.creates >= f.failAt {
		return 0, errors.New("disk full")
	}
	f.nextID++
	clone := *n
	clone.ID = f.nextID
	f.nodes = append(f.nodes, clone)
	return clone.ID, nil
}

// depth walks parent links inside one subsite.
func (f *fakeTree) depth(subsiteID, id uint64) int {
	byID := map[uint64]content.Node{}
	for _, n := range f.nodes {
		if n.SubsiteID == subsiteID {
			byID[n.ID] = n
		}
	}
	d := 0
	for id != 0 {
		n, ok := byID[id]
		if !ok {
			return -1
		}
		id = n.ParentID
		d++
	}
	return d
}

func sourceTree() *fakeTree {
	// Subsite 1:
	//	 home (10)
	//	 ├── about (11)
	//	 │   └── team (13)
	//	 └── news (12)
	return &fakeTree{
		nextID: 100,
		nodes: []content.Node{
			{ID: 10, SubsiteID: 1, ParentID: 0, Title: "home"},
			{ID: 11, SubsiteID: 1, ParentID: 10, Title: "about"},
			{ID: 12, SubsiteID: 1, ParentID: 10, Title: "news"},
			{ID: 13, SubsiteID: 1, ParentID: 11, Title: "team"},
		},
	}
}

func guardContext(t *testing.T, clones int) *Context {
	t.Helper()
	db, mock := newMockDB(t)
	// One subsite lookup per guarded clone step.
	for i := 0; i < clones; i++ {
		mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(2, ""))
	}
	return NewContext(NewResolver(db, false), &State{}, db, nil, nil)
}

func TestDuplicate_PreservesTreeShape(t *testing.T) {
	tree := sourceTree()
	tc := guardContext(t, 4)

	d := NewDuplicator(tree, tc)
	src := &subsite.Record{ID: 1, Title: "Template"}
	dst := &subsite.Record{ID: 2, Title: "Copy"}

	if err := d.Duplicate(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	// Exactly one clone per source node, each under the destination.
	var clones []content.Node
	for _, n := range tree.nodes {
		if n.SubsiteID == 2 {
			clones = append(clones, n)
		}
	}
	if len(clones) != 4 {
		t.Fatalf("clone count = %d, want 4", len(clones))
	}

	byTitle := map[string]content.Node{}
	for _, n := range clones {
		if _, dup := byTitle[n.Title]; dup {
			t.Fatalf("node %q cloned twice", n.Title)
		}
		byTitle[n.Title] = n
	}

	// Ancestor-chain length matches the source for every node.
	wantDepth := map[string]int{"home": 1, "about": 2, "news": 2, "team": 3}
	for title, want := range wantDepth {
		n, ok := byTitle[title]
		if !ok {
			t.Fatalf("node %q missing from clone", title)
		}
		if got := tree.depth(2, n.ID); got != want {
			t.Errorf("depth(%q) = %d, want %d", title, got, want)
		}
	}

	// Relative structure: cloned team hangs under cloned about.
	if byTitle["team"].ParentID != byTitle["about"].ID {
		t.Error("team not parented under about in the clone")
	}
	// Every clone carries its new IDs, never the source ones.
	for _, n := range clones {
		if n.ID <= 100 {
			t.Errorf("clone %q kept a source-range ID %d", n.Title, n.ID)
		}
	}
}

func TestDuplicate_PartialFailureSurfaces(t *testing.T) {
	tree := sourceTree()
	tree.failAt = 3
	tc := guardContext(t, 3)

	d := NewDuplicator(tree, tc)
	src := &subsite.Record{ID: 1}
	dst := &subsite.Record{ID: 2}

	err := d.Duplicate(context.Background(), src, dst)
	if err == nil {
		t.Fatal("want persistence failure to surface")
	}

	// Already-cloned nodes stay persisted; nothing is rolled back.
	var persisted int
	for _, n := range tree.nodes {
		if n.SubsiteID == 2 {
			persisted++
		}
	}
	if persisted != 2 {
		t.Fatalf("persisted clones = %d, want the 2 written before failure", persisted)
	}
}

func TestDuplicate_RestoresCallerSubsite(t *testing.T) {
	tree := sourceTree()

	db, mock := newMockDB(t)
	// Initial ChangeSubsite(5) + one lookup per clone step + restores.
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 16; i++ {
		mock.ExpectQuery(byIDQuery).WillReturnRows(subsiteRow(5, ""))
	}
	tc := NewContext(NewResolver(db, false), &State{}, db, nil, nil)
	if err := tc.ChangeSubsite(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	d := NewDuplicator(tree, tc)
	if err := d.Duplicate(context.Background(),
		&subsite.Record{ID: 1}, &subsite.Record{ID: 2}); err != nil {
		t.Fatal(err)
	}

	id, err := tc.CurrentID(context.Background(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 5 {
		t.Fatalf("caller subsite = %d, want restored 5", id)
	}
}

func TestInstantiate_RejectsNonTemplate(t *testing.T) {
	tree := sourceTree()
	tc := guardContext(t, 0)
	d := NewDuplicator(tree, tc)

	_, err := d.Instantiate(context.Background(), nil,
		&subsite.Record{ID: 1, IsTemplate: false}, "New Site")
	if err == nil {
		t.Fatal("want error for non-template source")
	}
}
