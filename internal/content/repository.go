// internal/content/repository.go
//
// Site-tree query helpers and the Store used by duplication.
//
// Context
// -------
// The duplicator needs exactly two capabilities from the content model:
// enumerate the live children of a node within one subsite, and persist a
// clone through both staging representations.  Store exposes those two as
// an interface-sized surface so tests can substitute an in-memory tree.
//
// Notes
// -----
// • CreateNode writes the draft row first, then mirrors it into
//   `site_tree_live` under the same ID, matching the publish model where
//   live rows share the draft primary key.
package content

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Store is the sqlx-backed content repository.
type Store struct {
	DB *sqlx.DB
}

// Children returns the draft children of parentID inside one subsite,
// ordered by sort.  parentID 0 lists root nodes.
func (s *Store) Children(ctx context.Context, subsiteID, parentID uint64) ([]Node, error) {
	const q = `
        SELECT id, subsite_id, parent_id, title, url_segment, page_type,
               content, sort, created_at, updated_at
        FROM   site_tree
        WHERE  subsite_id = ?
          AND  parent_id  = ?
        ORDER  BY sort ASC, id ASC`
	var rows []Node
	if err := s.DB.SelectContext(ctx, &rows, q, subsiteID, parentID); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateNode inserts n as a new draft row, mirrors it into the live
// table, and returns the generated ID.  n.ID is ignored on input.
func (s *Store) CreateNode(ctx context.Context, n *Node) (uint64, error) {
	const draft = `
        INSERT INTO site_tree
               (subsite_id, parent_id, title, url_segment, page_type, content, sort)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.DB.ExecContext(ctx, draft,
		n.SubsiteID, n.ParentID, n.Title, n.URLSegment, n.PageType, n.Content, n.Sort)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	const live = `
        INSERT INTO site_tree_live
               (id, subsite_id, parent_id, title, url_segment, page_type, content, sort)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.DB.ExecContext(ctx, live,
		uint64(id), n.SubsiteID, n.ParentID, n.Title, n.URLSegment,
		n.PageType, n.Content, n.Sort); err != nil {
		return 0, err
	}
	return uint64(id), nil
}
