// internal/content/model.go
//
// `site_tree` row model.
//
// Context
// -------
// Content nodes form one tree per subsite: `parent_id` = 0 marks a root
// node, and `subsite_id` scopes every row to exactly one subsite.  The
// store keeps two representations, a working draft (`site_tree`) and a
// published copy (`site_tree_live`); normal editing mutates the draft and
// publish copies it across.  A node's subsite is immutable after creation;
// cross-subsite duplication always creates new rows.
package content

import "time"

// Node mirrors one row in `site_tree` (and its `site_tree_live` mirror).
type Node struct {
	ID         uint64    `db:"id"`
	SubsiteID  uint64    `db:"subsite_id"`
	ParentID   uint64    `db:"parent_id"`
	Title      string    `db:"title"`
	URLSegment string    `db:"url_segment"`
	PageType   string    `db:"page_type"`
	Content    string    `db:"content"`
	Sort       int       `db:"sort"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
