// internal/tenancy/duplicator.go
//
// Cross-subsite content-tree duplication.
//
// Context
// -------
// Instantiating a subsite from a template clones the template's entire
// content tree into the destination.  The traversal is iterative: an
// explicit stack of (sourceParentID, destParentID) pairs, seeded with the
// root sentinel pair, replaces recursion.  Popping LIFO means siblings are
// not cloned in original order; parent linkage, not sibling order, is the
// correctness requirement, and each clone keeps its source sort value
// anyway.
//
// Each clone-and-persist step runs under the tenant guard so the write is
// scoped to the destination subsite, and the caller's subsite is restored
// on every exit path.  Duplication is long-running and not transactional:
// a failure partway leaves already-cloned subtrees persisted under the
// destination with no rollback.  Callers must clean up or delete partial
// output before re-running.  The guard is a shared non-reentrant
// process-global, so concurrent duplications must be serialized by the
// caller.
package tenancy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopycms/canopy/internal/content"
	"github.com/canopycms/canopy/internal/metrics"
	"github.com/canopycms/canopy/internal/subsite"
)

// TreeStore is the slice of the content repository duplication needs.
type TreeStore interface {
	Children(ctx context.Context, subsiteID, parentID uint64) ([]content.Node, error)
	CreateNode(ctx context.Context, n *content.Node) (uint64, error)
}

// Duplicator clones content trees across subsites.
type Duplicator struct {
	store TreeStore
	tc    *Context
}

// NewDuplicator wires a duplicator over the content store and the shared
// tenancy context.
func NewDuplicator(store TreeStore, tc *Context) *Duplicator {
	return &Duplicator{store: store, tc: tc}
}

// Duplicate clones the whole content tree of src into dst.
func (d *Duplicator) Duplicate(ctx context.Context, src, dst *subsite.Record) error {
	type pair struct {
		srcParent uint64
		dstParent uint64
	}

	stack := []pair{{srcParent: 0, dstParent: 0}}
	var cloned int

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := d.store.Children(ctx, src.ID, p.srcParent)
		if err != nil {
			return fmt.Errorf("duplicate: list children of %d: %w", p.srcParent, err)
		}

		for i := range children {
			child := children[i]

			var cloneID uint64
			err := d.tc.WithSubsite(ctx, dst.ID, func() error {
				clone := child
				clone.ID = 0
				clone.SubsiteID = dst.ID
				clone.ParentID = p.dstParent
				id, err := d.store.CreateNode(ctx, &clone)
				if err != nil {
					return err
				}
				cloneID = id
				return nil
			})
			if err != nil {
				// Partial output stays persisted; surface the failure.
				return fmt.Errorf("duplicate: clone node %d: %w", child.ID, err)
			}

			cloned++
			metrics.DuplicatedNodesTotal.Inc()
			stack = append(stack, pair{srcParent: child.ID, dstParent: cloneID})
		}
	}

	zap.S().Infow("subsite tree duplicated",
		"source", src.ID, "destination", dst.ID, "nodes", cloned)
	return nil
}

// Instantiate creates a fresh subsite from a template: a new titled,
// public row is persisted through repo, then the template's tree is cloned
// into it.  The new record is returned even when duplication fails
// partway, so the caller can inspect or delete the partial copy.
func (d *Duplicator) Instantiate(ctx context.Context, repo *subsite.Repository, template *subsite.Record, title string) (*subsite.Record, error) {
	if !template.IsTemplate {
		return nil, fmt.Errorf("instantiate: subsite %d is not a template", template.ID)
	}

	rec := &subsite.Record{
		Title:            title,
		Language:         template.Language,
		Theme:            template.Theme,
		PageTypeDenylist: template.PageTypeDenylist,
		Public:           true,
	}
	if err := repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("instantiate: save subsite: %w", err)
	}

	if err := d.Duplicate(ctx, template, rec); err != nil {
		return rec, err
	}
	return rec, nil
}
