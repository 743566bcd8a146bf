// internal/permission/catalog.go
//
// Static permission catalog.
//
// Context
// -------
// Subsystems declare the permission codes they govern here; an external
// admin UI reads the catalog to render grantable checkboxes.  The catalog
// is append-only and populated from package init functions, so importing a
// subsystem is enough to expose its codes.
package permission

import (
	"sort"
	"sync"
)

// Definition describes one grantable permission code.
type Definition struct {
	Code     string
	Name     string
	Category string
	Help     string
	Sort     int
}

var (
	mu       sync.RWMutex
	registry = map[string]Definition{}
)

// Register adds or replaces one definition.
func Register(d Definition) {
	mu.Lock()
	registry[d.Code] = d
	mu.Unlock()
}

// All returns every registered definition ordered by Sort, then Code.
func All() []Definition {
	mu.RLock()
	out := make([]Definition, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Lookup returns the definition for code, if registered.
func Lookup(code string) (Definition, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[code]
	return d, ok
}
