package services

import (
	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// DocumentIndex indexes the elements of the packages of one pass by
// category and identifier. It is owned by a single pass and is not safe
// for concurrent use.
type DocumentIndex struct {
	policy   domain.ConflictPolicy
	packages []*domain.Package
	elements map[domain.Category]map[string]domain.Element
	order    map[domain.Category][]string
	owners   map[string]*domain.Package
}

// NewDocumentIndex creates an empty index using the given conflict policy.
func NewDocumentIndex(policy domain.ConflictPolicy) *DocumentIndex {
	if policy == "" {
		policy = domain.ConflictReject
	}
	idx := &DocumentIndex{policy: policy}
	idx.Reset()
	return idx
}

// Reset clears every indexed package and element.
func (idx *DocumentIndex) Reset() {
	idx.packages = nil
	idx.elements = make(map[domain.Category]map[string]domain.Element, len(domain.Categories))
	idx.order = make(map[domain.Category][]string, len(domain.Categories))
	idx.owners = make(map[string]*domain.Package)
	for _, c := range domain.Categories {
		idx.elements[c] = make(map[string]domain.Element)
	}
}

type indexEntry struct {
	category domain.Category
	id       string
	element  domain.Element
}

// Ingest registers every identified element of pkg. Kill chains are
// indexed under domain.CategoryKillChains. Anonymous elements are only
// reachable by direct reference.
//
// With ConflictReject, a package redefining an indexed identifier is
// rejected with a *domain.ConflictError and nothing is registered.
func (idx *DocumentIndex) Ingest(pkg *domain.Package) error {
	if pkg == nil {
		return domain.ErrInvalidInput
	}

	var entries []indexEntry
	seen := make(map[domain.Category]map[string]bool)
	for _, c := range domain.Categories {
		for _, el := range pkg.Elements(c) {
			id := el.ElementID()
			if id == "" {
				continue
			}
			if seen[c] == nil {
				seen[c] = make(map[string]bool)
			}
			if seen[c][id] || idx.has(c, id) {
				if idx.policy == domain.ConflictReject {
					return &domain.ConflictError{Category: c, ID: id, Existing: idx.ownerID(id, pkg)}
				}
			}
			seen[c][id] = true
			entries = append(entries, indexEntry{category: c, id: id, element: el})
		}
	}

	idx.packages = append(idx.packages, pkg)
	for _, e := range entries {
		idx.put(pkg, e)
	}
	return nil
}

func (idx *DocumentIndex) put(pkg *domain.Package, e indexEntry) {
	if idx.has(e.category, e.id) {
		if idx.policy == domain.ConflictKeepFirst {
			return
		}
	} else {
		idx.order[e.category] = append(idx.order[e.category], e.id)
	}
	idx.elements[e.category][e.id] = e.element
	idx.owners[e.id] = pkg
}

func (idx *DocumentIndex) has(c domain.Category, id string) bool {
	_, ok := idx.elements[c][id]
	return ok
}

func (idx *DocumentIndex) ownerID(id string, pending *domain.Package) string {
	if owner, ok := idx.owners[id]; ok {
		return owner.ID
	}
	return pending.ID
}

// Get returns the element of category c with identifier id.
func (idx *DocumentIndex) Get(c domain.Category, id string) (domain.Element, bool) {
	el, ok := idx.elements[c][id]
	return el, ok
}

// Owner returns the package that defined the element with identifier id.
func (idx *DocumentIndex) Owner(id string) (*domain.Package, bool) {
	pkg, ok := idx.owners[id]
	return pkg, ok
}

// Elements returns the indexed elements of category c in ingestion order.
func (idx *DocumentIndex) Elements(c domain.Category) []domain.Element {
	ids := idx.order[c]
	out := make([]domain.Element, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.elements[c][id])
	}
	return out
}

// Packages returns the ingested packages in ingestion order.
func (idx *DocumentIndex) Packages() []*domain.Package {
	return idx.packages
}

// Len returns the number of indexed elements of category c.
func (idx *DocumentIndex) Len(c domain.Category) int {
	return len(idx.order[c])
}
