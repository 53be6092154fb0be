package schema

import (
	"sync"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// Registry resolves resource names to tables, validates field references,
// and describes the foreign-key relationships between tables. Registration
// happens once at startup (Register/RegisterForeignKey); after that the
// registry is read-only, so Resource/Field/Navigation need no locking.
// registerMu only guards the registration phase itself against concurrent
// Register calls from multiple init goroutines.
type Registry struct {
	registerMu sync.Mutex
	tables     map[string]Table
	// navigations maps fromTable -> navName -> ForeignKey
	navigations map[string]map[string]ForeignKey
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:      make(map[string]Table),
		navigations: make(map[string]map[string]ForeignKey),
	}
}

// Register adds or replaces a resource's table schema.
func (r *Registry) Register(t Table) {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()
	r.tables[t.Name] = t
}

// RegisterForeignKey adds a navigable relationship.
func (r *Registry) RegisterForeignKey(fk ForeignKey) {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()
	byNav, ok := r.navigations[fk.FromTable]
	if !ok {
		byNav = make(map[string]ForeignKey)
		r.navigations[fk.FromTable] = byNav
	}
	byNav[fk.NavName] = fk
}

// Resource resolves name to its Table.
func (r *Registry) Resource(name string) (Table, error) {
	const op = "schema.Registry.Resource"
	t, ok := r.tables[name]
	if !ok {
		return Table{}, errkind.NotFoundf("%s: resource %q not found", op, name)
	}
	return t, nil
}

// Field resolves field on table to its Column.
func (r *Registry) Field(table, field string) (Column, error) {
	const op = "schema.Registry.Field"
	t, err := r.Resource(table)
	if err != nil {
		return Column{}, err
	}
	col, ok := t.Column(field)
	if !ok {
		return Column{}, errkind.BadRequestf("%s: field %q not found on %q", op, field, table)
	}
	return col, nil
}

// Navigation resolves navName on fromTable to its ForeignKey.
func (r *Registry) Navigation(fromTable, navName string) (ForeignKey, error) {
	const op = "schema.Registry.Navigation"
	byNav, ok := r.navigations[fromTable]
	if !ok {
		return ForeignKey{}, errkind.NotFoundf("%s: relationship %q not found for table %q", op, navName, fromTable)
	}
	fk, ok := byNav[navName]
	if !ok {
		return ForeignKey{}, errkind.NotFoundf("%s: relationship %q not found for table %q", op, navName, fromTable)
	}
	return fk, nil
}

// Tables returns every registered table, for $metadata generation.
func (r *Registry) Tables() []Table {
	out := make([]Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}
