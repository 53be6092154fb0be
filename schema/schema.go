// Package schema is the process-lifetime registry of resource tables and
// the foreign-key relationships between them. It is registered once at
// startup and is read-only thereafter, so it needs no locking for
// concurrent reads (spec §5).
package schema

// ColumnType is one of the declared scalar storage types a Column can have.
type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
	Blob
	Null
)

// EdmType returns the $metadata XML Edm type name for t (spec §6).
func (t ColumnType) EdmType() string {
	switch t {
	case Integer:
		return "Edm.Int32"
	case Real:
		return "Edm.Double"
	case Text:
		return "Edm.String"
	case Blob:
		return "Edm.Binary"
	default:
		return "Edm.String"
	}
}

// Column describes one column of a table.
type Column struct {
	Name         string
	Type         ColumnType
	PrimaryKey   bool
	Nullable     bool
	DefaultValue any
}

// Table describes one resource's backing table.
type Table struct {
	Name    string
	Columns []Column
	// FTSTable, if non-empty, names the auxiliary full-text virtual table
	// (rowid -> indexed text columns) that backs $search for this
	// resource (spec §6, "FTS index").
	FTSTable string
}

// Column returns the column named name, or (Column{}, false).
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the table's primary-key column, or (Column{}, false)
// if it declares none.
func (t Table) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// ForeignKey describes one navigable relationship between two tables.
// NavName is the expand alias used on the wire (e.g. "customer" in
// Orders(1)/customer or $expand=customer).
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
	NavName    string
}
