package odata4

import (
	"fmt"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/schema"
)

// metadataXML renders a minimal $metadata document (spec §6): one
// EntityType per registered table, one Property per column, typed per
// schema.ColumnType.EdmType, nullable echoing the column's declared
// nullability. This is a boundary helper, not part of the query core
// (spec §1 excludes $metadata from the core's scope), but the handler
// needs it to be runnable end to end.
func metadataXML(reg *schema.Registry) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<edmx:Edmx Version="4.0" xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx">` + "\n")
	b.WriteString(`  <edmx:DataServices>` + "\n")
	b.WriteString(`    <Schema xmlns="http://docs.oasis-open.org/odata/ns/edm" Namespace="Default">` + "\n")

	for _, t := range reg.Tables() {
		fmt.Fprintf(&b, "      <EntityType Name=%q>\n", t.Name)
		if pk, ok := t.PrimaryKey(); ok {
			fmt.Fprintf(&b, "        <Key>\n          <PropertyRef Name=%q />\n        </Key>\n", pk.Name)
		}
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "        <Property Name=%q Type=%q Nullable=%q />\n",
				c.Name, c.Type.EdmType(), boolAttr(c.Nullable))
		}
		b.WriteString("      </EntityType>\n")
	}

	b.WriteString("      <EntityContainer Name=\"Container\">\n")
	for _, t := range reg.Tables() {
		fmt.Fprintf(&b, "        <EntitySet Name=%q EntityType=\"Default.%s\" />\n", t.Name, t.Name)
	}
	b.WriteString("      </EntityContainer>\n")
	b.WriteString("    </Schema>\n  </edmx:DataServices>\n</edmx:Edmx>\n")
	return []byte(b.String())
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
