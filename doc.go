/*
Package odata4 wires the RQL query parser, schema registry, SQL builder,
batch processor, and delta tracker into one framework-neutral request
handler.

A caller registers its tables with a schema.Registry, opens a
store.Connection, and builds a Handler:

	reg := schema.NewRegistry()
	reg.Register(schema.Table{Name: "orders", Columns: []schema.Column{...}})
	conn, _ := store.Open("app.db")
	h := odata4.NewHandler(reg, conn, delta.NewTracker(0, conn, nil), nil)

Every request, regardless of transport, goes through:

	status, headers, body := h.Handle(method, path, query, headers, body)

Handle never panics; every failure is translated to the
{"error":{"code","message"}} envelope with the matching HTTP status.
*/
package odata4
