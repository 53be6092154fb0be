// Package query implements the RQL system-option parser: it tokenizes and
// parses $filter, $select, $orderby, $top, $skip, $expand, $search,
// $apply, $compute, $count, and $deltatoken into a typed Query AST. Each
// option parses independently and failures are reported as *errkind.Error
// (always BadRequest) before any SQL is ever considered, per the
// result-typed parse -> validate -> plan -> execute pipeline (spec §9).
package query

// Params is the query-map the request handler extracts system options
// from: one raw string value per "$option" key, already percent-decoded.
type Params map[string]string

// ParseQuery parses every system option present in params into a Query.
// An absent key leaves the corresponding Query field at its zero value.
func ParseQuery(params Params) (*Query, error) {
	q := &Query{}

	if raw, ok := params["$filter"]; ok {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		q.Filter = f
	}
	if raw, ok := params["$orderby"]; ok {
		ob, err := parseOrderBy(raw)
		if err != nil {
			return nil, err
		}
		q.OrderBy = ob
	}
	if raw, ok := params["$select"]; ok {
		q.Select = parseSelect(raw)
	}
	if raw, ok := params["$top"]; ok {
		top, err := parseNonNegativeInt("$top", raw)
		if err != nil {
			return nil, err
		}
		q.Paging.Top = top
	}
	if raw, ok := params["$skip"]; ok {
		skip, err := parseNonNegativeInt("$skip", raw)
		if err != nil {
			return nil, err
		}
		q.Paging.Skip = skip
	}
	if raw, ok := params["$expand"]; ok {
		ex, err := parseExpand(raw)
		if err != nil {
			return nil, err
		}
		q.Expand = ex
	}
	if raw, ok := params["$search"]; ok {
		s := raw
		q.Search = &s
	}
	if raw, ok := params["$apply"]; ok {
		ap, err := parseApply(raw)
		if err != nil {
			return nil, err
		}
		q.Apply = ap
	}
	if raw, ok := params["$compute"]; ok {
		c, err := parseCompute(raw)
		if err != nil {
			return nil, err
		}
		q.Compute = c
	}
	if raw, ok := params["$count"]; ok {
		c, err := parseBool("$count", raw)
		if err != nil {
			return nil, err
		}
		q.Count = c
	}
	if raw, ok := params["$deltatoken"]; ok {
		t := raw
		q.DeltaToken = &t
	}
	return q, nil
}
