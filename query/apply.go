package query

import (
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// applyCursor is a small hand-rolled scanner over the fixed $apply grammar:
//
//	groupby((f1,f2,...), aggregate(src with OP as alias, ...))
//
// The grammar's shape is fixed enough (unlike $filter) that a cursor over
// the raw string, rather than the token lexer, keeps this readable.
type applyCursor struct {
	s   string
	pos int
}

func (c *applyCursor) skipSpace() {
	for c.pos < len(c.s) && (c.s[c.pos] == ' ' || c.s[c.pos] == '\t') {
		c.pos++
	}
}

func (c *applyCursor) eof() bool { return c.pos >= len(c.s) }

func (c *applyCursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.s[c.pos]
}

func (c *applyCursor) expect(lit string) error {
	const op = "query.applyCursor.expect"
	c.skipSpace()
	if c.pos+len(lit) > len(c.s) || !strings.EqualFold(c.s[c.pos:c.pos+len(lit)], lit) {
		return errkind.BadRequestf("%s: expected %q in $apply", op, lit)
	}
	c.pos += len(lit)
	return nil
}

// readIdent reads a bare identifier: letters, digits, underscore.
func (c *applyCursor) readIdent() (string, error) {
	const op = "query.applyCursor.readIdent"
	c.skipSpace()
	start := c.pos
	for c.pos < len(c.s) && isIdentRune(rune(c.s[c.pos])) {
		c.pos++
	}
	if c.pos == start {
		return "", errkind.BadRequestf("%s: expected identifier in $apply", op)
	}
	return c.s[start:c.pos], nil
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// parseApply parses the $apply system option.
func parseApply(raw string) (*Apply, error) {
	const op = "query.parseApply"
	c := &applyCursor{s: strings.TrimSpace(raw)}
	if err := c.expect("groupby"); err != nil {
		return nil, err
	}
	if err := c.expect("("); err != nil {
		return nil, err
	}
	if err := c.expect("("); err != nil {
		return nil, err
	}
	var groupBy []string
	for {
		f, err := c.readIdent()
		if err != nil {
			return nil, err
		}
		groupBy = append(groupBy, f)
		c.skipSpace()
		if c.peek() == ',' {
			c.pos++
			continue
		}
		break
	}
	if err := c.expect(")"); err != nil {
		return nil, err
	}
	c.skipSpace()

	apply := &Apply{GroupBy: groupBy}
	if c.peek() == ',' {
		c.pos++
		if err := c.expect("aggregate"); err != nil {
			return nil, err
		}
		if err := c.expect("("); err != nil {
			return nil, err
		}
		aggs, err := parseAggregateList(c)
		if err != nil {
			return nil, err
		}
		apply.Aggregates = aggs
		if err := c.expect(")"); err != nil {
			return nil, err
		}
	}
	if err := c.expect(")"); err != nil {
		return nil, err
	}
	c.skipSpace()
	if !c.eof() {
		return nil, errkind.BadRequestf("%s: unexpected trailing input in $apply", op)
	}
	return apply, nil
}

func parseAggregateList(c *applyCursor) ([]Aggregate, error) {
	const op = "query.parseAggregateList"
	var aggs []Aggregate
	for {
		src, err := c.readIdent()
		if err != nil {
			return nil, err
		}
		if err := c.expect("with"); err != nil {
			return nil, err
		}
		opName, err := c.readIdent()
		if err != nil {
			return nil, err
		}
		aggOp, ok := aggregateOpByName(opName)
		if !ok {
			return nil, errkind.BadRequestf("%s: unknown aggregate operator %q", op, opName)
		}
		if err := c.expect("as"); err != nil {
			return nil, err
		}
		alias, err := c.readIdent()
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, Aggregate{Source: src, Op: aggOp, As: alias})
		c.skipSpace()
		if c.peek() == ',' {
			c.pos++
			continue
		}
		break
	}
	return aggs, nil
}

func aggregateOpByName(name string) (AggregateOp, bool) {
	switch strings.ToLower(name) {
	case string(AggSum):
		return AggSum, true
	case string(AggAvg):
		return AggAvg, true
	case string(AggMin):
		return AggMin, true
	case string(AggMax):
		return AggMax, true
	case string(AggCount):
		return AggCount, true
	default:
		return "", false
	}
}
