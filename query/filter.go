package query

import (
	"strconv"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// filterParser is a recursive-descent parser over the grammar:
//
//	expr     := or_expr
//	or_expr  := and_expr ('or' and_expr)*
//	and_expr := unary ('and' unary)*
//	unary    := 'not' unary | primary
//	primary  := '(' expr ')'
//	          | field OP literal
//	          | field 'in' '(' literal (',' literal)* ')'
//	          | func '(' field ',' literal ')'
type filterParser struct {
	lex  *lexer
	cur  token
	peek *token
}

func newFilterParser(raw string) (*filterParser, error) {
	p := &filterParser{lex: newLexer(raw)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *filterParser) advance() error {
	var tk token
	var err error
	if p.peek != nil {
		tk, p.peek = *p.peek, nil
	} else {
		tk, err = p.lex.nextToken()
		if err != nil {
			return err
		}
	}
	for tk.Type == whitespaceToken {
		tk, err = p.lex.nextToken()
		if err != nil {
			return err
		}
	}
	p.cur = tk
	return nil
}

// parseFilter parses raw into a FilterExpr and verifies there is no
// trailing input.
func parseFilter(raw string) (FilterExpr, error) {
	const op = "query.parseFilter"
	p, err := newFilterParser(raw)
	if err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != eofToken {
		return nil, errkind.BadRequestf("%s: unexpected trailing token %q in $filter", op, p.cur.Value)
	}
	return expr, nil
}

func (p *filterParser) parseExpr() (FilterExpr, error) {
	return p.parseOr()
}

func (p *filterParser) parseOr() (FilterExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == orToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *filterParser) parseAnd() (FilterExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == andToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *filterParser) parseUnary() (FilterExpr, error) {
	if p.cur.Type == notToken {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *filterParser) parsePrimary() (FilterExpr, error) {
	const op = "query.parsePrimary"
	switch p.cur.Type {
	case leftParenToken:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != rightParenToken {
			return nil, errkind.BadRequestf("%s: missing closing paren in $filter", op)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case identToken:
		return p.parseFuncOrCompare()

	default:
		return nil, errkind.BadRequestf("%s: unexpected token %q in $filter", op, p.cur.Value)
	}
}

// parseFuncOrCompare handles both `func(field, literal)` and
// `field OP literal` / `field in (...)`, disambiguating on whether the
// identifier is immediately followed by '(' and is a known function name.
func (p *filterParser) parseFuncOrCompare() (FilterExpr, error) {
	const op = "query.parseFuncOrCompare"
	name := p.cur.Value
	stringOp, isFunc := stringOpByName(name)
	if err := p.advance(); err != nil {
		return nil, err
	}

	if isFunc {
		if p.cur.Type != leftParenToken {
			return nil, errkind.BadRequestf("%s: expected '(' after %s", op, name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != identToken {
			return nil, errkind.BadRequestf("%s: expected field name in %s(...)", op, name)
		}
		field := p.cur.Value
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != commaToken {
			return nil, errkind.BadRequestf("%s: expected ',' in %s(...)", op, name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != rightParenToken {
			return nil, errkind.BadRequestf("%s: missing closing paren in %s(...)", op, name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StringPred{Field: field, Op: stringOp, Value: lit}, nil
	}

	field := name
	switch p.cur.Type {
	case inToken:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != leftParenToken {
			return nil, errkind.BadRequestf("%s: expected '(' after 'in'", op)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var values []Literal
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, lit)
			if p.cur.Type == commaToken {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.cur.Type != rightParenToken {
			return nil, errkind.BadRequestf("%s: missing closing paren in 'in' list", op)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &In{Field: field, Values: values}, nil

	case equalToken, notEqualToken, lessThanToken, lessThanOrEqualToken, greaterThanToken, greaterThanOrEqualToken:
		cmpOp := compareOpByToken(p.cur.Type)
		if err := p.advance(); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Compare{Field: field, Op: cmpOp, Value: lit}, nil

	default:
		return nil, errkind.BadRequestf("%s: expected comparison operator after field %q", op, field)
	}
}

func (p *filterParser) parseLiteral() (Literal, error) {
	const op = "query.parseLiteral"
	switch p.cur.Type {
	case stringToken:
		v := p.cur.Value
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Value: v}, nil
	case intToken:
		n, err := strconv.ParseInt(p.cur.Value, 10, 64)
		if err != nil {
			return Literal{}, errkind.BadRequestf("%s: invalid integer literal %q", op, p.cur.Value)
		}
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Value: n}, nil
	case realToken:
		f, err := strconv.ParseFloat(p.cur.Value, 64)
		if err != nil {
			return Literal{}, errkind.BadRequestf("%s: invalid real literal %q", op, p.cur.Value)
		}
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Value: f}, nil
	case boolToken:
		b := p.cur.Value == "true"
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Value: b}, nil
	case nullToken:
		if err := p.advance(); err != nil {
			return Literal{}, err
		}
		return Literal{Value: nil}, nil
	default:
		return Literal{}, errkind.BadRequestf("%s: expected a literal value, got %q", op, p.cur.Value)
	}
}

func stringOpByName(name string) (StringOp, bool) {
	switch name {
	case string(OpContains):
		return OpContains, true
	case string(OpStartsWith):
		return OpStartsWith, true
	case string(OpEndsWith):
		return OpEndsWith, true
	default:
		return "", false
	}
}

func compareOpByToken(t tokenType) CompareOp {
	switch t {
	case equalToken:
		return OpEq
	case notEqualToken:
		return OpNe
	case lessThanToken:
		return OpLt
	case lessThanOrEqualToken:
		return OpLe
	case greaterThanToken:
		return OpGt
	case greaterThanOrEqualToken:
		return OpGe
	default:
		return ""
	}
}
