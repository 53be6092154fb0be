package query

type tokenType int

const (
	eofToken tokenType = iota
	whitespaceToken
	stringToken
	intToken
	realToken
	boolToken
	nullToken
	andToken
	orToken
	notToken
	inToken
	commaToken
	leftParenToken
	rightParenToken
	equalToken
	notEqualToken
	lessThanToken
	lessThanOrEqualToken
	greaterThanToken
	greaterThanOrEqualToken
	identToken // bare word used as a function name (contains/startswith/endswith) or field
)

type token struct {
	Type  tokenType
	Value string
}

const eof = rune(0)
