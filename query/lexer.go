package query

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/rvegajr/sqlite-db-odata4-sub000/errkind"
)

// lexStateFunc is a single state in the lexer's state machine. It reads
// zero or more runes from the lexer and either emits a token or returns the
// next state to transition to, in a rune-at-a-time scanning design.
type lexStateFunc func(*lexer) (lexStateFunc, error)

type lexer struct {
	source  *bufio.Reader
	current stack[rune]
	tokens  chan token
	state   lexStateFunc
}

func newLexer(s string) *lexer {
	return &lexer{
		source: bufio.NewReader(strings.NewReader(s)),
		state:  lexStartState,
		tokens: make(chan token, 1),
	}
}

// nextToken returns the next token or an error. Once eofToken has been
// emitted it keeps being returned on every subsequent call.
func (l *lexer) nextToken() (token, error) {
	for {
		select {
		case tk := <-l.tokens:
			return tk, nil
		default:
			var err error
			if l.state, err = l.state(l); err != nil {
				return token{}, err
			}
		}
	}
}

func lexStartState(l *lexer) (lexStateFunc, error) {
	r := l.read()
	switch {
	case r == eof:
		l.emit(eofToken, "")
		return lexEofState, nil
	case isSpace(r):
		return lexWhitespaceState, nil
	case r == '(':
		l.emit(leftParenToken, "(")
		l.current.clear()
		return lexStartState, nil
	case r == ')':
		l.emit(rightParenToken, ")")
		l.current.clear()
		return lexStartState, nil
	case r == ',':
		l.emit(commaToken, ",")
		l.current.clear()
		return lexStartState, nil
	case r == '\'':
		l.unread()
		return lexQuotedStringState, nil
	default:
		l.unread()
		return lexWordState, nil
	}
}

func lexWhitespaceState(l *lexer) (lexStateFunc, error) {
	defer l.current.clear()
ReadWhitespace:
	for {
		r := l.read()
		switch {
		case r == eof:
			break ReadWhitespace
		case !isSpace(r):
			l.unread()
			break ReadWhitespace
		}
	}
	l.emit(whitespaceToken, "")
	return lexStartState, nil
}

func lexQuotedStringState(l *lexer) (lexStateFunc, error) {
	const op = "query.lexQuotedStringState"
	defer l.current.clear()
	l.read() // consume the opening quote

	var buf bytes.Buffer
ReadQuoted:
	for {
		r := l.read()
		switch r {
		case eof:
			return nil, errkind.BadRequestf("%s: unterminated string literal", op)
		case '\'':
			// a doubled quote is an escaped literal quote; anything else
			// ends the string.
			next := l.read()
			if next == '\'' {
				buf.WriteRune('\'')
				continue ReadQuoted
			}
			l.unread()
			break ReadQuoted
		default:
			buf.WriteRune(r)
		}
	}
	l.emit(stringToken, buf.String())
	return lexStartState, nil
}

// lexWordState scans an unquoted run of non-special, non-space runes and
// classifies it as a keyword, number, boolean, null, or bare identifier
// (field name / function name).
func lexWordState(l *lexer) (lexStateFunc, error) {
	defer l.current.clear()
	var buf bytes.Buffer
ReadWord:
	for {
		r := l.read()
		switch {
		case r == eof, isSpace(r), isSpecial(r):
			l.unread()
			break ReadWord
		default:
			buf.WriteRune(r)
		}
	}
	word := buf.String()
	if word == "" {
		// a lone special rune that wasn't handled in lexStartState
		r := l.read()
		return nil, errkind.BadRequestf("query.lexWordState: unexpected character %q", string(r))
	}
	l.emit(classifyWord(word), word)
	return lexStartState, nil
}

func classifyWord(word string) tokenType {
	switch strings.ToLower(word) {
	case "and":
		return andToken
	case "or":
		return orToken
	case "not":
		return notToken
	case "in":
		return inToken
	case "eq":
		return equalToken
	case "ne":
		return notEqualToken
	case "lt":
		return lessThanToken
	case "le":
		return lessThanOrEqualToken
	case "gt":
		return greaterThanToken
	case "ge":
		return greaterThanOrEqualToken
	case "true", "false":
		return boolToken
	case "null":
		return nullToken
	}
	if isNumber(word) {
		if strings.ContainsAny(word, ".eE") {
			return realToken
		}
		return intToken
	}
	return identToken
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	if i == len(s) {
		return false
	}
	seenDigit, seenDot := false, false
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			seenDigit = true
		case s[i] == '.' && !seenDot:
			seenDot = true
		default:
			return false
		}
	}
	return seenDigit
}

func lexEofState(l *lexer) (lexStateFunc, error) {
	l.emit(eofToken, "")
	return lexEofState, nil
}

func (l *lexer) emit(t tokenType, v string) {
	l.tokens <- token{Type: t, Value: v}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

func isSpecial(r rune) bool {
	return r == '(' || r == ')' || r == ',' || r == '\''
}

func (l *lexer) read() rune {
	ch, _, err := l.source.ReadRune()
	if err != nil {
		return eof
	}
	l.current.push(ch)
	return ch
}

func (l *lexer) unread() {
	_ = l.source.UnreadRune()
	_, _ = l.current.pop()
}
