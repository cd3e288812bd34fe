package sim

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokSymbol
	tokString
	tokInteger
	tokFloat
	tokInstanceName
	tokSFVar     // ?x
	tokMFVar     // $?x
	tokSFWild    // ?
	tokMFWild    // $?
	tokGlobal    // ?*x*
	tokAnd       // &
	tokOr        // |
	tokNot       // ~
	tokPredicate // :
	tokReturn    // =
)

type token struct {
	text string // raw text as written
	str  string // symbol, string contents, variable or instance name
	i    int64
	f    float64
	kind tokenKind
	line int
}

type syntaxError struct {
	msg  string
	line int
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.msg)
}

type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '(', ')', '"', ';', '&', '|', '~':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			l.pos++
		case c == ';':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	tok := token{line: l.line}

	switch c {
	case '(':
		l.pos++
		tok.kind, tok.text = tokLParen, "("
		return tok, nil
	case ')':
		l.pos++
		tok.kind, tok.text = tokRParen, ")"
		return tok, nil
	case '&':
		l.pos++
		tok.kind, tok.text = tokAnd, "&"
		return tok, nil
	case '|':
		l.pos++
		tok.kind, tok.text = tokOr, "|"
		return tok, nil
	case '~':
		l.pos++
		tok.kind, tok.text = tokNot, "~"
		return tok, nil
	case '"':
		return l.lexString()
	case '[':
		end := strings.IndexByte(l.src[l.pos:], ']')
		if end < 0 {
			return tok, &syntaxError{"unterminated instance name", l.line}
		}
		tok.kind = tokInstanceName
		tok.str = l.src[l.pos+1 : l.pos+end]
		l.pos += end + 1
		tok.text = l.src[start:l.pos]
		return tok, nil
	}

	for l.pos < len(l.src) && !isDelimiter(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]
	tok.text = word

	switch {
	case word == "?":
		tok.kind = tokSFWild
	case word == "$?":
		tok.kind = tokMFWild
	case strings.HasPrefix(word, "?*") && strings.HasSuffix(word, "*") && len(word) > 3:
		tok.kind, tok.str = tokGlobal, word[2:len(word)-1]
	case strings.HasPrefix(word, "$?"):
		tok.kind, tok.str = tokMFVar, word[2:]
	case strings.HasPrefix(word, "?"):
		tok.kind, tok.str = tokSFVar, word[1:]
	case (word == ":" || word == "=") && l.pos < len(l.src) && l.src[l.pos] == '(':
		if word == ":" {
			tok.kind = tokPredicate
		} else {
			tok.kind = tokReturn
		}
	default:
		if looksNumeric(word) {
			if i, err := strconv.ParseInt(word, 10, 64); err == nil {
				tok.kind, tok.i = tokInteger, i
				return tok, nil
			}
			if f, err := strconv.ParseFloat(word, 64); err == nil {
				tok.kind, tok.f = tokFloat, f
				return tok, nil
			}
		}
		tok.kind, tok.str = tokSymbol, word
	}
	return tok, nil
}

func looksNumeric(w string) bool {
	i := 0
	if i < len(w) && (w[i] == '+' || w[i] == '-') {
		i++
	}
	if i < len(w) && w[i] == '.' {
		i++
	}
	return i < len(w) && w[i] >= '0' && w[i] <= '9'
}

func (l *lexer) lexString() (token, error) {
	tok := token{kind: tokString, line: l.line}
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '\\':
			if l.pos+1 < len(l.src) {
				l.pos++
				c = l.src[l.pos]
			}
		case '"':
			l.pos++
			tok.str = b.String()
			tok.text = l.src[start:l.pos]
			return tok, nil
		case '\n':
			l.line++
		}
		b.WriteByte(c)
		l.pos++
	}
	return tok, &syntaxError{"unterminated string", tok.line}
}

// node is a parsed s-expression: either an atom or a list.
type node struct {
	tok    token
	list   []*node
	isList bool
}

func (n *node) atom(kind tokenKind) bool {
	return !n.isList && n.tok.kind == kind
}

func (n *node) symbol() (string, bool) {
	if n.atom(tokSymbol) {
		return n.tok.str, true
	}
	return "", false
}

func (n *node) isSymbol(s string) bool {
	sym, ok := n.symbol()
	return ok && sym == s
}

// head returns the leading symbol of a list node.
func (n *node) head() string {
	if !n.isList || len(n.list) == 0 {
		return ""
	}
	s, _ := n.list[0].symbol()
	return s
}

func (n *node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *node) write(b *strings.Builder) {
	if !n.isList {
		b.WriteString(n.tok.text)
		return
	}
	b.WriteByte('(')
	for i, c := range n.list {
		if i > 0 {
			b.WriteByte(' ')
		}
		c.write(b)
	}
	b.WriteByte(')')
}

// parse reads every top-level form in src. Top-level atoms are returned
// as atom nodes.
func parse(src string) ([]*node, error) {
	l := newLexer(src)
	var out []*node
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEOF {
			return out, nil
		}
		n, err := parseNode(l, tok)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
}

// parseOne reads exactly one form and rejects trailing input.
func parseOne(src string) (*node, error) {
	forms, err := parse(src)
	if err != nil {
		return nil, err
	}
	if len(forms) != 1 {
		return nil, &syntaxError{fmt.Sprintf("expected one expression, found %d", len(forms)), 1}
	}
	return forms[0], nil
}

func parseNode(l *lexer, tok token) (*node, error) {
	switch tok.kind {
	case tokRParen:
		return nil, &syntaxError{"unexpected ')'", tok.line}
	case tokLParen:
		n := &node{isList: true, tok: tok}
		for {
			t, err := l.next()
			if err != nil {
				return nil, err
			}
			switch t.kind {
			case tokEOF:
				return nil, &syntaxError{"missing ')'", tok.line}
			case tokRParen:
				return n, nil
			}
			child, err := parseNode(l, t)
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, child)
		}
	}
	return &node{tok: tok}, nil
}
