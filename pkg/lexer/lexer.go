package lexer

import (
	"unicode"

	"github.com/xplshn/cmmc/pkg/token"
	"github.com/xplshn/cmmc/pkg/util"
)

type Lexer struct {
	source []rune
	pos    int
	line   int
	column int
	diags  *util.Diagnostics
}

func NewLexer(source []rune, diags *util.Diagnostics) *Lexer {
	return &Lexer{source: source, line: 1, column: 1, diags: diags}
}

// Tokenize scans the whole input. The result always ends with an EOF token.
func Tokenize(source []rune, diags *util.Diagnostics) []token.Token {
	l := NewLexer(source, diags)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
			if tok, ok := l.numberLiteral(startPos, startCol, startLine); ok {
				return tok
			}
			continue
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LP, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RP, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LC, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RC, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LB, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RB, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '.': return l.makeToken(token.Dot, "", startPos, startCol, startLine)
		case '+': return l.makeToken(token.Plus, "", startPos, startCol, startLine)
		case '-': return l.makeToken(token.Minus, "", startPos, startCol, startLine)
		case '*': return l.makeToken(token.Star, "", startPos, startCol, startLine)
		case '/': return l.makeToken(token.Div, "", startPos, startCol, startLine)
		case '<', '>':
			if l.match('=') {
				return l.makeToken(token.Relop, string(ch)+"=", startPos, startCol, startLine)
			}
			return l.makeToken(token.Relop, string(ch), startPos, startCol, startLine)
		case '=':
			if l.match('=') {
				return l.makeToken(token.Relop, "==", startPos, startCol, startLine)
			}
			return l.makeToken(token.AssignOp, "", startPos, startCol, startLine)
		case '!':
			if l.match('=') {
				return l.makeToken(token.Relop, "!=", startPos, startCol, startLine)
			}
			return l.makeToken(token.Not, "", startPos, startCol, startLine)
		case '&':
			if l.match('&') {
				return l.makeToken(token.And, "", startPos, startCol, startLine)
			}
		case '|':
			if l.match('|') {
				return l.makeToken(token.Or, "", startPos, startCol, startLine)
			}
		case '\'':
			if tok, ok := l.charLiteral(startPos, startCol, startLine); ok {
				return tok
			}
			continue
		}
		l.diags.Lexical(startLine, "Mysterious character \"%c\".", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{Type: tokType, Value: value, Line: startLine, Column: startCol, Len: l.pos - startPos}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.isAtEnd() {
		switch {
		case unicode.IsSpace(l.peek()):
			l.advance()
		case l.peek() == '/' && l.peekNext() == '/':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		case l.peek() == '/' && l.peekNext() == '*':
			l.blockComment()
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startLine := l.line
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.diags.Lexical(startLine, "Unterminated comment.")
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	text := string(l.source[startPos:l.pos])
	if kw, ok := token.Keywords[text]; ok {
		if kw == token.TypeKw {
			return l.makeToken(kw, text, startPos, startCol, startLine)
		}
		return l.makeToken(kw, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.ID, text, startPos, startCol, startLine)
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

// numberLiteral scans an integer (decimal, octal or hex) or a float. On a
// malformed literal it reports the whole word and returns ok=false.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, bool) {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		valid := isHexDigit(l.peek())
		for isWordRune(l.peek()) {
			valid = valid && isHexDigit(l.advance())
		}
		text := string(l.source[startPos:l.pos])
		if !valid {
			l.diags.Lexical(startLine, "Illegal hexadecimal number \"%s\".", text)
			return token.Token{}, false
		}
		return l.makeToken(token.Int, text, startPos, startCol, startLine), true
	}

	isFloat := false
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && (unicode.IsDigit(l.peekNext()) || l.pos > startPos) {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	valid := true
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		valid = unicode.IsDigit(l.peek())
	}
	for isWordRune(l.peek()) || (isFloat && l.peek() == '.') {
		valid = valid && unicode.IsDigit(l.advance())
	}
	text := string(l.source[startPos:l.pos])

	switch {
	case !valid && isFloat:
		l.diags.Lexical(startLine, "Illegal floating point number \"%s\".", text)
		return token.Token{}, false
	case !valid:
		l.diags.Lexical(startLine, "Illegal number \"%s\".", text)
		return token.Token{}, false
	case isFloat:
		return l.makeToken(token.Float, text, startPos, startCol, startLine), true
	}
	if len(text) > 1 && text[0] == '0' {
		for _, r := range text {
			if r > '7' {
				l.diags.Lexical(startLine, "Illegal octal number \"%s\".", text)
				return token.Token{}, false
			}
		}
	}
	return l.makeToken(token.Int, text, startPos, startCol, startLine), true
}

// charLiteral scans 'c' or a backslash escape; the token value is the
// text between the quotes
func (l *Lexer) charLiteral(startPos, startCol, startLine int) (token.Token, bool) {
	bodyStart := l.pos
	if l.peek() == '\\' {
		l.advance()
		if l.peek() == 'x' {
			l.advance()
			for isHexDigit(l.peek()) {
				l.advance()
			}
		} else if l.peek() != '\n' {
			l.advance()
		}
	} else if l.peek() != '\'' && l.peek() != '\n' {
		l.advance()
	}
	body := string(l.source[bodyStart:l.pos])
	if body == "" || !l.match('\'') {
		l.diags.Lexical(startLine, "Illegal character constant.")
		return token.Token{}, false
	}
	return l.makeToken(token.Char, body, startPos, startCol, startLine), true
}
