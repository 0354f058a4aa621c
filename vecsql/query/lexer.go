package query

import (
	"strconv"
	"strings"
	"unicode"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
)

// Token represents a lexical token. Pos is the rune offset of the token in
// the original query text, kept for error reporting.
type Token struct {
	Kind TokenKind
	Text string
	Num  float64
	Pos  int
}

// TokenKind is the type of token
type TokenKind int

const (
	TokIdent TokenKind = iota
	TokString
	TokNumber
	TokParam
	TokComma
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokStar
	TokEq
	TokNe
	TokLt
	TokLte
	TokGt
	TokGte
	TokSelect
	TokFrom
	TokWhere
	TokOrder
	TokBy
	TokAsc
	TokDesc
	TokLimit
	TokOffset
	TokAs
	TokAnd
	TokOr
	TokNot
	TokIn
	TokMatch
	TokWithin
	TokSimilarity
	TokID
	TokVector
	TokTrue
	TokFalse
	TokEOF
)

var tokenNames = map[TokenKind]string{
	TokIdent:      "Ident",
	TokString:     "String",
	TokNumber:     "Number",
	TokParam:      "Param",
	TokComma:      "Comma",
	TokLParen:     "LParen",
	TokRParen:     "RParen",
	TokLBracket:   "LBracket",
	TokRBracket:   "RBracket",
	TokStar:       "Star",
	TokEq:         "Eq",
	TokNe:         "Ne",
	TokLt:         "Lt",
	TokLte:        "Lte",
	TokGt:         "Gt",
	TokGte:        "Gte",
	TokSelect:     "SELECT",
	TokFrom:       "FROM",
	TokWhere:      "WHERE",
	TokOrder:      "ORDER",
	TokBy:         "BY",
	TokAsc:        "ASC",
	TokDesc:       "DESC",
	TokLimit:      "LIMIT",
	TokOffset:     "OFFSET",
	TokAs:         "AS",
	TokAnd:        "AND",
	TokOr:         "OR",
	TokNot:        "NOT",
	TokIn:         "IN",
	TokMatch:      "MATCH",
	TokWithin:     "WITHIN",
	TokSimilarity: "SIMILARITY",
	TokID:         "ID",
	TokVector:     "VECTOR",
	TokTrue:       "TRUE",
	TokFalse:      "FALSE",
	TokEOF:        "EOF",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return "Unknown"
}

// keywords maps upper-cased identifier text to its keyword token kind.
var keywords = map[string]TokenKind{
	"SELECT":     TokSelect,
	"FROM":       TokFrom,
	"WHERE":      TokWhere,
	"ORDER":      TokOrder,
	"BY":         TokBy,
	"ASC":        TokAsc,
	"DESC":       TokDesc,
	"LIMIT":      TokLimit,
	"OFFSET":     TokOffset,
	"AS":         TokAs,
	"AND":        TokAnd,
	"OR":         TokOr,
	"NOT":        TokNot,
	"IN":         TokIn,
	"MATCH":      TokMatch,
	"WITHIN":     TokWithin,
	"SIMILARITY": TokSimilarity,
	"ID":         TokID,
	"VECTOR":     TokVector,
	"TRUE":       TokTrue,
	"FALSE":      TokFalse,
}

// IsReservedWord reports whether name is a keyword of the query grammar.
// Reserved words never lex as identifiers, so schemas must not use them as
// field or collection names.
func IsReservedWord(name string) bool {
	_, ok := keywords[strings.ToUpper(name)]
	return ok
}

// Lexer tokenizes a query string
type Lexer struct {
	input []rune
	pos   int
}

// NewLexer creates a new lexer for the input string
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Lex tokenizes the entire input
func Lex(input string) ([]Token, error) {
	lexer := NewLexer(input)
	var tokens []Token

	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}

	return tokens, nil
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	// Single-character tokens
	switch ch {
	case ',':
		l.pos++
		return Token{Kind: TokComma, Text: ",", Pos: start}, nil
	case '(':
		l.pos++
		return Token{Kind: TokLParen, Text: "(", Pos: start}, nil
	case ')':
		l.pos++
		return Token{Kind: TokRParen, Text: ")", Pos: start}, nil
	case '[':
		l.pos++
		return Token{Kind: TokLBracket, Text: "[", Pos: start}, nil
	case ']':
		l.pos++
		return Token{Kind: TokRBracket, Text: "]", Pos: start}, nil
	case '*':
		l.pos++
		return Token{Kind: TokStar, Text: "*", Pos: start}, nil
	case '=':
		l.pos++
		return Token{Kind: TokEq, Text: "=", Pos: start}, nil
	}

	// One- or two-character comparison operators
	if ch == '!' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokNe, Text: "!=", Pos: start}, nil
		}
		return Token{}, vqerrors.Parse("unexpected character '!'", "!", start)
	}
	if ch == '<' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokLte, Text: "<=", Pos: start}, nil
		}
		l.pos++
		return Token{Kind: TokLt, Text: "<", Pos: start}, nil
	}
	if ch == '>' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokGte, Text: ">=", Pos: start}, nil
		}
		l.pos++
		return Token{Kind: TokGt, Text: ">", Pos: start}, nil
	}

	// Quoted string, SQL style with doubled-quote escape
	if ch == '\'' {
		return l.scanString()
	}

	// Named parameter: $ident
	if ch == '$' {
		return l.scanParam()
	}

	// Number (including negative)
	if unicode.IsDigit(ch) || (ch == '-' && l.pos+1 < len(l.input) && unicode.IsDigit(l.input[l.pos+1])) {
		return l.scanNumber()
	}

	// Identifier or keyword
	if isIdentStart(ch) {
		return l.scanIdent()
	}

	return Token{}, vqerrors.Parse("unexpected character", string(ch), start)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos < len(l.input) {
		return l.input[pos]
	}
	return 0
}

func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			// Doubled quote is an escaped quote
			if l.peek(1) == '\'' {
				sb.WriteRune('\'')
				l.pos += 2
				continue
			}
			l.pos++ // consume closing quote
			return Token{Kind: TokString, Text: sb.String(), Pos: start}, nil
		}
		sb.WriteRune(ch)
		l.pos++
	}

	return Token{}, vqerrors.Parse("unterminated string literal", string(l.input[start:]), start)
}

func (l *Lexer) scanParam() (Token, error) {
	start := l.pos
	l.pos++ // consume '$'
	nameStart := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == nameStart {
		return Token{}, vqerrors.Parse("expected parameter name after '$'", "$", start)
	}
	return Token{Kind: TokParam, Text: string(l.input[nameStart:l.pos]), Pos: start}, nil
}

func (l *Lexer) scanNumber() (Token, error) {
	start := l.pos

	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	numStr := string(l.input[start:l.pos])
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return Token{}, vqerrors.Parse("invalid number", numStr, start)
	}

	return Token{Kind: TokNumber, Text: numStr, Num: num, Pos: start}, nil
}

func (l *Lexer) scanIdent() (Token, error) {
	start := l.pos

	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}

	text := string(l.input[start:l.pos])
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		return Token{Kind: kind, Text: text, Pos: start}, nil
	}

	return Token{Kind: TokIdent, Text: text, Pos: start}, nil
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
