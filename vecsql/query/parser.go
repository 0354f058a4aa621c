package query

import (
	"fmt"

	vqerrors "github.com/nonibytes/vecsql/vecsql/errors"
)

// Parse parses a query string into a Statement AST. It is a pure function:
// the same text always yields a structurally identical tree.
func Parse(input string) (*Statement, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if !p.match(TokEOF) {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) parseStatement() (*Statement, error) {
	if err := p.expect(TokSelect, "expected SELECT"); err != nil {
		return nil, err
	}

	stmt := &Statement{}

	proj, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	stmt.Projection = proj

	if err := p.expect(TokFrom, "expected FROM"); err != nil {
		return nil, err
	}
	from, err := p.expectIdent("expected collection or namespace name after FROM")
	if err != nil {
		return nil, err
	}
	stmt.From = from

	if p.match(TokWhere) {
		p.advance()
		where, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.match(TokOrder) {
		p.advance()
		order, err := p.parseOrderClause()
		if err != nil {
			return nil, err
		}
		stmt.Order = order
	}

	if p.match(TokLimit) {
		limit, err := p.parseLimitClause()
		if err != nil {
			return nil, err
		}
		stmt.Limit = limit
	}

	return stmt, nil
}

func (p *parser) parseProjection() (ProjectionList, error) {
	if p.match(TokStar) {
		p.advance()
		return ProjectionList{Star: true}, nil
	}

	var items []ProjectionItem
	for {
		item, err := p.parseProjectionItem()
		if err != nil {
			return ProjectionList{}, err
		}
		items = append(items, item)
		if !p.match(TokComma) {
			break
		}
		p.advance()
	}
	return ProjectionList{Items: items}, nil
}

func (p *parser) parseProjectionItem() (ProjectionItem, error) {
	tok := p.current()
	item := ProjectionItem{Pos: tok.Pos}

	switch tok.Kind {
	case TokID:
		item.Kind = ProjID
	case TokSimilarity:
		item.Kind = ProjSimilarity
	case TokVector:
		item.Kind = ProjVector
	case TokIdent:
		item.Kind = ProjField
		item.Field = tok.Text
	default:
		return ProjectionItem{}, p.errorf("expected projection item")
	}
	p.advance()

	if p.match(TokAs) {
		p.advance()
		alias, err := p.expectIdent("expected alias after AS")
		if err != nil {
			return ProjectionItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

func (p *parser) parseOrderClause() (*OrderClause, error) {
	if err := p.expect(TokBy, "expected BY after ORDER"); err != nil {
		return nil, err
	}

	clause := &OrderClause{Pos: p.current().Pos}
	switch p.current().Kind {
	case TokSimilarity:
		clause.Key = OrderSimilarity
		p.advance()
	case TokIdent:
		clause.Key = OrderField
		clause.Field = p.current().Text
		p.advance()
	default:
		return nil, p.errorf("expected SIMILARITY or field name after ORDER BY")
	}

	switch p.current().Kind {
	case TokAsc:
		clause.Desc = false
		clause.DirSet = true
		p.advance()
	case TokDesc:
		clause.Desc = true
		clause.DirSet = true
		p.advance()
	}
	return clause, nil
}

func (p *parser) parseLimitClause() (*LimitClause, error) {
	clause := &LimitClause{Pos: p.current().Pos}
	p.advance() // consume LIMIT

	n, err := p.expectNumber("expected number after LIMIT")
	if err != nil {
		return nil, err
	}
	clause.Limit = n

	if p.match(TokOffset) {
		p.advance()
		m, err := p.expectNumber("expected number after OFFSET")
		if err != nil {
			return nil, err
		}
		clause.Offset = m
		clause.HasOffset = true
	}
	return clause, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.match(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.match(TokAnd) {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.match(TokNot) {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.current().Kind {
	case TokLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokRParen, "expected ')'"); err != nil {
			return nil, err
		}
		return expr, nil

	case TokMatch:
		return p.parseMatch()

	case TokIdent:
		return p.parseFieldPredicate()

	case TokEOF:
		return nil, p.errorf("unexpected end of query")

	default:
		return nil, p.errorf("expected predicate")
	}
}

func (p *parser) parseFieldPredicate() (Expr, error) {
	fieldTok := p.current()
	p.advance()

	if p.match(TokIn) {
		p.advance()
		if err := p.expect(TokLParen, "expected '(' after IN"); err != nil {
			return nil, err
		}
		var values []Literal
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, lit)
			if !p.match(TokComma) {
				break
			}
			p.advance()
		}
		if err := p.expect(TokRParen, "expected ')' to close IN list"); err != nil {
			return nil, err
		}
		return In{Field: fieldTok.Text, Values: values, Pos: fieldTok.Pos}, nil
	}

	var op CmpOp
	switch p.current().Kind {
	case TokEq:
		op = CmpEq
	case TokNe:
		op = CmpNe
	case TokLt:
		op = CmpLt
	case TokLte:
		op = CmpLte
	case TokGt:
		op = CmpGt
	case TokGte:
		op = CmpGte
	default:
		return nil, p.errorf("expected comparison operator or IN after field %q", fieldTok.Text)
	}
	p.advance()

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return Cmp{Field: fieldTok.Text, Op: op, Value: lit, Pos: fieldTok.Pos}, nil
}

func (p *parser) parseMatch() (Expr, error) {
	matchPos := p.current().Pos
	p.advance() // consume MATCH

	vec, err := p.parseVectorExpr()
	if err != nil {
		return nil, err
	}

	if err := p.expect(TokWithin, "expected WITHIN after MATCH vector"); err != nil {
		return nil, err
	}
	k, err := p.expectNumber("expected top-k count after WITHIN")
	if err != nil {
		return nil, err
	}

	return Match{Vector: vec, K: k, Pos: matchPos}, nil
}

func (p *parser) parseVectorExpr() (VectorExpr, error) {
	tok := p.current()

	if tok.Kind == TokParam {
		p.advance()
		return VectorExpr{Param: tok.Text, Pos: tok.Pos}, nil
	}

	if tok.Kind != TokLBracket {
		return VectorExpr{}, p.errorf("expected vector literal or $param after MATCH")
	}
	p.advance()

	var values []float32
	if p.match(TokRBracket) {
		return VectorExpr{}, p.errorf("vector literal cannot be empty")
	}
	for {
		n, err := p.expectNumber("expected number in vector literal")
		if err != nil {
			return VectorExpr{}, err
		}
		values = append(values, float32(n))
		if !p.match(TokComma) {
			break
		}
		p.advance()
	}
	if err := p.expect(TokRBracket, "expected ']' to close vector literal"); err != nil {
		return VectorExpr{}, err
	}
	return VectorExpr{Values: values, Pos: tok.Pos}, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	tok := p.current()
	switch tok.Kind {
	case TokString:
		p.advance()
		return Literal{Kind: LitString, Str: tok.Text, Pos: tok.Pos}, nil
	case TokNumber:
		p.advance()
		return Literal{Kind: LitNumber, Num: tok.Num, Pos: tok.Pos}, nil
	case TokTrue:
		p.advance()
		return Literal{Kind: LitBool, Bool: true, Pos: tok.Pos}, nil
	case TokFalse:
		p.advance()
		return Literal{Kind: LitBool, Bool: false, Pos: tok.Pos}, nil
	default:
		return Literal{}, p.errorf("expected literal value")
	}
}

func (p *parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) match(kind TokenKind) bool {
	return p.current().Kind == kind
}

func (p *parser) expect(kind TokenKind, msg string) error {
	if !p.match(kind) {
		return p.errorf("%s", msg)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent(msg string) (string, error) {
	if !p.match(TokIdent) {
		return "", p.errorf("%s", msg)
	}
	text := p.current().Text
	p.advance()
	return text, nil
}

func (p *parser) expectNumber(msg string) (float64, error) {
	if !p.match(TokNumber) {
		return 0, p.errorf("%s", msg)
	}
	n := p.current().Num
	p.advance()
	return n, nil
}

func (p *parser) errorf(format string, args ...any) error {
	tok := p.current()
	text := tok.Text
	if tok.Kind == TokEOF {
		text = "<eof>"
	}
	return vqerrors.Parse(fmt.Sprintf(format, args...), text, tok.Pos)
}
