package parser

import (
	"fmt"
	"strconv"

	"github.com/jsoref/memgraph/pkg/gql/ast"
	"github.com/jsoref/memgraph/pkg/graph"
)

// SyntaxError is returned for any grammar violation; the interpreter
// surfaces it to the client without attempting to run the query.
type SyntaxError struct {
	Msg string
	Pos int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

// Parser turns a token stream into an *ast.Query.
type Parser struct {
	l    *Lexer
	cur  Token
	peek Token
}

// New creates a Parser over input.
func New(input string) *Parser {
	p := &Parser{l: NewLexer(input)}
	p.next()
	p.next()
	return p
}

// Parse parses one full query.
func Parse(input string) (*ast.Query, error) {
	return New(input).ParseQuery()
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Pos: p.cur.Pos}
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if p.cur.Type != tt {
		return Token{}, p.errf("expected %s, got %q", what, p.cur.Literal)
	}
	tok := p.cur
	p.next()
	return tok, nil
}

// ParseQuery parses a sequence of clauses until EOF or ';'.
func (p *Parser) ParseQuery() (*ast.Query, error) {
	q := &ast.Query{}
	for p.cur.Type != TokenEOF && p.cur.Type != TokenSemicolon {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}
	if len(q.Clauses) == 0 {
		return nil, p.errf("empty query")
	}
	return q, nil
}

func (p *Parser) parseClause() (ast.Clause, error) {
	switch p.cur.Type {
	case TokenMatch:
		return p.parseMatch(false)
	case TokenOptional:
		p.next()
		if p.cur.Type != TokenMatch {
			return nil, p.errf("expected MATCH, got %q", p.cur.Literal)
		}
		return p.parseMatch(true)
	case TokenCreate:
		p.next()
		if p.cur.Type == TokenIndex {
			return p.parseCreateIndex()
		}
		return p.parseCreate()
	case TokenMerge:
		return p.parseMerge()
	case TokenSet:
		return p.parseSet()
	case TokenRemove:
		return p.parseRemove()
	case TokenDelete:
		return p.parseDelete(false)
	case TokenDetach:
		p.next()
		if p.cur.Type != TokenDelete {
			return nil, p.errf("expected DELETE, got %q", p.cur.Literal)
		}
		return p.parseDelete(true)
	case TokenReturn:
		return p.parseReturn()
	case TokenWith:
		return p.parseWith()
	case TokenUnwind:
		return p.parseUnwind()
	case TokenCall:
		return p.parseCall()
	default:
		return nil, p.errf("unexpected token %q at start of clause", p.cur.Literal)
	}
}

func (p *Parser) parseMatch(optional bool) (ast.Clause, error) {
	p.next() // consume MATCH
	parts, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	clause := &ast.MatchClause{Optional: optional, Patterns: parts}
	if p.cur.Type == TokenWhere {
		p.next()
		where, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		clause.Where = where
	}
	return clause, nil
}

func (p *Parser) parseCreate() (ast.Clause, error) {
	parts, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	return &ast.CreateClause{Patterns: parts}, nil
}

func (p *Parser) parseCreateIndex() (ast.Clause, error) {
	p.next() // consume INDEX
	if _, err := p.expect(TokenOn, "ON"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, ":"); err != nil {
		return nil, err
	}
	label, err := p.expect(TokenIdent, "label")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	prop, err := p.expect(TokenIdent, "property")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen, ")"); err != nil {
		return nil, err
	}
	return &ast.CreateIndexClause{Label: label.Literal, Property: prop.Literal}, nil
}

func (p *Parser) parseMerge() (ast.Clause, error) {
	p.next() // consume MERGE
	part, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	clause := &ast.MergeClause{Pattern: part}
	for p.cur.Type == TokenOn {
		p.next()
		switch p.cur.Type {
		case TokenCreate:
			p.next()
			if _, err := p.expect(TokenSet, "SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			clause.OnCreate = items
		case TokenMatch:
			p.next()
			if _, err := p.expect(TokenSet, "SET"); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			clause.OnMatch = items
		default:
			return nil, p.errf("expected CREATE or MATCH after ON")
		}
	}
	return clause, nil
}

func (p *Parser) parseSet() (ast.Clause, error) {
	p.next() // consume SET
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	return &ast.SetClause{Items: items}, nil
}

func (p *Parser) parseSetItems() ([]ast.SetItem, error) {
	var items []ast.SetItem
	for {
		item, err := p.parseSetItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	return items, nil
}

func (p *Parser) parseSetItem() (ast.SetItem, error) {
	name, err := p.expect(TokenIdent, "variable")
	if err != nil {
		return ast.SetItem{}, err
	}
	target := ast.Expression(&ast.Identifier{Name: name.Literal})

	switch p.cur.Type {
	case TokenDot:
		p.next()
		prop, err := p.expect(TokenIdent, "property")
		if err != nil {
			return ast.SetItem{}, err
		}
		if _, err := p.expect(TokenEQ, "="); err != nil {
			return ast.SetItem{}, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return ast.SetItem{}, err
		}
		return ast.SetItem{Target: target, Property: prop.Literal, Value: val}, nil
	case TokenColon:
		var labels []string
		for p.cur.Type == TokenColon {
			p.next()
			l, err := p.expect(TokenIdent, "label")
			if err != nil {
				return ast.SetItem{}, err
			}
			labels = append(labels, l.Literal)
		}
		return ast.SetItem{Target: target, Labels: labels}, nil
	case TokenEQ, TokenPlus:
		replace := p.cur.Type == TokenEQ
		if !replace {
			p.next()
		}
		if _, err := p.expect(TokenEQ, "="); err != nil {
			return ast.SetItem{}, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return ast.SetItem{}, err
		}
		return ast.SetItem{Target: target, Value: val, Replace: replace, IsMap: true}, nil
	default:
		return ast.SetItem{}, p.errf("expected '.', ':' or '=' in SET item")
	}
}

func (p *Parser) parseRemove() (ast.Clause, error) {
	p.next() // consume REMOVE
	var items []ast.RemoveItem
	for {
		name, err := p.expect(TokenIdent, "variable")
		if err != nil {
			return nil, err
		}
		target := ast.Expression(&ast.Identifier{Name: name.Literal})
		if p.cur.Type == TokenDot {
			p.next()
			prop, err := p.expect(TokenIdent, "property")
			if err != nil {
				return nil, err
			}
			items = append(items, ast.RemoveItem{Target: target, Property: prop.Literal})
		} else if p.cur.Type == TokenColon {
			var labels []string
			for p.cur.Type == TokenColon {
				p.next()
				l, err := p.expect(TokenIdent, "label")
				if err != nil {
					return nil, err
				}
				labels = append(labels, l.Literal)
			}
			items = append(items, ast.RemoveItem{Target: target, Labels: labels})
		} else {
			return nil, p.errf("expected '.' or ':' in REMOVE item")
		}
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	return &ast.RemoveClause{Items: items}, nil
}

func (p *Parser) parseDelete(detach bool) (ast.Clause, error) {
	p.next() // consume DELETE
	var exprs []ast.Expression
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	return &ast.DeleteClause{Detach: detach, Exprs: exprs}, nil
}

func (p *Parser) parseUnwind() (ast.Clause, error) {
	p.next() // consume UNWIND
	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAs, "AS"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdent, "variable")
	if err != nil {
		return nil, err
	}
	return &ast.UnwindClause{Expr: e, As: name.Literal}, nil
}

func (p *Parser) parseCall() (ast.Clause, error) {
	p.next() // consume CALL
	name, err := p.expect(TokenIdent, "procedure name")
	if err != nil {
		return nil, err
	}
	proc := name.Literal
	for p.cur.Type == TokenDot {
		p.next()
		part, err := p.expect(TokenIdent, "procedure name segment")
		if err != nil {
			return nil, err
		}
		proc += "." + part.Literal
	}
	clause := &ast.CallClause{Procedure: proc}
	if p.cur.Type == TokenLParen {
		p.next()
		for p.cur.Type != TokenRParen {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			clause.Args = append(clause.Args, arg)
			if p.cur.Type == TokenComma {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
	}
	if p.cur.Type == TokenYield {
		p.next()
		for {
			y, err := p.expect(TokenIdent, "yield item")
			if err != nil {
				return nil, err
			}
			clause.Yield = append(clause.Yield, y.Literal)
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
	}
	return clause, nil
}

func (p *Parser) parseReturn() (ast.Clause, error) {
	p.next() // consume RETURN
	distinct := false
	if p.cur.Type == TokenDistinct {
		distinct = true
		p.next()
	}
	clause := &ast.ReturnClause{Distinct: distinct}
	if p.cur.Type == TokenStar {
		clause.Star = true
		p.next()
	} else {
		items, err := p.parseReturnItems()
		if err != nil {
			return nil, err
		}
		clause.Items = items
	}
	if err := p.parseOrderSkipLimit(&clause.OrderBy, &clause.Skip, &clause.Limit); err != nil {
		return nil, err
	}
	return clause, nil
}

func (p *Parser) parseWith() (ast.Clause, error) {
	p.next() // consume WITH
	distinct := false
	if p.cur.Type == TokenDistinct {
		distinct = true
		p.next()
	}
	clause := &ast.WithClause{Distinct: distinct}
	if p.cur.Type == TokenStar {
		clause.Star = true
		p.next()
	} else {
		items, err := p.parseReturnItems()
		if err != nil {
			return nil, err
		}
		clause.Items = items
	}
	if p.cur.Type == TokenWhere {
		p.next()
		where, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		clause.Where = where
	}
	if err := p.parseOrderSkipLimit(&clause.OrderBy, &clause.Skip, &clause.Limit); err != nil {
		return nil, err
	}
	return clause, nil
}

func (p *Parser) parseOrderSkipLimit(order *[]ast.OrderItem, skip, limit *ast.Expression) error {
	if p.cur.Type == TokenOrder {
		p.next()
		if _, err := p.expect(TokenBy, "BY"); err != nil {
			return err
		}
		for {
			e, err := p.parseExpression()
			if err != nil {
				return err
			}
			desc := false
			if p.cur.Type == TokenAsc {
				p.next()
			} else if p.cur.Type == TokenDesc {
				desc = true
				p.next()
			}
			*order = append(*order, ast.OrderItem{Expr: e, Descending: desc})
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
	}
	if p.cur.Type == TokenSkip {
		p.next()
		e, err := p.parseExpression()
		if err != nil {
			return err
		}
		*skip = e
	}
	if p.cur.Type == TokenLimit {
		p.next()
		e, err := p.parseExpression()
		if err != nil {
			return err
		}
		*limit = e
	}
	return nil
}

func (p *Parser) parseReturnItems() ([]ast.ReturnItem, error) {
	var items []ast.ReturnItem
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.cur.Type == TokenAs {
			p.next()
			name, err := p.expect(TokenIdent, "alias")
			if err != nil {
				return nil, err
			}
			alias = name.Literal
		}
		items = append(items, ast.ReturnItem{Expr: e, Alias: alias})
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	return items, nil
}

// ---- Patterns ----

func (p *Parser) parsePatternList() ([]ast.PatternPart, error) {
	var parts []ast.PatternPart
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	return parts, nil
}

func (p *Parser) parsePatternPart() (ast.PatternPart, error) {
	var pathVar string
	if p.cur.Type == TokenIdent && p.peek.Type == TokenEQ {
		pathVar = p.cur.Literal
		p.next()
		p.next()
	}

	var elements []ast.PatternElement
	node, err := p.parseNodePattern()
	if err != nil {
		return ast.PatternPart{}, err
	}
	elements = append(elements, ast.PatternElement{Node: node})

	for p.cur.Type == TokenDash || p.cur.Type == TokenArrowLeft {
		rel, err := p.parseRelPattern()
		if err != nil {
			return ast.PatternPart{}, err
		}
		elements = append(elements, ast.PatternElement{Rel: rel})
		next, err := p.parseNodePattern()
		if err != nil {
			return ast.PatternPart{}, err
		}
		elements = append(elements, ast.PatternElement{Node: next})
	}

	return ast.PatternPart{PathVariable: pathVar, Elements: elements}, nil
}

func (p *Parser) parseNodePattern() (*ast.NodePattern, error) {
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	node := &ast.NodePattern{}
	if p.cur.Type == TokenIdent {
		node.Variable = p.cur.Literal
		p.next()
	}
	for p.cur.Type == TokenColon {
		p.next()
		l, err := p.expect(TokenIdent, "label")
		if err != nil {
			return nil, err
		}
		node.Labels = append(node.Labels, l.Literal)
	}
	if p.cur.Type == TokenLBrace {
		props, err := p.parseMapBody()
		if err != nil {
			return nil, err
		}
		node.Props = props
	}
	if _, err := p.expect(TokenRParen, ")"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseRelPattern() (*ast.RelPattern, error) {
	rel := &ast.RelPattern{Dir: graph.DirBoth}

	leftArrow := false
	if p.cur.Type == TokenArrowLeft {
		leftArrow = true
		p.next()
	} else {
		if _, err := p.expect(TokenDash, "-"); err != nil {
			return nil, err
		}
	}

	if p.cur.Type == TokenLBracket {
		p.next()
		if p.cur.Type == TokenIdent {
			rel.Variable = p.cur.Literal
			p.next()
		}
		for p.cur.Type == TokenColon {
			p.next()
			t, err := p.expect(TokenIdent, "relationship type")
			if err != nil {
				return nil, err
			}
			rel.Types = append(rel.Types, t.Literal)
			for p.cur.Type == TokenPipe {
				p.next()
				t2, err := p.expect(TokenIdent, "relationship type")
				if err != nil {
					return nil, err
				}
				rel.Types = append(rel.Types, t2.Literal)
			}
		}
		if p.cur.Type == TokenStar {
			p.next()
			if err := p.parseVariableLengthBounds(rel); err != nil {
				return nil, err
			}
		}
		if p.cur.Type == TokenLBrace {
			props, err := p.parseMapBody()
			if err != nil {
				return nil, err
			}
			rel.Props = props
		}
		if _, err := p.expect(TokenRBracket, "]"); err != nil {
			return nil, err
		}
	}

	rightArrow := false
	if p.cur.Type == TokenArrowRight {
		rightArrow = true
		p.next()
	} else {
		if _, err := p.expect(TokenDash, "-"); err != nil {
			return nil, err
		}
	}

	switch {
	case leftArrow && !rightArrow:
		rel.Dir = graph.DirIn
	case rightArrow && !leftArrow:
		rel.Dir = graph.DirOut
	default:
		rel.Dir = graph.DirBoth
	}
	return rel, nil
}

func (p *Parser) parseVariableLengthBounds(rel *ast.RelPattern) error {
	if p.cur.Type == TokenInt {
		n, err := strconv.Atoi(p.cur.Literal)
		if err != nil {
			return p.errf("invalid hop count %q", p.cur.Literal)
		}
		p.next()
		if p.cur.Type == TokenDotDot {
			p.next()
			rel.MinHops = &n
			if p.cur.Type == TokenInt {
				m, err := strconv.Atoi(p.cur.Literal)
				if err != nil {
					return p.errf("invalid hop count %q", p.cur.Literal)
				}
				p.next()
				rel.MaxHops = &m
			}
		} else {
			rel.MinHops = &n
			rel.MaxHops = &n
		}
		return nil
	}
	one := 1
	rel.MinHops = &one
	return nil
}

func (p *Parser) parseMapBody() (map[string]ast.Expression, error) {
	if _, err := p.expect(TokenLBrace, "{"); err != nil {
		return nil, err
	}
	m := make(map[string]ast.Expression)
	for p.cur.Type != TokenRBrace {
		key, err := p.expect(TokenIdent, "property key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon, ":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		m[key.Literal] = val
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBrace, "}"); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- Expressions (precedence-climbing recursive descent) ----

func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expression, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenOr {
		p.next()
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: "OR", Right: right}
	}
	return left, nil
}

func (p *Parser) parseXor() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenXor {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: "XOR", Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: "AND", Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expression, error) {
	if p.cur.Type == TokenNot {
		p.next()
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "NOT", Expr: e}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[TokenType]string{
	TokenEQ: "=", TokenNE: "<>", TokenLT: "<", TokenLE: "<=",
	TokenGT: ">", TokenGE: ">=",
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseStringOp()
	if err != nil {
		return nil, err
	}
	for {
		if op, ok := comparisonOps[p.cur.Type]; ok {
			p.next()
			right, err := p.parseStringOp()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseStringOp() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Type {
		case TokenStartsWith:
			p.next()
			if _, err := p.expect(TokenWith, "WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Left: left, Op: "STARTS WITH", Right: right}
		case TokenEndsWith:
			p.next()
			if _, err := p.expect(TokenWith, "WITH"); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Left: left, Op: "ENDS WITH", Right: right}
		case TokenContains:
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Left: left, Op: "CONTAINS", Right: right}
		case TokenIn:
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Left: left, Op: "IN", Right: right}
		case TokenIs:
			p.next()
			not := false
			if p.cur.Type == TokenNot {
				not = true
				p.next()
			}
			if _, err := p.expect(TokenNull, "NULL"); err != nil {
				return nil, err
			}
			left = &ast.IsNullExpr{Expr: left, Not: not}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenPlus || p.cur.Type == TokenDash {
		op := "+"
		if p.cur.Type == TokenDash {
			op = "-"
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash || p.cur.Type == TokenPercent {
		op := map[TokenType]string{TokenStar: "*", TokenSlash: "/", TokenPercent: "%"}[p.cur.Type]
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.cur.Type == TokenDash {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "-", Expr: e}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expression, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokenDot {
		p.next()
		prop, err := p.expect(TokenIdent, "property")
		if err != nil {
			return nil, err
		}
		e = &ast.PropertyLookup{Base: e, Key: prop.Literal}
	}
	return e, nil
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	switch p.cur.Type {
	case TokenInt:
		n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer %q", p.cur.Literal)
		}
		p.next()
		return &ast.Literal{Value: graph.Int(n)}, nil
	case TokenFloat:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.errf("invalid float %q", p.cur.Literal)
		}
		p.next()
		return &ast.Literal{Value: graph.Double(f)}, nil
	case TokenString:
		s := p.cur.Literal
		p.next()
		return &ast.Literal{Value: graph.Str(s)}, nil
	case TokenTrue:
		p.next()
		return &ast.Literal{Value: graph.Bool(true)}, nil
	case TokenFalse:
		p.next()
		return &ast.Literal{Value: graph.Bool(false)}, nil
	case TokenNull:
		p.next()
		return &ast.Literal{Value: graph.Null}, nil
	case TokenParam:
		name := p.cur.Literal
		p.next()
		return &ast.Parameter{Name: name}, nil
	case TokenLParen:
		p.next()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case TokenLBracket:
		return p.parseListLiteralOrComprehension()
	case TokenLBrace:
		entries, order, err := p.parseMapBodyOrdered()
		if err != nil {
			return nil, err
		}
		return &ast.MapLiteral{Entries: entries, Order: order}, nil
	case TokenCase:
		return p.parseCaseExpr()
	case TokenIdent:
		name := p.cur.Literal
		if p.peek.Type == TokenLParen {
			p.next()
			return p.parseFunctionCall(name)
		}
		p.next()
		return &ast.Identifier{Name: name}, nil
	default:
		return nil, p.errf("unexpected token %q in expression", p.cur.Literal)
	}
}

func (p *Parser) parseFunctionCall(name string) (ast.Expression, error) {
	if _, err := p.expect(TokenLParen, "("); err != nil {
		return nil, err
	}
	call := &ast.FunctionCall{Name: name}
	if p.cur.Type == TokenDistinct {
		call.Distinct = true
		p.next()
	}
	if p.cur.Type == TokenStar {
		call.Star = true
		p.next()
	} else {
		for p.cur.Type != TokenRParen {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.cur.Type == TokenComma {
				p.next()
				continue
			}
			break
		}
	}
	if _, err := p.expect(TokenRParen, ")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parseListLiteralOrComprehension() (ast.Expression, error) {
	p.next() // consume [
	// Comprehension: [x IN list WHERE cond | expr]
	if p.cur.Type == TokenIdent && p.peek.Type == TokenIn {
		variable := p.cur.Literal
		p.next()
		p.next() // consume IN
		list, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		lc := &ast.ListComprehension{Variable: variable, List: list}
		if p.cur.Type == TokenWhere {
			p.next()
			cond, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			lc.Filter = cond
		}
		if p.cur.Type == TokenPipe {
			p.next()
			proj, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			lc.Project = proj
		}
		if _, err := p.expect(TokenRBracket, "]"); err != nil {
			return nil, err
		}
		return lc, nil
	}

	list := &ast.ListLiteral{}
	for p.cur.Type != TokenRBracket {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, e)
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBracket, "]"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseMapBodyOrdered() (map[string]ast.Expression, []string, error) {
	if _, err := p.expect(TokenLBrace, "{"); err != nil {
		return nil, nil, err
	}
	m := make(map[string]ast.Expression)
	var order []string
	for p.cur.Type != TokenRBrace {
		key, err := p.expect(TokenIdent, "property key")
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenColon, ":"); err != nil {
			return nil, nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, nil, err
		}
		m[key.Literal] = val
		order = append(order, key.Literal)
		if p.cur.Type == TokenComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBrace, "}"); err != nil {
		return nil, nil, err
	}
	return m, order, nil
}

func (p *Parser) parseCaseExpr() (ast.Expression, error) {
	p.next() // consume CASE
	ce := &ast.CaseExpr{}
	if p.cur.Type != TokenWhen {
		test, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ce.Test = test
	}
	for p.cur.Type == TokenWhen {
		p.next()
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenThen, "THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, ast.CaseWhen{Cond: cond, Result: result})
	}
	if p.cur.Type == TokenElse {
		p.next()
		def, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		ce.Default = def
	}
	if _, err := p.expect(TokenEnd, "END"); err != nil {
		return nil, err
	}
	return ce, nil
}
