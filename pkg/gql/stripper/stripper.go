// Package stripper implements the first stage of the query pipeline:
// replacing literal tokens in a raw Cypher query with synthesized
// placeholders so structurally identical queries that differ only in
// literal values share one cache entry and one compiled plan.
package stripper

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/jsoref/memgraph/pkg/gql/parser"
	"github.com/jsoref/memgraph/pkg/graph"
)

// Result is the output of stripping one query: canonical text keyed by
// a stable hash, the literal values the placeholders stand for, the
// set of user-supplied parameter names referenced, and enough source
// position information to recover unaliased projection names for
// result headers.
type Result struct {
	Text       string
	Hash       uint64
	Literals   map[string]graph.Value
	Parameters map[string]struct{}
	// Named maps a RETURN/WITH projection's starting source offset to
	// its original source text, for items with no explicit AS alias.
	Named map[int]string
}

// clauseEnders are the tokens that end a RETURN/WITH projection list.
var clauseEnders = map[parser.TokenType]bool{
	parser.TokenWhere:     true,
	parser.TokenOrder:     true,
	parser.TokenSkip:      true,
	parser.TokenLimit:     true,
	parser.TokenMatch:     true,
	parser.TokenOptional:  true,
	parser.TokenCreate:    true,
	parser.TokenMerge:     true,
	parser.TokenSet:       true,
	parser.TokenRemove:    true,
	parser.TokenDelete:    true,
	parser.TokenDetach:    true,
	parser.TokenWith:      true,
	parser.TokenUnwind:    true,
	parser.TokenCall:      true,
	parser.TokenEOF:       true,
	parser.TokenSemicolon: true,
}

var literalKinds = map[parser.TokenType]bool{
	parser.TokenInt:    true,
	parser.TokenFloat:  true,
	parser.TokenString: true,
	parser.TokenTrue:   true,
	parser.TokenFalse:  true,
	parser.TokenNull:   true,
}

// Strip lexes input and produces a Result. It never fails on its own;
// malformed queries surface a SyntaxError from the parser stage that
// runs on the stripped text.
func Strip(input string) *Result {
	l := parser.NewLexer(input)

	var toks []parser.Token
	for {
		t := l.NextToken()
		toks = append(toks, t)
		if t.Type == parser.TokenEOF {
			break
		}
	}

	res := &Result{
		Literals:   make(map[string]graph.Value),
		Parameters: make(map[string]struct{}),
		Named:      make(map[int]string),
	}

	var out strings.Builder
	litCount := 0
	inProjection := false
	depth := 0
	projStart := -1
	aliased := false

	for i, t := range toks {
		if i > 0 {
			out.WriteByte(' ')
		}

		switch {
		case t.Type == parser.TokenReturn || t.Type == parser.TokenWith:
			if inProjection && projStart != -1 && !aliased {
				recordNamed(res, toks, projStart, i, input)
			}
			out.WriteString(t.Literal)
			inProjection = true
			depth = 0
			projStart = -1
			aliased = false
			continue
		case inProjection && clauseEnders[t.Type] && depth == 0:
			if projStart != -1 && !aliased {
				recordNamed(res, toks, projStart, i, input)
			}
			projStart = -1
			aliased = false
			inProjection = false
		}

		if inProjection {
			switch t.Type {
			case parser.TokenLParen, parser.TokenLBracket, parser.TokenLBrace:
				depth++
			case parser.TokenRParen, parser.TokenRBracket, parser.TokenRBrace:
				depth--
			case parser.TokenStar, parser.TokenDistinct:
				out.WriteString(t.Literal)
				continue
			}
			if depth == 0 {
				if projStart == -1 && !aliased && t.Type != parser.TokenComma {
					projStart = i
				}
				if t.Type == parser.TokenAs {
					aliased = true
				}
				if t.Type == parser.TokenComma || clauseEnders[t.Type] {
					if projStart != -1 && !aliased {
						recordNamed(res, toks, projStart, i, input)
					}
					projStart = -1
					aliased = false
				}
			}
		}

		if literalKinds[t.Type] {
			val, ok := literalValue(t)
			if ok {
				name := "$L" + strconv.Itoa(litCount)
				litCount++
				res.Literals[name] = val
				out.WriteString(name)
				continue
			}
		}
		if t.Type == parser.TokenParam {
			res.Parameters[t.Literal] = struct{}{}
			out.WriteString("$" + t.Literal)
			continue
		}
		out.WriteString(t.Literal)
	}

	// flush a trailing projection with no explicit ender token (RETURN at EOF)
	if inProjection && projStart != -1 && !aliased {
		recordNamed(res, toks, projStart, len(toks)-1, input)
	}

	res.Text = out.String()
	h := fnv.New64a()
	h.Write([]byte(res.Text))
	res.Hash = h.Sum64()
	return res
}

func recordNamed(res *Result, toks []parser.Token, start, end int, input string) {
	if start >= end || start < 0 {
		return
	}
	from := toks[start].Pos
	to := toks[end].Pos
	res.Named[from] = strings.TrimSpace(input[from:to])
}

func literalValue(t parser.Token) (graph.Value, bool) {
	switch t.Type {
	case parser.TokenInt:
		n, err := strconv.ParseInt(t.Literal, 10, 64)
		if err != nil {
			return graph.Value{}, false
		}
		return graph.Int(n), true
	case parser.TokenFloat:
		f, err := strconv.ParseFloat(t.Literal, 64)
		if err != nil {
			return graph.Value{}, false
		}
		return graph.Double(f), true
	case parser.TokenString:
		return graph.Str(t.Literal), true
	case parser.TokenTrue:
		return graph.Bool(true), true
	case parser.TokenFalse:
		return graph.Bool(false), true
	case parser.TokenNull:
		return graph.Null, true
	default:
		return graph.Value{}, false
	}
}
