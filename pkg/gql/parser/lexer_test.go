package parser

import "testing"

// TestLexer verifies the tokenizer produces the expected token stream.
func TestLexer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{
			name:     "simple match return",
			input:    "MATCH (n:Person) RETURN n",
			expected: []TokenType{TokenMatch, TokenLParen, TokenIdent, TokenColon, TokenIdent, TokenRParen, TokenReturn, TokenIdent, TokenEOF},
		},
		{
			name:     "relationship pattern",
			input:    "(a)-[r:KNOWS]->(b)",
			expected: []TokenType{TokenLParen, TokenIdent, TokenRParen, TokenDash, TokenLBracket, TokenIdent, TokenColon, TokenIdent, TokenRBracket, TokenArrowRight, TokenLParen, TokenIdent, TokenRParen, TokenEOF},
		},
		{
			name:     "left pointing relationship",
			input:    "(a)<-[:KNOWS]-(b)",
			expected: []TokenType{TokenLParen, TokenIdent, TokenRParen, TokenArrowLeft, TokenLBracket, TokenColon, TokenIdent, TokenRBracket, TokenDash, TokenLParen, TokenIdent, TokenRParen, TokenEOF},
		},
		{
			name:     "parameter and comparison",
			input:    "WHERE n.age >= $minAge",
			expected: []TokenType{TokenWhere, TokenIdent, TokenDot, TokenIdent, TokenGE, TokenParam, TokenEOF},
		},
		{
			name:     "variable length range",
			input:    "[*1..3]",
			expected: []TokenType{TokenLBracket, TokenStar, TokenInt, TokenDotDot, TokenInt, TokenRBracket, TokenEOF},
		},
		{
			name:     "float literal",
			input:    "1.5e10",
			expected: []TokenType{TokenFloat, TokenEOF},
		},
		{
			name:     "starts with keyword pair",
			input:    "n.name STARTS WITH 'A'",
			expected: []TokenType{TokenIdent, TokenDot, TokenIdent, TokenStartsWith, TokenWith, TokenString, TokenEOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)
			for i, want := range tt.expected {
				tok := l.NextToken()
				if tok.Type != want {
					t.Fatalf("token %d: got %v (%q), want %v", i, tok.Type, tok.Literal, want)
				}
			}
		})
	}
}

func TestLexerLineComment(t *testing.T) {
	l := NewLexer("MATCH (n) // trailing comment\nRETURN n")
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF {
			break
		}
	}
	want := []TokenType{TokenMatch, TokenLParen, TokenIdent, TokenRParen, TokenReturn, TokenIdent, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, types[i], want[i])
		}
	}
}
