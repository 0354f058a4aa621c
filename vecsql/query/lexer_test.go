package query

import (
	"testing"
)

func TestLexSelectFrom(t *testing.T) {
	tokens, err := Lex("SELECT id FROM docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Tokens: SELECT, ID, FROM, Ident("docs"), EOF
	if len(tokens) != 5 {
		t.Fatalf("expected 5 tokens (including EOF), got %d: %v", len(tokens), tokens)
	}
	if tokens[0].Kind != TokSelect {
		t.Errorf("expected SELECT, got %v", tokens[0])
	}
	if tokens[1].Kind != TokID {
		t.Errorf("expected ID, got %v", tokens[1])
	}
	if tokens[2].Kind != TokFrom {
		t.Errorf("expected FROM, got %v", tokens[2])
	}
	if tokens[3].Kind != TokIdent || tokens[3].Text != "docs" {
		t.Errorf("expected Ident(docs), got %v", tokens[3])
	}
	if tokens[4].Kind != TokEOF {
		t.Errorf("expected EOF, got %v", tokens[4])
	}
}

func TestLexKeywordsCaseInsensitive(t *testing.T) {
	tokens, err := Lex("select * from docs where order by")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []TokenKind{TokSelect, TokStar, TokFrom, TokIdent, TokWhere, TokOrder, TokBy, TokEOF}
	for i, want := range expected {
		if tokens[i].Kind != want {
			t.Errorf("token %d: expected %v, got %v", i, want, tokens[i].Kind)
		}
	}
}

func TestLexString(t *testing.T) {
	tokens, err := Lex("name = 'hello world'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[2].Kind != TokString || tokens[2].Text != "hello world" {
		t.Errorf("expected String(hello world), got %v", tokens[2])
	}
}

func TestLexStringDoubledQuote(t *testing.T) {
	tokens, err := Lex("name = 'it''s'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[2].Kind != TokString || tokens[2].Text != "it's" {
		t.Errorf("expected String(it's), got %v", tokens[2])
	}
}

func TestLexUnterminatedString(t *testing.T) {
	if _, err := Lex("name = 'oops"); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestLexNumbers(t *testing.T) {
	tests := []struct {
		input string
		num   float64
	}{
		{"3.14", 3.14},
		{"42", 42},
		{"-7", -7},
		{"-0.5", -0.5},
	}
	for _, tt := range tests {
		tokens, err := Lex(tt.input)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.input, err)
		}
		if tokens[0].Kind != TokNumber || tokens[0].Num != tt.num {
			t.Errorf("for %s: expected Number(%v), got %v", tt.input, tt.num, tokens[0])
		}
	}
}

func TestLexComparisons(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenKind
	}{
		{"a = 5", TokEq},
		{"a != 5", TokNe},
		{"a > 5", TokGt},
		{"a >= 5", TokGte},
		{"a < 5", TokLt},
		{"a <= 5", TokLte},
	}
	for _, tt := range tests {
		tokens, err := Lex(tt.input)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.input, err)
		}
		if tokens[1].Kind != tt.expected {
			t.Errorf("for %s: expected %v, got %v", tt.input, tt.expected, tokens[1].Kind)
		}
	}
}

func TestLexBareExclamation(t *testing.T) {
	if _, err := Lex("a ! b"); err == nil {
		t.Fatal("expected error for bare '!'")
	}
}

func TestLexVectorLiteral(t *testing.T) {
	tokens, err := Lex("[0.1, 0.2, -0.3]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []TokenKind{TokLBracket, TokNumber, TokComma, TokNumber, TokComma, TokNumber, TokRBracket, TokEOF}
	for i, want := range expected {
		if tokens[i].Kind != want {
			t.Errorf("token %d: expected %v, got %v", i, want, tokens[i].Kind)
		}
	}
}

func TestLexParam(t *testing.T) {
	tokens, err := Lex("MATCH $embedding WITHIN 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[0].Kind != TokMatch {
		t.Errorf("expected MATCH, got %v", tokens[0])
	}
	if tokens[1].Kind != TokParam || tokens[1].Text != "embedding" {
		t.Errorf("expected Param(embedding), got %v", tokens[1])
	}
	if tokens[2].Kind != TokWithin {
		t.Errorf("expected WITHIN, got %v", tokens[2])
	}
}

func TestLexBareDollar(t *testing.T) {
	if _, err := Lex("MATCH $ WITHIN 10"); err == nil {
		t.Fatal("expected error for '$' without a name")
	}
}

func TestLexBooleans(t *testing.T) {
	tokens, err := Lex("archived = TRUE AND draft = false")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[2].Kind != TokTrue {
		t.Errorf("expected TRUE, got %v", tokens[2])
	}
	if tokens[6].Kind != TokFalse {
		t.Errorf("expected FALSE, got %v", tokens[6])
	}
}

func TestLexPositions(t *testing.T) {
	tokens, err := Lex("SELECT id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[0].Pos != 0 {
		t.Errorf("expected SELECT at 0, got %d", tokens[0].Pos)
	}
	if tokens[1].Pos != 7 {
		t.Errorf("expected id at 7, got %d", tokens[1].Pos)
	}

	// Positions count runes, not bytes: 'é' advances by one.
	tokens, err = Lex("'é' id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens[1].Pos != 4 {
		t.Errorf("expected id at rune offset 4, got %d", tokens[1].Pos)
	}
}

func TestIsReservedWord(t *testing.T) {
	if !IsReservedWord("id") || !IsReservedWord("Similarity") || !IsReservedWord("MATCH") {
		t.Error("keywords must be reserved regardless of case")
	}
	if IsReservedWord("category") {
		t.Error("plain identifiers are not reserved")
	}
}

func TestLexUnexpectedCharacter(t *testing.T) {
	if _, err := Lex("a # b"); err == nil {
		t.Fatal("expected error for '#'")
	}
}
