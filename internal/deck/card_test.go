package deck

import (
	"testing"
)

func TestCardString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card Card
		want string
	}{
		{NewCard(Ace, Spades), "As"},
		{NewCard(Ten, Diamonds), "Td"},
		{NewCard(Two, Clubs), "2c"},
		{NewCard(King, Hearts), "Kh"},
	}

	for _, tt := range tests {
		if got := tt.card.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range All() {
		parsed, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", c.String(), err)
		}
		if parsed != c {
			t.Errorf("Parse(%q) = %v, want %v", c.String(), parsed, c)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "A", "Ax", "1s", "Ahh", "aS"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should have failed", s)
		}
	}
}

func TestParseMany(t *testing.T) {
	t.Parallel()

	cards, err := ParseMany("AhKhQhJhTh")
	if err != nil {
		t.Fatalf("ParseMany error: %v", err)
	}
	if len(cards) != 5 {
		t.Fatalf("expected 5 cards, got %d", len(cards))
	}
	if cards[0] != NewCard(Ace, Hearts) || cards[4] != NewCard(Ten, Hearts) {
		t.Errorf("unexpected cards: %v", cards)
	}

	if _, err := ParseMany("AhK"); err == nil {
		t.Error("odd-length string should fail")
	}
}

func TestAllIsCompleteAndUnique(t *testing.T) {
	t.Parallel()

	cards := All()
	if len(cards) != Size {
		t.Fatalf("expected %d cards, got %d", Size, len(cards))
	}

	seen := make(map[Card]bool)
	for i, c := range cards {
		if seen[c] {
			t.Errorf("duplicate card %v", c)
		}
		seen[c] = true
		if Index(c) != i {
			t.Errorf("Index(%v) = %d, want %d", c, Index(c), i)
		}
	}
}
