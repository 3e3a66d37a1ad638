package deck

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

const suitChars = "cdhs"

// String returns the single-character suit code used in event payloads
func (s Suit) String() string {
	if s < Clubs || s > Spades {
		return "?"
	}
	return string(suitChars[s])
}

// Rank represents a card rank. Aces are high (14).
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

const rankChars = "23456789TJQKA"

// String returns the single-character rank code
func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	return string(rankChars[r-Two])
}

// Card represents a playing card
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String renders the card in compact two-character notation, e.g. "As" or "Td".
// This is the canonical representation used in the event log.
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// Parse parses a two-character card string like "Ah" or "Td"
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card string %q", s)
	}

	var rank Rank
	found := false
	for i := 0; i < len(rankChars); i++ {
		if rankChars[i] == s[0] {
			rank = Rank(i) + Two
			found = true
			break
		}
	}
	if !found {
		return Card{}, fmt.Errorf("invalid rank %q", s[0])
	}

	var suit Suit
	found = false
	for i := 0; i < len(suitChars); i++ {
		if suitChars[i] == s[1] {
			suit = Suit(i)
			found = true
			break
		}
	}
	if !found {
		return Card{}, fmt.Errorf("invalid suit %q", s[1])
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// MustParse parses a card string and panics on error. Test helper.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseMany parses a concatenated card string like "AhKhQhJhTh"
func ParseMany(s string) ([]Card, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("invalid cards string %q", s)
	}
	cards := make([]Card, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		c, err := Parse(s[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Strings renders a card slice into its compact string forms
func Strings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
