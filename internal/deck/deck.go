package deck

// Size is the number of cards in a standard deck
const Size = 52

// All returns a full 52-card deck in canonical order: clubs through spades,
// deuce through ace within each suit. Index i is the card at position i of
// the unshuffled deck; the commit-reveal shuffle permutes this ordering.
func All() []Card {
	cards := make([]Card, 0, Size)
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards = append(cards, NewCard(rank, suit))
		}
	}
	return cards
}

// Index returns the canonical position of a card in an unshuffled deck
func Index(c Card) int {
	return int(c.Suit)*13 + int(c.Rank-Two)
}
