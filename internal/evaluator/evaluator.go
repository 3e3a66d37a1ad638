// Package evaluator ranks 7-card poker hands into a total order.
//
// A Rank is a packed uint32 where higher values denote strictly stronger
// hands: the category occupies the top bits and up to five tie-break card
// ranks occupy a nibble each below it. Two hands comparing equal is a valid
// result and means a split pot. Evaluation is pure and side-effect free.
package evaluator

import (
	"fmt"
	"sort"

	"github.com/feltworks/holdem/internal/deck"
)

// Category enumerates hand categories from weakest to strongest
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns a human-readable category name
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// Rank is a total-ordered hand strength. Higher is stronger.
type Rank uint32

// Category extracts the hand category from a rank
func (r Rank) Category() Category {
	return Category(r >> 20)
}

// String describes the rank, e.g. "Full House" or "Royal Flush"
func (r Rank) String() string {
	if r.Category() == StraightFlush && (r>>16)&0xf == Rank(deck.Ace) {
		return "Royal Flush"
	}
	return r.Category().String()
}

// Evaluate ranks two hole cards against a complete 5-card board. Settlement
// only ever evaluates complete boards; partial boards are rejected.
func Evaluate(hole [2]deck.Card, board []deck.Card) (Rank, error) {
	if len(board) != 5 {
		return 0, fmt.Errorf("evaluation requires 5 board cards, got %d", len(board))
	}
	cards := make([]deck.Card, 0, 7)
	cards = append(cards, hole[0], hole[1])
	cards = append(cards, board...)
	return Evaluate7(cards), nil
}

// Evaluate7 returns the rank of the best 5-card hand among 7 cards
func Evaluate7(cards []deck.Card) Rank {
	if len(cards) != 7 {
		panic(fmt.Sprintf("Evaluate7 requires 7 cards, got %d", len(cards)))
	}

	var best Rank
	var hand [5]deck.Card
	// All C(7,5)=21 subsets, expressed as the two excluded indices
	for skip1 := 0; skip1 < 7; skip1++ {
		for skip2 := skip1 + 1; skip2 < 7; skip2++ {
			n := 0
			for i, c := range cards {
				if i == skip1 || i == skip2 {
					continue
				}
				hand[n] = c
				n++
			}
			if r := evaluate5(hand); r > best {
				best = r
			}
		}
	}
	return best
}

func pack(cat Category, tiebreaks ...deck.Rank) Rank {
	r := Rank(cat) << 20
	shift := uint(16)
	for _, t := range tiebreaks {
		r |= Rank(t) << shift
		shift -= 4
	}
	return r
}

func evaluate5(cards [5]deck.Card) Rank {
	var counts [15]int // indexed by rank value 2..14
	flush := true
	for i, c := range cards {
		counts[c.Rank]++
		if i > 0 && c.Suit != cards[0].Suit {
			flush = false
		}
	}

	// ranksDesc holds distinct ranks ordered by count then rank, both
	// descending, so the strongest group leads the tie-break sequence.
	ranksDesc := make([]deck.Rank, 0, 5)
	for r := deck.Ace; r >= deck.Two; r-- {
		if counts[r] > 0 {
			ranksDesc = append(ranksDesc, r)
		}
	}
	sort.SliceStable(ranksDesc, func(i, j int) bool {
		return counts[ranksDesc[i]] > counts[ranksDesc[j]]
	})

	straightHigh := straightHighCard(counts)

	switch {
	case flush && straightHigh != 0:
		return pack(StraightFlush, straightHigh)
	case counts[ranksDesc[0]] == 4:
		return pack(FourOfAKind, ranksDesc[0], ranksDesc[1])
	case counts[ranksDesc[0]] == 3 && counts[ranksDesc[1]] == 2:
		return pack(FullHouse, ranksDesc[0], ranksDesc[1])
	case flush:
		return pack(Flush, ranksDesc...)
	case straightHigh != 0:
		return pack(Straight, straightHigh)
	case counts[ranksDesc[0]] == 3:
		return pack(ThreeOfAKind, ranksDesc...)
	case counts[ranksDesc[0]] == 2 && counts[ranksDesc[1]] == 2:
		return pack(TwoPair, ranksDesc...)
	case counts[ranksDesc[0]] == 2:
		return pack(Pair, ranksDesc...)
	default:
		return pack(HighCard, ranksDesc...)
	}
}

// straightHighCard returns the high card of a 5-card straight, or 0 if the
// cards do not form one. The wheel (A-2-3-4-5) counts with a high card of 5.
func straightHighCard(counts [15]int) deck.Rank {
	run := 0
	for r := deck.Two; r <= deck.Ace; r++ {
		if counts[r] == 0 {
			run = 0
			continue
		}
		if counts[r] > 1 {
			return 0 // paired hands cannot be straights in a 5-card set
		}
		run++
		if run == 5 {
			return r
		}
	}
	// Wheel: ace plays low
	if counts[deck.Ace] == 1 && counts[deck.Two] == 1 && counts[deck.Three] == 1 &&
		counts[deck.Four] == 1 && counts[deck.Five] == 1 {
		return deck.Five
	}
	return 0
}
