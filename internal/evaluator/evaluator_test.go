package evaluator

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feltworks/holdem/internal/deck"
)

func cards7(t *testing.T, s string) []deck.Card {
	t.Helper()
	cards, err := deck.ParseMany(s)
	require.NoError(t, err)
	require.Len(t, cards, 7)
	return cards
}

func TestEvaluate7Categories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cards string
		want  Category
	}{
		{"royal flush", "AhKhQhJhTh2c3d", StraightFlush},
		{"straight flush", "9h8h7h6h5hAcAd", StraightFlush},
		{"wheel straight flush", "Ah2h3h4h5hKcKd", StraightFlush},
		{"four of a kind", "AhAdAcAs3h4d5c", FourOfAKind},
		{"full house", "KhKdKc2s2h7d8c", FullHouse},
		{"flush", "Ah9h7h5h2hKcQd", Flush},
		{"straight", "9h8d7c6s5hAcAd", Straight},
		{"wheel straight", "Ah2d3c4s5h9cJd", Straight},
		{"three of a kind", "QhQdQc7s5h3d2c", ThreeOfAKind},
		{"two pair", "JhJd8c8s5h3d2c", TwoPair},
		{"pair", "ThTd8c6s5h3d2c", Pair},
		{"high card", "AhQd9c7s5h3d2c", HighCard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Evaluate7(cards7(t, tt.cards))
			assert.Equal(t, tt.want, got.Category())
		})
	}
}

func TestRankString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cards string
		want  string
	}{
		{"AhKhQhJhTh2c3d", "Royal Flush"},
		{"9h8h7h6h5hAcAd", "Straight Flush"},
		{"KhKdKc2s2h7d8c", "Full House"},
		{"AhQd9c7s5h3d2c", "High Card"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Evaluate7(cards7(t, tt.cards)).String())
	}
}

func TestEvaluate7Ordering(t *testing.T) {
	t.Parallel()

	// Ascending strength; every hand must rank strictly above its predecessor
	ladder := []string{
		"AhQd9c7s5h3d2c", // ace high
		"2h2d9c7sJhQd4c", // pair of twos
		"ThTd8c6s5h3d2c", // pair of tens
		"JhJd8c8s5h3d2c", // two pair
		"QhQdQc7s5h3d2c", // trips
		"Ah2d3c4s5h9cJd", // wheel
		"9h8d7c6s5hAcAd", // nine-high straight
		"2h4h7h9hJh8c8d", // flush
		"KhKdKc2s2h7d8c", // full house
		"AhAdAcAs3h4d5c", // quads
		"9h8h7h6h5hAcAd", // straight flush
		"AhKhQhJhTh2c3d", // royal
	}

	var prev Rank
	for i, s := range ladder {
		r := Evaluate7(cards7(t, s))
		if i > 0 {
			assert.Greater(t, r, prev, "hand %q should beat %q", s, ladder[i-1])
		}
		prev = r
	}
}

func TestEvaluate7Kickers(t *testing.T) {
	t.Parallel()

	// Same pair, better kicker wins
	better := Evaluate7(cards7(t, "ThTdAc6s5h3d2c"))
	worse := Evaluate7(cards7(t, "ThTdKc6s5h3d2c"))
	assert.Greater(t, better, worse)

	// Higher two pair beats lower two pair with bigger kicker
	hi := Evaluate7(cards7(t, "AhAd3c3s4h8d9c"))
	lo := Evaluate7(cards7(t, "KhKdQcQsAh8d9c"))
	assert.Greater(t, hi, lo)
}

func TestEvaluate7BoardPlays(t *testing.T) {
	t.Parallel()

	// Board is a royal flush; both hole card sets evaluate identically
	board := "AhKhQhJhTh"
	a := Evaluate7(cards7(t, board+"2c3d"))
	b := Evaluate7(cards7(t, board+"9s8s"))
	assert.Equal(t, a, b, "board plays for both hands, split pot")
}

func TestEvaluateRequiresFullBoard(t *testing.T) {
	t.Parallel()

	hole := [2]deck.Card{deck.MustParse("Ah"), deck.MustParse("Kh")}
	board, err := deck.ParseMany("2c3d4s")
	require.NoError(t, err)

	_, err = Evaluate(hole, board)
	assert.Error(t, err)

	full, err := deck.ParseMany("2c3d4s5h9d")
	require.NoError(t, err)
	r, err := Evaluate(hole, full)
	require.NoError(t, err)
	assert.Equal(t, Straight, r.Category())
}

func TestEvaluate7IsDeterministic(t *testing.T) {
	t.Parallel()

	cards := cards7(t, "AhKdQc7s5h3d2c")
	first := Evaluate7(cards)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate7(cards))
	}
}

// TestEvaluate7AgainstOracle cross-checks the packed-rank evaluator against
// an independent brute-force classifier over randomly drawn 7-card hands.
func TestEvaluate7AgainstOracle(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	all := deck.All()

	for trial := 0; trial < 5000; trial++ {
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		handA := append([]deck.Card(nil), all[:7]...)
		handB := append([]deck.Card(nil), all[7:14]...)

		got := compareRanks(Evaluate7(handA), Evaluate7(handB))
		want := compareOracle(oracle7(handA), oracle7(handB))
		require.Equal(t, want, got, "hands %v vs %v", handA, handB)
	}
}

func compareRanks(a, b Rank) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// oracleScore is an independently computed hand strength: category followed
// by tie-break ranks, compared lexicographically.
type oracleScore []int

func compareOracle(a, b oracleScore) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func oracle7(cards []deck.Card) oracleScore {
	var best oracleScore
	for skip1 := 0; skip1 < 7; skip1++ {
		for skip2 := skip1 + 1; skip2 < 7; skip2++ {
			var hand []deck.Card
			for i, c := range cards {
				if i != skip1 && i != skip2 {
					hand = append(hand, c)
				}
			}
			s := oracle5(hand)
			if best == nil || compareOracle(s, best) > 0 {
				best = s
			}
		}
	}
	return best
}

// oracle5 classifies a 5-card hand using a sorting-based approach that
// shares no code with the evaluator under test.
func oracle5(hand []deck.Card) oracleScore {
	vals := make([]int, 5)
	suits := make(map[deck.Suit]int)
	byRank := make(map[int]int)
	for i, c := range hand {
		vals[i] = int(c.Rank)
		suits[c.Suit]++
		byRank[int(c.Rank)]++
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vals)))

	isFlush := len(suits) == 1

	straightHigh := 0
	if len(byRank) == 5 {
		if vals[0]-vals[4] == 4 {
			straightHigh = vals[0]
		} else if vals[0] == 14 && vals[1] == 5 && vals[4] == 2 && vals[1]-vals[4] == 3 {
			straightHigh = 5
		}
	}

	// Pair structure: [(count, rank)] sorted by count desc then rank desc
	type group struct{ count, rank int }
	var groups []group
	for r, c := range byRank {
		groups = append(groups, group{c, r})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	tiebreaks := func() []int {
		out := make([]int, 0, 5)
		for _, g := range groups {
			out = append(out, g.rank)
		}
		return out
	}

	switch {
	case isFlush && straightHigh != 0:
		return append(oracleScore{8}, straightHigh)
	case groups[0].count == 4:
		return append(oracleScore{7}, tiebreaks()...)
	case groups[0].count == 3 && groups[1].count == 2:
		return append(oracleScore{6}, tiebreaks()...)
	case isFlush:
		return append(oracleScore{5}, vals...)
	case straightHigh != 0:
		return append(oracleScore{4}, straightHigh)
	case groups[0].count == 3:
		return append(oracleScore{3}, tiebreaks()...)
	case groups[0].count == 2 && groups[1].count == 2:
		return append(oracleScore{2}, tiebreaks()...)
	case groups[0].count == 2:
		return append(oracleScore{1}, tiebreaks()...)
	default:
		return append(oracleScore{0}, vals...)
	}
}

func BenchmarkEvaluate7(b *testing.B) {
	cards, _ := deck.ParseMany("AhKdQc7s5h3d2c")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Evaluate7(cards)
	}
}
