package shuffle

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feltworks/holdem/internal/deck"
)

func testSeed(b byte) Seed {
	var s Seed
	for i := range s {
		s[i] = b
	}
	return s
}

func TestPermuteIsDeterministic(t *testing.T) {
	t.Parallel()

	seed := testSeed(7)
	first := Permute(seed)
	second := Permute(seed)
	assert.Equal(t, first, second, "same seed must yield the same permutation")

	other := Permute(testSeed(8))
	assert.NotEqual(t, first, other, "different seeds should differ")
}

func TestPermuteIsCompleteDeck(t *testing.T) {
	t.Parallel()

	cards := Permute(testSeed(42))
	require.Len(t, cards, deck.Size)

	seen := make(map[deck.Card]bool)
	for _, c := range cards {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
}

func TestDealerDealAndReveal(t *testing.T) {
	t.Parallel()

	d := NewDealerFromSeed(testSeed(1))
	commitment := d.Commitment()

	hole, err := d.Deal(2)
	require.NoError(t, err)
	flop, err := d.Deal(3)
	require.NoError(t, err)
	require.Len(t, hole, 2)
	require.Len(t, flop, 3)

	require.False(t, d.Revealed())
	seed := d.Reveal()
	require.True(t, d.Revealed())

	require.NoError(t, Verify(commitment, seed, d.Dealt()))
}

func TestDealerExhaustion(t *testing.T) {
	t.Parallel()

	d := NewDealerFromSeed(testSeed(2))
	_, err := d.Deal(52)
	require.NoError(t, err)
	_, err = d.Deal(1)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSeed(t *testing.T) {
	t.Parallel()

	d := NewDealerFromSeed(testSeed(3))
	_, err := d.Deal(5)
	require.NoError(t, err)

	err = Verify(d.Commitment(), testSeed(4), d.Dealt())
	assert.ErrorIs(t, err, ErrCommitmentMismatch)
}

func TestVerifyRejectsTamperedDealOrder(t *testing.T) {
	t.Parallel()

	d := NewDealerFromSeed(testSeed(5))
	_, err := d.Deal(5)
	require.NoError(t, err)

	dealt := d.Dealt()
	dealt[0], dealt[1] = dealt[1], dealt[0]

	err = Verify(d.Commitment(), d.Reveal(), dealt)
	assert.ErrorIs(t, err, ErrDealOrderMismatch)
}

func TestNewDealerUsesEntropySource(t *testing.T) {
	t.Parallel()

	fixed := bytes.Repeat([]byte{9}, SeedSize)
	d, err := NewDealer(bytes.NewReader(fixed))
	require.NoError(t, err)
	assert.Equal(t, testSeed(9).Commitment(), d.Commitment())

	// Short entropy source fails rather than truncating
	_, err = NewDealer(bytes.NewReader(fixed[:10]))
	assert.Error(t, err)
}

func TestSeedRoundTrip(t *testing.T) {
	t.Parallel()

	seed, err := NewSeed(rand.Reader)
	require.NoError(t, err)

	parsed, err := ParseSeed(seed.String())
	require.NoError(t, err)
	assert.Equal(t, seed, parsed)

	c, err := ParseCommitment(seed.Commitment().String())
	require.NoError(t, err)
	assert.Equal(t, seed.Commitment(), c)
}
