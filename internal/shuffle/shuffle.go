// Package shuffle implements the commit-reveal card shuffle.
//
// Before any card is dealt the dealer publishes a SHA-256 commitment to a
// 32-byte random seed. The deal order is a Fisher-Yates permutation of the
// canonical deck driven by a ChaCha20 keystream expanded from that seed, so
// once the seed is revealed at hand end any observer can recompute the
// permutation and check it against the deal order in the event log.
package shuffle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/feltworks/holdem/internal/deck"
)

// SeedSize is the size of the shuffle seed in bytes
const SeedSize = 32

// Seed is the secret input to the deterministic shuffle
type Seed [SeedSize]byte

// Commitment is the SHA-256 hash of a seed, published before dealing
type Commitment [sha256.Size]byte

// String returns the hex encoding of the commitment
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// String returns the hex encoding of the seed
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// Commitment computes the commitment for this seed
func (s Seed) Commitment() Commitment {
	return sha256.Sum256(s[:])
}

// ParseSeed decodes a hex-encoded seed
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	b, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("invalid seed encoding: %w", err)
	}
	if len(b) != SeedSize {
		return seed, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

// ParseCommitment decodes a hex-encoded commitment
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("invalid commitment encoding: %w", err)
	}
	if len(b) != sha256.Size {
		return c, fmt.Errorf("commitment must be %d bytes, got %d", sha256.Size, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// NewSeed generates a seed from the given entropy source (crypto/rand.Reader
// in production, a fixed reader in tests).
func NewSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return seed, fmt.Errorf("read seed entropy: %w", err)
	}
	return seed, nil
}

// Permute returns the full 52-card permutation derived from the seed. The
// same seed always yields the same permutation.
func Permute(seed Seed) []deck.Card {
	cards := deck.All()
	ks := newKeystream(seed)
	for i := len(cards) - 1; i > 0; i-- {
		j := ks.intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	return cards
}

// keystream draws uniform integers from a ChaCha20 cipher keyed by the seed
type keystream struct {
	cipher *chacha20.Cipher
	buf    [4]byte
}

func newKeystream(seed Seed) *keystream {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed at compile time
		panic(fmt.Sprintf("chacha20 init: %v", err))
	}
	return &keystream{cipher: c}
}

func (ks *keystream) next() uint32 {
	ks.buf = [4]byte{}
	ks.cipher.XORKeyStream(ks.buf[:], ks.buf[:])
	return binary.BigEndian.Uint32(ks.buf[:])
}

// intn returns a uniform value in [0, n) using rejection sampling so the
// permutation has no modulo bias.
func (ks *keystream) intn(n int) int {
	limit := (1 << 32) / uint64(n) * uint64(n)
	for {
		v := uint64(ks.next())
		if v < limit {
			return int(v % uint64(n))
		}
	}
}

// Dealer deals cards from a committed permutation
type Dealer struct {
	seed       Seed
	commitment Commitment
	cards      []deck.Card
	next       int
	revealed   bool
}

// NewDealer generates a fresh seed from r and returns a dealer holding it.
// The commitment may be published immediately; the seed stays private until
// Reveal is called after the hand concludes.
func NewDealer(r io.Reader) (*Dealer, error) {
	seed, err := NewSeed(r)
	if err != nil {
		return nil, err
	}
	return NewDealerFromSeed(seed), nil
}

// NewDealerFromSeed builds a dealer for a known seed. Used for replay and
// dispute verification.
func NewDealerFromSeed(seed Seed) *Dealer {
	return &Dealer{
		seed:       seed,
		commitment: seed.Commitment(),
		cards:      Permute(seed),
	}
}

// Default returns a dealer seeded from crypto/rand
func Default() (*Dealer, error) {
	return NewDealer(rand.Reader)
}

// Commitment returns the published commitment for this dealer's seed
func (d *Dealer) Commitment() Commitment {
	return d.commitment
}

// Deal consumes the next n cards of the committed permutation
func (d *Dealer) Deal(n int) ([]deck.Card, error) {
	if d.next+n > len(d.cards) {
		return nil, fmt.Errorf("cannot deal %d cards, %d remaining", n, len(d.cards)-d.next)
	}
	cards := make([]deck.Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards, nil
}

// Dealt returns all cards dealt so far, in commitment order
func (d *Dealer) Dealt() []deck.Card {
	out := make([]deck.Card, d.next)
	copy(out, d.cards[:d.next])
	return out
}

// Reveal releases the seed. Call only after the hand concludes or on
// dispute; once revealed the permutation is public.
func (d *Dealer) Reveal() Seed {
	d.revealed = true
	return d.seed
}

// Revealed reports whether the seed has been released
func (d *Dealer) Revealed() bool {
	return d.revealed
}

// ErrCommitmentMismatch is returned by Verify when the revealed seed does
// not hash to the published commitment. This is a fatal integrity fault for
// the hand.
var ErrCommitmentMismatch = errors.New("revealed seed does not match commitment")

// ErrDealOrderMismatch is returned by Verify when the recorded deal order is
// not a prefix of the permutation derived from the seed.
var ErrDealOrderMismatch = errors.New("deal order does not match committed permutation")

// Verify checks a commit-reveal pair against the recorded deal order. Any
// observer can run this from event log data alone.
func Verify(commitment Commitment, seed Seed, dealt []deck.Card) error {
	if seed.Commitment() != commitment {
		return ErrCommitmentMismatch
	}
	perm := Permute(seed)
	if len(dealt) > len(perm) {
		return ErrDealOrderMismatch
	}
	for i, c := range dealt {
		if perm[i] != c {
			return fmt.Errorf("%w: position %d has %s, expected %s", ErrDealOrderMismatch, i, c, perm[i])
		}
	}
	return nil
}
