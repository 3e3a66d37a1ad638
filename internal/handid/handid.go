// Package handid generates time-sortable identifiers for tables and hands.
// IDs are UUIDv7 values encoded as 26 characters of Crockford base32, so
// lexicographic order follows creation order.
package handid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"
)

// Crockford's base32 alphabet
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Generator produces identifiers. The zero value is not usable; call
// NewGenerator.
type Generator struct {
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator creates a generator. A nil entropy reader means crypto/rand,
// a nil clock means time.Now; both are injectable for deterministic tests.
func NewGenerator(entropy io.Reader, now func() time.Time) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// New generates an identifier with the default entropy and clock
func New() string {
	return NewGenerator(nil, nil).New()
}

// New generates one identifier
func (g *Generator) New() string {
	var id [16]byte

	// 48-bit millisecond timestamp, then random bits with the UUIDv7
	// version and variant markers.
	ms := g.now().UnixMilli()
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	if _, err := io.ReadFull(g.entropy, id[6:]); err != nil {
		panic("handid: entropy exhausted: " + err.Error())
	}
	id[6] = (id[6] & 0x0f) | 0x70
	id[8] = (id[8] & 0x3f) | 0x80

	return encode(id)
}

// encode packs 128 bits into 26 base32 characters, 5 bits at a time
func encode(data [16]byte) string {
	var out [26]byte
	for i := range out {
		bit := i * 5
		byteIdx, bitIdx := bit/8, bit%8

		var v byte
		if bitIdx <= 3 {
			v = (data[byteIdx] >> (3 - bitIdx)) & 0x1f
		} else {
			v = (data[byteIdx] << (bitIdx - 3)) & 0x1f
			if byteIdx+1 < len(data) {
				v |= data[byteIdx+1] >> (11 - bitIdx)
			}
		}
		out[i] = alphabet[v]
	}
	return string(out[:])
}

// Validate checks that an ID is 26 characters of the base32 alphabet with a
// leading character that fits in 128 bits.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("id must be 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("id first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(alphabet, rune(id[i])) {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}
