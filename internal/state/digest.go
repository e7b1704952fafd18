package state

import (
	"crypto/sha256"
	"encoding/binary"
)

// CanonicalBytes returns a deterministic serialization of the position for
// digesting. Decimal fields are rendered as canonical strings so two replays
// that produced the same values digest identically.
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = appendString(buf, p.Wallet)
	buf = appendString(buf, p.Token.Market)

	var outcome [4]byte
	binary.LittleEndian.PutUint32(outcome[:], uint32(p.Token.Outcome))
	buf = append(buf, outcome[:]...)

	buf = appendString(buf, p.HeldQuantity.String())
	buf = appendString(buf, p.AvgCost.String())
	buf = appendString(buf, p.RealizedPnL.String())
	buf = appendString(buf, p.TotalAcquired.String())
	return buf
}

// Digest computes a SHA-256 fingerprint over a book's terminal state. Two
// replays fed identical inputs digest identically; the batch-preload parity
// tests rely on this.
func (b *Book) Digest() [32]byte {
	hasher := sha256.New()
	for _, pos := range b.Positions() {
		hasher.Write(pos.CanonicalBytes())
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

func appendString(buf []byte, s string) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, []byte(s)...)
}
