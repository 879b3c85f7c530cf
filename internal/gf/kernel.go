package gf

// Tier identifies a multiply-add kernel implementation, selected once per
// process by [Selected]. Every tier computes bit-identical output;
// they differ only in how bytes are grouped for the nibble-table lookups,
// mirroring the stride a real SIMD build would use (32-byte AVX2, 16-byte
// SSSE3/NEON, a portable fallback that takes one word at a time, or a plain scalar loop
// that recomputes each product from the log/exp tables with no lookup
// tables at all).
type Tier int

const (
	TierScalar Tier = iota
	TierPortable
	TierNEON
	TierSSSE3
	TierAVX2
)

func (t Tier) String() string {
	switch t {
	case TierScalar:
		return "scalar"
	case TierPortable:
		return "portable"
	case TierNEON:
		return "neon"
	case TierSSSE3:
		return "ssse3"
	case TierAVX2:
		return "avx2"
	default:
		return "unknown"
	}
}

// strideWords is the number of 16-bit words processed per inner-loop batch
// for a tier. 0 means "no batching", i.e. process one word at a time.
func (t Tier) strideWords() int {
	switch t {
	case TierAVX2:
		return 16 // 32 bytes
	case TierSSSE3, TierNEON:
		return 8 // 16 bytes
	default:
		return 0
	}
}

// MulAddBytes computes dst ^= coefficient * src, where src is interpreted
// as an array of 16-bit little-endian words. len(dst) must equal len(src).
// A trailing odd byte (if len is odd) is handled as a half-word: only the
// low byte of the coefficient multiplies it.
func MulAddBytes(tier Tier, dst, src []byte, coefficient uint16) {
	if len(dst) != len(src) {
		panic("gf: dst/src length mismatch")
	}
	if coefficient == 0 {
		return
	}

	words := len(src) / 2

	if tier == TierScalar {
		mulAddScalar(dst, src, words, coefficient)
	} else {
		tables := buildNibbleTables(coefficient)
		mulAddTabled(&tables, dst, src, words, tier.strideWords())
	}

	if len(src)%2 == 1 {
		last := len(src) - 1
		product := Mul(uint16(src[last]), uint16(byte(coefficient)))
		dst[last] ^= byte(product)
	}
}

// mulAddScalar is the un-tabled reference path: every word's product is
// recomputed directly from the GF log/exp tables, independent of the
// nibble-table construction used by every other tier.
func mulAddScalar(dst, src []byte, words int, coefficient uint16) {
	for i := range words {
		word := uint16(src[2*i]) | uint16(src[2*i+1])<<8
		product := Mul(word, coefficient)

		out := (uint16(dst[2*i]) | uint16(dst[2*i+1])<<8) ^ product
		dst[2*i] = byte(out)
		dst[2*i+1] = byte(out >> 8)
	}
}

// mulAddTabled processes words via the precomputed nibble tables, in
// batches of strideWords (0 meaning one word at a time). The arithmetic is
// identical regardless of batch size; only the loop grouping changes, to
// mirror how a real vector kernel would deinterleave a fixed-width
// register into lanes.
func mulAddTabled(tables *nibbleTables, dst, src []byte, words, strideWords int) {
	step := strideWords
	if step <= 0 {
		step = 1
	}

	i := 0
	for i+step <= words {
		for j := range step {
			w := i + j
			applyTabledWord(tables, dst, src, w)
		}
		i += step
	}

	for ; i < words; i++ {
		applyTabledWord(tables, dst, src, i)
	}
}

func applyTabledWord(tables *nibbleTables, dst, src []byte, wordIdx int) {
	lo := src[2*wordIdx]
	hi := src[2*wordIdx+1]
	product := tables.mulWord(lo, hi)

	out := (uint16(dst[2*wordIdx]) | uint16(dst[2*wordIdx+1])<<8) ^ product
	dst[2*wordIdx] = byte(out)
	dst[2*wordIdx+1] = byte(out >> 8)
}
