// Package keyspace maps sequential row ids onto a benchmark key space.
//
// Scatter spreads monotonically increasing ids across [0, R) so that
// consecutive inserts and deletes do not land on one contiguous key range.
// Partition splits [0, R) into contiguous per-worker sub-ranges.
package keyspace

// Multiplier is the scatter constant (the 32-bit FNV prime).
const Multiplier int64 = 16777619

// Scatter maps id in [0, rangeSize) to a position in [0, rangeSize).
//
// The mapping is id*Multiplier mod rangeSize. It is a bijection only when
// rangeSize is coprime with Multiplier (see Bijective); it is an
// approximately uniform permutation for spreading keys, not a cryptographic
// one. All arithmetic is 64-bit and a negative remainder is folded back into
// range.
func Scatter(id, rangeSize int64) int64 {
	if rangeSize <= 0 {
		return 0
	}
	s := (id * Multiplier) % rangeSize
	if s < 0 {
		s += rangeSize
	}
	return s
}

// ScatterUnbounded maps an id that may exceed rangeSize. The id is split
// into region = id / rangeSize and offset = id % rangeSize; only the offset
// is scattered, so ids from different regions never collide.
func ScatterUnbounded(id, rangeSize int64) int64 {
	if rangeSize <= 0 {
		return id
	}
	region := id / rangeSize
	offset := Scatter(id%rangeSize, rangeSize)
	return region*rangeSize + offset
}

// Bijective reports whether Scatter is a permutation of [0, rangeSize).
func Bijective(rangeSize int64) bool {
	return rangeSize > 0 && gcd(Multiplier, rangeSize) == 1
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
