// Package ordering produces reproducible per-judge permutations.
//
// The same (seed, judge) pair always yields the same permutation of a given
// length, so a queue can be rebuilt from stored inputs alone.
package ordering

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// Seed mixes a campaign seed with a discriminator (a judge id, a scan
// counter) into a single 64-bit value.
func Seed(seed, salt int64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(salt))
	return xxhash.Sum64(buf[:])
}

// Permutation returns the indexes 0..n-1 shuffled by the generator derived
// from (seed, judgeID).
func Permutation(seed, judgeID int64, n int) []int {
	if n <= 0 {
		return nil
	}
	s := Seed(seed, judgeID)
	rng := rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible ordering, not security
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Shuffle reorders ids in place using Permutation. The input order must be
// canonical (for instance sorted) for the result to be reproducible.
func Shuffle(ids []int64, seed, judgeID int64) {
	perm := Permutation(seed, judgeID, len(ids))
	if perm == nil {
		return
	}
	src := append([]int64(nil), ids...)
	for i, p := range perm {
		ids[i] = src[p]
	}
}
