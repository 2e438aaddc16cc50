package workload

import (
	"encoding/binary"
	"math/rand"

	"github.com/spaolacci/murmur3"
)

// WorkerSeed derives a stable per-worker seed so runs with the same seed
// replay the same id choices for every (operation, mode, worker).
func WorkerSeed(runSeed int64, op Operation, mode string, worker int) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(runSeed))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(worker))

	h := murmur3.New64()
	h.Write(buf[:])
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	return int64(h.Sum64() >> 1)
}

// newRand returns a generator for one worker. math/rand generators are not
// safe for concurrent use, so each worker owns its own.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
