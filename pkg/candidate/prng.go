package candidate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// seededPRNG is a deterministic HMAC-SHA256 counter-mode generator, grounded
// on the teacher's pkg/kernel.DeterministicPRNG (same seed ⇒ same sequence,
// no global math/rand state), stripped of its event-log recording since the
// candidate generator's determinism only needs the numeric stream.
type seededPRNG struct {
	seed    []byte
	counter uint64
}

func newSeededPRNG(seed []byte) *seededPRNG {
	s := make([]byte, len(seed))
	copy(s, seed)
	return &seededPRNG{seed: s}
}

func (p *seededPRNG) next() uint64 {
	p.counter++
	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, p.counter)

	h := hmac.New(sha256.New, p.seed)
	h.Write(counterBytes)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
