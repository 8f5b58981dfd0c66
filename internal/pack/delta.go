// Delta encoding for ref-delta objects. Git's copy instruction encodes
// a 32-bit offset and a 24-bit length, each as up to four (resp.
// three) independently-present bytes; a length field with every byte
// absent is defined to mean 0x10000, so an encoder must never let an
// actual copy length land on an exact multiple of 2^24 -- that would
// serialize as three zero bytes and decode as 0x10000 instead of the
// intended length. encodeDelta caps every match it extends at
// 0xFFFFFF and lets the outer loop start a fresh copy op past that
// point, so no single instruction's length field can ever be zero.
package pack

const windowSize = 64
const cyclicPeriod = 23

// maxCopyLen is the largest length a single copy instruction's 3-byte
// length field can hold without colliding with the "all bytes absent"
// sentinel that means 0x10000.
const maxCopyLen = 0xFFFFFF

// rollingHash computes a Rabin-Karp style rolling hash over windowSize
// byte windows, rotated through cyclicPeriod accumulator buckets so
// the hash's effective period lines up with the short repeating
// structure (headers, record boundaries) that real blobs tend to
// have; the exact period only affects match quality, not correctness.
type rollingHash struct {
	buckets [cyclicPeriod]uint32
}

func hashWindow(data []byte) uint32 {
	var h rollingHash
	for i, b := range data {
		bucket := i % cyclicPeriod
		h.buckets[bucket] = h.buckets[bucket]*131 + uint32(b)
	}
	var out uint32
	for _, v := range h.buckets {
		out = out*1000003 + v
	}
	return out
}

// buildWindowIndex maps every windowSize-byte window's hash in base to
// the (possibly several) starting offsets it occurs at, capped so a
// pathological highly-repetitive base can't blow up memory.
func buildWindowIndex(base []byte) map[uint32][]int {
	index := map[uint32][]int{}
	if len(base) < windowSize {
		return index
	}
	const maxBucket = 8
	for i := 0; i+windowSize <= len(base); i++ {
		h := hashWindow(base[i : i+windowSize])
		if len(index[h]) < maxBucket {
			index[h] = append(index[h], i)
		}
	}
	return index
}

type deltaOp struct {
	isCopy bool
	// copy
	offset int
	length int
	// insert
	literal []byte
}

// encodeDelta finds copy spans of target against base using the
// window index and emits the remaining bytes as literal inserts,
// greedily extending each match forward as far as it will go; a match
// is not extended backward into the preceding literal run.
func encodeDelta(base, target []byte) []deltaOp {
	index := buildWindowIndex(base)
	var ops []deltaOp
	var literal []byte
	i := 0
	flushLiteral := func() {
		if len(literal) > 0 {
			ops = append(ops, deltaOp{isCopy: false, literal: literal})
			literal = nil
		}
	}
	for i < len(target) {
		if i+windowSize > len(target) || len(index) == 0 {
			literal = append(literal, target[i])
			i++
			continue
		}
		h := hashWindow(target[i : i+windowSize])
		candidates, ok := index[h]
		if !ok {
			literal = append(literal, target[i])
			i++
			continue
		}
		bestOff, bestLen := -1, 0
		for _, off := range candidates {
			if !bytesEqual(base[off:off+windowSize], target[i:i+windowSize]) {
				continue
			}
			// Extend forward, capped so the copy length never
			// reaches 0x1000000 (see package doc).
			end := windowSize
			for off+end < len(base) && i+end < len(target) && end < maxCopyLen && base[off+end] == target[i+end] {
				end++
			}
			if end > bestLen {
				bestLen = end
				bestOff = off
			}
		}
		if bestOff < 0 {
			literal = append(literal, target[i])
			i++
			continue
		}
		flushLiteral()
		ops = append(ops, deltaOp{isCopy: true, offset: bestOff, length: bestLen})
		i += bestLen
	}
	flushLiteral()
	return ops
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// encodeDeltaPayload serializes base/target sizes plus the delta ops
// into Git's ref-delta payload format (the part that follows the
// 20-byte base oid in a REF_DELTA object).
func encodeDeltaPayload(baseLen, targetLen int, ops []deltaOp) []byte {
	out := writeUvarint(uint64(baseLen))
	out = append(out, writeUvarint(uint64(targetLen))...)
	for _, op := range ops {
		if op.isCopy {
			out = append(out, encodeCopy(op.offset, op.length)...)
			continue
		}
		// Insert instructions carry at most 0x7f literal bytes each.
		lit := op.literal
		for len(lit) > 0 {
			n := len(lit)
			if n > 0x7f {
				n = 0x7f
			}
			out = append(out, byte(n))
			out = append(out, lit[:n]...)
			lit = lit[n:]
		}
	}
	return out
}

// encodeCopy builds a Git delta copy instruction. The opcode byte has
// its high bit set to mark it a copy op; bits 0-3 select which of the
// 4 possible offset bytes follow, bits 4-6 select which of the 3
// possible length bytes follow. Each byte -- offset or length -- is
// included independently iff it is non-zero, so a length needing the
// third (high) byte always gets it, with no truncation at 2^16.
// Callers must pass length <= maxCopyLen (encodeDelta enforces this);
// a length of exactly 0x1000000 would serialize with all three length
// bytes zero, which decodeDelta reads back as the 0x10000 sentinel.
func encodeCopy(offset, length int) []byte {
	op := byte(0x80)
	var rest []byte
	off := uint32(offset)
	for i := 0; i < 4; i++ {
		b := byte(off >> (8 * i))
		if b != 0 {
			op |= 1 << i
			rest = append(rest, b)
		}
	}
	l := uint32(length)
	for i := 0; i < 3; i++ {
		b := byte(l >> (8 * i))
		if b != 0 {
			op |= 1 << (4 + i)
			rest = append(rest, b)
		}
	}
	return append([]byte{op}, rest...)
}

// decodeDelta reverses encodeDeltaPayload, used only by this
// package's own round-trip tests.
func decodeDelta(base, payload []byte) ([]byte, error) {
	baseLen, n := readUvarint(payload)
	payload = payload[n:]
	targetLen, n := readUvarint(payload)
	payload = payload[n:]
	_ = baseLen

	out := make([]byte, 0, targetLen)
	for len(payload) > 0 {
		op := payload[0]
		payload = payload[1:]
		if op&0x80 != 0 {
			var offset, length uint32
			for i := 0; i < 4; i++ {
				if op&(1<<i) != 0 {
					offset |= uint32(payload[0]) << (8 * i)
					payload = payload[1:]
				}
			}
			for i := 0; i < 3; i++ {
				if op&(1<<(4+i)) != 0 {
					length |= uint32(payload[0]) << (8 * i)
					payload = payload[1:]
				}
			}
			if length == 0 {
				length = 0x10000
			}
			out = append(out, base[offset:offset+length]...)
		} else {
			n := int(op)
			out = append(out, payload[:n]...)
			payload = payload[n:]
		}
	}
	return out, nil
}

func readUvarint(data []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, b := range data {
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(data)
}
