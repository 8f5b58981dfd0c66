package pack

// writeSizeVarint encodes a pack object header's variable-length size
// field: 4 bits of size plus the 3-bit object type in the first byte,
// then 7 bits of size per continuation byte, least-significant group
// first, matching Git's pack object header encoding.
func writeSizeVarint(objType byte, size uint64) []byte {
	first := byte(size & 0x0f)
	size >>= 4
	out := []byte{0}
	cont := size != 0
	out[0] = (objType << 4) | first
	if cont {
		out[0] |= 0x80
	}
	for cont {
		b := byte(size & 0x7f)
		size >>= 7
		cont = size != 0
		if cont {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// writeUvarint encodes an unsigned integer as plain 7-bits-per-byte
// little-endian varint with continuation bit, used for delta payload
// base/target lengths that don't need the object-header's type nibble.
func writeUvarint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var out []byte
	for v != 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
