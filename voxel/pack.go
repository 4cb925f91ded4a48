package voxel

// Pack12 is the inverse of Unpack12. Values are truncated to 12 bits.
func Pack12(ids *Indices) []byte {
	out := make([]byte, Len12)
	for i := 0; i < Volume/2; i++ {
		v0, v1 := ids[i*2]&0xFFF, ids[i*2+1]&0xFFF
		out[i*3] = byte(v0)
		out[i*3+1] = byte(v0>>8&0x0F | (v1&0x0F)<<4)
		out[i*3+2] = byte(v1 >> 4)
	}
	return out
}

// Pack8 is the inverse of Unpack8. Values are truncated to 8 bits.
func Pack8(ids *Indices) []byte {
	out := make([]byte, Len8)
	for i, v := range ids {
		out[i] = byte(v)
	}
	return out
}

// Pack6 is the inverse of Unpack6. Values are truncated to 6 bits.
func Pack6(ids *Indices) []byte {
	out := make([]byte, Len6)
	for i := 0; i < Volume/4; i++ {
		a, b, c, d := ids[i*4]&0x3F, ids[i*4+1]&0x3F, ids[i*4+2]&0x3F, ids[i*4+3]&0x3F
		out[i*3] = byte(a | (b&0x03)<<6)
		out[i*3+1] = byte(b>>2 | (c&0x0F)<<4)
		out[i*3+2] = byte(c>>4 | d<<2)
	}
	return out
}

// Fill returns indices where every voxel holds v.
func Fill(v uint32) *Indices {
	ids := new(Indices)
	for i := range ids {
		ids[i] = v
	}
	return ids
}
